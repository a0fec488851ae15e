package store

import (
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	token := EncodeCursor(Cursor{CreatedAt: at, ID: "res_abc"})
	if token == "" {
		t.Fatal("expected non-empty cursor token")
	}
	decoded, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("DecodeCursor() error = %v", err)
	}
	if !decoded.CreatedAt.Equal(at) || decoded.ID != "res_abc" {
		t.Fatalf("unexpected cursor: %+v", decoded)
	}
}

func TestDecodeCursorEmptyToken(t *testing.T) {
	c, err := DecodeCursor("")
	if err != nil {
		t.Fatalf("DecodeCursor(\"\") error = %v", err)
	}
	if !c.CreatedAt.IsZero() || c.ID != "" {
		t.Fatalf("expected zero cursor, got %+v", c)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	if _, err := DecodeCursor("!!!not-base64!!!"); err == nil {
		t.Fatal("expected garbage cursor to be rejected")
	}
}

func TestClampLimit(t *testing.T) {
	if got := ClampLimit(0); got != DefaultPageSize {
		t.Fatalf("ClampLimit(0) = %d", got)
	}
	if got := ClampLimit(-5); got != DefaultPageSize {
		t.Fatalf("ClampLimit(-5) = %d", got)
	}
	if got := ClampLimit(10); got != 10 {
		t.Fatalf("ClampLimit(10) = %d", got)
	}
	if got := ClampLimit(5000); got != MaxPageSize {
		t.Fatalf("ClampLimit(5000) = %d", got)
	}
}
