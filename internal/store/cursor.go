package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Page bounds the page size for paginated list operations.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Cursor is an opaque keyset position for paginated scans. CreatedAt plus ID
// orders time-keyed listings; VersionNumber orders version history.
type Cursor struct {
	CreatedAt     time.Time `json:"createdAt"`
	ID            string    `json:"id"`
	VersionNumber int       `json:"versionNumber,omitempty"`
}

// EncodeCursor renders a cursor as the opaque token handed to clients.
func EncodeCursor(c Cursor) string {
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an opaque cursor token. An empty token means start
// from the beginning.
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("parse cursor: %w", err)
	}
	return c, nil
}

// ClampLimit normalizes a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
