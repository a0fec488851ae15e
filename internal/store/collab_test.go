package store

import (
	"testing"
	"time"
)

func TestJoinParticipantAppendsNewUser(t *testing.T) {
	now := time.Now()
	participants, changed := joinParticipant(nil, "usr_a", now)
	if !changed || len(participants) != 1 {
		t.Fatalf("expected new entry, got %v changed=%v", participants, changed)
	}
	if participants[0].UserID != "usr_a" || participants[0].LeftAt != nil {
		t.Fatalf("unexpected entry: %+v", participants[0])
	}
}

func TestJoinParticipantIdempotentWhileActive(t *testing.T) {
	now := time.Now()
	participants, _ := joinParticipant(nil, "usr_a", now)
	participants, changed := joinParticipant(participants, "usr_a", now.Add(time.Minute))
	if changed || len(participants) != 1 {
		t.Fatalf("expected no-op rejoin, got %v changed=%v", participants, changed)
	}
}

func TestJoinParticipantAfterLeaveAppendsFreshEntry(t *testing.T) {
	now := time.Now()
	participants, _ := joinParticipant(nil, "usr_a", now)
	participants, _ = applyLeave(participants, "usr_a", now.Add(time.Minute))
	participants, changed := joinParticipant(participants, "usr_a", now.Add(2*time.Minute))
	if !changed || len(participants) != 2 {
		t.Fatalf("expected second entry after leave, got %v", participants)
	}
}

func TestApplyLeaveMarksMostRecentActiveEntry(t *testing.T) {
	now := time.Now()
	participants, _ := joinParticipant(nil, "usr_a", now)
	participants, _ = joinParticipant(participants, "usr_b", now)
	participants, changed := applyLeave(participants, "usr_a", now.Add(time.Minute))
	if !changed {
		t.Fatal("expected leave to change the list")
	}
	if participants[0].LeftAt == nil {
		t.Fatal("expected usr_a entry to be stamped")
	}
	if participants[1].LeftAt != nil {
		t.Fatal("usr_b entry should be untouched")
	}
}

func TestApplyLeaveTwiceIsNoOp(t *testing.T) {
	now := time.Now()
	participants, _ := joinParticipant(nil, "usr_a", now)
	participants, _ = applyLeave(participants, "usr_a", now.Add(time.Minute))
	_, changed := applyLeave(participants, "usr_a", now.Add(2*time.Minute))
	if changed {
		t.Fatal("expected second leave to be a no-op")
	}
}

func TestAllInactive(t *testing.T) {
	now := time.Now()
	participants, _ := joinParticipant(nil, "usr_a", now)
	participants, _ = joinParticipant(participants, "usr_b", now)
	if allInactive(participants) {
		t.Fatal("active participants should not report inactive")
	}
	participants, _ = applyLeave(participants, "usr_a", now)
	if allInactive(participants) {
		t.Fatal("one participant still active")
	}
	participants, _ = applyLeave(participants, "usr_b", now)
	if !allInactive(participants) {
		t.Fatal("expected all participants inactive")
	}
}
