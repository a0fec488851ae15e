package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrSessionEnded is returned for joins, leaves, and change records against a
// session whose endedAt is already set.
var ErrSessionEnded = errors.New("session has ended")

// joinParticipant appends a new entry for userID unless the user already has
// an active one. Reports whether the list changed.
func joinParticipant(participants []SessionParticipant, userID string, now time.Time) ([]SessionParticipant, bool) {
	for _, p := range participants {
		if p.UserID == userID && p.LeftAt == nil {
			return participants, false
		}
	}
	return append(participants, SessionParticipant{UserID: userID, JoinedAt: now}), true
}

// applyLeave stamps leftAt on the user's most recent active entry. Entries
// that already left are untouched, so a double leave is a no-op.
func applyLeave(participants []SessionParticipant, userID string, now time.Time) ([]SessionParticipant, bool) {
	for i := len(participants) - 1; i >= 0; i-- {
		if participants[i].UserID == userID && participants[i].LeftAt == nil {
			left := now
			participants[i].LeftAt = &left
			return participants, true
		}
	}
	return participants, false
}

// allInactive reports whether every participant has left.
func allInactive(participants []SessionParticipant) bool {
	for _, p := range participants {
		if p.LeftAt == nil {
			return false
		}
	}
	return true
}

const sessionColumns = `id, resource_id, started_by, started_at, ended_at, participants, changes`

func scanSession(row rowScanner) (CollabSession, error) {
	var item CollabSession
	var participantsRaw, changesRaw []byte
	err := row.Scan(
		&item.ID,
		&item.ResourceID,
		&item.StartedBy,
		&item.StartedAt,
		&item.EndedAt,
		&participantsRaw,
		&changesRaw,
	)
	if err != nil {
		return CollabSession{}, err
	}
	if err := json.Unmarshal(participantsRaw, &item.Participants); err != nil {
		return CollabSession{}, fmt.Errorf("decode session participants: %w", err)
	}
	if err := json.Unmarshal(changesRaw, &item.Changes); err != nil {
		return CollabSession{}, fmt.Errorf("decode session changes: %w", err)
	}
	if item.Participants == nil {
		item.Participants = []SessionParticipant{}
	}
	if item.Changes == nil {
		item.Changes = []SessionChange{}
	}
	return item, nil
}

func (s *PostgresStore) InsertCollabSession(ctx context.Context, session CollabSession) error {
	participantsRaw, err := json.Marshal(session.Participants)
	if err != nil {
		return fmt.Errorf("encode session participants: %w", err)
	}
	changes := session.Changes
	if changes == nil {
		changes = []SessionChange{}
	}
	changesRaw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode session changes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collab_sessions (id, resource_id, started_by, participants, changes)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb)
	`, session.ID, session.ResourceID, session.StartedBy, string(participantsRaw), string(changesRaw))
	if err != nil {
		return fmt.Errorf("insert collab session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCollabSession(ctx context.Context, sessionID string) (CollabSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM collab_sessions WHERE id=$1`, sessionID)
	return scanSession(row)
}

// mutateSession locks the session row, applies fn to it, and writes back the
// participants, changes, and ended state in the same transaction. fn returns
// false to skip the write (no-op mutation).
func (s *PostgresStore) mutateSession(ctx context.Context, sessionID string, fn func(*CollabSession) (bool, error)) (CollabSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CollabSession{}, fmt.Errorf("begin session tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM collab_sessions WHERE id=$1 FOR UPDATE`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		return CollabSession{}, err
	}

	changed, err := fn(&session)
	if err != nil {
		return CollabSession{}, err
	}
	if !changed {
		return session, nil
	}

	participantsRaw, err := json.Marshal(session.Participants)
	if err != nil {
		return CollabSession{}, fmt.Errorf("encode session participants: %w", err)
	}
	changesRaw, err := json.Marshal(session.Changes)
	if err != nil {
		return CollabSession{}, fmt.Errorf("encode session changes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE collab_sessions
		SET participants=$2::jsonb, changes=$3::jsonb, ended_at=$4
		WHERE id=$1
	`, sessionID, string(participantsRaw), string(changesRaw), session.EndedAt); err != nil {
		return CollabSession{}, fmt.Errorf("update collab session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return CollabSession{}, fmt.Errorf("commit session tx: %w", err)
	}
	return session, nil
}

// JoinCollabSession adds the user as an active participant. Joining a session
// the user is already active in is a no-op; joining an ended session fails.
func (s *PostgresStore) JoinCollabSession(ctx context.Context, sessionID, userID string) (CollabSession, error) {
	return s.mutateSession(ctx, sessionID, func(session *CollabSession) (bool, error) {
		if session.EndedAt != nil {
			return false, ErrSessionEnded
		}
		participants, changed := joinParticipant(session.Participants, userID, time.Now().UTC())
		session.Participants = participants
		return changed, nil
	})
}

// LeaveCollabSession stamps the user's active entry and ends the session in
// the same write when no active participant remains.
func (s *PostgresStore) LeaveCollabSession(ctx context.Context, sessionID, userID string) (CollabSession, error) {
	return s.mutateSession(ctx, sessionID, func(session *CollabSession) (bool, error) {
		if session.EndedAt != nil {
			return false, ErrSessionEnded
		}
		now := time.Now().UTC()
		participants, changed := applyLeave(session.Participants, userID, now)
		if !changed {
			return false, nil
		}
		session.Participants = participants
		if allInactive(session.Participants) {
			session.EndedAt = &now
		}
		return true, nil
	})
}

// AppendSessionChange records one activity entry on an active session.
func (s *PostgresStore) AppendSessionChange(ctx context.Context, sessionID string, change SessionChange) (CollabSession, error) {
	return s.mutateSession(ctx, sessionID, func(session *CollabSession) (bool, error) {
		if session.EndedAt != nil {
			return false, ErrSessionEnded
		}
		session.Changes = append(session.Changes, change)
		return true, nil
	})
}

func (s *PostgresStore) ListActiveSessions(ctx context.Context, resourceID string) ([]CollabSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM collab_sessions
		WHERE resource_id=$1 AND ended_at IS NULL
		ORDER BY started_at DESC
	`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	items := make([]CollabSession, 0)
	for rows.Next() {
		item, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collab session: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collab sessions: %w", err)
	}
	return items, nil
}
