// Package activity records a best-effort feed of entity changes.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"huddle/api/internal/store"
	"huddle/api/internal/util"
)

// Sink persists activity entries.
type Sink interface {
	InsertActivity(ctx context.Context, activity store.Activity) error
}

// Recorder writes activity entries asynchronously. Recording never blocks the
// calling request and failures are logged, not propagated.
type Recorder struct {
	sink    Sink
	timeout time.Duration
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, timeout: 5 * time.Second}
}

// Entry describes one recorded event.
type Entry struct {
	Type       string
	EntityType string
	EntityID   string
	Summary    string
	Changes    []store.FieldChange
	ProjectID  string
}

// Record persists the entry on a background goroutine.
func (r *Recorder) Record(actorID string, entry Entry) {
	if r == nil || r.sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.record(ctx, actorID, entry); err != nil {
			log.Printf("activity: record %s %s: %v", entry.Type, entry.EntityID, err)
		}
	}()
}

// record is the synchronous path, split out so tests can assert on it.
func (r *Recorder) record(ctx context.Context, actorID string, entry Entry) error {
	activity := store.Activity{
		ID:          util.NewID("act"),
		Type:        entry.Type,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Summary:     entry.Summary,
		ProjectID:   entry.ProjectID,
		PerformedBy: actorID,
	}
	if len(entry.Changes) > 0 {
		raw, err := json.Marshal(entry.Changes)
		if err != nil {
			return fmt.Errorf("encode activity changes: %w", err)
		}
		activity.Changes = raw
	}
	return r.sink.InsertActivity(ctx, activity)
}
