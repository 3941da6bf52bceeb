package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"capline/internal/db"
)

// Archive event types.
const (
	TypeRunArchived   = "run.archived"
	TypeEventInjected = "event.injected"
	TypeGatesResolved = "gates.resolved"
)

type Writer struct {
	DB  *db.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one immutable archive event inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, runID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	q := w.DB.InsertQuery("archive_events", []string{"ts", "type", "run_id", "payload_json"})
	if _, err := tx.ExecContext(ctx, q, ts, evtType, runID, string(data)); err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}
