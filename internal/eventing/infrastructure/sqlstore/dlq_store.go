package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"royalty-engine/internal/eventing"
	"royalty-engine/internal/platform/sqldb"
)

const defaultDLQTable = "dead_letter_events"

// DeadLetter is the latest failure recorded for one event.
type DeadLetter struct {
	EventID     string
	EventType   string
	CycleID     string
	Error       string
	Attempts    int
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// DLQStore keeps one row per undeliverable event, tagged with its cycle so
// operators can see which settlement runs left events behind.
type DLQStore struct {
	db    *sqldb.DB
	table string
}

func NewDLQStore(db *sqldb.DB) *DLQStore {
	return &DLQStore{db: db, table: defaultDLQTable}
}

// RecordFailure upserts the event's row and counts the attempt.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("dlq store: encode %s: %w", env.EventID, err)
	}
	message := "unknown"
	if cause != nil {
		message = cause.Error()
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, fmt.Sprintf(`
INSERT INTO %[1]s (event_id, event_type, cycle_id, payload, error, first_seen_at, last_seen_at, attempts)
VALUES (?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT (event_id) DO UPDATE SET
	error = excluded.error,
	last_seen_at = excluded.last_seen_at,
	attempts = %[1]s.attempts + 1`, s.table),
		env.EventID, env.EventType, env.CycleID, string(payload), message, now, now)
	return err
}

// ListByCycle returns the dead letters of one cycle, most recent first.
func (s *DLQStore) ListByCycle(ctx context.Context, cycleID string) ([]DeadLetter, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("dlq store: nil db")
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
SELECT event_id, event_type, cycle_id, error, attempts, first_seen_at, last_seen_at
FROM %s
WHERE cycle_id = ?
ORDER BY last_seen_at DESC, event_id ASC`, s.table), cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var d DeadLetter
		if err := rows.Scan(&d.EventID, &d.EventType, &d.CycleID, &d.Error, &d.Attempts, &d.FirstSeenAt, &d.LastSeenAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Count returns the number of dead-lettered events.
func (s *DLQStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("dlq store: nil db")
	}
	var count int
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&count)
	return count, err
}
