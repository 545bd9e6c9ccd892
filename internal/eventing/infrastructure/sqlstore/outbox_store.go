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

const (
	defaultOutboxTable       = "event_outbox"
	defaultOutboxMaxAttempts = 5
	defaultOutboxPageSize    = 50
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"
)

var errNilOutbox = errors.New("outbox store: nil db")

// OutboxStore holds cycle lifecycle events (locks, settlements, remittances,
// exported reports) until the dispatcher hands them to subscribers. A record
// whose delivery fails stays pending until it has used up maxAttempts.
type OutboxStore struct {
	db          *sqldb.DB
	table       string
	maxAttempts int
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// WithOutboxMaxAttempts sets how many failed deliveries park a record.
func WithOutboxMaxAttempts(n int) OutboxOption {
	return func(store *OutboxStore) {
		if n > 0 {
			store.maxAttempts = n
		}
	}
}

func NewOutboxStore(db *sqldb.DB, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{db: db, table: defaultOutboxTable, maxAttempts: defaultOutboxMaxAttempts}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Insert queues env and returns the outbox row id. The envelope's cycle id is
// kept in its own column so a cycle's event trail can be listed.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if s == nil || s.db == nil {
		return "", errNilOutbox
	}
	if env.EventID == "" || env.EventType == "" {
		return "", errors.New("outbox store: envelope without id or type")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("outbox store: encode %s: %w", env.EventType, err)
	}
	id := eventing.NewEventID()
	_, err = s.db.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (id, event_id, event_type, cycle_id, payload, status, attempts, created_at)
VALUES (?, ?, ?, ?, ?, ?, 0, ?)`, s.table),
		id, env.EventID, env.EventType, env.CycleID, string(payload), outboxPending, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("outbox store: insert %s: %w", env.EventType, err)
	}
	return id, nil
}

// ListPending returns undelivered records, oldest first.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNilOutbox
	}
	if limit <= 0 {
		limit = defaultOutboxPageSize
	}
	return s.list(ctx, fmt.Sprintf(`
SELECT id, payload
FROM %s
WHERE status = ?
ORDER BY created_at ASC, id ASC
LIMIT ?`, s.table), outboxPending, limit)
}

// ListByCycle returns every record raised for a cycle regardless of status,
// in the order they were queued.
func (s *OutboxStore) ListByCycle(ctx context.Context, cycleID string) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNilOutbox
	}
	return s.list(ctx, fmt.Sprintf(`
SELECT id, payload
FROM %s
WHERE cycle_id = ?
ORDER BY created_at ASC, id ASC`, s.table), cycleID)
}

func (s *OutboxStore) list(ctx context.Context, query string, args ...any) ([]eventing.OutboxRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventing.OutboxRecord
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var env eventing.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("outbox store: decode %s: %w", id, err)
		}
		result = append(result, eventing.OutboxRecord{ID: id, Envelope: env})
	}
	return result, rows.Err()
}

// MarkSent records a successful delivery.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errNilOutbox
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`UPDATE %s SET status = ?, sent_at = ? WHERE id = ?`, s.table),
		outboxSent, time.Now().UTC(), id)
	return err
}

// MarkFailed counts a failed delivery. The record is retried on the next
// dispatch until it reaches maxAttempts, then it is parked as failed.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errNilOutbox
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
UPDATE %s
SET attempts = attempts + 1,
	status = CASE WHEN attempts + 1 >= ? THEN ? ELSE status END
WHERE id = ?`, s.table), s.maxAttempts, outboxFailed, id)
	return err
}
