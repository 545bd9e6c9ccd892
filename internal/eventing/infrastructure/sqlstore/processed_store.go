package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"royalty-engine/internal/platform/sqldb"
)

const defaultProcessedTable = "processed_events"

var errMissingDelivery = errors.New("processed store: event id and consumer are required")

// ProcessedStore remembers which consumer (the remittance acknowledger, for
// one) has already applied which envelope, so redelivered events are no-ops.
type ProcessedStore struct {
	db    *sqldb.DB
	table string
}

func NewProcessedStore(db *sqldb.DB) *ProcessedStore {
	return &ProcessedStore{db: db, table: defaultProcessedTable}
}

// HasProcessed reports whether consumerName already handled eventID.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return false, errMissingDelivery
	}
	var one int
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE event_id = ? AND consumer_name = ?`, s.table),
		eventID, consumerName).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("processed store: lookup %s/%s: %w", consumerName, eventID, err)
	}
	return true, nil
}

// MarkProcessed records the delivery. Marking twice keeps the first timestamp.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return errMissingDelivery
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (event_id, consumer_name, processed_at)
VALUES (?, ?, ?)
ON CONFLICT (event_id, consumer_name) DO NOTHING`, s.table), eventID, consumerName, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("processed store: mark %s/%s: %w", consumerName, eventID, err)
	}
	return nil
}
