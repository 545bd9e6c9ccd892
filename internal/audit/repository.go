package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"royalty-engine/internal/platform/sqldb"
)

// Repository writes calculation audit rows.
type Repository struct {
	db *sqldb.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sqldb.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.IP == "" {
		entry.IP = ClientIPFromContext(ctx)
	}
	if len(entry.Metadata) == 0 {
		entry.Metadata = json.RawMessage("{}")
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	errs := entry.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	var actor sql.NullString
	if !entry.Actor.Automated() {
		actor = sql.NullString{String: string(entry.Actor), Valid: true}
	}

	_, err = r.db.Exec(ctx, `
INSERT INTO calculation_audits (
	id, calculation_type, play_log_id, cycle_id, total_amount, currency,
	distribution_count, metadata, errors, actor, ip, payload_digest, created_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		entry.ID, string(entry.Type), nullable(entry.PlayLogID), nullable(entry.CycleID), entry.TotalAmount.String(), entry.Currency,
		entry.DistributionCount, string(entry.Metadata), string(errorsJSON), actor, entry.IP, entry.PayloadDigest, entry.CreatedAt.UTC())
	return err
}

// Filter narrows List results.
type Filter struct {
	Type      Type
	CycleID   string
	PlayLogID string
	Limit     int
}

// List returns audit rows newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	query := `
SELECT id, calculation_type, play_log_id, cycle_id, total_amount, currency,
	distribution_count, metadata, errors, actor, ip, payload_digest, created_at
FROM calculation_audits WHERE 1=1`
	var args []any
	if filter.Type != "" {
		query += " AND calculation_type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.CycleID != "" {
		query += " AND cycle_id = ?"
		args = append(args, filter.CycleID)
	}
	if filter.PlayLogID != "" {
		query += " AND play_log_id = ?"
		args = append(args, filter.PlayLogID)
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry      Entry
			typ        string
			playLogID  sql.NullString
			cycleID    sql.NullString
			total      string
			metadata   string
			errorsJSON string
			actor      sql.NullString
		)
		if err := rows.Scan(&entry.ID, &typ, &playLogID, &cycleID, &total, &entry.Currency,
			&entry.DistributionCount, &metadata, &errorsJSON, &actor, &entry.IP, &entry.PayloadDigest, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Type = Type(typ)
		entry.PlayLogID = playLogID.String
		entry.CycleID = cycleID.String
		entry.TotalAmount, err = decimal.NewFromString(total)
		if err != nil {
			return nil, err
		}
		entry.Metadata = json.RawMessage(metadata)
		if err := json.Unmarshal([]byte(errorsJSON), &entry.Errors); err != nil {
			return nil, err
		}
		entry.Actor = ActorID(actor.String)
		entry.CreatedAt = entry.CreatedAt.UTC()
		out = append(out, entry)
	}
	return out, rows.Err()
}

func nullable(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
