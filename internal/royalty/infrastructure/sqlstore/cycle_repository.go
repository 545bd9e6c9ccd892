package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"royalty-engine/internal/platform/sqldb"
	royalty "royalty-engine/internal/royalty/domain"
)

const cycleColumns = `id, name, territory, currency, period_start, period_end, status,
	default_admin_fee_percent, created_at, locked_at, invoiced_at, remitted_at`

// CycleRepository persists royalty cycles and their line items.
type CycleRepository struct {
	db *sqldb.DB
}

// NewCycleRepository constructs a repository.
func NewCycleRepository(db *sqldb.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

// CreateCycle inserts a new cycle.
func (r *CycleRepository) CreateCycle(ctx context.Context, cycle *royalty.RoyaltyCycle) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if cycle == nil || cycle.ID == "" {
		return royalty.ErrEmptyID
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO royalty_cycles (`+cycleColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		cycle.ID, cycle.Name, cycle.Territory, cycle.Currency, cycle.PeriodStart.UTC(), cycle.PeriodEnd.UTC(),
		string(cycle.Status), cycle.DefaultAdminFeePercent, cycle.CreatedAt.UTC(),
		nullTime(cycle.LockedAt), nullTime(cycle.InvoicedAt), nullTime(cycle.RemittedAt))
	return royalty.NewPersistenceError("create cycle", err)
}

// GetCycle fetches a cycle.
func (r *CycleRepository) GetCycle(ctx context.Context, id string) (*royalty.RoyaltyCycle, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	row := r.db.QueryRow(ctx, `SELECT `+cycleColumns+` FROM royalty_cycles WHERE id = ?`, id)
	cycle, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

// ListCycles returns cycles with status, or all when status is empty.
func (r *CycleRepository) ListCycles(ctx context.Context, status royalty.CycleStatus) ([]royalty.RoyaltyCycle, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	query := `SELECT ` + cycleColumns + ` FROM royalty_cycles`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY period_start ASC, id ASC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.RoyaltyCycle
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CommitLock replaces line items and flips the cycle from open to locked.
func (r *CycleRepository) CommitLock(ctx context.Context, cycleID string, items []royalty.RoyaltyLineItem, at time.Time) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	err := r.db.WithTx(ctx, func(tx *sqldb.Tx) error {
		res, err := tx.Exec(ctx, `
UPDATE royalty_cycles
SET status = ?, locked_at = ?
WHERE id = ? AND status = ?`, string(royalty.CycleLocked), at.UTC(), cycleID, string(royalty.CycleOpen))
		if err != nil {
			return err
		}
		if err := requireOneRow(res, cycleID, "lock", royalty.CycleOpen); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM royalty_line_items WHERE cycle_id = ?`, cycleID); err != nil {
			return err
		}
		for _, item := range items {
			id := item.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO royalty_line_items (
	id, cycle_id, partner_code, recording_key, external_recording_id, external_work_id, title, isrc, iswc,
	usage_count, total_duration_seconds, admin_fee_percent, gross, admin_fee, net, currency
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				id, cycleID, item.PartnerCode, item.RecordingKey, item.ExternalRecordingID, item.ExternalWorkID,
				item.Title, item.ISRC, item.ISWC, item.UsageCount, item.TotalDurationSeconds, item.AdminFeePercent,
				item.Gross, item.AdminFee, item.Net, item.Currency); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapStateError("commit lock", err)
}

// TransitionCycle moves a cycle from one status to the next and stamps the matching timestamp.
func (r *CycleRepository) TransitionCycle(ctx context.Context, cycleID string, from, to royalty.CycleStatus, at time.Time) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	column := ""
	switch to {
	case royalty.CycleLocked:
		column = "locked_at"
	case royalty.CycleInvoiced:
		column = "invoiced_at"
	case royalty.CycleRemitted:
		column = "remitted_at"
	default:
		return &royalty.InvalidCycleStateError{CycleID: cycleID, Operation: "transition to " + string(to), Status: from}
	}
	res, err := r.db.Exec(ctx, `
UPDATE royalty_cycles
SET status = ?, `+column+` = ?
WHERE id = ? AND status = ?`, string(to), at.UTC(), cycleID, string(from))
	if err != nil {
		return royalty.NewPersistenceError("transition cycle", err)
	}
	return requireOneRow(res, cycleID, "transition to "+string(to), from)
}

// ResetCycle clears derived rows and reopens a locked cycle.
func (r *CycleRepository) ResetCycle(ctx context.Context, cycleID string) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	err := r.db.WithTx(ctx, func(tx *sqldb.Tx) error {
		res, err := tx.Exec(ctx, `
UPDATE royalty_cycles
SET status = ?, locked_at = NULL
WHERE id = ? AND status = ?`, string(royalty.CycleOpen), cycleID, string(royalty.CycleLocked))
		if err != nil {
			return err
		}
		if err := requireOneRow(res, cycleID, "reset", royalty.CycleLocked); err != nil {
			return err
		}
		for _, table := range []string{"report_exports", "partner_remittances", "royalty_line_items"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE cycle_id = ?`, cycleID); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapStateError("reset cycle", err)
}

// ListLineItems returns a cycle's line items ordered by partner and recording.
func (r *CycleRepository) ListLineItems(ctx context.Context, cycleID string) ([]royalty.RoyaltyLineItem, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	rows, err := r.db.Query(ctx, `
SELECT id, cycle_id, partner_code, recording_key, external_recording_id, external_work_id, title, isrc, iswc,
	usage_count, total_duration_seconds, admin_fee_percent, gross, admin_fee, net, currency
FROM royalty_line_items
WHERE cycle_id = ?
ORDER BY partner_code ASC, recording_key ASC`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.RoyaltyLineItem
	for rows.Next() {
		var item royalty.RoyaltyLineItem
		if err := rows.Scan(&item.ID, &item.CycleID, &item.PartnerCode, &item.RecordingKey, &item.ExternalRecordingID,
			&item.ExternalWorkID, &item.Title, &item.ISRC, &item.ISWC, &item.UsageCount, &item.TotalDurationSeconds,
			&item.AdminFeePercent, &item.Gross, &item.AdminFee, &item.Net, &item.Currency); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanCycle(row rowScanner) (royalty.RoyaltyCycle, error) {
	var (
		cycle                         royalty.RoyaltyCycle
		status                        string
		lockedAt, invoicedAt, remitAt sql.NullTime
	)
	if err := row.Scan(&cycle.ID, &cycle.Name, &cycle.Territory, &cycle.Currency, &cycle.PeriodStart, &cycle.PeriodEnd,
		&status, &cycle.DefaultAdminFeePercent, &cycle.CreatedAt, &lockedAt, &invoicedAt, &remitAt); err != nil {
		return cycle, err
	}
	cycle.Status = royalty.CycleStatus(status)
	cycle.PeriodStart = cycle.PeriodStart.UTC()
	cycle.PeriodEnd = cycle.PeriodEnd.UTC()
	cycle.CreatedAt = cycle.CreatedAt.UTC()
	cycle.LockedAt = timePtr(lockedAt)
	cycle.InvoicedAt = timePtr(invoicedAt)
	cycle.RemittedAt = timePtr(remitAt)
	return cycle, nil
}

// requireOneRow turns a conditional update that matched nothing into a state error.
func requireOneRow(res sql.Result, cycleID, op string, expected royalty.CycleStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &royalty.InvalidCycleStateError{CycleID: cycleID, Operation: op, Expected: []royalty.CycleStatus{expected}}
	}
	return nil
}

func wrapStateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, royalty.ErrInvalidCycleState) {
		return err
	}
	return royalty.NewPersistenceError(op, err)
}
