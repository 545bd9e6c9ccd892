package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"royalty-engine/internal/platform/sqldb"
	royalty "royalty-engine/internal/royalty/domain"
)

const (
	remittanceColumns = `id, partner_code, cycle_id, agreement_id, currency, gross, admin_fee, net_payable,
	payment_reference, status, created_at, sent_at, settled_at`
	exportColumns = `id, partner_code, cycle_id, format, location, checksum, size_bytes, generated_at`
)

// SettlementRepository persists partner remittances and report exports.
type SettlementRepository struct {
	db *sqldb.DB
}

// NewSettlementRepository constructs a repository.
func NewSettlementRepository(db *sqldb.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// ReplaceSettlement swaps a cycle's remittances and exports in one transaction.
func (r *SettlementRepository) ReplaceSettlement(ctx context.Context, cycleID string, remittances []royalty.PartnerRemittance, exports []royalty.ReportExport) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	err := r.db.WithTx(ctx, func(tx *sqldb.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM report_exports WHERE cycle_id = ?`, cycleID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM partner_remittances WHERE cycle_id = ?`, cycleID); err != nil {
			return err
		}
		for _, rem := range remittances {
			if _, err := tx.Exec(ctx, `
INSERT INTO partner_remittances (`+remittanceColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				rem.ID, rem.PartnerCode, cycleID, rem.AgreementID, rem.Currency, rem.Gross, rem.AdminFee, rem.NetPayable,
				rem.PaymentReference, string(rem.Status), rem.CreatedAt.UTC(), nullTime(rem.SentAt), nullTime(rem.SettledAt)); err != nil {
				return err
			}
		}
		for _, exp := range exports {
			if _, err := tx.Exec(ctx, `
INSERT INTO report_exports (`+exportColumns+`)
VALUES (?,?,?,?,?,?,?,?)`,
				exp.ID, exp.PartnerCode, cycleID, string(exp.Format), exp.Location, exp.Checksum, exp.SizeBytes,
				exp.GeneratedAt.UTC()); err != nil {
				return err
			}
		}
		return nil
	})
	return royalty.NewPersistenceError("replace settlement", err)
}

// ListRemittances returns a cycle's remittances ordered by partner.
func (r *SettlementRepository) ListRemittances(ctx context.Context, cycleID string) ([]royalty.PartnerRemittance, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	rows, err := r.db.Query(ctx, `
SELECT `+remittanceColumns+`
FROM partner_remittances
WHERE cycle_id = ?
ORDER BY partner_code ASC, agreement_id ASC`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.PartnerRemittance
	for rows.Next() {
		var (
			rem            royalty.PartnerRemittance
			status         string
			sentAt, settAt sql.NullTime
		)
		if err := rows.Scan(&rem.ID, &rem.PartnerCode, &rem.CycleID, &rem.AgreementID, &rem.Currency, &rem.Gross,
			&rem.AdminFee, &rem.NetPayable, &rem.PaymentReference, &status, &rem.CreatedAt, &sentAt, &settAt); err != nil {
			return nil, err
		}
		rem.Status = royalty.RemittanceStatus(status)
		rem.CreatedAt = rem.CreatedAt.UTC()
		rem.SentAt = timePtr(sentAt)
		rem.SettledAt = timePtr(settAt)
		result = append(result, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateRemittanceStatus records a payment status change.
func (r *SettlementRepository) UpdateRemittanceStatus(ctx context.Context, id string, status royalty.RemittanceStatus, reference string, at time.Time) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	var (
		query string
		args  []any
	)
	switch status {
	case royalty.RemittanceSent:
		query = `UPDATE partner_remittances SET status = ?, payment_reference = ?, sent_at = ? WHERE id = ?`
		args = []any{string(status), reference, at.UTC(), id}
	case royalty.RemittanceSettled:
		query = `UPDATE partner_remittances SET status = ?, payment_reference = ?, settled_at = ? WHERE id = ?`
		args = []any{string(status), reference, at.UTC(), id}
	default:
		query = `UPDATE partner_remittances SET status = ?, payment_reference = ? WHERE id = ?`
		args = []any{string(status), reference, id}
	}
	res, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return royalty.NewPersistenceError("update remittance", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New("royalty store: remittance not found")
	}
	return nil
}

// GetExport fetches a report export.
func (r *SettlementRepository) GetExport(ctx context.Context, id string) (*royalty.ReportExport, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	row := r.db.QueryRow(ctx, `SELECT `+exportColumns+` FROM report_exports WHERE id = ?`, id)
	exp, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

// ListExports returns a cycle's exports ordered by partner.
func (r *SettlementRepository) ListExports(ctx context.Context, cycleID string) ([]royalty.ReportExport, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	rows, err := r.db.Query(ctx, `
SELECT `+exportColumns+`
FROM report_exports
WHERE cycle_id = ?
ORDER BY partner_code ASC, format ASC`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.ReportExport
	for rows.Next() {
		exp, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanExport(row rowScanner) (royalty.ReportExport, error) {
	var exp royalty.ReportExport
	var format string
	if err := row.Scan(&exp.ID, &exp.PartnerCode, &exp.CycleID, &format, &exp.Location, &exp.Checksum,
		&exp.SizeBytes, &exp.GeneratedAt); err != nil {
		return exp, err
	}
	exp.Format = royalty.ReportFormat(format)
	exp.GeneratedAt = exp.GeneratedAt.UTC()
	return exp, nil
}
