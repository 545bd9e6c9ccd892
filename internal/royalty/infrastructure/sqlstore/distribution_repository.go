package sqlstore

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"royalty-engine/internal/platform/sqldb"
	royalty "royalty-engine/internal/royalty/domain"
)

// DistributionRepository persists per-play distributions.
type DistributionRepository struct {
	db *sqldb.DB
}

// NewDistributionRepository constructs a repository.
func NewDistributionRepository(db *sqldb.DB) *DistributionRepository {
	return &DistributionRepository{db: db}
}

// ReplaceDistributions deletes the play's previous rows, inserts dists and
// stamps the play log amount, all in one transaction.
func (r *DistributionRepository) ReplaceDistributions(ctx context.Context, playLogID string, dists []royalty.Distribution, amount decimal.Decimal, currency string, at time.Time) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if playLogID == "" {
		return royalty.ErrEmptyID
	}
	err := r.db.WithTx(ctx, func(tx *sqldb.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM royalty_distributions WHERE play_log_id = ?`, playLogID); err != nil {
			return err
		}
		for _, d := range dists {
			if d.Recipient == nil {
				return royalty.ErrUnknownRecipient
			}
			via := ""
			if pub, ok := d.Recipient.(royalty.PublisherRecipient); ok {
				via = pub.Via
			}
			createdAt := d.CreatedAt
			if createdAt.IsZero() {
				createdAt = at
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO royalty_distributions (
	play_log_id, recipient_type, payee_id, via, role, percentage, gross_amount, net_amount, pro_share,
	external_partner, currency, exchange_rate, routing, created_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				playLogID, string(d.Recipient.Type()), d.Recipient.PayeeID(), via, string(d.Role), d.Percentage,
				d.GrossAmount, d.NetAmount, d.ProShare, d.ExternalPartner, d.Currency, d.ExchangeRate,
				string(d.Routing), createdAt.UTC()); err != nil {
				return err
			}
		}
		res, err := tx.Exec(ctx, `
UPDATE play_logs
SET royalty_amount = ?, royalty_currency = ?, calculated_at = ?
WHERE id = ?`, amount, currency, at.UTC(), playLogID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return royalty.ErrPlayNotFound
		}
		return nil
	})
	return royalty.NewPersistenceError("replace distributions", err)
}

// ListDistributions returns the stored distributions of a play.
func (r *DistributionRepository) ListDistributions(ctx context.Context, playLogID string) ([]royalty.Distribution, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	rows, err := r.db.Query(ctx, `
SELECT play_log_id, recipient_type, payee_id, via, role, percentage, gross_amount, net_amount, pro_share,
	external_partner, currency, exchange_rate, routing, created_at
FROM royalty_distributions
WHERE play_log_id = ?
ORDER BY recipient_type ASC, payee_id ASC`, playLogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.Distribution
	for rows.Next() {
		var (
			d       royalty.Distribution
			kind    string
			payeeID string
			via     string
			role    string
			routing string
		)
		if err := rows.Scan(&d.PlayLogID, &kind, &payeeID, &via, &role, &d.Percentage, &d.GrossAmount, &d.NetAmount,
			&d.ProShare, &d.ExternalPartner, &d.Currency, &d.ExchangeRate, &routing, &d.CreatedAt); err != nil {
			return nil, err
		}
		recipient, err := royalty.NewRecipient(royalty.RecipientType(kind), payeeID, via)
		if err != nil {
			return nil, err
		}
		d.Recipient = recipient
		d.Role = royalty.ContributorRole(role)
		d.Routing = royalty.Routing(routing)
		d.CreatedAt = d.CreatedAt.UTC()
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
