package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"royalty-engine/internal/platform/sqldb"
	royalty "royalty-engine/internal/royalty/domain"
)

const partnerColumns = `id, code, name, territory, default_admin_fee_percent, preferred_format,
	contact_email, api_endpoint, sender_party_id, active`

// PartnerRepository persists partner organizations and reciprocal agreements.
type PartnerRepository struct {
	db *sqldb.DB
}

// NewPartnerRepository constructs a repository.
func NewPartnerRepository(db *sqldb.DB) *PartnerRepository {
	return &PartnerRepository{db: db}
}

// GetPartner fetches a partner by code.
func (r *PartnerRepository) GetPartner(ctx context.Context, code string) (*royalty.PartnerOrganization, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	row := r.db.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partner_organizations WHERE code = ?`, code)
	partner, err := scanPartner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

// ListPartners returns every partner ordered by code.
func (r *PartnerRepository) ListPartners(ctx context.Context) ([]royalty.PartnerOrganization, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	rows, err := r.db.Query(ctx, `SELECT `+partnerColumns+` FROM partner_organizations ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.PartnerOrganization
	for rows.Next() {
		partner, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, partner)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertPartner inserts or updates a partner by code.
func (r *PartnerRepository) UpsertPartner(ctx context.Context, partner royalty.PartnerOrganization) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if partner.ID == "" || partner.Code == "" {
		return royalty.ErrEmptyID
	}
	if !royalty.ValidPercent(partner.DefaultAdminFeePercent) {
		return royalty.ErrInvalidPercent
	}
	format := partner.PreferredFormat
	if format == "" {
		format = royalty.ReportFormatCSV
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO partner_organizations (`+partnerColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (code)
DO UPDATE SET name = excluded.name, territory = excluded.territory,
	default_admin_fee_percent = excluded.default_admin_fee_percent, preferred_format = excluded.preferred_format,
	contact_email = excluded.contact_email, api_endpoint = excluded.api_endpoint,
	sender_party_id = excluded.sender_party_id, active = excluded.active`,
		partner.ID, partner.Code, partner.Name, partner.Territory, partner.DefaultAdminFeePercent, string(format),
		partner.ContactEmail, partner.APIEndpoint, partner.SenderPartyID, partner.Active)
	return err
}

func scanPartner(row rowScanner) (royalty.PartnerOrganization, error) {
	var partner royalty.PartnerOrganization
	var format string
	if err := row.Scan(&partner.ID, &partner.Code, &partner.Name, &partner.Territory, &partner.DefaultAdminFeePercent,
		&format, &partner.ContactEmail, &partner.APIEndpoint, &partner.SenderPartyID, &partner.Active); err != nil {
		return partner, err
	}
	partner.PreferredFormat = royalty.ReportFormat(format)
	return partner, nil
}

// ListAgreements returns agreements with the given status, or all when status is empty.
func (r *PartnerRepository) ListAgreements(ctx context.Context, status royalty.AgreementStatus) ([]royalty.ReciprocalAgreement, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	query := `
SELECT id, partner_code, territory, effective_date, expiry_date, admin_fee_percent_override, status, reporting_frequency
FROM reciprocal_agreements`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY partner_code ASC, effective_date DESC, id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.ReciprocalAgreement
	for rows.Next() {
		var (
			agreement royalty.ReciprocalAgreement
			expiry    sql.NullTime
			override  decimal.NullDecimal
			st        string
		)
		if err := rows.Scan(&agreement.ID, &agreement.PartnerCode, &agreement.Territory, &agreement.EffectiveDate,
			&expiry, &override, &st, &agreement.ReportingFrequency); err != nil {
			return nil, err
		}
		agreement.EffectiveDate = agreement.EffectiveDate.UTC()
		agreement.ExpiryDate = timePtr(expiry)
		if override.Valid {
			value := override.Decimal
			agreement.AdminFeePercentOverride = &value
		}
		agreement.Status = royalty.AgreementStatus(st)
		result = append(result, agreement)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertAgreement inserts or updates an agreement.
func (r *PartnerRepository) UpsertAgreement(ctx context.Context, agreement royalty.ReciprocalAgreement) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if agreement.ID == "" || agreement.PartnerCode == "" {
		return royalty.ErrEmptyID
	}
	var override decimal.NullDecimal
	if agreement.AdminFeePercentOverride != nil {
		if !royalty.ValidPercent(*agreement.AdminFeePercentOverride) {
			return royalty.ErrInvalidPercent
		}
		override = decimal.NullDecimal{Decimal: *agreement.AdminFeePercentOverride, Valid: true}
	}
	frequency := agreement.ReportingFrequency
	if frequency == "" {
		frequency = "quarterly"
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO reciprocal_agreements (
	id, partner_code, territory, effective_date, expiry_date, admin_fee_percent_override, status, reporting_frequency
) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT (id)
DO UPDATE SET territory = excluded.territory, effective_date = excluded.effective_date,
	expiry_date = excluded.expiry_date, admin_fee_percent_override = excluded.admin_fee_percent_override,
	status = excluded.status, reporting_frequency = excluded.reporting_frequency`,
		agreement.ID, agreement.PartnerCode, agreement.Territory, agreement.EffectiveDate.UTC(), nullTime(agreement.ExpiryDate),
		override, string(agreement.Status), frequency)
	return err
}
