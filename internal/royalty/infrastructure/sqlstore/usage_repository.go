package sqlstore

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"royalty-engine/internal/platform/sqldb"
	royalty "royalty-engine/internal/royalty/domain"
)

// UsageRepository reads usage attributions joined with play logs and partner catalogs.
type UsageRepository struct {
	db *sqldb.DB
}

// NewUsageRepository constructs a repository.
func NewUsageRepository(db *sqldb.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// ListCycleUsage returns attributions for territory with played_at in [from, to).
func (r *UsageRepository) ListCycleUsage(ctx context.Context, territory string, from, to time.Time) ([]royalty.CycleUsage, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	rows, err := r.db.Query(ctx, `
SELECT ua.id, ua.play_log_id, ua.origin_partner_code, ua.external_recording_id, ua.external_work_id,
	ua.match_method, ua.confidence_score, ua.territory, ua.station_id, ua.duration_seconds, ua.played_at,
	p.royalty_amount, COALESCE(p.royalty_currency, ''),
	COALESCE(er.title, ew.title, ''), COALESCE(er.isrc, ''), COALESCE(ew.iswc, ew2.iswc, '')
FROM usage_attributions ua
LEFT JOIN play_logs p ON p.id = ua.play_log_id
LEFT JOIN external_recordings er ON er.id = ua.external_recording_id
LEFT JOIN external_works ew ON ew.id = ua.external_work_id
LEFT JOIN external_works ew2 ON ew2.id = er.work_id
WHERE ua.territory = ? AND ua.played_at >= ? AND ua.played_at < ?
ORDER BY ua.origin_partner_code ASC, ua.played_at ASC, ua.id ASC`, territory, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.CycleUsage
	for rows.Next() {
		var (
			usage  royalty.CycleUsage
			method string
			amount decimal.NullDecimal
		)
		a := &usage.Attribution
		if err := rows.Scan(&a.ID, &a.PlayLogID, &a.OriginPartnerCode, &a.ExternalRecordingID, &a.ExternalWorkID,
			&method, &a.ConfidenceScore, &a.Territory, &a.StationID, &a.DurationSeconds, &a.PlayedAt,
			&amount, &usage.RoyaltyCurrency, &usage.Title, &usage.ISRC, &usage.ISWC); err != nil {
			return nil, err
		}
		a.MatchMethod = royalty.MatchMethod(method)
		a.PlayedAt = a.PlayedAt.UTC()
		if amount.Valid {
			usage.RoyaltyAmount = amount.Decimal
			usage.Calculated = true
		}
		result = append(result, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// InsertAttribution writes a usage attribution.
func (r *UsageRepository) InsertAttribution(ctx context.Context, a royalty.UsageAttribution) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if a.ID == "" || a.PlayLogID == "" {
		return royalty.ErrEmptyID
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO usage_attributions (
	id, play_log_id, origin_partner_code, external_recording_id, external_work_id, match_method,
	confidence_score, territory, station_id, duration_seconds, played_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.PlayLogID, a.OriginPartnerCode, a.ExternalRecordingID, a.ExternalWorkID, string(a.MatchMethod),
		a.ConfidenceScore, a.Territory, a.StationID, a.DurationSeconds, a.PlayedAt.UTC())
	return err
}

// UpsertExternalWork writes a partner work.
func (r *UsageRepository) UpsertExternalWork(ctx context.Context, w royalty.ExternalWork) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO external_works (id, partner_code, title, iswc)
VALUES (?,?,?,?)
ON CONFLICT (id)
DO UPDATE SET partner_code = excluded.partner_code, title = excluded.title, iswc = excluded.iswc`,
		w.ID, w.PartnerCode, w.Title, w.ISWC)
	return err
}

// UpsertExternalRecording writes a partner recording.
func (r *UsageRepository) UpsertExternalRecording(ctx context.Context, rec royalty.ExternalRecording) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO external_recordings (id, partner_code, title, isrc, duration_seconds, work_id)
VALUES (?,?,?,?,?,?)
ON CONFLICT (id)
DO UPDATE SET partner_code = excluded.partner_code, title = excluded.title, isrc = excluded.isrc,
	duration_seconds = excluded.duration_seconds, work_id = excluded.work_id`,
		rec.ID, rec.PartnerCode, rec.Title, rec.ISRC, rec.DurationSeconds, rec.WorkID)
	return err
}
