package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"royalty-engine/internal/platform/sqldb"
	royalty "royalty-engine/internal/royalty/domain"
)

// CatalogRepository reads stations, tracks and play logs owned by upstream
// services, and writes them for seeding.
type CatalogRepository struct {
	db *sqldb.DB
}

// NewCatalogRepository constructs a repository.
func NewCatalogRepository(db *sqldb.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetStation fetches a station.
func (r *CatalogRepository) GetStation(ctx context.Context, id string) (*royalty.Station, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	var (
		station royalty.Station
		class   string
	)
	err := r.db.QueryRow(ctx, `
SELECT id, name, location, territory, timezone, station_class
FROM stations
WHERE id = ?`, id).Scan(&station.ID, &station.Name, &station.Location, &station.Territory, &station.Timezone, &class)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	station.Class = royalty.StationClass(class)
	return &station, nil
}

// UpsertStation inserts or updates a station.
func (r *CatalogRepository) UpsertStation(ctx context.Context, station royalty.Station) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if station.ID == "" {
		return royalty.ErrEmptyID
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO stations (id, name, location, territory, timezone, station_class)
VALUES (?,?,?,?,?,?)
ON CONFLICT (id)
DO UPDATE SET name = excluded.name, location = excluded.location, territory = excluded.territory,
	timezone = excluded.timezone, station_class = excluded.station_class`,
		station.ID, station.Name, station.Location, station.Territory, station.Timezone, string(station.Class))
	return err
}

// GetTrack fetches a track with every contributor row.
func (r *CatalogRepository) GetTrack(ctx context.Context, id string) (*royalty.Track, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	var track royalty.Track
	err := r.db.QueryRow(ctx, `
SELECT id, title, isrc, iswc, duration_seconds
FROM tracks
WHERE id = ?`, id).Scan(&track.ID, &track.Title, &track.ISRC, &track.ISWC, &track.DurationSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
SELECT payee_id, role, percent_split, publisher_id, active, artist_id, artist_self_published, artist_publisher_id
FROM track_contributors
WHERE track_id = ?
ORDER BY payee_id ASC, role ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c             royalty.Contributor
			role          string
			artistID      string
			selfPublished bool
			artistPubID   string
		)
		if err := rows.Scan(&c.PayeeID, &role, &c.PercentSplit, &c.PublisherID, &c.Active, &artistID, &selfPublished, &artistPubID); err != nil {
			return nil, err
		}
		c.Role = royalty.ContributorRole(role)
		if artistID != "" {
			c.Artist = &royalty.Artist{ID: artistID, SelfPublished: selfPublished, PublisherID: artistPubID}
		}
		track.Contributors = append(track.Contributors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &track, nil
}

// UpsertTrack replaces a track and its contributors in one transaction.
func (r *CatalogRepository) UpsertTrack(ctx context.Context, track royalty.Track) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if track.ID == "" {
		return royalty.ErrEmptyID
	}
	return r.db.WithTx(ctx, func(tx *sqldb.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO tracks (id, title, isrc, iswc, duration_seconds)
VALUES (?,?,?,?,?)
ON CONFLICT (id)
DO UPDATE SET title = excluded.title, isrc = excluded.isrc, iswc = excluded.iswc, duration_seconds = excluded.duration_seconds`,
			track.ID, track.Title, track.ISRC, track.ISWC, track.DurationSeconds); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM track_contributors WHERE track_id = ?`, track.ID); err != nil {
			return err
		}
		for _, c := range track.Contributors {
			var artistID, artistPubID string
			var selfPublished bool
			if c.Artist != nil {
				artistID = c.Artist.ID
				if artistID == "" {
					artistID = c.PayeeID
				}
				selfPublished = c.Artist.SelfPublished
				artistPubID = c.Artist.PublisherID
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO track_contributors (
	track_id, payee_id, role, percent_split, publisher_id, active, artist_id, artist_self_published, artist_publisher_id
) VALUES (?,?,?,?,?,?,?,?,?)`,
				track.ID, c.PayeeID, string(c.Role), c.PercentSplit, c.PublisherID, c.Active, artistID, selfPublished, artistPubID); err != nil {
				return err
			}
		}
		return nil
	})
}

const playColumns = `p.id, p.track_id, p.station_id, p.played_at, p.duration_seconds, p.royalty_amount,
	p.royalty_currency, p.calculated_at,
	COALESCE((SELECT ua.origin_partner_code FROM usage_attributions ua WHERE ua.play_log_id = p.id ORDER BY ua.confidence_score DESC, ua.id ASC LIMIT 1), '')`

// GetPlay fetches a play log with its origin partner from usage attribution.
func (r *CatalogRepository) GetPlay(ctx context.Context, id string) (*royalty.PlayLog, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	row := r.db.QueryRow(ctx, `
SELECT `+playColumns+`
FROM play_logs p
WHERE p.id = ?`, id)
	play, err := scanPlay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &play, nil
}

// ListPendingPlays returns uncalculated plays in [from, to), oldest first,
// resuming after the keyset cursor.
func (r *CatalogRepository) ListPendingPlays(ctx context.Context, from, to time.Time, after *royalty.PlayCursor, limit int) ([]royalty.PlayLog, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	if limit <= 0 {
		limit = 500
	}
	query := `
SELECT ` + playColumns + `
FROM play_logs p
WHERE p.royalty_amount IS NULL AND p.played_at >= ? AND p.played_at < ?`
	args := []any{from.UTC(), to.UTC()}
	if after != nil {
		query += `
  AND (p.played_at > ? OR (p.played_at = ? AND p.id > ?))`
		args = append(args, after.PlayedAt.UTC(), after.PlayedAt.UTC(), after.ID)
	}
	query += `
ORDER BY p.played_at ASC, p.id ASC
LIMIT ?`
	args = append(args, limit)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.PlayLog
	for rows.Next() {
		play, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, play)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// InsertPlay writes a play log.
func (r *CatalogRepository) InsertPlay(ctx context.Context, play royalty.PlayLog) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if play.ID == "" {
		return royalty.ErrEmptyID
	}
	var amount decimal.NullDecimal
	if play.RoyaltyAmount != nil {
		amount = decimal.NullDecimal{Decimal: *play.RoyaltyAmount, Valid: true}
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO play_logs (id, track_id, station_id, played_at, duration_seconds, royalty_amount, royalty_currency, calculated_at)
VALUES (?,?,?,?,?,?,?,?)`,
		play.ID, play.TrackID, play.StationID, play.PlayedAt.UTC(), play.DurationSeconds, amount,
		play.RoyaltyCurrency, nullTime(play.CalculatedAt))
	return err
}

func scanPlay(row rowScanner) (royalty.PlayLog, error) {
	var (
		play         royalty.PlayLog
		amount       decimal.NullDecimal
		calculatedAt sql.NullTime
	)
	if err := row.Scan(&play.ID, &play.TrackID, &play.StationID, &play.PlayedAt, &play.DurationSeconds, &amount,
		&play.RoyaltyCurrency, &calculatedAt, &play.OriginPartnerCode); err != nil {
		return play, err
	}
	play.PlayedAt = play.PlayedAt.UTC()
	if amount.Valid {
		value := amount.Decimal
		play.RoyaltyAmount = &value
	}
	play.CalculatedAt = timePtr(calculatedAt)
	return play, nil
}
