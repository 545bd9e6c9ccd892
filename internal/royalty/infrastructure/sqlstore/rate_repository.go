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

const rateColumns = `id, station_class, time_period, base_rate_per_second, multiplier, currency,
	territory, effective_date, expiry_date, active`

// RateRepository persists rate structures.
type RateRepository struct {
	db *sqldb.DB
}

// NewRateRepository constructs a repository.
func NewRateRepository(db *sqldb.DB) *RateRepository {
	return &RateRepository{db: db}
}

// ListRates returns rows matching class, period and territory, newest effective first.
func (r *RateRepository) ListRates(ctx context.Context, class royalty.StationClass, period royalty.TimePeriod, territory string) ([]royalty.RateStructure, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	return r.query(ctx, `
SELECT `+rateColumns+`
FROM rate_structures
WHERE station_class = ? AND time_period = ? AND territory = ?
ORDER BY effective_date DESC, id ASC`, string(class), string(period), territory)
}

// ListAllRates returns every rate row.
func (r *RateRepository) ListAllRates(ctx context.Context) ([]royalty.RateStructure, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	return r.query(ctx, `
SELECT `+rateColumns+`
FROM rate_structures
ORDER BY effective_date DESC, id ASC`)
}

// Insert appends a dated rate row.
func (r *RateRepository) Insert(ctx context.Context, rate royalty.RateStructure) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if rate.ID == "" {
		return royalty.ErrEmptyID
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO rate_structures (`+rateColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rate.ID, string(rate.StationClass), string(rate.TimePeriod), rate.BaseRatePerSecond, rate.Multiplier,
		royalty.NormalizeCurrency(rate.Currency), rate.Territory, rate.EffectiveDate.UTC(), nullTime(rate.ExpiryDate), rate.Active)
	return err
}

func (r *RateRepository) query(ctx context.Context, query string, args ...any) ([]royalty.RateStructure, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.RateStructure
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanRate(row rowScanner) (royalty.RateStructure, error) {
	var (
		rate   royalty.RateStructure
		class  string
		period string
		expiry sql.NullTime
	)
	if err := row.Scan(&rate.ID, &class, &period, &rate.BaseRatePerSecond, &rate.Multiplier, &rate.Currency,
		&rate.Territory, &rate.EffectiveDate, &expiry, &rate.Active); err != nil {
		return rate, err
	}
	rate.StationClass = royalty.StationClass(class)
	rate.TimePeriod = royalty.TimePeriod(period)
	rate.EffectiveDate = rate.EffectiveDate.UTC()
	rate.ExpiryDate = timePtr(expiry)
	return rate, nil
}

// ExchangeRateRepository persists exchange rates.
type ExchangeRateRepository struct {
	db *sqldb.DB
}

// NewExchangeRateRepository constructs a repository.
func NewExchangeRateRepository(db *sqldb.DB) *ExchangeRateRepository {
	return &ExchangeRateRepository{db: db}
}

// LatestExchangeRate returns the latest active row for the pair effective at or before at.
func (r *ExchangeRateRepository) LatestExchangeRate(ctx context.Context, from, to string, at time.Time) (*royalty.ExchangeRate, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	row := r.db.QueryRow(ctx, `
SELECT id, from_currency, to_currency, rate, effective_at, source, active
FROM exchange_rates
WHERE from_currency = ? AND to_currency = ? AND active = ? AND effective_at <= ?
ORDER BY effective_at DESC
LIMIT 1`, royalty.NormalizeCurrency(from), royalty.NormalizeCurrency(to), true, at.UTC())
	rate, err := scanExchangeRate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// ListAllExchangeRates returns every exchange rate row.
func (r *ExchangeRateRepository) ListAllExchangeRates(ctx context.Context) ([]royalty.ExchangeRate, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	rows, err := r.db.Query(ctx, `
SELECT id, from_currency, to_currency, rate, effective_at, source, active
FROM exchange_rates
ORDER BY effective_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.ExchangeRate
	for rows.Next() {
		rate, err := scanExchangeRate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Insert writes an exchange rate, replacing the value for an existing (from,to,effective_at).
func (r *ExchangeRateRepository) Insert(ctx context.Context, rate royalty.ExchangeRate) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if rate.ID == "" {
		return royalty.ErrEmptyID
	}
	if !rate.Rate.IsPositive() {
		return errors.New("royalty store: exchange rate must be positive")
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO exchange_rates (id, from_currency, to_currency, rate, effective_at, source, active)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT (from_currency, to_currency, effective_at)
DO UPDATE SET rate = excluded.rate, source = excluded.source, active = excluded.active`,
		rate.ID, royalty.NormalizeCurrency(rate.From), royalty.NormalizeCurrency(rate.To), rate.Rate,
		rate.EffectiveAt.UTC(), rate.Source, rate.Active)
	return err
}

func scanExchangeRate(row rowScanner) (royalty.ExchangeRate, error) {
	var rate royalty.ExchangeRate
	var value decimal.Decimal
	if err := row.Scan(&rate.ID, &rate.From, &rate.To, &value, &rate.EffectiveAt, &rate.Source, &rate.Active); err != nil {
		return rate, err
	}
	rate.Rate = value
	rate.EffectiveAt = rate.EffectiveAt.UTC()
	return rate, nil
}
