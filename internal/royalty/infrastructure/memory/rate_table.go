package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	royalty "royalty-engine/internal/royalty/domain"
)

type rateKey struct {
	class     royalty.StationClass
	period    royalty.TimePeriod
	territory string
}

// RateTable is a read-only snapshot of rate structures grouped by lookup key.
type RateTable struct {
	mu    sync.RWMutex
	rates map[rateKey][]royalty.RateStructure
}

// NewRateTable indexes rates, newest effective date first within each key.
func NewRateTable(rates []royalty.RateStructure) *RateTable {
	table := &RateTable{rates: make(map[rateKey][]royalty.RateStructure)}
	for _, rate := range rates {
		key := rateKey{class: rate.StationClass, period: rate.TimePeriod, territory: rate.Territory}
		table.rates[key] = append(table.rates[key], rate)
	}
	for key := range table.rates {
		rows := table.rates[key]
		sort.SliceStable(rows, func(i, j int) bool {
			if !rows[i].EffectiveDate.Equal(rows[j].EffectiveDate) {
				return rows[i].EffectiveDate.After(rows[j].EffectiveDate)
			}
			return rows[i].ID < rows[j].ID
		})
	}
	return table
}

// LoadRateTable snapshots every rate from catalog.
func LoadRateTable(ctx context.Context, catalog royalty.RateCatalog) (*RateTable, error) {
	rates, err := catalog.ListAllRates(ctx)
	if err != nil {
		return nil, err
	}
	return NewRateTable(rates), nil
}

// ListRates implements royalty.RateRepository.
func (t *RateTable) ListRates(ctx context.Context, class royalty.StationClass, period royalty.TimePeriod, territory string) ([]royalty.RateStructure, error) {
	_ = ctx
	t.mu.RLock()
	rows := t.rates[rateKey{class: class, period: period, territory: territory}]
	t.mu.RUnlock()
	return append([]royalty.RateStructure(nil), rows...), nil
}

// Len returns the number of rows in the snapshot.
func (t *RateTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, rows := range t.rates {
		n += len(rows)
	}
	return n
}

type pairKey struct {
	from string
	to   string
}

// ExchangeRateTable is a read-only snapshot of exchange rates per currency pair.
type ExchangeRateTable struct {
	mu    sync.RWMutex
	pairs map[pairKey][]royalty.ExchangeRate
}

// NewExchangeRateTable indexes active rates, newest first within each pair.
func NewExchangeRateTable(rates []royalty.ExchangeRate) *ExchangeRateTable {
	table := &ExchangeRateTable{pairs: make(map[pairKey][]royalty.ExchangeRate)}
	for _, rate := range rates {
		if !rate.Active {
			continue
		}
		key := pairKey{from: royalty.NormalizeCurrency(rate.From), to: royalty.NormalizeCurrency(rate.To)}
		table.pairs[key] = append(table.pairs[key], rate)
	}
	for key := range table.pairs {
		rows := table.pairs[key]
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].EffectiveAt.After(rows[j].EffectiveAt)
		})
	}
	return table
}

// LoadExchangeRateTable snapshots every exchange rate from catalog.
func LoadExchangeRateTable(ctx context.Context, catalog royalty.ExchangeRateCatalog) (*ExchangeRateTable, error) {
	rates, err := catalog.ListAllExchangeRates(ctx)
	if err != nil {
		return nil, err
	}
	return NewExchangeRateTable(rates), nil
}

// LatestExchangeRate implements royalty.ExchangeRateRepository.
func (t *ExchangeRateTable) LatestExchangeRate(ctx context.Context, from, to string, at time.Time) (*royalty.ExchangeRate, error) {
	_ = ctx
	t.mu.RLock()
	rows := t.pairs[pairKey{from: royalty.NormalizeCurrency(from), to: royalty.NormalizeCurrency(to)}]
	t.mu.RUnlock()
	for _, rate := range rows {
		if !rate.EffectiveAt.After(at) {
			found := rate
			return &found, nil
		}
	}
	return nil, nil
}
