package application

import (
	"context"
	"errors"
	"time"

	royalty "royalty-engine/internal/royalty/domain"
)

// RateResolver finds the applicable rate for a play.
type RateResolver struct {
	rates      royalty.RateRepository
	classifier StationClassifier
	buckets    TimeBucketer
}

// NewRateResolver constructs a resolver.
func NewRateResolver(rates royalty.RateRepository, classifier StationClassifier, buckets TimeBucketer) (*RateResolver, error) {
	if rates == nil {
		return nil, errors.New("rate resolver: nil rate repository")
	}
	if classifier == nil {
		classifier = StoredClassClassifier{Fallback: NewKeywordClassifier()}
	}
	return &RateResolver{rates: rates, classifier: classifier, buckets: buckets}, nil
}

// WithRates returns a copy reading from another rate source.
func (r *RateResolver) WithRates(rates royalty.RateRepository) *RateResolver {
	clone := *r
	clone.rates = rates
	return &clone
}

// Resolve picks the latest active rate effective at playedAt for the station's
// class, the play's period and the station territory.
func (r *RateResolver) Resolve(ctx context.Context, station royalty.Station, playedAt time.Time) (royalty.RateResolution, error) {
	class := r.classifier.Classify(station)
	period := r.buckets.Bucket(station, playedAt)
	rows, err := r.rates.ListRates(ctx, class, period, station.Territory)
	if err != nil {
		return royalty.RateResolution{}, err
	}
	best, ok := SelectRate(rows, playedAt)
	if !ok {
		return royalty.RateResolution{}, &royalty.RateNotFoundError{
			StationClass: class,
			TimePeriod:   period,
			Territory:    station.Territory,
			At:           playedAt,
		}
	}
	multiplier := best.Multiplier
	if multiplier.IsZero() {
		multiplier = royaltyOne
	}
	return royalty.RateResolution{
		RateID:            best.ID,
		BaseRatePerSecond: best.BaseRatePerSecond,
		Multiplier:        multiplier,
		StationClass:      class,
		TimePeriod:        period,
		Currency:          royalty.NormalizeCurrency(best.Currency),
		Territory:         best.Territory,
	}, nil
}

// SelectRate returns the applicable row with the latest effective date.
// Ties break on the lowest id so the choice is stable.
func SelectRate(rows []royalty.RateStructure, at time.Time) (royalty.RateStructure, bool) {
	var (
		best  royalty.RateStructure
		found bool
	)
	for _, row := range rows {
		if !row.AppliesAt(at) {
			continue
		}
		if !found || row.EffectiveDate.After(best.EffectiveDate) ||
			(row.EffectiveDate.Equal(best.EffectiveDate) && row.ID < best.ID) {
			best = row
			found = true
		}
	}
	return best, found
}
