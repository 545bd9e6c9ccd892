package application

import (
	"time"

	royalty "royalty-engine/internal/royalty/domain"
)

// TimeBucketer assigns plays to time-of-day periods in the station's local time.
type TimeBucketer struct {
	fallback *time.Location
}

// NewTimeBucketer uses fallback for stations without a valid IANA timezone.
func NewTimeBucketer(fallback *time.Location) TimeBucketer {
	if fallback == nil {
		fallback = time.UTC
	}
	return TimeBucketer{fallback: fallback}
}

// Location resolves the station timezone.
func (b TimeBucketer) Location(station royalty.Station) *time.Location {
	if station.Timezone != "" {
		if loc, err := time.LoadLocation(station.Timezone); err == nil {
			return loc
		}
	}
	if b.fallback == nil {
		return time.UTC
	}
	return b.fallback
}

// Bucket returns the period for a play at playedAt on station.
func (b TimeBucketer) Bucket(station royalty.Station, playedAt time.Time) royalty.TimePeriod {
	return PeriodForHour(playedAt.In(b.Location(station)).Hour())
}

// PeriodForHour maps a local hour to its period: prime [06,10) and [16,20),
// off-peak [00,06), regular otherwise.
func PeriodForHour(hour int) royalty.TimePeriod {
	switch {
	case hour >= 0 && hour < 6:
		return royalty.TimePeriodOffPeak
	case hour >= 6 && hour < 10, hour >= 16 && hour < 20:
		return royalty.TimePeriodPrime
	default:
		return royalty.TimePeriodRegular
	}
}
