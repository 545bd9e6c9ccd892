package royalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateStructure is a dated per-second royalty rate row.
type RateStructure struct {
	ID                string
	StationClass      StationClass
	TimePeriod        TimePeriod
	BaseRatePerSecond decimal.Decimal
	Multiplier        decimal.Decimal
	Currency          string
	Territory         string
	EffectiveDate     time.Time
	ExpiryDate        *time.Time
	Active            bool
}

// AppliesAt reports whether the rate is usable for a play at t. The expiry
// date is inclusive through the end of that UTC day.
func (r RateStructure) AppliesAt(t time.Time) bool {
	if !r.Active || r.EffectiveDate.After(t) {
		return false
	}
	return !expiredAt(r.ExpiryDate, t)
}

// expiredAt reports whether t is on or after the day following expiry.
func expiredAt(expiry *time.Time, t time.Time) bool {
	if expiry == nil {
		return false
	}
	return !t.Before(StartOfDayUTC(*expiry).AddDate(0, 0, 1))
}

// RateResolution is the outcome of rate lookup for one play.
type RateResolution struct {
	RateID            string
	BaseRatePerSecond decimal.Decimal
	Multiplier        decimal.Decimal
	StationClass      StationClass
	TimePeriod        TimePeriod
	Currency          string
	Territory         string
}

// ExchangeRate is a dated conversion rate between two currencies.
type ExchangeRate struct {
	ID          string
	From        string
	To          string
	Rate        decimal.Decimal
	EffectiveAt time.Time
	Source      string
	Active      bool
}

// Conversion is the result of converting an amount.
type Conversion struct {
	Amount   decimal.Decimal
	Rate     decimal.Decimal
	Source   string
	From     string
	To       string
	Fallback bool
	Warning  error
}
