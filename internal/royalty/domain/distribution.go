package royalty

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownRecipient is returned for an unrecognized recipient type.
var ErrUnknownRecipient = errors.New("royalty: unknown recipient type")

// Routing records why a split was paid to its recipient.
type Routing string

const (
	RoutingDirect            Routing = "direct"
	RoutingExplicitPublisher Routing = "explicit_publisher"
	RoutingArtistPublisher   Routing = "artist_publisher"
)

// ContributorSplit is a resolved share of a track.
type ContributorSplit struct {
	PayeeID    string
	Role       ContributorRole
	Percentage decimal.Decimal
	Recipient  Recipient
	Routing    Routing
}

// PublisherRouted reports whether the share is paid to a publisher.
func (s ContributorSplit) PublisherRouted() bool {
	return s.Recipient != nil && s.Recipient.Type() == RecipientPublisher
}

// Distribution is the amount owed to one recipient for one play.
// GrossAmount always equals NetAmount plus ProShare.
type Distribution struct {
	PlayLogID       string
	Recipient       Recipient
	Role            ContributorRole
	Percentage      decimal.Decimal
	GrossAmount     decimal.Decimal
	NetAmount       decimal.Decimal
	ProShare        decimal.Decimal
	ExternalPartner string
	Currency        string
	ExchangeRate    decimal.Decimal
	Routing         Routing
	CreatedAt       time.Time
}

// CalculationMetadata describes how a play result was derived.
type CalculationMetadata struct {
	StationClass       StationClass    `json:"station_class"`
	TimePeriod         TimePeriod      `json:"time_period"`
	RateID             string          `json:"rate_id"`
	BaseRatePerSecond  decimal.Decimal `json:"base_rate_per_second"`
	Multiplier         decimal.Decimal `json:"multiplier"`
	RateCurrency       string          `json:"rate_currency"`
	DurationSeconds    int             `json:"duration_seconds"`
	ExchangeRate       decimal.Decimal `json:"exchange_rate"`
	ExchangeSource     string          `json:"exchange_source,omitempty"`
	FXFallback         bool            `json:"fx_fallback"`
	AgreementID        string          `json:"agreement_id,omitempty"`
	OriginPartnerCode  string          `json:"origin_partner_code,omitempty"`
	ProSharePercent    decimal.Decimal `json:"pro_share_percent"`
	RoundingAdjustment decimal.Decimal `json:"rounding_adjustment"`
	Warnings           []string        `json:"warnings,omitempty"`
}

// CalculationResult is the outcome of calculating one play.
type CalculationResult struct {
	PlayLogID     string
	GrossAmount   decimal.Decimal
	Currency      string
	Distributions []Distribution
	Metadata      CalculationMetadata
	ProShares     map[string]decimal.Decimal
	Errors        []error
}

// OK reports whether the result produced distributions without errors.
func (r CalculationResult) OK() bool {
	return len(r.Errors) == 0
}

// DistributedTotal sums the distributed amounts including PRO carve-outs.
func (r CalculationResult) DistributedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, d := range r.Distributions {
		total = total.Add(d.NetAmount).Add(d.ProShare)
	}
	return total
}

// ErrorStrings flattens result errors for persistence.
func (r CalculationResult) ErrorStrings() []string {
	out := make([]string, 0, len(r.Errors))
	for _, err := range r.Errors {
		out = append(out, err.Error())
	}
	return out
}

// BatchResult aggregates per-play results.
type BatchResult struct {
	Results                []CalculationResult
	SuccessfulCalculations int
	TotalAmount            decimal.Decimal
	Currency               string
	Errors                 []PlayError
}

// PlayError pairs a failed play with its cause.
type PlayError struct {
	PlayLogID string
	Err       error
}

func (e PlayError) Error() string {
	return e.PlayLogID + ": " + e.Err.Error()
}
