package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"royalty-engine/internal/observability/metrics"
	royalty "royalty-engine/internal/royalty/domain"
)

var royaltyOne = decimal.NewFromInt(1)

// inverseDivisionPrecision bounds the digits kept when inverting a rate.
const inverseDivisionPrecision = 16

// CurrencyConverter converts amounts using dated exchange rates.
type CurrencyConverter struct {
	rates royalty.ExchangeRateRepository
}

// NewCurrencyConverter constructs a converter.
func NewCurrencyConverter(rates royalty.ExchangeRateRepository) (*CurrencyConverter, error) {
	if rates == nil {
		return nil, errors.New("currency converter: nil exchange rate repository")
	}
	return &CurrencyConverter{rates: rates}, nil
}

// WithRates returns a copy reading from another rate source.
func (c *CurrencyConverter) WithRates(rates royalty.ExchangeRateRepository) *CurrencyConverter {
	return &CurrencyConverter{rates: rates}
}

// Convert converts amount at full precision. It tries the direct pair, then
// the inverted reverse pair, then falls back to rate 1 with Fallback set and a
// MissingExchangeRateError warning.
func (c *CurrencyConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string, at time.Time) (royalty.Conversion, error) {
	from = royalty.NormalizeCurrency(from)
	to = royalty.NormalizeCurrency(to)
	conv := royalty.Conversion{From: from, To: to}
	if from == to {
		conv.Amount = amount
		conv.Rate = royaltyOne
		conv.Source = "identity"
		return conv, nil
	}

	direct, err := c.rates.LatestExchangeRate(ctx, from, to, at)
	if err != nil {
		return conv, err
	}
	if direct != nil && direct.Rate.IsPositive() {
		conv.Rate = direct.Rate
		conv.Source = direct.Source
		conv.Amount = amount.Mul(direct.Rate)
		return conv, nil
	}

	inverse, err := c.rates.LatestExchangeRate(ctx, to, from, at)
	if err != nil {
		return conv, err
	}
	if inverse != nil && inverse.Rate.IsPositive() {
		conv.Rate = royaltyOne.DivRound(inverse.Rate, inverseDivisionPrecision)
		conv.Source = inverse.Source
		if conv.Source != "" {
			conv.Source += " (inverse)"
		} else {
			conv.Source = "inverse"
		}
		conv.Amount = amount.Div(inverse.Rate)
		return conv, nil
	}

	metrics.IncFXFallback(from, to)
	conv.Rate = royaltyOne
	conv.Amount = amount
	conv.Fallback = true
	conv.Source = "fallback"
	conv.Warning = &royalty.MissingExchangeRateError{From: from, To: to, At: at}
	return conv, nil
}
