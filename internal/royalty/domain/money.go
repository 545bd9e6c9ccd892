package royalty

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Hundred is the percentage denominator.
var Hundred = decimal.NewFromInt(100)

var zeroDecimalCurrencies = map[string]struct{}{
	"JPY": {}, "KRW": {}, "CLP": {}, "ISK": {}, "VND": {}, "UGX": {}, "XOF": {}, "XAF": {},
}

var threeDecimalCurrencies = map[string]struct{}{
	"BHD": {}, "KWD": {}, "OMR": {}, "JOD": {}, "TND": {},
}

// NormalizeCurrency upper-cases and trims an ISO 4217 code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// MinorUnits returns the number of decimal places used by a currency.
func MinorUnits(currency string) int32 {
	code := NormalizeCurrency(currency)
	if _, ok := zeroDecimalCurrencies[code]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[code]; ok {
		return 3
	}
	return 2
}

// RoundMoney rounds half away from zero to the currency minor unit.
func RoundMoney(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(MinorUnits(currency))
}

// PercentOf returns amount * pct / 100 at full precision.
func PercentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(Hundred)
}

// ValidPercent reports whether pct lies in [0,100].
func ValidPercent(pct decimal.Decimal) bool {
	return !pct.IsNegative() && pct.LessThanOrEqual(Hundred)
}
