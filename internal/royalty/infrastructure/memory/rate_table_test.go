package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	royalty "royalty-engine/internal/royalty/domain"
)

func TestRateTableGroupsAndOrdersByRecency(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	table := NewRateTable([]royalty.RateStructure{
		{ID: "old", StationClass: royalty.StationClassB, TimePeriod: royalty.TimePeriodRegular, Territory: "GH", EffectiveDate: jan},
		{ID: "new", StationClass: royalty.StationClassB, TimePeriod: royalty.TimePeriodRegular, Territory: "GH", EffectiveDate: jun},
		{ID: "other", StationClass: royalty.StationClassA, TimePeriod: royalty.TimePeriodRegular, Territory: "GH", EffectiveDate: jun},
	})

	rows, err := table.ListRates(context.Background(), royalty.StationClassB, royalty.TimePeriodRegular, "GH")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "new", rows[0].ID)
	assert.Equal(t, "old", rows[1].ID)
	assert.Equal(t, 3, table.Len())
}

func TestExchangeRateTablePicksLatestNotAfter(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	table := NewExchangeRateTable([]royalty.ExchangeRate{
		{ID: "a", From: "usd", To: "GHS", Rate: decimal.RequireFromString("6.0"), EffectiveAt: day(1), Active: true},
		{ID: "b", From: "USD", To: "GHS", Rate: decimal.RequireFromString("6.25"), EffectiveAt: day(10), Active: true},
		{ID: "c", From: "USD", To: "GHS", Rate: decimal.RequireFromString("9.9"), EffectiveAt: day(5), Active: false},
	})

	rate, err := table.LatestExchangeRate(context.Background(), "USD", "ghs", day(7))
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.Equal(t, "a", rate.ID)

	rate, err = table.LatestExchangeRate(context.Background(), "USD", "GHS", day(20))
	require.NoError(t, err)
	assert.Equal(t, "b", rate.ID)

	rate, err = table.LatestExchangeRate(context.Background(), "EUR", "GHS", day(20))
	require.NoError(t, err)
	assert.Nil(t, rate)
}
