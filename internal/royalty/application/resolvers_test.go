package application

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	royalty "royalty-engine/internal/royalty/domain"
	"royalty-engine/internal/royalty/infrastructure/memory"
)

func TestCurrencyConverter_DirectInverseAndFallback(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	conv, err := NewCurrencyConverter(memory.NewExchangeRateTable([]royalty.ExchangeRate{
		{ID: "usd-ghs", From: "USD", To: "GHS", Rate: dec("6.25"), EffectiveAt: rateEffective, Source: "bog", Active: true},
	}))
	require.NoError(t, err)
	ctx := context.Background()

	direct, err := conv.Convert(ctx, dec("10"), "usd", "GHS", at)
	require.NoError(t, err)
	assert.True(t, direct.Amount.Equal(dec("62.5")))
	assert.Equal(t, "bog", direct.Source)

	inverse, err := conv.Convert(ctx, dec("1"), "GHS", "USD", at)
	require.NoError(t, err)
	assert.Equal(t, "0.16", royalty.RoundMoney(inverse.Amount, "USD").StringFixed(2))
	assert.True(t, inverse.Rate.Equal(dec("0.16")))
	assert.Equal(t, "bog (inverse)", inverse.Source)
	assert.False(t, inverse.Fallback)

	back, err := conv.Convert(ctx, direct.Amount, "GHS", "USD", at)
	require.NoError(t, err)
	assert.True(t, back.Amount.Equal(dec("10")))

	same, err := conv.Convert(ctx, dec("3.5"), "EUR", "eur", at)
	require.NoError(t, err)
	assert.True(t, same.Amount.Equal(dec("3.5")))
	assert.Nil(t, same.Warning)

	missing, err := conv.Convert(ctx, dec("4"), "EUR", "GHS", at)
	require.NoError(t, err)
	assert.True(t, missing.Fallback)
	assert.True(t, missing.Amount.Equal(dec("4")))
	assert.True(t, errors.Is(missing.Warning, royalty.ErrMissingExchangeRate))
}

func TestCurrencyConverter_IgnoresFutureRates(t *testing.T) {
	conv, err := NewCurrencyConverter(memory.NewExchangeRateTable([]royalty.ExchangeRate{
		{ID: "old", From: "USD", To: "GHS", Rate: dec("6"), EffectiveAt: rateEffective, Active: true},
		{ID: "new", From: "USD", To: "GHS", Rate: dec("7"), EffectiveAt: rateEffective.AddDate(0, 6, 0), Active: true},
	}))
	require.NoError(t, err)

	early, err := conv.Convert(context.Background(), dec("1"), "USD", "GHS", rateEffective.AddDate(0, 1, 0))
	require.NoError(t, err)
	late, err := conv.Convert(context.Background(), dec("1"), "USD", "GHS", rateEffective.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.True(t, early.Rate.Equal(dec("6")))
	assert.True(t, late.Rate.Equal(dec("7")))
}

func TestKeywordClassifier(t *testing.T) {
	classifier := NewKeywordClassifier()
	cases := []struct {
		name     string
		location string
		want     royalty.StationClass
	}{
		{"Vibe Online Radio", "", royalty.StationClassOnline},
		{"Campus FM", "Kumasi", royalty.StationClassCommunity},
		{"Metro Network", "Accra", royalty.StationClassA},
		{"Radio Savannah", "Rural Tamale", royalty.StationClassC},
		{"Joy FM", "Accra", royalty.StationClassB},
		{"Community Web Stream", "", royalty.StationClassOnline},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifier.Classify(royalty.Station{Name: tc.name, Location: tc.location})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStoredClassClassifier_PrefersStoredClass(t *testing.T) {
	classifier := StoredClassClassifier{Fallback: NewKeywordClassifier()}
	assert.Equal(t, royalty.StationClassC, classifier.Classify(royalty.Station{Name: "Metro FM", Class: royalty.StationClassC}))
	assert.Equal(t, royalty.StationClassA, classifier.Classify(royalty.Station{Name: "Metro FM", Class: "bogus"}))
	assert.Equal(t, royalty.StationClassOnline, ClassifierFunc(func(royalty.Station) royalty.StationClass {
		return royalty.StationClassOnline
	}).Classify(royalty.Station{}))
}

func TestPeriodForHour(t *testing.T) {
	want := map[int]royalty.TimePeriod{
		0: royalty.TimePeriodOffPeak, 5: royalty.TimePeriodOffPeak,
		6: royalty.TimePeriodPrime, 9: royalty.TimePeriodPrime,
		10: royalty.TimePeriodRegular, 15: royalty.TimePeriodRegular,
		16: royalty.TimePeriodPrime, 19: royalty.TimePeriodPrime,
		20: royalty.TimePeriodRegular, 23: royalty.TimePeriodRegular,
	}
	for hour, period := range want {
		assert.Equal(t, period, PeriodForHour(hour), "hour %d", hour)
	}
}

func TestTimeBucketer_UsesStationTimezone(t *testing.T) {
	buckets := NewTimeBucketer(time.UTC)
	// 12:30 UTC is 08:30 in New York during daylight saving time.
	playedAt := time.Date(2024, 7, 1, 12, 30, 0, 0, time.UTC)

	assert.Equal(t, royalty.TimePeriodRegular, buckets.Bucket(royalty.Station{}, playedAt))
	assert.Equal(t, royalty.TimePeriodPrime, buckets.Bucket(royalty.Station{Timezone: "America/New_York"}, playedAt))
	assert.Equal(t, royalty.TimePeriodRegular, buckets.Bucket(royalty.Station{Timezone: "Not/AZone"}, playedAt))

	lagos, err := time.LoadLocation("Africa/Lagos")
	require.NoError(t, err)
	withFallback := NewTimeBucketer(lagos)
	assert.Equal(t, "Africa/Lagos", withFallback.Location(royalty.Station{}).String())
}

func TestSelectRate_TieBreaksOnID(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	expired := rateEffective.AddDate(0, 1, 0)
	rows := []royalty.RateStructure{
		{ID: "b", EffectiveDate: rateEffective, Active: true},
		{ID: "a", EffectiveDate: rateEffective, Active: true},
		{ID: "inactive", EffectiveDate: rateEffective.AddDate(0, 1, 0), Active: false},
		{ID: "expired", EffectiveDate: rateEffective.AddDate(0, 0, 10), ExpiryDate: &expired, Active: true},
		{ID: "future", EffectiveDate: at.AddDate(0, 1, 0), Active: true},
	}

	got, ok := SelectRate(rows, at)
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	_, ok = SelectRate(rows[4:], at)
	assert.False(t, ok)
}

func TestSelectRate_ExpiryDayIsInclusive(t *testing.T) {
	expiry := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	rows := []royalty.RateStructure{
		{ID: "june", EffectiveDate: rateEffective, ExpiryDate: &expiry, Active: true},
	}

	got, ok := SelectRate(rows, time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "june", got.ID)

	_, ok = SelectRate(rows, time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC))
	assert.True(t, ok)
	_, ok = SelectRate(rows, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestAgreement_ExpiryDayIsInclusive(t *testing.T) {
	expiry := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	agreement := royalty.ReciprocalAgreement{ID: "agr", EffectiveDate: rateEffective, ExpiryDate: &expiry}

	assert.True(t, agreement.CoversAt(time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)))
	assert.False(t, agreement.CoversAt(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, agreement.Overlaps(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC)))
	assert.False(t, agreement.Overlaps(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC)))
}

func TestSplitResolver_Routing(t *testing.T) {
	track := royalty.Track{
		ID: "tr",
		Contributors: []royalty.Contributor{
			{PayeeID: "a1", Role: royalty.RoleArtist, PercentSplit: dec("40"), Active: true,
				Artist: &royalty.Artist{ID: "a1", PublisherID: "pub-artist"}},
			{PayeeID: "a2", Role: royalty.RoleArtist, PercentSplit: dec("20"), Active: true,
				Artist: &royalty.Artist{ID: "a2", SelfPublished: true, PublisherID: "pub-ignored"}},
			{PayeeID: "c1", Role: royalty.RoleComposer, PercentSplit: dec("30"), Active: true, PublisherID: "pub-explicit"},
			{PayeeID: "c2", Role: royalty.RoleLyricist, PercentSplit: dec("10"), Active: true, PublisherID: "pub-explicit"},
		},
	}

	splits, err := NewSplitResolver().Resolve(track)
	require.NoError(t, err)
	require.Len(t, splits, 3)

	assert.Equal(t, royalty.PublisherRecipient{PublisherID: "pub-artist", Via: "a1"}, splits[0].Recipient)
	assert.Equal(t, royalty.RoutingArtistPublisher, splits[0].Routing)
	assert.Equal(t, royalty.ArtistRecipient{ArtistID: "a2"}, splits[1].Recipient)
	assert.Equal(t, royalty.RoutingDirect, splits[1].Routing)
	assert.Equal(t, "pub-explicit", splits[2].Recipient.PayeeID())
	assert.Equal(t, royalty.RoutingExplicitPublisher, splits[2].Routing)
	assert.True(t, splits[2].Percentage.Equal(dec("40")))
}

func TestSplitResolver_RejectsOutOfRangeShare(t *testing.T) {
	track := royalty.Track{ID: "tr", Contributors: []royalty.Contributor{
		{PayeeID: "a", PercentSplit: dec("120"), Active: true},
		{PayeeID: "b", PercentSplit: dec("-20"), Active: true},
	}}

	err := NewSplitResolver().Validate(track)
	assert.True(t, errors.Is(err, royalty.ErrInvalidPercent))
}
