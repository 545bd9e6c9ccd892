package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royalty-engine/internal/platform/sqldb"
	royalty "royalty-engine/internal/royalty/domain"
)

var (
	march     = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	marchPlay = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	stampedAt = time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)
)

func openTestDB(t *testing.T) *sqldb.DB {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db))
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), db))
	require.ErrorIs(t, Migrate(context.Background(), nil), errNilDB)
}

func TestCatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	require.NoError(t, repos.Catalog.UpsertStation(ctx, royalty.Station{
		ID: "st-1", Name: "Joy FM", Location: "Accra", Territory: "GH", Timezone: "Africa/Accra", Class: royalty.StationClassB,
	}))
	require.NoError(t, repos.Catalog.UpsertTrack(ctx, royalty.Track{
		ID: "tr-1", Title: "Highlife", ISRC: "GHA012400001",
		Contributors: []royalty.Contributor{
			{PayeeID: "artist-a", Role: royalty.RoleArtist, PercentSplit: dec("60"), Active: true,
				Artist: &royalty.Artist{SelfPublished: false, PublisherID: "pub-9"}},
			{PayeeID: "writer-b", Role: royalty.RoleComposer, PercentSplit: dec("40"), PublisherID: "pub-1", Active: true},
		},
	}))

	station, err := repos.Catalog.GetStation(ctx, "st-1")
	require.NoError(t, err)
	require.NotNil(t, station)
	assert.Equal(t, royalty.StationClassB, station.Class)
	assert.Equal(t, "Africa/Accra", station.Timezone)

	track, err := repos.Catalog.GetTrack(ctx, "tr-1")
	require.NoError(t, err)
	require.NotNil(t, track)
	require.Len(t, track.Contributors, 2)
	assert.Equal(t, "artist-a", track.Contributors[0].PayeeID)
	assert.True(t, track.Contributors[0].PercentSplit.Equal(dec("60")))
	require.NotNil(t, track.Contributors[0].Artist)
	assert.Equal(t, "artist-a", track.Contributors[0].Artist.ID)
	assert.Equal(t, "pub-9", track.Contributors[0].Artist.PublisherID)
	assert.Equal(t, "pub-1", track.Contributors[1].PublisherID)
	assert.Nil(t, track.Contributors[1].Artist)

	missing, err := repos.Catalog.GetTrack(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPendingPlaysAndDistributions(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	for i, id := range []string{"p-2", "p-1"} {
		require.NoError(t, repos.Catalog.InsertPlay(ctx, royalty.PlayLog{
			ID: id, TrackID: "tr-1", StationID: "st-1", PlayedAt: marchPlay.Add(time.Duration(i) * time.Hour), DurationSeconds: 180,
		}))
	}
	require.NoError(t, repos.Catalog.InsertPlay(ctx, royalty.PlayLog{
		ID: "p-april", TrackID: "tr-1", StationID: "st-1", PlayedAt: march.AddDate(0, 1, 3), DurationSeconds: 60,
	}))
	require.NoError(t, repos.Usage.InsertAttribution(ctx, royalty.UsageAttribution{
		ID: "ua-1", PlayLogID: "p-1", OriginPartnerCode: "PRS", MatchMethod: royalty.MatchFingerprint,
		ConfidenceScore: dec("0.98"), Territory: "GH", StationID: "st-1", DurationSeconds: 180, PlayedAt: marchPlay.Add(time.Hour),
	}))

	pending, err := repos.Catalog.ListPendingPlays(ctx, march, march.AddDate(0, 1, 0), nil, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "p-2", pending[0].ID)
	assert.Equal(t, "p-1", pending[1].ID)
	assert.Equal(t, "PRS", pending[1].OriginPartnerCode)
	assert.False(t, pending[0].Calculated())

	first, err := repos.Catalog.ListPendingPlays(ctx, march, march.AddDate(0, 1, 0), nil, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "p-2", first[0].ID)
	next, err := repos.Catalog.ListPendingPlays(ctx, march, march.AddDate(0, 1, 0),
		&royalty.PlayCursor{PlayedAt: first[0].PlayedAt, ID: first[0].ID}, 1)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "p-1", next[0].ID)
	last, err := repos.Catalog.ListPendingPlays(ctx, march, march.AddDate(0, 1, 0),
		&royalty.PlayCursor{PlayedAt: next[0].PlayedAt, ID: next[0].ID}, 1)
	require.NoError(t, err)
	assert.Empty(t, last)

	dists := []royalty.Distribution{
		{
			PlayLogID: "p-1", Recipient: royalty.ArtistRecipient{ArtistID: "artist-a"}, Role: royalty.RoleArtist,
			Percentage: dec("60"), GrossAmount: dec("1.30"), NetAmount: dec("1.30"), ProShare: decimal.Zero,
			Currency: "USD", ExchangeRate: dec("1"), Routing: royalty.RoutingDirect,
		},
		{
			PlayLogID: "p-1", Recipient: royalty.PublisherRecipient{PublisherID: "pub-1", Via: "writer-b"}, Role: royalty.RoleComposer,
			Percentage: dec("40"), GrossAmount: dec("0.86"), NetAmount: dec("0.86"), ProShare: decimal.Zero,
			Currency: "USD", ExchangeRate: dec("1"), Routing: royalty.RoutingExplicitPublisher,
		},
	}
	require.NoError(t, repos.Distributions.ReplaceDistributions(ctx, "p-1", dists, dec("2.16"), "USD", stampedAt))
	require.NoError(t, repos.Distributions.ReplaceDistributions(ctx, "p-1", dists, dec("2.16"), "USD", stampedAt))

	stored, err := repos.Distributions.ListDistributions(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, royalty.ArtistRecipient{ArtistID: "artist-a"}, stored[0].Recipient)
	assert.Equal(t, royalty.PublisherRecipient{PublisherID: "pub-1", Via: "writer-b"}, stored[1].Recipient)
	assert.Equal(t, stampedAt, stored[0].CreatedAt)

	play, err := repos.Catalog.GetPlay(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, play)
	require.True(t, play.Calculated())
	assert.Equal(t, "2.16", play.RoyaltyAmount.StringFixed(2))
	require.NotNil(t, play.CalculatedAt)
	assert.Equal(t, stampedAt, *play.CalculatedAt)

	pending, err = repos.Catalog.ListPendingPlays(ctx, march, march.AddDate(0, 1, 0), nil, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p-2", pending[0].ID)

	err = repos.Distributions.ReplaceDistributions(ctx, "ghost", nil, dec("1"), "USD", stampedAt)
	require.ErrorIs(t, err, royalty.ErrPersistence)
	require.ErrorIs(t, err, royalty.ErrPlayNotFound)
}

func TestCycleLifecycle(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	cycle := &royalty.RoyaltyCycle{
		ID: "cyc-1", Name: "GH March", Territory: "GH", Currency: "USD",
		PeriodStart: march, PeriodEnd: march.AddDate(0, 1, -1), Status: royalty.CycleOpen,
		DefaultAdminFeePercent: dec("10"), CreatedAt: stampedAt,
	}
	require.NoError(t, repos.Cycles.CreateCycle(ctx, cycle))

	items := []royalty.RoyaltyLineItem{{
		PartnerCode: "PRS", RecordingKey: "rec-1", UsageCount: 2, TotalDurationSeconds: 360,
		AdminFeePercent: dec("15"), Gross: dec("1000"), AdminFee: dec("150"), Net: dec("850"), Currency: "USD",
	}}
	require.NoError(t, repos.Cycles.CommitLock(ctx, "cyc-1", items, stampedAt))

	err := repos.Cycles.CommitLock(ctx, "cyc-1", items, stampedAt)
	require.ErrorIs(t, err, royalty.ErrInvalidCycleState)

	got, err := repos.Cycles.GetCycle(ctx, "cyc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, royalty.CycleLocked, got.Status)
	require.NotNil(t, got.LockedAt)
	assert.Equal(t, stampedAt, *got.LockedAt)
	assert.Equal(t, march, got.PeriodStart)

	stored, err := repos.Cycles.ListLineItems(ctx, "cyc-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEmpty(t, stored[0].ID)
	assert.Equal(t, "850.00", stored[0].Net.StringFixed(2))

	locked, err := repos.Cycles.ListCycles(ctx, royalty.CycleLocked)
	require.NoError(t, err)
	assert.Len(t, locked, 1)
	open, err := repos.Cycles.ListCycles(ctx, royalty.CycleOpen)
	require.NoError(t, err)
	assert.Empty(t, open)

	require.NoError(t, repos.Cycles.ResetCycle(ctx, "cyc-1"))
	stored, err = repos.Cycles.ListLineItems(ctx, "cyc-1")
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.NoError(t, repos.Cycles.CommitLock(ctx, "cyc-1", items, stampedAt))
	require.NoError(t, repos.Cycles.TransitionCycle(ctx, "cyc-1", royalty.CycleLocked, royalty.CycleInvoiced, stampedAt))
	err = repos.Cycles.TransitionCycle(ctx, "cyc-1", royalty.CycleLocked, royalty.CycleInvoiced, stampedAt)
	require.ErrorIs(t, err, royalty.ErrInvalidCycleState)
	require.ErrorIs(t, repos.Cycles.ResetCycle(ctx, "cyc-1"), royalty.ErrInvalidCycleState)
}

func TestSettlementReplaceAndStatus(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))
	require.NoError(t, repos.Cycles.CreateCycle(ctx, &royalty.RoyaltyCycle{
		ID: "cyc-1", Name: "GH March", Territory: "GH", Currency: "USD",
		PeriodStart: march, PeriodEnd: march.AddDate(0, 1, -1), Status: royalty.CycleOpen, CreatedAt: stampedAt,
	}))

	remittance := royalty.PartnerRemittance{
		ID: "rem-1", PartnerCode: "PRS", AgreementID: "agr-prs", Currency: "USD",
		Gross: dec("1000"), AdminFee: dec("150"), NetPayable: dec("850"), Status: royalty.RemittancePending, CreatedAt: stampedAt,
	}
	export := royalty.ReportExport{
		ID: "exp-1", PartnerCode: "PRS", Format: royalty.ReportFormatCSV, Location: "cyc-1/PRS/PRS_20240301_20240331.csv",
		Checksum: "abc", SizeBytes: 42, GeneratedAt: stampedAt,
	}
	require.NoError(t, repos.Settlements.ReplaceSettlement(ctx, "cyc-1", []royalty.PartnerRemittance{remittance}, []royalty.ReportExport{export}))
	require.NoError(t, repos.Settlements.ReplaceSettlement(ctx, "cyc-1", []royalty.PartnerRemittance{remittance}, []royalty.ReportExport{export}))

	remittances, err := repos.Settlements.ListRemittances(ctx, "cyc-1")
	require.NoError(t, err)
	require.Len(t, remittances, 1)
	assert.Equal(t, "cyc-1", remittances[0].CycleID)
	assert.Equal(t, "850.00", remittances[0].NetPayable.StringFixed(2))

	require.NoError(t, repos.Settlements.UpdateRemittanceStatus(ctx, "rem-1", royalty.RemittanceSent, "TX-1", stampedAt))
	remittances, err = repos.Settlements.ListRemittances(ctx, "cyc-1")
	require.NoError(t, err)
	assert.Equal(t, royalty.RemittanceSent, remittances[0].Status)
	assert.Equal(t, "TX-1", remittances[0].PaymentReference)
	require.NotNil(t, remittances[0].SentAt)
	assert.Nil(t, remittances[0].SettledAt)

	require.Error(t, repos.Settlements.UpdateRemittanceStatus(ctx, "missing", royalty.RemittanceSent, "", stampedAt))

	got, err := repos.Settlements.GetExport(ctx, "exp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.Checksum)
	assert.Equal(t, int64(42), got.SizeBytes)
	none, err := repos.Settlements.GetExport(ctx, "exp-x")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestLatestExchangeRate(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	require.NoError(t, repos.ExchangeRates.Insert(ctx, royalty.ExchangeRate{
		ID: "fx-1", From: "usd", To: "ghs", Rate: dec("6.00"), EffectiveAt: march, Source: "bog", Active: true,
	}))
	require.NoError(t, repos.ExchangeRates.Insert(ctx, royalty.ExchangeRate{
		ID: "fx-2", From: "USD", To: "GHS", Rate: dec("6.25"), EffectiveAt: march.AddDate(0, 0, 10), Source: "bog", Active: true,
	}))
	require.Error(t, repos.ExchangeRates.Insert(ctx, royalty.ExchangeRate{ID: "fx-3", From: "USD", To: "GHS", Rate: decimal.Zero}))

	rate, err := repos.ExchangeRates.LatestExchangeRate(ctx, "USD", "GHS", marchPlay)
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.Equal(t, "fx-2", rate.ID)
	assert.True(t, rate.Rate.Equal(dec("6.25")))

	rate, err = repos.ExchangeRates.LatestExchangeRate(ctx, "USD", "GHS", march.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.Equal(t, "fx-1", rate.ID)

	rate, err = repos.ExchangeRates.LatestExchangeRate(ctx, "EUR", "GHS", marchPlay)
	require.NoError(t, err)
	assert.Nil(t, rate)
}
