package application

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royalty-engine/internal/audit"
	royalty "royalty-engine/internal/royalty/domain"
	"royalty-engine/internal/royalty/infrastructure/memory"
	"royalty-engine/internal/royalty/interfaces/report"
)

var (
	cycleStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cycleEnd   = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
)

type cycleFixture struct {
	repo     *stubRepo
	audit    *recordingAudit
	events   *recordingEvents
	store    *memReportStore
	manager  *CycleManager
	settlers *SettlementProcessor
}

func usageRow(id, partner, recording string, amount, currency string, day int, calculated bool) royalty.CycleUsage {
	return royalty.CycleUsage{
		Attribution: royalty.UsageAttribution{
			ID:                  "ua-" + id,
			PlayLogID:           id,
			OriginPartnerCode:   partner,
			ExternalRecordingID: recording,
			MatchMethod:         royalty.MatchFingerprint,
			ConfidenceScore:     dec("0.97"),
			Territory:           "GH",
			StationID:           "st-1",
			DurationSeconds:     180,
			PlayedAt:            time.Date(2024, 3, day, 14, 0, 0, 0, time.UTC),
		},
		RoyaltyAmount:   dec(amount),
		RoyaltyCurrency: currency,
		Calculated:      calculated,
		Title:           "Song " + recording,
		ISRC:            "GBAYE24000" + strings.TrimPrefix(recording, "rec-"),
	}
}

func newCycleFixture(t *testing.T) *cycleFixture {
	t.Helper()
	repo := newStubRepo()
	repo.partners["PRS"] = royalty.PartnerOrganization{
		Code: "PRS", Name: "PRS for Music", Territory: "GB", DefaultAdminFeePercent: dec("20"),
		PreferredFormat: royalty.ReportFormatCSV, Active: true,
	}
	repo.partners["SACEM"] = royalty.PartnerOrganization{
		Code: "SACEM", Name: "SACEM", Territory: "FR", DefaultAdminFeePercent: dec("25"),
		PreferredFormat: royalty.ReportFormatDDEX, Active: true,
	}
	repo.agreements = []royalty.ReciprocalAgreement{
		{ID: "agr-prs", PartnerCode: "PRS", Territory: "GH", EffectiveDate: rateEffective, AdminFeePercentOverride: decPtr("15"), Status: royalty.AgreementActive},
		{ID: "agr-sacem", PartnerCode: "SACEM", Territory: "GH", EffectiveDate: rateEffective, Status: royalty.AgreementActive},
		{ID: "agr-ascap", PartnerCode: "ASCAP", Territory: "NG", EffectiveDate: rateEffective, Status: royalty.AgreementActive},
	}
	repo.usage = []royalty.CycleUsage{
		usageRow("p-1", "PRS", "rec-1", "600.00", "USD", 2, true),
		usageRow("p-2", "PRS", "rec-1", "400.00", "USD", 9, true),
		usageRow("p-3", "PRS", "rec-2", "62.50", "GHS", 10, true),
		usageRow("p-4", "PRS", "rec-2", "0", "", 11, false),
		usageRow("p-5", "PRS", "rec-1", "999.00", "USD", 1, true),
	}
	// outside the cycle window
	repo.usage[4].Attribution.PlayedAt = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	converter, err := NewCurrencyConverter(memory.NewExchangeRateTable([]royalty.ExchangeRate{
		{ID: "fx", From: "USD", To: "GHS", Rate: dec("6.25"), EffectiveAt: rateEffective, Active: true},
	}))
	require.NoError(t, err)

	f := &cycleFixture{repo: repo, audit: &recordingAudit{}, events: &recordingEvents{}, store: newMemReportStore()}
	clock := fixedClock{now: time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)}
	f.settlers, err = NewSettlementProcessor(repo, repo, repo, repo, converter, report.DefaultRegistry(), f.store,
		WithSettlementAudit(f.audit), WithSettlementEvents(f.events), WithSettlementClock(clock),
		WithSender(Sender{PartyID: "GHAMRO", Name: "Ghana Music Rights Organisation"}))
	require.NoError(t, err)
	f.manager, err = NewCycleManager(repo, repo, repo, converter, f.settlers,
		WithCycleLocker(stubLocker{}), WithCycleAudit(f.audit), WithCycleEvents(f.events),
		WithDefaultAdminFee(dec("10")), WithCycleClock(clock))
	require.NoError(t, err)
	return f
}

func (f *cycleFixture) open(t *testing.T) *royalty.RoyaltyCycle {
	t.Helper()
	cycle, err := f.manager.Open(context.Background(), OpenCycleInput{
		Territory: "gh", Currency: "usd", PeriodStart: cycleStart, PeriodEnd: cycleEnd,
	}, "ops")
	require.NoError(t, err)
	return cycle
}

func TestNewCycleManager_RequiresLocker(t *testing.T) {
	f := newCycleFixture(t)
	_, err := NewCycleManager(f.repo, f.repo, f.repo, f.settlers.converter, f.settlers)
	assert.Error(t, err)
}

func TestOpen_NormalizesInput(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)

	assert.Equal(t, "GH", cycle.Territory)
	assert.Equal(t, "USD", cycle.Currency)
	assert.Equal(t, royalty.CycleOpen, cycle.Status)
	assert.True(t, cycle.DefaultAdminFeePercent.Equal(dec("10")))
	assert.Equal(t, "GH 2024-03-01..2024-03-31", cycle.Name)

	_, err := f.manager.Open(context.Background(), OpenCycleInput{
		Territory: "GH", Currency: "USD", PeriodStart: cycleEnd, PeriodEnd: cycleStart,
	}, "ops")
	assert.True(t, errors.Is(err, royalty.ErrInvalidPeriod))
}

func TestLock_AggregatesLineItems(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)

	summary, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.LineItems)
	assert.Equal(t, 3, summary.UsageCount)
	assert.Equal(t, 1, summary.Uncalculated)
	assert.Equal(t, "1010.00", summary.Gross.StringFixed(2))
	assert.Equal(t, "151.50", summary.AdminFee.StringFixed(2))
	assert.Equal(t, "858.50", summary.Net.StringFixed(2))

	items, err := f.manager.LineItems(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "rec:rec-1", items[0].RecordingKey)
	assert.Equal(t, 2, items[0].UsageCount)
	assert.Equal(t, 360, items[0].TotalDurationSeconds)
	assert.Equal(t, "1000.00", items[0].Gross.StringFixed(2))
	assert.Equal(t, "150.00", items[0].AdminFee.StringFixed(2))
	assert.Equal(t, "850.00", items[0].Net.StringFixed(2))
	assert.True(t, items[0].AdminFeePercent.Equal(dec("15")))
	assert.Equal(t, "10.00", items[1].Gross.StringFixed(2))

	locked, err := f.manager.Get(context.Background(), cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, royalty.CycleLocked, locked.Status)
	assert.Len(t, f.audit.ofType(audit.TypeCycle), 1)
	require.Len(t, f.events.events, 1)
	assert.IsType(t, CycleLocked{}, f.events.events[0])
}

func TestLock_RejectsRelock(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)
	_, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)

	_, err = f.manager.Lock(context.Background(), cycle.ID, "ops")
	assert.True(t, errors.Is(err, royalty.ErrInvalidCycleState))
}

func TestLock_UnknownCycle(t *testing.T) {
	f := newCycleFixture(t)
	_, err := f.manager.Lock(context.Background(), "missing", "ops")
	assert.True(t, errors.Is(err, royalty.ErrCycleNotFound))
}

func TestLock_FallsBackToPartnerThenCycleFee(t *testing.T) {
	f := newCycleFixture(t)
	f.repo.agreements[0].AdminFeePercentOverride = nil
	f.repo.usage = append(f.repo.usage, usageRow("p-9", "ZZZ", "rec-9", "100.00", "USD", 5, true))
	cycle := f.open(t)

	_, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)

	items, err := f.manager.LineItems(context.Background(), cycle.ID)
	require.NoError(t, err)
	fees := map[string]string{}
	for _, item := range items {
		fees[item.PartnerCode] = item.AdminFeePercent.String()
	}
	assert.Equal(t, "20", fees["PRS"])
	assert.Equal(t, "10", fees["ZZZ"])
}

func TestSettle_CreatesRemittancesAndReports(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)
	_, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	f.events.events = nil

	summary, err := f.manager.Settle(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.AgreementsProcessed)
	assert.Equal(t, 1, summary.RemittancesCreated)
	assert.Equal(t, 1, summary.ReportsGenerated)
	assert.Equal(t, []string{"SACEM"}, summary.Skipped)
	assert.Equal(t, "858.50", summary.TotalPayable.StringFixed(2))

	remittances, err := f.settlers.Remittances(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, remittances, 1)
	r := remittances[0]
	assert.Equal(t, "PRS", r.PartnerCode)
	assert.Equal(t, "agr-prs", r.AgreementID)
	assert.Equal(t, royalty.RemittancePending, r.Status)
	assert.Equal(t, "1010.00", r.Gross.StringFixed(2))
	assert.Equal(t, "151.50", r.AdminFee.StringFixed(2))

	exports, err := f.settlers.Exports(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	e := exports[0]
	assert.Equal(t, royalty.ReportFormatCSV, e.Format)
	assert.Equal(t, "mem://"+cycle.ID+"/PRS/PRS_20240301_20240331_"+e.ID+".csv", e.Location)
	assert.Len(t, e.Checksum, 64)

	body, err := f.store.Get(context.Background(), e.Location)
	require.NoError(t, err)
	assert.Equal(t, e.Checksum, report.Checksum(body))
	assert.Contains(t, string(body), "p-1")
	assert.NotContains(t, string(body), "p-4")

	assert.Len(t, f.audit.ofType(audit.TypeReciprocal), 1)
	require.Len(t, f.events.events, 3)
	assert.IsType(t, RemittanceCreated{}, f.events.events[0])
	assert.IsType(t, ReportExported{}, f.events.events[1])
	assert.IsType(t, CycleSettled{}, f.events.events[2])
}

func TestSettle_RequiresLockedCycle(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)

	_, err := f.manager.Settle(context.Background(), cycle.ID, "ops")
	var stateErr *royalty.InvalidCycleStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, royalty.CycleOpen, stateErr.Status)
}

func TestSettle_ReplacesEarlierSettlement(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)
	_, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)

	_, err = f.manager.Settle(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	first, _ := f.settlers.Exports(context.Background(), cycle.ID)
	_, err = f.manager.Settle(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	second, _ := f.settlers.Exports(context.Background(), cycle.ID)

	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].Checksum, second[0].Checksum)
	assert.NotEqual(t, first[0].Location, second[0].Location)

	_, err = f.store.Get(context.Background(), first[0].Location)
	assert.True(t, errors.Is(err, royalty.ErrExportNotFound))
	assert.Len(t, f.store.objects, 1)
}

func TestSettle_FailedResettleKeepsEarlierExport(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)
	_, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	_, err = f.manager.Settle(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	original, err := f.settlers.Exports(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, original, 1)

	f.settlers.clock = fixedClock{now: time.Date(2024, 4, 3, 10, 0, 0, 0, time.UTC)}
	f.repo.settleErr = errors.New("disk full")
	_, err = f.manager.Settle(context.Background(), cycle.ID, "ops")
	var persistErr *royalty.PersistenceError
	require.True(t, errors.As(err, &persistErr))

	exports, err := f.settlers.Exports(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, original[0].ID, exports[0].ID)

	verified, err := f.settlers.VerifyExport(context.Background(), original[0].ID)
	require.NoError(t, err)
	assert.Equal(t, original[0].Checksum, verified.Checksum)
	assert.Len(t, f.store.objects, 1)
}

func TestVerifyExport_DetectsTampering(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)
	_, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	_, err = f.manager.Settle(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	exports, err := f.settlers.Exports(context.Background(), cycle.ID)
	require.NoError(t, err)
	id := exports[0].ID

	verified, err := f.settlers.VerifyExport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, verified.ID)

	f.store.objects[exports[0].Location] = []byte("tampered")
	_, err = f.settlers.VerifyExport(context.Background(), id)
	assert.True(t, errors.Is(err, royalty.ErrChecksumMismatch))

	_, err = f.settlers.VerifyExport(context.Background(), "missing")
	assert.True(t, errors.Is(err, royalty.ErrExportNotFound))
}

func TestPreview_RendersRequestedFormat(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)
	_, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)

	rendered, err := f.settlers.Preview(context.Background(), cycle.ID, "PRS", royalty.ReportFormatJSON)
	require.NoError(t, err)
	assert.Equal(t, royalty.ReportFormatJSON, rendered.Format)
	assert.Contains(t, string(rendered.Body), "GHAMRO")

	_, err = f.settlers.Preview(context.Background(), cycle.ID, "SACEM", "")
	assert.True(t, errors.Is(err, royalty.ErrPartnerNotFound))
}

func TestPreview_RowFeesMatchRemittance(t *testing.T) {
	f := newCycleFixture(t)
	f.repo.usage = []royalty.CycleUsage{
		usageRow("p-7", "PRS", "rec-7", "0.10", "USD", 2, true),
		usageRow("p-8", "PRS", "rec-7", "0.10", "USD", 3, true),
		usageRow("p-9", "PRS", "rec-7", "0.10", "USD", 4, true),
	}
	cycle := f.open(t)
	_, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)

	rendered, err := f.settlers.Preview(context.Background(), cycle.ID, "PRS", royalty.ReportFormatJSON)
	require.NoError(t, err)

	var doc struct {
		Rows []struct {
			Gross    string `json:"gross"`
			AdminFee string `json:"admin_fee"`
			Net      string `json:"net"`
		} `json:"usage_rows"`
		Totals struct {
			Gross      string `json:"gross"`
			AdminFee   string `json:"admin_fee"`
			NetPayable string `json:"net_payable"`
		} `json:"totals"`
		Summary struct {
			TotalGross    string `json:"total_gross"`
			TotalAdminFee string `json:"total_admin_fee"`
			TotalNet      string `json:"total_net"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rendered.Body, &doc))

	assert.Equal(t, "0.30", doc.Totals.Gross)
	assert.Equal(t, "0.05", doc.Totals.AdminFee)
	assert.Equal(t, "0.25", doc.Totals.NetPayable)
	assert.Equal(t, doc.Totals.Gross, doc.Summary.TotalGross)
	assert.Equal(t, doc.Totals.AdminFee, doc.Summary.TotalAdminFee)
	assert.Equal(t, doc.Totals.NetPayable, doc.Summary.TotalNet)

	require.Len(t, doc.Rows, 3)
	fees := dec("0")
	for _, row := range doc.Rows {
		fees = fees.Add(dec(row.AdminFee))
		assert.Equal(t, dec(row.Gross).Sub(dec(row.AdminFee)).StringFixed(2), row.Net)
	}
	assert.Equal(t, "0.05", fees.StringFixed(2))
}

func TestSpread_LargestRemainder(t *testing.T) {
	shares := spread(dec("0.05"), []decimal.Decimal{dec("0.10"), dec("0.10"), dec("0.10")}, "USD")
	assert.Equal(t, []string{"0.02", "0.02", "0.01"}, []string{shares[0].StringFixed(2), shares[1].StringFixed(2), shares[2].StringFixed(2)})

	shares = spread(dec("10"), []decimal.Decimal{dec("0"), dec("0")}, "USD")
	assert.Equal(t, "5.00", shares[0].StringFixed(2))
	assert.Equal(t, "5.00", shares[1].StringFixed(2))

	shares = spread(dec("7"), []decimal.Decimal{dec("1"), dec("2")}, "JPY")
	assert.Equal(t, "2", shares[0].String())
	assert.Equal(t, "5", shares[1].String())
}

func TestReset_ReopensLockedCycle(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)
	_, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	_, err = f.manager.Settle(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)

	reopened, err := f.manager.Reset(context.Background(), cycle.ID, "admin", "late usage")
	require.NoError(t, err)
	assert.Equal(t, royalty.CycleOpen, reopened.Status)
	items, _ := f.repo.ListLineItems(context.Background(), cycle.ID)
	assert.Empty(t, items)
	remittances, _ := f.repo.ListRemittances(context.Background(), cycle.ID)
	assert.Empty(t, remittances)
	assert.Len(t, f.audit.ofType(audit.TypeRecalculation), 1)

	_, err = f.manager.Reset(context.Background(), cycle.ID, "admin", "again")
	assert.True(t, errors.Is(err, royalty.ErrInvalidCycleState))
}

func TestRemittanceHandler_AdvancesCycle(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)
	_, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	_, err = f.manager.Settle(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	remittances, _ := f.settlers.Remittances(context.Background(), cycle.ID)
	require.Len(t, remittances, 1)

	handler, err := NewRemittanceHandler(f.repo, f.manager, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, handler.Handle(ctx, RemittanceAcknowledged{
		RemittanceID: remittances[0].ID, CycleID: cycle.ID, Status: royalty.RemittanceSent, PaymentReference: "WIRE-1",
	}))
	got, _ := f.manager.Get(ctx, cycle.ID)
	assert.Equal(t, royalty.CycleInvoiced, got.Status)

	require.NoError(t, handler.Handle(ctx, &RemittanceAcknowledged{
		RemittanceID: remittances[0].ID, CycleID: cycle.ID, Status: royalty.RemittanceSettled, PaymentReference: "WIRE-1",
	}))
	got, _ = f.manager.Get(ctx, cycle.ID)
	assert.Equal(t, royalty.CycleRemitted, got.Status)

	err = handler.Handle(ctx, CycleLocked{})
	assert.Error(t, err)
}

func TestRemittanceHandler_FailedPaymentKeepsCycle(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)
	_, err := f.manager.Lock(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	_, err = f.manager.Settle(context.Background(), cycle.ID, "ops")
	require.NoError(t, err)
	remittances, _ := f.settlers.Remittances(context.Background(), cycle.ID)

	handler, err := NewRemittanceHandler(f.repo, f.manager, nil)
	require.NoError(t, err)
	require.NoError(t, handler.Apply(context.Background(), RemittanceAcknowledged{
		RemittanceID: remittances[0].ID, CycleID: cycle.ID, Status: royalty.RemittanceFailed,
	}))

	got, _ := f.manager.Get(context.Background(), cycle.ID)
	assert.Equal(t, royalty.CycleLocked, got.Status)
}

func TestTransitions_EnforceOrder(t *testing.T) {
	f := newCycleFixture(t)
	cycle := f.open(t)

	_, err := f.manager.MarkInvoiced(context.Background(), cycle.ID, "ops")
	assert.True(t, errors.Is(err, royalty.ErrInvalidCycleState))
	_, err = f.manager.MarkRemitted(context.Background(), cycle.ID, "ops")
	assert.True(t, errors.Is(err, royalty.ErrInvalidCycleState))
}

type recordingPending struct {
	windows [][2]time.Time
}

func (r *recordingPending) CalculatePending(_ context.Context, from, to time.Time, _ int, _ audit.ActorID) (royalty.BatchResult, error) {
	r.windows = append(r.windows, [2]time.Time{from, to})
	return royalty.BatchResult{}, nil
}

func TestScheduler_RunsOpenCycles(t *testing.T) {
	f := newCycleFixture(t)
	open := f.open(t)
	locked := f.open(t)
	_, err := f.manager.Lock(context.Background(), locked.ID, "ops")
	require.NoError(t, err)

	pending := &recordingPending{}
	scheduler := NewScheduler(pending, f.manager, "02:30", 100, nil)
	scheduler.RunOnce(context.Background())

	require.Len(t, pending.windows, 1)
	from, to := open.Window()
	assert.Equal(t, from, pending.windows[0][0])
	assert.Equal(t, to, pending.windows[0][1])

	assert.True(t, scheduler.shouldRun(time.Date(2024, 1, 1, 2, 30, 0, 0, time.UTC)))
	assert.False(t, scheduler.shouldRun(time.Date(2024, 1, 1, 2, 31, 0, 0, time.UTC)))
	assert.False(t, NewScheduler(pending, f.manager, "bad", 1, nil).shouldRun(time.Now()))

	lagos := time.FixedZone("WAT", 3600)
	assert.True(t, scheduler.shouldRun(time.Date(2024, 1, 1, 3, 30, 0, 0, lagos)))
	assert.False(t, scheduler.shouldRun(time.Date(2024, 1, 1, 2, 30, 0, 0, lagos)))
}
