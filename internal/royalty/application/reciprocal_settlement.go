package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"royalty-engine/internal/audit"
	"royalty-engine/internal/observability/metrics"
	royalty "royalty-engine/internal/royalty/domain"
	"royalty-engine/internal/royalty/interfaces/report"
)

// SettlementProcessor nets partner admin fees over a locked cycle, creates
// remittances and exports partner reports.
type SettlementProcessor struct {
	cycles      royalty.CycleRepository
	usage       royalty.UsageRepository
	partners    royalty.PartnerRepository
	settlements royalty.SettlementRepository
	converter   *CurrencyConverter
	reports     *report.Registry
	store       ReportStore
	audit       audit.Logger
	events      EventPublisher
	sender      Sender
	clock       Clock
	logger      *zap.Logger
}

// Sender identifies this organization in partner reports.
type Sender struct {
	PartyID string
	Name    string
}

// SettlementOption customizes a SettlementProcessor.
type SettlementOption func(*SettlementProcessor)

// WithSettlementAudit sets the audit logger.
func WithSettlementAudit(logger audit.Logger) SettlementOption {
	return func(p *SettlementProcessor) {
		if logger != nil {
			p.audit = logger
		}
	}
}

// WithSettlementEvents sets the event publisher.
func WithSettlementEvents(events EventPublisher) SettlementOption {
	return func(p *SettlementProcessor) {
		if events != nil {
			p.events = events
		}
	}
}

// WithSender sets the report sender identity.
func WithSender(sender Sender) SettlementOption {
	return func(p *SettlementProcessor) {
		p.sender = sender
	}
}

// WithSettlementClock sets the clock.
func WithSettlementClock(clock Clock) SettlementOption {
	return func(p *SettlementProcessor) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithSettlementLogger sets the logger.
func WithSettlementLogger(logger *zap.Logger) SettlementOption {
	return func(p *SettlementProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewSettlementProcessor constructs the processor.
func NewSettlementProcessor(
	cycles royalty.CycleRepository,
	usage royalty.UsageRepository,
	partners royalty.PartnerRepository,
	settlements royalty.SettlementRepository,
	converter *CurrencyConverter,
	reports *report.Registry,
	store ReportStore,
	opts ...SettlementOption,
) (*SettlementProcessor, error) {
	if cycles == nil {
		return nil, errors.New("settlement processor: nil cycle repository")
	}
	if usage == nil {
		return nil, errors.New("settlement processor: nil usage repository")
	}
	if partners == nil {
		return nil, errors.New("settlement processor: nil partner repository")
	}
	if settlements == nil {
		return nil, errors.New("settlement processor: nil settlement repository")
	}
	if converter == nil {
		return nil, errors.New("settlement processor: nil currency converter")
	}
	if store == nil {
		return nil, errors.New("settlement processor: nil report store")
	}
	if reports == nil {
		reports = report.DefaultRegistry()
	}
	p := &SettlementProcessor{
		cycles:      cycles,
		usage:       usage,
		partners:    partners,
		settlements: settlements,
		converter:   converter,
		reports:     reports,
		store:       store,
		audit:       audit.Nop{},
		events:      nopPublisher{},
		sender:      Sender{PartyID: "ROYALTY", Name: "Royalty Engine"},
		clock:       SystemClock{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type partnerSettlement struct {
	agreement  royalty.ReciprocalAgreement
	partner    royalty.PartnerOrganization
	remittance royalty.PartnerRemittance
	items      []royalty.RoyaltyLineItem
}

// ProcessCycle settles a locked cycle. Remittances and exports replace any
// earlier settlement of the same cycle.
func (p *SettlementProcessor) ProcessCycle(ctx context.Context, cycleID string, actor audit.ActorID) (royalty.SettlementSummary, error) {
	start := time.Now()
	summary, err := p.processCycle(ctx, cycleID, actor)
	status := metrics.ResultSuccess
	if err != nil {
		status = metrics.ResultError
	}
	metrics.ObserveSettlement(status, time.Since(start))
	return summary, err
}

func (p *SettlementProcessor) processCycle(ctx context.Context, cycleID string, actor audit.ActorID) (royalty.SettlementSummary, error) {
	cycle, err := p.lockedCycle(ctx, cycleID, "settle")
	if err != nil {
		return royalty.SettlementSummary{}, err
	}
	settlements, summary, err := p.buildRemittances(ctx, *cycle)
	if err != nil {
		return royalty.SettlementSummary{}, err
	}
	usage, err := p.cycleUsage(ctx, *cycle)
	if err != nil {
		return royalty.SettlementSummary{}, err
	}

	previous, err := p.settlements.ListExports(ctx, cycle.ID)
	if err != nil {
		return royalty.SettlementSummary{}, fmt.Errorf("settlement processor: load exports: %w", err)
	}

	now := p.clock.Now().UTC()
	remittances := make([]royalty.PartnerRemittance, 0, len(settlements))
	exports := make([]royalty.ReportExport, 0, len(settlements))
	committed := false
	defer func() {
		if !committed {
			p.removeObjects(ctx, exports, "rollback")
		}
	}()
	for _, s := range settlements {
		s.remittance.CreatedAt = now
		remittances = append(remittances, s.remittance)

		format := s.partner.PreferredFormat
		if format == "" {
			format = royalty.ReportFormatCSV
		}
		if _, err := p.reports.Encoder(format); err != nil {
			p.logger.Warn("unsupported partner format, using csv",
				zap.String("partner", s.partner.Code),
				zap.String("format", string(format)),
			)
			format = royalty.ReportFormatCSV
		}
		data, err := p.reportData(ctx, *cycle, s, usage, now)
		if err != nil {
			return royalty.SettlementSummary{}, err
		}
		export, err := p.export(ctx, *cycle, s.partner.Code, format, data)
		if err != nil {
			return royalty.SettlementSummary{}, err
		}
		exports = append(exports, export)
	}

	if err := p.settlements.ReplaceSettlement(ctx, cycle.ID, remittances, exports); err != nil {
		return royalty.SettlementSummary{}, royalty.NewPersistenceError("settle cycle "+cycle.ID, err)
	}
	committed = true
	p.removeObjects(ctx, previous, "superseded")
	summary.RemittancesCreated = len(remittances)
	summary.ReportsGenerated = len(exports)

	if err := p.audit.Log(ctx, audit.Entry{
		Type:              audit.TypeReciprocal,
		CycleID:           cycle.ID,
		TotalAmount:       summary.TotalPayable,
		Currency:          cycle.Currency,
		DistributionCount: len(remittances),
		Metadata: audit.MustMetadata(map[string]any{
			"agreements_processed": summary.AgreementsProcessed,
			"remittances_created":  summary.RemittancesCreated,
			"reports_generated":    summary.ReportsGenerated,
			"skipped":              summary.Skipped,
		}),
		Actor:     actor,
		CreatedAt: now,
	}); err != nil {
		p.logger.Warn("audit write failed", zap.String("cycle_id", cycle.ID), zap.Error(err))
	}

	for _, r := range remittances {
		p.publish(ctx, RemittanceCreated{
			RemittanceID: r.ID,
			CycleID:      r.CycleID,
			PartnerCode:  r.PartnerCode,
			AgreementID:  r.AgreementID,
			NetPayable:   r.NetPayable,
			Currency:     r.Currency,
			OccurredAt:   now,
		})
	}
	for _, e := range exports {
		p.publish(ctx, ReportExported{
			ExportID:    e.ID,
			CycleID:     e.CycleID,
			PartnerCode: e.PartnerCode,
			Format:      e.Format,
			Location:    e.Location,
			Checksum:    e.Checksum,
			OccurredAt:  now,
		})
	}
	p.publish(ctx, CycleSettled{
		CycleID:            cycle.ID,
		RemittancesCreated: summary.RemittancesCreated,
		ReportsGenerated:   summary.ReportsGenerated,
		TotalPayable:       summary.TotalPayable,
		Currency:           cycle.Currency,
		OccurredAt:         now,
	})
	p.logger.Info("cycle settled",
		zap.String("event", "cycle.settle"),
		zap.String("cycle_id", cycle.ID),
		zap.Int("agreements", summary.AgreementsProcessed),
		zap.Int("remittances", summary.RemittancesCreated),
		zap.String("total_payable", summary.TotalPayable.String()),
		zap.String("actor", string(actor)),
	)
	return summary, nil
}

// buildRemittances creates one pending remittance per eligible agreement
// with line items. The net payable is the sum of the partner's line item nets.
func (p *SettlementProcessor) buildRemittances(ctx context.Context, cycle royalty.RoyaltyCycle) ([]partnerSettlement, royalty.SettlementSummary, error) {
	summary := royalty.SettlementSummary{
		CycleID:      cycle.ID,
		TotalPayable: decimal.Zero,
		Currency:     cycle.Currency,
	}
	agreements, err := p.partners.ListAgreements(ctx, royalty.AgreementActive)
	if err != nil {
		return nil, summary, fmt.Errorf("settlement processor: load agreements: %w", err)
	}
	eligible := eligibleAgreements(agreements, cycle)
	items, err := p.cycles.ListLineItems(ctx, cycle.ID)
	if err != nil {
		return nil, summary, fmt.Errorf("settlement processor: load line items: %w", err)
	}
	byPartner := make(map[string][]royalty.RoyaltyLineItem)
	for _, item := range items {
		byPartner[item.PartnerCode] = append(byPartner[item.PartnerCode], item)
	}

	out := make([]partnerSettlement, 0, len(eligible))
	for _, agreement := range eligible {
		summary.AgreementsProcessed++
		partnerItems := byPartner[agreement.PartnerCode]
		if len(partnerItems) == 0 {
			summary.Skipped = append(summary.Skipped, agreement.PartnerCode)
			continue
		}
		partner, err := p.partners.GetPartner(ctx, agreement.PartnerCode)
		if err != nil {
			return nil, summary, fmt.Errorf("settlement processor: load partner %s: %w", agreement.PartnerCode, err)
		}
		if partner == nil {
			partner = &royalty.PartnerOrganization{Code: agreement.PartnerCode, Name: agreement.PartnerCode}
		}
		remittance := royalty.PartnerRemittance{
			ID:          audit.NewID(),
			PartnerCode: agreement.PartnerCode,
			CycleID:     cycle.ID,
			AgreementID: agreement.ID,
			Currency:    cycle.Currency,
			Gross:       decimal.Zero,
			AdminFee:    decimal.Zero,
			NetPayable:  decimal.Zero,
			Status:      royalty.RemittancePending,
		}
		for _, item := range partnerItems {
			remittance.Gross = remittance.Gross.Add(item.Gross)
			remittance.AdminFee = remittance.AdminFee.Add(item.AdminFee)
			remittance.NetPayable = remittance.NetPayable.Add(item.Net)
		}
		summary.TotalPayable = summary.TotalPayable.Add(remittance.NetPayable)
		out = append(out, partnerSettlement{
			agreement:  agreement,
			partner:    *partner,
			remittance: remittance,
			items:      partnerItems,
		})
	}
	return out, summary, nil
}

func (p *SettlementProcessor) cycleUsage(ctx context.Context, cycle royalty.RoyaltyCycle) ([]royalty.CycleUsage, error) {
	from, to := cycle.Window()
	usage, err := p.usage.ListCycleUsage(ctx, cycle.Territory, from, to)
	if err != nil {
		return nil, fmt.Errorf("settlement processor: load usage: %w", err)
	}
	return usage, nil
}

// reportData builds the partner's usage rows. Each row nets the admin fee of
// its line item.
func (p *SettlementProcessor) reportData(ctx context.Context, cycle royalty.RoyaltyCycle, s partnerSettlement, usage []royalty.CycleUsage, generatedAt time.Time) (report.ReportData, error) {
	durations := 0
	usages := 0
	for _, item := range s.items {
		durations += item.TotalDurationSeconds
		usages += item.UsageCount
	}
	rows := make([]report.UsageRow, 0)
	byKey := make(map[string][]int)
	for _, u := range usage {
		a := u.Attribution
		if a.OriginPartnerCode != s.partner.Code || !u.Calculated {
			continue
		}
		amount, _, err := usageAmount(ctx, p.converter, u, cycle.Currency)
		if err != nil {
			return report.ReportData{}, err
		}
		key := royalty.RecordingKey(a.ExternalRecordingID, a.ExternalWorkID)
		byKey[key] = append(byKey[key], len(rows))
		rows = append(rows, report.UsageRow{
			PlayLogID:           a.PlayLogID,
			StationID:           a.StationID,
			PlayedAt:            a.PlayedAt,
			Title:               u.Title,
			ISRC:                u.ISRC,
			ISWC:                u.ISWC,
			ExternalRecordingID: a.ExternalRecordingID,
			ExternalWorkID:      a.ExternalWorkID,
			MatchMethod:         a.MatchMethod,
			DurationSeconds:     a.DurationSeconds,
			Gross:               royalty.RoundMoney(amount, cycle.Currency),
		})
	}
	// Rows of one line item sum exactly to its gross and admin fee.
	for _, item := range s.items {
		idx := byKey[item.RecordingKey]
		if len(idx) == 0 {
			continue
		}
		sum := decimal.Zero
		largest := idx[0]
		for _, i := range idx {
			sum = sum.Add(rows[i].Gross)
			if rows[i].Gross.GreaterThan(rows[largest].Gross) {
				largest = i
			}
		}
		rows[largest].Gross = rows[largest].Gross.Add(item.Gross.Sub(sum))

		weights := make([]decimal.Decimal, len(idx))
		for n, i := range idx {
			weights[n] = rows[i].Gross
		}
		fees := spread(item.AdminFee, weights, cycle.Currency)
		for n, i := range idx {
			rows[i].AdminFee = fees[n]
			rows[i].Net = rows[i].Gross.Sub(fees[n])
		}
	}
	report.SortRows(rows)
	return report.ReportData{
		ReportID:      cycle.ID + "/" + s.partner.Code,
		SenderPartyID: p.sender.PartyID,
		SenderName:    p.sender.Name,
		Partner:       s.partner,
		CycleID:       cycle.ID,
		CycleName:     cycle.Name,
		Territory:     cycle.Territory,
		AgreementID:   s.agreement.ID,
		Currency:      cycle.Currency,
		PeriodStart:   cycle.PeriodStart,
		PeriodEnd:     cycle.PeriodEnd,
		GeneratedAt:   generatedAt,
		Rows:          rows,
		Totals: report.Totals{
			UsageCount:      usages,
			DurationSeconds: durations,
			Gross:           s.remittance.Gross,
			AdminFee:        s.remittance.AdminFee,
			Net:             s.remittance.NetPayable,
		},
	}, nil
}

func (p *SettlementProcessor) export(ctx context.Context, cycle royalty.RoyaltyCycle, partnerCode string, format royalty.ReportFormat, data report.ReportData) (royalty.ReportExport, error) {
	start := time.Now()
	rendered, err := p.reports.Render(format, data)
	if err != nil {
		metrics.ObserveReportExport(string(format), metrics.ResultError, time.Since(start))
		return royalty.ReportExport{}, err
	}
	id := audit.NewID()
	key := fmt.Sprintf("%s/%s/%s_%s_%s_%s.%s",
		cycle.ID, partnerCode, partnerCode,
		cycle.PeriodStart.UTC().Format("20060102"), cycle.PeriodEnd.UTC().Format("20060102"),
		id, rendered.Extension)
	location, err := p.store.Put(ctx, key, rendered.Body, rendered.ContentType)
	if err != nil {
		metrics.ObserveReportExport(string(format), metrics.ResultError, time.Since(start))
		return royalty.ReportExport{}, fmt.Errorf("settlement processor: store report %s: %w", key, err)
	}
	metrics.ObserveReportExport(string(format), metrics.ResultSuccess, time.Since(start))
	return royalty.ReportExport{
		ID:          id,
		PartnerCode: partnerCode,
		CycleID:     cycle.ID,
		Format:      format,
		Location:    location,
		Checksum:    rendered.Checksum,
		SizeBytes:   int64(len(rendered.Body)),
		GeneratedAt: data.GeneratedAt,
	}, nil
}

// spread divides total across weights by largest remainder. Shares are in
// the currency minor unit and sum to total.
func spread(total decimal.Decimal, weights []decimal.Decimal, currency string) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(weights))
	if len(weights) == 0 {
		return shares
	}
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	if !sum.IsPositive() {
		weights = make([]decimal.Decimal, len(weights))
		for i := range weights {
			weights[i] = decimal.NewFromInt(1)
		}
		sum = decimal.NewFromInt(int64(len(weights)))
	}
	places := royalty.MinorUnits(currency)
	remainders := make([]decimal.Decimal, len(weights))
	allotted := decimal.Zero
	for i, w := range weights {
		exact := total.Mul(w).DivRound(sum, places+8)
		shares[i] = exact.Truncate(places)
		remainders[i] = exact.Sub(shares[i])
		allotted = allotted.Add(shares[i])
	}
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].Abs().GreaterThan(remainders[order[b]].Abs())
	})
	unit := decimal.New(1, -places)
	if total.IsNegative() {
		unit = unit.Neg()
	}
	left := total.Sub(allotted)
	for n := 0; !left.IsZero() && n < len(order); n++ {
		i := order[n]
		shares[i] = shares[i].Add(unit)
		left = left.Sub(unit)
	}
	if !left.IsZero() {
		shares[order[0]] = shares[order[0]].Add(left)
	}
	return shares
}

// removeObjects deletes report files that no export row references, either
// because the settlement rolled back or because a newer one replaced them.
// Failures leave orphaned files and are only logged.
func (p *SettlementProcessor) removeObjects(ctx context.Context, exports []royalty.ReportExport, reason string) {
	cleanup := context.WithoutCancel(ctx)
	for _, e := range exports {
		if e.Location == "" {
			continue
		}
		if err := p.store.Delete(cleanup, e.Location); err != nil {
			p.logger.Warn("report cleanup failed",
				zap.String("event", "cycle.settle"),
				zap.String("reason", reason),
				zap.String("location", e.Location),
				zap.Error(err),
			)
		}
	}
}

// Preview renders a partner report for a locked cycle without storing it.
func (p *SettlementProcessor) Preview(ctx context.Context, cycleID, partnerCode string, format royalty.ReportFormat) (report.Rendered, error) {
	cycle, err := p.lockedCycle(ctx, cycleID, "preview report for", royalty.CycleInvoiced, royalty.CycleRemitted)
	if err != nil {
		return report.Rendered{}, err
	}
	settlements, _, err := p.buildRemittances(ctx, *cycle)
	if err != nil {
		return report.Rendered{}, err
	}
	for _, s := range settlements {
		if s.partner.Code != partnerCode {
			continue
		}
		usage, err := p.cycleUsage(ctx, *cycle)
		if err != nil {
			return report.Rendered{}, err
		}
		if format == "" {
			format = s.partner.PreferredFormat
		}
		data, err := p.reportData(ctx, *cycle, s, usage, p.clock.Now().UTC())
		if err != nil {
			return report.Rendered{}, err
		}
		return p.reports.Render(format, data)
	}
	return report.Rendered{}, fmt.Errorf("%w: %s has no usage in cycle %s", royalty.ErrPartnerNotFound, partnerCode, cycleID)
}

// Remittances lists a cycle's remittances.
func (p *SettlementProcessor) Remittances(ctx context.Context, cycleID string) ([]royalty.PartnerRemittance, error) {
	return p.settlements.ListRemittances(ctx, cycleID)
}

// Exports lists a cycle's report exports.
func (p *SettlementProcessor) Exports(ctx context.Context, cycleID string) ([]royalty.ReportExport, error) {
	return p.settlements.ListExports(ctx, cycleID)
}

// VerifyExport re-reads a stored report and compares its SHA-256 with the
// recorded checksum.
func (p *SettlementProcessor) VerifyExport(ctx context.Context, exportID string) (*royalty.ReportExport, error) {
	export, _, err := p.Download(ctx, exportID)
	return export, err
}

// Download returns a stored report after verifying its checksum.
func (p *SettlementProcessor) Download(ctx context.Context, exportID string) (*royalty.ReportExport, []byte, error) {
	if exportID == "" {
		return nil, nil, royalty.ErrEmptyID
	}
	export, err := p.settlements.GetExport(ctx, exportID)
	if err != nil {
		return nil, nil, err
	}
	if export == nil {
		return nil, nil, fmt.Errorf("%w: %s", royalty.ErrExportNotFound, exportID)
	}
	body, err := p.store.Get(ctx, export.Location)
	if err != nil {
		return export, nil, fmt.Errorf("settlement processor: read export %s: %w", exportID, err)
	}
	if got := report.Checksum(body); got != export.Checksum {
		p.logger.Error("export checksum mismatch",
			zap.String("export_id", exportID),
			zap.String("expected", export.Checksum),
			zap.String("actual", got),
		)
		return export, nil, fmt.Errorf("%w: %s", royalty.ErrChecksumMismatch, exportID)
	}
	return export, body, nil
}

func (p *SettlementProcessor) lockedCycle(ctx context.Context, cycleID, op string, also ...royalty.CycleStatus) (*royalty.RoyaltyCycle, error) {
	if cycleID == "" {
		return nil, royalty.ErrEmptyID
	}
	cycle, err := p.cycles.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, fmt.Errorf("%w: %s", royalty.ErrCycleNotFound, cycleID)
	}
	expected := append([]royalty.CycleStatus{royalty.CycleLocked}, also...)
	for _, status := range expected {
		if cycle.Status == status {
			return cycle, nil
		}
	}
	return nil, &royalty.InvalidCycleStateError{
		CycleID:   cycle.ID,
		Operation: op,
		Status:    cycle.Status,
		Expected:  expected,
	}
}

func (p *SettlementProcessor) publish(ctx context.Context, event any) {
	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Warn("event publish failed", zap.String("event_type", fmt.Sprintf("%T", event)), zap.Error(err))
	}
}

// eligibleAgreements returns the latest active agreement per partner in the
// cycle territory that is in force at some point of the cycle period,
// ordered by partner code.
func eligibleAgreements(agreements []royalty.ReciprocalAgreement, cycle royalty.RoyaltyCycle) []royalty.ReciprocalAgreement {
	latest := make(map[string]royalty.ReciprocalAgreement)
	for _, a := range agreements {
		if a.Status != royalty.AgreementActive || a.Territory != cycle.Territory {
			continue
		}
		if !a.Overlaps(cycle.PeriodStart, cycle.PeriodEnd) {
			continue
		}
		current, ok := latest[a.PartnerCode]
		if !ok || a.EffectiveDate.After(current.EffectiveDate) ||
			(a.EffectiveDate.Equal(current.EffectiveDate) && a.ID < current.ID) {
			latest[a.PartnerCode] = a
		}
	}
	out := make([]royalty.ReciprocalAgreement, 0, len(latest))
	for _, a := range latest {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartnerCode < out[j].PartnerCode })
	return out
}

// latestAgreement returns the partner's eligible agreement for the cycle.
func latestAgreement(agreements []royalty.ReciprocalAgreement, partnerCode string, cycle royalty.RoyaltyCycle) (royalty.ReciprocalAgreement, bool) {
	for _, a := range eligibleAgreements(agreements, cycle) {
		if a.PartnerCode == partnerCode {
			return a, true
		}
	}
	return royalty.ReciprocalAgreement{}, false
}

// usageAmount returns the play royalty in currency at full precision and a
// warning when no exchange rate was available.
func usageAmount(ctx context.Context, converter *CurrencyConverter, u royalty.CycleUsage, currency string) (decimal.Decimal, string, error) {
	from := royalty.NormalizeCurrency(u.RoyaltyCurrency)
	if from == "" || from == royalty.NormalizeCurrency(currency) {
		return u.RoyaltyAmount, "", nil
	}
	conv, err := converter.Convert(ctx, u.RoyaltyAmount, from, currency, u.Attribution.PlayedAt)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("convert play %s: %w", u.Attribution.PlayLogID, err)
	}
	if conv.Warning != nil {
		return conv.Amount, conv.Warning.Error(), nil
	}
	return conv.Amount, "", nil
}
