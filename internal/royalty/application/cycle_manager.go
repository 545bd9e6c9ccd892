package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"royalty-engine/internal/audit"
	"royalty-engine/internal/observability/metrics"
	royalty "royalty-engine/internal/royalty/domain"
)

// OpenCycleInput describes a new royalty cycle.
type OpenCycleInput struct {
	Name                   string
	Territory              string
	Currency               string
	PeriodStart            time.Time
	PeriodEnd              time.Time
	DefaultAdminFeePercent *decimal.Decimal
}

// LockSummary reports what a cycle lock aggregated.
type LockSummary struct {
	CycleID      string
	LineItems    int
	UsageCount   int
	Uncalculated int
	Gross        decimal.Decimal
	AdminFee     decimal.Decimal
	Net          decimal.Decimal
	Currency     string
	Warnings     []string
}

// CycleManager owns the cycle state machine open, locked, invoiced, remitted.
type CycleManager struct {
	cycles     royalty.CycleRepository
	usage      royalty.UsageRepository
	partners   royalty.PartnerRepository
	converter  *CurrencyConverter
	settlement *SettlementProcessor
	locker     CycleLocker
	audit      audit.Logger
	events     EventPublisher
	defaultFee decimal.Decimal
	clock      Clock
	logger     *zap.Logger
}

// CycleOption customizes a CycleManager.
type CycleOption func(*CycleManager)

// WithCycleLocker sets the per-cycle single-writer lock.
func WithCycleLocker(locker CycleLocker) CycleOption {
	return func(m *CycleManager) {
		if locker != nil {
			m.locker = locker
		}
	}
}

// WithCycleAudit sets the audit logger.
func WithCycleAudit(logger audit.Logger) CycleOption {
	return func(m *CycleManager) {
		if logger != nil {
			m.audit = logger
		}
	}
}

// WithCycleEvents sets the event publisher.
func WithCycleEvents(events EventPublisher) CycleOption {
	return func(m *CycleManager) {
		if events != nil {
			m.events = events
		}
	}
}

// WithDefaultAdminFee sets the fee used by Open when the input has none.
func WithDefaultAdminFee(pct decimal.Decimal) CycleOption {
	return func(m *CycleManager) {
		m.defaultFee = pct
	}
}

// WithCycleClock sets the clock.
func WithCycleClock(clock Clock) CycleOption {
	return func(m *CycleManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithCycleLogger sets the logger.
func WithCycleLogger(logger *zap.Logger) CycleOption {
	return func(m *CycleManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewCycleManager constructs the manager.
func NewCycleManager(
	cycles royalty.CycleRepository,
	usage royalty.UsageRepository,
	partners royalty.PartnerRepository,
	converter *CurrencyConverter,
	settlement *SettlementProcessor,
	opts ...CycleOption,
) (*CycleManager, error) {
	if cycles == nil {
		return nil, errors.New("cycle manager: nil cycle repository")
	}
	if usage == nil {
		return nil, errors.New("cycle manager: nil usage repository")
	}
	if partners == nil {
		return nil, errors.New("cycle manager: nil partner repository")
	}
	if converter == nil {
		return nil, errors.New("cycle manager: nil currency converter")
	}
	if settlement == nil {
		return nil, errors.New("cycle manager: nil settlement processor")
	}
	m := &CycleManager{
		cycles:     cycles,
		usage:      usage,
		partners:   partners,
		converter:  converter,
		settlement: settlement,
		audit:      audit.Nop{},
		events:     nopPublisher{},
		defaultFee: decimal.Zero,
		clock:      SystemClock{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.locker == nil {
		return nil, errors.New("cycle manager: nil cycle locker")
	}
	return m, nil
}

// Open creates a cycle in the open state.
func (m *CycleManager) Open(ctx context.Context, in OpenCycleInput, actor audit.ActorID) (*royalty.RoyaltyCycle, error) {
	territory := strings.ToUpper(strings.TrimSpace(in.Territory))
	if territory == "" {
		return nil, fmt.Errorf("%w: territory", royalty.ErrEmptyID)
	}
	currency := royalty.NormalizeCurrency(in.Currency)
	if len(currency) != 3 {
		return nil, fmt.Errorf("cycle manager: invalid currency %q", in.Currency)
	}
	start := royalty.StartOfDayUTC(in.PeriodStart)
	end := royalty.StartOfDayUTC(in.PeriodEnd)
	if in.PeriodStart.IsZero() || in.PeriodEnd.IsZero() || end.Before(start) {
		return nil, royalty.ErrInvalidPeriod
	}
	fee := m.defaultFee
	if in.DefaultAdminFeePercent != nil {
		fee = *in.DefaultAdminFeePercent
	}
	if !royalty.ValidPercent(fee) {
		return nil, fmt.Errorf("%w: admin fee %s", royalty.ErrInvalidPercent, fee.String())
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = fmt.Sprintf("%s %s..%s", territory, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	cycle := &royalty.RoyaltyCycle{
		ID:                     audit.NewID(),
		Name:                   name,
		Territory:              territory,
		Currency:               currency,
		PeriodStart:            start,
		PeriodEnd:              end,
		Status:                 royalty.CycleOpen,
		DefaultAdminFeePercent: fee,
		CreatedAt:              m.clock.Now().UTC(),
	}
	if err := m.cycles.CreateCycle(ctx, cycle); err != nil {
		return nil, err
	}
	m.logger.Info("cycle opened",
		zap.String("event", "cycle.open"),
		zap.String("cycle_id", cycle.ID),
		zap.String("territory", territory),
		zap.String("actor", string(actor)),
	)
	return cycle, nil
}

// Get returns a cycle or ErrCycleNotFound.
func (m *CycleManager) Get(ctx context.Context, cycleID string) (*royalty.RoyaltyCycle, error) {
	if cycleID == "" {
		return nil, royalty.ErrEmptyID
	}
	cycle, err := m.cycles.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, fmt.Errorf("%w: %s", royalty.ErrCycleNotFound, cycleID)
	}
	return cycle, nil
}

// List returns cycles, optionally filtered by status.
func (m *CycleManager) List(ctx context.Context, status royalty.CycleStatus) ([]royalty.RoyaltyCycle, error) {
	return m.cycles.ListCycles(ctx, status)
}

// LineItems returns the cycle's aggregated line items.
func (m *CycleManager) LineItems(ctx context.Context, cycleID string) ([]royalty.RoyaltyLineItem, error) {
	if _, err := m.Get(ctx, cycleID); err != nil {
		return nil, err
	}
	return m.cycles.ListLineItems(ctx, cycleID)
}

// Lock aggregates the period's attributed usage into line items keyed by
// partner and recording and moves the cycle to locked in one transaction.
// Locking a cycle that is not open is rejected.
func (m *CycleManager) Lock(ctx context.Context, cycleID string, actor audit.ActorID) (LockSummary, error) {
	start := time.Now()
	summary, err := m.withCycleLock(ctx, cycleID, func() (LockSummary, error) {
		return m.lock(ctx, cycleID, actor)
	})
	status := metrics.ResultSuccess
	if err != nil {
		status = metrics.ResultError
	}
	metrics.ObserveCycleLock(status, time.Since(start))
	return summary, err
}

func (m *CycleManager) lock(ctx context.Context, cycleID string, actor audit.ActorID) (LockSummary, error) {
	cycle, err := m.Get(ctx, cycleID)
	if err != nil {
		return LockSummary{}, err
	}
	if cycle.Status != royalty.CycleOpen {
		return LockSummary{}, &royalty.InvalidCycleStateError{
			CycleID:   cycle.ID,
			Operation: "lock",
			Status:    cycle.Status,
			Expected:  []royalty.CycleStatus{royalty.CycleOpen},
		}
	}

	from, to := cycle.Window()
	usage, err := m.usage.ListCycleUsage(ctx, cycle.Territory, from, to)
	if err != nil {
		return LockSummary{}, fmt.Errorf("cycle manager: load usage: %w", err)
	}
	agreements, err := m.partners.ListAgreements(ctx, royalty.AgreementActive)
	if err != nil {
		return LockSummary{}, fmt.Errorf("cycle manager: load agreements: %w", err)
	}
	fees := newFeeResolver(m.partners, *cycle, agreements)
	items, summary, err := aggregateLineItems(ctx, *cycle, usage, m.converter, fees)
	if err != nil {
		return LockSummary{}, err
	}

	now := m.clock.Now().UTC()
	if err := m.cycles.CommitLock(ctx, cycle.ID, items, now); err != nil {
		if errors.Is(err, royalty.ErrInvalidCycleState) {
			return LockSummary{}, err
		}
		return LockSummary{}, royalty.NewPersistenceError("lock cycle "+cycle.ID, err)
	}

	m.writeAudit(ctx, audit.Entry{
		Type:              audit.TypeCycle,
		CycleID:           cycle.ID,
		TotalAmount:       summary.Gross,
		Currency:          cycle.Currency,
		DistributionCount: len(items),
		Metadata: audit.MustMetadata(map[string]any{
			"line_items":   summary.LineItems,
			"usage_count":  summary.UsageCount,
			"uncalculated": summary.Uncalculated,
			"admin_fee":    summary.AdminFee.String(),
			"net":          summary.Net.String(),
		}),
		Errors:    summary.Warnings,
		Actor:     actor,
		CreatedAt: now,
	})
	m.publish(ctx, CycleLocked{
		CycleID:    cycle.ID,
		Territory:  cycle.Territory,
		LineItems:  len(items),
		Gross:      summary.Gross,
		Net:        summary.Net,
		Currency:   cycle.Currency,
		OccurredAt: now,
	})
	m.logger.Info("cycle locked",
		zap.String("event", "cycle.lock"),
		zap.String("cycle_id", cycle.ID),
		zap.Int("line_items", len(items)),
		zap.Int("uncalculated", summary.Uncalculated),
		zap.String("actor", string(actor)),
	)
	return summary, nil
}

// Settle runs reciprocal settlement for a locked cycle.
func (m *CycleManager) Settle(ctx context.Context, cycleID string, actor audit.ActorID) (royalty.SettlementSummary, error) {
	return m.withCycleSettlement(ctx, cycleID, func() (royalty.SettlementSummary, error) {
		return m.settlement.ProcessCycle(ctx, cycleID, actor)
	})
}

// MarkInvoiced records that remittances for the cycle were dispatched.
func (m *CycleManager) MarkInvoiced(ctx context.Context, cycleID string, actor audit.ActorID) (*royalty.RoyaltyCycle, error) {
	return m.transition(ctx, cycleID, royalty.CycleLocked, royalty.CycleInvoiced, "invoice", actor)
}

// MarkRemitted records that remittances for the cycle were settled.
func (m *CycleManager) MarkRemitted(ctx context.Context, cycleID string, actor audit.ActorID) (*royalty.RoyaltyCycle, error) {
	return m.transition(ctx, cycleID, royalty.CycleInvoiced, royalty.CycleRemitted, "remit", actor)
}

// Reset reopens a locked cycle, discarding its line items, remittances and
// exports. It is the only backward transition and is audited.
func (m *CycleManager) Reset(ctx context.Context, cycleID string, actor audit.ActorID, reason string) (*royalty.RoyaltyCycle, error) {
	release, err := m.locker.Acquire(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	defer release()

	cycle, err := m.Get(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status != royalty.CycleLocked {
		return nil, &royalty.InvalidCycleStateError{
			CycleID:   cycle.ID,
			Operation: "reset",
			Status:    cycle.Status,
			Expected:  []royalty.CycleStatus{royalty.CycleLocked},
		}
	}
	if err := m.cycles.ResetCycle(ctx, cycleID); err != nil {
		if errors.Is(err, royalty.ErrInvalidCycleState) {
			return nil, err
		}
		return nil, royalty.NewPersistenceError("reset cycle "+cycleID, err)
	}
	m.writeAudit(ctx, audit.Entry{
		Type:      audit.TypeRecalculation,
		CycleID:   cycleID,
		Currency:  cycle.Currency,
		Metadata:  audit.MustMetadata(map[string]string{"operation": "reset", "reason": reason, "previous_status": string(cycle.Status)}),
		Actor:     actor,
		CreatedAt: m.clock.Now().UTC(),
	})
	m.logger.Warn("cycle reset",
		zap.String("event", "cycle.reset"),
		zap.String("cycle_id", cycleID),
		zap.String("reason", reason),
		zap.String("actor", string(actor)),
	)
	return m.Get(ctx, cycleID)
}

func (m *CycleManager) transition(ctx context.Context, cycleID string, from, to royalty.CycleStatus, op string, actor audit.ActorID) (*royalty.RoyaltyCycle, error) {
	release, err := m.locker.Acquire(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	defer release()

	cycle, err := m.Get(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status != from {
		return nil, &royalty.InvalidCycleStateError{
			CycleID:   cycle.ID,
			Operation: op,
			Status:    cycle.Status,
			Expected:  []royalty.CycleStatus{from},
		}
	}
	if err := m.cycles.TransitionCycle(ctx, cycleID, from, to, m.clock.Now().UTC()); err != nil {
		return nil, err
	}
	m.logger.Info("cycle transitioned",
		zap.String("event", "cycle."+op),
		zap.String("cycle_id", cycleID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", string(actor)),
	)
	return m.Get(ctx, cycleID)
}

func (m *CycleManager) withCycleLock(ctx context.Context, cycleID string, fn func() (LockSummary, error)) (LockSummary, error) {
	release, err := m.locker.Acquire(ctx, cycleID)
	if err != nil {
		return LockSummary{}, err
	}
	defer release()
	return fn()
}

func (m *CycleManager) withCycleSettlement(ctx context.Context, cycleID string, fn func() (royalty.SettlementSummary, error)) (royalty.SettlementSummary, error) {
	release, err := m.locker.Acquire(ctx, cycleID)
	if err != nil {
		return royalty.SettlementSummary{}, err
	}
	defer release()
	return fn()
}

func (m *CycleManager) writeAudit(ctx context.Context, entry audit.Entry) {
	if err := m.audit.Log(ctx, entry); err != nil {
		m.logger.Warn("audit write failed", zap.String("cycle_id", entry.CycleID), zap.Error(err))
	}
}

func (m *CycleManager) publish(ctx context.Context, event any) {
	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.Warn("event publish failed", zap.String("event_type", fmt.Sprintf("%T", event)), zap.Error(err))
	}
}

type lineItemKey struct {
	partner   string
	recording string
}

// aggregateLineItems sums calculated usage per partner and recording in the
// cycle currency and nets each group's admin fee.
func aggregateLineItems(
	ctx context.Context,
	cycle royalty.RoyaltyCycle,
	usage []royalty.CycleUsage,
	converter *CurrencyConverter,
	fees *feeResolver,
) ([]royalty.RoyaltyLineItem, LockSummary, error) {
	summary := LockSummary{
		CycleID:  cycle.ID,
		Gross:    decimal.Zero,
		AdminFee: decimal.Zero,
		Net:      decimal.Zero,
		Currency: cycle.Currency,
	}
	groups := make(map[lineItemKey]*royalty.RoyaltyLineItem)
	warned := make(map[string]struct{})
	for _, u := range usage {
		if !u.Calculated {
			summary.Uncalculated++
			continue
		}
		amount, warning, err := usageAmount(ctx, converter, u, cycle.Currency)
		if err != nil {
			return nil, LockSummary{}, err
		}
		if warning != "" {
			if _, ok := warned[warning]; !ok {
				warned[warning] = struct{}{}
				summary.Warnings = append(summary.Warnings, warning)
			}
		}
		a := u.Attribution
		key := lineItemKey{partner: a.OriginPartnerCode, recording: royalty.RecordingKey(a.ExternalRecordingID, a.ExternalWorkID)}
		item, ok := groups[key]
		if !ok {
			item = &royalty.RoyaltyLineItem{
				CycleID:             cycle.ID,
				PartnerCode:         key.partner,
				RecordingKey:        key.recording,
				ExternalRecordingID: a.ExternalRecordingID,
				ExternalWorkID:      a.ExternalWorkID,
				Title:               u.Title,
				ISRC:                u.ISRC,
				ISWC:                u.ISWC,
				Gross:               decimal.Zero,
				Currency:            cycle.Currency,
			}
			groups[key] = item
		}
		item.UsageCount++
		item.TotalDurationSeconds += a.DurationSeconds
		item.Gross = item.Gross.Add(amount)
		summary.UsageCount++
	}

	keys := make([]lineItemKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].partner != keys[j].partner {
			return keys[i].partner < keys[j].partner
		}
		return keys[i].recording < keys[j].recording
	})

	items := make([]royalty.RoyaltyLineItem, 0, len(keys))
	for _, key := range keys {
		item := groups[key]
		pct, err := fees.percent(ctx, key.partner)
		if err != nil {
			return nil, LockSummary{}, err
		}
		item.ID = audit.NewID()
		item.AdminFeePercent = pct
		item.Gross = royalty.RoundMoney(item.Gross, cycle.Currency)
		item.AdminFee = royalty.RoundMoney(royalty.PercentOf(item.Gross, pct), cycle.Currency)
		item.Net = item.Gross.Sub(item.AdminFee)
		summary.Gross = summary.Gross.Add(item.Gross)
		summary.AdminFee = summary.AdminFee.Add(item.AdminFee)
		summary.Net = summary.Net.Add(item.Net)
		items = append(items, *item)
	}
	summary.LineItems = len(items)
	return items, summary, nil
}

// feeResolver picks a partner's admin fee for a cycle: the covering
// agreement's override, then the partner default, then the cycle default.
type feeResolver struct {
	partners   royalty.PartnerRepository
	cycle      royalty.RoyaltyCycle
	agreements []royalty.ReciprocalAgreement
	cache      map[string]decimal.Decimal
}

func newFeeResolver(partners royalty.PartnerRepository, cycle royalty.RoyaltyCycle, agreements []royalty.ReciprocalAgreement) *feeResolver {
	return &feeResolver{partners: partners, cycle: cycle, agreements: agreements, cache: make(map[string]decimal.Decimal)}
}

func (f *feeResolver) percent(ctx context.Context, partnerCode string) (decimal.Decimal, error) {
	if pct, ok := f.cache[partnerCode]; ok {
		return pct, nil
	}
	pct := f.cycle.DefaultAdminFeePercent
	agreement, hasAgreement := latestAgreement(f.agreements, partnerCode, f.cycle)
	if hasAgreement && agreement.AdminFeePercentOverride != nil {
		pct = *agreement.AdminFeePercentOverride
	} else if partnerCode != "" {
		partner, err := f.partners.GetPartner(ctx, partnerCode)
		if err != nil {
			return decimal.Zero, fmt.Errorf("load partner %s: %w", partnerCode, err)
		}
		if partner != nil {
			pct = partner.DefaultAdminFeePercent
		}
	}
	if !royalty.ValidPercent(pct) {
		return decimal.Zero, fmt.Errorf("%w: admin fee %s for partner %s", royalty.ErrInvalidPercent, pct.String(), partnerCode)
	}
	f.cache[partnerCode] = pct
	return pct, nil
}
