package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"royalty-engine/internal/observability/metrics"
	royalty "royalty-engine/internal/royalty/domain"
	"royalty-engine/internal/royalty/infrastructure/memory"
)

const defaultCalculationWorkers = 4

// Calculator turns plays into gross amounts and per-payee distributions.
type Calculator struct {
	stations royalty.StationRepository
	tracks   royalty.TrackRepository
	partners royalty.PartnerRepository
	rateRepo royalty.RateRepository
	fxRepo   royalty.ExchangeRateRepository

	resolver  *RateResolver
	converter *CurrencyConverter
	splits    SplitResolver

	currency   string
	classifier StationClassifier
	location   *time.Location
	workers    int
	clock      Clock
	logger     *zap.Logger

	// populated by Snapshot; read-only afterwards
	agreements   []royalty.ReciprocalAgreement
	partnerCache map[string]*royalty.PartnerOrganization
	snapshot     bool
}

// CalculatorOption customizes a Calculator.
type CalculatorOption func(*Calculator)

// WithCalculatorLogger sets the logger.
func WithCalculatorLogger(logger *zap.Logger) CalculatorOption {
	return func(c *Calculator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCalculatorClock sets the clock used for distribution timestamps.
func WithCalculatorClock(clock Clock) CalculatorOption {
	return func(c *Calculator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithClassifier replaces the station classifier.
func WithClassifier(classifier StationClassifier) CalculatorOption {
	return func(c *Calculator) {
		if classifier != nil {
			c.classifier = classifier
		}
	}
}

// WithDefaultLocation sets the zone used for stations without a timezone.
func WithDefaultLocation(loc *time.Location) CalculatorOption {
	return func(c *Calculator) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithWorkers bounds batch parallelism.
func WithWorkers(n int) CalculatorOption {
	return func(c *Calculator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// NewCalculator constructs a calculator emitting amounts in currency.
func NewCalculator(
	stations royalty.StationRepository,
	tracks royalty.TrackRepository,
	partners royalty.PartnerRepository,
	rates royalty.RateRepository,
	exchangeRates royalty.ExchangeRateRepository,
	currency string,
	opts ...CalculatorOption,
) (*Calculator, error) {
	if stations == nil {
		return nil, errors.New("royalty calculator: nil station repository")
	}
	if tracks == nil {
		return nil, errors.New("royalty calculator: nil track repository")
	}
	if partners == nil {
		return nil, errors.New("royalty calculator: nil partner repository")
	}
	currency = royalty.NormalizeCurrency(currency)
	if len(currency) != 3 {
		return nil, fmt.Errorf("royalty calculator: invalid currency %q", currency)
	}

	c := &Calculator{
		stations:   stations,
		tracks:     tracks,
		partners:   partners,
		rateRepo:   rates,
		fxRepo:     exchangeRates,
		splits:     NewSplitResolver(),
		currency:   currency,
		classifier: StoredClassClassifier{Fallback: NewKeywordClassifier()},
		location:   time.UTC,
		workers:    defaultCalculationWorkers,
		clock:      SystemClock{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	resolver, err := NewRateResolver(rates, c.classifier, NewTimeBucketer(c.location))
	if err != nil {
		return nil, fmt.Errorf("royalty calculator: %w", err)
	}
	converter, err := NewCurrencyConverter(exchangeRates)
	if err != nil {
		return nil, fmt.Errorf("royalty calculator: %w", err)
	}
	c.resolver = resolver
	c.converter = converter
	return c, nil
}

// Currency returns the settlement currency.
func (c *Calculator) Currency() string { return c.currency }

// Snapshot returns a calculator that reads rates, exchange rates, agreements
// and partners from an in-memory copy taken now. Sources that cannot list
// their rows are used live.
func (c *Calculator) Snapshot(ctx context.Context) (*Calculator, error) {
	if c.snapshot {
		return c, nil
	}
	clone := *c
	if catalog, ok := c.rateRepo.(royalty.RateCatalog); ok {
		table, err := memory.LoadRateTable(ctx, catalog)
		if err != nil {
			return nil, err
		}
		clone.rateRepo = table
		clone.resolver = c.resolver.WithRates(table)
	}
	if catalog, ok := c.fxRepo.(royalty.ExchangeRateCatalog); ok {
		table, err := memory.LoadExchangeRateTable(ctx, catalog)
		if err != nil {
			return nil, err
		}
		clone.fxRepo = table
		clone.converter = c.converter.WithRates(table)
	}

	agreements, err := c.partners.ListAgreements(ctx, royalty.AgreementActive)
	if err != nil {
		return nil, fmt.Errorf("royalty calculator: snapshot agreements: %w", err)
	}
	cache := make(map[string]*royalty.PartnerOrganization)
	for _, agreement := range agreements {
		if _, ok := cache[agreement.PartnerCode]; ok {
			continue
		}
		partner, err := c.partners.GetPartner(ctx, agreement.PartnerCode)
		if err != nil {
			return nil, fmt.Errorf("royalty calculator: snapshot partner %s: %w", agreement.PartnerCode, err)
		}
		cache[agreement.PartnerCode] = partner
	}
	clone.agreements = agreements
	clone.partnerCache = cache
	clone.snapshot = true
	return &clone, nil
}

// CalculateForPlay computes the gross amount and distributions of one play.
// Failures are reported in the result's Errors and never returned.
func (c *Calculator) CalculateForPlay(ctx context.Context, play royalty.PlayLog) royalty.CalculationResult {
	start := time.Now()
	result := c.calculate(ctx, play)
	status := metrics.ResultSuccess
	if !result.OK() {
		status = metrics.ResultError
		c.logger.Warn("play calculation failed",
			zap.String("event", "play.calculate"),
			zap.String("play_log_id", play.ID),
			zap.Strings("errors", result.ErrorStrings()),
		)
	}
	metrics.ObservePlayCalculation(status, time.Since(start))
	return result
}

func (c *Calculator) calculate(ctx context.Context, play royalty.PlayLog) royalty.CalculationResult {
	result := royalty.CalculationResult{
		PlayLogID:   play.ID,
		GrossAmount: decimal.Zero,
		Currency:    c.currency,
		ProShares:   map[string]decimal.Decimal{},
	}
	result.Metadata.DurationSeconds = play.DurationSeconds
	fail := func(err error) royalty.CalculationResult {
		result.GrossAmount = decimal.Zero
		result.Distributions = nil
		result.ProShares = map[string]decimal.Decimal{}
		result.Errors = append(result.Errors, err)
		return result
	}

	if play.ID == "" {
		return fail(royalty.ErrEmptyID)
	}
	if play.DurationSeconds <= 0 {
		return fail(fmt.Errorf("%w: %d seconds", royalty.ErrInvalidDuration, play.DurationSeconds))
	}
	station, err := c.stations.GetStation(ctx, play.StationID)
	if err != nil {
		return fail(fmt.Errorf("load station %s: %w", play.StationID, err))
	}
	if station == nil {
		return fail(fmt.Errorf("%w: %s", royalty.ErrStationNotFound, play.StationID))
	}

	rate, err := c.resolver.Resolve(ctx, *station, play.PlayedAt)
	if err != nil {
		return fail(err)
	}
	result.Metadata.StationClass = rate.StationClass
	result.Metadata.TimePeriod = rate.TimePeriod
	result.Metadata.RateID = rate.RateID
	result.Metadata.BaseRatePerSecond = rate.BaseRatePerSecond
	result.Metadata.Multiplier = rate.Multiplier
	result.Metadata.RateCurrency = rate.Currency

	raw := rate.BaseRatePerSecond.Mul(decimal.NewFromInt(int64(play.DurationSeconds))).Mul(rate.Multiplier)
	raw = royalty.RoundMoney(raw, rate.Currency)
	conv, err := c.converter.Convert(ctx, raw, rate.Currency, c.currency, play.PlayedAt)
	if err != nil {
		return fail(fmt.Errorf("convert %s->%s: %w", rate.Currency, c.currency, err))
	}
	result.Metadata.ExchangeRate = conv.Rate
	result.Metadata.ExchangeSource = conv.Source
	result.Metadata.FXFallback = conv.Fallback
	if conv.Warning != nil {
		result.Metadata.Warnings = append(result.Metadata.Warnings, conv.Warning.Error())
	}
	gross := royalty.RoundMoney(conv.Amount, c.currency)

	track, err := c.tracks.GetTrack(ctx, play.TrackID)
	if err != nil {
		return fail(fmt.Errorf("load track %s: %w", play.TrackID, err))
	}
	if track == nil {
		return fail(fmt.Errorf("%w: %s", royalty.ErrTrackNotFound, play.TrackID))
	}
	splits, err := c.splits.Resolve(*track)
	if err != nil {
		return fail(err)
	}

	proPct, partnerCode, agreementID, err := c.proShare(ctx, play, *station)
	if err != nil {
		return fail(err)
	}
	result.Metadata.OriginPartnerCode = play.OriginPartnerCode
	result.Metadata.AgreementID = agreementID
	result.Metadata.ProSharePercent = proPct

	amounts, adjustment := allocate(gross, splits, c.currency)
	result.Metadata.RoundingAdjustment = adjustment
	createdAt := c.clock.Now().UTC()
	dists := make([]royalty.Distribution, 0, len(splits))
	for i, split := range splits {
		amount := amounts[i]
		proShare := decimal.Zero
		external := ""
		if partnerCode != "" && !split.PublisherRouted() && proPct.IsPositive() {
			proShare = royalty.RoundMoney(royalty.PercentOf(amount, proPct), c.currency)
			external = partnerCode
			result.ProShares[partnerCode] = result.ProShares[partnerCode].Add(proShare)
		}
		dists = append(dists, royalty.Distribution{
			PlayLogID:       play.ID,
			Recipient:       split.Recipient,
			Role:            split.Role,
			Percentage:      split.Percentage,
			GrossAmount:     amount,
			NetAmount:       amount.Sub(proShare),
			ProShare:        proShare,
			ExternalPartner: external,
			Currency:        c.currency,
			ExchangeRate:    conv.Rate,
			Routing:         split.Routing,
			CreatedAt:       createdAt,
		})
	}
	result.GrossAmount = gross
	result.Distributions = dists
	return result
}

// proShare resolves the reciprocal carve-out for a play attributed to a
// partner. It returns a zero percentage when no active agreement covers the
// play date in the station territory.
func (c *Calculator) proShare(ctx context.Context, play royalty.PlayLog, station royalty.Station) (decimal.Decimal, string, string, error) {
	if play.OriginPartnerCode == "" {
		return decimal.Zero, "", "", nil
	}
	agreements := c.agreements
	if !c.snapshot {
		var err error
		agreements, err = c.partners.ListAgreements(ctx, royalty.AgreementActive)
		if err != nil {
			return decimal.Zero, "", "", fmt.Errorf("load agreements: %w", err)
		}
	}
	agreement, ok := coveringAgreement(agreements, play.OriginPartnerCode, station.Territory, play.PlayedAt)
	if !ok {
		return decimal.Zero, "", "", nil
	}
	partner, err := c.partner(ctx, play.OriginPartnerCode)
	if err != nil {
		return decimal.Zero, "", "", err
	}
	fee := agreement.AdminFeePercent(partner)
	if !royalty.ValidPercent(fee) {
		return decimal.Zero, "", "", fmt.Errorf("%w: admin fee %s for agreement %s", royalty.ErrInvalidPercent, fee.String(), agreement.ID)
	}
	return royalty.Hundred.Sub(fee), play.OriginPartnerCode, agreement.ID, nil
}

func (c *Calculator) partner(ctx context.Context, code string) (*royalty.PartnerOrganization, error) {
	if c.snapshot {
		if partner, ok := c.partnerCache[code]; ok {
			return partner, nil
		}
	}
	partner, err := c.partners.GetPartner(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load partner %s: %w", code, err)
	}
	return partner, nil
}

// coveringAgreement picks the active agreement for partner and territory in
// force at t, preferring the latest effective date.
func coveringAgreement(agreements []royalty.ReciprocalAgreement, partner, territory string, t time.Time) (royalty.ReciprocalAgreement, bool) {
	var (
		best  royalty.ReciprocalAgreement
		found bool
	)
	for _, agreement := range agreements {
		if agreement.Status != royalty.AgreementActive || agreement.PartnerCode != partner {
			continue
		}
		if agreement.Territory != "" && territory != "" && agreement.Territory != territory {
			continue
		}
		if !agreement.CoversAt(t) {
			continue
		}
		if !found || agreement.EffectiveDate.After(best.EffectiveDate) {
			best = agreement
			found = true
		}
	}
	return best, found
}

// allocate rounds each split's share of gross and assigns the rounding
// residual to the largest share so the amounts sum to gross exactly.
func allocate(gross decimal.Decimal, splits []royalty.ContributorSplit, currency string) ([]decimal.Decimal, decimal.Decimal) {
	amounts := make([]decimal.Decimal, len(splits))
	if len(splits) == 0 {
		return amounts, decimal.Zero
	}
	sum := decimal.Zero
	largest := 0
	for i, split := range splits {
		amounts[i] = royalty.RoundMoney(royalty.PercentOf(gross, split.Percentage), currency)
		sum = sum.Add(amounts[i])
		if split.Percentage.GreaterThan(splits[largest].Percentage) {
			largest = i
		}
	}
	residual := gross.Sub(sum)
	if !residual.IsZero() {
		amounts[largest] = amounts[largest].Add(residual)
	}
	return amounts, residual
}
