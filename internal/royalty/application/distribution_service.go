package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"royalty-engine/internal/audit"
	royalty "royalty-engine/internal/royalty/domain"
)

// ErrNotPersistable is returned when a failed calculation is offered for persistence.
var ErrNotPersistable = errors.New("royalty: calculation has errors and cannot be persisted")

const defaultPendingPageSize = 500

// DistributionService calculates plays and persists their distributions.
type DistributionService struct {
	calc   *Calculator
	plays  royalty.PlayRepository
	dists  royalty.DistributionRepository
	cycles royalty.CycleRepository
	audit  audit.Logger
	clock  Clock
	logger *zap.Logger
}

// DistributionOption customizes a DistributionService.
type DistributionOption func(*DistributionService)

// WithDistributionLogger sets the logger.
func WithDistributionLogger(logger *zap.Logger) DistributionOption {
	return func(s *DistributionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDistributionClock sets the clock.
func WithDistributionClock(clock Clock) DistributionOption {
	return func(s *DistributionService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewDistributionService constructs the service.
func NewDistributionService(
	calc *Calculator,
	plays royalty.PlayRepository,
	dists royalty.DistributionRepository,
	cycles royalty.CycleRepository,
	auditLog audit.Logger,
	opts ...DistributionOption,
) (*DistributionService, error) {
	if calc == nil {
		return nil, errors.New("distribution service: nil calculator")
	}
	if plays == nil {
		return nil, errors.New("distribution service: nil play repository")
	}
	if dists == nil {
		return nil, errors.New("distribution service: nil distribution repository")
	}
	if cycles == nil {
		return nil, errors.New("distribution service: nil cycle repository")
	}
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	s := &DistributionService{
		calc:   calc,
		plays:  plays,
		dists:  dists,
		cycles: cycles,
		audit:  auditLog,
		clock:  SystemClock{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Calculator exposes the underlying calculator.
func (s *DistributionService) Calculator() *Calculator { return s.calc }

// CreateDistributions replaces the play's distributions with the result's
// rows in one transaction and records the play royalty amount.
func (s *DistributionService) CreateDistributions(ctx context.Context, result royalty.CalculationResult) error {
	if !result.OK() {
		return fmt.Errorf("%w: %s", ErrNotPersistable, errors.Join(result.Errors...))
	}
	if result.PlayLogID == "" {
		return royalty.ErrEmptyID
	}
	return s.dists.ReplaceDistributions(ctx, result.PlayLogID, result.Distributions, result.GrossAmount, result.Currency, s.clock.Now().UTC())
}

// CalculatePlay calculates, persists and audits one play. It is refused once
// a non-open cycle covers the play.
func (s *DistributionService) CalculatePlay(ctx context.Context, playID string, actor audit.ActorID) (royalty.CalculationResult, error) {
	return s.calculateOne(ctx, playID, actor, audit.TypeIndividual)
}

// RecalculatePlay replaces a play's distributions. It is refused once a
// non-open cycle covers the play.
func (s *DistributionService) RecalculatePlay(ctx context.Context, playID string, actor audit.ActorID) (royalty.CalculationResult, error) {
	return s.calculateOne(ctx, playID, actor, audit.TypeRecalculation)
}

func (s *DistributionService) calculateOne(ctx context.Context, playID string, actor audit.ActorID, kind audit.Type) (royalty.CalculationResult, error) {
	play, err := s.loadPlay(ctx, playID)
	if err != nil {
		return royalty.CalculationResult{}, err
	}
	op := "calculate play in"
	if kind == audit.TypeRecalculation {
		op = "recalculate play in"
	}
	if err := s.ensureOpenPeriod(ctx, *play, op); err != nil {
		return royalty.CalculationResult{}, err
	}
	result := s.calc.CalculateForPlay(ctx, *play)
	var persistErr error
	if result.OK() {
		if persistErr = s.CreateDistributions(ctx, result); persistErr != nil {
			result.Errors = append(result.Errors, persistErr)
		}
	}
	entry := audit.Entry{
		Type:              kind,
		PlayLogID:         play.ID,
		TotalAmount:       result.GrossAmount,
		Currency:          result.Currency,
		DistributionCount: len(result.Distributions),
		Metadata:          audit.MustMetadata(result.Metadata),
		Errors:            result.ErrorStrings(),
		Actor:             actor,
		CreatedAt:         s.clock.Now().UTC(),
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.Warn("audit write failed", zap.String("play_log_id", play.ID), zap.Error(err))
	}
	if persistErr != nil {
		return result, persistErr
	}
	return result, nil
}

// CalculateBatch loads, calculates and persists the given plays. Unknown plays
// and persistence failures are reported per play.
func (s *DistributionService) CalculateBatch(ctx context.Context, playIDs []string, actor audit.ActorID) (royalty.BatchResult, error) {
	plays := make([]royalty.PlayLog, 0, len(playIDs))
	var missing []royalty.CalculationResult
	for _, id := range playIDs {
		play, err := s.loadPlay(ctx, id)
		if errors.Is(err, royalty.ErrPlayNotFound) || errors.Is(err, royalty.ErrEmptyID) {
			missing = append(missing, royalty.CalculationResult{
				PlayLogID:   id,
				GrossAmount: decimal.Zero,
				Currency:    s.calc.Currency(),
				Errors:      []error{err},
			})
			continue
		}
		if err != nil {
			return royalty.BatchResult{}, err
		}
		plays = append(plays, *play)
	}
	batch := s.calculateAndPersist(ctx, plays)
	if len(missing) > 0 {
		batch = summarize(append(batch.Results, missing...), batch.Currency)
	}
	s.auditBatch(ctx, batch, actor, "")
	return batch, nil
}

// CalculatePending calculates every uncalculated play in [from, to) page by
// page. Plays that keep failing are reported once.
func (s *DistributionService) CalculatePending(ctx context.Context, from, to time.Time, pageSize int, actor audit.ActorID) (royalty.BatchResult, error) {
	if pageSize <= 0 {
		pageSize = defaultPendingPageSize
	}
	var (
		all    []royalty.CalculationResult
		cursor *royalty.PlayCursor
	)
	for {
		if err := ctx.Err(); err != nil {
			return royalty.BatchResult{}, err
		}
		page, err := s.plays.ListPendingPlays(ctx, from, to, cursor, pageSize)
		if err != nil {
			return royalty.BatchResult{}, err
		}
		if len(page) == 0 {
			break
		}
		batch := s.calculateAndPersist(ctx, page)
		all = append(all, batch.Results...)
		last := page[len(page)-1]
		cursor = &royalty.PlayCursor{PlayedAt: last.PlayedAt, ID: last.ID}
		if len(page) < pageSize {
			break
		}
	}
	batch := summarize(all, s.calc.Currency())
	if len(all) > 0 {
		s.auditBatch(ctx, batch, actor, "")
	}
	return batch, nil
}

func (s *DistributionService) calculateAndPersist(ctx context.Context, plays []royalty.PlayLog) royalty.BatchResult {
	batch := s.calc.CalculateBatch(ctx, plays)
	persisted := false
	for i := range batch.Results {
		result := &batch.Results[i]
		if !result.OK() {
			continue
		}
		if err := s.CreateDistributions(ctx, *result); err != nil {
			s.logger.Error("persist distributions failed",
				zap.String("event", "distribution.persist"),
				zap.String("play_log_id", result.PlayLogID),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, err)
			persisted = true
		}
	}
	if persisted {
		return summarize(batch.Results, batch.Currency)
	}
	return batch
}

func (s *DistributionService) auditBatch(ctx context.Context, batch royalty.BatchResult, actor audit.ActorID, cycleID string) {
	errs := make([]string, 0, len(batch.Errors))
	distributions := 0
	for _, e := range batch.Errors {
		errs = append(errs, e.Error())
	}
	for _, r := range batch.Results {
		if r.OK() {
			distributions += len(r.Distributions)
		}
	}
	entry := audit.Entry{
		Type:              audit.TypeBatch,
		CycleID:           cycleID,
		TotalAmount:       batch.TotalAmount,
		Currency:          batch.Currency,
		DistributionCount: distributions,
		Metadata: audit.MustMetadata(map[string]int{
			"plays":     len(batch.Results),
			"succeeded": batch.SuccessfulCalculations,
			"failed":    len(batch.Errors),
		}),
		Errors:    errs,
		Actor:     actor,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.Warn("batch audit write failed", zap.Error(err))
	}
}

func (s *DistributionService) loadPlay(ctx context.Context, playID string) (*royalty.PlayLog, error) {
	if playID == "" {
		return nil, royalty.ErrEmptyID
	}
	play, err := s.plays.GetPlay(ctx, playID)
	if err != nil {
		return nil, err
	}
	if play == nil {
		return nil, fmt.Errorf("%w: %s", royalty.ErrPlayNotFound, playID)
	}
	return play, nil
}

// ensureOpenPeriod rejects plays that fall in a cycle that is no longer open.
func (s *DistributionService) ensureOpenPeriod(ctx context.Context, play royalty.PlayLog, op string) error {
	territory := ""
	if station, err := s.calc.stations.GetStation(ctx, play.StationID); err == nil && station != nil {
		territory = station.Territory
	}
	for _, status := range []royalty.CycleStatus{royalty.CycleLocked, royalty.CycleInvoiced, royalty.CycleRemitted} {
		cycles, err := s.cycles.ListCycles(ctx, status)
		if err != nil {
			return err
		}
		for _, cycle := range cycles {
			if territory != "" && cycle.Territory != territory {
				continue
			}
			if cycle.Contains(play.PlayedAt) {
				return &royalty.InvalidCycleStateError{
					CycleID:   cycle.ID,
					Operation: op,
					Status:    cycle.Status,
					Expected:  []royalty.CycleStatus{royalty.CycleOpen},
				}
			}
		}
	}
	return nil
}
