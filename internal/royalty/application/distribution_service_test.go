package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royalty-engine/internal/audit"
	royalty "royalty-engine/internal/royalty/domain"
)

func newDistributionService(t *testing.T, f *calcFixture) (*DistributionService, *recordingAudit) {
	t.Helper()
	auditLog := &recordingAudit{}
	svc, err := NewDistributionService(f.calculator(t, "USD"), f.repo, f.repo, f.repo, auditLog,
		WithDistributionClock(calcClock))
	require.NoError(t, err)
	return svc, auditLog
}

func TestNewDistributionService_RequiresDependencies(t *testing.T) {
	_, err := NewDistributionService(nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestCalculatePlay_PersistsAndAudits(t *testing.T) {
	f := newCalcFixture()
	f.play("p-1", 180)
	svc, auditLog := newDistributionService(t, f)

	result, err := svc.CalculatePlay(context.Background(), "p-1", "ops@example.com")
	require.NoError(t, err)
	require.True(t, result.OK())

	stored, err := f.repo.ListDistributions(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	play := f.repo.plays["p-1"]
	require.NotNil(t, play.RoyaltyAmount)
	assert.Equal(t, "2.16", play.RoyaltyAmount.StringFixed(2))

	entries := auditLog.ofType(audit.TypeIndividual)
	require.Len(t, entries, 1)
	assert.Equal(t, "p-1", entries[0].PlayLogID)
	assert.Equal(t, 2, entries[0].DistributionCount)
	assert.Equal(t, audit.ActorID("ops@example.com"), entries[0].Actor)
	assert.Empty(t, entries[0].Errors)
}

func TestCalculatePlay_FailureIsAuditedNotPersisted(t *testing.T) {
	f := newCalcFixture()
	track := f.repo.tracks["tr-1"]
	track.Contributors[0].PercentSplit = dec("50")
	f.repo.tracks["tr-1"] = track
	f.play("p-1", 180)
	svc, auditLog := newDistributionService(t, f)

	result, err := svc.CalculatePlay(context.Background(), "p-1", audit.System)
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Zero(t, f.repo.replaceCalls)

	entries := auditLog.ofType(audit.TypeIndividual)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Errors, 1)
	assert.Zero(t, entries[0].DistributionCount)
}

func TestCalculatePlay_PersistenceFailureSurfaces(t *testing.T) {
	f := newCalcFixture()
	f.play("p-1", 180)
	f.repo.replaceErr = royalty.NewPersistenceError("replace distributions", errors.New("disk full"))
	svc, _ := newDistributionService(t, f)

	_, err := svc.CalculatePlay(context.Background(), "p-1", audit.System)
	assert.True(t, errors.Is(err, royalty.ErrPersistence))
}

func TestCalculatePlay_UnknownPlay(t *testing.T) {
	svc, _ := newDistributionService(t, newCalcFixture())

	_, err := svc.CalculatePlay(context.Background(), "nope", audit.System)
	assert.True(t, errors.Is(err, royalty.ErrPlayNotFound))
}

func TestCreateDistributions_RejectsFailedResult(t *testing.T) {
	svc, _ := newDistributionService(t, newCalcFixture())

	err := svc.CreateDistributions(context.Background(), royalty.CalculationResult{
		PlayLogID: "p-1",
		Errors:    []error{royalty.ErrRateNotFound},
	})
	assert.True(t, errors.Is(err, ErrNotPersistable))
}

func TestCalculateBatch_ReportsUnknownPlays(t *testing.T) {
	f := newCalcFixture()
	f.play("p-1", 100)
	f.play("p-2", 100)
	svc, auditLog := newDistributionService(t, f)

	batch, err := svc.CalculateBatch(context.Background(), []string{"p-1", "ghost", "p-2"}, audit.System)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.SuccessfulCalculations)
	require.Len(t, batch.Errors, 1)
	assert.Equal(t, "ghost", batch.Errors[0].PlayLogID)
	assert.True(t, errors.Is(batch.Errors[0].Err, royalty.ErrPlayNotFound))
	assert.Equal(t, "2.40", batch.TotalAmount.StringFixed(2))

	entries := auditLog.ofType(audit.TypeBatch)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Errors, 1)
}

func TestCalculatePending_PagesUntilDrained(t *testing.T) {
	f := newCalcFixture()
	f.play("p-1", 100)
	f.play("p-2", 100)
	f.play("p-3", 100)
	bad := f.play("p-bad", 100)
	bad.TrackID = "missing"
	f.repo.plays["p-bad"] = bad
	svc, auditLog := newDistributionService(t, f)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	batch, err := svc.CalculatePending(context.Background(), from, from.AddDate(0, 1, 0), 2, audit.System)
	require.NoError(t, err)

	assert.Len(t, batch.Results, 4)
	assert.Equal(t, 3, batch.SuccessfulCalculations)
	require.Len(t, batch.Errors, 1)
	assert.Equal(t, "p-bad", batch.Errors[0].PlayLogID)
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		assert.True(t, f.repo.plays[id].Calculated(), id)
	}
	assert.Len(t, auditLog.ofType(audit.TypeBatch), 1)

	again, err := svc.CalculatePending(context.Background(), from, from.AddDate(0, 1, 0), 2, audit.System)
	require.NoError(t, err)
	assert.Zero(t, again.SuccessfulCalculations)
	assert.Len(t, again.Errors, 1)
}

func TestCalculatePending_FailingPageDoesNotStall(t *testing.T) {
	f := newCalcFixture()
	for _, id := range []string{"a-bad", "b-bad"} {
		bad := f.play(id, 100)
		bad.TrackID = "missing"
		bad.PlayedAt = playTime.Add(-time.Hour)
		f.repo.plays[id] = bad
	}
	f.play("p-1", 100)
	svc, _ := newDistributionService(t, f)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	batch, err := svc.CalculatePending(context.Background(), from, from.AddDate(0, 1, 0), 2, audit.System)
	require.NoError(t, err)

	assert.Len(t, batch.Results, 3)
	assert.Equal(t, 1, batch.SuccessfulCalculations)
	assert.Len(t, batch.Errors, 2)
	assert.True(t, f.repo.plays["p-1"].Calculated())
}

func TestCalculatePlay_RefusedInClosedPeriod(t *testing.T) {
	f := newCalcFixture()
	f.play("p-1", 100)
	f.repo.cycles["c-1"] = royalty.RoyaltyCycle{
		ID: "c-1", Territory: "GH", Currency: "USD", Status: royalty.CycleRemitted,
		PeriodStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	svc, auditLog := newDistributionService(t, f)

	_, err := svc.CalculatePlay(context.Background(), "p-1", "ops")
	var stateErr *royalty.InvalidCycleStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "c-1", stateErr.CycleID)
	assert.Equal(t, royalty.CycleRemitted, stateErr.Status)
	assert.Zero(t, f.repo.replaceCalls)
	assert.False(t, f.repo.plays["p-1"].Calculated())
	assert.Empty(t, auditLog.entries)
}

func TestRecalculatePlay_RefusedInClosedPeriod(t *testing.T) {
	f := newCalcFixture()
	f.play("p-1", 100)
	f.repo.cycles["c-1"] = royalty.RoyaltyCycle{
		ID: "c-1", Territory: "GH", Currency: "USD", Status: royalty.CycleLocked,
		PeriodStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	svc, auditLog := newDistributionService(t, f)

	_, err := svc.RecalculatePlay(context.Background(), "p-1", "ops")
	var stateErr *royalty.InvalidCycleStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "c-1", stateErr.CycleID)
	assert.Empty(t, auditLog.entries)
}

func TestRecalculatePlay_AllowedInOpenPeriod(t *testing.T) {
	f := newCalcFixture()
	f.play("p-1", 100)
	f.repo.cycles["c-ng"] = royalty.RoyaltyCycle{
		ID: "c-ng", Territory: "NG", Currency: "USD", Status: royalty.CycleLocked,
		PeriodStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	svc, auditLog := newDistributionService(t, f)

	result, err := svc.RecalculatePlay(context.Background(), "p-1", "ops")
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Len(t, auditLog.ofType(audit.TypeRecalculation), 1)
}
