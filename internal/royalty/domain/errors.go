package royalty

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrRateNotFound is returned when no rate structure applies to a play.
	ErrRateNotFound = errors.New("royalty: rate not found")
	// ErrSplitValidation is returned when contributor splits do not sum to 100.
	ErrSplitValidation = errors.New("royalty: invalid contributor splits")
	// ErrInvalidCycleState is returned when a cycle operation is attempted in the wrong state.
	ErrInvalidCycleState = errors.New("royalty: invalid cycle state")
	// ErrMissingExchangeRate is reported when no exchange rate exists for a currency pair.
	ErrMissingExchangeRate = errors.New("royalty: missing exchange rate")
	// ErrPersistence is returned when a transactional write fails.
	ErrPersistence = errors.New("royalty: persistence failure")

	// ErrEmptyID is returned when a required identifier is empty.
	ErrEmptyID = errors.New("royalty: empty id")
	// ErrInvalidPeriod is returned when a period end precedes its start.
	ErrInvalidPeriod = errors.New("royalty: invalid period")
	// ErrInvalidDuration is returned for non-positive play durations.
	ErrInvalidDuration = errors.New("royalty: invalid play duration")
	// ErrInvalidPercent is returned when a percentage is outside [0,100].
	ErrInvalidPercent = errors.New("royalty: percentage out of range")
	// ErrPlayNotFound is returned when a play log does not exist.
	ErrPlayNotFound = errors.New("royalty: play not found")
	// ErrTrackNotFound is returned when a play references an unknown track.
	ErrTrackNotFound = errors.New("royalty: track not found")
	// ErrStationNotFound is returned when a play references an unknown station.
	ErrStationNotFound = errors.New("royalty: station not found")
	// ErrCycleNotFound is returned when a cycle does not exist.
	ErrCycleNotFound = errors.New("royalty: cycle not found")
	// ErrPartnerNotFound is returned when a partner code is unknown.
	ErrPartnerNotFound = errors.New("royalty: partner not found")
	// ErrExportNotFound is returned when a report export does not exist.
	ErrExportNotFound = errors.New("royalty: export not found")
	// ErrChecksumMismatch is returned when a stored report no longer matches its checksum.
	ErrChecksumMismatch = errors.New("royalty: export checksum mismatch")
	// ErrCycleBusy is returned when another writer holds the cycle lock.
	ErrCycleBusy = errors.New("royalty: cycle is being processed")
)

// RateNotFoundError describes a failed rate lookup.
type RateNotFoundError struct {
	StationClass StationClass
	TimePeriod   TimePeriod
	Territory    string
	At           time.Time
}

func (e *RateNotFoundError) Error() string {
	return fmt.Sprintf("royalty: no rate for class=%s period=%s territory=%s at=%s",
		e.StationClass, e.TimePeriod, e.Territory, e.At.UTC().Format(time.RFC3339))
}

// Is matches ErrRateNotFound.
func (e *RateNotFoundError) Is(target error) bool { return target == ErrRateNotFound }

// SplitValidationError reports a track whose active splits do not total 100.
type SplitValidationError struct {
	TrackID string
	Total   decimal.Decimal
}

func (e *SplitValidationError) Error() string {
	return fmt.Sprintf("royalty: contributor splits for track %s sum to %s, expected 100", e.TrackID, e.Total.String())
}

// Is matches ErrSplitValidation.
func (e *SplitValidationError) Is(target error) bool { return target == ErrSplitValidation }

// InvalidCycleStateError reports an operation attempted on a cycle in the wrong state.
type InvalidCycleStateError struct {
	CycleID   string
	Operation string
	Status    CycleStatus
	Expected  []CycleStatus
}

func (e *InvalidCycleStateError) Error() string {
	expected := make([]string, 0, len(e.Expected))
	for _, status := range e.Expected {
		expected = append(expected, string(status))
	}
	return fmt.Sprintf("royalty: cannot %s cycle %s in status %s (expected %s)",
		e.Operation, e.CycleID, e.Status, strings.Join(expected, "|"))
}

// Is matches ErrInvalidCycleState.
func (e *InvalidCycleStateError) Is(target error) bool { return target == ErrInvalidCycleState }

// MissingExchangeRateError is a warning raised when the identity fallback rate is used.
type MissingExchangeRateError struct {
	From string
	To   string
	At   time.Time
}

func (e *MissingExchangeRateError) Error() string {
	return fmt.Sprintf("royalty: no exchange rate %s->%s on %s, identity rate applied",
		e.From, e.To, e.At.UTC().Format("2006-01-02"))
}

// Is matches ErrMissingExchangeRate.
func (e *MissingExchangeRateError) Is(target error) bool { return target == ErrMissingExchangeRate }

// PersistenceError wraps a failed transactional write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("royalty: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// NewPersistenceError wraps err unless it is nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *PersistenceError
	if errors.As(err, &existing) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
