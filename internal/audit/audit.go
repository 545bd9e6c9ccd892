package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type classifies a calculation audit row.
type Type string

const (
	TypeIndividual    Type = "individual"
	TypeBatch         Type = "batch"
	TypeCycle         Type = "cycle"
	TypeReciprocal    Type = "reciprocal"
	TypeRecalculation Type = "recalculation"
)

// ActorID identifies who triggered an audited action. The zero value marks an
// automated run.
type ActorID string

// System is the actor used by scheduled and event-driven runs.
const System ActorID = ""

// Automated reports whether no human actor is attached.
func (a ActorID) Automated() bool { return a == System }

// Entry represents one append-only calculation audit row.
type Entry struct {
	ID                string
	Type              Type
	PlayLogID         string
	CycleID           string
	TotalAmount       decimal.Decimal
	Currency          string
	DistributionCount int
	Metadata          json.RawMessage
	Errors            []string
	Actor             ActorID
	IP                string
	PayloadDigest     string
	CreatedAt         time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a calculation id.
func NewID() string {
	return uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MustMetadata marshals v for Entry.Metadata, returning nil on failure.
func MustMetadata(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Nop discards entries.
type Nop struct{}

// Log implements Logger.
func (Nop) Log(context.Context, Entry) error { return nil }
