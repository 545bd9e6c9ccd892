package royalty

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RateRepository reads dated rate structures.
type RateRepository interface {
	ListRates(ctx context.Context, class StationClass, period TimePeriod, territory string) ([]RateStructure, error)
}

// RateCatalog lists every rate row for snapshotting.
type RateCatalog interface {
	RateRepository
	ListAllRates(ctx context.Context) ([]RateStructure, error)
}

// ExchangeRateRepository reads dated exchange rates.
type ExchangeRateRepository interface {
	LatestExchangeRate(ctx context.Context, from, to string, at time.Time) (*ExchangeRate, error)
}

// ExchangeRateCatalog lists every exchange rate row for snapshotting.
type ExchangeRateCatalog interface {
	ExchangeRateRepository
	ListAllExchangeRates(ctx context.Context) ([]ExchangeRate, error)
}

// StationRepository reads stations. Get methods in this file return nil
// without error when the row does not exist.
type StationRepository interface {
	GetStation(ctx context.Context, id string) (*Station, error)
}

// TrackRepository reads tracks with their contributors.
type TrackRepository interface {
	GetTrack(ctx context.Context, id string) (*Track, error)
}

// PlayRepository reads play logs.
type PlayRepository interface {
	GetPlay(ctx context.Context, id string) (*PlayLog, error)
	// ListPendingPlays pages uncalculated plays in [from, to) ordered by
	// (PlayedAt, ID), starting strictly after the cursor when one is given.
	ListPendingPlays(ctx context.Context, from, to time.Time, after *PlayCursor, limit int) ([]PlayLog, error)
}

// PlayCursor is the keyset position of the last play of a page.
type PlayCursor struct {
	PlayedAt time.Time
	ID       string
}

// PartnerRepository reads partner organizations and their agreements.
type PartnerRepository interface {
	GetPartner(ctx context.Context, code string) (*PartnerOrganization, error)
	ListAgreements(ctx context.Context, status AgreementStatus) ([]ReciprocalAgreement, error)
}

// DistributionRepository persists per-play distributions.
type DistributionRepository interface {
	// ReplaceDistributions atomically swaps the distributions of a play and
	// records its royalty amount.
	ReplaceDistributions(ctx context.Context, playLogID string, dists []Distribution, amount decimal.Decimal, currency string, at time.Time) error
	ListDistributions(ctx context.Context, playLogID string) ([]Distribution, error)
}

// CycleUsage is one attributed play joined with its royalty amount and catalog data.
type CycleUsage struct {
	Attribution     UsageAttribution
	RoyaltyAmount   decimal.Decimal
	RoyaltyCurrency string
	Calculated      bool
	Title           string
	ISRC            string
	ISWC            string
}

// UsageRepository reads usage attributions.
type UsageRepository interface {
	ListCycleUsage(ctx context.Context, territory string, from, to time.Time) ([]CycleUsage, error)
}

// CycleRepository persists royalty cycles and their line items.
type CycleRepository interface {
	CreateCycle(ctx context.Context, cycle *RoyaltyCycle) error
	GetCycle(ctx context.Context, id string) (*RoyaltyCycle, error)
	ListCycles(ctx context.Context, status CycleStatus) ([]RoyaltyCycle, error)
	// CommitLock writes line items and moves the cycle from open to locked in
	// one transaction.
	CommitLock(ctx context.Context, cycleID string, items []RoyaltyLineItem, at time.Time) error
	// TransitionCycle moves the cycle between states when it is currently in from.
	TransitionCycle(ctx context.Context, cycleID string, from, to CycleStatus, at time.Time) error
	// ResetCycle clears line items, remittances and exports and reopens a locked cycle.
	ResetCycle(ctx context.Context, cycleID string) error
	ListLineItems(ctx context.Context, cycleID string) ([]RoyaltyLineItem, error)
}

// SettlementRepository persists remittances and report exports.
type SettlementRepository interface {
	// ReplaceSettlement swaps the remittances and exports of a cycle in one transaction.
	ReplaceSettlement(ctx context.Context, cycleID string, remittances []PartnerRemittance, exports []ReportExport) error
	ListRemittances(ctx context.Context, cycleID string) ([]PartnerRemittance, error)
	UpdateRemittanceStatus(ctx context.Context, id string, status RemittanceStatus, reference string, at time.Time) error
	GetExport(ctx context.Context, id string) (*ReportExport, error)
	ListExports(ctx context.Context, cycleID string) ([]ReportExport, error)
}
