package royalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleStatus is the lifecycle state of a royalty cycle.
type CycleStatus string

const (
	CycleOpen     CycleStatus = "open"
	CycleLocked   CycleStatus = "locked"
	CycleInvoiced CycleStatus = "invoiced"
	CycleRemitted CycleStatus = "remitted"
)

// RoyaltyCycle is a settlement period for one territory.
type RoyaltyCycle struct {
	ID                     string
	Name                   string
	Territory              string
	Currency               string
	PeriodStart            time.Time
	PeriodEnd              time.Time
	Status                 CycleStatus
	DefaultAdminFeePercent decimal.Decimal
	CreatedAt              time.Time
	LockedAt               *time.Time
	InvoicedAt             *time.Time
	RemittedAt             *time.Time
}

// Window returns the half-open UTC interval [start of PeriodStart, day after PeriodEnd).
func (c RoyaltyCycle) Window() (time.Time, time.Time) {
	return StartOfDayUTC(c.PeriodStart), StartOfDayUTC(c.PeriodEnd).AddDate(0, 0, 1)
}

// Contains reports whether t falls in the cycle window.
func (c RoyaltyCycle) Contains(t time.Time) bool {
	from, to := c.Window()
	t = t.UTC()
	return !t.Before(from) && t.Before(to)
}

// StartOfDayUTC truncates t to midnight UTC.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RoyaltyLineItem aggregates a partner's usage of one recording within a cycle.
type RoyaltyLineItem struct {
	ID                   string
	CycleID              string
	PartnerCode          string
	RecordingKey         string
	ExternalRecordingID  string
	ExternalWorkID       string
	Title                string
	ISRC                 string
	ISWC                 string
	UsageCount           int
	TotalDurationSeconds int
	AdminFeePercent      decimal.Decimal
	Gross                decimal.Decimal
	AdminFee             decimal.Decimal
	Net                  decimal.Decimal
	Currency             string
}

// RecordingKey builds the grouping key for a usage attribution.
func RecordingKey(recordingID, workID string) string {
	if recordingID != "" {
		return "rec:" + recordingID
	}
	if workID != "" {
		return "work:" + workID
	}
	return "unmatched"
}

// RemittanceStatus is the payment state of a partner remittance.
type RemittanceStatus string

const (
	RemittancePending RemittanceStatus = "pending"
	RemittanceSent    RemittanceStatus = "sent"
	RemittanceSettled RemittanceStatus = "settled"
	RemittanceFailed  RemittanceStatus = "failed"
)

// PartnerRemittance is the amount owed to a partner for a cycle.
type PartnerRemittance struct {
	ID               string
	PartnerCode      string
	CycleID          string
	AgreementID      string
	Currency         string
	Gross            decimal.Decimal
	AdminFee         decimal.Decimal
	NetPayable       decimal.Decimal
	PaymentReference string
	Status           RemittanceStatus
	CreatedAt        time.Time
	SentAt           *time.Time
	SettledAt        *time.Time
}

// ReportExport records a generated partner report file.
type ReportExport struct {
	ID          string
	PartnerCode string
	CycleID     string
	Format      ReportFormat
	Location    string
	Checksum    string
	SizeBytes   int64
	GeneratedAt time.Time
}

// SettlementSummary reports the outcome of processing a cycle.
type SettlementSummary struct {
	CycleID             string
	AgreementsProcessed int
	RemittancesCreated  int
	ReportsGenerated    int
	TotalPayable        decimal.Decimal
	Currency            string
	Skipped             []string
}
