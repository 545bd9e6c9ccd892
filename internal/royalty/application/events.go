package application

import (
	"time"

	"github.com/shopspring/decimal"

	"royalty-engine/internal/eventing"
	royalty "royalty-engine/internal/royalty/domain"
)

// CycleLocked is emitted after line items are committed.
type CycleLocked struct {
	CycleID    string
	Territory  string
	LineItems  int
	Gross      decimal.Decimal
	Net        decimal.Decimal
	Currency   string
	OccurredAt time.Time
}

// CycleSettled is emitted after remittances and reports are stored.
type CycleSettled struct {
	CycleID            string
	RemittancesCreated int
	ReportsGenerated   int
	TotalPayable       decimal.Decimal
	Currency           string
	OccurredAt         time.Time
}

// RemittanceCreated is emitted per pending remittance.
type RemittanceCreated struct {
	RemittanceID string
	CycleID      string
	PartnerCode  string
	AgreementID  string
	NetPayable   decimal.Decimal
	Currency     string
	OccurredAt   time.Time
}

// ReportExported is emitted per stored partner report.
type ReportExported struct {
	ExportID    string
	CycleID     string
	PartnerCode string
	Format      royalty.ReportFormat
	Location    string
	Checksum    string
	OccurredAt  time.Time
}

// RemittanceAcknowledged is published by the payment side when a remittance
// is dispatched, settled or rejected.
type RemittanceAcknowledged struct {
	RemittanceID     string
	CycleID          string
	Status           royalty.RemittanceStatus
	PaymentReference string
	OccurredAt       time.Time
}

// RegisterEvents makes the engine's events decodable from the outbox.
func RegisterEvents(registry *eventing.Registry) {
	eventing.RegisterType[CycleLocked](registry)
	eventing.RegisterType[CycleSettled](registry)
	eventing.RegisterType[RemittanceCreated](registry)
	eventing.RegisterType[ReportExported](registry)
	eventing.RegisterType[RemittanceAcknowledged](registry)
}
