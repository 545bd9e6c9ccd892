package royalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReportFormat names a partner report encoding.
type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatCWR  ReportFormat = "cwr"
	ReportFormatDDEX ReportFormat = "ddex"
	ReportFormatJSON ReportFormat = "json"
	ReportFormatXLSX ReportFormat = "xlsx"
	ReportFormatPDF  ReportFormat = "pdf"
)

// PartnerOrganization is a foreign PRO with a reciprocal relationship.
type PartnerOrganization struct {
	ID                     string
	Code                   string
	Name                   string
	Territory              string
	DefaultAdminFeePercent decimal.Decimal
	PreferredFormat        ReportFormat
	ContactEmail           string
	APIEndpoint            string
	SenderPartyID          string
	Active                 bool
}

// AgreementStatus is the lifecycle state of a reciprocal agreement.
type AgreementStatus string

const (
	AgreementDraft      AgreementStatus = "draft"
	AgreementActive     AgreementStatus = "active"
	AgreementSuspended  AgreementStatus = "suspended"
	AgreementTerminated AgreementStatus = "terminated"
)

// ReciprocalAgreement binds a partner to a territory for a date range.
type ReciprocalAgreement struct {
	ID                      string
	PartnerCode             string
	Territory               string
	EffectiveDate           time.Time
	ExpiryDate              *time.Time
	AdminFeePercentOverride *decimal.Decimal
	Status                  AgreementStatus
	ReportingFrequency      string
}

// Overlaps reports whether the agreement is in force at any point of
// [start, end]. The expiry date counts through the end of its UTC day.
func (a ReciprocalAgreement) Overlaps(start, end time.Time) bool {
	if a.EffectiveDate.After(end) {
		return false
	}
	return !expiredAt(a.ExpiryDate, start)
}

// CoversAt reports whether the agreement is in force at t.
func (a ReciprocalAgreement) CoversAt(t time.Time) bool {
	return a.Overlaps(t, t)
}

// AdminFeePercent returns the override or the partner default.
func (a ReciprocalAgreement) AdminFeePercent(partner *PartnerOrganization) decimal.Decimal {
	if a.AdminFeePercentOverride != nil {
		return *a.AdminFeePercentOverride
	}
	if partner != nil {
		return partner.DefaultAdminFeePercent
	}
	return decimal.Zero
}

// ExternalWork is a composition registered by a partner.
type ExternalWork struct {
	ID          string
	PartnerCode string
	Title       string
	ISWC        string
}

// ExternalRecording is a sound recording registered by a partner.
type ExternalRecording struct {
	ID              string
	PartnerCode     string
	Title           string
	ISRC            string
	DurationSeconds int
	WorkID          string
}

// MatchMethod describes how a play was attributed to a partner catalog entry.
type MatchMethod string

const (
	MatchFingerprint MatchMethod = "fingerprint"
	MatchMetadata    MatchMethod = "metadata"
)

// UsageAttribution links a local play to a partner's catalog.
type UsageAttribution struct {
	ID                  string
	PlayLogID           string
	OriginPartnerCode   string
	ExternalRecordingID string
	ExternalWorkID      string
	MatchMethod         MatchMethod
	ConfidenceScore     decimal.Decimal
	Territory           string
	StationID           string
	DurationSeconds     int
	PlayedAt            time.Time
}
