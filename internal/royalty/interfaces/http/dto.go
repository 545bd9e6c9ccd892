package http

import (
	"time"

	"github.com/shopspring/decimal"

	royalty "royalty-engine/internal/royalty/domain"
)

const dateLayout = "2006-01-02"

type batchRequest struct {
	PlayIDs []string `json:"play_ids" validate:"omitempty,max=10000,dive,required"`
	From    string   `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To      string   `json:"to" validate:"omitempty,datetime=2006-01-02"`
	Size    int      `json:"page_size" validate:"omitempty,min=1,max=5000"`
}

type openCycleRequest struct {
	Name                   string `json:"name" validate:"max=200"`
	Territory              string `json:"territory" validate:"required,min=2,max=8"`
	Currency               string `json:"currency" validate:"required,len=3,alpha"`
	PeriodStart            string `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd              string `json:"period_end" validate:"required,datetime=2006-01-02"`
	DefaultAdminFeePercent string `json:"default_admin_fee_percent" validate:"omitempty,numeric"`
}

type resetRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type ackRequest struct {
	CycleID          string `json:"cycle_id" validate:"required"`
	Status           string `json:"status" validate:"required,oneof=sent settled failed"`
	PaymentReference string `json:"payment_reference" validate:"max=200"`
}

type distributionDTO struct {
	RecipientType   string `json:"recipient_type"`
	PayeeID         string `json:"payee_id"`
	Role            string `json:"role"`
	Percentage      string `json:"percentage"`
	Gross           string `json:"gross"`
	Net             string `json:"net"`
	ProShare        string `json:"pro_share"`
	ExternalPartner string `json:"external_partner,omitempty"`
	Routing         string `json:"routing"`
}

type calculationDTO struct {
	PlayLogID     string                      `json:"play_log_id"`
	GrossAmount   string                      `json:"gross_amount"`
	Currency      string                      `json:"currency"`
	Distributions []distributionDTO           `json:"distributions"`
	Metadata      royalty.CalculationMetadata `json:"metadata"`
	Errors        []string                    `json:"errors,omitempty"`
}

type playErrorDTO struct {
	PlayLogID string `json:"play_log_id"`
	Error     string `json:"error"`
}

type batchDTO struct {
	Plays                  int            `json:"plays"`
	SuccessfulCalculations int            `json:"successful_calculations"`
	TotalAmount            string         `json:"total_amount"`
	Currency               string         `json:"currency"`
	Errors                 []playErrorDTO `json:"errors"`
}

type cycleDTO struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Territory              string     `json:"territory"`
	Currency               string     `json:"currency"`
	PeriodStart            string     `json:"period_start"`
	PeriodEnd              string     `json:"period_end"`
	Status                 string     `json:"status"`
	DefaultAdminFeePercent string     `json:"default_admin_fee_percent"`
	CreatedAt              time.Time  `json:"created_at"`
	LockedAt               *time.Time `json:"locked_at,omitempty"`
	InvoicedAt             *time.Time `json:"invoiced_at,omitempty"`
	RemittedAt             *time.Time `json:"remitted_at,omitempty"`
}

type lockDTO struct {
	CycleID      string   `json:"cycle_id"`
	LineItems    int      `json:"line_items"`
	UsageCount   int      `json:"usage_count"`
	Uncalculated int      `json:"uncalculated"`
	Gross        string   `json:"gross"`
	AdminFee     string   `json:"admin_fee"`
	Net          string   `json:"net"`
	Currency     string   `json:"currency"`
	Warnings     []string `json:"warnings,omitempty"`
}

type settlementDTO struct {
	CycleID             string   `json:"cycle_id"`
	AgreementsProcessed int      `json:"agreements_processed"`
	RemittancesCreated  int      `json:"remittances_created"`
	ReportsGenerated    int      `json:"reports_generated"`
	TotalPayable        string   `json:"total_payable"`
	Currency            string   `json:"currency"`
	Skipped             []string `json:"skipped,omitempty"`
}

type lineItemDTO struct {
	ID                   string `json:"id"`
	PartnerCode          string `json:"partner_code"`
	RecordingKey         string `json:"recording_key"`
	Title                string `json:"title"`
	ISRC                 string `json:"isrc,omitempty"`
	ISWC                 string `json:"iswc,omitempty"`
	UsageCount           int    `json:"usage_count"`
	TotalDurationSeconds int    `json:"total_duration_seconds"`
	AdminFeePercent      string `json:"admin_fee_percent"`
	Gross                string `json:"gross"`
	AdminFee             string `json:"admin_fee"`
	Net                  string `json:"net"`
	Currency             string `json:"currency"`
}

type remittanceDTO struct {
	ID               string     `json:"id"`
	PartnerCode      string     `json:"partner_code"`
	AgreementID      string     `json:"agreement_id"`
	Gross            string     `json:"gross"`
	AdminFee         string     `json:"admin_fee"`
	NetPayable       string     `json:"net_payable"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
}

type exportDTO struct {
	ID          string    `json:"id"`
	PartnerCode string    `json:"partner_code"`
	Format      string    `json:"format"`
	Location    string    `json:"location"`
	Checksum    string    `json:"checksum"`
	SizeBytes   int64     `json:"size_bytes"`
	GeneratedAt time.Time `json:"generated_at"`
}

func amount(value decimal.Decimal, currency string) string {
	return value.StringFixed(royalty.MinorUnits(currency))
}

func toCalculationDTO(result royalty.CalculationResult) calculationDTO {
	out := calculationDTO{
		PlayLogID:     result.PlayLogID,
		GrossAmount:   amount(result.GrossAmount, result.Currency),
		Currency:      result.Currency,
		Distributions: make([]distributionDTO, 0, len(result.Distributions)),
		Metadata:      result.Metadata,
		Errors:        result.ErrorStrings(),
	}
	for _, d := range result.Distributions {
		dto := distributionDTO{
			Role:            string(d.Role),
			Percentage:      d.Percentage.String(),
			Gross:           amount(d.GrossAmount, d.Currency),
			Net:             amount(d.NetAmount, d.Currency),
			ProShare:        amount(d.ProShare, d.Currency),
			ExternalPartner: d.ExternalPartner,
			Routing:         string(d.Routing),
		}
		if d.Recipient != nil {
			dto.RecipientType = string(d.Recipient.Type())
			dto.PayeeID = d.Recipient.PayeeID()
		}
		out.Distributions = append(out.Distributions, dto)
	}
	return out
}

func toBatchDTO(batch royalty.BatchResult) batchDTO {
	out := batchDTO{
		Plays:                  len(batch.Results),
		SuccessfulCalculations: batch.SuccessfulCalculations,
		TotalAmount:            amount(batch.TotalAmount, batch.Currency),
		Currency:               batch.Currency,
		Errors:                 make([]playErrorDTO, 0, len(batch.Errors)),
	}
	for _, e := range batch.Errors {
		out.Errors = append(out.Errors, playErrorDTO{PlayLogID: e.PlayLogID, Error: e.Err.Error()})
	}
	return out
}

func toCycleDTO(c royalty.RoyaltyCycle) cycleDTO {
	return cycleDTO{
		ID:                     c.ID,
		Name:                   c.Name,
		Territory:              c.Territory,
		Currency:               c.Currency,
		PeriodStart:            c.PeriodStart.UTC().Format(dateLayout),
		PeriodEnd:              c.PeriodEnd.UTC().Format(dateLayout),
		Status:                 string(c.Status),
		DefaultAdminFeePercent: c.DefaultAdminFeePercent.String(),
		CreatedAt:              c.CreatedAt,
		LockedAt:               c.LockedAt,
		InvoicedAt:             c.InvoicedAt,
		RemittedAt:             c.RemittedAt,
	}
}

func toLineItemDTO(item royalty.RoyaltyLineItem) lineItemDTO {
	return lineItemDTO{
		ID:                   item.ID,
		PartnerCode:          item.PartnerCode,
		RecordingKey:         item.RecordingKey,
		Title:                item.Title,
		ISRC:                 item.ISRC,
		ISWC:                 item.ISWC,
		UsageCount:           item.UsageCount,
		TotalDurationSeconds: item.TotalDurationSeconds,
		AdminFeePercent:      item.AdminFeePercent.String(),
		Gross:                amount(item.Gross, item.Currency),
		AdminFee:             amount(item.AdminFee, item.Currency),
		Net:                  amount(item.Net, item.Currency),
		Currency:             item.Currency,
	}
}

func toRemittanceDTO(r royalty.PartnerRemittance) remittanceDTO {
	return remittanceDTO{
		ID:               r.ID,
		PartnerCode:      r.PartnerCode,
		AgreementID:      r.AgreementID,
		Gross:            amount(r.Gross, r.Currency),
		AdminFee:         amount(r.AdminFee, r.Currency),
		NetPayable:       amount(r.NetPayable, r.Currency),
		Currency:         r.Currency,
		Status:           string(r.Status),
		PaymentReference: r.PaymentReference,
		CreatedAt:        r.CreatedAt,
		SentAt:           r.SentAt,
		SettledAt:        r.SettledAt,
	}
}

func toExportDTO(e royalty.ReportExport) exportDTO {
	return exportDTO{
		ID:          e.ID,
		PartnerCode: e.PartnerCode,
		Format:      string(e.Format),
		Location:    e.Location,
		Checksum:    e.Checksum,
		SizeBytes:   e.SizeBytes,
		GeneratedAt: e.GeneratedAt,
	}
}
