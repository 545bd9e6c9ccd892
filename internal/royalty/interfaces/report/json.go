package report

import (
	"encoding/json"

	royalty "royalty-engine/internal/royalty/domain"
)

// JSONEncoder renders report metadata, usage rows and a computed summary.
type JSONEncoder struct{}

func (JSONEncoder) Format() royalty.ReportFormat { return royalty.ReportFormatJSON }
func (JSONEncoder) Extension() string            { return "json" }
func (JSONEncoder) ContentType() string          { return "application/json" }

type jsonDocument struct {
	Metadata jsonMetadata `json:"metadata"`
	Rows     []jsonRow    `json:"usage_rows"`
	Totals   jsonTotals   `json:"totals"`
	Summary  jsonSummary  `json:"summary"`
}

type jsonMetadata struct {
	ReportID      string `json:"report_id"`
	SenderPartyID string `json:"sender_party_id"`
	PartnerCode   string `json:"partner_code"`
	PartnerName   string `json:"partner_name"`
	CycleID       string `json:"cycle_id"`
	CycleName     string `json:"cycle_name"`
	Territory     string `json:"territory"`
	AgreementID   string `json:"agreement_id"`
	Currency      string `json:"currency"`
	PeriodStart   string `json:"period_start"`
	PeriodEnd     string `json:"period_end"`
	GeneratedAt   string `json:"generated_at"`
}

type jsonRow struct {
	PlayLogID           string `json:"play_log_id"`
	StationID           string `json:"station_id"`
	PlayedAt            string `json:"played_at"`
	Title               string `json:"title"`
	ISRC                string `json:"isrc,omitempty"`
	ISWC                string `json:"iswc,omitempty"`
	ExternalRecordingID string `json:"external_recording_id,omitempty"`
	ExternalWorkID      string `json:"external_work_id,omitempty"`
	MatchMethod         string `json:"match_method,omitempty"`
	DurationSeconds     int    `json:"duration_seconds"`
	Gross               string `json:"gross"`
	AdminFee            string `json:"admin_fee"`
	Net                 string `json:"net"`
}

type jsonTotals struct {
	UsageCount      int    `json:"usage_count"`
	DurationSeconds int    `json:"duration_seconds"`
	Gross           string `json:"gross"`
	AdminFee        string `json:"admin_fee"`
	NetPayable      string `json:"net_payable"`
}

type jsonSummary struct {
	UsageCount       int    `json:"usage_count"`
	UniqueWorks      int    `json:"unique_works"`
	UniqueRecordings int    `json:"unique_recordings"`
	DurationSeconds  int    `json:"duration_seconds"`
	TotalGross       string `json:"total_gross"`
	TotalAdminFee    string `json:"total_admin_fee"`
	TotalNet         string `json:"total_net"`
}

// Encode implements Encoder.
func (JSONEncoder) Encode(data ReportData) ([]byte, error) {
	summary := Summarize(data)
	doc := jsonDocument{
		Metadata: jsonMetadata{
			ReportID:      data.ReportID,
			SenderPartyID: data.SenderPartyID,
			PartnerCode:   data.Partner.Code,
			PartnerName:   data.Partner.Name,
			CycleID:       data.CycleID,
			CycleName:     data.CycleName,
			Territory:     data.Territory,
			AgreementID:   data.AgreementID,
			Currency:      data.Currency,
			PeriodStart:   data.PeriodStart.UTC().Format(dateLayout),
			PeriodEnd:     data.PeriodEnd.UTC().Format(dateLayout),
			GeneratedAt:   data.GeneratedAt.UTC().Format(dateTimeLayout),
		},
		Rows: make([]jsonRow, 0, len(data.Rows)),
		Totals: jsonTotals{
			UsageCount:      data.Totals.UsageCount,
			DurationSeconds: data.Totals.DurationSeconds,
			Gross:           money(data.Totals.Gross, data.Currency),
			AdminFee:        money(data.Totals.AdminFee, data.Currency),
			NetPayable:      money(data.Totals.Net, data.Currency),
		},
		Summary: jsonSummary{
			UsageCount:       summary.UsageCount,
			UniqueWorks:      summary.UniqueWorks,
			UniqueRecordings: summary.UniqueRecordings,
			DurationSeconds:  summary.DurationSeconds,
			TotalGross:       money(summary.Gross, data.Currency),
			TotalAdminFee:    money(summary.AdminFee, data.Currency),
			TotalNet:         money(summary.Net, data.Currency),
		},
	}
	for _, row := range data.Rows {
		doc.Rows = append(doc.Rows, jsonRow{
			PlayLogID:           row.PlayLogID,
			StationID:           row.StationID,
			PlayedAt:            row.PlayedAt.UTC().Format(dateTimeLayout),
			Title:               row.Title,
			ISRC:                row.ISRC,
			ISWC:                row.ISWC,
			ExternalRecordingID: row.ExternalRecordingID,
			ExternalWorkID:      row.ExternalWorkID,
			MatchMethod:         string(row.MatchMethod),
			DurationSeconds:     row.DurationSeconds,
			Gross:               money(row.Gross, data.Currency),
			AdminFee:            money(row.AdminFee, data.Currency),
			Net:                 money(row.Net, data.Currency),
		})
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
