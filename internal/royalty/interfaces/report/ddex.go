package report

import (
	"bytes"
	"encoding/xml"

	royalty "royalty-engine/internal/royalty/domain"
)

const ddexSchemaVersion = "dsrf/usage/1.0"

// DDEXEncoder renders an XML usage report.
type DDEXEncoder struct{}

func (DDEXEncoder) Format() royalty.ReportFormat { return royalty.ReportFormatDDEX }
func (DDEXEncoder) Extension() string            { return "xml" }
func (DDEXEncoder) ContentType() string          { return "application/xml" }

type ddexReport struct {
	XMLName       xml.Name          `xml:"UsageReport"`
	SchemaVersion string            `xml:"MessageSchemaVersionId,attr"`
	Header        ddexHeader        `xml:"MessageHeader"`
	Period        ddexPeriod        `xml:"ReportingPeriod"`
	Records       []ddexUsageRecord `xml:"UsageRecord"`
	Summary       ddexSummary       `xml:"Summary"`
}

type ddexHeader struct {
	MessageID string    `xml:"MessageId"`
	Sender    ddexParty `xml:"MessageSender"`
	Recipient ddexParty `xml:"MessageRecipient"`
	CreatedAt string    `xml:"MessageCreatedDateTime"`
}

type ddexParty struct {
	PartyID   string `xml:"PartyId"`
	PartyName string `xml:"PartyName,omitempty"`
}

type ddexPeriod struct {
	StartDate string `xml:"StartDate"`
	EndDate   string `xml:"EndDate"`
	Territory string `xml:"TerritoryCode"`
}

type ddexUsageRecord struct {
	UsageID     string          `xml:"UsageId"`
	ISRC        string          `xml:"ISRC,omitempty"`
	ISWC        string          `xml:"ISWC,omitempty"`
	Title       string          `xml:"Title"`
	RecordingID string          `xml:"PartnerRecordingId,omitempty"`
	WorkID      string          `xml:"PartnerWorkId,omitempty"`
	StationID   string          `xml:"ServiceId"`
	UsageDate   string          `xml:"UsageDateTime"`
	Duration    int             `xml:"DurationSeconds"`
	Royalty     ddexRoyaltyInfo `xml:"RoyaltyInformation"`
}

type ddexRoyaltyInfo struct {
	Currency string `xml:"CurrencyCode"`
	Gross    string `xml:"GrossAmount"`
	AdminFee string `xml:"AdministrationFee"`
	Net      string `xml:"NetAmount"`
}

type ddexSummary struct {
	UsageCount       int    `xml:"NumberOfUsages"`
	UniqueWorks      int    `xml:"NumberOfWorks"`
	UniqueRecordings int    `xml:"NumberOfRecordings"`
	Currency         string `xml:"CurrencyCode"`
	Gross            string `xml:"TotalGrossAmount"`
	AdminFee         string `xml:"TotalAdministrationFee"`
	NetPayable       string `xml:"TotalNetPayable"`
}

// Encode implements Encoder.
func (DDEXEncoder) Encode(data ReportData) ([]byte, error) {
	summary := Summarize(data)
	doc := ddexReport{
		SchemaVersion: ddexSchemaVersion,
		Header: ddexHeader{
			MessageID: data.ReportID,
			Sender:    ddexParty{PartyID: data.SenderPartyID, PartyName: data.SenderName},
			Recipient: ddexParty{PartyID: firstNonEmpty(data.Partner.SenderPartyID, data.Partner.Code), PartyName: data.Partner.Name},
			CreatedAt: data.GeneratedAt.UTC().Format(dateTimeLayout),
		},
		Period: ddexPeriod{
			StartDate: data.PeriodStart.UTC().Format(dateLayout),
			EndDate:   data.PeriodEnd.UTC().Format(dateLayout),
			Territory: data.Territory,
		},
		Records: make([]ddexUsageRecord, 0, len(data.Rows)),
		Summary: ddexSummary{
			UsageCount:       summary.UsageCount,
			UniqueWorks:      summary.UniqueWorks,
			UniqueRecordings: summary.UniqueRecordings,
			Currency:         data.Currency,
			Gross:            money(data.Totals.Gross, data.Currency),
			AdminFee:         money(data.Totals.AdminFee, data.Currency),
			NetPayable:       money(data.Totals.Net, data.Currency),
		},
	}
	for _, row := range data.Rows {
		doc.Records = append(doc.Records, ddexUsageRecord{
			UsageID:     row.PlayLogID,
			ISRC:        row.ISRC,
			ISWC:        row.ISWC,
			Title:       row.Title,
			RecordingID: row.ExternalRecordingID,
			WorkID:      row.ExternalWorkID,
			StationID:   row.StationID,
			UsageDate:   row.PlayedAt.UTC().Format(dateTimeLayout),
			Duration:    row.DurationSeconds,
			Royalty: ddexRoyaltyInfo{
				Currency: data.Currency,
				Gross:    money(row.Gross, data.Currency),
				AdminFee: money(row.AdminFee, data.Currency),
				Net:      money(row.Net, data.Currency),
			},
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

