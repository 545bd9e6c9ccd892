package report

import (
	"bytes"
	"encoding/csv"
	"strconv"

	royalty "royalty-engine/internal/royalty/domain"
)

var csvHeader = []string{
	"cycle_id", "partner_code", "play_log_id", "station_id", "played_at",
	"title", "isrc", "iswc", "external_recording_id", "external_work_id",
	"duration_seconds", "gross", "admin_fee", "net", "currency",
}

// CSVEncoder renders one delimited row per usage record.
type CSVEncoder struct{}

func (CSVEncoder) Format() royalty.ReportFormat { return royalty.ReportFormatCSV }
func (CSVEncoder) Extension() string            { return "csv" }
func (CSVEncoder) ContentType() string          { return "text/csv" }

// Encode implements Encoder.
func (CSVEncoder) Encode(data ReportData) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, row := range data.Rows {
		record := []string{
			data.CycleID,
			data.Partner.Code,
			row.PlayLogID,
			row.StationID,
			row.PlayedAt.UTC().Format(dateTimeLayout),
			row.Title,
			row.ISRC,
			row.ISWC,
			row.ExternalRecordingID,
			row.ExternalWorkID,
			strconv.Itoa(row.DurationSeconds),
			money(row.Gross, data.Currency),
			money(row.AdminFee, data.Currency),
			money(row.Net, data.Currency),
			data.Currency,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
