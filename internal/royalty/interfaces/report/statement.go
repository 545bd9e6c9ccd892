package report

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	royalty "royalty-engine/internal/royalty/domain"
)

// XLSXEncoder renders a remittance statement workbook.
type XLSXEncoder struct{}

func (XLSXEncoder) Format() royalty.ReportFormat { return royalty.ReportFormatXLSX }
func (XLSXEncoder) Extension() string            { return "xlsx" }
func (XLSXEncoder) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Encode implements Encoder.
func (XLSXEncoder) Encode(data ReportData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	usageSheet := "usage"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(usageSheet); err != nil {
		return nil, err
	}
	generated := data.GeneratedAt.UTC().Format(dateTimeLayout)
	if err := f.SetDocProps(&excelize.DocProperties{
		Created:  generated,
		Modified: generated,
		Creator:  data.SenderName,
		Title:    data.ReportID,
	}); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Remittance Statement", data.ReportID},
		{"Partner", data.Partner.Code},
		{"Partner Name", data.Partner.Name},
		{"Cycle", data.CycleID},
		{"Period", data.PeriodStart.UTC().Format(dateLayout) + " - " + data.PeriodEnd.UTC().Format(dateLayout)},
		{"Territory", data.Territory},
		{"Agreement", data.AgreementID},
		{"Usage Count", data.Totals.UsageCount},
		{"Total Duration (s)", data.Totals.DurationSeconds},
		{"Gross", money(data.Totals.Gross, data.Currency)},
		{"Admin Fee", money(data.Totals.AdminFee, data.Currency)},
		{"Net Payable", money(data.Totals.Net, data.Currency)},
		{"Currency", data.Currency},
		{"Generated", generated},
	}
	for i, pair := range summary {
		row := strconv.Itoa(i + 1)
		_ = f.SetCellValue(summarySheet, "A"+row, pair[0])
		_ = f.SetCellValue(summarySheet, "B"+row, pair[1])
	}

	headers := []string{"Play", "Station", "Played At", "Title", "ISRC", "ISWC", "Duration (s)", "Gross", "Admin Fee", "Net"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(usageSheet, cell, h)
	}
	for i, r := range data.Rows {
		values := []any{
			r.PlayLogID,
			r.StationID,
			r.PlayedAt.UTC().Format(dateTimeLayout),
			r.Title,
			r.ISRC,
			r.ISWC,
			r.DurationSeconds,
			money(r.Gross, data.Currency),
			money(r.AdminFee, data.Currency),
			money(r.Net, data.Currency),
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = f.SetCellValue(usageSheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return normalizeZip(buf.Bytes(), data.GeneratedAt)
}

// PDFEncoder renders a printable remittance statement.
type PDFEncoder struct{}

func (PDFEncoder) Format() royalty.ReportFormat { return royalty.ReportFormatPDF }
func (PDFEncoder) Extension() string            { return "pdf" }
func (PDFEncoder) ContentType() string          { return "application/pdf" }

// Encode implements Encoder.
func (PDFEncoder) Encode(data ReportData) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetCreationDate(data.GeneratedAt.UTC())
	pdf.SetModificationDate(data.GeneratedAt.UTC())
	pdf.SetCatalogSort(true)
	pdf.SetCompression(false)
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Remittance Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	lines := []string{
		fmt.Sprintf("Report: %s", data.ReportID),
		fmt.Sprintf("Partner: %s (%s)", data.Partner.Name, data.Partner.Code),
		fmt.Sprintf("Cycle: %s", firstNonEmpty(data.CycleName, data.CycleID)),
		fmt.Sprintf("Period: %s - %s", data.PeriodStart.UTC().Format(dateLayout), data.PeriodEnd.UTC().Format(dateLayout)),
		fmt.Sprintf("Territory: %s", data.Territory),
		fmt.Sprintf("Generated: %s", data.GeneratedAt.UTC().Format(dateTimeLayout)),
	}
	for _, line := range lines {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Usages: %d", data.Totals.UsageCount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Gross (%s): %s", data.Currency, money(data.Totals.Gross, data.Currency)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Admin Fee (%s): %s", data.Currency, money(data.Totals.AdminFee, data.Currency)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Net Payable (%s): %s", data.Currency, money(data.Totals.Net, data.Currency)))
	pdf.Ln(8)

	widths := []float64{45, 30, 40, 60, 30, 20, 25, 25}
	headers := []string{"Play", "Station", "Played At", "Title", "ISRC", "Sec", "Gross", "Net"}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, r := range data.Rows {
		cells := []string{
			r.PlayLogID,
			r.StationID,
			r.PlayedAt.UTC().Format("2006-01-02 15:04"),
			truncate(r.Title, 34),
			r.ISRC,
			strconv.Itoa(r.DurationSeconds),
			money(r.Gross, data.Currency),
			money(r.Net, data.Currency),
		}
		for i, c := range cells {
			align := "L"
			if i >= 5 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(value string, n int) string {
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[:n])
}
