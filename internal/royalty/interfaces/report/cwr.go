package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	royalty "royalty-engine/internal/royalty/domain"
)

const (
	cwrVersion      = "02.10"
	cwrHeaderVer    = "01.10"
	cwrLineEnd      = "\r\n"
	cwrMaxDuration  = 995959
	cwrPublisherTyp = "E "
)

// CWREncoder renders fixed-width registration and performance records:
// HDR, GRH, then NWR+SPU per work, GRT and TRL.
type CWREncoder struct{}

func (CWREncoder) Format() royalty.ReportFormat { return royalty.ReportFormatCWR }
func (CWREncoder) Extension() string            { return "cwr" }
func (CWREncoder) ContentType() string          { return "text/plain" }

type cwrWork struct {
	key        string
	title      string
	iswc       string
	usageCount int
	duration   int
	gross      decimal.Decimal
	adminFee   decimal.Decimal
	net        decimal.Decimal
}

// Encode implements Encoder.
func (CWREncoder) Encode(data ReportData) ([]byte, error) {
	works := groupWorks(data.Rows)
	var b strings.Builder
	records := 0
	write := func(parts ...string) {
		b.WriteString(strings.Join(parts, ""))
		b.WriteString(cwrLineEnd)
		records++
	}

	generated := data.GeneratedAt.UTC()
	write(
		"HDR",
		"PB",
		cwrAlpha(data.SenderPartyID, 9),
		cwrAlpha(data.SenderName, 45),
		cwrHeaderVer,
		generated.Format("20060102"),
		generated.Format("150405"),
		generated.Format("20060102"),
		cwrAlpha("", 15),
	)

	groupStart := records
	write("GRH", "NWR", cwrNumeric(1, 5), cwrVersion, cwrNumeric(0, 10))
	for i, work := range works {
		seq := cwrNumeric(int64(i), 8)
		write(
			"NWR",
			seq,
			cwrNumeric(0, 8),
			cwrAlpha(work.title, 60),
			cwrAlpha("", 2),
			cwrAlpha(work.key, 14),
			cwrAlpha(iswcDigits.Replace(work.iswc), 11),
			cwrNumeric(durationHHMMSS(work.duration), 6),
			cwrNumeric(int64(work.usageCount), 8),
			cwrNumeric(minorUnits(work.gross, data.Currency), 14),
			cwrNumeric(minorUnits(work.adminFee, data.Currency), 14),
			cwrNumeric(minorUnits(work.net, data.Currency), 14),
			cwrAlpha(data.Currency, 3),
		)
		write(
			"SPU",
			seq,
			cwrNumeric(1, 8),
			cwrNumeric(1, 2),
			cwrAlpha(data.Partner.Code, 9),
			cwrAlpha(data.Partner.Name, 45),
			cwrPublisherTyp,
			cwrNumeric(10000, 5),
		)
	}
	groupRecords := records - groupStart + 1
	write("GRT", cwrNumeric(1, 5), cwrNumeric(int64(len(works)), 8), cwrNumeric(int64(groupRecords), 8))
	write("TRL", cwrNumeric(1, 5), cwrNumeric(int64(len(works)), 8), cwrNumeric(int64(records+1), 8))
	return []byte(b.String()), nil
}

func groupWorks(rows []UsageRow) []cwrWork {
	var works []cwrWork
	index := make(map[string]int)
	for _, row := range rows {
		key := royalty.RecordingKey(row.ExternalRecordingID, row.ExternalWorkID)
		i, ok := index[key]
		if !ok {
			i = len(works)
			index[key] = i
			works = append(works, cwrWork{
				key:      key,
				title:    row.Title,
				iswc:     row.ISWC,
				gross:    decimal.Zero,
				adminFee: decimal.Zero,
				net:      decimal.Zero,
			})
		}
		w := &works[i]
		w.usageCount++
		w.duration += row.DurationSeconds
		w.gross = w.gross.Add(row.Gross)
		w.adminFee = w.adminFee.Add(row.AdminFee)
		w.net = w.net.Add(row.Net)
		if w.iswc == "" {
			w.iswc = row.ISWC
		}
	}
	return works
}

var iswcDigits = strings.NewReplacer("-", "", ".", "")

// cwrAlpha upper-cases, replaces non-ASCII runes and pads or truncates to width.
func cwrAlpha(value string, width int) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(value) {
		if r < 0x20 || r > 0x7e {
			r = '?'
		}
		b.WriteRune(r)
	}
	out := b.String()
	if len(out) > width {
		return out[:width]
	}
	return out + strings.Repeat(" ", width-len(out))
}

// cwrNumeric zero-pads n to width; negative values become zero and overflow
// saturates at all nines.
func cwrNumeric(n int64, width int) string {
	if n < 0 {
		n = 0
	}
	out := fmt.Sprintf("%0*d", width, n)
	if len(out) > width {
		return strings.Repeat("9", width)
	}
	return out
}

func durationHHMMSS(seconds int) int64 {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	value := int64(h*10000 + m*100 + s)
	if h > 99 {
		return cwrMaxDuration
	}
	return value
}

func minorUnits(amount decimal.Decimal, currency string) int64 {
	return royalty.RoundMoney(amount, currency).Shift(royalty.MinorUnits(currency)).IntPart()
}
