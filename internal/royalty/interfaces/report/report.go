package report

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	royalty "royalty-engine/internal/royalty/domain"
)

// ErrUnsupportedFormat is returned for formats without a registered encoder.
var ErrUnsupportedFormat = errors.New("report: unsupported format")

// UsageRow is one attributed play in a partner report.
type UsageRow struct {
	PlayLogID           string
	StationID           string
	PlayedAt            time.Time
	Title               string
	ISRC                string
	ISWC                string
	ExternalRecordingID string
	ExternalWorkID      string
	MatchMethod         royalty.MatchMethod
	DurationSeconds     int
	Gross               decimal.Decimal
	AdminFee            decimal.Decimal
	Net                 decimal.Decimal
}

// Totals are the authoritative remittance amounts for the report.
type Totals struct {
	UsageCount      int
	DurationSeconds int
	Gross           decimal.Decimal
	AdminFee        decimal.Decimal
	Net             decimal.Decimal
}

// ReportData is everything an encoder needs to render one partner report.
// GeneratedAt is the only time value encoders may embed besides row dates.
type ReportData struct {
	ReportID      string
	SenderPartyID string
	SenderName    string
	Partner       royalty.PartnerOrganization
	CycleID       string
	CycleName     string
	Territory     string
	AgreementID   string
	Currency      string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	GeneratedAt   time.Time
	Rows          []UsageRow
	Totals        Totals
}

// Summary is computed from the usage rows.
type Summary struct {
	UsageCount       int
	UniqueWorks      int
	UniqueRecordings int
	DurationSeconds  int
	Gross            decimal.Decimal
	AdminFee         decimal.Decimal
	Net              decimal.Decimal
}

// Summarize computes row totals and distinct catalog counts.
func Summarize(data ReportData) Summary {
	summary := Summary{Gross: decimal.Zero, AdminFee: decimal.Zero, Net: decimal.Zero}
	works := make(map[string]struct{})
	recordings := make(map[string]struct{})
	for _, row := range data.Rows {
		summary.UsageCount++
		summary.DurationSeconds += row.DurationSeconds
		summary.Gross = summary.Gross.Add(row.Gross)
		summary.AdminFee = summary.AdminFee.Add(row.AdminFee)
		summary.Net = summary.Net.Add(row.Net)
		if key := firstNonEmpty(row.ExternalWorkID, row.ISWC); key != "" {
			works[key] = struct{}{}
		}
		if key := firstNonEmpty(row.ExternalRecordingID, row.ISRC); key != "" {
			recordings[key] = struct{}{}
		}
	}
	summary.UniqueWorks = len(works)
	summary.UniqueRecordings = len(recordings)
	return summary
}

// SortRows orders rows by play time then play id.
func SortRows(rows []UsageRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].PlayedAt.Equal(rows[j].PlayedAt) {
			return rows[i].PlayedAt.Before(rows[j].PlayedAt)
		}
		return rows[i].PlayLogID < rows[j].PlayLogID
	})
}

// Encoder renders report data in one format.
type Encoder interface {
	Format() royalty.ReportFormat
	Extension() string
	ContentType() string
	Encode(data ReportData) ([]byte, error)
}

// Rendered is an encoded report with its checksum.
type Rendered struct {
	Format      royalty.ReportFormat
	Extension   string
	ContentType string
	Body        []byte
	Checksum    string
}

// Registry maps report formats to encoders.
type Registry struct {
	encoders map[royalty.ReportFormat]Encoder
}

// NewRegistry registers the given encoders; later ones replace earlier ones
// with the same format.
func NewRegistry(encoders ...Encoder) *Registry {
	r := &Registry{encoders: make(map[royalty.ReportFormat]Encoder, len(encoders))}
	for _, enc := range encoders {
		if enc != nil {
			r.encoders[enc.Format()] = enc
		}
	}
	return r
}

// DefaultRegistry registers every built-in format.
func DefaultRegistry() *Registry {
	return NewRegistry(CSVEncoder{}, CWREncoder{}, DDEXEncoder{}, JSONEncoder{}, XLSXEncoder{}, PDFEncoder{})
}

// Encoder returns the encoder for format.
func (r *Registry) Encoder(format royalty.ReportFormat) (Encoder, error) {
	if r != nil {
		if enc, ok := r.encoders[format]; ok {
			return enc, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Formats lists registered formats in name order.
func (r *Registry) Formats() []royalty.ReportFormat {
	if r == nil {
		return nil
	}
	out := make([]royalty.ReportFormat, 0, len(r.encoders))
	for format := range r.encoders {
		out = append(out, format)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Render encodes data and computes its SHA-256 checksum.
func (r *Registry) Render(format royalty.ReportFormat, data ReportData) (Rendered, error) {
	enc, err := r.Encoder(format)
	if err != nil {
		return Rendered{}, err
	}
	body, err := enc.Encode(data)
	if err != nil {
		return Rendered{}, fmt.Errorf("report: encode %s: %w", format, err)
	}
	return Rendered{
		Format:      format,
		Extension:   enc.Extension(),
		ContentType: enc.ContentType(),
		Body:        body,
		Checksum:    Checksum(body),
	}, nil
}

// Checksum returns the hex SHA-256 digest of body.
func Checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func money(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(royalty.MinorUnits(currency))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05Z"
)
