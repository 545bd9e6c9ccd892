package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"royalty-engine/internal/audit"
	"royalty-engine/internal/auth"
	royaltyapp "royalty-engine/internal/royalty/application"
	royalty "royalty-engine/internal/royalty/domain"
	"royalty-engine/internal/royalty/interfaces/report"
)

const maxBodyBytes = 1 << 20

// ChecksumHeader carries the recorded SHA-256 of a downloaded report.
const ChecksumHeader = "X-Checksum-SHA256"

// AuditLister reads audit rows.
type AuditLister interface {
	List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// Handler provides the royalty admin endpoints.
type Handler struct {
	distributions *royaltyapp.DistributionService
	cycles        *royaltyapp.CycleManager
	settlements   *royaltyapp.SettlementProcessor
	events        royaltyapp.EventPublisher
	audits        AuditLister
	reports       *report.Registry
	validate      *validator.Validate
	logger        *zap.Logger
}

// NewHandler constructs a handler. audits may be nil.
func NewHandler(
	distributions *royaltyapp.DistributionService,
	cycles *royaltyapp.CycleManager,
	settlements *royaltyapp.SettlementProcessor,
	events royaltyapp.EventPublisher,
	audits AuditLister,
	logger *zap.Logger,
) (*Handler, error) {
	if distributions == nil {
		return nil, errors.New("royalty handler: nil distribution service")
	}
	if cycles == nil {
		return nil, errors.New("royalty handler: nil cycle manager")
	}
	if settlements == nil {
		return nil, errors.New("royalty handler: nil settlement processor")
	}
	if events == nil {
		return nil, errors.New("royalty handler: nil event publisher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		distributions: distributions,
		cycles:        cycles,
		settlements:   settlements,
		events:        events,
		audits:        audits,
		reports:       report.DefaultRegistry(),
		validate:      validator.New(),
		logger:        logger,
	}, nil
}

// Routes mounts the API under r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/calculations", func(r chi.Router) {
			r.Post("/plays/{id}", h.CalculatePlay)
			r.Post("/batch", h.CalculateBatch)
		})
		r.Route("/cycles", func(r chi.Router) {
			r.Get("/", h.ListCycles)
			r.Post("/", h.OpenCycle)
			r.Get("/{id}", h.GetCycle)
			r.Post("/{id}/lock", h.LockCycle)
			r.Post("/{id}/settle", h.SettleCycle)
			r.Post("/{id}/invoice", h.InvoiceCycle)
			r.Post("/{id}/remit", h.RemitCycle)
			r.Post("/{id}/reset", h.ResetCycle)
			r.Get("/{id}/line-items", h.ListLineItems)
			r.Get("/{id}/remittances", h.ListRemittances)
			r.Get("/{id}/exports", h.ListExports)
		})
		r.Post("/remittances/{id}/ack", h.AcknowledgeRemittance)
		r.Get("/exports/{id}/download", h.DownloadExport)
		r.Get("/exports/{id}/verify", h.VerifyExport)
		r.Post("/reports/preview", h.PreviewReport)
		r.Get("/audit", h.ListAudit)
	})
}

// CalculatePlay handles POST /api/v1/calculations/plays/{id}. With
// ?recalculate=true the play's distributions are replaced.
func (h *Handler) CalculatePlay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := auth.ActorFromContext(r.Context())
	var (
		result royalty.CalculationResult
		err    error
	)
	if recalc, _ := strconv.ParseBool(r.URL.Query().Get("recalculate")); recalc {
		result, err = h.distributions.RecalculatePlay(r.Context(), id, actor)
	} else {
		result, err = h.distributions.CalculatePlay(r.Context(), id, actor)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusOK
	if !result.OK() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, toCalculationDTO(result))
}

// CalculateBatch handles POST /api/v1/calculations/batch with either
// play_ids or a from/to window of pending plays.
func (h *Handler) CalculateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor := auth.ActorFromContext(r.Context())
	var (
		batch royalty.BatchResult
		err   error
	)
	switch {
	case len(req.PlayIDs) > 0:
		batch, err = h.distributions.CalculateBatch(r.Context(), req.PlayIDs, actor)
	case req.From != "" && req.To != "":
		from, _ := time.Parse(dateLayout, req.From)
		to, _ := time.Parse(dateLayout, req.To)
		if to.Before(from) {
			http.Error(w, "to must not be before from", http.StatusBadRequest)
			return
		}
		batch, err = h.distributions.CalculatePending(r.Context(), from, to.AddDate(0, 0, 1), req.Size, actor)
	default:
		http.Error(w, "play_ids or from/to is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(batch))
}

// OpenCycle handles POST /api/v1/cycles.
func (h *Handler) OpenCycle(w http.ResponseWriter, r *http.Request) {
	var req openCycleRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, _ := time.Parse(dateLayout, req.PeriodStart)
	end, _ := time.Parse(dateLayout, req.PeriodEnd)
	in := royaltyapp.OpenCycleInput{
		Name:        req.Name,
		Territory:   req.Territory,
		Currency:    req.Currency,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	if req.DefaultAdminFeePercent != "" {
		fee, err := decimal.NewFromString(req.DefaultAdminFeePercent)
		if err != nil {
			http.Error(w, "invalid default_admin_fee_percent", http.StatusBadRequest)
			return
		}
		in.DefaultAdminFeePercent = &fee
	}
	cycle, err := h.cycles.Open(r.Context(), in, auth.ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCycleDTO(*cycle))
}

// ListCycles handles GET /api/v1/cycles?status=.
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := h.cycles.List(r.Context(), royalty.CycleStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]cycleDTO, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, toCycleDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCycle handles GET /api/v1/cycles/{id}.
func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.cycles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(*cycle))
}

// LockCycle handles POST /api/v1/cycles/{id}/lock.
func (h *Handler) LockCycle(w http.ResponseWriter, r *http.Request) {
	summary, err := h.cycles.Lock(r.Context(), chi.URLParam(r, "id"), auth.ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lockDTO{
		CycleID:      summary.CycleID,
		LineItems:    summary.LineItems,
		UsageCount:   summary.UsageCount,
		Uncalculated: summary.Uncalculated,
		Gross:        amount(summary.Gross, summary.Currency),
		AdminFee:     amount(summary.AdminFee, summary.Currency),
		Net:          amount(summary.Net, summary.Currency),
		Currency:     summary.Currency,
		Warnings:     summary.Warnings,
	})
}

// SettleCycle handles POST /api/v1/cycles/{id}/settle.
func (h *Handler) SettleCycle(w http.ResponseWriter, r *http.Request) {
	summary, err := h.cycles.Settle(r.Context(), chi.URLParam(r, "id"), auth.ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementDTO{
		CycleID:             summary.CycleID,
		AgreementsProcessed: summary.AgreementsProcessed,
		RemittancesCreated:  summary.RemittancesCreated,
		ReportsGenerated:    summary.ReportsGenerated,
		TotalPayable:        amount(summary.TotalPayable, summary.Currency),
		Currency:            summary.Currency,
		Skipped:             summary.Skipped,
	})
}

// InvoiceCycle handles POST /api/v1/cycles/{id}/invoice.
func (h *Handler) InvoiceCycle(w http.ResponseWriter, r *http.Request) {
	h.respondCycle(w)(h.cycles.MarkInvoiced(r.Context(), chi.URLParam(r, "id"), auth.ActorFromContext(r.Context())))
}

// RemitCycle handles POST /api/v1/cycles/{id}/remit.
func (h *Handler) RemitCycle(w http.ResponseWriter, r *http.Request) {
	h.respondCycle(w)(h.cycles.MarkRemitted(r.Context(), chi.URLParam(r, "id"), auth.ActorFromContext(r.Context())))
}

// ResetCycle handles POST /api/v1/cycles/{id}/reset.
func (h *Handler) ResetCycle(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondCycle(w)(h.cycles.Reset(r.Context(), chi.URLParam(r, "id"), auth.ActorFromContext(r.Context()), req.Reason))
}

func (h *Handler) respondCycle(w http.ResponseWriter) func(*royalty.RoyaltyCycle, error) {
	return func(cycle *royalty.RoyaltyCycle, err error) {
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toCycleDTO(*cycle))
	}
}

// ListLineItems handles GET /api/v1/cycles/{id}/line-items.
func (h *Handler) ListLineItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.cycles.LineItems(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]lineItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toLineItemDTO(item))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListRemittances handles GET /api/v1/cycles/{id}/remittances.
func (h *Handler) ListRemittances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.cycles.Get(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	remittances, err := h.settlements.Remittances(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]remittanceDTO, 0, len(remittances))
	for _, rem := range remittances {
		out = append(out, toRemittanceDTO(rem))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListExports handles GET /api/v1/cycles/{id}/exports.
func (h *Handler) ListExports(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.cycles.Get(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	exports, err := h.settlements.Exports(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]exportDTO, 0, len(exports))
	for _, e := range exports {
		out = append(out, toExportDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// AcknowledgeRemittance handles POST /api/v1/remittances/{id}/ack. The
// acknowledgement is published and applied by the remittance handler.
func (h *Handler) AcknowledgeRemittance(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if !h.decode(w, r, &req) {
		return
	}
	event := royaltyapp.RemittanceAcknowledged{
		RemittanceID:     chi.URLParam(r, "id"),
		CycleID:          req.CycleID,
		Status:           royalty.RemittanceStatus(req.Status),
		PaymentReference: req.PaymentReference,
		OccurredAt:       time.Now().UTC(),
	}
	if err := h.events.Publish(r.Context(), event); err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("remittance acknowledgement accepted",
		zap.String("event", "remittance.ack"),
		zap.String("remittance_id", event.RemittanceID),
		zap.String("status", req.Status),
		zap.String("actor", string(auth.ActorFromContext(r.Context()))),
		zap.String("ip", audit.ClientIP(r)),
	)
	w.WriteHeader(http.StatusAccepted)
}

// DownloadExport handles GET /api/v1/exports/{id}/download.
func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	export, body, err := h.settlements.Download(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	contentType := "application/octet-stream"
	extension := string(export.Format)
	if enc, err := h.reports.Encoder(export.Format); err == nil {
		contentType = enc.ContentType()
		extension = enc.Extension()
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.PartnerCode+"_"+export.CycleID+"."+extension+`"`)
	w.Header().Set(ChecksumHeader, export.Checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// VerifyExport handles GET /api/v1/exports/{id}/verify. A checksum mismatch
// is reported in the body rather than as an error status.
func (h *Handler) VerifyExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	export, err := h.settlements.VerifyExport(r.Context(), id)
	if err != nil && !errors.Is(err, royalty.ErrChecksumMismatch) {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"export":   toExportDTO(*export),
		"verified": err == nil,
	})
}

// PreviewReport handles POST /api/v1/reports/preview?cycle_id=&partner=&format=.
func (h *Handler) PreviewReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cycleID := q.Get("cycle_id")
	partner := strings.ToUpper(strings.TrimSpace(q.Get("partner")))
	if cycleID == "" || partner == "" {
		http.Error(w, "cycle_id and partner are required", http.StatusBadRequest)
		return
	}
	rendered, err := h.settlements.Preview(r.Context(), cycleID, partner, royalty.ReportFormat(strings.ToLower(q.Get("format"))))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", rendered.ContentType)
	w.Header().Set(ChecksumHeader, rendered.Checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rendered.Body)
}

// ListAudit handles GET /api/v1/audit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audits == nil {
		http.Error(w, "audit log not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	filter := audit.Filter{
		Type:      audit.Type(q.Get("type")),
		CycleID:   q.Get("cycle_id"),
		PlayLogID: q.Get("play_log_id"),
		Limit:     100,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 1000 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	entries, err := h.audits.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, royalty.ErrCycleNotFound),
		errors.Is(err, royalty.ErrPlayNotFound),
		errors.Is(err, royalty.ErrExportNotFound),
		errors.Is(err, royalty.ErrPartnerNotFound):
		return http.StatusNotFound
	case errors.Is(err, royalty.ErrInvalidCycleState),
		errors.Is(err, royalty.ErrCycleBusy):
		return http.StatusConflict
	case errors.Is(err, royalty.ErrEmptyID),
		errors.Is(err, royalty.ErrInvalidPeriod),
		errors.Is(err, royalty.ErrInvalidPercent),
		errors.Is(err, report.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
