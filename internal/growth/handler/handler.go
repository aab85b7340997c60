package handler

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"growthsheet/internal/growth/domain"
	"growthsheet/internal/growth/providers/adapters"
	dErrors "growthsheet/pkg/domain-errors"
	"growthsheet/pkg/platform/httputil"
	"growthsheet/pkg/requestcontext"
)

// GrowthService is the calculation surface used by the handler.
type GrowthService interface {
	SDSCentile(ctx context.Context, args domain.Arguments) (domain.Table, error)
	CorrectedDecimalAge(ctx context.Context, args domain.Arguments) (domain.Table, error)
}

// DefaultBatchConcurrency bounds concurrent upstream calls per batch request.
const DefaultBatchConcurrency = 4

// Handler exposes the growth calculations over HTTP.
type Handler struct {
	service     GrowthService
	logger      *slog.Logger
	concurrency int
}

// Option configures the Handler.
type Option func(*Handler)

// WithBatchConcurrency sets how many batch rows run at once.
func WithBatchConcurrency(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.concurrency = n
		}
	}
}

// New creates a growth handler.
func New(service GrowthService, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:     service,
		logger:      logger,
		concurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// function binds one public calculation to its route and column names.
type function struct {
	calculate func(GrowthService, context.Context, domain.Arguments) (domain.Table, error)
	columns   func(domain.Mode) []string
}

var (
	sdsCentile = function{
		calculate: GrowthService.SDSCentile,
		columns: func(m domain.Mode) []string {
			return domain.ColumnNames(domain.SDSCentileProjection, m)
		},
	}
	decimalAge = function{
		calculate: GrowthService.CorrectedDecimalAge,
		columns: func(m domain.Mode) []string {
			return domain.ColumnNames(domain.DecimalAgeProjection, m)
		},
	}
)

// Register mounts the handler routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/{reference}", func(r chi.Router) {
		r.Post("/sds-centile", h.handleCalculate(sdsCentile))
		r.Get("/sds-centile", h.handleQuery(sdsCentile))
		r.Post("/sds-centile/batch", h.handleBatch(sdsCentile))

		r.Post("/corrected-decimal-age", h.handleCalculate(decimalAge))
		r.Get("/corrected-decimal-age", h.handleQuery(decimalAge))
		r.Post("/corrected-decimal-age/batch", h.handleBatch(decimalAge))
	})
}

// handleCalculate serves POST /v1/{reference}/<function> with a JSON body.
func (h *Handler) handleCalculate(fn function) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)

		reference, err := referenceParam(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		req, ok := httputil.DecodeAndPrepare[CalculationRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}

		args := req.Arguments(reference, apiKeyHeader(r))
		table, err := fn.calculate(h.service, ctx, args)
		if err != nil {
			h.logFailure(ctx, requestID, err)
			httputil.WriteError(w, err)
			return
		}

		httputil.WriteJSON(w, http.StatusOK, CalculationResponse{
			Columns: fn.columns(args.Mode()),
			Rows:    table,
		})
	}
}

// handleQuery serves GET /v1/{reference}/<function>?... for spreadsheet
// formulas that can only fetch a URL. scalar=true returns the bare value of
// a single-column mode.
func (h *Handler) handleQuery(fn function) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)

		reference, err := referenceParam(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		req := ParseQuery(r.URL.Query())
		if err := httputil.PrepareRequest(req); err != nil {
			httputil.WriteError(w, err)
			return
		}

		key := req.APIKey
		if key == "" {
			key = apiKeyHeader(r)
		}
		args := req.Arguments(reference, key)
		// Unknown modes have no columns and are left for the core to report.
		if req.Scalar && len(fn.columns(args.Mode())) > 1 {
			httputil.WriteError(w, dErrors.Invalid(fieldScalar, "scalar output needs a single-column output_mode"))
			return
		}
		table, err := fn.calculate(h.service, ctx, args)
		if err != nil {
			h.logFailure(ctx, requestID, err)
			httputil.WriteError(w, err)
			return
		}

		if req.Scalar {
			cell, ok := table.Scalar()
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "calculation did not return a single cell"))
				return
			}
			writeScalar(w, cell)
			return
		}

		if req.Format == FormatJSON {
			httputil.WriteJSON(w, http.StatusOK, CalculationResponse{
				Columns: fn.columns(args.Mode()),
				Rows:    table,
			})
			return
		}
		var header []string
		if req.Header {
			header = fn.columns(args.Mode())
		}
		writeCSV(w, header, table)
	}
}

func (h *Handler) logFailure(ctx context.Context, requestID string, err error) {
	level := slog.LevelError
	if dErrors.HasCode(err, dErrors.CodeValidation) || dErrors.HasCode(err, dErrors.CodeEmptyResult) {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "calculation request failed",
		"request_id", requestID,
		"client", string(requestcontext.Kind(ctx)),
		"error", err,
	)
}

func referenceParam(r *http.Request) (domain.Reference, error) {
	return domain.ParseReference(chi.URLParam(r, "reference"))
}

func apiKeyHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(adapters.SubscriptionKeyHeader))
}

// writeScalar writes one cell as plain text for WEBSERVICE formulas.
func writeScalar(w http.ResponseWriter, cell domain.Cell) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(cell.String()))
}

// writeCSV writes the table as CSV, blank cells as empty fields.
func writeCSV(w http.ResponseWriter, header []string, table domain.Table) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	if header != nil {
		_ = cw.Write(header)
	}
	for _, row := range table {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = cell.String()
		}
		_ = cw.Write(record)
	}
	cw.Flush()
}
