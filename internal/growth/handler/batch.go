package handler

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"growthsheet/internal/growth/domain"
	"growthsheet/pkg/platform/httputil"
	"growthsheet/pkg/requestcontext"
)

// handleBatch serves POST /v1/{reference}/<function>/batch. Rows are
// independent invocations; one row failing never affects the others.
func (h *Handler) handleBatch(fn function) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)

		reference, err := referenceParam(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		req, ok := httputil.DecodeAndPrepare[BatchRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}

		results := h.runBatch(ctx, fn, reference, apiKeyHeader(r), req.Rows)

		resp := BatchResponse{Results: results}
		for _, res := range results {
			if res.Error != nil {
				resp.Failed++
			} else {
				resp.Succeeded++
			}
		}
		h.logger.InfoContext(ctx, "batch completed",
			"request_id", requestID,
			"rows", len(results),
			"failed", resp.Failed,
		)
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// runBatch evaluates rows with at most h.concurrency calls in flight and
// returns results in input order.
func (h *Handler) runBatch(ctx context.Context, fn function, reference domain.Reference, apiKey string, rows []CalculationRequest) []BatchResult {
	results := make([]BatchResult, len(rows))

	var g errgroup.Group
	g.SetLimit(h.concurrency)
	for i, row := range rows {
		g.Go(func() error {
			args := row.Arguments(reference, apiKey)
			results[i] = BatchResult{Index: i}

			table, err := fn.calculate(h.service, ctx, args)
			if err != nil {
				_, body := httputil.ErrorBody(err)
				results[i].Error = &body
				return nil
			}
			results[i].Columns = fn.columns(args.Mode())
			results[i].Row = table[0]
			return nil
		})
	}
	_ = g.Wait()

	return results
}
