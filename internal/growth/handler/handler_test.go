package handler

// Handler tests cover envelope parsing, error status mapping, output formats
// and batch ordering. Calculation semantics are tested in the service and
// domain packages.

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"growthsheet/internal/growth/domain"
	providermocks "growthsheet/internal/growth/providers/mocks"
	"growthsheet/internal/growth/service"
	dErrors "growthsheet/pkg/domain-errors"
	"growthsheet/pkg/platform/httputil"
)

// =============================================================================
// Stub Implementations
// =============================================================================

type stubGrowthService struct {
	mu       sync.Mutex
	calls    []domain.Arguments
	sdsFunc  func(ctx context.Context, args domain.Arguments) (domain.Table, error)
	ageFunc  func(ctx context.Context, args domain.Arguments) (domain.Table, error)
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *stubGrowthService) record(args domain.Arguments) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, args)
}

func (s *stubGrowthService) SDSCentile(ctx context.Context, args domain.Arguments) (domain.Table, error) {
	s.record(args)
	if s.sdsFunc != nil {
		return s.sdsFunc(ctx, args)
	}
	return domain.Table{{domain.Num(-0.2), domain.Num(-0.5), domain.Num(42.1), domain.Num(30.9)}}, nil
}

func (s *stubGrowthService) CorrectedDecimalAge(ctx context.Context, args domain.Arguments) (domain.Table, error) {
	s.record(args)
	if s.ageFunc != nil {
		return s.ageFunc(ctx, args)
	}
	return domain.Table{{domain.Num(1.21), domain.Blank}}, nil
}

func newTestRouter(svc GrowthService, opts ...Option) http.Handler {
	r := chi.NewRouter()
	New(svc, slog.New(slog.DiscardHandler), opts...).Register(r)
	return r
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

const validBody = `{
	"birth_date": "2020-04-12",
	"observation_date": "2021-06-28T00:00:00Z",
	"gestation_weeks": 32,
	"gestation_days": 3,
	"sex": "male",
	"measurement_method": "weight",
	"observation_value": 9.1,
	"output_mode": "both"
}`

// =============================================================================
// POST JSON
// =============================================================================

func TestCalculateJSON(t *testing.T) {
	svc := &stubGrowthService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/uk-who/sds-centile", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Subscription-Key", "primary-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"columns": ["corrected_sds","chronological_sds","corrected_centile","chronological_centile"],
		"rows": [[-0.2,-0.5,42.1,30.9]]
	}`, w.Body.String())

	require.Len(t, svc.calls, 1)
	args := svc.calls[0]
	assert.Equal(t, "primary-key", args.APIKey)
	assert.Equal(t, domain.ReferenceUKWHO, args.Reference)
	assert.Equal(t, "2020-04-12", domain.FormatDate(*args.BirthDate))
	assert.Equal(t, "2021-06-28", domain.FormatDate(*args.ObservationDate))
	assert.Equal(t, 32.0, args.GestationWeeks)
	assert.Equal(t, 9.1, args.ObservationValue)
}

func TestCalculateBlankCellsAreNull(t *testing.T) {
	router := newTestRouter(&stubGrowthService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/turner/corrected-decimal-age", strings.NewReader(validBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"columns": ["chronological_decimal_age","corrected_decimal_age"],
		"rows": [[1.21,null]]
	}`, w.Body.String())
}

func TestMissingNumbersReachTheCoreAsNaN(t *testing.T) {
	svc := &stubGrowthService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/uk-who/sds-centile",
		strings.NewReader(`{"birth_date":"not a date","gestation_days":null}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Len(t, svc.calls, 1)
	args := svc.calls[0]
	assert.Nil(t, args.BirthDate)
	assert.Nil(t, args.ObservationDate)
	assert.True(t, math.IsNaN(args.GestationWeeks))
	assert.True(t, math.IsNaN(args.GestationDays))
	assert.True(t, math.IsNaN(args.ObservationValue))
	assert.Empty(t, args.APIKey)
}

func TestLenientEnvelopeValues(t *testing.T) {
	svc := &stubGrowthService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/uk-who/sds-centile", strings.NewReader(`{
		"birth_date": 20200412,
		"observation_date": "2021-06-28",
		"gestation_weeks": "",
		"gestation_days": "abc",
		"sex": true,
		"measurement_method": "weight",
		"observation_value": " 9.1 ",
		"output_mode": null
	}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.calls, 1)
	args := svc.calls[0]
	assert.Nil(t, args.BirthDate)
	require.NotNil(t, args.ObservationDate)
	assert.True(t, math.IsNaN(args.GestationWeeks))
	assert.True(t, math.IsNaN(args.GestationDays))
	assert.Equal(t, "true", args.Sex)
	assert.Equal(t, 9.1, args.ObservationValue)
	assert.Empty(t, args.OutputMode)
}

// Envelope values the core rejects must reach it, so the first failing
// argument in check order is the one reported.
func TestPostReportsFirstFailingArgument(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "blank number with missing birth date",
			body:  `{"observation_date":"2021-06-28","gestation_weeks":"","gestation_days":3,"sex":"male","measurement_method":"weight","observation_value":9.1}`,
			field: domain.FieldBirthDate,
		},
		{
			name:  "text number with missing birth date",
			body:  `{"observation_date":"2021-06-28","gestation_weeks":"abc","gestation_days":3,"sex":"male","measurement_method":"weight","observation_value":9.1}`,
			field: domain.FieldBirthDate,
		},
		{
			name:  "blank gestation",
			body:  `{"birth_date":"2020-04-12","observation_date":"2021-06-28","gestation_weeks":"","gestation_days":3,"sex":"male","measurement_method":"weight","observation_value":9.1}`,
			field: domain.FieldGestationWeeks,
		},
		{
			name:  "numeric sex",
			body:  `{"birth_date":"2020-04-12","observation_date":"2021-06-28","gestation_weeks":"32","gestation_days":3,"sex":1,"measurement_method":"weight","observation_value":9.1}`,
			field: domain.FieldSex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			// No EXPECT: any upstream call fails the test.
			calculator := providermocks.NewMockCalculator(ctrl)
			router := newTestRouter(service.New(calculator))

			req := httptest.NewRequest(http.MethodPost, "/v1/uk-who/sds-centile", strings.NewReader(tt.body))
			req.Header.Set("Subscription-Key", "primary-key")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeErrorBody(t, w)
			assert.Equal(t, "validation_failed", resp.Error)
			assert.Equal(t, tt.field, resp.Field)
		})
	}
}

func TestNumberDecoding(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{`12.5`, 12.5},
		{`"12.5"`, 12.5},
		{`" 3 "`, 3},
		{`""`, math.NaN()},
		{`"abc"`, math.NaN()},
		{`true`, math.NaN()},
		{`[1]`, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var n Number
			require.NoError(t, json.Unmarshal([]byte(tt.in), &n))
			if math.IsNaN(tt.want) {
				assert.True(t, math.IsNaN(n.Float64()))
				return
			}
			assert.Equal(t, tt.want, n.Float64())
		})
	}

	var absent *Number
	assert.True(t, math.IsNaN(absent.Float64()))
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		field  string
	}{
		{"validation", dErrors.Invalid(domain.FieldSex, `"MALE" is not a correct sex`), http.StatusBadRequest, "validation_failed", "sex"},
		{"empty result", dErrors.New(dErrors.CodeEmptyResult, "Null returned from API"), http.StatusUnprocessableEntity, "empty_result", ""},
		{"transport", dErrors.New(dErrors.CodeTransport, "growth api request failed"), http.StatusBadGateway, "transport_failed", ""},
		{"timeout", dErrors.New(dErrors.CodeTimeout, "growth api request timed out"), http.StatusGatewayTimeout, "timeout", ""},
		{"bad data", dErrors.New(dErrors.CodeBadData, "response is not a JSON object"), http.StatusBadGateway, "bad_data", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubGrowthService{
				sdsFunc: func(context.Context, domain.Arguments) (domain.Table, error) { return nil, tt.err },
			}
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodPost, "/v1/uk-who/sds-centile", strings.NewReader(validBody))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeErrorBody(t, w)
			assert.Equal(t, tt.code, resp.Error)
			assert.Equal(t, tt.field, resp.Field)
		})
	}
}

func TestUnknownReferenceIsNotFound(t *testing.T) {
	svc := &stubGrowthService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/who-2006/sds-centile", strings.NewReader(validBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeErrorBody(t, w).Error)
	assert.Empty(t, svc.calls)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	svc := &stubGrowthService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/uk-who/sds-centile", strings.NewReader(`{"sex":`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", decodeErrorBody(t, w).Error)
	assert.Empty(t, svc.calls)
}

// =============================================================================
// GET (IMPORTDATA)
// =============================================================================

const validQuery = "birth_date=2020-04-12&observation_date=2021-06-28&gestation_weeks=32&gestation_days=3" +
	"&sex=male&measurement_method=weight&observation_value=9.1"

func TestQueryDefaultsToCSV(t *testing.T) {
	svc := &stubGrowthService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/uk-who/sds-centile?"+validQuery+"&output_mode=sds&api_key=query-key", nil)
	req.Header.Set("Subscription-Key", "header-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "-0.2,-0.5,42.1,30.9\n", w.Body.String())

	require.Len(t, svc.calls, 1)
	assert.Equal(t, "query-key", svc.calls[0].APIKey)
	assert.Equal(t, "sds", svc.calls[0].OutputMode)
}

func TestQueryCSVWithHeaderAndBlankCell(t *testing.T) {
	router := newTestRouter(&stubGrowthService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/uk-who/corrected-decimal-age?"+validQuery+"&header=true", nil)
	req.Header.Set("Subscription-Key", "header-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "chronological_decimal_age,corrected_decimal_age\n1.21,\n", w.Body.String())
}

func TestQueryFallsBackToHeaderKey(t *testing.T) {
	svc := &stubGrowthService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/uk-who/sds-centile?"+validQuery+"&format=JSON", nil)
	req.Header.Set("Subscription-Key", " header-key ")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Len(t, svc.calls, 1)
	assert.Equal(t, "header-key", svc.calls[0].APIKey)
}

func TestQueryUnparseableNumberIsNaN(t *testing.T) {
	svc := &stubGrowthService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/uk-who/sds-centile?observation_value=heavy", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, svc.calls, 1)
	assert.True(t, math.IsNaN(svc.calls[0].ObservationValue))
}

func TestQueryRejectsUnknownFormat(t *testing.T) {
	svc := &stubGrowthService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/uk-who/sds-centile?"+validQuery+"&format=xml", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "format", decodeErrorBody(t, w).Field)
	assert.Empty(t, svc.calls)
}

func TestQueryScalar(t *testing.T) {
	t.Run("single-column mode returns the bare value", func(t *testing.T) {
		svc := &stubGrowthService{
			ageFunc: func(context.Context, domain.Arguments) (domain.Table, error) {
				return domain.Table{{domain.Num(1.13)}}, nil
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/v1/uk-who/corrected-decimal-age?"+validQuery+"&output_mode=corr&scalar=true&api_key=k", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, "1.13", w.Body.String())
	})

	t.Run("multi-column mode is rejected before the call", func(t *testing.T) {
		svc := &stubGrowthService{}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/v1/uk-who/sds-centile?"+validQuery+"&output_mode=sds&scalar=1&api_key=k", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "scalar", decodeErrorBody(t, w).Field)
		assert.Empty(t, svc.calls)
	})
}

// =============================================================================
// Batch
// =============================================================================

func batchBody(t *testing.T, rows ...string) *bytes.Reader {
	t.Helper()
	return bytes.NewReader([]byte(`{"rows":[` + strings.Join(rows, ",") + `]}`))
}

func TestBatchKeepsInputOrderAndIsolatesFailures(t *testing.T) {
	svc := &stubGrowthService{
		sdsFunc: func(_ context.Context, args domain.Arguments) (domain.Table, error) {
			if args.Sex != "male" && args.Sex != "female" {
				return nil, dErrors.Invalid(domain.FieldSex, "bad sex")
			}
			// Later rows finish first.
			if args.Sex == "male" {
				time.Sleep(20 * time.Millisecond)
			}
			return domain.Table{{domain.Num(args.ObservationValue)}}, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/uk-who/sds-centile/batch", batchBody(t,
		`{"sex":"male","observation_value":1,"output_mode":"sds"}`,
		`{"sex":"other","observation_value":2}`,
		`{"sex":"female","observation_value":3,"output_mode":"centiles"}`,
	))
	req.Header.Set("Subscription-Key", "batch-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Len(t, resp.Results, 3)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)

	assert.Equal(t, 0, resp.Results[0].Index)
	assert.Equal(t, domain.Row{domain.Num(1)}, resp.Results[0].Row)
	assert.Equal(t, []string{"corrected_sds", "chronological_sds"}, resp.Results[0].Columns)

	require.NotNil(t, resp.Results[1].Error)
	assert.Equal(t, "validation_failed", resp.Results[1].Error.Error)
	assert.Equal(t, "sex", resp.Results[1].Error.Field)
	assert.Nil(t, resp.Results[1].Row)

	assert.Equal(t, domain.Row{domain.Num(3)}, resp.Results[2].Row)
	assert.Equal(t, []string{"corrected_centile", "chronological_centile"}, resp.Results[2].Columns)

	for _, args := range svc.calls {
		assert.Equal(t, "batch-key", args.APIKey)
	}
}

func TestBatchBlankCellsStayPerRow(t *testing.T) {
	svc := &stubGrowthService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/uk-who/sds-centile/batch", batchBody(t,
		`{"gestation_weeks":""}`,
		`{"gestation_weeks":"32"}`,
	))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.calls, 2)
	weeks := []float64{svc.calls[0].GestationWeeks, svc.calls[1].GestationWeeks}
	assert.Contains(t, weeks, 32.0)
}

func TestBatchConcurrencyIsBounded(t *testing.T) {
	svc := &stubGrowthService{}
	svc.ageFunc = func(context.Context, domain.Arguments) (domain.Table, error) {
		n := svc.inFlight.Add(1)
		defer svc.inFlight.Add(-1)
		for {
			seen := svc.maxSeen.Load()
			if n <= seen || svc.maxSeen.CompareAndSwap(seen, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return domain.Table{{domain.Num(1), domain.Num(2)}}, nil
	}
	router := newTestRouter(svc, WithBatchConcurrency(2))

	rows := make([]string, 10)
	for i := range rows {
		rows[i] = `{}`
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/uk-who/corrected-decimal-age/batch", batchBody(t, rows...))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, svc.calls, 10)
	assert.LessOrEqual(t, svc.maxSeen.Load(), int32(2))
}

func TestBatchLimits(t *testing.T) {
	t.Run("empty batch", func(t *testing.T) {
		router := newTestRouter(&stubGrowthService{})
		req := httptest.NewRequest(http.MethodPost, "/v1/uk-who/sds-centile/batch", strings.NewReader(`{"rows":[]}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "rows", decodeErrorBody(t, w).Field)
	})

	t.Run("too many rows", func(t *testing.T) {
		svc := &stubGrowthService{}
		router := newTestRouter(svc)
		rows := make([]string, 101)
		for i := range rows {
			rows[i] = `{}`
		}
		req := httptest.NewRequest(http.MethodPost, "/v1/uk-who/sds-centile/batch", batchBody(t, rows...))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeErrorBody(t, w)
		assert.Equal(t, "validation_failed", resp.Error)
		assert.Contains(t, resp.ErrorDescription, "max 100 allowed")
		assert.Empty(t, svc.calls)
	})
}
