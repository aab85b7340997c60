package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"growthsheet/internal/growth/domain"
	"growthsheet/internal/growth/metrics"
	"growthsheet/internal/growth/providers"
	"growthsheet/internal/growth/tracer"
	dErrors "growthsheet/pkg/domain-errors"
)

// Service runs single calculations: validate, build the payload, call the
// growth API once and project the response. It keeps no state between calls.
type Service struct {
	calculator providers.Calculator
	logger     *slog.Logger
	tracer     tracer.Tracer
	metrics    *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer sets the tracer for the service.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a calculation service on top of a transport.
func New(calculator providers.Calculator, opts ...Option) *Service {
	s := &Service{
		calculator: calculator,
		logger:     slog.New(slog.DiscardHandler),
		tracer:     tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SDSCentile returns corrected and chronological SDS and/or centiles as a
// single-row table, ordered as defined by domain.SDSCentileProjection.
func (s *Service) SDSCentile(ctx context.Context, args domain.Arguments) (domain.Table, error) {
	return calculate(ctx, s, function[domain.CalculatedValues]{
		name:       metrics.FunctionSDSCentile,
		span:       tracer.SpanSDSCentile,
		projection: domain.SDSCentileProjection,
		extract:    (*domain.CalculationResult).CalculatedValues,
	}, args)
}

// CorrectedDecimalAge returns chronological and/or corrected decimal age as
// a single-row table, ordered as defined by domain.DecimalAgeProjection.
func (s *Service) CorrectedDecimalAge(ctx context.Context, args domain.Arguments) (domain.Table, error) {
	return calculate(ctx, s, function[domain.MeasurementDates]{
		name:       metrics.FunctionDecimalAge,
		span:       tracer.SpanDecimalAge,
		projection: domain.DecimalAgeProjection,
		extract:    (*domain.CalculationResult).Dates,
	}, args)
}

// function describes one public calculation: which response group it reads
// and how that group is projected.
type function[R any] struct {
	name       string
	span       string
	projection domain.Projection[R]
	extract    func(*domain.CalculationResult) (R, error)
}

func calculate[R any](ctx context.Context, s *Service, fn function[R], args domain.Arguments) (table domain.Table, err error) {
	// An unknown reference is reported only once the arguments validate.
	reference, refErr := domain.ParseReference(string(args.Reference))
	if refErr == nil {
		args.Reference = reference
	}

	ctx, span := s.tracer.Start(ctx, fn.span,
		tracer.String(tracer.AttrReference, string(args.Reference)),
		tracer.String(tracer.AttrMethod, args.MeasurementMethod),
		tracer.String(tracer.AttrMode, string(args.Mode())),
	)
	defer func() {
		s.finish(ctx, span, fn.name, args, table, err)
	}()

	if err = domain.Validate(args, fn.projection.Modes()); err != nil {
		return nil, err
	}
	span.AddEvent(tracer.EventValidated)

	if refErr != nil {
		return nil, refErr
	}

	payload, err := domain.BuildPayload(args)
	if err != nil {
		return nil, err
	}
	body, err := payload.Encode()
	if err != nil {
		return nil, err
	}

	raw, err := s.callAPI(ctx, reference, body, args.APIKey)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.Int64(tracer.AttrResponseBytes, int64(len(raw))))

	result, err := domain.ParseResult(raw)
	if err != nil {
		return nil, err
	}
	group, err := fn.extract(result)
	if err != nil {
		return nil, err
	}
	table, err = fn.projection.Project(args.Mode(), group)
	if err != nil {
		return nil, err
	}
	span.AddEvent(tracer.EventProjected, tracer.Bool(tracer.AttrBlankCells, hasBlank(table[0])))

	if s.metrics != nil {
		s.metrics.RecordCells(fn.name, string(args.Mode()), len(table[0]))
	}
	return table, nil
}

// callAPI performs the single transport call of an invocation.
func (s *Service) callAPI(ctx context.Context, reference domain.Reference, body []byte, apiKey string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanUpstreamAPI,
		tracer.String(tracer.AttrReference, string(reference)),
	)
	start := time.Now()
	raw, err := s.calculator.Calculate(ctx, reference, body, apiKey)
	elapsed := time.Since(start)

	span.SetAttributes(tracer.Duration(tracer.AttrUpstreamMs, elapsed))
	span.End(err)
	if s.metrics != nil {
		s.metrics.ObserveUpstream(string(reference), elapsed.Seconds())
	}

	if err != nil {
		return nil, translateProviderError(err)
	}
	return raw, nil
}

// translateProviderError tags transport failures without hiding the
// original error, which stays reachable through errors.Is and errors.As.
func translateProviderError(err error) error {
	if providers.GetCategory(err) == providers.ErrorTimeout {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "growth api request timed out: "+rootMessage(err))
	}
	return dErrors.Wrap(err, dErrors.CodeTransport, "growth api request failed: "+rootMessage(err))
}

func hasBlank(row domain.Row) bool {
	for _, c := range row {
		if !c.Valid {
			return true
		}
	}
	return false
}

func rootMessage(err error) string {
	var pe *providers.ProviderError
	if errors.As(err, &pe) && pe.Underlying != nil {
		return pe.Underlying.Error()
	}
	return err.Error()
}

func (s *Service) finish(ctx context.Context, span tracer.Span, function string, args domain.Arguments, table domain.Table, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.SetAttributes(tracer.String(tracer.AttrErrorField, dErrors.FieldOf(err)))
	}
	span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome))
	span.End(err)

	if s.metrics != nil {
		s.metrics.RecordCalculation(function, outcome)
	}

	if err != nil {
		level := slog.LevelError
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "calculation failed",
			"function", function,
			"reference", string(args.Reference),
			"measurement_method", args.MeasurementMethod,
			"output_mode", string(args.Mode()),
			"api_key_suffix", redactKey(args.APIKey),
			"outcome", outcome,
			"field", dErrors.FieldOf(err),
			"error", err,
		)
		return
	}
	s.logger.InfoContext(ctx, "calculation completed",
		"function", function,
		"reference", string(args.Reference),
		"measurement_method", args.MeasurementMethod,
		"output_mode", string(args.Mode()),
		"cells", len(table[0]),
	)
}

// redactKey shows only the last 4 characters of an API key.
func redactKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
