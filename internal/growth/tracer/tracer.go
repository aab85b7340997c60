// Package tracer provides a lightweight tracing abstraction for the growth
// calculation service.
//
// The interface does not depend on OpenTelemetry directly, so the core can
// emit spans in production and run without any exporter in tests.
//
// Implementations:
//   - NoopTracer: for tests
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span with the given name and attributes.
	//
	// Example:
	//   ctx, span := t.Start(ctx, tracer.SpanSDSCentile,
	//       tracer.String(tracer.AttrReference, "uk-who"),
	//   )
	//   defer func() { span.End(err) }()
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanSDSCentile  = "growth.sds_centile"
	SpanDecimalAge  = "growth.corrected_decimal_age"
	SpanUpstreamAPI = "growth.api.calculate"
)

// Attribute keys.
const (
	AttrReference     = "growth.reference"
	AttrMethod        = "growth.measurement_method"
	AttrMode          = "growth.output_mode"
	AttrOutcome       = "growth.outcome"
	AttrErrorField    = "growth.error_field"
	AttrResponseBytes = "growth.response_bytes"
	AttrUpstreamMs    = "growth.upstream_ms"
	AttrBlankCells    = "growth.blank_cells"
)

// Event names.
const (
	EventValidated = "arguments.validated"
	EventProjected = "result.projected"
)
