// Package telemetry adapts the teacher's generic RecordSpan helper to the
// two span kinds this proxy describes: a backend call and a stream
// process (only backend.Client.Unary opens a span). Trimmed from pkg/telemetry/span.go's AI-SDK-shaped attribute
// helpers (model settings, function IDs) to what a translating proxy
// needs: dialect, model and streaming flag for a backend call, source and
// target dialect for a stream process.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOptions configures a span (grounded on span.go's SpanOptions,
// trimmed to this proxy's attribute vocabulary).
type SpanOptions struct {
	Name       string
	Attributes []attribute.KeyValue
}

// RecordSpan starts a span, runs fn, and records any error on the span
// before returning. Grounded verbatim on span.go's generic RecordSpan.
func RecordSpan[T any](
	ctx context.Context,
	tracer trace.Tracer,
	opts SpanOptions,
	fn func(context.Context, trace.Span) (T, error),
) (T, error) {
	ctx, span := tracer.Start(ctx, opts.Name, trace.WithAttributes(opts.Attributes...))
	defer span.End()

	result, err := fn(ctx, span)
	if err != nil {
		RecordErrorOnSpan(span, err)
		var zero T
		return zero, err
	}
	return result, nil
}

// RecordErrorOnSpan records err on span and marks the span's status as
// an error, if err is non-nil.
func RecordErrorOnSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// BackendCallAttributes builds the attribute set for a C6 backend-call
// span.
func BackendCallAttributes(dialect, model string, streaming bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("toolbridge.backend.dialect", dialect),
		attribute.String("toolbridge.backend.model", model),
		attribute.Bool("toolbridge.backend.streaming", streaming),
	}
}

// StreamProcessAttributes builds the attribute set for a C5 stream
// process span.
func StreamProcessAttributes(sourceDialect, targetDialect string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("toolbridge.stream.source_dialect", sourceDialect),
		attribute.String("toolbridge.stream.target_dialect", targetDialect),
	}
}
