// Package otel provides tracing helpers shared by the configuration client components.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on configuration client spans
const (
	AttrInstance   = attribute.Key("confclient.instance")
	AttrLocation   = attribute.Key("confclient.location")
	AttrRunID      = attribute.Key("confclient.run_id")
	AttrReturnCode = attribute.Key("confclient.return_code")
	AttrPartners   = attribute.Key("confclient.partners")
	AttrFiles      = attribute.Key("confclient.files")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns the span already in ctx.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span failed. Nil spans and errors are ignored.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordOutcome records the diagnostics return code of a run and marks the span failed
// with description unless the code is 0.
func RecordOutcome(span trace.Span, code int, description string) {
	if span == nil {
		return
	}
	span.SetAttributes(AttrReturnCode.Int(code))
	if code != 0 {
		span.SetStatus(codes.Error, description)
	}
}
