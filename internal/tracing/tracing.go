// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracing wraps OpenTelemetry spans around one run() call and
// its pipeline stages, with a no-op implementation for callers (tests,
// a tracing-disabled config) that don't want the otel dependency live.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span is the subset of trace.Span a caller needs: ending it and
// recording a failure.
type Span interface {
	End(options ...trace.SpanEndOption)
	RecordError(err error, options ...trace.EventOption)
	SetStatus(code codes.Code, description string)
}

// Tracer is implemented by both the otel-backed tracer and the no-op
// stand-in, so call sites never branch on whether tracing is enabled.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	StartServerSpan(ctx context.Context, name string) (context.Context, Span)
	EndSpan(span Span)
	RecordError(span Span, err error)
	PropagateTraceContext(from, to context.Context) context.Context
}

// otelTracer is the live implementation, backed by the process-wide
// otel tracer provider.
type otelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer returns a Tracer backed by the globally configured otel
// TracerProvider, under the given instrumentation name.
func NewOTelTracer(name string) Tracer {
	return &otelTracer{tracer: otel.Tracer(name)}
}

func (t *otelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, span
}

func (t *otelTracer) StartServerSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
	return ctx, span
}

func (t *otelTracer) EndSpan(span Span) {
	span.End()
}

func (t *otelTracer) RecordError(span Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (t *otelTracer) PropagateTraceContext(from, to context.Context) context.Context {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(from, carrier)
	return otel.GetTextMapPropagator().Extract(to, carrier)
}

// noopSpan satisfies Span without touching otel at all.
type noopSpan struct{}

func (noopSpan) End(options ...trace.SpanEndOption)                 {}
func (noopSpan) RecordError(err error, options ...trace.EventOption) {}
func (noopSpan) SetStatus(code codes.Code, desc string)              {}

// noopTracer is the zero-overhead Tracer used when tracing is disabled
// in cfg, and in tests that don't want a real exporter configured.
type noopTracer struct{}

// NewNoopTracer returns a Tracer whose spans are never recorded.
func NewNoopTracer() Tracer { return noopTracer{} }

func (noopTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopTracer) StartServerSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopTracer) EndSpan(span Span) {}

func (noopTracer) RecordError(span Span, err error) {}

func (noopTracer) PropagateTraceContext(from, to context.Context) context.Context {
	return to
}
