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

package tracing

import (
	"context"
	"errors"
	"testing"
)

var noOpTraceHandle = NewNoopTracer()

func TestNoopTracer_StartEndSpanDoesNotPanic(t *testing.T) {
	ctx, span := noOpTraceHandle.StartSpan(context.Background(), "test-span")
	noOpTraceHandle.EndSpan(span)
	_ = ctx
}

func TestNoopTracer_RecordErrorDoesNotPanic(t *testing.T) {
	_, span := noOpTraceHandle.StartServerSpan(context.Background(), "test-span")
	noOpTraceHandle.RecordError(span, errors.New("boom"))
	noOpTraceHandle.EndSpan(span)
}

func TestNoopTracer_PropagateTraceContextReturnsTo(t *testing.T) {
	to := context.WithValue(context.Background(), struct{ k string }{"k"}, "v")
	got := noOpTraceHandle.PropagateTraceContext(context.Background(), to)
	if got != to {
		t.Fatalf("expected PropagateTraceContext to return the destination context unchanged")
	}
}

func BenchmarkNoOpTracerStartEndSpan(b *testing.B) {
	ctx := context.Background()
	for b.Loop() {
		_, span := noOpTraceHandle.StartSpan(ctx, "TestSpanName")
		noOpTraceHandle.EndSpan(span)
	}
}

func BenchmarkNoOpTracerStartServerSpan(b *testing.B) {
	ctx := context.Background()
	for b.Loop() {
		_, span := noOpTraceHandle.StartServerSpan(ctx, "TestSpanName")
		noOpTraceHandle.EndSpan(span)
	}
}

func BenchmarkNoOpTracerRecordErrorEndSpan(b *testing.B) {
	ctx := context.Background()
	for b.Loop() {
		_, span := noOpTraceHandle.StartSpan(ctx, "TestSpanName")
		noOpTraceHandle.RecordError(span, nil)
		noOpTraceHandle.EndSpan(span)
	}
}

func BenchmarkNoOpTracerPropagateTraceContext(b *testing.B) {
	ctx := context.Background()
	for b.Loop() {
		noOpTraceHandle.PropagateTraceContext(ctx, ctx)
	}
}
