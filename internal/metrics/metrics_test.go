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

package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type runDataPoint struct {
	inc     int64
	outcome string
}

type fakeMetricHandle struct {
	noopMetrics
	runs      []runDataPoint
	durations []float64
}

func (f *fakeMetricHandle) RunCount(ctx context.Context, inc int64, outcome string) {
	f.runs = append(f.runs, runDataPoint{inc: inc, outcome: outcome})
}

func (f *fakeMetricHandle) RunDuration(ctx context.Context, seconds float64) {
	f.durations = append(f.durations, seconds)
}

func TestCaptureRunMetrics(t *testing.T) {
	handle := &fakeMetricHandle{}

	CaptureRunMetrics(context.Background(), handle, "ok", 0.125)

	require.Len(t, handle.runs, 1)
	require.Len(t, handle.durations, 1)
	require.Equal(t, runDataPoint{inc: 1, outcome: "ok"}, handle.runs[0])
	require.Equal(t, 0.125, handle.durations[0])
}

func TestNewOTelMetrics_RegistersInstruments(t *testing.T) {
	handle, err := NewOTelMetrics(context.Background(), 10, 30)

	require.NoError(t, err)
	require.NotNil(t, handle)
}

func TestNoopMetrics_DoesNotPanic(t *testing.T) {
	var h MetricHandle = NewNoopMetrics()
	ctx := context.Background()

	h.RunCount(ctx, 1, "ok")
	h.RunDuration(ctx, 1.0)
	h.ProcessesSpawnedCount(ctx, 1)
	h.VFSBytesUsed(ctx, 1024)
	h.NetworkFetchCount(ctx, 1, "example.com")
	h.RegistryInstallCount(ctx, 1, "ok")
}
