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

// Package metrics records per-run counters and histograms: how many
// runs executed, how long they took, how many guest processes they
// spawned, and how much of the sandbox's resource ceilings they used.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func otelMeter() metric.Meter {
	return otel.Meter("github.com/googlecloudplatform/wasmsand")
}

// MetricHandle is the interface run() call sites record against; the
// no-op implementation lets callers skip nil checks when metrics are
// disabled in cfg.
type MetricHandle interface {
	RunCount(ctx context.Context, inc int64, outcome string)
	RunDuration(ctx context.Context, seconds float64)
	ProcessesSpawnedCount(ctx context.Context, inc int64)
	VFSBytesUsed(ctx context.Context, bytes int64)
	NetworkFetchCount(ctx context.Context, inc int64, host string)
	RegistryInstallCount(ctx context.Context, inc int64, outcome string)
}

// noopMetrics implements MetricHandle as a no-op base; the otel and
// fake/test handles embed it so adding a MetricHandle method never
// breaks an existing embedder.
type noopMetrics struct{}

func (noopMetrics) RunCount(ctx context.Context, inc int64, outcome string)         {}
func (noopMetrics) RunDuration(ctx context.Context, seconds float64)                {}
func (noopMetrics) ProcessesSpawnedCount(ctx context.Context, inc int64)            {}
func (noopMetrics) VFSBytesUsed(ctx context.Context, bytes int64)                   {}
func (noopMetrics) NetworkFetchCount(ctx context.Context, inc int64, host string)   {}
func (noopMetrics) RegistryInstallCount(ctx context.Context, inc int64, outcome string) {}

// NewNoopMetrics returns a MetricHandle that records nothing.
func NewNoopMetrics() MetricHandle { return noopMetrics{} }

// otelMetrics is the live implementation, backed by the process-wide
// otel MeterProvider.
type otelMetrics struct {
	noopMetrics

	runsTotal          metric.Int64Counter
	runDurationSecs    metric.Float64Histogram
	processesSpawned   metric.Int64Counter
	vfsBytesUsed       metric.Int64Gauge
	networkFetches     metric.Int64Counter
	registryInstalls   metric.Int64Counter
}

// NewOTelMetrics constructs the live handle, registering one counter
// per event type and a duration histogram bucketed by durationBuckets
// evenly spaced bucket boundaries up to maxDurationSecs.
func NewOTelMetrics(ctx context.Context, durationBuckets int, maxDurationSecs float64) (MetricHandle, error) {
	meter := otelMeter()

	runsTotal, err := meter.Int64Counter("wasmsand.runs_total", metric.WithDescription("Completed run() invocations by outcome."))
	if err != nil {
		return nil, err
	}
	bounds := make([]float64, 0, durationBuckets)
	for i := 1; i <= durationBuckets; i++ {
		bounds = append(bounds, maxDurationSecs*float64(i)/float64(durationBuckets))
	}
	runDurationSecs, err := meter.Float64Histogram("wasmsand.run_duration_seconds",
		metric.WithDescription("Wall-clock duration of run() invocations."),
		metric.WithExplicitBucketBoundaries(bounds...))
	if err != nil {
		return nil, err
	}
	processesSpawned, err := meter.Int64Counter("wasmsand.processes_spawned_total", metric.WithDescription("Guest processes spawned by the kernel."))
	if err != nil {
		return nil, err
	}
	vfsBytesUsed, err := meter.Int64Gauge("wasmsand.vfs_bytes_used", metric.WithDescription("Total bytes held by the virtual filesystem at the end of a run."))
	if err != nil {
		return nil, err
	}
	networkFetches, err := meter.Int64Counter("wasmsand.network_fetches_total", metric.WithDescription("Requests made through the network gateway, by destination host."))
	if err != nil {
		return nil, err
	}
	registryInstalls, err := meter.Int64Counter("wasmsand.registry_installs_total", metric.WithDescription("Tool-registry install attempts, by outcome."))
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		runsTotal:        runsTotal,
		runDurationSecs:  runDurationSecs,
		processesSpawned: processesSpawned,
		vfsBytesUsed:     vfsBytesUsed,
		networkFetches:   networkFetches,
		registryInstalls: registryInstalls,
	}, nil
}

func (m *otelMetrics) RunCount(ctx context.Context, inc int64, outcome string) {
	m.runsTotal.Add(ctx, inc, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *otelMetrics) RunDuration(ctx context.Context, seconds float64) {
	m.runDurationSecs.Record(ctx, seconds)
}

func (m *otelMetrics) ProcessesSpawnedCount(ctx context.Context, inc int64) {
	m.processesSpawned.Add(ctx, inc)
}

func (m *otelMetrics) VFSBytesUsed(ctx context.Context, bytes int64) {
	m.vfsBytesUsed.Record(ctx, bytes)
}

func (m *otelMetrics) NetworkFetchCount(ctx context.Context, inc int64, host string) {
	m.networkFetches.Add(ctx, inc, metric.WithAttributes(attribute.String("host", host)))
}

func (m *otelMetrics) RegistryInstallCount(ctx context.Context, inc int64, outcome string) {
	m.registryInstalls.Add(ctx, inc, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// CaptureRunMetrics is the single call site run() uses to report a
// completed invocation, keeping the counter/histogram pairing in one
// place instead of scattered across the command layer.
func CaptureRunMetrics(ctx context.Context, h MetricHandle, outcome string, seconds float64) {
	h.RunCount(ctx, 1, outcome)
	h.RunDuration(ctx, seconds)
}
