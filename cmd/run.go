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

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"

	"github.com/googlecloudplatform/wasmsand/cfg"
	"github.com/googlecloudplatform/wasmsand/hostrun"
	"github.com/googlecloudplatform/wasmsand/internal/clock"
	"github.com/googlecloudplatform/wasmsand/internal/logger"
	"github.com/googlecloudplatform/wasmsand/internal/metrics"
	"github.com/googlecloudplatform/wasmsand/internal/tracing"
	"github.com/googlecloudplatform/wasmsand/kernel"
	"github.com/googlecloudplatform/wasmsand/network"
	"github.com/googlecloudplatform/wasmsand/procfs"
	"github.com/googlecloudplatform/wasmsand/registry"
	"github.com/googlecloudplatform/wasmsand/shell"
	"github.com/googlecloudplatform/wasmsand/vfsfs"
)

// runResult is the run() return contract: exit status plus captured
// stdout/stderr, with truncation and a coarse error class surfaced
// separately from the human-readable message.
type runResult struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"duration_ms"`
	Truncated  bool   `json:"truncated,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
	Error      string `json:"error,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run [command string]",
	Short: "Execute a shell command string inside the sandbox and print its result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd.Context(), args[0])
	},
}

func runRun(ctx context.Context, script string) error {
	c := RunConfig

	if err := logger.Init(logger.Config{
		Format:   logger.Format(c.Logging.Format),
		Severity: logger.ParseSeverity(string(c.Logging.Severity)),
	}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()

	tracer := tracing.NewNoopTracer()
	metricHandle := metrics.NewNoopMetrics()

	runCtx, cancel := context.WithTimeout(ctx, c.Sandbox.MaxWallClock)
	defer cancel()

	runCtx, span := tracer.StartServerSpan(runCtx, "run")
	defer tracer.EndSpan(span)

	result := execute(runCtx, &c, tracer, metricHandle, script)

	metrics.CaptureRunMetrics(runCtx, metricHandle, result.outcome(), float64(result.DurationMs)/1000)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func (r runResult) outcome() string {
	if r.ErrorClass != "" {
		return r.ErrorClass
	}
	if r.ExitCode == 0 {
		return "ok"
	}
	return "nonzero_exit"
}

func execute(ctx context.Context, c *cfg.Config, tracer tracing.Tracer, metricHandle metrics.MetricHandle, script string) runResult {
	start := time.Now()

	vfs := vfsfs.New(
		vfsfs.WithLimits(vfsfs.Limits{FSLimitBytes: c.Sandbox.MaxBytes, FileCountLimit: c.Sandbox.MaxFiles}),
		vfsfs.WithWritablePrefixes(c.Sandbox.WritablePrefixes...),
		vfsfs.WithClock(clock.RealClock{}),
	)

	stdout := procfs.NewBufferTarget(16 << 20)
	stderr := procfs.NewBufferTarget(16 << 20)
	fds := procfs.New()
	fds.SetStdTarget(1, stdout)
	fds.SetStdTarget(2, stderr)

	gateway := network.NewAllowlistGateway(c.Network.AllowedHosts)
	reg := registry.New(int(c.Registry.ModuleSizeCapBytes), func(url string) bool {
		return c.Registry.AllowedSourceHosts.Allows(registry.ParseSourceHost(url))
	})

	wz := wazero.NewRuntime(ctx)
	defer wz.Close(ctx)

	k := kernel.New()
	executor := shell.NewExecutor(vfs, fds, clock.RealClock{})
	if c.Network.Enabled {
		executor.Network = gateway
	}
	executor.External = &hostrun.Runner{
		Wazero:   wz,
		Kernel:   k,
		Registry: reg,
		VFS:      vfs,
		Clock:    clock.RealClock{},
		Script:   executor.RunScript,
	}

	spanCtx, span := tracer.StartSpan(ctx, "shell.Execute")
	exitCode := executor.Execute(spanCtx, script)
	tracer.EndSpan(span)

	metricHandle.ProcessesSpawnedCount(ctx, int64(k.SpawnedCount()))
	metricHandle.VFSBytesUsed(ctx, vfs.TotalBytes())

	return runResult{
		ExitCode:   exitCode,
		Stdout:     string(stdout.Bytes()),
		Stderr:     string(stderr.Bytes()),
		DurationMs: time.Since(start).Milliseconds(),
		Truncated:  stdout.Truncated() || stderr.Truncated(),
	}
}
