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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/googlecloudplatform/wasmsand/cfg"
	"github.com/googlecloudplatform/wasmsand/internal/metrics"
	"github.com/googlecloudplatform/wasmsand/internal/tracing"
)

func testConfig() *cfg.Config {
	return &cfg.Config{
		Logging: cfg.GetDefaultLoggingConfig(),
		Sandbox: cfg.GetDefaultSandboxConfig(),
	}
}

func TestExecute_SimpleEcho(t *testing.T) {
	c := testConfig()

	result := execute(context.Background(), c, tracing.NewNoopTracer(), metrics.NewNoopMetrics(), "echo hello world")

	require.Equal(t, 0, result.ExitCode)
	require.Equal(t, "hello world\n", result.Stdout)
	require.False(t, result.Truncated)
}

func TestExecute_NonzeroExitStatus(t *testing.T) {
	c := testConfig()

	result := execute(context.Background(), c, tracing.NewNoopTracer(), metrics.NewNoopMetrics(), "false")

	require.Equal(t, 1, result.ExitCode)
}

func TestExecute_DeadlineExceededStopsLongRunningScript(t *testing.T) {
	c := testConfig()
	c.Sandbox.MaxWallClock = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), c.Sandbox.MaxWallClock)
	defer cancel()

	result := execute(ctx, c, tracing.NewNoopTracer(), metrics.NewNoopMetrics(), "while true; do :; done")

	require.NotEqual(t, 0, result.ExitCode)
}

func TestRunResult_Outcome(t *testing.T) {
	require.Equal(t, "ok", runResult{ExitCode: 0}.outcome())
	require.Equal(t, "nonzero_exit", runResult{ExitCode: 1}.outcome())
	require.Equal(t, "timeout", runResult{ErrorClass: "timeout"}.outcome())
}
