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

package hostrun_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlecloudplatform/wasmsand/hostrun"
	"github.com/googlecloudplatform/wasmsand/procfs"
	"github.com/googlecloudplatform/wasmsand/registry"
	"github.com/googlecloudplatform/wasmsand/vfsfs"
)

func newRunner(t *testing.T, script hostrun.ScriptRunner) (*hostrun.Runner, *vfsfs.VFS) {
	t.Helper()
	vfs := vfsfs.New(vfsfs.WithWritablePrefixes("/"))
	return &hostrun.Runner{
		Registry: registry.New(0, nil),
		VFS:      vfs,
		Script:   script,
	}, vfs
}

func TestRunner_Run_UnknownToolReturns127(t *testing.T) {
	r, _ := newRunner(t, nil)

	code, err := r.Run(context.Background(), "doesnotexist", nil, procfs.New(), "/", nil)

	assert.Equal(t, 127, code)
	assert.Error(t, err)
}

func TestRunner_RunPath_MissingFileReturns126(t *testing.T) {
	r, _ := newRunner(t, nil)

	code, err := r.Run(context.Background(), "/bin/nope", nil, procfs.New(), "/", nil)

	assert.Equal(t, 126, code)
	assert.Error(t, err)
}

func TestRunner_RunPath_ShebangDelegatesToScriptRunner(t *testing.T) {
	var gotScript, gotCwd string
	var gotEnv []string
	script := func(ctx context.Context, s string, fds *procfs.Table, cwd string, env []string) (int, error) {
		gotScript, gotCwd, gotEnv = s, cwd, env
		return 7, nil
	}
	r, vfs := newRunner(t, script)
	require.NoError(t, vfs.WriteFile("/bin/greet", []byte("#!/bin/sh\necho hi\n")))

	code, err := r.Run(context.Background(), "/bin/greet", nil, procfs.New(), "/home/user", []string{"X=1"})

	require.NoError(t, err)
	assert.Equal(t, 7, code)
	assert.Equal(t, "echo hi\n", gotScript)
	assert.Equal(t, "/home/user", gotCwd)
	assert.Equal(t, []string{"X=1"}, gotEnv)
}

func TestRunner_RunPath_EnvShebangUsesSecondField(t *testing.T) {
	var ran bool
	script := func(ctx context.Context, s string, fds *procfs.Table, cwd string, env []string) (int, error) {
		ran = true
		return 0, nil
	}
	r, vfs := newRunner(t, script)
	require.NoError(t, vfs.WriteFile("/bin/greet", []byte("#!/usr/bin/env bash\necho hi\n")))

	_, err := r.Run(context.Background(), "/bin/greet", nil, procfs.New(), "/", nil)

	require.NoError(t, err)
	assert.True(t, ran)
}

func TestRunner_RunPath_NoShebangNoScriptRunnerReturns126(t *testing.T) {
	r, vfs := newRunner(t, nil)
	require.NoError(t, vfs.WriteFile("/bin/raw", []byte("not a script")))

	code, err := r.Run(context.Background(), "/bin/raw", nil, procfs.New(), "/", nil)

	assert.Equal(t, 126, code)
	assert.Error(t, err)
}

func TestRunner_RunPath_NoShebangFallsBackToScriptRunner(t *testing.T) {
	var gotScript string
	script := func(ctx context.Context, s string, fds *procfs.Table, cwd string, env []string) (int, error) {
		gotScript = s
		return 0, nil
	}
	r, vfs := newRunner(t, script)
	require.NoError(t, vfs.WriteFile("/bin/raw", []byte("echo plain\n")))

	code, err := r.Run(context.Background(), "/bin/raw", nil, procfs.New(), "/", nil)

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "echo plain\n", gotScript)
}
