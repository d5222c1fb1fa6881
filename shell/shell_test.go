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

package shell_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlecloudplatform/wasmsand/internal/clock"
	"github.com/googlecloudplatform/wasmsand/procfs"
	"github.com/googlecloudplatform/wasmsand/shell"
	"github.com/googlecloudplatform/wasmsand/vfsfs"
)

func newExecutor(t *testing.T) (*shell.Executor, *vfsfs.VFS, *procfs.BufferTarget, *procfs.BufferTarget) {
	t.Helper()
	vfs := vfsfs.New()
	fds := procfs.New()
	stdout := procfs.NewBufferTarget(0)
	stderr := procfs.NewBufferTarget(0)
	fds.SetStdTarget(1, stdout)
	fds.SetStdTarget(2, stderr)
	return shell.NewExecutor(vfs, fds, clock.RealClock{}), vfs, stdout, stderr
}

func TestExecute_EchoWritesStdout(t *testing.T) {
	e, _, stdout, _ := newExecutor(t)

	status := e.Execute(context.Background(), `echo hello world`)

	assert.Equal(t, 0, status)
	assert.Equal(t, "hello world\n", string(stdout.Bytes()))
}

func TestExecute_ExitCodePropagates(t *testing.T) {
	e, _, stdout, _ := newExecutor(t)

	status := e.Execute(context.Background(), `false; echo $?`)

	assert.Equal(t, 0, status)
	assert.Equal(t, "1\n", string(stdout.Bytes()))
}

func TestExecute_FalseReturnsOne(t *testing.T) {
	e, _, _, _ := newExecutor(t)

	status := e.Execute(context.Background(), `false`)

	assert.Equal(t, 1, status)
}

func TestExecute_SetEExitsOnFailure(t *testing.T) {
	e, _, stdout, _ := newExecutor(t)
	e.SetE = true

	status := e.Execute(context.Background(), `false
echo unreached`)

	assert.Equal(t, 1, status)
	assert.Equal(t, "", string(stdout.Bytes()))
}

func TestExecute_SetUFailsOnUnsetVariable(t *testing.T) {
	e, _, _, stderr := newExecutor(t)
	e.SetU = true

	status := e.Execute(context.Background(), `echo $UNSET_VAR`)

	assert.NotEqual(t, 0, status)
	assert.NotEmpty(t, stderr.Bytes())
}

func TestExecute_PipelineUsesLastStageStatus(t *testing.T) {
	e, vfs, stdout, _ := newExecutor(t)
	require.NoError(t, vfs.WriteFile("/home/user/data.txt", []byte("b\na\nb\n")))

	status := e.Execute(context.Background(), `cat data.txt | sort | uniq`)

	require.Equal(t, 0, status)
	assert.Equal(t, "a\nb\n", string(stdout.Bytes()))
}

func TestExecute_RedirectOutWritesFile(t *testing.T) {
	e, vfs, _, _ := newExecutor(t)

	status := e.Execute(context.Background(), `echo hi > out.txt`)

	require.Equal(t, 0, status)
	data, err := vfs.ReadFile("/home/user/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data))
}

func TestExecute_RedirectAppend(t *testing.T) {
	e, vfs, _, _ := newExecutor(t)

	status := e.Execute(context.Background(), "echo one > out.txt\necho two >> out.txt")

	require.Equal(t, 0, status)
	data, err := vfs.ReadFile("/home/user/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestExecute_RedirectInReadsFile(t *testing.T) {
	e, vfs, stdout, _ := newExecutor(t)
	require.NoError(t, vfs.WriteFile("/home/user/in.txt", []byte("line1\nline2\n")))

	status := e.Execute(context.Background(), `cat < in.txt`)

	require.Equal(t, 0, status)
	assert.Equal(t, "line1\nline2\n", string(stdout.Bytes()))
}

func TestExecute_BreakExitsLoop(t *testing.T) {
	e, _, stdout, _ := newExecutor(t)

	status := e.Execute(context.Background(), `for i in 1 2 3; do
  if [ "$i" = "2" ]; then
    break
  fi
  echo "$i"
done`)

	require.Equal(t, 0, status)
	assert.Equal(t, "1\n", string(stdout.Bytes()))
}

func TestExecute_FunctionCallAndReturn(t *testing.T) {
	e, _, stdout, _ := newExecutor(t)

	status := e.Execute(context.Background(), `greet() {
  echo "hi $1"
  return 3
}
greet world
echo "status:$?"`)

	require.Equal(t, 0, status)
	assert.Equal(t, "hi world\nstatus:3\n", string(stdout.Bytes()))
}

func TestExecute_TestBuiltinFileExists(t *testing.T) {
	e, vfs, _, _ := newExecutor(t)
	require.NoError(t, vfs.WriteFile("/home/user/present.txt", []byte("x")))

	status := e.Execute(context.Background(), `if [ -f present.txt ]; then exit 0; else exit 1; fi`)

	assert.Equal(t, 0, status)
}

func TestExecute_TestBuiltinFileMissing(t *testing.T) {
	e, _, _, _ := newExecutor(t)

	status := e.Execute(context.Background(), `if [ -f missing.txt ]; then exit 0; else exit 1; fi`)

	assert.Equal(t, 1, status)
}

func TestExecute_DoubleBracketStringComparison(t *testing.T) {
	e, _, _, _ := newExecutor(t)

	status := e.Execute(context.Background(), `x=abc
if [[ "$x" == "abc" ]]; then exit 0; else exit 1; fi`)

	assert.Equal(t, 0, status)
}

func TestExecute_DoubleBracketDirectoryTest(t *testing.T) {
	e, vfs, _, _ := newExecutor(t)
	require.NoError(t, vfs.Mkdir("/home/user/sub", 0755))

	status := e.Execute(context.Background(), `if [[ -d sub ]]; then exit 0; else exit 1; fi`)

	assert.Equal(t, 0, status)
}

func TestExecute_CdChangesWorkingDirectory(t *testing.T) {
	e, vfs, stdout, _ := newExecutor(t)
	require.NoError(t, vfs.Mkdir("/home/user/sub", 0755))
	require.NoError(t, vfs.WriteFile("/home/user/sub/f.txt", []byte("data")))

	status := e.Execute(context.Background(), `cd sub && cat f.txt`)

	require.Equal(t, 0, status)
	assert.Equal(t, "data", string(stdout.Bytes()))
}

func TestExecute_ExportAndReadEnv(t *testing.T) {
	e, _, stdout, _ := newExecutor(t)

	status := e.Execute(context.Background(), `export FOO=bar
echo "$FOO"`)

	require.Equal(t, 0, status)
	assert.Equal(t, "bar\n", string(stdout.Bytes()))
}

func TestExecute_SubshellDoesNotLeakVariables(t *testing.T) {
	e, _, stdout, _ := newExecutor(t)

	status := e.Execute(context.Background(), `(x=inner)
echo "outer:$x"`)

	require.Equal(t, 0, status)
	assert.Equal(t, "outer:\n", string(stdout.Bytes()))
}

func TestExecute_CommandNotFoundReturns127(t *testing.T) {
	e, _, _, _ := newExecutor(t)

	status := e.Execute(context.Background(), `totally_unknown_command`)

	assert.Equal(t, 127, status)
}

func TestExecute_QuotaExceededReturnsError(t *testing.T) {
	vfs := vfsfs.New(vfsfs.WithLimits(vfsfs.Limits{FSLimitBytes: 4}))
	fds := procfs.New()
	stderr := procfs.NewBufferTarget(0)
	fds.SetStdTarget(2, stderr)
	e := shell.NewExecutor(vfs, fds, clock.RealClock{})

	status := e.Execute(context.Background(), `echo "this is definitely too long for the quota" > big.txt`)

	assert.NotEqual(t, 0, status)
}
