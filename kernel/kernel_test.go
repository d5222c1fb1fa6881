package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlecloudplatform/wasmsand/procfs"
)

type fakeRunner struct {
	exitCode int
	writeOut string
}

func (f *fakeRunner) Run(ctx context.Context, fds *procfs.Table, args, env []string) (int, error) {
	_, target, err := fds.Lookup(1)
	if err == nil && target != nil {
		_, _ = target.WriteBytes([]byte(f.writeOut))
	}
	return f.exitCode, nil
}

func TestSpawnAndWaitpid(t *testing.T) {
	k := New()
	fds := procfs.New()
	out := procfs.NewBufferTarget(0)
	fds.SetStdTarget(1, out)

	pid := k.Spawn(context.Background(), &fakeRunner{exitCode: 0, writeOut: "ok"}, fds, nil, nil)
	assert.Equal(t, 1, pid)

	code, err := k.Waitpid(pid)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "ok", string(out.Bytes()))
}

func TestPidsAreMonotonic(t *testing.T) {
	k := New()
	fds := procfs.New()
	pid1 := k.Spawn(context.Background(), &fakeRunner{}, fds, nil, nil)
	pid2 := k.Spawn(context.Background(), &fakeRunner{}, fds, nil, nil)
	assert.Less(t, pid1, pid2)
	_, _ = k.Waitpid(pid1)
	_, _ = k.Waitpid(pid2)
}

func TestWaitpidIsIdempotentAfterReap(t *testing.T) {
	k := New()
	fds := procfs.New()
	pid := k.Spawn(context.Background(), &fakeRunner{exitCode: 7}, fds, nil, nil)

	code1, err := k.Waitpid(pid)
	require.NoError(t, err)
	code2, err := k.Waitpid(pid)
	require.NoError(t, err)
	assert.Equal(t, code1, code2)
	assert.Equal(t, 7, code1)
}

func TestWaitpidUnknownPid(t *testing.T) {
	k := New()
	_, err := k.Waitpid(999)
	assert.Error(t, err)
}
