package procfs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeFIFOOrdering(t *testing.T) {
	p := NewPipe(16)
	_, err := p.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 2)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "he", string(buf[:n]))

	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ll", string(buf[:n]))
}

func TestPipeReadAfterWriterCloseDrainsThenEOF(t *testing.T) {
	p := NewPipe(16)
	_, err := p.Write([]byte("ab"))
	require.NoError(t, err)
	p.CloseWriter()

	buf := make([]byte, 16)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(buf[:n]))

	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPipeWriteAfterReaderCloseFailsEPIPE(t *testing.T) {
	p := NewPipe(4)
	p.CloseReader()
	_, err := p.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrPipeClosed)
}

func TestPipeBlocksUntilSpaceFrees(t *testing.T) {
	p := NewPipe(4)
	_, err := p.Write([]byte("abcd")) // fills capacity
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	writeDone := make(chan struct{})
	go func() {
		defer wg.Done()
		_, _ = p.Write([]byte("ef"))
		close(writeDone)
	}()

	select {
	case <-writeDone:
		t.Fatal("write should have blocked while buffer is full")
	case <-time.After(20 * time.Millisecond):
	}

	buf := make([]byte, 4)
	_, err = p.Read(buf)
	require.NoError(t, err)

	select {
	case <-writeDone:
	case <-time.After(time.Second):
		t.Fatal("write should have resumed after read freed space")
	}
	wg.Wait()
}

func TestPipeBlocksUntilDataArrives(t *testing.T) {
	p := NewPipe(16)
	result := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := p.Read(buf)
		result <- string(buf[:n])
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := p.Write([]byte("late"))
	require.NoError(t, err)

	select {
	case got := <-result:
		assert.Equal(t, "late", got)
	case <-time.After(time.Second):
		t.Fatal("read never returned after write")
	}
}
