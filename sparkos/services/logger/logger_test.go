package logger

import (
	"context"
	"strings"
	"testing"
	"time"

	"sparkrt/kernel"
	"sparkrt/kernel/heap"
	"sparkrt/kernel/port"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lines []string

func (l *lines) WriteLineString(s string) { *l = append(*l, s) }
func (l *lines) WriteLineBytes(b []byte)  { *l = append(*l, string(b)) }

func runKernel(t *testing.T, main func(k *kernel.Kernel)) {
	t.Helper()
	h, err := heap.NewBare(64 << 10)
	require.NoError(t, err)
	k := kernel.New(port.NewSim(), h, kernel.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, k.Run(ctx, func(any) { main(k) }, nil))
}

func TestLinesReachHAL(t *testing.T) {
	var out lines
	var written uint32
	runKernel(t, func(k *kernel.Kernel) {
		s, err := New(k, &out, 256, kernel.ThreadAttr{Priority: 8})
		if !assert.NoError(t, err) {
			return
		}
		s.Logger(log.InfoLevel, "app").Info().Int("n", 1).Msg("hello")
		s.Logger(log.InfoLevel, "app").Debug().Msg("filtered")
		s.Write([]byte("plain\n"))
		s.Write([]byte("\n"))
		k.Sleep(1)
		written = s.Written()
		s.Close()
		_, err = s.Write([]byte("late"))
		assert.ErrorIs(t, err, ErrClosed)
	})
	require.Len(t, out, 2)
	require.Contains(t, out[0], `"module":"app"`)
	require.Contains(t, out[0], `"message":"hello"`)
	require.Equal(t, "plain", out[1])
	require.EqualValues(t, 2, written)
}

func TestFullMailboxDrops(t *testing.T) {
	var out lines
	var dropped uint32
	runKernel(t, func(k *kernel.Kernel) {
		s, err := New(k, &out, 16, kernel.ThreadAttr{Priority: 8})
		if !assert.NoError(t, err) {
			return
		}
		for i := 0; i < 3; i++ {
			n, err := s.Write([]byte("0123456789"))
			assert.NoError(t, err)
			assert.Equal(t, 10, n)
		}
		dropped = s.Dropped()
		s.Close()
	})
	require.EqualValues(t, 2, dropped)
	require.Equal(t, lines{"0123456789"}, out)
}

func TestLongLinesAreCut(t *testing.T) {
	var out lines
	runKernel(t, func(k *kernel.Kernel) {
		s, _ := New(k, &out, 1024, kernel.ThreadAttr{Priority: 8})
		s.Write([]byte(strings.Repeat("x", 3*MaxLine)))
		s.Close()
	})
	require.Len(t, out, 1)
	require.Len(t, out[0], MaxLine)
}

func TestWriteInsideCriticalSection(t *testing.T) {
	var out lines
	var dropped uint32
	runKernel(t, func(k *kernel.Kernel) {
		s, err := New(k, &out, 64, kernel.ThreadAttr{Priority: 8})
		if !assert.NoError(t, err) {
			return
		}
		k.Enter()
		n, err := s.Write([]byte("from a critical section"))
		k.Leave()
		assert.NoError(t, err)
		assert.Equal(t, 23, n)
		k.Sleep(1)
		dropped = s.Dropped()
		s.Close()
	})
	require.Zero(t, dropped)
	require.Equal(t, lines{"from a critical section"}, out)
}
