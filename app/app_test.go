package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sparkrt/hal"
	"sparkrt/internal/config"
	"sparkrt/internal/metrics"
	"sparkrt/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) WriteLineString(s string) { l.WriteLineBytes([]byte(s)) }
func (l *lineLog) WriteLineBytes(b []byte) {
	l.mu.Lock()
	l.lines = append(l.lines, string(b))
	l.mu.Unlock()
}

func (l *lineLog) count(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.lines {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

type countLED struct{ high, low int }

func (l *countLED) High() { l.high++ }
func (l *countLED) Low()  { l.low++ }

type testTime struct{ ch chan uint64 }

func (t testTime) Ticks() <-chan uint64 { return t.ch }

// testHAL is the host HAL with observable logger, LED and clock.
type testHAL struct {
	hal.HAL
	log  *lineLog
	led  *countLED
	time testTime
}

func (h *testHAL) Logger() hal.Logger { return h.log }
func (h *testHAL) LED() hal.LED       { return h.led }
func (h *testHAL) Time() hal.Time     { return h.time }

func newTestHAL() *testHAL {
	return &testHAL{HAL: hal.New(), log: &lineLog{}, led: &countLED{}, time: testTime{ch: make(chan uint64)}}
}

func TestBootRunsServices(t *testing.T) {
	h := newTestHAL()
	cfg := config.Default()
	cfg.Log.Format = "json"
	cfg.Tick.Hz = 200
	cfg.Monitor.Period = 100
	col := metrics.NewCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	step := New(ctx, h, Config{File: cfg, Metrics: col})
	require.NoError(t, step())

	for seq := uint64(1); seq <= 2500; seq++ {
		select {
		case h.time.ch <- seq:
		case <-time.After(5 * time.Second):
			t.Fatalf("kernel stopped taking ticks at %d", seq)
		}
	}
	cancel()

	var err error
	require.Eventually(t, func() bool {
		err = step()
		return err != nil
	}, 5*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, step(), context.Canceled, "step keeps reporting the exit")

	assert.Equal(t, 1, h.log.count(`"services started"`))
	assert.GreaterOrEqual(t, h.log.count(`"temperature"`), 2)
	assert.GreaterOrEqual(t, h.led.high, 4)
	assert.GreaterOrEqual(t, h.led.low, 4)

	snap := col.Load()
	require.NotNil(t, snap)
	assert.GreaterOrEqual(t, snap.Now, uint64(2000))
	names := map[string]bool{}
	for _, ti := range snap.Threads {
		names[ti.Name] = true
	}
	for _, n := range []string{"logger", "timer", "worker-0", "worker-1", "sensor", "monitor", "metrics"} {
		assert.True(t, names[n], "thread %s missing", n)
	}
}

func TestInvalidConfigFailsFirstStep(t *testing.T) {
	cfg := config.Default()
	cfg.Heap.Kind = "tlsf"
	step := New(context.Background(), newTestHAL(), Config{File: cfg})
	require.ErrorContains(t, step(), "heap.kind")
}

func TestPanicLinesAndScreen(t *testing.T) {
	p := &kernel.PanicError{ID: 3, Thread: "sensor", Value: errors.New("boom"), Stack: []byte("a\n\nb\n")}
	lines := panicLines(p)
	require.Equal(t, []string{"Spark RT panic", "thread: 3 (sensor)", "panic: boom", "stack:", "a", "b"}, lines)

	h := newTestHAL()
	panicHandler(h)(p)
	assert.Equal(t, len(lines), h.log.count(""))

	fb := h.Display().Framebuffer()
	white := 0
	buf := fb.Buffer()
	for i := 0; i+1 < len(buf); i += 2 {
		if buf[i] == 0xff && buf[i+1] == 0xff {
			white++
		}
	}
	assert.NotZero(t, white, "panic text was not drawn")
}

func TestTakeRunes(t *testing.T) {
	head, rest := takeRunes("héllo", 2)
	assert.Equal(t, "hé", head)
	assert.Equal(t, "llo", rest)
	head, rest = takeRunes("ab", 5)
	assert.Equal(t, "ab", head)
	assert.Empty(t, rest)
}
