package workpool

import (
	"context"
	"testing"
	"time"

	"sparkrt/kernel"
	"sparkrt/kernel/heap"
	"sparkrt/kernel/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runKernel(t *testing.T, main func(k *kernel.Kernel)) {
	t.Helper()
	h, err := heap.NewBare(64 << 10)
	require.NoError(t, err)
	k := kernel.New(port.NewSim(), h, kernel.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, k.Run(ctx, func(any) { main(k) }, nil))
}

func TestSubmitRunsInOrderAndBounds(t *testing.T) {
	var ran []int
	runKernel(t, func(k *kernel.Kernel) {
		p, err := New(k, Options{Workers: 1, Depth: 2, Thread: kernel.ThreadAttr{Priority: 8}})
		if !assert.NoError(t, err) {
			return
		}
		task := func(arg any) { ran = append(ran, arg.(int)) }
		assert.NoError(t, p.Submit(task, 1, 0))
		assert.NoError(t, p.Submit(task, 2, 0))
		assert.ErrorIs(t, p.Submit(task, 3, 0), kernel.ErrTimeout)
		assert.Equal(t, 2, p.Pending())

		// Blocking lets the lower priority worker drain the queue.
		assert.NoError(t, p.Submit(task, 3, 10))
		k.Sleep(1)
		assert.Equal(t, 0, p.Pending())
		assert.EqualValues(t, 3, p.Completed())
		p.Close()
		assert.ErrorIs(t, p.Submit(task, 4, 0), ErrClosed)
	})
	require.Equal(t, []int{1, 2, 3}, ran)
}

func TestPendingCountsBusyWorkers(t *testing.T) {
	var pending []int
	runKernel(t, func(k *kernel.Kernel) {
		gate := k.NewSemaphore(0, 0)
		p, err := New(k, Options{Workers: 2, Depth: 4, Thread: kernel.ThreadAttr{Priority: 8}})
		if !assert.NoError(t, err) {
			return
		}
		block := func(any) { gate.Take() }
		for i := 0; i < 3; i++ {
			assert.NoError(t, p.Submit(block, nil, 0))
		}
		pending = append(pending, p.Pending())
		k.Sleep(1)
		// Both workers hold a task; one task is still queued.
		pending = append(pending, p.Pending())
		for i := 0; i < 3; i++ {
			gate.Give()
		}
		k.Sleep(1)
		pending = append(pending, p.Pending())
		p.Close()
	})
	require.Equal(t, []int{3, 3, 0}, pending)
}

func TestPendingCountsDequeuingWorkerOnce(t *testing.T) {
	var pending []int
	runKernel(t, func(k *kernel.Kernel) {
		p, err := New(k, Options{Workers: 1, Depth: 2, Thread: kernel.ThreadAttr{Priority: 8}})
		if !assert.NoError(t, err) {
			return
		}
		assert.NoError(t, p.Submit(func(any) {}, nil, 0))
		// The worker takes the job but stalls on the queue lock.
		p.mu.Lock()
		k.Sleep(1)
		pending = append(pending, p.Pending())
		p.mu.Unlock()
		k.Sleep(1)
		pending = append(pending, p.Pending())
		p.Close()
	})
	require.Equal(t, []int{1, 0}, pending)
}

func TestCloseDrainsQueue(t *testing.T) {
	var ran int
	runKernel(t, func(k *kernel.Kernel) {
		p, err := New(k, Options{Workers: 3, Depth: 8, Thread: kernel.ThreadAttr{Priority: 8}})
		if !assert.NoError(t, err) {
			return
		}
		for i := 0; i < 8; i++ {
			assert.NoError(t, p.Submit(func(any) { k.Sleep(2); ran++ }, nil, kernel.Forever))
		}
		p.Close()
		p.Close()
		assert.Equal(t, 0, p.Pending())
	})
	require.Equal(t, 8, ran)
}

func TestNewRejectsBadSizes(t *testing.T) {
	runKernel(t, func(k *kernel.Kernel) {
		_, err := New(k, Options{Workers: 0, Depth: 1})
		assert.Error(t, err)
		_, err = New(k, Options{Workers: 1, Depth: 0})
		assert.Error(t, err)
	})
}
