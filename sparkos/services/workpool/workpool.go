// Package workpool runs submitted tasks on a fixed set of kernel threads.
package workpool

import (
	"errors"
	"fmt"

	"sparkrt/internal/logging"
	"sparkrt/kernel"

	"github.com/phuslu/log"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("workpool: closed")

// Task is one unit of work.
type Task func(arg any)

type job struct {
	fn  Task
	arg any
}

// Pool is N worker threads fed from one bounded queue.
type Pool struct {
	k   *kernel.Kernel
	log *log.Logger

	mu    *kernel.Mutex
	slots *kernel.Semaphore // free queue entries
	items *kernel.Semaphore // queued jobs
	idle  *kernel.Semaphore // workers waiting for a job
	done  *kernel.Semaphore // workers that exited

	queue  []job
	head   int
	n      int
	closed bool

	workers []*kernel.Thread
	ran     uint64
}

// Options configures a Pool.
type Options struct {
	Workers int
	Depth   int
	// Thread is the template for worker threads; names get a "-N" suffix.
	Thread kernel.ThreadAttr
	Log    *log.Logger
}

// New creates the queue and starts the workers.
func New(k *kernel.Kernel, opts Options) (*Pool, error) {
	if opts.Workers <= 0 || opts.Depth <= 0 {
		return nil, fmt.Errorf("workpool: %d workers, depth %d", opts.Workers, opts.Depth)
	}
	if opts.Thread.Name == "" {
		opts.Thread.Name = "worker"
	}
	p := &Pool{
		k:     k,
		log:   logging.Module(opts.Log, "workpool"),
		mu:    k.NewMutex(),
		slots: k.NewSemaphore(uint32(opts.Depth), uint32(opts.Depth)),
		items: k.NewSemaphore(0, uint32(opts.Depth)),
		idle:  k.NewSemaphore(uint32(opts.Workers), uint32(opts.Workers)),
		done:  k.NewSemaphore(0, uint32(opts.Workers)),
		queue: make([]job, opts.Depth),
	}
	for i := 0; i < opts.Workers; i++ {
		attr := opts.Thread
		attr.Name = fmt.Sprintf("%s-%d", opts.Thread.Name, i)
		t, err := k.Create(p.work, nil, attr)
		if err != nil {
			// Workers already started exit on their stop jobs.
			p.stop(len(p.workers))
			return nil, fmt.Errorf("workpool: %w", err)
		}
		p.workers = append(p.workers, t)
	}
	return p, nil
}

// Workers returns the worker count.
func (p *Pool) Workers() int { return len(p.workers) }

// Submit queues fn(arg), waiting at most timeout ticks for room.
func (p *Pool) Submit(fn Task, arg any, timeout kernel.Ticks) error {
	if fn == nil {
		return errors.New("workpool: nil task")
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if _, err := p.slots.TakeTimeout(timeout); err != nil {
		return err
	}
	return p.push(job{fn: fn, arg: arg}, false)
}

func (p *Pool) push(j job, force bool) error {
	p.mu.Lock()
	if p.closed && !force {
		p.mu.Unlock()
		p.slots.Give()
		return ErrClosed
	}
	p.queue[(p.head+p.n)%len(p.queue)] = j
	p.n++
	p.mu.Unlock()
	p.items.Give()
	return nil
}

// pop dequeues the next job and marks the calling worker busy in one step.
func (p *Pool) pop() job {
	p.mu.Lock()
	j := p.queue[p.head]
	p.queue[p.head] = job{}
	p.head = (p.head + 1) % len(p.queue)
	p.n--
	p.idle.TryTake()
	p.mu.Unlock()
	p.slots.Give()
	return j
}

// Pending returns the queued tasks plus the tasks being run.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n + len(p.workers) - int(p.idle.Count())
}

// Completed returns the number of tasks that have finished.
func (p *Pool) Completed() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ran
}

// Close rejects new tasks, lets the queued ones finish and waits for every
// worker to exit. It must not be called from a worker.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.stop(len(p.workers))
}

// stop queues one stop job per worker and waits for them to exit.
func (p *Pool) stop(workers int) {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	for i := 0; i < workers; i++ {
		p.slots.Take()
		p.push(job{}, true)
	}
	for i := 0; i < workers; i++ {
		p.done.Take()
	}
	p.log.Debug().Int("workers", workers).Msg("work pool closed")
}

func (p *Pool) work(any) {
	for {
		p.items.Take()
		j := p.pop()
		if j.fn == nil {
			p.idle.Give()
			p.done.Give()
			return
		}
		j.fn(j.arg)
		p.mu.Lock()
		p.ran++
		p.idle.Give()
		p.mu.Unlock()
	}
}
