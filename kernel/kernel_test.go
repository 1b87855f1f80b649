package kernel

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"sparkrt/kernel/heap"
	"sparkrt/kernel/port"
)

func newKernel(t *testing.T, cfg Config, opts ...port.Option) (*Kernel, *port.Sim) {
	t.Helper()
	h, err := heap.NewBare(128 << 10)
	if err != nil {
		t.Fatalf("NewBare() err = %v", err)
	}
	sim := port.NewSim(opts...)
	return New(sim, h, cfg), sim
}

func runKernel(t *testing.T, k *Kernel, main func()) error {
	t.Helper()
	return runKernelCtx(t, context.Background(), k, main)
}

func runKernelCtx(t *testing.T, ctx context.Context, k *Kernel, main func()) error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- k.Run(ctx, func(any) { main() }, nil)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for the kernel to halt")
		return nil
	}
}

// spawn creates a thread from kernel context.
func spawn(t *testing.T, k *Kernel, name string, prio int, fn func()) *Thread {
	th, err := k.Create(func(any) { fn() }, nil, ThreadAttr{Name: name, Priority: prio})
	if err != nil {
		t.Errorf("Create(%s) err = %v", name, err)
		k.Shutdown()
	}
	return th
}

type faultLog struct{ errs []error }

func (f *faultLog) record(err error) { f.errs = append(f.errs, err) }

func (f *faultLog) has(target error) bool {
	for _, err := range f.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func TestRunEndsWhenAllThreadsExit(t *testing.T) {
	k, _ := newKernel(t, Config{})
	ran := false
	if err := runKernel(t, k, func() { ran = true }); err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if !ran {
		t.Fatal("main thread did not run")
	}
	if !k.Halted() {
		t.Fatal("Halted() = false after Run returned")
	}
	if err := k.Run(context.Background(), func(any) {}, nil); !errors.Is(err, ErrHalted) {
		t.Fatalf("second Run() err = %v, want ErrHalted", err)
	}
}

func TestPriorityOrderAndFIFOAmongEquals(t *testing.T) {
	k, _ := newKernel(t, Config{})
	var trace []string
	err := runKernel(t, k, func() {
		spawn(t, k, "low", 5, func() { trace = append(trace, "low") })
		spawn(t, k, "b", 10, func() { trace = append(trace, "b") })
		spawn(t, k, "c", 10, func() { trace = append(trace, "c") })
		trace = append(trace, "main")
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	want := []string{"main", "b", "c", "low"}
	if !reflect.DeepEqual(trace, want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
}

func TestCreateHigherPriorityPreempts(t *testing.T) {
	k, _ := newKernel(t, Config{})
	var trace []string
	err := runKernel(t, k, func() {
		spawn(t, k, "high", 20, func() { trace = append(trace, "high") })
		trace = append(trace, "main")
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if want := []string{"high", "main"}; !reflect.DeepEqual(trace, want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
}

func TestPriorityDominance(t *testing.T) {
	k, _ := newKernel(t, Config{})
	violations := 0
	check := func() {
		me := k.Current()
		for _, info := range k.Threads() {
			if info.State == Ready && info.Priority > me.Priority() {
				violations++
			}
		}
	}
	err := runKernel(t, k, func() {
		for i, prio := range []int{3, 7, 7, 12, 20} {
			prio, n := prio, Ticks(i%3+1)
			spawn(t, k, "", prio, func() {
				for j := 0; j < 4; j++ {
					check()
					k.Yield()
					check()
					k.Sleep(n)
				}
			})
		}
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if violations != 0 {
		t.Fatalf("a lower priority thread ran while a higher one was ready (%d times)", violations)
	}
}

func TestSetPriorityReschedules(t *testing.T) {
	k, _ := newKernel(t, Config{})
	var trace []string
	err := runKernel(t, k, func() {
		th := spawn(t, k, "worker", 10, func() { trace = append(trace, "worker") })
		k.SetPriority(th, 40)
		trace = append(trace, "main")
		if th.Priority() != k.Config().MaxPriority {
			t.Errorf("Priority() = %d, want clamp to %d", th.Priority(), k.Config().MaxPriority)
		}
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if want := []string{"worker", "main"}; !reflect.DeepEqual(trace, want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
}

func TestSleepNeverWakesEarly(t *testing.T) {
	k, _ := newKernel(t, Config{})
	timeouts := []Ticks{10, 20, 20, 30, 50}
	woke := make([]uint64, len(timeouts))
	err := runKernel(t, k, func() {
		for i, d := range timeouts {
			i, d := i, d
			spawn(t, k, "", 20, func() {
				start := k.Now()
				k.Sleep(d)
				woke[i] = k.Now() - start
			})
		}
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	for i, d := range timeouts {
		if woke[i] != uint64(d) {
			t.Fatalf("sleeper %d woke after %d ticks, want %d", i, woke[i], d)
		}
	}
	// One scan per distinct wake point: 10, 20, 30 and 50.
	st := k.Stats()
	if st.SleepScans != 4 {
		t.Fatalf("SleepScans = %d, want 4", st.SleepScans)
	}
	if st.Ticks != 50 {
		t.Fatalf("Ticks = %d, want 50", st.Ticks)
	}
}

func TestSleepScansFollowWakePointsNotTicks(t *testing.T) {
	k, sim := newKernel(t, Config{}, port.WithManualClock())
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(50 * time.Microsecond):
				sim.Tick(1)
			}
		}
	}()

	timeouts := []Ticks{15, 30, 30, 60}
	early := 0
	err := runKernel(t, k, func() {
		for _, d := range timeouts {
			d := d
			spawn(t, k, "", 20, func() {
				start := k.Now()
				k.Sleep(d)
				if k.Now()-start < uint64(d) {
					early++
				}
			})
		}
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if early != 0 {
		t.Fatalf("%d sleepers woke early", early)
	}
	st := k.Stats()
	if st.Ticks < 60 {
		t.Fatalf("Ticks = %d, want at least 60", st.Ticks)
	}
	// Every scan wakes at least one sleeper.
	if st.SleepScans > uint64(len(timeouts)) {
		t.Fatalf("SleepScans = %d over %d ticks, want at most %d", st.SleepScans, st.Ticks, len(timeouts))
	}
}

func TestRoundRobinRotatesEqualPriorities(t *testing.T) {
	k, sim := newKernel(t, Config{RoundRobin: true, TimeSlice: 1}, port.WithManualClock())
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(100 * time.Microsecond):
				sim.Tick(1)
			}
		}
	}()

	var trace []string
	worker := func(name string) func() {
		return func() {
			for {
				k.Enter()
				if len(trace) >= 6 {
					k.Leave()
					return
				}
				if len(trace) == 0 || trace[len(trace)-1] != name {
					trace = append(trace, name)
				}
				k.Leave()
			}
		}
	}
	err := runKernel(t, k, func() {
		spawn(t, k, "a", 10, worker("a"))
		spawn(t, k, "b", 10, worker("b"))
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if want := []string{"a", "b", "a", "b", "a", "b"}; !reflect.DeepEqual(trace, want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
}

func TestSuspendResume(t *testing.T) {
	k, _ := newKernel(t, Config{})
	var ranAt uint64
	err := runKernel(t, k, func() {
		th := spawn(t, k, "worker", 10, func() { ranAt = k.Now() })
		k.Suspend(th)
		if th.State() != Suspended {
			t.Errorf("State() = %v, want suspended", th.State())
		}
		k.Sleep(3)
		k.Resume(th)
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if ranAt != 3 {
		t.Fatalf("suspended thread ran at tick %d, want 3", ranAt)
	}
}

func TestDeleteAndReap(t *testing.T) {
	k, _ := newKernel(t, Config{})
	var used int
	err := runKernel(t, k, func() {
		used = k.Heap().Used()
		th := spawn(t, k, "victim", 5, func() { t.Error("deleted thread ran") })
		k.Delete(th)
		k.Delete(th)
		if th.State() != Dead {
			t.Errorf("State() = %v, want dead", th.State())
		}
		k.Sleep(1)
		if got := k.Heap().Used(); got != used {
			t.Errorf("heap Used() = %d after reap, want %d", got, used)
		}
		for _, info := range k.Threads() {
			if info.Name == "victim" {
				t.Error("reaped thread still listed")
			}
		}
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if st := k.Stats(); st.Reaped < 2 {
		t.Fatalf("Reaped = %d, want at least 2", st.Reaped)
	}
}

func TestAllocFailureLeavesKernelUsable(t *testing.T) {
	h, err := heap.NewBare(16 << 10)
	if err != nil {
		t.Fatalf("NewBare() err = %v", err)
	}
	failed := 0
	k := New(port.NewSim(), h, Config{DefaultStackSize: 2048, OnAllocFail: func(int) { failed++ }})
	err = runKernel(t, k, func() {
		var threads []*Thread
		for {
			th, err := k.Create(func(any) {}, nil, ThreadAttr{Priority: 1})
			if err != nil {
				if !errors.Is(err, ErrNoMemory) {
					t.Errorf("Create() err = %v, want ErrNoMemory", err)
				}
				break
			}
			threads = append(threads, th)
		}
		before := h.Used()
		if _, err := k.Create(func(any) {}, nil, ThreadAttr{Priority: 1}); err == nil {
			t.Error("Create() succeeded on a full heap")
		}
		if h.Used() != before {
			t.Errorf("failed Create() changed heap use: %d -> %d", before, h.Used())
		}
		k.Delete(threads[0])
		k.Sleep(1)
		if _, err := k.Create(func(any) {}, nil, ThreadAttr{Priority: 1}); err != nil {
			t.Errorf("Create() after reap err = %v", err)
		}
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if failed < 2 {
		t.Fatalf("OnAllocFail called %d times, want at least 2", failed)
	}
}

func TestDeadlockDetected(t *testing.T) {
	k, _ := newKernel(t, Config{})
	err := runKernel(t, k, func() {
		k.NewSemaphore(0, 0).Take()
	})
	if !errors.Is(err, ErrDeadlock) {
		t.Fatalf("Run() err = %v, want ErrDeadlock", err)
	}
}

func TestShutdownAndContextCancel(t *testing.T) {
	k, _ := newKernel(t, Config{})
	if err := runKernel(t, k, func() {
		spawn(t, k, "forever", 5, func() {
			for {
				k.Sleep(1)
			}
		})
		k.Sleep(10)
		k.Shutdown()
		t.Error("Shutdown() returned")
	}); err != nil {
		t.Fatalf("Run() after Shutdown err = %v", err)
	}

	k, _ = newKernel(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err := runKernelCtx(t, ctx, k, func() {
		for {
			k.Sleep(1)
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() err = %v, want context.Canceled", err)
	}
}

func TestInterruptRunsInInterruptContext(t *testing.T) {
	var faults faultLog
	k, _ := newKernel(t, Config{OnFault: faults.record})
	inISR := false
	err := runKernel(t, k, func() {
		sem := k.NewSemaphore(0, 0)
		k.Interrupt(func() {
			inISR = k.InInterrupt() && k.Current() == nil
			if _, err := sem.TakeTimeout(5); !errors.Is(err, ErrBlockingContext) {
				t.Errorf("TakeTimeout() in interrupt err = %v", err)
			}
			sem.Give()
		})
		if _, err := sem.TakeTimeout(100); err != nil {
			t.Errorf("TakeTimeout() err = %v", err)
		}
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if !inISR {
		t.Fatal("interrupt callback did not run in interrupt context")
	}
	if !faults.has(ErrBlockingContext) {
		t.Fatalf("faults = %v, want ErrBlockingContext", faults.errs)
	}
}

func TestCriticalSectionMisuse(t *testing.T) {
	var faults faultLog
	k, _ := newKernel(t, Config{OnFault: faults.record})
	err := runKernel(t, k, func() {
		k.Leave()

		k.Enter()
		k.Enter()
		k.Sleep(1)
		k.Leave()
		k.Leave()
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if !faults.has(ErrUnbalancedCritical) || !faults.has(ErrBlockingContext) {
		t.Fatalf("faults = %v", faults.errs)
	}
}

func TestPanicHaltsWithPanicError(t *testing.T) {
	var seen *PanicError
	k, _ := newKernel(t, Config{OnPanic: func(p *PanicError) { seen = p }})
	err := runKernel(t, k, func() {
		m := k.NewMutex()
		m.Unlock()
	})
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Run() err = %v, want *PanicError", err)
	}
	if !errors.Is(err, ErrNotOwner) || pe.Thread != "main" {
		t.Fatalf("PanicError = %+v", pe)
	}
	if seen != pe {
		t.Fatal("OnPanic did not see the halting panic")
	}
}

func TestThreadsSnapshot(t *testing.T) {
	k, _ := newKernel(t, Config{})
	var infos []ThreadInfo
	err := runKernel(t, k, func() {
		spawn(t, k, "sleeper", 20, func() { k.Sleep(5) })
		infos = k.Threads()
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	states := map[string]State{}
	for _, info := range infos {
		states[info.Name] = info.State
		if info.StackUsed <= 0 || info.StackUsed > info.StackSize {
			t.Fatalf("%s StackUsed = %d of %d", info.Name, info.StackUsed, info.StackSize)
		}
	}
	want := map[string]State{"idle": Ready, "main": Running, "sleeper": Sleeping}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
}
