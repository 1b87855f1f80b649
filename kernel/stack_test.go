package kernel

import (
	"errors"
	"testing"
)

// smash overwrites the lowest stack byte, inside the guard region.
func smash(k *Kernel) {
	k.Current().Stack()[0] = 0
}

func TestResetOnOverflowHalts(t *testing.T) {
	k, _ := newKernel(t, Config{})
	err := runKernel(t, k, func() {
		spawn(t, k, "bad", 20, func() {
			smash(k)
			k.Sleep(1)
			t.Error("overflowing thread resumed")
		})
		k.Sleep(5)
		t.Error("system kept running after an overflow")
	})
	var soe *StackOverflowError
	if !errors.As(err, &soe) {
		t.Fatalf("Run() err = %v, want *StackOverflowError", err)
	}
	if soe.Thread != "bad" {
		t.Fatalf("StackOverflowError.Thread = %q, want bad", soe.Thread)
	}
}

func TestSuspendOnOverflowIsolatesThread(t *testing.T) {
	k, _ := newKernel(t, Config{Overflow: SuspendOnOverflow})
	resumed := false
	err := runKernel(t, k, func() {
		bad := spawn(t, k, "bad", 20, func() {
			smash(k)
			k.Sleep(1)
			resumed = true
		})
		k.Sleep(3)
		if bad.State() != Suspended {
			t.Errorf("State() = %v, want suspended", bad.State())
		}
		k.Delete(bad)
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if resumed {
		t.Fatal("suspended thread kept running")
	}
	if st := k.Stats(); st.Overflows != 1 {
		t.Fatalf("Overflows = %d, want 1", st.Overflows)
	}
}

func TestSuspendOnOverflowWhileBlocked(t *testing.T) {
	k, _ := newKernel(t, Config{Overflow: SuspendOnOverflow})
	took := false
	err := runKernel(t, k, func() {
		s := k.NewSemaphore(0, 1)
		bad := spawn(t, k, "bad", 20, func() {
			smash(k)
			s.Take()
			took = true
		})
		if bad.State() != Suspended {
			t.Errorf("State() = %v, want suspended", bad.State())
		}
		s.Give()
		if took || s.Count() != 1 {
			t.Errorf("Give() reached a suspended thread: took=%v Count()=%d", took, s.Count())
		}
		k.Enter()
		k.rearmGuard(bad)
		k.Leave()
		k.Resume(bad)
		if !took || s.Count() != 0 {
			t.Errorf("after Resume: took=%v Count()=%d, want true, 0", took, s.Count())
		}
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if st := k.Stats(); st.Overflows != 1 {
		t.Fatalf("Overflows = %d, want 1", st.Overflows)
	}
}

func TestCallbackOnOverflowRearms(t *testing.T) {
	var hits []string
	k, _ := newKernel(t, Config{Overflow: CallbackOnOverflow(func(th *Thread) {
		hits = append(hits, th.Name())
	})})
	finished := false
	err := runKernel(t, k, func() {
		spawn(t, k, "bad", 20, func() {
			smash(k)
			k.Sleep(1)
			k.Sleep(1)
			finished = true
		})
	})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if !finished {
		t.Fatal("thread did not continue after the callback")
	}
	if len(hits) != 1 || hits[0] != "bad" {
		t.Fatalf("callback hits = %v, want [bad] once", hits)
	}
}

func TestStackHighWater(t *testing.T) {
	stack := make([]byte, 128)
	fillStack(stack)
	if got := StackHighWater(stack); got != 0 {
		t.Fatalf("StackHighWater(fresh) = %d, want 0", got)
	}
	stack[100] = 1
	if got := StackHighWater(stack); got != 28 {
		t.Fatalf("StackHighWater() = %d, want 28", got)
	}
}
