package heap

import (
	"errors"
	"testing"
)

func TestBareAllocFreeReuse(t *testing.T) {
	b, err := NewBare(1024)
	if err != nil {
		t.Fatalf("NewBare() err = %v", err)
	}
	base := b.Used()

	a1, err := b.Alloc(100)
	if err != nil {
		t.Fatalf("Alloc(100) err = %v", err)
	}
	if len(a1) != 100 || cap(a1) != 100 {
		t.Fatalf("Alloc(100) len/cap = %d/%d, want 100/100", len(a1), cap(a1))
	}
	a2, err := b.Alloc(50)
	if err != nil {
		t.Fatalf("Alloc(50) err = %v", err)
	}
	for i := range a1 {
		a1[i] = 0xAA
	}
	for i := range a2 {
		a2[i] = 0x55
	}

	b.Free(a1)
	if b.Blocks() != 1 {
		t.Fatalf("Blocks() = %d, want 1", b.Blocks())
	}
	a3, err := b.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc(64) err = %v", err)
	}
	if &a3[0] != &b.mem[2*headerSize] {
		t.Fatalf("Alloc(64) did not reuse the first gap")
	}
	for _, v := range a2 {
		if v != 0x55 {
			t.Fatalf("neighbour block corrupted: %#x", v)
		}
	}

	b.Free(a2)
	b.Free(a3)
	if b.Used() != base {
		t.Fatalf("Used() = %d after freeing everything, want %d", b.Used(), base)
	}
	if b.hint != 0 {
		t.Fatalf("hint = %d after freeing everything, want 0", b.hint)
	}
}

func TestBareExhaustionLeavesStateConsistent(t *testing.T) {
	b, err := NewBare(256)
	if err != nil {
		t.Fatalf("NewBare() err = %v", err)
	}
	var blocks [][]byte
	for {
		blk, err := b.Alloc(32)
		if err != nil {
			if !errors.Is(err, ErrNoMemory) {
				t.Fatalf("Alloc() err = %v, want ErrNoMemory", err)
			}
			break
		}
		blocks = append(blocks, blk)
	}
	if len(blocks) == 0 {
		t.Fatal("no block allocated")
	}
	used := b.Used()
	if _, err := b.Alloc(1000); !errors.Is(err, ErrNoMemory) {
		t.Fatalf("Alloc(1000) err = %v, want ErrNoMemory", err)
	}
	if b.Used() != used {
		t.Fatalf("failed Alloc changed Used(): %d -> %d", used, b.Used())
	}

	b.Free(blocks[0])
	if _, err := b.Alloc(32); err != nil {
		t.Fatalf("Alloc() after Free err = %v", err)
	}
}

func TestBareReallocInPlaceAndMove(t *testing.T) {
	b, err := NewBare(512)
	if err != nil {
		t.Fatalf("NewBare() err = %v", err)
	}
	a, _ := b.Alloc(16)
	copy(a, "0123456789abcdef")

	grown, err := b.Realloc(a, 40)
	if err != nil {
		t.Fatalf("Realloc(40) err = %v", err)
	}
	if &grown[0] != &a[0] {
		t.Fatal("Realloc(40) moved a block that had room to grow")
	}

	blocker, _ := b.Alloc(8)
	moved, err := b.Realloc(grown, 200)
	if err != nil {
		t.Fatalf("Realloc(200) err = %v", err)
	}
	if &moved[0] == &grown[0] {
		t.Fatal("Realloc(200) did not move a boxed-in block")
	}
	if got := string(moved[:16]); got != "0123456789abcdef" {
		t.Fatalf("Realloc() contents = %q", got)
	}

	shrunk, err := b.Realloc(moved, 8)
	if err != nil || len(shrunk) != 8 {
		t.Fatalf("Realloc(8) = len %d, err %v", len(shrunk), err)
	}
	b.Free(blocker)
	b.Free(shrunk)
	if b.Blocks() != 0 {
		t.Fatalf("Blocks() = %d, want 0", b.Blocks())
	}
}

func TestBareFreeForeignPanics(t *testing.T) {
	b, _ := NewBare(256)
	defer func() {
		if recover() == nil {
			t.Fatal("Free(foreign) did not panic")
		}
	}()
	b.Free(make([]byte, 8))
}

func TestBareInvalidSize(t *testing.T) {
	b, _ := NewBare(256)
	if _, err := b.Alloc(0); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("Alloc(0) err = %v, want ErrInvalidSize", err)
	}
	if _, err := NewBare(8); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("NewBare(8) err = %v, want ErrInvalidSize", err)
	}
}

func TestRuntimeLimitAndAccounting(t *testing.T) {
	r := NewRuntime(100)
	a, err := r.Alloc(60)
	if err != nil {
		t.Fatalf("Alloc(60) err = %v", err)
	}
	if _, err := r.Alloc(60); !errors.Is(err, ErrNoMemory) {
		t.Fatalf("Alloc(60) over limit err = %v, want ErrNoMemory", err)
	}
	a[0] = 7
	a, err = r.Realloc(a, 30)
	if err != nil || a[0] != 7 {
		t.Fatalf("Realloc(30) = %v, %v", a, err)
	}
	if r.Used() != 30 || r.Available() != 70 {
		t.Fatalf("Used/Available = %d/%d, want 30/70", r.Used(), r.Available())
	}
	r.Free(a)
	if r.Used() != 0 {
		t.Fatalf("Used() = %d, want 0", r.Used())
	}
}
