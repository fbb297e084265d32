package buffer

import (
	"sync"
	"testing"

	"pgregory.net/rapid"
)

func TestRingBuffer_DefaultCapacity(t *testing.T) {
	rb := New[string](0)
	if rb.Cap() != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, rb.Cap())
	}
}

func TestRingBuffer_PushPop(t *testing.T) {
	rb := New[int](5)

	for i := 0; i < 5; i++ {
		if !rb.Push(i) {
			t.Errorf("push %d should succeed", i)
		}
	}

	if rb.Push(999) {
		t.Error("push to full buffer should fail")
	}
	if rb.Dropped() != 1 {
		t.Errorf("expected 1 drop, got %d", rb.Dropped())
	}

	// FIFO order
	for i := 0; i < 5; i++ {
		v, ok := rb.Pop()
		if !ok {
			t.Errorf("pop %d should succeed", i)
		}
		if v != i {
			t.Errorf("expected %d, got %d", i, v)
		}
	}

	if _, ok := rb.Pop(); ok {
		t.Error("pop from empty buffer should fail")
	}
}

func TestRingBuffer_PushOverwrite(t *testing.T) {
	rb := New[float64](3)

	for i := 0; i < 3; i++ {
		if rb.PushOverwrite(float64(i)) {
			t.Errorf("push %d should not overwrite", i)
		}
	}

	if !rb.PushOverwrite(3) {
		t.Error("push into full buffer should overwrite")
	}

	got := rb.Snapshot()
	want := []float64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot = %v, want %v", got, want)
		}
	}
	if rb.Dropped() != 1 {
		t.Errorf("expected 1 eviction, got %d", rb.Dropped())
	}
}

func TestRingBuffer_PopIf(t *testing.T) {
	rb := New[int](4)
	rb.Push(1)
	rb.Push(10)

	if _, ok := rb.PopIf(func(v int) bool { return v > 5 }); ok {
		t.Error("PopIf should refuse head that fails predicate")
	}
	if v, ok := rb.PopIf(func(v int) bool { return v < 5 }); !ok || v != 1 {
		t.Errorf("PopIf = %d, %v; want 1, true", v, ok)
	}
	if rb.Len() != 1 {
		t.Errorf("expected len 1, got %d", rb.Len())
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := New[int](2)
	rb.Push(1)
	rb.Push(2)
	rb.Push(3)

	rb.Clear()
	if rb.Len() != 0 {
		t.Error("buffer should be empty after clear")
	}
	if rb.Dropped() != 1 {
		t.Error("clear should keep the drop counter")
	}
	if !rb.Push(4) {
		t.Error("push after clear should succeed")
	}
}

func TestRingBuffer_Concurrent(t *testing.T) {
	rb := New[int](1000)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				rb.Push(i)
			}
		}()
	}
	wg.Wait()

	if rb.Len() != 1000 {
		t.Errorf("expected 1000 elements, got %d", rb.Len())
	}
}

// The buffer behaves like a bounded slice queue under any operation mix.
func TestRingBuffer_MatchesSliceModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(t, "capacity")
		rb := New[int](capacity)
		var model []int

		ops := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 64).Draw(t, "ops")
		for i, op := range ops {
			switch op {
			case 0:
				ok := rb.Push(i)
				if ok != (len(model) < capacity) {
					t.Fatalf("Push(%d) = %v with %d/%d", i, ok, len(model), capacity)
				}
				if ok {
					model = append(model, i)
				}
			case 1:
				rb.PushOverwrite(i)
				model = append(model, i)
				if len(model) > capacity {
					model = model[1:]
				}
			case 2:
				v, ok := rb.Pop()
				if ok != (len(model) > 0) {
					t.Fatalf("Pop ok = %v with %d elements", ok, len(model))
				}
				if ok {
					if v != model[0] {
						t.Fatalf("Pop = %d, want %d", v, model[0])
					}
					model = model[1:]
				}
			}

			snap := rb.Snapshot()
			if len(snap) != len(model) {
				t.Fatalf("len = %d, want %d", len(snap), len(model))
			}
			for j := range snap {
				if snap[j] != model[j] {
					t.Fatalf("snapshot = %v, want %v", snap, model)
				}
			}
		}
	})
}
