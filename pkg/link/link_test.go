package link

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestTakeRawOnce(t *testing.T) {
	l := New[string, int]([]string{"a", "b"})

	raw, ok := l.TakeRaw()
	if !ok {
		t.Fatal("first TakeRaw should succeed")
	}
	if len(raw) != 2 || raw[0] != "a" || raw[1] != "b" {
		t.Errorf("TakeRaw() = %v, want [a b]", raw)
	}

	for i := 0; i < 3; i++ {
		if raw, ok := l.TakeRaw(); ok || raw != nil {
			t.Errorf("TakeRaw() call %d = %v, %v; want nil, false", i+2, raw, ok)
		}
	}
}

func TestTakeRawEmptyList(t *testing.T) {
	l := New[string, int](nil)

	if _, ok := l.TakeRaw(); !ok {
		t.Error("an empty raw list can still be taken once")
	}
	if _, ok := l.TakeRaw(); ok {
		t.Error("second TakeRaw should fail")
	}
}

func TestTakeRawConcurrent(t *testing.T) {
	l := New[int, int]([]int{1, 2, 3})

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.TakeRaw(); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Errorf("TakeRaw succeeded %d times, want 1", got)
	}
}

func TestSetResolvedOnce(t *testing.T) {
	l := New[string, int](nil)

	if table, ok := l.TryResolved(); ok || table != nil {
		t.Fatalf("TryResolved before publish = %v, %v; want nil, false", table, ok)
	}
	if l.Resolved() {
		t.Error("Resolved() should be false before publish")
	}

	if err := l.SetResolved(map[string]int{"a": 1}); err != nil {
		t.Fatalf("first SetResolved: %v", err)
	}

	err := l.SetResolved(map[string]int{"b": 2})
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second SetResolved error = %v, want ErrAlreadyResolved", err)
	}

	table, ok := l.TryResolved()
	if !ok {
		t.Fatal("TryResolved after publish should succeed")
	}
	if len(table) != 1 || table["a"] != 1 {
		t.Errorf("TryResolved() = %v, want first published table", table)
	}

	if v, ok := l.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if _, ok := l.Get("b"); ok {
		t.Error("Get(b) should miss")
	}
}

func TestSetResolvedNilMap(t *testing.T) {
	l := New[string, int](nil)
	if err := l.SetResolved(nil); err != nil {
		t.Fatalf("SetResolved(nil): %v", err)
	}
	table, ok := l.TryResolved()
	if !ok || table == nil {
		t.Errorf("TryResolved() = %v, %v; want empty non-nil table", table, ok)
	}
}

func TestConcurrentPublish(t *testing.T) {
	l := New[string, int](nil)

	var successes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if l.SetResolved(map[string]int{"k": i}) == nil {
				successes.Add(1)
			}
		}(i)
	}

	readers := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-readers
			if table, ok := l.TryResolved(); ok && len(table) != 1 {
				t.Errorf("reader saw partial table %v", table)
			}
		}()
	}
	close(readers)
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("SetResolved succeeded %d times, want 1", got)
	}
}
