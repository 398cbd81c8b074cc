package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_OnlyLastTriggerFires(t *testing.T) {
	d := New(30 * time.Millisecond)
	defer d.Stop()

	var mu sync.Mutex
	var fired []int
	done := make(chan struct{})

	for i := 1; i <= 5; i++ {
		i := i
		d.Trigger("clip-1", func() {
			mu.Lock()
			fired = append(fired, i)
			mu.Unlock()
			close(done)
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounced call never fired")
	}

	// Give any stray timers a chance to misfire.
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != 5 {
		t.Fatalf("fired = %v, want [5]", fired)
	}
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	d := New(20 * time.Millisecond)
	defer d.Stop()

	var wg sync.WaitGroup
	var a, b atomic.Int32
	wg.Add(2)
	d.Trigger("a", func() { a.Add(1); wg.Done() })
	d.Trigger("b", func() { b.Add(1); wg.Done() })

	waitTimeout(t, &wg)
	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("a=%d b=%d, want 1 each", a.Load(), b.Load())
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	d := New(20 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	d.Trigger("clip", func() { calls.Add(1) })
	if !d.Pending("clip") {
		t.Fatal("expected pending call")
	}
	if !d.Cancel("clip") {
		t.Fatal("Cancel() = false, want true")
	}
	if d.Cancel("clip") {
		t.Fatal("second Cancel() = true, want false")
	}

	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0", calls.Load())
	}
}

func TestDebouncer_Stop(t *testing.T) {
	d := New(20 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger("x", func() { calls.Add(1) })
	d.Stop()
	d.Trigger("y", func() { calls.Add(1) })

	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0 after Stop", calls.Load())
	}
	if d.Pending("y") {
		t.Fatal("trigger after Stop should not be pending")
	}
}

func TestDebouncer_PendingClearsAfterFire(t *testing.T) {
	d := New(10 * time.Millisecond)
	defer d.Stop()

	done := make(chan struct{})
	d.Trigger("k", func() { close(done) })
	<-done
	if d.Pending("k") {
		t.Fatal("pending should be cleared once fired")
	}
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for debounced calls")
	}
}
