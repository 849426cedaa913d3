package watch

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

// recorder collects debouncer flushes.
type recorder struct {
	mu      sync.Mutex
	flushes [][]string
}

func (r *recorder) flush(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes = append(r.flushes, keys)
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.flushes)
}

func TestDebouncer_CoalescesWithinWindow(t *testing.T) {
	var r recorder
	d := NewDebouncer(100*time.Millisecond, r.flush)
	defer d.Stop()

	d.Add("photos")
	time.Sleep(20 * time.Millisecond)
	d.Add("blog")
	time.Sleep(20 * time.Millisecond)
	d.Add("photos")

	time.Sleep(200 * time.Millisecond)

	flushes := r.snapshot()
	if len(flushes) != 1 {
		t.Fatalf("expected 1 flush, got %d: %v", len(flushes), flushes)
	}
	got := flushes[0]
	slices.Sort(got)
	if want := []string{"blog", "photos"}; !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	var r recorder
	d := NewDebouncer(30*time.Millisecond, r.flush)
	defer d.Stop()

	d.Add("photos")
	time.Sleep(100 * time.Millisecond)
	d.Add("blog")
	time.Sleep(100 * time.Millisecond)

	flushes := r.snapshot()
	if len(flushes) != 2 {
		t.Fatalf("expected 2 flushes, got %d: %v", len(flushes), flushes)
	}
	if flushes[0][0] != "photos" || flushes[1][0] != "blog" {
		t.Errorf("unexpected flush order: %v", flushes)
	}
}

func TestDebouncer_FlushNow(t *testing.T) {
	var r recorder
	d := NewDebouncer(time.Second, r.flush)
	defer d.Stop()

	d.Add("photos")
	d.Add("blog")
	d.FlushNow()

	flushes := r.snapshot()
	if len(flushes) != 1 || len(flushes[0]) != 2 {
		t.Fatalf("expected one flush of 2 keys, got %v", flushes)
	}
	if d.PendingCount() != 0 {
		t.Errorf("expected nothing pending after FlushNow")
	}

	// Nothing pending: no empty flush.
	d.FlushNow()
	if n := len(r.snapshot()); n != 1 {
		t.Errorf("expected no extra flush, got %d", n)
	}
}

func TestDebouncer_StopFlushesAndIgnoresLaterEvents(t *testing.T) {
	var r recorder
	d := NewDebouncer(50*time.Millisecond, r.flush)

	d.Add("photos")
	d.Stop()
	d.Add("blog")
	time.Sleep(100 * time.Millisecond)

	flushes := r.snapshot()
	if len(flushes) != 1 {
		t.Fatalf("expected 1 flush, got %v", flushes)
	}
	if !slices.Equal(flushes[0], []string{"photos"}) {
		t.Errorf("expected [photos], got %v", flushes[0])
	}
}

func TestDebouncer_PendingCount(t *testing.T) {
	d := NewDebouncer(time.Second, func([]string) {})
	defer d.Stop()

	if n := d.PendingCount(); n != 0 {
		t.Errorf("expected 0 pending, got %d", n)
	}
	d.Add("photos")
	d.Add("blog")
	d.Add("photos")
	if n := d.PendingCount(); n != 2 {
		t.Errorf("expected 2 pending, got %d", n)
	}
}

func TestDebouncer_MaxPendingFlushesImmediately(t *testing.T) {
	var r recorder
	d := NewDebouncer(time.Second, r.flush)
	defer d.Stop()

	for i := 0; i < MaxPending+10; i++ {
		d.Add(fmt.Sprintf("src%d", i))
	}

	flushes := r.snapshot()
	if len(flushes) != 1 {
		t.Fatalf("expected 1 forced flush, got %d", len(flushes))
	}
	if len(flushes[0]) != MaxPending {
		t.Errorf("expected %d keys in forced flush, got %d", MaxPending, len(flushes[0]))
	}
	if n := d.PendingCount(); n != 10 {
		t.Errorf("expected 10 pending after forced flush, got %d", n)
	}
}
