package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type captureBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	hists    map[string][]float64
	flushErr error
	flushed  int
}

func newCapture() *captureBackend {
	return &captureBackend{counters: map[string]float64{}, hists: map[string][]float64{}}
}

func (c *captureBackend) IncCounter(name string, delta float64, labels Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name+"|"+labels["status"]] += delta
}

func (c *captureBackend) ObserveHistogram(name string, value float64, labels Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hists[name] = append(c.hists[name], value)
}

func (c *captureBackend) Flush() error {
	c.flushed++
	return c.flushErr
}

// Tests below swap the package-level backend and must not run in parallel.

func TestHelpersReachBackend(t *testing.T) {
	c := newCapture()
	SetBackend(c)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStep("write", "ok", 1500*time.Millisecond)
	RecordRows("inserted", 3)
	RecordRows("failed", 0)
	RecordBatch()
	RecordBatch()

	if got := c.counters[StepTotal+"|ok"]; got != 1 {
		t.Fatalf("step total=%v, want 1", got)
	}
	if got := c.hists[StepDuration]; len(got) != 1 || got[0] != 1.5 {
		t.Fatalf("step duration=%v, want [1.5]", got)
	}
	if got := c.counters[RowsTotal+"|inserted"]; got != 3 {
		t.Fatalf("rows inserted=%v, want 3", got)
	}
	if _, ok := c.counters[RowsTotal+"|failed"]; ok {
		t.Fatalf("zero failed rows should not be recorded")
	}
	if got := c.counters[BatchesTotal+"|"]; got != 2 {
		t.Fatalf("batches=%v, want 2", got)
	}
}

func TestFlush(t *testing.T) {
	SetBackend(nil)
	if err := Flush(); err != nil {
		t.Fatalf("nop Flush()=%v, want nil", err)
	}

	c := newCapture()
	c.flushErr = errors.New("boom")
	SetBackend(c)
	t.Cleanup(func() { SetBackend(nil) })

	if err := Flush(); err == nil {
		t.Fatalf("Flush() error=nil, want backend error")
	}
	if c.flushed != 1 {
		t.Fatalf("flushed=%d, want 1", c.flushed)
	}
}
