// Package metrics is a small facade over a pluggable metrics backend.
//
// Core packages call the package-level helpers. The command picks a backend
// at startup with SetBackend; until then every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

// Metric names.
const (
	StepTotal      = "tablesync_step_total"
	StepDuration   = "tablesync_step_duration_seconds"
	RowsTotal      = "tablesync_rows_total"
	BatchesTotal   = "tablesync_batches_total"
	FieldsTotal    = "tablesync_fields_total"
	TablesTotal    = "tablesync_tables_total"
	UndoStepsTotal = "tablesync_undo_steps_total"
)

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nop{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend if it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep counts one pipeline step and observes its duration.
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDuration, d.Seconds(), l)
}

// RecordRows counts rows by status ("inserted" or "failed").
func RecordRows(status string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RowsTotal, float64(n), Labels{"status": status})
}

func RecordBatch() {
	IncCounter(BatchesTotal, 1, nil)
}

// RecordField counts a field operation ("created", "renamed", "deleted").
func RecordField(action string) {
	IncCounter(FieldsTotal, 1, Labels{"action": action})
}

// RecordTable counts a table outcome ("created", "appended", "failed").
func RecordTable(action string) {
	IncCounter(TablesTotal, 1, Labels{"action": action})
}

// RecordUndoStep counts one restore step by status ("ok" or "failed").
func RecordUndoStep(status string) {
	IncCounter(UndoStepsTotal, 1, Labels{"status": status})
}
