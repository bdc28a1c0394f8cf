// Package writer inserts rows into a Table Store in fixed-size batches.
//
// A failed batch is retried row by row, once and immediately. The unit of
// failure is a single row: one bad row never aborts its batch's siblings,
// later batches or the table.
package writer

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"tablesync/internal/apperr"
	"tablesync/internal/metrics"
	"tablesync/internal/storage"
)

// DefaultBatchSize is the number of rows sent per InsertRows call.
const DefaultBatchSize = 50

// Logger is the logging surface used by the writer.
type Logger interface {
	Printf(format string, v ...any)
}

// Writer writes rows for one run. The zero value is not usable; use New.
type Writer struct {
	store     storage.TableStore
	batchSize int
	log       Logger
	// OnInserted, when set, is called after every successful insert with the
	// new row ids in order.
	OnInserted func(tableID string, ids []string)
}

// New returns a writer. batchSize <= 0 selects DefaultBatchSize.
func New(store storage.TableStore, batchSize int, logger Logger) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Writer{store: store, batchSize: batchSize, log: logger}
}

// Result reports one Write call.
type Result struct {
	Inserted []string
	Failed   int
	Batches  int
	// Degraded counts batches that fell back to per-row inserts.
	Degraded int
	Errors   []error
}

// Write inserts rows into tableID sequentially, batch after batch.
func (w *Writer) Write(ctx context.Context, tableID, table string, rows []Row) Result {
	var res Result
	start := time.Now()

	for off := 0; off < len(rows); off += w.batchSize {
		end := off + w.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[off:end]
		res.Batches++
		metrics.RecordBatch()

		ids, err := w.store.InsertRows(ctx, tableID, batch)
		if err == nil {
			w.inserted(tableID, ids, &res)
			continue
		}

		res.Degraded++
		w.log.Printf("stage=write table=%s batch=%d rows=%d err=%v (retrying row by row)", table, res.Batches, len(batch), err)
		for i, row := range batch {
			ids, err := w.store.InsertRows(ctx, tableID, []Row{row})
			if err != nil {
				res.Failed++
				rowErr := apperr.Wrap(apperr.ErrRowWrite, fmt.Sprintf("%s row %d", table, off+i), err)
				res.Errors = append(res.Errors, rowErr)
				w.log.Printf("stage=write table=%s row=%d err=%v", table, off+i, err)
				continue
			}
			w.inserted(tableID, ids, &res)
		}
	}

	metrics.RecordRows("inserted", len(res.Inserted))
	metrics.RecordRows("failed", res.Failed)
	status := "ok"
	if res.Failed > 0 {
		status = "partial"
	}
	metrics.RecordStep("write", status, time.Since(start))
	w.log.Printf("stage=write table=%s inserted=%d failed=%d batches=%d", table, len(res.Inserted), res.Failed, res.Batches)
	return res
}

func (w *Writer) inserted(tableID string, ids []string, res *Result) {
	res.Inserted = append(res.Inserted, ids...)
	if w.OnInserted != nil && len(ids) > 0 {
		w.OnInserted(tableID, ids)
	}
}

// Row is an alias kept so callers need not import storage for the payload.
type Row = storage.Row
