package multitable

import "tablesync/internal/reconcile"

// TableReport is the outcome for one source table.
type TableReport struct {
	Source        string           `json:"source"`
	Table         string           `json:"table,omitempty"`
	TableID       string           `json:"table_id,omitempty"`
	Bucket        reconcile.Bucket `json:"bucket,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	RowsInserted  int              `json:"rows_inserted"`
	RowsFailed    int              `json:"rows_failed"`
	FieldsSkipped int              `json:"fields_skipped"`
	FieldsRenamed int              `json:"fields_renamed,omitempty"`
	FieldsDeleted int              `json:"fields_deleted,omitempty"`
	Skipped       bool             `json:"skipped,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Report summarizes a WriteAll or SyncFields run.
type Report struct {
	Operation      string        `json:"operation"`
	SnapshotID     string        `json:"snapshot_id,omitempty"`
	Tables         []TableReport `json:"tables"`
	TablesCreated  int           `json:"tables_created"`
	TablesAppended int           `json:"tables_appended"`
	TablesFailed   int           `json:"tables_failed"`
	RowsInserted   int           `json:"rows_inserted"`
	RowsFailed     int           `json:"rows_failed"`
	FieldsSkipped  int           `json:"fields_skipped"`
	Warnings       []string      `json:"warnings,omitempty"`
}

func (r *Report) add(t TableReport) {
	r.Tables = append(r.Tables, t)
	r.RowsInserted += t.RowsInserted
	r.RowsFailed += t.RowsFailed
	r.FieldsSkipped += t.FieldsSkipped
	switch {
	case t.Error != "":
		r.TablesFailed++
	case t.Skipped:
	case t.Bucket == reconcile.BucketAppend:
		r.TablesAppended++
	case t.Bucket != "":
		r.TablesCreated++
	}
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// UndoReport summarizes one Undo.
type UndoReport struct {
	SnapshotID  string   `json:"snapshot_id"`
	Description string   `json:"description"`
	Steps       int      `json:"steps"`
	Failures    []string `json:"failures,omitempty"`
	Remaining   int      `json:"remaining"`
}
