// Package multitable drives a full run: it reconciles inferred tables
// against the store, writes their rows and records everything needed to
// undo the run.
//
// WriteAll, SyncFields and Undo share the field mapping and the undo stack,
// so only one of them may be in flight per Runner; a concurrent call fails
// with a BUSY error instead of waiting.
package multitable

import (
	"context"
	"fmt"
	"log"
	"maps"
	"sync/atomic"
	"time"

	"tablesync/internal/apperr"
	"tablesync/internal/metrics"
	"tablesync/internal/probe"
	"tablesync/internal/reconcile"
	"tablesync/internal/schema"
	"tablesync/internal/snapshot"
	"tablesync/internal/state"
	"tablesync/internal/storage"
	"tablesync/internal/writer"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Runner owns one store and one persisted state.
type Runner struct {
	Store  storage.TableStore
	State  *state.Store
	Logger Logger
	Config RuntimeConfig

	busy atomic.Bool
}

// NewRunner returns a runner. A nil state keeps everything in memory.
func NewRunner(store storage.TableStore, st *state.Store, logger Logger, cfg RuntimeConfig) *Runner {
	if st == nil {
		st = state.New(nil, logger)
	}
	return &Runner{Store: store, State: st, Logger: logger, Config: cfg}
}

func (r *Runner) logger() Logger {
	if r.Logger == nil {
		return log.New(discardWriter{}, "", 0)
	}
	return r.Logger
}

func (r *Runner) acquire(op string) error {
	if !r.busy.CompareAndSwap(false, true) {
		return apperr.Newf(apperr.ErrBusy, "%s: another operation is in progress", op)
	}
	return nil
}

func (r *Runner) release() { r.busy.Store(false) }

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// Preview parses and infers text and applies the saved user overrides. The
// text is remembered as last_text.
func (r *Runner) Preview(ctx context.Context, text string, opt probe.Options) (probe.Result, error) {
	start := time.Now()
	res, err := probe.Probe(text, opt)
	if err != nil {
		metrics.RecordStep("preview", "error", time.Since(start))
		return probe.Result{}, err
	}
	ov := r.State.Overrides(ctx)
	for i, spec := range res.Tables {
		res.Tables[i] = ov.Apply(spec)
	}
	if err := r.State.SaveLastText(ctx, text); err != nil {
		r.logger().Printf("stage=preview err=%v (last text not saved)", err)
	}
	metrics.RecordStep("preview", "ok", time.Since(start))
	r.logger().Printf("stage=preview format=%s tables=%d duration=%s", res.Format, len(res.Tables), durMS(start))
	return res, nil
}

// prepare applies overrides and the write scope, and pins SourceName so the
// spec keeps its identity once Name is replaced by the destination name.
func (r *Runner) prepare(specs []schema.TableSpec, ov schema.Overrides, cfg RuntimeConfig) []schema.TableSpec {
	out := make([]schema.TableSpec, 0, len(specs))
	for _, spec := range specs {
		spec.SourceName = spec.Origin()
		spec = ov.Apply(spec)
		if cfg.WriteScope == ScopeAll {
			spec = spec.WithAllEnabled()
		}
		out = append(out, spec)
	}
	return out
}

func snapshotTargets(specs []schema.TableSpec, targets state.Targets) []snapshot.Target {
	out := make([]snapshot.Target, 0, len(specs))
	for _, spec := range specs {
		t := targets[spec.Origin()]
		name := t.TableName
		if name == "" {
			name = spec.Name
		}
		out = append(out, snapshot.Target{ID: t.TableID, Name: name})
	}
	return out
}

// WriteAll reconciles and writes every spec. A table that fails is reported
// and the run moves on; an error is returned only when the run could not
// start. The run is pushed onto the undo stack when it changed anything.
func (r *Runner) WriteAll(ctx context.Context, specs []schema.TableSpec) (Report, error) {
	if err := r.acquire("write"); err != nil {
		return Report{}, err
	}
	defer r.release()

	start := time.Now()
	logf := r.logger().Printf
	cfg := r.Config.withDefaults()
	rep := Report{Operation: "write"}

	mapping := r.State.Mapping(ctx)
	targets := r.State.Targets(ctx)
	schemas := r.State.Schemas(ctx)
	stack := r.State.Stack(ctx)
	specs = r.prepare(specs, r.State.Overrides(ctx), cfg)

	live, err := r.Store.ListTables(ctx)
	if err != nil {
		return rep, apperr.Wrap(apperr.ErrTableOperation, "list tables", err)
	}
	snap, err := snapshot.Take(ctx, r.Store, fmt.Sprintf("write %d table(s)", len(specs)), snapshotTargets(specs, targets), mapping)
	if err != nil {
		return rep, apperr.Wrap(apperr.ErrTableOperation, "snapshot", err)
	}
	rep.SnapshotID = snap.ID
	snap.Targets = maps.Clone(targets)

	res := reconcile.NewResolver(r.Store, mapping, r.Logger, snap)
	used := make(map[string]bool, len(specs))
	var written []schema.TableSpec

	for _, spec := range specs {
		tr, dest := r.writeTable(ctx, spec, cfg, res, snap, targets, schemas, &live, used)
		rep.add(tr)
		if tr.Error != "" {
			metrics.RecordTable("failed")
			rep.warn(tr.Error)
		}
		if dest != "" {
			written = append(written, withName(spec, dest))
		}
	}

	schemas.Record(written)
	reconcile.PruneMapping(mapping, written)
	r.persist(ctx, mapping, targets, schemas)
	if snap.Touched() {
		stack.Push(snap)
		if err := r.State.SaveStack(ctx, stack); err != nil {
			logf("stage=persist key=%s err=%v", state.KeySnapshots, err)
		}
	}

	status := "ok"
	if rep.TablesFailed > 0 || rep.RowsFailed > 0 {
		status = "partial"
	}
	metrics.RecordStep("write_all", status, time.Since(start))
	logf("stage=write_all status=%s created=%d appended=%d failed=%d rows=%d row_failures=%d duration=%s",
		status, rep.TablesCreated, rep.TablesAppended, rep.TablesFailed, rep.RowsInserted, rep.RowsFailed, durMS(start))
	return rep, nil
}

// writeTable handles one spec and returns its report and, when the table was
// reached, the destination table name.
func (r *Runner) writeTable(
	ctx context.Context,
	spec schema.TableSpec,
	cfg RuntimeConfig,
	res *reconcile.Resolver,
	snap *snapshot.Snapshot,
	targets state.Targets,
	schemas schema.Schemas,
	live *[]storage.Table,
	used map[string]bool,
) (TableReport, string) {
	logf := r.logger().Printf
	origin := spec.Origin()
	tr := TableReport{Source: origin}

	target, ok := targets[origin]
	if !ok || target.Mode == "" {
		target.Mode = schema.TargetAuto
	}
	d := reconcile.Classify(reconcile.Input{
		Spec:    spec,
		Target:  target,
		Tables:  *live,
		Mapping: res.Mapping(),
		Schemas: schemas,
	})
	tr.Bucket, tr.Reason = d.Bucket, d.Reason
	logf("stage=classify source=%s bucket=%s table=%s reason=%q", origin, d.Bucket, d.TableName, d.Reason)

	table := storage.Table{ID: d.TableID, Name: d.TableName}
	if d.Bucket != reconcile.BucketAppend {
		if cfg.WriteOnly {
			tr.Skipped = true
			tr.Reason = "write-only run: " + d.Reason
			return tr, ""
		}
		name := reconcile.EnsureUniqueTableName(d.TableName, used)
		created, err := res.CreateTable(ctx, name)
		if err != nil {
			tr.Error = err.Error()
			return tr, ""
		}
		table = created
		*live = append(*live, created)
		metrics.RecordTable("created")
	} else {
		metrics.RecordTable("appended")
	}
	used[table.Name] = true
	tr.Table, tr.TableID = table.Name, table.ID

	target.TableID, target.TableName = table.ID, table.Name
	targets[origin] = target

	fields := spec.EnabledFields()
	ids, errs := res.ResolveAll(ctx, table.ID, table.Name, fields)
	tr.FieldsSkipped = len(errs)
	if len(fields) > 0 && len(ids) == 0 {
		tr.Error = apperr.Newf(apperr.ErrTableOperation, "%s: no field could be resolved", table.Name).Error()
		return tr, ""
	}
	if cfg.CreateOnly {
		return tr, table.Name
	}

	records := spec.Records
	if cfg.InsertSample && len(records) > cfg.SampleSize {
		records = records[:cfg.SampleSize]
	}
	rows := writer.BuildRows(fields, ids, records)

	w := writer.New(r.Store, cfg.BatchSize, r.Logger)
	dest := table.Name
	w.OnInserted = func(tableID string, rowIDs []string) {
		snap.Record(snapshot.Action{Kind: snapshot.InsertRows, TableID: tableID, TableName: dest, RowIDs: rowIDs})
	}
	wr := w.Write(ctx, table.ID, table.Name, rows)
	tr.RowsInserted, tr.RowsFailed = len(wr.Inserted), wr.Failed
	return tr, table.Name
}

// SyncFields brings existing destination tables in line with the specs
// without writing rows: fields are created or renamed to their labels and
// mapped fields that were disabled are deleted. A missing auto or reuse
// table is created with its fields; a missing pinned table is skipped.
func (r *Runner) SyncFields(ctx context.Context, specs []schema.TableSpec) (Report, error) {
	if err := r.acquire("sync"); err != nil {
		return Report{}, err
	}
	defer r.release()

	start := time.Now()
	logf := r.logger().Printf
	cfg := r.Config.withDefaults()
	rep := Report{Operation: "sync"}

	mapping := r.State.Mapping(ctx)
	targets := r.State.Targets(ctx)
	schemas := r.State.Schemas(ctx)
	stack := r.State.Stack(ctx)
	specs = r.prepare(specs, r.State.Overrides(ctx), cfg)

	live, err := r.Store.ListTables(ctx)
	if err != nil {
		return rep, apperr.Wrap(apperr.ErrTableOperation, "list tables", err)
	}
	snap, err := snapshot.Take(ctx, r.Store, fmt.Sprintf("sync %d table(s)", len(specs)), snapshotTargets(specs, targets), mapping)
	if err != nil {
		return rep, apperr.Wrap(apperr.ErrTableOperation, "snapshot", err)
	}
	rep.SnapshotID = snap.ID
	snap.Targets = maps.Clone(targets)

	res := reconcile.NewResolver(r.Store, mapping, r.Logger, snap)
	var synced []schema.TableSpec

	for _, spec := range specs {
		origin := spec.Origin()
		tr := TableReport{Source: origin}
		target := targets[origin]
		if target.Mode == "" {
			target.Mode = schema.TargetAuto
		}
		name := target.TableName
		if name == "" {
			name = spec.Name
		}

		table, found := findLive(live, target.TableID, name)
		switch {
		case found:
			tr.Bucket = reconcile.BucketAppend
		case target.Mode == schema.TargetExisting:
			tr.Skipped = true
			tr.Reason = "pinned table not found in store"
			logf("stage=sync source=%s table=%s skipped (pinned table missing)", origin, name)
			rep.add(tr)
			continue
		default:
			created, err := res.CreateTable(ctx, name)
			if err != nil {
				tr.Error = err.Error()
				rep.add(tr)
				rep.warn(tr.Error)
				metrics.RecordTable("failed")
				continue
			}
			table = created
			live = append(live, created)
			tr.Bucket = reconcile.BucketCreate
			tr.Reason = "missing table created without rows"
			metrics.RecordTable("created")
		}

		tr.Table, tr.TableID = table.Name, table.ID
		target.TableID, target.TableName = table.ID, table.Name
		targets[origin] = target

		sr := res.SyncFieldDifferences(ctx, table.ID, table.Name, spec)
		tr.FieldsSkipped = len(sr.Failures)
		tr.FieldsRenamed, tr.FieldsDeleted = sr.Renamed, sr.Deleted
		for _, f := range sr.Failures {
			rep.warn(f.Error())
		}
		rep.add(tr)
		synced = append(synced, withName(spec, table.Name))
	}

	schemas.Record(synced)
	r.persist(ctx, mapping, targets, schemas)
	if snap.Touched() {
		stack.Push(snap)
		if err := r.State.SaveStack(ctx, stack); err != nil {
			logf("stage=persist key=%s err=%v", state.KeySnapshots, err)
		}
	}

	status := "ok"
	if rep.TablesFailed > 0 || rep.FieldsSkipped > 0 {
		status = "partial"
	}
	metrics.RecordStep("sync_fields", status, time.Since(start))
	logf("stage=sync_fields status=%s tables=%d duration=%s", status, len(rep.Tables), durMS(start))
	return rep, nil
}

// Undo pops the most recent snapshot and restores it. Steps that fail are
// reported and skipped; the snapshot is consumed either way.
func (r *Runner) Undo(ctx context.Context) (UndoReport, error) {
	if err := r.acquire("undo"); err != nil {
		return UndoReport{}, err
	}
	defer r.release()

	start := time.Now()
	logf := r.logger().Printf

	stack := r.State.Stack(ctx)
	snap, ok := stack.Pop()
	if !ok {
		return UndoReport{}, apperr.New(apperr.ErrNothingToUndo, "undo history is empty")
	}

	res := snapshot.Restore(ctx, r.Store, snap, r.Logger)
	rep := UndoReport{
		SnapshotID:  snap.ID,
		Description: snap.Description,
		Steps:       res.Steps,
		Remaining:   stack.Len(),
	}
	for _, f := range res.Failures {
		rep.Failures = append(rep.Failures, f.Error())
		metrics.RecordUndoStep("failed")
	}
	for i := len(res.Failures); i < res.Steps; i++ {
		metrics.RecordUndoStep("ok")
	}

	schemas := r.State.Schemas(ctx)
	targets := state.Targets(snap.Targets)
	if targets == nil {
		targets = r.State.Targets(ctx)
	}
	if live, err := r.Store.ListTables(ctx); err == nil {
		present := make(map[string]bool, len(live))
		ids := make(map[string]bool, len(live))
		for _, t := range live {
			present[t.Name] = true
			ids[t.ID] = true
		}
		for name := range schemas {
			if !present[name] {
				delete(schemas, name)
			}
		}
		// Targets on deleted tables fall back to classification by name.
		for origin, t := range targets {
			if t.TableID != "" && !ids[t.TableID] && t.Mode != schema.TargetExisting {
				t.TableID, t.TableName = "", ""
				targets[origin] = t
			}
		}
	}

	if err := r.State.SaveMapping(ctx, res.Mapping); err != nil {
		logf("stage=persist key=%s err=%v", state.KeyFieldMappings, err)
	}
	if err := r.State.SaveTargets(ctx, targets); err != nil {
		logf("stage=persist key=%s err=%v", state.KeyTableTargets, err)
	}
	if err := r.State.SaveSchemas(ctx, schemas); err != nil {
		logf("stage=persist key=%s err=%v", state.KeyTableSchemas, err)
	}
	if err := r.State.SaveStack(ctx, stack); err != nil {
		logf("stage=persist key=%s err=%v", state.KeySnapshots, err)
	}

	status := "ok"
	if len(res.Failures) > 0 {
		status = "partial"
	}
	metrics.RecordStep("undo", status, time.Since(start))
	logf("stage=undo snapshot=%s steps=%d failures=%d duration=%s", snap.ID, res.Steps, len(res.Failures), durMS(start))
	return rep, nil
}

func (r *Runner) persist(ctx context.Context, mapping schema.FieldMapping, targets state.Targets, schemas schema.Schemas) {
	logf := r.logger().Printf
	if err := r.State.SaveMapping(ctx, mapping); err != nil {
		logf("stage=persist key=%s err=%v", state.KeyFieldMappings, err)
	}
	if err := r.State.SaveTargets(ctx, targets); err != nil {
		logf("stage=persist key=%s err=%v", state.KeyTableTargets, err)
	}
	if err := r.State.SaveSchemas(ctx, schemas); err != nil {
		logf("stage=persist key=%s err=%v", state.KeyTableSchemas, err)
	}
}

func withName(spec schema.TableSpec, name string) schema.TableSpec {
	if name != "" {
		spec.Name = name
	}
	return spec
}

func findLive(tables []storage.Table, id, name string) (storage.Table, bool) {
	if id != "" {
		for _, t := range tables {
			if t.ID == id {
				return t, true
			}
		}
	}
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return storage.Table{}, false
}
