package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"tablesync/internal/apperr"
	"tablesync/internal/schema"
	"tablesync/internal/storage"
)

// Logger is the logging surface used by Restore.
type Logger interface {
	Printf(format string, v ...any)
}

// RestoreResult reports what a restore did.
type RestoreResult struct {
	// Mapping is the recovered field mapping; callers persist it.
	Mapping  schema.FieldMapping
	Steps    int
	Failures []error
}

type restorer struct {
	store   storage.TableStore
	log     Logger
	mapping schema.FieldMapping
	res     *RestoreResult

	// recreated maps a snapshotted field id to the id of its replacement.
	recreated map[string]string
}

// Restore replays compensating actions for snap, continuing past failed
// steps:
//  1. delete every table the operation created and drop its mapping
//  2. delete snapshotted tables that did not exist before but exist now
//  3. for tables that existed: delete inserted rows, then bring the field
//     list back to the snapshot (delete new fields, rename back, recreate
//     missing fields and relink their mapping keys)
//
// The recovered mapping starts from the mapping captured in snap.
func Restore(ctx context.Context, store storage.TableStore, snap *Snapshot, logger Logger) RestoreResult {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	res := RestoreResult{}
	r := &restorer{
		store:     store,
		log:       logger,
		mapping:   snap.FieldMapping.Clone(),
		res:       &res,
		recreated: map[string]string{},
	}

	deleted := make(map[string]bool)
	for _, step := range snap.Inverse() {
		if err := r.apply(ctx, step); err != nil {
			r.fail(step, err)
		}
		if step.Kind == DeleteTable {
			deleted[step.TableID] = true
			r.mapping.DropTable(step.TableName)
		}
	}

	live, err := store.ListTables(ctx)
	if err != nil {
		r.fail(Action{Kind: DeleteTable}, fmt.Errorf("list tables: %w", err))
		res.Mapping = r.mapping
		return res
	}

	for _, ts := range snap.Tables {
		if ts.Existed {
			continue
		}
		for _, t := range live {
			if t.Name != ts.TableName || deleted[t.ID] {
				continue
			}
			step := Action{Kind: DeleteTable, TableID: t.ID, TableName: t.Name}
			if err := r.apply(ctx, step); err != nil {
				r.fail(step, err)
				continue
			}
			deleted[t.ID] = true
			r.mapping.DropTable(t.Name)
		}
	}

	for _, ts := range snap.Tables {
		if !ts.Existed || ts.TableID == "" || deleted[ts.TableID] {
			continue
		}
		r.reconcileFields(ctx, ts)
	}

	res.Mapping = r.mapping
	return res
}

func (r *restorer) fail(step Action, err error) {
	wrapped := apperr.Wrap(apperr.ErrUndoStep, fmt.Sprintf("%s on %s", step.Kind, step.TableName), err)
	r.res.Failures = append(r.res.Failures, wrapped)
	r.log.Printf("stage=undo step=%s table=%s err=%v", step.Kind, step.TableName, err)
}

func (r *restorer) apply(ctx context.Context, a Action) error {
	r.res.Steps++
	switch a.Kind {
	case DeleteTable:
		err := r.store.DeleteTable(ctx, a.TableID)
		if errors.Is(err, storage.ErrTableNotFound) {
			return nil
		}
		return err
	case DeleteRows:
		return r.store.DeleteRows(ctx, a.TableID, a.RowIDs)
	case DeleteField:
		if a.Field == nil {
			return fmt.Errorf("delete field: missing field")
		}
		err := r.store.DeleteField(ctx, a.TableID, a.Field.ID)
		if errors.Is(err, storage.ErrFieldNotFound) {
			return nil
		}
		return err
	case RenameField:
		if a.Field == nil {
			return fmt.Errorf("rename field: missing field")
		}
		return r.store.RenameField(ctx, a.TableID, a.Field.ID, a.NewName)
	case CreateField:
		if a.Field == nil {
			return fmt.Errorf("create field: missing field")
		}
		id, err := r.store.CreateField(ctx, a.TableID, a.Field.Input())
		if err != nil {
			return err
		}
		r.recreated[a.Field.ID] = id
		r.relink(a.TableName, a.Field.MappingKeys, id)
		return nil
	}
	return fmt.Errorf("no compensation for %s", a.Kind)
}

func (r *restorer) relink(table string, keys []string, id string) {
	for _, k := range keys {
		r.mapping.Set(table, k, id)
	}
}

// reconcileFields makes the live field list of an existing table match ts.
// It also removes rows recorded as inserted, which covers rows the log did
// not reach.
func (r *restorer) reconcileFields(ctx context.Context, ts TableSnapshot) {
	if len(ts.InsertedRecordIDs) > 0 {
		step := Action{Kind: DeleteRows, TableID: ts.TableID, TableName: ts.TableName, RowIDs: ts.InsertedRecordIDs}
		if err := r.apply(ctx, step); err != nil {
			r.fail(step, err)
		}
	}

	fields, err := r.store.ListFields(ctx, ts.TableID)
	if err != nil {
		r.fail(Action{Kind: DeleteField, TableID: ts.TableID, TableName: ts.TableName}, err)
		return
	}
	want := make(map[string]FieldMeta, len(ts.Fields))
	for _, f := range ts.Fields {
		want[r.liveID(f.ID)] = f
	}
	have := make(map[string]storage.Field, len(fields))
	for _, f := range fields {
		have[f.ID] = f
		meta, ok := want[f.ID]
		switch {
		case !ok:
			gone := MetaOf(f, r.mapping, ts.TableName)
			step := Action{Kind: DeleteField, TableID: ts.TableID, TableName: ts.TableName, Field: &gone}
			if err := r.apply(ctx, step); err != nil {
				r.fail(step, err)
			}
		case f.Name != meta.Name:
			m := meta
			m.ID = f.ID
			step := Action{Kind: RenameField, TableID: ts.TableID, TableName: ts.TableName, Field: &m,
				OldName: f.Name, NewName: meta.Name}
			if err := r.apply(ctx, step); err != nil {
				r.fail(step, err)
			}
		}
	}

	for _, meta := range ts.Fields {
		if _, ok := have[r.liveID(meta.ID)]; ok {
			continue
		}
		m := meta
		step := Action{Kind: CreateField, TableID: ts.TableID, TableName: ts.TableName, Field: &m}
		if err := r.apply(ctx, step); err != nil {
			r.fail(step, err)
		}
	}
}

func (r *restorer) liveID(id string) string {
	if n, ok := r.recreated[id]; ok {
		return n
	}
	return id
}
