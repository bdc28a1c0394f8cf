package reconcile

import (
	"context"
	"fmt"

	"tablesync/internal/apperr"
	"tablesync/internal/metrics"
	"tablesync/internal/schema"
	"tablesync/internal/snapshot"
)

// SyncResult counts the changes SyncFieldDifferences made to one table.
type SyncResult struct {
	Resolved int
	Renamed  int
	Deleted  int
	Failures []error
}

// SyncFieldDifferences brings the live fields of an existing table in line
// with spec: enabled fields are resolved (created when missing) and renamed
// to their normalized label, disabled fields that are mapped are deleted
// from the store and dropped from the mapping.
func (r *Resolver) SyncFieldDifferences(ctx context.Context, tableID, table string, spec schema.TableSpec) SyncResult {
	var res SyncResult

	for _, f := range spec.Fields {
		if !f.Enabled {
			continue
		}
		id, ok, err := r.ResolveFieldID(ctx, tableID, table, f)
		if !ok {
			res.Failures = append(res.Failures, err)
			continue
		}
		res.Resolved++

		fields, err := r.Fields(ctx, tableID)
		if err != nil {
			res.Failures = append(res.Failures, apperr.Wrap(apperr.ErrFieldResolution, "list fields of "+table, err))
			continue
		}
		var (
			current string
			others  []string
		)
		for _, lf := range fields {
			if lf.ID == id {
				current = lf.Name
				continue
			}
			others = append(others, lf.Name)
		}
		want, err := ResolveNameConflict(NormalizeName(f.DisplayName()), others)
		if err != nil {
			res.Failures = append(res.Failures, err)
			continue
		}
		if current == want {
			continue
		}
		if err := r.store.RenameField(ctx, tableID, id, want); err != nil {
			r.log.Printf("stage=sync op=rename table=%s field=%s err=%v", table, id, err)
			res.Failures = append(res.Failures, apperr.Wrap(apperr.ErrFieldResolution, fmt.Sprintf("rename %s to %s", current, want), err))
			continue
		}
		r.record(snapshot.Action{
			Kind: snapshot.RenameField, TableID: tableID, TableName: table,
			Field: &snapshot.FieldMeta{ID: id}, OldName: current, NewName: want,
		})
		metrics.RecordField("renamed")
		r.log.Printf("stage=sync op=rename table=%s from=%q to=%q", table, current, want)
		if _, err := r.Refresh(ctx, tableID); err != nil {
			res.Failures = append(res.Failures, err)
		}
		res.Renamed++
	}

	for _, f := range spec.Fields {
		if f.Enabled {
			continue
		}
		id, ok := r.mapping.Get(table, f.Key)
		if !ok {
			continue
		}
		fields, err := r.Fields(ctx, tableID)
		if err != nil {
			res.Failures = append(res.Failures, err)
			continue
		}
		for _, lf := range fields {
			if lf.ID != id {
				continue
			}
			meta := snapshot.MetaOf(lf, r.mapping, table)
			if err := r.store.DeleteField(ctx, tableID, id); err != nil {
				r.log.Printf("stage=sync op=delete table=%s field=%s err=%v", table, id, err)
				res.Failures = append(res.Failures, apperr.Wrap(apperr.ErrFieldResolution, "delete field "+lf.Name, err))
				break
			}
			r.record(snapshot.Action{Kind: snapshot.DeleteField, TableID: tableID, TableName: table, Field: &meta})
			metrics.RecordField("deleted")
			r.log.Printf("stage=sync op=delete table=%s field=%q", table, lf.Name)
			res.Deleted++
			if _, err := r.Refresh(ctx, tableID); err != nil {
				res.Failures = append(res.Failures, err)
			}
			break
		}
		r.mapping.DeleteKey(table, f.Key)
	}

	PruneMapping(r.mapping, []schema.TableSpec{withName(spec, table)})
	return res
}

func withName(spec schema.TableSpec, name string) schema.TableSpec {
	spec.Name = name
	return spec
}

// PruneMapping drops mapping keys that are not enabled fields of their spec
// and removes tables left with no keys. Specs are matched by Name.
func PruneMapping(mapping schema.FieldMapping, specs []schema.TableSpec) {
	mapping.Prune(specs)
}
