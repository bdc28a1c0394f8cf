// Package reconcile decides how inferred tables map onto the destination
// store and resolves field identity across runs.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"tablesync/internal/apperr"
	"tablesync/internal/metrics"
	"tablesync/internal/schema"
	"tablesync/internal/snapshot"
	"tablesync/internal/storage"
)

// Logger is the logging surface used by the reconciler.
type Logger interface {
	Printf(format string, v ...any)
}

// Recorder receives every store mutation made through a Resolver.
type Recorder interface {
	Record(a snapshot.Action)
}

// Resolver holds the caches of one reconciliation run. It is not safe for
// concurrent use; create one per run.
type Resolver struct {
	store   storage.TableStore
	mapping schema.FieldMapping
	log     Logger
	rec     Recorder

	fields map[string][]storage.Field
}

// NewResolver returns a resolver that updates mapping in place as ids are
// resolved. rec may be nil.
func NewResolver(store storage.TableStore, mapping schema.FieldMapping, logger Logger, rec Recorder) *Resolver {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if mapping == nil {
		mapping = schema.FieldMapping{}
	}
	return &Resolver{
		store:   store,
		mapping: mapping,
		log:     logger,
		rec:     rec,
		fields:  map[string][]storage.Field{},
	}
}

// Mapping returns the mapping the resolver writes into.
func (r *Resolver) Mapping() schema.FieldMapping { return r.mapping }

func (r *Resolver) record(a snapshot.Action) {
	if r.rec != nil {
		r.rec.Record(a)
	}
}

// Fields returns the cached live field list of tableID, loading it on first
// use.
func (r *Resolver) Fields(ctx context.Context, tableID string) ([]storage.Field, error) {
	if fs, ok := r.fields[tableID]; ok {
		return fs, nil
	}
	return r.Refresh(ctx, tableID)
}

// Refresh reloads the field list of tableID.
func (r *Resolver) Refresh(ctx context.Context, tableID string) ([]storage.Field, error) {
	fs, err := r.store.ListFields(ctx, tableID)
	if err != nil {
		return nil, err
	}
	r.fields[tableID] = fs
	return fs, nil
}

// CreateTable creates a table under the normalized form of name, suffixed
// with _dup, _dup2, ... if the store already has that name.
func (r *Resolver) CreateTable(ctx context.Context, name string) (storage.Table, error) {
	tables, err := r.store.ListTables(ctx)
	if err != nil {
		return storage.Table{}, apperr.Wrap(apperr.ErrTableOperation, "list tables", err)
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	final, err := ResolveNameConflict(NormalizeName(name), names)
	if err != nil {
		return storage.Table{}, err
	}
	id, err := r.store.CreateTable(ctx, final)
	if err != nil {
		return storage.Table{}, apperr.Wrap(apperr.ErrTableOperation, "create table "+final, err)
	}
	r.fields[id] = nil
	r.record(snapshot.Action{Kind: snapshot.CreateTable, TableID: id, TableName: final})
	r.log.Printf("stage=reconcile op=create_table name=%s id=%s", final, id)
	return storage.Table{ID: id, Name: final}, nil
}

// match runs lookups (a) through (d) against fields.
func (r *Resolver) match(fields []storage.Field, table string, f schema.FieldSpec, withSource bool) (string, bool) {
	if id, ok := r.mapping.Get(table, f.Key); ok {
		for _, lf := range fields {
			if lf.ID == id {
				return id, true
			}
		}
	}
	label := f.DisplayName()
	for _, lf := range fields {
		if strings.EqualFold(lf.Name, label) {
			return lf.ID, true
		}
	}
	want := fold(NormalizeName(label))
	for _, lf := range fields {
		if fold(NormalizeName(lf.Name)) == want {
			return lf.ID, true
		}
	}
	if withSource {
		src := f.SourcePath()
		for _, lf := range fields {
			if strings.EqualFold(lf.Name, src) {
				return lf.ID, true
			}
		}
	}
	return "", false
}

// ResolveFieldID finds the live field for f in table, in order:
//
//	(a) the mapped id, if the field still exists
//	(b) a case-insensitive label match
//	(c) a normalized-name match
//	(d) a case-insensitive match on the source path
//	(e) a newly created field, looked up again after refreshing
//
// On success the mapping is updated. A field that cannot be resolved is
// logged and reported with ok=false and an ErrFieldResolution error.
func (r *Resolver) ResolveFieldID(ctx context.Context, tableID, table string, f schema.FieldSpec) (string, bool, error) {
	fields, err := r.Fields(ctx, tableID)
	if err != nil {
		return "", false, apperr.Wrap(apperr.ErrFieldResolution, "list fields of "+table, err)
	}
	if id, ok := r.match(fields, table, f, true); ok {
		r.mapping.Set(table, f.Key, id)
		return id, true, nil
	}

	created, cerr := r.createField(ctx, tableID, table, f, fields)
	fields, err = r.Refresh(ctx, tableID)
	if err == nil {
		if created != "" {
			for _, lf := range fields {
				if lf.ID == created {
					r.mapping.Set(table, f.Key, created)
					return created, true, nil
				}
			}
		}
		if id, ok := r.match(fields, table, f, false); ok {
			r.mapping.Set(table, f.Key, id)
			return id, true, nil
		}
	}

	cause := cerr
	if cause == nil {
		cause = err
	}
	if cause == nil {
		cause = fmt.Errorf("field not found after creation")
	}
	r.log.Printf("stage=reconcile op=resolve_field table=%s key=%s err=%v (cannot locate, skipped)", table, f.Key, cause)
	return "", false, apperr.Wrap(apperr.ErrFieldResolution, fmt.Sprintf("field %s of %s", f.Key, table), cause)
}

func (r *Resolver) createField(ctx context.Context, tableID, table string, f schema.FieldSpec, existing []storage.Field) (string, error) {
	names := make([]string, len(existing))
	for i, lf := range existing {
		names[i] = lf.Name
	}
	name, err := ResolveNameConflict(NormalizeName(f.DisplayName()), names)
	if err != nil {
		return "", err
	}
	in := storage.FieldInput{Name: name, Type: schema.Narrow(f.Type)}
	if in.Type.IsSelect() {
		prop := &storage.FieldProperty{Options: make([]storage.SelectOption, 0, len(f.Options))}
		for _, o := range f.Options {
			prop.Options = append(prop.Options, storage.SelectOption{Name: o})
		}
		in.Property = prop
	}

	id, err := r.store.CreateField(ctx, tableID, in)
	if err != nil {
		return "", err
	}
	r.record(snapshot.Action{
		Kind:      snapshot.CreateField,
		TableID:   tableID,
		TableName: table,
		Field:     &snapshot.FieldMeta{ID: id, Name: in.Name, Type: in.Type, Property: in.Property},
	})
	metrics.RecordField("created")
	r.log.Printf("stage=reconcile op=create_field table=%s name=%s type=%s", table, in.Name, in.Type)
	return id, nil
}

// ResolveAll resolves every field of spec in order and returns key -> id for
// the fields that resolved. Failures are skipped and returned.
func (r *Resolver) ResolveAll(ctx context.Context, tableID, table string, fields []schema.FieldSpec) (map[string]string, []error) {
	ids := make(map[string]string, len(fields))
	var errs []error
	for _, f := range fields {
		id, ok, err := r.ResolveFieldID(ctx, tableID, table, f)
		if !ok {
			errs = append(errs, err)
			continue
		}
		ids[f.Key] = id
	}
	return ids, errs
}
