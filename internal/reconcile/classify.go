package reconcile

import (
	"tablesync/internal/schema"
	"tablesync/internal/storage"
)

// Bucket is the reconciliation outcome for one table.
type Bucket string

const (
	BucketCreate         Bucket = "create"
	BucketCreateFallback Bucket = "create-fallback"
	BucketAppend         Bucket = "append"
)

// Input is everything Classify looks at for one table.
type Input struct {
	Spec    schema.TableSpec
	Target  schema.TableTarget
	Tables  []storage.Table
	Mapping schema.FieldMapping
	Schemas schema.Schemas
}

// Decision is the classification of one table.
type Decision struct {
	Bucket Bucket
	// TableID is set for BucketAppend.
	TableID string
	// TableName is the destination name to append to or to create.
	TableName string
	Reason    string
}

// Classify places a table into exactly one bucket. Rules, first match wins:
//  1. auto target: create
//  2. existing target that is gone from the store: create-fallback
//  3. existing target that is present: append
//  4. reuse target whose same-named table is missing, has no recorded
//     fingerprint, has an incomplete mapping, or whose fingerprint drifted:
//     create
//  5. otherwise append
func Classify(in Input) Decision {
	switch in.Target.Mode {
	case schema.TargetExisting:
		if t, ok := findTable(in.Tables, in.Target.TableID, in.Target.TableName); ok {
			return Decision{Bucket: BucketAppend, TableID: t.ID, TableName: t.Name, Reason: "pinned table exists"}
		}
		name := in.Target.TableName
		if name == "" {
			name = in.Spec.Name
		}
		return Decision{Bucket: BucketCreateFallback, TableName: name, Reason: "pinned table not found in store"}

	case schema.TargetReuse:
		name := in.Target.TableName
		if name == "" {
			name = in.Spec.Name
		}
		t, ok := findTable(in.Tables, "", name)
		if !ok {
			return Decision{Bucket: BucketCreate, TableName: name, Reason: "no table to reuse"}
		}
		stored, known := in.Schemas[t.Name]
		if !known {
			return Decision{Bucket: BucketCreate, TableName: name, Reason: "schema fingerprint unknown"}
		}
		for _, f := range in.Spec.EnabledFields() {
			if _, ok := in.Mapping.Get(t.Name, f.Key); !ok {
				return Decision{Bucket: BucketCreate, TableName: name, Reason: "field mapping incomplete for " + f.Key}
			}
		}
		if schema.FingerprintOf(in.Spec).Signature != stored.Signature {
			return Decision{Bucket: BucketCreate, TableName: name, Reason: "schema drift"}
		}
		return Decision{Bucket: BucketAppend, TableID: t.ID, TableName: t.Name, Reason: "schema unchanged"}
	}
	return Decision{Bucket: BucketCreate, TableName: in.Spec.Name, Reason: "auto target"}
}

func findTable(tables []storage.Table, id, name string) (storage.Table, bool) {
	if id != "" {
		for _, t := range tables {
			if t.ID == id {
				return t, true
			}
		}
	}
	if name != "" {
		for _, t := range tables {
			if t.Name == name {
				return t, true
			}
		}
	}
	return storage.Table{}, false
}
