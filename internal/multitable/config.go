package multitable

// WriteScope selects which fields of a table are written.
type WriteScope string

const (
	// ScopeSelected writes enabled fields only.
	ScopeSelected WriteScope = "selected"
	// ScopeAll writes every inferred field, enabled or not.
	ScopeAll WriteScope = "all"
)

const (
	DefaultBatchSize  = 50
	DefaultSampleSize = 100
)

// RuntimeConfig controls one run.
type RuntimeConfig struct {
	BatchSize  int        `json:"batch_size" yaml:"batch_size"`
	SampleSize int        `json:"sample_size" yaml:"sample_size"`
	WriteScope WriteScope `json:"write_scope" yaml:"write_scope"`

	// CreateOnly creates tables and fields but writes no rows.
	CreateOnly bool `json:"create_only" yaml:"create_only"`
	// WriteOnly appends to tables that already exist and never creates one.
	WriteOnly bool `json:"write_only" yaml:"write_only"`
	// InsertSample writes at most SampleSize records per table.
	InsertSample bool `json:"insert_sample" yaml:"insert_sample"`
}

func (c RuntimeConfig) withDefaults() RuntimeConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.SampleSize <= 0 {
		c.SampleSize = DefaultSampleSize
	}
	if c.WriteScope != ScopeAll {
		c.WriteScope = ScopeSelected
	}
	return c
}
