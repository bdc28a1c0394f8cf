package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tablesync/internal/multitable"
	"tablesync/internal/schema"
)

// Config is the on-disk description of a tablesync run. Flags override any
// value set here.
type Config struct {
	// Job becomes the "job:<name>" metrics tag.
	Job string `json:"job" yaml:"job"`

	Store   BackendConfig                 `json:"store" yaml:"store"`
	KV      BackendConfig                 `json:"kv" yaml:"kv"`
	Input   InputConfig                   `json:"input" yaml:"input"`
	Runtime multitable.RuntimeConfig      `json:"runtime" yaml:"runtime"`
	Targets map[string]schema.TableTarget `json:"targets,omitempty" yaml:"targets,omitempty"`
	Metrics MetricsConfig                 `json:"metrics" yaml:"metrics"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

// BackendConfig selects a registered backend by kind.
type BackendConfig struct {
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`
}

// InputConfig describes where the text comes from and how it is read.
type InputConfig struct {
	// Path is a file path, or "-" for stdin.
	Path       string `json:"path" yaml:"path"`
	Format     string `json:"format" yaml:"format"`
	SourceRoot string `json:"source_root" yaml:"source_root"`
	Entity     string `json:"entity" yaml:"entity"`
	Mode       string `json:"mode" yaml:"mode"`
}

// MetricsConfig selects the metrics backend. Only "datadog" is wired; "" and
// "none" disable metrics.
type MetricsConfig struct {
	Backend    string   `json:"backend" yaml:"backend"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	FlushEvery Duration `json:"flush_every" yaml:"flush_every"`
}

// Duration accepts "30s" style strings in both JSON and YAML.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return d.set(s)
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// defaultConfig keeps both the tables and the state in local sqlite files.
func defaultConfig() Config {
	return Config{
		Job:      "tablesync",
		Store:    BackendConfig{Kind: "sqlite"},
		KV:       BackendConfig{Kind: "sqlite"},
		LogLevel: "info",
	}
}

// loadConfig reads path over the defaults. Files ending in .json are decoded
// as JSON, everything else as YAML. An empty path returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		// An empty document leaves the defaults in place.
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	return cfg, validateConfig(cfg)
}

func validateConfig(cfg Config) error {
	switch cfg.Runtime.WriteScope {
	case "", multitable.ScopeSelected, multitable.ScopeAll:
	default:
		return fmt.Errorf("runtime.write_scope: unknown scope %q", cfg.Runtime.WriteScope)
	}
	if cfg.Runtime.CreateOnly && cfg.Runtime.WriteOnly {
		return fmt.Errorf("runtime: create_only and write_only are mutually exclusive")
	}
	for name, t := range cfg.Targets {
		switch t.Mode {
		case schema.TargetAuto, schema.TargetReuse:
		case schema.TargetExisting:
			if t.TableID == "" && t.TableName == "" {
				return fmt.Errorf("targets.%s: existing target needs table_id or table_name", name)
			}
		default:
			return fmt.Errorf("targets.%s: unknown mode %q", name, t.Mode)
		}
	}
	return nil
}
