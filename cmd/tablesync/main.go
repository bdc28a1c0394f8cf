// Command tablesync ingests a JSON, YAML, TSV, log or HTML document into a
// Table Store, keeping enough state between runs to append into the same
// tables and to undo the last operations.
//
// Operations (-op):
//
//   - preview: print the detected format and inferred tables as JSON
//   - write:   reconcile the inferred tables against the store and insert rows
//   - sync:    align field names and deletions with the current overrides,
//     without writing rows
//   - undo:    roll back the most recent write or sync
//
// Without -input, write and sync reuse the text of the previous preview.
//
// Settings come from an optional YAML or JSON config (-config); flags that are
// set explicitly win over the file. The metrics backend falls back to
// METRICS_BACKEND, extra Datadog tags to METRICS_TAGS, and the store DSN to
// TABLESYNC_DSN and then the DSN_* component variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tablesync/internal/kv"
	"tablesync/internal/logging"
	"tablesync/internal/metrics"
	"tablesync/internal/metrics/datadog"
	"tablesync/internal/multitable"
	"tablesync/internal/parser"
	"tablesync/internal/probe"
	"tablesync/internal/schema"
	"tablesync/internal/state"
	"tablesync/internal/storage"

	// register every backend; the config picks one.
	_ "tablesync/internal/kv/all"
	_ "tablesync/internal/storage/all"
)

func main() {
	err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(0)
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		fatalf("tablesync: %v", err)
	}
}

var errUsage = errors.New("usage")

// options holds flags that do not live in Config.
type options struct {
	configPath     string
	op             string
	storeDSN       string
	metricsBackend string
	pretty         bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, opt, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{Out: stderr, Level: cfg.LogLevel})
	stopMetrics := setupMetrics(ctx, cfg, opt.metricsBackend, logger)
	defer stopMetrics()

	kind := normalizeKind(cfg.Store.Kind)
	dsn, err := resolveStoreDSN(kind, opt.storeDSN, cfg.Store.DSN)
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, storage.Config{Kind: kind, DSN: dsn})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	bridge, err := kv.Open(ctx, kv.Config{Kind: normalizeKind(cfg.KV.Kind), DSN: cfg.KV.DSN})
	if err != nil {
		logger.Warnf("kv: %v; continuing without persisted state", err)
		bridge = nil
	}
	tolerant := kv.NewTolerant(bridge, logger.Component("kv"))
	defer tolerant.Close()

	st := state.New(tolerant, logger.Component("state"))
	if err := applyTargets(ctx, st, cfg.Targets); err != nil {
		logger.Warnf("targets: %v", err)
	}
	r := multitable.NewRunner(store, st, logger.Component("multitable"), cfg.Runtime)

	start := time.Now()
	logger.Infof("run: op=%s store=%s kv=%s", opt.op, kind, cfg.KV.Kind)

	var out any
	switch opt.op {
	case "undo":
		rep, err := r.Undo(ctx)
		if err != nil {
			return err
		}
		out = rep

	case "preview", "write", "sync":
		text, err := readInput(ctx, cfg.Input.Path, stdin, st)
		if err != nil {
			return err
		}
		res, err := r.Preview(ctx, text, probeOptions(cfg.Input))
		if err != nil {
			return err
		}
		switch opt.op {
		case "preview":
			out = previewOutput{Format: res.Format, Tables: res.Tables, Warnings: res.Warnings}
		case "write":
			rep, err := r.WriteAll(ctx, res.Tables)
			if err != nil {
				return err
			}
			rep.Warnings = append(res.Warnings, rep.Warnings...)
			out = rep
		default:
			rep, err := r.SyncFields(ctx, res.Tables)
			if err != nil {
				return err
			}
			rep.Warnings = append(res.Warnings, rep.Warnings...)
			out = rep
		}

	default:
		return fmt.Errorf("unknown -op %q (want preview, write, sync or undo): %w", opt.op, errUsage)
	}

	logger.Infof("run: op=%s completed in %s", opt.op, time.Since(start).Truncate(time.Millisecond))
	return writeJSON(stdout, out, opt.pretty)
}

// parseArgs loads the config file and applies every flag that was set on
// the command line.
func parseArgs(args []string, stderr io.Writer) (Config, options, error) {
	fs := flag.NewFlagSet("tablesync", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opt options
	fs.StringVar(&opt.configPath, "config", "", "YAML or JSON config path")
	fs.StringVar(&opt.op, "op", "write", "operation: preview|write|sync|undo")
	fs.StringVar(&opt.storeDSN, "store-dsn", "", "Table Store DSN (overrides config, TABLESYNC_DSN and DSN_*)")
	fs.StringVar(&opt.metricsBackend, "metrics-backend", "", "metrics backend: datadog|none (overrides config and METRICS_BACKEND)")
	fs.BoolVar(&opt.pretty, "pretty", true, "pretty-print JSON output")

	var (
		input        = fs.String("input", "", "input file path, or - for stdin")
		storeKind    = fs.String("store", "", "Table Store kind: "+strings.Join(storage.Kinds(), "|"))
		kvKind       = fs.String("kv", "", "state store kind: "+strings.Join(kv.Kinds(), "|"))
		kvDSN        = fs.String("kv-dsn", "", "state store DSN")
		format       = fs.String("format", "", "input format: auto|json|yaml|tsv|log|html")
		sourceRoot   = fs.String("source-root", "", "dotted path to the record list (auto, data or a path)")
		entity       = fs.String("entity", "", "master table name when the list has no key")
		mode         = fs.String("mode", "", "table layout: structure|multi")
		batchSize    = fs.Int("batch-size", 0, "rows per insert batch")
		sampleSize   = fs.Int("sample-size", 0, "records written with -insert-sample")
		writeScope   = fs.String("write-scope", "", "fields written: selected|all")
		createOnly   = fs.Bool("create-only", false, "create tables and fields, write no rows")
		writeOnly    = fs.Bool("write-only", false, "append to existing tables only")
		insertSample = fs.Bool("insert-sample", false, "write at most -sample-size records per table")
		logLevel     = fs.String("log-level", "", "debug|info|warn|error")
	)

	if err := fs.Parse(args); err != nil {
		return Config{}, opt, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return Config{}, opt, errUsage
	}

	cfg, err := loadConfig(opt.configPath)
	if err != nil {
		return cfg, opt, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input.Path = *input
		case "store":
			cfg.Store.Kind = *storeKind
		case "kv":
			cfg.KV.Kind = *kvKind
		case "kv-dsn":
			cfg.KV.DSN = *kvDSN
		case "format":
			cfg.Input.Format = *format
		case "source-root":
			cfg.Input.SourceRoot = *sourceRoot
		case "entity":
			cfg.Input.Entity = *entity
		case "mode":
			cfg.Input.Mode = *mode
		case "batch-size":
			cfg.Runtime.BatchSize = *batchSize
		case "sample-size":
			cfg.Runtime.SampleSize = *sampleSize
		case "write-scope":
			cfg.Runtime.WriteScope = multitable.WriteScope(*writeScope)
		case "create-only":
			cfg.Runtime.CreateOnly = *createOnly
		case "write-only":
			cfg.Runtime.WriteOnly = *writeOnly
		case "insert-sample":
			cfg.Runtime.InsertSample = *insertSample
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	return cfg, opt, validateConfig(cfg)
}

func probeOptions(in InputConfig) probe.Options {
	return probe.Options{
		Format:     parser.Format(strings.ToLower(strings.TrimSpace(in.Format))),
		SourceRoot: in.SourceRoot,
		Entity:     in.Entity,
		Mode:       probe.Mode(strings.ToLower(strings.TrimSpace(in.Mode))),
	}
}

// readInput returns the input text. An empty path falls back to the text of
// the last preview.
func readInput(ctx context.Context, path string, stdin io.Reader, st *state.Store) (string, error) {
	switch path {
	case "":
		if text := st.LastText(ctx); text != "" {
			return text, nil
		}
		return "", fmt.Errorf("no input: set -input or input.path: %w", errUsage)
	case "-":
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(raw), nil
	default:
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return string(raw), nil
	}
}

// applyTargets merges configured targets into the persisted ones. A target
// whose mode is unchanged and that names no table keeps the destination
// recorded by earlier runs.
func applyTargets(ctx context.Context, st *state.Store, want map[string]schema.TableTarget) error {
	if len(want) == 0 {
		return nil
	}
	targets := st.Targets(ctx)
	for src, t := range want {
		if cur, ok := targets[src]; ok && cur.Mode == t.Mode && t.TableID == "" && t.TableName == "" {
			continue
		}
		targets[src] = t
	}
	return st.SaveTargets(ctx, targets)
}

type previewOutput struct {
	Format   parser.Format      `json:"format"`
	Tables   []schema.TableSpec `json:"tables"`
	Warnings []string           `json:"warnings,omitempty"`
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// setupMetrics installs the selected backend and returns its shutdown func.
// Backend choice: flag, then config, then METRICS_BACKEND.
func setupMetrics(ctx context.Context, cfg Config, flagBackend string, logger *logging.Logger) func() {
	name := flagBackend
	if name == "" {
		name = cfg.Metrics.Backend
	}
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "datadog":
		tags := append(append([]string(nil), cfg.Metrics.Tags...), datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    cfg.Job,
			Tags:       tags,
			FlushEvery: time.Duration(cfg.Metrics.FlushEvery),
		})
		if err != nil {
			logger.Warnf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		logger.Infof("metrics: backend=datadog job_name=%s tags=%v", cfg.Job, tags)
		metrics.SetBackend(b)
		// Close stops the flush loop and submits what is still buffered.
		return func() {
			if err := b.Close(); err != nil {
				logger.Warnf("metrics: datadog close/flush error: %v", err)
			}
			metrics.SetBackend(nil)
		}

	case "", "none":
		logger.Debugf("metrics: disabled")
		return func() {}

	default:
		logger.Warnf("metrics: unknown backend %q; metrics disabled", name)
		return func() {}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
