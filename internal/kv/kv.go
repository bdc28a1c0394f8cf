// Package kv is the key-value bridge used to persist state between runs.
//
// Values are opaque byte slices; internal/state stores JSON in them.
package kv

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Bridge is a persistent key-value store.
type Bridge interface {
	// Get returns the value under key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
}

// Factory opens a backend.
type Factory func(ctx context.Context, cfg Config) (Bridge, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics on an empty kind,
// a nil factory or a duplicate registration.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("kv: Register called with empty kind")
	}
	if f == nil {
		panic("kv: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("kv: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs the backend registered under cfg.Kind.
func Open(ctx context.Context, cfg Config) (Bridge, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("kv: missing kind")
	}
	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("unsupported kv.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("memory", func(ctx context.Context, cfg Config) (Bridge, error) {
		return NewMemory(), nil
	})
}

// Memory is an in-process Bridge.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty Memory bridge.
func NewMemory() *Memory {
	return &Memory{data: map[string][]byte{}}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Close() error { return nil }
