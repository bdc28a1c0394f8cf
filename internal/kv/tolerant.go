package kv

import (
	"context"
	"io"
	"log"
)

// Logger is the logging surface used by Tolerant.
type Logger interface {
	Printf(format string, v ...any)
}

// Tolerant wraps a Bridge so that an unavailable store reads as empty and
// failed writes are logged instead of returned. A nil inner bridge is
// treated as permanently unavailable.
type Tolerant struct {
	inner Bridge
	log   Logger
}

// NewTolerant wraps inner.
func NewTolerant(inner Bridge, logger Logger) *Tolerant {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Tolerant{inner: inner, log: logger}
}

func (t *Tolerant) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if t.inner == nil {
		return nil, false, nil
	}
	v, ok, err := t.inner.Get(ctx, key)
	if err != nil {
		t.log.Printf("stage=kv op=get key=%s err=%v (treating as empty)", key, err)
		return nil, false, nil
	}
	return v, ok, nil
}

func (t *Tolerant) Set(ctx context.Context, key string, value []byte) error {
	if t.inner == nil {
		return nil
	}
	if err := t.inner.Set(ctx, key, value); err != nil {
		t.log.Printf("stage=kv op=set key=%s err=%v (value not persisted)", key, err)
	}
	return nil
}

func (t *Tolerant) Close() error {
	if t.inner == nil {
		return nil
	}
	return t.inner.Close()
}
