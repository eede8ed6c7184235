// Package sink persists accepted alert records. Every sink saves a single
// record synchronously so a message is only acknowledged once its record is
// stored.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Sink stores records.
type Sink interface {
	Save(ctx context.Context, rec types.Record) error
	Name() string
	Close() error
}

// recordKey returns the string form of rec[field], or a random UUID when the
// field is unset or empty. Numbers are formatted exactly, never in exponent
// form, so distinct 64-bit IDs give distinct keys.
func recordKey(rec types.Record, field string) string {
	if field != "" {
		if v, ok := rec[field]; ok && v != nil {
			if s := formatKey(v); s != "" {
				return s
			}
		}
	}
	return uuid.New().String()
}

func formatKey(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// MemorySink keeps records in memory. It is intended for tests and for the
// CLI's collected output.
type MemorySink struct {
	mu      sync.Mutex
	records []types.Record
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Save appends rec.
func (s *MemorySink) Save(_ context.Context, rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of the saved records in save order.
func (s *MemorySink) Records() []types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Record(nil), s.records...)
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Close() error { return nil }

// MultiSink saves each record to several sinks concurrently. A save succeeds
// only if every sink succeeds.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink fans out to sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Save writes rec to every sink and returns the first error.
func (m *MultiSink) Save(ctx context.Context, rec types.Record) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range m.sinks {
		s := s
		g.Go(func() error {
			if err := s.Save(gctx, rec); err != nil {
				return fmt.Errorf("sink %s: %w", s.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *MultiSink) Name() string { return "multi" }

// Close closes every sink and joins their errors.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
