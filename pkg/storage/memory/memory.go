// Package memory provides an in-memory document store. It backs the memory
// storage driver and agent tests, where persisting to a real database is
// unnecessary.
package memory

import (
	"context"
	"sync"

	"github.com/inlethq/inlet/pkg/errors"
	"github.com/inlethq/inlet/pkg/record"
)

// Store accumulates inserted records in memory. Records are copied on
// insert, so callers may release pooled records immediately afterwards.
type Store struct {
	mu     sync.RWMutex
	docs   []*record.Record
	closed bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		docs: make([]*record.Record, 0),
	}
}

// Insert stores a copy of the record.
func (s *Store) Insert(ctx context.Context, rec *record.Record) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "insert canceled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New(errors.ErrorTypeStorage, "store is disconnected")
	}

	s.docs = append(s.docs, copyRecord(rec))
	return nil
}

// Disconnect marks the store closed. Stored documents remain readable so
// tests can inspect what was persisted. Subsequent calls are no-ops.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Documents returns the stored records in insertion order.
func (s *Store) Documents() []*record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*record.Record, len(s.docs))
	copy(docs, s.docs)
	return docs
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.docs)
}

// copyRecord detaches a record from the pool. Nested values inside Data are
// freshly allocated by the parsers, so copying the top-level maps is enough.
func copyRecord(rec *record.Record) *record.Record {
	cp := &record.Record{
		ID:       rec.ID,
		Metadata: rec.Metadata,
	}
	if rec.Data != nil {
		cp.Data = make(map[string]interface{}, len(rec.Data))
		for k, v := range rec.Data {
			cp.Data[k] = v
		}
	}
	if rec.Metadata.Custom != nil {
		cp.Metadata.Custom = make(map[string]interface{}, len(rec.Metadata.Custom))
		for k, v := range rec.Metadata.Custom {
			cp.Metadata.Custom[k] = v
		}
	}
	if rec.RawData != nil {
		cp.RawData = append([]byte(nil), rec.RawData...)
	}
	return cp
}
