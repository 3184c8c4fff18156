// Package record defines the unified record type flowing through an Inlet
// agent: parsers produce records from the inbound byte stream, the transform
// stage reshapes them, and the storage layer persists them as schema-less
// documents. Records are pooled to keep long-running ingestion off the
// garbage collector's hot path.
//
// Example usage:
//
//	rec := record.Get()
//	defer rec.Release()
//
//	rec.SetData("message", line)
package record

import (
	"time"
)

// Metadata carries provenance for a record: which endpoint produced it,
// over which connection, by which parser, and at which position in the
// connection's stream. All fields are optional.
type Metadata struct {
	// Source identifies the listen endpoint the bytes arrived on
	Source string `json:"source,omitempty" bson:"source,omitempty"`
	// ConnectionID identifies the ingest connection
	ConnectionID string `json:"connection_id,omitempty" bson:"connection_id,omitempty"`
	// Parser names the parser that extracted the record
	Parser string `json:"parser,omitempty" bson:"parser,omitempty"`
	// Offset is the zero-based record index within its connection
	Offset int64 `json:"offset,omitempty" bson:"offset,omitempty"`
	// Timestamp is when the record was extracted
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	// Custom metadata fields for extensibility
	Custom map[string]interface{} `json:"custom,omitempty" bson:"custom,omitempty"`
}

// Record is the opaque structured value produced by a parser and persisted
// by the storage layer. No schema is imposed on Data; the document store is
// schema-less. Records should be obtained from the pool with Get and
// returned with Release.
type Record struct {
	// ID is a unique identifier for the record
	ID string `json:"id" bson:"id"`
	// Data contains the record payload
	Data map[string]interface{} `json:"data" bson:"data"`
	// Metadata contains provenance and timing information
	Metadata Metadata `json:"metadata" bson:"metadata"`
	// RawData holds the original bytes when the parser preserves them (not serialized)
	RawData []byte `json:"-" bson:"-"`
}

// SetData sets a data field, initializing the data map if needed.
func (r *Record) SetData(key string, value interface{}) {
	if r.Data == nil {
		r.Data = GetMap()
	}
	r.Data[key] = value
}

// GetData retrieves a data field.
func (r *Record) GetData(key string) (interface{}, bool) {
	if r.Data == nil {
		return nil, false
	}
	val, ok := r.Data[key]
	return val, ok
}

// SetMetadata sets a custom metadata field, initializing the map if needed.
func (r *Record) SetMetadata(key string, value interface{}) {
	if r.Metadata.Custom == nil {
		r.Metadata.Custom = GetMap()
	}
	r.Metadata.Custom[key] = value
}

// GetMetadata retrieves a custom metadata field.
func (r *Record) GetMetadata(key string) (interface{}, bool) {
	if r.Metadata.Custom == nil {
		return nil, false
	}
	val, ok := r.Metadata.Custom[key]
	return val, ok
}

// SetTimestamp sets the record's extraction timestamp.
func (r *Record) SetTimestamp(t time.Time) {
	r.Metadata.Timestamp = t
}

// Release returns the record and its pooled resources to the pool.
// Call it when the record is no longer needed, typically with defer
// immediately after obtaining the record.
func (r *Record) Release() {
	Put(r)
}

// New creates a record with the given source and data. The record is
// obtained from the pool and initialized with a unique ID and the current
// timestamp. The provided data map is used directly.
//
// The caller should call Release when done.
func New(source string, data map[string]interface{}) *Record {
	r := Get()
	r.ID = GenerateID("rec")
	r.Data = data
	r.Metadata.Source = source
	r.Metadata.Timestamp = time.Now()
	return r
}

// NewFromPool creates a record using entirely pooled resources, including
// a fresh pooled data map. This is the efficient path for parsers that
// build data incrementally.
//
// The caller should call Release when done.
func NewFromPool(source string) *Record {
	r := Get()
	r.ID = GenerateID("rec")
	r.Data = GetMap()
	r.Metadata.Source = source
	r.Metadata.Timestamp = time.Now()
	return r
}
