// Package parser defines the pluggable parsing capability of an Inlet
// agent. A Parser turns one connection's byte stream into discrete records
// by wrapping the stream in a RecordReader; the agent pulls records one at
// a time and persists each before pulling the next, so a slow store
// suspends parsing and, through it, the socket itself.
//
// Reference parsers live in the subpackages ndjson, lines and csv and
// self-register in the global registry on import.
package parser

import (
	stderrors "errors"
	"io"

	"github.com/inlethq/inlet/pkg/errors"
	"github.com/inlethq/inlet/pkg/record"
)

// Parser creates record readers for inbound byte streams. Implementations
// must be safe for concurrent use: one Parser serves every connection of
// an agent, each through its own RecordReader.
type Parser interface {
	// Name returns the registry name of the parser.
	Name() string

	// NewReader wraps one connection's decompressed byte stream. The
	// returned reader is single-use and owned by one pipeline; it is not
	// restartable once closed.
	NewReader(r io.Reader) (RecordReader, error)
}

// RecordReader extracts records from a byte stream one at a time. Next
// blocks until a full record is available, the stream ends, or the stream
// fails. A clean end of stream is reported as io.EOF.
//
// Records returned by Next are pooled; the consumer releases each record
// after persisting it.
type RecordReader interface {
	Next() (*record.Record, error)
	Close() error
}

// Info describes a registered parser for listings and tooling.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// ClassifyError tags a stream error as a parse error unless an upstream
// stage already classified it. Parsers use it so a decompression failure
// surfacing through their reads keeps its category.
func ClassifyError(err error, message string) error {
	if err == nil || err == io.EOF {
		return err
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeParse, message)
}
