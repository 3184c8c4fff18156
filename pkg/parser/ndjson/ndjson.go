// Package ndjson parses newline-delimited JSON streams: one JSON object
// per record. Whitespace between objects is ignored, so pretty-printed and
// compact streams both work. A value that is not an object fails the
// stream; the agent isolates the failure to the producing connection.
package ndjson

import (
	"io"

	"github.com/inlethq/inlet/pkg/json"
	"github.com/inlethq/inlet/pkg/parser"
	"github.com/inlethq/inlet/pkg/record"
)

func init() {
	// Register the ndjson parser in the global registry
	_ = parser.Register(New())

	parser.RegisterInfo(parser.Info{
		Name:        "ndjson",
		Description: "Newline-delimited JSON parser, one object per record",
		Version:     "1.0.0",
	})
}

// Parser parses newline-delimited JSON objects.
type Parser struct{}

// New returns the ndjson parser.
func New() *Parser {
	return &Parser{}
}

// Name implements parser.Parser.
func (p *Parser) Name() string {
	return "ndjson"
}

// NewReader implements parser.Parser.
func (p *Parser) NewReader(r io.Reader) (parser.RecordReader, error) {
	return &reader{dec: json.NewDecoder(r)}, nil
}

type reader struct {
	dec    *json.Decoder
	closed bool
}

// Next decodes the next JSON object into a pooled record.
func (rr *reader) Next() (*record.Record, error) {
	if rr.closed {
		return nil, io.EOF
	}

	rec := record.Get()
	if err := rr.dec.Decode(&rec.Data); err != nil {
		rec.Release()
		return nil, parser.ClassifyError(err, "decode json record")
	}
	return rec, nil
}

func (rr *reader) Close() error {
	rr.closed = true
	return nil
}
