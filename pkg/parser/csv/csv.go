// Package csv parses comma-separated streams whose first row carries the
// column names. Every following row becomes one record mapping column name
// to string value. Rows with a different field count than the header fail
// the stream.
package csv

import (
	enccsv "encoding/csv"
	"io"

	"github.com/inlethq/inlet/pkg/parser"
	"github.com/inlethq/inlet/pkg/record"
)

func init() {
	// Register the csv parser in the global registry
	_ = parser.Register(New())

	parser.RegisterInfo(parser.Info{
		Name:        "csv",
		Description: "CSV parser with a header row, one row per record",
		Version:     "1.0.0",
	})
}

// Parser parses header-first CSV streams.
type Parser struct{}

// New returns the csv parser.
func New() *Parser {
	return &Parser{}
}

// Name implements parser.Parser.
func (p *Parser) Name() string {
	return "csv"
}

// NewReader implements parser.Parser.
func (p *Parser) NewReader(r io.Reader) (parser.RecordReader, error) {
	cr := enccsv.NewReader(r)
	cr.ReuseRecord = true
	return &reader{csv: cr}, nil
}

type reader struct {
	csv    *enccsv.Reader
	header []string
	closed bool
}

// Next returns the next data row as a pooled record. The header row is
// consumed lazily on the first call, so an empty stream is a clean EOF
// rather than a missing-header error.
func (rr *reader) Next() (*record.Record, error) {
	if rr.closed {
		return nil, io.EOF
	}

	if rr.header == nil {
		row, err := rr.csv.Read()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, parser.ClassifyError(err, "read csv header")
		}
		rr.header = make([]string, len(row))
		copy(rr.header, row)
	}

	row, err := rr.csv.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, parser.ClassifyError(err, "read csv row")
	}

	rec := record.Get()
	for i, name := range rr.header {
		if i < len(row) {
			rec.SetData(name, row[i])
		}
	}
	return rec, nil
}

func (rr *reader) Close() error {
	rr.closed = true
	return nil
}
