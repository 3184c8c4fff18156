// Package lines parses raw text streams line by line. Each non-empty line
// becomes one record with the line under the "message" key and the original
// bytes preserved as raw data. Blank lines are skipped.
package lines

import (
	"bufio"
	"io"

	"github.com/inlethq/inlet/pkg/parser"
	"github.com/inlethq/inlet/pkg/record"
)

func init() {
	// Register the lines parser in the global registry
	_ = parser.Register(New())

	parser.RegisterInfo(parser.Info{
		Name:        "lines",
		Description: "Plain text parser, one line per record",
		Version:     "1.0.0",
	})
}

// MaxLineSize bounds a single line; longer lines fail the stream.
const MaxLineSize = 1024 * 1024

// Parser parses newline-delimited text.
type Parser struct{}

// New returns the lines parser.
func New() *Parser {
	return &Parser{}
}

// Name implements parser.Parser.
func (p *Parser) Name() string {
	return "lines"
}

// NewReader implements parser.Parser.
func (p *Parser) NewReader(r io.Reader) (parser.RecordReader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &reader{scanner: scanner}, nil
}

type reader struct {
	scanner *bufio.Scanner
	closed  bool
}

// Next returns the next non-empty line as a pooled record.
func (rr *reader) Next() (*record.Record, error) {
	if rr.closed {
		return nil, io.EOF
	}

	for rr.scanner.Scan() {
		line := rr.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// The scanner reuses its buffer between calls; the record owns
		// its bytes.
		raw := make([]byte, len(line))
		copy(raw, line)

		rec := record.Get()
		rec.SetData("message", string(raw))
		rec.RawData = raw
		return rec, nil
	}

	if err := rr.scanner.Err(); err != nil {
		return nil, parser.ClassifyError(err, "scan line")
	}
	return nil, io.EOF
}

func (rr *reader) Close() error {
	rr.closed = true
	return nil
}
