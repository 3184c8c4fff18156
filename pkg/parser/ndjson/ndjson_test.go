package ndjson

import (
	"io"
	"strings"
	"testing"

	"github.com/inlethq/inlet/pkg/errors"
	"github.com/inlethq/inlet/pkg/parser"
)

func TestParseObjects(t *testing.T) {
	input := `{"sensor":"p4","value":1.5}
{"sensor":"p7","value":2}
{"sensor":"p9","value":-3.25}
`
	rr, err := New().NewReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer rr.Close()

	sensors := []string{"p4", "p7", "p9"}
	values := []float64{1.5, 2, -3.25}

	for i := range sensors {
		rec, err := rr.Next()
		if err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
		if got := rec.Data["sensor"]; got != sensors[i] {
			t.Errorf("Record %d sensor = %v, want %v", i, got, sensors[i])
		}
		if got := rec.Data["value"]; got != values[i] {
			t.Errorf("Record %d value = %v (%T), want %v", i, got, got, values[i])
		}
		rec.Release()
	}

	if _, err := rr.Next(); err != io.EOF {
		t.Errorf("Expected EOF after last record, got %v", err)
	}
}

func TestParseToleratesWhitespace(t *testing.T) {
	input := "\n\n  {\"a\": 1}\n\n\t {\"a\": 2}\n\n"

	rr, err := New().NewReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer rr.Close()

	count := 0
	for {
		rec, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		count++
		rec.Release()
	}
	if count != 2 {
		t.Errorf("Parsed %d records, want 2", count)
	}
}

func TestParseEmptyStream(t *testing.T) {
	rr, err := New().NewReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer rr.Close()

	if _, err := rr.Next(); err != io.EOF {
		t.Errorf("Empty stream: got %v, want EOF", err)
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"syntax error", `{"a": }` + "\n"},
		{"truncated object", `{"a": 1`},
		{"non-object value", `[1, 2, 3]` + "\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, err := New().NewReader(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Failed to create reader: %v", err)
			}
			defer rr.Close()

			_, err = rr.Next()
			if err == nil || err == io.EOF {
				t.Fatalf("Malformed input parsed without error: %v", err)
			}
			if !errors.IsType(err, errors.ErrorTypeParse) {
				t.Errorf("Malformed input error not tagged parse: %v", err)
			}
		})
	}
}

func TestUpstreamErrorKeepsCategory(t *testing.T) {
	src := io.MultiReader(
		strings.NewReader(`{"a": 1}`+"\n"),
		&failingReader{err: errors.New(errors.ErrorTypeDecompression, "corrupt frame")},
	)

	rr, err := New().NewReader(src)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer rr.Close()

	rec, err := rr.Next()
	if err != nil {
		t.Fatalf("First record failed: %v", err)
	}
	rec.Release()

	_, err = rr.Next()
	if err == nil {
		t.Fatal("Upstream failure produced no error")
	}
	if !errors.IsType(err, errors.ErrorTypeDecompression) {
		t.Errorf("Upstream category lost: %v", err)
	}
}

func TestNextAfterClose(t *testing.T) {
	rr, err := New().NewReader(strings.NewReader(`{"a": 1}`))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	if err := rr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := rr.Next(); err != io.EOF {
		t.Errorf("Next after Close: got %v, want EOF", err)
	}
}

func TestRegisteredGlobally(t *testing.T) {
	if !parser.Has("ndjson") {
		t.Error("ndjson parser not registered on import")
	}
}

type failingReader struct {
	err error
}

func (f *failingReader) Read([]byte) (int, error) {
	return 0, f.err
}
