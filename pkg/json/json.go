// Package json provides JSON serialization for Inlet built on goccy/go-json.
// It is a drop-in for the standard library's encoding/json with a faster
// engine underneath; every package in the module funnels JSON work through
// it so the engine can be swapped in one place.
package json

import (
	"io"

	gojson "github.com/goccy/go-json"
)

// Marshal is a drop-in replacement for encoding/json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for encoding/json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Valid reports whether data is valid JSON
func Valid(data []byte) bool {
	return gojson.Valid(data)
}

// Decoder decodes a JSON value stream
type Decoder = gojson.Decoder

// Encoder encodes JSON values to a writer
type Encoder = gojson.Encoder

// NewDecoder returns a decoder reading from r. Numbers decode as float64;
// documents headed for a schema-less store keep their numeric type.
func NewDecoder(r io.Reader) *Decoder {
	return gojson.NewDecoder(r)
}

// NewEncoder returns an encoder writing to w with HTML escaping disabled.
func NewEncoder(w io.Writer) *Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}
