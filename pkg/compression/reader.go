// Package compression provides transparent decompression of inbound byte
// streams. An agent sees the same record flow whether a producer ships
// plain bytes or a compressed stream; the configured algorithm selects the
// decoding stage in front of the parser.
//
// Supported algorithms:
//   - none: pass-through, zero copies added
//   - gzip: stdlib gzip streams
//   - zstd: zstandard streams
//   - snappy: snappy framed streams
//   - lz4: lz4 framed streams
//
// Readers returned by NewReader decode lazily as the consumer pulls, so a
// slow consumer throttles the producer through the underlying connection.
// Errors surfaced while decoding are tagged decompression errors; a clean
// io.EOF passes through untouched.
package compression

import (
	"compress/gzip"
	"io"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/inlethq/inlet/pkg/errors"
)

// Algorithm represents a stream compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// Snappy represents snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 compression
	LZ4 Algorithm = "lz4"
)

// Algorithms lists every supported algorithm name.
func Algorithms() []Algorithm {
	return []Algorithm{None, Gzip, Zstd, Snappy, LZ4}
}

// Parse maps a configuration value to an Algorithm. The empty string maps
// to None. Unknown values are rejected with a config error.
func Parse(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", None:
		return None, nil
	case Gzip:
		return Gzip, nil
	case Zstd:
		return Zstd, nil
	case Snappy:
		return Snappy, nil
	case LZ4:
		return LZ4, nil
	default:
		return "", errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", s)
	}
}

// Pooled gzip readers; gzip.Reader carries a sizable internal window and
// connections churn.
var gzipReaderPool = sync.Pool{
	New: func() interface{} {
		return new(gzip.Reader)
	},
}

// Pooled zstd decoders. Decoders are created without a source and bound to
// a stream with Reset.
var zstdDecoderPool = sync.Pool{
	New: func() interface{} {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return dec
	},
}

// NewReader wraps src with the decoding stage for alg. The returned reader
// decodes as it is drained and must be closed when the stream ends; closing
// it does not close src. For None the source reader is returned unwrapped.
func NewReader(alg Algorithm, src io.Reader) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(src), nil

	case Gzip:
		zr := gzipReaderPool.Get().(*gzip.Reader)
		if err := zr.Reset(src); err != nil {
			gzipReaderPool.Put(zr)
			if err == io.EOF {
				// Stream closed before any bytes arrived. An empty
				// connection is not a corrupt one.
				return io.NopCloser(emptyReader{}), nil
			}
			return nil, errors.Wrap(err, errors.ErrorTypeDecompression, "invalid gzip stream")
		}
		return &reader{
			r: zr,
			close: func() error {
				err := zr.Close()
				gzipReaderPool.Put(zr)
				return err
			},
		}, nil

	case Zstd:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		if err := dec.Reset(src); err != nil {
			zstdDecoderPool.Put(dec)
			return nil, errors.Wrap(err, errors.ErrorTypeDecompression, "invalid zstd stream")
		}
		return &reader{
			r: dec,
			close: func() error {
				// Reset detaches the decoder from the connection so it can
				// be pooled; Close would tear the decoder down for good.
				err := dec.Reset(nil)
				zstdDecoderPool.Put(dec)
				return err
			},
		}, nil

	case Snappy:
		return &reader{r: snappy.NewReader(src)}, nil

	case LZ4:
		return &reader{r: lz4.NewReader(src)}, nil

	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", alg)
	}
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

// reader tags decode errors so the pipeline can classify the failure.
type reader struct {
	r     io.Reader
	close func() error
}

func (d *reader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF {
		return n, errors.Wrap(err, errors.ErrorTypeDecompression, "decompress stream")
	}
	return n, err
}

func (d *reader) Close() error {
	if d.close == nil {
		return nil
	}
	err := d.close()
	d.close = nil
	return err
}
