package columnar

import (
	"bytes"
	"io/ioutil"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Codec names one of the block compression transforms. It is an opaque
// handle; the compressor pool is the only place that dispatches on it.
type Codec string

const (
	// CodecZstd compresses blocks with zstandard (github.com/klauspost/compress/zstd).
	CodecZstd Codec = "zstd"
	// CodecSnappy compresses blocks with snappy (github.com/golang/snappy).
	CodecSnappy Codec = "snappy"
	// CodecDeflate compresses blocks with deflate/gzip (github.com/klauspost/compress/gzip).
	CodecDeflate Codec = "deflate"
	// CodecNone stores blocks uncompressed. Useful for tests.
	CodecNone Codec = "none"
)

// Compress applies the codec to src, returning a fresh compressed buffer.
func (c Codec) Compress(dst, src []byte) ([]byte, error) {
	switch c {
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, errors.Wrap(err, "columnar: zstd encoder")
		}
		defer enc.Close() // nolint: errcheck
		return enc.EncodeAll(src, dst[:0]), nil
	case CodecSnappy:
		return snappy.Encode(dst, src), nil
	case CodecDeflate:
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
		if err != nil {
			return nil, errors.Wrap(err, "columnar: deflate writer")
		}
		if _, err := w.Write(src); err != nil {
			return nil, errors.Wrap(err, "columnar: deflate write")
		}
		if err := w.Close(); err != nil {
			return nil, errors.Wrap(err, "columnar: deflate close")
		}
		return buf.Bytes(), nil
	case CodecNone:
		out := append(dst[:0], src...)
		return out, nil
	default:
		return nil, errors.Errorf("columnar: unknown codec %q", c)
	}
}

// Decompress reverses Compress.
func (c Codec) Decompress(dst, src []byte) ([]byte, error) {
	switch c {
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Wrap(err, "columnar: zstd decoder")
		}
		defer dec.Close()
		out, err := dec.DecodeAll(src, dst[:0])
		if err != nil {
			return nil, errors.Wrap(err, "columnar: zstd decode")
		}
		return out, nil
	case CodecSnappy:
		out, err := snappy.Decode(dst, src)
		if err != nil {
			return nil, errors.Wrap(err, "columnar: snappy decode")
		}
		return out, nil
	case CodecDeflate:
		r, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, errors.Wrap(err, "columnar: deflate reader")
		}
		defer r.Close() // nolint: errcheck
		out, err := ioutil.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "columnar: deflate read")
		}
		return out, nil
	case CodecNone:
		out := append(dst[:0], src...)
		return out, nil
	default:
		return nil, errors.Errorf("columnar: unknown codec %q", c)
	}
}

// ValidCodec reports whether c is one this package knows how to apply.
func ValidCodec(c Codec) bool {
	switch c {
	case CodecZstd, CodecSnappy, CodecDeflate, CodecNone:
		return true
	default:
		return false
	}
}
