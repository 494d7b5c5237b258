package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrTruncated indicates the stream ended before a complete value could be read.
var ErrTruncated = errors.New("truncated input")

// ErrLimitExceeded indicates a length or depth declared on the wire exceeds the
// configured maximum. It is checked before any allocation happens.
var ErrLimitExceeded = errors.New("protocol limit exceeded")

// DefaultMaxLength bounds any single varuint-derived length (strings, fixed
// byte runs). A hostile or corrupt length field fails before allocation.
const DefaultMaxLength = 64 << 20

// Reader decodes ClickHouse wire primitives from an underlying byte stream.
type Reader struct {
	r         io.Reader
	scratch   [8]byte
	maxLength uint64
}

// NewReader creates a reader with the default length limit.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, maxLength: DefaultMaxLength}
}

// SetMaxLength overrides the maximum accepted varuint-derived length.
func (r *Reader) SetMaxLength(n uint64) {
	r.maxLength = n
}

// UVarInt reads a variable-length unsigned integer (7 bits per byte,
// continuation flag in the high bit, little-endian group order).
func (r *Reader) UVarInt() (uint64, error) {
	var value uint64
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		// The tenth byte can only contribute bit 63; any higher payload
		// bit, or a further continuation, does not fit in a uint64.
		if shift == 63 && b > 1 {
			return 0, fmt.Errorf("varuint wider than 64 bits: %w", ErrLimitExceeded)
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
	}
}

// String reads a varuint length prefix followed by that many raw bytes. The
// wire is byte-transparent; no encoding validation is performed.
func (r *Reader) String() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Bytes reads a varuint-length-prefixed byte string.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.UVarInt()
	if err != nil {
		return nil, err
	}
	if n > r.maxLength {
		return nil, fmt.Errorf("declared length %d exceeds maximum %d: %w", n, r.maxLength, ErrLimitExceeded)
	}
	buf := make([]byte, n)
	if err := r.Fixed(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Fixed fills buf with exactly len(buf) bytes from the stream.
func (r *Reader) Fixed(buf []byte) error {
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return wrapShortRead(err)
	}
	return nil
}

func (r *Reader) byte() (byte, error) {
	if _, err := io.ReadFull(r.r, r.scratch[:1]); err != nil {
		return 0, wrapShortRead(err)
	}
	return r.scratch[0], nil
}

// UInt8 reads one unsigned byte.
func (r *Reader) UInt8() (uint8, error) {
	return r.byte()
}

// UInt16 reads a little-endian unsigned 16-bit integer.
func (r *Reader) UInt16() (uint16, error) {
	if err := r.Fixed(r.scratch[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.scratch[:2]), nil
}

// UInt32 reads a little-endian unsigned 32-bit integer.
func (r *Reader) UInt32() (uint32, error) {
	if err := r.Fixed(r.scratch[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.scratch[:4]), nil
}

// UInt64 reads a little-endian unsigned 64-bit integer.
func (r *Reader) UInt64() (uint64, error) {
	if err := r.Fixed(r.scratch[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(r.scratch[:8]), nil
}

// Int8 reads one signed byte.
func (r *Reader) Int8() (int8, error) {
	v, err := r.byte()
	return int8(v), err
}

// Int16 reads a little-endian signed 16-bit integer.
func (r *Reader) Int16() (int16, error) {
	v, err := r.UInt16()
	return int16(v), err
}

// Int32 reads a little-endian signed 32-bit integer.
func (r *Reader) Int32() (int32, error) {
	v, err := r.UInt32()
	return int32(v), err
}

// Int64 reads a little-endian signed 64-bit integer.
func (r *Reader) Int64() (int64, error) {
	v, err := r.UInt64()
	return int64(v), err
}

// Float32 reads a little-endian IEEE 754 single-precision float.
func (r *Reader) Float32() (float32, error) {
	v, err := r.UInt32()
	return math.Float32frombits(v), err
}

// Float64 reads a little-endian IEEE 754 double-precision float.
func (r *Reader) Float64() (float64, error) {
	v, err := r.UInt64()
	return math.Float64frombits(v), err
}

// Bool reads a single byte where any non-zero value is true.
func (r *Reader) Bool() (bool, error) {
	v, err := r.byte()
	return v != 0, err
}

func wrapShortRead(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return err
}
