package binary

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
)

// Writer encodes ClickHouse wire primitives onto an underlying byte stream.
// Writes are buffered; Flush must be called to push a complete packet out.
// Encoding itself never fails; sink I/O errors propagate unchanged.
type Writer struct {
	w       *bufio.Writer
	scratch [8]byte
}

// NewWriter creates a buffered writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Flush pushes all buffered bytes to the underlying stream.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// UVarInt writes a variable-length unsigned integer.
func (w *Writer) UVarInt(v uint64) error {
	for v >= 0x80 {
		if err := w.w.WriteByte(byte(v) | 0x80); err != nil {
			return err
		}
		v >>= 7
	}
	return w.w.WriteByte(byte(v))
}

// String writes a varuint length prefix followed by the raw bytes of s.
func (w *Writer) String(s string) error {
	if err := w.UVarInt(uint64(len(s))); err != nil {
		return err
	}
	_, err := w.w.WriteString(s)
	return err
}

// Bytes writes a varuint-length-prefixed byte string.
func (w *Writer) Bytes(b []byte) error {
	if err := w.UVarInt(uint64(len(b))); err != nil {
		return err
	}
	_, err := w.w.Write(b)
	return err
}

// Fixed writes raw bytes with no framing.
func (w *Writer) Fixed(b []byte) error {
	_, err := w.w.Write(b)
	return err
}

// UInt8 writes one unsigned byte.
func (w *Writer) UInt8(v uint8) error {
	return w.w.WriteByte(v)
}

// UInt16 writes a little-endian unsigned 16-bit integer.
func (w *Writer) UInt16(v uint16) error {
	binary.LittleEndian.PutUint16(w.scratch[:2], v)
	_, err := w.w.Write(w.scratch[:2])
	return err
}

// UInt32 writes a little-endian unsigned 32-bit integer.
func (w *Writer) UInt32(v uint32) error {
	binary.LittleEndian.PutUint32(w.scratch[:4], v)
	_, err := w.w.Write(w.scratch[:4])
	return err
}

// UInt64 writes a little-endian unsigned 64-bit integer.
func (w *Writer) UInt64(v uint64) error {
	binary.LittleEndian.PutUint64(w.scratch[:8], v)
	_, err := w.w.Write(w.scratch[:8])
	return err
}

// Int8 writes one signed byte.
func (w *Writer) Int8(v int8) error {
	return w.w.WriteByte(byte(v))
}

// Int16 writes a little-endian signed 16-bit integer.
func (w *Writer) Int16(v int16) error {
	return w.UInt16(uint16(v))
}

// Int32 writes a little-endian signed 32-bit integer.
func (w *Writer) Int32(v int32) error {
	return w.UInt32(uint32(v))
}

// Int64 writes a little-endian signed 64-bit integer.
func (w *Writer) Int64(v int64) error {
	return w.UInt64(uint64(v))
}

// Float32 writes a little-endian IEEE 754 single-precision float.
func (w *Writer) Float32(v float32) error {
	return w.UInt32(math.Float32bits(v))
}

// Float64 writes a little-endian IEEE 754 double-precision float.
func (w *Writer) Float64(v float64) error {
	return w.UInt64(math.Float64bits(v))
}

// Bool writes a single byte, 1 for true and 0 for false.
func (w *Writer) Bool(v bool) error {
	if v {
		return w.w.WriteByte(1)
	}
	return w.w.WriteByte(0)
}
