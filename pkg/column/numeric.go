package column

import (
	"fmt"
	"math/big"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// Fixed-width numeric columns. Values are laid out contiguously on the wire,
// little-endian, with no per-value framing.

// UInt8 holds a UInt8 column.
type UInt8 struct {
	typ  *Type
	data []uint8
}

func (c *UInt8) Type() *Type    { return c.typ }
func (c *UInt8) Rows() int      { return len(c.data) }
func (c *UInt8) Row(i int) any  { return c.data[i] }
func (c *UInt8) AppendDefault() { c.data = append(c.data, 0) }

func (c *UInt8) Append(v any) error {
	x, ok := v.(uint8)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, x)
	return nil
}

func (c *UInt8) Decode(r *binary.Reader, rows int) error {
	c.data = make([]uint8, rows)
	return r.Fixed(c.data)
}

func (c *UInt8) Encode(w *binary.Writer) error {
	return w.Fixed(c.data)
}

// UInt16 holds a UInt16 column.
type UInt16 struct {
	typ  *Type
	data []uint16
}

func (c *UInt16) Type() *Type    { return c.typ }
func (c *UInt16) Rows() int      { return len(c.data) }
func (c *UInt16) Row(i int) any  { return c.data[i] }
func (c *UInt16) AppendDefault() { c.data = append(c.data, 0) }

func (c *UInt16) Append(v any) error {
	x, ok := v.(uint16)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, x)
	return nil
}

func (c *UInt16) Decode(r *binary.Reader, rows int) error {
	c.data = make([]uint16, rows)
	for i := range c.data {
		v, err := r.UInt16()
		if err != nil {
			return err
		}
		c.data[i] = v
	}
	return nil
}

func (c *UInt16) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.UInt16(v); err != nil {
			return err
		}
	}
	return nil
}

// UInt32 holds a UInt32 column.
type UInt32 struct {
	typ  *Type
	data []uint32
}

func (c *UInt32) Type() *Type    { return c.typ }
func (c *UInt32) Rows() int      { return len(c.data) }
func (c *UInt32) Row(i int) any  { return c.data[i] }
func (c *UInt32) AppendDefault() { c.data = append(c.data, 0) }

func (c *UInt32) Append(v any) error {
	x, ok := v.(uint32)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, x)
	return nil
}

func (c *UInt32) Decode(r *binary.Reader, rows int) error {
	c.data = make([]uint32, rows)
	for i := range c.data {
		v, err := r.UInt32()
		if err != nil {
			return err
		}
		c.data[i] = v
	}
	return nil
}

func (c *UInt32) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.UInt32(v); err != nil {
			return err
		}
	}
	return nil
}

// UInt64 holds a UInt64 column.
type UInt64 struct {
	typ  *Type
	data []uint64
}

func (c *UInt64) Type() *Type    { return c.typ }
func (c *UInt64) Rows() int      { return len(c.data) }
func (c *UInt64) Row(i int) any  { return c.data[i] }
func (c *UInt64) AppendDefault() { c.data = append(c.data, 0) }

func (c *UInt64) Append(v any) error {
	x, ok := v.(uint64)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, x)
	return nil
}

func (c *UInt64) Decode(r *binary.Reader, rows int) error {
	c.data = make([]uint64, rows)
	for i := range c.data {
		v, err := r.UInt64()
		if err != nil {
			return err
		}
		c.data[i] = v
	}
	return nil
}

func (c *UInt64) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.UInt64(v); err != nil {
			return err
		}
	}
	return nil
}

// Int8 holds an Int8 column.
type Int8 struct {
	typ  *Type
	data []int8
}

func (c *Int8) Type() *Type    { return c.typ }
func (c *Int8) Rows() int      { return len(c.data) }
func (c *Int8) Row(i int) any  { return c.data[i] }
func (c *Int8) AppendDefault() { c.data = append(c.data, 0) }

func (c *Int8) Append(v any) error {
	x, ok := v.(int8)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, x)
	return nil
}

func (c *Int8) Decode(r *binary.Reader, rows int) error {
	c.data = make([]int8, rows)
	for i := range c.data {
		v, err := r.Int8()
		if err != nil {
			return err
		}
		c.data[i] = v
	}
	return nil
}

func (c *Int8) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.Int8(v); err != nil {
			return err
		}
	}
	return nil
}

// Int16 holds an Int16 column.
type Int16 struct {
	typ  *Type
	data []int16
}

func (c *Int16) Type() *Type    { return c.typ }
func (c *Int16) Rows() int      { return len(c.data) }
func (c *Int16) Row(i int) any  { return c.data[i] }
func (c *Int16) AppendDefault() { c.data = append(c.data, 0) }

func (c *Int16) Append(v any) error {
	x, ok := v.(int16)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, x)
	return nil
}

func (c *Int16) Decode(r *binary.Reader, rows int) error {
	c.data = make([]int16, rows)
	for i := range c.data {
		v, err := r.Int16()
		if err != nil {
			return err
		}
		c.data[i] = v
	}
	return nil
}

func (c *Int16) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.Int16(v); err != nil {
			return err
		}
	}
	return nil
}

// Int32 holds an Int32 column.
type Int32 struct {
	typ  *Type
	data []int32
}

func (c *Int32) Type() *Type    { return c.typ }
func (c *Int32) Rows() int      { return len(c.data) }
func (c *Int32) Row(i int) any  { return c.data[i] }
func (c *Int32) AppendDefault() { c.data = append(c.data, 0) }

func (c *Int32) Append(v any) error {
	x, ok := v.(int32)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, x)
	return nil
}

func (c *Int32) Decode(r *binary.Reader, rows int) error {
	c.data = make([]int32, rows)
	for i := range c.data {
		v, err := r.Int32()
		if err != nil {
			return err
		}
		c.data[i] = v
	}
	return nil
}

func (c *Int32) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.Int32(v); err != nil {
			return err
		}
	}
	return nil
}

// Int64 holds an Int64 column.
type Int64 struct {
	typ  *Type
	data []int64
}

func (c *Int64) Type() *Type    { return c.typ }
func (c *Int64) Rows() int      { return len(c.data) }
func (c *Int64) Row(i int) any  { return c.data[i] }
func (c *Int64) AppendDefault() { c.data = append(c.data, 0) }

func (c *Int64) Append(v any) error {
	x, ok := v.(int64)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, x)
	return nil
}

func (c *Int64) Decode(r *binary.Reader, rows int) error {
	c.data = make([]int64, rows)
	for i := range c.data {
		v, err := r.Int64()
		if err != nil {
			return err
		}
		c.data[i] = v
	}
	return nil
}

func (c *Int64) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.Int64(v); err != nil {
			return err
		}
	}
	return nil
}

// Float32 holds a Float32 column.
type Float32 struct {
	typ  *Type
	data []float32
}

func (c *Float32) Type() *Type    { return c.typ }
func (c *Float32) Rows() int      { return len(c.data) }
func (c *Float32) Row(i int) any  { return c.data[i] }
func (c *Float32) AppendDefault() { c.data = append(c.data, 0) }

func (c *Float32) Append(v any) error {
	x, ok := v.(float32)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, x)
	return nil
}

func (c *Float32) Decode(r *binary.Reader, rows int) error {
	c.data = make([]float32, rows)
	for i := range c.data {
		v, err := r.Float32()
		if err != nil {
			return err
		}
		c.data[i] = v
	}
	return nil
}

func (c *Float32) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.Float32(v); err != nil {
			return err
		}
	}
	return nil
}

// Float64 holds a Float64 column.
type Float64 struct {
	typ  *Type
	data []float64
}

func (c *Float64) Type() *Type    { return c.typ }
func (c *Float64) Rows() int      { return len(c.data) }
func (c *Float64) Row(i int) any  { return c.data[i] }
func (c *Float64) AppendDefault() { c.data = append(c.data, 0) }

func (c *Float64) Append(v any) error {
	x, ok := v.(float64)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, x)
	return nil
}

func (c *Float64) Decode(r *binary.Reader, rows int) error {
	c.data = make([]float64, rows)
	for i := range c.data {
		v, err := r.Float64()
		if err != nil {
			return err
		}
		c.data[i] = v
	}
	return nil
}

func (c *Float64) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.Float64(v); err != nil {
			return err
		}
	}
	return nil
}

// BigInt holds Int128/UInt128/Int256/UInt256 columns. Values are *big.Int,
// laid out as fixed-width little-endian two's complement on the wire.
type BigInt struct {
	typ    *Type
	size   int // bytes per value: 16 or 32
	signed bool
	data   []*big.Int
}

func (c *BigInt) Type() *Type    { return c.typ }
func (c *BigInt) Rows() int      { return len(c.data) }
func (c *BigInt) Row(i int) any  { return c.data[i] }
func (c *BigInt) AppendDefault() { c.data = append(c.data, new(big.Int)) }

func (c *BigInt) Append(v any) error {
	x, ok := v.(*big.Int)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	if !c.signed && x.Sign() < 0 {
		return fmt.Errorf("cannot append negative value to %s column", c.typ)
	}
	if x.BitLen() > c.size*8-1 && (c.signed || x.BitLen() > c.size*8) {
		return fmt.Errorf("value out of range for %s column", c.typ)
	}
	c.data = append(c.data, new(big.Int).Set(x))
	return nil
}

func (c *BigInt) Decode(r *binary.Reader, rows int) error {
	c.data = make([]*big.Int, rows)
	buf := make([]byte, c.size)
	for i := range c.data {
		if err := r.Fixed(buf); err != nil {
			return err
		}
		c.data[i] = bigIntFromLE(buf, c.signed)
	}
	return nil
}

func (c *BigInt) Encode(w *binary.Writer) error {
	buf := make([]byte, c.size)
	for _, v := range c.data {
		bigIntToLE(v, buf)
		if err := w.Fixed(buf); err != nil {
			return err
		}
	}
	return nil
}

func bigIntFromLE(le []byte, signed bool) *big.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	v := new(big.Int).SetBytes(be)
	if signed && len(be) > 0 && be[0]&0x80 != 0 {
		// Two's complement: subtract 2^(8n).
		max := new(big.Int).Lsh(big.NewInt(1), uint(len(be)*8))
		v.Sub(v, max)
	}
	return v
}

func bigIntToLE(v *big.Int, le []byte) {
	tmp := new(big.Int).Set(v)
	if tmp.Sign() < 0 {
		max := new(big.Int).Lsh(big.NewInt(1), uint(len(le)*8))
		tmp.Add(tmp, max)
	}
	be := tmp.Bytes()
	for i := range le {
		le[i] = 0
	}
	for i := 0; i < len(be) && i < len(le); i++ {
		le[i] = be[len(be)-1-i]
	}
}
