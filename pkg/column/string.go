package column

import (
	"fmt"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// String holds a String column: one varuint-length-prefixed byte string per
// row. The wire is byte-transparent; no encoding validation is performed.
type String struct {
	typ  *Type
	data []string
}

func (c *String) Type() *Type    { return c.typ }
func (c *String) Rows() int      { return len(c.data) }
func (c *String) Row(i int) any  { return c.data[i] }
func (c *String) AppendDefault() { c.data = append(c.data, "") }

func (c *String) Append(v any) error {
	switch x := v.(type) {
	case string:
		c.data = append(c.data, x)
	case []byte:
		c.data = append(c.data, string(x))
	default:
		return appendTypeError(c.typ, v)
	}
	return nil
}

func (c *String) Decode(r *binary.Reader, rows int) error {
	c.data = make([]string, rows)
	for i := range c.data {
		s, err := r.String()
		if err != nil {
			return err
		}
		c.data[i] = s
	}
	return nil
}

func (c *String) Encode(w *binary.Writer) error {
	for _, s := range c.data {
		if err := w.String(s); err != nil {
			return err
		}
	}
	return nil
}

// FixedString holds a FixedString(n) column: exactly n raw bytes per row, no
// length prefix. Shorter appended values are zero-padded to the width.
type FixedString struct {
	typ   *Type
	width int
	data  []byte // width bytes per row
}

func (c *FixedString) Type() *Type { return c.typ }
func (c *FixedString) Rows() int   { return len(c.data) / c.width }

func (c *FixedString) Row(i int) any {
	row := make([]byte, c.width)
	copy(row, c.data[i*c.width:(i+1)*c.width])
	return row
}

func (c *FixedString) AppendDefault() {
	c.data = append(c.data, make([]byte, c.width)...)
}

func (c *FixedString) Append(v any) error {
	var b []byte
	switch x := v.(type) {
	case []byte:
		b = x
	case string:
		b = []byte(x)
	default:
		return appendTypeError(c.typ, v)
	}
	if len(b) > c.width {
		return fmt.Errorf("value of %d bytes does not fit %s", len(b), c.typ)
	}
	padded := make([]byte, c.width)
	copy(padded, b)
	c.data = append(c.data, padded...)
	return nil
}

func (c *FixedString) Decode(r *binary.Reader, rows int) error {
	c.data = make([]byte, rows*c.width)
	return r.Fixed(c.data)
}

func (c *FixedString) Encode(w *binary.Writer) error {
	return w.Fixed(c.data)
}
