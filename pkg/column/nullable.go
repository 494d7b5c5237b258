package column

import (
	"fmt"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// Nullable wraps an inner column with a null bitmap. The wire layout is a
// prefix of rowCount bytes (1 = null) followed by the full inner encoding for
// all rows: null rows still occupy a default placeholder value on the wire.
// That placeholder is a peculiarity of the format, not an optimization to
// skip.
type Nullable struct {
	typ   *Type
	inner Column
	nulls []bool
}

func newNullable(t *Type) (*Nullable, error) {
	if t.Elems[0].Kind == KindNullable {
		return nil, fmt.Errorf("%w: nested Nullable", ErrUnsupportedType)
	}
	inner, err := New(t.Elems[0])
	if err != nil {
		return nil, err
	}
	return &Nullable{typ: t, inner: inner}, nil
}

func (c *Nullable) Type() *Type { return c.typ }
func (c *Nullable) Rows() int   { return len(c.nulls) }

// Row returns nil for null positions; placeholder bytes are never surfaced.
func (c *Nullable) Row(i int) any {
	if c.nulls[i] {
		return nil
	}
	return c.inner.Row(i)
}

func (c *Nullable) AppendDefault() {
	c.nulls = append(c.nulls, false)
	c.inner.AppendDefault()
}

func (c *Nullable) Append(v any) error {
	if v == nil {
		c.nulls = append(c.nulls, true)
		c.inner.AppendDefault()
		return nil
	}
	if err := c.inner.Append(v); err != nil {
		return err
	}
	c.nulls = append(c.nulls, false)
	return nil
}

func (c *Nullable) Decode(r *binary.Reader, rows int) error {
	bitmap := make([]byte, rows)
	if err := r.Fixed(bitmap); err != nil {
		return err
	}
	c.nulls = make([]bool, rows)
	for i, b := range bitmap {
		c.nulls[i] = b != 0
	}
	return c.inner.Decode(r, rows)
}

func (c *Nullable) Encode(w *binary.Writer) error {
	bitmap := make([]byte, len(c.nulls))
	for i, isNull := range c.nulls {
		if isNull {
			bitmap[i] = 1
		}
	}
	if err := w.Fixed(bitmap); err != nil {
		return err
	}
	return c.inner.Encode(w)
}
