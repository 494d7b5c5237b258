package column

import (
	"fmt"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// Enum holds an Enum8 or Enum16 column. The wire carries the numeric values
// (int8 or int16, little-endian); rows surface as the declared names.
type Enum struct {
	typ     *Type
	wide    bool // Enum16
	byName  map[string]int16
	byValue map[int16]string
	data    []int16
}

func newEnum(t *Type) (*Enum, error) {
	c := &Enum{
		typ:     t,
		wide:    t.Kind == KindEnum16,
		byName:  make(map[string]int16, len(t.Enum)),
		byValue: make(map[int16]string, len(t.Enum)),
	}
	for _, e := range t.Enum {
		c.byName[e.Name] = e.Value
		c.byValue[e.Value] = e.Name
	}
	return c, nil
}

func (c *Enum) Type() *Type   { return c.typ }
func (c *Enum) Rows() int     { return len(c.data) }
func (c *Enum) Row(i int) any { return c.byValue[c.data[i]] }

func (c *Enum) AppendDefault() {
	// The first declared entry is the column default.
	c.data = append(c.data, c.typ.Enum[0].Value)
}

func (c *Enum) Append(v any) error {
	switch x := v.(type) {
	case string:
		value, ok := c.byName[x]
		if !ok {
			return fmt.Errorf("%q is not a member of %s", x, c.typ)
		}
		c.data = append(c.data, value)
	case int16:
		if _, ok := c.byValue[x]; !ok {
			return fmt.Errorf("%d is not a member of %s", x, c.typ)
		}
		c.data = append(c.data, x)
	default:
		return appendTypeError(c.typ, v)
	}
	return nil
}

func (c *Enum) Decode(r *binary.Reader, rows int) error {
	c.data = make([]int16, rows)
	for i := range c.data {
		var v int16
		if c.wide {
			w, err := r.Int16()
			if err != nil {
				return err
			}
			v = w
		} else {
			w, err := r.Int8()
			if err != nil {
				return err
			}
			v = int16(w)
		}
		if _, ok := c.byValue[v]; !ok {
			return fmt.Errorf("%w: value %d outside enum %s", ErrCorrupt, v, c.typ)
		}
		c.data[i] = v
	}
	return nil
}

func (c *Enum) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if c.wide {
			if err := w.Int16(v); err != nil {
				return err
			}
		} else {
			if err := w.Int8(int8(v)); err != nil {
				return err
			}
		}
	}
	return nil
}
