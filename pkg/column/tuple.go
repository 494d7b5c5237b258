package column

import (
	"fmt"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// Tuple holds a Tuple(T1, ..., Tn) column. Each field column is encoded
// contiguously in declared order; there is no per-row framing.
type Tuple struct {
	typ    *Type
	fields []Column
	rows   int
}

func newTuple(t *Type) (*Tuple, error) {
	fields := make([]Column, len(t.Elems))
	for i, elem := range t.Elems {
		field, err := New(elem)
		if err != nil {
			return nil, err
		}
		fields[i] = field
	}
	return &Tuple{typ: t, fields: fields}, nil
}

func (c *Tuple) Type() *Type { return c.typ }
func (c *Tuple) Rows() int   { return c.rows }

func (c *Tuple) Row(i int) any {
	values := make([]any, len(c.fields))
	for j, field := range c.fields {
		values[j] = field.Row(i)
	}
	return values
}

func (c *Tuple) AppendDefault() {
	for _, field := range c.fields {
		field.AppendDefault()
	}
	c.rows++
}

func (c *Tuple) Append(v any) error {
	values, ok := v.([]any)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	if len(values) != len(c.fields) {
		return fmt.Errorf("tuple of %d values does not fit %s", len(values), c.typ)
	}
	for i, item := range values {
		if err := c.fields[i].Append(item); err != nil {
			return err
		}
	}
	c.rows++
	return nil
}

func (c *Tuple) Decode(r *binary.Reader, rows int) error {
	for _, field := range c.fields {
		if err := field.Decode(r, rows); err != nil {
			return err
		}
	}
	c.rows = rows
	return nil
}

func (c *Tuple) Encode(w *binary.Writer) error {
	for _, field := range c.fields {
		if err := field.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// Map holds a Map(K, V) column, encoded on the wire as Array(Tuple(K, V)).
type Map struct {
	typ   *Type
	pairs *Array
}

func newMap(t *Type) (*Map, error) {
	pairType := &Type{Kind: KindTuple, Elems: []*Type{t.Elems[0], t.Elems[1]}}
	pairs, err := newArray(&Type{Kind: KindArray, Elems: []*Type{pairType}})
	if err != nil {
		return nil, err
	}
	return &Map{typ: t, pairs: pairs}, nil
}

func (c *Map) Type() *Type    { return c.typ }
func (c *Map) Rows() int      { return c.pairs.Rows() }
func (c *Map) AppendDefault() { c.pairs.AppendDefault() }

func (c *Map) Row(i int) any {
	entries := c.pairs.Row(i).([]any)
	m := make(map[any]any, len(entries))
	for _, entry := range entries {
		pair := entry.([]any)
		m[pair[0]] = pair[1]
	}
	return m
}

func (c *Map) Append(v any) error {
	m, ok := v.(map[any]any)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	entries := make([]any, 0, len(m))
	for key, value := range m {
		entries = append(entries, []any{key, value})
	}
	return c.pairs.Append(entries)
}

func (c *Map) Decode(r *binary.Reader, rows int) error {
	return c.pairs.Decode(r, rows)
}

func (c *Map) Encode(w *binary.Writer) error {
	return c.pairs.Encode(w)
}
