package column

import (
	"fmt"
	"math"
	"time"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

const secondsPerDay = 24 * 3600

// Date holds a Date column: days since the Unix epoch as uint16.
type Date struct {
	typ  *Type
	data []uint16
}

func (c *Date) Type() *Type    { return c.typ }
func (c *Date) Rows() int      { return len(c.data) }
func (c *Date) AppendDefault() { c.data = append(c.data, 0) }

func (c *Date) Row(i int) any {
	return time.Unix(int64(c.data[i])*secondsPerDay, 0).UTC()
}

func (c *Date) Append(v any) error {
	t, ok := v.(time.Time)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	days := t.Unix() / secondsPerDay
	if days < 0 || days > math.MaxUint16 {
		return fmt.Errorf("date %v out of range for %s", t, c.typ)
	}
	c.data = append(c.data, uint16(days))
	return nil
}

func (c *Date) Decode(r *binary.Reader, rows int) error {
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

func (c *Date) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.UInt16(v); err != nil {
			return err
		}
	}
	return nil
}

// Date32 holds a Date32 column: days relative to the Unix epoch as int32,
// covering dates before 1970.
type Date32 struct {
	typ  *Type
	data []int32
}

func (c *Date32) Type() *Type    { return c.typ }
func (c *Date32) Rows() int      { return len(c.data) }
func (c *Date32) AppendDefault() { c.data = append(c.data, 0) }

func (c *Date32) Row(i int) any {
	return time.Unix(int64(c.data[i])*secondsPerDay, 0).UTC()
}

func (c *Date32) Append(v any) error {
	t, ok := v.(time.Time)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, int32(t.Unix()/secondsPerDay))
	return nil
}

func (c *Date32) Decode(r *binary.Reader, rows int) error {
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

func (c *Date32) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.Int32(v); err != nil {
			return err
		}
	}
	return nil
}

// DateTime holds a DateTime column: seconds since the Unix epoch as uint32.
// An optional timezone from the type declaration applies to decoded values.
type DateTime struct {
	typ  *Type
	loc  *time.Location
	data []uint32
}

func newDateTime(t *Type) (*DateTime, error) {
	loc, err := locationFor(t)
	if err != nil {
		return nil, err
	}
	return &DateTime{typ: t, loc: loc}, nil
}

func locationFor(t *Type) (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone in %s", ErrUnsupportedType, t)
	}
	return loc, nil
}

func (c *DateTime) Type() *Type    { return c.typ }
func (c *DateTime) Rows() int      { return len(c.data) }
func (c *DateTime) AppendDefault() { c.data = append(c.data, 0) }

func (c *DateTime) Row(i int) any {
	return time.Unix(int64(c.data[i]), 0).In(c.loc)
}

func (c *DateTime) Append(v any) error {
	t, ok := v.(time.Time)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	sec := t.Unix()
	if sec < 0 || sec > math.MaxUint32 {
		return fmt.Errorf("time %v out of range for %s", t, c.typ)
	}
	c.data = append(c.data, uint32(sec))
	return nil
}

func (c *DateTime) Decode(r *binary.Reader, rows int) error {
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

func (c *DateTime) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.UInt32(v); err != nil {
			return err
		}
	}
	return nil
}

// DateTime64 holds a DateTime64(p) column: int64 ticks of 10^-p seconds since
// the Unix epoch.
type DateTime64 struct {
	typ      *Type
	loc      *time.Location
	tickNano int64 // nanoseconds per tick
	data     []int64
}

func newDateTime64(t *Type) (*DateTime64, error) {
	if t.Precision < 0 || t.Precision > 9 {
		return nil, fmt.Errorf("%w: %s precision out of range", ErrUnsupportedType, t)
	}
	loc, err := locationFor(t)
	if err != nil {
		return nil, err
	}
	tick := int64(1)
	for i := t.Precision; i < 9; i++ {
		tick *= 10
	}
	return &DateTime64{typ: t, loc: loc, tickNano: tick}, nil
}

func (c *DateTime64) Type() *Type    { return c.typ }
func (c *DateTime64) Rows() int      { return len(c.data) }
func (c *DateTime64) AppendDefault() { c.data = append(c.data, 0) }

func (c *DateTime64) Row(i int) any {
	nanos := c.data[i] * c.tickNano
	return time.Unix(nanos/1e9, nanos%1e9).In(c.loc)
}

func (c *DateTime64) Append(v any) error {
	t, ok := v.(time.Time)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	c.data = append(c.data, t.UnixNano()/c.tickNano)
	return nil
}

func (c *DateTime64) Decode(r *binary.Reader, rows int) error {
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

func (c *DateTime64) Encode(w *binary.Writer) error {
	for _, v := range c.data {
		if err := w.Int64(v); err != nil {
			return err
		}
	}
	return nil
}
