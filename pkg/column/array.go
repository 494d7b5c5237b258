package column

import (
	"fmt"
	"math"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// maxArrayElements bounds the flattened element count declared by an offset
// array before the inner column is decoded.
const maxArrayElements = 1 << 30

// Array holds an Array(T) column. The wire layout is a prefix of rowCount
// monotonically non-decreasing cumulative uint64 offsets, followed by the
// flattened inner encoding for the total element count (the last offset).
type Array struct {
	typ     *Type
	inner   Column
	offsets []uint64
}

func newArray(t *Type) (*Array, error) {
	inner, err := New(t.Elems[0])
	if err != nil {
		return nil, err
	}
	return &Array{typ: t, inner: inner}, nil
}

func (c *Array) Type() *Type { return c.typ }
func (c *Array) Rows() int   { return len(c.offsets) }

func (c *Array) Row(i int) any {
	start := uint64(0)
	if i > 0 {
		start = c.offsets[i-1]
	}
	end := c.offsets[i]
	values := make([]any, 0, end-start)
	for j := start; j < end; j++ {
		values = append(values, c.inner.Row(int(j)))
	}
	return values
}

func (c *Array) AppendDefault() {
	c.offsets = append(c.offsets, c.total())
}

func (c *Array) Append(v any) error {
	values, ok := v.([]any)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	// Validate the whole element list against a scratch column first. A
	// rejected element must not leave earlier ones orphaned in the inner
	// column without a closing offset.
	scratch, err := New(c.typ.Elems[0])
	if err != nil {
		return err
	}
	for _, item := range values {
		if err := scratch.Append(item); err != nil {
			return err
		}
	}
	for _, item := range values {
		if err := c.inner.Append(item); err != nil {
			return err
		}
	}
	c.offsets = append(c.offsets, c.total()+uint64(len(values)))
	return nil
}

func (c *Array) total() uint64 {
	if len(c.offsets) == 0 {
		return 0
	}
	return c.offsets[len(c.offsets)-1]
}

func (c *Array) Decode(r *binary.Reader, rows int) error {
	c.offsets = make([]uint64, rows)
	var prev uint64
	for i := range c.offsets {
		v, err := r.UInt64()
		if err != nil {
			return err
		}
		// Offsets are trust-critical framing: an inconsistent array
		// aborts the whole block, it is not recoverable per row.
		if v < prev {
			return fmt.Errorf("%w: non-monotonic array offset %d after %d", ErrCorrupt, v, prev)
		}
		c.offsets[i] = v
		prev = v
	}
	total := c.total()
	if total > maxArrayElements || total > math.MaxInt32 {
		return fmt.Errorf("array of %d elements: %w", total, binary.ErrLimitExceeded)
	}
	return c.inner.Decode(r, int(total))
}

func (c *Array) Encode(w *binary.Writer) error {
	for _, off := range c.offsets {
		if err := w.UInt64(off); err != nil {
			return err
		}
	}
	return c.inner.Encode(w)
}
