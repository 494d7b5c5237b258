package column

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// Decimal is one exact fixed-point value: Unscaled * 10^-Scale. No float
// arithmetic is involved at any point.
type Decimal struct {
	Unscaled *big.Int
	Scale    int
}

// String renders the exact decimal value, e.g. {-12345, 2} -> "-123.45".
func (d Decimal) String() string {
	s := new(big.Int).Abs(d.Unscaled).String()
	if d.Scale > 0 {
		if len(s) <= d.Scale {
			s = strings.Repeat("0", d.Scale-len(s)+1) + s
		}
		s = s[:len(s)-d.Scale] + "." + s[len(s)-d.Scale:]
	}
	if d.Unscaled.Sign() < 0 {
		s = "-" + s
	}
	return s
}

// DecimalColumn holds a Decimal(p, s) column. Values are stored on the wire
// as the smallest fixed-width signed integer that holds precision p, scaled
// by 10^s, little-endian.
type DecimalColumn struct {
	typ  *Type
	size int // bytes per value: 4, 8, 16 or 32
	data []*big.Int
}

func newDecimal(t *Type) (*DecimalColumn, error) {
	var size int
	switch {
	case t.Precision <= 9:
		size = 4
	case t.Precision <= 18:
		size = 8
	case t.Precision <= 38:
		size = 16
	case t.Precision <= 76:
		size = 32
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	return &DecimalColumn{typ: t, size: size}, nil
}

func (c *DecimalColumn) Type() *Type    { return c.typ }
func (c *DecimalColumn) Rows() int      { return len(c.data) }
func (c *DecimalColumn) AppendDefault() { c.data = append(c.data, new(big.Int)) }

func (c *DecimalColumn) Row(i int) any {
	return Decimal{Unscaled: new(big.Int).Set(c.data[i]), Scale: c.typ.Scale}
}

func (c *DecimalColumn) Append(v any) error {
	d, ok := v.(Decimal)
	if !ok {
		return appendTypeError(c.typ, v)
	}
	if d.Scale != c.typ.Scale {
		return fmt.Errorf("decimal scale %d does not match %s", d.Scale, c.typ)
	}
	c.data = append(c.data, new(big.Int).Set(d.Unscaled))
	return nil
}

func (c *DecimalColumn) Decode(r *binary.Reader, rows int) error {
	c.data = make([]*big.Int, rows)
	buf := make([]byte, c.size)
	for i := range c.data {
		if err := r.Fixed(buf); err != nil {
			return err
		}
		c.data[i] = bigIntFromLE(buf, true)
	}
	return nil
}

func (c *DecimalColumn) Encode(w *binary.Writer) error {
	buf := make([]byte, c.size)
	for _, v := range c.data {
		bigIntToLE(v, buf)
		if err := w.Fixed(buf); err != nil {
			return err
		}
	}
	return nil
}
