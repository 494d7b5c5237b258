package column

import (
	"errors"
	"fmt"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// ErrCorrupt indicates internally inconsistent framing inside a column body,
// such as a non-monotonic offset array. Offsets are trust-critical: the whole
// block is abandoned, never partially returned.
var ErrCorrupt = errors.New("corrupt block")

// Column is one typed, homogeneous sequence of values. Implementations are
// explicit per-kind variants; values are checked against the declared type on
// append and decode, never inferred.
type Column interface {
	// Type returns the descriptor this column was built from.
	Type() *Type
	// Rows returns the number of values held.
	Rows() int
	// Row returns the value at index i.
	Row(i int) any
	// Append adds one value, rejecting values of the wrong Go type.
	Append(v any) error
	// AppendDefault adds the type's zero value. Used for Nullable
	// placeholder slots, which still occupy space on the wire.
	AppendDefault()
	// Decode reads rows values from r, replacing current contents.
	Decode(r *binary.Reader, rows int) error
	// Encode writes all held values to w.
	Encode(w *binary.Writer) error
}

// New builds an empty column for the given descriptor.
func New(t *Type) (Column, error) {
	switch t.Kind {
	case KindUInt8:
		return &UInt8{typ: t}, nil
	case KindUInt16:
		return &UInt16{typ: t}, nil
	case KindUInt32:
		return &UInt32{typ: t}, nil
	case KindUInt64:
		return &UInt64{typ: t}, nil
	case KindInt8:
		return &Int8{typ: t}, nil
	case KindInt16:
		return &Int16{typ: t}, nil
	case KindInt32:
		return &Int32{typ: t}, nil
	case KindInt64:
		return &Int64{typ: t}, nil
	case KindUInt128:
		return &BigInt{typ: t, size: 16, signed: false}, nil
	case KindUInt256:
		return &BigInt{typ: t, size: 32, signed: false}, nil
	case KindInt128:
		return &BigInt{typ: t, size: 16, signed: true}, nil
	case KindInt256:
		return &BigInt{typ: t, size: 32, signed: true}, nil
	case KindFloat32:
		return &Float32{typ: t}, nil
	case KindFloat64:
		return &Float64{typ: t}, nil
	case KindString:
		return &String{typ: t}, nil
	case KindFixedString:
		return &FixedString{typ: t, width: t.Length}, nil
	case KindDate:
		return &Date{typ: t}, nil
	case KindDate32:
		return &Date32{typ: t}, nil
	case KindDateTime:
		return newDateTime(t)
	case KindDateTime64:
		return newDateTime64(t)
	case KindDecimal:
		return newDecimal(t)
	case KindEnum8, KindEnum16:
		return newEnum(t)
	case KindNullable:
		return newNullable(t)
	case KindArray:
		return newArray(t)
	case KindTuple:
		return newTuple(t)
	case KindMap:
		return newMap(t)
	case KindLowCardinality:
		return newLowCardinality(t)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}

// FromTypeString parses a type string and builds a column for it.
func FromTypeString(s string) (Column, error) {
	t, err := ParseType(s)
	if err != nil {
		return nil, err
	}
	return New(t)
}

func appendTypeError(t *Type, v any) error {
	return fmt.Errorf("cannot append %T to %s column", v, t)
}
