package column

import (
	"fmt"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// LowCardinality dictionary serialization constants.
const (
	lcKeysVersion = 1 // shared dictionaries with additional keys

	lcKeyUInt8  = 0
	lcKeyUInt16 = 1
	lcKeyUInt32 = 2
	lcKeyUInt64 = 3

	lcHasAdditionalKeys = 1 << 9
	lcNeedGlobalDict    = 1 << 8
)

// LowCardinality holds a LowCardinality(T) column: a per-column dictionary of
// distinct values plus one fixed-width key per row. Only the additional-keys
// form is supported; shared global dictionaries are not.
type LowCardinality struct {
	typ      *Type
	nullable bool // Nullable inner: dictionary slot 0 is the null value
	dictType *Type
	keys     []uint64
	dict     Column
	index    map[any]uint64 // value -> dictionary slot, for encoding
}

func newLowCardinality(t *Type) (*LowCardinality, error) {
	inner := t.Elems[0]
	nullable := inner.Kind == KindNullable
	if nullable {
		inner = inner.Elems[0]
	}
	dict, err := New(inner)
	if err != nil {
		return nil, err
	}
	c := &LowCardinality{
		typ:      t,
		nullable: nullable,
		dictType: inner,
		dict:     dict,
		index:    make(map[any]uint64),
	}
	c.reset()
	return c, nil
}

func (c *LowCardinality) reset() {
	dict, _ := New(c.dictType)
	c.dict = dict
	c.keys = nil
	c.index = make(map[any]uint64)
	if c.nullable {
		// Slot 0 is reserved for null.
		c.dict.AppendDefault()
	}
}

func (c *LowCardinality) Type() *Type { return c.typ }
func (c *LowCardinality) Rows() int   { return len(c.keys) }

func (c *LowCardinality) Row(i int) any {
	key := c.keys[i]
	if c.nullable && key == 0 {
		return nil
	}
	return c.dict.Row(int(key))
}

func (c *LowCardinality) AppendDefault() {
	if c.nullable {
		c.keys = append(c.keys, 0)
		return
	}
	scratch, _ := New(c.dictType)
	scratch.AppendDefault()
	if err := c.Append(scratch.Row(0)); err != nil {
		c.keys = append(c.keys, 0)
	}
}

func (c *LowCardinality) Append(v any) error {
	if v == nil {
		if !c.nullable {
			return appendTypeError(c.typ, v)
		}
		c.keys = append(c.keys, 0)
		return nil
	}
	if key, ok := c.index[dictKey(v)]; ok {
		c.keys = append(c.keys, key)
		return nil
	}
	if err := c.dict.Append(v); err != nil {
		return err
	}
	key := uint64(c.dict.Rows() - 1)
	c.index[dictKey(v)] = key
	c.keys = append(c.keys, key)
	return nil
}

// dictKey normalizes a value into a comparable map key. FixedString values
// surface as []byte, which cannot key a map directly.
func dictKey(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func (c *LowCardinality) Decode(r *binary.Reader, rows int) error {
	if rows == 0 {
		c.reset()
		return nil
	}

	version, err := r.UInt64()
	if err != nil {
		return err
	}
	if version != lcKeysVersion {
		return fmt.Errorf("%w: LowCardinality keys version %d", ErrUnsupportedType, version)
	}

	meta, err := r.UInt64()
	if err != nil {
		return err
	}
	if meta&lcNeedGlobalDict != 0 {
		return fmt.Errorf("%w: LowCardinality global dictionaries", ErrUnsupportedType)
	}
	if meta&lcHasAdditionalKeys == 0 {
		return fmt.Errorf("%w: LowCardinality without additional keys", ErrUnsupportedType)
	}

	dictSize, err := r.UInt64()
	if err != nil {
		return err
	}
	if dictSize > maxArrayElements {
		return fmt.Errorf("dictionary of %d entries: %w", dictSize, binary.ErrLimitExceeded)
	}
	dict, nerr := New(c.dictType)
	if nerr != nil {
		return nerr
	}
	if err := dict.Decode(r, int(dictSize)); err != nil {
		return err
	}
	c.dict = dict

	keyCount, err := r.UInt64()
	if err != nil {
		return err
	}
	if keyCount != uint64(rows) {
		return fmt.Errorf("%w: %d dictionary keys for %d rows", ErrCorrupt, keyCount, rows)
	}

	c.keys = make([]uint64, rows)
	for i := range c.keys {
		var key uint64
		switch meta & 0xff {
		case lcKeyUInt8:
			v, err := r.UInt8()
			if err != nil {
				return err
			}
			key = uint64(v)
		case lcKeyUInt16:
			v, err := r.UInt16()
			if err != nil {
				return err
			}
			key = uint64(v)
		case lcKeyUInt32:
			v, err := r.UInt32()
			if err != nil {
				return err
			}
			key = uint64(v)
		case lcKeyUInt64:
			v, err := r.UInt64()
			if err != nil {
				return err
			}
			key = v
		default:
			return fmt.Errorf("%w: LowCardinality key width %d", ErrUnsupportedType, meta&0xff)
		}
		if key >= dictSize {
			return fmt.Errorf("%w: dictionary key %d outside dictionary of %d", ErrCorrupt, key, dictSize)
		}
		c.keys[i] = key
	}
	return nil
}

func (c *LowCardinality) Encode(w *binary.Writer) error {
	if len(c.keys) == 0 {
		return nil
	}

	if err := w.UInt64(lcKeysVersion); err != nil {
		return err
	}

	width, meta := keyWidth(uint64(c.dict.Rows()))
	if err := w.UInt64(meta | lcHasAdditionalKeys); err != nil {
		return err
	}

	if err := w.UInt64(uint64(c.dict.Rows())); err != nil {
		return err
	}
	if err := c.dict.Encode(w); err != nil {
		return err
	}

	if err := w.UInt64(uint64(len(c.keys))); err != nil {
		return err
	}
	for _, key := range c.keys {
		var err error
		switch width {
		case 1:
			err = w.UInt8(uint8(key))
		case 2:
			err = w.UInt16(uint16(key))
		case 4:
			err = w.UInt32(uint32(key))
		default:
			err = w.UInt64(key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func keyWidth(dictSize uint64) (bytes int, meta uint64) {
	switch {
	case dictSize <= 1<<8:
		return 1, lcKeyUInt8
	case dictSize <= 1<<16:
		return 2, lcKeyUInt16
	case dictSize <= 1<<32:
		return 4, lcKeyUInt32
	default:
		return 8, lcKeyUInt64
	}
}
