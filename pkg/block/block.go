// Package block implements the columnar block codec: a named, ordered set of
// typed columns sharing one row count, exchanged as a single unit on the wire.
package block

import (
	"errors"
	"fmt"

	"github.com/IAL32/clickhouse-async/pkg/binary"
	"github.com/IAL32/clickhouse-async/pkg/column"
)

// ErrRowShape indicates an appended row that does not match the block schema.
var ErrRowShape = errors.New("row does not match block schema")

const (
	maxColumns = 1 << 16
	maxRows    = 1 << 30
)

// Info carries the block-info tag stream preceding the header.
type Info struct {
	Overflows bool
	BucketNum uint64
}

// NamedColumn is one column of a block together with its wire name.
type NamedColumn struct {
	Name string
	Data column.Column
}

// Block is a columnar batch of rows. Column order is significant and mirrors
// wire order; every column holds exactly Rows() values.
type Block struct {
	Info    Info
	Columns []NamedColumn
}

// New creates an empty block.
func New() *Block {
	return &Block{}
}

// AddColumn appends a column built from its declared type string.
func (b *Block) AddColumn(name, typeString string) error {
	col, err := column.FromTypeString(typeString)
	if err != nil {
		return fmt.Errorf("column %q: %w", name, err)
	}
	if col.Rows() != b.Rows() && len(b.Columns) > 0 {
		return fmt.Errorf("column %q: %w", name, ErrRowShape)
	}
	b.Columns = append(b.Columns, NamedColumn{Name: name, Data: col})
	return nil
}

// Append adds one row, one value per column in declared order.
func (b *Block) Append(values ...any) error {
	if len(values) != len(b.Columns) {
		return fmt.Errorf("%w: %d values for %d columns", ErrRowShape, len(values), len(b.Columns))
	}
	for i, v := range values {
		if err := b.Columns[i].Data.Append(v); err != nil {
			return fmt.Errorf("column %q: %w", b.Columns[i].Name, err)
		}
	}
	return nil
}

// Rows returns the shared row count.
func (b *Block) Rows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Data.Rows()
}

// Row materializes row i as one value per column, in column order.
func (b *Block) Row(i int) []any {
	values := make([]any, len(b.Columns))
	for j, col := range b.Columns {
		values[j] = col.Data.Row(i)
	}
	return values
}

// ColumnNames returns the column names in wire order.
func (b *Block) ColumnNames() []string {
	names := make([]string, len(b.Columns))
	for i, col := range b.Columns {
		names[i] = col.Name
	}
	return names
}

// Encode writes the block info, header and column bodies.
func (b *Block) Encode(w *binary.Writer) error {
	// Block info as a tag stream: field 1 (overflows), field 2 (bucket),
	// then the end-of-fields marker.
	if err := w.UVarInt(1); err != nil {
		return err
	}
	if err := w.Bool(b.Info.Overflows); err != nil {
		return err
	}
	if err := w.UVarInt(2); err != nil {
		return err
	}
	if err := w.UVarInt(b.Info.BucketNum); err != nil {
		return err
	}
	if err := w.UVarInt(0); err != nil {
		return err
	}

	if err := w.UVarInt(uint64(len(b.Columns))); err != nil {
		return err
	}
	if err := w.UVarInt(uint64(b.Rows())); err != nil {
		return err
	}

	for _, col := range b.Columns {
		if err := w.String(col.Name); err != nil {
			return err
		}
		if err := w.String(col.Data.Type().String()); err != nil {
			return err
		}
		if err := col.Data.Encode(w); err != nil {
			return fmt.Errorf("column %q: %w", col.Name, err)
		}
	}
	return nil
}

// Decode reads one block from r, replacing the current contents. A column
// whose declared type is not supported is reported with its name; since an
// unknown layout cannot be skipped on a byte stream, the block as a whole
// fails.
func (b *Block) Decode(r *binary.Reader) error {
	if _, err := r.UVarInt(); err != nil { // overflows field tag
		return err
	}
	overflows, err := r.Bool()
	if err != nil {
		return err
	}
	if _, err := r.UVarInt(); err != nil { // bucket field tag
		return err
	}
	bucket, err := r.UVarInt()
	if err != nil {
		return err
	}
	if _, err := r.UVarInt(); err != nil { // end-of-fields marker
		return err
	}
	b.Info = Info{Overflows: overflows, BucketNum: bucket}

	columns, err := r.UVarInt()
	if err != nil {
		return err
	}
	if columns > maxColumns {
		return fmt.Errorf("block of %d columns: %w", columns, binary.ErrLimitExceeded)
	}
	rows, err := r.UVarInt()
	if err != nil {
		return err
	}
	if rows > maxRows {
		return fmt.Errorf("block of %d rows: %w", rows, binary.ErrLimitExceeded)
	}

	b.Columns = make([]NamedColumn, 0, columns)
	for i := uint64(0); i < columns; i++ {
		name, err := r.String()
		if err != nil {
			return err
		}
		typeString, err := r.String()
		if err != nil {
			return err
		}
		col, err := column.FromTypeString(typeString)
		if err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}
		if err := col.Decode(r, int(rows)); err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}
		b.Columns = append(b.Columns, NamedColumn{Name: name, Data: col})
	}
	return nil
}
