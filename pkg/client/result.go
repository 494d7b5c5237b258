package client

import (
	"github.com/IAL32/clickhouse-async/pkg/block"
	"github.com/IAL32/clickhouse-async/pkg/proto"
)

// Result is the eager, fully-buffered form of a query response: every
// yielded block concatenated row-wise, in arrival order.
type Result struct {
	columns  []string
	blocks   []*block.Block
	rows     int
	progress proto.Progress
}

func (r *Result) append(b *block.Block) {
	if r.columns == nil {
		r.columns = b.ColumnNames()
	}
	r.blocks = append(r.blocks, b)
	r.rows += b.Rows()
}

// Columns returns the result column names.
func (r *Result) Columns() []string {
	return r.columns
}

// Rows returns the total row count across all blocks.
func (r *Result) Rows() int {
	return r.rows
}

// Row returns row i as one value per column, counting across block
// boundaries. It panics when i is out of range, matching slice indexing.
func (r *Result) Row(i int) []any {
	for _, b := range r.blocks {
		if i < b.Rows() {
			return b.Row(i)
		}
		i -= b.Rows()
	}
	panic("row index out of range")
}

// Blocks returns the underlying blocks in arrival order.
func (r *Result) Blocks() []*block.Block {
	return r.blocks
}

// Progress returns the server progress counters accumulated while the
// result was read.
func (r *Result) Progress() proto.Progress {
	return r.progress
}
