package proto

import (
	"fmt"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// maxExceptionDepth bounds the nested-cause chain a server may send.
const maxExceptionDepth = 32

// Exception is a server-side error delivered in-band. It satisfies error so
// query paths can return it directly.
type Exception struct {
	Code       uint64
	Name       string
	Message    string
	StackTrace string
	Nested     *Exception
}

func (e *Exception) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

// ReadException decodes an exception payload, following the nested-cause
// chain up to a fixed depth.
func ReadException(r *binary.Reader) (*Exception, error) {
	return readException(r, 0)
}

func readException(r *binary.Reader, depth int) (*Exception, error) {
	if depth >= maxExceptionDepth {
		return nil, fmt.Errorf("exception nesting: %w", binary.ErrLimitExceeded)
	}
	e := &Exception{}
	var err error

	if e.Code, err = r.UVarInt(); err != nil {
		return nil, err
	}
	if e.Name, err = r.String(); err != nil {
		return nil, err
	}
	if e.Message, err = r.String(); err != nil {
		return nil, err
	}
	if e.StackTrace, err = r.String(); err != nil {
		return nil, err
	}
	hasNested, err := r.Bool()
	if err != nil {
		return nil, err
	}
	if hasNested {
		if e.Nested, err = readException(r, depth+1); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// WriteException encodes an exception payload without its packet code.
// Test fixtures standing in for a server use it.
func WriteException(w *binary.Writer, e *Exception) error {
	if err := w.UVarInt(e.Code); err != nil {
		return err
	}
	if err := w.String(e.Name); err != nil {
		return err
	}
	if err := w.String(e.Message); err != nil {
		return err
	}
	if err := w.String(e.StackTrace); err != nil {
		return err
	}
	if err := w.Bool(e.Nested != nil); err != nil {
		return err
	}
	if e.Nested != nil {
		return WriteException(w, e.Nested)
	}
	return nil
}
