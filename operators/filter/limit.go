package filter

import (
	"io"
	"nested-scan-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

var (
	_ = (operators.Operator)(&LimitExec{})
)

// LimitExec passes through at most count rows of its input.
type LimitExec struct {
	input     operators.Operator
	schema    *arrow.Schema
	remaining uint64
	done      bool
}

func NewLimitExec(input operators.Operator, count uint64) (*LimitExec, error) {
	return &LimitExec{
		input:     input,
		schema:    input.Schema(),
		remaining: count,
	}, nil
}

func (l *LimitExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return &operators.RecordBatch{
			Schema:   l.schema,
			Columns:  []arrow.Array{},
			RowCount: 0,
		}, nil
	}
	if l.done || l.remaining == 0 {
		l.done = true
		return nil, io.EOF
	}
	childN := n
	if uint64(childN) > l.remaining {
		childN = uint16(l.remaining)
	}
	childBatch, err := l.input.Next(childN)
	if err != nil {
		return nil, err
	}
	// children may hand back more or fewer rows than asked for
	if childBatch.RowCount > l.remaining {
		trimmed := truncate(childBatch, l.remaining)
		childBatch.Release()
		childBatch = trimmed
	}
	l.remaining -= childBatch.RowCount
	return childBatch, nil
}

func truncate(rb *operators.RecordBatch, rows uint64) *operators.RecordBatch {
	cols := make([]arrow.Array, len(rb.Columns))
	for i, c := range rb.Columns {
		cols[i] = array.NewSlice(c, 0, int64(rows))
	}
	return &operators.RecordBatch{
		Schema:   rb.Schema,
		Columns:  cols,
		RowCount: rows,
	}
}

func (l *LimitExec) Schema() *arrow.Schema {
	return l.schema
}

func (l *LimitExec) Close() error {
	return l.input.Close()
}
