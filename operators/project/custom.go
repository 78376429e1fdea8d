package project

import (
	"io"
	"nested-scan-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

var (
	_ = (operators.Operator)(&InMemorySource{})
)

// InMemorySource serves already built columns in slices of the requested size.
type InMemorySource struct {
	schema  *arrow.Schema
	columns []arrow.Array
	rows    int64
	pos     int64
}

// NewInMemorySource validates columns against schema and takes its own
// reference to each of them.
func NewInMemorySource(schema *arrow.Schema, columns []arrow.Array) (*InMemorySource, error) {
	if err := operators.ValidateColumns(schema, columns); err != nil {
		return nil, err
	}
	var rows int64
	for _, c := range columns {
		c.Retain()
		rows = int64(c.Len())
	}
	return &InMemorySource{
		schema:  schema,
		columns: columns,
		rows:    rows,
	}, nil
}

func NewInMemorySourceFromRecord(rec arrow.Record) (*InMemorySource, error) {
	return NewInMemorySource(rec.Schema(), rec.Columns())
}

// WithFields narrows the source down to names, in the order given.
func (ms *InMemorySource) WithFields(names ...string) error {
	newSchema, cols, err := ProjectSchemaFilterDown(ms.schema, ms.columns, names...)
	if err != nil {
		return err
	}
	for _, c := range cols {
		c.Retain()
	}
	operators.ReleaseArrays(ms.columns)
	ms.schema = newSchema
	ms.columns = cols
	return nil
}

func (ms *InMemorySource) Next(n uint16) (*operators.RecordBatch, error) {
	if len(ms.columns) == 0 || ms.pos >= ms.rows {
		return nil, io.EOF
	}
	end := ms.pos + int64(n)
	if end > ms.rows {
		end = ms.rows
	}
	outPutCols := make([]arrow.Array, len(ms.columns))
	for i, col := range ms.columns {
		outPutCols[i] = array.NewSlice(col, ms.pos, end)
	}
	rows := end - ms.pos
	ms.pos = end

	return &operators.RecordBatch{
		Schema:   ms.schema,
		Columns:  outPutCols,
		RowCount: uint64(rows),
	}, nil
}

func (ms *InMemorySource) Close() error {
	operators.ReleaseArrays(ms.columns)
	ms.columns = nil
	return nil
}

func (ms *InMemorySource) Schema() *arrow.Schema {
	return ms.schema
}
