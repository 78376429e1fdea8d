package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"nested-scan-go/operators"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/olekukonko/tablewriter"
)

type Row []any

// ResultTable is a fully materialised statement result. Values are int64,
// float64, string, bool, nil or StructValue.
type ResultTable struct {
	Statement string
	Columns   []string
	Rows      []Row
}

type StructField struct {
	Name  string
	Value any
}

type StructValue []StructField

// String renders as {id: 3, name: aaa1}.
func (s StructValue) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, formatValue(f.Value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Execute runs sql and collects every row.
func (s *Session) Execute(ctx context.Context, sql string) (*ResultTable, error) {
	op, err := s.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer op.Close()

	res := &ResultTable{Statement: sql}
	for _, f := range op.Schema().Fields() {
		res.Columns = append(res.Columns, f.Name)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, executionFailure(err)
		}
		batch, err := op.Next(uint16(s.opts.BatchSize))
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, executionFailure(err)
		}
		res.Rows = append(res.Rows, batchRows(batch)...)
		batch.Release()
	}
	return res, nil
}

func batchRows(b *operators.RecordBatch) []Row {
	rows := make([]Row, b.RowCount)
	for r := range rows {
		row := make(Row, len(b.Columns))
		for c, col := range b.Columns {
			row[c] = valueAt(col, r)
		}
		rows[r] = row
	}
	return rows
}

func valueAt(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return int64(a.Value(i))
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		out := make(StructValue, a.NumField())
		for f := 0; f < a.NumField(); f++ {
			out[f] = StructField{Name: st.Field(f).Name, Value: valueAt(a.Field(f), i)}
		}
		return out
	}
	return arr.ValueStr(i)
}

// Render writes the table as ASCII, columns in schema order and rows in
// scan order.
func (r *ResultTable) Render(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s\n", r.Statement); err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	header := make([]any, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = c
	}
	table.Header(header...)
	rows := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatValue(v)
		}
		rows[i] = cells
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(r.Rows))
	return err
}
