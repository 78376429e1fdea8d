package project

import (
	"errors"
	"io"
	"nested-scan-go/operators"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

var innerFields = []arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "name", Type: arrow.BinaryTypes.String},
}

func nestedTestSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "struct", Type: arrow.StructOf(innerFields...)},
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "name", Type: arrow.BinaryTypes.String},
	}, nil)
}

// nestedRecord builds rows i in [from, to): struct{id: i+3, name: "aaa<i+1>"}, id i+1, name "test0<i+1>"
func nestedRecord(t *testing.T, from, to int) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(memory.DefaultAllocator, nestedTestSchema())
	defer b.Release()
	sb := b.Field(0).(*array.StructBuilder)
	sid := sb.FieldBuilder(0).(*array.Int64Builder)
	sname := sb.FieldBuilder(1).(*array.StringBuilder)
	id := b.Field(1).(*array.Int64Builder)
	name := b.Field(2).(*array.StringBuilder)
	for i := from; i < to; i++ {
		sb.Append(true)
		sid.Append(int64(i + 3))
		sname.Append("aaa" + string(rune('1'+i)))
		id.Append(int64(i + 1))
		name.Append("test0" + string(rune('1'+i)))
	}
	return b.NewRecord()
}

// writeParquet writes rec to dir/name with at most rowsPerGroup rows per row group.
func writeParquet(t *testing.T, dir, name string, rec arrow.Record, rowsPerGroup int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	props := parquet.NewWriterProperties(
		parquet.WithMaxRowGroupLength(rowsPerGroup),
		parquet.WithStats(true),
	)
	fw, err := pqarrow.NewFileWriter(rec.Schema(), f, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := fw.Write(rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return path
}

func openFile(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	return f
}

// countRows drains op in batches of n and returns the batch sizes seen.
func countRows(t *testing.T, op operators.Operator, n uint16) []uint64 {
	t.Helper()
	var sizes []uint64
	for {
		rb, err := op.Next(n)
		if errors.Is(err, io.EOF) {
			return sizes
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sizes = append(sizes, rb.RowCount)
		rb.Release()
	}
}
