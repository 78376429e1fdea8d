package dataset

import (
	"fmt"
	"nested-scan-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Schema is the fixed layout of the harness table: a non-null struct column
// followed by two flat columns. The flat `name` and the nested `struct.name`
// share a leaf name once written to parquet.
func Schema() *arrow.Schema {
	return operators.NewRecordBatchBuilder().SchemaBuilder.
		WithStructField("struct", false,
			arrow.Field{Name: "id", Type: arrow.PrimitiveTypes.Int64},
			arrow.Field{Name: "name", Type: arrow.BinaryTypes.String}).
		WithField("id", arrow.PrimitiveTypes.Int64, true).
		WithField("name", arrow.BinaryTypes.String, false).
		Build()
}

type row struct {
	structID   int64
	structName string
	id         int64
	name       string
}

var rows = []row{
	{3, "aaa1", 1, "test01"},
	{4, "aaa2", 2, "test02"},
}

// NewBatch builds the two row record batch. The caller owns the record.
func NewBatch(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	schema := Schema()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	sb := b.Field(0).(*array.StructBuilder)
	sid := sb.FieldBuilder(0).(*array.Int64Builder)
	sname := sb.FieldBuilder(1).(*array.StringBuilder)
	id := b.Field(1).(*array.Int64Builder)
	name := b.Field(2).(*array.StringBuilder)
	for _, r := range rows {
		sb.Append(true)
		sid.Append(r.structID)
		sname.Append(r.structName)
		id.Append(r.id)
		name.Append(r.name)
	}
	rec := b.NewRecord()
	if err := Validate(schema, rec); err != nil {
		rec.Release()
		return nil, err
	}
	return rec, nil
}

// Validate checks rec against schema at every nesting level.
func Validate(schema *arrow.Schema, rec arrow.Record) error {
	if rec == nil {
		return &StorageError{Kind: ErrEncodingFailure, Err: fmt.Errorf("record is nil")}
	}
	if err := operators.ValidateColumns(schema, rec.Columns()); err != nil {
		return &StorageError{Kind: ErrEncodingFailure, Err: err}
	}
	return nil
}

// SameShape reports whether two schemas agree on names, types, nesting and
// nullability. Field metadata is ignored, parquet readers attach their own.
func SameShape(a, b *arrow.Schema) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.NumFields() != b.NumFields() {
		return false
	}
	for i := 0; i < a.NumFields(); i++ {
		fa, fb := a.Field(i), b.Field(i)
		if fa.Name != fb.Name || fa.Nullable != fb.Nullable {
			return false
		}
		if !arrow.TypeEqual(fa.Type, fb.Type) {
			return false
		}
	}
	return true
}
