package operators

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	ErrInvalidSchema = func(info string) error {
		return fmt.Errorf("invalid schema was provided. context: %s", info)
	}
)

type Operator interface {
	Next(uint16) (*RecordBatch, error)
	Schema() *arrow.Schema
	// Call Operator.Close() after Next returns an io.EOF to clean up resources
	Close() error
}
type RecordBatch struct {
	Schema   *arrow.Schema
	Columns  []arrow.Array
	RowCount uint64
}

type SchemaBuilder struct {
	fields []arrow.Field
}

type RecordBatchBuilder struct {
	SchemaBuilder *SchemaBuilder
}

func NewRecordBatchBuilder() *RecordBatchBuilder {
	return &RecordBatchBuilder{
		SchemaBuilder: &SchemaBuilder{
			fields: make([]arrow.Field, 0, 10),
		},
	}
}

func (sb *SchemaBuilder) WithField(name string, dtype arrow.DataType, nullable bool) *SchemaBuilder {
	sb.fields = append(sb.fields, arrow.Field{
		Name:     name,
		Type:     dtype,
		Nullable: nullable,
	})
	return sb
}

// WithStructField adds a struct column made of the given children.
func (sb *SchemaBuilder) WithStructField(name string, nullable bool, children ...arrow.Field) *SchemaBuilder {
	return sb.WithField(name, arrow.StructOf(children...), nullable)
}

func (sb *SchemaBuilder) Build() *arrow.Schema {
	return arrow.NewSchema(sb.fields, nil)
}
func (rbb *RecordBatchBuilder) Schema() *arrow.Schema {
	return arrow.NewSchema(rbb.SchemaBuilder.fields, nil)
}

// ValidateColumns checks that columns line up with schema: same width, same
// types, equal lengths, struct children as long as their parent and no nulls
// in non-nullable fields at any nesting level. The schema is always right.
func ValidateColumns(schema *arrow.Schema, columns []arrow.Array) error {
	if len(schema.Fields()) != len(columns) {
		return ErrInvalidSchema(fmt.Sprintf("schema has %d fields but %d columns were provided", len(schema.Fields()), len(columns)))
	}
	var errors []string
	rows := -1
	for i := 0; i < len(columns); i++ {
		field := schema.Field(i)
		col := columns[i]
		if col == nil {
			errors = append(errors, fmt.Sprintf("column '%s' at position %d is nil.", field.Name, i))
			continue
		}
		if !arrow.TypeEqual(col.DataType(), field.Type) {
			errors = append(errors,
				fmt.Sprintf("Type mismatch at position %d: column '%s' has type '%s', but schema expects '%s'.",
					i, field.Name, col.DataType(), field.Type))
			continue
		}
		if rows == -1 {
			rows = col.Len()
		} else if col.Len() != rows {
			errors = append(errors,
				fmt.Sprintf("Length mismatch at position %d: column '%s' has %d rows, expected %d.", i, field.Name, col.Len(), rows))
		}
		errors = append(errors, checkNulls(field.Name, field, col, nil)...)
	}
	if len(errors) > 0 {
		return ErrInvalidSchema(strings.Join(errors, " "))
	}
	return nil
}

// checkNulls reports nulls in non-nullable fields. valid is nil when every
// ancestor struct row is valid; nulls under a null parent row are allowed.
func checkNulls(path string, field arrow.Field, col arrow.Array, valid []bool) []string {
	var errors []string
	if !field.Nullable {
		if n := countNulls(col, valid); n > 0 {
			errors = append(errors, fmt.Sprintf("Nullability violation: non-nullable field '%s' has %d null entries.", path, n))
		}
	}
	st, ok := col.(*array.Struct)
	if !ok {
		return errors
	}
	childValid := valid
	if st.NullN() > 0 {
		childValid = make([]bool, st.Len())
		for j := range childValid {
			childValid[j] = st.IsValid(j) && (valid == nil || valid[j])
		}
	}
	stType := st.DataType().(*arrow.StructType)
	for i, child := range stType.Fields() {
		childArr := st.Field(i)
		childPath := path + "." + child.Name
		if childArr.Len() != st.Len() {
			errors = append(errors, fmt.Sprintf("Length mismatch: struct child '%s' has %d rows, parent has %d.", childPath, childArr.Len(), st.Len()))
			continue
		}
		errors = append(errors, checkNulls(childPath, child, childArr, childValid)...)
	}
	return errors
}

func countNulls(col arrow.Array, valid []bool) int {
	if valid == nil {
		return col.NullN()
	}
	n := 0
	for j := 0; j < col.Len() && j < len(valid); j++ {
		if valid[j] && col.IsNull(j) {
			n++
		}
	}
	return n
}

func (rbb *RecordBatchBuilder) NewRecordBatch(schema *arrow.Schema, columns []arrow.Array) (*RecordBatch, error) {
	if err := ValidateColumns(schema, columns); err != nil {
		return nil, err
	}
	var rows uint64
	if len(columns) > 0 {
		rows = uint64(columns[0].Len())
	}
	return &RecordBatch{
		Schema:   schema,
		Columns:  columns,
		RowCount: rows,
	}, nil
}

// FromRecord wraps an arrow record without copying. The batch holds its own
// reference to every column.
func FromRecord(rec arrow.Record) *RecordBatch {
	cols := make([]arrow.Array, rec.NumCols())
	for i := range cols {
		col := rec.Column(i)
		col.Retain()
		cols[i] = col
	}
	return &RecordBatch{
		Schema:   rec.Schema(),
		Columns:  cols,
		RowCount: uint64(rec.NumRows()),
	}
}

// ToRecord builds an arrow.Record sharing the batch's columns.
func (rb *RecordBatch) ToRecord() arrow.Record {
	return array.NewRecord(rb.Schema, rb.Columns, int64(rb.RowCount))
}

func (rb *RecordBatch) Release() {
	ReleaseArrays(rb.Columns)
}

func ReleaseArrays(arrs []arrow.Array) {
	for _, a := range arrs {
		if a != nil {
			a.Release()
		}
	}
}

// GenInt64Array generates an Int64 array
func (rbb *RecordBatchBuilder) GenInt64Array(values ...int64) arrow.Array {
	mem := memory.NewGoAllocator()
	builder := array.NewInt64Builder(mem)
	defer builder.Release()
	for _, v := range values {
		builder.Append(v)
	}
	return builder.NewArray()
}

// GenNullableInt64Array generates an Int64 array, nil entries become nulls
func (rbb *RecordBatchBuilder) GenNullableInt64Array(values ...*int64) arrow.Array {
	mem := memory.NewGoAllocator()
	builder := array.NewInt64Builder(mem)
	defer builder.Release()
	for _, v := range values {
		if v == nil {
			builder.AppendNull()
			continue
		}
		builder.Append(*v)
	}
	return builder.NewArray()
}

// GenStructArray zips already built children into a struct array, keeping
// the nullability of every child field.
func (rbb *RecordBatchBuilder) GenStructArray(children []arrow.Array, fields []arrow.Field) (arrow.Array, error) {
	if len(children) != len(fields) {
		return nil, ErrInvalidSchema(fmt.Sprintf("struct has %d fields but %d children were provided", len(fields), len(children)))
	}
	if len(children) == 0 {
		return nil, ErrInvalidSchema("struct needs at least one child")
	}
	n := children[0].Len()
	childData := make([]arrow.ArrayData, len(children))
	for i, c := range children {
		if c.Len() != n {
			return nil, ErrInvalidSchema(fmt.Sprintf("struct child '%s' has %d rows, expected %d", fields[i].Name, c.Len(), n))
		}
		if !arrow.TypeEqual(c.DataType(), fields[i].Type) {
			return nil, ErrInvalidSchema(fmt.Sprintf("struct child '%s' has type '%s', expected '%s'", fields[i].Name, c.DataType(), fields[i].Type))
		}
		childData[i] = c.Data()
	}
	data := array.NewData(arrow.StructOf(fields...), n, []*memory.Buffer{nil}, childData, 0, 0)
	defer data.Release()
	return array.NewStructData(data), nil
}
