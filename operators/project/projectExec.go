package project

import (
	"errors"
	"fmt"
	"io"
	"nested-scan-go/Expr"
	"nested-scan-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
)

var (
	_ = (operators.Operator)(&ProjectExec{})
)

var (
	ErrEmptyProjection = errors.New("no expressions passed in to be projected")
)

// ProjectExec evaluates one expression per output column over every input batch.
// sql: select id, `struct`.name as inner_name from t
type ProjectExec struct {
	input  operators.Operator
	exprs  []Expr.Expression
	schema *arrow.Schema
	done   bool
}

func NewProjectExec(input operators.Operator, exprs []Expr.Expression) (*ProjectExec, error) {
	if len(exprs) == 0 {
		return nil, ErrEmptyProjection
	}
	schema, err := projectedSchema(input.Schema(), exprs)
	if err != nil {
		return nil, err
	}
	return &ProjectExec{
		input:  input,
		exprs:  exprs,
		schema: schema,
	}, nil
}

func projectedSchema(in *arrow.Schema, exprs []Expr.Expression) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(exprs))
	seen := make(map[string]struct{}, len(exprs))
	for _, e := range exprs {
		dt, err := Expr.ExprDataType(e, in)
		if err != nil {
			return nil, err
		}
		name := Expr.ExprName(e)
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate output column %q, use an alias", name)
		}
		seen[name] = struct{}{}
		fields = append(fields, arrow.Field{
			Name:     name,
			Type:     dt,
			Nullable: nullable(e, in),
		})
	}
	return arrow.NewSchema(fields, nil), nil
}

// plain column references keep the nullability of their source field,
// everything computed is nullable
func nullable(e Expr.Expression, in *arrow.Schema) bool {
	if a, ok := e.(*Expr.Alias); ok {
		return nullable(a.Expr, in)
	}
	col, ok := e.(*Expr.ColumnResolve)
	if !ok {
		return true
	}
	f, err := col.Resolve(in)
	if err != nil {
		return true
	}
	return f.Nullable
}

func (p *ProjectExec) Next(n uint16) (*operators.RecordBatch, error) {
	if p.done {
		return nil, io.EOF
	}
	childBatch, err := p.input.Next(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			p.done = true
		}
		return nil, err
	}
	defer childBatch.Release()

	cols := make([]arrow.Array, len(p.exprs))
	for i, e := range p.exprs {
		arr, err := Expr.EvalExpression(e, childBatch)
		if err != nil {
			operators.ReleaseArrays(cols)
			return nil, err
		}
		cols[i] = arr
	}
	return &operators.RecordBatch{
		Schema:   p.schema,
		Columns:  cols,
		RowCount: childBatch.RowCount,
	}, nil
}

func (p *ProjectExec) Schema() *arrow.Schema {
	return p.schema
}

func (p *ProjectExec) Close() error {
	return p.input.Close()
}

// ProjectSchemaFilterDown keeps only the requested columns, in the order
// requested, with schema and columns kept aligned.
// returns error if a column doesnt exist
func ProjectSchemaFilterDown(schema *arrow.Schema, cols []arrow.Array, keepCols ...string) (*arrow.Schema, []arrow.Array, error) {
	if len(keepCols) == 0 {
		return arrow.NewSchema([]arrow.Field{}, nil), nil, errors.New("no columns passed in")
	}

	// Build map: columnName -> original index
	fieldIndex := make(map[string]int)
	for i, f := range schema.Fields() {
		fieldIndex[f.Name] = i
	}

	newFields := make([]arrow.Field, 0, len(keepCols))
	newCols := make([]arrow.Array, 0, len(keepCols))

	for _, name := range keepCols {
		idx, exists := fieldIndex[name]
		if !exists {
			return arrow.NewSchema([]arrow.Field{}, nil), []arrow.Array{}, ErrUnknownColumn(name)
		}

		newFields = append(newFields, schema.Field(idx))
		newCols = append(newCols, cols[idx])
	}

	newSchema := arrow.NewSchema(newFields, nil)
	return newSchema, newCols, nil
}
