package filter

import (
	"context"
	"errors"
	"io"
	"nested-scan-go/Expr"
	"nested-scan-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
)

var (
	_ = (operators.Operator)(&FilterExec{})
)

var (
	ErrInvalidPredicate = func(info string) error {
		return errors.New("predicates passed to FilterExec are invalid: " + info)
	}
)

// FilterExec is an operator that filters input records according to a predicate expression.
// Rows where the predicate is null are dropped, same as false.
type FilterExec struct {
	input     operators.Operator
	schema    *arrow.Schema
	predicate Expr.Expression
	done      bool
}

func NewFilterExec(input operators.Operator, pred Expr.Expression) (*FilterExec, error) {
	if pred == nil {
		return nil, ErrInvalidPredicate("<nil>")
	}
	if err := validPredicates(pred, input.Schema()); err != nil {
		return nil, err
	}
	return &FilterExec{
		input:     input,
		predicate: pred,
		schema:    input.Schema(),
	}, nil
}

// Next pulls from the child until at least one row survives or the child is
// exhausted, so callers never see empty batches mid stream.
func (f *FilterExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, errors.New("must pass in wanted batch size > 0")
	}
	for !f.done {
		childBatch, err := f.input.Next(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				f.done = true
				return nil, io.EOF
			}
			return nil, err
		}
		out, err := f.apply(childBatch)
		if err != nil {
			return nil, err
		}
		if out.RowCount > 0 {
			return out, nil
		}
		out.Release()
	}
	return nil, io.EOF
}

func (f *FilterExec) apply(childBatch *operators.RecordBatch) (*operators.RecordBatch, error) {
	defer childBatch.Release()
	booleanMask, err := Expr.EvalExpression(f.predicate, childBatch)
	if err != nil {
		return nil, err
	}
	defer booleanMask.Release()
	boolArr, ok := booleanMask.(*array.Boolean)
	if !ok {
		return nil, errors.New("predicate did not evaluate to boolean array")
	}
	filteredCol := make([]arrow.Array, len(childBatch.Columns))
	for i, col := range childBatch.Columns {
		filteredCol[i], err = ApplyBooleanMask(col, boolArr)
		if err != nil {
			operators.ReleaseArrays(filteredCol)
			return nil, err
		}
	}
	var size uint64
	if len(filteredCol) > 0 {
		size = uint64(filteredCol[0].Len())
	}
	return &operators.RecordBatch{
		Schema:   childBatch.Schema,
		Columns:  filteredCol,
		RowCount: size,
	}, nil
}

func (f *FilterExec) Schema() *arrow.Schema {
	return f.schema
}

func (f *FilterExec) Close() error {
	return f.input.Close()
}

// ApplyBooleanMask keeps the rows of col where mask is true. Struct columns
// are filtered together with their children.
func ApplyBooleanMask(col arrow.Array, mask *array.Boolean) (arrow.Array, error) {
	datum, err := compute.Filter(
		context.TODO(),
		compute.NewDatum(col),
		compute.NewDatum(mask),
		*compute.DefaultFilterOptions(),
	)
	if err != nil {
		return nil, err
	}
	defer datum.Release()

	arr := datum.(*compute.ArrayDatum).MakeArray()
	return arr, nil
}

func validPredicates(pred Expr.Expression, schema *arrow.Schema) error {
	dt, err := Expr.ExprDataType(pred, schema)
	if err != nil {
		return ErrInvalidPredicate(err.Error())
	}
	if dt.ID() != arrow.BOOL {
		return ErrInvalidPredicate(pred.String() + " is not boolean")
	}
	return checkOperands(pred, schema)
}

func checkOperands(pred Expr.Expression, schema *arrow.Schema) error {
	switch p := pred.(type) {
	case *Expr.BinaryExpr:
		dt1, err := Expr.ExprDataType(p.Left, schema)
		if err != nil {
			return ErrInvalidPredicate(err.Error())
		}
		dt2, err := Expr.ExprDataType(p.Right, schema)
		if err != nil {
			return ErrInvalidPredicate(err.Error())
		}
		switch {
		case p.Op == Expr.And || p.Op == Expr.Or:
			if dt1.ID() != arrow.BOOL || dt2.ID() != arrow.BOOL {
				return ErrInvalidPredicate(p.String() + " combines non boolean operands")
			}
		case p.Op == Expr.Like:
			if dt1.ID() != arrow.STRING || dt2.ID() != arrow.STRING {
				return ErrInvalidPredicate(p.String() + " LIKE needs string operands")
			}
		case p.Op.IsComparison():
			if !arrow.TypeEqual(dt1, dt2) {
				return ErrInvalidPredicate(Expr.ErrCantCompareDifferentTypes(dt1, dt2).Error())
			}
			if dt1.ID() == arrow.STRUCT {
				return ErrInvalidPredicate(p.String() + " compares whole struct values")
			}
		}
		if err := checkOperands(p.Left, schema); err != nil {
			return err
		}
		return checkOperands(p.Right, schema)
	case *Expr.NotExpr:
		dt, err := Expr.ExprDataType(p.Expr, schema)
		if err != nil {
			return ErrInvalidPredicate(err.Error())
		}
		if dt.ID() != arrow.BOOL {
			return ErrInvalidPredicate(p.String() + " negates a non boolean")
		}
		return checkOperands(p.Expr, schema)
	case *Expr.NullCheckExpr:
		return checkOperands(p.Expr, schema)
	}
	return nil
}
