package query

import (
	"fmt"
	"math"
	"nested-scan-go/Expr"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/xwb1989/sqlparser"
)

// statement is a parsed SELECT in the supported subset:
//
//	SELECT * | expr [AS alias], ... FROM table [WHERE pred] [LIMIT n]
type statement struct {
	sql        string
	table      string
	tableAlias string
	star       bool
	items      []*sqlparser.AliasedExpr
	where      sqlparser.Expr
	limit      *uint64
}

func parseStatement(sql string) (*statement, error) {
	parsed, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailure, err)
	}
	sel, ok := parsed.(*sqlparser.Select)
	if !ok {
		return nil, ErrUnsupported(fmt.Sprintf("only SELECT statements are supported, got %T", parsed))
	}
	switch {
	case sel.Distinct != "":
		return nil, ErrUnsupported("DISTINCT")
	case len(sel.GroupBy) > 0:
		return nil, ErrUnsupported("GROUP BY")
	case sel.Having != nil:
		return nil, ErrUnsupported("HAVING")
	case len(sel.OrderBy) > 0:
		return nil, ErrUnsupported("ORDER BY")
	case len(sel.From) != 1:
		return nil, ErrUnsupported("exactly one table must be named in FROM")
	}

	st := &statement{sql: sql}
	aliased, ok := sel.From[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return nil, ErrUnsupported("joins")
	}
	name, ok := aliased.Expr.(sqlparser.TableName)
	if !ok {
		return nil, ErrUnsupported("subqueries in FROM")
	}
	st.table = name.Name.String()
	st.tableAlias = aliased.As.String()

	for _, se := range sel.SelectExprs {
		switch e := se.(type) {
		case *sqlparser.StarExpr:
			st.star = true
		case *sqlparser.AliasedExpr:
			st.items = append(st.items, e)
		default:
			return nil, ErrUnsupported(fmt.Sprintf("select expression %s", sqlparser.String(se)))
		}
	}
	if st.star && len(st.items) > 0 {
		return nil, ErrUnsupported("mixing * with other select expressions")
	}

	if sel.Where != nil {
		st.where = sel.Where.Expr
	}
	if sel.Limit != nil {
		if sel.Limit.Offset != nil {
			return nil, ErrUnsupported("OFFSET")
		}
		v, ok := sel.Limit.Rowcount.(*sqlparser.SQLVal)
		if !ok || v.Type != sqlparser.IntVal {
			return nil, ErrUnsupported("LIMIT must be an integer literal")
		}
		n, err := strconv.ParseUint(string(v.Val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: LIMIT %s: %v", ErrExecutionFailure, v.Val, err)
		}
		st.limit = &n
	}
	return st, nil
}

// binder turns sqlparser expressions into Expr trees checked against the
// table schema.
type binder struct {
	schema *arrow.Schema
	table  string
	alias  string
}

func (b *binder) bindPredicate(e sqlparser.Expr) (Expr.Expression, error) {
	bound, err := b.bind(e, nil)
	if err != nil {
		return nil, err
	}
	dt, err := Expr.ExprDataType(bound, b.schema)
	if err != nil {
		return nil, executionFailure(err)
	}
	if dt.ID() != arrow.BOOL {
		return nil, fmt.Errorf("%w: WHERE clause %s is %s, not boolean", ErrExecutionFailure, sqlparser.String(e), dt)
	}
	return bound, nil
}

func (b *binder) bindSelect(items []*sqlparser.AliasedExpr) ([]Expr.Expression, error) {
	out := make([]Expr.Expression, 0, len(items))
	for _, item := range items {
		e, err := b.bind(item.Expr, nil)
		if err != nil {
			return nil, err
		}
		if !item.As.IsEmpty() {
			e = Expr.NewAlias(e, item.As.String())
		}
		out = append(out, e)
	}
	return out, nil
}

// bind converts e. hint is the type untyped literals should take, nil when
// the surrounding expression gives none.
func (b *binder) bind(e sqlparser.Expr, hint arrow.DataType) (Expr.Expression, error) {
	switch ex := e.(type) {
	case *sqlparser.ParenExpr:
		return b.bind(ex.Expr, hint)

	case *sqlparser.ColName:
		return b.column(ex)

	case *sqlparser.SQLVal:
		return literal(ex, hint, false)

	case sqlparser.BoolVal:
		return Expr.NewLiteralResolve(arrow.FixedWidthTypes.Boolean, bool(ex)), nil

	case *sqlparser.NullVal:
		return nil, ErrUnsupported("NULL literal, use IS NULL or IS NOT NULL")

	case *sqlparser.UnaryExpr:
		v, ok := ex.Expr.(*sqlparser.SQLVal)
		if ex.Operator != sqlparser.UMinusStr || !ok {
			return nil, ErrUnsupported(sqlparser.String(ex))
		}
		return literal(v, hint, true)

	case *sqlparser.AndExpr:
		return b.logical(ex.Left, Expr.And, ex.Right)

	case *sqlparser.OrExpr:
		return b.logical(ex.Left, Expr.Or, ex.Right)

	case *sqlparser.NotExpr:
		inner, err := b.bind(ex.Expr, nil)
		if err != nil {
			return nil, err
		}
		return Expr.NewNotExpr(inner), nil

	case *sqlparser.IsExpr:
		inner, err := b.bind(ex.Expr, nil)
		if err != nil {
			return nil, err
		}
		switch ex.Operator {
		case sqlparser.IsNullStr:
			return Expr.NewIsNullExpr(inner), nil
		case sqlparser.IsNotNullStr:
			return Expr.NewNullCheckExpr(inner), nil
		}
		return nil, ErrUnsupported(sqlparser.String(ex))

	case *sqlparser.ComparisonExpr:
		return b.comparison(ex)

	case *sqlparser.BinaryExpr:
		op, ok := arithmeticOps[ex.Operator]
		if !ok {
			return nil, ErrUnsupported(sqlparser.String(ex))
		}
		return b.pair(ex.Left, op, ex.Right)

	case *sqlparser.FuncExpr:
		return b.function(ex)
	}
	return nil, ErrUnsupported(sqlparser.String(e))
}

var comparisonOps = map[string]Expr.BinaryOperator{
	sqlparser.EqualStr:        Expr.Equal,
	sqlparser.NotEqualStr:     Expr.NotEqual,
	sqlparser.LessThanStr:     Expr.LessThan,
	sqlparser.LessEqualStr:    Expr.LessThanOrEqual,
	sqlparser.GreaterThanStr:  Expr.GreaterThan,
	sqlparser.GreaterEqualStr: Expr.GreaterThanOrEqual,
	sqlparser.LikeStr:         Expr.Like,
}

var arithmeticOps = map[string]Expr.BinaryOperator{
	sqlparser.PlusStr:  Expr.Addition,
	sqlparser.MinusStr: Expr.Subtraction,
	sqlparser.MultStr:  Expr.Multiplication,
	sqlparser.DivStr:   Expr.Division,
}

var functions = map[string]Expr.SupportedFunction{
	"upper": Expr.Upper,
	"lower": Expr.Lower,
	"abs":   Expr.Abs,
	"round": Expr.Round,
}

func (b *binder) comparison(ex *sqlparser.ComparisonExpr) (Expr.Expression, error) {
	if ex.Operator == sqlparser.NotLikeStr {
		like, err := b.pair(ex.Left, Expr.Like, ex.Right)
		if err != nil {
			return nil, err
		}
		return Expr.NewNotExpr(like), nil
	}
	op, ok := comparisonOps[ex.Operator]
	if !ok {
		return nil, ErrUnsupported(fmt.Sprintf("operator %q", ex.Operator))
	}
	if ex.Escape != nil {
		return nil, ErrUnsupported("LIKE ... ESCAPE")
	}
	return b.pair(ex.Left, op, ex.Right)
}

func (b *binder) logical(l sqlparser.Expr, op Expr.BinaryOperator, r sqlparser.Expr) (Expr.Expression, error) {
	left, err := b.bind(l, nil)
	if err != nil {
		return nil, err
	}
	right, err := b.bind(r, nil)
	if err != nil {
		return nil, err
	}
	return Expr.NewBinaryExpr(left, op, right), nil
}

// pair binds both operands of a binary operator. A literal operand takes the
// type of the other side so `id = 1` compares int64 with int64.
func (b *binder) pair(l sqlparser.Expr, op Expr.BinaryOperator, r sqlparser.Expr) (Expr.Expression, error) {
	var left, right Expr.Expression
	var err error
	switch {
	case isLiteral(l) && !isLiteral(r):
		if right, err = b.bind(r, nil); err != nil {
			return nil, err
		}
		if left, err = b.bind(l, b.typeOf(right)); err != nil {
			return nil, err
		}
	default:
		if left, err = b.bind(l, nil); err != nil {
			return nil, err
		}
		if right, err = b.bind(r, b.typeOf(left)); err != nil {
			return nil, err
		}
	}
	if op.IsComparison() || op == Expr.Like {
		lt, rt := b.typeOf(left), b.typeOf(right)
		if lt != nil && rt != nil && !arrow.TypeEqual(lt, rt) {
			return nil, executionFailure(Expr.ErrCantCompareDifferentTypes(lt, rt))
		}
	}
	return Expr.NewBinaryExpr(left, op, right), nil
}

func (b *binder) function(ex *sqlparser.FuncExpr) (Expr.Expression, error) {
	fn, ok := functions[ex.Name.Lowered()]
	if !ok || len(ex.Exprs) != 1 || ex.Distinct {
		return nil, ErrUnsupported(sqlparser.String(ex))
	}
	arg, ok := ex.Exprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return nil, ErrUnsupported(sqlparser.String(ex))
	}
	inner, err := b.bind(arg.Expr, nil)
	if err != nil {
		return nil, err
	}
	return Expr.NewScalarFunction(fn, inner), nil
}

func (b *binder) typeOf(e Expr.Expression) arrow.DataType {
	dt, err := Expr.ExprDataType(e, b.schema)
	if err != nil {
		return nil
	}
	return dt
}

// column resolves flat (`name`), table qualified (`base_table.name`) and
// nested (`struct`.`name`) column references.
func (b *binder) column(c *sqlparser.ColName) (Expr.Expression, error) {
	var segments []string
	if !c.Qualifier.Qualifier.IsEmpty() {
		segments = append(segments, c.Qualifier.Qualifier.String())
	}
	if !c.Qualifier.Name.IsEmpty() {
		segments = append(segments, c.Qualifier.Name.String())
	}
	segments = append(segments, c.Name.String())

	if len(segments) > 1 && b.isTableName(segments[0]) && len(b.schema.FieldIndices(segments[0])) == 0 {
		segments = segments[1:]
	}
	col := Expr.NewNestedColumnResolve(segments[0], segments[1:]...)
	if _, err := col.Resolve(b.schema); err != nil {
		return nil, executionFailure(err)
	}
	return col, nil
}

func (b *binder) isTableName(s string) bool {
	return strings.EqualFold(s, b.table) || (b.alias != "" && strings.EqualFold(s, b.alias))
}

func isLiteral(e sqlparser.Expr) bool {
	switch ex := e.(type) {
	case *sqlparser.SQLVal, sqlparser.BoolVal:
		return true
	case *sqlparser.UnaryExpr:
		_, ok := ex.Expr.(*sqlparser.SQLVal)
		return ok
	case *sqlparser.ParenExpr:
		return isLiteral(ex.Expr)
	}
	return false
}

// literal converts a sql value, coercing it to hint when one is given.
func literal(v *sqlparser.SQLVal, hint arrow.DataType, negate bool) (*Expr.LiteralResolve, error) {
	raw := string(v.Val)
	if negate {
		if v.Type != sqlparser.IntVal && v.Type != sqlparser.FloatVal {
			return nil, ErrUnsupported("negated non numeric literal")
		}
		raw = "-" + raw
	}
	mismatch := func() error {
		return fmt.Errorf("%w: literal %s cannot be compared with %s", ErrExecutionFailure, sqlparser.String(v), hint)
	}

	switch v.Type {
	case sqlparser.StrVal:
		if hint == nil || hint.ID() == arrow.STRING {
			return Expr.NewLiteralResolve(arrow.BinaryTypes.String, raw), nil
		}
		if hint.ID() == arrow.LARGE_STRING {
			return Expr.NewLiteralResolve(arrow.BinaryTypes.LargeString, raw), nil
		}
		return nil, mismatch()

	case sqlparser.IntVal:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: integer literal %s: %v", ErrExecutionFailure, raw, err)
		}
		if hint == nil {
			return Expr.NewLiteralResolve(arrow.PrimitiveTypes.Int64, n), nil
		}
		switch hint.ID() {
		case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
			arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
			if !intFits(hint.ID(), n) {
				return nil, fmt.Errorf("%w: integer literal %s is out of range for %s", ErrExecutionFailure, raw, hint)
			}
			return Expr.NewLiteralResolve(hint, n), nil
		case arrow.FLOAT32, arrow.FLOAT64:
			return Expr.NewLiteralResolve(hint, float64(n)), nil
		}
		return nil, mismatch()

	case sqlparser.FloatVal:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: float literal %s: %v", ErrExecutionFailure, raw, err)
		}
		if hint == nil {
			return Expr.NewLiteralResolve(arrow.PrimitiveTypes.Float64, f), nil
		}
		switch hint.ID() {
		case arrow.FLOAT32, arrow.FLOAT64:
			return Expr.NewLiteralResolve(hint, f), nil
		}
		return nil, mismatch()
	}
	return nil, ErrUnsupported(fmt.Sprintf("literal %s", sqlparser.String(v)))
}

// intFits reports whether n is representable in the integer type id.
func intFits(id arrow.Type, n int64) bool {
	switch id {
	case arrow.INT8:
		return n >= math.MinInt8 && n <= math.MaxInt8
	case arrow.INT16:
		return n >= math.MinInt16 && n <= math.MaxInt16
	case arrow.INT32:
		return n >= math.MinInt32 && n <= math.MaxInt32
	case arrow.UINT8:
		return n >= 0 && n <= math.MaxUint8
	case arrow.UINT16:
		return n >= 0 && n <= math.MaxUint16
	case arrow.UINT32:
		return n >= 0 && n <= math.MaxUint32
	case arrow.UINT64:
		return n >= 0
	}
	return true
}
