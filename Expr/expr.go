package Expr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"nested-scan-go/operators"
	"regexp"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	ErrUnsupportedExpression = func(info string) error {
		return fmt.Errorf("unsupported expression passed to EvalExpression: %s", info)
	}
	ErrCantCompareDifferentTypes = func(leftType, rightType arrow.DataType) error {
		return fmt.Errorf("cannot compare different data types: %s and %s", leftType, rightType)
	}
	ErrUnknownColumn = func(name string) error {
		return fmt.Errorf("unknown column %q", name)
	}
)

type BinaryOperator int

const (
	// arithmetic
	Addition       BinaryOperator = 1
	Subtraction    BinaryOperator = 2
	Multiplication BinaryOperator = 3
	Division       BinaryOperator = 4
	// comparison
	Equal              BinaryOperator = 6
	NotEqual           BinaryOperator = 7
	LessThan           BinaryOperator = 8
	LessThanOrEqual    BinaryOperator = 9
	GreaterThan        BinaryOperator = 10
	GreaterThanOrEqual BinaryOperator = 11
	// logical
	And BinaryOperator = 12
	Or  BinaryOperator = 13
	// RegEx expressions
	Like BinaryOperator = 14 // where column_name like "patte%n_with_wi%dcard_"
)

var binaryOperatorNames = map[BinaryOperator]string{
	Addition:           "+",
	Subtraction:        "-",
	Multiplication:     "*",
	Division:           "/",
	Equal:              "=",
	NotEqual:           "!=",
	LessThan:           "<",
	LessThanOrEqual:    "<=",
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
	And:                "AND",
	Or:                 "OR",
	Like:               "LIKE",
}

func (op BinaryOperator) String() string {
	if s, ok := binaryOperatorNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// IsComparison reports whether op yields a boolean from two same-typed inputs.
func (op BinaryOperator) IsComparison() bool {
	switch op {
	case Equal, NotEqual, LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual:
		return true
	}
	return false
}

type SupportedFunction int

const (
	Upper SupportedFunction = 1
	Lower SupportedFunction = 2
	Abs   SupportedFunction = 3
	Round SupportedFunction = 4
)

var (
	_ = (Expression)(&Alias{})
	_ = (Expression)(&ColumnResolve{})
	_ = (Expression)(&LiteralResolve{})
	_ = (Expression)(&BinaryExpr{})
	_ = (Expression)(&ScalarFunction{})
	_ = (Expression)(&CastExpr{})
	_ = (Expression)(&NullCheckExpr{})
	_ = (Expression)(&NotExpr{})
)

/*
Eval(expr):

	match expr:
	    Literal(x) -> return x
	    Column(name) -> return array of that column
	    BinaryExpr(left > right) -> eval left, eval right, apply operator
	    ScalarFunction(upper(name)) -> evaluate function
	    Alias(expr, name) -> just a name wrapper
*/
type Expression interface {
	// empty method, only for the sake of polymorphism
	ExprNode()
	fmt.Stringer
}

func EvalExpression(expr Expression, batch *operators.RecordBatch) (arrow.Array, error) {
	switch e := expr.(type) {
	case *Alias:
		return EvalAlias(e, batch)
	case *ColumnResolve:
		return EvalColumn(e, batch)
	case *LiteralResolve:
		return EvalLiteral(e, batch)
	case *BinaryExpr:
		return EvalBinary(e, batch)
	case *ScalarFunction:
		return EvalScalarFunction(e, batch)
	case *CastExpr:
		return EvalCast(e, batch)
	case *NullCheckExpr:
		return EvalNullCheckMask(e, batch)
	case *NotExpr:
		return EvalNot(e, batch)
	default:
		if expr == nil {
			return nil, ErrUnsupportedExpression("<nil>")
		}
		return nil, ErrUnsupportedExpression(expr.String())
	}
}

func ExprDataType(e Expression, inputSchema *arrow.Schema) (arrow.DataType, error) {
	switch ex := e.(type) {

	case *LiteralResolve:
		return ex.Type, nil

	case *ColumnResolve:
		field, err := ex.Resolve(inputSchema)
		if err != nil {
			return nil, err
		}
		return field.Type, nil
	case *Alias:
		// alias does NOT change type
		return ExprDataType(ex.Expr, inputSchema)

	case *CastExpr:
		return ex.TargetType, nil

	case *BinaryExpr:
		leftType, err := ExprDataType(ex.Left, inputSchema)
		if err != nil {
			return nil, err
		}
		rightType, err := ExprDataType(ex.Right, inputSchema)
		if err != nil {
			return nil, err
		}
		return inferBinaryType(leftType, ex.Op, rightType)

	case *ScalarFunction:
		argType, err := ExprDataType(ex.Arguments, inputSchema)
		if err != nil {
			return nil, err
		}
		return inferScalarFunctionType(ex.Function, argType)
	case *NullCheckExpr, *NotExpr:
		return arrow.FixedWidthTypes.Boolean, nil

	default:
		if e == nil {
			return nil, ErrUnsupportedExpression("<nil>")
		}
		return nil, ErrUnsupportedExpression(ex.String())
	}
}

// ExprName is the output column name a projection of e produces.
func ExprName(e Expression) string {
	switch ex := e.(type) {
	case *Alias:
		return ex.Name
	case *ColumnResolve:
		if len(ex.Path) == 0 {
			return ex.Name
		}
		return ex.Path[len(ex.Path)-1]
	default:
		return e.String()
	}
}

func NewExpressions(exprs ...Expression) []Expression {
	return exprs
}

/*
Alias | sql: select col1 as new_name from table_source
updates the column name in the output schema.
*/
type Alias struct {
	Expr Expression
	Name string
}

func NewAlias(expr Expression, name string) *Alias {
	return &Alias{
		Expr: expr,
		Name: name,
	}
}

func EvalAlias(a *Alias, batch *operators.RecordBatch) (arrow.Array, error) {
	return EvalExpression(a.Expr, batch)
}
func (a *Alias) ExprNode() {}
func (a *Alias) String() string {
	return fmt.Sprintf("Alias(%s AS %s)", a.Expr, a.Name)

}

// resolves the arrow array corresponding to name passed in
// sql: select age
// Path walks into struct children: Name "struct", Path ["name"] is struct.name
type ColumnResolve struct {
	Name string
	Path []string
}

func NewColumnResolve(name string) *ColumnResolve {
	return &ColumnResolve{Name: name}
}

func NewNestedColumnResolve(name string, path ...string) *ColumnResolve {
	return &ColumnResolve{Name: name, Path: path}
}

// Segments is the full path from the top level field down to the leaf.
func (c *ColumnResolve) Segments() []string {
	return append([]string{c.Name}, c.Path...)
}

// Resolve finds the field c refers to in schema.
func (c *ColumnResolve) Resolve(schema *arrow.Schema) (arrow.Field, error) {
	idx := schema.FieldIndices(c.Name)
	if len(idx) == 0 {
		return arrow.Field{}, ErrUnknownColumn(c.dotted())
	}
	field := schema.Field(idx[0])
	for _, p := range c.Path {
		st, ok := field.Type.(*arrow.StructType)
		if !ok {
			return arrow.Field{}, ErrUnknownColumn(c.dotted())
		}
		child, ok := st.FieldByName(p)
		if !ok {
			return arrow.Field{}, ErrUnknownColumn(c.dotted())
		}
		field = child
	}
	return field, nil
}

func (c *ColumnResolve) dotted() string {
	return strings.Join(c.Segments(), ".")
}

func EvalColumn(c *ColumnResolve, batch *operators.RecordBatch) (arrow.Array, error) {
	// schema and columns are always aligned
	for i, f := range batch.Schema.Fields() {
		if f.Name != c.Name {
			continue
		}
		col := batch.Columns[i]
		for _, p := range c.Path {
			st, ok := col.(*array.Struct)
			if !ok {
				return nil, fmt.Errorf("column %s is not a struct", c.dotted())
			}
			childIdx, ok := st.DataType().(*arrow.StructType).FieldIdx(p)
			if !ok {
				return nil, fmt.Errorf("column %s not found", c.dotted())
			}
			col = st.Field(childIdx)
		}
		col.Retain()
		return col, nil
	}
	return nil, fmt.Errorf("column %s not found", c.dotted())
}
func (c *ColumnResolve) ExprNode() {}
func (c *ColumnResolve) String() string {
	return fmt.Sprintf("Column(%s)", c.dotted())
}

// Evaluates to a column of length = batch-size, filled with this literal.
// sql: select 1
type LiteralResolve struct {
	Type arrow.DataType
	// dont forget to cast the value. so string("hello") not just "hello"
	Value any
}

func NewLiteralResolve(Type arrow.DataType, Value any) *LiteralResolve {
	var castVal any

	switch v := Value.(type) {
	case int:
		castVal = castInt(Type, int64(v))
	case int64:
		castVal = castInt(Type, v)
	case string:
		castVal = v
	case bool:
		castVal = v
	case float64:
		switch Type.ID() {
		case arrow.FLOAT32:
			castVal = float32(v)
		default:
			castVal = v
		}
	default:
		castVal = Value
	}
	return &LiteralResolve{Type: Type, Value: castVal}
}

func castInt(t arrow.DataType, v int64) any {
	switch t.ID() {
	case arrow.INT8:
		return int8(v)
	case arrow.INT16:
		return int16(v)
	case arrow.INT32:
		return int32(v)
	case arrow.INT64:
		return v
	case arrow.UINT8:
		return uint8(v)
	case arrow.UINT16:
		return uint16(v)
	case arrow.UINT32:
		return uint32(v)
	case arrow.UINT64:
		return uint64(v)
	case arrow.FLOAT32:
		return float32(v)
	case arrow.FLOAT64:
		return float64(v)
	default:
		// not a numeric Arrow type → store original
		return v
	}
}

func EvalLiteral(l *LiteralResolve, batch *operators.RecordBatch) (arrow.Array, error) {
	n := int(batch.RowCount)
	mem := memory.DefaultAllocator

	switch l.Type.ID() {
	case arrow.BOOL:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		v := l.Value.(bool)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.INT8:
		b := array.NewInt8Builder(mem)
		defer b.Release()
		v := l.Value.(int8)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.INT16:
		b := array.NewInt16Builder(mem)
		defer b.Release()
		v := l.Value.(int16)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.INT32:
		b := array.NewInt32Builder(mem)
		defer b.Release()
		v := l.Value.(int32)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.INT64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		v := l.Value.(int64)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.UINT8:
		b := array.NewUint8Builder(mem)
		defer b.Release()
		v := l.Value.(uint8)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.UINT16:
		b := array.NewUint16Builder(mem)
		defer b.Release()
		v := l.Value.(uint16)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.UINT32:
		b := array.NewUint32Builder(mem)
		defer b.Release()
		v := l.Value.(uint32)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.UINT64:
		b := array.NewUint64Builder(mem)
		defer b.Release()
		v := l.Value.(uint64)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.FLOAT32:
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		v := l.Value.(float32)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.FLOAT64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		v := l.Value.(float64)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.STRING:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		v := l.Value.(string)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.BINARY:
		b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
		defer b.Release()
		v := l.Value.([]byte)
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	case arrow.NULL:
		b := array.NewNullBuilder(mem)
		defer b.Release()
		for i := 0; i < n; i++ {
			b.AppendNull()
		}
		return b.NewArray(), nil

	default:
		return nil, fmt.Errorf("literal type %s not supported", l.Type)
	}
}

func (l *LiteralResolve) ExprNode() {}
func (l *LiteralResolve) String() string {
	if s, ok := l.Value.(string); ok {
		return fmt.Sprintf("Literal(%q)", s)
	}
	return fmt.Sprintf("Literal(%v)", l.Value)
}

type BinaryExpr struct {
	Left  Expression
	Op    BinaryOperator
	Right Expression
}

func NewBinaryExpr(left Expression, op BinaryOperator, right Expression) *BinaryExpr {
	return &BinaryExpr{
		Left:  left,
		Op:    op,
		Right: right,
	}
}

var compareFunctions = map[BinaryOperator]string{
	Equal:              "equal",
	NotEqual:           "not_equal",
	LessThan:           "less",
	LessThanOrEqual:    "less_equal",
	GreaterThan:        "greater",
	GreaterThanOrEqual: "greater_equal",
	And:                "and_kleene",
	Or:                 "or_kleene",
}

func EvalBinary(b *BinaryExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	leftArr, err := EvalExpression(b.Left, batch)
	if err != nil {
		return nil, err
	}
	defer leftArr.Release()
	rightArr, err := EvalExpression(b.Right, batch)
	if err != nil {
		return nil, err
	}
	defer rightArr.Release()

	ctx := context.TODO()
	opt := compute.ArithmeticOptions{}
	switch b.Op {
	// arithmetic
	case Addition:
		datum, err := compute.Add(ctx, opt, compute.NewDatum(leftArr), compute.NewDatum(rightArr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)
	case Subtraction:
		datum, err := compute.Subtract(ctx, opt, compute.NewDatum(leftArr), compute.NewDatum(rightArr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)
	case Multiplication:
		datum, err := compute.Multiply(ctx, opt, compute.NewDatum(leftArr), compute.NewDatum(rightArr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)
	case Division:
		datum, err := compute.Divide(ctx, opt, compute.NewDatum(leftArr), compute.NewDatum(rightArr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)

	// comparisons and logical operators return a boolean array
	case Equal, NotEqual, LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual, And, Or:
		if !arrow.TypeEqual(leftArr.DataType(), rightArr.DataType()) {
			return nil, ErrCantCompareDifferentTypes(leftArr.DataType(), rightArr.DataType())
		}
		datum, err := compute.CallFunction(ctx, compareFunctions[b.Op], nil, compute.NewDatum(leftArr), compute.NewDatum(rightArr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)
	case Like:
		leftStr, ok := leftArr.(*array.String)
		if !ok || rightArr.DataType().ID() != arrow.STRING {
			return nil, errors.New("binary operator Like only works on arrays of strings")
		}
		filterBuilder := array.NewBooleanBuilder(memory.NewGoAllocator())
		defer filterBuilder.Release()
		if rightArr.Len() == 0 {
			return filterBuilder.NewArray(), nil
		}
		re, err := regexp.Compile(compileSqlRegEx(rightArr.ValueStr(0)))
		if err != nil {
			return nil, err
		}
		for i := 0; i < leftStr.Len(); i++ {
			if leftStr.IsNull(i) {
				filterBuilder.AppendNull()
				continue
			}
			filterBuilder.Append(re.MatchString(leftStr.Value(i)))
		}
		return filterBuilder.NewArray(), nil
	}
	return nil, fmt.Errorf("binary operator %s not supported", b.Op)
}
func (b *BinaryExpr) ExprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("BinaryExpr(%s %s %s)", b.Left, b.Op, b.Right)
}
func unpackDatum(d compute.Datum) (arrow.Array, error) {
	defer d.Release()
	array, ok := d.(*compute.ArrayDatum)
	if !ok {
		return nil, fmt.Errorf("datum %v is not of type array", d)
	}
	return array.MakeArray(), nil
}

type ScalarFunction struct {
	Function  SupportedFunction
	Arguments Expression // resolve to something you can process IE, literal/coloumn Resolve
}

func NewScalarFunction(function SupportedFunction, Argument Expression) *ScalarFunction {
	return &ScalarFunction{
		Function:  function,
		Arguments: Argument,
	}
}

func EvalScalarFunction(s *ScalarFunction, batch *operators.RecordBatch) (arrow.Array, error) {
	arr, err := EvalExpression(s.Arguments, batch)
	if err != nil {
		return nil, err
	}
	defer arr.Release()
	switch s.Function {
	case Upper:
		return mapStrings(arr, strings.ToUpper)
	case Lower:
		return mapStrings(arr, strings.ToLower)
	case Abs:
		datum, err := compute.AbsoluteValue(context.TODO(), compute.ArithmeticOptions{}, compute.NewDatum(arr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)
	case Round:
		datum, err := compute.Round(context.TODO(), compute.DefaultRoundOptions, compute.NewDatum(arr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)
	}
	return nil, fmt.Errorf("unsupported scalar function %v", s.Function)
}
func (s *ScalarFunction) ExprNode() {}
func (s *ScalarFunction) String() string {
	return fmt.Sprintf("ScalarFunction(%d, %v)", s.Function, s.Arguments)
}

// If cast succeeds → return the casted value
// If cast fails → throw a runtime error
type CastExpr struct {
	Expr       Expression // can be a Literal or Column (check for datatype when you resolve)
	TargetType arrow.DataType
}

func NewCastExpr(expr Expression, targetType arrow.DataType) *CastExpr {
	return &CastExpr{
		Expr:       expr,
		TargetType: targetType,
	}
}

func EvalCast(c *CastExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	arr, err := EvalExpression(c.Expr, batch)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	castOpts := compute.SafeCastOptions(c.TargetType)
	out, err := compute.CastArray(context.TODO(), arr, castOpts)
	if err != nil {
		return nil, fmt.Errorf("cast error: cannot cast %s to %s: %w",
			arr.DataType(), c.TargetType, err)
	}

	return out, nil
}

func (c *CastExpr) ExprNode() {}
func (c *CastExpr) String() string {
	return fmt.Sprintf("Cast(%s AS %s)", c.Expr, c.TargetType)
}

// NullCheckExpr is true where Expr is not null (sql: x IS NOT NULL).
// Negate flips it into x IS NULL.
type NullCheckExpr struct {
	Expr   Expression
	Negate bool
}

func NewNullCheckExpr(expr Expression) *NullCheckExpr {
	return &NullCheckExpr{Expr: expr}
}

func NewIsNullExpr(expr Expression) *NullCheckExpr {
	return &NullCheckExpr{Expr: expr, Negate: true}
}

func (n *NullCheckExpr) ExprNode() {}
func (n *NullCheckExpr) String() string {
	if n.Negate {
		return fmt.Sprintf("IsNull(%s)", n.Expr.String())
	}
	return fmt.Sprintf("NullCheck(%s)", n.Expr.String())
}
func EvalNullCheckMask(n *NullCheckExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	arr, err := EvalExpression(n.Expr, batch)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	length := arr.Len()
	builder := array.NewBooleanBuilder(memory.DefaultAllocator)
	defer builder.Release()
	builder.Reserve(length)
	for i := 0; i < length; i++ {
		builder.Append(arr.IsNull(i) == n.Negate)
	}
	return builder.NewArray(), nil
}

// NotExpr negates a boolean expression, nulls stay null.
type NotExpr struct {
	Expr Expression
}

func NewNotExpr(expr Expression) *NotExpr {
	return &NotExpr{Expr: expr}
}
func (n *NotExpr) ExprNode() {}
func (n *NotExpr) String() string {
	return fmt.Sprintf("Not(%s)", n.Expr)
}

func EvalNot(n *NotExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	arr, err := EvalExpression(n.Expr, batch)
	if err != nil {
		return nil, err
	}
	defer arr.Release()
	boolArr, ok := arr.(*array.Boolean)
	if !ok {
		return nil, fmt.Errorf("NOT expects a boolean input, got %s", arr.DataType())
	}
	b := array.NewBooleanBuilder(memory.DefaultAllocator)
	defer b.Release()
	b.Reserve(boolArr.Len())
	for i := 0; i < boolArr.Len(); i++ {
		if boolArr.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(!boolArr.Value(i))
	}
	return b.NewArray(), nil
}

func mapStrings(arr arrow.Array, fn func(string) string) (arrow.Array, error) {
	strArr, ok := arr.(*array.String)
	if !ok {
		return nil, fmt.Errorf("string function only supports string arrays, got %s", arr.DataType())
	}
	b := array.NewStringBuilder(memory.DefaultAllocator)
	defer b.Release()
	for i := 0; i < strArr.Len(); i++ {
		if strArr.IsNull(i) {
			b.AppendNull()
		} else {
			b.Append(fn(strArr.Value(i)))
		}
	}
	return b.NewArray(), nil
}

func inferScalarFunctionType(fn SupportedFunction, argType arrow.DataType) (arrow.DataType, error) {
	switch fn {
	case Upper, Lower:
		if argType.ID() != arrow.STRING {
			return nil, fmt.Errorf("upper/lower only support string types, got %s", argType)
		}
		return arrow.BinaryTypes.String, nil
	case Abs, Round:
		return argType, nil // numeric-in numeric-out
	default:
		return nil, fmt.Errorf("unknown scalar function %v", fn)
	}
}

func inferBinaryType(left arrow.DataType, op BinaryOperator, right arrow.DataType) (arrow.DataType, error) {
	switch op {
	case Addition, Subtraction, Multiplication, Division:
		return numericPromotion(left, right), nil
	case Equal, NotEqual, LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual, Like:
		return arrow.FixedWidthTypes.Boolean, nil
	case And, Or:
		return arrow.FixedWidthTypes.Boolean, nil
	default:
		return nil, fmt.Errorf("inferBinaryType: unsupported operator %v", op)
	}
}

// same types stay as they are, anything mixed goes to float64
func numericPromotion(a, b arrow.DataType) arrow.DataType {
	if arrow.TypeEqual(a, b) {
		return a
	}
	return arrow.PrimitiveTypes.Float64
}

func compileSqlRegEx(s string) string {
	var buf bytes.Buffer

	startsWithWildcard := len(s) > 0 && s[0] == '%'
	endsWithWildcard := len(s) > 0 && s[len(s)-1] == '%'

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '_':
			buf.WriteString(".")
		case '%':
			buf.WriteString(".*")
		default:
			if strings.ContainsRune(`.^$|()[]*+?{}\`, rune(s[i])) {
				buf.WriteByte('\\')
			}
			buf.WriteByte(s[i])
		}
	}

	regex := buf.String()
	if !startsWithWildcard {
		regex = "^" + regex
	}
	if !endsWithWildcard {
		regex = regex + "$"
	}
	return regex
}
