package filter

import (
	"fmt"
	"log/slog"
	"nested-scan-go/Expr"
	"strings"

	"github.com/apache/arrow/go/v17/parquet/metadata"
)

// ColumnResolution decides which parquet leaf column a predicate column is
// checked against when reading row group statistics.
type ColumnResolution string

const (
	// ResolveByPath matches the full dotted leaf path, so `name` only ever
	// matches the top level leaf "name" and struct.name matches "struct.name".
	ResolveByPath ColumnResolution = "path"
	// ResolveByLeafName matches the first leaf whose own name equals the last
	// segment of the predicate column. Different leaves sharing a name are
	// not told apart.
	ResolveByLeafName ColumnResolution = "leaf_name"
)

var ErrUnknownResolution = func(info string) error {
	return fmt.Errorf("unknown column resolution %q, expected %q or %q", info, ResolveByPath, ResolveByLeafName)
}

func ParseColumnResolution(s string) (ColumnResolution, error) {
	switch ColumnResolution(strings.ToLower(strings.TrimSpace(s))) {
	case ResolveByPath:
		return ResolveByPath, nil
	case ResolveByLeafName:
		return ResolveByLeafName, nil
	}
	return "", ErrUnknownResolution(s)
}

// RowGroupPruner drops row groups whose column chunk statistics prove the
// predicate can never be true for any of their rows.
type RowGroupPruner struct {
	predicate  Expr.Expression
	resolution ColumnResolution
	logger     *slog.Logger
}

func NewRowGroupPruner(pred Expr.Expression, resolution ColumnResolution, logger *slog.Logger) *RowGroupPruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &RowGroupPruner{
		predicate:  pred,
		resolution: resolution,
		logger:     logger,
	}
}

// Select returns the indices of the row groups that still have to be read.
// The result is never nil; an empty slice means nothing can match.
func (p *RowGroupPruner) Select(md *metadata.FileMetaData) ([]int, error) {
	keep := make([]int, 0, len(md.RowGroups))
	for i := 0; i < len(md.RowGroups); i++ {
		if p.predicate == nil {
			keep = append(keep, i)
			continue
		}
		rg := md.RowGroup(i)
		ok, err := p.mayMatch(md, rg, p.predicate)
		if err != nil {
			return nil, err
		}
		if ok {
			keep = append(keep, i)
			continue
		}
		p.logger.Debug("row group pruned",
			slog.Int("row_group", i),
			slog.Int64("rows", rg.NumRows()),
			slog.String("predicate", p.predicate.String()),
			slog.String("resolution", string(p.resolution)))
	}
	return keep, nil
}

// LeafIndex returns the parquet leaf column the predicate column maps to under
// the pruner's resolution, or -1 when there is none.
func (p *RowGroupPruner) LeafIndex(md *metadata.FileMetaData, col *Expr.ColumnResolve) int {
	return resolveLeaf(md, col, p.resolution)
}

func resolveLeaf(md *metadata.FileMetaData, col *Expr.ColumnResolve, resolution ColumnResolution) int {
	segments := col.Segments()
	target := strings.Join(segments, ".")
	last := segments[len(segments)-1]
	for i := 0; i < md.Schema.NumColumns(); i++ {
		leaf := md.Schema.Column(i)
		switch resolution {
		case ResolveByLeafName:
			if leaf.Name() == last {
				return i
			}
		default:
			if leaf.ColumnPath().String() == target {
				return i
			}
		}
	}
	return -1
}

// mayMatch is conservative: anything it does not understand keeps the row group.
func (p *RowGroupPruner) mayMatch(md *metadata.FileMetaData, rg *metadata.RowGroupMetaData, e Expr.Expression) (bool, error) {
	switch ex := e.(type) {
	case *Expr.BinaryExpr:
		switch ex.Op {
		case Expr.And:
			l, err := p.mayMatch(md, rg, ex.Left)
			if err != nil || !l {
				return l, err
			}
			return p.mayMatch(md, rg, ex.Right)
		case Expr.Or:
			l, err := p.mayMatch(md, rg, ex.Left)
			if err != nil || l {
				return l, err
			}
			return p.mayMatch(md, rg, ex.Right)
		}
		if !ex.Op.IsComparison() {
			return true, nil
		}
		col, lit, op, ok := comparisonOperands(ex)
		if !ok {
			return true, nil
		}
		stats, ok, err := p.chunkStats(md, rg, col)
		if err != nil || !ok {
			return true, err
		}
		if stats.HasNullCount() && stats.NullCount() == rg.NumRows() {
			// comparisons against null are never true
			return false, nil
		}
		if !stats.HasMinMax() {
			return true, nil
		}
		min, max, ok := statBounds(stats)
		if !ok {
			return true, nil
		}
		return rangeMayMatch(op, min, max, lit.Value), nil

	case *Expr.NullCheckExpr:
		col, ok := ex.Expr.(*Expr.ColumnResolve)
		if !ok {
			return true, nil
		}
		stats, ok, err := p.chunkStats(md, rg, col)
		if err != nil || !ok || !stats.HasNullCount() {
			return true, err
		}
		if ex.Negate {
			return stats.NullCount() > 0, nil
		}
		return stats.NullCount() < rg.NumRows(), nil
	}
	return true, nil
}

func (p *RowGroupPruner) chunkStats(md *metadata.FileMetaData, rg *metadata.RowGroupMetaData, col *Expr.ColumnResolve) (metadata.TypedStatistics, bool, error) {
	leaf := resolveLeaf(md, col, p.resolution)
	if leaf < 0 {
		return nil, false, nil
	}
	chunk, err := rg.ColumnChunk(leaf)
	if err != nil {
		return nil, false, err
	}
	set, err := chunk.StatsSet()
	if err != nil || !set {
		return nil, false, err
	}
	stats, err := chunk.Statistics()
	if err != nil || stats == nil {
		return nil, false, err
	}
	return stats, true, nil
}

// comparisonOperands normalises `lit op col` into `col op' lit`.
func comparisonOperands(b *Expr.BinaryExpr) (*Expr.ColumnResolve, *Expr.LiteralResolve, Expr.BinaryOperator, bool) {
	if col, ok := b.Left.(*Expr.ColumnResolve); ok {
		if lit, ok := b.Right.(*Expr.LiteralResolve); ok {
			return col, lit, b.Op, true
		}
	}
	if col, ok := b.Right.(*Expr.ColumnResolve); ok {
		if lit, ok := b.Left.(*Expr.LiteralResolve); ok {
			return col, lit, flip(b.Op), true
		}
	}
	return nil, nil, b.Op, false
}

func flip(op Expr.BinaryOperator) Expr.BinaryOperator {
	switch op {
	case Expr.LessThan:
		return Expr.GreaterThan
	case Expr.LessThanOrEqual:
		return Expr.GreaterThanOrEqual
	case Expr.GreaterThan:
		return Expr.LessThan
	case Expr.GreaterThanOrEqual:
		return Expr.LessThanOrEqual
	}
	return op
}

func statBounds(stats metadata.TypedStatistics) (any, any, bool) {
	switch s := stats.(type) {
	case *metadata.ByteArrayStatistics:
		return string(s.Min()), string(s.Max()), true
	case *metadata.Int64Statistics:
		return s.Min(), s.Max(), true
	case *metadata.Int32Statistics:
		return int64(s.Min()), int64(s.Max()), true
	case *metadata.Float64Statistics:
		return s.Min(), s.Max(), true
	case *metadata.Float32Statistics:
		return float64(s.Min()), float64(s.Max()), true
	case *metadata.BooleanStatistics:
		return s.Min(), s.Max(), true
	}
	return nil, nil, false
}

func rangeMayMatch(op Expr.BinaryOperator, min, max, lit any) bool {
	loCmp, ok1 := compareValues(lit, min)
	hiCmp, ok2 := compareValues(lit, max)
	if !ok1 || !ok2 {
		return true
	}
	switch op {
	case Expr.Equal:
		return loCmp >= 0 && hiCmp <= 0
	case Expr.NotEqual:
		return !(loCmp == 0 && hiCmp == 0)
	case Expr.LessThan:
		// col < lit needs min < lit
		return loCmp > 0
	case Expr.LessThanOrEqual:
		return loCmp >= 0
	case Expr.GreaterThan:
		return hiCmp < 0
	case Expr.GreaterThanOrEqual:
		return hiCmp <= 0
	}
	return true
}

// compareValues orders a against b, reporting false when they are not comparable.
func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	}
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			switch {
			case ai < bi:
				return -1, true
			case ai > bi:
				return 1, true
			}
			return 0, true
		}
	}
	af, ok1 := asFloat64(a)
	bf, ok2 := asFloat64(b)
	if !ok1 || !ok2 {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	}
	return 0, true
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
