package query

import (
	"context"
	"fmt"
	"log/slog"
	"nested-scan-go/Expr"
	"nested-scan-go/operators"
	"nested-scan-go/operators/filter"
	"nested-scan-go/operators/project"
)

// plan is the operator tree built for one statement, bottom up:
// scan -> filter -> project -> limit.
type plan struct {
	stmt      *statement
	predicate Expr.Expression
	exprs     []Expr.Expression
	columns   []string
}

func (s *Session) bindStatement(sql string) (*plan, *table, error) {
	stmt, err := parseStatement(sql)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.lookup(stmt.table)
	if err != nil {
		return nil, nil, err
	}
	b := &binder{schema: t.schema, table: stmt.table, alias: stmt.tableAlias}
	p := &plan{stmt: stmt}
	if stmt.where != nil {
		if p.predicate, err = b.bindPredicate(stmt.where); err != nil {
			return nil, nil, err
		}
	}
	if !stmt.star {
		if p.exprs, err = b.bindSelect(stmt.items); err != nil {
			return nil, nil, err
		}
		p.columns = referencedColumns(append([]Expr.Expression{p.predicate}, p.exprs...)...)
	}
	return p, t, nil
}

// Query plans sql and returns the root operator. The caller drains and
// closes it; every call opens its own read handles.
func (s *Session) Query(ctx context.Context, sql string) (operators.Operator, error) {
	p, t, err := s.bindStatement(sql)
	if err != nil {
		return nil, err
	}

	var op operators.Operator
	if t.record != nil {
		op, err = s.memorySource(t, p.columns)
	} else {
		op, err = s.scanSource(ctx, t, p)
	}
	if err != nil {
		return nil, executionFailure(fmt.Errorf("scan %s: %w", t.name, err))
	}
	fail := func(err error) (operators.Operator, error) {
		_ = op.Close()
		return nil, executionFailure(err)
	}
	if p.predicate != nil {
		f, err := filter.NewFilterExec(op, p.predicate)
		if err != nil {
			return fail(err)
		}
		op = f
	}
	if len(p.exprs) > 0 {
		pr, err := project.NewProjectExec(op, p.exprs)
		if err != nil {
			return fail(err)
		}
		op = pr
	}
	if p.stmt.limit != nil {
		l, err := filter.NewLimitExec(op, *p.stmt.limit)
		if err != nil {
			return fail(err)
		}
		op = l
	}
	return op, nil
}

func (s *Session) scanSource(ctx context.Context, t *table, p *plan) (operators.Operator, error) {
	popts := project.ParquetOptions{Columns: p.columns}
	if s.opts.EnablePruning && p.predicate != nil {
		popts.SelectRowGroups = filter.NewRowGroupPruner(p.predicate, s.opts.Resolution, s.logger).Select
	}
	src, err := s.openSource(ctx, t, popts)
	if err != nil {
		return nil, err
	}
	total, read := src.RowGroups()
	s.logger.Debug("statement planned",
		slog.String("sql", p.stmt.sql),
		slog.String("table", t.name),
		slog.Any("predicate", p.predicate),
		slog.Bool("pruning", s.opts.EnablePruning),
		slog.String("resolution", string(s.opts.Resolution)),
		slog.Int("row_groups_total", total),
		slog.Int("row_groups_read", read))
	return src, nil
}

func (s *Session) memorySource(t *table, columns []string) (operators.Operator, error) {
	src, err := project.NewInMemorySourceFromRecord(t.record)
	if err != nil {
		return nil, err
	}
	if columns != nil {
		if err := src.WithFields(columns...); err != nil {
			_ = src.Close()
			return nil, err
		}
	}
	s.logger.Debug("statement planned",
		slog.String("table", t.name),
		slog.String("source", "memory"),
		slog.Int("columns", len(src.Schema().Fields())))
	return src, nil
}

// referencedColumns lists the top level fields exprs read, in first use order.
func referencedColumns(exprs ...Expr.Expression) []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(e Expr.Expression)
	walk = func(e Expr.Expression) {
		switch ex := e.(type) {
		case nil:
		case *Expr.ColumnResolve:
			top := ex.Segments()[0]
			if _, ok := seen[top]; !ok {
				seen[top] = struct{}{}
				out = append(out, top)
			}
		case *Expr.Alias:
			walk(ex.Expr)
		case *Expr.BinaryExpr:
			walk(ex.Left)
			walk(ex.Right)
		case *Expr.ScalarFunction:
			walk(ex.Arguments)
		case *Expr.CastExpr:
			walk(ex.Expr)
		case *Expr.NullCheckExpr:
			walk(ex.Expr)
		case *Expr.NotExpr:
			walk(ex.Expr)
		}
	}
	for _, e := range exprs {
		walk(e)
	}
	return out
}
