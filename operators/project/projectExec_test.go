package project

import (
	"errors"
	"io"
	"nested-scan-go/Expr"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

func memSource(t *testing.T, rows int) *InMemorySource {
	t.Helper()
	rec := nestedRecord(t, 0, rows)
	defer rec.Release()
	src, err := NewInMemorySourceFromRecord(rec)
	if err != nil {
		t.Fatalf("failed to build in memory source: %v", err)
	}
	return src
}

func TestInMemorySource(t *testing.T) {
	t.Run("slices in requested sizes", func(t *testing.T) {
		src := memSource(t, 5)
		defer src.Close()
		sizes := countRows(t, src, 2)
		if len(sizes) != 3 || sizes[0] != 2 || sizes[2] != 1 {
			t.Fatalf("Expected batches [2 2 1], got %v", sizes)
		}
	})
	t.Run("rejects invalid columns", func(t *testing.T) {
		rec := nestedRecord(t, 0, 2)
		defer rec.Release()
		_, err := NewInMemorySource(nestedTestSchema(), rec.Columns()[:2])
		if err == nil {
			t.Fatal("Expected error for missing column")
		}
	})
	t.Run("with fields", func(t *testing.T) {
		src := memSource(t, 2)
		defer src.Close()
		if err := src.WithFields("name", "id"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if src.Schema().Field(0).Name != "name" || src.Schema().NumFields() != 2 {
			t.Fatalf("Unexpected schema %v", src.Schema())
		}
		if err := src.WithFields("nope"); err == nil {
			t.Fatal("Expected error for unknown field")
		}
	})
}

func TestProjectExec(t *testing.T) {
	t.Run("flat and nested columns with alias", func(t *testing.T) {
		src := memSource(t, 2)
		exprs := []Expr.Expression{
			Expr.NewColumnResolve("name"),
			Expr.NewAlias(Expr.NewNestedColumnResolve("struct", "name"), "inner_name"),
			Expr.NewNestedColumnResolve("struct", "id"),
		}
		proj, err := NewProjectExec(src, exprs)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer proj.Close()

		schema := proj.Schema()
		wantNames := []string{"name", "inner_name", "id"}
		for i, n := range wantNames {
			if schema.Field(i).Name != n {
				t.Fatalf("field %d: expected %s, got %s", i, n, schema.Field(i).Name)
			}
		}
		if schema.Field(1).Nullable {
			t.Errorf("Expected struct.name to stay non-nullable")
		}

		rb, err := proj.Next(10)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer rb.Release()
		if rb.Columns[1].(*array.String).Value(1) != "aaa2" {
			t.Errorf("Expected aaa2, got %s", rb.Columns[1].ValueStr(1))
		}
		if rb.Columns[2].(*array.Int64).Value(0) != 3 {
			t.Errorf("Expected 3, got %s", rb.Columns[2].ValueStr(0))
		}
		if _, err := proj.Next(10); !errors.Is(err, io.EOF) {
			t.Fatalf("Expected io.EOF, got %v", err)
		}
	})

	t.Run("whole struct column", func(t *testing.T) {
		src := memSource(t, 2)
		proj, err := NewProjectExec(src, []Expr.Expression{Expr.NewColumnResolve("struct")})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer proj.Close()
		if proj.Schema().Field(0).Type.ID() != arrow.STRUCT {
			t.Fatalf("Expected struct output, got %s", proj.Schema().Field(0).Type)
		}
	})

	t.Run("computed column", func(t *testing.T) {
		src := memSource(t, 2)
		plusOne := Expr.NewAlias(
			Expr.NewBinaryExpr(Expr.NewColumnResolve("id"), Expr.Addition, Expr.NewLiteralResolve(arrow.PrimitiveTypes.Int64, 1)),
			"next_id")
		proj, err := NewProjectExec(src, []Expr.Expression{plusOne})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer proj.Close()
		rb, err := proj.Next(10)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer rb.Release()
		if rb.Columns[0].(*array.Int64).Value(1) != 3 {
			t.Errorf("Expected 3, got %s", rb.Columns[0].ValueStr(1))
		}
	})

	t.Run("errors", func(t *testing.T) {
		src := memSource(t, 2)
		defer src.Close()
		if _, err := NewProjectExec(src, nil); !errors.Is(err, ErrEmptyProjection) {
			t.Fatalf("Expected ErrEmptyProjection, got %v", err)
		}
		if _, err := NewProjectExec(src, []Expr.Expression{Expr.NewColumnResolve("missing")}); err == nil {
			t.Fatal("Expected error for unknown column")
		}
		dup := []Expr.Expression{Expr.NewColumnResolve("name"), Expr.NewNestedColumnResolve("struct", "name")}
		if _, err := NewProjectExec(src, dup); err == nil {
			t.Fatal("Expected error for duplicate output names")
		}
	})
}

func TestProjectSchemaFilterDown(t *testing.T) {
	rec := nestedRecord(t, 0, 2)
	defer rec.Release()

	schema, cols, err := ProjectSchemaFilterDown(rec.Schema(), rec.Columns(), "name", "struct")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if schema.Field(0).Name != "name" || len(cols) != 2 {
		t.Fatalf("Expected requested order, got %v", schema)
	}
	if _, _, err := ProjectSchemaFilterDown(rec.Schema(), rec.Columns()); err == nil {
		t.Fatal("Expected error when no columns are passed in")
	}
	if _, _, err := ProjectSchemaFilterDown(rec.Schema(), rec.Columns(), "nope"); err == nil {
		t.Fatal("Expected error for unknown column")
	}
}
