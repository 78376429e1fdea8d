package filter

import (
	"errors"
	"io"
	"nested-scan-go/Expr"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

func str(v string) *Expr.LiteralResolve {
	return Expr.NewLiteralResolve(arrow.BinaryTypes.String, v)
}

func i64(v int64) *Expr.LiteralResolve {
	return Expr.NewLiteralResolve(arrow.PrimitiveTypes.Int64, v)
}

func TestFilterInit(t *testing.T) {
	valid := map[string]Expr.Expression{
		"flat equality":   Expr.NewBinaryExpr(Expr.NewColumnResolve("name"), Expr.Equal, str("test01")),
		"nested equality": Expr.NewBinaryExpr(Expr.NewNestedColumnResolve("struct", "name"), Expr.Equal, str("aaa1")),
		"like":            Expr.NewBinaryExpr(Expr.NewColumnResolve("name"), Expr.Like, str("test%")),
		"is null":         Expr.NewIsNullExpr(Expr.NewColumnResolve("id")),
		"not":             Expr.NewNotExpr(Expr.NewBinaryExpr(Expr.NewColumnResolve("id"), Expr.GreaterThan, i64(1))),
		"and": Expr.NewBinaryExpr(
			Expr.NewBinaryExpr(Expr.NewColumnResolve("id"), Expr.GreaterThan, i64(1)),
			Expr.And,
			Expr.NewBinaryExpr(Expr.NewColumnResolve("name"), Expr.NotEqual, str("x"))),
	}
	for name, pred := range valid {
		t.Run(name, func(t *testing.T) {
			if _, err := NewFilterExec(basicProject(t, 2), pred); err != nil {
				t.Fatalf("failed to create filter exec: %v", err)
			}
		})
	}

	invalid := map[string]Expr.Expression{
		"nil":            nil,
		"unknown column": Expr.NewBinaryExpr(Expr.NewColumnResolve("does_not_exist"), Expr.Equal, i64(1)),
		"unknown child":  Expr.NewBinaryExpr(Expr.NewNestedColumnResolve("struct", "nope"), Expr.Equal, i64(1)),
		"type mismatch":  Expr.NewBinaryExpr(Expr.NewColumnResolve("id"), Expr.Equal, str("1")),
		"non boolean":    Expr.NewColumnResolve("name"),
		"struct compare": Expr.NewBinaryExpr(Expr.NewColumnResolve("struct"), Expr.Equal, Expr.NewColumnResolve("struct")),
		"like on ints":   Expr.NewBinaryExpr(Expr.NewColumnResolve("id"), Expr.Like, i64(1)),
		"and of strings": Expr.NewBinaryExpr(Expr.NewColumnResolve("name"), Expr.And, Expr.NewColumnResolve("name")),
	}
	for name, pred := range invalid {
		t.Run(name, func(t *testing.T) {
			if _, err := NewFilterExec(basicProject(t, 2), pred); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestFilterExec_Predicates(t *testing.T) {
	cases := []struct {
		name string
		pred Expr.Expression
		want []string
	}{
		{"flat name equality", Expr.NewBinaryExpr(Expr.NewColumnResolve("name"), Expr.Equal, str("test01")), []string{"test01"}},
		{"nested name equality", Expr.NewBinaryExpr(Expr.NewNestedColumnResolve("struct", "name"), Expr.Equal, str("aaa2")), []string{"test02"}},
		{"flat name against nested value", Expr.NewBinaryExpr(Expr.NewColumnResolve("name"), Expr.Equal, str("aaa1")), nil},
		{"null ids dropped", Expr.NewBinaryExpr(Expr.NewColumnResolve("id"), Expr.GreaterThan, i64(2)), []string{"test03", "test05"}},
		{"is null", Expr.NewIsNullExpr(Expr.NewColumnResolve("id")), []string{"test04"}},
		{"or", Expr.NewBinaryExpr(
			Expr.NewBinaryExpr(Expr.NewColumnResolve("name"), Expr.Equal, str("test01")),
			Expr.Or,
			Expr.NewBinaryExpr(Expr.NewNestedColumnResolve("struct", "id"), Expr.Equal, i64(7))), []string{"test01", "test05"}},
		{"like", Expr.NewBinaryExpr(Expr.NewColumnResolve("name"), Expr.Like, str("%0_")), []string{"test01", "test02", "test03", "test04", "test05"}},
		{"not", Expr.NewNotExpr(Expr.NewBinaryExpr(Expr.NewColumnResolve("id"), Expr.LessThan, i64(3))), []string{"test03", "test05"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			filt, err := NewFilterExec(basicProject(t, 5), tc.pred)
			if err != nil {
				t.Fatalf("failed to create filter exec: %v", err)
			}
			defer filt.Close()
			var got []string
			for _, rb := range collect(t, filt, 2) {
				names := rb.Columns[2].(*array.String)
				for i := 0; i < names.Len(); i++ {
					got = append(got, names.Value(i))
				}
				rb.Release()
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}

func TestFilterExec_KeepsStructColumns(t *testing.T) {
	pred := Expr.NewBinaryExpr(Expr.NewColumnResolve("name"), Expr.Equal, str("test02"))
	filt, err := NewFilterExec(basicProject(t, 3), pred)
	if err != nil {
		t.Fatalf("failed to create filter exec: %v", err)
	}
	defer filt.Close()
	rb, err := filt.Next(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rb.Release()
	st := rb.Columns[0].(*array.Struct)
	if st.Len() != 1 {
		t.Fatalf("expected one struct row, got %d", st.Len())
	}
	if st.Field(0).(*array.Int64).Value(0) != 4 || st.Field(1).(*array.String).Value(0) != "aaa2" {
		t.Fatalf("unexpected struct value %s", st)
	}
	if _, err := filt.Next(10); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestFilterExec_NoMatches(t *testing.T) {
	pred := Expr.NewBinaryExpr(Expr.NewColumnResolve("name"), Expr.Equal, str("zzz"))
	filt, err := NewFilterExec(basicProject(t, 5), pred)
	if err != nil {
		t.Fatalf("failed to create filter exec: %v", err)
	}
	defer filt.Close()
	if _, err := filt.Next(2); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF when nothing matches, got %v", err)
	}
	if _, err := filt.Next(0); err == nil {
		t.Fatal("expected error for n == 0")
	}
}
