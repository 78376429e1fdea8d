package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Discrepancy is a statement whose answers differ between two engines.
type Discrepancy struct {
	Statement     string
	NativeRows    int
	ReferenceRows int
	// MissingRows are rows only the reference engine returned, ExtraRows
	// rows only the native engine returned. Both are rendered rows.
	MissingRows []string
	ExtraRows   []string
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("%s: native returned %d rows, reference returned %d (missing %v, extra %v)",
		d.Statement, d.NativeRows, d.ReferenceRows, d.MissingRows, d.ExtraRows)
}

// CrossCheck runs every statement on both engines and compares the results
// as multisets of rows. Struct fields are compared by name, not position.
func CrossCheck(ctx context.Context, native, reference Engine, statements []string) ([]Discrepancy, error) {
	var out []Discrepancy
	for _, stmt := range statements {
		a, err := native.Execute(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("native engine: %w", err)
		}
		b, err := reference.Execute(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("reference engine: %w", err)
		}
		missing, extra := diffRows(rowKeys(b), rowKeys(a))
		if len(a.Rows) != len(b.Rows) || len(missing) > 0 || len(extra) > 0 {
			out = append(out, Discrepancy{
				Statement:     stmt,
				NativeRows:    len(a.Rows),
				ReferenceRows: len(b.Rows),
				MissingRows:   missing,
				ExtraRows:     extra,
			})
		}
	}
	return out, nil
}

func rowKeys(r *ResultTable) []string {
	keys := make([]string, len(r.Rows))
	for i, row := range r.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = canonical(v)
		}
		keys[i] = strings.Join(cells, " | ")
	}
	sort.Strings(keys)
	return keys
}

func canonical(v any) string {
	sv, ok := v.(StructValue)
	if !ok {
		return formatValue(v)
	}
	sorted := make(StructValue, len(sv))
	copy(sorted, sv)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for i := range sorted {
		sorted[i].Value = canonical(sorted[i].Value)
	}
	return sorted.String()
}

// diffRows walks two sorted key lists and returns what only want has and
// what only got has.
func diffRows(want, got []string) (missing, extra []string) {
	i, j := 0, 0
	for i < len(want) && j < len(got) {
		switch {
		case want[i] == got[j]:
			i++
			j++
		case want[i] < got[j]:
			missing = append(missing, want[i])
			i++
		default:
			extra = append(extra, got[j])
			j++
		}
	}
	missing = append(missing, want[i:]...)
	extra = append(extra, got[j:]...)
	return missing, extra
}
