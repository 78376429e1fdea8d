package query

import (
	"context"
	"fmt"
	"io"
)

// Statements are the two harness statements against table: an unfiltered
// scan and an equality filter on the flat name column.
func Statements(table string) []string {
	return []string{
		fmt.Sprintf("SELECT * FROM %s", table),
		fmt.Sprintf("SELECT * FROM %s WHERE name = 'test01'", table),
	}
}

var DefaultStatements = Statements(BaseTable)

// RunQueries registers path in a fresh session and runs the harness
// statements in order.
func RunQueries(ctx context.Context, path string, opts Options) ([]*ResultTable, error) {
	session := NewSession(opts)
	defer session.Close()

	table := session.Options().TableName
	if err := session.Register(ctx, table, path); err != nil {
		return nil, err
	}
	statements := Statements(table)
	results := make([]*ResultTable, 0, len(statements))
	for _, stmt := range statements {
		res, err := session.Execute(ctx, stmt)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func RenderAll(w io.Writer, results []*ResultTable) error {
	for _, r := range results {
		if err := r.Render(w); err != nil {
			return err
		}
	}
	return nil
}
