package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Engine runs SQL against registered parquet tables.
type Engine interface {
	Register(ctx context.Context, name, path string) error
	Execute(ctx context.Context, sql string) (*ResultTable, error)
	Close() error
}

var (
	_ Engine = (*Session)(nil)
	_ Engine = (*DuckEngine)(nil)
)

// DuckEngine answers statements with an in-memory DuckDB database, each
// table being a view over read_parquet.
type DuckEngine struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDuckEngine(ctx context.Context, logger *slog.Logger) (*DuckEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &DuckEngine{db: db, logger: logger}, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}

func (d *DuckEngine) Register(ctx context.Context, name, path string) error {
	if name == "" {
		return registrationFailure(name, path, errors.New("table name is empty"))
	}
	source, err := duckSource(path)
	if err != nil {
		return registrationFailure(name, path, err)
	}
	q := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)", quoteIdent(name), source)
	if _, err := d.db.ExecContext(ctx, q); err != nil {
		return registrationFailure(name, path, err)
	}
	// views are lazy, make sure the file can actually be read
	if _, err := d.db.ExecContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", quoteIdent(name))); err != nil {
		_, _ = d.db.ExecContext(ctx, fmt.Sprintf("DROP VIEW IF EXISTS %s", quoteIdent(name)))
		return registrationFailure(name, path, err)
	}
	d.logger.Debug("duckdb view registered", slog.String("table", name), slog.String("source", path))
	return nil
}

// duckSource renders the read_parquet argument for path. Directories are
// expanded the same way Session.Register expands them.
func duckSource(path string) (string, error) {
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return quoteLiteral(path), nil
	}
	files, err := listParquetFiles(path)
	if err != nil {
		return "", err
	}
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = quoteLiteral(f)
	}
	return "[" + strings.Join(quoted, ", ") + "]", nil
}

func (d *DuckEngine) Execute(ctx context.Context, stmt string) (*ResultTable, error) {
	rows, err := d.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, executionFailure(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, executionFailure(err)
	}
	res := &ResultTable{Statement: stmt, Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, executionFailure(err)
		}
		row := make(Row, len(cols))
		for i, v := range values {
			row[i] = fromDuck(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, executionFailure(err)
	}
	return res, nil
}

// fromDuck maps driver values onto the ResultTable value set. STRUCT values
// arrive as maps, their fields come out sorted by name.
func fromDuck(v any) any {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(StructValue, len(keys))
		for i, k := range keys {
			out[i] = StructField{Name: k, Value: fromDuck(x[k])}
		}
		return out
	}
	return v
}

func (d *DuckEngine) Close() error {
	return d.db.Close()
}
