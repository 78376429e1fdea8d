package query

import (
	"bytes"
	"context"
	"nested-scan-go/dataset"
	"nested-scan-go/operators/filter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	row0 = Row{StructValue{{"id", int64(3)}, {"name", "aaa1"}}, int64(1), "test01"}
	row1 = Row{StructValue{{"id", int64(4)}, {"name", "aaa2"}}, int64(2), "test02"}
)

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested.parquet")
	require.NoError(t, dataset.BuildAndPersist(path, dataset.DefaultWriteOptions()))
	return path
}

func pathSession(t *testing.T, path string) *Session {
	t.Helper()
	opts := DefaultOptions()
	opts.Resolution = filter.ResolveByPath
	s := NewSession(opts)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Register(context.Background(), BaseTable, path))
	return s
}

func TestRunQueries(t *testing.T) {
	ctx := context.Background()
	path := writeDataset(t)

	t.Run("unfiltered scan returns both rows", func(t *testing.T) {
		results, err := RunQueries(ctx, path, DefaultOptions())
		require.NoError(t, err)
		require.Len(t, results, 2)

		all := results[0]
		assert.Equal(t, []string{"struct", "id", "name"}, all.Columns)
		require.Len(t, all.Rows, 2)
		assert.Equal(t, row0, all.Rows[0])
		assert.Equal(t, row1, all.Rows[1])
	})

	t.Run("leaf_name resolution prunes the matching row group", func(t *testing.T) {
		// name resolves to the struct.name leaf whose statistics are
		// [aaa1, aaa2], so the only row group is skipped
		results, err := RunQueries(ctx, path, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, DefaultStatements[1], results[1].Statement)
		assert.Empty(t, results[1].Rows)
	})

	t.Run("path resolution returns the matching row", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Resolution = filter.ResolveByPath
		results, err := RunQueries(ctx, path, opts)
		require.NoError(t, err)
		require.Len(t, results[1].Rows, 1)
		assert.Equal(t, row0, results[1].Rows[0])
	})

	t.Run("without pruning the filter alone is correct", func(t *testing.T) {
		opts := DefaultOptions()
		opts.EnablePruning = false
		results, err := RunQueries(ctx, path, opts)
		require.NoError(t, err)
		require.Len(t, results[1].Rows, 1)
		assert.Equal(t, row0, results[1].Rows[0])
	})

	t.Run("custom table name", func(t *testing.T) {
		opts := DefaultOptions()
		opts.TableName = "nested"
		results, err := RunQueries(ctx, path, opts)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM nested", results[0].Statement)
		assert.Len(t, results[0].Rows, 2)
	})
}

func TestRegisterFailures(t *testing.T) {
	ctx := context.Background()
	s := NewSession(DefaultOptions())
	defer s.Close()

	t.Run("missing file", func(t *testing.T) {
		err := s.Register(ctx, BaseTable, filepath.Join(t.TempDir(), "missing.parquet"))
		require.ErrorIs(t, err, ErrRegistrationFailure)
	})
	t.Run("empty directory", func(t *testing.T) {
		require.ErrorIs(t, s.Register(ctx, BaseTable, t.TempDir()), ErrRegistrationFailure)
	})
	t.Run("not parquet", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.parquet")
		require.NoError(t, os.WriteFile(bad, []byte("not a parquet file"), 0o644))
		require.ErrorIs(t, s.Register(ctx, BaseTable, bad), ErrRegistrationFailure)
	})
	t.Run("s3 without secrets", func(t *testing.T) {
		require.ErrorIs(t, s.Register(ctx, BaseTable, "s3://bucket/nested.parquet"), ErrRegistrationFailure)
	})
	t.Run("empty name", func(t *testing.T) {
		require.ErrorIs(t, s.Register(ctx, "", writeDataset(t)), ErrRegistrationFailure)
	})
	assert.Empty(t, s.Tables())

	_, err := RunQueries(ctx, filepath.Join(t.TempDir(), "missing.parquet"), DefaultOptions())
	require.ErrorIs(t, err, ErrRegistrationFailure)
}

func TestRegisterDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, name := range []string{"b.parquet", "a.parquet"} {
		require.NoError(t, dataset.BuildAndPersist(filepath.Join(dir, name), dataset.DefaultWriteOptions()))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	s := pathSession(t, dir)
	assert.Equal(t, []string{BaseTable}, s.Tables())

	res, err := s.Execute(ctx, "SELECT * FROM base_table")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 4)

	res, err = s.Execute(ctx, "SELECT * FROM base_table WHERE name = 'test01'")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestRegisterRecord(t *testing.T) {
	ctx := context.Background()
	rec, err := dataset.NewBatch(nil)
	require.NoError(t, err)
	defer rec.Release()

	mem := NewSession(DefaultOptions())
	defer mem.Close()
	require.NoError(t, mem.RegisterRecord(BaseTable, rec))
	require.ErrorIs(t, mem.RegisterRecord("", rec), ErrRegistrationFailure)
	require.ErrorIs(t, mem.RegisterRecord("other", nil), ErrRegistrationFailure)

	res, err := mem.Execute(ctx, DefaultStatements[0])
	require.NoError(t, err)
	assert.Equal(t, []Row{row0, row1}, res.Rows)

	// no row groups to prune, so leaf_name resolution has nothing to get wrong
	res, err = mem.Execute(ctx, DefaultStatements[1])
	require.NoError(t, err)
	assert.Equal(t, []Row{row0}, res.Rows)

	res, err = mem.Execute(ctx, "SELECT `struct`.`name` AS sname, id FROM base_table WHERE id = 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"sname", "id"}, res.Columns)
	assert.Equal(t, []Row{{"aaa2", int64(2)}}, res.Rows)

	file := NewSession(DefaultOptions())
	defer file.Close()
	require.NoError(t, file.Register(ctx, BaseTable, writeDataset(t)))
	diffs, err := CrossCheck(ctx, file, mem, DefaultStatements)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, DefaultStatements[1], diffs[0].Statement)
}

func TestExecuteSubset(t *testing.T) {
	ctx := context.Background()
	s := pathSession(t, writeDataset(t))

	cases := []struct {
		sql     string
		columns []string
		rows    []Row
	}{
		{"SELECT * FROM base_table WHERE `struct`.`name` = 'aaa2'", []string{"struct", "id", "name"}, []Row{row1}},
		{"SELECT name, id FROM base_table WHERE id > 1", []string{"name", "id"}, []Row{{"test02", int64(2)}}},
		{"SELECT base_table.name FROM base_table WHERE base_table.id = 1", []string{"name"}, []Row{{"test01"}}},
		{"SELECT `struct`.`id` AS sid FROM base_table", []string{"sid"}, []Row{{int64(3)}, {int64(4)}}},
		{"SELECT id + 10 AS shifted FROM base_table WHERE 2 = id", []string{"shifted"}, []Row{{int64(12)}}},
		{"SELECT upper(name) AS loud FROM base_table LIMIT 1", []string{"loud"}, []Row{{"TEST01"}}},
		{"SELECT name FROM base_table WHERE name LIKE 'test%' AND NOT id = 1", []string{"name"}, []Row{{"test02"}}},
		{"SELECT name FROM base_table WHERE name NOT LIKE '%1'", []string{"name"}, []Row{{"test02"}}},
		{"SELECT name FROM base_table WHERE (id = 1 OR id = 2) AND id <> 2", []string{"name"}, []Row{{"test01"}}},
		{"SELECT name FROM base_table WHERE id IS NULL", []string{"name"}, nil},
		{"SELECT name FROM base_table WHERE id IS NOT NULL", []string{"name"}, []Row{{"test01"}, {"test02"}}},
		{"SELECT name FROM base_table WHERE id >= -5 LIMIT 0", []string{"name"}, nil},
		{"SELECT t.name FROM base_table AS t WHERE t.id < 2", []string{"name"}, []Row{{"test01"}}},
	}
	for _, tc := range cases {
		t.Run(tc.sql, func(t *testing.T) {
			res, err := s.Execute(ctx, tc.sql)
			require.NoError(t, err)
			assert.Equal(t, tc.columns, res.Columns)
			assert.Equal(t, len(tc.rows), len(res.Rows), "rows: %v", res.Rows)
			for i := range tc.rows {
				assert.Equal(t, tc.rows[i], res.Rows[i])
			}
		})
	}
}

func TestExecuteFailures(t *testing.T) {
	ctx := context.Background()
	s := pathSession(t, writeDataset(t))

	for _, sql := range []string{
		"SELEC * FROM base_table",
		"SELECT * FROM missing_table",
		"SELECT nope FROM base_table",
		"SELECT * FROM base_table WHERE `struct`.`nope` = 1",
		"SELECT * FROM base_table WHERE id = 'one'",
		"SELECT * FROM base_table WHERE name = 1",
		"SELECT * FROM base_table WHERE name",
		"SELECT * FROM base_table WHERE id = NULL",
		"SELECT * FROM base_table ORDER BY id",
		"SELECT * FROM base_table LIMIT 1, 2",
		"SELECT count(*) FROM base_table",
		"SELECT *, name FROM base_table",
		"INSERT INTO base_table VALUES (1)",
	} {
		t.Run(sql, func(t *testing.T) {
			_, err := s.Execute(ctx, sql)
			require.ErrorIs(t, err, ErrExecutionFailure)
		})
	}

	require.NoError(t, s.Close())
	_, err := s.Execute(ctx, "SELECT * FROM base_table")
	require.ErrorIs(t, err, ErrExecutionFailure)
}

func TestIntegerLiteralRange(t *testing.T) {
	ctx := context.Background()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "i8", Type: arrow.PrimitiveTypes.Int8},
		{Name: "u", Type: arrow.PrimitiveTypes.Uint32},
	}, nil)
	rec, _, err := array.RecordFromJSON(memory.DefaultAllocator, schema,
		strings.NewReader(`[{"i8": 44, "u": 7}, {"i8": 127, "u": 4294967295}]`))
	require.NoError(t, err)
	defer rec.Release()

	s := NewSession(DefaultOptions())
	defer s.Close()
	require.NoError(t, s.RegisterRecord("small", rec))

	for _, sql := range []string{
		"SELECT * FROM small WHERE i8 = 300",
		"SELECT * FROM small WHERE i8 > -129",
		"SELECT * FROM small WHERE u = -1",
		"SELECT * FROM small WHERE 4294967296 = u",
	} {
		t.Run(sql, func(t *testing.T) {
			_, err := s.Execute(ctx, sql)
			require.ErrorIs(t, err, ErrExecutionFailure)
		})
	}

	res, err := s.Execute(ctx, "SELECT i8 FROM small WHERE i8 = 127")
	require.NoError(t, err)
	assert.Equal(t, []Row{{int64(127)}}, res.Rows)

	res, err = s.Execute(ctx, "SELECT u FROM small WHERE u = 4294967295")
	require.NoError(t, err)
	assert.Equal(t, []Row{{int64(4294967295)}}, res.Rows)
}

func TestConcurrentStatements(t *testing.T) {
	ctx := context.Background()
	s := pathSession(t, writeDataset(t))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Execute(ctx, DefaultStatements[1])
			if err == nil && len(res.Rows) != 1 {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestRender(t *testing.T) {
	results, err := RunQueries(context.Background(), writeDataset(t), DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderAll(&buf, results))
	out := buf.String()
	assert.Contains(t, out, DefaultStatements[0])
	assert.Contains(t, out, "{id: 3, name: aaa1}")
	assert.Contains(t, out, "test02")
	assert.Contains(t, out, "(2 rows)")
	assert.Contains(t, out, "(0 rows)")
}

func TestStructValueString(t *testing.T) {
	v := StructValue{{"id", int64(3)}, {"name", "aaa1"}, {"tag", nil}}
	assert.Equal(t, "{id: 3, name: aaa1, tag: NULL}", v.String())
}

func TestReferencedColumns(t *testing.T) {
	s := pathSession(t, writeDataset(t))
	p, _, err := s.bindStatement("SELECT upper(name), `struct`.`id` FROM base_table WHERE id > 1 AND name LIKE 'x%'")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "struct"}, p.columns)

	p, _, err = s.bindStatement("SELECT * FROM base_table WHERE id > 1")
	require.NoError(t, err)
	assert.Nil(t, p.columns)
}
