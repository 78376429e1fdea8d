package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"nested-scan-go/config"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := *config.GetConfig()
	cfg.Dataset.Path = filepath.Join(t.TempDir(), "nested.parquet")
	return &cfg
}

func TestRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("default resolution", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run(context.Background(), testConfig(t), logger, &out))
		assert.Contains(t, out.String(), "{id: 3, name: aaa1}")
		assert.Contains(t, out.String(), "(2 rows)")
		assert.Contains(t, out.String(), "(0 rows)")
	})
	t.Run("path resolution with cross check", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Query.ColumnResolution = "path"
		cfg.Query.CrossCheck = true
		var out bytes.Buffer
		require.NoError(t, run(context.Background(), cfg, logger, &out))
		assert.Equal(t, 1, strings.Count(out.String(), "(1 rows)"))
	})
	t.Run("bad directory fails the build stage", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Dataset.Path = filepath.Join(t.TempDir(), "missing", "nested.parquet")
		err := run(context.Background(), cfg, logger, io.Discard)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "build:"), err.Error())
	})
	t.Run("bad resolution fails the query stage", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Query.ColumnResolution = "guess"
		err := run(context.Background(), cfg, logger, io.Discard)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "query:"), err.Error())
	})
}

func TestNewLogger(t *testing.T) {
	cfg := *config.GetConfig()
	var buf bytes.Buffer

	cfg.Logging.Format = "json"
	cfg.Logging.Level = "debug"
	logger, err := newLogger(&buf, &cfg)
	require.NoError(t, err)
	logger.Debug("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	cfg.Logging.Format = "xml"
	_, err = newLogger(&buf, &cfg)
	require.Error(t, err)

	cfg.Logging.Format = "text"
	cfg.Logging.Level = "loud"
	_, err = newLogger(&buf, &cfg)
	require.Error(t, err)
}
