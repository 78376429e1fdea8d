package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"nested-scan-go/config"
	"nested-scan-go/dataset"
	"nested-scan-go/query"
	"nested-scan-go/server"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if len(os.Args) > 1 {
		if err := config.Decode(os.Args[1]); err != nil {
			slog.Error("failed to load config", slog.String("stage", "config"), slog.String("path", os.Args[1]), slog.Any("error", err))
			os.Exit(1)
		}
	}
	cfg := config.GetConfig()
	logger, err := newLogger(os.Stderr, cfg)
	if err != nil {
		slog.Error("invalid logging config", slog.String("stage", "config"), slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("harness failed", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	secrets, err := loadSecrets(".env")
	if err != nil {
		return &stageError{"secrets", err}
	}

	path := cfg.Dataset.Path
	writeOpts, err := dataset.WriteOptionsFromConfig(cfg)
	if err != nil {
		return &stageError{"build", err}
	}
	if err := dataset.BuildAndPersist(path, writeOpts); err != nil {
		return &stageError{"build", err}
	}
	logger.Info("dataset written", slog.String("path", path))
	if report, err := dataset.Inspect(path); err != nil {
		logger.Warn("could not inspect dataset", slog.Any("error", err))
	} else {
		logger.Debug("dataset layout",
			slog.Any("leaves", report.Leaves),
			slog.Int("row_groups", len(report.RowGroups)),
			slog.Int64("rows", report.NumRows))
	}

	opts, err := query.OptionsFromConfig(cfg, secrets, logger)
	if err != nil {
		return &stageError{"query", err}
	}
	results, err := query.RunQueries(ctx, path, opts)
	if err != nil {
		return &stageError{"query", err}
	}
	if err := query.RenderAll(out, results); err != nil {
		return &stageError{"render", err}
	}

	if cfg.Query.CrossCheck {
		if err := crossCheck(ctx, path, opts, logger); err != nil {
			return &stageError{"cross_check", err}
		}
	}
	if cfg.Server.Enabled {
		if err := serve(ctx, cfg, path, opts, logger); err != nil {
			return &stageError{"serve", err}
		}
	}
	return nil
}

// loadSecrets reads object storage credentials from path when it exists.
func loadSecrets(path string) (*config.Secrets, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	s, err := config.LoadSecrets(path)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func crossCheck(ctx context.Context, path string, opts query.Options, logger *slog.Logger) error {
	native := query.NewSession(opts)
	defer native.Close()
	if err := native.Register(ctx, opts.TableName, path); err != nil {
		return err
	}
	reference, err := query.NewDuckEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer reference.Close()
	if err := reference.Register(ctx, opts.TableName, path); err != nil {
		return err
	}
	diffs, err := query.CrossCheck(ctx, native, reference, query.Statements(opts.TableName))
	if err != nil {
		return err
	}
	for _, d := range diffs {
		logger.Warn("engines disagree",
			slog.String("statement", d.Statement),
			slog.Int("native_rows", d.NativeRows),
			slog.Int("reference_rows", d.ReferenceRows),
			slog.Any("missing", d.MissingRows),
			slog.Any("extra", d.ExtraRows),
			slog.String("resolution", string(opts.Resolution)))
	}
	if len(diffs) == 0 {
		logger.Info("engines agree", slog.Int("statements", len(query.Statements(opts.TableName))))
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, path string, opts query.Options, logger *slog.Logger) error {
	session := query.NewSession(opts)
	defer session.Close()
	if err := session.Register(ctx, opts.TableName, path); err != nil {
		return err
	}
	return server.New(session, logger).Serve(ctx, cfg.ServerAddr())
}
