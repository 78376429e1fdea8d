package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"nested-scan-go/config"
	"nested-scan-go/operators"
	"nested-scan-go/operators/filter"
	"nested-scan-go/operators/project"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/minio/minio-go"
)

// BaseTable is the name the harness registers its parquet file under.
const BaseTable = "base_table"

type Options struct {
	TableName string
	BatchSize int
	Parallel  bool
	// EnablePruning skips row groups using column chunk statistics
	EnablePruning bool
	Resolution    filter.ColumnResolution
	// Secrets are only needed for s3:// tables
	Secrets   *config.Secrets
	Allocator memory.Allocator
	Logger    *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		TableName:     BaseTable,
		BatchSize:     1024,
		EnablePruning: true,
		Resolution:    filter.ResolveByLeafName,
	}
}

func OptionsFromConfig(cfg *config.Config, secrets *config.Secrets, logger *slog.Logger) (Options, error) {
	res, err := filter.ParseColumnResolution(cfg.Query.ColumnResolution)
	if err != nil {
		return Options{}, err
	}
	opts := DefaultOptions()
	if cfg.Query.TableName != "" {
		opts.TableName = cfg.Query.TableName
	}
	if cfg.Scan.BatchSize > 0 {
		opts.BatchSize = cfg.Scan.BatchSize
	}
	opts.Parallel = cfg.Scan.EnableParallelRead
	opts.EnablePruning = cfg.Query.EnablePruning
	opts.Resolution = res
	opts.Secrets = secrets
	opts.Logger = logger
	return opts, nil
}

func (o Options) withDefaults() Options {
	if o.TableName == "" {
		o.TableName = BaseTable
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1024
	}
	if o.BatchSize > 1<<16-1 {
		o.BatchSize = 1<<16 - 1
	}
	if o.Resolution == "" {
		o.Resolution = filter.ResolveByLeafName
	}
	if o.Allocator == nil {
		o.Allocator = memory.NewGoAllocator()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type table struct {
	name   string
	source string
	// files are local paths or s3 uris, read in this order
	files  []string
	remote bool
	schema *arrow.Schema
	// record backs tables registered from memory; files is empty then
	record arrow.Record
}

// Session owns the table registry. Registration takes the write lock,
// statements only read it, so a session can serve concurrent statements.
type Session struct {
	opts   Options
	logger *slog.Logger

	mu     sync.RWMutex
	tables map[string]*table
	s3     *minio.Client
	closed bool
}

func NewSession(opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		opts:   opts,
		logger: opts.Logger,
		tables: make(map[string]*table),
	}
}

func (s *Session) Options() Options {
	return s.opts
}

// Register makes path queryable as name. path is a parquet file, a flat
// directory of *.parquet files or an s3://bucket/key uri. The schema is read
// from the file footer; every file of a directory must share it.
func (s *Session) Register(ctx context.Context, name, path string) error {
	if name == "" {
		return registrationFailure(name, path, errors.New("table name is empty"))
	}
	t := &table{name: name, source: path}
	if project.IsS3URI(path) {
		if _, err := s.s3Client(); err != nil {
			return registrationFailure(name, path, err)
		}
		t.files = []string{path}
		t.remote = true
	} else {
		files, err := listParquetFiles(path)
		if err != nil {
			return registrationFailure(name, path, err)
		}
		t.files = files
	}

	src, err := s.openSource(ctx, t, project.ParquetOptions{})
	if err != nil {
		return registrationFailure(name, path, err)
	}
	t.schema = src.Schema()
	if err := src.Close(); err != nil {
		return registrationFailure(name, path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return registrationFailure(name, path, errors.New("session is closed"))
	}
	key := strings.ToLower(name)
	if old, ok := s.tables[key]; ok && old.record != nil {
		old.record.Release()
	}
	s.tables[key] = t
	s.logger.Debug("table registered",
		slog.String("table", name),
		slog.String("source", path),
		slog.Int("files", len(t.files)),
		slog.String("schema", t.schema.String()))
	return nil
}

// RegisterRecord makes an in-memory record queryable as name. The session
// keeps its own reference until Close. Statements over it never prune.
func (s *Session) RegisterRecord(name string, rec arrow.Record) error {
	if name == "" {
		return registrationFailure(name, "memory", errors.New("table name is empty"))
	}
	if rec == nil {
		return registrationFailure(name, "memory", errors.New("record is nil"))
	}
	if err := operators.ValidateColumns(rec.Schema(), rec.Columns()); err != nil {
		return registrationFailure(name, "memory", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return registrationFailure(name, "memory", errors.New("session is closed"))
	}
	rec.Retain()
	key := strings.ToLower(name)
	if old, ok := s.tables[key]; ok && old.record != nil {
		old.record.Release()
	}
	s.tables[key] = &table{name: name, source: "memory", schema: rec.Schema(), record: rec}
	s.logger.Debug("table registered",
		slog.String("table", name),
		slog.String("source", "memory"),
		slog.Int64("rows", rec.NumRows()))
	return nil
}

func listParquetFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".parquet") {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("directory %s holds no .parquet files", path)
	}
	sort.Strings(files)
	return files, nil
}

func (s *Session) s3Client() (*minio.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s3 != nil {
		return s.s3, nil
	}
	if s.opts.Secrets == nil {
		return nil, project.ErrMissingSecrets("no object storage secrets were loaded")
	}
	client, err := project.NewS3Client(*s.opts.Secrets)
	if err != nil {
		return nil, err
	}
	s.s3 = client
	return client, nil
}

// openSource opens fresh read handles for every file of t. The returned
// source owns them.
func (s *Session) openSource(ctx context.Context, t *table, popts project.ParquetOptions) (*project.ParquetSource, error) {
	readers := make([]parquet.ReaderAtSeeker, 0, len(t.files))
	closeAll := func() {
		for _, r := range readers {
			if c, ok := r.(interface{ Close() error }); ok {
				_ = c.Close()
			}
		}
	}
	for _, f := range t.files {
		if t.remote {
			client, err := s.s3Client()
			if err != nil {
				closeAll()
				return nil, err
			}
			nr, err := project.NewStreamReader(ctx, client, f)
			if err != nil {
				closeAll()
				return nil, err
			}
			readers = append(readers, nr)
			continue
		}
		fh, err := os.Open(f)
		if err != nil {
			closeAll()
			return nil, err
		}
		readers = append(readers, fh)
	}
	popts.BatchSize = int64(s.opts.BatchSize)
	popts.Parallel = s.opts.Parallel
	popts.Allocator = s.opts.Allocator
	popts.Logger = s.logger
	src, err := project.NewMultiParquetSource(readers, popts)
	if err != nil {
		closeAll()
		return nil, err
	}
	return src, nil
}

func (s *Session) lookup(name string) (*table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: session is closed", ErrExecutionFailure)
	}
	t, ok := s.tables[strings.ToLower(name)]
	if !ok {
		return nil, ErrUnknownTable(name)
	}
	return t, nil
}

// Tables lists the registered table names in sorted order.
func (s *Session) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for _, t := range s.tables {
		names = append(names, t.name)
	}
	sort.Strings(names)
	return names
}

func (s *Session) TableSchema(name string) (*arrow.Schema, error) {
	t, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return t.schema, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, t := range s.tables {
		if t.record != nil {
			t.record.Release()
		}
	}
	s.tables = make(map[string]*table)
	return nil
}
