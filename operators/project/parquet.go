package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"nested-scan-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/metadata"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

var (
	_ = (operators.Operator)(&ParquetSource{})
)

var (
	ErrNoParquetInput = errors.New("no parquet input was provided")
	ErrUnknownColumn  = func(name string) error {
		return fmt.Errorf("unknown column %q passed in to be projected", name)
	}
	ErrSchemaMismatch = func(info string) error {
		return fmt.Errorf("parquet inputs do not share a schema: %s", info)
	}
)

// RowGroupSelector picks the row groups of a file that must be read. A nil
// result means every row group.
type RowGroupSelector func(md *metadata.FileMetaData) ([]int, error)

type ParquetOptions struct {
	// top level fields to read, empty means all of them
	Columns   []string
	BatchSize int64
	Parallel  bool
	// SelectRowGroups is consulted once per input file before any data is read
	SelectRowGroups RowGroupSelector
	Allocator       memory.Allocator
	Logger          *slog.Logger
}

func (o ParquetOptions) withDefaults() ParquetOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 1024
	}
	if o.Allocator == nil {
		o.Allocator = memory.NewGoAllocator()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type parquetInput struct {
	file       *file.Reader
	arrow      *pqarrow.FileReader
	leaves     []int
	rowGroups  []int
	skipReader bool
}

// ParquetSource streams the rows of one or more parquet inputs in order.
type ParquetSource struct {
	schema *arrow.Schema
	opts   ParquetOptions
	inputs []*parquetInput

	cur     int
	reader  pqarrow.RecordReader
	pending arrow.Record

	rowGroupsTotal int
	rowGroupsRead  int
	done           bool // if set to true always return io.EOF
}

func NewParquetSource(r parquet.ReaderAtSeeker, opts ParquetOptions) (*ParquetSource, error) {
	return NewMultiParquetSource([]parquet.ReaderAtSeeker{r}, opts)
}

// NewMultiParquetSource reads every input one after the other. All inputs
// must carry the same schema (field metadata aside).
func NewMultiParquetSource(readers []parquet.ReaderAtSeeker, opts ParquetOptions) (*ParquetSource, error) {
	if len(readers) == 0 {
		return nil, ErrNoParquetInput
	}
	opts = opts.withDefaults()
	ps := &ParquetSource{opts: opts}

	for i, r := range readers {
		in, schema, err := ps.openInput(r)
		if err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		ps.inputs = append(ps.inputs, in)
		if ps.schema == nil {
			ps.schema = schema
			continue
		}
		if !sameFields(ps.schema, schema) {
			_ = ps.Close()
			return nil, ErrSchemaMismatch(fmt.Sprintf("input %d has %s, expected %s", i, schema, ps.schema))
		}
	}
	opts.Logger.Debug("parquet source opened",
		slog.Int("inputs", len(ps.inputs)),
		slog.Int("row_groups_total", ps.rowGroupsTotal),
		slog.Int("row_groups_read", ps.rowGroupsRead))
	return ps, nil
}

func (ps *ParquetSource) openInput(r parquet.ReaderAtSeeker) (*parquetInput, *arrow.Schema, error) {
	fileReader, err := file.NewParquetReader(r, file.WithReadProps(parquet.NewReaderProperties(ps.opts.Allocator)))
	if err != nil {
		return nil, nil, err
	}
	arrowReader, err := pqarrow.NewFileReader(
		fileReader,
		pqarrow.ArrowReadProperties{Parallel: ps.opts.Parallel, BatchSize: ps.opts.BatchSize},
		ps.opts.Allocator,
	)
	if err != nil {
		_ = fileReader.Close()
		return nil, nil, err
	}
	full, err := arrowReader.Schema()
	if err != nil {
		_ = fileReader.Close()
		return nil, nil, err
	}
	schema, leaves, err := projectLeaves(full, fileReader.MetaData(), ps.opts.Columns)
	if err != nil {
		_ = fileReader.Close()
		return nil, nil, err
	}

	in := &parquetInput{file: fileReader, arrow: arrowReader, leaves: leaves}
	md := fileReader.MetaData()
	ps.rowGroupsTotal += len(md.RowGroups)
	if ps.opts.SelectRowGroups != nil {
		in.rowGroups, err = ps.opts.SelectRowGroups(md)
		if err != nil {
			_ = fileReader.Close()
			return nil, nil, err
		}
	}
	switch {
	case in.rowGroups == nil:
		ps.rowGroupsRead += len(md.RowGroups)
	case len(in.rowGroups) == 0:
		in.skipReader = true
	default:
		ps.rowGroupsRead += len(in.rowGroups)
	}
	if fileReader.NumRows() == 0 {
		in.skipReader = true
	}
	return in, schema, nil
}

// projectLeaves keeps the wanted top level fields and finds the parquet leaf
// columns backing them. Nested fields own several leaves.
func projectLeaves(full *arrow.Schema, md *metadata.FileMetaData, columns []string) (*arrow.Schema, []int, error) {
	if len(columns) == 0 {
		return full, nil, nil
	}
	wanted := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if len(full.FieldIndices(c)) == 0 {
			return nil, nil, ErrUnknownColumn(c)
		}
		wanted[c] = struct{}{}
	}
	fields := make([]arrow.Field, 0, len(columns))
	for _, f := range full.Fields() {
		if _, ok := wanted[f.Name]; ok {
			fields = append(fields, f)
		}
	}
	var leaves []int
	for i := 0; i < md.Schema.NumColumns(); i++ {
		path := md.Schema.Column(i).ColumnPath()
		if len(path) == 0 {
			continue
		}
		if _, ok := wanted[path[0]]; ok {
			leaves = append(leaves, i)
		}
	}
	return arrow.NewSchema(fields, nil), leaves, nil
}

func sameFields(a, b *arrow.Schema) bool {
	if a.NumFields() != b.NumFields() {
		return false
	}
	for i := 0; i < a.NumFields(); i++ {
		fa, fb := a.Field(i), b.Field(i)
		if fa.Name != fb.Name || fa.Nullable != fb.Nullable || !arrow.TypeEqual(fa.Type, fb.Type) {
			return false
		}
	}
	return true
}

// RowGroups reports how many row groups exist across all inputs and how many
// survived row group selection.
func (ps *ParquetSource) RowGroups() (total, read int) {
	return ps.rowGroupsTotal, ps.rowGroupsRead
}

// Next returns up to n rows. Record boundaries of the underlying readers are
// hidden: rows from several records are concatenated and any excess is kept
// for the following call.
func (ps *ParquetSource) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, errors.New("must pass in wanted batch size > 0")
	}
	if ps.done {
		return nil, io.EOF
	}
	var pieces []arrow.Record
	var rows int64
	for rows < int64(n) {
		rec, err := ps.nextRecord()
		if errors.Is(err, io.EOF) {
			ps.done = true
			break
		}
		if err != nil {
			releaseRecords(pieces)
			return nil, err
		}
		need := int64(n) - rows
		if rec.NumRows() > need {
			ps.pending = rec.NewSlice(need, rec.NumRows())
			head := rec.NewSlice(0, need)
			rec.Release()
			rec = head
		}
		if rec.NumRows() == 0 {
			rec.Release()
			continue
		}
		rows += rec.NumRows()
		pieces = append(pieces, rec)
	}
	if len(pieces) == 0 {
		return nil, io.EOF
	}
	defer releaseRecords(pieces)

	columns := make([]arrow.Array, ps.schema.NumFields())
	for colIdx := range columns {
		if len(pieces) == 1 {
			col := pieces[0].Column(colIdx)
			col.Retain()
			columns[colIdx] = col
			continue
		}
		parts := make([]arrow.Array, len(pieces))
		for i, p := range pieces {
			parts[i] = p.Column(colIdx)
		}
		combined, err := array.Concatenate(parts, ps.opts.Allocator)
		if err != nil {
			operators.ReleaseArrays(columns)
			return nil, err
		}
		columns[colIdx] = combined
	}
	ps.opts.Logger.Debug("parquet batch read",
		slog.Int64("rows", rows),
		slog.Int("records", len(pieces)))
	return &operators.RecordBatch{
		Schema:   ps.schema,
		Columns:  columns,
		RowCount: uint64(rows),
	}, nil
}

func (ps *ParquetSource) nextRecord() (arrow.Record, error) {
	for {
		if ps.pending != nil {
			rec := ps.pending
			ps.pending = nil
			return rec, nil
		}
		if ps.reader == nil {
			if err := ps.openNextReader(); err != nil {
				return nil, err
			}
		}
		if ps.reader.Next() {
			rec := ps.reader.Record()
			rec.Retain()
			return rec, nil
		}
		err := ps.reader.Err()
		ps.reader.Release()
		ps.reader = nil
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
}

func (ps *ParquetSource) openNextReader() error {
	for ps.cur < len(ps.inputs) {
		in := ps.inputs[ps.cur]
		ps.cur++
		if in.skipReader {
			continue
		}
		rdr, err := in.arrow.GetRecordReader(context.TODO(), in.leaves, in.rowGroups)
		if err != nil {
			return err
		}
		ps.reader = rdr
		return nil
	}
	return io.EOF
}

func (ps *ParquetSource) Close() error {
	if ps.pending != nil {
		ps.pending.Release()
		ps.pending = nil
	}
	if ps.reader != nil {
		ps.reader.Release()
		ps.reader = nil
	}
	var errs []error
	for _, in := range ps.inputs {
		if err := in.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	ps.inputs = nil
	ps.done = true
	return errors.Join(errs...)
}

func (ps *ParquetSource) Schema() *arrow.Schema {
	return ps.schema
}

func releaseRecords(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}
