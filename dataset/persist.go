package dataset

import (
	"errors"
	"fmt"
	"io"
	"nested-scan-go/config"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/google/uuid"
)

type WriteOptions struct {
	Compression       compress.Compression
	MaxRowGroupLength int64
	// StoreSchema keeps the arrow schema in the file's key value metadata
	StoreSchema      bool
	EnableStatistics bool
}

func DefaultWriteOptions() WriteOptions {
	return WriteOptions{
		Compression:       compress.Codecs.Uncompressed,
		MaxRowGroupLength: parquet.DefaultMaxRowGroupLen,
		StoreSchema:       true,
		EnableStatistics:  true,
	}
}

func WriteOptionsFromConfig(cfg *config.Config) (WriteOptions, error) {
	opts := DefaultWriteOptions()
	codec, err := ParseCompression(cfg.Dataset.Compression)
	if err != nil {
		return opts, err
	}
	opts.Compression = codec
	if cfg.Dataset.MaxRowGroupLength > 0 {
		opts.MaxRowGroupLength = cfg.Dataset.MaxRowGroupLength
	}
	opts.StoreSchema = cfg.Dataset.StoreSchema
	opts.EnableStatistics = cfg.Dataset.EnableStatistics
	return opts, nil
}

func ParseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "uncompressed", "none":
		return compress.Codecs.Uncompressed, nil
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	}
	return compress.Codecs.Uncompressed, fmt.Errorf("unknown compression %q", name)
}

func (o WriteOptions) writerProperties() *parquet.WriterProperties {
	return parquet.NewWriterProperties(
		parquet.WithCompression(o.Compression),
		parquet.WithMaxRowGroupLength(o.MaxRowGroupLength),
		parquet.WithStats(o.EnableStatistics),
	)
}

func (o WriteOptions) arrowProperties() pqarrow.ArrowWriterProperties {
	if o.StoreSchema {
		return pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	}
	return pqarrow.DefaultWriterProps()
}

// writerOnly hides Close from the parquet writer so the file can be synced
// before it is closed.
type writerOnly struct{ w io.Writer }

func (w writerOnly) Write(p []byte) (int, error) { return w.w.Write(p) }

// Persist writes rec to path as a parquet file. The data goes to a temporary
// file next to path which is renamed over path only once it is complete, so
// path never holds a partial file.
func Persist(path string, rec arrow.Record, opts WriteOptions) (err error) {
	if rec == nil {
		return encodingFailure(path, errors.New("record is nil"))
	}
	if err := Validate(rec.Schema(), rec); err != nil {
		var se *StorageError
		if errors.As(err, &se) {
			se.Path = path
		}
		return err
	}
	dir := filepath.Dir(path)
	if info, statErr := os.Stat(dir); statErr != nil {
		return ioFailure(path, statErr)
	} else if !info.IsDir() {
		return ioFailure(path, fmt.Errorf("%s is not a directory", dir))
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return ioFailure(path, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	fw, err := pqarrow.NewFileWriter(rec.Schema(), writerOnly{f}, opts.writerProperties(), opts.arrowProperties())
	if err != nil {
		return encodingFailure(path, err)
	}
	if err = fw.Write(rec); err != nil {
		_ = fw.Close()
		return encodingFailure(path, err)
	}
	if err = fw.Close(); err != nil {
		return ioFailure(path, err)
	}
	if err = f.Sync(); err != nil {
		return ioFailure(path, err)
	}
	if err = f.Close(); err != nil {
		return ioFailure(path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return ioFailure(path, err)
	}
	return nil
}

// BuildAndPersist builds the harness batch and writes it to path.
func BuildAndPersist(path string, opts WriteOptions) error {
	rec, err := NewBatch(memory.DefaultAllocator)
	if err != nil {
		return err
	}
	defer rec.Release()
	return Persist(path, rec, opts)
}
