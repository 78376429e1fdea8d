package dataset

import (
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// FileReport describes a parquet file as seen by parquet-go, independently
// of the arrow reader used by the query layer.
type FileReport struct {
	Path    string
	NumRows int64
	// Leaves holds the dotted path of every leaf column in file order.
	Leaves         []string
	RowGroups      []RowGroupReport
	HasArrowSchema bool
}

type RowGroupReport struct {
	NumRows int64
	Chunks  []ChunkReport
}

type ChunkReport struct {
	Leaf      string
	HasBounds bool
	Min       string
	Max       string
	NullCount int64
}

// Inspect opens path with parquet-go and collects its leaf columns and
// column chunk statistics.
func Inspect(path string) (*FileReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioFailure(path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, ioFailure(path, err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, encodingFailure(path, err)
	}

	report := &FileReport{Path: path, NumRows: pf.NumRows()}
	for _, col := range pf.Schema().Columns() {
		report.Leaves = append(report.Leaves, strings.Join(col, "."))
	}
	_, report.HasArrowSchema = pf.Lookup("ARROW:schema")

	for _, rg := range pf.RowGroups() {
		rgReport := RowGroupReport{NumRows: rg.NumRows()}
		for idx, chunk := range rg.ColumnChunks() {
			cr := ChunkReport{Leaf: report.Leaves[idx]}
			if fc, ok := chunk.(*parquet.FileColumnChunk); ok {
				min, max, ok := fc.Bounds()
				if ok {
					cr.HasBounds = true
					cr.Min = min.String()
					cr.Max = max.String()
				}
				cr.NullCount = fc.NullCount()
			}
			rgReport.Chunks = append(rgReport.Chunks, cr)
		}
		report.RowGroups = append(report.RowGroups, rgReport)
	}
	return report, nil
}

// LeavesNamed lists the leaf paths whose last element is name.
func (r *FileReport) LeavesNamed(name string) []string {
	var out []string
	for _, leaf := range r.Leaves {
		parts := strings.Split(leaf, ".")
		if parts[len(parts)-1] == name {
			out = append(out, leaf)
		}
	}
	return out
}

// Chunk returns the statistics of leaf in row group rg.
func (r *FileReport) Chunk(rg int, leaf string) (ChunkReport, bool) {
	if rg < 0 || rg >= len(r.RowGroups) {
		return ChunkReport{}, false
	}
	for _, c := range r.RowGroups[rg].Chunks {
		if c.Leaf == leaf {
			return c, true
		}
	}
	return ChunkReport{}, false
}
