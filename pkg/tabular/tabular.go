// Package tabular is the public surface of the indexing pipeline. A
// TabularData binds one source file to one output directory and exposes the
// pipeline steps: header indexing, row-offset indexing, and the
// dictionary-encoding transpose.
package tabular

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/eunmann/tabular-index/pkg/format"
	"github.com/eunmann/tabular-index/pkg/headerindex"
	"github.com/eunmann/tabular-index/pkg/rowindex"
	"github.com/eunmann/tabular-index/pkg/transpose"
)

var (
	// ErrInvalidConfig indicates an empty path or an unusable option.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNotIndexed indicates a pipeline step was invoked before the step
	// it depends on.
	ErrNotIndexed = errors.New("required index step has not run")
	// ErrCorruptIndex indicates an on-disk index with an invalid size.
	ErrCorruptIndex = errors.New("index file corrupt")
)

// Config holds the tunables shared by the pipeline steps.
type Config struct {
	// Delimiter and Quote are single bytes; defaults are ',' and '"'.
	Delimiter byte
	Quote     byte
	// SkipFaultyRows drops width-mismatched rows instead of failing.
	SkipFaultyRows bool
	// NumWorkers is the scan/transpose parallelism and must be positive;
	// DefaultConfig selects NumCPU.
	NumWorkers int
	// ChunkBytes is the per-worker read buffer size; 0 selects 1 MiB.
	ChunkBytes int
	// ColumnsPerGroup is the transpose group width; 0 selects 100000.
	ColumnsPerGroup int
	// CompressShards controls the transient row-offset shard encoding.
	CompressShards bool
	// WriteColumns persists encoded columns and dictionaries during the
	// transpose.
	WriteColumns bool
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Delimiter:       ',',
		Quote:           '"',
		NumWorkers:      runtime.NumCPU(),
		ChunkBytes:      1 << 20,
		ColumnsPerGroup: 100000,
		CompressShards:  true,
	}
}

// TabularData indexes one delimited file into one output directory.
//
// The pipeline steps mutate the receiver and are not safe for concurrent
// use; concurrent GetHeader calls after ParseHeaderRow are fine.
type TabularData struct {
	csvPath string
	outDir  string
	cfg     Config

	headerParsed bool
	rowsIndexed  bool
	columnCount  int
	dataStart    uint64
	rowCount     uint64
	headers      []string

	readerMu sync.Mutex
	reader   *headerindex.Reader
}

// New constructs a TabularData with the default configuration, creating
// outDir if missing.
func New(csvPath, outDir string) (*TabularData, error) {
	return NewWithConfig(csvPath, outDir, DefaultConfig())
}

// NewWithConfig constructs a TabularData with an explicit configuration.
func NewWithConfig(csvPath, outDir string, cfg Config) (*TabularData, error) {
	if csvPath == "" {
		return nil, fmt.Errorf("%w: empty csv path", ErrInvalidConfig)
	}
	if outDir == "" {
		return nil, fmt.Errorf("%w: empty output dir", ErrInvalidConfig)
	}
	if cfg.NumWorkers <= 0 {
		return nil, fmt.Errorf("%w: worker count must be positive", ErrInvalidConfig)
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	if cfg.Quote == 0 {
		cfg.Quote = '"'
	}
	if cfg.ChunkBytes == 0 {
		cfg.ChunkBytes = 1 << 20
	}
	if cfg.ColumnsPerGroup == 0 {
		cfg.ColumnsPerGroup = 100000
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &TabularData{csvPath: csvPath, outDir: outDir, cfg: cfg}, nil
}

// SetSkipFaultyRows toggles the width-mismatch policy for subsequent steps.
func (t *TabularData) SetSkipFaultyRows(skip bool) {
	t.cfg.SkipFaultyRows = skip
}

// Close releases any cached readers.
func (t *TabularData) Close() error {
	t.readerMu.Lock()
	defer t.readerMu.Unlock()
	if t.reader != nil {
		err := t.reader.Close()
		t.reader = nil
		return err
	}
	return nil
}

// ParseHeaderRow indexes the header row, writing the header offset index
// and the decoded headers JSON, and fixes the column count.
func (t *TabularData) ParseHeaderRow() error {
	res, err := headerindex.Parse(t.csvPath, t.outDir, t.cfg.Delimiter, t.cfg.Quote)
	if err != nil {
		return err
	}
	if _, err := headerindex.BuildNameLookup(t.outDir, res.Headers); err != nil {
		return err
	}

	t.headerParsed = true
	t.columnCount = res.ColumnCount
	t.dataStart = res.DataStart
	t.headers = res.Headers

	// Invalidate any reader opened against a previous index.
	t.readerMu.Lock()
	if t.reader != nil {
		t.reader.Close()
		t.reader = nil
	}
	t.readerMu.Unlock()
	return nil
}

func (t *TabularData) headerReader() (*headerindex.Reader, error) {
	t.readerMu.Lock()
	defer t.readerMu.Unlock()
	if t.reader == nil {
		r, err := headerindex.OpenReader(t.csvPath, t.outDir, t.cfg.Quote)
		if err != nil {
			return nil, err
		}
		t.reader = r
	}
	return t.reader, nil
}

// Headers returns the decoded header row when ParseHeaderRow has run on
// this instance, nil otherwise.
func (t *TabularData) Headers() []string {
	return t.headers
}

// GetHeader returns the decoded value of header column i by random access
// against the header index.
func (t *TabularData) GetHeader(i int) (string, error) {
	r, err := t.headerReader()
	if err != nil {
		return "", err
	}
	return r.Get(i)
}

// GetColumnCount returns the number of header columns, from memory when the
// header was parsed by this instance, otherwise from the index file.
func (t *TabularData) GetColumnCount() (uint32, error) {
	if t.headerParsed {
		return uint32(t.columnCount), nil
	}
	n, err := headerindex.ColumnCountFromFile(t.outDir)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// ColumnIndex returns the 0-based column whose header equals name.
func (t *TabularData) ColumnIndex(name string) (int, error) {
	r, err := t.headerReader()
	if err != nil {
		return -1, err
	}
	return r.ColumnIndex(t.outDir, name)
}

// FindRowOffsets scans the data region and writes the row-offset index.
// ParseHeaderRow must have run on this instance.
func (t *TabularData) FindRowOffsets(ctx context.Context) error {
	if !t.headerParsed {
		return fmt.Errorf("%w: ParseHeaderRow must run before FindRowOffsets", ErrNotIndexed)
	}

	res, err := rowindex.Index(ctx, t.csvPath, t.outDir, t.dataStart, t.columnCount, rowindex.Config{
		Delim:          t.cfg.Delimiter,
		Quote:          t.cfg.Quote,
		NumWorkers:     t.cfg.NumWorkers,
		ChunkBytes:     t.cfg.ChunkBytes,
		SkipFaultyRows: t.cfg.SkipFaultyRows,
		CompressShards: t.cfg.CompressShards,
	})
	if err != nil {
		return err
	}
	t.rowsIndexed = true
	t.rowCount = res.RowCount
	return nil
}

// GetRowCount returns the number of validated data rows, from memory when
// rows were indexed by this instance, otherwise from the offset file.
func (t *TabularData) GetRowCount() (uint32, error) {
	if t.rowsIndexed {
		return uint32(t.rowCount), nil
	}
	info, err := os.Stat(filepath.Join(t.outDir, rowindex.OffsetsFileName))
	if os.IsNotExist(err) {
		return 0, fmt.Errorf("%w: row offsets not built", ErrNotIndexed)
	}
	if err != nil {
		return 0, fmt.Errorf("stat row offsets: %w", err)
	}
	if info.Size()%8 != 0 {
		return 0, fmt.Errorf("%w: row offset file size %d not a multiple of 8", ErrCorruptIndex, info.Size())
	}
	return uint32(info.Size() / 8), nil
}

// MapIntTranspose dictionary-encodes the table over the existing row-offset
// index, writing the column-chunk metadata records.
func (t *TabularData) MapIntTranspose(ctx context.Context) error {
	cols, err := t.GetColumnCount()
	if err != nil {
		return err
	}
	offsets, err := t.loadRowOffsets()
	if err != nil {
		return err
	}

	_, err = transpose.Run(ctx, t.csvPath, t.outDir, offsets, int(cols), transpose.Config{
		Delim:           t.cfg.Delimiter,
		Quote:           t.cfg.Quote,
		NumWorkers:      t.cfg.NumWorkers,
		ColumnsPerGroup: t.cfg.ColumnsPerGroup,
		ChunkBytes:      t.cfg.ChunkBytes,
		WriteColumns:    t.cfg.WriteColumns,
	})
	return err
}

// loadRowOffsets reads the merged row-offset file.
func (t *TabularData) loadRowOffsets() ([]uint64, error) {
	path := filepath.Join(t.outDir, rowindex.OffsetsFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: row offsets not built", ErrNotIndexed)
	}

	m, err := format.OpenMmap(path)
	if err != nil {
		return nil, fmt.Errorf("mmap row offsets: %w", err)
	}
	defer m.Close()

	if m.Size()%8 != 0 {
		return nil, fmt.Errorf("%w: row offset file size %d not a multiple of 8", ErrCorruptIndex, m.Size())
	}

	data := m.Data()
	offsets := make([]uint64, m.Size()/8)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return offsets, nil
}

// WriteManifest records every artifact of the output directory with sizes
// and checksums.
func (t *TabularData) WriteManifest() error {
	cols, err := t.GetColumnCount()
	if err != nil {
		return err
	}
	rows, err := t.GetRowCount()
	if err != nil && !errors.Is(err, ErrNotIndexed) {
		return err
	}

	names := []string{
		headerindex.OffsetsFileName,
		headerindex.HeadersJSONFileName,
		rowindex.OffsetsFileName,
		transpose.MetaFileName,
		headerindex.MPHFileName,
		headerindex.MPHFPFileName,
		headerindex.MPHColFileName,
	}
	if t.cfg.WriteColumns {
		for c := 0; c < int(cols); c++ {
			names = append(names,
				fmt.Sprintf("col_%d.i32", c),
				fmt.Sprintf("col_%d_dict.blob", c),
				fmt.Sprintf("col_%d_dict_offsets.u64", c),
			)
		}
	}
	return format.WriteManifest(t.outDir, cols, rows, names)
}
