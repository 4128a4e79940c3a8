// Package transpose dictionary-encodes the table into integer column arrays.
//
// Columns are processed in groups. Within a group, workers tokenize disjoint
// row ranges at known byte cursors, assigning dense per-worker ids from
// local dictionaries; after join, the locals are reconciled into one global
// dictionary per column and the matrix is relabeled in place. Global id
// assignment iterates workers 0..N-1 and dictionary keys in lexicographic
// order, so the mapping is reproducible for a given worker count and input.
package transpose

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/eunmann/tabular-index/internal/logctx"
	"github.com/eunmann/tabular-index/pkg/logging"
	"github.com/eunmann/tabular-index/pkg/membudget"
)

// MetaFileName is the column-chunk metadata file: packed (u32 ncols,
// u32 max_global_id) little-endian records, one per processed column group.
const MetaFileName = "column_chunk_meta.bin"

// ErrInvalidConfig indicates an unusable transpose configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config controls the transpose.
type Config struct {
	// Delim and Quote are the single-byte delimiter and quote.
	Delim byte
	Quote byte
	// NumWorkers is the number of parallel tokenize workers.
	NumWorkers int
	// ColumnsPerGroup bounds the matrix width held in memory at once.
	ColumnsPerGroup int
	// ChunkBytes is the per-worker read buffer size.
	ChunkBytes int
	// WriteColumns persists each encoded column and its dictionary under
	// the output directory in addition to the metadata records.
	WriteColumns bool
}

// DefaultConfig returns the default transpose configuration.
func DefaultConfig() Config {
	return Config{
		Delim:           ',',
		Quote:           '"',
		NumWorkers:      runtime.NumCPU(),
		ColumnsPerGroup: 100000,
		ChunkBytes:      1 << 20,
	}
}

// Validate normalizes zero delimiter, quote, group, and buffer values. The
// worker count is never defaulted here; a non-positive count fails the run.
func (c *Config) Validate() error {
	if c.Delim == 0 {
		c.Delim = ','
	}
	if c.Quote == 0 {
		c.Quote = '"'
	}
	if c.ColumnsPerGroup <= 0 {
		c.ColumnsPerGroup = 100000
	}
	if c.ChunkBytes <= 0 {
		c.ChunkBytes = 1 << 20
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("%w: worker count must be positive", ErrInvalidConfig)
	}
	return nil
}

// GroupStats summarizes one processed column group.
type GroupStats struct {
	// Cols is the number of columns in the group.
	Cols int
	// MaxGlobalID is the greatest global id assigned across the group's
	// columns.
	MaxGlobalID uint32
}

// Result summarizes a transpose run.
type Result struct {
	Groups []GroupStats
}

// rowRange is a half-open range of row indices owned by one worker.
type rowRange struct {
	start, end int
}

// Run tokenizes every data row of csvPath at the given row-start offsets,
// encodes each column group, and appends metadata records into outDir.
func Run(ctx context.Context, csvPath, outDir string, rowOffsets []uint64, columnCount int, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logctx.FromContext(ctx).With().Str("phase", "transpose").Logger()
	start := time.Now()

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	metaFile, err := os.Create(filepath.Join(outDir, MetaFileName))
	if err != nil {
		return nil, fmt.Errorf("create chunk meta: %w", err)
	}
	metaW := bufio.NewWriter(metaFile)

	rowCount := len(rowOffsets)
	// Cursors start at the row offsets and advance across groups, so each
	// group resumes tokenizing row r exactly where the previous stopped.
	cursors := slices.Clone(rowOffsets)
	ranges := partitionRows(rowCount, cfg.NumWorkers)

	// Shrink the group width if the configured one would not fit in RAM.
	groupCols := membudget.FromSystemRAM().MaxGroupColumns(cfg.ColumnsPerGroup, rowCount, 4)

	log.Info().
		Int("rows_count", rowCount).
		Int("columns_count", columnCount).
		Int("workers_count", cfg.NumWorkers).
		Int("columns_per_group", groupCols).
		Msg("starting transpose")

	res := &Result{}
	for cStart := 0; cStart < columnCount; cStart += groupCols {
		groupStart := time.Now()
		cEnd := min(cStart+groupCols, columnCount)
		ncols := cEnd - cStart

		data := make([][]int32, ncols)
		for j := range data {
			data[j] = make([]int32, rowCount)
		}

		locals, err := encodeGroup(ctx, csvPath, cursors, ranges, data, ncols, cfg)
		if err != nil {
			metaFile.Close()
			return nil, err
		}

		maxID, err := mergeGroup(outDir, cStart, data, locals, ranges, cfg)
		if err != nil {
			metaFile.Close()
			return nil, err
		}

		var rec [8]byte
		binary.LittleEndian.PutUint32(rec[0:4], uint32(ncols))
		binary.LittleEndian.PutUint32(rec[4:8], maxID)
		if _, err := metaW.Write(rec[:]); err != nil {
			metaFile.Close()
			return nil, fmt.Errorf("write chunk meta: %w", err)
		}

		res.Groups = append(res.Groups, GroupStats{Cols: ncols, MaxGlobalID: maxID})
		logging.ChunkComplete(log, "transpose", time.Since(groupStart)).
			Int("col_start", cStart).
			Int("cols_count", ncols).
			Uint64("max_global_id", uint64(maxID)).
			LogDebug("column group encoded")
	}

	if err := metaW.Flush(); err != nil {
		metaFile.Close()
		return nil, fmt.Errorf("flush chunk meta: %w", err)
	}
	if err := metaFile.Close(); err != nil {
		return nil, fmt.Errorf("close chunk meta: %w", err)
	}

	logging.PhaseComplete(log, "transpose", time.Since(start)).
		Int("groups_count", len(res.Groups)).
		Count("rows_count", int64(rowCount)).
		Int("columns_count", columnCount).
		Log("transpose complete")

	return res, nil
}

// encodeGroup runs the workers for one column group. It returns the local
// dictionaries, indexed [worker][column-in-group].
func encodeGroup(ctx context.Context, csvPath string, cursors []uint64, ranges []rowRange, data [][]int32, ncols int, cfg Config) ([][]map[string]int32, error) {
	n := len(ranges)
	locals := make([][]map[string]int32, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for t := 0; t < n; t++ {
		locals[t] = make([]map[string]int32, ncols)
		for j := range locals[t] {
			locals[t][j] = make(map[string]int32)
		}
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			errs[t] = encodeRows(csvPath, cursors, ranges[t], data, locals[t], ncols, cfg)
		}(t)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return locals, nil
}

// encodeRows tokenizes one worker's row range and writes local ids into the
// group matrix. Cursor entries and matrix cells for these rows are owned
// exclusively by this worker until the join.
func encodeRows(csvPath string, cursors []uint64, rng rowRange, data [][]int32, local []map[string]int32, ncols int, cfg Config) error {
	tr, err := newTokenReader(csvPath, cfg.Delim, cfg.Quote, cfg.ChunkBytes)
	if err != nil {
		return err
	}
	defer tr.Close()

	toks := make([]string, 0, ncols)
	for r := rng.start; r < rng.end; r++ {
		toks, cursors[r], err = tr.readTokens(cursors[r], ncols, toks)
		if err != nil {
			return fmt.Errorf("tokenize row %d: %w", r, err)
		}
		for j := 0; j < ncols; j++ {
			var tok string
			if j < len(toks) {
				tok = toks[j]
			}
			dict := local[j]
			id, ok := dict[tok]
			if !ok {
				id = int32(len(dict))
				dict[tok] = id
			}
			data[j][r] = id
		}
	}
	return nil
}

// partitionRows splits rows into count near-equal ranges; the last range
// absorbs the remainder.
func partitionRows(rowCount, count int) []rowRange {
	if count < 1 {
		count = 1
	}
	ranges := make([]rowRange, count)
	per := rowCount / count
	for t := 0; t < count; t++ {
		ranges[t] = rowRange{start: t * per, end: (t + 1) * per}
	}
	ranges[count-1].end = rowCount
	return ranges
}
