// Package rowindex builds the ordered row-start offset index of the data
// region of a delimited file.
//
// The build is a two-phase parallel scan. Phase 1 partitions the data region
// into near-equal byte ranges and resynchronizes each nominal boundary to a
// true row start. Phase 2 parses each range with an independent scanner,
// validates field counts, and writes one shard file per worker; a sequential
// merge concatenates the shards into row_offsets.bin. Offsets in the merged
// file are strictly increasing: handoffs are monotone and every worker emits
// monotone offsets within its range.
package rowindex

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/eunmann/tabular-index/internal/logctx"
	"github.com/eunmann/tabular-index/pkg/csvscan"
	"github.com/eunmann/tabular-index/pkg/fileutil"
	"github.com/eunmann/tabular-index/pkg/logging"
)

// OffsetsFileName is the merged row-start offset file: packed u64
// little-endian absolute offsets, one per validated data row, no header.
const OffsetsFileName = "row_offsets.bin"

// ShardFileName names the transient per-worker shard t.
func ShardFileName(t int) string {
	return fmt.Sprintf("row_offsets.part-%d.bin", t)
}

// minWorkerSpan is the smallest byte range worth handing to a worker.
const minWorkerSpan = 4096

// ErrInvalidConfig indicates an unusable scan configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config controls the parallel scan.
type Config struct {
	// Delim and Quote are the single-byte delimiter and quote.
	Delim byte
	Quote byte
	// NumWorkers is the number of parallel scan workers.
	NumWorkers int
	// ChunkBytes is the per-worker read buffer size.
	ChunkBytes int
	// SkipFaultyRows drops rows whose field count does not match the
	// header instead of failing the build.
	SkipFaultyRows bool
	// CompressShards writes zstd-framed shard files. The merged output is
	// identical either way.
	CompressShards bool
}

// DefaultConfig returns the default scan configuration.
func DefaultConfig() Config {
	return Config{
		Delim:          ',',
		Quote:          '"',
		NumWorkers:     runtime.NumCPU(),
		ChunkBytes:     1 << 20,
		CompressShards: true,
	}
}

// Validate normalizes zero delimiter, quote, and buffer values. The worker
// count is never defaulted here; a non-positive count fails the build.
func (c *Config) Validate() error {
	if c.Delim == 0 {
		c.Delim = ','
	}
	if c.Quote == 0 {
		c.Quote = '"'
	}
	if c.ChunkBytes <= 0 {
		c.ChunkBytes = 1 << 20
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("%w: worker count must be positive", ErrInvalidConfig)
	}
	return nil
}

// WidthError reports a data row whose field count does not match the header.
type WidthError struct {
	// Offset is the absolute byte offset of the row start.
	Offset uint64
	// Fields is the observed field count; Want the header's column count.
	Fields int
	Want   int
}

func (e *WidthError) Error() string {
	return fmt.Sprintf("row at byte %d has %d fields; expected %d", e.Offset, e.Fields, e.Want)
}

// Result summarizes an index build.
type Result struct {
	// RowCount is the number of validated data rows.
	RowCount uint64
	// SkippedRows is the number of rows dropped for a field-count
	// mismatch (always zero unless SkipFaultyRows).
	SkippedRows uint64
}

// Index scans the data region [dataStart, EOF) of csvPath and writes the
// merged offset file into outDir.
func Index(ctx context.Context, csvPath, outDir string, dataStart uint64, columnCount int, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logctx.FromContext(ctx).With().Str("phase", "row_index").Logger()
	start := time.Now()

	info, err := os.Stat(csvPath)
	if err != nil {
		return nil, fmt.Errorf("stat csv: %w", err)
	}
	fileSize := uint64(info.Size())
	if dataStart > fileSize {
		return nil, fmt.Errorf("data start %d beyond file size %d", dataStart, fileSize)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	// Clear stale shards from an interrupted earlier run.
	if n, _ := fileutil.RemoveGlob(filepath.Join(outDir, "row_offsets.part-*.bin")); n > 0 {
		log.Debug().Int("files_removed", n).Msg("removed stale shard files")
	}

	span := fileSize - dataStart
	n := cfg.NumWorkers
	// Give every worker a meaningful slice; small inputs scan sequentially.
	if max := int(span / minWorkerSpan); n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}

	log.Info().
		Uint64("data_start", dataStart).
		Uint64("data_bytes", span).
		Int("workers_count", n).
		Int("chunk_bytes", cfg.ChunkBytes).
		Bool("compress_shards", cfg.CompressShards).
		Msg("starting row offset scan")

	handoffs, err := findHandoffs(csvPath, dataStart, fileSize, n, cfg)
	if err != nil {
		return nil, err
	}

	counts := make([]uint64, n)
	skipped := make([]uint64, n)
	errs := make([]error, n)
	shardPaths := make([]string, n)

	var wg sync.WaitGroup
	for t := 0; t < n; t++ {
		shardPaths[t] = filepath.Join(outDir, ShardFileName(t))
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			wlog := log.With().Int("worker", t).Logger()
			wctx := logctx.WithLogger(ctx, wlog)
			counts[t], skipped[t], errs[t] = scanRange(wctx, csvPath, shardPaths[t], handoffs[t], handoffs[t+1], fileSize, columnCount, cfg)
		}(t)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			removeShards(shardPaths)
			return nil, err
		}
	}

	total, err := mergeShards(filepath.Join(outDir, OffsetsFileName), shardPaths, cfg)
	if err != nil {
		removeShards(shardPaths)
		return nil, err
	}
	removeShards(shardPaths)

	res := &Result{}
	for t := 0; t < n; t++ {
		res.RowCount += counts[t]
		res.SkippedRows += skipped[t]
	}
	if total != res.RowCount {
		return nil, fmt.Errorf("merged %d offsets, workers reported %d", total, res.RowCount)
	}

	logging.PhaseComplete(log, "row_index", time.Since(start)).
		CountUint64("rows_count", res.RowCount).
		CountUint64("rows_skipped", res.SkippedRows).
		Bytes("bytes_scanned", int64(span)).
		Throughput(int64(span)).
		Log("row offset scan complete")

	return res, nil
}

// findHandoffs resolves the worker boundary offsets. handoffs[0] is the data
// start, handoffs[n] the file size, and every interior entry is a true row
// start found by resync.
func findHandoffs(csvPath string, dataStart, fileSize uint64, n int, cfg Config) ([]uint64, error) {
	handoffs := make([]uint64, n+1)
	handoffs[0] = dataStart
	handoffs[n] = fileSize

	span := fileSize - dataStart
	errs := make([]error, n)

	var wg sync.WaitGroup
	for t := 1; t < n; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			f, err := os.Open(csvPath)
			if err != nil {
				errs[t] = fmt.Errorf("open csv: %w", err)
				return
			}
			defer f.Close()

			nominal := dataStart + span*uint64(t)/uint64(n)
			handoffs[t], errs[t] = resync(f, nominal, fileSize, cfg.Delim, cfg.Quote, cfg.ChunkBytes)
		}(t)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	// Keep handoffs monotone so every worker range is well formed even when
	// adjacent nominal points resolve into the same row.
	for t := 1; t <= n; t++ {
		if handoffs[t] < handoffs[t-1] {
			handoffs[t] = handoffs[t-1]
		}
	}
	return handoffs, nil
}

// scanRange parses [start, end) and writes validated row starts to the
// worker's shard file.
func scanRange(ctx context.Context, csvPath, shardPath string, start, end, fileSize uint64, columnCount int, cfg Config) (rows, skipped uint64, err error) {
	log := logctx.FromContext(ctx)

	f, err := os.Open(csvPath)
	if err != nil {
		return 0, 0, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	shard, err := newShardWriter(shardPath, cfg.ChunkBytes, cfg.CompressShards)
	if err != nil {
		return 0, 0, err
	}
	closed := false
	defer func() {
		if !closed {
			shard.Close()
		}
	}()

	br := newRangeReader(f, start, end, cfg.ChunkBytes)
	sc := csvscan.NewScanner(cfg.Delim, cfg.Quote)

	var (
		pos        = start
		rowStart   = start
		delimCount int
		blank      = true
	)

	finalize := func(nextStart uint64) error {
		defer func() {
			rowStart = nextStart
			delimCount = 0
			blank = true
		}()
		if blank {
			return nil
		}
		fields := delimCount + 1
		if fields != columnCount {
			if cfg.SkipFaultyRows {
				skipped++
				return nil
			}
			return &WidthError{Offset: rowStart, Fields: fields, Want: columnCount}
		}
		if err := shard.WriteOffset(rowStart); err != nil {
			return err
		}
		rows++
		return nil
	}

	for pos < end {
		c, rerr := br.ReadByte()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, 0, fmt.Errorf("read csv: %w", rerr)
		}

		for {
			wasQuoted := sc.InQuotes()
			act := sc.Next(c)
			switch act {
			case csvscan.Content:
				if c != ' ' && c != '\t' {
					blank = false
				}
			case csvscan.FieldEnd:
				delimCount++
				blank = false
			case csvscan.RowEnd:
				if err := finalize(pos + 1); err != nil {
					return 0, 0, err
				}
			case csvscan.RowEndResume:
				if err := finalize(pos); err != nil {
					return 0, 0, err
				}
			case csvscan.Skipped:
				if wasQuoted || sc.InQuotes() {
					blank = false
				}
			}
			if act.Consumed() {
				pos++
				break
			}
		}
	}

	// End of range. For the worker that owns the file tail this applies the
	// EOF policy; for interior workers the range ends on a row boundary and
	// the state below is already clean.
	if sc.Flush() {
		if err := finalize(pos); err != nil {
			return 0, 0, err
		}
	} else if !blank {
		if end == fileSize {
			if err := finalize(pos); err != nil {
				return 0, 0, err
			}
		} else {
			return 0, 0, fmt.Errorf("worker range [%d,%d) ended mid-row at %d", start, end, pos)
		}
	}

	if err := shard.Close(); err != nil {
		return 0, 0, err
	}
	closed = true

	log.Debug().
		Uint64("range_start", start).
		Uint64("range_end", end).
		Uint64("rows_count", rows).
		Uint64("rows_skipped", skipped).
		Msg("worker range scanned")

	return rows, skipped, nil
}

// newRangeReader returns a buffered reader over [start, end) of f.
func newRangeReader(f *os.File, start, end uint64, bufSize int) *bufio.Reader {
	sr := io.NewSectionReader(f, int64(start), int64(end-start))
	return bufio.NewReaderSize(sr, bufSize)
}

// mergeShards concatenates the shards in worker order into the final offset
// file and returns the total number of offsets written.
func mergeShards(outPath string, shardPaths []string, cfg Config) (uint64, error) {
	out, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create offset file: %w", err)
	}
	bw := bufio.NewWriterSize(out, cfg.ChunkBytes)

	var written int64
	for _, p := range shardPaths {
		r, err := openShardReader(p, cfg.ChunkBytes, cfg.CompressShards)
		if err != nil {
			out.Close()
			return 0, err
		}
		n, err := io.Copy(bw, r)
		r.Close()
		if err != nil {
			out.Close()
			return 0, fmt.Errorf("merge shard %s: %w", p, err)
		}
		written += n
	}

	if err := bw.Flush(); err != nil {
		out.Close()
		return 0, fmt.Errorf("flush offset file: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close offset file: %w", err)
	}
	if written%8 != 0 {
		return 0, fmt.Errorf("merged offset file size %d not a multiple of 8", written)
	}
	return uint64(written / 8), nil
}

func removeShards(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
