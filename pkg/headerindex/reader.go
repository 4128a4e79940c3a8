package headerindex

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eunmann/tabular-index/pkg/csvscan"
	"github.com/eunmann/tabular-index/pkg/format"
)

// Reader provides random access to indexed header fields. The index file is
// memory-mapped; field values are re-read from the source file on demand.
//
// A Reader is safe for concurrent Get calls.
type Reader struct {
	csv   *os.File
	idx   *format.MmapFile
	quote byte
	cols  int
}

// OpenReader opens the header index in outDir against the source csvPath.
func OpenReader(csvPath, outDir string, quote byte) (*Reader, error) {
	idxPath := filepath.Join(outDir, OffsetsFileName)
	if _, err := os.Stat(idxPath); os.IsNotExist(err) {
		return nil, ErrNotIndexed
	}

	idx, err := format.OpenMmap(idxPath)
	if err != nil {
		return nil, fmt.Errorf("mmap header index: %w", err)
	}
	if idx.Size()%RecordSize != 0 {
		idx.Close()
		return nil, fmt.Errorf("%w: size %d not a multiple of %d", ErrCorruptIndex, idx.Size(), RecordSize)
	}

	csv, err := os.Open(csvPath)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("open csv: %w", err)
	}

	return &Reader{
		csv:   csv,
		idx:   idx,
		quote: quote,
		cols:  int(idx.Size() / RecordSize),
	}, nil
}

// Close releases the mapping and the source file handle.
func (r *Reader) Close() error {
	err1 := r.idx.Close()
	err2 := r.csv.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// ColumnCount returns the number of indexed header fields.
func (r *Reader) ColumnCount() int {
	return r.cols
}

// Get returns the decoded value of header column i.
func (r *Reader) Get(i int) (string, error) {
	if i < 0 || i >= r.cols {
		return "", fmt.Errorf("%w: column %d of %d", ErrOutOfRange, i, r.cols)
	}

	rec := r.idx.Data()[i*RecordSize : (i+1)*RecordSize]
	start := binary.LittleEndian.Uint32(rec[0:4])
	last := binary.LittleEndian.Uint16(rec[4:6])
	if isEmptyRecord(start, last) {
		return "", nil
	}

	raw := make([]byte, int(last)-int(start)+1)
	if _, err := r.csv.ReadAt(raw, int64(start)); err != nil {
		return "", fmt.Errorf("read header slice: %w", err)
	}
	return csvscan.DecodeField(raw, r.quote), nil
}

// ColumnIndex returns the 0-based column whose header equals name. It
// prefers the minimal-perfect-hash sidecar and falls back to a linear scan
// when the sidecar is absent.
func (r *Reader) ColumnIndex(outDir, name string) (int, error) {
	nl, err := OpenNameLookup(outDir)
	if err == nil {
		defer nl.Close()
		if col, ok := nl.Lookup(name); ok {
			return col, nil
		}
		return -1, fmt.Errorf("%w: no column named %q", ErrOutOfRange, name)
	}

	for i := 0; i < r.cols; i++ {
		h, err := r.Get(i)
		if err != nil {
			return -1, err
		}
		if h == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: no column named %q", ErrOutOfRange, name)
}

// ColumnCountFromFile returns the column count by stat alone, without
// opening the source file.
func ColumnCountFromFile(outDir string) (int, error) {
	info, err := os.Stat(filepath.Join(outDir, OffsetsFileName))
	if os.IsNotExist(err) {
		return 0, ErrNotIndexed
	}
	if err != nil {
		return 0, fmt.Errorf("stat header index: %w", err)
	}
	if info.Size()%RecordSize != 0 {
		return 0, fmt.Errorf("%w: size %d not a multiple of %d", ErrCorruptIndex, info.Size(), RecordSize)
	}
	return int(info.Size() / RecordSize), nil
}
