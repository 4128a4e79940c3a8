package headerindex

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/relab/bbhash"

	"github.com/eunmann/tabular-index/pkg/format"
)

// Sidecar files for the header-name lookup. All three are optional: readers
// fall back to a linear scan when they are absent.
const (
	MPHFileName    = "header_mph.bin"
	MPHFPFileName  = "header_mph_fp.u64"
	MPHColFileName = "header_mph_col.u32"
)

// BuildNameLookup writes a minimal perfect hash mapping header names to
// column indices. Duplicate header names cannot be perfectly hashed; in that
// case no sidecar is written and ok is false.
func BuildNameLookup(outDir string, headers []string) (ok bool, err error) {
	if len(headers) == 0 {
		return false, nil
	}

	keys := make([]uint64, len(headers))
	seen := make(map[uint64]struct{}, len(headers))
	for i, h := range headers {
		k := xxhash.Sum64String(h)
		if _, dup := seen[k]; dup {
			return false, nil
		}
		seen[k] = struct{}{}
		keys[i] = k
	}

	mph, err := bbhash.New(keys, bbhash.Gamma(2.0))
	if err != nil {
		return false, fmt.Errorf("build header mph: %w", err)
	}

	// bbhash positions are 1-indexed; store fingerprint and column index
	// arrays in position order.
	fps := make([]uint64, len(headers))
	cols := make([]uint32, len(headers))
	for i, k := range keys {
		hashVal := mph.Find(k)
		if hashVal == 0 {
			return false, fmt.Errorf("header mph lookup failed for %q", headers[i])
		}
		pos := hashVal - 1
		fps[pos] = k
		cols[pos] = uint32(i)
	}

	data, err := mph.MarshalBinary()
	if err != nil {
		return false, fmt.Errorf("marshal header mph: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, MPHFileName), data, 0644); err != nil {
		return false, fmt.Errorf("write header mph: %w", err)
	}

	fpWriter, err := format.NewArrayWriter(filepath.Join(outDir, MPHFPFileName), 8)
	if err != nil {
		return false, fmt.Errorf("create fingerprint writer: %w", err)
	}
	for _, fp := range fps {
		if err := fpWriter.WriteU64(fp); err != nil {
			fpWriter.Close()
			return false, fmt.Errorf("write fingerprint: %w", err)
		}
	}
	if err := fpWriter.Close(); err != nil {
		return false, fmt.Errorf("close fingerprint writer: %w", err)
	}

	colWriter, err := format.NewArrayWriter(filepath.Join(outDir, MPHColFileName), 4)
	if err != nil {
		return false, fmt.Errorf("create column writer: %w", err)
	}
	for _, c := range cols {
		if err := colWriter.WriteU32(c); err != nil {
			colWriter.Close()
			return false, fmt.Errorf("write column index: %w", err)
		}
	}
	if err := colWriter.Close(); err != nil {
		return false, fmt.Errorf("close column writer: %w", err)
	}

	return true, nil
}

// NameLookup resolves header names to column indices via the MPH sidecar.
type NameLookup struct {
	mph  *bbhash.BBHash2
	fps  *format.ArrayReader
	cols *format.ArrayReader
}

// OpenNameLookup opens the sidecar files written by BuildNameLookup.
func OpenNameLookup(outDir string) (*NameLookup, error) {
	data, err := os.ReadFile(filepath.Join(outDir, MPHFileName))
	if err != nil {
		return nil, fmt.Errorf("read header mph: %w", err)
	}

	mph := &bbhash.BBHash2{}
	if err := mph.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("unmarshal header mph: %w", err)
	}

	fps, err := format.OpenArray(filepath.Join(outDir, MPHFPFileName))
	if err != nil {
		return nil, fmt.Errorf("open fingerprints: %w", err)
	}
	cols, err := format.OpenArray(filepath.Join(outDir, MPHColFileName))
	if err != nil {
		fps.Close()
		return nil, fmt.Errorf("open column indices: %w", err)
	}

	return &NameLookup{mph: mph, fps: fps, cols: cols}, nil
}

// Close releases the sidecar mappings.
func (n *NameLookup) Close() error {
	err1 := n.fps.Close()
	err2 := n.cols.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Lookup returns the column index for name. The fingerprint check rejects
// names that were not in the header set.
func (n *NameLookup) Lookup(name string) (col int, ok bool) {
	k := xxhash.Sum64String(name)
	hashVal := n.mph.Find(k)
	if hashVal == 0 || hashVal > n.fps.Count() {
		return -1, false
	}
	pos := hashVal - 1
	fp, err := n.fps.GetU64(pos)
	if err != nil || fp != k {
		return -1, false
	}
	c, err := n.cols.GetU32(pos)
	if err != nil {
		return -1, false
	}
	return int(c), true
}
