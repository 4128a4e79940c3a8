package format

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/eunmann/tabular-index/pkg/fileutil"
)

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1

// ManifestFileName is written at the root of the output directory.
const ManifestFileName = "manifest.json"

// Manifest records every artifact of a build with its size and checksum.
type Manifest struct {
	Version     int                 `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	ColumnCount uint32              `json:"column_count"`
	RowCount    uint32              `json:"row_count"`
	Files       map[string]FileInfo `json:"files"`
}

// FileInfo describes a single artifact.
type FileInfo struct {
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"` // xxhash64 hex
}

// WriteManifest checksums the named files under dir (missing files are
// skipped) and writes the manifest there.
func WriteManifest(dir string, columnCount, rowCount uint32, names []string) error {
	m := Manifest{
		Version:     ManifestVersion,
		CreatedAt:   time.Now().UTC(),
		ColumnCount: columnCount,
		RowCount:    rowCount,
		Files:       make(map[string]FileInfo),
	}

	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat %s: %w", name, err)
		}
		sum, err := checksumFile(path)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", name, err)
		}
		m.Files[name] = FileInfo{Size: info.Size(), Checksum: sum}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return fileutil.WriteTmpThenMove(filepath.Join(dir, ManifestFileName), func(tmpPath string) error {
		if err := os.WriteFile(tmpPath, data, 0644); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		return nil
	})
}

// ReadManifest loads a manifest from dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// VerifyManifest re-checksums every file listed in the manifest and returns
// the names that are missing or modified.
func VerifyManifest(dir string, m *Manifest) (bad []string, err error) {
	for name, want := range m.Files {
		path := filepath.Join(dir, name)
		info, statErr := os.Stat(path)
		if statErr != nil || info.Size() != want.Size {
			bad = append(bad, name)
			continue
		}
		sum, sumErr := checksumFile(path)
		if sumErr != nil {
			return nil, fmt.Errorf("checksum %s: %w", name, sumErr)
		}
		if sum != want.Checksum {
			bad = append(bad, name)
		}
	}
	return bad, nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

// SyncDir fsyncs a directory so renames and creates within it persist.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	err = d.Sync()
	closeErr := d.Close()
	if err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return closeErr
}
