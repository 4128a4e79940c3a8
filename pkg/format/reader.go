package format

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MmapFile is a read-only memory-mapped file.
type MmapFile struct {
	path string
	data []byte
	size int64
}

// OpenMmap maps the file at path read-only. A zero-length file maps to nil
// data and is valid.
func OpenMmap(path string) (*MmapFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	size := info.Size()
	if size == 0 {
		return &MmapFile{path: path, size: 0}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MmapFile{path: path, data: data, size: size}, nil
}

// Close unmaps the file.
func (m *MmapFile) Close() error {
	if m.data == nil {
		return nil
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	m.data = nil
	return nil
}

// Data returns the mapped bytes.
func (m *MmapFile) Data() []byte { return m.data }

// Size returns the mapped length in bytes.
func (m *MmapFile) Size() int64 { return m.size }

// ArrayReader reads a headered array file via mmap. Safe for concurrent
// reads; Close only after all reads complete.
type ArrayReader struct {
	mmap   *MmapFile
	header Header
	data   []byte
}

// OpenArray opens and validates an array file.
func OpenArray(path string) (*ArrayReader, error) {
	mmap, err := OpenMmap(path)
	if err != nil {
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	if mmap.Size() < int64(HeaderSize) {
		mmap.Close()
		return nil, ErrInvalidHeader
	}
	header, err := DecodeHeader(mmap.Data()[:HeaderSize])
	if err != nil {
		mmap.Close()
		return nil, err
	}
	if header.Magic != MagicNumber {
		mmap.Close()
		return nil, ErrMagicMismatch
	}
	if header.Version != Version {
		mmap.Close()
		return nil, ErrVersionMismatch
	}
	if want := int64(HeaderSize) + int64(header.Count)*int64(header.Width); mmap.Size() < want {
		mmap.Close()
		return nil, fmt.Errorf("file too small: %d < %d", mmap.Size(), want)
	}

	return &ArrayReader{mmap: mmap, header: header, data: mmap.Data()[HeaderSize:]}, nil
}

// Close releases the mapping.
func (r *ArrayReader) Close() error { return r.mmap.Close() }

// Count returns the element count.
func (r *ArrayReader) Count() uint64 { return r.header.Count }

// Width returns the element width in bytes.
func (r *ArrayReader) Width() uint32 { return r.header.Width }

// GetU16 returns the uint16 element at idx.
func (r *ArrayReader) GetU16(idx uint64) (uint16, error) {
	if idx >= r.header.Count {
		return 0, ErrBoundsCheck
	}
	if r.header.Width != 2 {
		return 0, fmt.Errorf("width mismatch: expected 2, got %d", r.header.Width)
	}
	return binary.LittleEndian.Uint16(r.data[idx*2:]), nil
}

// GetU32 returns the uint32 element at idx.
func (r *ArrayReader) GetU32(idx uint64) (uint32, error) {
	if idx >= r.header.Count {
		return 0, ErrBoundsCheck
	}
	if r.header.Width != 4 {
		return 0, fmt.Errorf("width mismatch: expected 4, got %d", r.header.Width)
	}
	return binary.LittleEndian.Uint32(r.data[idx*4:]), nil
}

// GetI32 returns the int32 element at idx.
func (r *ArrayReader) GetI32(idx uint64) (int32, error) {
	v, err := r.GetU32(idx)
	return int32(v), err
}

// GetU64 returns the uint64 element at idx.
func (r *ArrayReader) GetU64(idx uint64) (uint64, error) {
	if idx >= r.header.Count {
		return 0, ErrBoundsCheck
	}
	if r.header.Width != 8 {
		return 0, fmt.Errorf("width mismatch: expected 8, got %d", r.header.Width)
	}
	return binary.LittleEndian.Uint64(r.data[idx*8:]), nil
}

// BlobReader reads strings from a blob file and its offsets array.
type BlobReader struct {
	blob    *MmapFile
	offsets *ArrayReader
}

// OpenBlob opens a blob with its offsets file.
func OpenBlob(blobPath, offsetsPath string) (*BlobReader, error) {
	blob, err := OpenMmap(blobPath)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	offsets, err := OpenArray(offsetsPath)
	if err != nil {
		blob.Close()
		return nil, fmt.Errorf("open offsets: %w", err)
	}
	return &BlobReader{blob: blob, offsets: offsets}, nil
}

// Close releases both mappings.
func (r *BlobReader) Close() error {
	err1 := r.blob.Close()
	err2 := r.offsets.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Count returns the number of strings (the offsets array holds N+1 entries).
func (r *BlobReader) Count() uint64 {
	if r.offsets.Count() == 0 {
		return 0
	}
	return r.offsets.Count() - 1
}

// Get returns the string at idx.
func (r *BlobReader) Get(idx uint64) (string, error) {
	if idx >= r.Count() {
		return "", ErrBoundsCheck
	}
	start, err := r.offsets.GetU64(idx)
	if err != nil {
		return "", fmt.Errorf("get start offset: %w", err)
	}
	end, err := r.offsets.GetU64(idx + 1)
	if err != nil {
		return "", fmt.Errorf("get end offset: %w", err)
	}
	if end > uint64(r.blob.Size()) || start > end {
		return "", ErrBoundsCheck
	}
	return string(r.blob.Data()[start:end]), nil
}
