package format

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// ArrayWriter streams fixed-width elements into a headered array file. The
// element count is patched into the header on Close.
type ArrayWriter struct {
	file   *os.File
	writer *bufio.Writer
	count  uint64
	width  uint32
}

// NewArrayWriter creates an array file at path with the given element width.
func NewArrayWriter(path string, width uint32) (*ArrayWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create array file: %w", err)
	}

	w := bufio.NewWriter(f)
	placeholder := EncodeHeader(Header{Magic: MagicNumber, Version: Version, Width: width})
	if _, err := w.Write(placeholder); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write header: %w", err)
	}

	return &ArrayWriter{file: f, writer: w, width: width}, nil
}

func (w *ArrayWriter) put(buf []byte) error {
	if _, err := w.writer.Write(buf); err != nil {
		return fmt.Errorf("write element: %w", err)
	}
	w.count++
	return nil
}

// WriteU16 appends a uint16 element.
func (w *ArrayWriter) WriteU16(val uint16) error {
	if w.width != 2 {
		return fmt.Errorf("width mismatch: expected 2, got %d", w.width)
	}
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], val)
	return w.put(buf[:])
}

// WriteU32 appends a uint32 element.
func (w *ArrayWriter) WriteU32(val uint32) error {
	if w.width != 4 {
		return fmt.Errorf("width mismatch: expected 4, got %d", w.width)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	return w.put(buf[:])
}

// WriteI32 appends an int32 element. Signed values share the 4-byte width
// with WriteU32; the header does not distinguish signedness.
func (w *ArrayWriter) WriteI32(val int32) error {
	return w.WriteU32(uint32(val))
}

// WriteU64 appends a uint64 element.
func (w *ArrayWriter) WriteU64(val uint64) error {
	if w.width != 8 {
		return fmt.Errorf("width mismatch: expected 8, got %d", w.width)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], val)
	return w.put(buf[:])
}

// Count returns the number of elements written so far.
func (w *ArrayWriter) Count() uint64 {
	return w.count
}

// Close flushes buffered elements, rewrites the header with the final count,
// and closes the file.
func (w *ArrayWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush: %w", err)
	}

	if _, err := w.file.Seek(0, 0); err != nil {
		w.file.Close()
		return fmt.Errorf("seek: %w", err)
	}
	final := EncodeHeader(Header{Magic: MagicNumber, Version: Version, Count: w.count, Width: w.width})
	if _, err := w.file.Write(final); err != nil {
		w.file.Close()
		return fmt.Errorf("update header: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// BlobWriter writes length-delimited strings as a blob file plus a u64
// offsets array with a trailing sentinel.
type BlobWriter struct {
	blobFile   *os.File
	blobWriter *bufio.Writer
	offsets    *ArrayWriter
	offset     uint64
	n          uint64
}

// NewBlobWriter creates the blob and offsets files.
func NewBlobWriter(blobPath, offsetsPath string) (*BlobWriter, error) {
	blobFile, err := os.Create(blobPath)
	if err != nil {
		return nil, fmt.Errorf("create blob file: %w", err)
	}

	offsets, err := NewArrayWriter(offsetsPath, 8)
	if err != nil {
		blobFile.Close()
		os.Remove(blobPath)
		return nil, fmt.Errorf("create offsets: %w", err)
	}

	return &BlobWriter{
		blobFile:   blobFile,
		blobWriter: bufio.NewWriter(blobFile),
		offsets:    offsets,
	}, nil
}

// WriteString appends one string to the blob.
func (w *BlobWriter) WriteString(s string) error {
	if err := w.offsets.WriteU64(w.offset); err != nil {
		return fmt.Errorf("write offset: %w", err)
	}
	n, err := w.blobWriter.WriteString(s)
	if err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	w.offset += uint64(n)
	w.n++
	return nil
}

// Count returns the number of strings written.
func (w *BlobWriter) Count() uint64 {
	return w.n
}

// Close writes the sentinel offset and finalizes both files.
func (w *BlobWriter) Close() error {
	if err := w.offsets.WriteU64(w.offset); err != nil {
		w.blobWriter.Flush()
		w.blobFile.Close()
		w.offsets.Close()
		return fmt.Errorf("write sentinel offset: %w", err)
	}
	if err := w.blobWriter.Flush(); err != nil {
		w.blobFile.Close()
		w.offsets.Close()
		return fmt.Errorf("flush blob: %w", err)
	}
	if err := w.blobFile.Close(); err != nil {
		w.offsets.Close()
		return fmt.Errorf("close blob: %w", err)
	}
	if err := w.offsets.Close(); err != nil {
		return fmt.Errorf("close offsets: %w", err)
	}
	return nil
}
