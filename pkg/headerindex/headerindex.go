// Package headerindex builds and reads the header field index of a delimited
// file.
//
// The index is a flat sequence of 6-byte records, one per header column:
// a u32 absolute offset of the field's first content byte and a u16 offset of
// its last content byte, little-endian, no file header. An empty field is
// encoded with the last-byte offset one less than the start offset. Random
// access to a header re-reads the raw slice from the source file, so the
// index stays tiny regardless of header width.
package headerindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/eunmann/tabular-index/pkg/csvscan"
)

const (
	// OffsetsFileName is the on-disk header index produced by Parse.
	OffsetsFileName = "header_string_lookup_offsets.bin"
	// HeadersJSONFileName is the decoded header row as a JSON array.
	HeadersJSONFileName = "column_headers.json"

	// RecordSize is the stride of one header index record.
	RecordSize = 6
)

var (
	// ErrNotIndexed indicates the header index file does not exist yet.
	ErrNotIndexed = errors.New("header index not built")
	// ErrCorruptIndex indicates the header index file has an invalid size.
	ErrCorruptIndex = errors.New("header index corrupt")
	// ErrOutOfRange indicates a column index beyond the indexed columns.
	ErrOutOfRange = errors.New("column index out of range")
	// ErrHeaderTooLong indicates a header line whose field offsets do not
	// fit the fixed-width record encoding.
	ErrHeaderTooLong = errors.New("header line exceeds index encoding range")
)

// Result summarizes a parsed header row.
type Result struct {
	// ColumnCount is the number of header fields found.
	ColumnCount int
	// DataStart is the absolute offset of the first byte after the header
	// terminator; equal to the file size when the file is header-only.
	DataStart uint64
	// Headers holds the decoded header values in column order.
	Headers []string
}

// record is one (start, last) pair before encoding.
type record struct {
	start uint32
	last  uint16
}

// emptyRecord encodes an empty field beginning at pos. The last-byte offset
// wraps below zero when pos is 0; readers treat that case as empty too.
func emptyRecord(pos uint64) record {
	return record{start: uint32(pos), last: uint16(pos - 1)}
}

// isEmptyRecord reports whether a record encodes an empty field, including
// the wrapped encoding of an empty field at offset 0.
func isEmptyRecord(start uint32, last uint16) bool {
	if start == 0 {
		return last == math.MaxUint16
	}
	return uint32(last) < start
}

// Parse scans the first logical row of the file at csvPath and writes the
// header index and the decoded headers JSON into outDir.
func Parse(csvPath, outDir string, delim, quote byte) (*Result, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	br := bufio.NewReaderSize(f, 64*1024)

	// A UTF-8 BOM before the header is not header content.
	var pos uint64
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		if _, err := br.Discard(3); err != nil {
			return nil, fmt.Errorf("skip BOM: %w", err)
		}
		pos = 3
	}

	sc := csvscan.NewScanner(delim, quote)

	var (
		records      []record
		headers      []string
		decoded      []byte // content bytes of the current field, quotes already collapsed
		contentStart = int64(-1)
		contentLast  = int64(-1)
		fieldPos     = pos
		rowHasBytes  bool
		headerDone   bool
		dataStart    uint64
	)

	endField := func() error {
		if contentStart < 0 {
			records = append(records, emptyRecord(fieldPos))
			headers = append(headers, "")
			return nil
		}
		if contentStart > math.MaxUint32 || contentLast > math.MaxUint16 {
			return ErrHeaderTooLong
		}
		records = append(records, record{start: uint32(contentStart), last: uint16(contentLast)})
		headers = append(headers, string(csvscan.TrimASCIISpace(decoded)))
		contentStart = -1
		contentLast = -1
		decoded = decoded[:0]
		return nil
	}

scan:
	for !headerDone {
		c, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		for {
			wasQuoted := sc.InQuotes()
			act := sc.Next(c)
			switch act {
			case csvscan.Content:
				if contentStart < 0 {
					contentStart = int64(pos)
				}
				contentLast = int64(pos)
				decoded = append(decoded, c)
				rowHasBytes = true
			case csvscan.FieldEnd:
				if err := endField(); err != nil {
					return nil, err
				}
				fieldPos = pos + 1
				rowHasBytes = true
			case csvscan.RowEnd:
				if rowHasBytes || len(records) > 0 {
					if err := endField(); err != nil {
						return nil, err
					}
				}
				headerDone = true
				dataStart = pos + 1
			case csvscan.RowEndResume:
				if rowHasBytes || len(records) > 0 {
					if err := endField(); err != nil {
						return nil, err
					}
				}
				headerDone = true
				dataStart = pos
			case csvscan.Skipped:
				// Structural quote bytes count as row content; a lone CR
				// does not until it resolves.
				if wasQuoted || sc.InQuotes() {
					rowHasBytes = true
				}
			}
			if act.Consumed() {
				pos++
				break
			}
			if headerDone {
				break scan
			}
		}
	}

	if !headerDone {
		// EOF: a pending CR terminates the header; otherwise the file is a
		// single unterminated header line.
		sc.Flush()
		dataStart = pos
		if rowHasBytes || len(records) > 0 {
			if err := endField(); err != nil {
				return nil, err
			}
		}
	}

	res := &Result{ColumnCount: len(records), DataStart: dataStart, Headers: headers}

	if err := writeOffsets(filepath.Join(outDir, OffsetsFileName), records); err != nil {
		return nil, err
	}
	if err := writeHeadersJSON(filepath.Join(outDir, HeadersJSONFileName), headers); err != nil {
		return nil, err
	}
	return res, nil
}

func writeOffsets(path string, records []record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create header index: %w", err)
	}

	w := bufio.NewWriter(f)
	var buf [RecordSize]byte
	for _, r := range records {
		binary.LittleEndian.PutUint32(buf[0:4], r.start)
		binary.LittleEndian.PutUint16(buf[4:6], r.last)
		if _, err := w.Write(buf[:]); err != nil {
			f.Close()
			return fmt.Errorf("write header record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush header index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close header index: %w", err)
	}
	return nil
}

func writeHeadersJSON(path string, headers []string) error {
	if headers == nil {
		headers = []string{}
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write headers json: %w", err)
	}
	return nil
}
