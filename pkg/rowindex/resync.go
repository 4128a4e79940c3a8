package rowindex

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/eunmann/tabular-index/pkg/csvscan"
)

// resync maps a nominal partition point s to the next true row start, or to
// fileSize when no further row begins. It is correct for any s inside a
// valid CSV and needs at most two bytes of lookahead: the adversarial case
// is s landing on the closing quote of a quoted field, which the first two
// bytes disambiguate (longer quote runs resolve inductively through the
// scanner's pending-quote state).
func resync(f *os.File, s, fileSize uint64, delim, quote byte, bufSize int) (uint64, error) {
	if s >= fileSize {
		return fileSize, nil
	}

	br := bufio.NewReaderSize(io.NewSectionReader(f, int64(s), int64(fileSize-s)), bufSize)
	pos := s

	readByte := func() (byte, bool, error) {
		c, err := br.ReadByte()
		if err == io.EOF {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("resync read: %w", err)
		}
		return c, true, nil
	}

	sc := csvscan.NewScanner(delim, quote)

	b0, ok, err := readByte()
	if err != nil {
		return 0, err
	}
	if !ok {
		return fileSize, nil
	}

	// carry is a byte already read from the stream that still needs to go
	// through the scanner once the initial disposition is settled.
	var carry byte
	var hasCarry bool

	if b0 != quote {
		// Not a quote: assume unquoted context and let the scanner find
		// the next row end, starting with this byte.
		carry, hasCarry = b0, true
	} else {
		b1, ok, err := readByte()
		if err != nil {
			return 0, err
		}
		switch {
		case !ok:
			// File ends at the quote.
			return fileSize, nil
		case b1 == delim:
			// s was a closing quote; resume unquoted after the delimiter.
			pos = s + 2
		case b1 == '\n':
			return s + 2, nil
		case b1 == '\r':
			return afterCR(br, s+2, fileSize)
		case b1 == quote:
			b2, ok, err := readByte()
			if err != nil {
				return 0, err
			}
			switch {
			case !ok:
				// The pair was an empty quoted field ending the file.
				return fileSize, nil
			case b2 == delim:
				// Empty quoted field; resume unquoted after the delimiter.
				pos = s + 3
			case b2 == '\n':
				return s + 3, nil
			case b2 == '\r':
				return afterCR(br, s+3, fileSize)
			default:
				// The pair was an escaped quote inside a quoted field.
				sc.SeedQuoted()
				pos = s + 2
				carry, hasCarry = b2, true
			}
		default:
			// s was an opening quote.
			sc.SeedQuoted()
			pos = s + 1
			carry, hasCarry = b1, true
		}
	}

	for {
		var c byte
		if hasCarry {
			c, hasCarry = carry, false
		} else {
			var ok bool
			c, ok, err = readByte()
			if err != nil {
				return 0, err
			}
			if !ok {
				break
			}
		}

		for {
			act := sc.Next(c)
			if act == csvscan.RowEnd {
				return pos + 1, nil
			}
			if act == csvscan.RowEndResume {
				return pos, nil
			}
			if act.Consumed() {
				pos++
				break
			}
		}
	}

	// EOF without an unquoted row end: no further row starts.
	return fileSize, nil
}

// afterCR returns the row start following a CR at crEnd-1, consuming the LF
// of a CRLF pair if present.
func afterCR(br *bufio.Reader, crEnd, fileSize uint64) (uint64, error) {
	c, err := br.ReadByte()
	if err == io.EOF {
		return fileSize, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resync read: %w", err)
	}
	if c == '\n' {
		if crEnd+1 > fileSize {
			return fileSize, nil
		}
		return crEnd + 1, nil
	}
	return crEnd, nil
}
