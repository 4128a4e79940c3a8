package transpose

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/eunmann/tabular-index/pkg/csvscan"
)

// tokenReader produces decoded field tokens from a row at a byte cursor.
// Each worker owns one tokenReader (and with it one file handle); rows are
// handed to it one at a time.
type tokenReader struct {
	f        *os.File
	fileSize uint64
	br       *bufio.Reader
	sc       *csvscan.Scanner
	tok      []byte
}

func newTokenReader(path string, delim, quote byte, bufSize int) (*tokenReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv: %w", err)
	}
	return &tokenReader{
		f:        f,
		fileSize: uint64(info.Size()),
		br:       bufio.NewReaderSize(nil, bufSize),
		sc:       csvscan.NewScanner(delim, quote),
	}, nil
}

func (tr *tokenReader) Close() error {
	return tr.f.Close()
}

// readTokens parses up to needed tokens of the row starting (or resuming) at
// cursor, appending them to out. It stops early at the row end; the caller
// treats missing tokens as empty. The returned cursor points one past the
// last consumed delimiter or terminator, so a later column group resumes
// exactly where this one stopped.
func (tr *tokenReader) readTokens(cursor uint64, needed int, out []string) (toks []string, newCursor uint64, err error) {
	toks = out[:0]
	if needed == 0 || cursor >= tr.fileSize {
		return toks, cursor, nil
	}

	tr.br.Reset(io.NewSectionReader(tr.f, int64(cursor), int64(tr.fileSize-cursor)))
	tr.sc.Reset()

	var (
		pos    = cursor
		sawAny bool
	)
	tr.tok = tr.tok[:0]

	emit := func() {
		toks = append(toks, string(csvscan.TrimASCIISpace(tr.tok)))
		tr.tok = tr.tok[:0]
	}

	for {
		c, rerr := tr.br.ReadByte()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, 0, fmt.Errorf("read csv: %w", rerr)
		}

		for {
			wasQuoted := tr.sc.InQuotes()
			act := tr.sc.Next(c)
			switch act {
			case csvscan.Content:
				tr.tok = append(tr.tok, c)
				sawAny = true
			case csvscan.FieldEnd:
				emit()
				sawAny = true
				if len(toks) == needed {
					return toks, pos + 1, nil
				}
			case csvscan.RowEnd:
				emit()
				return toks, pos + 1, nil
			case csvscan.RowEndResume:
				emit()
				return toks, pos, nil
			case csvscan.Skipped:
				if wasQuoted || tr.sc.InQuotes() {
					sawAny = true
				}
			}
			if act.Consumed() {
				pos++
				break
			}
		}
	}

	// EOF: a pending CR or remaining bytes close the final token.
	tr.sc.Flush()
	if sawAny || len(tr.tok) > 0 {
		emit()
	}
	return toks, pos, nil
}
