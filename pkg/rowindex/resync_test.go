package rowindex

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resyncAt(t *testing.T, content string, s uint64) uint64 {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := resync(f, s, uint64(len(content)), ',', '"', 4096)
	if err != nil {
		t.Fatalf("resync(%d): %v", s, err)
	}
	return got
}

func TestResyncPlainContent(t *testing.T) {
	//            0123456 789
	in := "a,b,c\nd,e,f\ng,h,i\n"
	if got := resyncAt(t, in, 1); got != 6 {
		t.Errorf("resync(1) = %d, want 6", got)
	}
	if got := resyncAt(t, in, 7); got != 12 {
		t.Errorf("resync(7) = %d, want 12", got)
	}
}

func TestResyncOnNewline(t *testing.T) {
	in := "a,b\nc,d\n"
	// Landing exactly on the LF: the scan consumes it as a row end.
	if got := resyncAt(t, in, 3); got != 4 {
		t.Errorf("resync(3) = %d, want 4", got)
	}
}

func TestResyncClosingQuoteCases(t *testing.T) {
	tests := []struct {
		name string
		in   string
		s    uint64
		want uint64
	}{
		// s on the closing quote, delimiter follows: rest of row is
		// unquoted, next row starts after its newline.
		{"close then delim", `"ab",x` + "\n" + "next,y\n", 3, 7},
		// s on the closing quote, LF follows: row ends right there.
		{"close then lf", `x,"ab"` + "\n" + "next,y\n", 5, 7},
		// s on the closing quote, CRLF follows.
		{"close then crlf", `x,"ab"` + "\r\n" + "next,y\r\n", 5, 8},
		// s on the closing quote, lone CR follows.
		{"close then cr", `x,"ab"` + "\r" + "next,y\r", 5, 7},
		// s on the closing quote at EOF.
		{"close at eof", `x,"ab"`, 5, 6},
		// s on the opening quote of an empty quoted field "" before a
		// delimiter.
		{"empty field then delim", `"",x` + "\n" + "n,y\n", 0, 5},
		// s on the opening quote of "" ending a row.
		{"empty field then lf", `x,""` + "\n" + "n,y\n", 2, 5},
		// s on the first quote of an escaped pair inside a quoted field:
		// the scan stays in quotes across the embedded newline.
		{"escaped pair inside quotes", `"ab""cd` + "\n" + `ef",x` + "\n" + "n,y\n", 3, 14},
		// s on an opening quote followed by content: the quoted field's
		// embedded newline is not a row end.
		{"opening quote", `"ab` + "\n" + `cd",x` + "\n" + "n,y\n", 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resyncAt(t, tt.in, tt.s); got != tt.want {
				t.Errorf("resync(%d) on %q = %d, want %d", tt.s, tt.in, got, tt.want)
			}
		})
	}
}

func TestResyncAtOrPastEOF(t *testing.T) {
	in := "a,b\n"
	if got := resyncAt(t, in, 4); got != 4 {
		t.Errorf("resync(EOF) = %d, want 4", got)
	}
	if got := resyncAt(t, in, 99); got != 4 {
		t.Errorf("resync(past EOF) = %d, want 4", got)
	}
}

func TestResyncNoFurtherRow(t *testing.T) {
	in := "a,b,unterminated"
	if got := resyncAt(t, in, 2); got != uint64(len(in)) {
		t.Errorf("resync(2) = %d, want file size %d", got, len(in))
	}
}

func TestResyncLongQuoteRun(t *testing.T) {
	// A field of consecutive escaped quotes. Landing on an odd position of
	// the run keeps the pair alignment, and the two-byte rule then resolves
	// the remainder inductively through the scanner's pending-quote state.
	field := `"` + strings.Repeat(`""`, 6) + `"`
	in := field + ",x\nnext,y\n"
	rowLen := uint64(len(field) + 3)
	for s := uint64(1); s < uint64(len(field)); s += 2 {
		got := resyncAt(t, in, s)
		if got != rowLen {
			t.Fatalf("resync(%d) = %d, want %d", s, got, rowLen)
		}
	}
	// The closing quote and the tail of the row resolve as well.
	for s := uint64(len(field)) - 1; s < rowLen; s++ {
		got := resyncAt(t, in, s)
		if got != rowLen {
			t.Fatalf("resync(%d) = %d, want %d", s, got, rowLen)
		}
	}
}
