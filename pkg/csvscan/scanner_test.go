package csvscan

import (
	"reflect"
	"testing"
)

// parseAll runs the scanner over the whole input and materializes rows of
// decoded fields. It serves as the reference scalar parser for tests.
func parseAll(t *testing.T, data []byte, delim, quote byte) [][]string {
	t.Helper()

	sc := NewScanner(delim, quote)
	var (
		rows     [][]string
		row      []string
		field    []byte
		anyByte  bool
		endRow   = func() {
			rows = append(rows, append(row, DecodeField(field, quote)))
			row = nil
			field = nil
			anyByte = false
		}
	)

	for _, c := range data {
		for {
			act := sc.Next(c)
			switch act {
			case Content:
				field = append(field, c)
				anyByte = true
			case FieldEnd:
				row = append(row, DecodeField(field, quote))
				field = nil
				anyByte = true
			case RowEnd, RowEndResume:
				endRow()
			case Skipped:
				anyByte = true
			}
			if act.Consumed() {
				break
			}
		}
	}
	if sc.Flush() {
		endRow()
	} else if anyByte || len(row) > 0 {
		endRow()
	}
	return rows
}

func TestScannerRows(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want [][]string
	}{
		{"simple", "a,b,c\n1,2,3\n", [][]string{{"a", "b", "c"}, {"1", "2", "3"}}},
		{"crlf", "a,b\r\n1,2\r\n", [][]string{{"a", "b"}, {"1", "2"}}},
		{"lone cr", "a,b\r1,2\r", [][]string{{"a", "b"}, {"1", "2"}}},
		{"no trailing newline", "a,b\n1,2", [][]string{{"a", "b"}, {"1", "2"}}},
		{"quoted delimiter", `a,"b,c",d` + "\n", [][]string{{"a", "b,c", "d"}}},
		{"quoted newline", "\"l1\nl2\",x\n", [][]string{{"l1\nl2", "x"}}},
		{"quoted crlf content", "\"l1\r\nl2\",x\n", [][]string{{"l1\r\nl2", "x"}}},
		{"doubled quote", `a,"b""c",d` + "\n", [][]string{{"a", `b"c`, "d"}}},
		{"empty quoted field", `a,"",c` + "\n", [][]string{{"a", "", "c"}}},
		{"empty fields", ",,\n", [][]string{{"", "", ""}}},
		{"stray quote mid-field", "ab\"cd,e\n", [][]string{{"ab\"cd", "e"}}},
		{"quote at eof closes", `a,"bc`, [][]string{{"a", "bc"}}},
		{"trailing doubled quote at eof", `a,"b""`, [][]string{{"a", `b"`}}},
		{"cr at eof is row end", "a,b\r", [][]string{{"a", "b"}}},
		{"whitespace trimmed", " a ,\tb\t\n", [][]string{{"a", "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAll(t, []byte(tt.in), ',', '"')
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseAll(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestScannerAlternateDelimiter(t *testing.T) {
	got := parseAll(t, []byte("a|b|c\n1|2,3|4\n"), '|', '"')
	want := [][]string{{"a", "b", "c"}, {"1", "2,3", "4"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestScannerStateAcrossChunks(t *testing.T) {
	// The scanner holds pending decisions instead of looking ahead, so a
	// scan interrupted at any byte and resumed from a copied state must
	// emit the identical action sequence.
	in := []byte("h1,h2\r\n\"a\"\"b\r\nc\",2\r\n")

	actions := func(sc *Scanner, data []byte) []Action {
		var out []Action
		for _, c := range data {
			for {
				act := sc.Next(c)
				out = append(out, act)
				if act.Consumed() {
					break
				}
			}
		}
		return out
	}

	whole := actions(NewScanner(',', '"'), in)

	for split := 1; split < len(in); split++ {
		sc := NewScanner(',', '"')
		got := actions(sc, in[:split])
		resumed := *sc
		got = append(got, actions(&resumed, in[split:])...)
		if !reflect.DeepEqual(got, whole) {
			t.Fatalf("split at %d diverged: got %v, want %v", split, got, whole)
		}
	}
}

func TestDecodeField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`b""c`, `b"c`},
		{`""`, `"`},
		{"  x  ", "x"},
		{"", ""},
		{"\t\r\n", ""},
		{`a""""b`, `a""b`},
	}
	for _, tt := range tests {
		if got := DecodeField([]byte(tt.in), '"'); got != tt.want {
			t.Errorf("DecodeField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsBlankRow(t *testing.T) {
	if !IsBlankRow([]byte("  \t ")) {
		t.Error("spaces and tabs should be blank")
	}
	if IsBlankRow([]byte(" , ")) {
		t.Error("delimiter is not blank")
	}
	if IsBlankRow([]byte(`""`)) {
		t.Error("quotes are not blank")
	}
	if !IsBlankRow(nil) {
		t.Error("empty row is blank")
	}
}
