package tabular

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/eunmann/tabular-index/pkg/format"
	"github.com/eunmann/tabular-index/pkg/rowindex"
	"github.com/eunmann/tabular-index/pkg/transpose"
)

func newTabular(t *testing.T, content string) (*TabularData, string) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(csvPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")
	td, err := New(csvPath, outDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { td.Close() })
	return td, outDir
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", t.TempDir()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New with empty path = %v, want ErrInvalidConfig", err)
	}
	if _, err := New("in.csv", ""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New with empty out dir = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewWithConfig("in.csv", t.TempDir(), Config{NumWorkers: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New with negative workers = %v, want ErrInvalidConfig", err)
	}
	// The spec requires a positive worker count; zero is not "default".
	if _, err := NewWithConfig("in.csv", t.TempDir(), Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New with zero workers = %v, want ErrInvalidConfig", err)
	}
}

func TestHeaderWithQuotesAndSpaces(t *testing.T) {
	td, _ := newTabular(t, "Index,\"Girth (in)\",\"Height (ft)\",Volume(ft^3)\n1,2,3,4\n")
	if err := td.ParseHeaderRow(); err != nil {
		t.Fatalf("ParseHeaderRow: %v", err)
	}

	n, err := td.GetColumnCount()
	if err != nil {
		t.Fatalf("GetColumnCount: %v", err)
	}
	if n != 4 {
		t.Fatalf("GetColumnCount = %d, want 4", n)
	}

	if h, _ := td.GetHeader(1); h != "Girth (in)" {
		t.Errorf("GetHeader(1) = %q, want %q", h, "Girth (in)")
	}
	if h, _ := td.GetHeader(3); h != "Volume(ft^3)" {
		t.Errorf("GetHeader(3) = %q, want %q", h, "Volume(ft^3)")
	}

	if idx, err := td.ColumnIndex("Height (ft)"); err != nil || idx != 2 {
		t.Errorf("ColumnIndex(Height (ft)) = %d, %v, want 2", idx, err)
	}
}

func TestHeaderDoubledQuote(t *testing.T) {
	td, _ := newTabular(t, "a,\"b\"\"c\",d\n1,2,3\n")
	if err := td.ParseHeaderRow(); err != nil {
		t.Fatalf("ParseHeaderRow: %v", err)
	}
	if h, _ := td.GetHeader(1); h != `b"c` {
		t.Errorf("GetHeader(1) = %q, want %q", h, `b"c`)
	}
}

func TestCRLFPipeline(t *testing.T) {
	in := "h1,h2\r\n1,2\r\n3,4\r\n"
	td, outDir := newTabular(t, in)
	if err := td.ParseHeaderRow(); err != nil {
		t.Fatalf("ParseHeaderRow: %v", err)
	}
	if err := td.FindRowOffsets(context.Background()); err != nil {
		t.Fatalf("FindRowOffsets: %v", err)
	}

	rows, err := td.GetRowCount()
	if err != nil {
		t.Fatalf("GetRowCount: %v", err)
	}
	if rows != 2 {
		t.Fatalf("GetRowCount = %d, want 2", rows)
	}

	raw, err := os.ReadFile(filepath.Join(outDir, rowindex.OffsetsFileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 16 {
		t.Fatalf("offset file size = %d, want 16", len(raw))
	}
}

func TestWidthMismatchPolicy(t *testing.T) {
	in := "h1,h2,h3\na,b\nc,d,e\n"

	td, _ := newTabular(t, in)
	td.SetSkipFaultyRows(true)
	if err := td.ParseHeaderRow(); err != nil {
		t.Fatalf("ParseHeaderRow: %v", err)
	}
	if err := td.FindRowOffsets(context.Background()); err != nil {
		t.Fatalf("FindRowOffsets with skip: %v", err)
	}
	if rows, _ := td.GetRowCount(); rows != 1 {
		t.Errorf("GetRowCount = %d, want 1 (faulty row dropped)", rows)
	}

	td2, _ := newTabular(t, in)
	td2.SetSkipFaultyRows(false)
	if err := td2.ParseHeaderRow(); err != nil {
		t.Fatalf("ParseHeaderRow: %v", err)
	}
	err := td2.FindRowOffsets(context.Background())
	var we *rowindex.WidthError
	if !errors.As(err, &we) {
		t.Fatalf("FindRowOffsets without skip = %v, want WidthError", err)
	}
	if we.Offset != 9 {
		t.Errorf("WidthError offset = %d, want 9", we.Offset)
	}
}

func TestQuotedNewlineRow(t *testing.T) {
	td, _ := newTabular(t, "h1,h2\n\"line1\nline2\",x\n")
	if err := td.ParseHeaderRow(); err != nil {
		t.Fatalf("ParseHeaderRow: %v", err)
	}
	if err := td.FindRowOffsets(context.Background()); err != nil {
		t.Fatalf("FindRowOffsets: %v", err)
	}
	if rows, _ := td.GetRowCount(); rows != 1 {
		t.Errorf("GetRowCount = %d, want 1", rows)
	}
}

func TestHeaderOnlyFile(t *testing.T) {
	td, outDir := newTabular(t, "h1,h2\n")
	if err := td.ParseHeaderRow(); err != nil {
		t.Fatalf("ParseHeaderRow: %v", err)
	}
	if err := td.FindRowOffsets(context.Background()); err != nil {
		t.Fatalf("FindRowOffsets: %v", err)
	}
	if rows, _ := td.GetRowCount(); rows != 0 {
		t.Errorf("GetRowCount = %d, want 0", rows)
	}
	info, err := os.Stat(filepath.Join(outDir, rowindex.OffsetsFileName))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("offset file size = %d, want 0", info.Size())
	}
}

func TestStepOrdering(t *testing.T) {
	td, _ := newTabular(t, "h1,h2\n1,2\n")

	if err := td.FindRowOffsets(context.Background()); !errors.Is(err, ErrNotIndexed) {
		t.Errorf("FindRowOffsets before header = %v, want ErrNotIndexed", err)
	}
	if _, err := td.GetRowCount(); !errors.Is(err, ErrNotIndexed) {
		t.Errorf("GetRowCount before indexing = %v, want ErrNotIndexed", err)
	}
	if err := td.ParseHeaderRow(); err != nil {
		t.Fatalf("ParseHeaderRow: %v", err)
	}
	if err := td.MapIntTranspose(context.Background()); !errors.Is(err, ErrNotIndexed) {
		t.Errorf("MapIntTranspose before rows = %v, want ErrNotIndexed", err)
	}
}

func TestFullPipelineWithTranspose(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	content := "color,size\nred,1\nblue,2\nred,2\n"
	if err := os.WriteFile(csvPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")

	cfg := DefaultConfig()
	cfg.WriteColumns = true
	td, err := NewWithConfig(csvPath, outDir, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer td.Close()

	ctx := context.Background()
	if err := td.ParseHeaderRow(); err != nil {
		t.Fatalf("ParseHeaderRow: %v", err)
	}
	if err := td.FindRowOffsets(ctx); err != nil {
		t.Fatalf("FindRowOffsets: %v", err)
	}
	if err := td.MapIntTranspose(ctx); err != nil {
		t.Fatalf("MapIntTranspose: %v", err)
	}
	if err := td.WriteManifest(); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	meta, err := os.ReadFile(filepath.Join(outDir, transpose.MetaFileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(meta) != 8 {
		t.Errorf("meta size = %d, want one 8-byte record", len(meta))
	}

	m, err := format.ReadManifest(outDir)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if m.ColumnCount != 2 || m.RowCount != 3 {
		t.Errorf("manifest counts = (%d,%d), want (2,3)", m.ColumnCount, m.RowCount)
	}
	bad, err := format.VerifyManifest(outDir, m)
	if err != nil {
		t.Fatalf("VerifyManifest: %v", err)
	}
	if len(bad) != 0 {
		t.Errorf("VerifyManifest reported %v on fresh build", bad)
	}
}

func TestCountsFromFilesInNewInstance(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(csvPath, []byte("a,b\n1,2\n3,4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")

	td, err := New(csvPath, outDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := td.ParseHeaderRow(); err != nil {
		t.Fatal(err)
	}
	if err := td.FindRowOffsets(context.Background()); err != nil {
		t.Fatal(err)
	}
	td.Close()

	// A fresh instance reads counts from the files alone.
	td2, err := New(csvPath, outDir)
	if err != nil {
		t.Fatal(err)
	}
	defer td2.Close()

	if cols, err := td2.GetColumnCount(); err != nil || cols != 2 {
		t.Errorf("GetColumnCount = %d, %v, want 2", cols, err)
	}
	if rows, err := td2.GetRowCount(); err != nil || rows != 2 {
		t.Errorf("GetRowCount = %d, %v, want 2", rows, err)
	}
	if h, err := td2.GetHeader(1); err != nil || h != "b" {
		t.Errorf("GetHeader(1) = %q, %v, want b", h, err)
	}
	// The transpose also runs purely from the on-disk indexes.
	if err := td2.MapIntTranspose(context.Background()); err != nil {
		t.Errorf("MapIntTranspose from files: %v", err)
	}
}
