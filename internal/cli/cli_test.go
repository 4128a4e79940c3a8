package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunNoArgs(t *testing.T) {
	err := Run(nil)
	if err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Errorf("Run() = %v, want usage error", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"frobnicate"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("Run(frobnicate) = %v, want unknown command error", err)
	}
}

func TestBuildRequiresOut(t *testing.T) {
	err := Run([]string{"build", "in.csv"})
	if err == nil || !strings.Contains(err.Error(), "--out") {
		t.Errorf("build without --out = %v, want flag error", err)
	}
}

func TestBuildRequiresInput(t *testing.T) {
	err := Run([]string{"build", "-out", t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "input") {
		t.Errorf("build without input = %v, want input error", err)
	}
}

func TestBuildMissingFile(t *testing.T) {
	err := Run([]string{"build", "-out", t.TempDir(), "no-such-file.csv"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("build with missing file = %v, want not-found error", err)
	}
}

func TestBuildRejectsMultiByteDelimiter(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(csvPath, []byte("a,b\n1,2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	err := Run([]string{"build", "-out", filepath.Join(dir, "out"), "-delim", "ab", csvPath})
	if err == nil || !strings.Contains(err.Error(), "single character") {
		t.Errorf("build with bad delimiter = %v, want single character error", err)
	}
}

func TestBuildRejectsZeroWorkers(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(csvPath, []byte("a,b\n1,2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	err := Run([]string{"build", "-out", filepath.Join(dir, "out"), "-workers", "0", csvPath})
	if err == nil || !strings.Contains(err.Error(), "worker count") {
		t.Errorf("build with zero workers = %v, want worker count error", err)
	}
}

func TestBuildAndHeader(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	content := "Index,\"Girth (in)\",Volume\n1,2,3\n4,5,6\n"
	if err := os.WriteFile(csvPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")

	if err := Run([]string{"build", "-out", outDir, "-transpose", csvPath}); err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, name := range []string{
		"header_string_lookup_offsets.bin",
		"row_offsets.bin",
		"column_chunk_meta.bin",
		"column_headers.json",
		"manifest.json",
	} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("expected artifact %s: %v", name, err)
		}
	}

	// The header command reads the artifacts back.
	if err := Run([]string{"header", "-out", outDir, "-i", "1", csvPath}); err != nil {
		t.Errorf("header -i: %v", err)
	}
	if err := Run([]string{"header", "-out", outDir, "-name", "Volume", csvPath}); err != nil {
		t.Errorf("header -name: %v", err)
	}
	if err := Run([]string{"header", "-out", outDir, csvPath}); err != nil {
		t.Errorf("header count: %v", err)
	}
}
