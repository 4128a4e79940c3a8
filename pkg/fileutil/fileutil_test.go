package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestExistsAndNonEmpty(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if !Exists(empty) || !Exists(full) {
		t.Error("Exists should be true for created files")
	}
	if Exists(filepath.Join(dir, "missing")) {
		t.Error("Exists should be false for missing files")
	}
	if IsNonEmpty(empty) {
		t.Error("IsNonEmpty should be false for empty files")
	}
	if !IsNonEmpty(full) {
		t.Error("IsNonEmpty should be true for non-empty files")
	}
}

func TestSizeOf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	n, err := SizeOf(path)
	if err != nil {
		t.Fatalf("SizeOf: %v", err)
	}
	if n != 5 {
		t.Errorf("SizeOf = %d, want 5", n)
	}
	if _, err := SizeOf(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("SizeOf of missing file should fail")
	}
}

func TestRemoveGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"part-0.bin", "part-1.bin", "keep.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := RemoveGlob(filepath.Join(dir, "part-*.bin"))
	if err != nil {
		t.Fatalf("RemoveGlob: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d files, want 2", n)
	}
	if !Exists(filepath.Join(dir, "keep.bin")) {
		t.Error("non-matching file was removed")
	}
}

func TestWriteTmpThenMove(t *testing.T) {
	out := filepath.Join(t.TempDir(), "final.bin")

	err := WriteTmpThenMove(out, func(tmpPath string) error {
		return os.WriteFile(tmpPath, []byte("payload"), 0644)
	})
	if err != nil {
		t.Fatalf("WriteTmpThenMove: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Errorf("final content = %q, want payload", data)
	}
	if Exists(out + ".tmp") {
		t.Error("temp file left behind")
	}
}

func TestWriteTmpThenMoveCleansUpOnError(t *testing.T) {
	out := filepath.Join(t.TempDir(), "final.bin")
	boom := errors.New("boom")

	err := WriteTmpThenMove(out, func(tmpPath string) error {
		if werr := os.WriteFile(tmpPath, []byte("partial"), 0644); werr != nil {
			return werr
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WriteTmpThenMove = %v, want boom", err)
	}
	if Exists(out) || Exists(out+".tmp") {
		t.Error("failed write should leave neither final nor temp file")
	}
}
