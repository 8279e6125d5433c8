package ingest

import (
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	var lines []string
	if err := EachLine(path, func(line string) { lines = append(lines, line) }); err != nil {
		t.Fatalf("EachLine failed: %v", err)
	}
	return lines
}

func TestEachLineDropsInvalidBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latin1.txt")
	if err := os.WriteFile(path, []byte("caf\xe8 ok\nsecond"), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	got := readLines(t, path)
	want := []string{"caf ok\n", "second"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestEachLineDetectsGzipByContent(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte("one two\nthree\n")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	path := filepath.Join(t.TempDir(), "corpus.txt")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	got := readLines(t, path)
	want := []string{"one two\n", "three\n"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestEachLineMissing(t *testing.T) {
	err := EachLine(filepath.Join(t.TempDir(), "missing.txt"), func(string) {})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCollectCorpusAcceptsGzip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt.gz", "skip.csv"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	files, err := CollectCorpus([]string{dir})
	if err != nil {
		t.Fatalf("CollectCorpus failed: %v", err)
	}
	want := []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt.gz")}
	if !reflect.DeepEqual(files, want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
}
