package ingest

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var gzipMagic = []byte{0x1f, 0x8b}

// CorpusFile reports whether path is usable as calibration input. Besides the
// document types it accepts gzip-compressed text.
func CorpusFile(path string) bool {
	return Supported(path) || strings.EqualFold(filepath.Ext(path), ".gz")
}

// CollectCorpus is CollectAll for calibration inputs.
func CollectCorpus(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		files, err := collect(p, CorpusFile)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

// EachLine streams a corpus file to fn one line at a time, newline included.
// Gzip input is recognised by its magic bytes and bytes that are not valid
// UTF-8 are dropped. Docx and pdf files are extracted whole first.
func EachLine(path string, fn func(line string)) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx", ".pdf":
		parsed, err := ParseFile(path)
		if err != nil {
			return err
		}
		for _, line := range strings.SplitAfter(parsed.Text, "\n") {
			if line != "" {
				fn(line)
			}
		}
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	src := bufio.NewReader(f)
	if magic, _ := src.Peek(len(gzipMagic)); bytes.Equal(magic, gzipMagic) {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("gunzip %s: %w", path, err)
		}
		defer gz.Close()
		src = bufio.NewReader(gz)
	}

	for {
		line, err := src.ReadString('\n')
		if line != "" {
			fn(strings.ToValidUTF8(line, ""))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
	}
}
