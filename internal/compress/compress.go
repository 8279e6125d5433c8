// Package compress measures how well a window's text compresses.
package compress

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"

	"maxwell/internal/fault"
)

type Codec string

const (
	LZMA Codec = "lzma"
	Gzip Codec = "gzip"
	BZ2  Codec = "bz2"
	Zlib Codec = "zlib"
)

const Default = LZMA

var (
	ErrUnknownCodec = errors.New("unknown compression codec")
	ErrEmptyInput   = errors.New("compression input is empty")
)

func Codecs() []Codec { return []Codec{LZMA, Gzip, BZ2, Zlib} }

func ParseCodec(raw string) (Codec, error) {
	c := Codec(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Codecs() {
		if c == known {
			return c, nil
		}
	}
	return "", fault.AsConfig("compress", fmt.Errorf("%w: %q (expected lzma, gzip, bz2 or zlib)", ErrUnknownCodec, raw))
}

// Ratio is len(compressed)/len(raw). Container overhead is included, so very
// short inputs can exceed 1.
func Ratio(raw []byte, c Codec) (float64, error) {
	if len(raw) == 0 {
		return 0, fault.AsResource("compress", ErrEmptyInput)
	}
	out, err := Compress(raw, c)
	if err != nil {
		return 0, err
	}
	return float64(len(out)) / float64(len(raw)), nil
}

func RatioString(text string, c Codec) (float64, error) {
	return Ratio([]byte(text), c)
}

func Compress(raw []byte, c Codec) ([]byte, error) {
	var buf bytes.Buffer
	w, err := newWriter(&buf, c)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%s compress: %w", c, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s close: %w", c, err)
	}
	return buf.Bytes(), nil
}

func newWriter(buf *bytes.Buffer, c Codec) (io.WriteCloser, error) {
	switch c {
	case LZMA:
		w, err := xz.NewWriter(buf)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return w, nil
	case Gzip:
		return gzip.NewWriterLevel(buf, gzip.BestCompression)
	case BZ2:
		w, err := bzip2.NewWriter(buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
		if err != nil {
			return nil, fmt.Errorf("bzip2 writer: %w", err)
		}
		return w, nil
	case Zlib:
		return zlib.NewWriterLevel(buf, zlib.BestCompression)
	}
	return nil, fault.AsConfig("compress", fmt.Errorf("%w: %q", ErrUnknownCodec, c))
}
