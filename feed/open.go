// Package feed reads the recorded market data a replay is driven by: a
// trade tape (CSV) and an order-book depth stream (JSON lines), merged
// into one time-ordered sequence of events.
package feed

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens a feed file. Files ending in .gz, .xz or .lzma are
// decompressed transparently.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		return &readCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".xz":
		xr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz %s: %w", path, err)
		}
		return &readCloser{Reader: xr, closers: []io.Closer{f}}, nil
	case ".lzma":
		lr, err := lzma.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("lzma %s: %w", path, err)
		}
		return &readCloser{Reader: lr, closers: []io.Closer{f}}, nil
	default:
		return f, nil
	}
}
