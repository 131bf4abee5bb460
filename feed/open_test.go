package feed

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

func compress(t *testing.T, ext string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch ext {
	case ".gz":
		w = gzip.NewWriter(&buf)
	case ".xz":
		w, err = xz.NewWriter(&buf)
	case ".lzma":
		w, err = lzma.NewWriter(&buf)
	default:
		return data
	}
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestOpenDecompresses(t *testing.T) {
	t.Parallel()

	for _, ext := range []string{".csv", ".gz", ".xz", ".lzma"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "trades"+ext)
			require.NoError(t, os.WriteFile(path, compress(t, ext, []byte(tape)), 0644))

			rc, err := Open(path)
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, tape, string(got))

			tr, err := OpenTrades(path, TradeOptions{})
			require.NoError(t, err)
			defer tr.Close()
			assert.Len(t, readAll(t, tr), 4)
		})
	}
}

func TestOpenCorrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.gz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0644))
	_, err := Open(path)
	assert.ErrorContains(t, err, "gzip")
}
