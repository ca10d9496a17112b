package storage_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/dkeye/consult/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestPutAndOpen(t *testing.T) {
	req := require.New(t)
	s, err := storage.NewStore(afero.NewMemMapFs(), "/uploads", 1<<20)
	req.NoError(err)

	obj, err := s.Put("scan.png", bytes.NewReader(png))
	req.NoError(err)
	req.Equal("image/png", obj.ContentType)
	req.Equal("scan.png", obj.OriginalName)
	req.True(strings.HasSuffix(obj.Name, ".png"))
	req.Equal(int64(len(png)), obj.Size)

	f, meta, err := s.Open(obj.Name)
	req.NoError(err)
	defer f.Close()
	got, err := io.ReadAll(f)
	req.NoError(err)
	req.Equal(png, got)
	req.Equal("image/png", meta.ContentType)
}

func TestPutRejectsEmptyAndOversized(t *testing.T) {
	req := require.New(t)
	s, err := storage.NewStore(afero.NewMemMapFs(), "/uploads", 4)
	req.NoError(err)

	_, err = s.Put("a.txt", strings.NewReader(""))
	req.ErrorIs(err, storage.ErrEmpty)

	_, err = s.Put("a.txt", strings.NewReader("12345"))
	req.ErrorIs(err, storage.ErrTooLarge)

	_, err = s.Put("a.txt", strings.NewReader("1234"))
	req.NoError(err)
}

func TestOpenRejectsTraversal(t *testing.T) {
	req := require.New(t)
	fs := afero.NewMemMapFs()
	req.NoError(afero.WriteFile(fs, "/secret", []byte("x"), 0o644))
	s, err := storage.NewStore(fs, "/uploads", 0)
	req.NoError(err)

	for _, name := range []string{"../secret", "", ".hidden", "a/b"} {
		_, _, err := s.Open(name)
		req.ErrorIs(err, storage.ErrNotFound, name)
	}
}
