// Package storage keeps chat attachments as opaque blobs.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

var (
	ErrEmpty    = errors.New("file is empty")
	ErrTooLarge = errors.New("file too large")
	ErrNotFound = errors.New("file not found")
)

type Object struct {
	Name         string `json:"name"`
	OriginalName string `json:"fileName"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
}

type Store struct {
	fs       afero.Fs
	dir      string
	maxBytes int64
}

func NewStore(fs afero.Fs, dir string, maxBytes int64) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{fs: fs, dir: dir, maxBytes: maxBytes}, nil
}

// Put stores r under a fresh name. The content type is sniffed, not trusted
// from the client.
func (s *Store) Put(originalName string, r io.Reader) (Object, error) {
	var buf bytes.Buffer
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := buf.ReadFrom(src)
	if err != nil {
		return Object{}, fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return Object{}, ErrEmpty
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return Object{}, ErrTooLarge
	}

	mt := mimetype.Detect(buf.Bytes())
	ext := mt.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(originalName))
	}
	name := uuid.NewString() + ext

	if err := afero.WriteFile(s.fs, filepath.Join(s.dir, name), buf.Bytes(), 0o644); err != nil {
		return Object{}, fmt.Errorf("write upload: %w", err)
	}
	log.Info().Str("module", "storage").Str("name", name).Str("type", mt.String()).Int64("size", n).Msg("stored")
	return Object{
		Name:         name,
		OriginalName: filepath.Base(originalName),
		ContentType:  mt.String(),
		Size:         n,
	}, nil
}

// Open returns a stored blob. Names with path components never resolve.
func (s *Store) Open(name string) (afero.File, Object, error) {
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return nil, Object{}, ErrNotFound
	}
	f, err := s.fs.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Object{}, ErrNotFound
		}
		return nil, Object{}, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Object{}, err
	}
	head := make([]byte, 3072)
	k, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, Object{}, err
	}
	return f, Object{
		Name:        name,
		ContentType: mimetype.Detect(head[:k]).String(),
		Size:        st.Size(),
	}, nil
}
