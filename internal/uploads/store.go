// Package uploads stores uploaded audio on local disk for the duration of a
// single request.
package uploads

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes uploads into a single directory.
type Store struct {
	dir string
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// File is an upload on disk. Release deletes it and is safe to call more than once.
type File struct {
	Path string
}

// Release removes the file. Errors are logged, not returned, because callers
// release on every exit path.
func (f *File) Release() {
	if f == nil || f.Path == "" {
		return
	}
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove upload", slog.String("path", f.Path), slog.String("error", err.Error()))
	}
}

// Save copies r into a new file named after the original upload. The name is
// prefixed with a random ID so concurrent uploads never collide.
func (s *Store) Save(r io.Reader, originalName string) (*File, error) {
	name := uuid.NewString() + "-" + sanitizeName(originalName)
	path := filepath.Join(s.dir, name)

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	f := &File{Path: path}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		f.Release()
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := out.Close(); err != nil {
		f.Release()
		return nil, fmt.Errorf("failed to close upload: %w", err)
	}
	return f, nil
}

// sanitizeName keeps only the base name and replaces anything that is not a
// letter, digit, dot, dash or underscore.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
