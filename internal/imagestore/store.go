package imagestore

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validation failures surfaced to callers as 400s.
var (
	ErrUnsupportedType = errors.New("only image uploads are accepted")
	ErrTooLarge        = errors.New("uploaded file exceeds the size limit")
)

// Store persists uploaded images under a single directory. Filenames are
// generated server-side so concurrent uploads never contend on the same path.
type Store struct {
	dir      string
	maxBytes int64
}

// New creates the upload directory if needed and returns a Store.
func New(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Dir returns the directory files are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// Save validates and writes an uploaded file, returning the generated
// filename. Nothing is written if validation fails.
func (s *Store) Save(fh *multipart.FileHeader, now time.Time) (string, error) {
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrUnsupportedType
	}
	if s.maxBytes > 0 && fh.Size > s.maxBytes {
		return "", ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	name := filename(fh.Filename, now)
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create stored file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(filepath.Join(s.dir, name))
		return "", fmt.Errorf("failed to write stored file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(filepath.Join(s.dir, name))
		return "", fmt.Errorf("failed to write stored file: %w", err)
	}

	return name, nil
}

// Remove deletes a stored file. A file that is already gone is not an error:
// deletion cascades are best-effort and must not block row cleanup.
func (s *Store) Remove(name string) error {
	// Generated names never contain separators; reject anything that does.
	if name != filepath.Base(name) {
		return fmt.Errorf("invalid stored filename: %q", name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// filename builds a collision-resistant name: millisecond timestamp prefix,
// random suffix, original extension.
func filename(original string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(original))
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), suffix, ext)
}
