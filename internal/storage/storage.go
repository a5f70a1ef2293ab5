// Package storage keeps chat attachments on the local filesystem.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Validation errors returned by Save. Callers map them to client errors.
var (
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	ErrContentMismatch     = errors.New("file content does not match an allowed type")
	ErrTooLarge            = errors.New("file exceeds the upload size limit")
	ErrEmpty               = errors.New("file is empty")
)

var allowedExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true,
	"webp": true, "pdf": true, "doc": true, "docx": true,
}

// allowedContent lists the sniffed types accepted for upload. Sniffing walks
// up the type hierarchy, so e.g. a .docx detected as a zip container passes.
var allowedContent = map[string]bool{
	"image/png": true, "image/jpeg": true, "image/gif": true, "image/webp": true,
	"application/pdf": true, "application/msword": true, "application/x-ole-storage": true,
	"application/zip": true, "application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// sniffLen is how much of the upload is inspected to detect its type.
const sniffLen = 3072

// Stored describes a saved attachment.
type Stored struct {
	Name        string
	URL         string
	ContentType string
	Size        int64
}

// Store saves attachments and returns a retrievable reference.
type Store interface {
	Save(ctx context.Context, owner, filename string, r io.Reader) (*Stored, error)
	Remove(name string) error
}

// AllowedExtension reports whether filename has an extension on the
// attachment allow-list. The check is case-insensitive.
func AllowedExtension(filename string) bool {
	return allowedExtensions[extension(filename)]
}

func extension(filename string) string {
	ext := filepath.Ext(filename)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FileStore writes attachments under a directory and serves them from a URL
// prefix.
type FileStore struct {
	dir       string
	urlPrefix string
	maxBytes  int64
}

// NewFileStore creates dir if needed.
func NewFileStore(dir, urlPrefix string, maxBytes int64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{dir: dir, urlPrefix: urlPrefix, maxBytes: maxBytes}, nil
}

// Save validates the extension, sniffs the content and writes the file as
// <owner>_<uuid>.<ext>. The client-supplied name is never used on disk.
func (s *FileStore) Save(ctx context.Context, owner, filename string, r io.Reader) (*Stored, error) {
	if !AllowedExtension(filename) {
		return nil, ErrExtensionNotAllowed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, ErrEmpty
	}

	mt := mimetype.Detect(head)
	if !contentAllowed(mt) {
		return nil, ErrContentMismatch
	}

	name := fmt.Sprintf("%s_%s.%s", owner, uuid.NewString(), extension(filename))
	full := filepath.Join(s.dir, name)
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}

	src := io.MultiReader(bytes.NewReader(head), r)
	limit := s.maxBytes
	if limit > 0 {
		src = io.LimitReader(src, limit+1)
	}
	written, err := io.Copy(f, src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && limit > 0 && written > limit {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("write attachment: %w", err)
	}

	return &Stored{
		Name:        name,
		URL:         path.Join(s.urlPrefix, name),
		ContentType: mt.String(),
		Size:        written,
	}, nil
}

// Remove deletes a saved attachment by its stored name. A missing file is
// not an error.
func (s *FileStore) Remove(name string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid attachment name %q", name)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove attachment: %w", err)
	}
	return nil
}

func contentAllowed(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if allowedContent[m.String()] {
			return true
		}
	}
	return false
}
