package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"catalog-backend/internal/domain"
)

var (
	ErrNotAnImage = errors.New("media: file is not an allowed image type")
	ErrTooLarge   = errors.New("media: file exceeds the upload size limit")
)

var allowedImageMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store keeps uploaded product images on local disk under root and serves
// them at publicBase. Records persist the storage-relative path only.
type Store struct {
	root       string
	publicBase string
	maxBytes   int64
}

func NewStore(root, publicBase string, maxBytes int64) *Store {
	return &Store{root: root, publicBase: strings.TrimRight(publicBase, "/"), maxBytes: maxBytes}
}

// MaxBytes returns the upload size ceiling.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// sniffMIME reads the first 512 bytes to detect the content type, then seeks
// back so the full file can still be copied.
func sniffMIME(file multipart.File) (string, error) {
	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("media: read for sniffing failed: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("media: seek reset failed: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}

// SaveImage validates and stores an uploaded image, returning the
// storage-relative path. Validation happens before any byte is written, so a
// rejected upload leaves nothing behind.
func (s *Store) SaveImage(file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > s.maxBytes {
		return "", ErrTooLarge
	}
	mimeType, err := sniffMIME(file)
	if err != nil {
		return "", err
	}
	ext, ok := allowedImageMIME[mimeType]
	if !ok {
		return "", ErrNotAnImage
	}

	relPath := path.Join("products", uuid.NewString()+ext)
	fullPath := filepath.Join(s.root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("media: failed to create directory: %w", err)
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("media: failed to create file: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(fullPath)
		return "", fmt.Errorf("media: failed to write file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("media: failed to close file: %w", err)
	}
	return relPath, nil
}

// Delete removes a stored file by its storage-relative path. Paths resolving
// outside the media root are rejected. A missing file is not an error, so
// delete-after-commit stays idempotent.
func (s *Store) Delete(relPath string) error {
	if relPath == "" {
		return nil
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(relPath))
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return fmt.Errorf("media: failed to resolve root: %w", err)
	}
	fileAbs, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("media: failed to resolve path: %w", err)
	}
	if fileAbs != rootAbs && !strings.HasPrefix(fileAbs, rootAbs+string(os.PathSeparator)) {
		return fmt.Errorf("media: path %q escapes the media root", relPath)
	}
	if err := os.Remove(fileAbs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("media: failed to remove file: %w", err)
	}
	return nil
}

// PublicURL derives the client-facing URL for a storage-relative path.
func (s *Store) PublicURL(relPath string) string {
	return s.publicBase + "/" + strings.TrimLeft(relPath, "/")
}

// Decorate fills the derived ImageURL on a product from its stored path.
func (s *Store) Decorate(p *domain.Product) {
	if p == nil {
		return
	}
	if p.Image == nil || *p.Image == "" {
		p.ImageURL = nil
		return
	}
	url := s.PublicURL(*p.Image)
	p.ImageURL = &url
}
