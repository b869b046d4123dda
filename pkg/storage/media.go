package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MediaKind distinguishes the two asset classes served by the platform.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// MediaFile describes a stored asset.
type MediaFile struct {
	Ref  string
	URL  string
	Kind MediaKind
}

// MediaStore persists uploaded course assets on local disk.
//
// Assets are stored under baseDir/<kind>/<uuid><ext> and addressed by a
// relative ref. Public URLs are derived from the configured base URL.
type MediaStore struct {
	baseDir string
	baseURL string
}

// NewMediaStore ensures the media directory tree exists and returns a handle.
func NewMediaStore(baseDir, baseURL string) (*MediaStore, error) {
	if baseDir == "" {
		baseDir = "./media"
	}
	for _, kind := range []MediaKind{MediaKindImage, MediaKindVideo} {
		if err := os.MkdirAll(filepath.Join(baseDir, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("create media directory: %w", err)
		}
	}
	return &MediaStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Save streams an upload to disk and returns its descriptor.
// The original filename only contributes the extension.
func (s *MediaStore) Save(ctx context.Context, r io.Reader, kind MediaKind, originalName string) (*MediaFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	ref := filepath.Join(string(kind), uuid.NewString()+ext)
	path := s.resolve(ref)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create media file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	if _, err := io.Copy(file, r); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write media stream: %w", err)
	}

	return &MediaFile{
		Ref:  filepath.ToSlash(ref),
		URL:  s.PublicURL(ref),
		Kind: kind,
	}, nil
}

// Open returns a read-only handle for a stored asset.
func (s *MediaStore) Open(ref string) (*os.File, error) {
	file, err := os.Open(s.resolve(ref))
	if err != nil {
		return nil, fmt.Errorf("open media file: %w", err)
	}
	return file, nil
}

// Delete removes a stored asset if present. Missing files are not an error
// so replacement cleanup stays idempotent.
func (s *MediaStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.resolve(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete media file: %w", err)
	}
	return nil
}

// PublicURL derives the externally visible URL for a stored ref.
func (s *MediaStore) PublicURL(ref string) string {
	return s.baseURL + "/" + filepath.ToSlash(ref)
}

func (s *MediaStore) resolve(ref string) string {
	// Refuse path traversal in refs coming back from the database.
	clean := filepath.Clean(filepath.FromSlash(ref))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		clean = filepath.Base(clean)
	}
	return filepath.Join(s.baseDir, clean)
}
