package domain

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/pixora/backend/internal/imaging"
	"github.com/pixora/backend/internal/storage"
)

// MediaService normalizes uploaded images and hands them to object storage.
// Only the returned URL is ever stored on records.
type MediaService struct {
	storage storage.FileStorage
}

func NewMediaService(storage storage.FileStorage) *MediaService {
	return &MediaService{storage: storage}
}

// Upload stores data under folder as a PNG and returns its public URL.
func (s *MediaService) Upload(ctx context.Context, folder string, data []byte, filename string) (string, error) {
	normalized, err := imaging.Normalize(data)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedImage) {
			return "", &ValidationError{Field: "file", Message: "file is not a readable image"}
		}
		return "", err
	}

	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)) + ".png"
	return s.storage.SaveFile(ctx, folder, bytes.NewReader(normalized), name, "image/png")
}

// Discard removes an upload whose record was never written.
func (s *MediaService) Discard(ctx context.Context, url string) error {
	return s.storage.DeleteFile(ctx, url)
}
