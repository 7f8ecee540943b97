package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/pixora/backend/internal/config"
)

// Logical folders uploads are grouped under.
const (
	FolderPosts       = "post"
	FolderStories     = "story"
	FolderProfilePics = "profile-pics"
)

// FileStorage defines the interface for file storage operations
type FileStorage interface {
	// SaveFile saves a file under folder and returns its public URL
	SaveFile(ctx context.Context, folder string, file io.Reader, filename string, contentType string) (string, error)
	// DeleteFile deletes a file by its URL
	DeleteFile(ctx context.Context, fileURL string) error
}

// New builds the backend selected by cfg.Type
func New(ctx context.Context, cfg config.StorageConfig) (FileStorage, error) {
	switch cfg.Type {
	case "s3":
		s3, err := NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s3, nil
	case "local", "":
		local, err := NewLocalFileStorage(cfg.UploadDir, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return local, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
