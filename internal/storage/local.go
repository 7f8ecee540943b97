package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalFileStorage implements FileStorage for local filesystem
type LocalFileStorage struct {
	basePath string
	baseURL  string
}

// NewLocalFileStorage creates a new local file storage
func NewLocalFileStorage(basePath, baseURL string) (*LocalFileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalFileStorage{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// SaveFile saves a file to local disk
func (s *LocalFileStorage) SaveFile(ctx context.Context, folder string, file io.Reader, filename string, contentType string) (string, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		chunks := strings.Split(contentType, "/")
		if len(chunks) == 2 {
			ext = "." + chunks[1]
		}
	}

	folder = cleanFolder(folder)
	dir := filepath.Join(s.basePath, folder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create folder %q: %w", folder, err)
	}

	newFilename := fmt.Sprintf("%s_%s%s", time.Now().Format("20060102"), uuid.New().String(), ext)
	dst, err := os.Create(filepath.Join(dir, newFilename))
	if err != nil {
		return "", fmt.Errorf("failed to create file on disk: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("failed to save file content: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", s.baseURL, folder, newFilename), nil
}

// DeleteFile deletes a file from local disk
func (s *LocalFileStorage) DeleteFile(ctx context.Context, fileURL string) error {
	rel := strings.TrimPrefix(strings.TrimPrefix(fileURL, s.baseURL), "/")
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(rel))

	// Refuse anything that resolves outside the base directory.
	base, err := filepath.Abs(s.basePath)
	if err != nil {
		return fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	abs, err := filepath.Abs(fullPath)
	if err != nil || !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return fmt.Errorf("refusing to delete %q outside storage directory", fileURL)
	}

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		return nil
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func cleanFolder(folder string) string {
	folder = strings.Trim(filepath.ToSlash(filepath.Clean("/"+folder)), "/")
	if folder == "" {
		return "uploads"
	}
	return folder
}
