package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStorage implements Storage interface for local filesystem
type LocalStorage struct {
	basePath   string
	publicBase string
	httpClient *http.Client
}

// NewLocalStorage creates a new local storage instance; stored keys are
// served under publicBase
func NewLocalStorage(basePath, publicBase string) (*LocalStorage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if publicBase == "" {
		publicBase = "/files"
	}

	return &LocalStorage{
		basePath:   basePath,
		publicBase: publicBase,
		httpClient: defaultHTTPClient,
	}, nil
}

// BasePath is the directory the files are written to
func (s *LocalStorage) BasePath() string {
	return s.basePath
}

// PublicBase is the URL prefix stored keys are served under
func (s *LocalStorage) PublicBase() string {
	return s.publicBase
}

// UploadFile saves data to the local filesystem
func (s *LocalStorage) UploadFile(ctx context.Context, data []byte, filename, folder string, _ Disposition) (string, error) {
	key := generateStorageKey(folder, uuid.New(), filename)
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create directory: %v", ErrUploadFailed, err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("%w: failed to write file: %v", ErrUploadFailed, err)
	}

	return joinURL(s.publicBase, key), nil
}

// DeleteFile deletes a file from the local filesystem
func (s *LocalStorage) DeleteFile(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// BatchDelete deletes every key, collecting failures
func (s *LocalStorage) BatchDelete(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := s.DeleteFile(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// KeyFromURL maps a public URL back to its key
func (s *LocalStorage) KeyFromURL(fileURL string) (string, bool) {
	if key, ok := trimBase(s.publicBase, fileURL); ok {
		return key, true
	}
	// absolute URLs served by this instance, e.g. http://host/files/...
	if isRemote(fileURL) && strings.HasPrefix(s.publicBase, "/") {
		if i := strings.Index(fileURL, strings.TrimRight(s.publicBase, "/")+"/"); i >= 0 {
			return trimBase(s.publicBase, fileURL[i:])
		}
	}
	return "", false
}

// Fetch reads own files from disk and downloads anything else
func (s *LocalStorage) Fetch(ctx context.Context, src string) ([]byte, error) {
	if key, ok := s.KeyFromURL(src); ok {
		fullPath, err := s.resolve(key)
		if err != nil {
			return nil, err
		}
		return readLocal(fullPath)
	}
	if isRemote(src) {
		return fetchRemote(ctx, s.httpClient, src)
	}
	return readLocal(src)
}

// resolve maps a key to a path inside basePath
func (s *LocalStorage) resolve(key string) (string, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.basePath, fullPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid storage key: %s", key)
	}
	return fullPath, nil
}
