package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUploadFailed = errors.New("upload failed")
	ErrNotFound     = errors.New("file not found")
)

// Disposition controls how browsers treat a stored object
type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// Storage interface for file storage operations
type Storage interface {
	// UploadFile stores data under folder and returns its public URL
	UploadFile(ctx context.Context, data []byte, filename, folder string, disposition Disposition) (string, error)

	// DeleteFile removes one object by key
	DeleteFile(ctx context.Context, key string) error

	// BatchDelete removes several objects by key
	BatchDelete(ctx context.Context, keys []string) error

	// KeyFromURL maps a URL returned by UploadFile back to its key
	KeyFromURL(fileURL string) (string, bool)

	// Fetch downloads a file by URL or local path; URLs owned by this
	// storage are read from the backend directly
	Fetch(ctx context.Context, src string) ([]byte, error)
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type          StorageType
	LocalPath     string // For local storage
	PublicBaseURL string // URL prefix the stored keys are served under
	S3Bucket      string // For S3 storage
	S3Region      string // For S3 storage
	AWSAccessKey  string
	AWSSecretKey  string
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal:
		return NewLocalStorage(cfg.LocalPath, cfg.PublicBaseURL)
	case StorageTypeS3:
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// NewStorageFromEnv creates a storage instance from environment variables
func NewStorageFromEnv() (Storage, error) {
	storageType := os.Getenv("STORAGE_TYPE")
	if storageType == "" {
		storageType = "local" // Default to local for development
	}

	cfg := StorageConfig{
		Type: StorageType(storageType),
	}

	switch StorageType(storageType) {
	case StorageTypeLocal:
		localPath := os.Getenv("STORAGE_LOCAL_PATH")
		if localPath == "" {
			localPath = "./storage/files" // Default local storage path
		}
		cfg.LocalPath = localPath
		cfg.PublicBaseURL = os.Getenv("STORAGE_PUBLIC_BASE_URL")
		if cfg.PublicBaseURL == "" {
			cfg.PublicBaseURL = "/files"
		}
		return NewLocalStorage(cfg.LocalPath, cfg.PublicBaseURL)

	case StorageTypeS3:
		cfg.S3Bucket = os.Getenv("AWS_S3_BUCKET")
		cfg.S3Region = os.Getenv("AWS_REGION")
		if cfg.S3Region == "" {
			cfg.S3Region = "us-east-1" // Default region
		}
		cfg.AWSAccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		cfg.AWSSecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
		cfg.PublicBaseURL = os.Getenv("S3_PUBLIC_BASE_URL")

		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET environment variable is required for S3 storage")
		}

		return NewS3Storage(cfg)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageType)
	}
}

// generateStorageKey generates a unique key for a file inside folder
func generateStorageKey(folder string, fileID uuid.UUID, filename string) string {
	if folder == "" {
		folder = FolderForExtension(filepath.Ext(filename))
	}
	// Use fileID to ensure uniqueness
	return fmt.Sprintf("%s/%s_%s", strings.Trim(folder, "/"), fileID.String(), SanitizeFilename(filename))
}

// joinURL appends key to a base URL
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// trimBase returns the key under base, if fileURL starts with it
func trimBase(base, fileURL string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if base == "" || !strings.HasPrefix(fileURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(fileURL, prefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	return key, key != ""
}
