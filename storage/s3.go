package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// s3 DeleteObjects accepts at most 1000 keys per call
const s3BatchLimit = 1000

// S3Storage implements Storage interface for AWS S3
type S3Storage struct {
	client     *s3.Client
	bucket     string
	publicBase string
	httpClient *http.Client
}

// NewS3Storage creates a new S3 storage instance
func NewS3Storage(cfg StorageConfig) (*S3Storage, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("S3 bucket name is required")
	}

	var awsCfg aws.Config
	var err error

	// If credentials are provided, use them; otherwise use default credential chain
	if cfg.AWSAccessKey != "" && cfg.AWSSecretKey != "" {
		awsCfg, err = config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.S3Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AWSAccessKey,
				cfg.AWSSecretKey,
				"",
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.S3Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
	}

	return &S3Storage{
		client:     s3.NewFromConfig(awsCfg),
		bucket:     cfg.S3Bucket,
		publicBase: publicBase,
		httpClient: defaultHTTPClient,
	}, nil
}

// UploadFile uploads data to S3 and returns its public URL
func (s *S3Storage) UploadFile(ctx context.Context, data []byte, filename, folder string, disposition Disposition) (string, error) {
	key := generateStorageKey(folder, uuid.New(), filename)
	if disposition == "" {
		disposition = DispositionInline
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentType:        aws.String(ContentType(filename)),
		ContentDisposition: aws.String(ContentDisposition(disposition, filename)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to upload to S3: %v", ErrUploadFailed, err)
	}

	return joinURL(s.publicBase, key), nil
}

// DeleteFile deletes an object from S3
func (s *S3Storage) DeleteFile(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// BatchDelete removes keys with DeleteObjects, in chunks
func (s *S3Storage) BatchDelete(ctx context.Context, keys []string) error {
	var errs []error
	for start := 0; start < len(keys); start += s3BatchLimit {
		end := min(start+s3BatchLimit, len(keys))
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to batch delete from S3: %w", err))
			continue
		}
		for _, e := range out.Errors {
			errs = append(errs, fmt.Errorf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return errors.Join(errs...)
}

// KeyFromURL maps a public object URL back to its key
func (s *S3Storage) KeyFromURL(fileURL string) (string, bool) {
	key, ok := trimBase(s.publicBase, fileURL)
	if !ok {
		return "", false
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	return key, true
}

// Fetch reads own objects with GetObject and downloads anything else
func (s *S3Storage) Fetch(ctx context.Context, src string) ([]byte, error) {
	key, ok := s.KeyFromURL(src)
	if !ok {
		if isRemote(src) {
			return fetchRemote(ctx, s.httpClient, src)
		}
		return readLocal(src)
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	return io.ReadAll(io.LimitReader(result.Body, maxFetchSize))
}

// ContentDisposition builds the header value for a stored object, with the
// original name RFC 5987 encoded
func ContentDisposition(disposition Disposition, filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	return fmt.Sprintf("%s; filename*=UTF-8''%s", disposition, url.PathEscape(name))
}

// ContentType returns the MIME type based on file extension
func ContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".txt":
		return "text/plain"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
