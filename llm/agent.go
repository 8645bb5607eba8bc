package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"casefile-backend/logger"
	"casefile-backend/normalize"

	"github.com/go-playground/validator/v10"
)

// DefaultTimeout bounds every remote model call
const DefaultTimeout = 180 * time.Second

// Fetcher downloads the bytes of an artifact (http(s) URL or local path)
type Fetcher interface {
	Fetch(ctx context.Context, src string) ([]byte, error)
}

// agent carries what the three agents share
type agent struct {
	model    VisionModel
	fetcher  Fetcher
	timeout  time.Duration
	logger   *logger.Logger
	validate *validator.Validate
}

// Option is a functional option shared by all agents
type Option func(*agent)

// WithFetcher sets the image downloader
func WithFetcher(f Fetcher) Option {
	return func(a *agent) {
		a.fetcher = f
	}
}

// WithTimeout overrides the per-call timeout
func WithTimeout(d time.Duration) Option {
	return func(a *agent) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(a *agent) {
		a.logger = l
	}
}

func newAgent(model VisionModel, opts []Option) agent {
	a := agent{
		model:    model,
		timeout:  DefaultTimeout,
		logger:   logger.Nop(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// call fetches the images, invokes the model under the timeout and decodes
// the validated response into dst. It returns the URLs that were sent.
func (a *agent) call(ctx context.Context, prompt string, urls []string, dst any) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	images := make([]Image, 0, len(urls))
	sent := make([]string, 0, len(urls))
	for _, u := range urls {
		img := Image{URL: u, Format: imageFormat(u)}
		if a.fetcher != nil {
			data, err := a.fetcher.Fetch(ctx, u)
			if err != nil {
				if ctx.Err() != nil {
					return nil, timeoutError(ctx.Err())
				}
				a.logger.Warn("skipping image that could not be downloaded", "url", u, "error", err)
				continue
			}
			img.Data = data
		}
		images = append(images, img)
		sent = append(sent, u)
	}
	if len(images) == 0 {
		return sent, nil
	}

	raw, err := a.model.GenerateJSON(ctx, prompt, images)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil, timeoutError(err)
		}
		return nil, fmt.Errorf("%w: %v", ErrRemoteCall, err)
	}
	if err := decodeResponse(raw, dst, a.validate); err != nil {
		a.logger.Error("invalid model response", "error", err, "body", truncate(string(raw), 500))
		return nil, err
	}
	return sent, nil
}

func timeoutError(err error) error {
	return fmt.Errorf("%w: %v", ErrRemoteTimeout, err)
}

// decodeResponse parses the model output, tolerating a markdown fence, and validates it
func decodeResponse(raw []byte, dst any, v *validator.Validate) error {
	raw = bytes.TrimSpace(raw)
	if bytes.HasPrefix(raw, []byte("```")) {
		raw = bytes.TrimPrefix(raw, []byte("```json"))
		raw = bytes.TrimPrefix(raw, []byte("```"))
		raw = bytes.TrimSuffix(bytes.TrimSpace(raw), []byte("```"))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := v.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// urlIndex resolves model-emitted URLs back to the input URLs, comparing both
// raw and percent-decoded forms
type urlIndex map[string]string

func newURLIndex(urls []string) urlIndex {
	idx := make(urlIndex, 2*len(urls))
	for _, u := range urls {
		for _, v := range normalize.URLVariants(u) {
			idx[v] = u
		}
	}
	return idx
}

func (idx urlIndex) resolve(u string) (string, bool) {
	for _, v := range normalize.URLVariants(u) {
		if orig, ok := idx[v]; ok {
			return orig, true
		}
	}
	return "", false
}

func imageFormat(u string) string {
	p := u
	if parsed, err := url.Parse(u); err == nil && parsed.Path != "" {
		p = parsed.Path
	}
	switch ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")); ext {
	case "png", "webp", "gif", "bmp", "heic":
		return ext
	default:
		return "jpeg"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
