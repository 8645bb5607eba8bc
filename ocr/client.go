package ocr

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"casefile-backend/logger"
	"casefile-backend/models"
	"casefile-backend/normalize"
)

// Fetcher downloads the bytes of an artifact (http(s) URL or local path)
type Fetcher interface {
	Fetch(ctx context.Context, src string) ([]byte, error)
}

// Config holds the OCR service credentials
type Config struct {
	AppID     string
	APIKey    string
	APISecret string
	// Endpoint is the base URL; the service type is appended as the last path segment
	Endpoint string
}

// Configured reports whether the credentials are complete
func (c Config) Configured() bool {
	return c.AppID != "" && c.APIKey != "" && c.APISecret != "" && c.Endpoint != ""
}

// Result is the outcome of one OCR extraction. A non-empty Error means the
// extraction missed and Slots is empty.
type Result struct {
	Slots       models.SlotRecords `json:"slots"`
	ServiceType string             `json:"service_type,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Missed reports whether the caller should treat the extraction as absent
func (r Result) Missed() bool {
	return r.Error != "" || len(r.Slots) == 0
}

// Client calls the HMAC-signed OCR service
type Client struct {
	cfg        Config
	httpClient *http.Client
	fetcher    Fetcher
	now        func() time.Time
	logger     *logger.Logger
}

// ClientOption is a functional option for Client
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithFetcher sets the artifact downloader
func WithFetcher(f Fetcher) ClientOption {
	return func(c *Client) {
		c.fetcher = f
	}
}

// WithClock overrides the clock used for the signed date
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new OCR client
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		now:        time.Now,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Supports reports whether the category has a fixed OCR service
func (c *Client) Supports(category string) bool {
	_, ok := ServiceFor(category)
	return ok
}

// Extract runs OCR on one artifact. Failures never return an error; they are
// reported through Result.Error so callers can fall back to another extractor.
func (c *Client) Extract(ctx context.Context, fileURL, category string) Result {
	service, ok := ServiceFor(category)
	if !ok {
		return Result{Slots: models.SlotRecords{}, Error: fmt.Sprintf("unsupported category %q", category)}
	}
	res := Result{Slots: models.SlotRecords{}, ServiceType: service}
	if !c.cfg.Configured() {
		res.Error = "ocr credentials not configured"
		return res
	}
	if c.fetcher == nil {
		res.Error = "no fetcher configured"
		return res
	}

	data, err := c.fetcher.Fetch(ctx, fileURL)
	if err != nil {
		c.logger.Warn("ocr download failed", "url", fileURL, "error", err)
		res.Error = fmt.Sprintf("download: %v", err)
		return res
	}

	doc, err := c.recognize(ctx, service, data, imageEncoding(fileURL))
	if err != nil {
		c.logger.Warn("ocr request failed", "service", service, "url", fileURL, "error", err)
		res.Error = err.Error()
		return res
	}

	res.Slots = mapRegions(service, doc)
	return res
}

type requestBody struct {
	Header    requestHeader             `json:"header"`
	Parameter map[string]map[string]any `json:"parameter"`
	Payload   map[string]map[string]any `json:"payload"`
}

type requestHeader struct {
	AppID  string `json:"app_id"`
	Status int    `json:"status"`
}

type responseBody struct {
	Header struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		SID     string `json:"sid"`
	} `json:"header"`
	Payload struct {
		Result struct {
			Text string `json:"text"`
		} `json:"result"`
	} `json:"payload"`
}

type textBlock struct {
	Value    string  `json:"value"`
	DetScore float64 `json:"det_score"`
	Score    float64 `json:"score"`
}

type region struct {
	Type          string      `json:"type"`
	TextBlockList []textBlock `json:"text_block_list"`
}

type document struct {
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
	ObjectList []struct {
		RegionList []region `json:"region_list"`
	} `json:"object_list"`
}

func (c *Client) recognize(ctx context.Context, service string, image []byte, encoding string) (*document, error) {
	endpoint := strings.TrimRight(c.cfg.Endpoint, "/") + "/" + service
	signed, err := signURL(endpoint, c.cfg.APIKey, c.cfg.APISecret, c.now())
	if err != nil {
		return nil, err
	}

	body := requestBody{
		Header: requestHeader{AppID: c.cfg.AppID, Status: 3},
		Parameter: map[string]map[string]any{
			service: {
				"result": map[string]string{"encoding": "utf8", "compress": "raw", "format": "json"},
			},
		},
		Payload: map[string]map[string]any{
			"image": {
				"encoding": encoding,
				"image":    base64.StdEncoding.EncodeToString(image),
				"status":   3,
			},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signed, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var out responseBody
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Header.Code != 0 {
		return nil, fmt.Errorf("ocr error %d: %s", out.Header.Code, out.Header.Message)
	}
	if out.Payload.Result.Text == "" {
		return nil, errors.New("empty ocr payload")
	}

	decoded, err := base64.StdEncoding.DecodeString(out.Payload.Result.Text)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	var doc document
	if err := json.Unmarshal(decoded, &doc); err != nil {
		return nil, fmt.Errorf("decode payload json: %w", err)
	}
	if doc.ErrCode != 0 {
		return nil, fmt.Errorf("ocr errcode %d: %s", doc.ErrCode, doc.ErrMsg)
	}
	return &doc, nil
}

// signURL appends the HMAC-SHA256 authorization, date and host query parameters
func signURL(endpoint, apiKey, apiSecret string, now time.Time) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	date := now.UTC().Format(http.TimeFormat)
	signature := sign(u.Host, date, u.Path, apiSecret)
	authorization := fmt.Sprintf(`api_key="%s", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`, apiKey, signature)

	q := url.Values{}
	q.Set("authorization", base64.StdEncoding.EncodeToString([]byte(authorization)))
	q.Set("date", date)
	q.Set("host", u.Host)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sign(host, date, requestPath, secret string) string {
	origin := fmt.Sprintf("host: %s\ndate: %s\nPOST %s HTTP/1.1", host, date, requestPath)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(origin))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// mapRegions converts recognised regions to slot records via the service's field table
func mapRegions(service string, doc *document) models.SlotRecords {
	table := fieldTables[service]
	type acc struct {
		spec   fieldSpec
		parts  []string
		scores []float64
	}
	var order []string
	bySlot := make(map[string]*acc)

	for _, obj := range doc.ObjectList {
		for _, r := range obj.RegionList {
			spec, ok := table[r.Type]
			if !ok {
				continue
			}
			a, seen := bySlot[spec.slot]
			if !seen {
				a = &acc{spec: spec}
				bySlot[spec.slot] = a
				order = append(order, spec.slot)
			}
			for _, b := range r.TextBlockList {
				a.parts = append(a.parts, b.Value)
				a.scores = append(a.scores, (b.DetScore+b.Score)/2)
			}
		}
	}

	out := make(models.SlotRecords, 0, len(order))
	for _, name := range order {
		a := bySlot[name]
		value := a.spec.clean(strings.Join(a.parts, " "))
		if value == "" {
			continue
		}
		out = append(out, models.SlotRecord{
			SlotName:      name,
			SlotValue:     models.StringPtr(value),
			SlotValueType: a.spec.valueType,
			SlotRequired:  true,
			Confidence:    mean(a.scores),
			Reasoning:     "OCR识别",
		})
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func imageEncoding(fileURL string) string {
	p := fileURL
	if u, err := url.Parse(fileURL); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(normalize.URLKey(p)), "."))
	switch ext {
	case "png", "bmp":
		return ext
	default:
		return "jpg"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
