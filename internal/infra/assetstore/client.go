// Package assetstore uploads picked image files to an image hosting service
// and returns their public URL.
package assetstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"gallery-feed/internal/domain/entity"
	"gallery-feed/internal/observability/metrics"
	"gallery-feed/internal/observability/requestid"
	"gallery-feed/internal/observability/tracing"
	"gallery-feed/internal/resilience/circuitbreaker"
	"gallery-feed/internal/resilience/retry"

	"go.opentelemetry.io/otel/attribute"
)

const (
	// imageField is the multipart field the hosting service reads the file from.
	imageField = "image"

	operationUpload = "upload_asset"
)

var (
	// ErrNoURL indicates that the hosting service accepted the file but returned no URL.
	ErrNoURL = errors.New("asset store returned no url")

	// ErrTooLarge indicates that the content exceeds the upload size limit.
	ErrTooLarge = errors.New("asset exceeds upload size limit")
)

// Config contains configuration for the asset store client.
type Config struct {
	// UploadURL is the upload endpoint, e.g. https://api.imgbb.com/1/upload
	UploadURL string

	// APIKey is sent as the "key" query parameter when set
	APIKey string

	// Timeout is the per-request HTTP timeout
	Timeout time.Duration
}

// Client uploads files to the hosting service. It implements upload.AssetUploader.
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retry      retry.Config
	logger     *slog.Logger
}

// uploadResponse is the relevant part of the hosting service reply.
type uploadResponse struct {
	Data struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
	Success bool `json:"success"`
}

// NewClient creates a Client with the default asset store circuit breaker and retry policy.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    circuitbreaker.New(circuitbreaker.AssetStoreConfig()),
		retry:      retry.AssetUploadConfig(),
		logger:     logger,
	}
}

// UploadAsset sends content as a multipart upload and returns the hosted URL.
// The content is buffered once so that a retried attempt resends the same bytes.
func (c *Client) UploadAsset(ctx context.Context, file entity.FileInfo, content io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(content, entity.MaxFileSize))
	if err != nil {
		return "", fmt.Errorf("read asset: %w", err)
	}
	if int64(len(data)) >= entity.MaxFileSize {
		return "", ErrTooLarge
	}

	ctx, reqID := requestid.Ensure(ctx)
	ctx, span := tracing.StartClientSpan(ctx, "assetstore.upload",
		attribute.String("asset.name", file.Name),
		attribute.String("asset.mime_type", file.MimeType),
		attribute.Int("asset.size", len(data)),
		attribute.String("request.id", reqID))

	var hosted string
	err = retry.WithBackoff(ctx, c.retry, func() error {
		return c.breaker.Do(func() error {
			u, err := c.post(ctx, reqID, file, data)
			hosted = u
			return err
		})
	})
	tracing.EndSpan(span, err)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", file.Name, err)
	}

	metrics.RecordAssetUploadSize(int64(len(data)))
	c.logger.Debug("asset stored",
		slog.String("request_id", reqID),
		slog.String("file", file.Name),
		slog.String("url", hosted))
	return hosted, nil
}

func (c *Client) post(ctx context.Context, reqID string, file entity.FileInfo, data []byte) (string, error) {
	body, contentType, err := multipartBody(file, data)
	if err != nil {
		return "", err
	}

	target, err := c.endpoint()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(operationUpload, 0, time.Since(start))
		return "", fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordAPIRequest(operationUpload, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &retry.HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var out uploadResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	hosted := out.Data.URL
	if hosted == "" {
		hosted = out.Data.DisplayURL
	}
	if hosted == "" {
		return "", ErrNoURL
	}
	return hosted, nil
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.config.UploadURL)
	if err != nil {
		return "", fmt.Errorf("parse upload url: %w", err)
	}
	if c.config.APIKey != "" {
		q := u.Query()
		q.Set("key", c.config.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func multipartBody(file entity.FileInfo, data []byte) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, imageField, file.Name))
	h.Set("Content-Type", file.MimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write multipart part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// Breaker returns the circuit breaker guarding the asset store.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}
