package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound - 다운로드 대상이 없음 (404)
var ErrNotFound = errors.New("storage object not found")

const defaultDownloadTimeout = 30 * time.Second

// StatusError - 2xx 이외의 storage 응답
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("storage %s failed: status %d: %s", e.Op, e.Status, e.Body)
}

// Config - Supabase Storage 설정
type Config struct {
	SupabaseURL     string
	ServiceKey      string
	Bucket          string
	PublicBaseURL   string
	DownloadTimeout time.Duration
}

type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// NewClient - Storage 클라이언트 생성
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}
	cfg.SupabaseURL = strings.TrimRight(cfg.SupabaseURL, "/")
	if cfg.PublicBaseURL != "" && !strings.HasSuffix(cfg.PublicBaseURL, "/") {
		cfg.PublicBaseURL += "/"
	}

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger.Named("storage"),
	}
}

// PublicURL - 저장 경로의 공개 URL
func (c *Client) PublicURL(path string) string {
	return c.cfg.PublicBaseURL + strings.TrimLeft(path, "/")
}

// Download - URL 에서 이미지 다운로드 (다운로드마다 timeout 적용)
// 반환 MIME 은 Content-Type 헤더 값
func (c *Client) Download(ctx context.Context, url string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	c.logger.Debug("📥 Downloading image", zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{Op: "download", Status: resp.StatusCode, Body: string(body)}
		if resp.StatusCode == http.StatusNotFound {
			return nil, "", fmt.Errorf("%w: %w", ErrNotFound, statusErr)
		}
		return nil, "", statusErr
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}

	c.logger.Debug("✅ Image downloaded", zap.String("url", url), zap.Int("bytes", len(imageData)))
	return imageData, resp.Header.Get("Content-Type"), nil
}

// Upload - bucket/{path} 에 업로드
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	c.logger.Info("📤 Uploading image to storage", zap.String("path", path), zap.Int("bytes", len(data)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL(path), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceKey)
	req.Header.Set("Content-Type", contentType)

	if err := c.do(req, "upload"); err != nil {
		return err
	}

	c.logger.Info("✅ Image uploaded", zap.String("path", path))
	return nil
}

// Delete - bucket/{path} 삭제
func (c *Client) Delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.objectURL(path), nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceKey)

	if err := c.do(req, "delete"); err != nil {
		return err
	}

	c.logger.Info("🗑️  Storage object deleted", zap.String("path", path))
	return nil
}

func (c *Client) objectURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", c.cfg.SupabaseURL, c.cfg.Bucket, strings.TrimLeft(path, "/"))
}

func (c *Client) do(req *http.Request, op string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
