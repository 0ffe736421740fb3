// Package extractor calls the external opportunity extraction service.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/model/dto"
)

// maxResponseBytes 响应体读取上限
const maxResponseBytes = 8 << 20

var (
	ErrNotConfigured = errors.New("extractor endpoint is not configured")
	ErrTimeout       = errors.New("extractor request timed out")
)

// Client 提取服务客户端，调用方通过 ctx 控制截止时间
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg *config.ExtractorConfig) *Client {
	return &Client{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

type extractRequest struct {
	Entries []string `json:"entries"`
}

type extractResponse struct {
	Opportunities []dto.OpportunityInput `json:"opportunities"`
	Error         *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Extract 发送规范化后的条目，返回解析后的机会列表和原始响应体
func (c *Client) Extract(ctx context.Context, entries []string) ([]dto.OpportunityInput, []byte, error) {
	if c.endpoint == "" {
		return nil, nil, ErrNotConfigured
	}

	payload, err := json.Marshal(extractRequest{Entries: entries})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, nil, err
	}

	var parsed extractResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, body, fmt.Errorf("extractor returned status %d", resp.StatusCode)
		}
		return nil, body, fmt.Errorf("extractor response parse: %w", err)
	}
	if parsed.Error != nil {
		return nil, body, fmt.Errorf("extractor error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, body, fmt.Errorf("extractor returned status %d", resp.StatusCode)
	}

	return parsed.Opportunities, body, nil
}
