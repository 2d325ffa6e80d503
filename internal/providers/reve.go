package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/reveworks/backend/internal/config"
	"go.uber.org/zap"
)

// ErrReveNotConfigured is returned when no API key is set. Unlike prompt
// optimization, image generation has no safe fallback.
var ErrReveNotConfigured = errors.New("image provider is not configured")

// ReveClient calls the Reve image API. A provider-level failure is fatal to
// the request it serves; the client performs no retries.
type ReveClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewReveClient creates an image generation client from provider config.
func NewReveClient(cfg config.ProvidersConfig, logger *zap.Logger) *ReveClient {
	return &ReveClient{
		apiKey:     cfg.ReveAPIKey,
		baseURL:    cfg.ReveBaseURL,
		httpClient: &http.Client{Timeout: cfg.ProviderCallTimeout},
		logger:     logger,
	}
}

// CreateParams generates a new image from a text prompt.
type CreateParams struct {
	Prompt           string `json:"prompt"`
	RemoveBackground bool   `json:"remove_background,omitempty"`
}

// EditParams transforms a reference image guided by an instruction.
type EditParams struct {
	Instruction      string `json:"instruction"`
	ReferenceImage   string `json:"reference_image"`
	RemoveBackground bool   `json:"remove_background,omitempty"`
	UpscaleFactor    int    `json:"upscale_factor,omitempty"`
}

// ImageResult is the provider's generation payload plus credit counters.
type ImageResult struct {
	ImageBase64      string `json:"image"`
	RequestID        string `json:"request_id"`
	CreditsUsed      int    `json:"credits_used"`
	CreditsRemaining int    `json:"credits_remaining"`
	Version          string `json:"version"`
}

// Create generates an image from a prompt.
func (c *ReveClient) Create(ctx context.Context, params CreateParams) (*ImageResult, error) {
	return c.call(ctx, "/v1/image/create", params)
}

// Edit transforms a reference image.
func (c *ReveClient) Edit(ctx context.Context, params EditParams) (*ImageResult, error) {
	return c.call(ctx, "/v1/image/edit", params)
}

func (c *ReveClient) call(ctx context.Context, path string, payload interface{}) (*ImageResult, error) {
	if c.apiKey == "" {
		return nil, ErrReveNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		message := "unexpected response"
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			message = apiErr.Message
		}
		return nil, fmt.Errorf("image provider returned status %d: %s", resp.StatusCode, message)
	}

	var result ImageResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode image response: %w", err)
	}
	if result.ImageBase64 == "" {
		return nil, errors.New("image provider returned an empty image")
	}

	c.logger.Debug("image generated",
		zap.String("request_id", result.RequestID),
		zap.Int("credits_used", result.CreditsUsed),
	)
	return &result, nil
}
