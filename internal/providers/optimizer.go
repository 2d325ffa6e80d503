package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/reveworks/backend/internal/config"
	"go.uber.org/zap"
)

const optimizerSystemPrompt = "You rewrite user prompts for an image generation model. " +
	"Return a single improved prompt with concrete visual detail, keeping the user's intent. " +
	"Reply with the rewritten prompt only, no commentary."

// OptimizeResult carries the prompt actually sent to the image provider plus
// provenance the client can render. There is no error variant: any failure
// substitutes the original prompt.
type OptimizeResult struct {
	Original  string `json:"original"`
	Optimized string `json:"optimized"`
	Changed   bool   `json:"changed"`
	Source    string `json:"source"`
}

// Optimizer rewrites prompts through an OpenRouter chat completion. It is
// strictly best-effort; Optimize never returns an error and never blocks a
// generation on optimizer trouble.
type Optimizer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOptimizer creates a prompt optimizer from provider config.
func NewOptimizer(cfg config.ProvidersConfig, logger *zap.Logger) *Optimizer {
	return &Optimizer{
		apiKey:     cfg.OpenRouterAPIKey,
		baseURL:    cfg.OpenRouterBaseURL,
		model:      cfg.OpenRouterModel,
		httpClient: &http.Client{Timeout: cfg.ProviderCallTimeout},
		logger:     logger,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Optimize rewrites prompt, falling back to the original on any failure.
func (o *Optimizer) Optimize(ctx context.Context, prompt string) OptimizeResult {
	fallback := OptimizeResult{Original: prompt, Optimized: prompt, Source: "original"}

	if o.apiKey == "" {
		return fallback
	}

	optimized, err := o.complete(ctx, prompt)
	if err != nil {
		o.logger.Warn("prompt optimization failed, using original prompt", zap.Error(err))
		return fallback
	}

	optimized = strings.TrimSpace(optimized)
	if optimized == "" {
		o.logger.Warn("prompt optimizer returned an empty completion")
		return fallback
	}

	return OptimizeResult{
		Original:  prompt,
		Optimized: optimized,
		Changed:   optimized != prompt,
		Source:    "openrouter",
	}
}

func (o *Optimizer) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: optimizerSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("optimizer returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
