package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reveworks/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func optimizerConfig(baseURL string) config.ProvidersConfig {
	return config.ProvidersConfig{
		OpenRouterAPIKey:  "or_test",
		OpenRouterBaseURL: baseURL,
		OpenRouterModel:   "openai/gpt-4o-mini",
	}
}

func TestOptimizeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" a majestic red fox, golden hour light "}}]}`))
	}))
	defer server.Close()

	opt := NewOptimizer(optimizerConfig(server.URL), zap.NewNop())
	result := opt.Optimize(context.Background(), "a red fox")

	assert.Equal(t, "a red fox", result.Original)
	assert.Equal(t, "a majestic red fox, golden hour light", result.Optimized)
	assert.True(t, result.Changed)
	assert.Equal(t, "openrouter", result.Source)
}

func TestOptimizeFailureFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opt := NewOptimizer(optimizerConfig(server.URL), zap.NewNop())
	result := opt.Optimize(context.Background(), "a red fox")

	assert.Equal(t, "a red fox", result.Optimized)
	assert.False(t, result.Changed)
	assert.Equal(t, "original", result.Source)
}

func TestOptimizeEmptyCompletionFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  "}}]}`))
	}))
	defer server.Close()

	opt := NewOptimizer(optimizerConfig(server.URL), zap.NewNop())
	result := opt.Optimize(context.Background(), "a red fox")

	assert.Equal(t, "a red fox", result.Optimized)
	assert.Equal(t, "original", result.Source)
}

func TestOptimizeNotConfigured(t *testing.T) {
	opt := NewOptimizer(config.ProvidersConfig{}, zap.NewNop())
	result := opt.Optimize(context.Background(), "a red fox")

	assert.Equal(t, "a red fox", result.Optimized)
	assert.False(t, result.Changed)
	assert.Equal(t, "original", result.Source)
}
