package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reveworks/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func reveConfig(baseURL string) config.ProvidersConfig {
	return config.ProvidersConfig{
		ReveAPIKey:  "rv_test",
		ReveBaseURL: baseURL,
	}
}

func TestReveCreate(t *testing.T) {
	var captured CreateParams
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/image/create", r.URL.Path)
		assert.Equal(t, "Bearer rv_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"image":"aW1n","request_id":"req_1","credits_used":1,"credits_remaining":41}`))
	}))
	defer server.Close()

	client := NewReveClient(reveConfig(server.URL), zap.NewNop())
	result, err := client.Create(context.Background(), CreateParams{
		Prompt:           "a red fox",
		RemoveBackground: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "a red fox", captured.Prompt)
	assert.True(t, captured.RemoveBackground)
	assert.Equal(t, "aW1n", result.ImageBase64)
	assert.Equal(t, "req_1", result.RequestID)
	assert.Equal(t, 1, result.CreditsUsed)
	assert.Equal(t, 41, result.CreditsRemaining)
}

func TestReveEdit(t *testing.T) {
	var captured EditParams
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/image/edit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"image":"aW1n","request_id":"req_2"}`))
	}))
	defer server.Close()

	client := NewReveClient(reveConfig(server.URL), zap.NewNop())
	result, err := client.Edit(context.Background(), EditParams{
		Instruction:    "Upscale the image, preserve detail",
		ReferenceImage: "cmVm",
		UpscaleFactor:  3,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, captured.UpscaleFactor)
	assert.Equal(t, "cmVm", captured.ReferenceImage)
	assert.Equal(t, "req_2", result.RequestID)
}

func TestReveProviderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message":"model overloaded"}`))
	}))
	defer server.Close()

	client := NewReveClient(reveConfig(server.URL), zap.NewNop())
	_, err := client.Create(context.Background(), CreateParams{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestReveNotConfigured(t *testing.T) {
	client := NewReveClient(config.ProvidersConfig{}, zap.NewNop())
	_, err := client.Create(context.Background(), CreateParams{Prompt: "x"})
	assert.ErrorIs(t, err, ErrReveNotConfigured)
}

func TestReveEmptyImageIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"request_id":"req_3"}`))
	}))
	defer server.Close()

	client := NewReveClient(reveConfig(server.URL), zap.NewNop())
	_, err := client.Create(context.Background(), CreateParams{Prompt: "x"})
	assert.Error(t, err)
}
