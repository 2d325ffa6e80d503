package billing

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

func checkoutConfig(baseURL string) config.BillingConfig {
	return config.BillingConfig{
		APIKey:     "lmn_test",
		StoreID:    "1234",
		VariantID:  "5678",
		APIBaseURL: baseURL,
	}
}

func TestCheckoutNotConfigured(t *testing.T) {
	client := NewCheckoutClient(config.BillingConfig{}, zap.NewNop())

	_, err := client.CreateCheckout(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrCheckoutNotConfigured)
}

func TestCreateCheckoutSuccess(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkouts", r.URL.Path)
		assert.Equal(t, "Bearer lmn_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"attributes":{"url":"https://checkout.example.com/abc"}}}`))
	}))
	defer server.Close()

	client := NewCheckoutClient(checkoutConfig(server.URL), zap.NewNop())
	url, err := client.CreateCheckout(context.Background(), "u1", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/abc", url)

	// The user id must travel in checkout_data.custom for the webhook to
	// map the purchase back.
	data := captured["data"].(map[string]interface{})
	attrs := data["attributes"].(map[string]interface{})
	custom := attrs["checkout_data"].(map[string]interface{})["custom"].(map[string]interface{})
	assert.Equal(t, "u1", custom["user_id"])
}

func TestCreateCheckoutUpstreamRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"detail":"variant not found"}]}`))
	}))
	defer server.Close()

	client := NewCheckoutClient(checkoutConfig(server.URL), zap.NewNop())
	_, err := client.CreateCheckout(context.Background(), "u1", "")

	var checkoutErr *CheckoutError
	require.ErrorAs(t, err, &checkoutErr)
	assert.Equal(t, http.StatusUnprocessableEntity, checkoutErr.StatusCode)
	assert.Equal(t, "variant not found", checkoutErr.Message)
}

func TestCreateCheckoutMissingURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"attributes":{}}}`))
	}))
	defer server.Close()

	client := NewCheckoutClient(checkoutConfig(server.URL), zap.NewNop())
	_, err := client.CreateCheckout(context.Background(), "u1", "")

	var checkoutErr *CheckoutError
	assert.ErrorAs(t, err, &checkoutErr)
}
