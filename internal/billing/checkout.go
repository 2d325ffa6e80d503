package billing

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

// ErrCheckoutNotConfigured is returned when the API key, store or variant is
// missing. Callers surface it as "checkout unavailable", never as a crash.
var ErrCheckoutNotConfigured = errors.New("checkout is not configured")

// CheckoutError is an upstream rejection from the payment provider.
type CheckoutError struct {
	StatusCode int
	Message    string
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout provider rejected request (status %d): %s", e.StatusCode, e.Message)
}

// CheckoutClient creates hosted checkout sessions against the Lemon Squeezy
// JSON:API. The user id travels in checkout_data.custom so the webhook can
// map the completed purchase back to a usage record.
type CheckoutClient struct {
	cfg        config.BillingConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCheckoutClient creates a checkout client from billing config.
func NewCheckoutClient(cfg config.BillingConfig, logger *zap.Logger) *CheckoutClient {
	return &CheckoutClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Configured reports whether checkout sessions can be created at all.
func (c *CheckoutClient) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.StoreID != "" && c.cfg.VariantID != ""
}

type checkoutRequest struct {
	Data checkoutRequestData `json:"data"`
}

type checkoutRequestData struct {
	Type          string                `json:"type"`
	Attributes    checkoutAttributes    `json:"attributes"`
	Relationships checkoutRelationships `json:"relationships"`
}

type checkoutAttributes struct {
	CheckoutData   checkoutData    `json:"checkout_data"`
	ProductOptions *productOptions `json:"product_options,omitempty"`
}

type checkoutData struct {
	Email  string            `json:"email,omitempty"`
	Custom map[string]string `json:"custom"`
}

type productOptions struct {
	RedirectURL string `json:"redirect_url,omitempty"`
}

type checkoutRelationships struct {
	Store   relationship `json:"store"`
	Variant relationship `json:"variant"`
}

type relationship struct {
	Data relationshipData `json:"data"`
}

type relationshipData struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type checkoutResponse struct {
	Data struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

// CreateCheckout creates a checkout session and returns the hosted payment URL.
func (c *CheckoutClient) CreateCheckout(ctx context.Context, userID, email string) (string, error) {
	if !c.Configured() {
		return "", ErrCheckoutNotConfigured
	}

	var opts *productOptions
	if c.cfg.RedirectURL != "" {
		opts = &productOptions{RedirectURL: c.cfg.RedirectURL}
	}

	reqBody := checkoutRequest{
		Data: checkoutRequestData{
			Type: "checkouts",
			Attributes: checkoutAttributes{
				CheckoutData: checkoutData{
					Email:  email,
					Custom: map[string]string{"user_id": userID},
				},
				ProductOptions: opts,
			},
			Relationships: checkoutRelationships{
				Store:   relationship{Data: relationshipData{Type: "stores", ID: c.cfg.StoreID}},
				Variant: relationship{Data: relationshipData{Type: "variants", ID: c.cfg.VariantID}},
			},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode checkout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/v1/checkouts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create checkout request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("checkout request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read checkout response: %w", err)
	}

	var parsed checkoutResponse
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := "unexpected response"
		if err := json.Unmarshal(respBody, &parsed); err == nil && len(parsed.Errors) > 0 {
			message = parsed.Errors[0].Detail
		}
		return "", &CheckoutError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode checkout response: %w", err)
	}
	if parsed.Data.Attributes.URL == "" {
		return "", &CheckoutError{StatusCode: resp.StatusCode, Message: "response missing checkout url"}
	}

	c.logger.Info("created checkout session", zap.String("user_id", userID))
	return parsed.Data.Attributes.URL, nil
}
