package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/reveworks/backend/internal/usage"
	"github.com/reveworks/backend/pkg/cache"
	"go.uber.org/zap"
)

const webhookDedupTTL = 24 * time.Hour

var webhookEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Webhook events received, by event name and resulting action",
	},
	[]string{"event", "action"},
)

// Events that activate a subscription and events that end one. Anything not
// listed is accepted and ignored so the provider can add event types without
// breaking us.
var (
	activatingEvents = map[string]struct{}{
		"order_created":                {},
		"subscription_created":         {},
		"subscription_resumed":         {},
		"subscription_unpaused":        {},
		"subscription_payment_success": {},
	}
	deactivatingEvents = map[string]struct{}{
		"subscription_cancelled":      {},
		"subscription_expired":        {},
		"subscription_paused":         {},
		"subscription_payment_failed": {},
	}
)

// userIDPaths is the ordered probe for the user identifier inside a webhook
// payload. The first path that yields a non-empty string wins.
var userIDPaths = [][]string{
	{"meta", "custom_data", "user_id"},
	{"data", "attributes", "custom_data", "user_id"},
	{"data", "attributes", "user_id"},
}

// WebhookHandler processes Lemon Squeezy billing webhooks.
//
// Verification is an HMAC-SHA256 over the exact raw request body, hex-encoded
// in the X-Signature header. When no secret is configured verification is
// skipped; that mode is for local development only.
//
// Status transitions are set, not incremented, so redelivered events are
// idempotent by construction. An optional Redis guard additionally skips
// byte-identical redeliveries.
type WebhookHandler struct {
	secret string
	store  usage.Store
	cache  *cache.Cache
	logger *zap.Logger
}

// NewWebhookHandler creates a webhook handler. cache may be nil.
func NewWebhookHandler(secret string, store usage.Store, cacheClient *cache.Cache, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret: secret,
		store:  store,
		cache:  cacheClient,
		logger: logger,
	}
}

// HandleWebhook is the HTTP entry point. The route must receive the body
// untouched by any parsing middleware so signature verification is exact.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		writeWebhookError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if !h.verifySignature(body, r.Header.Get("X-Signature")) {
		h.logger.Warn("webhook signature verification failed",
			zap.String("remote_addr", r.RemoteAddr),
		)
		writeWebhookError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeWebhookError(w, http.StatusBadRequest, "malformed webhook body")
		return
	}

	eventName, _ := lookupString(payload, []string{"meta", "event_name"})
	userID := probeUserID(payload)
	if eventName == "" || userID == "" {
		// Replayed or harmless payloads are acknowledged, not failed.
		h.logger.Info("ignoring webhook without event name or user id",
			zap.String("event", eventName),
		)
		webhookEventsTotal.WithLabelValues(orUnknown(eventName), "ignored").Inc()
		writeWebhookOK(w)
		return
	}

	if !h.reserveDelivery(ctx, body) {
		h.logger.Info("duplicate webhook delivery skipped",
			zap.String("event", eventName),
			zap.String("user_id", userID),
		)
		writeWebhookOK(w)
		return
	}

	if err := h.apply(ctx, eventName, userID, payload); err != nil {
		h.logger.Error("failed to apply webhook event",
			zap.String("event", eventName),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		h.releaseDelivery(ctx, body)
		writeWebhookError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	writeWebhookOK(w)
}

// apply maps the event name to a billing status transition.
func (h *WebhookHandler) apply(ctx context.Context, eventName, userID string, payload map[string]interface{}) error {
	if _, ok := activatingEvents[eventName]; ok {
		customerID := extractCustomerID(payload)
		subscriptionID, _ := lookupString(payload, []string{"data", "id"})

		_, err := h.store.Update(ctx, userID, func(rec *usage.Record) {
			rec.BillingStatus = usage.BillingStatusActive
			if customerID != "" {
				rec.ProviderCustomerID = customerID
			}
			if subscriptionID != "" {
				rec.ProviderSubscriptionID = subscriptionID
			}
		})
		if err != nil {
			return err
		}

		webhookEventsTotal.WithLabelValues(eventName, "activated").Inc()
		h.logger.Info("subscription activated",
			zap.String("event", eventName),
			zap.String("user_id", userID),
		)
		return nil
	}

	if _, ok := deactivatingEvents[eventName]; ok {
		_, err := h.store.Update(ctx, userID, func(rec *usage.Record) {
			rec.BillingStatus = usage.BillingStatusFree
		})
		if err != nil {
			return err
		}

		webhookEventsTotal.WithLabelValues(eventName, "deactivated").Inc()
		h.logger.Info("subscription ended",
			zap.String("event", eventName),
			zap.String("user_id", userID),
		)
		return nil
	}

	webhookEventsTotal.WithLabelValues(eventName, "ignored").Inc()
	h.logger.Info("ignoring unrecognized webhook event", zap.String("event", eventName))
	return nil
}

// verifySignature checks the hex HMAC-SHA256 of the raw body. An empty
// configured secret disables verification.
func (h *WebhookHandler) verifySignature(body []byte, header string) bool {
	if h.secret == "" {
		return true
	}

	provided, err := hex.DecodeString(header)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// reserveDelivery takes the Redis dedup lock for this exact payload. Without
// a cache every delivery is processed; transitions are idempotent anyway.
func (h *WebhookHandler) reserveDelivery(ctx context.Context, body []byte) bool {
	if h.cache == nil {
		return true
	}
	acquired, err := h.cache.SetNX(ctx, h.deliveryKey(body), "processed", webhookDedupTTL)
	if err != nil {
		h.logger.Warn("webhook dedup check failed, processing anyway", zap.Error(err))
		return true
	}
	return acquired
}

func (h *WebhookHandler) releaseDelivery(ctx context.Context, body []byte) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, h.deliveryKey(body)); err != nil {
		h.logger.Warn("failed to release webhook dedup key", zap.Error(err))
	}
}

func (h *WebhookHandler) deliveryKey(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("webhooks:lemon:%s", hex.EncodeToString(sum[:]))
}

// probeUserID evaluates the ordered accessor paths until one yields a
// non-empty string.
func probeUserID(payload map[string]interface{}) string {
	for _, path := range userIDPaths {
		if v, ok := lookupString(payload, path); ok && v != "" {
			return v
		}
	}
	return ""
}

// extractCustomerID reads data.attributes.customer_id, which the provider
// sends as a JSON number.
func extractCustomerID(payload map[string]interface{}) string {
	node := lookup(payload, []string{"data", "attributes", "customer_id"})
	switch v := node.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

// lookup walks nested JSON objects along path, returning nil if any segment
// is missing or not an object.
func lookup(payload map[string]interface{}, path []string) interface{} {
	var current interface{} = payload
	for _, key := range path {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return current
}

func lookupString(payload map[string]interface{}, path []string) (string, bool) {
	v, ok := lookup(payload, path).(string)
	return v, ok
}

func orUnknown(event string) string {
	if event == "" {
		return "unknown"
	}
	return event
}

func writeWebhookOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func writeWebhookError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
