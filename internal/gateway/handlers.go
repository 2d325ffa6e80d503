package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reveworks/backend/internal/billing"
	"github.com/reveworks/backend/internal/generate"
	"go.uber.org/zap"
)

func (g *Gateway) handleBillingStatus(w http.ResponseWriter, r *http.Request) {
	view, err := g.service.Status(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		g.writeServiceError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, view)
}

func (g *Gateway) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientUserID string `json:"clientUserId"`
		Email        string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClientUserID == "" {
		g.writeError(w, http.StatusBadRequest, "clientUserId is required")
		return
	}

	url, err := g.checkout.CreateCheckout(r.Context(), req.ClientUserID, req.Email)
	if err != nil {
		if errors.Is(err, billing.ErrCheckoutNotConfigured) {
			g.writeError(w, http.StatusServiceUnavailable, "checkout is not configured")
			return
		}
		var checkoutErr *billing.CheckoutError
		if errors.As(err, &checkoutErr) {
			g.logger.Warn("checkout provider rejected request",
				zap.Int("status", checkoutErr.StatusCode),
				zap.String("detail", checkoutErr.Message),
			)
			g.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"message":        "checkout unavailable",
				"upstreamStatus": checkoutErr.StatusCode,
			})
			return
		}
		g.logger.Error("checkout request failed", zap.Error(err))
		g.writeError(w, http.StatusServiceUnavailable, "checkout unavailable")
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]string{"checkoutUrl": url})
}

func (g *Gateway) handleCreateRemoveBackground(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt       string `json:"prompt"`
		ClientUserID string `json:"clientUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := g.service.CreateRemoveBackground(r.Context(), generate.CreateRequest{
		UserID: req.ClientUserID,
		Prompt: req.Prompt,
	})
	if err != nil {
		g.writeServiceError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, result)
}

func (g *Gateway) handleEnhance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReferenceImageBase64 string `json:"referenceImageBase64"`
		Operation            string `json:"operation"`
		Prompt               string `json:"prompt"`
		UpscaleFactor        int    `json:"upscaleFactor"`
		ClientUserID         string `json:"clientUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := g.service.Enhance(r.Context(), generate.EnhanceRequest{
		UserID:               req.ClientUserID,
		ReferenceImageBase64: req.ReferenceImageBase64,
		Operation:            req.Operation,
		Prompt:               req.Prompt,
		UpscaleFactor:        req.UpscaleFactor,
	})
	if err != nil {
		g.writeServiceError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, result)
}
