package generate

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/reveworks/backend/internal/providers"
	"github.com/reveworks/backend/internal/usage"
	"go.uber.org/zap"
)

const (
	maxPromptLength = 2000

	defaultUpscaleFactor = 2

	// Enhance operations accepted from clients.
	OperationRemoveBackground = "remove-bg"
	OperationUpscale          = "upscale"
)

var generationTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_requests_total",
		Help: "Generation requests by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

// ImageClient is the image-generation provider boundary.
type ImageClient interface {
	Create(ctx context.Context, params providers.CreateParams) (*providers.ImageResult, error)
	Edit(ctx context.Context, params providers.EditParams) (*providers.ImageResult, error)
}

// PromptOptimizer is the best-effort rewrite boundary; it never fails.
type PromptOptimizer interface {
	Optimize(ctx context.Context, prompt string) providers.OptimizeResult
}

// CheckoutGateway produces an upgrade URL for denied requests.
type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, userID, email string) (string, error)
}

// Service is the single entry point for generation requests: admission
// control, prompt optimization, the provider call and the post-success usage
// increment, in that order. A denied request never reaches the provider.
type Service struct {
	store     usage.Store
	images    ImageClient
	optimizer PromptOptimizer
	checkout  CheckoutGateway
	freeLimit int
	logger    *zap.Logger
}

// NewService wires the orchestrator.
func NewService(store usage.Store, images ImageClient, optimizer PromptOptimizer, checkout CheckoutGateway, freeLimit int, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		images:    images,
		optimizer: optimizer,
		checkout:  checkout,
		freeLimit: freeLimit,
		logger:    logger,
	}
}

// CreateRequest asks for a fresh image with its background removed.
type CreateRequest struct {
	UserID string
	Prompt string
}

// EnhanceRequest transforms an uploaded reference image.
type EnhanceRequest struct {
	UserID               string
	ReferenceImageBase64 string
	Operation            string
	Prompt               string
	UpscaleFactor        int
}

// Result is a successful generation plus the refreshed usage view and the
// prompt-optimization provenance.
type Result struct {
	Image            string                   `json:"image"`
	RequestID        string                   `json:"requestId"`
	CreditsUsed      int                      `json:"creditsUsed"`
	CreditsRemaining int                      `json:"creditsRemaining"`
	Usage            usage.View               `json:"usage"`
	Prompt           providers.OptimizeResult `json:"prompt"`
}

// Status returns the current usage view for a user.
func (s *Service) Status(ctx context.Context, userID string) (usage.View, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return usage.View{}, &ValidationError{Message: "userId is required"}
	}
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return usage.View{}, err
	}
	return usage.BuildView(rec, s.freeLimit), nil
}

// CreateRemoveBackground generates an image from a prompt and strips its
// background.
func (s *Service) CreateRemoveBackground(ctx context.Context, req CreateRequest) (*Result, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		generationTotal.WithLabelValues("create-remove-bg", "validation_error").Inc()
		return nil, &ValidationError{Message: "clientUserId is required"}
	}
	prompt := normalizePrompt(req.Prompt)
	if prompt == "" {
		generationTotal.WithLabelValues("create-remove-bg", "validation_error").Inc()
		return nil, &ValidationError{Message: "prompt is required"}
	}

	if err := s.admit(ctx, userID); err != nil {
		generationTotal.WithLabelValues("create-remove-bg", "denied").Inc()
		return nil, err
	}

	opt := s.optimizer.Optimize(ctx, prompt)
	img, err := s.images.Create(ctx, providers.CreateParams{
		Prompt:           opt.Optimized,
		RemoveBackground: true,
	})
	if err != nil {
		generationTotal.WithLabelValues("create-remove-bg", "provider_error").Inc()
		return nil, &ProviderError{Err: err}
	}

	generationTotal.WithLabelValues("create-remove-bg", "success").Inc()
	return s.finish(ctx, userID, img, opt), nil
}

// Enhance applies a background removal or upscale to a reference image.
func (s *Service) Enhance(ctx context.Context, req EnhanceRequest) (*Result, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		generationTotal.WithLabelValues("enhance", "validation_error").Inc()
		return nil, &ValidationError{Message: "clientUserId is required"}
	}
	if strings.TrimSpace(req.ReferenceImageBase64) == "" {
		generationTotal.WithLabelValues("enhance", "validation_error").Inc()
		return nil, &ValidationError{Message: "referenceImageBase64 is required"}
	}
	if req.Operation != OperationRemoveBackground && req.Operation != OperationUpscale {
		generationTotal.WithLabelValues("enhance", "validation_error").Inc()
		return nil, &ValidationError{Message: "operation must be \"remove-bg\" or \"upscale\""}
	}

	if err := s.admit(ctx, userID); err != nil {
		generationTotal.WithLabelValues("enhance", "denied").Inc()
		return nil, err
	}

	prompt := normalizePrompt(req.Prompt)
	opt := providers.OptimizeResult{Original: prompt, Optimized: prompt, Source: "original"}
	if prompt != "" {
		opt = s.optimizer.Optimize(ctx, prompt)
	}

	params := providers.EditParams{
		Instruction:    instructionFor(req.Operation, opt.Optimized),
		ReferenceImage: req.ReferenceImageBase64,
	}
	switch req.Operation {
	case OperationRemoveBackground:
		params.RemoveBackground = true
	case OperationUpscale:
		params.UpscaleFactor = normalizeUpscaleFactor(req.UpscaleFactor)
	}

	img, err := s.images.Edit(ctx, params)
	if err != nil {
		generationTotal.WithLabelValues("enhance", "provider_error").Inc()
		return nil, &ProviderError{Err: err}
	}

	generationTotal.WithLabelValues("enhance", "success").Inc()
	return s.finish(ctx, userID, img, opt), nil
}

// admit checks the quota before any upstream spend. On denial it asks the
// checkout gateway for an upgrade link best-effort and returns a QuotaError.
func (s *Service) admit(ctx context.Context, userID string) error {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	view := usage.BuildView(rec, s.freeLimit)
	if view.CanGenerate {
		return nil
	}

	quotaErr := &QuotaError{View: view}
	url, err := s.checkout.CreateCheckout(ctx, userID, "")
	if err != nil {
		s.logger.Warn("checkout unavailable for denied request",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		quotaErr.BillingMessage = "Upgrades are temporarily unavailable. Please try again later."
	} else {
		quotaErr.CheckoutURL = url
	}
	return quotaErr
}

// finish increments usage after provider success and assembles the result.
// The increment itself goes through the fallback store and only fails if
// both backends do; in that case the result is still returned with a view
// derived locally.
func (s *Service) finish(ctx context.Context, userID string, img *providers.ImageResult, opt providers.OptimizeResult) *Result {
	rec, err := s.store.Update(ctx, userID, func(r *usage.Record) {
		r.GeneratedCount++
	})
	if err != nil {
		s.logger.Error("failed to record generation", zap.String("user_id", userID), zap.Error(err))
		rec = usage.NewRecord(userID)
		rec.GeneratedCount = 1
	}

	requestID := img.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	return &Result{
		Image:            img.ImageBase64,
		RequestID:        requestID,
		CreditsUsed:      img.CreditsUsed,
		CreditsRemaining: img.CreditsRemaining,
		Usage:            usage.BuildView(rec, s.freeLimit),
		Prompt:           opt,
	}
}

// normalizePrompt trims and truncates before any external use.
func normalizePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if runes := []rune(prompt); len(runes) > maxPromptLength {
		prompt = string(runes[:maxPromptLength])
	}
	return prompt
}

// normalizeUpscaleFactor accepts only {2, 3, 4}; anything else becomes 2.
func normalizeUpscaleFactor(factor int) int {
	switch factor {
	case 2, 3, 4:
		return factor
	default:
		return defaultUpscaleFactor
	}
}

func instructionFor(operation, prompt string) string {
	if prompt != "" {
		return prompt
	}
	switch operation {
	case OperationRemoveBackground:
		return "Remove the background, keep the subject intact"
	case OperationUpscale:
		return "Upscale the image, preserve detail"
	default:
		return ""
	}
}
