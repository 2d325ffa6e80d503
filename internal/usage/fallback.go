package usage

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var storeFallbackTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "usage_store_fallback_total",
		Help: "Times the primary usage store failed and the local fallback served the call",
	},
	[]string{"op"},
)

// FallbackStore tries the primary backend and silently degrades to the
// secondary on any error. The decision is made per call, so service recovers
// as soon as the primary becomes reachable again. Callers never see a
// primary failure; it is logged and counted only.
type FallbackStore struct {
	primary   Store
	secondary Store
	logger    *zap.Logger
}

// NewFallbackStore wraps primary with a local fallback. primary may be nil,
// in which case every call goes straight to secondary.
func NewFallbackStore(primary, secondary Store, logger *zap.Logger) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary, logger: logger}
}

func (s *FallbackStore) Get(ctx context.Context, userID string) (Record, error) {
	if s.primary != nil {
		rec, err := s.primary.Get(ctx, userID)
		if err == nil {
			return rec, nil
		}
		s.degrade("get", userID, err)
	}
	return s.secondary.Get(ctx, userID)
}

func (s *FallbackStore) Update(ctx context.Context, userID string, mutate func(*Record)) (Record, error) {
	if s.primary != nil {
		rec, err := s.primary.Update(ctx, userID, mutate)
		if err == nil {
			return rec, nil
		}
		s.degrade("update", userID, err)
	}
	return s.secondary.Update(ctx, userID, mutate)
}

func (s *FallbackStore) degrade(op, userID string, err error) {
	storeFallbackTotal.WithLabelValues(op).Inc()
	s.logger.Warn("primary usage store failed, using local fallback",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
}
