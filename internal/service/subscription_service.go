package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"water-service/internal/models"
	"water-service/internal/subscription"
	"water-service/internal/util"

	"go.uber.org/zap"
)

// SubscriptionService answers "may this firm use the platform" and keeps the
// stored trial status honest
type SubscriptionService struct {
	firms     FirmRepository
	cache     AccessCache
	trialDays int
	cacheTTL  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewSubscriptionService creates a new subscription service. cache may be nil.
func NewSubscriptionService(firms FirmRepository, cache AccessCache, trialDays int, cacheTTL time.Duration) *SubscriptionService {
	if trialDays <= 0 {
		trialDays = 14
	}
	return &SubscriptionService{
		firms:     firms,
		cache:     cache,
		trialDays: trialDays,
		cacheTTL:  cacheTTL,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// Status evaluates a firm's access. A trial whose window closed is flipped
// to TRIAL_EXPIRED in the store the first time it is observed.
func (s *SubscriptionService) Status(ctx context.Context, firmID int64) (*models.AccessStatus, error) {
	ctx, span := util.StartSpan(ctx, "SubscriptionService.Status")
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.GetAccessStatus(ctx, firmID)
		if err != nil {
			s.logger.Warn("Access cache read failed", zap.Int64("firm_id", firmID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	firm, err := s.firms.GetFirm(ctx, firmID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	status := subscription.Evaluate(firm, now)
	if status.NeedsReconcile {
		flipped, err := s.firms.ExpireTrial(ctx, firmID, now)
		if err != nil {
			// the evaluated answer is still correct; the flip is retried next read
			s.logger.Error("Failed to expire trial", zap.Int64("firm_id", firmID), zap.Error(err))
		} else {
			if flipped {
				util.TrialsExpiredTotal.Inc()
				s.logger.Info("Trial expired", zap.Int64("firm_id", firmID))
			}
			status.Status = models.SubscriptionTrialExpired
			status.NeedsReconcile = false
		}
	}

	if !status.NeedsReconcile {
		s.store(ctx, &status, now)
	}
	return &status, nil
}

// HasAccess reports whether the firm may use firm-scoped features
func (s *SubscriptionService) HasAccess(ctx context.Context, firmID int64) (bool, error) {
	status, err := s.Status(ctx, firmID)
	if err != nil {
		return false, err
	}
	return status.HasAccess, nil
}

// StartTrial opens the free trial window. A firm gets one trial ever.
func (s *SubscriptionService) StartTrial(ctx context.Context, firmID int64) (*models.AccessStatus, error) {
	ctx, span := util.StartSpan(ctx, "SubscriptionService.StartTrial")
	defer span.End()

	firm, err := s.firms.GetFirm(ctx, firmID)
	if err != nil {
		return nil, err
	}
	if firm.TrialStartAt != nil {
		return nil, fmt.Errorf("firm %d already used its trial: %w", firmID, models.ErrConflict)
	}
	if firm.SubscriptionStatus.IsPaid() {
		return nil, fmt.Errorf("firm %d is on the %s plan: %w", firmID, firm.SubscriptionStatus, models.ErrConflict)
	}

	now := s.now()
	firm, err = s.firms.StartTrial(ctx, firmID, now, now.AddDate(0, 0, s.trialDays))
	if errors.Is(err, models.ErrStaleTransition) {
		return nil, fmt.Errorf("firm %d already used its trial: %w", firmID, models.ErrConflict)
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateAccessStatus(ctx, firmID); err != nil {
			s.logger.Warn("Failed to invalidate access cache", zap.Int64("firm_id", firmID), zap.Error(err))
		}
	}

	s.logger.Info("Trial started",
		zap.Int64("firm_id", firmID),
		zap.Timep("trial_end_at", firm.TrialEndAt))

	status := subscription.Evaluate(firm, now)
	return &status, nil
}

// store caches the status, never past the end of the firm's window
func (s *SubscriptionService) store(ctx context.Context, status *models.AccessStatus, now time.Time) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}

	ttl := s.cacheTTL
	if status.HasAccess && status.TrialEndAt != nil {
		if left := status.TrialEndAt.Sub(now); left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		return
	}

	if err := s.cache.SetAccessStatus(ctx, status, ttl); err != nil {
		s.logger.Warn("Access cache write failed", zap.Int64("firm_id", status.FirmID), zap.Error(err))
	}
}
