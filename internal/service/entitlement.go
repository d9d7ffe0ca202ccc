package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tulung-app/tulung/internal/billing"
	"github.com/tulung-app/tulung/internal/model"
)

const lapsedBatchSize = 100

// SyncEntitlement запрашивает подписку в биллинге и сохраняет её в профиле.
func (s *Service) SyncEntitlement(ctx context.Context, userID uuid.UUID) (model.Entitlement, error) {
	if s.billing == nil {
		return model.Entitlement{}, ErrBillingUnavailable
	}

	ent, err := s.billing.GetEntitlement(ctx, userID, s.now())
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			return model.Entitlement{}, fmt.Errorf("%w: %w", ErrBillingUnavailable, err)
		}
		return model.Entitlement{}, fmt.Errorf("get entitlement: %w", err)
	}

	if _, err := s.repo.EnsureProfile(ctx, userID); err != nil {
		return model.Entitlement{}, err
	}
	if err := s.repo.UpdateEntitlement(ctx, userID, ent); err != nil {
		return model.Entitlement{}, err
	}

	return ent, nil
}

// StartEntitlementSync периодически сверяет подписки, срок которых истёк.
// Блокируется до отмены ctx; без биллинга сразу возвращает управление.
func (s *Service) StartEntitlementSync(ctx context.Context, interval time.Duration) {
	if s.billing == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncLapsedEntitlements(ctx)
		}
	}
}

func (s *Service) syncLapsedEntitlements(ctx context.Context) {
	ids, err := s.repo.ListLapsedEntitlements(ctx, s.now(), lapsedBatchSize)
	if err != nil {
		s.logger.Error("list lapsed entitlements error", zap.Error(err))
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}

		ent, err := s.billing.GetEntitlement(ctx, id, s.now())
		if err != nil {
			s.logger.Warn("entitlement sync failed",
				zap.Error(err),
				zap.String("userID", id.String()),
			)
			continue
		}

		if err := s.repo.UpdateEntitlement(ctx, id, ent); err != nil {
			s.logger.Warn("store entitlement failed",
				zap.Error(err),
				zap.String("userID", id.String()),
			)
			continue
		}

		s.logger.Info("entitlement resynced",
			zap.String("userID", id.String()),
			zap.Bool("active", ent.Active),
		)
	}
}
