package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tulung-app/tulung/internal/model"
	"github.com/tulung-app/tulung/internal/ocr"
	"github.com/tulung-app/tulung/internal/quota"
)

// ScanResult содержит распознанный чек и состояние квоты на момент проверки.
type ScanResult struct {
	Receipt model.ReceiptData
	Quota   quota.Decision
}

// CheckQuota возвращает состояние квоты сканирований. При ошибке чтения
// сканирование разрешается с полным лимитом, ошибка пишется в лог.
func (s *Service) CheckQuota(ctx context.Context, userID uuid.UUID) quota.Decision {
	now := s.now()

	profile, err := s.repo.EnsureProfile(ctx, userID)
	if err != nil {
		s.logger.Warn("quota check failed open: profile unavailable",
			zap.Error(err),
			zap.String("userID", userID.String()),
		)
		return quota.FailOpen()
	}

	return s.quotaFor(ctx, *profile, now.In(profile.Location()))
}

func (s *Service) quotaFor(ctx context.Context, profile model.UserBudgetProfile, now time.Time) quota.Decision {
	if profile.EntitledAt(now) {
		return quota.CheckQuota(profile, nil, now)
	}

	rec, err := s.repo.GetScanQuota(ctx, profile.UserID, now.Location())
	if err != nil {
		s.logger.Warn("quota check failed open: quota unavailable",
			zap.Error(err),
			zap.String("userID", profile.UserID.String()),
		)
		return quota.FailOpen()
	}

	return quota.CheckQuota(profile, rec, now)
}

// ScanReceipt проверяет квоту и распознаёт чек. Квота расходуется позже,
// при создании расхода с признаком FromOCR.
func (s *Service) ScanReceipt(ctx context.Context, userID uuid.UUID, image []byte, mimeType string) (*ScanResult, error) {
	if s.receipts == nil {
		return nil, ErrOCRUnavailable
	}

	d := s.CheckQuota(ctx, userID)
	if !d.Allowed {
		return nil, ErrQuotaExceeded
	}

	data, err := s.receipts.ExtractReceipt(ctx, image, mimeType)
	if err != nil {
		if errors.Is(err, ocr.ErrNotConfigured) {
			return nil, fmt.Errorf("%w: %w", ErrOCRUnavailable, err)
		}
		return nil, err
	}

	return &ScanResult{Receipt: *data, Quota: d}, nil
}
