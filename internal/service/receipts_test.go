package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tulung-app/tulung/internal/model"
	"github.com/tulung-app/tulung/internal/ocr"
	"github.com/tulung-app/tulung/internal/quota"
)

func TestCheckQuota(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		prepare func(r *stubRepo)
		want    quota.Decision
	}{
		{
			name: "first use",
			want: quota.Decision{Allowed: true, Remaining: quota.FreeTierLimit},
		},
		{
			name: "partially used",
			prepare: func(r *stubRepo) {
				r.quota = &model.ScanQuotaRecord{UserID: testUser, ScansUsedThisPeriod: 4, PeriodResetDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}
			},
			want: quota.Decision{Allowed: true, Remaining: 6},
		},
		{
			name: "previous period",
			prepare: func(r *stubRepo) {
				r.quota = &model.ScanQuotaRecord{UserID: testUser, ScansUsedThisPeriod: 10, PeriodResetDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
			},
			want: quota.Decision{Allowed: true, Remaining: quota.FreeTierLimit},
		},
		{
			name: "quota read fails open",
			prepare: func(r *stubRepo) {
				r.quotaErr = errStub
			},
			want: quota.FailOpen(),
		},
		{
			name: "profile read fails open",
			prepare: func(r *stubRepo) {
				r.profileErr = errStub
			},
			want: quota.FailOpen(),
		},
		{
			name: "expired entitlement counts as free tier",
			prepare: func(r *stubRepo) {
				p := model.NewProfile(testUser)
				p.IsEntitled = true
				p.EntitlementExpiresAt = ptrTime(now.Add(-time.Minute))
				r.profile = &p
				r.quota = &model.ScanQuotaRecord{UserID: testUser, ScansUsedThisPeriod: 10, PeriodResetDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}
			},
			want: quota.Decision{Allowed: false, Remaining: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			if tt.prepare != nil {
				tt.prepare(repo)
			}
			svc, _ := newTestService(repo, now)

			got := svc.CheckQuota(context.Background(), testUser)
			if got != tt.want {
				t.Fatalf("CheckQuota = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScanReceipt(t *testing.T) {
	receipt := &model.ReceiptData{
		Amount:   decimal.RequireFromString("18.90"),
		Currency: "MYR",
		Merchant: "Kedai Runcit",
		Category: model.CategoryShopping,
	}

	t.Run("ok", func(t *testing.T) {
		repo := newStubRepo()
		reader := &stubReceipts{data: receipt}
		svc := NewService(repo, reader, nil, nil, nil)

		res, err := svc.ScanReceipt(context.Background(), testUser, []byte{1, 2, 3}, "image/jpeg")
		if err != nil {
			t.Fatalf("ScanReceipt error: %v", err)
		}
		if res.Receipt.Merchant != "Kedai Runcit" || !res.Quota.Allowed {
			t.Fatalf("unexpected result: %+v", res)
		}
		if len(repo.savedQuota) != 0 {
			t.Fatalf("scan must not consume quota before the expense is saved")
		}
	})

	t.Run("quota exhausted", func(t *testing.T) {
		repo := newStubRepo()
		repo.quota = &model.ScanQuotaRecord{UserID: testUser, ScansUsedThisPeriod: 10, PeriodResetDate: time.Now().AddDate(0, 1, 0)}
		reader := &stubReceipts{data: receipt}
		svc := NewService(repo, reader, nil, nil, nil)

		_, err := svc.ScanReceipt(context.Background(), testUser, []byte{1}, "image/jpeg")
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("err = %v, want ErrQuotaExceeded", err)
		}
		if reader.calls != 0 {
			t.Fatalf("ocr must not be called when quota is exhausted")
		}
	})

	t.Run("not configured", func(t *testing.T) {
		repo := newStubRepo()
		reader := &stubReceipts{err: ocr.ErrNotConfigured}
		svc := NewService(repo, reader, nil, nil, nil)

		_, err := svc.ScanReceipt(context.Background(), testUser, []byte{1}, "image/jpeg")
		if !errors.Is(err, ErrOCRUnavailable) {
			t.Fatalf("err = %v, want ErrOCRUnavailable", err)
		}
	})

	t.Run("unreadable", func(t *testing.T) {
		repo := newStubRepo()
		reader := &stubReceipts{err: ocr.ErrUnreadableReceipt}
		svc := NewService(repo, reader, nil, nil, nil)

		_, err := svc.ScanReceipt(context.Background(), testUser, []byte{1}, "image/jpeg")
		if !errors.Is(err, ocr.ErrUnreadableReceipt) {
			t.Fatalf("err = %v, want ErrUnreadableReceipt", err)
		}
	})

	t.Run("no reader", func(t *testing.T) {
		svc := NewService(newStubRepo(), nil, nil, nil, nil)

		_, err := svc.ScanReceipt(context.Background(), testUser, []byte{1}, "image/jpeg")
		if !errors.Is(err, ErrOCRUnavailable) {
			t.Fatalf("err = %v, want ErrOCRUnavailable", err)
		}
	})
}
