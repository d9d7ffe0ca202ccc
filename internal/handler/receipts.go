package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tulung-app/tulung/internal/middleware"
	"github.com/tulung-app/tulung/internal/model"
	"github.com/tulung-app/tulung/internal/ocr"
	"github.com/tulung-app/tulung/internal/quota"
	"github.com/tulung-app/tulung/internal/service"
)

const maxReceiptSize = 8 << 20

type scanResponse struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Merchant string          `json:"merchant"`
	Category model.Category  `json:"category"`
	Quota    quota.Decision  `json:"quota"`
}

// ScanReceipt распознаёт изображение чека. Изображение принимается либо полем
// image формы multipart/form-data, либо телом запроса с типом image/*.
func (h *Handler) ScanReceipt(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptSize)

	image, mimeType, err := readImage(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeStatus(w, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.service.ScanReceipt(r.Context(), userID, image, mimeType)
	if err != nil {
		h.scanError(w, err, userID.String())
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{
		Amount:   res.Receipt.Amount,
		Currency: res.Receipt.Currency,
		Merchant: res.Receipt.Merchant,
		Category: res.Receipt.Category,
		Quota:    res.Quota,
	})
}

func (h *Handler) scanError(w http.ResponseWriter, err error, userID string) {
	switch {
	case errors.Is(err, service.ErrQuotaExceeded):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, service.ErrOCRUnavailable):
		writeStatus(w, http.StatusServiceUnavailable)
	case errors.Is(err, ocr.ErrUnreadableReceipt), errors.Is(err, ocr.ErrIncompleteData):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ocr.ErrRateLimited):
		writeStatus(w, http.StatusTooManyRequests)
	default:
		h.logger.Error("scan receipt error", zap.Error(err), zap.String("userID", userID))
		writeStatus(w, http.StatusBadGateway)
	}
}

var errNoImage = errors.New("image is required")

func readImage(r *http.Request) ([]byte, string, error) {
	contentType := mimeOf(r.Header.Get("Content-Type"))

	if contentType == "multipart/form-data" {
		file, header, err := r.FormFile("image")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return nil, "", errNoImage
			}
			return nil, "", err
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		if len(data) == 0 {
			return nil, "", errNoImage
		}

		mimeType := mimeOf(header.Header.Get("Content-Type"))
		if !strings.HasPrefix(mimeType, "image/") {
			mimeType = http.DetectContentType(data)
		}
		return data, mimeType, nil
	}

	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", errors.New("unsupported content type")
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errNoImage
	}
	return data, contentType, nil
}
