// Package billing предоставляет клиент RevenueCat для проверки подписки.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/tulung-app/tulung/internal/model"
)

// ErrNotConfigured возвращается, если ключ RevenueCat не задан.
var ErrNotConfigured = errors.New("billing client not configured")

const defaultEntitlement = "pro"

// Client запрашивает состояние подписки пользователя в RevenueCat.
type Client struct {
	baseURL     string
	apiKey      string
	entitlement string
	http        *retryablehttp.Client
}

// NewClient создаёт клиент с повторами при сетевых ошибках и ответах 5xx/429.
func NewClient(baseURL, apiKey, entitlement string, logger *zap.Logger) *Client {
	if entitlement == "" {
		entitlement = defaultEntitlement
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = leveledLogger{logger.Sugar()}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		entitlement: entitlement,
		http:        rc,
	}
}

// Configured сообщает, задан ли ключ API.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != "" && c.baseURL != ""
}

type subscriberResponse struct {
	Subscriber struct {
		Entitlements map[string]struct {
			ExpiresDate *time.Time `json:"expires_date"`
		} `json:"entitlements"`
	} `json:"subscriber"`
}

// GetEntitlement возвращает состояние подписки пользователя на момент now.
// Подписка без даты окончания считается бессрочной.
func (c *Client) GetEntitlement(ctx context.Context, userID uuid.UUID, now time.Time) (model.Entitlement, error) {
	if !c.Configured() {
		return model.Entitlement{}, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/subscribers/%s", c.baseURL, url.PathEscape(userID.String()))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Entitlement{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Entitlement{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.Entitlement{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return model.Entitlement{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var body subscriberResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Entitlement{}, fmt.Errorf("decode response: %w", err)
	}

	ent, ok := body.Subscriber.Entitlements[c.entitlement]
	if !ok {
		return model.Entitlement{}, nil
	}

	res := model.Entitlement{ExpiresAt: ent.ExpiresDate}
	res.Active = ent.ExpiresDate == nil || ent.ExpiresDate.After(now)
	return res, nil
}

// leveledLogger передаёт сообщения retryablehttp в zap.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
