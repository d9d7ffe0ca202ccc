// Package ocr предоставляет клиент распознавания чеков через OpenAI vision.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/shopspring/decimal"

	"github.com/tulung-app/tulung/internal/model"
	"github.com/tulung-app/tulung/internal/validation"
)

var (
	// ErrNotConfigured возвращается, если ключ API не задан или похож на заглушку.
	ErrNotConfigured = errors.New("ocr client not configured")
	// ErrUnreadableReceipt возвращается, если модель не смогла прочитать чек.
	ErrUnreadableReceipt = errors.New("receipt is unreadable")
	// ErrIncompleteData возвращается, если в ответе не хватает обязательных полей.
	ErrIncompleteData = errors.New("incomplete data extracted from receipt")
	// ErrRateLimited возвращается при ответе 429 от OpenAI.
	ErrRateLimited = errors.New("ocr rate limit exceeded")
	// ErrInvalidAPIKey возвращается при ответе 401 от OpenAI.
	ErrInvalidAPIKey = errors.New("invalid ocr api key")
)

const (
	defaultModel   = "gpt-4o-mini"
	requestTimeout = 10 * time.Second
	maxTokens      = 150
)

const prompt = `Extract from receipt as JSON: {"amount": number, "currency": "USD/MYR/EUR", "merchant": "name", ` +
	`"category": "Food & Dining/Transportation/Shopping/Entertainment/Bills & Utilities/Healthcare/Other"}. ` +
	`Return {"error": "..."} if unreadable.`

// Ответ модели иногда обёрнут в markdown.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// Client инкапсулирует HTTP-взаимодействие с OpenAI.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient создаёт клиент для указанного адреса API, ключа и модели.
func NewClient(baseURL, apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = requestTimeout

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		httpClient: httpClient,
	}
}

// Configured сообщает, задан ли правдоподобный ключ API.
func (c *Client) Configured() bool {
	if c == nil || c.baseURL == "" {
		return false
	}
	switch c.apiKey {
	case "", "sk-xxx", "your_openai_key_here":
		return false
	}
	return strings.HasPrefix(c.apiKey, "sk-") && len(c.apiKey) >= 20
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type extracted struct {
	Amount   *decimal.Decimal `json:"amount"`
	Currency string           `json:"currency"`
	Merchant string           `json:"merchant"`
	Category string           `json:"category"`
	Error    *string          `json:"error"`
}

// ExtractReceipt распознаёт сумму, валюту, продавца и категорию на изображении чека.
// Валюта и категория приводятся к поддерживаемым значениям.
func (c *Client) ExtractReceipt(ctx context.Context, image []byte, mimeType string) (*model.ReceiptData, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnreadableReceipt)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		MaxTokens:   maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusUnauthorized:
		return nil, ErrInvalidAPIKey
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("malformed response: no content")
	}

	return parseContent(chat.Choices[0].Message.Content)
}

func parseContent(content string) (*model.ReceiptData, error) {
	raw := content
	if m := jsonObject.FindString(content); m != "" {
		raw = m
	}

	var data extracted
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("%w: parse receipt data: %v", ErrUnreadableReceipt, err)
	}

	if data.Error != nil {
		msg := *data.Error
		if msg == "" {
			msg = "could not read receipt"
		}
		return nil, fmt.Errorf("%w: %s", ErrUnreadableReceipt, msg)
	}

	if data.Amount == nil || data.Currency == "" || data.Merchant == "" || data.Category == "" {
		return nil, ErrIncompleteData
	}
	if !data.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: invalid amount %s", ErrIncompleteData, data.Amount.String())
	}

	return &model.ReceiptData{
		Amount:   *data.Amount,
		Currency: validation.NormalizeCurrency(data.Currency),
		Merchant: strings.TrimSpace(data.Merchant),
		Category: validation.NormalizeCategory(data.Category),
	}, nil
}
