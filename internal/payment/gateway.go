package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Gateway is a Processor talking JSON over HTTP to a card processor.
type Gateway struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	log        *zap.Logger
}

// NewGateway creates a gateway client.
func NewGateway(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type holdRequestBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type captureRequestBody struct {
	Destination string `json:"destination"`
}

type objectResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ErrorResponse is the error body returned by the gateway.
type ErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Gateway) CreateHold(ctx context.Context, req HoldRequest) (string, error) {
	meta := map[string]string{
		"bounty_id": req.BountyID,
		"poster_id": req.PosterID,
		"hunter_id": req.HunterID,
	}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	body := holdRequestBody{
		Amount:   req.AmountCents,
		Currency: strings.ToLower(req.Currency),
		Customer: req.PosterID,
		Metadata: meta,
	}
	var out objectResponse
	if err := c.do(ctx, "create_hold", "/v1/holds", req.IdempotencyKey, body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Gateway) CaptureAndTransfer(ctx context.Context, holdID, destination, idempotencyKey string) (string, error) {
	var out objectResponse
	path := "/v1/holds/" + url.PathEscape(holdID) + "/capture"
	if err := c.do(ctx, "capture", path, idempotencyKey, captureRequestBody{Destination: destination}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Gateway) CancelOrRefundHold(ctx context.Context, holdID, idempotencyKey string) (string, error) {
	var out objectResponse
	path := "/v1/holds/" + url.PathEscape(holdID) + "/cancel"
	if err := c.do(ctx, "cancel", path, idempotencyKey, struct{}{}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Gateway) do(ctx context.Context, op, path, idempotencyKey string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Category: CategoryValidation, Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Category: CategoryValidation, Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &Error{Category: CategoryNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Category: CategoryNetwork, Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		_ = json.Unmarshal(respBody, &errResp)
		category := classify(resp.StatusCode, errResp.Error.Type, errResp.Error.Code)
		c.log.Warn("Payment gateway returned error",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("code", errResp.Error.Code),
			zap.String("category", string(category)),
		)
		msg := errResp.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{Category: category, Op: op, Code: errResp.Error.Code, Err: errors.New(msg)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		// A 2xx with an unreadable body is an unconfirmed outcome.
		return &Error{Category: CategoryProcessing, Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func classify(status int, errType, code string) Category {
	switch code {
	case "card_declined", "insufficient_funds", "expired_card":
		return CategoryCardDeclined
	case "fraudulent", "fraud_suspected":
		return CategoryFraud
	case "idempotency_key_in_use", "duplicate_transaction":
		return CategoryDuplicate
	case "processing_error":
		return CategoryProcessing
	case "rate_limit":
		return CategoryRateLimit
	}
	switch {
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status == http.StatusRequestTimeout:
		return CategoryNetwork
	case status >= 500:
		return CategoryServer
	case status == http.StatusPaymentRequired || errType == "card_error":
		return CategoryCardDeclined
	case status == http.StatusConflict:
		return CategoryDuplicate
	default:
		return CategoryValidation
	}
}
