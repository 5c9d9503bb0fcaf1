package provider

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

	"github.com/shopspring/decimal"
)

const (
	defaultTapBaseURL = "https://api.tap.company/v2"
	unknownErrorText  = "Unknown error occurred"
)

type TapConfig struct {
	SecretKey   string
	BaseURL     string
	HTTPTimeout time.Duration
}

type TapProvider struct {
	cfg    TapConfig
	client *http.Client
}

func NewTapProvider(cfg TapConfig) *TapProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTapBaseURL
	}

	return &TapProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *TapProvider) Code() string {
	return CodeTap
}

func (p *TapProvider) CreateRefund(ctx context.Context, input *CreateRefundInput) (*RefundResource, error) {
	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	payload := map[string]interface{}{
		"charge_id":   input.ChargeID,
		"amount":      json.Number(input.Amount.String()),
		"currency":    input.Currency,
		"description": input.Description,
		"reason":      input.Reason,
		"reference":   map[string]string{"merchant": input.MerchantReference},
		"metadata":    metadata,
		"post":        map[string]string{"url": input.CallbackURL},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	respBody, err := p.do(ctx, http.MethodPost, "/refunds", nil, body)
	if err != nil {
		return nil, err
	}

	refund, err := parseRefundResource(respBody)
	if err != nil {
		return nil, err
	}
	if refund.ID == "" {
		return nil, &Error{StatusCode: http.StatusBadGateway, Message: "refund id missing from gateway response"}
	}
	return refund, nil
}

func (p *TapProvider) GetRefund(ctx context.Context, refundID string) (*RefundResource, error) {
	respBody, err := p.do(ctx, http.MethodGet, "/refunds/"+url.PathEscape(refundID), nil, nil)
	if err != nil {
		return nil, err
	}
	return parseRefundResource(respBody)
}

func (p *TapProvider) GetCharge(ctx context.Context, chargeID string) (*ChargeResource, error) {
	respBody, err := p.do(ctx, http.MethodGet, "/charges/"+url.PathEscape(chargeID), nil, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID       string          `json:"id"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Status   string          `json:"status"`
		Source   struct {
			PaymentMethod string `json:"payment_method"`
		} `json:"source"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, err
	}

	return &ChargeResource{
		ID:            strings.TrimSpace(payload.ID),
		Amount:        payload.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(payload.Currency)),
		Status:        strings.TrimSpace(payload.Status),
		PaymentMethod: strings.TrimSpace(payload.Source.PaymentMethod),
		Raw:           respBody,
	}, nil
}

func (p *TapProvider) ListRefunds(ctx context.Context, chargeID string) ([]*RefundResource, error) {
	query := url.Values{}
	query.Set("charge_id", chargeID)

	respBody, err := p.do(ctx, http.MethodGet, "/refunds", query, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Refunds []json.RawMessage `json:"refunds"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, err
	}

	items := payload.Refunds
	if len(items) == 0 {
		items = payload.Data
	}

	refunds := make([]*RefundResource, 0, len(items))
	for _, item := range items {
		refund, err := parseRefundResource(item)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, refund)
	}
	return refunds, nil
}

func (p *TapProvider) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, errors.New("tap secret key is not configured")
	}

	target := p.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &Error{Message: "Service unavailable: " + err.Error(), Unavailable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "Service unavailable: " + err.Error(), Unavailable: true}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: extractErrorMessage(respBody)}
	}

	return respBody, nil
}

func parseRefundResource(raw []byte) (*RefundResource, error) {
	var payload struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode gateway refund: %w", err)
	}

	return &RefundResource{
		ID:     strings.TrimSpace(payload.ID),
		Status: strings.TrimSpace(payload.Status),
		Raw:    raw,
	}, nil
}

// extractErrorMessage prefers the "errors" field, then "message".
func extractErrorMessage(body []byte) string {
	var payload struct {
		Errors  json.RawMessage `json:"errors"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return unknownErrorText
	}

	if len(payload.Errors) > 0 && string(payload.Errors) != "null" {
		var asString string
		if err := json.Unmarshal(payload.Errors, &asString); err == nil && asString != "" {
			return asString
		}

		var items []json.RawMessage
		if err := json.Unmarshal(payload.Errors, &items); err == nil {
			messages := make([]string, 0, len(items))
			for _, item := range items {
				if msg := errorItemText(item); msg != "" {
					messages = append(messages, msg)
				}
			}
			if len(messages) > 0 {
				return strings.Join(messages, ", ")
			}
		}
	}

	if strings.TrimSpace(payload.Message) != "" {
		return payload.Message
	}
	return unknownErrorText
}

func errorItemText(item json.RawMessage) string {
	var text string
	if err := json.Unmarshal(item, &text); err == nil {
		return text
	}

	var detail struct {
		Description string `json:"description"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(item, &detail); err != nil {
		return ""
	}
	if detail.Description != "" {
		return detail.Description
	}
	return detail.Message
}
