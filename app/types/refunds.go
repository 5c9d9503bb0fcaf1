package types

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-refunds/app/webhook"
)

const defaultListLimit = int32(100)

func NewCreateRefundRequestFromContext(ctx echo.Context) (*CreateRefundRequest, error) {
	var body CreateRefundRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	if chargeID := strings.TrimSpace(ctx.Param("charge_id")); chargeID != "" {
		body.ChargeId = chargeID
	}
	body.normalize()

	return &body, nil
}

func (r *CreateRefundRequest) normalize() {
	r.ChargeId = strings.TrimSpace(r.ChargeId)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.Description = strings.TrimSpace(r.Description)
	r.Reason = strings.ToLower(strings.TrimSpace(r.Reason))
	r.MerchantReference = strings.TrimSpace(r.MerchantReference)
}

func (r *CreateRefundRequest) Validate() error {
	r.normalize()
	return validateStruct(r)
}

func NewGetRefundRequestFromContext(ctx echo.Context) (*GetRefundRequest, error) {
	return &GetRefundRequest{RefundId: strings.TrimSpace(ctx.Param("refund_id"))}, nil
}

func (r *GetRefundRequest) Validate() error {
	r.RefundId = strings.TrimSpace(r.RefundId)
	return validateStruct(r)
}

func NewChargeRequestFromContext(ctx echo.Context) (*ChargeRequest, error) {
	return &ChargeRequest{ChargeId: strings.TrimSpace(ctx.Param("charge_id"))}, nil
}

func (r *ChargeRequest) Validate() error {
	r.ChargeId = strings.TrimSpace(r.ChargeId)
	return validateStruct(r)
}

func NewListRefundsRequestFromContext(ctx echo.Context) (*ListRefundsRequest, error) {
	limit, offset, err := pagingFromContext(ctx)
	if err != nil {
		return nil, err
	}

	return &ListRefundsRequest{
		ChargeId: strings.TrimSpace(ctx.QueryParam("charge_id")),
		Status:   strings.ToLower(strings.TrimSpace(ctx.QueryParam("status"))),
		Limit:    limit,
		Offset:   offset,
	}, nil
}

func (r *ListRefundsRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = defaultListLimit
	}
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	return validateStruct(r)
}

func NewListPaymentsRequestFromContext(ctx echo.Context) (*ListPaymentsRequest, error) {
	limit, offset, err := pagingFromContext(ctx)
	if err != nil {
		return nil, err
	}

	return &ListPaymentsRequest{
		ChargeId: strings.TrimSpace(ctx.QueryParam("charge_id")),
		Status:   strings.ToLower(strings.TrimSpace(ctx.QueryParam("status"))),
		Limit:    limit,
		Offset:   offset,
	}, nil
}

func (r *ListPaymentsRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = defaultListLimit
	}
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	return validateStruct(r)
}

// NewHandleRefundWebhookRequestFromContext keeps the body exactly as received so the
// signature is checked against the original bytes.
func NewHandleRefundWebhookRequestFromContext(ctx echo.Context) (*HandleRefundWebhookRequest, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &HandleRefundWebhookRequest{
		Provider:  strings.ToLower(strings.TrimSpace(ctx.Param("provider"))),
		Signature: strings.TrimSpace(ctx.Request().Header.Get(webhook.SignatureHeader)),
		Payload:   rawBody,
	}, nil
}

// Validate only checks the route. The body is judged after its signature.
func (r *HandleRefundWebhookRequest) Validate() error {
	if strings.TrimSpace(r.GetProvider()) == "" {
		return &ValidationError{Fields: map[string]string{"provider": "is required"}}
	}
	return nil
}

func pagingFromContext(ctx echo.Context) (int32, int32, error) {
	limit := defaultListLimit
	if raw := strings.TrimSpace(ctx.QueryParam("limit")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid limit: %w", err)
		}
		limit = int32(parsed)
	}

	var offset int32
	if raw := strings.TrimSpace(ctx.QueryParam("offset")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid offset: %w", err)
		}
		offset = int32(parsed)
	}

	return limit, offset, nil
}
