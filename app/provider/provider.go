package provider

import (
	"context"

	"github.com/shopspring/decimal"
)

const CodeTap = "tap"

type CreateRefundInput struct {
	ChargeID          string
	Amount            decimal.Decimal
	Currency          string
	Description       string
	Reason            string
	MerchantReference string
	Metadata          map[string]string
	CallbackURL       string
}

// RefundResource is a refund object as the gateway API returns it. Raw keeps the
// untouched JSON so it can be stored and re-normalized.
type RefundResource struct {
	ID     string
	Status string
	Raw    []byte
}

type ChargeResource struct {
	ID            string
	Amount        decimal.Decimal
	Currency      string
	Status        string
	PaymentMethod string
	Raw           []byte
}

// Error is a failed gateway call. Message is safe to return to API callers.
type Error struct {
	StatusCode  int
	Message     string
	Unavailable bool
}

func (e *Error) Error() string {
	return e.Message
}

type Provider interface {
	Code() string
	CreateRefund(ctx context.Context, input *CreateRefundInput) (*RefundResource, error)
	GetRefund(ctx context.Context, refundID string) (*RefundResource, error)
	GetCharge(ctx context.Context, chargeID string) (*ChargeResource, error)
	ListRefunds(ctx context.Context, chargeID string) ([]*RefundResource, error)
}
