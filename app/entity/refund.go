package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	NotificationDeliveryNone    int32 = 0
	NotificationDeliveryPending int32 = 1
	NotificationDeliverySuccess int32 = 10
	NotificationDeliveryFailed  int32 = 20
)

type RefundType string

const (
	RefundTypeFull    RefundType = "full"
	RefundTypePartial RefundType = "partial"
)

type Refund struct {
	ID uint64

	// RefundID is assigned by the gateway and never changes once set.
	RefundID *string
	ChargeID string

	Amount   decimal.Decimal
	Currency string

	Type   RefundType
	Status RefundStatus

	Reason            string
	Description       *string
	MerchantReference *string
	Metadata          map[string]string

	GatewayResponse string

	CompletedAt *time.Time

	NotificationStatus   int32
	NotificationAttempts int32
	NotificationNextAt   *time.Time
	NotificationLastErr  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Refund) GatewayRefundID() string {
	if r == nil || r.RefundID == nil {
		return ""
	}
	return *r.RefundID
}

// RefundSummary describes how much of a charge can still be refunded.
type RefundSummary struct {
	ChargeID        string
	Currency        string
	CanRefund       bool
	Reason          string
	OriginalAmount  decimal.Decimal
	RefundedAmount  decimal.Decimal
	RemainingAmount decimal.Decimal
}
