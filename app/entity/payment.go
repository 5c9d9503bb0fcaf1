package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Payment mirrors a gateway charge. Refunds reference it by ChargeID.
type Payment struct {
	ID uint64

	ChargeID string

	Amount   decimal.Decimal
	Currency string

	Status        PaymentStatus
	PaymentMethod string

	GatewayResponse string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentStatusFromCharge maps a gateway charge status onto the local payment status.
func PaymentStatusFromCharge(chargeStatus string) PaymentStatus {
	switch chargeStatus {
	case "CAPTURED", "captured", "AUTHORIZED", "authorized":
		return PaymentStatusSucceeded
	case "INITIATED", "initiated", "IN_PROGRESS", "in_progress":
		return PaymentStatusPending
	default:
		return PaymentStatusFailed
	}
}
