package entity

import "time"

const (
	WebhookDeliveryProcessed int32 = 10
	WebhookDeliveryIgnored   int32 = 11
	WebhookDeliveryQueued    int32 = 12
	WebhookDeliveryRejected  int32 = 20
	WebhookDeliveryMalformed int32 = 21
	WebhookDeliveryFailed    int32 = 30
)

// WebhookDelivery is the inbound log of one gateway webhook request.
type WebhookDelivery struct {
	ID uint64

	RefundID *uint64

	Provider        string
	EventType       string
	GatewayRefundID *string
	Signature       string
	PayloadJSON     string
	Status          int32
	Error           *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
