package types

import "github.com/shopspring/decimal"

type HealthRequest struct{}

type HealthResponse struct {
	Status string `json:"status"`
}

func (r *HealthResponse) GetStatus() string {
	if r == nil {
		return ""
	}
	return r.Status
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Errors map[string]string `json:"errors,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CreateRefundRequest struct {
	ChargeId          string            `json:"charge_id" validate:"required,max=255"`
	Amount            decimal.Decimal   `json:"amount" validate:"money"`
	Currency          string            `json:"currency" validate:"required,len=3,alpha"`
	Description       string            `json:"description,omitempty" validate:"max=500"`
	Reason            string            `json:"reason,omitempty" validate:"omitempty,oneof=duplicate fraudulent requested_by_customer other"`
	MerchantReference string            `json:"merchant_reference,omitempty" validate:"max=255"`
	Metadata          map[string]string `json:"metadata,omitempty" validate:"omitempty,dive,max=255"`
	OriginalAmount    *decimal.Decimal  `json:"original_amount,omitempty" validate:"omitempty,money"`
}

func (r *CreateRefundRequest) GetChargeId() string {
	if r == nil {
		return ""
	}
	return r.ChargeId
}

func (r *CreateRefundRequest) GetAmount() decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return r.Amount
}

func (r *CreateRefundRequest) GetCurrency() string {
	if r == nil {
		return ""
	}
	return r.Currency
}

func (r *CreateRefundRequest) GetDescription() string {
	if r == nil {
		return ""
	}
	return r.Description
}

func (r *CreateRefundRequest) GetReason() string {
	if r == nil {
		return ""
	}
	return r.Reason
}

func (r *CreateRefundRequest) GetMerchantReference() string {
	if r == nil {
		return ""
	}
	return r.MerchantReference
}

func (r *CreateRefundRequest) GetMetadata() map[string]string {
	if r == nil {
		return nil
	}
	return r.Metadata
}

func (r *CreateRefundRequest) GetOriginalAmount() *decimal.Decimal {
	if r == nil {
		return nil
	}
	return r.OriginalAmount
}

type GetRefundRequest struct {
	RefundId string `json:"refund_id" validate:"required,max=255"`
}

func (r *GetRefundRequest) GetRefundId() string {
	if r == nil {
		return ""
	}
	return r.RefundId
}

type ChargeRequest struct {
	ChargeId string `json:"charge_id" validate:"required,max=255"`
}

func (r *ChargeRequest) GetChargeId() string {
	if r == nil {
		return ""
	}
	return r.ChargeId
}

type ListRefundsRequest struct {
	ChargeId string `json:"charge_id,omitempty" validate:"max=255"`
	Status   string `json:"status,omitempty" validate:"omitempty,oneof=pending accepted refunded declined failed restricted rejected"`
	Limit    int32  `json:"limit,omitempty" validate:"min=1,max=500"`
	Offset   int32  `json:"offset,omitempty" validate:"min=0"`
}

func (r *ListRefundsRequest) GetChargeId() string {
	if r == nil {
		return ""
	}
	return r.ChargeId
}

func (r *ListRefundsRequest) GetStatus() string {
	if r == nil {
		return ""
	}
	return r.Status
}

func (r *ListRefundsRequest) GetLimit() int32 {
	if r == nil {
		return 0
	}
	return r.Limit
}

func (r *ListRefundsRequest) GetOffset() int32 {
	if r == nil {
		return 0
	}
	return r.Offset
}

type ListPaymentsRequest struct {
	ChargeId string `json:"charge_id,omitempty" validate:"max=255"`
	Status   string `json:"status,omitempty" validate:"omitempty,oneof=pending succeeded failed refunded partially_refunded"`
	Limit    int32  `json:"limit,omitempty" validate:"min=1,max=500"`
	Offset   int32  `json:"offset,omitempty" validate:"min=0"`
}

func (r *ListPaymentsRequest) GetChargeId() string {
	if r == nil {
		return ""
	}
	return r.ChargeId
}

func (r *ListPaymentsRequest) GetStatus() string {
	if r == nil {
		return ""
	}
	return r.Status
}

func (r *ListPaymentsRequest) GetLimit() int32 {
	if r == nil {
		return 0
	}
	return r.Limit
}

func (r *ListPaymentsRequest) GetOffset() int32 {
	if r == nil {
		return 0
	}
	return r.Offset
}

// HandleRefundWebhookRequest carries the untouched webhook body; it is never re-encoded.
type HandleRefundWebhookRequest struct {
	Provider  string
	Signature string
	Payload   []byte
}

func (r *HandleRefundWebhookRequest) GetProvider() string {
	if r == nil {
		return ""
	}
	return r.Provider
}

func (r *HandleRefundWebhookRequest) GetSignature() string {
	if r == nil {
		return ""
	}
	return r.Signature
}

func (r *HandleRefundWebhookRequest) GetPayload() []byte {
	if r == nil {
		return nil
	}
	return r.Payload
}

type Refund struct {
	Id                uint64            `json:"id"`
	RefundId          string            `json:"refund_id"`
	ChargeId          string            `json:"charge_id"`
	Amount            string            `json:"amount"`
	Currency          string            `json:"currency"`
	Type              string            `json:"type"`
	Status            string            `json:"status"`
	Reason            string            `json:"reason"`
	Description       string            `json:"description"`
	MerchantReference string            `json:"merchant_reference"`
	Metadata          map[string]string `json:"metadata"`
	CompletedAt       string            `json:"completed_at,omitempty"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
}

func (r *Refund) GetRefundId() string {
	if r == nil {
		return ""
	}
	return r.RefundId
}

func (r *Refund) GetStatus() string {
	if r == nil {
		return ""
	}
	return r.Status
}

type Payment struct {
	Id            uint64 `json:"id"`
	ChargeId      string `json:"charge_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type RefundEnvelopeResponse struct {
	Refund *Refund `json:"refund"`
}

func (r *RefundEnvelopeResponse) GetRefund() *Refund {
	if r == nil {
		return nil
	}
	return r.Refund
}

type ListRefundsResponse struct {
	Refunds []*Refund `json:"refunds"`
}

func (r *ListRefundsResponse) GetRefunds() []*Refund {
	if r == nil {
		return nil
	}
	return r.Refunds
}

type ListPaymentsResponse struct {
	Payments []*Payment `json:"payments"`
}

type RefundSummaryResponse struct {
	ChargeId        string `json:"charge_id"`
	Currency        string `json:"currency,omitempty"`
	CanRefund       bool   `json:"can_refund"`
	Reason          string `json:"reason,omitempty"`
	OriginalAmount  string `json:"original_amount"`
	TotalRefunded   string `json:"total_refunded"`
	RemainingAmount string `json:"remaining_amount"`
}

type WebhookResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}
