package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-refunds/app/entity"
	"github.com/vibast-solutions/ms-go-refunds/app/types"
)

func RefundToResponse(item *entity.Refund) *types.Refund {
	if item == nil {
		return nil
	}

	out := &types.Refund{
		Id:                item.ID,
		RefundId:          item.GatewayRefundID(),
		ChargeId:          item.ChargeID,
		Amount:            item.Amount.String(),
		Currency:          item.Currency,
		Type:              string(item.Type),
		Status:            string(item.Status),
		Reason:            item.Reason,
		Description:       derefString(item.Description),
		MerchantReference: derefString(item.MerchantReference),
		Metadata:          cloneMetadata(item.Metadata),
		CreatedAt:         item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         item.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if item.CompletedAt != nil {
		out.CompletedAt = item.CompletedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func RefundsToResponse(items []*entity.Refund) []*types.Refund {
	result := make([]*types.Refund, 0, len(items))
	for _, item := range items {
		result = append(result, RefundToResponse(item))
	}
	return result
}

func PaymentToResponse(item *entity.Payment) *types.Payment {
	if item == nil {
		return nil
	}

	return &types.Payment{
		Id:            item.ID,
		ChargeId:      item.ChargeID,
		Amount:        item.Amount.String(),
		Currency:      item.Currency,
		Status:        string(item.Status),
		PaymentMethod: item.PaymentMethod,
		CreatedAt:     item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentsToResponse(items []*entity.Payment) []*types.Payment {
	result := make([]*types.Payment, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

func RefundSummaryToResponse(item *entity.RefundSummary) *types.RefundSummaryResponse {
	if item == nil {
		return nil
	}

	return &types.RefundSummaryResponse{
		ChargeId:        item.ChargeID,
		Currency:        item.Currency,
		CanRefund:       item.CanRefund,
		Reason:          item.Reason,
		OriginalAmount:  item.OriginalAmount.String(),
		TotalRefunded:   item.RefundedAmount.String(),
		RemainingAmount: item.RemainingAmount.String(),
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
