package repository

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-refunds/app/entity"
)

var ErrWebhookDeliveryNotFound = errors.New("webhook delivery not found")

type WebhookDeliveryRepository struct {
	db DBTX
}

func NewWebhookDeliveryRepository(db DBTX) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{db: db}
}

func (r *WebhookDeliveryRepository) Create(ctx context.Context, delivery *entity.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			refund_id, provider, event_type, gateway_refund_id, signature, payload_json, status, error, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		nullableUint64Value(delivery.RefundID),
		delivery.Provider,
		delivery.EventType,
		nullableStringValue(delivery.GatewayRefundID),
		delivery.Signature,
		delivery.PayloadJSON,
		delivery.Status,
		nullableStringValue(delivery.Error),
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	delivery.ID = uint64(id)

	return nil
}

// UpdateStatus records the final outcome of a delivery that was queued for background processing.
func (r *WebhookDeliveryRepository) UpdateStatus(ctx context.Context, delivery *entity.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries SET
			refund_id = ?,
			status = ?,
			error = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		nullableUint64Value(delivery.RefundID),
		delivery.Status,
		nullableStringValue(delivery.Error),
		delivery.UpdatedAt,
		delivery.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWebhookDeliveryNotFound
	}
	return nil
}
