package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-refunds/app/entity"
)

type RefundEventRepository struct {
	db DBTX
}

func NewRefundEventRepository(db DBTX) *RefundEventRepository {
	return &RefundEventRepository{db: db}
}

func (r *RefundEventRepository) Create(ctx context.Context, event *entity.RefundEvent) error {
	query := `
		INSERT INTO refund_events (
			refund_id, event_type, old_status, new_status, gateway_event_type, payload_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var oldStatus interface{}
	if event.OldStatus != nil {
		oldStatus = string(*event.OldStatus)
	}

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		event.RefundID,
		event.EventType,
		oldStatus,
		string(event.NewStatus),
		nullableStringValue(event.GatewayEventType),
		nullableStringValue(event.PayloadJSON),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}
