package entity

import "time"

const (
	RefundEventCreated            = "refund_created"
	RefundEventTransitioned       = "refund_transitioned"
	RefundEventStale              = "refund_stale_status"
	RefundEventConflict           = "refund_terminal_conflict"
	RefundEventSnapshotUpdated    = "refund_snapshot_updated"
	RefundEventNotificationSent   = "notification_dispatched"
	RefundEventNotificationFailed = "notification_dispatch_failed"
)

type RefundEvent struct {
	ID uint64

	RefundID uint64

	EventType string

	OldStatus *RefundStatus
	NewStatus RefundStatus

	GatewayEventType *string
	PayloadJSON      *string

	CreatedAt time.Time
}
