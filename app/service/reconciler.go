package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-refunds/app/entity"
	"github.com/vibast-solutions/ms-go-refunds/app/factory"
	"github.com/vibast-solutions/ms-go-refunds/app/repository"
	"github.com/vibast-solutions/ms-go-refunds/app/webhook"
)

type Outcome int

// maxTransitionAttempts bounds re-reads when a status write loses to a concurrent writer.
const maxTransitionAttempts = 3

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeTransitioned
	OutcomeUnchanged
	OutcomeStale
	OutcomeConflict
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeTransitioned:
		return "transitioned"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeStale:
		return "stale"
	case OutcomeConflict:
		return "conflict"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

type ReconcileResult struct {
	Outcome Outcome
	// Refund is nil only when the event was dropped.
	Refund *entity.Refund
}

type refundRepository interface {
	Create(ctx context.Context, refund *entity.Refund) error
	Update(ctx context.Context, refund *entity.Refund, expected entity.RefundStatus) error
	UpdateSnapshot(ctx context.Context, id uint64, gatewayResponse string, updatedAt time.Time) error
	UpdateNotification(ctx context.Context, refund *entity.Refund, expectedStatus, expectedAttempts int32) error
	FindByRefundID(ctx context.Context, refundID string) (*entity.Refund, error)
	ListByChargeID(ctx context.Context, chargeID string) ([]*entity.Refund, error)
	List(ctx context.Context, filter repository.RefundFilter) ([]*entity.Refund, error)
	SumAmountByChargeIDAndStatus(ctx context.Context, chargeID string, status entity.RefundStatus) (decimal.Decimal, error)
	ExistsByChargeIDAndStatus(ctx context.Context, chargeID string, status entity.RefundStatus) (bool, error)
	ListDueNotificationDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Refund, error)
	ListStaleNonTerminal(ctx context.Context, before time.Time, limit int32) ([]*entity.Refund, error)
}

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	Update(ctx context.Context, payment *entity.Payment) error
	FindByChargeID(ctx context.Context, chargeID string) (*entity.Payment, error)
	List(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error)
}

type refundEventRepository interface {
	Create(ctx context.Context, event *entity.RefundEvent) error
}

// Reconciler applies canonical refund events to the refund store.
type Reconciler struct {
	refundRepo  refundRepository
	paymentRepo paymentRepository
	eventRepo   refundEventRepository
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewReconciler(refundRepo refundRepository, paymentRepo paymentRepository, eventRepo refundEventRepository) *Reconciler {
	return &Reconciler{
		refundRepo:  refundRepo,
		paymentRepo: paymentRepo,
		eventRepo:   eventRepo,
		logger:      factory.NewModuleLogger("refunds-reconciler"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Apply is safe to call any number of times with the same event. Statuses only
// move forward; the stored gateway snapshot is always the last one seen.
func (r *Reconciler) Apply(ctx context.Context, event *webhook.Event) (*ReconcileResult, error) {
	if event == nil || event.RefundID == "" {
		return nil, ErrInvalidRequest
	}

	status, known := entity.ParseRefundStatus(event.Status)
	if !known {
		r.logger.WithFields(logrus.Fields{
			"refund_id": event.RefundID,
			"status":    event.Status,
		}).Warn("Unrecognized gateway refund status")
	}

	refund, err := r.refundRepo.FindByRefundID(ctx, event.RefundID)
	if err != nil {
		return nil, err
	}
	if refund == nil {
		return r.create(ctx, event, status, known)
	}
	return r.update(ctx, refund, event, status, known, 1)
}

func (r *Reconciler) create(ctx context.Context, event *webhook.Event, status entity.RefundStatus, known bool) (*ReconcileResult, error) {
	logger := r.logger.WithFields(logrus.Fields{
		"refund_id":  event.RefundID,
		"charge_id":  event.ChargeID,
		"event_type": event.Type,
	})

	if event.Action == webhook.ActionUpdate {
		logger.Warn("Refund update received for unknown refund, dropping")
		return &ReconcileResult{Outcome: OutcomeDropped}, nil
	}
	if event.ChargeID == "" || event.Amount == nil {
		logger.Warn("Refund event for unknown refund lacks charge id or amount, dropping")
		return &ReconcileResult{Outcome: OutcomeDropped}, nil
	}
	if !known {
		status = entity.RefundStatusPending
	}

	now := r.now()
	refundID := event.RefundID
	refund := &entity.Refund{
		RefundID:          &refundID,
		ChargeID:          event.ChargeID,
		Amount:            *event.Amount,
		Currency:          event.Currency,
		Type:              r.inferType(ctx, event.ChargeID, *event.Amount),
		Status:            status,
		Reason:            event.Reason,
		Description:       normalizeOptionalString(event.Description),
		MerchantReference: normalizeOptionalString(event.Reference),
		Metadata:          cloneMetadata(event.Metadata),
		GatewayResponse:   string(event.RawPayload),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if status.IsSuccess() {
		refund.CompletedAt = &now
	}
	if status.IsTerminal() {
		markForNotification(refund, now)
	}

	if err := r.refundRepo.Create(ctx, refund); err != nil {
		if !errors.Is(err, repository.ErrRefundAlreadyExists) {
			return nil, err
		}

		// Lost the race against a concurrent writer; apply as an update instead.
		existing, findErr := r.refundRepo.FindByRefundID(ctx, event.RefundID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		return r.update(ctx, existing, event, status, known, 1)
	}

	r.audit(ctx, refund, entity.RefundEventCreated, nil, event)
	logger.WithFields(logrus.Fields{
		"status": refund.Status,
		"type":   refund.Type,
	}).Info("Refund created from gateway event")

	if status.IsSuccess() {
		r.RollupPayment(ctx, refund.ChargeID)
	}

	return &ReconcileResult{Outcome: OutcomeCreated, Refund: refund}, nil
}

func (r *Reconciler) update(
	ctx context.Context,
	refund *entity.Refund,
	event *webhook.Event,
	status entity.RefundStatus,
	known bool,
	attempt int,
) (*ReconcileResult, error) {
	logger := r.logger.WithFields(logrus.Fields{
		"refund_id":  event.RefundID,
		"event_type": event.Type,
		"old_status": refund.Status,
		"new_status": event.Status,
	})

	transition := entity.TransitionUnchanged
	if known {
		transition = refund.Status.TransitionTo(status)
	}

	snapshot := string(event.RawPayload)
	snapshotChanged := snapshot != "" && snapshot != refund.GatewayResponse
	if transition != entity.TransitionApplied && !snapshotChanged {
		if transition == entity.TransitionConflict {
			logger.Warn("Conflicting terminal refund status ignored")
		}
		return &ReconcileResult{Outcome: outcomeFor(transition), Refund: refund}, nil
	}

	now := r.now()
	oldStatus := refund.Status
	if transition != entity.TransitionApplied {
		switch transition {
		case entity.TransitionConflict:
			logger.Warn("Conflicting terminal refund status ignored")
		case entity.TransitionStale:
			logger.Info("Stale refund status ignored")
		}
		if err := r.refundRepo.UpdateSnapshot(ctx, refund.ID, snapshot, now); err != nil {
			return nil, err
		}
		refund.GatewayResponse = snapshot
		refund.UpdatedAt = now
	} else {
		refund.Status = status
		if event.Reason != "" {
			refund.Reason = event.Reason
		}
		if status.IsSuccess() && refund.CompletedAt == nil {
			refund.CompletedAt = &now
		}
		if status.IsTerminal() {
			markForNotification(refund, now)
		}
		if snapshotChanged {
			refund.GatewayResponse = snapshot
		}
		if refund.RefundID == nil {
			refundID := event.RefundID
			refund.RefundID = &refundID
		}
		refund.UpdatedAt = now

		if err := r.refundRepo.Update(ctx, refund, oldStatus); err != nil {
			if !errors.Is(err, repository.ErrRefundStateChanged) || attempt >= maxTransitionAttempts {
				return nil, err
			}

			logger.Info("Refund changed concurrently, re-reading before applying")
			fresh, findErr := r.refundRepo.FindByRefundID(ctx, event.RefundID)
			if findErr != nil {
				return nil, findErr
			}
			if fresh == nil {
				return nil, err
			}
			return r.update(ctx, fresh, event, status, known, attempt+1)
		}
	}

	switch transition {
	case entity.TransitionApplied:
		r.audit(ctx, refund, entity.RefundEventTransitioned, &oldStatus, event)
		logger.Info("Refund status updated")
	case entity.TransitionConflict:
		r.audit(ctx, refund, entity.RefundEventConflict, &oldStatus, event)
	case entity.TransitionStale:
		r.audit(ctx, refund, entity.RefundEventStale, &oldStatus, event)
	default:
		r.audit(ctx, refund, entity.RefundEventSnapshotUpdated, &oldStatus, event)
	}

	if transition == entity.TransitionApplied && status.IsSuccess() {
		r.RollupPayment(ctx, refund.ChargeID)
	}

	return &ReconcileResult{Outcome: outcomeFor(transition), Refund: refund}, nil
}

// RollupPayment recomputes the parent payment status from its succeeded refunds.
// Failures are logged and never returned.
func (r *Reconciler) RollupPayment(ctx context.Context, chargeID string) {
	logger := r.logger.WithField("charge_id", chargeID)

	payment, err := r.paymentRepo.FindByChargeID(ctx, chargeID)
	if err != nil {
		logger.WithError(err).Error("Failed to load payment for refund rollup")
		return
	}
	if payment == nil {
		logger.Warn("Payment not found for refund rollup")
		return
	}

	refunded, err := r.refundRepo.SumAmountByChargeIDAndStatus(ctx, chargeID, entity.RefundStatusRefunded)
	if err != nil {
		logger.WithError(err).Error("Failed to sum refunded amount")
		return
	}

	status := entity.PaymentStatusPartiallyRefunded
	if refunded.GreaterThanOrEqual(payment.Amount) {
		status = entity.PaymentStatusRefunded
	}
	if payment.Status == status {
		return
	}

	payment.Status = status
	payment.UpdatedAt = r.now()
	if err := r.paymentRepo.Update(ctx, payment); err != nil {
		logger.WithError(err).Error("Failed to update payment status after refund")
		return
	}
	logger.WithField("status", status).Info("Payment refund status updated")
}

func (r *Reconciler) inferType(ctx context.Context, chargeID string, amount decimal.Decimal) entity.RefundType {
	payment, err := r.paymentRepo.FindByChargeID(ctx, chargeID)
	if err != nil {
		r.logger.WithError(err).WithField("charge_id", chargeID).Warn("Failed to load payment for refund type")
		return entity.RefundTypePartial
	}
	if payment != nil && amount.GreaterThanOrEqual(payment.Amount) {
		return entity.RefundTypeFull
	}
	return entity.RefundTypePartial
}

func (r *Reconciler) audit(
	ctx context.Context,
	refund *entity.Refund,
	eventType string,
	oldStatus *entity.RefundStatus,
	event *webhook.Event,
) {
	item := &entity.RefundEvent{
		RefundID:  refund.ID,
		EventType: eventType,
		OldStatus: oldStatus,
		NewStatus: refund.Status,
		CreatedAt: r.now(),
	}
	if event.Type != "" {
		gatewayEventType := event.Type
		item.GatewayEventType = &gatewayEventType
	}
	if len(event.RawPayload) > 0 {
		payload := string(event.RawPayload)
		item.PayloadJSON = &payload
	}
	_ = r.eventRepo.Create(ctx, item)
}

func outcomeFor(transition entity.Transition) Outcome {
	switch transition {
	case entity.TransitionApplied:
		return OutcomeTransitioned
	case entity.TransitionStale:
		return OutcomeStale
	case entity.TransitionConflict:
		return OutcomeConflict
	default:
		return OutcomeUnchanged
	}
}

func markForNotification(refund *entity.Refund, now time.Time) {
	refund.NotificationStatus = entity.NotificationDeliveryPending
	refund.NotificationAttempts = 0
	refund.NotificationNextAt = &now
	refund.NotificationLastErr = nil
}
