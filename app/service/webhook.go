package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-refunds/app/entity"
	"github.com/vibast-solutions/ms-go-refunds/app/factory"
	"github.com/vibast-solutions/ms-go-refunds/app/provider"
	"github.com/vibast-solutions/ms-go-refunds/app/queue"
	"github.com/vibast-solutions/ms-go-refunds/app/webhook"
)

// rejectedPayloadPrefix caps how much of an unauthenticated body is kept.
const rejectedPayloadPrefix = 512

type handleWebhookRequest interface {
	GetProvider() string
	GetSignature() string
	GetPayload() []byte
}

type webhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *entity.WebhookDelivery) error
	UpdateStatus(ctx context.Context, delivery *entity.WebhookDelivery) error
}

type webhookQueue interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// WebhookResult reports what happened to an authentic webhook.
type WebhookResult struct {
	DeliveryStatus int32
	Outcome        Outcome
	Refund         *entity.Refund
}

type WebhookService struct {
	deliveryRepo webhookDeliveryRepository
	providerReg  *provider.Registry
	verifier     *webhook.Verifier
	normalizer   *webhook.Normalizer
	reconciler   *Reconciler
	queue        webhookQueue
	logger       logrus.FieldLogger
	now          func() time.Time
}

// NewWebhookService builds the webhook pipeline. A nil jobs queue processes every webhook inline.
func NewWebhookService(
	deliveryRepo webhookDeliveryRepository,
	providerReg *provider.Registry,
	verifier *webhook.Verifier,
	reconciler *Reconciler,
	jobs webhookQueue,
) *WebhookService {
	return &WebhookService{
		deliveryRepo: deliveryRepo,
		providerReg:  providerReg,
		verifier:     verifier,
		normalizer:   webhook.NewNormalizer(),
		reconciler:   reconciler,
		queue:        jobs,
		logger:       factory.NewModuleLogger("refunds-webhook"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// HandleRefundWebhook verifies, normalizes and reconciles one gateway webhook.
// The body is never parsed before the signature has been checked.
func (s *WebhookService) HandleRefundWebhook(ctx context.Context, req handleWebhookRequest) (*WebhookResult, error) {
	providerCode := strings.ToLower(strings.TrimSpace(req.GetProvider()))
	if _, err := s.providerReg.Get(providerCode); err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	payload := req.GetPayload()
	signature := strings.TrimSpace(req.GetSignature())
	delivery := &entity.WebhookDelivery{
		Provider:  providerCode,
		Signature: truncate(signature, 255),
	}

	if !s.verifier.Verify(payload, signature) {
		delivery.PayloadJSON = truncate(string(payload), rejectedPayloadPrefix)
		s.logger.WithFields(logrus.Fields{
			"provider":      providerCode,
			"has_signature": signature != "",
		}).Warn("Rejected webhook with invalid signature")
		s.recordDelivery(ctx, delivery, entity.WebhookDeliveryRejected, "invalid signature")
		return nil, ErrSignatureInvalid
	}

	delivery.PayloadJSON = string(payload)
	event, err := s.normalizer.Normalize(payload)
	if err != nil {
		s.logger.WithError(err).WithField("provider", providerCode).Warn("Malformed refund webhook")
		s.recordDelivery(ctx, delivery, entity.WebhookDeliveryMalformed, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if event == nil {
		s.recordDelivery(ctx, delivery, entity.WebhookDeliveryIgnored, "")
		return &WebhookResult{DeliveryStatus: entity.WebhookDeliveryIgnored}, nil
	}

	delivery.EventType = truncate(event.Type, 64)
	gatewayRefundID := event.RefundID
	delivery.GatewayRefundID = &gatewayRefundID

	if s.queue != nil {
		if result, ok := s.enqueue(ctx, delivery); ok {
			return result, nil
		}
	}

	result, err := s.reconciler.Apply(ctx, event)
	if err != nil {
		s.logger.WithError(err).WithField("refund_id", event.RefundID).Error("Failed to reconcile refund webhook")
		s.finishDelivery(ctx, delivery, nil, entity.WebhookDeliveryFailed, err.Error())
		return nil, err
	}

	s.finishDelivery(ctx, delivery, result.Refund, entity.WebhookDeliveryProcessed, "")
	return &WebhookResult{
		DeliveryStatus: entity.WebhookDeliveryProcessed,
		Outcome:        result.Outcome,
		Refund:         result.Refund,
	}, nil
}

// ProcessQueuedWebhook is the background half of HandleRefundWebhook. Errors are
// returned so the queue consumer retries the job.
func (s *WebhookService) ProcessQueuedWebhook(ctx context.Context, job *queue.Job) error {
	event, err := s.normalizer.Normalize([]byte(job.Payload))
	if err != nil {
		s.updateDelivery(ctx, job.DeliveryID, nil, entity.WebhookDeliveryMalformed, err.Error())
		return nil
	}
	if event == nil {
		s.updateDelivery(ctx, job.DeliveryID, nil, entity.WebhookDeliveryIgnored, "")
		return nil
	}

	result, err := s.reconciler.Apply(ctx, event)
	if err != nil {
		return err
	}

	s.updateDelivery(ctx, job.DeliveryID, result.Refund, entity.WebhookDeliveryProcessed, "")
	return nil
}

// MarkQueuedWebhookFailed records a job that exhausted its attempts.
func (s *WebhookService) MarkQueuedWebhookFailed(ctx context.Context, job *queue.Job, jobErr error) {
	s.updateDelivery(ctx, job.DeliveryID, nil, entity.WebhookDeliveryFailed, jobErr.Error())
}

func (s *WebhookService) enqueue(ctx context.Context, delivery *entity.WebhookDelivery) (*WebhookResult, bool) {
	now := s.now()
	delivery.Status = entity.WebhookDeliveryQueued
	delivery.CreatedAt = now
	delivery.UpdatedAt = now
	if err := s.deliveryRepo.Create(ctx, delivery); err != nil {
		s.logger.WithError(err).Error("Failed to record queued webhook, processing inline")
		return nil, false
	}

	err := s.queue.Enqueue(ctx, &queue.Job{
		DeliveryID: delivery.ID,
		Provider:   delivery.Provider,
		Payload:    delivery.PayloadJSON,
	})
	if err != nil {
		s.logger.WithError(err).WithField("delivery_id", delivery.ID).Error("Failed to enqueue webhook, processing inline")
		return nil, false
	}

	return &WebhookResult{DeliveryStatus: entity.WebhookDeliveryQueued}, true
}

// finishDelivery stores the outcome of an inline delivery, updating the row when
// an enqueue attempt already created it.
func (s *WebhookService) finishDelivery(ctx context.Context, delivery *entity.WebhookDelivery, refund *entity.Refund, status int32, reason string) {
	if delivery.ID == 0 {
		if refund != nil {
			refundID := refund.ID
			delivery.RefundID = &refundID
		}
		s.recordDelivery(ctx, delivery, status, reason)
		return
	}
	s.updateDelivery(ctx, delivery.ID, refund, status, reason)
}

func (s *WebhookService) recordDelivery(ctx context.Context, delivery *entity.WebhookDelivery, status int32, reason string) {
	now := s.now()
	delivery.Status = status
	delivery.Error = optionalError(reason)
	delivery.CreatedAt = now
	delivery.UpdatedAt = now
	if err := s.deliveryRepo.Create(ctx, delivery); err != nil {
		s.logger.WithError(err).Warn("Failed to record webhook delivery")
	}
}

func (s *WebhookService) updateDelivery(ctx context.Context, deliveryID uint64, refund *entity.Refund, status int32, reason string) {
	if deliveryID == 0 {
		return
	}

	delivery := &entity.WebhookDelivery{
		ID:        deliveryID,
		Status:    status,
		Error:     optionalError(reason),
		UpdatedAt: s.now(),
	}
	if refund != nil {
		refundID := refund.ID
		delivery.RefundID = &refundID
	}
	if err := s.deliveryRepo.UpdateStatus(ctx, delivery); err != nil {
		s.logger.WithError(err).WithField("delivery_id", deliveryID).Warn("Failed to update webhook delivery")
	}
}

func optionalError(reason string) *string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil
	}
	trimmed := truncate(reason, 1024)
	return &trimmed
}
