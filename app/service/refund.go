package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-refunds/app/entity"
	"github.com/vibast-solutions/ms-go-refunds/app/factory"
	"github.com/vibast-solutions/ms-go-refunds/app/provider"
	"github.com/vibast-solutions/ms-go-refunds/app/repository"
	"github.com/vibast-solutions/ms-go-refunds/app/webhook"
	"github.com/vibast-solutions/ms-go-refunds/config"
)

const (
	defaultListLimit = int32(100)
	defaultBatchSize = int32(100)

	defaultRefundDescription = "Refund request"
	defaultRefundReason      = "requested_by_customer"
	merchantReferencePrefix  = "refund_"

	chargeStatusCaptured = "CAPTURED"
)

type createRefundRequest interface {
	GetChargeId() string
	GetAmount() decimal.Decimal
	GetCurrency() string
	GetDescription() string
	GetReason() string
	GetMerchantReference() string
	GetMetadata() map[string]string
}

type createPartialRefundRequest interface {
	createRefundRequest
	GetOriginalAmount() *decimal.Decimal
}

type listRefundsRequest interface {
	GetChargeId() string
	GetStatus() string
	GetLimit() int32
	GetOffset() int32
}

type listPaymentsRequest interface {
	GetChargeId() string
	GetStatus() string
	GetLimit() int32
	GetOffset() int32
}

type transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type RefundService struct {
	refundRepo       refundRepository
	paymentRepo      paymentRepository
	eventRepo        refundEventRepository
	txManager        transactor
	providerReg      *provider.Registry
	reconciler       *Reconciler
	normalizer       *webhook.Normalizer
	refundsCfg       config.RefundsConfig
	callbackURL      string
	appAPIKey        string
	notificationHTTP *http.Client
	logger           logrus.FieldLogger
	now              func() time.Time
}

func NewRefundService(
	refundRepo refundRepository,
	paymentRepo paymentRepository,
	eventRepo refundEventRepository,
	txManager transactor,
	providerReg *provider.Registry,
	reconciler *Reconciler,
	refundsCfg config.RefundsConfig,
	callbackURL string,
	appAPIKey string,
) *RefundService {
	timeout := refundsCfg.NotificationHTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &RefundService{
		refundRepo:       refundRepo,
		paymentRepo:      paymentRepo,
		eventRepo:        eventRepo,
		txManager:        txManager,
		providerReg:      providerReg,
		reconciler:       reconciler,
		normalizer:       webhook.NewNormalizer(),
		refundsCfg:       refundsCfg,
		callbackURL:      strings.TrimSpace(callbackURL),
		appAPIKey:        strings.TrimSpace(appAPIKey),
		notificationHTTP: &http.Client{Timeout: timeout},
		logger:           factory.NewModuleLogger("refunds-service"),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// CreateFullRefund refunds a charge that has no succeeded refund yet.
func (s *RefundService) CreateFullRefund(ctx context.Context, req createRefundRequest) (*entity.Refund, error) {
	chargeID, amount, currency, err := refundBasics(req)
	if err != nil {
		return nil, err
	}

	refunded, err := s.refundRepo.ExistsByChargeIDAndStatus(ctx, chargeID, entity.RefundStatusRefunded)
	if err != nil {
		return nil, err
	}
	if refunded {
		return nil, ErrAlreadyRefunded
	}

	return s.initiate(ctx, req, chargeID, amount, currency, entity.RefundTypeFull)
}

// CreatePartialRefund refunds part of a charge. The original charge amount comes
// from the request or, when absent, from the gateway.
func (s *RefundService) CreatePartialRefund(ctx context.Context, req createPartialRefundRequest) (*entity.Refund, error) {
	chargeID, amount, currency, err := refundBasics(req)
	if err != nil {
		return nil, err
	}

	original := req.GetOriginalAmount()
	if original == nil || !original.IsPositive() {
		original = nil
		if charge := s.lookupCharge(ctx, chargeID); charge != nil && charge.Amount.IsPositive() {
			chargeAmount := charge.Amount
			original = &chargeAmount
		}
	}
	if original == nil {
		return nil, ErrOriginalAmountUnresolvable
	}

	refunded, err := s.refundRepo.SumAmountByChargeIDAndStatus(ctx, chargeID, entity.RefundStatusRefunded)
	if err != nil {
		return nil, err
	}
	if refunded.Add(amount).GreaterThan(*original) {
		return nil, fmt.Errorf("%w. Available: %s", ErrAmountExceedsRemaining, original.Sub(refunded).String())
	}

	return s.initiate(ctx, req, chargeID, amount, currency, entity.RefundTypePartial)
}

func (s *RefundService) initiate(
	ctx context.Context,
	req createRefundRequest,
	chargeID string,
	amount decimal.Decimal,
	currency string,
	refundType entity.RefundType,
) (*entity.Refund, error) {
	gateway, err := s.gateway()
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(req.GetDescription())
	if description == "" {
		description = defaultRefundDescription
	}
	reason := strings.TrimSpace(req.GetReason())
	if reason == "" {
		reason = defaultRefundReason
	}
	merchantReference := strings.TrimSpace(req.GetMerchantReference())
	if merchantReference == "" {
		merchantReference = merchantReferencePrefix + uuid.NewString()
	}
	metadata := cloneMetadata(req.GetMetadata())

	logger := s.logger.WithFields(logrus.Fields{
		"charge_id": chargeID,
		"amount":    amount.String(),
		"type":      refundType,
	})

	resource, err := gateway.CreateRefund(ctx, &provider.CreateRefundInput{
		ChargeID:          chargeID,
		Amount:            amount,
		Currency:          currency,
		Description:       description,
		Reason:            reason,
		MerchantReference: merchantReference,
		Metadata:          metadata,
		CallbackURL:       s.callbackURL,
	})
	if err != nil {
		logger.WithError(err).Error("Gateway refund creation failed")
		return nil, err
	}

	status, ok := entity.ParseRefundStatus(resource.Status)
	if !ok {
		logger.WithField("status", resource.Status).Warn("Unrecognized gateway refund status, storing as pending")
		status = entity.RefundStatusPending
	}

	now := s.now()
	refundID := resource.ID
	refund := &entity.Refund{
		RefundID:          &refundID,
		ChargeID:          chargeID,
		Amount:            amount,
		Currency:          currency,
		Type:              refundType,
		Status:            status,
		Reason:            reason,
		Description:       &description,
		MerchantReference: &merchantReference,
		Metadata:          metadata,
		GatewayResponse:   string(resource.Raw),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if status.IsSuccess() {
		refund.CompletedAt = &now
	}
	if status.IsTerminal() {
		markForNotification(refund, now)
	}

	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := s.refundRepo.Create(txCtx, refund); err != nil {
			return err
		}
		payload := string(resource.Raw)
		return s.eventRepo.Create(txCtx, &entity.RefundEvent{
			RefundID:    refund.ID,
			EventType:   entity.RefundEventCreated,
			NewStatus:   refund.Status,
			PayloadJSON: &payload,
			CreatedAt:   now,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrRefundAlreadyExists) {
			// The gateway webhook for this refund was stored first.
			existing, findErr := s.refundRepo.FindByRefundID(ctx, refundID)
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		logger.WithError(err).WithField("refund_id", refundID).Error("Refund accepted by gateway but could not be stored")
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	logger.WithFields(logrus.Fields{
		"refund_id": refundID,
		"status":    refund.Status,
	}).Info("Refund processed successfully")

	if status.IsSuccess() {
		s.reconciler.RollupPayment(ctx, chargeID)
	}

	return refund, nil
}

// GetRefundStatus returns the stored refund, refreshing it from the gateway while it is not terminal.
func (s *RefundService) GetRefundStatus(ctx context.Context, refundID string) (*entity.Refund, error) {
	refundID = strings.TrimSpace(refundID)
	if refundID == "" {
		return nil, ErrInvalidRequest
	}

	refund, err := s.refundRepo.FindByRefundID(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund == nil {
		return nil, ErrRefundNotFound
	}
	if refund.Status.IsTerminal() {
		return refund, nil
	}

	refreshed, err := s.refreshFromGateway(ctx, refund)
	if err != nil {
		s.logger.WithError(err).WithField("refund_id", refundID).Warn("Failed to refresh refund from gateway")
		return refund, nil
	}
	return refreshed, nil
}

func (s *RefundService) ListRefunds(ctx context.Context, req listRefundsRequest) ([]*entity.Refund, error) {
	limit := req.GetLimit()
	if limit <= 0 {
		limit = defaultListLimit
	}

	filter := repository.RefundFilter{
		ChargeID: strings.TrimSpace(req.GetChargeId()),
		Limit:    limit,
		Offset:   req.GetOffset(),
	}
	if raw := strings.TrimSpace(req.GetStatus()); raw != "" {
		status := entity.RefundStatus(strings.ToLower(raw))
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown refund status %q", ErrInvalidRequest, raw)
		}
		filter.Status = status
	}

	return s.refundRepo.List(ctx, filter)
}

func (s *RefundService) ListChargeRefunds(ctx context.Context, chargeID string) ([]*entity.Refund, error) {
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return nil, ErrInvalidRequest
	}
	return s.refundRepo.ListByChargeID(ctx, chargeID)
}

func (s *RefundService) ListPayments(ctx context.Context, req listPaymentsRequest) ([]*entity.Payment, error) {
	limit := req.GetLimit()
	if limit <= 0 {
		limit = defaultListLimit
	}

	return s.paymentRepo.List(ctx, repository.PaymentFilter{
		ChargeID: strings.TrimSpace(req.GetChargeId()),
		Status:   entity.PaymentStatus(strings.ToLower(strings.TrimSpace(req.GetStatus()))),
		Limit:    limit,
		Offset:   req.GetOffset(),
	})
}

// GetRefundSummary checks whether a charge can still be refunded and by how much.
func (s *RefundService) GetRefundSummary(ctx context.Context, chargeID string) (*entity.RefundSummary, error) {
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return nil, ErrInvalidRequest
	}

	summary := &entity.RefundSummary{ChargeID: chargeID}
	charge := s.lookupCharge(ctx, chargeID)
	if charge == nil {
		summary.Reason = "Unable to verify charge details"
		return summary, nil
	}
	summary.Currency = charge.Currency
	summary.OriginalAmount = charge.Amount

	if !strings.EqualFold(charge.Status, chargeStatusCaptured) {
		summary.Reason = "Charge is not captured/completed"
		return summary, nil
	}

	refunded, err := s.refundRepo.SumAmountByChargeIDAndStatus(ctx, chargeID, entity.RefundStatusRefunded)
	if err != nil {
		return nil, err
	}
	summary.RefundedAmount = refunded

	if refunded.GreaterThanOrEqual(charge.Amount) {
		summary.Reason = "Charge has already been fully refunded"
		return summary, nil
	}

	summary.CanRefund = true
	summary.RemainingAmount = charge.Amount.Sub(refunded)
	return summary, nil
}

// SyncChargeRefunds pulls every refund the gateway knows for a charge through the reconciler.
func (s *RefundService) SyncChargeRefunds(ctx context.Context, chargeID string) ([]*entity.Refund, error) {
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return nil, ErrInvalidRequest
	}

	gateway, err := s.gateway()
	if err != nil {
		return nil, err
	}
	resources, err := gateway.ListRefunds(ctx, chargeID)
	if err != nil {
		return nil, err
	}

	var firstErr error
	for _, resource := range resources {
		event, err := s.normalizer.NormalizeResource(resource.Raw)
		if err != nil {
			s.logger.WithError(err).WithField("charge_id", chargeID).Warn("Skipping malformed gateway refund")
			continue
		}
		if event == nil {
			continue
		}
		if event.ChargeID == "" {
			event.ChargeID = chargeID
		}
		if _, err := s.reconciler.Apply(ctx, event); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	return s.refundRepo.ListByChargeID(ctx, chargeID)
}

func (s *RefundService) refreshFromGateway(ctx context.Context, refund *entity.Refund) (*entity.Refund, error) {
	gateway, err := s.gateway()
	if err != nil {
		return nil, err
	}

	resource, err := gateway.GetRefund(ctx, refund.GatewayRefundID())
	if err != nil {
		return nil, err
	}

	event, err := s.normalizer.NormalizeResource(resource.Raw)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return refund, nil
	}
	if event.ChargeID == "" {
		event.ChargeID = refund.ChargeID
	}

	result, err := s.reconciler.Apply(ctx, event)
	if err != nil {
		return nil, err
	}
	if result.Refund == nil {
		return refund, nil
	}
	return result.Refund, nil
}

// lookupCharge fetches a charge from the gateway and records it as a payment
// the first time it is seen. Any failure yields nil.
func (s *RefundService) lookupCharge(ctx context.Context, chargeID string) *provider.ChargeResource {
	gateway, err := s.gateway()
	if err != nil {
		return nil
	}

	charge, err := gateway.GetCharge(ctx, chargeID)
	if err != nil {
		s.logger.WithError(err).WithField("charge_id", chargeID).Warn("Failed to fetch charge from gateway")
		return nil
	}
	if charge.ID == "" {
		charge.ID = chargeID
	}

	s.observePayment(ctx, charge)
	return charge
}

func (s *RefundService) observePayment(ctx context.Context, charge *provider.ChargeResource) {
	existing, err := s.paymentRepo.FindByChargeID(ctx, charge.ID)
	if err != nil || existing != nil {
		return
	}

	now := s.now()
	err = s.paymentRepo.Create(ctx, &entity.Payment{
		ChargeID:        charge.ID,
		Amount:          charge.Amount,
		Currency:        charge.Currency,
		Status:          entity.PaymentStatusFromCharge(charge.Status),
		PaymentMethod:   charge.PaymentMethod,
		GatewayResponse: string(charge.Raw),
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil && !errors.Is(err, repository.ErrPaymentAlreadyExists) {
		s.logger.WithError(err).WithField("charge_id", charge.ID).Warn("Failed to record observed payment")
	}
}

func (s *RefundService) gateway() (provider.Provider, error) {
	p, err := s.providerReg.Get(provider.CodeTap)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}
	return p, nil
}

func (s *RefundService) batchSize() int32 {
	if s.refundsCfg.JobBatchSize > 0 {
		return s.refundsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func refundBasics(req createRefundRequest) (string, decimal.Decimal, string, error) {
	chargeID := strings.TrimSpace(req.GetChargeId())
	amount := req.GetAmount()
	currency := strings.ToUpper(strings.TrimSpace(req.GetCurrency()))
	if chargeID == "" || !amount.IsPositive() || len(currency) != 3 {
		return "", decimal.Zero, "", ErrInvalidRequest
	}
	return chargeID, amount, currency, nil
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
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
