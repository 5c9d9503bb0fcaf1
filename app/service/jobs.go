package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-refunds/app/entity"
	"github.com/vibast-solutions/ms-go-refunds/app/mapper"
	"github.com/vibast-solutions/ms-go-refunds/app/repository"
	"github.com/vibast-solutions/ms-go-refunds/app/types"
)

// RunRefreshPendingBatch re-reads refunds that have been pending or accepted for
// too long from the gateway and reconciles them.
func (s *RefundService) RunRefreshPendingBatch(ctx context.Context) error {
	before := s.now().Add(-s.refundsCfg.RefreshStaleAfter)
	items, err := s.refundRepo.ListStaleNonTerminal(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, refund := range items {
		if refund == nil || refund.GatewayRefundID() == "" {
			continue
		}
		if _, err := s.refreshFromGateway(ctx, refund); err != nil {
			s.logger.WithError(err).WithField("refund_id", refund.GatewayRefundID()).Warn("Failed to refresh refund")
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *RefundService) RunDispatchNotificationsBatch(ctx context.Context) error {
	now := s.now()
	items, err := s.refundRepo.ListDueNotificationDispatch(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, refund := range items {
		if refund == nil {
			continue
		}
		if err := s.dispatchNotification(ctx, refund, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *RefundService) dispatchNotification(ctx context.Context, refund *entity.Refund, now time.Time) error {
	targetURL := strings.TrimSpace(s.refundsCfg.NotificationURL)
	if targetURL == "" {
		errMsg := "notification url is not configured"
		expectedStatus, expectedAttempts := refund.NotificationStatus, refund.NotificationAttempts
		refund.NotificationStatus = entity.NotificationDeliveryFailed
		refund.NotificationNextAt = nil
		refund.NotificationLastErr = &errMsg
		refund.UpdatedAt = now
		_, err := s.saveNotificationState(ctx, refund, expectedStatus, expectedAttempts)
		return err
	}

	body, err := json.Marshal(&types.RefundEnvelopeResponse{Refund: mapper.RefundToResponse(refund)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return s.recordNotificationFailure(ctx, refund, now, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", fmt.Sprintf("refund-%d-%d", refund.ID, refund.NotificationAttempts+1))
	if s.appAPIKey != "" {
		req.Header.Set("X-API-Key", s.appAPIKey)
	}

	resp, err := s.notificationHTTP.Do(req)
	if err != nil {
		return s.recordNotificationFailure(ctx, refund, now, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.recordNotificationFailure(ctx, refund, now, fmt.Errorf("notification endpoint returned status=%d", resp.StatusCode))
	}

	expectedStatus, expectedAttempts := refund.NotificationStatus, refund.NotificationAttempts
	refund.NotificationStatus = entity.NotificationDeliverySuccess
	refund.NotificationNextAt = nil
	refund.NotificationLastErr = nil
	refund.UpdatedAt = now

	if saved, err := s.saveNotificationState(ctx, refund, expectedStatus, expectedAttempts); err != nil || !saved {
		return err
	}

	_ = s.eventRepo.Create(ctx, &entity.RefundEvent{
		RefundID:  refund.ID,
		EventType: entity.RefundEventNotificationSent,
		NewStatus: refund.Status,
		CreatedAt: now,
	})

	return nil
}

func (s *RefundService) recordNotificationFailure(ctx context.Context, refund *entity.Refund, now time.Time, dispatchErr error) error {
	expectedStatus, expectedAttempts := refund.NotificationStatus, refund.NotificationAttempts
	refund.NotificationAttempts++
	trimmed := truncate(dispatchErr.Error(), 1024)
	refund.NotificationLastErr = &trimmed

	maxAttempts := s.refundsCfg.NotificationMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if refund.NotificationAttempts >= maxAttempts {
		refund.NotificationStatus = entity.NotificationDeliveryFailed
		refund.NotificationNextAt = nil
	} else {
		retryInterval := s.refundsCfg.NotificationRetryInterval
		if retryInterval <= 0 {
			retryInterval = 5 * time.Minute
		}
		next := now.Add(retryInterval)
		refund.NotificationStatus = entity.NotificationDeliveryPending
		refund.NotificationNextAt = &next
	}
	refund.UpdatedAt = now

	if saved, err := s.saveNotificationState(ctx, refund, expectedStatus, expectedAttempts); err != nil || !saved {
		return err
	}

	_ = s.eventRepo.Create(ctx, &entity.RefundEvent{
		RefundID:  refund.ID,
		EventType: entity.RefundEventNotificationFailed,
		NewStatus: refund.Status,
		CreatedAt: now,
	})

	return dispatchErr
}

// saveNotificationState writes the delivery columns unless another dispatcher already moved them on.
func (s *RefundService) saveNotificationState(ctx context.Context, refund *entity.Refund, expectedStatus, expectedAttempts int32) (bool, error) {
	err := s.refundRepo.UpdateNotification(ctx, refund, expectedStatus, expectedAttempts)
	if errors.Is(err, repository.ErrRefundStateChanged) {
		s.logger.WithFields(logrus.Fields{
			"refund_id": refund.GatewayRefundID(),
			"id":        refund.ID,
		}).Warn("Refund notification state changed during dispatch, keeping stored state")
		return false, nil
	}
	return err == nil, err
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
