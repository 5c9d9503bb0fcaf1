package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibast-solutions/ms-go-refunds/app/entity"
	"github.com/vibast-solutions/ms-go-refunds/app/provider"
	"github.com/vibast-solutions/ms-go-refunds/app/types"
	"github.com/vibast-solutions/ms-go-refunds/config"
)

func markDue(f *refundServiceFixture, refundID string) {
	refund := f.refunds.get(refundID)
	due := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	refund.NotificationStatus = entity.NotificationDeliveryPending
	refund.NotificationNextAt = &due
	f.refunds.replace(refund)
}

func TestRunDispatchNotificationsBatchDeliversEnvelope(t *testing.T) {
	var received types.RefundEnvelopeResponse
	var requestID, apiKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = r.Header.Get("X-Request-ID")
		apiKey = r.Header.Get("X-API-Key")
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	f := newRefundServiceForTest(t, config.RefundsConfig{NotificationURL: server.URL, NotificationMaxAttempts: 3})
	seeded := f.seedRefund("chg_1", "ref_1", "40", entity.RefundStatusRefunded)
	markDue(f, "ref_1")

	require.NoError(t, f.svc.RunDispatchNotificationsBatch(context.Background()))

	require.NotNil(t, received.Refund)
	assert.Equal(t, "ref_1", received.Refund.RefundId)
	assert.Equal(t, "refunded", received.Refund.Status)
	assert.Equal(t, "40", received.Refund.Amount)
	assert.Equal(t, "refund-"+strconv.FormatUint(seeded.ID, 10)+"-1", requestID)
	assert.Equal(t, "app-key", apiKey)

	stored := f.refunds.get("ref_1")
	assert.Equal(t, entity.NotificationDeliverySuccess, stored.NotificationStatus)
	assert.Nil(t, stored.NotificationNextAt)
	assert.Contains(t, f.events.types(), entity.RefundEventNotificationSent)

	// Delivered notifications are not picked up again.
	received = types.RefundEnvelopeResponse{}
	require.NoError(t, f.svc.RunDispatchNotificationsBatch(context.Background()))
	assert.Nil(t, received.Refund)
}

func TestRunDispatchNotificationsBatchRetriesThenFails(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := newRefundServiceForTest(t, config.RefundsConfig{
		NotificationURL:           server.URL,
		NotificationMaxAttempts:   2,
		NotificationRetryInterval: 10 * time.Minute,
	})
	f.seedRefund("chg_1", "ref_1", "40", entity.RefundStatusFailed)
	markDue(f, "ref_1")

	err := f.svc.RunDispatchNotificationsBatch(context.Background())
	require.Error(t, err)
	stored := f.refunds.get("ref_1")
	assert.Equal(t, entity.NotificationDeliveryPending, stored.NotificationStatus)
	assert.Equal(t, int32(1), stored.NotificationAttempts)
	require.NotNil(t, stored.NotificationNextAt)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC), *stored.NotificationNextAt)

	markDue(f, "ref_1")
	require.Error(t, f.svc.RunDispatchNotificationsBatch(context.Background()))
	stored = f.refunds.get("ref_1")
	assert.Equal(t, entity.NotificationDeliveryFailed, stored.NotificationStatus)
	assert.Equal(t, int32(2), stored.NotificationAttempts)
	assert.Nil(t, stored.NotificationNextAt)
	require.NotNil(t, stored.NotificationLastErr)
	assert.Contains(t, *stored.NotificationLastErr, "status=502")
	assert.Equal(t, 2, calls)
}

func TestRunDispatchNotificationsBatchWithoutURLMarksFailed(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.seedRefund("chg_1", "ref_1", "40", entity.RefundStatusRefunded)
	markDue(f, "ref_1")

	require.NoError(t, f.svc.RunDispatchNotificationsBatch(context.Background()))
	assert.Equal(t, entity.NotificationDeliveryFailed, f.refunds.get("ref_1").NotificationStatus)
}

func TestRunRefreshPendingBatchReconcilesStaleRefunds(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{RefreshStaleAfter: 15 * time.Minute})
	f.seedRefund("chg_1", "ref_1", "10", entity.RefundStatusPending)
	f.seedRefund("chg_1", "ref_2", "10", entity.RefundStatusRefunded)
	f.gateway.refunds["ref_1"] = &provider.RefundResource{
		ID:  "ref_1",
		Raw: []byte(`{"id":"ref_1","object":"refund","amount":10,"currency":"KWD","status":"DECLINED"}`),
	}

	require.NoError(t, f.svc.RunRefreshPendingBatch(context.Background()))

	stored := f.refunds.get("ref_1")
	assert.Equal(t, entity.RefundStatusDeclined, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Equal(t, entity.NotificationDeliveryPending, stored.NotificationStatus)
}

func TestRunRefreshPendingBatchReportsGatewayErrors(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{RefreshStaleAfter: 15 * time.Minute})
	f.seedRefund("chg_1", "ref_1", "10", entity.RefundStatusAccepted)

	err := f.svc.RunRefreshPendingBatch(context.Background())
	assert.Error(t, err)
	assert.Equal(t, entity.RefundStatusAccepted, f.refunds.get("ref_1").Status)
}

func TestRunDispatchNotificationsBatchKeepsSnapshotWrittenDuringDelivery(t *testing.T) {
	var f *refundServiceFixture
	conflicting := mustNormalize(t, failedRefund)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = f.svc.reconciler.Apply(context.Background(), conflicting)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f = newRefundServiceForTest(t, config.RefundsConfig{NotificationURL: server.URL, NotificationMaxAttempts: 3})
	f.seedRefund("chg_1", "ref_1", "40", entity.RefundStatusRefunded)
	markDue(f, "ref_1")

	require.NoError(t, f.svc.RunDispatchNotificationsBatch(context.Background()))

	stored := f.refunds.get("ref_1")
	assert.Equal(t, entity.RefundStatusRefunded, stored.Status)
	assert.Equal(t, failedRefund, stored.GatewayResponse)
	assert.Equal(t, entity.NotificationDeliverySuccess, stored.NotificationStatus)
}

func TestNotificationIsSentOnceWhenWebhookRacesDispatcher(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newRefundServiceForTest(t, config.RefundsConfig{NotificationURL: server.URL, NotificationMaxAttempts: 3})
	f.seedRefund("chg_1", "ref_1", "40", entity.RefundStatusRefunded)
	markDue(f, "ref_1")

	// The dispatcher delivers between the reconciler's read and its write.
	f.refunds.afterFind = func() {
		require.NoError(t, f.svc.RunDispatchNotificationsBatch(context.Background()))
	}
	result, err := f.svc.reconciler.Apply(context.Background(), mustNormalize(t, pendingRefund))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, result.Outcome)

	stored := f.refunds.get("ref_1")
	assert.Equal(t, entity.NotificationDeliverySuccess, stored.NotificationStatus)
	assert.Equal(t, pendingRefund, stored.GatewayResponse)

	require.NoError(t, f.svc.RunDispatchNotificationsBatch(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestRunDispatchNotificationsBatchSkipsRowClaimedByAnotherDispatcher(t *testing.T) {
	var f *refundServiceFixture
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		claimed := f.refunds.get("ref_1")
		claimed.NotificationStatus = entity.NotificationDeliverySuccess
		claimed.NotificationNextAt = nil
		f.refunds.replace(claimed)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f = newRefundServiceForTest(t, config.RefundsConfig{NotificationURL: server.URL, NotificationMaxAttempts: 3})
	f.seedRefund("chg_1", "ref_1", "40", entity.RefundStatusRefunded)
	markDue(f, "ref_1")

	require.NoError(t, f.svc.RunDispatchNotificationsBatch(context.Background()))

	stored := f.refunds.get("ref_1")
	assert.Equal(t, entity.NotificationDeliverySuccess, stored.NotificationStatus)
	assert.Zero(t, stored.NotificationAttempts)
	assert.NotContains(t, f.events.types(), entity.RefundEventNotificationFailed)
}
