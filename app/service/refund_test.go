package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibast-solutions/ms-go-refunds/app/entity"
	"github.com/vibast-solutions/ms-go-refunds/app/provider"
	"github.com/vibast-solutions/ms-go-refunds/app/types"
	"github.com/vibast-solutions/ms-go-refunds/config"
)

type refundServiceFixture struct {
	refunds  *fakeRefundRepo
	payments *fakePaymentRepo
	events   *fakeEventRepo
	gateway  *fakeGateway
	svc      *RefundService
}

func newRefundServiceForTest(t *testing.T, cfg config.RefundsConfig) *refundServiceFixture {
	t.Helper()
	f := &refundServiceFixture{
		refunds:  newFakeRefundRepo(),
		payments: newFakePaymentRepo(),
		events:   &fakeEventRepo{},
		gateway:  &fakeGateway{refunds: map[string]*provider.RefundResource{}},
	}
	reconciler := NewReconciler(f.refunds, f.payments, f.events)
	reconciler.now = fixedClock()
	f.svc = NewRefundService(
		f.refunds,
		f.payments,
		f.events,
		fakeTxManager{},
		provider.NewRegistry(f.gateway),
		reconciler,
		cfg,
		"https://refunds.internal/webhooks/providers/tap/refunds",
		"app-key",
	)
	f.svc.now = fixedClock()
	return f
}

func (f *refundServiceFixture) seedRefund(chargeID, refundID, amount string, status entity.RefundStatus) *entity.Refund {
	id := refundID
	return f.refunds.put(&entity.Refund{
		RefundID:  &id,
		ChargeID:  chargeID,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "KWD",
		Type:      entity.RefundTypePartial,
		Status:    status,
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
}

func createRequest(chargeID, amount string) *types.CreateRefundRequest {
	return &types.CreateRefundRequest{
		ChargeId: chargeID,
		Amount:   decimal.RequireFromString(amount),
		Currency: "KWD",
	}
}

func TestCreateFullRefundStoresGatewayRefund(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.gateway.createOut = &provider.RefundResource{
		ID:     "ref_1",
		Status: "PENDING",
		Raw:    []byte(`{"id":"ref_1","status":"PENDING"}`),
	}

	refund, err := f.svc.CreateFullRefund(context.Background(), createRequest("chg_1", "100"))
	require.NoError(t, err)
	assert.Equal(t, "ref_1", refund.GatewayRefundID())
	assert.Equal(t, entity.RefundTypeFull, refund.Type)
	assert.Equal(t, entity.RefundStatusPending, refund.Status)
	assert.Equal(t, "requested_by_customer", refund.Reason)
	require.NotNil(t, refund.Description)
	assert.Equal(t, "Refund request", *refund.Description)
	require.NotNil(t, refund.MerchantReference)
	assert.True(t, strings.HasPrefix(*refund.MerchantReference, "refund_"))

	require.Equal(t, 1, f.gateway.createCalls)
	assert.Equal(t, "https://refunds.internal/webhooks/providers/tap/refunds", f.gateway.lastCreate.CallbackURL)
	assert.Equal(t, "KWD", f.gateway.lastCreate.Currency)
	assert.NotNil(t, f.refunds.get("ref_1"))
	assert.Equal(t, []string{entity.RefundEventCreated}, f.events.types())
}

func TestCreateFullRefundRejectsAlreadyRefundedCharge(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.seedRefund("chg_1", "ref_old", "100", entity.RefundStatusRefunded)

	_, err := f.svc.CreateFullRefund(context.Background(), createRequest("chg_1", "100"))
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
	assert.Zero(t, f.gateway.createCalls)
	assert.Zero(t, f.refunds.creates)
}

func TestCreatePartialRefundRejectsAmountOverRemaining(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.seedRefund("chg_1", "ref_a", "60.5", entity.RefundStatusRefunded)
	f.seedRefund("chg_1", "ref_b", "20", entity.RefundStatusFailed)

	req := createRequest("chg_1", "40")
	original := decimal.NewFromInt(100)
	req.OriginalAmount = &original

	_, err := f.svc.CreatePartialRefund(context.Background(), req)
	require.ErrorIs(t, err, ErrAmountExceedsRemaining)
	assert.Contains(t, err.Error(), "Available: 39.5")
	assert.Zero(t, f.gateway.createCalls)
}

func TestCreatePartialRefundResolvesOriginalAmountFromGateway(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.seedRefund("chg_1", "ref_a", "60", entity.RefundStatusRefunded)
	f.gateway.charge = &provider.ChargeResource{
		ID:       "chg_1",
		Amount:   decimal.NewFromInt(100),
		Currency: "KWD",
		Status:   "CAPTURED",
	}
	f.gateway.createOut = &provider.RefundResource{ID: "ref_2", Status: "PENDING", Raw: []byte(`{"id":"ref_2"}`)}

	refund, err := f.svc.CreatePartialRefund(context.Background(), createRequest("chg_1", "40"))
	require.NoError(t, err)
	assert.Equal(t, entity.RefundTypePartial, refund.Type)
	assert.Equal(t, 1, f.gateway.createCalls)

	payment := f.payments.get("chg_1")
	require.NotNil(t, payment, "observed charge should be recorded as a payment")
	assert.Equal(t, entity.PaymentStatusSucceeded, payment.Status)
}

func TestCreatePartialRefundFailsWhenOriginalAmountUnknown(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.gateway.chargeErr = &provider.Error{Message: "Service unavailable: timeout", Unavailable: true}

	_, err := f.svc.CreatePartialRefund(context.Background(), createRequest("chg_1", "10"))
	assert.ErrorIs(t, err, ErrOriginalAmountUnresolvable)
	assert.Zero(t, f.gateway.createCalls)
}

func TestCreateRefundGatewayFailureStoresNothing(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.gateway.createErr = &provider.Error{StatusCode: 400, Message: "Refund amount is invalid"}

	_, err := f.svc.CreateFullRefund(context.Background(), createRequest("chg_1", "100"))
	var gatewayErr *provider.Error
	require.True(t, errors.As(err, &gatewayErr))
	assert.Equal(t, "Refund amount is invalid", gatewayErr.Message)
	assert.Zero(t, f.refunds.creates)
}

func TestCreateRefundPersistenceFailureAfterGatewaySuccess(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.gateway.createOut = &provider.RefundResource{ID: "ref_1", Status: "PENDING"}
	f.refunds.createErr = errors.New("connection reset")

	_, err := f.svc.CreateFullRefund(context.Background(), createRequest("chg_1", "100"))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1, f.gateway.createCalls)
}

func TestCreateRefundReturnsRowStoredByEarlierWebhook(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	existing := f.seedRefund("chg_1", "ref_1", "100", entity.RefundStatusAccepted)
	f.gateway.createOut = &provider.RefundResource{ID: "ref_1", Status: "PENDING"}

	refund, err := f.svc.CreateFullRefund(context.Background(), createRequest("chg_1", "100"))
	require.NoError(t, err)
	assert.Equal(t, existing.ID, refund.ID)
	assert.Equal(t, entity.RefundStatusAccepted, refund.Status)
}

func TestCreateRefundRejectsNonPositiveAmount(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})

	_, err := f.svc.CreateFullRefund(context.Background(), createRequest("chg_1", "0"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, f.gateway.createCalls)
}

func TestGetRefundStatus(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})

	_, err := f.svc.GetRefundStatus(context.Background(), "ref_missing")
	assert.ErrorIs(t, err, ErrRefundNotFound)

	f.seedRefund("chg_1", "ref_done", "10", entity.RefundStatusRefunded)
	f.gateway.getErr = errors.New("must not be called")
	done, err := f.svc.GetRefundStatus(context.Background(), "ref_done")
	require.NoError(t, err)
	assert.Equal(t, entity.RefundStatusRefunded, done.Status)
}

func TestGetRefundStatusRefreshesPendingRefund(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.seedRefund("chg_1", "ref_1", "10", entity.RefundStatusPending)
	f.gateway.refunds["ref_1"] = &provider.RefundResource{
		ID:     "ref_1",
		Status: "REFUNDED",
		Raw:    []byte(`{"id":"ref_1","object":"refund","charge":{"id":"chg_1"},"amount":10,"currency":"KWD","status":"REFUNDED"}`),
	}

	refund, err := f.svc.GetRefundStatus(context.Background(), "ref_1")
	require.NoError(t, err)
	assert.Equal(t, entity.RefundStatusRefunded, refund.Status)
	assert.Equal(t, entity.RefundStatusRefunded, f.refunds.get("ref_1").Status)
}

func TestGetRefundStatusFallsBackToStoredRowOnGatewayError(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.seedRefund("chg_1", "ref_1", "10", entity.RefundStatusPending)
	f.gateway.getErr = &provider.Error{Message: "Service unavailable: timeout", Unavailable: true}

	refund, err := f.svc.GetRefundStatus(context.Background(), "ref_1")
	require.NoError(t, err)
	assert.Equal(t, entity.RefundStatusPending, refund.Status)
}

func TestGetRefundSummary(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.seedRefund("chg_1", "ref_a", "30", entity.RefundStatusRefunded)
	f.gateway.charge = &provider.ChargeResource{ID: "chg_1", Amount: decimal.NewFromInt(100), Currency: "KWD", Status: "CAPTURED"}

	summary, err := f.svc.GetRefundSummary(context.Background(), "chg_1")
	require.NoError(t, err)
	assert.True(t, summary.CanRefund)
	assert.Equal(t, "70", summary.RemainingAmount.String())
	assert.Equal(t, "30", summary.RefundedAmount.String())

	f.gateway.charge.Status = "INITIATED"
	summary, err = f.svc.GetRefundSummary(context.Background(), "chg_1")
	require.NoError(t, err)
	assert.False(t, summary.CanRefund)
	assert.Equal(t, "Charge is not captured/completed", summary.Reason)
}

func TestGetRefundSummaryFullyRefunded(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.seedRefund("chg_1", "ref_a", "100", entity.RefundStatusRefunded)
	f.gateway.charge = &provider.ChargeResource{ID: "chg_1", Amount: decimal.NewFromInt(100), Currency: "KWD", Status: "CAPTURED"}

	summary, err := f.svc.GetRefundSummary(context.Background(), "chg_1")
	require.NoError(t, err)
	assert.False(t, summary.CanRefund)
	assert.Equal(t, "Charge has already been fully refunded", summary.Reason)
}

func TestSyncChargeRefundsAdoptsGatewayRefunds(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.seedRefund("chg_1", "ref_1", "10", entity.RefundStatusPending)
	f.gateway.list = []*provider.RefundResource{
		{ID: "ref_1", Raw: []byte(`{"id":"ref_1","object":"refund","amount":10,"currency":"KWD","status":"REFUNDED"}`)},
		{ID: "ref_2", Raw: []byte(`{"id":"ref_2","object":"refund","amount":5.5,"currency":"KWD","status":"PENDING"}`)},
		{ID: "bad", Raw: []byte(`not json`)},
	}

	items, err := f.svc.SyncChargeRefunds(context.Background(), "chg_1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, entity.RefundStatusRefunded, f.refunds.get("ref_1").Status)

	adopted := f.refunds.get("ref_2")
	require.NotNil(t, adopted)
	assert.Equal(t, "chg_1", adopted.ChargeID)
	assert.Equal(t, "5.5", adopted.Amount.String())
}

func TestListRefundsRejectsUnknownStatus(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})

	_, err := f.svc.ListRefunds(context.Background(), &types.ListRefundsRequest{Status: "lost"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestListRefundsFiltersByStatus(t *testing.T) {
	f := newRefundServiceForTest(t, config.RefundsConfig{})
	f.seedRefund("chg_1", "ref_a", "10", entity.RefundStatusRefunded)
	f.seedRefund("chg_1", "ref_b", "10", entity.RefundStatusPending)

	items, err := f.svc.ListRefunds(context.Background(), &types.ListRefundsRequest{Status: "refunded"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ref_a", items[0].GatewayRefundID())
}
