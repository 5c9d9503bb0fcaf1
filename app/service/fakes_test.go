package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-refunds/app/entity"
	"github.com/vibast-solutions/ms-go-refunds/app/provider"
	"github.com/vibast-solutions/ms-go-refunds/app/queue"
	"github.com/vibast-solutions/ms-go-refunds/app/repository"
)

type fakeRefundRepo struct {
	mu        sync.Mutex
	nextID    uint64
	items     map[string]*entity.Refund
	creates   int
	updates   int
	createErr error
	updateErr error

	// afterFind runs once, outside the lock, right after the next FindByRefundID.
	afterFind func()
}

func newFakeRefundRepo() *fakeRefundRepo {
	return &fakeRefundRepo{nextID: 1, items: map[string]*entity.Refund{}}
}

func copyRefund(in *entity.Refund) *entity.Refund {
	cp := *in
	cp.Metadata = cloneMetadata(in.Metadata)
	return &cp
}

func (r *fakeRefundRepo) Create(_ context.Context, refund *entity.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	key := refund.GatewayRefundID()
	if _, ok := r.items[key]; ok {
		return repository.ErrRefundAlreadyExists
	}
	r.creates++
	refund.ID = r.nextID
	r.nextID++
	r.items[key] = copyRefund(refund)
	return nil
}

func (r *fakeRefundRepo) Update(_ context.Context, refund *entity.Refund, expected entity.RefundStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	key := refund.GatewayRefundID()
	stored, ok := r.items[key]
	if !ok || stored.Status != expected {
		return repository.ErrRefundStateChanged
	}
	r.updates++
	r.items[key] = copyRefund(refund)
	return nil
}

func (r *fakeRefundRepo) UpdateSnapshot(_ context.Context, id uint64, gatewayResponse string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored := r.byID(id)
	if stored == nil {
		return repository.ErrRefundNotFound
	}
	r.updates++
	stored.GatewayResponse = gatewayResponse
	stored.UpdatedAt = updatedAt
	return nil
}

func (r *fakeRefundRepo) UpdateNotification(_ context.Context, refund *entity.Refund, expectedStatus, expectedAttempts int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored := r.byID(refund.ID)
	if stored == nil || stored.NotificationStatus != expectedStatus || stored.NotificationAttempts != expectedAttempts {
		return repository.ErrRefundStateChanged
	}
	r.updates++
	stored.NotificationStatus = refund.NotificationStatus
	stored.NotificationAttempts = refund.NotificationAttempts
	stored.NotificationNextAt = refund.NotificationNextAt
	stored.NotificationLastErr = refund.NotificationLastErr
	stored.UpdatedAt = refund.UpdatedAt
	return nil
}

func (r *fakeRefundRepo) byID(id uint64) *entity.Refund {
	for _, item := range r.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (r *fakeRefundRepo) FindByRefundID(_ context.Context, refundID string) (*entity.Refund, error) {
	r.mu.Lock()
	item, ok := r.items[refundID]
	var out *entity.Refund
	if ok {
		out = copyRefund(item)
	}
	hook := r.afterFind
	r.afterFind = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (r *fakeRefundRepo) sorted() []*entity.Refund {
	out := make([]*entity.Refund, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, copyRefund(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeRefundRepo) ListByChargeID(_ context.Context, chargeID string) ([]*entity.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*entity.Refund{}
	for _, item := range r.sorted() {
		if item.ChargeID == chargeID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *fakeRefundRepo) List(_ context.Context, filter repository.RefundFilter) ([]*entity.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*entity.Refund{}
	for _, item := range r.sorted() {
		if filter.ChargeID != "" && item.ChargeID != filter.ChargeID {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *fakeRefundRepo) SumAmountByChargeIDAndStatus(_ context.Context, chargeID string, status entity.RefundStatus) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, item := range r.items {
		if item.ChargeID == chargeID && item.Status == status {
			total = total.Add(item.Amount)
		}
	}
	return total, nil
}

func (r *fakeRefundRepo) ExistsByChargeIDAndStatus(_ context.Context, chargeID string, status entity.RefundStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.ChargeID == chargeID && item.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRefundRepo) ListDueNotificationDispatch(_ context.Context, now time.Time, limit int32) ([]*entity.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*entity.Refund{}
	for _, item := range r.sorted() {
		if item.NotificationStatus != entity.NotificationDeliveryPending || item.NotificationNextAt == nil || item.NotificationNextAt.After(now) {
			continue
		}
		out = append(out, item)
		if int32(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRefundRepo) ListStaleNonTerminal(_ context.Context, before time.Time, limit int32) ([]*entity.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*entity.Refund{}
	for _, item := range r.sorted() {
		if item.Status.IsTerminal() || !item.UpdatedAt.Before(before) {
			continue
		}
		out = append(out, item)
		if int32(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRefundRepo) put(refund *entity.Refund) *entity.Refund {
	r.mu.Lock()
	defer r.mu.Unlock()
	refund.ID = r.nextID
	r.nextID++
	r.items[refund.GatewayRefundID()] = copyRefund(refund)
	return refund
}

// replace overwrites a stored row without any guard.
func (r *fakeRefundRepo) replace(refund *entity.Refund) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[refund.GatewayRefundID()] = copyRefund(refund)
}

func (r *fakeRefundRepo) get(refundID string) *entity.Refund {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[refundID]
	if !ok {
		return nil
	}
	return copyRefund(item)
}

type fakePaymentRepo struct {
	mu      sync.Mutex
	nextID  uint64
	items   map[string]*entity.Payment
	updates int
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{nextID: 1, items: map[string]*entity.Payment{}}
}

func (r *fakePaymentRepo) Create(_ context.Context, payment *entity.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[payment.ChargeID]; ok {
		return repository.ErrPaymentAlreadyExists
	}
	payment.ID = r.nextID
	r.nextID++
	cp := *payment
	r.items[payment.ChargeID] = &cp
	return nil
}

func (r *fakePaymentRepo) Update(_ context.Context, payment *entity.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[payment.ChargeID]; !ok {
		return repository.ErrPaymentNotFound
	}
	r.updates++
	cp := *payment
	r.items[payment.ChargeID] = &cp
	return nil
}

func (r *fakePaymentRepo) FindByChargeID(_ context.Context, chargeID string) (*entity.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[chargeID]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (r *fakePaymentRepo) List(_ context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*entity.Payment{}
	for _, item := range r.items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePaymentRepo) get(chargeID string) *entity.Payment {
	item, _ := r.FindByChargeID(context.Background(), chargeID)
	return item
}

type fakeEventRepo struct {
	mu    sync.Mutex
	items []*entity.RefundEvent
}

func (r *fakeEventRepo) Create(_ context.Context, event *entity.RefundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *event
	r.items = append(r.items, &cp)
	return nil
}

func (r *fakeEventRepo) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item.EventType)
	}
	return out
}

type fakeTxManager struct{}

func (fakeTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeDeliveryRepo struct {
	mu     sync.Mutex
	nextID uint64
	items  map[uint64]*entity.WebhookDelivery
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{nextID: 1, items: map[uint64]*entity.WebhookDelivery{}}
}

func (r *fakeDeliveryRepo) Create(_ context.Context, delivery *entity.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delivery.ID = r.nextID
	r.nextID++
	cp := *delivery
	r.items[delivery.ID] = &cp
	return nil
}

func (r *fakeDeliveryRepo) UpdateStatus(_ context.Context, delivery *entity.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[delivery.ID]
	if !ok {
		return errors.New("webhook delivery not found")
	}
	item.Status = delivery.Status
	item.Error = delivery.Error
	if delivery.RefundID != nil {
		item.RefundID = delivery.RefundID
	}
	return nil
}

func (r *fakeDeliveryRepo) all() []*entity.WebhookDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.WebhookDelivery, 0, len(r.items))
	for id := uint64(1); id < r.nextID; id++ {
		if item, ok := r.items[id]; ok {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out
}

func (r *fakeDeliveryRepo) statuses() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int32, 0, len(r.items))
	for id := uint64(1); id < r.nextID; id++ {
		if item, ok := r.items[id]; ok {
			out = append(out, item.Status)
		}
	}
	return out
}

type fakeGateway struct {
	createCalls int
	lastCreate  *provider.CreateRefundInput
	createOut   *provider.RefundResource
	createErr   error

	refunds   map[string]*provider.RefundResource
	getErr    error
	charge    *provider.ChargeResource
	chargeErr error
	list      []*provider.RefundResource
	listErr   error
}

func (g *fakeGateway) Code() string {
	return provider.CodeTap
}

func (g *fakeGateway) CreateRefund(_ context.Context, input *provider.CreateRefundInput) (*provider.RefundResource, error) {
	g.createCalls++
	g.lastCreate = input
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.createOut, nil
}

func (g *fakeGateway) GetRefund(_ context.Context, refundID string) (*provider.RefundResource, error) {
	if g.getErr != nil {
		return nil, g.getErr
	}
	item, ok := g.refunds[refundID]
	if !ok {
		return nil, &provider.Error{StatusCode: 404, Message: "refund not found"}
	}
	return item, nil
}

func (g *fakeGateway) GetCharge(_ context.Context, _ string) (*provider.ChargeResource, error) {
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	if g.charge == nil {
		return nil, &provider.Error{StatusCode: 404, Message: "charge not found"}
	}
	return g.charge, nil
}

func (g *fakeGateway) ListRefunds(_ context.Context, _ string) ([]*provider.RefundResource, error) {
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.list, nil
}

type fakeQueue struct {
	jobs []*queue.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job *queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func fixedClock() func() time.Time {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func strPtr(v string) *string {
	return &v
}
