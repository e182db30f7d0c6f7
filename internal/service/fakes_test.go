package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"water-service/internal/models"
)

// memLedger is an in-memory ledger with the same conditional-update
// semantics as the SQL store. One mutex makes every method atomic.
type memLedger struct {
	mu sync.Mutex

	orders   map[string]*models.Order
	items    map[string][]models.OrderItem
	products map[int64]models.Product
	address  map[int64]models.Address
	branches map[int64]models.Branch
	drivers  map[int64]models.Driver
	firms    map[int64]*models.Firm
	payments map[int64]*models.Payment
	nextID   int64
	// creation clock, one second per order so FIFO order is unambiguous
	tick time.Time
	// number of subscription activations written
	activations int
}

func newMemLedger() *memLedger {
	return &memLedger{
		orders:   make(map[string]*models.Order),
		items:    make(map[string][]models.OrderItem),
		products: make(map[int64]models.Product),
		address:  make(map[int64]models.Address),
		branches: make(map[int64]models.Branch),
		drivers:  make(map[int64]models.Driver),
		firms:    make(map[int64]*models.Firm),
		payments: make(map[int64]*models.Payment),
		tick:     testNow,
	}
}

func (m *memLedger) id() int64 {
	m.nextID++
	return m.nextID
}

func cp[T any](v *T) *T {
	c := *v
	return &c
}

func orderMissing(id string) error { return fmt.Errorf("order %s: %w", id, models.ErrNotFound) }

// orders

func (m *memLedger) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.CreatedAt = m.tick
	order.UpdatedAt = m.tick
	m.tick = m.tick.Add(time.Second)
	m.orders[order.ID] = cp(order)
	for i := range items {
		items[i].ID = m.id()
		items[i].OrderID = order.ID
	}
	m.items[order.ID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (m *memLedger) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, orderMissing(id)
	}
	return cp(o), nil
}

func (m *memLedger) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderItem(nil), m.items[orderID]...), nil
}

func (m *memLedger) CountOrdersSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if !o.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memLedger) ClaimOrder(ctx context.Context, orderID string, driverID int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, orderMissing(orderID)
	}
	if o.DriverID != nil || !o.Stage.IsQueued() {
		return nil, fmt.Errorf("order %s: %w", orderID, models.ErrConflict)
	}
	o.DriverID = &driverID
	o.Stage = models.StageConfirmed
	o.UpdatedAt = time.Now()
	return cp(o), nil
}

func (m *memLedger) UpdateOrderStage(ctx context.Context, orderID string, from, to models.OrderStage) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Stage != from {
		return nil, models.ErrStaleTransition
	}
	o.Stage = to
	return cp(o), nil
}

func (m *memLedger) CancelOrder(ctx context.Context, orderID, reason string, at time.Time) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, orderMissing(orderID)
	}
	if o.Stage.IsTerminal() {
		return nil, fmt.Errorf("order %s: %w", orderID, models.ErrConflict)
	}
	o.Stage = models.StageCancelled
	o.CancelledAt = &at
	o.CancelReason = &reason
	return cp(o), nil
}

func (m *memLedger) ListQueuedOrders(ctx context.Context, firmID int64) ([]models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.QueueEntry
	for _, o := range m.orders {
		if o.FirmID == firmID && o.DriverID == nil && o.Stage.IsQueued() {
			out = append(out, models.QueueEntry{OrderID: o.ID, CreatedAt: o.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// catalog and drivers

func (m *memLedger) GetProductsByIDs(ctx context.Context, firmID int64, ids []int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok && p.FirmID == firmID && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memLedger) GetAddress(ctx context.Context, id int64) (*models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.address[id]
	if !ok {
		return nil, fmt.Errorf("address %d: %w", id, models.ErrNotFound)
	}
	return &a, nil
}

func (m *memLedger) GetBranch(ctx context.Context, id int64) (*models.Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[id]
	if !ok {
		return nil, fmt.Errorf("branch %d: %w", id, models.ErrNotFound)
	}
	return &b, nil
}

func (m *memLedger) GetDriverByID(ctx context.Context, id int64) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, fmt.Errorf("driver %d: %w", id, models.ErrNotFound)
	}
	return &d, nil
}

func (m *memLedger) GetDriverByAccountID(ctx context.Context, accountID int64) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drivers {
		if d.UserID == accountID {
			d := d
			return &d, nil
		}
	}
	return nil, fmt.Errorf("driver account %d: %w", accountID, models.ErrNotFound)
}

// payments

func (m *memLedger) CreatePayment(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment.ID = m.id()
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	m.payments[payment.ID] = cp(payment)
	return nil
}

func (m *memLedger) GetPaymentByTransactionID(ctx context.Context, txID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.TransactionID == txID {
			return cp(p), nil
		}
	}
	return nil, fmt.Errorf("payment %s: %w", txID, models.ErrNotFound)
}

func (m *memLedger) GetPaymentByExternalID(ctx context.Context, provider models.PaymentProvider, externalID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Provider == provider && p.ExternalID != nil && *p.ExternalID == externalID {
			return cp(p), nil
		}
	}
	return nil, fmt.Errorf("payment %s: %w", externalID, models.ErrNotFound)
}

func (m *memLedger) ListPaymentsByFirm(ctx context.Context, firmID int64) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.FirmID == firmID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func statusIn(s models.PaymentStatus, from []models.PaymentStatus) bool {
	for _, f := range from {
		if s == f {
			return true
		}
	}
	return false
}

func (m *memLedger) TransitionPayment(ctx context.Context, id int64, from []models.PaymentStatus, to models.PaymentStatus, change models.PaymentChange) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || !statusIn(p.Status, from) {
		return nil, models.ErrStaleTransition
	}
	p.Status = to
	if change.ExternalID != nil {
		p.ExternalID = change.ExternalID
	}
	if change.ErrorMessage != nil {
		p.ErrorMessage = change.ErrorMessage
	}
	at := change.At
	switch to {
	case models.PaymentStatusProcessing:
		p.ProcessingAt = &at
	case models.PaymentStatusCancelled:
		p.CancelledAt = &at
	}
	return cp(p), nil
}

func (m *memLedger) CompletePayment(ctx context.Context, id int64, from []models.PaymentStatus, change models.PaymentChange, act *models.Activation) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || !statusIn(p.Status, from) {
		return nil, models.ErrStaleTransition
	}
	if act != nil {
		f, ok := m.firms[act.FirmID]
		if !ok {
			return nil, fmt.Errorf("firm %d: %w", act.FirmID, models.ErrNotFound)
		}
		until := act.Until
		f.SubscriptionStatus = models.SubscriptionStatus(act.Plan)
		f.TrialEndAt = &until
		m.activations++
	}
	at := change.At
	p.Status = models.PaymentStatusCompleted
	p.CompletedAt = &at
	return cp(p), nil
}

// firms

func (m *memLedger) GetFirm(ctx context.Context, id int64) (*models.Firm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.firms[id]
	if !ok {
		return nil, fmt.Errorf("firm %d: %w", id, models.ErrNotFound)
	}
	return cp(f), nil
}

func (m *memLedger) ExpireTrial(ctx context.Context, firmID int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.firms[firmID]
	if !ok || f.SubscriptionStatus != models.SubscriptionTrialActive {
		return false, nil
	}
	if f.TrialEndAt != nil && f.TrialEndAt.After(now) {
		return false, nil
	}
	f.SubscriptionStatus = models.SubscriptionTrialExpired
	return true, nil
}

func (m *memLedger) StartTrial(ctx context.Context, firmID int64, start, end time.Time) (*models.Firm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.firms[firmID]
	if !ok || f.TrialStartAt != nil || f.SubscriptionStatus.IsPaid() {
		return nil, models.ErrStaleTransition
	}
	f.SubscriptionStatus = models.SubscriptionTrialActive
	f.TrialStartAt = &start
	f.TrialEndAt = &end
	return cp(f), nil
}

// memCache is an AccessCache without expiry
type memCache struct {
	mu      sync.Mutex
	entries map[int64]models.AccessStatus
	ttls    map[int64]time.Duration
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[int64]models.AccessStatus), ttls: make(map[int64]time.Duration)}
}

func (c *memCache) GetAccessStatus(ctx context.Context, firmID int64) (*models.AccessStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.entries[firmID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (c *memCache) SetAccessStatus(ctx context.Context, status *models.AccessStatus, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[status.FirmID] = *status
	c.ttls[status.FirmID] = ttl
	return nil
}

func (c *memCache) InvalidateAccessStatus(ctx context.Context, firmID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, firmID)
	return nil
}

// recordingEvents captures published events
type recordingEvents struct {
	mu        sync.Mutex
	stages    []models.OrderStageChangedEvent
	completed []models.PaymentCompletedEvent
	activated []models.SubscriptionActivatedEvent
	err       error
}

func (r *recordingEvents) PublishOrderStageChanged(ctx context.Context, e *models.OrderStageChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, *e)
	return r.err
}

func (r *recordingEvents) PublishPaymentCompleted(ctx context.Context, e *models.PaymentCompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, *e)
	return r.err
}

func (r *recordingEvents) PublishSubscriptionActivated(ctx context.Context, e *models.SubscriptionActivatedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activated = append(r.activated, *e)
	return r.err
}

func (r *recordingEvents) triggers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.stages))
	for i, e := range r.stages {
		out[i] = e.Trigger
	}
	return out
}

func (r *recordingEvents) activations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activated)
}
