package testutil

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
	"github.com/google/uuid"
)

// --- Order Store Mock ---

// MockOrderStore is an in-memory implementation of order.Store.
type MockOrderStore struct {
	mu     sync.Mutex
	orders map[int64]*order.Order
	Notes  map[int64][]string

	GetFunc                  func(ctx context.Context, id int64) (*order.Order, error)
	FindByTradeReferenceFunc func(ctx context.Context, ref string) (*order.Order, error)
	ListAwaitingPaymentFunc  func(ctx context.Context, f order.SweepFilter) ([]*order.Order, error)
	UpdateFunc               func(ctx context.Context, o *order.Order) error
	AddNoteFunc              func(ctx context.Context, id int64, note string) error
}

func NewMockOrderStore(orders ...*order.Order) *MockOrderStore {
	s := &MockOrderStore{
		orders: make(map[int64]*order.Order),
		Notes:  make(map[int64][]string),
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

// Put registers or replaces an order.
func (m *MockOrderStore) Put(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MockOrderStore) Get(ctx context.Context, id int64) (*order.Order, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockOrderStore) FindByTradeReference(ctx context.Context, ref string) (*order.Order, error) {
	if m.FindByTradeReferenceFunc != nil {
		return m.FindByTradeReferenceFunc(ctx, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.TradeReference() == ref {
			return o, nil
		}
	}
	return nil, domainErrors.ErrOrderNotFound
}

func (m *MockOrderStore) ListAwaitingPayment(ctx context.Context, f order.SweepFilter) ([]*order.Order, error) {
	if m.ListAwaitingPaymentFunc != nil {
		return m.ListAwaitingPaymentFunc(ctx, f)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.Order
	for _, o := range m.orders {
		if !matchesSweep(o, f) {
			continue
		}
		out = append(out, o)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func matchesSweep(o *order.Order, f order.SweepFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if o.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.CreatedAfter.IsZero() && !o.CreatedAt.After(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !o.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

func (m *MockOrderStore) Update(ctx context.Context, o *order.Order) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return domainErrors.ErrOrderNotFound
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MockOrderStore) AddNote(ctx context.Context, id int64, note string) error {
	if m.AddNoteFunc != nil {
		return m.AddNoteFunc(ctx, id, note)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notes[id] = append(m.Notes[id], note)
	return nil
}

// --- Webhook Log Repository Mock ---

// MockWebhookLogRepository is an in-memory implementation of
// webhooklog.Repository.
type MockWebhookLogRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*webhooklog.Entry

	InsertFunc func(ctx context.Context, e *webhooklog.Entry) error
	MarkFunc   func(ctx context.Context, outTradeNo string, status webhooklog.Status, lastError string) error
}

func NewMockWebhookLogRepository() *MockWebhookLogRepository {
	return &MockWebhookLogRepository{entries: make(map[uuid.UUID]*webhooklog.Entry)}
}

func (m *MockWebhookLogRepository) Insert(ctx context.Context, e *webhooklog.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *MockWebhookLogRepository) RecentByReference(ctx context.Context, outTradeNo string, since time.Time) (*webhooklog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *webhooklog.Entry
	for _, e := range m.entries {
		if e.OutTradeNo != outTradeNo || !e.CreatedAt.After(since) {
			continue
		}
		if newest == nil || e.CreatedAt.After(newest.CreatedAt) {
			newest = e
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (m *MockWebhookLogRepository) Refresh(ctx context.Context, id uuid.UUID, requestData, tradeNo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return domainErrors.ErrWebhookLogNotFound
	}
	e.RequestData = requestData
	e.TradeNo = tradeNo
	e.UpdatedAt = time.Now()
	return nil
}

func (m *MockWebhookLogRepository) Mark(ctx context.Context, outTradeNo string, status webhooklog.Status, lastError string) error {
	if m.MarkFunc != nil {
		return m.MarkFunc(ctx, outTradeNo, status, lastError)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *webhooklog.Entry
	for _, e := range m.entries {
		if e.OutTradeNo != outTradeNo {
			continue
		}
		if newest == nil || e.CreatedAt.After(newest.CreatedAt) {
			newest = e
		}
	}
	if newest == nil {
		return domainErrors.ErrWebhookLogNotFound
	}
	newest.Status = status
	newest.LastError = lastError
	if status == webhooklog.StatusFailed {
		newest.RetryCount++
	}
	newest.UpdatedAt = time.Now()
	return nil
}

func (m *MockWebhookLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*webhooklog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, domainErrors.ErrWebhookLogNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockWebhookLogRepository) ListRetryable(ctx context.Context, maxRetries int, updatedBefore time.Time, limit int) ([]*webhooklog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*webhooklog.Entry
	for _, e := range m.entries {
		if e.Status != webhooklog.StatusFailed || e.RetryCount >= maxRetries {
			continue
		}
		if !e.UpdatedAt.Before(updatedBefore) {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockWebhookLogRepository) List(ctx context.Context, f webhooklog.ListFilter) ([]*webhooklog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*webhooklog.Entry
	for _, e := range m.entries {
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockWebhookLogRepository) CountByStatus(ctx context.Context) (map[webhooklog.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[webhooklog.Status]int)
	for _, e := range m.entries {
		counts[e.Status]++
	}
	return counts, nil
}

// All returns a snapshot of every stored entry.
func (m *MockWebhookLogRepository) All() []*webhooklog.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*webhooklog.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out
}
