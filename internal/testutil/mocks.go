package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/felixhub/workshop/internal/domain/errors"
	"github.com/felixhub/workshop/internal/domain/notification"
	"github.com/felixhub/workshop/internal/domain/order"
	"github.com/felixhub/workshop/internal/domain/outbox"
	"github.com/felixhub/workshop/internal/infrastructure/telegram"
	"github.com/google/uuid"
)

// --- Order Repository Mock ---

// MockOrderRepository is an in-memory order.Repository. It stores copies so
// tests observe only what was written through the repository.
type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[int64]*order.Order
	nextID int64

	CreateFunc           func(ctx context.Context, o *order.Order) error
	GetByIDFunc          func(ctx context.Context, id int64) (*order.Order, error)
	UpdateStatusFunc     func(ctx context.Context, o *order.Order) error
	ListByTelegramIDFunc func(ctx context.Context, telegramID string, limit int) ([]*order.Order, error)
	CountStuckFunc       func(ctx context.Context, status order.Status, before time.Time) (int, error)
	CountCreatedFunc     func(ctx context.Context, since time.Time) (int, error)
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[int64]*order.Order)}
}

// AddOrder pre-populates the mock, assigning an id when the order has none.
func (m *MockOrderRepository) AddOrder(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == 0 {
		m.nextID++
		o.ID = m.nextID
	} else if o.ID > m.nextID {
		m.nextID = o.ID
	}
	m.orders[o.ID] = copyOrder(o)
}

// Stored returns the persisted copy (test helper, no context needed).
func (m *MockOrderRepository) Stored(id int64) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return copyOrder(o)
	}
	return nil
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	m.orders[o.ID] = copyOrder(o)
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (m *MockOrderRepository) GetByIDForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	return m.GetByID(ctx, id)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return domainErrors.ErrOrderNotFound
	}
	m.orders[o.ID] = copyOrder(o)
	return nil
}

func (m *MockOrderRepository) ListByTelegramID(ctx context.Context, telegramID string, limit int) ([]*order.Order, error) {
	if m.ListByTelegramIDFunc != nil {
		return m.ListByTelegramIDFunc(ctx, telegramID, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*order.Order
	for _, o := range m.orders {
		if o.TelegramID == telegramID {
			result = append(result, copyOrder(o))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockOrderRepository) CountStuck(ctx context.Context, status order.Status, before time.Time) (int, error) {
	if m.CountStuckFunc != nil {
		return m.CountStuckFunc(ctx, status, before)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.Status == status && o.CreatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

func (m *MockOrderRepository) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	if m.CountCreatedFunc != nil {
		return m.CountCreatedFunc(ctx, since)
	}
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

func copyOrder(o *order.Order) *order.Order {
	c := *o
	c.SelectedParts = append([]string(nil), o.SelectedParts...)
	return &c
}

// --- Notification Repository Mock ---

// MockNotificationRepository is an in-memory notification.Repository.
type MockNotificationRepository struct {
	mu      sync.Mutex
	records []*notification.Record

	InsertFunc           func(ctx context.Context, r *notification.Record) error
	HasRecentSuccessFunc func(ctx context.Context, hash string, since time.Time) (bool, error)
	StatsByTypeFunc      func(ctx context.Context, since time.Time) ([]notification.Stats, error)
	ListFailuresFunc     func(ctx context.Context, since time.Time, limit int) ([]*notification.Record, error)
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{}
}

// Records returns everything inserted so far, oldest first.
func (m *MockNotificationRepository) Records() []*notification.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*notification.Record(nil), m.records...)
}

func (m *MockNotificationRepository) Insert(ctx context.Context, r *notification.Record) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *MockNotificationRepository) HasRecentSuccess(ctx context.Context, hash string, since time.Time) (bool, error) {
	if m.HasRecentSuccessFunc != nil {
		return m.HasRecentSuccessFunc(ctx, hash, since)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ContentHash == hash && r.Success && !r.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockNotificationRepository) StatsByType(ctx context.Context, since time.Time) ([]notification.Stats, error) {
	if m.StatsByTypeFunc != nil {
		return m.StatsByTypeFunc(ctx, since)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byType := make(map[notification.Type]*notification.Stats)
	for _, r := range m.records {
		if r.SentAt.Before(since) {
			continue
		}
		s, ok := byType[r.Type]
		if !ok {
			s = &notification.Stats{Type: r.Type}
			byType[r.Type] = s
		}
		s.Total++
		if r.Success {
			s.Successful++
		}
	}
	result := make([]notification.Stats, 0, len(byType))
	for _, s := range byType {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result, nil
}

func (m *MockNotificationRepository) ListFailures(ctx context.Context, since time.Time, limit int) ([]*notification.Record, error) {
	if m.ListFailuresFunc != nil {
		return m.ListFailuresFunc(ctx, since, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*notification.Record
	for _, r := range m.records {
		if !r.Success && !r.SentAt.Before(since) {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].SentAt.After(result[j].SentAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository that
// remembers inserted entries. Claims are leases held until the entry is
// marked, released or ExpireClaims is called.
type MockOutboxRepository struct {
	mu        sync.Mutex
	entries   []*outbox.Entry
	claimed   map[uuid.UUID]bool
	published []uuid.UUID
	failed    []uuid.UUID
	released  []uuid.UUID

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	ClaimPendingFunc  func(ctx context.Context, limit int, lease time.Duration) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
	ReleaseFunc       func(ctx context.Context, id uuid.UUID) error
}

// Entries returns the inserted entries in insertion order.
func (m *MockOutboxRepository) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Entry(nil), m.entries...)
}

func (m *MockOutboxRepository) Published() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.published...)
}

func (m *MockOutboxRepository) Failed() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.failed...)
}

func (m *MockOutboxRepository) Released() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.released...)
}

// ExpireClaims ends every outstanding lease, as if the lease period passed.
func (m *MockOutboxRepository) ExpireClaims() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimed = nil
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockOutboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*outbox.Entry, error) {
	if m.ClaimPendingFunc != nil {
		return m.ClaimPendingFunc(ctx, limit, lease)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed == nil {
		m.claimed = make(map[uuid.UUID]bool)
	}
	var result []*outbox.Entry
	for _, e := range m.entries {
		if limit > 0 && len(result) == limit {
			break
		}
		if e.Status != outbox.StatusPending || m.claimed[e.ID] {
			continue
		}
		m.claimed[e.ID] = true
		result = append(result, e)
	}
	return result, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, id)
	delete(m.claimed, id)
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, id)
	delete(m.claimed, id)
	for _, e := range m.entries {
		if e.ID == id {
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

func (m *MockOutboxRepository) Release(ctx context.Context, id uuid.UUID) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, id)
	delete(m.claimed, id)
	return nil
}

// --- Bot Client Mock ---

// SentMessage is one message captured by MockBotClient.
type SentMessage struct {
	Recipient string
	Message   telegram.Message
}

// MockBotClient records outbound messages. Without SendFunc every send succeeds.
type MockBotClient struct {
	mu       sync.Mutex
	sent     []SentMessage
	answered []string

	SendFunc           func(ctx context.Context, recipient string, msg telegram.Message) (bool, error)
	AnswerCallbackFunc func(ctx context.Context, callbackID string) error
}

func NewMockBotClient() *MockBotClient {
	return &MockBotClient{}
}

func (m *MockBotClient) Send(ctx context.Context, recipient string, msg telegram.Message) (bool, error) {
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{Recipient: recipient, Message: msg})
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, recipient, msg)
	}
	return true, nil
}

func (m *MockBotClient) AnswerCallback(ctx context.Context, callbackID string) error {
	m.mu.Lock()
	m.answered = append(m.answered, callbackID)
	m.mu.Unlock()
	if m.AnswerCallbackFunc != nil {
		return m.AnswerCallbackFunc(ctx, callbackID)
	}
	return nil
}

// Sent returns every attempted send, including failed ones.
func (m *MockBotClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

func (m *MockBotClient) Answered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.answered...)
}
