//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// MockTransactionRepo is an in-memory TransactionRepository with per-method
// override hooks for simulating failures.
type MockTransactionRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Transaction

	SaveFunc                  func(ctx context.Context, tx repository.Tx, t *model.Transaction) error
	UpdateStatusIfPendingFunc func(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, s *repository.Settlement) (bool, error)
}

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{store: make(map[string]*model.Transaction)}
}

func (m *MockTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, tx, t); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *MockTransactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockTransactionRepo) FindByProviderTxID(ctx context.Context, tx repository.Tx, providerTxID string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.store {
		if t.ProviderTxID != nil && *t.ProviderTxID == providerTxID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) AttachProviderTx(ctx context.Context, tx repository.Tx, id, provider, providerTxID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Provider = provider
	t.ProviderTxID = &providerTxID
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MockTransactionRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, s *repository.Settlement) (bool, error) {
	if m.UpdateStatusIfPendingFunc != nil {
		return m.UpdateStatusIfPendingFunc(ctx, tx, id, status, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok || t.Status != model.TransactionStatusPending {
		return false, nil
	}
	t.Status = status
	if s != nil {
		if s.ProviderRef != "" {
			t.ProviderRef = s.ProviderRef
		}
		t.OwnerAmount = s.OwnerAmount
		t.PlatformFee = s.PlatformFee
		t.FailureReason = s.FailureReason
		if !s.SettledAt.IsZero() {
			at := s.SettledAt
			t.SettledAt = &at
		}
	}
	t.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockTransactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Transaction
	for _, t := range m.store {
		if t.Status == model.TransactionStatusPending && t.ProviderTxID != nil && t.CreatedAt.Before(olderThan) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockTransactionRepo) ListPendingWithoutProviderTx(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Transaction
	for _, t := range m.store {
		if t.Status == model.TransactionStatusPending && t.ProviderTxID == nil && t.CreatedAt.Before(olderThan) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockTransactionRepo) CountPending(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.store {
		if t.Status == model.TransactionStatusPending {
			n++
		}
	}
	return n, nil
}

// MockFilmRepo is an in-memory FilmRepository.
type MockFilmRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Film
}

func NewMockFilmRepo() *MockFilmRepo {
	return &MockFilmRepo{store: make(map[string]*model.Film)}
}

func (m *MockFilmRepo) FindPublishedByID(ctx context.Context, tx repository.Tx, id string) (*model.Film, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.store[id]
	if !ok || f.Status != model.FilmStatusPublished {
		return nil, domain.ErrFilmNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *MockFilmRepo) Save(ctx context.Context, tx repository.Tx, f *model.Film) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.store[f.ID] = &cp
	return nil
}

// MockUserRepo is an in-memory UserRepository.
type MockUserRepo struct {
	mu    sync.RWMutex
	store map[string]*model.User
}

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{store: make(map[string]*model.User)}
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

// MockGrantRepo is an in-memory AccessGrantRepository.
type MockGrantRepo struct {
	mu    sync.RWMutex
	store map[string]*model.AccessGrant // key userID+"/"+filmID

	UpsertFunc func(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error
}

func NewMockGrantRepo() *MockGrantRepo {
	return &MockGrantRepo{store: make(map[string]*model.AccessGrant)}
}

func (m *MockGrantRepo) Upsert(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error {
	if m.UpsertFunc != nil {
		if err := m.UpsertFunc(ctx, tx, g); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.store[g.UserID+"/"+g.FilmID] = &cp
	return nil
}

func (m *MockGrantRepo) Find(ctx context.Context, tx repository.Tx, userID, filmID string) (*model.AccessGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.store[userID+"/"+filmID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *MockGrantRepo) DeleteExpiredRentals(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, g := range m.store {
		if g.Kind == model.AccessKindRental && g.ExpiresAt != nil && g.ExpiresAt.Before(before) {
			delete(m.store, k)
			n++
		}
	}
	return n, nil
}

// MockOutboxRepo records enqueued events.
type MockOutboxRepo struct {
	mu     sync.Mutex
	Events []*repository.OutboxEvent
}

func NewMockOutboxRepo() *MockOutboxRepo { return &MockOutboxRepo{} }

func (m *MockOutboxRepo) Enqueue(ctx context.Context, tx repository.Tx, e *repository.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.Events = append(m.Events, &cp)
	return nil
}

func (m *MockOutboxRepo) ListUnpublished(ctx context.Context, tx repository.Tx, limit int) ([]*repository.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.OutboxEvent
	for _, e := range m.Events {
		if e.PublishedAt == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockOutboxRepo) MarkPublished(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Events {
		if e.ID == id {
			e.PublishedAt = &at
		}
	}
	return nil
}

// MockTxManager runs the callback without a real database transaction.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// MockLocker hands out locks unconditionally unless told otherwise.
type MockLocker struct {
	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	return "token", nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error { return nil }

// MockDedupe reports duplicates after the first delivery of each triple.
type MockDedupe struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMockDedupe() *MockDedupe { return &MockDedupe{seen: make(map[string]bool)} }

func (m *MockDedupe) FirstDelivery(ctx context.Context, provider, providerTxID, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + "/" + providerTxID + "/" + status
	if m.seen[key] {
		return false
	}
	m.seen[key] = true
	return true
}

func (m *MockDedupe) Forget(ctx context.Context, provider, providerTxID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, provider+"/"+providerTxID+"/"+status)
}

// MockOrchestrator implements usecase.Orchestrator with hooks.
type MockOrchestrator struct {
	ProcessPaymentFunc func(ctx context.Context, providerName string, params adapter.PaymentParams, fallbacks []string) adapter.PaymentResult
	VerifyPaymentFunc  func(ctx context.Context, providerName, providerTxID string) (adapter.PaymentVerification, error)
	HandleWebhookFunc  func(ctx context.Context, providerName string, payload adapter.WebhookPayload) (adapter.WebhookResult, error)
	Recommended        string
	Fallbacks          []string
}

func (m *MockOrchestrator) ProcessPayment(ctx context.Context, providerName string, params adapter.PaymentParams, fallbacks []string) adapter.PaymentResult {
	if m.ProcessPaymentFunc != nil {
		return m.ProcessPaymentFunc(ctx, providerName, params, fallbacks)
	}
	return adapter.PaymentResult{Success: true, Provider: providerName, ProviderTxID: "ptx-1", PaymentURL: "https://pay.example/1"}
}

func (m *MockOrchestrator) VerifyPayment(ctx context.Context, providerName, providerTxID string) (adapter.PaymentVerification, error) {
	if m.VerifyPaymentFunc != nil {
		return m.VerifyPaymentFunc(ctx, providerName, providerTxID)
	}
	return adapter.PaymentVerification{Success: true, Status: adapter.StatusCompleted}, nil
}

func (m *MockOrchestrator) HandleWebhook(ctx context.Context, providerName string, payload adapter.WebhookPayload) (adapter.WebhookResult, error) {
	if m.HandleWebhookFunc != nil {
		return m.HandleWebhookFunc(ctx, providerName, payload)
	}
	return adapter.WebhookResult{Success: true}, nil
}

func (m *MockOrchestrator) RecommendedProvider(currency, country string) string {
	if m.Recommended != "" {
		return m.Recommended
	}
	return "mpesa"
}

func (m *MockOrchestrator) FallbacksFor(primary string) []string { return m.Fallbacks }
