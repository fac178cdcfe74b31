package checkout

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/domain"
)

// MockRepository keeps attempts in memory and records every persisted status.
type MockRepository struct {
	mu          sync.RWMutex
	attempts    map[string]domain.Attempt
	history     []domain.CheckoutStatus
	resolutions map[string]string
	events      []domain.OutboxEvent
	GetErr      error
	SessionErr  error
	ResolveErr  error
	// SaveErrFor fails SaveState whenever the attempt advances to that status.
	SaveErrFor map[domain.CheckoutStatus]error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		attempts:    make(map[string]domain.Attempt),
		resolutions: make(map[string]string),
	}
}

func (m *MockRepository) GetAttemptByIdempotencyKey(_ context.Context, userID, key string) (domain.Attempt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return domain.Attempt{}, false, m.GetErr
	}
	for _, a := range m.attempts {
		if a.UserID == userID && a.IdempotencyKey == key {
			return a, true, nil
		}
	}
	return domain.Attempt{}, false, nil
}

func (m *MockRepository) GetAttemptBySessionID(_ context.Context, sessionID string) (domain.Attempt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.SessionErr != nil {
		return domain.Attempt{}, false, m.SessionErr
	}
	for _, a := range m.attempts {
		if c, ok := a.State.(domain.Completed); ok && c.SessionID == sessionID {
			return a, true, nil
		}
	}
	return domain.Attempt{}, false, nil
}

func (m *MockRepository) CreateAttempt(_ context.Context, a *domain.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.attempts {
		if existing.UserID == a.UserID && existing.IdempotencyKey == a.IdempotencyKey {
			return domain.ErrAttemptInProgress
		}
	}
	m.attempts[a.ID] = *a
	return nil
}

func (m *MockRepository) SaveState(_ context.Context, a *domain.Attempt, from domain.CheckoutStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.SaveErrFor[a.State.Status()]; err != nil {
		return err
	}
	stored, ok := m.attempts[a.ID]
	if !ok || stored.State.Status() != from {
		return ErrStaleAttempt
	}
	m.attempts[a.ID] = *a
	m.history = append(m.history, a.State.Status())
	return nil
}

func (m *MockRepository) RecordResolution(_ context.Context, attemptID, resolution, _ string, event *domain.OutboxEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ResolveErr != nil {
		return false, m.ResolveErr
	}
	if !supersedes(m.resolutions[attemptID], resolution) {
		return false, nil
	}
	m.resolutions[attemptID] = resolution
	if a, ok := m.attempts[attemptID]; ok {
		a.Resolution = resolution
		m.attempts[attemptID] = a
	}
	if event != nil {
		m.events = append(m.events, *event)
	}
	return true, nil
}

func (m *MockRepository) put(a domain.Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = a
}

func (m *MockRepository) attempt(id string) domain.Attempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts[id]
}

func (m *MockRepository) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.attempts)
}

func (m *MockRepository) resolution(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolutions[id]
}

func (m *MockRepository) eventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

func (m *MockRepository) statuses() []domain.CheckoutStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.CheckoutStatus(nil), m.history...)
}

type MockSummary struct {
	Result domain.OrderSummary
	Err    error
}

func (m *MockSummary) Summary(context.Context, string) (domain.OrderSummary, error) {
	return m.Result, m.Err
}

type MockCatalog struct {
	Products []domain.Product
	Err      error
}

func (m *MockCatalog) Snapshot(context.Context) (domain.Catalog, error) {
	if m.Err != nil {
		return domain.Catalog{}, m.Err
	}
	return domain.NewCatalog(m.Products), nil
}

type MockProfiles struct {
	mu    sync.RWMutex
	Err   error
	saves int
}

func (m *MockProfiles) Save(_ context.Context, _ string, p domain.ShippingProfile) (domain.ShippingProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.Err != nil {
		return domain.ShippingProfile{}, m.Err
	}
	return p, nil
}

func (m *MockProfiles) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// MockProvider counts session requests and answers status queries from Statuses.
type MockProvider struct {
	mu        sync.RWMutex
	Session   domain.Session
	CreateErr error
	Statuses  map[string]domain.SessionStatus
	requests  []domain.SessionRequest
}

func (m *MockProvider) CreateSession(_ context.Context, req domain.SessionRequest) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.Session, m.CreateErr
}

func (m *MockProvider) GetSessionStatus(_ context.Context, sessionID string) (domain.SessionStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.Statuses[sessionID]
	return st, ok, nil
}

func (m *MockProvider) calls() []domain.SessionRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.SessionRequest(nil), m.requests...)
}

type MockPayments struct {
	Configured bool
}

func (m MockPayments) IsPaymentConfigured(context.Context) (bool, error) {
	return m.Configured, nil
}
