// Package store provides in-memory insurance.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/insurance-engine/insurance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	policies  map[string]insurance.Policy
	pending   map[string]insurance.Booking
	completed map[insurance.Principal]insurance.Booking
}

func NewMemory() *Memory {
	return &Memory{
		policies:  make(map[string]insurance.Policy),
		pending:   make(map[string]insurance.Booking),
		completed: make(map[insurance.Principal]insurance.Booking),
	}
}

// =============================================================================
// POLICIES
// =============================================================================

func (m *Memory) GetPolicy(_ context.Context, id string) (*insurance.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) PutPolicy(_ context.Context, p insurance.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.ID] = p
	return nil
}

func (m *Memory) DeletePolicy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.policies, id)
	return nil
}

func (m *Memory) ListPolicies(_ context.Context) ([]insurance.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]insurance.Policy, 0, len(m.policies))
	for _, p := range m.policies {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

func (m *Memory) PutPending(_ context.Context, b insurance.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[b.Memo] = b
	return nil
}

func (m *Memory) GetPending(_ context.Context, memo string) (*insurance.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.pending[memo]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// TakePending removes under the write lock, so only one caller wins per memo.
func (m *Memory) TakePending(_ context.Context, memo string) (insurance.Booking, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.pending[memo]
	if !ok {
		return insurance.Booking{}, false, nil
	}
	delete(m.pending, memo)
	return b, true, nil
}

func (m *Memory) ListPending(_ context.Context) ([]insurance.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]insurance.Booking, 0, len(m.pending))
	for _, b := range m.pending {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Memo < result[j].Memo })
	return result, nil
}

func (m *Memory) PutCompleted(_ context.Context, b insurance.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[b.Payer] = b
	return nil
}

func (m *Memory) GetCompleted(_ context.Context, payer insurance.Principal) (*insurance.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.completed[payer]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) ListCompleted(_ context.Context) ([]insurance.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]insurance.Booking, 0, len(m.completed))
	for _, b := range m.completed {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Payer < result[j].Payer })
	return result, nil
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies = make(map[string]insurance.Policy)
	m.pending = make(map[string]insurance.Booking)
	m.completed = make(map[insurance.Principal]insurance.Booking)
	return nil
}
