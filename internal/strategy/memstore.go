package strategy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// MemStore is an in-memory Store used by tests and database-less runs.
type MemStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*Strategy
	byName map[string]int64
}

// NewMemStore creates an empty in-memory strategy store.
func NewMemStore() *MemStore {
	return &MemStore{
		nextID: 1,
		byID:   make(map[int64]*Strategy),
		byName: make(map[string]int64),
	}
}

func (m *MemStore) clone(s *Strategy) *Strategy {
	cp := *s
	cp.Tags = append([]string(nil), s.Tags...)
	cp.ValidationErrors = append([]string(nil), s.ValidationErrors...)
	cp.ParamSchema = append([]contracts.ParamSpec(nil), s.ParamSchema...)
	cp.DefaultParams = s.DefaultParams.Clone()
	return &cp
}

// Get retrieves a strategy by id.
func (m *MemStore) Get(_ context.Context, id int64) (*Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.clone(s), nil
}

// GetByName retrieves a strategy by its unique slug.
func (m *MemStore) GetByName(_ context.Context, name string) (*Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return m.clone(m.byID[id]), nil
}

// ListByRole lists strategies of one role sorted by name.
func (m *MemStore) ListByRole(_ context.Context, role contracts.Role, enabledOnly bool) ([]*Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Strategy
	for _, s := range m.byID {
		if s.Role != role {
			continue
		}
		if enabledOnly && !s.IsEnabled {
			continue
		}
		out = append(out, m.clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListPending lists strategies awaiting validation.
func (m *MemStore) ListPending(_ context.Context) ([]*Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Strategy
	for _, s := range m.byID {
		if s.ValidationStatus == ValidationPending {
			out = append(out, m.clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create inserts a new strategy record, computing its code hash.
func (m *MemStore) Create(_ context.Context, s *Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[s.Name]; exists {
		return ErrDuplicateName
	}
	s.ID = m.nextID
	m.nextID++
	s.CodeHash = HashCode(s.Code)
	if s.Version == 0 {
		s.Version = 1
	}
	if s.ValidationStatus == "" {
		s.ValidationStatus = ValidationPending
	}
	if s.RiskLevel == "" {
		s.RiskLevel = RiskHigh
	}
	if s.DefaultParams == nil {
		s.DefaultParams = contracts.Params{}
	}
	s.IsEnabled = true
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	m.byID[s.ID] = m.clone(s)
	m.byName[s.Name] = s.ID
	return nil
}

// UpdateCode replaces the source, bumps the version and resets trust state.
func (m *MemStore) UpdateCode(_ context.Context, id int64, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.Code = code
	s.CodeHash = HashCode(code)
	s.Version++
	s.ValidationStatus = ValidationPending
	s.ValidationErrors = nil
	s.RiskLevel = RiskHigh
	s.UpdatedAt = time.Now()
	return nil
}

// UpdateValidation persists a validator verdict.
func (m *MemStore) UpdateValidation(_ context.Context, id int64, status ValidationStatus, errs []string, risk RiskLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.ValidationStatus = status
	s.ValidationErrors = append([]string(nil), errs...)
	s.RiskLevel = risk
	s.UpdatedAt = time.Now()
	return nil
}

// SetEnabled soft-disables or re-enables a strategy.
func (m *MemStore) SetEnabled(_ context.Context, id int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.IsEnabled = enabled
	s.UpdatedAt = time.Now()
	return nil
}

// IncrementUsage bumps the usage counter.
func (m *MemStore) IncrementUsage(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.UsageCount++
	return nil
}

// RecordBacktest folds one backtest outcome into the rolling aggregates.
func (m *MemStore) RecordBacktest(_ context.Context, id int64, totalReturn float64, won bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	n := float64(s.BacktestCount)
	w := 0.0
	if won {
		w = 1.0
	}
	s.AvgReturn = (s.AvgReturn*n + totalReturn) / (n + 1)
	s.WinRate = (s.WinRate*n + w) / (n + 1)
	s.BacktestCount++
	return nil
}

// TamperCode corrupts stored code without updating the hash. Test helper
// for the fail-closed load path.
func (m *MemStore) TamperCode(id int64, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		s.Code = code
	}
}
