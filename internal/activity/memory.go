package activity

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process store used by tests and the dev setup.
type Memory struct {
	mu         sync.RWMutex
	activities map[string]Activity
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{activities: make(map[string]Activity)}
}

// Insert writes a new activity.
func (m *Memory) Insert(ctx context.Context, a Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[a.ID] = a
	return nil
}

// Get returns a single activity by id.
func (m *Memory) Get(ctx context.Context, id string) (Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.activities[id]
	if !ok {
		return Activity{}, ErrNotFound
	}
	return a, nil
}

// List returns activities matching the filter, newest date first.
func (m *Memory) List(ctx context.Context, filter ListFilter) ([]Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []Activity
	for _, a := range m.activities {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.Status == nil && !filter.IncludeDraft && a.Status == StatusDraft {
			continue
		}
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Date.Equal(res[j].Date) {
			return res[i].Date.After(res[j].Date)
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// Update replaces an existing activity.
func (m *Memory) Update(ctx context.Context, a Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.activities[a.ID]; !ok {
		return ErrNotFound
	}
	m.activities[a.ID] = a
	return nil
}

// Delete removes an activity.
func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.activities[id]; !ok {
		return ErrNotFound
	}
	delete(m.activities, id)
	return nil
}
