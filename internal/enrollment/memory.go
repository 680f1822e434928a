package enrollment

import (
	"context"
	"errors"
	"sort"
	"sync"

	"libactivities/internal/activity"
)

// Memory is an in-process store used by tests and the dev setup. It is
// backed by an activity.Memory so the admission check can read authoritative
// capacity, and one mutex held across check-and-insert gives the same
// serialization the Postgres row lock does. Enrollments whose activity has
// been deleted are pruned lazily on access (the Postgres FK cascades).
type Memory struct {
	activities *activity.Memory
	mu         sync.Mutex
	byID       map[string]Enrollment
}

// NewMemory creates an in-memory store on top of an activity store.
func NewMemory(activities *activity.Memory) *Memory {
	return &Memory{activities: activities, byID: make(map[string]Enrollment)}
}

// Admit checks duplicate and capacity under the lock, then inserts.
func (m *Memory) Admit(ctx context.Context, activityID string, e Enrollment) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.activities.Get(ctx, activityID)
	if err != nil {
		return Enrollment{}, err
	}
	m.pruneLocked(ctx)

	confirmed := 0
	for _, cur := range m.byID {
		if cur.ActivityID != activityID || cur.Status != StatusConfirmed {
			continue
		}
		if cur.DedupKey == e.DedupKey {
			return Enrollment{}, ErrDuplicate
		}
		confirmed++
	}
	if confirmed >= a.MaxSlots {
		return Enrollment{}, ErrCapacity
	}

	e.ActivityID = activityID
	m.byID[e.ID] = e
	return e, nil
}

// Remove hard-deletes the matching active enrollment.
func (m *Memory) Remove(ctx context.Context, activityID, dedupKey string) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(ctx)
	for id, cur := range m.byID {
		if cur.ActivityID == activityID && cur.DedupKey == dedupKey && cur.Status == StatusConfirmed {
			delete(m.byID, id)
			return cur, nil
		}
	}
	return Enrollment{}, ErrNotFound
}

// SetAttendance updates the attendance mark.
func (m *Memory) SetAttendance(ctx context.Context, enrollmentID string, value Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(ctx)
	e, ok := m.byID[enrollmentID]
	if !ok {
		return ErrNotFound
	}
	e.Attendance = value
	m.byID[enrollmentID] = e
	return nil
}

// Get returns a single enrollment by id.
func (m *Memory) Get(ctx context.Context, enrollmentID string) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(ctx)
	e, ok := m.byID[enrollmentID]
	if !ok {
		return Enrollment{}, ErrNotFound
	}
	return e, nil
}

// ListByActivity returns an activity's enrollments in enrollment order.
func (m *Memory) ListByActivity(ctx context.Context, activityID string) ([]Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(ctx)
	var res []Enrollment
	for _, e := range m.byID {
		if e.ActivityID == activityID {
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].EnrolledAt.Before(res[j].EnrolledAt) })
	return res, nil
}

// CountConfirmed returns the number of confirmed enrollments.
func (m *Memory) CountConfirmed(ctx context.Context, activityID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(ctx)
	n := 0
	for _, e := range m.byID {
		if e.ActivityID == activityID && e.Status == StatusConfirmed {
			n++
		}
	}
	return n, nil
}

// RecordEvent is a no-op for the in-memory store.
func (m *Memory) RecordEvent(ctx context.Context, enrollmentID, activityID, kind string) error {
	return nil
}

// pruneLocked drops enrollments whose owning activity no longer exists.
func (m *Memory) pruneLocked(ctx context.Context) {
	for id, e := range m.byID {
		if _, err := m.activities.Get(ctx, e.ActivityID); errors.Is(err, activity.ErrNotFound) {
			delete(m.byID, id)
		}
	}
}
