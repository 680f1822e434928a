package enrollment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"libactivities/internal/activity"
	"libactivities/internal/observability"
)

// Store is the persistence surface the admission controller needs.
type Store interface {
	Admit(ctx context.Context, activityID string, e Enrollment) (Enrollment, error)
	Remove(ctx context.Context, activityID, dedupKey string) (Enrollment, error)
	SetAttendance(ctx context.Context, enrollmentID string, value Attendance) error
	Get(ctx context.Context, enrollmentID string) (Enrollment, error)
	ListByActivity(ctx context.Context, activityID string) ([]Enrollment, error)
	CountConfirmed(ctx context.Context, activityID string) (int, error)
}

// Service is the admission controller: the only place capacity and
// duplication are enforced.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Enroll admits a participant onto an activity. Self-service and staff
// walk-in enrollments both go through here; the only difference is
// whether the identity carries an account reference.
func (s *Service) Enroll(ctx context.Context, activityID string, id Identity) (Enrollment, error) {
	if strings.TrimSpace(id.Name) == "" {
		return Enrollment{}, &activity.ValidationError{Field: "name", Reason: "required"}
	}
	if strings.TrimSpace(id.Email) == "" {
		return Enrollment{}, &activity.ValidationError{Field: "email", Reason: "required"}
	}

	e := Enrollment{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		Name:       strings.TrimSpace(id.Name),
		Email:      strings.TrimSpace(id.Email),
		Phone:      id.Phone,
		AccountID:  id.AccountID,
		DedupKey:   id.DedupKey(),
		Status:     StatusConfirmed,
		Attendance: AttendanceUnmarked,
		EnrolledAt: s.now().UTC(),
	}

	res, err := s.store.Admit(ctx, activityID, e)
	if errors.Is(err, ErrConflict) {
		// One transparent retry; concurrent commits are expected, not faults.
		observability.RecordAdmissionRetry()
		res, err = s.store.Admit(ctx, activityID, e)
	}
	switch {
	case err == nil:
		observability.RecordAdmissionAccepted()
	case errors.Is(err, ErrDuplicate):
		observability.RecordAdmissionRejected("duplicate")
	case errors.Is(err, ErrCapacity):
		observability.RecordAdmissionRejected("capacity")
	}
	if err != nil {
		return Enrollment{}, err
	}
	return res, nil
}

// Unenroll removes the participant's active enrollment, unconditionally
// freeing one slot. No cancellation history is kept; the removed record
// is returned so callers can notify.
func (s *Service) Unenroll(ctx context.Context, activityID string, id Identity) (Enrollment, error) {
	return s.store.Remove(ctx, activityID, id.DedupKey())
}

// MarkAttendance sets the attendance mark on an enrollment. Idempotent.
func (s *Service) MarkAttendance(ctx context.Context, enrollmentID string, value Attendance) error {
	if !ValidAttendance(value) {
		return &activity.ValidationError{Field: "attendance", Reason: "unknown value"}
	}
	return s.store.SetAttendance(ctx, enrollmentID, value)
}

// Get returns a single enrollment.
func (s *Service) Get(ctx context.Context, enrollmentID string) (Enrollment, error) {
	return s.store.Get(ctx, enrollmentID)
}

// ListByActivity returns an activity's roster in enrollment order.
func (s *Service) ListByActivity(ctx context.Context, activityID string) ([]Enrollment, error) {
	return s.store.ListByActivity(ctx, activityID)
}

// AvailableSlots computes max_slots minus the current confirmed count.
// Never negative; may be zero.
func (s *Service) AvailableSlots(ctx context.Context, a activity.Activity) (int, error) {
	confirmed, err := s.store.CountConfirmed(ctx, a.ID)
	if err != nil {
		return 0, err
	}
	slots := a.MaxSlots - confirmed
	if slots < 0 {
		slots = 0
	}
	return slots, nil
}
