package activity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows List results.
type ListFilter struct {
	Status       *Status
	IncludeDraft bool
}

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, a Activity) error
	Get(ctx context.Context, id string) (Activity, error)
	List(ctx context.Context, filter ListFilter) ([]Activity, error)
	Update(ctx context.Context, a Activity) error
	Delete(ctx context.Context, id string) error
}

// CreateInput carries the attributes of a new activity.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	Date        time.Time
	StartTime   string
	DurationMin *int
	MaxSlots    int
}

// EditInput carries a partial update; nil fields are left untouched.
type EditInput struct {
	Title       *string
	Description *string
	Category    *string
	Date        *time.Time
	StartTime   *string
	DurationMin *int
	MaxSlots    *int
	Status      *Status
}

// Service owns activity records and their lifecycle state.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create validates input and stores a new activity in draft state.
func (s *Service) Create(ctx context.Context, in CreateInput) (Activity, error) {
	if strings.TrimSpace(in.Title) == "" {
		return Activity{}, &ValidationError{Field: "title", Reason: "required"}
	}
	if in.Date.IsZero() {
		return Activity{}, &ValidationError{Field: "date", Reason: "required"}
	}
	if in.MaxSlots < 1 {
		return Activity{}, &ValidationError{Field: "max_slots", Reason: "must be a positive integer"}
	}
	if in.DurationMin != nil && *in.DurationMin < 0 {
		return Activity{}, &ValidationError{Field: "duration_min", Reason: "must not be negative"}
	}
	if err := validStartTime(in.StartTime); err != nil {
		return Activity{}, err
	}

	now := s.now().UTC()
	a := Activity{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Category:    in.Category,
		Date:        in.Date,
		StartTime:   in.StartTime,
		DurationMin: in.DurationMin,
		MaxSlots:    in.MaxSlots,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, a); err != nil {
		return Activity{}, err
	}
	return a, nil
}

// Get returns a single activity.
func (s *Service) Get(ctx context.Context, id string) (Activity, error) {
	return s.store.Get(ctx, id)
}

// List returns activities visible to the caller. Admins see every state;
// everyone else sees only non-draft activities. This is a read-time
// filter, drafts stay in the store.
func (s *Service) List(ctx context.Context, status *Status, admin bool) ([]Activity, error) {
	if status != nil && !ValidStatus(*status) {
		return nil, &ValidationError{Field: "status", Reason: "unknown state"}
	}
	if status != nil && *status == StatusDraft && !admin {
		return nil, nil
	}
	return s.store.List(ctx, ListFilter{Status: status, IncludeDraft: admin})
}

// Edit applies a partial update and bumps the updated_at timestamp.
func (s *Service) Edit(ctx context.Context, id string, in EditInput) (Activity, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return Activity{}, err
	}
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return Activity{}, &ValidationError{Field: "title", Reason: "required"}
		}
		a.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		a.Description = *in.Description
	}
	if in.Category != nil {
		a.Category = *in.Category
	}
	if in.Date != nil {
		if in.Date.IsZero() {
			return Activity{}, &ValidationError{Field: "date", Reason: "required"}
		}
		a.Date = *in.Date
	}
	if in.StartTime != nil {
		if err := validStartTime(*in.StartTime); err != nil {
			return Activity{}, err
		}
		a.StartTime = *in.StartTime
	}
	if in.DurationMin != nil {
		if *in.DurationMin < 0 {
			return Activity{}, &ValidationError{Field: "duration_min", Reason: "must not be negative"}
		}
		a.DurationMin = in.DurationMin
	}
	if in.MaxSlots != nil {
		if *in.MaxSlots < 1 {
			return Activity{}, &ValidationError{Field: "max_slots", Reason: "must be a positive integer"}
		}
		a.MaxSlots = *in.MaxSlots
	}
	if in.Status != nil {
		if !ValidStatus(*in.Status) {
			return Activity{}, &ValidationError{Field: "status", Reason: "unknown state"}
		}
		a.Status = *in.Status
	}
	a.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, a); err != nil {
		return Activity{}, err
	}
	return a, nil
}

// SetStatus moves an activity to another lifecycle state. Transitions are
// unordered; only membership in the allowed set is enforced. Existing
// enrollments are untouched.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (Activity, error) {
	if !ValidStatus(status) {
		return Activity{}, &ValidationError{Field: "status", Reason: "unknown state"}
	}
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return Activity{}, err
	}
	a.Status = status
	a.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, a); err != nil {
		return Activity{}, err
	}
	return a, nil
}

// Delete removes an activity and, with it, every enrollment it owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func validStartTime(v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse("15:04", v); err != nil {
		return &ValidationError{Field: "time", Reason: "must be HH:MM"}
	}
	return nil
}
