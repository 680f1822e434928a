package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(NewMemory())
}

func validInput() CreateInput {
	return CreateInput{
		Title:    "Intro to Bookbinding",
		Date:     time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC),
		MaxSlots: 10,
	}
}

func TestCreateStartsInDraft(t *testing.T) {
	svc := newTestService()

	a, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, StatusDraft, a.Status)
	assert.Equal(t, 10, a.MaxSlots)
	assert.False(t, a.CreatedAt.IsZero())
	assert.Equal(t, a.CreatedAt, a.UpdatedAt)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService()
	negative := -5

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"missing title", func(in *CreateInput) { in.Title = "  " }},
		{"missing date", func(in *CreateInput) { in.Date = time.Time{} }},
		{"zero capacity", func(in *CreateInput) { in.MaxSlots = 0 }},
		{"negative capacity", func(in *CreateInput) { in.MaxSlots = -3 }},
		{"negative duration", func(in *CreateInput) { in.DurationMin = &negative }},
		{"bad time format", func(in *CreateInput) { in.StartTime = "25:99" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.Create(context.Background(), in)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "want validation error, got %v", err)
		})
	}
}

func TestSetStatusAllowsEveryDefinedState(t *testing.T) {
	svc := newTestService()
	a, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	for _, st := range []Status{StatusOpen, StatusClosed, StatusFinished, StatusDraft} {
		updated, err := svc.SetStatus(context.Background(), a.ID, st)
		require.NoError(t, err)
		assert.Equal(t, st, updated.Status)
	}
}

func TestSetStatusRejectsUnknownStateAndLeavesStatusUnchanged(t *testing.T) {
	svc := newTestService()
	a, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	_, err = svc.SetStatus(context.Background(), a.ID, StatusOpen)
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), a.ID, Status("archived"))
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	got, err := svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
}

func TestSetStatusUnknownActivity(t *testing.T) {
	svc := newTestService()
	_, err := svc.SetStatus(context.Background(), "nope", StatusOpen)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditAppliesPartialUpdateAndBumpsUpdatedAt(t *testing.T) {
	svc := newTestService()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	a, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(time.Hour) }
	title := "Advanced Bookbinding"
	slots := 4
	updated, err := svc.Edit(context.Background(), a.ID, EditInput{Title: &title, MaxSlots: &slots})
	require.NoError(t, err)

	assert.Equal(t, "Advanced Bookbinding", updated.Title)
	assert.Equal(t, 4, updated.MaxSlots)
	assert.Equal(t, a.Date, updated.Date, "untouched fields keep their values")
	assert.True(t, updated.UpdatedAt.After(a.UpdatedAt))
	assert.Equal(t, a.CreatedAt, updated.CreatedAt)
}

func TestEditValidation(t *testing.T) {
	svc := newTestService()
	a, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	empty := ""
	_, err = svc.Edit(context.Background(), a.ID, EditInput{Title: &empty})
	assert.True(t, IsValidation(err))

	zero := 0
	_, err = svc.Edit(context.Background(), a.ID, EditInput{MaxSlots: &zero})
	assert.True(t, IsValidation(err))

	bad := Status("paused")
	_, err = svc.Edit(context.Background(), a.ID, EditInput{Status: &bad})
	assert.True(t, IsValidation(err))
}

func TestListVisibility(t *testing.T) {
	svc := newTestService()
	draft, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.Title = "Poetry Night"
	open, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	_, err = svc.SetStatus(context.Background(), open.ID, StatusOpen)
	require.NoError(t, err)

	public, err := svc.List(context.Background(), nil, false)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, open.ID, public[0].ID)

	all, err := svc.List(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	st := StatusDraft
	hidden, err := svc.List(context.Background(), &st, false)
	require.NoError(t, err)
	assert.Empty(t, hidden)

	drafts, err := svc.List(context.Background(), &st, true)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, draft.ID, drafts[0].ID)

	unknown := Status("archived")
	_, err = svc.List(context.Background(), &unknown, true)
	assert.True(t, IsValidation(err))
}

func TestDelete(t *testing.T) {
	svc := newTestService()
	a, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), a.ID))
	_, err = svc.Get(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Delete(context.Background(), a.ID), ErrNotFound)
}
