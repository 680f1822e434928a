package enrollment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libactivities/internal/activity"
)

type fixture struct {
	activities  *activity.Service
	enrollments *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	activityStore := activity.NewMemory()
	return &fixture{
		activities:  activity.NewService(activityStore),
		enrollments: NewService(NewMemory(activityStore)),
	}
}

func (f *fixture) createActivity(t *testing.T, maxSlots int) activity.Activity {
	t.Helper()
	a, err := f.activities.Create(context.Background(), activity.CreateInput{
		Title:    "Storytime",
		Date:     time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC),
		MaxSlots: maxSlots,
	})
	require.NoError(t, err)
	return a
}

func walkIn(n int) Identity {
	return Identity{
		Name:  fmt.Sprintf("Reader %d", n),
		Email: fmt.Sprintf("reader%d@example.org", n),
	}
}

func TestEnrollUnknownActivity(t *testing.T) {
	f := newFixture(t)
	_, err := f.enrollments.Enroll(context.Background(), "missing", walkIn(1))
	assert.ErrorIs(t, err, activity.ErrNotFound)
}

func TestEnrollValidation(t *testing.T) {
	f := newFixture(t)
	a := f.createActivity(t, 5)

	_, err := f.enrollments.Enroll(context.Background(), a.ID, Identity{Email: "x@example.org"})
	assert.True(t, activity.IsValidation(err))

	_, err = f.enrollments.Enroll(context.Background(), a.ID, Identity{Name: "No Email"})
	assert.True(t, activity.IsValidation(err))
}

func TestCapacityScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, 2)

	participantA := walkIn(1)
	participantB := walkIn(2)
	participantC := walkIn(3)

	_, err := f.enrollments.Enroll(ctx, a.ID, participantA)
	require.NoError(t, err)
	slots, err := f.enrollments.AvailableSlots(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 1, slots)

	_, err = f.enrollments.Enroll(ctx, a.ID, participantB)
	require.NoError(t, err)
	slots, err = f.enrollments.AvailableSlots(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, slots)

	_, err = f.enrollments.Enroll(ctx, a.ID, participantC)
	assert.ErrorIs(t, err, ErrCapacity)

	_, err = f.enrollments.Unenroll(ctx, a.ID, participantA)
	require.NoError(t, err)
	slots, err = f.enrollments.AvailableSlots(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 1, slots)

	_, err = f.enrollments.Enroll(ctx, a.ID, participantC)
	assert.NoError(t, err)
}

func TestDuplicateEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, 5)

	p := walkIn(1)
	_, err := f.enrollments.Enroll(ctx, a.ID, p)
	require.NoError(t, err)

	_, err = f.enrollments.Enroll(ctx, a.ID, p)
	assert.ErrorIs(t, err, ErrDuplicate)

	// Email matching is case-insensitive: same participant, different casing.
	upper := p
	upper.Email = "READER1@EXAMPLE.ORG"
	_, err = f.enrollments.Enroll(ctx, a.ID, upper)
	assert.ErrorIs(t, err, ErrDuplicate)

	// Unenroll then re-enroll succeeds.
	_, err = f.enrollments.Unenroll(ctx, a.ID, p)
	require.NoError(t, err)
	_, err = f.enrollments.Enroll(ctx, a.ID, p)
	assert.NoError(t, err)
}

func TestDedupKeyPrefersAccountReference(t *testing.T) {
	account := Identity{AccountID: "acc-1", Name: "Ana", Email: "ana@example.org"}
	walk := Identity{Name: "Ana", Email: "ana@example.org"}

	assert.Equal(t, "account:acc-1", account.DedupKey())
	assert.Equal(t, "email:ana@example.org", walk.DedupKey())
	assert.NotEqual(t, account.DedupKey(), walk.DedupKey())

	spaced := Identity{Email: "  Ana@Example.org "}
	assert.Equal(t, "email:ana@example.org", spaced.DedupKey())
}

func TestAccountHolderCanJoinAlongsideWalkIns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, 3)

	_, err := f.enrollments.Enroll(ctx, a.ID, Identity{AccountID: "acc-1", Name: "Ana", Email: "ana@example.org"})
	require.NoError(t, err)

	// Same account twice is a duplicate even with a different email.
	_, err = f.enrollments.Enroll(ctx, a.ID, Identity{AccountID: "acc-1", Name: "Ana", Email: "other@example.org"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = f.enrollments.Enroll(ctx, a.ID, walkIn(2))
	assert.NoError(t, err)
}

func TestUnenrollUnknownParticipant(t *testing.T) {
	f := newFixture(t)
	a := f.createActivity(t, 2)
	_, err := f.enrollments.Unenroll(context.Background(), a.ID, walkIn(9))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteActivityCascadesEnrollments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, 2)

	e, err := f.enrollments.Enroll(ctx, a.ID, walkIn(1))
	require.NoError(t, err)

	require.NoError(t, f.activities.Delete(ctx, a.ID))

	_, err = f.enrollments.Get(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkAttendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, 2)

	e, err := f.enrollments.Enroll(ctx, a.ID, walkIn(1))
	require.NoError(t, err)
	assert.Equal(t, AttendanceUnmarked, e.Attendance)

	// Idempotent: marking twice equals marking once.
	require.NoError(t, f.enrollments.MarkAttendance(ctx, e.ID, AttendanceAttended))
	require.NoError(t, f.enrollments.MarkAttendance(ctx, e.ID, AttendanceAttended))
	got, err := f.enrollments.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, AttendanceAttended, got.Attendance)

	require.NoError(t, f.enrollments.MarkAttendance(ctx, e.ID, AttendanceAbsent))
	got, err = f.enrollments.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, AttendanceAbsent, got.Attendance)

	err = f.enrollments.MarkAttendance(ctx, e.ID, Attendance("maybe"))
	assert.True(t, activity.IsValidation(err))

	err = f.enrollments.MarkAttendance(ctx, "missing", AttendanceAttended)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByActivityOrderedByEnrollmentTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, 5)

	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		offset := time.Duration(3-i) * time.Minute
		f.enrollments.now = func() time.Time { return base.Add(offset) }
		_, err := f.enrollments.Enroll(ctx, a.ID, walkIn(i))
		require.NoError(t, err)
	}

	list, err := f.enrollments.ListByActivity(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].EnrolledAt.Before(list[i-1].EnrolledAt))
	}
}

// flakyStore fails Admit with ErrConflict a set number of times before
// delegating, simulating transaction aborts under contention.
type flakyStore struct {
	*Memory
	failures int
}

func (s *flakyStore) Admit(ctx context.Context, activityID string, e Enrollment) (Enrollment, error) {
	if s.failures > 0 {
		s.failures--
		return Enrollment{}, ErrConflict
	}
	return s.Memory.Admit(ctx, activityID, e)
}

func TestEnrollRetriesOnceOnConflict(t *testing.T) {
	activityStore := activity.NewMemory()
	activities := activity.NewService(activityStore)
	a, err := activities.Create(context.Background(), activity.CreateInput{
		Title:    "Storytime",
		Date:     time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC),
		MaxSlots: 2,
	})
	require.NoError(t, err)

	svc := NewService(&flakyStore{Memory: NewMemory(activityStore), failures: 1})
	_, err = svc.Enroll(context.Background(), a.ID, walkIn(1))
	assert.NoError(t, err, "one conflict is absorbed by the retry")

	svc = NewService(&flakyStore{Memory: NewMemory(activityStore), failures: 2})
	_, err = svc.Enroll(context.Background(), a.ID, walkIn(2))
	assert.ErrorIs(t, err, ErrConflict, "a second conflict surfaces to the caller")
}

func TestConcurrentEnrollSingleSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.enrollments.Enroll(ctx, a.ID, walkIn(i))
		}(i)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case assert.ErrorIs(t, err, ErrCapacity):
			losers++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, losers)

	slots, err := f.enrollments.AvailableSlots(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, slots)
}

func TestConcurrentEnrollNeverOvershootsCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const maxSlots = 10
	const attempts = 50
	a := f.createActivity(t, maxSlots)

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.enrollments.Enroll(ctx, a.ID, walkIn(i))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		} else {
			require.ErrorIs(t, err, ErrCapacity)
		}
	}
	assert.Equal(t, maxSlots, accepted)

	slots, err := f.enrollments.AvailableSlots(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, slots)
	assert.LessOrEqual(t, slots, a.MaxSlots)
}
