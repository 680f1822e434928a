package enrollment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"libactivities/internal/activity"
)

// Repository persists enrollments in Postgres.
//
// Admission runs inside one transaction that locks the activity row, so
// concurrent enrolls on the same activity serialize on that lock and the
// capacity count is evaluated against committed state. The unique index
// on (activity_id, dedup_key) backs up the duplicate check.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const enrollmentColumns = `id, activity_id, name, email, phone, COALESCE(account_id::text, ''), dedup_key, status, attendance, enrolled_at`

func scanEnrollment(row interface{ Scan(...any) error }) (Enrollment, error) {
	var e Enrollment
	err := row.Scan(&e.ID, &e.ActivityID, &e.Name, &e.Email, &e.Phone, &e.AccountID, &e.DedupKey, &e.Status, &e.Attendance, &e.EnrolledAt)
	return e, err
}

// Admit performs the check-and-insert as a single unit of work: lock the
// activity row, re-check duplicate and capacity against committed state,
// then insert.
func (r *Repository) Admit(ctx context.Context, activityID string, e Enrollment) (Enrollment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Enrollment{}, err
	}
	defer tx.Rollback()

	var maxSlots int
	row := tx.QueryRowContext(ctx, `SELECT max_slots FROM activities WHERE id = $1 FOR UPDATE`, activityID)
	if err := row.Scan(&maxSlots); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, activity.ErrNotFound
		}
		return Enrollment{}, translate(err)
	}

	var exists bool
	row = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollments
			WHERE activity_id = $1 AND dedup_key = $2 AND status = $3
		)
	`, activityID, e.DedupKey, StatusConfirmed)
	if err := row.Scan(&exists); err != nil {
		return Enrollment{}, translate(err)
	}
	if exists {
		return Enrollment{}, ErrDuplicate
	}

	var confirmed int
	row = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM enrollments WHERE activity_id = $1 AND status = $2
	`, activityID, StatusConfirmed)
	if err := row.Scan(&confirmed); err != nil {
		return Enrollment{}, translate(err)
	}
	if confirmed >= maxSlots {
		return Enrollment{}, ErrCapacity
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO enrollments (id, activity_id, name, email, phone, account_id, dedup_key, status, attendance, enrolled_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,'')::uuid,$7,$8,$9,$10)
	`, e.ID, activityID, e.Name, e.Email, e.Phone, e.AccountID, e.DedupKey, e.Status, e.Attendance, e.EnrolledAt)
	if err != nil {
		return Enrollment{}, translate(err)
	}

	if err := tx.Commit(); err != nil {
		return Enrollment{}, translate(err)
	}
	e.ActivityID = activityID
	return e, nil
}

// Remove hard-deletes the active enrollment matching the participant on
// the activity, freeing one slot. Returns the removed record.
func (r *Repository) Remove(ctx context.Context, activityID, dedupKey string) (Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		DELETE FROM enrollments
		WHERE activity_id = $1 AND dedup_key = $2 AND status = $3
		RETURNING `+enrollmentColumns+`
	`, activityID, dedupKey, StatusConfirmed)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, ErrNotFound
	}
	if err != nil {
		return Enrollment{}, translate(err)
	}
	return e, nil
}

// SetAttendance updates the attendance mark. No capacity interaction.
func (r *Repository) SetAttendance(ctx context.Context, enrollmentID string, value Attendance) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollments SET attendance = $2 WHERE id = $1
	`, enrollmentID, value)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns a single enrollment by id.
func (r *Repository) Get(ctx context.Context, enrollmentID string) (Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1
	`, enrollmentID)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, ErrNotFound
	}
	return e, err
}

// ListByActivity returns an activity's enrollments in enrollment order.
func (r *Repository) ListByActivity(ctx context.Context, activityID string) ([]Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+enrollmentColumns+` FROM enrollments
		WHERE activity_id = $1
		ORDER BY enrolled_at
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// CountConfirmed returns the number of confirmed enrollments.
func (r *Repository) CountConfirmed(ctx context.Context, activityID string) (int, error) {
	var n int
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM enrollments WHERE activity_id = $1 AND status = $2
	`, activityID, StatusConfirmed)
	return n, row.Scan(&n)
}

// RecordEvent appends an entry to the enrollment audit log. Used by the
// notification worker.
func (r *Repository) RecordEvent(ctx context.Context, enrollmentID, activityID, kind string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollment_events (enrollment_id, activity_id, kind)
		VALUES ($1,$2,$3)
	`, enrollmentID, activityID, kind)
	return err
}

// translate maps Postgres error codes onto domain errors: a unique
// violation on the dedup index is a duplicate enrollment, a
// serialization or deadlock abort is a retryable conflict.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicate
		case "40001", "40P01":
			return ErrConflict
		}
	}
	return err
}
