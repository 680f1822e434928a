package activity

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists activities in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const activityColumns = `id, title, description, category, activity_date, start_time, duration_min, max_slots, status, created_at, updated_at`

func scanActivity(row interface{ Scan(...any) error }) (Activity, error) {
	var a Activity
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Category, &a.Date, &a.StartTime, &a.DurationMin, &a.MaxSlots, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Insert writes a new activity.
func (r *Repository) Insert(ctx context.Context, a Activity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activities (id, title, description, category, activity_date, start_time, duration_min, max_slots, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, a.ID, a.Title, a.Description, a.Category, a.Date, a.StartTime, a.DurationMin, a.MaxSlots, a.Status, a.CreatedAt, a.UpdatedAt)
	return err
}

// Get returns a single activity by id.
func (r *Repository) Get(ctx context.Context, id string) (Activity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Activity{}, ErrNotFound
	}
	return a, err
}

// List returns activities ordered by date, optionally restricted to a
// status and optionally excluding drafts.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities`
	args := []any{}
	switch {
	case filter.Status != nil:
		query += ` WHERE status = $1`
		args = append(args, *filter.Status)
	case !filter.IncludeDraft:
		query += ` WHERE status <> $1`
		args = append(args, StatusDraft)
	}
	query += ` ORDER BY activity_date DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// Update rewrites every mutable column of an existing activity.
func (r *Repository) Update(ctx context.Context, a Activity) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE activities
		SET title = $2, description = $3, category = $4, activity_date = $5,
			start_time = $6, duration_min = $7, max_slots = $8, status = $9,
			updated_at = $10
		WHERE id = $1
	`, a.ID, a.Title, a.Description, a.Category, a.Date, a.StartTime, a.DurationMin, a.MaxSlots, a.Status, a.UpdatedAt)
	if err != nil {
		return err
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

// Delete removes an activity; enrollments go with it via the FK cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return err
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
