package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
)

// ResultRepository persists subject results. A subject carries at most one result.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository instantiates the repository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// FindBySubject returns the result recorded for a subject.
func (r *ResultRepository) FindBySubject(ctx context.Context, subjectID string) (*models.Result, error) {
	const query = `SELECT id, subject_id, grade_point, status, created_at, updated_at FROM results WHERE subject_id = $1`
	var result models.Result
	if err := r.db.GetContext(ctx, &result, query, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find result: %w", err)
	}
	return &result, nil
}

// Upsert creates or replaces the subject's result. ID and CreatedAt reflect the stored row afterwards.
func (r *ResultRepository) Upsert(ctx context.Context, result *models.Result) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	result.CreatedAt = now
	result.UpdatedAt = now

	const query = `INSERT INTO results (id, subject_id, grade_point, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (subject_id) DO UPDATE SET grade_point = EXCLUDED.grade_point, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, result.ID, result.SubjectID, result.GradePoint, result.Status, result.CreatedAt, result.UpdatedAt)
	if err := row.Scan(&result.ID, &result.CreatedAt); err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

// DeleteBySubject removes the subject's result. sql.ErrNoRows is returned when none exists.
func (r *ResultRepository) DeleteBySubject(ctx context.Context, subjectID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM results WHERE subject_id = $1`, subjectID)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete result rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
