package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
)

const subjectWithResultColumns = `s.id, s.user_id, s.subject_name, s.credits, s.year, s.semester, s.created_at, s.updated_at,
	r.id AS result_id, r.grade_point AS result_grade_point, r.status AS result_status,
	r.created_at AS result_created_at, r.updated_at AS result_updated_at`

// subjectRow is the flat LEFT JOIN projection of a subject and its optional result.
type subjectRow struct {
	models.Subject
	ResultID         sql.NullString  `db:"result_id"`
	ResultGradePoint sql.NullFloat64 `db:"result_grade_point"`
	ResultStatus     sql.NullString  `db:"result_status"`
	ResultCreatedAt  sql.NullTime    `db:"result_created_at"`
	ResultUpdatedAt  sql.NullTime    `db:"result_updated_at"`
}

func (row subjectRow) toModel() models.SubjectWithResult {
	out := models.SubjectWithResult{Subject: row.Subject}
	if row.ResultID.Valid {
		out.Result = &models.Result{
			ID:         row.ResultID.String,
			SubjectID:  row.Subject.ID,
			GradePoint: row.ResultGradePoint.Float64,
			Status:     models.ResultStatus(row.ResultStatus.String),
			CreatedAt:  row.ResultCreatedAt.Time,
			UpdatedAt:  row.ResultUpdatedAt.Time,
		}
	}
	return out
}

// SubjectRepository persists user subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository instantiates the repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// ListWithResults returns the owner's subjects joined with their results, ordered by year, semester and name.
func (r *SubjectRepository) ListWithResults(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectWithResult, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(subjectWithResultColumns)
	b.WriteString(" FROM subjects s LEFT JOIN results r ON r.subject_id = s.id WHERE s.user_id = $1")
	args := []interface{}{filter.UserID}

	if filter.Year != nil {
		args = append(args, *filter.Year)
		b.WriteString(fmt.Sprintf(" AND s.year = $%d", len(args)))
	}
	if filter.Semester != nil {
		args = append(args, *filter.Semester)
		b.WriteString(fmt.Sprintf(" AND s.semester = $%d", len(args)))
	}
	b.WriteString(" ORDER BY s.year ASC, s.semester ASC, s.subject_name ASC")

	var rows []subjectRow
	if err := r.db.SelectContext(ctx, &rows, b.String(), args...); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}

	subjects := make([]models.SubjectWithResult, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, row.toModel())
	}
	return subjects, nil
}

// FindForUser returns a subject owned by userID together with its result.
func (r *SubjectRepository) FindForUser(ctx context.Context, id, userID string) (*models.SubjectWithResult, error) {
	query := "SELECT " + subjectWithResultColumns + " FROM subjects s LEFT JOIN results r ON r.subject_id = s.id WHERE s.id = $1 AND s.user_id = $2"
	var row subjectRow
	if err := r.db.GetContext(ctx, &row, query, id, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	subject := row.toModel()
	return &subject, nil
}

// CountByUser returns how many subjects the user owns.
func (r *SubjectRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM subjects WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("count subjects: %w", err)
	}
	return count, nil
}

// Create inserts a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	prepareSubject(subject)
	if _, err := r.db.NamedExecContext(ctx, insertSubjectQuery, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update stores the mutable fields of a subject owned by subject.UserID.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET subject_name = :subject_name, credits = :credits, year = :year, semester = :semester, updated_at = :updated_at WHERE id = :id AND user_id = :user_id`
	res, err := r.db.NamedExecContext(ctx, query, subject)
	if err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update subject rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a subject owned by userID. Its result is removed by cascade.
func (r *SubjectRepository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete subject rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const insertSubjectQuery = `INSERT INTO subjects (id, user_id, subject_name, credits, year, semester, created_at, updated_at) VALUES (:id, :user_id, :subject_name, :credits, :year, :semester, :created_at, :updated_at)`

func prepareSubject(subject *models.Subject) {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now
}
