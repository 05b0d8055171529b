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

const degreeColumns = `d.id, d.name, d.total_years, d.semesters_per_year, d.is_custom, d.created_by_user_id, d.pending_ref, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM degree_subject_templates t WHERE t.degree_id = d.id) AS template_count`

const templateColumns = `id, degree_id, subject_name, credits, year, semester, created_at, updated_at`

// DegreeRepository persists degrees, their subject templates, and the user degree link.
type DegreeRepository struct {
	db *sqlx.DB
}

// NewDegreeRepository instantiates the repository.
func NewDegreeRepository(db *sqlx.DB) *DegreeRepository {
	return &DegreeRepository{db: db}
}

// ListVisible returns system degrees plus the user's own custom degrees, system first then by name.
func (r *DegreeRepository) ListVisible(ctx context.Context, userID string) ([]models.Degree, error) {
	query := "SELECT " + degreeColumns + " FROM degrees d WHERE d.is_custom = FALSE OR d.created_by_user_id = $1 ORDER BY d.is_custom ASC, d.name ASC"
	var degrees []models.Degree
	if err := r.db.SelectContext(ctx, &degrees, query, userID); err != nil {
		return nil, fmt.Errorf("list visible degrees: %w", err)
	}
	return degrees, nil
}

// ListSystem returns the system degree catalog ordered by name.
func (r *DegreeRepository) ListSystem(ctx context.Context) ([]models.Degree, error) {
	query := "SELECT " + degreeColumns + " FROM degrees d WHERE d.is_custom = FALSE ORDER BY d.name ASC"
	var degrees []models.Degree
	if err := r.db.SelectContext(ctx, &degrees, query); err != nil {
		return nil, fmt.Errorf("list system degrees: %w", err)
	}
	return degrees, nil
}

// FindByID returns a degree without its templates.
func (r *DegreeRepository) FindByID(ctx context.Context, id string) (*models.Degree, error) {
	query := "SELECT " + degreeColumns + " FROM degrees d WHERE d.id = $1"
	var degree models.Degree
	if err := r.db.GetContext(ctx, &degree, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find degree: %w", err)
	}
	return &degree, nil
}

// FindSystemByName returns the system degree with the given name.
func (r *DegreeRepository) FindSystemByName(ctx context.Context, name string) (*models.Degree, error) {
	query := "SELECT " + degreeColumns + " FROM degrees d WHERE d.is_custom = FALSE AND d.name = $1"
	var degree models.Degree
	if err := r.db.GetContext(ctx, &degree, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find degree by name: %w", err)
	}
	return &degree, nil
}

// Create inserts a degree row.
func (r *DegreeRepository) Create(ctx context.Context, degree *models.Degree) error {
	prepareDegree(degree)
	if _, err := r.db.NamedExecContext(ctx, insertDegreeQuery, degree); err != nil {
		return fmt.Errorf("create degree: %w", err)
	}
	return nil
}

// Delete removes a degree and, by cascade, its templates.
func (r *DegreeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM degrees WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete degree: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete degree rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountUsers returns how many users currently point at the degree.
func (r *DegreeRepository) CountUsers(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE degree_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count degree users: %w", err)
	}
	return count, nil
}

// ListTemplates returns the degree's templates ordered by year, semester and name.
func (r *DegreeRepository) ListTemplates(ctx context.Context, degreeID string) ([]models.DegreeSubjectTemplate, error) {
	query := "SELECT " + templateColumns + " FROM degree_subject_templates WHERE degree_id = $1 ORDER BY year ASC, semester ASC, subject_name ASC"
	var templates []models.DegreeSubjectTemplate
	if err := r.db.SelectContext(ctx, &templates, query, degreeID); err != nil {
		return nil, fmt.Errorf("list degree templates: %w", err)
	}
	return templates, nil
}

// FindTemplate returns a template that belongs to degreeID.
func (r *DegreeRepository) FindTemplate(ctx context.Context, degreeID, templateID string) (*models.DegreeSubjectTemplate, error) {
	query := "SELECT " + templateColumns + " FROM degree_subject_templates WHERE id = $1 AND degree_id = $2"
	var tpl models.DegreeSubjectTemplate
	if err := r.db.GetContext(ctx, &tpl, query, templateID, degreeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find degree template: %w", err)
	}
	return &tpl, nil
}

// CreateTemplate inserts a template.
func (r *DegreeRepository) CreateTemplate(ctx context.Context, tpl *models.DegreeSubjectTemplate) error {
	prepareTemplate(tpl)
	if _, err := r.db.NamedExecContext(ctx, insertTemplateQuery, tpl); err != nil {
		return fmt.Errorf("create degree template: %w", err)
	}
	return nil
}

// UpdateTemplate stores the mutable fields of a template.
func (r *DegreeRepository) UpdateTemplate(ctx context.Context, tpl *models.DegreeSubjectTemplate) error {
	tpl.UpdatedAt = time.Now().UTC()
	const query = `UPDATE degree_subject_templates SET subject_name = :subject_name, credits = :credits, year = :year, semester = :semester, updated_at = :updated_at WHERE id = :id AND degree_id = :degree_id`
	if _, err := r.db.NamedExecContext(ctx, query, tpl); err != nil {
		return fmt.Errorf("update degree template: %w", err)
	}
	return nil
}

// DeleteTemplate removes a template that belongs to degreeID.
func (r *DegreeRepository) DeleteTemplate(ctx context.Context, degreeID, templateID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM degree_subject_templates WHERE id = $1 AND degree_id = $2`, templateID, degreeID)
	if err != nil {
		return fmt.Errorf("delete degree template: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete degree template rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReplaceTemplates swaps the degree's template set in one transaction.
// When degree.ID is empty the degree is inserted first, inside the same transaction.
func (r *DegreeRepository) ReplaceTemplates(ctx context.Context, degree *models.Degree, templates []models.DegreeSubjectTemplate) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace templates: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if degree.ID == "" {
		prepareDegree(degree)
		if _, err = tx.NamedExecContext(ctx, insertDegreeQuery, degree); err != nil {
			return fmt.Errorf("create degree: %w", err)
		}
	} else if _, err = tx.ExecContext(ctx, `DELETE FROM degree_subject_templates WHERE degree_id = $1`, degree.ID); err != nil {
		return fmt.Errorf("clear degree templates: %w", err)
	}

	for i := range templates {
		tpl := &templates[i]
		tpl.ID = ""
		tpl.DegreeID = degree.ID
		prepareTemplate(tpl)
		if _, err = tx.NamedExecContext(ctx, insertTemplateQuery, tpl); err != nil {
			return fmt.Errorf("insert degree template: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace templates: %w", err)
	}
	degree.TemplateCount = len(templates)
	return nil
}

// CommittedDegreeIDs returns the user's current degree id when at least one subject is attributed to it.
func (r *DegreeRepository) CommittedDegreeIDs(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT u.degree_id FROM users u WHERE u.id = $1 AND u.degree_id IS NOT NULL AND EXISTS (SELECT 1 FROM subjects s WHERE s.user_id = u.id)`
	ids := make([]string, 0, 1)
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("list committed degrees: %w", err)
	}
	return ids, nil
}

// ActivateForUser points the user at degreeID and, when the user owns no subjects, copies the
// degree's templates into new subjects. The user row is locked for the duration so concurrent
// activations serialize and the copy happens at most once. Returns the number of copied subjects.
func (r *DegreeRepository) ActivateForUser(ctx context.Context, userID, degreeID string) (copied int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin degree activation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockUser(ctx, tx, userID); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE users SET degree_id = $1, updated_at = $2 WHERE id = $3`, degreeID, now, userID); err != nil {
		return 0, fmt.Errorf("set user degree: %w", err)
	}

	var existing int
	if err = tx.GetContext(ctx, &existing, `SELECT COUNT(*) FROM subjects WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("count user subjects: %w", err)
	}

	if existing == 0 {
		var templates []models.DegreeSubjectTemplate
		query := "SELECT " + templateColumns + " FROM degree_subject_templates WHERE degree_id = $1 ORDER BY year ASC, semester ASC, subject_name ASC"
		if err = tx.SelectContext(ctx, &templates, query, degreeID); err != nil {
			return 0, fmt.Errorf("load degree templates: %w", err)
		}
		for _, tpl := range templates {
			subject := models.Subject{
				UserID:      userID,
				SubjectName: tpl.SubjectName,
				Credits:     tpl.Credits,
				Year:        tpl.Year,
				Semester:    tpl.Semester,
			}
			prepareSubject(&subject)
			if _, err = tx.NamedExecContext(ctx, insertSubjectQuery, &subject); err != nil {
				return 0, fmt.Errorf("copy degree template: %w", err)
			}
			copied++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit degree activation: %w", err)
	}
	return copied, nil
}

// MaterializeAndCreateSubject commits a pending degree choice and inserts the subject in one
// transaction. The CREATE variant inserts a custom degree keyed by the pending reference, so
// replaying the same choice reuses the row created the first time. sql.ErrNoRows is returned when
// the EXISTING variant names a degree that no longer exists.
func (r *DegreeRepository) MaterializeAndCreateSubject(ctx context.Context, userID string, pending models.PendingDegree, subject *models.Subject) (degreeID string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin pending degree commit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockUser(ctx, tx, userID); err != nil {
		return "", err
	}

	switch pending.Kind {
	case models.PendingDegreeCreate:
		degreeID, err = materializeDraft(ctx, tx, userID, pending)
		if err != nil {
			return "", err
		}
	case models.PendingDegreeExisting:
		if err = tx.GetContext(ctx, &degreeID, `SELECT id FROM degrees WHERE id = $1`, pending.DegreeID); err != nil {
			if err == sql.ErrNoRows {
				return "", err
			}
			return "", fmt.Errorf("find pending degree: %w", err)
		}
	default:
		err = fmt.Errorf("unknown pending degree kind %q", pending.Kind)
		return "", err
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE users SET degree_id = $1, updated_at = $2 WHERE id = $3`, degreeID, now, userID); err != nil {
		return "", fmt.Errorf("set user degree: %w", err)
	}

	subject.UserID = userID
	prepareSubject(subject)
	if _, err = tx.NamedExecContext(ctx, insertSubjectQuery, subject); err != nil {
		return "", fmt.Errorf("create subject: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit pending degree: %w", err)
	}
	return degreeID, nil
}

func materializeDraft(ctx context.Context, tx *sqlx.Tx, userID string, pending models.PendingDegree) (string, error) {
	now := time.Now().UTC()
	const insertQuery = `INSERT INTO degrees (id, name, total_years, semesters_per_year, is_custom, created_by_user_id, pending_ref, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8)
ON CONFLICT (pending_ref) DO NOTHING
RETURNING id`
	var id string
	err := tx.GetContext(ctx, &id, insertQuery, uuid.NewString(), pending.Draft.Name, pending.Draft.TotalYears, pending.Draft.SemestersPerYear, userID, pending.Ref, now, now)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("create pending degree: %w", err)
	}
	if err := tx.GetContext(ctx, &id, `SELECT id FROM degrees WHERE pending_ref = $1 AND created_by_user_id = $2`, pending.Ref, userID); err != nil {
		return "", fmt.Errorf("find materialized degree: %w", err)
	}
	return id, nil
}

func lockUser(ctx context.Context, tx *sqlx.Tx, userID string) error {
	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

const insertDegreeQuery = `INSERT INTO degrees (id, name, total_years, semesters_per_year, is_custom, created_by_user_id, pending_ref, created_at, updated_at) VALUES (:id, :name, :total_years, :semesters_per_year, :is_custom, :created_by_user_id, :pending_ref, :created_at, :updated_at)`

const insertTemplateQuery = `INSERT INTO degree_subject_templates (id, degree_id, subject_name, credits, year, semester, created_at, updated_at) VALUES (:id, :degree_id, :subject_name, :credits, :year, :semester, :created_at, :updated_at)`

func prepareDegree(degree *models.Degree) {
	if degree.ID == "" {
		degree.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if degree.CreatedAt.IsZero() {
		degree.CreatedAt = now
	}
	degree.UpdatedAt = now
}

func prepareTemplate(tpl *models.DegreeSubjectTemplate) {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
}
