package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type degreeCatalogRepository interface {
	ListSystem(ctx context.Context) ([]models.Degree, error)
	FindByID(ctx context.Context, id string) (*models.Degree, error)
	Create(ctx context.Context, degree *models.Degree) error
	Delete(ctx context.Context, id string) error
	CountUsers(ctx context.Context, id string) (int, error)
	ListTemplates(ctx context.Context, degreeID string) ([]models.DegreeSubjectTemplate, error)
	FindTemplate(ctx context.Context, degreeID, templateID string) (*models.DegreeSubjectTemplate, error)
	CreateTemplate(ctx context.Context, tpl *models.DegreeSubjectTemplate) error
	UpdateTemplate(ctx context.Context, tpl *models.DegreeSubjectTemplate) error
	DeleteTemplate(ctx context.Context, degreeID, templateID string) error
	ReplaceTemplates(ctx context.Context, degree *models.Degree, templates []models.DegreeSubjectTemplate) error
}

type subjectLister interface {
	ListWithResults(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectWithResult, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// TemplateRequest creates a degree subject template.
type TemplateRequest struct {
	SubjectName string  `json:"subject_name" validate:"required,max=200"`
	Credits     float64 `json:"credits" validate:"required,min=0.5,max=10,maxscale=1"`
	Year        int     `json:"year" validate:"required,min=1,max=10"`
	Semester    int     `json:"semester" validate:"required,min=1,max=4"`
}

// UpdateTemplateRequest modifies template fields. Omitted fields are left unchanged.
type UpdateTemplateRequest struct {
	SubjectName *string  `json:"subject_name" validate:"omitempty,min=1,max=200"`
	Credits     *float64 `json:"credits" validate:"omitempty,min=0.5,max=10,maxscale=1"`
	Year        *int     `json:"year" validate:"omitempty,min=1,max=10"`
	Semester    *int     `json:"semester" validate:"omitempty,min=1,max=4"`
}

// PublishRequest turns the admin's own subjects into a degree's templates. Exactly one of
// DegreeID or NewDegree is set; NewDegree creates a system degree first.
type PublishRequest struct {
	DegreeID  string              `json:"degree_id" validate:"required_without=NewDegree,excluded_with=NewDegree"`
	NewDegree *models.DegreeDraft `json:"new_degree" validate:"omitempty"`
}

// PublishResult reports the degree that received the templates.
type PublishResult struct {
	Degree models.Degree `json:"degree"`
	Count  int           `json:"count"`
}

// DegreeAdminService manages the system degree catalog and its templates.
type DegreeAdminService struct {
	repo      degreeCatalogRepository
	subjects  subjectLister
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDegreeAdminService constructs the catalog service.
func NewDegreeAdminService(repo degreeCatalogRepository, subjects subjectLister, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *DegreeAdminService {
	if validate == nil {
		validate = validator.New()
	}
	registerScaleValidation(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DegreeAdminService{repo: repo, subjects: subjects, audit: audit, validator: validate, logger: logger}
}

// List returns the system catalog.
func (s *DegreeAdminService) List(ctx context.Context) ([]models.Degree, error) {
	degrees, err := s.repo.ListSystem(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list degrees")
	}
	if degrees == nil {
		degrees = []models.Degree{}
	}
	return degrees, nil
}

// Create adds a system degree.
func (s *DegreeAdminService) Create(ctx context.Context, draft models.DegreeDraft, actorID string, meta models.RequestMeta) (*models.Degree, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	if err := s.validator.Struct(draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid degree payload")
	}
	degree := &models.Degree{Name: draft.Name, TotalYears: draft.TotalYears, SemestersPerYear: draft.SemestersPerYear}
	if err := s.repo.Create(ctx, degree); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create degree")
	}
	s.record(ctx, actorID, models.AuditActionDegreeCreate, degree.ID, nil, degreeAuditValues(degree), meta)
	return degree, nil
}

// Delete removes a system degree that no user currently points at.
func (s *DegreeAdminService) Delete(ctx context.Context, id, actorID string, meta models.RequestMeta) error {
	degree, err := s.systemDegree(ctx, id)
	if err != nil {
		return err
	}
	users, err := s.repo.CountUsers(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check degree usage")
	}
	if users > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "degree is in use")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "degree not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete degree")
	}
	s.record(ctx, actorID, models.AuditActionDegreeDelete, id, degreeAuditValues(degree), nil, meta)
	return nil
}

// Templates lists a degree's templates ordered by year, semester and name.
func (s *DegreeAdminService) Templates(ctx context.Context, degreeID string) ([]models.DegreeSubjectTemplate, error) {
	if _, err := s.degree(ctx, degreeID); err != nil {
		return nil, err
	}
	templates, err := s.repo.ListTemplates(ctx, degreeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list templates")
	}
	if templates == nil {
		templates = []models.DegreeSubjectTemplate{}
	}
	return templates, nil
}

// CreateTemplate adds a template to the degree.
func (s *DegreeAdminService) CreateTemplate(ctx context.Context, degreeID string, req TemplateRequest) (*models.DegreeSubjectTemplate, error) {
	req.SubjectName = strings.TrimSpace(req.SubjectName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	degree, err := s.degree(ctx, degreeID)
	if err != nil {
		return nil, err
	}
	if err := checkTemplateShape(degree, req.Year, req.Semester); err != nil {
		return nil, err
	}

	tpl := &models.DegreeSubjectTemplate{
		DegreeID:    degreeID,
		SubjectName: req.SubjectName,
		Credits:     req.Credits,
		Year:        req.Year,
		Semester:    req.Semester,
	}
	if err := s.repo.CreateTemplate(ctx, tpl); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create template")
	}
	return tpl, nil
}

// UpdateTemplate patches a template that belongs to the degree.
func (s *DegreeAdminService) UpdateTemplate(ctx context.Context, degreeID, templateID string, req UpdateTemplateRequest) (*models.DegreeSubjectTemplate, error) {
	if req.SubjectName != nil {
		trimmed := strings.TrimSpace(*req.SubjectName)
		req.SubjectName = &trimmed
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	degree, err := s.degree(ctx, degreeID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.repo.FindTemplate(ctx, degreeID, templateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}

	if req.SubjectName != nil {
		tpl.SubjectName = *req.SubjectName
	}
	if req.Credits != nil {
		tpl.Credits = *req.Credits
	}
	if req.Year != nil {
		tpl.Year = *req.Year
	}
	if req.Semester != nil {
		tpl.Semester = *req.Semester
	}
	if err := checkTemplateShape(degree, tpl.Year, tpl.Semester); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTemplate(ctx, tpl); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update template")
	}
	return tpl, nil
}

// DeleteTemplate removes a template that belongs to the degree.
func (s *DegreeAdminService) DeleteTemplate(ctx context.Context, degreeID, templateID string) error {
	if err := s.repo.DeleteTemplate(ctx, degreeID, templateID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete template")
	}
	return nil
}

// Publish replaces a degree's templates with the admin's own subjects.
func (s *DegreeAdminService) Publish(ctx context.Context, adminID string, req PublishRequest, meta models.RequestMeta) (*PublishResult, error) {
	if req.NewDegree != nil {
		req.NewDegree.Name = strings.TrimSpace(req.NewDegree.Name)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid publish payload")
	}

	var degree *models.Degree
	if req.NewDegree != nil {
		degree = &models.Degree{Name: req.NewDegree.Name, TotalYears: req.NewDegree.TotalYears, SemestersPerYear: req.NewDegree.SemestersPerYear}
	} else {
		var err error
		if degree, err = s.systemDegree(ctx, req.DegreeID); err != nil {
			return nil, err
		}
	}

	subjects, err := s.subjects.ListWithResults(ctx, models.SubjectFilter{UserID: adminID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	if len(subjects) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "you have no subjects to publish")
	}

	templates := make([]models.DegreeSubjectTemplate, 0, len(subjects))
	for _, sub := range subjects {
		templates = append(templates, models.DegreeSubjectTemplate{
			SubjectName: sub.SubjectName,
			Credits:     sub.Credits,
			Year:        sub.Year,
			Semester:    sub.Semester,
		})
	}

	if err := s.repo.ReplaceTemplates(ctx, degree, templates); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish templates")
	}

	s.record(ctx, adminID, models.AuditActionDegreePublish, degree.ID, nil, map[string]interface{}{"templates": len(templates)}, meta)
	s.logger.Info("degree templates published", zap.String("degree_id", degree.ID), zap.Int("count", len(templates)))
	return &PublishResult{Degree: *degree, Count: len(templates)}, nil
}

func (s *DegreeAdminService) degree(ctx context.Context, id string) (*models.Degree, error) {
	degree, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "degree not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load degree")
	}
	return degree, nil
}

func (s *DegreeAdminService) systemDegree(ctx context.Context, id string) (*models.Degree, error) {
	degree, err := s.degree(ctx, id)
	if err != nil {
		return nil, err
	}
	if degree.IsCustom {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "custom degrees are managed by their owners")
	}
	return degree, nil
}

func (s *DegreeAdminService) record(ctx context.Context, actorID, action, degreeID string, oldValues, newValues map[string]interface{}, meta models.RequestMeta) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "degrees",
		ResourceID: &degreeID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func degreeAuditValues(d *models.Degree) map[string]interface{} {
	return map[string]interface{}{
		"name":               d.Name,
		"total_years":        d.TotalYears,
		"semesters_per_year": d.SemestersPerYear,
	}
}

func checkTemplateShape(degree *models.Degree, year, semester int) error {
	if year > degree.TotalYears {
		return appErrors.Clone(appErrors.ErrValidation, "year exceeds the degree length")
	}
	if semester > degree.SemestersPerYear {
		return appErrors.Clone(appErrors.ErrValidation, "semester exceeds the degree's semesters per year")
	}
	return nil
}
