package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type subjectRepository interface {
	ListWithResults(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectWithResult, error)
	FindForUser(ctx context.Context, id, userID string) (*models.SubjectWithResult, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id, userID string) error
}

type pendingDegreeCommitter interface {
	ParsePendingToken(userID, token string) (*models.PendingDegree, error)
	SemesterLimit(ctx context.Context, userID string, pending *models.PendingDegree) (int, error)
	CommitPending(ctx context.Context, userID string, pending models.PendingDegree, subject *models.Subject) (string, error)
}

// CreateSubjectRequest captures fields for creating subjects. PendingDegreeToken carries a
// deferred degree choice that is committed together with the subject.
type CreateSubjectRequest struct {
	SubjectName        string  `json:"subject_name" validate:"required,max=200"`
	Credits            float64 `json:"credits" validate:"required,min=0.5,max=10,maxscale=1"`
	Year               int     `json:"year" validate:"required,min=1,max=10"`
	Semester           int     `json:"semester" validate:"required,min=1"`
	PendingDegreeToken string  `json:"pending_degree_token,omitempty"`
}

// UpdateSubjectRequest modifies subject fields. Omitted fields are left unchanged.
type UpdateSubjectRequest struct {
	SubjectName *string  `json:"subject_name" validate:"omitempty,min=1,max=200"`
	Credits     *float64 `json:"credits" validate:"omitempty,min=0.5,max=10,maxscale=1"`
	Year        *int     `json:"year" validate:"omitempty,min=1,max=10"`
	Semester    *int     `json:"semester" validate:"omitempty,min=1"`
}

func (r UpdateSubjectRequest) empty() bool {
	return r.SubjectName == nil && r.Credits == nil && r.Year == nil && r.Semester == nil
}

// SubjectCreateResult is the created subject plus the degree committed alongside it, if any.
type SubjectCreateResult struct {
	Subject           models.Subject `json:"subject"`
	CommittedDegreeID string         `json:"committed_degree_id,omitempty"`
}

// SubjectService handles the owner-scoped subject lifecycle.
type SubjectService struct {
	repo      subjectRepository
	degrees   pendingDegreeCommitter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService creates a new subject service.
func NewSubjectService(repo subjectRepository, degrees pendingDegreeCommitter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	registerScaleValidation(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, degrees: degrees, cache: cache, validator: validate, logger: logger}
}

// List returns the user's subjects with their results, ordered by year, semester and name.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectWithResult, error) {
	if filter.Year != nil && *filter.Year < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "year must be positive")
	}
	if filter.Semester != nil && *filter.Semester < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester must be positive")
	}
	subjects, err := s.repo.ListWithResults(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	if subjects == nil {
		subjects = []models.SubjectWithResult{}
	}
	return subjects, nil
}

// Get returns a subject owned by the user.
func (s *SubjectService) Get(ctx context.Context, userID, id string) (*models.SubjectWithResult, error) {
	subject, err := s.repo.FindForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create inserts a subject. When the request carries a pending degree token the degree is
// materialized and assigned in the same transaction as the insert.
func (s *SubjectService) Create(ctx context.Context, userID string, req CreateSubjectRequest) (*SubjectCreateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	name := strings.TrimSpace(req.SubjectName)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject name is required")
	}

	var pending *models.PendingDegree
	if req.PendingDegreeToken != "" {
		parsed, err := s.degrees.ParsePendingToken(userID, req.PendingDegreeToken)
		if err != nil {
			return nil, err
		}
		pending = parsed
	}
	if err := s.checkSemester(ctx, userID, pending, req.Semester); err != nil {
		return nil, err
	}

	subject := &models.Subject{UserID: userID, SubjectName: name, Credits: req.Credits, Year: req.Year, Semester: req.Semester}
	result := &SubjectCreateResult{}
	if pending != nil {
		degreeID, err := s.degrees.CommitPending(ctx, userID, *pending, subject)
		if err != nil {
			return nil, err
		}
		result.CommittedDegreeID = degreeID
	} else if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}

	s.invalidate(ctx, userID)
	result.Subject = *subject
	return result, nil
}

// Update applies a partial update to a subject owned by the user.
func (s *SubjectService) Update(ctx context.Context, userID, id string, req UpdateSubjectRequest) (*models.SubjectWithResult, error) {
	if req.empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	subject := existing.Subject
	if req.SubjectName != nil {
		name := strings.TrimSpace(*req.SubjectName)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject name is required")
		}
		subject.SubjectName = name
	}
	if req.Credits != nil {
		subject.Credits = *req.Credits
	}
	if req.Year != nil {
		subject.Year = *req.Year
	}
	if req.Semester != nil {
		if err := s.checkSemester(ctx, userID, nil, *req.Semester); err != nil {
			return nil, err
		}
		subject.Semester = *req.Semester
	}

	if err := s.repo.Update(ctx, &subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	s.invalidate(ctx, userID)
	return &models.SubjectWithResult{Subject: subject, Result: existing.Result}, nil
}

// Delete removes a subject owned by the user together with its result.
func (s *SubjectService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *SubjectService) checkSemester(ctx context.Context, userID string, pending *models.PendingDegree, semester int) error {
	limit, err := s.degrees.SemesterLimit(ctx, userID, pending)
	if err != nil {
		return err
	}
	if semester > limit {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("semester must be between 1 and %d", limit))
	}
	return nil
}

func (s *SubjectService) invalidate(ctx context.Context, userID string) {
	if err := s.cache.InvalidateUserGPA(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate gpa cache", zap.String("user_id", userID), zap.Error(err))
	}
}
