package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type resultRepository interface {
	FindBySubject(ctx context.Context, subjectID string) (*models.Result, error)
	Upsert(ctx context.Context, result *models.Result) error
	DeleteBySubject(ctx context.Context, subjectID string) error
}

type resultSubjectReader interface {
	FindForUser(ctx context.Context, id, userID string) (*models.SubjectWithResult, error)
}

// UpsertResultRequest records or replaces the grade of a subject. Status defaults to Completed.
type UpsertResultRequest struct {
	GradePoint *float64            `json:"grade_point" validate:"required,min=0,max=4,maxscale=2"`
	Status     models.ResultStatus `json:"status" validate:"omitempty,oneof=Completed Incomplete"`
}

// ResultService manages the single result attached to a subject.
type ResultService struct {
	repo      resultRepository
	subjects  resultSubjectReader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewResultService constructs a ResultService.
func NewResultService(repo resultRepository, subjects resultSubjectReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ResultService {
	if validate == nil {
		validate = validator.New()
	}
	registerScaleValidation(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{repo: repo, subjects: subjects, cache: cache, validator: validate, logger: logger}
}

// Get returns the result of a subject owned by the user.
func (s *ResultService) Get(ctx context.Context, userID, subjectID string) (*models.Result, error) {
	if err := s.ensureOwned(ctx, userID, subjectID); err != nil {
		return nil, err
	}
	result, err := s.repo.FindBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load result")
	}
	return result, nil
}

// Upsert creates the subject's result or replaces the existing one.
func (s *ResultService) Upsert(ctx context.Context, userID, subjectID string, req UpsertResultRequest) (*models.Result, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid result payload")
	}
	if err := s.ensureOwned(ctx, userID, subjectID); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = models.ResultStatusCompleted
	}
	result := &models.Result{SubjectID: subjectID, GradePoint: *req.GradePoint, Status: status}
	if err := s.repo.Upsert(ctx, result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save result")
	}
	s.invalidate(ctx, userID)
	return result, nil
}

// Delete removes the subject's result, leaving the subject ungraded.
func (s *ResultService) Delete(ctx context.Context, userID, subjectID string) error {
	if err := s.ensureOwned(ctx, userID, subjectID); err != nil {
		return err
	}
	if err := s.repo.DeleteBySubject(ctx, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete result")
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *ResultService) ensureOwned(ctx context.Context, userID, subjectID string) error {
	if _, err := s.subjects.FindForUser(ctx, subjectID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return nil
}

func (s *ResultService) invalidate(ctx context.Context, userID string) {
	if err := s.cache.InvalidateUserGPA(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate gpa cache", zap.String("user_id", userID), zap.Error(err))
	}
}
