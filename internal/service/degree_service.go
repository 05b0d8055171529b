package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

// DefaultSemestersPerYear bounds subject semesters for users without a degree.
const DefaultSemestersPerYear = 2

type degreeWorkflowRepository interface {
	ListVisible(ctx context.Context, userID string) ([]models.Degree, error)
	FindByID(ctx context.Context, id string) (*models.Degree, error)
	Create(ctx context.Context, degree *models.Degree) error
	CommittedDegreeIDs(ctx context.Context, userID string) ([]string, error)
	ActivateForUser(ctx context.Context, userID, degreeID string) (int, error)
	MaterializeAndCreateSubject(ctx context.Context, userID string, pending models.PendingDegree, subject *models.Subject) (string, error)
}

type degreeUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// DegreeWorkflowConfig configures the signed pending-degree tokens.
type DegreeWorkflowConfig struct {
	PendingSecret string
	PendingTTL    time.Duration
	Issuer        string
}

// SelectDegreeRequest is the degree-selection command. Exactly one of DegreeID or NewDegree is set.
type SelectDegreeRequest struct {
	DegreeID   string              `json:"degree_id" validate:"required_without=NewDegree,excluded_with=NewDegree"`
	NewDegree  *models.DegreeDraft `json:"new_degree" validate:"omitempty"`
	TotalYears *int                `json:"total_years" validate:"omitempty,min=1,max=10"`
	Defer      bool                `json:"defer"`
}

// DegreeService runs the degree-selection workflow: immediate commits with a one-time template
// copy, deferred choices handed back as signed tokens, and their materialization on first write.
type DegreeService struct {
	repo      degreeWorkflowRepository
	users     degreeUserReader
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       DegreeWorkflowConfig
	now       func() time.Time
}

// NewDegreeService constructs the workflow service.
func NewDegreeService(repo degreeWorkflowRepository, users degreeUserReader, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg DegreeWorkflowConfig) *DegreeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 24 * time.Hour
	}
	return &DegreeService{
		repo:      repo,
		users:     users,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns the degrees the user may pick.
func (s *DegreeService) List(ctx context.Context, userID string) ([]models.Degree, error) {
	degrees, err := s.repo.ListVisible(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list degrees")
	}
	if degrees == nil {
		degrees = []models.Degree{}
	}
	return degrees, nil
}

// CommittedIDs returns the degrees the user has committed subjects under.
func (s *DegreeService) CommittedIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.repo.CommittedDegreeIDs(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load committed degrees")
	}
	return ids, nil
}

// CreateCustom stores a custom degree owned by the user right away.
func (s *DegreeService) CreateCustom(ctx context.Context, userID string, draft models.DegreeDraft) (*models.Degree, error) {
	if err := s.validator.Struct(draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid degree payload")
	}
	owner := userID
	degree := &models.Degree{
		Name:             strings.TrimSpace(draft.Name),
		TotalYears:       draft.TotalYears,
		SemestersPerYear: draft.SemestersPerYear,
		IsCustom:         true,
		CreatedByUserID:  &owner,
	}
	if err := s.repo.Create(ctx, degree); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create degree")
	}
	return degree, nil
}

// Select commits the chosen degree now or defers it behind a pending token.
//
// A degree the user already has subjects under, or any visible degree picked without a year
// override, is committed immediately and its templates are copied when the user owns no subjects.
// A year override or a brand-new degree yields a CREATE pending choice; Defer on an existing
// degree yields an EXISTING pending choice. Pending choices write nothing to storage.
func (s *DegreeService) Select(ctx context.Context, userID string, req SelectDegreeRequest) (*models.DegreeSelectionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid degree selection")
	}

	if req.NewDegree != nil {
		if err := s.validator.Struct(req.NewDegree); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid degree payload")
		}
		draft := *req.NewDegree
		if req.TotalYears != nil {
			draft.TotalYears = *req.TotalYears
		}
		return s.pending(userID, models.NewCreatePendingDegree(uuid.NewString(), draft, ""))
	}

	degree, err := s.repo.FindByID(ctx, req.DegreeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "degree not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load degree")
	}
	if !degree.VisibleTo(userID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "degree not found")
	}

	committed, err := s.CommittedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if containsString(committed, degree.ID) {
		return s.commit(ctx, userID, degree)
	}

	if req.TotalYears != nil && *req.TotalYears != degree.TotalYears {
		draft := models.DegreeDraft{Name: degree.Name, TotalYears: *req.TotalYears, SemestersPerYear: degree.SemestersPerYear}
		return s.pending(userID, models.NewCreatePendingDegree(uuid.NewString(), draft, degree.ID))
	}
	if req.Defer {
		pending := models.NewExistingPendingDegree(uuid.NewString(), degree.ID)
		result, err := s.pending(userID, pending)
		if err != nil {
			return nil, err
		}
		result.Degree = degree
		return result, nil
	}
	return s.commit(ctx, userID, degree)
}

func (s *DegreeService) commit(ctx context.Context, userID string, degree *models.Degree) (*models.DegreeSelectionResult, error) {
	copied, err := s.repo.ActivateForUser(ctx, userID, degree.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate degree")
	}
	if copied > 0 {
		s.invalidate(ctx, userID)
	}
	s.metrics.RecordDegreeSelection(models.SelectionCommitted, copied)
	s.logger.Info("degree committed", zap.String("user_id", userID), zap.String("degree_id", degree.ID), zap.Int("copied_subjects", copied))
	return &models.DegreeSelectionResult{State: models.SelectionCommitted, Degree: degree, CopiedSubjects: copied}, nil
}

func (s *DegreeService) pending(userID string, pending models.PendingDegree) (*models.DegreeSelectionResult, error) {
	if err := pending.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid degree selection")
	}
	token, err := s.signPending(userID, pending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign pending degree")
	}
	s.metrics.RecordDegreeSelection(models.SelectionPending, 0)
	return &models.DegreeSelectionResult{State: models.SelectionPending, Pending: &pending, PendingToken: token}, nil
}

// ParsePendingToken verifies a pending-degree token issued to userID and returns its choice.
func (s *DegreeService) ParsePendingToken(userID, token string) (*models.PendingDegree, error) {
	claims := &models.PendingDegreeClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.PendingSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidPendingDegree.Code, appErrors.ErrInvalidPendingDegree.Status, appErrors.ErrInvalidPendingDegree.Message)
	}
	if claims.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrInvalidPendingDegree, "pending degree was issued to another user")
	}
	if err := claims.Pending.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidPendingDegree.Code, appErrors.ErrInvalidPendingDegree.Status, appErrors.ErrInvalidPendingDegree.Message)
	}
	pending := claims.Pending
	return &pending, nil
}

// SemesterLimit returns the semesters-per-year bound that applies to a new subject: the pending
// choice's when one is carried, otherwise the user's current degree's, otherwise the default.
func (s *DegreeService) SemesterLimit(ctx context.Context, userID string, pending *models.PendingDegree) (int, error) {
	if pending != nil {
		if limit := pending.SemestersPerYear(); limit > 0 {
			return limit, nil
		}
		return s.degreeSemesters(ctx, pending.DegreeID, true)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.DegreeID == nil {
		return DefaultSemestersPerYear, nil
	}
	return s.degreeSemesters(ctx, *user.DegreeID, false)
}

func (s *DegreeService) degreeSemesters(ctx context.Context, degreeID string, fromPending bool) (int, error) {
	degree, err := s.repo.FindByID(ctx, degreeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if fromPending {
				return 0, appErrors.Clone(appErrors.ErrInvalidPendingDegree, "pending degree no longer exists")
			}
			return DefaultSemestersPerYear, nil
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load degree")
	}
	if degree.SemestersPerYear < 1 {
		return DefaultSemestersPerYear, nil
	}
	return degree.SemestersPerYear, nil
}

// CommitPending materializes the pending choice, points the user at it and creates subject,
// all in one storage transaction. The subject is never written against a missing degree.
func (s *DegreeService) CommitPending(ctx context.Context, userID string, pending models.PendingDegree, subject *models.Subject) (string, error) {
	if err := pending.Validate(); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInvalidPendingDegree.Code, appErrors.ErrInvalidPendingDegree.Status, appErrors.ErrInvalidPendingDegree.Message)
	}
	degreeID, err := s.repo.MaterializeAndCreateSubject(ctx, userID, pending, subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrInvalidPendingDegree, "pending degree no longer exists")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit pending degree")
	}
	s.invalidate(ctx, userID)
	s.metrics.RecordPendingCommit()
	s.logger.Info("pending degree committed",
		zap.String("user_id", userID),
		zap.String("degree_id", degreeID),
		zap.String("kind", string(pending.Kind)),
		zap.String("pending_ref", pending.Ref))
	return degreeID, nil
}

func (s *DegreeService) signPending(userID string, pending models.PendingDegree) (string, error) {
	issuedAt := s.now()
	claims := &models.PendingDegreeClaims{
		UserID:  userID,
		Pending: pending,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        pending.Ref,
			Issuer:    s.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.cfg.PendingTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.PendingSecret))
}

func (s *DegreeService) invalidate(ctx context.Context, userID string) {
	if err := s.cache.InvalidateUserGPA(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate gpa cache", zap.String("user_id", userID), zap.Error(err))
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
