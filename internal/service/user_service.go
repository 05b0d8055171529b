package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type userRepository interface {
	ListSummaries(ctx context.Context, filter models.UserFilter) ([]models.UserSummary, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UpdateRoleRequest changes a user's role.
type UpdateRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required,oneof=USER SUPERADMIN"`
}

// UserService handles superadmin user management.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated users with their degree name and subject count.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserSummary, *models.Pagination, error) {
	if filter.Role != nil && *filter.Role != models.RoleUser && *filter.Role != models.RoleSuperAdmin {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown role filter")
	}
	users, total, err := s.repo.ListSummaries(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.UserSummary{}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// UpdateRole changes the role of another user.
func (s *UserService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	if id == actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot change your own role")
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	oldRole := user.Role
	if err := s.repo.UpdateRole(ctx, id, req.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	user.Role = req.Role

	s.audit(ctx, actorID, models.AuditActionUserRoleChange, user.ID, map[string]interface{}{"role": oldRole}, map[string]interface{}{"role": user.Role}, meta)
	return user, nil
}

// Delete removes another user together with everything they own.
func (s *UserService) Delete(ctx context.Context, id string, actorID string, meta models.RequestMeta) error {
	if id == actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete your own account")
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.audit(ctx, actorID, models.AuditActionUserDelete, user.ID, map[string]interface{}{"username": user.Username, "email": user.Email}, nil, meta)
	return nil
}

func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *UserService) audit(ctx context.Context, actorID, action, resourceID string, oldValues, newValues map[string]interface{}, meta models.RequestMeta) {
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "users",
		ResourceID: &resourceID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
