package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type mockUserRepo struct {
	users      map[string]*models.User
	summaries  []models.UserSummary
	listErr    error
	lastFilter models.UserFilter
	audits     []*models.AuditLog
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	repo := &mockUserRepo{users: map[string]*models.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockUserRepo) ListSummaries(ctx context.Context, filter models.UserFilter) ([]models.UserSummary, int, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.summaries, len(m.summaries), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *u
	return &clone, nil
}

func (m *mockUserRepo) UpdateRole(ctx context.Context, id string, role models.UserRole) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, log)
	return nil
}

func TestUserServiceList(t *testing.T) {
	name := "Computer Science"
	repo := newMockUserRepo()
	repo.summaries = []models.UserSummary{{ID: "u1", Username: "ada", DegreeName: &name, SubjectCount: 12}}
	svc := NewUserService(repo, nil, nil)

	users, page, err := svc.List(context.Background(), models.UserFilter{Search: "ada", PageSize: 500})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, 12, users[0].SubjectCount)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "ada", repo.lastFilter.Search)

	bad := models.UserRole("ADMIN")
	_, _, err = svc.List(context.Background(), models.UserFilter{Role: &bad})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	repo.listErr = errors.New("db down")
	_, _, err = svc.List(context.Background(), models.UserFilter{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInternal.Code))
}

func TestUserServiceUpdateRole(t *testing.T) {
	repo := newMockUserRepo(
		&models.User{ID: "admin", Role: models.RoleSuperAdmin},
		&models.User{ID: "u1", Username: "ada", Role: models.RoleUser},
	)
	svc := NewUserService(repo, nil, nil)
	ctx := context.Background()
	meta := models.RequestMeta{IP: "127.0.0.1"}

	_, err := svc.UpdateRole(ctx, "admin", UpdateRoleRequest{Role: models.RoleUser}, "admin", meta)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	_, err = svc.UpdateRole(ctx, "u1", UpdateRoleRequest{Role: "ADMIN"}, "admin", meta)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.UpdateRole(ctx, "ghost", UpdateRoleRequest{Role: models.RoleSuperAdmin}, "admin", meta)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	user, err := svc.UpdateRole(ctx, "u1", UpdateRoleRequest{Role: models.RoleSuperAdmin}, "admin", meta)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, user.Role)
	assert.Equal(t, models.RoleSuperAdmin, repo.users["u1"].Role)

	require.Len(t, repo.audits, 1)
	audit := repo.audits[0]
	assert.Equal(t, models.AuditActionUserRoleChange, audit.Action)
	assert.Equal(t, "admin", *audit.UserID)
	assert.Equal(t, "127.0.0.1", audit.IPAddress)
	var oldValues map[string]string
	require.NoError(t, json.Unmarshal(audit.OldValues, &oldValues))
	assert.Equal(t, "USER", oldValues["role"])
}

func TestUserServiceDelete(t *testing.T) {
	repo := newMockUserRepo(
		&models.User{ID: "admin", Role: models.RoleSuperAdmin},
		&models.User{ID: "u1", Username: "ada", Email: "ada@example.com"},
	)
	svc := NewUserService(repo, nil, nil)
	ctx := context.Background()

	assert.True(t, appErrors.IsCode(svc.Delete(ctx, "admin", "admin", models.RequestMeta{}), appErrors.ErrForbidden.Code))
	assert.True(t, appErrors.IsCode(svc.Delete(ctx, "ghost", "admin", models.RequestMeta{}), appErrors.ErrNotFound.Code))

	require.NoError(t, svc.Delete(ctx, "u1", "admin", models.RequestMeta{}))
	assert.NotContains(t, repo.users, "u1")
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionUserDelete, repo.audits[0].Action)
	assert.Nil(t, repo.audits[0].NewValues)
}
