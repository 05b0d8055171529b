package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type mockAuthRepo struct {
	users            []*models.User
	refreshTokens    map[string]*models.RefreshToken
	createRefreshErr error
	auditLogs        []*models.AuditLog
}

func (m *mockAuthRepo) find(match func(*models.User) bool) (*models.User, error) {
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *mockAuthRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Username == username })
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID == id })
}

func (m *mockAuthRepo) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	_, err := m.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) || u.Username == username })
	return err == nil, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "generated-" + user.Username
	m.users = append(m.users, user)
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, token := range m.refreshTokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newAuthServiceUnderTest(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "gpa-tracker-test",
	})
}

func seededUser(t *testing.T) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	degree := "cs"
	return &models.User{ID: "u1", Name: "Ada", Username: "ada_l", Email: "ada@example.com", PasswordHash: string(hash), Role: models.RoleUser, IsVerified: true, DegreeID: &degree}
}

func TestAuthServiceRegister(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newAuthServiceUnderTest(repo)

	info, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Grace Hopper", Username: "grace_h", Email: "Grace@Example.com", Password: "cobol60"})
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", info.Email)
	assert.Equal(t, models.RoleUser, info.Role)
	require.Len(t, repo.users, 1)
	assert.True(t, repo.users[0].IsVerified)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[0].PasswordHash), []byte("cobol60")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionRegister, repo.auditLogs[0].Action)
}

func TestAuthServiceRegisterValidationAndConflict(t *testing.T) {
	repo := &mockAuthRepo{users: []*models.User{seededUser(t)}}
	svc := newAuthServiceUnderTest(repo)
	ctx := context.Background()

	invalid := []models.RegisterRequest{
		{Name: "A", Username: "valid_name", Email: "a@example.com", Password: "secret1"},
		{Name: "Valid", Username: "no spaces", Email: "a@example.com", Password: "secret1"},
		{Name: "Valid", Username: "ab", Email: "a@example.com", Password: "secret1"},
		{Name: "Valid", Username: "valid_name", Email: "not-an-email", Password: "secret1"},
		{Name: "Valid", Username: "valid_name", Email: "a@example.com", Password: "12345"},
	}
	for _, req := range invalid {
		_, err := svc.Register(ctx, req)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code), "%+v", req)
	}

	_, err := svc.Register(ctx, models.RegisterRequest{Name: "Other", Username: "ada_l", Email: "other@example.com", Password: "secret1"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))

	_, err = svc.Register(ctx, models.RegisterRequest{Name: "Other", Username: "other", Email: "ADA@example.com", Password: "secret1"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))
}

func TestAuthServiceLoginByUsernameOrEmail(t *testing.T) {
	repo := &mockAuthRepo{users: []*models.User{seededUser(t)}}
	svc := newAuthServiceUnderTest(repo)

	for _, identifier := range []string{"ada_l", "ada@example.com"} {
		res, err := svc.Login(context.Background(), models.LoginRequest{Username: identifier, Password: "password"})
		require.NoError(t, err, identifier)
		assert.NotEmpty(t, res.AccessToken)
		assert.NotEmpty(t, res.RefreshToken)
		assert.Equal(t, "u1", res.User.ID)

		claims, err := svc.ValidateToken(res.AccessToken)
		require.NoError(t, err)
		require.NotNil(t, claims.DegreeID)
		assert.Equal(t, "cs", *claims.DegreeID)
	}
	assert.Len(t, repo.refreshTokens, 2)
}

func TestAuthServiceLoginInvalidCredentials(t *testing.T) {
	repo := &mockAuthRepo{users: []*models.User{seededUser(t)}}
	svc := newAuthServiceUnderTest(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ada_l", Password: "wrong"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidCredentials.Code))

	_, err = svc.Login(context.Background(), models.LoginRequest{Username: "nobody", Password: "password"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidCredentials.Code))
	assert.Empty(t, repo.refreshTokens)
}

func TestAuthServiceRefreshToken(t *testing.T) {
	user := seededUser(t)
	repo := &mockAuthRepo{users: []*models.User{user}, refreshTokens: make(map[string]*models.RefreshToken)}
	token := &models.RefreshToken{ID: "rt1", UserID: user.ID, Token: "token", ExpiresAt: time.Now().Add(time.Hour)}
	repo.refreshTokens[token.Token] = token
	svc := newAuthServiceUnderTest(repo)

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnauthorized.Code))
}

func TestAuthServiceLogout(t *testing.T) {
	user := seededUser(t)
	repo := &mockAuthRepo{users: []*models.User{user}, refreshTokens: map[string]*models.RefreshToken{
		"mine": {ID: "rt1", UserID: "u1", Token: "mine", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := newAuthServiceUnderTest(repo)

	err := svc.Logout(context.Background(), "mine", "u2", models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	require.NoError(t, svc.Logout(context.Background(), "mine", "u1", models.RequestMeta{}))
	assert.True(t, repo.refreshTokens["mine"].Revoked)
}

func TestAuthServiceMe(t *testing.T) {
	repo := &mockAuthRepo{users: []*models.User{seededUser(t)}}
	svc := newAuthServiceUnderTest(repo)

	info, err := svc.Me(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada_l", info.Username)

	_, err = svc.Me(context.Background(), "ghost")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestValidateToken(t *testing.T) {
	svc := newAuthServiceUnderTest(&mockAuthRepo{})
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleSuperAdmin}
	token, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleSuperAdmin, claims.Role)

	_, err = svc.ValidateToken(token + "tampered")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnauthorized.Code))
}
