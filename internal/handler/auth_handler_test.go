package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type authServiceMock struct {
	lastLogin  models.LoginRequest
	loggedOut  string
	registered models.RegisterRequest
}

func (m *authServiceMock) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	m.registered = req
	return &models.UserInfo{ID: "u1", Username: req.Username, Role: models.RoleUser}, nil
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.lastLogin = req
	if req.Password != "secret1" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *authServiceMock) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "access-2"}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, refreshToken string, userID string, meta models.RequestMeta) error {
	m.loggedOut = refreshToken
	return nil
}

func (m *authServiceMock) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID}, nil
}

type verificationServiceMock struct {
	sendErr error
}

func (m *verificationServiceMock) SendCode(ctx context.Context, req models.SendCodeRequest) (time.Time, error) {
	return time.Now().Add(10 * time.Minute), m.sendErr
}

func (m *verificationServiceMock) VerifyCode(ctx context.Context, req models.VerifyCodeRequest) error {
	if req.Code != "123456" {
		return appErrors.Clone(appErrors.ErrValidation, "invalid or expired code")
	}
	return nil
}

func TestAuthHandlerRegisterAndLogin(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc, &verificationServiceMock{})

	c, w := newGinContext(http.MethodPost, "/auth/register", []byte(`{"name":"Ada","username":"ada_l","email":"ada@example.com","password":"secret1"}`))
	h.Register(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ada_l", svc.registered.Username)

	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`{"username":"ada_l","password":"secret1"}`))
	c.Request.Header.Set("User-Agent", "test-agent")
	h.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test-agent", svc.lastLogin.UserAgent)
	assert.Contains(t, w.Body.String(), `"access_token":"access"`)

	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`{"username":"ada_l","password":"nope"}`))
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLogoutAndMe(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc, &verificationServiceMock{})

	c, w := newGinContext(http.MethodPost, "/auth/logout", []byte(`{"refresh_token":"rt"}`))
	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/logout", []byte(`{}`))
	withUser(c, "u1", models.RoleUser)
	h.Logout(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/logout", []byte(`{"refresh_token":"rt"}`))
	withUser(c, "u1", models.RoleUser)
	h.Logout(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "rt", svc.loggedOut)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	withUser(c, "u1", models.RoleUser)
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"u1"`)
}

func TestAuthHandlerVerificationCodes(t *testing.T) {
	verification := &verificationServiceMock{}
	h := NewAuthHandler(&authServiceMock{}, verification)

	c, w := newGinContext(http.MethodPost, "/auth/send-code", []byte(`{"email":"ada@example.com"}`))
	h.SendCode(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "expires_at")

	verification.sendErr = errors.New("queue down")
	c, w = newGinContext(http.MethodPost, "/auth/send-code", []byte(`{"email":"ada@example.com"}`))
	h.SendCode(c)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/verify-code", []byte(`{"email":"ada@example.com","code":"000000"}`))
	h.VerifyCode(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/verify-code", []byte(`{"email":"ada@example.com","code":"123456"}`))
	h.VerifyCode(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
