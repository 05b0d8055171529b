package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	"github.com/noah-isme/gpa-tracker-api/internal/service"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type auditStub struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return a.err
}

func newRouter(tokens validatorStub, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{JWT(tokens)}, handlers...)
	chain = append(chain, func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.POST("/things/:id", chain...)
	r.GET("/things", chain...)
	return r
}

func perform(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	tokens := validatorStub{"good": {UserID: "u1", Role: models.RoleUser}}
	r := newRouter(tokens)

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/things", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/things", "bad").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/things", "good").Code)

	req := httptest.NewRequest(http.MethodGet, "/things", nil)
	req.Header.Set("Authorization", "Basic good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoles(t *testing.T) {
	tokens := validatorStub{
		"user":  {UserID: "u1", Role: models.RoleUser},
		"admin": {UserID: "a1", Role: models.RoleSuperAdmin},
	}
	r := newRouter(tokens, RequireRoles(models.RoleSuperAdmin))

	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/things", "user").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/things", "admin").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	tokens := validatorStub{"user": {UserID: "u1", Role: models.RoleUser}}
	audit := &auditStub{}
	r := newRouter(tokens, Audit(audit, models.AuditActionDegreeSelect, "degrees"))

	require.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/things/d1", "user").Code)
	require.Len(t, audit.logs, 1)
	entry := audit.logs[0]
	assert.Equal(t, models.AuditActionDegreeSelect, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u1", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "d1", *entry.ResourceID)

	perform(r, http.MethodPost, "/things/d1", "")
	assert.Len(t, audit.logs, 1, "rejected requests are not audited")

	audit.err = errors.New("db down")
	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/things/d1", "user").Code)
}

func TestMetricsMiddleware(t *testing.T) {
	metrics := service.NewMetricsService()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/ping", "")
	perform(r, http.MethodGet, "/missing", "")
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	var meta map[string]interface{}
	r.GET("/", func(c *gin.Context) {
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	perform(r, http.MethodGet, "/", "")
	require.NotNil(t, meta)
	assert.Contains(t, meta, "processing_time_ms")
}
