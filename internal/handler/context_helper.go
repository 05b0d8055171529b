package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gpa-tracker-api/internal/middleware"
	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
	"github.com/noah-isme/gpa-tracker-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requireClaims writes a 401 and returns nil when the request carries no claims.
func requireClaims(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
	}
	return claims
}

func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

// optionalIntQuery parses an integer query parameter, returning nil when it is absent.
func optionalIntQuery(c *gin.Context, key string) (*int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be an integer")
	}
	return &v, nil
}

func boolQuery(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && v
}

func intQueryDefault(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return fallback
	}
	return v
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
