package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	"github.com/noah-isme/gpa-tracker-api/internal/service"
	"github.com/noah-isme/gpa-tracker-api/pkg/response"
)

type userAdminService interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.UserSummary, *models.Pagination, error)
	UpdateRole(ctx context.Context, id string, req service.UpdateRoleRequest, actorID string, meta models.RequestMeta) (*models.User, error)
	Delete(ctx context.Context, id string, actorID string, meta models.RequestMeta) error
}

// UserHandler handles superadmin user management endpoints.
type UserHandler struct {
	service userAdminService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userAdminService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Description List users with their degree and subject count
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "Role filter"
// @Param search query string false "Matches name, username or email"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/users [get]
func (h *UserHandler) List(c *gin.Context) {
	filter := models.UserFilter{
		Page:     intQueryDefault(c, "page", 1),
		PageSize: intQueryDefault(c, "page_size", 20),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	if role := strings.TrimSpace(c.Query("role")); role != "" {
		r := models.UserRole(strings.ToUpper(role))
		filter.Role = &r
	}

	users, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// UpdateRole godoc
// @Summary Change user role
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param payload body service.UpdateRoleRequest true "Role"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/users/{id}/role [patch]
func (h *UserHandler) UpdateRole(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req service.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid role payload"))
		return
	}

	user, err := h.service.UpdateRole(c.Request.Context(), c.Param("id"), req, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Delete godoc
// @Summary Delete user
// @Description Removes the user with all subjects and results
// @Tags Admin
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
