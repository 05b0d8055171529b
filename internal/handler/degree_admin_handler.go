package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	"github.com/noah-isme/gpa-tracker-api/internal/service"
	"github.com/noah-isme/gpa-tracker-api/pkg/response"
)

type degreeAdminService interface {
	List(ctx context.Context) ([]models.Degree, error)
	Create(ctx context.Context, draft models.DegreeDraft, actorID string, meta models.RequestMeta) (*models.Degree, error)
	Delete(ctx context.Context, id, actorID string, meta models.RequestMeta) error
	Templates(ctx context.Context, degreeID string) ([]models.DegreeSubjectTemplate, error)
	CreateTemplate(ctx context.Context, degreeID string, req service.TemplateRequest) (*models.DegreeSubjectTemplate, error)
	UpdateTemplate(ctx context.Context, degreeID, templateID string, req service.UpdateTemplateRequest) (*models.DegreeSubjectTemplate, error)
	DeleteTemplate(ctx context.Context, degreeID, templateID string) error
	Publish(ctx context.Context, adminID string, req service.PublishRequest, meta models.RequestMeta) (*service.PublishResult, error)
}

// DegreeAdminHandler exposes the system degree catalog to superadmins.
type DegreeAdminHandler struct {
	service degreeAdminService
}

// NewDegreeAdminHandler constructs the handler.
func NewDegreeAdminHandler(svc degreeAdminService) *DegreeAdminHandler {
	return &DegreeAdminHandler{service: svc}
}

// List godoc
// @Summary List system degrees
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/degrees [get]
func (h *DegreeAdminHandler) List(c *gin.Context) {
	degrees, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, degrees, nil)
}

// Create godoc
// @Summary Create system degree
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.DegreeDraft true "Degree"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/degrees [post]
func (h *DegreeAdminHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var draft models.DegreeDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		response.Error(c, bindError(err, "invalid degree payload"))
		return
	}
	degree, err := h.service.Create(c.Request.Context(), draft, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, degree)
}

// Delete godoc
// @Summary Delete system degree
// @Tags Admin
// @Security BearerAuth
// @Param id path string true "Degree ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /admin/degrees/{id} [delete]
func (h *DegreeAdminHandler) Delete(c *gin.Context) {
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

// Templates godoc
// @Summary List degree templates
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Degree ID"
// @Success 200 {object} response.Envelope
// @Router /admin/degrees/{id}/templates [get]
func (h *DegreeAdminHandler) Templates(c *gin.Context) {
	templates, err := h.service.Templates(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// CreateTemplate godoc
// @Summary Add degree template
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Degree ID"
// @Param payload body service.TemplateRequest true "Template"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/degrees/{id}/templates [post]
func (h *DegreeAdminHandler) CreateTemplate(c *gin.Context) {
	var req service.TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid template payload"))
		return
	}
	tpl, err := h.service.CreateTemplate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tpl)
}

// UpdateTemplate godoc
// @Summary Update degree template
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Degree ID"
// @Param templateId path string true "Template ID"
// @Param payload body service.UpdateTemplateRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/degrees/{id}/templates/{templateId} [patch]
func (h *DegreeAdminHandler) UpdateTemplate(c *gin.Context) {
	var req service.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid template payload"))
		return
	}
	tpl, err := h.service.UpdateTemplate(c.Request.Context(), c.Param("id"), c.Param("templateId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// DeleteTemplate godoc
// @Summary Delete degree template
// @Tags Admin
// @Security BearerAuth
// @Param id path string true "Degree ID"
// @Param templateId path string true "Template ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/degrees/{id}/templates/{templateId} [delete]
func (h *DegreeAdminHandler) DeleteTemplate(c *gin.Context) {
	if err := h.service.DeleteTemplate(c.Request.Context(), c.Param("id"), c.Param("templateId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Publish godoc
// @Summary Publish templates
// @Description Replaces a degree's templates with the caller's own subjects, optionally creating the degree
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.PublishRequest true "Target degree"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/degrees/publish [post]
func (h *DegreeAdminHandler) Publish(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req service.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid publish payload"))
		return
	}
	res, err := h.service.Publish(c.Request.Context(), claims.UserID, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}
