package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	"github.com/noah-isme/gpa-tracker-api/internal/service"
	"github.com/noah-isme/gpa-tracker-api/pkg/response"
)

type degreeService interface {
	List(ctx context.Context, userID string) ([]models.Degree, error)
	CommittedIDs(ctx context.Context, userID string) ([]string, error)
	CreateCustom(ctx context.Context, userID string, draft models.DegreeDraft) (*models.Degree, error)
	Select(ctx context.Context, userID string, req service.SelectDegreeRequest) (*models.DegreeSelectionResult, error)
}

// DegreeHandler exposes degree listing and the selection workflow to users.
type DegreeHandler struct {
	service degreeService
}

// NewDegreeHandler constructs the handler.
func NewDegreeHandler(svc degreeService) *DegreeHandler {
	return &DegreeHandler{service: svc}
}

// List godoc
// @Summary List selectable degrees
// @Description System degrees followed by the caller's custom degrees
// @Tags Degrees
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /degrees [get]
func (h *DegreeHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	degrees, err := h.service.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, degrees, nil)
}

// Committed godoc
// @Summary List committed degree ids
// @Tags Degrees
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /degrees/committed [get]
func (h *DegreeHandler) Committed(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	ids, err := h.service.CommittedIDs(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ids, nil)
}

// Select godoc
// @Summary Select degree
// @Description Commits the degree now (copying its templates once) or returns a pending token to send with the first subject
// @Tags Degrees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.SelectDegreeRequest true "Selection"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /degrees/select [post]
func (h *DegreeHandler) Select(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req service.SelectDegreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid selection payload"))
		return
	}

	res, err := h.service.Select(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// CreateCustom godoc
// @Summary Create custom degree
// @Tags Degrees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.DegreeDraft true "Degree"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /degrees/custom [post]
func (h *DegreeHandler) CreateCustom(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var draft models.DegreeDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		response.Error(c, bindError(err, "invalid degree payload"))
		return
	}

	degree, err := h.service.CreateCustom(c.Request.Context(), claims.UserID, draft)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, degree)
}
