package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	"github.com/noah-isme/gpa-tracker-api/internal/service"
	"github.com/noah-isme/gpa-tracker-api/pkg/response"
)

type subjectService interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectWithResult, error)
	Get(ctx context.Context, userID, id string) (*models.SubjectWithResult, error)
	Create(ctx context.Context, userID string, req service.CreateSubjectRequest) (*service.SubjectCreateResult, error)
	Update(ctx context.Context, userID, id string, req service.UpdateSubjectRequest) (*models.SubjectWithResult, error)
	Delete(ctx context.Context, userID, id string) error
}

type resultService interface {
	Get(ctx context.Context, userID, subjectID string) (*models.Result, error)
	Upsert(ctx context.Context, userID, subjectID string, req service.UpsertResultRequest) (*models.Result, error)
	Delete(ctx context.Context, userID, subjectID string) error
}

// SubjectHandler exposes the caller's subjects and their results.
type SubjectHandler struct {
	subjects subjectService
	results  resultService
}

// NewSubjectHandler constructs the handler.
func NewSubjectHandler(subjects subjectService, results resultService) *SubjectHandler {
	return &SubjectHandler{subjects: subjects, results: results}
}

// List godoc
// @Summary List subjects
// @Tags Subjects
// @Produce json
// @Security BearerAuth
// @Param year query int false "Year"
// @Param semester query int false "Semester"
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
func (h *SubjectHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	year, err := optionalIntQuery(c, "year")
	if err != nil {
		response.Error(c, err)
		return
	}
	semester, err := optionalIntQuery(c, "semester")
	if err != nil {
		response.Error(c, err)
		return
	}

	subjects, err := h.subjects.List(c.Request.Context(), models.SubjectFilter{UserID: claims.UserID, Year: year, Semester: semester})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// Get godoc
// @Summary Get subject
// @Tags Subjects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id} [get]
func (h *SubjectHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	subject, err := h.subjects.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// Create godoc
// @Summary Create subject
// @Description Creates a subject. A pending_degree_token commits the deferred degree choice first.
// @Tags Subjects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateSubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /subjects [post]
func (h *SubjectHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req service.CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid subject payload"))
		return
	}

	res, err := h.subjects.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Update godoc
// @Summary Update subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Param payload body service.UpdateSubjectRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id} [patch]
func (h *SubjectHandler) Update(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req service.UpdateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid subject payload"))
		return
	}

	subject, err := h.subjects.Update(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// Delete godoc
// @Summary Delete subject
// @Tags Subjects
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id} [delete]
func (h *SubjectHandler) Delete(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.subjects.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GetResult godoc
// @Summary Get subject result
// @Tags Results
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id}/result [get]
func (h *SubjectHandler) GetResult(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.results.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UpsertResult godoc
// @Summary Record subject result
// @Description Creates or replaces the grade of a subject
// @Tags Results
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Param payload body service.UpsertResultRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id}/result [put]
func (h *SubjectHandler) UpsertResult(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req service.UpsertResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid result payload"))
		return
	}

	result, err := h.results.Upsert(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DeleteResult godoc
// @Summary Delete subject result
// @Tags Results
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id}/result [delete]
func (h *SubjectHandler) DeleteResult(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.results.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
