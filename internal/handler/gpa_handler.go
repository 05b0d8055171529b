package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gpa-tracker-api/internal/middleware"
	"github.com/noah-isme/gpa-tracker-api/internal/models"
	"github.com/noah-isme/gpa-tracker-api/internal/service"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
	"github.com/noah-isme/gpa-tracker-api/pkg/response"
)

type gpaService interface {
	Calculate(ctx context.Context, userID string, q models.GPAQuery) (*models.GPACalculation, error)
	Breakdown(ctx context.Context, userID string, includeIncomplete bool) (*models.GPABreakdownReport, error)
}

type transcriptService interface {
	Export(ctx context.Context, userID string, format service.TranscriptFormat, includeIncomplete bool) (*service.TranscriptFile, error)
}

// GPAHandler serves GPA queries and transcript downloads.
type GPAHandler struct {
	gpa         gpaService
	transcripts transcriptService
}

// NewGPAHandler constructs the handler.
func NewGPAHandler(gpa gpaService, transcripts transcriptService) *GPAHandler {
	return &GPAHandler{gpa: gpa, transcripts: transcripts}
}

// Get godoc
// @Summary Compute GPA
// @Description type is cumulative (default), year, semester, multi-year or breakdown
// @Tags GPA
// @Produce json
// @Security BearerAuth
// @Param type query string false "Aggregation mode"
// @Param year query int false "Year for year and semester modes"
// @Param semester query int false "Semester for semester mode"
// @Param years query string false "Comma separated years for multi-year mode"
// @Param includeIncomplete query bool false "Include Incomplete results"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /gpa [get]
func (h *GPAHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	q, err := parseGPAQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var data interface{}
	if q.Type == models.GPAQueryBreakdown {
		data, err = h.gpa.Breakdown(c.Request.Context(), claims.UserID, q.IncludeIncomplete)
	} else {
		data, err = h.gpa.Calculate(c.Request.Context(), claims.UserID, q)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, data, nil, middleware.ExtractMeta(c))
}

// Transcript godoc
// @Summary Download transcript
// @Tags GPA
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv (default) or pdf"
// @Param includeIncomplete query bool false "Include Incomplete results"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /gpa/transcript [get]
func (h *GPAHandler) Transcript(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	format := service.TranscriptFormat(strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", string(service.TranscriptFormatCSV)))))

	file, err := h.transcripts.Export(c.Request.Context(), claims.UserID, format, boolQuery(c, "includeIncomplete"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

func parseGPAQuery(c *gin.Context) (models.GPAQuery, error) {
	q := models.GPAQuery{
		Type:              models.GPAQueryType(strings.ToLower(strings.TrimSpace(c.DefaultQuery("type", string(models.GPAQueryCumulative))))),
		IncludeIncomplete: boolQuery(c, "includeIncomplete"),
	}
	var err error
	if q.Year, err = optionalIntQuery(c, "year"); err != nil {
		return q, err
	}
	if q.Semester, err = optionalIntQuery(c, "semester"); err != nil {
		return q, err
	}
	if raw := strings.TrimSpace(c.Query("years")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			y, convErr := strconv.Atoi(part)
			if convErr != nil {
				return q, appErrors.Clone(appErrors.ErrValidation, "years must be a comma separated list of integers")
			}
			q.Years = append(q.Years, y)
		}
	}
	return q, service.ValidateQuery(q)
}
