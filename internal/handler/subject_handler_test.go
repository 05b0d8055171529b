package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	"github.com/noah-isme/gpa-tracker-api/internal/service"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type subjectServiceMock struct {
	lastFilter models.SubjectFilter
	lastCreate service.CreateSubjectRequest
	lastUserID string
	createErr  error
	deleteErr  error
}

func (m *subjectServiceMock) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectWithResult, error) {
	m.lastFilter = filter
	return []models.SubjectWithResult{{Subject: models.Subject{ID: "s1", SubjectName: "Calculus"}}}, nil
}

func (m *subjectServiceMock) Get(ctx context.Context, userID, id string) (*models.SubjectWithResult, error) {
	if id != "s1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	return &models.SubjectWithResult{Subject: models.Subject{ID: id, UserID: userID}}, nil
}

func (m *subjectServiceMock) Create(ctx context.Context, userID string, req service.CreateSubjectRequest) (*service.SubjectCreateResult, error) {
	m.lastUserID = userID
	m.lastCreate = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &service.SubjectCreateResult{Subject: models.Subject{ID: "s2", SubjectName: req.SubjectName}, CommittedDegreeID: "deg-1"}, nil
}

func (m *subjectServiceMock) Update(ctx context.Context, userID, id string, req service.UpdateSubjectRequest) (*models.SubjectWithResult, error) {
	return &models.SubjectWithResult{Subject: models.Subject{ID: id}}, nil
}

func (m *subjectServiceMock) Delete(ctx context.Context, userID, id string) error {
	return m.deleteErr
}

type resultServiceMock struct {
	lastReq service.UpsertResultRequest
}

func (m *resultServiceMock) Get(ctx context.Context, userID, subjectID string) (*models.Result, error) {
	return &models.Result{SubjectID: subjectID, GradePoint: 3.7, Status: models.ResultStatusCompleted}, nil
}

func (m *resultServiceMock) Upsert(ctx context.Context, userID, subjectID string, req service.UpsertResultRequest) (*models.Result, error) {
	m.lastReq = req
	return &models.Result{SubjectID: subjectID, GradePoint: *req.GradePoint, Status: req.Status}, nil
}

func (m *resultServiceMock) Delete(ctx context.Context, userID, subjectID string) error {
	return nil
}

func TestSubjectHandlerListParsesFilters(t *testing.T) {
	subjects := &subjectServiceMock{}
	h := NewSubjectHandler(subjects, &resultServiceMock{})

	c, w := newGinContext(http.MethodGet, "/subjects?year=2&semester=1", nil)
	withUser(c, "u1", models.RoleUser)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", subjects.lastFilter.UserID)
	require.NotNil(t, subjects.lastFilter.Year)
	assert.Equal(t, 2, *subjects.lastFilter.Year)
	require.NotNil(t, subjects.lastFilter.Semester)
	assert.Equal(t, 1, *subjects.lastFilter.Semester)

	c, w = newGinContext(http.MethodGet, "/subjects?year=two", nil)
	withUser(c, "u1", models.RoleUser)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubjectHandlerRequiresUser(t *testing.T) {
	h := NewSubjectHandler(&subjectServiceMock{}, &resultServiceMock{})
	c, w := newGinContext(http.MethodGet, "/subjects", nil)
	h.List(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubjectHandlerCreateForwardsPendingToken(t *testing.T) {
	subjects := &subjectServiceMock{}
	h := NewSubjectHandler(subjects, &resultServiceMock{})

	body := mustJSON(t, map[string]interface{}{
		"subject_name":         "Calculus",
		"credits":              3,
		"year":                 1,
		"semester":             1,
		"pending_degree_token": "tok",
	})
	c, w := newGinContext(http.MethodPost, "/subjects", body)
	withUser(c, "u1", models.RoleUser)
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "tok", subjects.lastCreate.PendingDegreeToken)
	assert.Equal(t, "u1", subjects.lastUserID)

	var res service.SubjectCreateResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &res))
	assert.Equal(t, "deg-1", res.CommittedDegreeID)
}

func TestSubjectHandlerErrorsMapToStatus(t *testing.T) {
	subjects := &subjectServiceMock{createErr: appErrors.Clone(appErrors.ErrInvalidPendingDegree, "")}
	h := NewSubjectHandler(subjects, &resultServiceMock{})

	c, w := newGinContext(http.MethodPost, "/subjects", []byte(`{"subject_name":"X","credits":1,"year":1,"semester":1}`))
	withUser(c, "u1", models.RoleUser)
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrInvalidPendingDegree.Code, decodeEnvelope(t, w).Error.Code)

	c, w = newGinContext(http.MethodGet, "/subjects/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	withUser(c, "u1", models.RoleUser)
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newGinContext(http.MethodPost, "/subjects", []byte(`{not json`))
	withUser(c, "u1", models.RoleUser)
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubjectHandlerDelete(t *testing.T) {
	h := NewSubjectHandler(&subjectServiceMock{}, &resultServiceMock{})
	c, w := newGinContext(http.MethodDelete, "/subjects/s1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	withUser(c, "u1", models.RoleUser)
	h.Delete(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSubjectHandlerUpsertResult(t *testing.T) {
	results := &resultServiceMock{}
	h := NewSubjectHandler(&subjectServiceMock{}, results)

	c, w := newGinContext(http.MethodPut, "/subjects/s1/result", []byte(`{"grade_point":3.3,"status":"Incomplete"}`))
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	withUser(c, "u1", models.RoleUser)
	h.UpsertResult(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, results.lastReq.GradePoint)
	assert.Equal(t, 3.3, *results.lastReq.GradePoint)
	assert.Equal(t, models.ResultStatusIncomplete, results.lastReq.Status)
}
