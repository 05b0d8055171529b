package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type stubSubjectReader struct {
	subjects []models.SubjectWithResult
	err      error
	calls    int
}

func (s *stubSubjectReader) ListWithResults(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectWithResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.subjects, nil
}

type memoryCacheRepo struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

func intPtr(v int) *int { return &v }

func TestValidateQuery(t *testing.T) {
	cases := []struct {
		name  string
		query models.GPAQuery
		ok    bool
	}{
		{"cumulative", models.GPAQuery{Type: models.GPAQueryCumulative}, true},
		{"breakdown", models.GPAQuery{Type: models.GPAQueryBreakdown}, true},
		{"year missing", models.GPAQuery{Type: models.GPAQueryYear}, false},
		{"year zero", models.GPAQuery{Type: models.GPAQueryYear, Year: intPtr(0)}, false},
		{"year", models.GPAQuery{Type: models.GPAQueryYear, Year: intPtr(2)}, true},
		{"semester missing semester", models.GPAQuery{Type: models.GPAQuerySemester, Year: intPtr(1)}, false},
		{"semester", models.GPAQuery{Type: models.GPAQuerySemester, Year: intPtr(1), Semester: intPtr(2)}, true},
		{"multi-year empty", models.GPAQuery{Type: models.GPAQueryMultiYear}, false},
		{"multi-year", models.GPAQuery{Type: models.GPAQueryMultiYear, Years: []int{1, 2}}, true},
		{"unknown", models.GPAQuery{Type: "weekly"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQuery(tc.query)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
		})
	}
}

func TestGPAServiceCalculateYear(t *testing.T) {
	reader := &stubSubjectReader{subjects: []models.SubjectWithResult{
		graded("y1", 3, 1, 1, 4.0, models.ResultStatusCompleted),
		graded("y2", 3, 2, 1, 2.0, models.ResultStatusCompleted),
	}}
	svc := NewGPAService(reader, nil, nil, zap.NewNop())

	res, err := svc.Calculate(context.Background(), "u1", models.GPAQuery{Type: models.GPAQueryYear, Year: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.GPA)
	assert.Equal(t, 3.0, res.TotalCredits)
}

func TestGPAServiceRejectsMissingSelectorsBeforeLoading(t *testing.T) {
	reader := &stubSubjectReader{}
	svc := NewGPAService(reader, nil, nil, nil)

	_, err := svc.Calculate(context.Background(), "u1", models.GPAQuery{Type: models.GPAQuerySemester, Year: intPtr(1)})
	require.Error(t, err)
	assert.Zero(t, reader.calls)
}

func TestGPAServiceStorageFailure(t *testing.T) {
	reader := &stubSubjectReader{err: errors.New("db down")}
	svc := NewGPAService(reader, nil, nil, nil)

	_, err := svc.Calculate(context.Background(), "u1", models.GPAQuery{Type: models.GPAQueryCumulative})
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInternal.Code))
}

func TestGPAServiceCachesAndInvalidates(t *testing.T) {
	reader := &stubSubjectReader{subjects: firstYearSubjects()}
	metrics := NewMetricsService()
	cache := NewCacheService(newMemoryCacheRepo(), metrics, time.Minute, nil, true)
	svc := NewGPAService(reader, cache, metrics, nil)
	q := models.GPAQuery{Type: models.GPAQueryCumulative}

	first, err := svc.Calculate(context.Background(), "u1", q)
	require.NoError(t, err)
	second, err := svc.Calculate(context.Background(), "u1", q)
	require.NoError(t, err)
	assert.Equal(t, first.GPA, second.GPA)
	assert.Equal(t, 1, reader.calls)

	require.NoError(t, cache.InvalidateUserGPA(context.Background(), "u1"))
	_, err = svc.Calculate(context.Background(), "u1", q)
	require.NoError(t, err)
	assert.Equal(t, 2, reader.calls)
	assert.Equal(t, uint64(2), metrics.Snapshot().GPACalculations)
}

func TestGPAServiceBreakdown(t *testing.T) {
	reader := &stubSubjectReader{subjects: []models.SubjectWithResult{
		graded("a", 3, 1, 1, 4.0, models.ResultStatusCompleted),
		graded("b", 3, 1, 2, 3.0, models.ResultStatusCompleted),
		graded("c", 3, 2, 1, 2.0, models.ResultStatusCompleted),
	}}
	svc := NewGPAService(reader, nil, nil, nil)

	report, err := svc.Breakdown(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, report.AvailableYears)
	require.Len(t, report.Breakdown, 2)
	assert.Len(t, report.Breakdown[0].Semesters, 2)
	assert.Equal(t, 3.0, report.Cumulative.GPA)
}

func TestGPACacheKeyNormalisesYears(t *testing.T) {
	a := gpaCacheKey("u1", models.GPAQuery{Type: models.GPAQueryMultiYear, Years: []int{3, 1, 3}})
	b := gpaCacheKey("u1", models.GPAQuery{Type: models.GPAQueryMultiYear, Years: []int{1, 3}})
	assert.Equal(t, a, b)
	assert.Equal(t, "gpa:u1:multi-year:ys=1,3:inc=false", a)
	assert.NotEqual(t, a, gpaCacheKey("u2", models.GPAQuery{Type: models.GPAQueryMultiYear, Years: []int{1, 3}}))
}
