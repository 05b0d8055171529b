package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type gpaSubjectReader interface {
	ListWithResults(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectWithResult, error)
}

// GPAService loads a user's subjects and runs the GPA calculator over them.
type GPAService struct {
	subjects   gpaSubjectReader
	calculator GPACalculator
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewGPAService constructs the service. cache and metrics may be nil.
func NewGPAService(subjects gpaSubjectReader, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *GPAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GPAService{subjects: subjects, calculator: NewGPACalculator(), cache: cache, metrics: metrics, logger: logger}
}

// ValidateQuery checks that the selectors required by the query type are present and in range.
func ValidateQuery(q models.GPAQuery) error {
	switch q.Type {
	case models.GPAQueryCumulative, models.GPAQueryBreakdown:
		return nil
	case models.GPAQueryYear:
		if q.Year == nil {
			return appErrors.Clone(appErrors.ErrValidation, "year is required for year GPA")
		}
		return validateYear(*q.Year)
	case models.GPAQuerySemester:
		if q.Year == nil || q.Semester == nil {
			return appErrors.Clone(appErrors.ErrValidation, "year and semester are required for semester GPA")
		}
		if err := validateYear(*q.Year); err != nil {
			return err
		}
		if *q.Semester < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "semester must be positive")
		}
		return nil
	case models.GPAQueryMultiYear:
		if len(q.Years) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "years are required for multi-year GPA")
		}
		for _, y := range q.Years {
			if err := validateYear(y); err != nil {
				return err
			}
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown GPA type %q", q.Type))
	}
}

func validateYear(year int) error {
	if year < 1 {
		return appErrors.Clone(appErrors.ErrValidation, "year must be positive")
	}
	return nil
}

// Calculate answers a cumulative, year, semester or multi-year query.
func (s *GPAService) Calculate(ctx context.Context, userID string, q models.GPAQuery) (*models.GPACalculation, error) {
	if q.Type == models.GPAQueryBreakdown {
		return nil, appErrors.Clone(appErrors.ErrValidation, "breakdown is served by Breakdown")
	}
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}

	key := gpaCacheKey(userID, q)
	var cached models.GPACalculation
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	subjects, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	var result models.GPACalculation
	switch q.Type {
	case models.GPAQueryYear:
		result = s.calculator.CalculateYearGPA(subjects, *q.Year, q.IncludeIncomplete)
	case models.GPAQuerySemester:
		result = s.calculator.CalculateSemesterGPA(subjects, *q.Year, *q.Semester, q.IncludeIncomplete)
	case models.GPAQueryMultiYear:
		result = s.calculator.CalculateMultiYearGPA(subjects, q.Years, q.IncludeIncomplete)
	default:
		result = s.calculator.CalculateCumulativeGPA(subjects, q.IncludeIncomplete)
	}

	s.metrics.RecordGPACalculation(q.Type)
	s.cacheSet(ctx, key, result)
	return &result, nil
}

// Breakdown returns the per-year and per-semester report with the cumulative figure.
func (s *GPAService) Breakdown(ctx context.Context, userID string, includeIncomplete bool) (*models.GPABreakdownReport, error) {
	q := models.GPAQuery{Type: models.GPAQueryBreakdown, IncludeIncomplete: includeIncomplete}
	key := gpaCacheKey(userID, q)
	var cached models.GPABreakdownReport
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	subjects, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	report := s.report(subjects, includeIncomplete)

	s.metrics.RecordGPACalculation(q.Type)
	s.cacheSet(ctx, key, report)
	return &report, nil
}

// Subjects returns every subject of the user with its result, bypassing the cache.
func (s *GPAService) Subjects(ctx context.Context, userID string) ([]models.SubjectWithResult, error) {
	return s.load(ctx, userID)
}

func (s *GPAService) report(subjects []models.SubjectWithResult, includeIncomplete bool) models.GPABreakdownReport {
	return models.GPABreakdownReport{
		Breakdown:      s.calculator.Breakdown(subjects, includeIncomplete),
		Cumulative:     s.calculator.CalculateCumulativeGPA(subjects, includeIncomplete),
		AvailableYears: s.calculator.AvailableYears(subjects),
	}
}

func (s *GPAService) load(ctx context.Context, userID string) ([]models.SubjectWithResult, error) {
	subjects, err := s.subjects.ListWithResults(ctx, models.SubjectFilter{UserID: userID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	return subjects, nil
}

func (s *GPAService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if !s.cache.Enabled() {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		return false
	}
	return hit
}

func (s *GPAService) cacheSet(ctx context.Context, key string, value interface{}) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.logger.Warn("gpa cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// gpaCacheKey is stable for equivalent queries: multi-year selectors are sorted and deduplicated.
func gpaCacheKey(userID string, q models.GPAQuery) string {
	var b strings.Builder
	b.WriteString(gpaCachePrefix(userID))
	b.WriteString(string(q.Type))
	if q.Year != nil {
		b.WriteString(":y=")
		b.WriteString(strconv.Itoa(*q.Year))
	}
	if q.Semester != nil {
		b.WriteString(":s=")
		b.WriteString(strconv.Itoa(*q.Semester))
	}
	if len(q.Years) > 0 {
		years := append([]int(nil), q.Years...)
		sort.Ints(years)
		parts := make([]string, 0, len(years))
		for i, y := range years {
			if i > 0 && years[i-1] == y {
				continue
			}
			parts = append(parts, strconv.Itoa(y))
		}
		b.WriteString(":ys=")
		b.WriteString(strings.Join(parts, ","))
	}
	b.WriteString(":inc=")
	b.WriteString(strconv.FormatBool(q.IncludeIncomplete))
	return b.String()
}
