package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
)

const (
	gpaPlaces    int32 = 2
	creditPlaces int32 = 1
	divPrecision int32 = 16
)

// GPACalculator aggregates credit-weighted grade points. It is stateless and safe for concurrent use.
type GPACalculator struct{}

// NewGPACalculator returns a calculator.
func NewGPACalculator() GPACalculator {
	return GPACalculator{}
}

// Calculate aggregates every graded subject. Incomplete results are skipped unless includeIncomplete is set.
// An input without graded subjects yields the zero calculation with an empty subject list.
func (GPACalculator) Calculate(subjects []models.SubjectWithResult, includeIncomplete bool) models.GPACalculation {
	filtered := make([]models.SubjectWithResult, 0, len(subjects))
	weightedSum := decimal.Zero
	totalCredits := decimal.Zero
	completedCredits := decimal.Zero

	for _, subject := range subjects {
		if subject.Result == nil {
			continue
		}
		if subject.Result.Status == models.ResultStatusIncomplete && !includeIncomplete {
			continue
		}

		credits := decimal.NewFromFloat(subject.Credits)
		totalCredits = totalCredits.Add(credits)
		weightedSum = weightedSum.Add(credits.Mul(decimal.NewFromFloat(subject.Result.GradePoint)))
		if subject.Result.Status == models.ResultStatusCompleted {
			completedCredits = completedCredits.Add(credits)
		}
		filtered = append(filtered, subject)
	}

	gpa := decimal.Zero
	if totalCredits.IsPositive() {
		gpa = weightedSum.DivRound(totalCredits, divPrecision)
	}

	return models.GPACalculation{
		GPA:              roundHalfUp(gpa, gpaPlaces),
		TotalCredits:     roundHalfUp(totalCredits, creditPlaces),
		CompletedCredits: roundHalfUp(completedCredits, creditPlaces),
		Subjects:         filtered,
	}
}

// CalculateSemesterGPA aggregates the subjects of one semester within one year.
func (c GPACalculator) CalculateSemesterGPA(subjects []models.SubjectWithResult, year, semester int, includeIncomplete bool) models.GPACalculation {
	return c.Calculate(filterSubjects(subjects, func(s models.SubjectWithResult) bool {
		return s.Year == year && s.Semester == semester
	}), includeIncomplete)
}

// CalculateYearGPA aggregates every semester of a year.
func (c GPACalculator) CalculateYearGPA(subjects []models.SubjectWithResult, year int, includeIncomplete bool) models.GPACalculation {
	return c.Calculate(filterSubjects(subjects, func(s models.SubjectWithResult) bool {
		return s.Year == year
	}), includeIncomplete)
}

// CalculateMultiYearGPA aggregates the subjects whose year is in years.
func (c GPACalculator) CalculateMultiYearGPA(subjects []models.SubjectWithResult, years []int, includeIncomplete bool) models.GPACalculation {
	set := make(map[int]struct{}, len(years))
	for _, y := range years {
		set[y] = struct{}{}
	}
	return c.Calculate(filterSubjects(subjects, func(s models.SubjectWithResult) bool {
		_, ok := set[s.Year]
		return ok
	}), includeIncomplete)
}

// CalculateCumulativeGPA aggregates the full history.
func (c GPACalculator) CalculateCumulativeGPA(subjects []models.SubjectWithResult, includeIncomplete bool) models.GPACalculation {
	return c.Calculate(subjects, includeIncomplete)
}

// AvailableYears returns the distinct years present, ascending. Ungraded subjects count.
func (GPACalculator) AvailableYears(subjects []models.SubjectWithResult) []int {
	seen := make(map[int]struct{})
	years := make([]int, 0)
	for _, s := range subjects {
		if _, ok := seen[s.Year]; ok {
			continue
		}
		seen[s.Year] = struct{}{}
		years = append(years, s.Year)
	}
	sort.Ints(years)
	return years
}

// AvailableSemesters returns the distinct semesters present in year, ascending.
func (GPACalculator) AvailableSemesters(subjects []models.SubjectWithResult, year int) []int {
	seen := make(map[int]struct{})
	semesters := make([]int, 0)
	for _, s := range subjects {
		if s.Year != year {
			continue
		}
		if _, ok := seen[s.Semester]; ok {
			continue
		}
		seen[s.Semester] = struct{}{}
		semesters = append(semesters, s.Semester)
	}
	sort.Ints(semesters)
	return semesters
}

// Breakdown reports each available year with the GPA of each of its available semesters.
func (c GPACalculator) Breakdown(subjects []models.SubjectWithResult, includeIncomplete bool) []models.YearBreakdown {
	years := c.AvailableYears(subjects)
	breakdown := make([]models.YearBreakdown, 0, len(years))
	for _, year := range years {
		semesters := c.AvailableSemesters(subjects, year)
		entry := models.YearBreakdown{
			Year:      year,
			YearGPA:   c.CalculateYearGPA(subjects, year, includeIncomplete),
			Semesters: make([]models.SemesterBreakdown, 0, len(semesters)),
		}
		for _, semester := range semesters {
			entry.Semesters = append(entry.Semesters, models.SemesterBreakdown{
				Semester:    semester,
				SemesterGPA: c.CalculateSemesterGPA(subjects, year, semester, includeIncomplete),
			})
		}
		breakdown = append(breakdown, entry)
	}
	return breakdown
}

func filterSubjects(subjects []models.SubjectWithResult, keep func(models.SubjectWithResult) bool) []models.SubjectWithResult {
	out := make([]models.SubjectWithResult, 0, len(subjects))
	for _, s := range subjects {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// roundHalfUp rounds non-negative aggregates in decimal space so .5 boundaries never drift.
func roundHalfUp(d decimal.Decimal, places int32) float64 {
	f, _ := d.Round(places).Float64()
	return f
}
