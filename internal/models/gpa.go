package models

// GPACalculation is the aggregate over the graded subjects selected by a query.
type GPACalculation struct {
	GPA              float64             `json:"gpa"`
	TotalCredits     float64             `json:"total_credits"`
	CompletedCredits float64             `json:"completed_credits"`
	Subjects         []SubjectWithResult `json:"subjects"`
}

// SemesterBreakdown is one semester entry of a year breakdown.
type SemesterBreakdown struct {
	Semester    int            `json:"semester"`
	SemesterGPA GPACalculation `json:"semester_gpa"`
}

// YearBreakdown holds a year's GPA and its semesters in ascending order.
type YearBreakdown struct {
	Year      int                 `json:"year"`
	YearGPA   GPACalculation      `json:"year_gpa"`
	Semesters []SemesterBreakdown `json:"semesters"`
}

// GPABreakdownReport is the payload of the breakdown GPA query.
type GPABreakdownReport struct {
	Breakdown      []YearBreakdown `json:"breakdown"`
	Cumulative     GPACalculation  `json:"cumulative"`
	AvailableYears []int           `json:"available_years"`
}

// GPAQueryType selects the aggregation mode.
type GPAQueryType string

const (
	GPAQueryCumulative GPAQueryType = "cumulative"
	GPAQueryYear       GPAQueryType = "year"
	GPAQuerySemester   GPAQueryType = "semester"
	GPAQueryMultiYear  GPAQueryType = "multi-year"
	GPAQueryBreakdown  GPAQueryType = "breakdown"
)

// GPAQuery carries the selectors of a GPA request.
type GPAQuery struct {
	Type              GPAQueryType
	Year              *int
	Semester          *int
	Years             []int
	IncludeIncomplete bool
}
