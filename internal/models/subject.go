package models

import "time"

// Subject is a course entry owned by exactly one user.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	SubjectName string    `db:"subject_name" json:"subject_name"`
	Credits     float64   `db:"credits" json:"credits"`
	Year        int       `db:"year" json:"year"`
	Semester    int       `db:"semester" json:"semester"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ResultStatus marks whether a grade counts as final.
type ResultStatus string

const (
	ResultStatusCompleted  ResultStatus = "Completed"
	ResultStatusIncomplete ResultStatus = "Incomplete"
)

// Result is the grade recorded against a subject. A subject has at most one.
type Result struct {
	ID         string       `db:"id" json:"id"`
	SubjectID  string       `db:"subject_id" json:"subject_id"`
	GradePoint float64      `db:"grade_point" json:"grade_point"`
	Status     ResultStatus `db:"status" json:"status"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}

// SubjectWithResult pairs a subject with its optional result. A nil Result means ungraded.
type SubjectWithResult struct {
	Subject
	Result *Result `json:"result,omitempty"`
}

// Graded reports whether the subject carries a result.
func (s SubjectWithResult) Graded() bool {
	return s.Result != nil
}

// SubjectFilter scopes subject listings to an owner and optional year/semester.
type SubjectFilter struct {
	UserID   string
	Year     *int
	Semester *int
}
