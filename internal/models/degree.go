package models

import (
	"errors"
	"strings"
	"time"
)

// Degree is either a system program visible to everyone or a custom program owned by one user.
type Degree struct {
	ID               string                  `db:"id" json:"id"`
	Name             string                  `db:"name" json:"name"`
	TotalYears       int                     `db:"total_years" json:"total_years"`
	SemestersPerYear int                     `db:"semesters_per_year" json:"semesters_per_year"`
	IsCustom         bool                    `db:"is_custom" json:"is_custom"`
	CreatedByUserID  *string                 `db:"created_by_user_id" json:"created_by_user_id,omitempty"`
	PendingRef       *string                 `db:"pending_ref" json:"-"`
	TemplateCount    int                     `db:"template_count" json:"template_count"`
	CreatedAt        time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time               `db:"updated_at" json:"updated_at"`
	Templates        []DegreeSubjectTemplate `json:"templates,omitempty"`
}

// VisibleTo reports whether the user may select the degree.
func (d *Degree) VisibleTo(userID string) bool {
	if d == nil {
		return false
	}
	if !d.IsCustom {
		return true
	}
	return d.CreatedByUserID != nil && *d.CreatedByUserID == userID
}

// DegreeSubjectTemplate seeds a user's subjects when the degree is activated.
type DegreeSubjectTemplate struct {
	ID          string    `db:"id" json:"id"`
	DegreeID    string    `db:"degree_id" json:"degree_id"`
	SubjectName string    `db:"subject_name" json:"subject_name"`
	Credits     float64   `db:"credits" json:"credits"`
	Year        int       `db:"year" json:"year"`
	Semester    int       `db:"semester" json:"semester"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DegreeDraft describes a degree that does not exist in storage yet.
type DegreeDraft struct {
	Name             string `json:"name" validate:"required,max=200"`
	TotalYears       int    `json:"total_years" validate:"required,min=1,max=10"`
	SemestersPerYear int    `json:"semesters_per_year" validate:"required,min=1,max=4"`
}

// PendingDegreeKind discriminates the PendingDegree variants.
type PendingDegreeKind string

const (
	// PendingDegreeExisting references a degree row that already exists.
	PendingDegreeExisting PendingDegreeKind = "EXISTING"
	// PendingDegreeCreate requests a new custom degree on first write.
	PendingDegreeCreate PendingDegreeKind = "CREATE"
)

var (
	errPendingKind     = errors.New("unknown pending degree kind")
	errPendingRef      = errors.New("pending degree reference is required")
	errPendingExisting = errors.New("existing pending degree requires a degree id and no draft")
	errPendingCreate   = errors.New("create pending degree requires a draft and no degree id")
)

// PendingDegree is a degree choice that has not been written to storage.
// Exactly one of DegreeID (EXISTING) or Draft (CREATE) is set; use the constructors.
type PendingDegree struct {
	Ref            string            `json:"ref"`
	Kind           PendingDegreeKind `json:"kind"`
	DegreeID       string            `json:"degree_id,omitempty"`
	Draft          *DegreeDraft      `json:"draft,omitempty"`
	SourceDegreeID string            `json:"source_degree_id,omitempty"`
}

// NewExistingPendingDegree builds the EXISTING variant.
func NewExistingPendingDegree(ref, degreeID string) PendingDegree {
	return PendingDegree{Ref: ref, Kind: PendingDegreeExisting, DegreeID: degreeID}
}

// NewCreatePendingDegree builds the CREATE variant. sourceDegreeID is empty for brand-new degrees.
func NewCreatePendingDegree(ref string, draft DegreeDraft, sourceDegreeID string) PendingDegree {
	draft.Name = strings.TrimSpace(draft.Name)
	return PendingDegree{Ref: ref, Kind: PendingDegreeCreate, Draft: &draft, SourceDegreeID: sourceDegreeID}
}

// Validate checks that the variant fields agree with Kind.
func (p PendingDegree) Validate() error {
	if p.Ref == "" {
		return errPendingRef
	}
	switch p.Kind {
	case PendingDegreeExisting:
		if p.DegreeID == "" || p.Draft != nil {
			return errPendingExisting
		}
	case PendingDegreeCreate:
		if p.DegreeID != "" || p.Draft == nil || p.Draft.Name == "" || p.Draft.TotalYears < 1 || p.Draft.SemestersPerYear < 1 {
			return errPendingCreate
		}
	default:
		return errPendingKind
	}
	return nil
}

// SemestersPerYear returns the semester bound the pending degree will impose once committed.
// The EXISTING variant does not carry it and reports zero.
func (p PendingDegree) SemestersPerYear() int {
	if p.Draft != nil {
		return p.Draft.SemestersPerYear
	}
	return 0
}

// SelectionState is the outcome of a degree-selection command.
type SelectionState string

const (
	SelectionCommitted SelectionState = "COMMITTED"
	SelectionPending   SelectionState = "PENDING"
)

// DegreeSelectionResult is returned by the selection workflow.
type DegreeSelectionResult struct {
	State          SelectionState `json:"state"`
	Degree         *Degree        `json:"degree,omitempty"`
	Pending        *PendingDegree `json:"pending,omitempty"`
	PendingToken   string         `json:"pending_token,omitempty"`
	CopiedSubjects int            `json:"copied_subjects"`
}
