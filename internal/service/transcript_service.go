package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
	"github.com/noah-isme/gpa-tracker-api/pkg/export"
)

// TranscriptFormat selects the rendered transcript type.
type TranscriptFormat string

const (
	TranscriptFormatCSV TranscriptFormat = "csv"
	TranscriptFormatPDF TranscriptFormat = "pdf"
)

var transcriptHeaders = []string{"Year", "Semester", "Subject", "Credits", "Grade Point", "Status"}

type transcriptRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
}

type transcriptSource interface {
	Subjects(ctx context.Context, userID string) ([]models.SubjectWithResult, error)
}

// TranscriptFile is a rendered transcript ready to stream to the client.
type TranscriptFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// TranscriptService renders a user's graded subjects with semester, year and cumulative GPA lines.
type TranscriptService struct {
	source     transcriptSource
	calculator GPACalculator
	renderers  map[TranscriptFormat]transcriptRenderer
	logger     *zap.Logger
	now        func() time.Time
}

// NewTranscriptService constructs a TranscriptService with the CSV and PDF exporters.
func NewTranscriptService(source transcriptSource, logger *zap.Logger) *TranscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptService{
		source:     source,
		calculator: NewGPACalculator(),
		renderers: map[TranscriptFormat]transcriptRenderer{
			TranscriptFormatCSV: export.NewCSVExporter(),
			TranscriptFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Export renders the transcript in the requested format.
func (s *TranscriptService) Export(ctx context.Context, userID string, format TranscriptFormat, includeIncomplete bool) (*TranscriptFile, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported transcript format %q", format))
	}

	subjects, err := s.source.Subjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	dataset := s.Dataset(subjects, includeIncomplete)

	content, err := renderer.Render(dataset, "Academic Transcript")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}
	s.logger.Debug("transcript rendered", zap.String("user_id", userID), zap.String("format", string(format)), zap.Int("rows", len(dataset.Rows)))

	return &TranscriptFile{
		Filename:    fmt.Sprintf("transcript_%s.%s", s.now().Format("20060102"), format),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}

// Dataset builds one row per counted subject plus semester, year and cumulative summary lines.
func (s *TranscriptService) Dataset(subjects []models.SubjectWithResult, includeIncomplete bool) export.Dataset {
	cumulative := s.calculator.CalculateCumulativeGPA(subjects, includeIncomplete)

	rows := make([]map[string]string, 0, len(cumulative.Subjects))
	for _, subject := range cumulative.Subjects {
		rows = append(rows, map[string]string{
			"Year":        strconv.Itoa(subject.Year),
			"Semester":    strconv.Itoa(subject.Semester),
			"Subject":     subject.SubjectName,
			"Credits":     formatNumber(subject.Credits, 1),
			"Grade Point": formatNumber(subject.Result.GradePoint, 2),
			"Status":      string(subject.Result.Status),
		})
	}

	var summary []export.SummaryLine
	for _, year := range s.calculator.Breakdown(subjects, includeIncomplete) {
		for _, sem := range year.Semesters {
			summary = append(summary, export.SummaryLine{
				Label: fmt.Sprintf("Year %d Semester %d GPA", year.Year, sem.Semester),
				Value: formatNumber(sem.SemesterGPA.GPA, 2),
			})
		}
		summary = append(summary, export.SummaryLine{
			Label: fmt.Sprintf("Year %d GPA", year.Year),
			Value: formatNumber(year.YearGPA.GPA, 2),
		})
	}
	summary = append(summary,
		export.SummaryLine{Label: "Cumulative GPA", Value: formatNumber(cumulative.GPA, 2)},
		export.SummaryLine{Label: "Total Credits", Value: formatNumber(cumulative.TotalCredits, 1)},
		export.SummaryLine{Label: "Completed Credits", Value: formatNumber(cumulative.CompletedCredits, 1)},
	)

	return export.Dataset{Headers: transcriptHeaders, Rows: rows, Summary: summary}
}

func formatNumber(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}
