package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type transcriptSourceStub struct {
	subjects []models.SubjectWithResult
	err      error
}

func (s transcriptSourceStub) Subjects(context.Context, string) ([]models.SubjectWithResult, error) {
	return s.subjects, s.err
}

func transcriptSubjects() []models.SubjectWithResult {
	return append(firstYearSubjects(),
		graded("thesis", 6, 2, 1, 3.0, models.ResultStatusIncomplete),
		ungraded("elective", 2, 2, 2),
	)
}

func TestTranscriptDatasetRowsAndSummary(t *testing.T) {
	svc := NewTranscriptService(transcriptSourceStub{}, nil)

	data := svc.Dataset(transcriptSubjects(), false)
	require.Len(t, data.Rows, 3)
	assert.Equal(t, "math", data.Rows[0]["Subject"])
	assert.Equal(t, "3.0", data.Rows[0]["Credits"])
	assert.Equal(t, "3.70", data.Rows[0]["Grade Point"])

	labels := map[string]string{}
	for _, line := range data.Summary {
		labels[line.Label] = line.Value
	}
	assert.Equal(t, "3.63", labels["Year 1 Semester 1 GPA"])
	assert.Equal(t, "3.63", labels["Year 1 GPA"])
	assert.Equal(t, "0.00", labels["Year 2 GPA"])
	assert.Equal(t, "3.63", labels["Cumulative GPA"])
	assert.Equal(t, "10.0", labels["Total Credits"])

	withIncomplete := svc.Dataset(transcriptSubjects(), true)
	assert.Len(t, withIncomplete.Rows, 4)
	assert.Equal(t, "Cumulative GPA", withIncomplete.Summary[len(withIncomplete.Summary)-3].Label)
	// (36.3 + 18) / 16
	assert.Equal(t, "3.39", withIncomplete.Summary[len(withIncomplete.Summary)-3].Value)
}

func TestTranscriptExportCSV(t *testing.T) {
	svc := NewTranscriptService(transcriptSourceStub{subjects: transcriptSubjects()}, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	file, err := svc.Export(context.Background(), "u1", TranscriptFormatCSV, false)
	require.NoError(t, err)
	assert.Equal(t, "transcript_20240501.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)

	reader := csv.NewReader(bytes.NewReader(file.Content))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, transcriptHeaders, records[0])
	assert.Equal(t, []string{"Cumulative GPA", "3.63"}, records[len(records)-3])
}

func TestTranscriptExportPDF(t *testing.T) {
	svc := NewTranscriptService(transcriptSourceStub{subjects: transcriptSubjects()}, nil)

	file, err := svc.Export(context.Background(), "u1", TranscriptFormatPDF, true)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Content, []byte("%PDF")))
}

func TestTranscriptExportErrors(t *testing.T) {
	svc := NewTranscriptService(transcriptSourceStub{}, nil)
	_, err := svc.Export(context.Background(), "u1", "xlsx", false)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	failing := NewTranscriptService(transcriptSourceStub{err: appErrors.Wrap(errors.New("db down"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed")}, nil)
	_, err = failing.Export(context.Background(), "u1", TranscriptFormatCSV, false)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInternal.Code))
}
