package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"Subject", "Credits"},
		Rows: []map[string]string{
			{"Subject": "Calculus, I", "Credits": "3.0"},
			{"Subject": "Physics", "Credits": "4.0"},
		},
		Summary: []SummaryLine{{Label: "Cumulative GPA", Value: "3.50"}},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset(), "ignored")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	assert.Equal(t, []string{
		"Subject,Credits",
		`"Calculus, I",3.0`,
		"Physics,4.0",
		"",
		"Cumulative GPA,3.50",
	}, lines)
}

func TestCSVExporterWithoutSummary(t *testing.T) {
	data := sampleDataset()
	data.Summary = nil
	out, err := NewCSVExporter().Render(data, "")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(out), "\n"))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{}, "")
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	data := sampleDataset()
	for i := 0; i < 80; i++ {
		data.Rows = append(data.Rows, map[string]string{"Subject": "Filler", "Credits": "1.0"})
	}
	out, err := NewPDFExporter().Render(data, "Academic Transcript")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
