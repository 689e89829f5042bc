package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCSV(t *testing.T) {
	data, err := RenderCSV(Table{
		Headers: []string{"Campus ID", "Student", "Status"},
		Rows: [][]string{
			{"20261234", "Asha Nair", "present"},
			{"20265678", "Ravi Kumar", "absent"},
		},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Campus ID,Student,Status", lines[0])
	assert.Equal(t, "20261234,Asha Nair,present", lines[1])
}

func TestRenderCSVPadsShortRows(t *testing.T) {
	data, err := RenderCSV(Table{
		Headers: []string{"Campus ID", "Student", "Status"},
		Rows:    [][]string{{"20261234"}},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "20261234,,", lines[1])
}

func TestRenderCSVRequiresHeaders(t *testing.T) {
	_, err := RenderCSV(Table{})
	require.Error(t, err)
}

func TestRenderPDFProducesDocument(t *testing.T) {
	data, err := RenderPDF(Table{
		Title:   "Attendance Report",
		Headers: []string{"Student", "Status"},
		Rows:    [][]string{{"Asha Nair", "present"}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}
