package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) [][]string {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	return rows
}

func TestStreamCSVSkipsHeaderAndComments(t *testing.T) {
	input := "#model_version:v2025.03.14\ncve,epss,percentile\nCVE-2024-0001,0.42,0.97\nCVE-2024-0002,0.01,0.12\n"

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		Comment:   '#',
		TrimSpace: true,
	})

	rows := collectRows(t, rowCh, errCh)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"CVE-2024-0001", "0.42", "0.97"}, rows[0])
}

func TestStreamCSVTrimsSpace(t *testing.T) {
	input := " CVE-2024-0001 , CRITICAL \n"

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})

	rows := collectRows(t, rowCh, errCh)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"CVE-2024-0001", "CRITICAL"}, rows[0])
}

func TestStreamCSVVariableFieldCounts(t *testing.T) {
	input := "a,b,c\nd,e\n"

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})

	rows := collectRows(t, rowCh, errCh)
	assert.Len(t, rows, 2)
	assert.Len(t, rows[1], 2)
}

func TestStreamCSVCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\nc,d\n"), CSVOptions{})
	for range rowCh {
	}
	assert.Error(t, <-errCh)
}
