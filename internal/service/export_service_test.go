package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *TimetableService) {
	t.Helper()
	svc, repo := newTimetableServiceForTest(&recordingQueue{}, nil)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	exporter := NewExportService(repo, store, signer, ExportConfig{APIPrefix: "/api/v1"}, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return exporter, svc
}

func TestExportServiceCSVRoundTrip(t *testing.T) {
	exporter, svc := newExportServiceForTest(t)
	generated, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)

	resp, err := exporter.Export(context.Background(), generated.RunID, models.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/exports/"+resp.Token, resp.URL)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	download, err := exporter.ResolveDownload(context.Background(), resp.Token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)
	assert.True(t, strings.HasSuffix(download.Filename, ".csv"))

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), download.Size)
	content := string(body)
	assert.Contains(t, content, "Grade 10")
	assert.Contains(t, content, "Grade 11")
	assert.Contains(t, content, "All meetings")
	assert.Contains(t, content, "MTH Mathematics (A. Rahman)")
}

func TestExportServicePDF(t *testing.T) {
	exporter, svc := newExportServiceForTest(t)
	generated, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)

	resp, err := exporter.Export(context.Background(), generated.RunID, models.ExportFormatPDF)
	require.NoError(t, err)

	download, err := exporter.ResolveDownload(context.Background(), resp.Token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "application/pdf", download.ContentType)
	header := make([]byte, 4)
	_, err = io.ReadFull(download.File, header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(header))
}

func TestExportServiceRejectsUnfinishedRun(t *testing.T) {
	exporter, svc := newExportServiceForTest(t)
	accepted, err := svc.Submit(context.Background(), sampleRequest(), "")
	require.NoError(t, err)

	_, err = exporter.Export(context.Background(), accepted.RunID, models.ExportFormatCSV)
	assert.Equal(t, appErrors.ErrNotReady.Code, errorCode(err))

	_, err = exporter.Export(context.Background(), "missing", models.ExportFormatCSV)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))

	_, err = exporter.Export(context.Background(), accepted.RunID, models.ExportFormat("xlsx"))
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}

func TestExportServiceRejectsTamperedToken(t *testing.T) {
	exporter, svc := newExportServiceForTest(t)
	generated, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)
	resp, err := exporter.Export(context.Background(), generated.RunID, models.ExportFormatCSV)
	require.NoError(t, err)

	_, err = exporter.ResolveDownload(context.Background(), resp.Token+"x")
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = exporter.ResolveDownload(context.Background(), "garbage")
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))
}

func TestBuildDocumentGridPerCohort(t *testing.T) {
	_, svc := newExportServiceForTest(t)
	generated, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)

	doc := BuildDocument(generated)
	require.Len(t, doc.Tables, 4, "two cohort grids, the meeting list and the summary")

	grid := doc.Tables[0]
	assert.Equal(t, []string{"Time", "Mon", "Tue", "Wed"}, grid.Headers)
	require.Len(t, grid.Rows, 2)
	assert.Equal(t, "P1 07:00-07:45", grid.Rows[0][0])

	filled := 0
	for _, table := range doc.Tables[:2] {
		for _, row := range table.Rows {
			for _, cell := range row[1:] {
				if cell != "" {
					filled += len(strings.Split(cell, "; "))
				}
			}
		}
	}
	assert.Equal(t, len(generated.Meetings), filled)
	assert.Len(t, doc.Tables[2].Rows, len(generated.Meetings))
}
