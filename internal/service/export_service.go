package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

type runReader interface {
	GetByID(ctx context.Context, id string) (*models.TimetableRun, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, int64, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// Download is an opened export ready to stream.
type Download struct {
	File        *os.File
	Size        int64
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders finished timetables to files and hands out signed download links.
type ExportService struct {
	runs    runReader
	storage fileStorage
	csv     documentRenderer
	pdf     documentRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(runs runReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv, pdf documentRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		runs:    runs,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Export renders the timetable of a finished run and stores it.
func (s *ExportService) Export(ctx context.Context, runID string, format models.ExportFormat) (*dto.ExportResponse, error) {
	var renderer documentRenderer
	switch format {
	case models.ExportFormatCSV:
		renderer = s.csv
	case models.ExportFormatPDF:
		renderer = s.pdf
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	if run.Status != models.RunStatusFinished || !run.Result.Valid {
		return nil, appErrors.ErrNotReady
	}
	result, err := decodeResult(run)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored timetable is unreadable")
	}

	payload, err := renderer.Render(BuildDocument(result))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
	}
	relPath, err := s.storage.Save(buildFilename(run.ID, format), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable export")
	}
	link, err := s.signer.Sign(run.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	s.logger.Info("timetable exported",
		zap.String("run_id", run.ID),
		zap.String("format", string(format)),
		zap.Int("bytes", len(payload)))

	return &dto.ExportResponse{
		RunID:     run.ID,
		Format:    format,
		URL:       fmt.Sprintf("%s/exports/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), link.Token),
		Token:     link.Token,
		ExpiresAt: link.ExpiresAt,
	}, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*Download, error) {
	link, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	if _, err := s.runs.GetByID(ctx, link.RunID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	file, size, err := s.storage.Open(link.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	filename := filepath.Base(link.Path)
	return &Download{
		File:        file,
		Size:        size,
		Filename:    filename,
		ContentType: contentType(filename),
		ExpiresAt:   link.ExpiresAt,
	}, nil
}

// Cleanup removes stored files whose download links have expired.
func (s *ExportService) Cleanup() ([]string, error) {
	removed, err := s.storage.CleanupOlderThan(s.signer.TTL())
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.logger.Info("removed expired timetable exports", zap.Int("files", len(removed)))
	}
	return removed, nil
}

// BuildDocument lays a timetable out as one grid per cohort (rows are time slots, columns are
// days), followed by a flat meeting list and a run summary.
func BuildDocument(result *dto.TimetableResponse) export.Document {
	doc := export.Document{Title: fmt.Sprintf("Timetable %s", result.RunID)}

	var days []string
	var slots []dto.GridSlot
	for _, day := range result.Grid {
		days = append(days, day.Day)
	}
	if len(result.Grid) > 0 {
		slots = result.Grid[0].Slots
	}

	type cohortRef struct{ id, name string }
	var cohorts []cohortRef
	seen := make(map[string]struct{})
	for _, m := range result.Meetings {
		if _, ok := seen[m.CohortID]; ok {
			continue
		}
		seen[m.CohortID] = struct{}{}
		name := m.CohortName
		if name == "" {
			name = "Unassigned"
		}
		cohorts = append(cohorts, cohortRef{id: m.CohortID, name: name})
	}

	headers := append([]string{"Time"}, days...)
	for _, cohort := range cohorts {
		rows := make([][]string, len(slots))
		for t, slot := range slots {
			row := make([]string, len(days)+1)
			row[0] = slotLabel(slot.Label, slot.Start, slot.End)
			for d := range days {
				var cell []string
				for _, m := range result.Grid[d].Slots[t].Entries {
					if m.CohortID == cohort.id {
						cell = append(cell, meetingLabel(m))
					}
				}
				row[d+1] = strings.Join(cell, "; ")
			}
			rows[t] = row
		}
		doc.Tables = append(doc.Tables, export.Table{Title: cohort.name, Headers: headers, Rows: rows})
	}

	list := export.Table{
		Title:   "All meetings",
		Headers: []string{"Day", "Time", "Cohort", "Course", "Faculty", "Classroom"},
	}
	for _, m := range result.Meetings {
		list.Rows = append(list.Rows, []string{
			m.Day,
			slotLabel(m.TimeSlot.Label, m.TimeSlot.Start, m.TimeSlot.End),
			m.CohortName,
			m.CourseName,
			m.FacultyName,
			m.Classroom,
		})
	}
	doc.Tables = append(doc.Tables, list)

	doc.Tables = append(doc.Tables, export.Table{
		Title:   "Summary",
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Fitness", fmt.Sprintf("%.2f", result.Fitness)},
			{"Conflicts", fmt.Sprintf("%d", result.Conflicts)},
			{"Faculty conflicts", fmt.Sprintf("%d", result.Breakdown.Faculty)},
			{"Classroom conflicts", fmt.Sprintf("%d", result.Breakdown.Classroom)},
			{"Cohort conflicts", fmt.Sprintf("%d", result.Breakdown.Cohort)},
			{"Distribution score", fmt.Sprintf("%.2f", result.DistributionScore)},
			{"Generations", fmt.Sprintf("%d", result.Generations)},
			{"Stop reason", result.StopReason},
			{"Seed", fmt.Sprintf("%d", result.Seed)},
		},
	})
	return doc
}

func meetingLabel(m timetable.Meeting) string {
	course := m.CourseName
	if m.CourseCode != "" {
		course = m.CourseCode + " " + course
	}
	return fmt.Sprintf("%s (%s) @ %s", course, m.FacultyName, m.Classroom)
}

func slotLabel(label, start, end string) string {
	if start == "" || end == "" {
		return label
	}
	return fmt.Sprintf("%s %s-%s", label, start, end)
}

func buildFilename(runID string, format models.ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("timetable_%s_%s.%s", sanitizeFilename(runID), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
