package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const timetableRunColumns = `id, mode, status, progress, request, result, seed, fitness, conflicts, generations, stop_reason, error_message, created_by, created_at, started_at, finished_at`

const timetableRunSummaryColumns = `id, mode, status, progress, seed, fitness, conflicts, generations, stop_reason, error_message, created_by, created_at, started_at, finished_at`

const timetableRunSchema = `CREATE TABLE IF NOT EXISTS timetable_runs (
	id            UUID PRIMARY KEY,
	mode          VARCHAR(16) NOT NULL,
	status        VARCHAR(16) NOT NULL,
	progress      INTEGER NOT NULL DEFAULT 0,
	request       JSONB NOT NULL,
	result        JSONB,
	seed          BIGINT,
	fitness       DOUBLE PRECISION,
	conflicts     INTEGER,
	generations   INTEGER,
	stop_reason   VARCHAR(32),
	error_message TEXT,
	created_by    VARCHAR(128) NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_timetable_runs_status_created ON timetable_runs (status, created_at)`

// TimetableRunRepository persists generation runs in Postgres.
type TimetableRunRepository struct {
	db *sqlx.DB
}

// NewTimetableRunRepository constructs the repository.
func NewTimetableRunRepository(db *sqlx.DB) *TimetableRunRepository {
	return &TimetableRunRepository{db: db}
}

// Migrate creates the runs table when missing.
func (r *TimetableRunRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, timetableRunSchema); err != nil {
		return fmt.Errorf("migrate timetable runs: %w", err)
	}
	return nil
}

// Create inserts a new run row with generated defaults.
func (r *TimetableRunRepository) Create(ctx context.Context, run *models.TimetableRun) error {
	prepareRun(run)
	const query = `INSERT INTO timetable_runs (` + timetableRunColumns + `)
VALUES (:id, :mode, :status, :progress, :request, :result, :seed, :fitness, :conflicts, :generations, :stop_reason, :error_message, :created_by, :created_at, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create timetable run: %w", err)
	}
	return nil
}

// GetByID returns a run including its request and result documents.
func (r *TimetableRunRepository) GetByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	const query = `SELECT ` + timetableRunColumns + ` FROM timetable_runs WHERE id = $1`
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get timetable run: %w", err)
	}
	return &run, nil
}

// UpdateRunParams defines the mutable fields of a run.
type UpdateRunParams struct {
	Status       *models.RunStatus
	Progress     *int
	Result       *types.JSONText
	Seed         *int64
	Fitness      *float64
	Conflicts    *int
	Generations  *int
	StopReason   *string
	ErrorMessage *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Update persists the provided changes for a run row.
func (r *TimetableRunRepository) Update(ctx context.Context, id string, params UpdateRunParams) error {
	set := make([]string, 0, 11)
	args := make([]interface{}, 0, 12)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.Result != nil {
		add("result", *params.Result)
	}
	if params.Seed != nil {
		add("seed", *params.Seed)
	}
	if params.Fitness != nil {
		add("fitness", *params.Fitness)
	}
	if params.Conflicts != nil {
		add("conflicts", *params.Conflicts)
	}
	if params.Generations != nil {
		add("generations", *params.Generations)
	}
	if params.StopReason != nil {
		add("stop_reason", *params.StopReason)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.StartedAt != nil {
		add("started_at", *params.StartedAt)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE timetable_runs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update timetable run: %w", err)
	}
	return nil
}

// List returns run summaries newest first, without request/result documents, and the total count.
func (r *TimetableRunRepository) List(ctx context.Context, filter models.RunFilter) ([]models.TimetableRun, int, error) {
	page, size := normalizePage(filter.Page, filter.PageSize)
	where := ""
	args := make([]interface{}, 0, 3)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = " WHERE status = $1"
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM timetable_runs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count timetable runs: %w", err)
	}

	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf("SELECT %s FROM timetable_runs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		timetableRunSummaryColumns, where, len(args)-1, len(args))
	var runs []models.TimetableRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetable runs: %w", err)
	}
	return runs, total, nil
}

// ListQueued fetches queued runs oldest first (used for cold start recovery).
func (r *TimetableRunRepository) ListQueued(ctx context.Context, limit int) ([]models.TimetableRun, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + timetableRunSummaryColumns + ` FROM timetable_runs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var runs []models.TimetableRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued timetable runs: %w", err)
	}
	return runs, nil
}

// DeleteFinishedBefore removes finished or failed runs older than cutoff.
func (r *TimetableRunRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM timetable_runs WHERE status IN ('FINISHED', 'FAILED') AND finished_at IS NOT NULL AND finished_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete timetable runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete timetable runs: %w", err)
	}
	return n, nil
}

func prepareRun(run *models.TimetableRun) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	if run.Mode == "" {
		run.Mode = models.RunModeAsync
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
