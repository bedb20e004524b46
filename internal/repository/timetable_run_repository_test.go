package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func newRunRepoMock(t *testing.T) (*TimetableRunRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewTimetableRunRepository(sqlx.NewDb(db, "sqlmock")), mock, func() { db.Close() }
}

func runColumns() []string {
	return []string{"id", "mode", "status", "progress", "request", "result", "seed", "fitness", "conflicts", "generations", "stop_reason", "error_message", "created_by", "created_at", "started_at", "finished_at"}
}

func TestTimetableRunRepositoryCreateFillsDefaults(t *testing.T) {
	repo, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_runs")).
		WithArgs(sqlmock.AnyArg(), string(models.RunModeAsync), string(models.RunStatusQueued), 0,
			sqlmock.AnyArg(), nil, nil, nil, nil, nil, nil, nil, "admin", sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.TimetableRun{Request: types.JSONText(`{"cohorts":[]}`), CreatedBy: "admin"}
	require.NoError(t, repo.Create(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunStatusQueued, run.Status)
	assert.False(t, run.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryGetByID(t *testing.T) {
	repo, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(runColumns()).
		AddRow("run-1", "sync", "FINISHED", 100, []byte(`{"cohorts":[]}`), []byte(`{"runId":"run-1"}`), int64(42), 65.0, 0, 30, "converged", nil, "admin", now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, mode, status, progress, request, result, seed, fitness, conflicts, generations, stop_reason, error_message, created_by, created_at, started_at, finished_at FROM timetable_runs WHERE id = $1")).
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := repo.GetByID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFinished, run.Status)
	assert.True(t, run.Result.Valid)
	require.NotNil(t, run.Seed)
	assert.Equal(t, int64(42), *run.Seed)
	require.NotNil(t, run.StopReason)
	assert.Equal(t, "converged", *run.StopReason)
	assert.Nil(t, run.ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_runs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestTimetableRunRepositoryUpdateBuildsDynamicSet(t *testing.T) {
	repo, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_runs SET status = $1, progress = $2 WHERE id = $3")).
		WithArgs(string(models.RunStatusProcessing), 10, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	status := models.RunStatusProcessing
	progress := 10
	require.NoError(t, repo.Update(context.Background(), "run-1", UpdateRunParams{Status: &status, Progress: &progress}))
	require.NoError(t, repo.Update(context.Background(), "run-1", UpdateRunParams{}), "empty update is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryListPaginates(t *testing.T) {
	repo, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM timetable_runs WHERE status = $1")).
		WithArgs("FINISHED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(15))
	summaryCols := []string{"id", "mode", "status", "progress", "seed", "fitness", "conflicts", "generations", "stop_reason", "error_message", "created_by", "created_at", "started_at", "finished_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_runs WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3")).
		WithArgs("FINISHED", 10, 10).
		WillReturnRows(sqlmock.NewRows(summaryCols).
			AddRow("run-11", "async", "FINISHED", 100, int64(1), 40.0, 0, 25, "converged", nil, "", time.Now(), nil, time.Now()))

	status := models.RunStatusFinished
	runs, total, err := repo.List(context.Background(), models.RunFilter{Status: &status, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 15, total)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-11", runs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryDeleteFinishedBefore(t *testing.T) {
	repo, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_runs WHERE status IN ('FINISHED', 'FAILED')")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteFinishedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryMigrate(t *testing.T) {
	repo, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS timetable_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
