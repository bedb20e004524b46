package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

// progressStep is the minimum progress change, in percent, that is written back to the run.
const progressStep = 5

// GenerationWorker bridges queue jobs to the genetic search.
type GenerationWorker struct {
	runs       TimetableRunStore
	service    *TimetableService
	logger     *zap.Logger
	maxRetries int
}

// NewGenerationWorker constructs a worker. maxRetries matches the queue's retry budget.
func NewGenerationWorker(runs TimetableRunStore, service *TimetableService, maxRetries int, logger *zap.Logger) *GenerationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &GenerationWorker{
		runs:       runs,
		service:    service,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes a queue job.
func (w *GenerationWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.runs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status == models.RunStatusFinished || record.Status == models.RunStatusFailed {
		w.logger.Debug("skipping settled run", zap.String("run_id", job.ID), zap.String("status", string(record.Status)))
		return nil
	}

	var req dto.GenerateTimetableRequest
	if err := json.Unmarshal(record.Request, &req); err != nil {
		w.service.markFailed(ctx, job.ID, "stored request is unreadable")
		return nil
	}
	// The request was validated on submit; a failure here is permanent so it is not retried.
	plan, err := w.service.plan(req)
	if err != nil {
		w.service.markFailed(ctx, job.ID, err.Error())
		w.service.metrics.RecordRunFailure(string(models.RunModeAsync))
		return nil
	}

	processing := models.RunStatusProcessing
	progress := 0
	now := time.Now().UTC()
	if err := w.runs.Update(ctx, job.ID, repository.UpdateRunParams{
		Status:    &processing,
		Progress:  &progress,
		StartedAt: &now,
	}); err != nil {
		return err
	}

	if _, err := w.service.execute(ctx, job.ID, models.RunModeAsync, plan, w.progressObserver(ctx, job.ID, plan.params.Generations)); err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			w.service.markFailed(context.WithoutCancel(ctx), job.ID, msg)
			w.service.metrics.RecordRunFailure(string(models.RunModeAsync))
		} else {
			queued := models.RunStatusQueued
			reset := 0
			if updateErr := w.runs.Update(context.WithoutCancel(ctx), job.ID, repository.UpdateRunParams{
				Status:       &queued,
				Progress:     &reset,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark run queued", "run_id", job.ID, "error", updateErr)
			}
		}
		return err
	}
	return nil
}

// RequeueFailed settles a run whose retry could not be put back on the queue. A stopped queue
// leaves the run QUEUED so the next process recovers it.
func (w *GenerationWorker) RequeueFailed(job jobs.Job, err error) {
	if errors.Is(err, jobs.ErrQueueStopped) {
		return
	}
	ctx := context.Background()
	record, getErr := w.runs.GetByID(ctx, job.ID)
	if getErr != nil {
		w.logger.Sugar().Warnw("failed to load run after lost retry", "run_id", job.ID, "error", getErr)
		return
	}
	if record.Status != models.RunStatusQueued {
		return
	}
	msg := fmt.Sprintf("retry %d could not be scheduled: %v", job.Attempt, err)
	if record.ErrorMessage != nil && *record.ErrorMessage != "" {
		msg = *record.ErrorMessage + "; " + msg
	}
	w.service.markFailed(ctx, job.ID, msg)
	w.service.metrics.RecordRunFailure(string(models.RunModeAsync))
}

// progressObserver writes coarse progress to the run as generations complete. The engine calls it
// from its main loop, so writes are sequential.
func (w *GenerationWorker) progressObserver(ctx context.Context, runID string, budget int) func(timetable.GenerationStats) {
	last := 0
	return func(stats timetable.GenerationStats) {
		if budget <= 0 {
			return
		}
		pct := (stats.Generation + 1) * 100 / budget
		if pct > 99 {
			pct = 99
		}
		if pct < last+progressStep {
			return
		}
		last = pct
		if err := w.runs.Update(ctx, runID, repository.UpdateRunParams{Progress: &pct}); err != nil {
			w.logger.Debug("progress update failed", zap.String("run_id", runID), zap.Error(err))
		}
	}
}
