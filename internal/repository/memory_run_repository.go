package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// MemoryRunRepository keeps runs in process memory. It is used when no database is configured
// and mirrors TimetableRunRepository, including sql.ErrNoRows for unknown ids.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string]*models.TimetableRun
}

// NewMemoryRunRepository constructs an empty store.
func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]*models.TimetableRun)}
}

// Create stores a copy of run.
func (r *MemoryRunRepository) Create(ctx context.Context, run *models.TimetableRun) error {
	prepareRun(run)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("create timetable run: duplicate id %s", run.ID)
	}
	stored := *run
	r.runs[run.ID] = &stored
	return nil
}

// GetByID returns a copy of the stored run.
func (r *MemoryRunRepository) GetByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("get timetable run: %w", sql.ErrNoRows)
	}
	clone := *run
	return &clone, nil
}

// Update applies the non-nil fields of params.
func (r *MemoryRunRepository) Update(ctx context.Context, id string, params UpdateRunParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return fmt.Errorf("update timetable run: %w", sql.ErrNoRows)
	}
	if params.Status != nil {
		run.Status = *params.Status
	}
	if params.Progress != nil {
		run.Progress = *params.Progress
	}
	if params.Result != nil {
		run.Result.JSONText = *params.Result
		run.Result.Valid = true
	}
	if params.Seed != nil {
		run.Seed = params.Seed
	}
	if params.Fitness != nil {
		run.Fitness = params.Fitness
	}
	if params.Conflicts != nil {
		run.Conflicts = params.Conflicts
	}
	if params.Generations != nil {
		run.Generations = params.Generations
	}
	if params.StopReason != nil {
		run.StopReason = params.StopReason
	}
	if params.ErrorMessage != nil {
		run.ErrorMessage = params.ErrorMessage
	}
	if params.StartedAt != nil {
		run.StartedAt = params.StartedAt
	}
	if params.FinishedAt != nil {
		run.FinishedAt = params.FinishedAt
	}
	return nil
}

// List returns runs newest first with request and result documents stripped.
func (r *MemoryRunRepository) List(ctx context.Context, filter models.RunFilter) ([]models.TimetableRun, int, error) {
	page, size := normalizePage(filter.Page, filter.PageSize)
	r.mu.RLock()
	matched := make([]models.TimetableRun, 0, len(r.runs))
	for _, run := range r.runs {
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		summary := *run
		summary.Request = nil
		summary.Result.Valid = false
		summary.Result.JSONText = nil
		matched = append(matched, summary)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	start := (page - 1) * size
	if start >= total {
		return []models.TimetableRun{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// ListQueued returns queued runs oldest first.
func (r *MemoryRunRepository) ListQueued(ctx context.Context, limit int) ([]models.TimetableRun, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.RLock()
	queued := make([]models.TimetableRun, 0)
	for _, run := range r.runs {
		if run.Status == models.RunStatusQueued {
			queued = append(queued, *run)
		}
	}
	r.mu.RUnlock()
	sort.Slice(queued, func(i, j int) bool {
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	if len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

// DeleteFinishedBefore drops finished or failed runs older than cutoff.
func (r *MemoryRunRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, run := range r.runs {
		if run.Status != models.RunStatusFinished && run.Status != models.RunStatusFailed {
			continue
		}
		if run.FinishedAt != nil && run.FinishedAt.Before(cutoff) {
			delete(r.runs, id)
			removed++
		}
	}
	return removed, nil
}
