package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

// GenerationJobType labels queued generation jobs.
const GenerationJobType = "timetable.generate"

const cacheKeyPrefix = "timetable:result:"

// TimetableRunStore persists generation runs.
type TimetableRunStore interface {
	Create(ctx context.Context, run *models.TimetableRun) error
	GetByID(ctx context.Context, id string) (*models.TimetableRun, error)
	Update(ctx context.Context, id string, params repository.UpdateRunParams) error
	List(ctx context.Context, filter models.RunFilter) ([]models.TimetableRun, int, error)
	ListQueued(ctx context.Context, limit int) ([]models.TimetableRun, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type runDispatcher interface {
	Enqueue(job jobs.Job) error
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// TimetableServiceConfig carries the configured search budget.
type TimetableServiceConfig struct {
	Params    timetable.Params
	Workers   int
	Timeout   time.Duration
	LogEvery  int
	CacheTTL  time.Duration
	APIPrefix string
}

// TimetableService validates catalogs, runs the genetic search and records every run.
type TimetableService struct {
	runs      TimetableRunStore
	queue     runDispatcher
	cache     resultCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       TimetableServiceConfig
}

// generationPlan is a validated request ready to hand to the engine.
type generationPlan struct {
	catalog  *timetable.Catalog
	params   timetable.Params
	seed     *int64
	report   dto.FeasibilityResponse
	cacheKey string
}

// NewTimetableService wires the generation pipeline.
func NewTimetableService(runs TimetableRunStore, queue runDispatcher, cache resultCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg TimetableServiceConfig) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Params == (timetable.Params{}) {
		cfg.Params = timetable.DefaultParams()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &TimetableService{
		runs:      runs,
		queue:     queue,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Validate runs struct-tag validation followed by cross-reference checks.
func (s *TimetableService) Validate(req dto.GenerateTimetableRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	if msg := checkReferences(req); msg != "" {
		return appErrors.Clone(appErrors.ErrValidation, msg)
	}
	return nil
}

// CheckFeasibility compares weekly demand with available capacity without running the search.
func (s *TimetableService) CheckFeasibility(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.FeasibilityResponse, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	report := assessFeasibility(BuildCatalog(req))
	return &report, nil
}

// Generate runs the search synchronously and stores the run.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest, actorID string) (*dto.TimetableResponse, error) {
	plan, err := s.plan(req)
	if err != nil {
		return nil, err
	}

	if plan.cacheKey != "" && s.cache != nil {
		var cached dto.TimetableResponse
		if hit, _ := s.cache.Get(ctx, plan.cacheKey, &cached); hit {
			cached.Cached = true
			return &cached, nil
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable request")
	}
	now := time.Now().UTC()
	run := &models.TimetableRun{
		Mode:      models.RunModeSync,
		Status:    models.RunStatusProcessing,
		Request:   types.JSONText(payload),
		CreatedBy: actorID,
		StartedAt: &now,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record timetable run")
	}

	resp, err := s.execute(ctx, run.ID, models.RunModeSync, plan, nil)
	if err != nil {
		s.markFailed(context.WithoutCancel(ctx), run.ID, err.Error())
		s.metrics.RecordRunFailure(string(models.RunModeSync))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable generation failed")
	}

	// A run cut short by the time limit depends on load, so only complete searches are reusable.
	if plan.cacheKey != "" && s.cache != nil && resp.StopReason != string(timetable.StopCancelled) {
		_ = s.cache.Set(ctx, plan.cacheKey, resp, s.cfg.CacheTTL)
	}
	return resp, nil
}

// Submit validates the request, records a queued run and hands it to the worker queue.
func (s *TimetableService) Submit(ctx context.Context, req dto.GenerateTimetableRequest, actorID string) (*dto.JobAcceptedResponse, error) {
	if _, err := s.plan(req); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "asynchronous generation is disabled")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable request")
	}
	run := &models.TimetableRun{
		Mode:      models.RunModeAsync,
		Status:    models.RunStatusQueued,
		Request:   types.JSONText(payload),
		CreatedBy: actorID,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record timetable run")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: GenerationJobType}); err != nil {
		s.markFailed(ctx, run.ID, "failed to enqueue generation job")
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "generation queue is full, retry later")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}

	return &dto.JobAcceptedResponse{
		RunID:     run.ID,
		Status:    run.Status,
		StatusURL: fmt.Sprintf("%s/timetables/jobs/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), run.ID),
	}, nil
}

// Get returns a stored run and, when finished, its timetable.
func (s *TimetableService) Get(ctx context.Context, id string) (*dto.RunResponse, error) {
	run, err := s.loadRun(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.RunResponse{
		ID:         run.ID,
		Mode:       run.Mode,
		Status:     run.Status,
		Progress:   run.Progress,
		CreatedBy:  run.CreatedBy,
		CreatedAt:  run.CreatedAt,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.ErrorMessage != nil {
		resp.Error = *run.ErrorMessage
	}
	if run.Result.Valid {
		result, err := decodeResult(run)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored timetable is unreadable")
		}
		resp.Result = result
	}
	return resp, nil
}

// List pages through run summaries, newest first.
func (s *TimetableService) List(ctx context.Context, query dto.ListRunsQuery) ([]dto.RunSummary, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters")
	}
	filter := models.RunFilter{Page: query.Page, PageSize: query.PageSize}
	if query.Status != "" {
		status := models.RunStatus(query.Status)
		filter.Status = &status
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}

	runs, total, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable runs")
	}
	items := make([]dto.RunSummary, 0, len(runs))
	for _, run := range runs {
		items = append(items, dto.RunSummary{
			ID:          run.ID,
			Mode:        run.Mode,
			Status:      run.Status,
			Progress:    run.Progress,
			Seed:        run.Seed,
			Fitness:     run.Fitness,
			Conflicts:   run.Conflicts,
			Generations: run.Generations,
			StopReason:  run.StopReason,
			CreatedAt:   run.CreatedAt,
			FinishedAt:  run.FinishedAt,
		})
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// RecoverPending requeues runs left QUEUED by a previous process.
func (s *TimetableService) RecoverPending(ctx context.Context) {
	if s.queue == nil {
		return
	}
	pending, err := s.runs.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued timetable runs", "error", err)
		return
	}
	for _, run := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: GenerationJobType}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending run", "run_id", run.ID, "error", err)
		}
	}
}

// PurgeExpired deletes settled runs that finished more than ttl ago.
func (s *TimetableService) PurgeExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}
	removed, err := s.runs.DeleteFinishedBefore(ctx, time.Now().UTC().Add(-ttl))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("purged expired timetable runs", zap.Int64("removed", removed))
	}
	return removed, nil
}

func (s *TimetableService) plan(req dto.GenerateTimetableRequest) (*generationPlan, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	catalog := BuildCatalog(req)
	report := assessFeasibility(catalog)
	if !report.Feasible {
		return nil, appErrors.Clone(appErrors.ErrInfeasible,
			fmt.Sprintf("weekly demand of %d meetings exceeds capacity of %d classroom slots", report.Demand, report.Capacity))
	}

	params := s.cfg.Params
	var seed *int64
	if opts := req.Options; opts != nil {
		if opts.Generations != nil {
			params.Generations = *opts.Generations
		}
		if opts.PopulationSize != nil {
			params.PopulationSize = *opts.PopulationSize
			if params.EliteSize > params.PopulationSize {
				params.EliteSize = params.PopulationSize
			}
		}
		if opts.MutationRate != nil {
			params.MutationRate = *opts.MutationRate
		}
		if opts.CrossoverRate != nil {
			params.CrossoverRate = *opts.CrossoverRate
		}
		seed = opts.Seed
	}
	if err := params.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid search options")
	}

	plan := &generationPlan{catalog: catalog, params: params, seed: seed, report: report}
	if seed != nil {
		key, err := resultCacheKey(catalog, params, *seed)
		if err == nil {
			plan.cacheKey = key
		}
	}
	return plan, nil
}

// execute runs the engine for a persisted run and records the outcome on it.
func (s *TimetableService) execute(ctx context.Context, runID string, mode models.RunMode, plan *generationPlan, observer func(timetable.GenerationStats)) (*dto.TimetableResponse, error) {
	opts := []timetable.Option{
		timetable.WithLogger(s.logger.With(zap.String("run_id", runID))),
	}
	if s.cfg.LogEvery > 0 {
		opts = append(opts, timetable.WithLogEvery(s.cfg.LogEvery))
	}
	if s.cfg.Workers > 0 {
		opts = append(opts, timetable.WithWorkers(s.cfg.Workers))
	}
	if plan.seed != nil {
		opts = append(opts, timetable.WithSeed(*plan.seed))
	}
	if observer != nil {
		opts = append(opts, timetable.WithObserver(observer))
	}

	engine, err := timetable.NewEngine(plan.catalog, plan.params, opts...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	result, err := engine.Run(runCtx)
	warnings := planWarnings(plan)
	if err != nil {
		if result == nil || !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("run genetic search: %w", err)
		}
		warnings = append(warnings, fmt.Sprintf("search stopped at the %s time limit; returning the best schedule found", s.cfg.Timeout))
	}
	if result.Best.Conflicts > 0 {
		warnings = append(warnings, fmt.Sprintf("best schedule still has %d hard conflicts", result.Best.Conflicts))
	}

	resp := buildTimetableResponse(runID, result, plan.catalog, warnings)
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode timetable result: %w", err)
	}

	finished := models.RunStatusFinished
	progress := 100
	doc := types.JSONText(payload)
	seed := result.Seed
	fitness := resp.Fitness
	conflicts := resp.Conflicts
	generations := resp.Generations
	reason := resp.StopReason
	noError := ""
	now := time.Now().UTC()
	if err := s.runs.Update(context.WithoutCancel(ctx), runID, repository.UpdateRunParams{
		Status:       &finished,
		Progress:     &progress,
		Result:       &doc,
		Seed:         &seed,
		Fitness:      &fitness,
		Conflicts:    &conflicts,
		Generations:  &generations,
		StopReason:   &reason,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to store timetable result", zap.String("run_id", runID), zap.Error(err))
	}

	s.metrics.ObserveRun(string(mode), string(result.StopReason), result.Duration, result.Best.Conflicts, result.Generations)
	return resp, nil
}

func (s *TimetableService) loadRun(ctx context.Context, id string) (*models.TimetableRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	return run, nil
}

func (s *TimetableService) markFailed(ctx context.Context, runID, message string) {
	failed := models.RunStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := s.runs.Update(ctx, runID, repository.UpdateRunParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to mark run failed", "run_id", runID, "error", err)
	}
}

// BuildCatalog converts a validated request into the engine's catalog.
func BuildCatalog(req dto.GenerateTimetableRequest) *timetable.Catalog {
	c := &timetable.Catalog{
		Cohorts:     make([]timetable.Cohort, 0, len(req.Cohorts)),
		Faculty:     make([]timetable.Faculty, 0, len(req.Faculty)),
		Classrooms:  make([]timetable.Classroom, 0, len(req.Classrooms)),
		Days:        make([]timetable.Day, 0, len(req.Days)),
		TimeSlots:   make([]timetable.TimeSlot, 0, len(req.TimeSlots)),
		Assignments: make([]timetable.Assignment, 0, len(req.Assignments)),
	}
	for _, cohort := range req.Cohorts {
		courses := make([]timetable.Course, 0, len(cohort.Courses))
		for _, course := range cohort.Courses {
			courses = append(courses, timetable.Course{ID: course.ID, Code: course.Code, Name: course.Name})
		}
		c.Cohorts = append(c.Cohorts, timetable.Cohort{ID: cohort.ID, Name: cohort.Name, Courses: courses})
	}
	for _, f := range req.Faculty {
		c.Faculty = append(c.Faculty, timetable.Faculty{ID: f.ID, Code: f.Code, Name: f.Name})
	}
	for _, room := range req.Classrooms {
		c.Classrooms = append(c.Classrooms, timetable.Classroom{Name: strings.TrimSpace(room.Name)})
	}
	for _, day := range req.Days {
		c.Days = append(c.Days, timetable.Day{Label: strings.TrimSpace(day)})
	}
	for _, slot := range req.TimeSlots {
		c.TimeSlots = append(c.TimeSlots, timetable.TimeSlot{Label: slot.Label, Start: slot.Start, End: slot.End})
	}
	for _, a := range req.Assignments {
		c.Assignments = append(c.Assignments, timetable.Assignment{
			ID:           a.ID,
			CourseID:     a.CourseID,
			FacultyID:    a.FacultyID,
			TimesPerWeek: a.TimesPerWeek,
		})
	}
	return c
}

// checkReferences returns a message describing the first broken cross-reference, or "".
func checkReferences(req dto.GenerateTimetableRequest) string {
	owners := make(map[string]int)
	cohorts := make(map[string]struct{}, len(req.Cohorts))
	for _, cohort := range req.Cohorts {
		if _, dup := cohorts[cohort.ID]; dup {
			return fmt.Sprintf("duplicate cohort id %q", cohort.ID)
		}
		cohorts[cohort.ID] = struct{}{}
		seen := make(map[string]struct{}, len(cohort.Courses))
		for _, course := range cohort.Courses {
			if _, dup := seen[course.ID]; dup {
				return fmt.Sprintf("cohort %q lists course %q twice", cohort.ID, course.ID)
			}
			seen[course.ID] = struct{}{}
			owners[course.ID]++
		}
	}

	faculty := make(map[string]struct{}, len(req.Faculty))
	for _, f := range req.Faculty {
		if _, dup := faculty[f.ID]; dup {
			return fmt.Sprintf("duplicate faculty id %q", f.ID)
		}
		faculty[f.ID] = struct{}{}
	}

	rooms := make(map[string]struct{}, len(req.Classrooms))
	for _, room := range req.Classrooms {
		name := strings.TrimSpace(room.Name)
		if _, dup := rooms[name]; dup {
			return fmt.Sprintf("duplicate classroom %q", name)
		}
		rooms[name] = struct{}{}
	}

	days := make(map[string]struct{}, len(req.Days))
	for _, day := range req.Days {
		label := strings.TrimSpace(day)
		if label == "" {
			return "day labels must not be blank"
		}
		if _, dup := days[label]; dup {
			return fmt.Sprintf("duplicate day %q", label)
		}
		days[label] = struct{}{}
	}

	slots := make(map[string]struct{}, len(req.TimeSlots))
	for _, slot := range req.TimeSlots {
		if _, dup := slots[slot.Label]; dup {
			return fmt.Sprintf("duplicate time slot %q", slot.Label)
		}
		slots[slot.Label] = struct{}{}
		if slot.Start != "" && slot.End != "" {
			start, errStart := time.Parse("15:04", slot.Start)
			end, errEnd := time.Parse("15:04", slot.End)
			if errStart == nil && errEnd == nil && !start.Before(end) {
				return fmt.Sprintf("time slot %q must start before it ends", slot.Label)
			}
		}
	}

	assignments := make(map[string]struct{}, len(req.Assignments))
	for _, a := range req.Assignments {
		if _, dup := assignments[a.ID]; dup {
			return fmt.Sprintf("duplicate assignment id %q", a.ID)
		}
		assignments[a.ID] = struct{}{}
		switch owners[a.CourseID] {
		case 0:
			return fmt.Sprintf("assignment %q references unknown course %q", a.ID, a.CourseID)
		case 1:
		default:
			return fmt.Sprintf("course %q of assignment %q belongs to more than one cohort", a.CourseID, a.ID)
		}
		if _, ok := faculty[a.FacultyID]; !ok {
			return fmt.Sprintf("assignment %q references unknown faculty %q", a.ID, a.FacultyID)
		}
	}
	return ""
}

func assessFeasibility(c *timetable.Catalog) dto.FeasibilityResponse {
	demand := c.TotalDemand()
	capacity := c.Capacity()
	weekly := c.WeeklySlots()
	report := dto.FeasibilityResponse{
		Feasible: demand <= capacity,
		Demand:   demand,
		Capacity: capacity,
	}
	if capacity > 0 {
		report.Utilization = float64(demand) / float64(capacity)
	}
	if !report.Feasible {
		report.Warnings = append(report.Warnings, dto.FeasibilityWarning{
			Kind: "capacity", Name: "classrooms", Demand: demand, Limit: capacity,
		})
	}

	facultyLoad := make(map[string]int)
	cohortLoad := make(map[string]int)
	for _, a := range c.Assignments {
		facultyLoad[a.FacultyID] += a.TimesPerWeek
		if cohort, ok := c.CohortOf(a.CourseID); ok {
			cohortLoad[cohort.ID] += a.TimesPerWeek
		}
	}
	for _, f := range c.Faculty {
		if load := facultyLoad[f.ID]; load > weekly {
			report.Warnings = append(report.Warnings, dto.FeasibilityWarning{
				Kind: "faculty", ID: f.ID, Name: f.Name, Demand: load, Limit: weekly,
			})
		}
	}
	for _, cohort := range c.Cohorts {
		if load := cohortLoad[cohort.ID]; load > weekly {
			report.Warnings = append(report.Warnings, dto.FeasibilityWarning{
				Kind: "cohort", ID: cohort.ID, Name: cohort.Name, Demand: load, Limit: weekly,
			})
		}
	}
	return report
}

func planWarnings(plan *generationPlan) []string {
	var warnings []string
	for _, w := range plan.report.Warnings {
		warnings = append(warnings, fmt.Sprintf("%s %s needs %d meetings but the week has %d slots", w.Kind, w.Name, w.Demand, w.Limit))
	}
	if !timetable.PenaltyDominates(plan.catalog) {
		warnings = append(warnings, "distribution score range exceeds the conflict penalty for this catalog")
	}
	return warnings
}

func resultCacheKey(c *timetable.Catalog, params timetable.Params, seed int64) (string, error) {
	payload, err := json.Marshal(struct {
		Catalog *timetable.Catalog `json:"catalog"`
		Params  timetable.Params   `json:"params"`
		Seed    int64              `json:"seed"`
	}{c, params, seed})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return cacheKeyPrefix + hex.EncodeToString(sum[:]), nil
}

func buildTimetableResponse(runID string, result *timetable.Result, c *timetable.Catalog, warnings []string) *dto.TimetableResponse {
	meetings := result.Meetings()
	if meetings == nil {
		meetings = []timetable.Meeting{}
	}
	return &dto.TimetableResponse{
		RunID:     runID,
		Fitness:   result.Best.Fitness,
		Conflicts: result.Best.Conflicts,
		Breakdown: dto.ConflictBreakdown{
			Faculty:   result.Breakdown.Faculty,
			Classroom: result.Breakdown.Classroom,
			Cohort:    result.Breakdown.Cohort,
		},
		DistributionScore: result.DistributionScore,
		Generations:       result.Generations,
		StopReason:        string(result.StopReason),
		Seed:              result.Seed,
		DurationMS:        result.Duration.Milliseconds(),
		Meetings:          meetings,
		Grid:              buildGrid(c, meetings),
		Warnings:          warnings,
	}
}

// buildGrid lays meetings out as day -> time slot -> entries, in catalog order.
func buildGrid(c *timetable.Catalog, meetings []timetable.Meeting) []dto.GridDay {
	grid := make([]dto.GridDay, len(c.Days))
	for d, day := range c.Days {
		slots := make([]dto.GridSlot, len(c.TimeSlots))
		for t, ts := range c.TimeSlots {
			slots[t] = dto.GridSlot{Label: ts.Label, Start: ts.Start, End: ts.End, Entries: []timetable.Meeting{}}
		}
		grid[d] = dto.GridDay{Day: day.Label, Slots: slots}
	}
	for _, m := range meetings {
		if m.DayIdx < 0 || m.DayIdx >= len(grid) || m.TimeSlotIdx < 0 || m.TimeSlotIdx >= len(c.TimeSlots) {
			continue
		}
		cell := &grid[m.DayIdx].Slots[m.TimeSlotIdx]
		cell.Entries = append(cell.Entries, m)
	}
	return grid
}

func decodeResult(run *models.TimetableRun) (*dto.TimetableResponse, error) {
	var resp dto.TimetableResponse
	if err := run.Result.Unmarshal(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
