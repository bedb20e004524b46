package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	c.sets++
	return nil
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func sampleRequest() dto.GenerateTimetableRequest {
	return dto.GenerateTimetableRequest{
		Cohorts: []dto.CohortRequest{
			{ID: "g10", Name: "Grade 10", Courses: []dto.CourseRequest{
				{ID: "math", Code: "MTH", Name: "Mathematics"},
				{ID: "phy", Code: "PHY", Name: "Physics"},
			}},
			{ID: "g11", Name: "Grade 11", Courses: []dto.CourseRequest{
				{ID: "bio", Code: "BIO", Name: "Biology"},
			}},
		},
		Faculty: []dto.FacultyRequest{
			{ID: "f1", Name: "A. Rahman"},
			{ID: "f2", Name: "S. Wijaya"},
		},
		Classrooms: []dto.ClassroomRequest{{Name: "R101"}, {Name: "R102"}},
		Days:       []string{"Mon", "Tue", "Wed"},
		TimeSlots: []dto.TimeSlotRequest{
			{Label: "P1", Start: "07:00", End: "07:45"},
			{Label: "P2", Start: "07:45", End: "08:30"},
		},
		Assignments: []dto.AssignmentRequest{
			{ID: "a1", CourseID: "math", FacultyID: "f1", TimesPerWeek: 2},
			{ID: "a2", CourseID: "phy", FacultyID: "f2", TimesPerWeek: 2},
			{ID: "a3", CourseID: "bio", FacultyID: "f1", TimesPerWeek: 2},
		},
		Options: &dto.GenerationOptions{Seed: int64Ptr(7)},
	}
}

func testParams() timetable.Params {
	params := timetable.DefaultParams()
	params.PopulationSize = 30
	params.Generations = 40
	params.EliteSize = 4
	return params
}

func newTimetableServiceForTest(queue runDispatcher, cache resultCache) (*TimetableService, *repository.MemoryRunRepository) {
	repo := repository.NewMemoryRunRepository()
	svc := NewTimetableService(repo, queue, cache, NewMetricsService(), nil, zap.NewNop(), TimetableServiceConfig{
		Params:    testParams(),
		Workers:   2,
		Timeout:   10 * time.Second,
		APIPrefix: "/api/v1",
	})
	return svc, repo
}

func errorCode(err error) string {
	return appErrors.FromError(err).Code
}

func TestTimetableServiceGenerateStoresFinishedRun(t *testing.T) {
	svc, repo := newTimetableServiceForTest(nil, nil)

	resp, err := svc.Generate(context.Background(), sampleRequest(), "admin-1")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, int64(7), resp.Seed)
	assert.False(t, resp.Cached)
	assert.Len(t, resp.Meetings, 6)
	assert.Equal(t, resp.Conflicts, resp.Breakdown.Faculty+resp.Breakdown.Classroom+resp.Breakdown.Cohort)
	assert.Equal(t, 0, resp.Conflicts)

	require.Len(t, resp.Grid, 3)
	placed := 0
	for _, day := range resp.Grid {
		require.Len(t, day.Slots, 2)
		for _, slot := range day.Slots {
			placed += len(slot.Entries)
		}
	}
	assert.Equal(t, 6, placed)

	run, err := repo.GetByID(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFinished, run.Status)
	assert.Equal(t, models.RunModeSync, run.Mode)
	assert.Equal(t, 100, run.Progress)
	assert.Equal(t, "admin-1", run.CreatedBy)
	require.NotNil(t, run.Seed)
	assert.Equal(t, int64(7), *run.Seed)
	assert.True(t, run.Result.Valid)
	assert.NotNil(t, run.FinishedAt)
}

func TestTimetableServiceGenerateIsReproducibleForSeed(t *testing.T) {
	svc, _ := newTimetableServiceForTest(nil, nil)

	first, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Meetings, second.Meetings)
	assert.Equal(t, first.Fitness, second.Fitness)
}

func TestTimetableServiceCachesSeededRequests(t *testing.T) {
	cache := newMapCache()
	svc, repo := newTimetableServiceForTest(nil, cache)

	first, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, 1, cache.sets)

	_, total, err := repo.List(context.Background(), models.RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "a cache hit does not start a new run")

	unseeded := sampleRequest()
	unseeded.Options = nil
	third, err := svc.Generate(context.Background(), unseeded, "")
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 1, cache.sets)
}

func TestTimetableServiceDoesNotCacheTimedOutRuns(t *testing.T) {
	cache := newMapCache()
	params := testParams()
	params.Generations = 200000
	params.MinGenerations = 200000
	svc := NewTimetableService(repository.NewMemoryRunRepository(), nil, cache, nil, nil, zap.NewNop(), TimetableServiceConfig{
		Params:  params,
		Timeout: 30 * time.Millisecond,
	})

	first, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)
	require.Equal(t, string(timetable.StopCancelled), first.StopReason)
	assert.Equal(t, 0, cache.sets)

	second, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 0, cache.sets)
}

func TestTimetableServiceRejectsBrokenReferences(t *testing.T) {
	svc, _ := newTimetableServiceForTest(nil, nil)

	cases := map[string]func(*dto.GenerateTimetableRequest){
		"missing cohorts": func(r *dto.GenerateTimetableRequest) { r.Cohorts = nil },
		"unknown course":  func(r *dto.GenerateTimetableRequest) { r.Assignments[0].CourseID = "art" },
		"unknown faculty": func(r *dto.GenerateTimetableRequest) { r.Assignments[0].FacultyID = "f9" },
		"shared course": func(r *dto.GenerateTimetableRequest) {
			r.Cohorts[1].Courses = append(r.Cohorts[1].Courses, dto.CourseRequest{ID: "math", Name: "Mathematics"})
		},
		"duplicate room": func(r *dto.GenerateTimetableRequest) {
			r.Classrooms = append(r.Classrooms, dto.ClassroomRequest{Name: "R101"})
		},
		"duplicate day":   func(r *dto.GenerateTimetableRequest) { r.Days = append(r.Days, "Mon") },
		"reversed slot":   func(r *dto.GenerateTimetableRequest) { r.TimeSlots[0].Start, r.TimeSlots[0].End = "08:00", "07:00" },
		"malformed time":  func(r *dto.GenerateTimetableRequest) { r.TimeSlots[0].Start = "7am" },
		"zero per week":   func(r *dto.GenerateTimetableRequest) { r.Assignments[0].TimesPerWeek = 0 },
		"bad mutation":    func(r *dto.GenerateTimetableRequest) { rate := 2.0; r.Options.MutationRate = &rate },
		"duplicate id":    func(r *dto.GenerateTimetableRequest) { r.Assignments[1].ID = "a1" },
		"too many days":   func(r *dto.GenerateTimetableRequest) { r.Days = []string{"1", "2", "3", "4", "5", "6", "7", "8"} },
		"blank day label": func(r *dto.GenerateTimetableRequest) { r.Days[0] = "   " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := sampleRequest()
			mutate(&req)
			_, err := svc.Generate(context.Background(), req, "")
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
		})
	}
}

func TestTimetableServiceRejectsInfeasibleDemand(t *testing.T) {
	svc, repo := newTimetableServiceForTest(nil, nil)
	req := sampleRequest()
	req.Assignments[0].TimesPerWeek = 20

	_, err := svc.Generate(context.Background(), req, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInfeasible.Code, errorCode(err))

	_, total, err := repo.List(context.Background(), models.RunFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestTimetableServiceFeasibilityWarnings(t *testing.T) {
	svc, _ := newTimetableServiceForTest(nil, nil)
	req := sampleRequest()
	req.Assignments[0].TimesPerWeek = 5

	report, err := svc.CheckFeasibility(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, report.Feasible)
	assert.Equal(t, 9, report.Demand)
	assert.Equal(t, 12, report.Capacity)
	assert.InDelta(t, 0.75, report.Utilization, 1e-9)

	kinds := map[string]string{}
	for _, w := range report.Warnings {
		kinds[w.Kind] = w.ID
		assert.Equal(t, 6, w.Limit)
	}
	assert.Equal(t, "f1", kinds["faculty"], "f1 teaches 7 meetings in 6 weekly slots")
	assert.Equal(t, "g10", kinds["cohort"], "grade 10 attends 7 meetings in 6 weekly slots")
}

func TestTimetableServiceSubmitQueuesRun(t *testing.T) {
	queue := &recordingQueue{}
	svc, repo := newTimetableServiceForTest(queue, nil)

	accepted, err := svc.Submit(context.Background(), sampleRequest(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, accepted.Status)
	assert.Equal(t, fmt.Sprintf("/api/v1/timetables/jobs/%s", accepted.RunID), accepted.StatusURL)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, accepted.RunID, queue.jobs[0].ID)
	assert.Equal(t, GenerationJobType, queue.jobs[0].Type)

	run, err := repo.GetByID(context.Background(), accepted.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunModeAsync, run.Mode)
	assert.Equal(t, models.RunStatusQueued, run.Status)
}

func TestTimetableServiceSubmitQueueFull(t *testing.T) {
	queue := &recordingQueue{err: fmt.Errorf("queue generation: %w", jobs.ErrQueueFull)}
	svc, repo := newTimetableServiceForTest(queue, nil)

	_, err := svc.Submit(context.Background(), sampleRequest(), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, errorCode(err))

	failed := models.RunStatusFailed
	runs, total, err := repo.List(context.Background(), models.RunFilter{Status: &failed})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, 100, runs[0].Progress)
}

func TestTimetableServiceSubmitWithoutQueue(t *testing.T) {
	svc, _ := newTimetableServiceForTest(nil, nil)
	_, err := svc.Submit(context.Background(), sampleRequest(), "")
	assert.Equal(t, appErrors.ErrUnavailable.Code, errorCode(err))
}

func TestTimetableServiceGetAndList(t *testing.T) {
	svc, _ := newTimetableServiceForTest(nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))

	generated, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)

	run, err := svc.Get(context.Background(), generated.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFinished, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, generated.Meetings, run.Result.Meetings)

	items, page, err := svc.List(context.Background(), dto.ListRunsQuery{Status: "FINISHED"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, generated.RunID, items[0].ID)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 20, page.PageSize)

	_, _, err = svc.List(context.Background(), dto.ListRunsQuery{Status: "DONE"})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}

func TestTimetableServiceReturnsBestOnTimeout(t *testing.T) {
	repo := repository.NewMemoryRunRepository()
	params := testParams()
	params.Generations = 200000
	params.MinGenerations = 200000
	svc := NewTimetableService(repo, nil, nil, nil, nil, zap.NewNop(), TimetableServiceConfig{
		Params:  params,
		Timeout: 50 * time.Millisecond,
	})

	resp, err := svc.Generate(context.Background(), sampleRequest(), "")
	require.NoError(t, err)
	assert.Equal(t, string(timetable.StopCancelled), resp.StopReason)
	assert.Less(t, resp.Generations, 200000)
	assert.NotEmpty(t, resp.Warnings)
}

func TestTimetableServiceFailsWhenCallerCancels(t *testing.T) {
	svc, repo := newTimetableServiceForTest(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Generate(ctx, sampleRequest(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	failed := models.RunStatusFailed
	_, total, err := repo.List(context.Background(), models.RunFilter{Status: &failed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestTimetableServicePurgeExpired(t *testing.T) {
	svc, repo := newTimetableServiceForTest(nil, nil)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Create(context.Background(), &models.TimetableRun{ID: "old", Status: models.RunStatusFinished, FinishedAt: &old}))

	removed, err := svc.PurgeExpired(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestTimetableServiceRecoverPending(t *testing.T) {
	queue := &recordingQueue{}
	svc, repo := newTimetableServiceForTest(queue, nil)
	require.NoError(t, repo.Create(context.Background(), &models.TimetableRun{ID: "pending", Status: models.RunStatusQueued}))

	svc.RecoverPending(context.Background())
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "pending", queue.jobs[0].ID)
}
