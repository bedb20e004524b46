package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
)

// CourseRequest is a course owned by a cohort.
type CourseRequest struct {
	ID   string `json:"id" validate:"required"`
	Code string `json:"code" validate:"omitempty,max=32"`
	Name string `json:"name" validate:"required"`
}

// CohortRequest is a student group ("standard") and the courses it attends.
type CohortRequest struct {
	ID      string          `json:"id" validate:"required"`
	Name    string          `json:"name" validate:"required"`
	Courses []CourseRequest `json:"courses" validate:"required,min=1,dive"`
}

// FacultyRequest is a teaching staff member.
type FacultyRequest struct {
	ID   string `json:"id" validate:"required"`
	Code string `json:"code" validate:"omitempty,max=32"`
	Name string `json:"name" validate:"required"`
}

// ClassroomRequest identifies a room by name.
type ClassroomRequest struct {
	Name string `json:"name" validate:"required"`
}

// TimeSlotRequest is a period in the day. Start/End are optional HH:MM.
type TimeSlotRequest struct {
	Label string `json:"label" validate:"required"`
	Start string `json:"start" validate:"omitempty,datetime=15:04"`
	End   string `json:"end" validate:"omitempty,datetime=15:04"`
}

// AssignmentRequest asks for a course to be taught by a faculty member timesPerWeek times.
type AssignmentRequest struct {
	ID           string `json:"id" validate:"required"`
	CourseID     string `json:"courseId" validate:"required"`
	FacultyID    string `json:"facultyId" validate:"required"`
	TimesPerWeek int    `json:"timesPerWeek" validate:"required,min=1,max=50"`
}

// GenerationOptions overrides the configured search budget for one request.
type GenerationOptions struct {
	Seed           *int64   `json:"seed,omitempty"`
	Generations    *int     `json:"generations,omitempty" validate:"omitempty,min=1,max=5000"`
	PopulationSize *int     `json:"populationSize,omitempty" validate:"omitempty,min=2,max=2000"`
	MutationRate   *float64 `json:"mutationRate,omitempty" validate:"omitempty,gte=0,lte=1"`
	CrossoverRate  *float64 `json:"crossoverRate,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// GenerateTimetableRequest carries the full catalog for one run.
type GenerateTimetableRequest struct {
	Cohorts     []CohortRequest     `json:"cohorts" validate:"required,min=1,dive"`
	Faculty     []FacultyRequest    `json:"faculty" validate:"required,min=1,dive"`
	Classrooms  []ClassroomRequest  `json:"classrooms" validate:"required,min=1,dive"`
	Days        []string            `json:"days" validate:"required,min=1,max=7,dive,required"`
	TimeSlots   []TimeSlotRequest   `json:"timeSlots" validate:"required,min=1,max=24,dive"`
	Assignments []AssignmentRequest `json:"assignments" validate:"required,min=1,dive"`
	Options     *GenerationOptions  `json:"options,omitempty"`
}

// ConflictBreakdown splits the conflict total by resource kind.
type ConflictBreakdown struct {
	Faculty   int `json:"faculty"`
	Classroom int `json:"classroom"`
	Cohort    int `json:"cohort"`
}

// GridSlot holds every meeting scheduled in one (day, time-slot) cell.
type GridSlot struct {
	Label   string              `json:"label"`
	Start   string              `json:"start,omitempty"`
	End     string              `json:"end,omitempty"`
	Entries []timetable.Meeting `json:"entries"`
}

// GridDay is one column of the timetable grid.
type GridDay struct {
	Day   string     `json:"day"`
	Slots []GridSlot `json:"slots"`
}

// TimetableResponse is the outcome of a generation.
type TimetableResponse struct {
	RunID             string              `json:"runId"`
	Fitness           float64             `json:"fitness"`
	Conflicts         int                 `json:"conflicts"`
	Breakdown         ConflictBreakdown   `json:"breakdown"`
	DistributionScore float64             `json:"distributionScore"`
	Generations       int                 `json:"generations"`
	StopReason        string              `json:"stopReason"`
	Seed              int64               `json:"seed"`
	DurationMS        int64               `json:"durationMs"`
	Meetings          []timetable.Meeting `json:"meetings"`
	Grid              []GridDay           `json:"grid"`
	Warnings          []string            `json:"warnings,omitempty"`
	Cached            bool                `json:"cached"`
}

// FeasibilityWarning flags a resource whose weekly demand cannot fit without conflicts.
type FeasibilityWarning struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Demand int    `json:"demand"`
	Limit  int    `json:"limit"`
}

// FeasibilityResponse reports capacity against demand before any search runs.
type FeasibilityResponse struct {
	Feasible    bool                 `json:"feasible"`
	Demand      int                  `json:"demand"`
	Capacity    int                  `json:"capacity"`
	Utilization float64              `json:"utilization"`
	Warnings    []FeasibilityWarning `json:"warnings,omitempty"`
}

// JobAcceptedResponse is returned when a run is queued.
type JobAcceptedResponse struct {
	RunID     string           `json:"runId"`
	Status    models.RunStatus `json:"status"`
	StatusURL string           `json:"statusUrl"`
}

// RunResponse describes a stored run and, once finished, its timetable.
type RunResponse struct {
	ID         string             `json:"id"`
	Mode       models.RunMode     `json:"mode"`
	Status     models.RunStatus   `json:"status"`
	Progress   int                `json:"progress"`
	CreatedBy  string             `json:"createdBy,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	StartedAt  *time.Time         `json:"startedAt,omitempty"`
	FinishedAt *time.Time         `json:"finishedAt,omitempty"`
	Error      string             `json:"error,omitempty"`
	Result     *TimetableResponse `json:"result,omitempty"`
}

// RunSummary is a run without its payloads, for listings.
type RunSummary struct {
	ID          string           `json:"id"`
	Mode        models.RunMode   `json:"mode"`
	Status      models.RunStatus `json:"status"`
	Progress    int              `json:"progress"`
	Seed        *int64           `json:"seed,omitempty"`
	Fitness     *float64         `json:"fitness,omitempty"`
	Conflicts   *int             `json:"conflicts,omitempty"`
	Generations *int             `json:"generations,omitempty"`
	StopReason  *string          `json:"stopReason,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	FinishedAt  *time.Time       `json:"finishedAt,omitempty"`
}

// ListRunsQuery filters run listings.
type ListRunsQuery struct {
	Status   string `form:"status" validate:"omitempty,oneof=QUEUED PROCESSING FINISHED FAILED"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// ExportResponse points at a rendered timetable file.
type ExportResponse struct {
	RunID     string              `json:"runId"`
	Format    models.ExportFormat `json:"format"`
	URL       string              `json:"url"`
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expiresAt"`
}
