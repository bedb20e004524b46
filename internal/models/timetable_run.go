package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RunStatus captures the generation lifecycle.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "QUEUED"
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusFinished   RunStatus = "FINISHED"
	RunStatusFailed     RunStatus = "FAILED"
)

// RunMode distinguishes request/response runs from queued ones.
type RunMode string

const (
	RunModeSync  RunMode = "sync"
	RunModeAsync RunMode = "async"
)

// ExportFormat enumerates supported timetable file formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// TimetableRun is one persisted generation: the submitted catalog, and once finished, the result.
type TimetableRun struct {
	ID           string             `db:"id" json:"id"`
	Mode         RunMode            `db:"mode" json:"mode"`
	Status       RunStatus          `db:"status" json:"status"`
	Progress     int                `db:"progress" json:"progress"`
	Request      types.JSONText     `db:"request" json:"request"`
	Result       types.NullJSONText `db:"result" json:"result"`
	Seed         *int64             `db:"seed" json:"seed,omitempty"`
	Fitness      *float64           `db:"fitness" json:"fitness,omitempty"`
	Conflicts    *int               `db:"conflicts" json:"conflicts,omitempty"`
	Generations  *int               `db:"generations" json:"generations,omitempty"`
	StopReason   *string            `db:"stop_reason" json:"stop_reason,omitempty"`
	ErrorMessage *string            `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string             `db:"created_by" json:"created_by"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	StartedAt    *time.Time         `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time         `db:"finished_at" json:"finished_at,omitempty"`
}

// RunFilter narrows run listings.
type RunFilter struct {
	Status   *RunStatus
	Page     int
	PageSize int
}
