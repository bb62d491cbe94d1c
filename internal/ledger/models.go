// Package ledger persists batch runs and per-file render outcomes.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
	RunStatusCancelled   = "cancelled"
	RunStatusInterrupted = "interrupted"

	RenderStatusPending   = "pending"
	RenderStatusRunning   = "running"
	RenderStatusSucceeded = "succeeded"
	RenderStatusFailed    = "failed"
	RenderStatusSkipped   = "skipped"
)

// ConfigKeyAPIToken holds the status API bearer token.
const ConfigKeyAPIToken = "api_token"

type Run struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"`
	InputDir   string     `json:"input_dir"`
	OutputDir  string     `json:"output_dir"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Render struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	SourcePath  string    `json:"source_path"`
	ProjectName string    `json:"project_name,omitempty"`
	OutputDir   string    `json:"output_dir,omitempty"`
	JobID       string    `json:"job_id,omitempty"`
	Status      string    `json:"status"`
	Stage       string    `json:"stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewID() string {
	return uuid.NewString()
}
