// Package batch renders a list of clips through Resolve, one project at a
// time, and records the outcome of every file.
package batch

import (
	"errors"
	"time"

	"github.com/heimdex/heimdex-render/internal/ledger"
)

var (
	ErrRenderFailed    = errors.New("render job failed")
	ErrRenderCancelled = errors.New("render job cancelled")
	ErrNothingImported = errors.New("no media imported")
)

// File outcomes share the ledger's render status values.
const (
	StatusRunning   = ledger.RenderStatusRunning
	StatusSucceeded = ledger.RenderStatusSucceeded
	StatusFailed    = ledger.RenderStatusFailed
	StatusSkipped   = ledger.RenderStatusSkipped
)

// Pipeline stages, in execution order.
const (
	StageCreateProject  = "create_project"
	StageImportMedia    = "import_media"
	StageCreateTimeline = "create_timeline"
	StageOutputDir      = "output_dir"
	StageRenderSettings = "render_settings"
	StageAddJob         = "add_job"
	StageStartRender    = "start_render"
	StageAwaitRender    = "await_render"
)

// Result is the outcome of one file. Stage and Err are set only on failure.
type Result struct {
	Source    string
	Project   string
	OutputDir string
	JobID     string
	Status    string
	Stage     string
	Err       error
	Elapsed   time.Duration
}

func (r Result) errString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Summary aggregates a run.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Cancelled bool
	Results   []Result
	Elapsed   time.Duration
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	switch r.Status {
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	}
}

// OK reports whether every file rendered.
func (s Summary) OK() bool {
	return s.Total > 0 && s.Succeeded == s.Total
}

func (s Summary) runStatus() string {
	switch {
	case s.Cancelled:
		return ledger.RunStatusCancelled
	case s.OK():
		return ledger.RunStatusCompleted
	default:
		return ledger.RunStatusFailed
	}
}
