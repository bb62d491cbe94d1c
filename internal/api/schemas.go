package api

import (
	"time"

	"github.com/heimdex/heimdex-render/internal/ledger"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type RunResponse struct {
	ID         string `json:"id"`
	Mode       string `json:"mode"`
	InputDir   string `json:"input_dir"`
	OutputDir  string `json:"output_dir"`
	Status     string `json:"status"`
	Total      int    `json:"total"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type RenderResponse struct {
	ID          string `json:"id"`
	RunID       string `json:"run_id"`
	SourcePath  string `json:"source_path"`
	ProjectName string `json:"project_name,omitempty"`
	OutputDir   string `json:"output_dir,omitempty"`
	JobID       string `json:"job_id,omitempty"`
	Status      string `json:"status"`
	Stage       string `json:"stage,omitempty"`
	Error       string `json:"error,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms"`
	UpdatedAt   string `json:"updated_at"`
}

type RendersResponse struct {
	Renders []RenderResponse `json:"renders"`
}

type OutputFileResponse struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	SizeHuman string `json:"size_human"`
	ModTime   string `json:"mod_time"`
}

type OutputFilesResponse struct {
	RenderID string               `json:"render_id"`
	Dir      string               `json:"dir"`
	Files    []OutputFileResponse `json:"files"`
}

type CancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	RunID     string `json:"run_id,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func RunToResponse(r *ledger.Run) RunResponse {
	resp := RunResponse{
		ID:        r.ID,
		Mode:      r.Mode,
		InputDir:  r.InputDir,
		OutputDir: r.OutputDir,
		Status:    r.Status,
		Total:     r.Total,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if r.FinishedAt != nil {
		resp.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func RenderToResponse(r *ledger.Render) RenderResponse {
	return RenderResponse{
		ID:          r.ID,
		RunID:       r.RunID,
		SourcePath:  r.SourcePath,
		ProjectName: r.ProjectName,
		OutputDir:   r.OutputDir,
		JobID:       r.JobID,
		Status:      r.Status,
		Stage:       r.Stage,
		Error:       r.Error,
		ElapsedMs:   r.ElapsedMs,
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
	}
}
