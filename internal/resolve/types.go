// Package resolve is the control session with DaVinci Resolve. Resolve's
// scripting API is only reachable from Python or Lua, so every call is
// executed through a bridge module (`python -m <module> <command> ...`) that
// prints a JSON envelope on stdout.
package resolve

import "context"

// Job statuses reported by Resolve's GetRenderJobStatus.
const (
	StatusReady     = "Ready"
	StatusRendering = "Rendering"
	StatusComplete  = "Complete"
	StatusFailed    = "Failed"
	StatusCancelled = "Cancelled"
)

// RenderStatus is the result of a render job status query.
type RenderStatus struct {
	JobStatus            string `json:"JobStatus"`
	CompletionPercentage int    `json:"CompletionPercentage"`
	Error                string `json:"Error,omitempty"`
}

// Terminal reports whether the job will not change state any more.
func (s RenderStatus) Terminal() bool {
	switch s.JobStatus {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// AppInfo identifies the running Resolve instance.
type AppInfo struct {
	Product string `json:"product"`
	Version string `json:"version"`
}

// MediaItem is a clip imported into a project's media pool.
type MediaItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is a control session with a running Resolve.
type Session interface {
	// Ping checks that Resolve accepts scripting connections.
	Ping(ctx context.Context) (*AppInfo, error)
	ProjectManager() ProjectManager
	// Quit asks Resolve to exit.
	Quit(ctx context.Context) error
}

// ProjectManager creates, lists and closes projects.
type ProjectManager interface {
	ListProjects(ctx context.Context) ([]string, error)
	CreateProject(ctx context.Context, name string) (Project, error)
	CloseProject(ctx context.Context, p Project) error
}

// Project exposes the media pool and render operations of one open project.
type Project interface {
	Name() string
	ImportMedia(ctx context.Context, paths []string) ([]MediaItem, error)
	CreateTimeline(ctx context.Context, name string, items []MediaItem) error
	RenderPresets(ctx context.Context) ([]string, error)
	LoadRenderPreset(ctx context.Context, name string) error
	SetRenderSettings(ctx context.Context, settings map[string]interface{}) error
	SetRenderFormatAndCodec(ctx context.Context, format, codec string) error
	AddRenderJob(ctx context.Context) (string, error)
	StartRendering(ctx context.Context, jobIDs ...string) error
	RenderStatus(ctx context.Context, jobID string) (RenderStatus, error)
}
