package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/heimdex/heimdex-render/internal/resolve"
)

// fakeSession is an in-memory Resolve. Every call is appended to calls.
type fakeSession struct {
	mu       sync.Mutex
	calls    []string
	projects []string
	jobs     int

	// statuses are returned in order for every job; the last one repeats.
	statuses []resolve.RenderStatus
	// failOn makes the named operation fail for the named project.
	failOn map[string]string
	// noMedia makes import return zero items.
	noMedia  bool
	settings map[string]map[string]interface{}
	polls    map[string]int
}

func newFakeSession(existing ...string) *fakeSession {
	return &fakeSession{
		projects: existing,
		statuses: []resolve.RenderStatus{{JobStatus: resolve.StatusComplete, CompletionPercentage: 100}},
		failOn:   map[string]string{},
		settings: map[string]map[string]interface{}{},
		polls:    map[string]int{},
	}
}

func (f *fakeSession) record(format string, args ...interface{}) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func (f *fakeSession) fail(op, project string) error {
	if f.failOn[op] == project {
		return errors.New(op + " refused")
	}
	return nil
}

func (f *fakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSession) Ping(ctx context.Context) (*resolve.AppInfo, error) {
	return &resolve.AppInfo{Product: "DaVinci Resolve", Version: "19.0"}, nil
}

func (f *fakeSession) ProjectManager() resolve.ProjectManager { return f }

func (f *fakeSession) Quit(ctx context.Context) error {
	f.record("quit")
	return nil
}

func (f *fakeSession) ListProjects(ctx context.Context) ([]string, error) {
	return append([]string(nil), f.projects...), nil
}

func (f *fakeSession) CreateProject(ctx context.Context, name string) (resolve.Project, error) {
	f.record("create %s", name)
	if err := f.fail("create", name); err != nil {
		return nil, err
	}
	for _, p := range f.projects {
		if p == name {
			return nil, errors.New("project exists")
		}
	}
	f.projects = append(f.projects, name)
	return &fakeProject{f: f, name: name}, nil
}

func (f *fakeSession) CloseProject(ctx context.Context, p resolve.Project) error {
	f.record("close %s", p.Name())
	return nil
}

type fakeProject struct {
	f    *fakeSession
	name string
}

func (p *fakeProject) Name() string { return p.name }

func (p *fakeProject) ImportMedia(ctx context.Context, paths []string) ([]resolve.MediaItem, error) {
	p.f.record("import %s", p.name)
	if err := p.f.fail("import", p.name); err != nil {
		return nil, err
	}
	if p.f.noMedia {
		return nil, nil
	}
	items := make([]resolve.MediaItem, len(paths))
	for i, path := range paths {
		items[i] = resolve.MediaItem{ID: fmt.Sprintf("m%d", i), Name: path}
	}
	return items, nil
}

func (p *fakeProject) CreateTimeline(ctx context.Context, name string, items []resolve.MediaItem) error {
	p.f.record("timeline %s %s", p.name, name)
	return nil
}

func (p *fakeProject) RenderPresets(ctx context.Context) ([]string, error) {
	return []string{"IMF - Netflix", "H.264 Master"}, nil
}

func (p *fakeProject) LoadRenderPreset(ctx context.Context, name string) error {
	p.f.record("preset %s %s", p.name, name)
	return p.f.fail("preset", p.name)
}

func (p *fakeProject) SetRenderSettings(ctx context.Context, settings map[string]interface{}) error {
	p.f.record("settings %s", p.name)
	p.f.mu.Lock()
	p.f.settings[p.name] = settings
	p.f.mu.Unlock()
	return nil
}

func (p *fakeProject) SetRenderFormatAndCodec(ctx context.Context, format, codec string) error {
	p.f.record("format %s %s/%s", p.name, format, codec)
	return nil
}

func (p *fakeProject) AddRenderJob(ctx context.Context) (string, error) {
	p.f.mu.Lock()
	p.f.jobs++
	id := fmt.Sprintf("job-%d", p.f.jobs)
	p.f.mu.Unlock()
	p.f.record("addjob %s %s", p.name, id)
	return id, nil
}

func (p *fakeProject) StartRendering(ctx context.Context, jobIDs ...string) error {
	p.f.record("start %s %v", p.name, jobIDs)
	return p.f.fail("start", p.name)
}

func (p *fakeProject) RenderStatus(ctx context.Context, jobID string) (resolve.RenderStatus, error) {
	p.f.mu.Lock()
	n := p.f.polls[jobID]
	p.f.polls[jobID] = n + 1
	p.f.mu.Unlock()
	if n >= len(p.f.statuses) {
		n = len(p.f.statuses) - 1
	}
	return p.f.statuses[n], nil
}

// sequenceSource returns statuses in order and counts queries.
type sequenceSource struct {
	statuses []resolve.RenderStatus
	queries  int
	err      error
}

func (s *sequenceSource) RenderStatus(ctx context.Context, jobID string) (resolve.RenderStatus, error) {
	if s.err != nil {
		return resolve.RenderStatus{}, s.err
	}
	st := s.statuses[s.queries]
	s.queries++
	return st, nil
}

func statuses(names ...string) []resolve.RenderStatus {
	out := make([]resolve.RenderStatus, len(names))
	for i, n := range names {
		out[i] = resolve.RenderStatus{JobStatus: n}
	}
	return out
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}
