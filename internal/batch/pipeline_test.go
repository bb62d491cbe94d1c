package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/heimdex/heimdex-render/internal/config"
	"github.com/heimdex/heimdex-render/internal/discovery"
	"github.com/heimdex/heimdex-render/internal/resolve"
)

func newTestPipeline(t *testing.T, fs *fakeSession, existing ...string) (*Pipeline, string) {
	t.Helper()
	out := t.TempDir()
	p := NewPipeline(fs, existing, PipelineOptions{
		OutputDir:     out,
		ProjectSuffix: config.DefaultProjectSuffix,
		Profile:       config.DefaultRenderProfile(),
		PollInterval:  time.Second,
		Sleep:         noSleep,
	})
	return p, out
}

func TestPipeline_ProcessSuccess(t *testing.T) {
	fs := newFakeSession()
	fs.statuses = statuses(resolve.StatusRendering, resolve.StatusComplete)
	p, out := newTestPipeline(t, fs)

	res := p.Process(context.Background(), discovery.Candidate{Path: "/in/clip.mov", Size: 1024})
	if res.Status != StatusSucceeded {
		t.Fatalf("Status = %q, err = %v", res.Status, res.Err)
	}
	if res.Project != "clip_Film" {
		t.Errorf("Project = %q, want clip_Film", res.Project)
	}
	wantDir := filepath.Join(out, "clip_Film")
	if res.OutputDir != wantDir {
		t.Errorf("OutputDir = %q, want %q", res.OutputDir, wantDir)
	}
	if info, err := os.Stat(wantDir); err != nil || !info.IsDir() {
		t.Errorf("output folder not created: %v", err)
	}
	if res.JobID != "job-1" {
		t.Errorf("JobID = %q", res.JobID)
	}

	want := []string{
		"create clip_Film",
		"import clip_Film",
		"timeline clip_Film timeline",
		"preset clip_Film IMF - Netflix",
		"settings clip_Film",
		"format clip_Film imf/Kakadu",
		"addjob clip_Film job-1",
		"start clip_Film [job-1]",
		"close clip_Film",
	}
	if got := fs.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls =\n%q\nwant\n%q", got, want)
	}

	settings := fs.settings["clip_Film"]
	if settings["TargetDir"] != wantDir || settings["CustomName"] != "clip" {
		t.Errorf("unexpected target settings: %v", settings)
	}
	for _, k := range []string{"SelectAllFrames", "ExportVideo", "ExportAudio"} {
		if settings[k] != true {
			t.Errorf("%s = %v, want true", k, settings[k])
		}
	}
}

func TestPipeline_NameCollisions(t *testing.T) {
	fs := newFakeSession("film_Film", "film_Film_1")
	p, _ := newTestPipeline(t, fs, "film_Film", "film_Film_1")

	first := p.Process(context.Background(), discovery.Candidate{Path: "/in/film.mov"})
	second := p.Process(context.Background(), discovery.Candidate{Path: "/other/film.mov"})

	if first.Project != "film_Film_2" {
		t.Errorf("first project = %q, want film_Film_2", first.Project)
	}
	if second.Project != "film_Film_3" {
		t.Errorf("second project = %q, want film_Film_3", second.Project)
	}
	if first.Status != StatusSucceeded || second.Status != StatusSucceeded {
		t.Errorf("statuses = %q, %q", first.Status, second.Status)
	}
}

func TestPipeline_FailuresCloseProject(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*fakeSession)
		wantStage string
		wantErr   error
		wantClose bool
	}{
		{
			name:      "create fails",
			setup:     func(f *fakeSession) { f.failOn["create"] = "clip_Film" },
			wantStage: StageCreateProject,
		},
		{
			name:      "import fails",
			setup:     func(f *fakeSession) { f.failOn["import"] = "clip_Film" },
			wantStage: StageImportMedia,
			wantClose: true,
		},
		{
			name:      "nothing imported",
			setup:     func(f *fakeSession) { f.noMedia = true },
			wantStage: StageImportMedia,
			wantErr:   ErrNothingImported,
			wantClose: true,
		},
		{
			name:      "preset fails",
			setup:     func(f *fakeSession) { f.failOn["preset"] = "clip_Film" },
			wantStage: StageRenderSettings,
			wantClose: true,
		},
		{
			name:      "start fails",
			setup:     func(f *fakeSession) { f.failOn["start"] = "clip_Film" },
			wantStage: StageStartRender,
			wantClose: true,
		},
		{
			name:      "render fails",
			setup:     func(f *fakeSession) { f.statuses = statuses(resolve.StatusRendering, resolve.StatusFailed) },
			wantStage: StageAwaitRender,
			wantErr:   ErrRenderFailed,
			wantClose: true,
		},
		{
			name:      "render cancelled",
			setup:     func(f *fakeSession) { f.statuses = statuses(resolve.StatusCancelled) },
			wantStage: StageAwaitRender,
			wantErr:   ErrRenderCancelled,
			wantClose: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeSession()
			tt.setup(fs)
			p, _ := newTestPipeline(t, fs)

			res := p.Process(context.Background(), discovery.Candidate{Path: "/in/clip.mov"})
			if res.Status != StatusFailed {
				t.Fatalf("Status = %q, want failed", res.Status)
			}
			if res.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", res.Stage, tt.wantStage)
			}
			if res.Err == nil || (tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr)) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}

			calls := fs.Calls()
			closed := calls[len(calls)-1] == "close clip_Film"
			if closed != tt.wantClose {
				t.Errorf("closed = %v, want %v (calls %q)", closed, tt.wantClose, calls)
			}
		})
	}
}

func TestPipeline_RenderTimeout(t *testing.T) {
	fs := newFakeSession()
	fs.statuses = statuses(resolve.StatusRendering)
	p := NewPipeline(fs, nil, PipelineOptions{
		OutputDir:     t.TempDir(),
		ProjectSuffix: config.DefaultProjectSuffix,
		Profile:       config.DefaultRenderProfile(),
		PollInterval:  5 * time.Millisecond,
		RenderTimeout: 30 * time.Millisecond,
	})

	res := p.Process(context.Background(), discovery.Candidate{Path: "/in/stuck.mov"})
	if res.Stage != StageAwaitRender || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("got stage %q err %v, want await_render deadline exceeded", res.Stage, res.Err)
	}
	calls := fs.Calls()
	if calls[len(calls)-1] != "close stuck_Film" {
		t.Errorf("project not closed after timeout: %q", calls)
	}
}

func TestPipeline_OutputFolderBlocked(t *testing.T) {
	fs := newFakeSession()
	p, out := newTestPipeline(t, fs)
	if err := os.WriteFile(filepath.Join(out, "clip_Film"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	res := p.Process(context.Background(), discovery.Candidate{Path: "/in/clip.mov"})
	if res.Stage != StageOutputDir {
		t.Errorf("Stage = %q, want %q (err %v)", res.Stage, StageOutputDir, res.Err)
	}
}

func TestPipeline_ProfileOverridesDoNotWinOverTarget(t *testing.T) {
	fs := newFakeSession()
	profile := config.DefaultRenderProfile()
	profile.Overrides["TargetDir"] = "/elsewhere"
	profile.Overrides["CustomName"] = "fixed"
	p := NewPipeline(fs, nil, PipelineOptions{
		OutputDir:     t.TempDir(),
		ProjectSuffix: "_Film",
		Profile:       profile,
		Sleep:         noSleep,
	})

	res := p.Process(context.Background(), discovery.Candidate{Path: "/in/a.mov"})
	settings := fs.settings["a_Film"]
	if settings["TargetDir"] != res.OutputDir || settings["CustomName"] != "a" {
		t.Errorf("settings = %v", settings)
	}
}
