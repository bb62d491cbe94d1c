package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/heimdex-render/internal/config"
	"github.com/heimdex/heimdex-render/internal/discovery"
	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/naming"
	"github.com/heimdex/heimdex-render/internal/resolve"
)

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	OutputDir     string
	ProjectSuffix string
	Profile       config.RenderProfile
	PollInterval  time.Duration
	RenderTimeout time.Duration // 0 disables
	Logger        *slog.Logger
	Progress      *Progress
	// Sleep replaces the poll delay; tests use it to avoid real waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Pipeline takes a single clip from project creation to a finished render.
type Pipeline struct {
	session resolve.Session
	opts    PipelineOptions
	logger  *slog.Logger

	mu       sync.Mutex
	existing []string
}

// NewPipeline creates a pipeline. existing is the list of project names
// present in Resolve when the run started; names allocated by the pipeline
// are appended to its own copy.
func NewPipeline(session resolve.Session, existing []string, opts PipelineOptions) *Pipeline {
	if opts.PollInterval <= 0 {
		opts.PollInterval = config.DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Pipeline{
		session:  session,
		opts:     opts,
		logger:   logging.WithComponent(opts.Logger, "pipeline"),
		existing: append([]string(nil), existing...),
	}
}

func (p *Pipeline) allocate(base string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := naming.Allocate(base, p.existing)
	p.existing = append(p.existing, name)
	return name
}

// Process renders one clip. It never panics on a Resolve failure; the
// failing stage and error are reported in the Result. The project is closed
// whenever it was created.
func (p *Pipeline) Process(ctx context.Context, c discovery.Candidate) Result {
	start := time.Now()
	res := Result{Source: c.Path, Status: StatusRunning}

	stem := naming.Stem(c.Path)
	res.Project = p.allocate(naming.ProjectBase(c.Path, p.opts.ProjectSuffix))
	p.opts.Progress.setProject(res.Project)

	log := logging.WithProject(p.logger, res.Project)
	log.Info("processing file",
		"source", logging.SanitizePath(c.Path),
		"size", humanize.IBytes(uint64(c.Size)),
	)

	pm := p.session.ProjectManager()
	project, err := pm.CreateProject(ctx, res.Project)
	if err != nil {
		res.Elapsed = time.Since(start)
		return p.failed(log, res, StageCreateProject, err)
	}
	log.Info("created project")

	stage, err := p.render(ctx, project, stem, &res, log)
	res.Elapsed = time.Since(start)

	// Close even when ctx is done so the next project starts clean.
	if cerr := pm.CloseProject(context.WithoutCancel(ctx), project); cerr != nil {
		log.Warn("failed to close project", "error", cerr)
	}

	if err != nil {
		return p.failed(log, res, stage, err)
	}
	res.Status = StatusSucceeded
	log.Info("processed file",
		"output_dir", logging.SanitizePath(res.OutputDir),
		"elapsed", res.Elapsed.Round(10*time.Millisecond).String(),
	)
	return res
}

func (p *Pipeline) failed(log *slog.Logger, res Result, stage string, err error) Result {
	res.Status = StatusFailed
	res.Stage = stage
	res.Err = err
	log.Error("file failed", "stage", stage, "error", err, "elapsed", res.Elapsed.Round(10*time.Millisecond).String())
	return res
}

// render runs the steps between project creation and close. It returns the
// stage that failed, if any.
func (p *Pipeline) render(ctx context.Context, project resolve.Project, stem string, res *Result, log *slog.Logger) (string, error) {
	profile := p.opts.Profile

	items, err := project.ImportMedia(ctx, []string{res.Source})
	if err != nil {
		return StageImportMedia, err
	}
	if len(items) == 0 {
		return StageImportMedia, ErrNothingImported
	}

	if err := project.CreateTimeline(ctx, profile.Timeline, items); err != nil {
		return StageCreateTimeline, err
	}
	log.Info("created timeline", "timeline", profile.Timeline, "items", len(items))

	outDir, err := naming.OutputFolder(p.opts.OutputDir, res.Project)
	if err != nil {
		return StageOutputDir, err
	}
	res.OutputDir = outDir

	if err := project.LoadRenderPreset(ctx, profile.Preset); err != nil {
		return StageRenderSettings, fmt.Errorf("load preset %q: %w", profile.Preset, err)
	}

	if log.Enabled(ctx, slog.LevelDebug) {
		if presets, err := project.RenderPresets(ctx); err == nil {
			log.Debug("available render presets", "presets", presets)
		}
	}

	settings := make(map[string]interface{}, len(profile.Overrides)+2)
	for k, v := range profile.Overrides {
		settings[k] = v
	}
	settings["TargetDir"] = outDir
	settings["CustomName"] = stem
	if err := project.SetRenderSettings(ctx, settings); err != nil {
		return StageRenderSettings, err
	}
	if err := project.SetRenderFormatAndCodec(ctx, profile.Format, profile.Codec); err != nil {
		return StageRenderSettings, fmt.Errorf("format %s/%s: %w", profile.Format, profile.Codec, err)
	}

	jobID, err := project.AddRenderJob(ctx)
	if err != nil {
		return StageAddJob, err
	}
	res.JobID = jobID

	if err := project.StartRendering(ctx, jobID); err != nil {
		return StageStartRender, err
	}
	log.Info("started render", "job_id", jobID, "target_dir", logging.SanitizePath(outDir))

	awaitCtx := ctx
	if p.opts.RenderTimeout > 0 {
		var cancel context.CancelFunc
		awaitCtx, cancel = context.WithTimeout(ctx, p.opts.RenderTimeout)
		defer cancel()
	}

	poller := Poller{
		Interval: p.opts.PollInterval,
		Sleep:    p.opts.Sleep,
		OnStatus: func(st resolve.RenderStatus) {
			p.opts.Progress.setPercent(st.CompletionPercentage)
		},
	}
	if _, err := poller.Await(awaitCtx, project, jobID); err != nil {
		return StageAwaitRender, err
	}
	log.Info("render finished", "job_id", jobID)
	return "", nil
}
