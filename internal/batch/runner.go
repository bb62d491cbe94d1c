package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/heimdex/heimdex-render/internal/discovery"
	"github.com/heimdex/heimdex-render/internal/ledger"
	"github.com/heimdex/heimdex-render/internal/logging"
)

// Processor renders a single candidate.
type Processor interface {
	Process(ctx context.Context, c discovery.Candidate) Result
}

// Recorder is the part of the ledger the runner writes to.
type Recorder interface {
	CreateRun(ctx context.Context, run *ledger.Run) error
	FinishRun(ctx context.Context, run *ledger.Run) error
	CreateRender(ctx context.Context, render *ledger.Render) error
	UpdateRender(ctx context.Context, render *ledger.Render) error
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	ContinueOnError bool
	Mode            string
	InputDir        string
	OutputDir       string
	Recorder        Recorder // optional
	Progress        *Progress
	Logger          *slog.Logger
}

// Runner drives a Processor over a list of candidates, one at a time.
type Runner struct {
	proc   Processor
	opts   RunnerOptions
	logger *slog.Logger
}

func NewRunner(proc Processor, opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Runner{
		proc:   proc,
		opts:   opts,
		logger: logging.WithComponent(opts.Logger, "runner"),
	}
}

// Run processes candidates in order. Cancelling ctx stops between files;
// the remaining files are reported as skipped. Without ContinueOnError the
// first failure does the same.
func (r *Runner) Run(ctx context.Context, candidates []discovery.Candidate) Summary {
	start := time.Now()
	sum := Summary{RunID: ledger.NewID(), Total: len(candidates)}
	log := logging.WithRunID(r.logger, sum.RunID)

	run := &ledger.Run{
		ID:        sum.RunID,
		Mode:      r.opts.Mode,
		InputDir:  r.opts.InputDir,
		OutputDir: r.opts.OutputDir,
		Status:    ledger.RunStatusRunning,
		Total:     sum.Total,
		StartedAt: start.UTC(),
	}
	r.record(ctx, log, "create run", func(ctx context.Context, rec Recorder) error {
		return rec.CreateRun(ctx, run)
	})

	r.opts.Progress.begin(sum.RunID, sum.Total)
	log.Info("batch started", "files", sum.Total, "mode", r.opts.Mode)

	stopped := false
	for i, c := range candidates {
		if ctx.Err() != nil {
			sum.Cancelled = true
			stopped = true
		}

		row := &ledger.Render{RunID: sum.RunID, SourcePath: c.Path, Status: StatusRunning}

		if stopped {
			res := Result{Source: c.Path, Status: StatusSkipped}
			row.Status = StatusSkipped
			r.record(ctx, log, "record skipped render", func(ctx context.Context, rec Recorder) error {
				return rec.CreateRender(ctx, row)
			})
			sum.add(res)
			r.opts.Progress.fileDone(res.Status)
			continue
		}

		r.opts.Progress.startFile(i+1, c.Path)
		r.record(ctx, log, "create render", func(ctx context.Context, rec Recorder) error {
			return rec.CreateRender(ctx, row)
		})

		res := r.proc.Process(ctx, c)

		row.ProjectName = res.Project
		row.OutputDir = res.OutputDir
		row.JobID = res.JobID
		row.Status = res.Status
		row.Stage = res.Stage
		row.Error = res.errString()
		row.ElapsedMs = res.Elapsed.Milliseconds()
		r.record(ctx, log, "update render", func(ctx context.Context, rec Recorder) error {
			return rec.UpdateRender(ctx, row)
		})

		sum.add(res)
		r.opts.Progress.fileDone(res.Status)

		if res.Status == StatusFailed && !r.opts.ContinueOnError {
			log.Warn("stopping batch after failure", "source", logging.SanitizePath(c.Path))
			stopped = true
		}
	}
	if ctx.Err() != nil {
		sum.Cancelled = true
	}
	sum.Elapsed = time.Since(start)

	run.Status = sum.runStatus()
	run.Succeeded, run.Failed, run.Skipped = sum.Succeeded, sum.Failed, sum.Skipped
	r.record(ctx, log, "finish run", func(ctx context.Context, rec Recorder) error {
		return rec.FinishRun(ctx, run)
	})
	r.opts.Progress.finish(sum.Cancelled)

	log.Info("batch finished",
		"status", run.Status,
		"total", sum.Total,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"elapsed", sum.Elapsed.Round(time.Second).String(),
	)
	return sum
}

// record writes to the ledger. Ledger failures are logged, never fatal.
func (r *Runner) record(ctx context.Context, log *slog.Logger, what string, fn func(context.Context, Recorder) error) {
	if r.opts.Recorder == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx), r.opts.Recorder); err != nil {
		log.Warn("ledger write failed", "op", what, "error", err)
	}
}
