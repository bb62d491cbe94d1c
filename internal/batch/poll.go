package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/heimdex/heimdex-render/internal/resolve"
)

// StatusSource answers render job status queries.
type StatusSource interface {
	RenderStatus(ctx context.Context, jobID string) (resolve.RenderStatus, error)
}

// Poller waits for a render job to reach a terminal state.
type Poller struct {
	Interval time.Duration
	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnStatus, if set, sees every status reply.
	OnStatus func(resolve.RenderStatus)
}

// AwaitTerminal polls jobID every interval until it is Complete (nil error),
// Failed (ErrRenderFailed) or Cancelled (ErrRenderCancelled), or ctx ends.
func AwaitTerminal(ctx context.Context, src StatusSource, jobID string, interval time.Duration) (resolve.RenderStatus, error) {
	return Poller{Interval: interval}.Await(ctx, src, jobID)
}

func (p Poller) Await(ctx context.Context, src StatusSource, jobID string) (resolve.RenderStatus, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for {
		if err := ctx.Err(); err != nil {
			return resolve.RenderStatus{}, err
		}

		st, err := src.RenderStatus(ctx, jobID)
		if err != nil {
			return st, fmt.Errorf("failed to query render status: %w", err)
		}
		if p.OnStatus != nil {
			p.OnStatus(st)
		}

		switch st.JobStatus {
		case resolve.StatusComplete:
			return st, nil
		case resolve.StatusFailed:
			if st.Error != "" {
				return st, fmt.Errorf("%w: %s", ErrRenderFailed, st.Error)
			}
			return st, ErrRenderFailed
		case resolve.StatusCancelled:
			return st, ErrRenderCancelled
		}

		if err := sleep(ctx, p.Interval); err != nil {
			return st, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
