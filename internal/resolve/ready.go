package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrNotReady = errors.New("resolve did not become ready")

// Pinger is the part of a Session needed for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) (*AppInfo, error)
}

// ReadyOptions controls WaitReady.
type ReadyOptions struct {
	Grace          time.Duration // fixed delay before the first ping
	Timeout        time.Duration // overall bound, including Grace
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
}

// WaitReady pings Resolve until a ping succeeds, backing off exponentially
// between attempts. It fails with ErrNotReady (wrapping the last ping error)
// when opts.Timeout elapses, or with the context error if ctx ends first.
func WaitReady(ctx context.Context, p Pinger, opts ReadyOptions) (*AppInfo, error) {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = 8 * opts.InitialBackoff
	}

	parent := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if opts.Grace > 0 {
		if err := sleepCtx(ctx, opts.Grace); err != nil {
			return nil, readyErr(parent, err, nil)
		}
	}

	backoff := opts.InitialBackoff
	var lastErr error
	for attempt := 1; ; attempt++ {
		info, err := p.Ping(ctx)
		if err == nil {
			if opts.Logger != nil {
				opts.Logger.Info("resolve is ready", "attempts", attempt, "product", info.Product, "version", info.Version)
			}
			return info, nil
		}
		lastErr = err
		if opts.Logger != nil {
			opts.Logger.Debug("resolve not ready yet", "attempt", attempt, "retry_in", backoff, "error", err)
		}

		if err := sleepCtx(ctx, backoff); err != nil {
			return nil, readyErr(parent, err, lastErr)
		}
		backoff *= 2
		if backoff > opts.MaxBackoff {
			backoff = opts.MaxBackoff
		}
	}
}

func readyErr(parent context.Context, err, lastErr error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, lastErr)
	}
	return fmt.Errorf("%w: %w", ErrNotReady, err)
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
