package connection

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/courier/internal/config"
	"github.com/haasonsaas/courier/internal/observability"
	"github.com/haasonsaas/courier/internal/retry"
)

// Reconnector runs a dial operation with automatic retry and backoff.
type Reconnector struct {
	Config  config.ReconnectConfig
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Run executes dial until it succeeds, the context is canceled, or max
// attempts are reached. It returns the last error.
func (r *Reconnector) Run(ctx context.Context, dial func(context.Context) error) error {
	if dial == nil {
		return errors.New("reconnector: dial func is nil")
	}

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := dial(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if retry.IsPermanent(err) {
			return err
		}

		attempt++
		if r.Metrics != nil {
			r.Metrics.ReconnectAttempts.Inc()
		}
		if r.Logger != nil {
			r.Logger.Warn(ctx, "reconnect attempt failed", "attempt", attempt, "error", err)
		}
		if r.Config.MaxAttempts > 0 && attempt >= r.Config.MaxAttempts {
			return err
		}

		delay := retry.Backoff(attempt, r.Config.InitialDelay(), r.Config.MaxDelay(), r.Config.Factor)
		if r.Config.Jitter {
			delay = retry.BackoffWithJitter(attempt, r.Config.InitialDelay(), r.Config.MaxDelay(), r.Config.Factor)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
