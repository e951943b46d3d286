package motion

import (
	"context"
	"time"

	"pipetter/core"
)

// DefaultPoll is the control loop polling interval
const DefaultPoll = time.Millisecond

// Waiter is the cancellable polling loop behind every blocking call. Each
// iteration checks for an abort before evaluating the condition, so a trip
// is observed within one poll interval.
type Waiter struct {
	Sleeper core.Sleeper
	Gate    *SafetyGate
	Poll    time.Duration
}

func (w *Waiter) poll() time.Duration {
	if w.Poll <= 0 {
		return DefaultPoll
	}
	return w.Poll
}

// Interrupted reports whether the caller must abort: emergency input,
// abort epoch change or context cancellation.
func (w *Waiter) Interrupted(ctx context.Context, epoch uint32) bool {
	if ctx.Err() != nil {
		return true
	}
	return w.Gate.Aborted(epoch) || !w.Gate.Permitted()
}

// Until polls cond until it reports done, returning its outcome. A zero
// limit waits forever; otherwise Failed is returned once limit has elapsed.
func (w *Waiter) Until(ctx context.Context, epoch uint32, limit time.Duration, cond func() (Outcome, bool)) Outcome {
	poll := w.poll()
	var elapsed time.Duration
	for {
		if w.Interrupted(ctx, epoch) {
			return Aborted
		}
		if out, done := cond(); done {
			return out
		}
		if limit > 0 && elapsed >= limit {
			return Failed
		}
		w.Sleeper.Sleep(poll)
		elapsed += poll
	}
}

// Sleep waits d in poll slices. It returns Reached when the full time has
// passed and Aborted as soon as the caller is interrupted.
func (w *Waiter) Sleep(ctx context.Context, epoch uint32, d time.Duration) Outcome {
	poll := w.poll()
	for d > 0 {
		if w.Interrupted(ctx, epoch) {
			return Aborted
		}
		slice := poll
		if d < slice {
			slice = d
		}
		w.Sleeper.Sleep(slice)
		d -= slice
	}
	if w.Interrupted(ctx, epoch) {
		return Aborted
	}
	return Reached
}
