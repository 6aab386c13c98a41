package sync

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/faridzul/jadual/core"
)

// errStepAborted marks a fetch step dropped after exhausting its retry
// budget. The orchestrator logs it and moves on to the next step.
var errStepAborted = errors.New("step aborted after repeated upstream failures")

func isStepAborted(err error) bool {
	return errors.Cause(err) == errStepAborted
}

// retrier is the bounded-attempt state machine every fetch step composes.
// Strikes accumulate across the pages/keys of one step; a retryable failure
// invalidates the session and retries the same unit, a success resets the
// counter, and the third strike aborts the step.
type retrier struct {
	sessions    *SessionManager
	log         core.Logger
	maxAttempts int
	strikes     int
}

func (r *retrier) do(ctx context.Context, op string, fn func(sid SessionID) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sid, err := r.sessions.Current(ctx)
		if err == nil {
			err = fn(sid)
		}
		if err == nil {
			r.strikes = 0
			return nil
		}
		if !core.IsRetryable(err) {
			return err
		}

		r.strikes++
		r.log.Warn(fmt.Sprintf("%s: attempt %d/%d failed: %v", op, r.strikes, r.maxAttempts, err), err)
		if r.strikes >= r.maxAttempts {
			return errors.Wrap(errStepAborted, op)
		}
		r.sessions.Invalidate()
	}
}
