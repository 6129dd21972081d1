// Package subject talks to the external program under measurement. The
// subject is opaque: the harness invokes it, captures exit status and
// output, and interprets nothing here.
package subject

import (
	"context"
	"time"
)

// Attempt is one subject invocation. Produced by an Environment, consumed
// by extraction, then discarded; only derived numbers outlive it.
type Attempt struct {
	StartedAt time.Time
	EndedAt   time.Time
	ExitCode  int
	Stdout    string
	Stderr    string
	TimedOut  bool
}

// Duration is the wall-clock time the invocation took.
func (a *Attempt) Duration() time.Duration {
	return a.EndedAt.Sub(a.StartedAt)
}

// OK reports whether the subject completed successfully. A failed or
// timed-out subject is data, not a harness error.
func (a *Attempt) OK() bool {
	return a.ExitCode == 0 && !a.TimedOut
}

// Environment is the execution environment hosting the subject. One
// environment is acquired per run and reused across all trials; trials
// are sequential, so implementations need no locking.
//
// Invoke returns an error only for infrastructure failures (environment
// unreachable, subject binary missing). Subject failure lands in the
// Attempt. A zero timeout means no watchdog; the caller must bound the
// invocation some other way.
type Environment interface {
	Invoke(ctx context.Context, argv []string, timeout time.Duration) (*Attempt, error)
	Supports(ctx context.Context, algorithm string) (bool, error)
	Release(ctx context.Context) error
}
