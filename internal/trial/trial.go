// Package trial implements the two measurement protocols: fixed-count
// sampling for operations slow enough to time individually, and
// fixed-window counting for primitives where per-call timestamping would
// itself distort the result.
package trial

import (
	"context"
	"strings"
	"time"

	"github.com/pqbench/pqbench/internal/bstats"
	"github.com/pqbench/pqbench/internal/subject"
)

// windowChunk is how many invocations run between wall-clock checks in
// the fixed-window protocol. Chunking trades a slight over-shoot of the
// window for fewer timing syscalls.
const windowChunk = 8

// WindowResult is the single observation a fixed-window trial produces.
// Elapsed is the actual wall time spent, which may over-shoot the
// requested window by up to one chunk.
type WindowResult struct {
	CountOK   int
	CountFail int
	Elapsed   time.Duration
}

// Rate is successful completions per second over the actual elapsed time.
func (w *WindowResult) Rate() float64 {
	secs := w.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(w.CountOK) / secs
}

// SampleFixedCount invokes the subject exactly n times, yielding one
// latency observation per attempt plus a transcript of the attempts'
// combined output. Failed attempts are recorded as fail observations,
// never re-run: retrying would bias the distribution. The returned
// error is reserved for infrastructure failures and aborts the trial
// immediately.
func SampleFixedCount(ctx context.Context, env subject.Environment, argv []string, n int, perAttempt time.Duration) ([]bstats.Observation, string, error) {
	obs := make([]bstats.Observation, 0, n)
	var raw strings.Builder
	for i := 0; i < n; i++ {
		att, err := env.Invoke(ctx, argv, perAttempt)
		if err != nil {
			return nil, "", err
		}
		raw.WriteString(att.Stdout)
		raw.WriteString(att.Stderr)
		obs = append(obs, bstats.Observation{
			DurationMS: float64(att.Duration()) / float64(time.Millisecond),
			OK:         att.OK(),
		})
	}
	return obs, raw.String(), nil
}

// CountFixedWindow invokes the subject repeatedly until the wall-clock
// budget is spent, counting completions. Invocations run in chunks of
// windowChunk between clock checks; the clock is re-checked after every
// chunk, never skipped. Individual invocations carry no timeout — the
// window itself bounds the trial at chunk granularity.
func CountFixedWindow(ctx context.Context, env subject.Environment, argv []string, window time.Duration) (*WindowResult, error) {
	res := &WindowResult{}
	start := time.Now()
	for time.Since(start) < window {
		for i := 0; i < windowChunk; i++ {
			att, err := env.Invoke(ctx, argv, 0)
			if err != nil {
				return nil, err
			}
			if att.OK() {
				res.CountOK++
			} else {
				res.CountFail++
			}
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
