package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pqbench/pqbench/internal/bstats"
	"github.com/pqbench/pqbench/internal/config"
	"github.com/pqbench/pqbench/internal/extract"
	"github.com/pqbench/pqbench/internal/result"
	"github.com/pqbench/pqbench/internal/subject"
	"github.com/pqbench/pqbench/internal/trial"
)

// State is the controller's lifecycle position. Aborted is reachable only
// under strict mode, and only after the triggering row has been recorded.
type State int

const (
	StateIdle State = iota
	StateWarming
	StateRunning
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarming:
		return "warming"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Recorder persists one result row. *result.Storage satisfies it; tests
// substitute an in-memory fake.
type Recorder interface {
	Append(row *result.Row) error
}

// Logger is the companion log the controller reports warnings through.
// *result.RunLog satisfies it.
type Logger interface {
	Printf(format string, v ...any)
	Failure(quantity string, repeat int, kind result.ErrorKind, detail string)
}

// Controller drives one run: capability checks, setup, warmup, then
// repeats × quantities, recording exactly one row per combination.
// Trials execute sequentially; concurrency would contaminate the
// measurements.
type Controller struct {
	Spec       *config.Spec
	Env        subject.Environment
	Quantities []*Quantity
	Recorder   Recorder
	Log        Logger
	// RunDir receives raw subject output for row RawRefs; empty disables
	// raw capture.
	RunDir string

	state State
	// baselineMS is the exec round-trip overhead subtracted from
	// handshake latencies, measured once per run.
	baselineMS float64
}

// State returns the terminal (or current) lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// ErrAborted marks a strict-mode abort. The triggering row is already
// durable when Execute returns this.
var ErrAborted = errors.New("run aborted by strict failure policy")

// Execute runs the whole protocol. Infrastructure errors (subject
// environment unreachable) are returned as-is and always end the run,
// independent of strict mode. Subject-level failures never surface as
// errors: they become rows, and under strict mode, ErrAborted.
func (c *Controller) Execute(ctx context.Context) error {
	c.state = StateWarming

	// Skipped quantities still get their rows: one per repeat, tagged
	// with the reason, so no repeat × quantity combination ever goes
	// missing from the record.
	skipped := map[string]result.ErrorKind{}

	if err := c.preflight(ctx, skipped); err != nil {
		return err
	}
	if c.state == StateAborted {
		return ErrAborted
	}

	if err := c.warmup(ctx, skipped); err != nil {
		return err
	}

	c.state = StateRunning
	for repeat := 1; repeat <= c.Spec.Repeats; repeat++ {
		for _, q := range c.Quantities {
			row, infraErr := c.measureRow(ctx, q, repeat, skipped)
			if row != nil {
				// The row is durable before any abort decision.
				if err := c.Recorder.Append(row); err != nil {
					return fmt.Errorf("recording %s repeat %d: %w", q.Name, repeat, err)
				}
			}
			if infraErr != nil {
				// Environment unreachable: fatal regardless of strict.
				return fmt.Errorf("measuring %s repeat %d: %w", q.Name, repeat, infraErr)
			}
			if row.OK {
				c.Log.Printf("%s repeat %d/%d: ok", q.Name, repeat, c.Spec.Repeats)
			} else {
				c.Log.Failure(q.Name, repeat, row.ErrorKind, "recorded failure row")
				if c.Spec.Strict {
					c.state = StateAborted
					return ErrAborted
				}
			}
		}
	}
	c.state = StateDone
	return nil
}

// preflight runs the capability check and setup commands for every
// quantity, once, before any repeats. Both obey the strict policy: a
// failing quantity aborts under strict (after recording its row) and is
// skipped with per-repeat rows under survey.
func (c *Controller) preflight(ctx context.Context, skipped map[string]result.ErrorKind) error {
	for _, q := range c.Quantities {
		supported, err := c.checkCapability(ctx, q)
		if err != nil {
			return fmt.Errorf("capability check for %s: %w", q.Name, err)
		}
		if !supported {
			if c.failPreflight(q, result.ErrUnsupported, skipped) {
				return nil
			}
			continue
		}
		if err := c.setup(ctx, q); err != nil {
			if isInfra(err) {
				return fmt.Errorf("setup for %s: %w", q.Name, err)
			}
			c.Log.Printf("warning: setup for %s failed: %v", q.Name, err)
			if c.failPreflight(q, result.ErrSetupFailed, skipped) {
				return nil
			}
		}
	}
	return nil
}

// failPreflight handles a pre-repeat failure. Under strict it records the
// triggering row and moves to Aborted, reporting true; under survey it
// marks the quantity skipped and reports false.
func (c *Controller) failPreflight(q *Quantity, kind result.ErrorKind, skipped map[string]result.ErrorKind) bool {
	if c.Spec.Strict {
		row := c.failedRow(q, 1, kind)
		if err := c.Recorder.Append(row); err != nil {
			c.Log.Printf("warning: recording %s row: %v", q.Name, err)
		}
		c.Log.Failure(q.Name, 1, kind, "strict mode: aborting before repeats")
		c.state = StateAborted
		return true
	}
	c.Log.Failure(q.Name, 0, kind, "survey mode: quantity skipped for all repeats")
	skipped[q.Name] = kind
	return false
}

type infraError struct{ err error }

func (e *infraError) Error() string { return e.err.Error() }
func (e *infraError) Unwrap() error { return e.err }

func isInfra(err error) bool {
	var ie *infraError
	return errors.As(err, &ie)
}

// setup runs a quantity's setup commands. Subject failure is returned as
// a plain error, infrastructure failure wrapped so the caller can tell
// them apart.
func (c *Controller) setup(ctx context.Context, q *Quantity) error {
	for _, argv := range q.Setup {
		att, err := c.Env.Invoke(ctx, argv, c.Spec.PerAttemptTimeout())
		if err != nil {
			return &infraError{err}
		}
		if !att.OK() {
			return fmt.Errorf("setup command %v exited %d: %s", argv, att.ExitCode, firstLine(att.Stderr))
		}
	}
	return nil
}

func (c *Controller) checkCapability(ctx context.Context, q *Quantity) (bool, error) {
	if q.Capability != "" {
		return c.Env.Supports(ctx, q.Capability)
	}
	if len(q.Probe) == 0 {
		return true, nil
	}
	att, err := c.Env.Invoke(ctx, q.Probe, c.Spec.PerAttemptTimeout())
	if err != nil {
		return false, err
	}
	return att.OK(), nil
}

// warmup primes connection setup, provider loading and OS caches with
// untimed, unrecorded invocations. All subject outcomes are swallowed;
// only infrastructure errors escape. The exec overhead baseline is
// measured here as well.
func (c *Controller) warmup(ctx context.Context, skipped map[string]result.ErrorKind) error {
	for _, q := range c.Quantities {
		if _, skip := skipped[q.Name]; skip {
			continue
		}
		for i := 0; i < c.Spec.Warmup; i++ {
			if _, err := c.Env.Invoke(ctx, q.Argv, c.Spec.PerAttemptTimeout()); err != nil {
				return fmt.Errorf("warmup for %s: %w", q.Name, err)
			}
		}
	}
	return c.measureBaseline(ctx, skipped)
}

// measureBaseline times no-op invocations so handshake latencies can be
// reported with the environment's exec round-trip removed.
func (c *Controller) measureBaseline(ctx context.Context, skipped map[string]result.ErrorKind) error {
	needed := false
	for _, q := range c.Quantities {
		if q.Family == result.FamilyTLSHandshake && skipped[q.Name] == result.ErrNone {
			needed = true
		}
	}
	if !needed {
		return nil
	}
	const rounds = 10
	var obs []bstats.Observation
	for i := 0; i < rounds; i++ {
		att, err := c.Env.Invoke(ctx, []string{"true"}, c.Spec.PerAttemptTimeout())
		if err != nil {
			return fmt.Errorf("measuring exec baseline: %w", err)
		}
		obs = append(obs, bstats.Observation{
			DurationMS: float64(att.Duration()) / float64(time.Millisecond),
			OK:         att.OK(),
		})
	}
	s := bstats.Summarize(obs)
	if s.Defined {
		c.baselineMS = s.P50
		c.Log.Printf("exec baseline: p50 %.2fms over %d rounds", c.baselineMS, rounds)
	}
	return nil
}

// measureRow produces the single row for one repeat × quantity. All
// extraction and aggregation failures are converted to tagged rows here.
// A non-nil error is an infrastructure failure; the accompanying row (if
// any) records it as RUN_FAILED so the record stays complete up to the
// abort.
func (c *Controller) measureRow(ctx context.Context, q *Quantity, repeat int, skipped map[string]result.ErrorKind) (*result.Row, error) {
	if kind, skip := skipped[q.Name]; skip {
		return c.failedRow(q, repeat, kind), nil
	}

	metrics, raw, kind, err := c.measure(ctx, q)
	if err != nil {
		kind = result.ErrRunFailed
	}

	row := &result.Row{
		Repeat:          repeat,
		Mode:            c.Spec.Mode,
		WindowOrTimeout: c.windowOrTimeout(q),
		Quantity:        q.Name,
		Family:          q.Family,
		OK:              kind == result.ErrNone,
		ErrorKind:       kind,
	}
	if row.OK {
		row.Metrics = metrics
	}
	if c.RunDir != "" && raw != "" {
		ref, err := result.SaveRaw(c.RunDir, q.Name, repeat, raw)
		if err != nil {
			c.Log.Printf("warning: saving raw output for %s: %v", q.Name, err)
		} else {
			row.RawRef = ref
		}
	}
	return row, err
}

func (c *Controller) windowOrTimeout(q *Quantity) string {
	switch q.Family {
	case result.FamilyTLSHandshake:
		return c.Spec.PerAttemptTimeout().String()
	default:
		return c.Spec.Window().String()
	}
}

type measureFunc func(c *Controller, ctx context.Context, q *Quantity) ([]result.Metric, string, result.ErrorKind, error)

var measurers = map[string]measureFunc{
	result.FamilyTLSHandshake:  (*Controller).measureHandshake,
	result.FamilyTLSThroughput: (*Controller).measureThroughput,
	result.FamilySigWindow:     (*Controller).measureSigWindow,
	result.FamilySigSpeed:      (*Controller).measureSigSpeed,
}

// measure executes the quantity's trial protocol and extraction. Panics
// from parsing or aggregation are converted to NON_NUMERIC at this
// boundary: a malformed subject output must never crash the run.
func (c *Controller) measure(ctx context.Context, q *Quantity) (metrics []result.Metric, raw string, kind result.ErrorKind, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.Log.Printf("warning: recovered panic measuring %s: %v", q.Name, r)
			metrics, kind = nil, result.ErrNonNumeric
		}
	}()

	m, ok := measurers[q.Family]
	if !ok {
		return nil, "", result.ErrUnsupported, nil
	}
	return m(c, ctx, q)
}

func (c *Controller) measureHandshake(ctx context.Context, q *Quantity) ([]result.Metric, string, result.ErrorKind, error) {
	obs, raw, err := trial.SampleFixedCount(ctx, c.Env, q.Argv, c.Spec.SampleCount, c.Spec.PerAttemptTimeout())
	if err != nil {
		return nil, "", result.ErrRunFailed, err
	}
	for i := range obs {
		obs[i].DurationMS -= c.baselineMS
		if obs[i].DurationMS < 0 {
			obs[i].DurationMS = 0
		}
	}
	s := bstats.Summarize(obs)
	if !s.Defined {
		return nil, raw, result.ErrRunFailed, nil
	}
	return []result.Metric{
		metric("p50_ms", s.P50),
		metric("p95_ms", s.P95),
		metric("p99_ms", s.P99),
		metric("mean_ms", s.Mean),
		metric("stddev_ms", s.Stddev),
		metric("ok_count", float64(s.CountOK)),
		metric("fail_count", float64(s.CountFail)),
	}, raw, result.ErrNone, nil
}

func (c *Controller) measureThroughput(ctx context.Context, q *Quantity) ([]result.Metric, string, result.ErrorKind, error) {
	// s_time manages its own window; the watchdog only guards a hang.
	att, err := c.Env.Invoke(ctx, q.Argv, c.Spec.Window()+30*time.Second)
	if err != nil {
		return nil, "", result.ErrRunFailed, err
	}
	raw := att.Stdout + att.Stderr
	if !att.OK() {
		return nil, raw, result.ErrRunFailed, nil
	}
	v, exErr := extract.ConnPerUserSec(raw)
	if exErr != nil {
		return nil, raw, kindFromExtract(exErr), nil
	}
	return []result.Metric{metric("conn_user_sec", v)}, raw, result.ErrNone, nil
}

func (c *Controller) measureSigWindow(ctx context.Context, q *Quantity) ([]result.Metric, string, result.ErrorKind, error) {
	wr, err := trial.CountFixedWindow(ctx, c.Env, q.Argv, c.Spec.Window())
	if err != nil {
		return nil, "", result.ErrRunFailed, err
	}
	if wr.CountOK == 0 {
		return nil, "", result.ErrRunFailed, nil
	}
	return []result.Metric{
		metric("count_ok", float64(wr.CountOK)),
		metric("count_fail", float64(wr.CountFail)),
		metric("rate_per_s", wr.Rate()),
	}, "", result.ErrNone, nil
}

func (c *Controller) measureSigSpeed(ctx context.Context, q *Quantity) ([]result.Metric, string, result.ErrorKind, error) {
	att, err := c.Env.Invoke(ctx, q.Argv, c.Spec.Window()+60*time.Second)
	if err != nil {
		return nil, "", result.ErrRunFailed, err
	}
	raw := att.Stdout + att.Stderr
	if !att.OK() {
		return nil, raw, result.ErrRunFailed, nil
	}

	var row *extract.SigSpeed
	var exErr error
	if q.Algorithm == "ecdsap256" {
		row, exErr = extract.ECDSAP256Row(raw)
	} else {
		row, exErr = extract.SigSpeedRow(raw, q.SpeedName)
	}
	if exErr != nil {
		return nil, raw, kindFromExtract(exErr), nil
	}
	keygen := result.Metric{Name: "keygens_s", Value: row.KeygensPerS, Defined: row.KeygenKnown}
	return []result.Metric{
		keygen,
		metric("sign_s", row.SignPerS),
		metric("verify_s", row.VerifyPerS),
	}, raw, result.ErrNone, nil
}

func (c *Controller) failedRow(q *Quantity, repeat int, kind result.ErrorKind) *result.Row {
	return &result.Row{
		Repeat:          repeat,
		Mode:            c.Spec.Mode,
		WindowOrTimeout: c.windowOrTimeout(q),
		Quantity:        q.Name,
		Family:          q.Family,
		OK:              false,
		ErrorKind:       kind,
	}
}

func metric(name string, v float64) result.Metric {
	return result.Metric{Name: name, Value: v, Defined: true}
}

func kindFromExtract(err error) result.ErrorKind {
	var exErr *extract.Error
	if errors.As(err, &exErr) && exErr.Kind == extract.RowNotFound {
		return result.ErrRowNotFound
	}
	return result.ErrNonNumeric
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
