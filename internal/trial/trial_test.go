package trial_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pqbench/pqbench/internal/subject"
	"github.com/pqbench/pqbench/internal/trial"
)

// fakeEnv scripts subject outcomes: exit codes are served in order, the
// last one repeating forever.
type fakeEnv struct {
	exitCodes []int
	perCall   time.Duration
	stdout    string
	calls     int
	invokeErr error
}

func (f *fakeEnv) Invoke(ctx context.Context, argv []string, timeout time.Duration) (*subject.Attempt, error) {
	if f.invokeErr != nil {
		return nil, f.invokeErr
	}
	code := 0
	if len(f.exitCodes) > 0 {
		i := f.calls
		if i >= len(f.exitCodes) {
			i = len(f.exitCodes) - 1
		}
		code = f.exitCodes[i]
	}
	f.calls++
	start := time.Now()
	if f.perCall > 0 {
		time.Sleep(f.perCall)
	}
	return &subject.Attempt{
		StartedAt: start,
		EndedAt:   time.Now(),
		ExitCode:  code,
		Stdout:    f.stdout,
	}, nil
}

func (f *fakeEnv) Supports(ctx context.Context, algorithm string) (bool, error) {
	return true, nil
}

func (f *fakeEnv) Release(ctx context.Context) error { return nil }

func TestSampleFixedCountExactN(t *testing.T) {
	for _, n := range []int{1, 5, 20} {
		env := &fakeEnv{}
		obs, _, err := trial.SampleFixedCount(context.Background(), env, []string{"subject"}, n, time.Second)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(obs) != n {
			t.Fatalf("n=%d: got %d observations", n, len(obs))
		}
		for i, o := range obs {
			if !o.OK {
				t.Errorf("n=%d: observation %d not ok", n, i)
			}
			if o.DurationMS < 0 {
				t.Errorf("n=%d: observation %d negative duration %v", n, i, o.DurationMS)
			}
		}
		if env.calls != n {
			t.Errorf("n=%d: subject invoked %d times", n, env.calls)
		}
	}
}

// A failed attempt is recorded as a fail observation, never re-run.
func TestSampleFixedCountNoRetry(t *testing.T) {
	env := &fakeEnv{exitCodes: []int{0, 1, 0}}
	obs, _, err := trial.SampleFixedCount(context.Background(), env, []string{"subject"}, 3, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if env.calls != 3 {
		t.Fatalf("subject invoked %d times, want 3", env.calls)
	}
	wantOK := []bool{true, false, true}
	for i, o := range obs {
		if o.OK != wantOK[i] {
			t.Errorf("observation %d ok = %v, want %v", i, o.OK, wantOK[i])
		}
	}
}

// The transcript carries every attempt's output so a row's raw
// reference can be written from it.
func TestSampleFixedCountTranscript(t *testing.T) {
	env := &fakeEnv{stdout: "CONNECTED\n"}
	_, raw, err := trial.SampleFixedCount(context.Background(), env, []string{"subject"}, 3, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if raw != "CONNECTED\nCONNECTED\nCONNECTED\n" {
		t.Errorf("transcript = %q", raw)
	}
}

func TestSampleFixedCountInfraError(t *testing.T) {
	boom := errors.New("daemon unreachable")
	env := &fakeEnv{invokeErr: boom}
	_, _, err := trial.SampleFixedCount(context.Background(), env, []string{"subject"}, 5, time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("want infra error, got %v", err)
	}
}

func TestCountFixedWindow(t *testing.T) {
	env := &fakeEnv{exitCodes: []int{0, 1, 0, 0}, perCall: time.Millisecond}
	window := 20 * time.Millisecond
	res, err := trial.CountFixedWindow(context.Background(), env, []string{"subject"}, window)
	if err != nil {
		t.Fatal(err)
	}
	if res.CountOK+res.CountFail != env.calls {
		t.Errorf("counted %d+%d, invoked %d", res.CountOK, res.CountFail, env.calls)
	}
	if res.CountFail != 1 {
		t.Errorf("fail count = %d, want 1", res.CountFail)
	}
	if res.Elapsed < window {
		t.Errorf("elapsed %v under window %v", res.Elapsed, window)
	}
	if res.Rate() <= 0 {
		t.Errorf("rate = %v, want positive", res.Rate())
	}
}

func TestCountFixedWindowZeroBudget(t *testing.T) {
	env := &fakeEnv{}
	res, err := trial.CountFixedWindow(context.Background(), env, []string{"subject"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if env.calls != 0 {
		t.Errorf("subject invoked %d times on a zero budget", env.calls)
	}
	if res.Rate() != 0 {
		t.Errorf("rate = %v, want 0", res.Rate())
	}
}

func TestWindowResultRate(t *testing.T) {
	res := &trial.WindowResult{CountOK: 50, CountFail: 5, Elapsed: 10 * time.Second}
	if got := res.Rate(); got != 5 {
		t.Errorf("rate = %v, want 5", got)
	}
}
