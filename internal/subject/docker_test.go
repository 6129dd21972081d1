package subject

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

// scriptedCopier writes into buf until stop is closed, then reports
// completion, mimicking the exec output copier.
func scriptedCopier(buf *bytes.Buffer, stop chan struct{}, copyDone chan error) {
	go func() {
		for {
			select {
			case <-stop:
				copyDone <- nil
				return
			default:
				buf.WriteByte('x')
			}
		}
	}()
}

// When the backstop fires, the copier must be stopped and drained before
// awaitCopy returns; the buffers must not see another write afterwards.
func TestAwaitCopyBackstopDrainsCopier(t *testing.T) {
	var buf bytes.Buffer
	stop := make(chan struct{})
	copyDone := make(chan error, 1)
	scriptedCopier(&buf, stop, copyDone)

	timedOut, err := awaitCopy(context.Background(), copyDone, time.Millisecond, func() { close(stop) })
	if err != nil {
		t.Fatalf("awaitCopy: %v", err)
	}
	if !timedOut {
		t.Fatal("backstop expiry not reported as timeout")
	}
	n := buf.Len()
	time.Sleep(20 * time.Millisecond)
	if got := buf.Len(); got != n {
		t.Errorf("buffer written after awaitCopy returned: %d -> %d bytes", n, got)
	}
}

func TestAwaitCopyCleanCompletion(t *testing.T) {
	copyDone := make(chan error, 1)
	copyDone <- nil
	timedOut, err := awaitCopy(context.Background(), copyDone, time.Hour, func() {
		t.Error("stream closed on clean completion")
	})
	if err != nil {
		t.Fatalf("awaitCopy: %v", err)
	}
	if timedOut {
		t.Error("clean completion reported as timeout")
	}
}

func TestAwaitCopyCopierError(t *testing.T) {
	boom := errors.New("stream torn down")
	copyDone := make(chan error, 1)
	copyDone <- boom
	_, err := awaitCopy(context.Background(), copyDone, time.Hour, func() {})
	if !errors.Is(err, boom) {
		t.Fatalf("awaitCopy: %v, want wrapped copier error", err)
	}
}

func TestAwaitCopyCanceledDrainsCopier(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	stop := make(chan struct{})
	copyDone := make(chan error, 1)
	scriptedCopier(&buf, stop, copyDone)

	_, err := awaitCopy(ctx, copyDone, time.Hour, func() { close(stop) })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("awaitCopy: %v, want context.Canceled", err)
	}
	n := buf.Len()
	time.Sleep(20 * time.Millisecond)
	if got := buf.Len(); got != n {
		t.Errorf("buffer written after awaitCopy returned: %d -> %d bytes", n, got)
	}
}
