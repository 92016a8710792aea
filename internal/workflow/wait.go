package workflow

import (
	"context"
	"time"
)

// WaitPolicy sizes the pause between submission and resolution. It is a guess at remote
// processing latency, not a readiness signal; rows still unresolved afterwards are an
// expected outcome and get picked up by the next run.
type WaitPolicy struct {
	Base   time.Duration
	PerRow time.Duration
	Max    time.Duration // 0 means uncapped
}

// Delay returns the pause after submitting n rows; zero when nothing was submitted.
func (w WaitPolicy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	d := w.Base + time.Duration(n)*w.PerRow
	if w.Max > 0 && d > w.Max {
		d = w.Max
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
