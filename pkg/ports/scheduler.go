package ports

import (
	"context"
	"time"
)

// WakeScheduler schedules a one-shot callback after a delay. The dispatch
// queue uses it for the best-effort "wake the dispatcher" trigger; a real
// backend may implement it with a durable job scheduler, the default is a
// plain timer.
type WakeScheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// DispatcherWaker pokes the external dispatcher so it scans for due
// dispatches sooner than its next poll. Purely a latency optimization:
// the persisted SendAt remains the authority on delivery timing.
type DispatcherWaker interface {
	Wake(ctx context.Context) error
}

// TimerScheduler is the default WakeScheduler backed by time.AfterFunc.
type TimerScheduler struct{}

// AfterFunc implements WakeScheduler.
func (TimerScheduler) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
