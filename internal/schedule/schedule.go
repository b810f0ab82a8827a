// Package schedule provides cancellable timer tasks.
//
// Clients never touch time.Ticker directly; they ask a Scheduler for a task
// and keep the returned Task so it can be stopped before the resource the
// task uses is released. Production code uses NewScheduler; tests use
// NewManual and advance virtual time explicitly.
package schedule

import (
	"sync"
	"time"
)

// Task is a scheduled callback that can be cancelled.
type Task interface {
	// Stop cancels the task. After Stop returns no new invocation starts.
	// An invocation already running is not interrupted. Stop is safe to
	// call more than once and from inside the task's own callback.
	Stop()
}

// Scheduler creates timer tasks.
type Scheduler interface {
	// Every runs fn every interval until the task is stopped.
	// The first run happens one interval after the call.
	Every(interval time.Duration, fn func()) Task

	// After runs fn once after delay unless the task is stopped first.
	After(delay time.Duration, fn func()) Task
}

// NewScheduler returns a Scheduler backed by the runtime timers.
func NewScheduler() Scheduler {
	return realScheduler{}
}

type realScheduler struct{}

// tickerTask runs its callback from a goroutine driven by a time.Ticker.
type tickerTask struct {
	done     chan struct{}
	stopOnce sync.Once
}

func (realScheduler) Every(interval time.Duration, fn func()) Task {
	t := &tickerTask{done: make(chan struct{})}
	go t.loop(interval, fn)
	return t
}

func (t *tickerTask) loop(interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			// Stop may have raced with the tick.
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		}
	}
}

func (t *tickerTask) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// timerTask wraps time.AfterFunc.
type timerTask struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (realScheduler) After(delay time.Duration, fn func()) Task {
	t := &timerTask{}
	t.mu.Lock()
	t.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		stopped := t.stopped
		t.mu.Unlock()
		if !stopped {
			fn()
		}
	})
	t.mu.Unlock()
	return t
}

func (t *timerTask) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.timer.Stop()
}
