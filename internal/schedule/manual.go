package schedule

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by virtual time.
//
// Nothing fires until Advance is called. Callbacks run synchronously on the
// goroutine calling Advance, in due-time order (creation order breaks ties).
// Callbacks may create or stop tasks.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	tasks map[*manualTask]struct{}
}

type manualTask struct {
	m        *Manual
	seq      uint64
	due      time.Duration
	interval time.Duration // zero for one-shot tasks
	fn       func()
}

// NewManual creates a Manual scheduler at virtual time zero.
func NewManual() *Manual {
	return &Manual{tasks: make(map[*manualTask]struct{})}
}

// Every implements Scheduler.
func (m *Manual) Every(interval time.Duration, fn func()) Task {
	return m.add(interval, interval, fn)
}

// After implements Scheduler.
func (m *Manual) After(delay time.Duration, fn func()) Task {
	return m.add(delay, 0, fn)
}

func (m *Manual) add(delay, interval time.Duration, fn func()) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{m: m, seq: m.seq, due: m.now + delay, interval: interval, fn: fn}
	m.tasks[t] = struct{}{}
	return t
}

func (t *manualTask) Stop() {
	t.m.mu.Lock()
	delete(t.m.tasks, t)
	t.m.mu.Unlock()
}

// Advance moves virtual time forward by d, running every callback that
// becomes due along the way.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		if next.interval > 0 {
			next.due += next.interval
		} else {
			delete(m.tasks, next)
		}
		fn := next.fn
		m.mu.Unlock()

		fn()
	}
}

func (m *Manual) nextDueLocked(limit time.Duration) *manualTask {
	var next *manualTask
	for t := range m.tasks {
		if t.due > limit {
			continue
		}
		if next == nil || t.due < next.due || (t.due == next.due && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

// Now returns the current virtual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of live tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
