package hotreload

import "sync/atomic"

// Lifecycle starts the background worker at most once. It has no stop: the worker lives as long as the process.
type Lifecycle struct {
	active atomic.Bool
	run    func()
}

// NewLifecycle of a worker.
func NewLifecycle(run func()) *Lifecycle {
	return &Lifecycle{run: run}
}

// Activate spawns the worker on the first call and reports whether this call did it.
func (l *Lifecycle) Activate() bool {
	if !l.active.CompareAndSwap(false, true) {
		return false
	}
	if l.run != nil {
		go l.run()
	}
	return true
}

// Active reports whether the worker was started.
func (l *Lifecycle) Active() bool {
	return l.active.Load()
}
