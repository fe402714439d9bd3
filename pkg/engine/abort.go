package engine

import "sync"

// AbortLatch is a write-once failure flag shared by every worker of a run.
// The first Set wins; later calls never overwrite the retained reason.
type AbortLatch struct {
	mu     sync.Mutex
	set    bool
	reason string
	err    error
}

// NewAbortLatch creates an unset latch.
func NewAbortLatch() *AbortLatch {
	return &AbortLatch{}
}

// Set latches the flag. It returns true only for the call that set it.
func (l *AbortLatch) Set(reason string, err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set {
		return false
	}
	l.set = true
	l.reason = reason
	l.err = err
	return true
}

// IsSet reports whether the latch has been set.
func (l *AbortLatch) IsSet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set
}

// Reason returns the first writer's reason.
func (l *AbortLatch) Reason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// Err returns the first writer's error, if any.
func (l *AbortLatch) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
