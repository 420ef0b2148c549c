package job

import "sync"

// token is the run-control signal of one run. A newer run gets a token
// with a higher generation; writes from older runs are discarded.
type token struct {
	generation uint64

	mu      sync.Mutex
	paused  bool
	stopped bool
	stopCh  chan struct{}
}

func newToken(generation uint64) *token {
	return &token{generation: generation, stopCh: make(chan struct{})}
}

func (t *token) pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.paused = true
	}
}

func (t *token) resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = false
}

func (t *token) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = false
	if !t.stopped {
		t.stopped = true
		close(t.stopCh)
	}
}

func (t *token) isPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

func (t *token) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// done is closed when the token is stopped
func (t *token) done() <-chan struct{} {
	return t.stopCh
}
