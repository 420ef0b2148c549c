package job

import (
	"context"
	"sync"
	"time"
)

// Ticker adds one elapsed second per interval to every job that is
// processing or waiting, across all registered stores
type Ticker struct {
	interval time.Duration
	stores   []*Store

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewTicker creates a ticker over stores
func NewTicker(interval time.Duration, stores ...*Store) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{
		interval: interval,
		stores:   stores,
		stopCh:   make(chan struct{}),
	}
}

// Start begins ticking until ctx is done or Stop is called
func (t *Ticker) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stopCh:
				return
			case <-ticker.C:
				t.tick()
			}
		}
	}()
}

// Stop stops the ticker and waits for the loop to exit
func (t *Ticker) Stop() {
	t.once.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}

func (t *Ticker) tick() {
	for _, s := range t.stores {
		s.Each(func(_ string, j *Job) {
			if j.Status.Ticking() {
				j.ElapsedSeconds++
			}
		})
	}
}
