package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"
)

// JobStatsProvider reports the number of active jobs per kind
type JobStatsProvider interface {
	ActiveJobs() map[string]int
}

// AccountCounter reports the number of stored accounts
type AccountCounter interface {
	Count(ctx context.Context) (int, error)
}

// Collector periodically refreshes the gauges that are sampled rather than counted
type Collector struct {
	metrics     *Metrics
	jobs        JobStatsProvider
	accounts    AccountCounter
	storagePath string
	interval    time.Duration
	startTime   time.Time

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewCollector creates a new gauge collector
func NewCollector(m *Metrics, jobs JobStatsProvider, accounts AccountCounter, storagePath string, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Collector{
		metrics:     m,
		jobs:        jobs,
		accounts:    accounts,
		storagePath: storagePath,
		interval:    interval,
		startTime:   time.Now(),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the collector loop
func (c *Collector) Start(ctx context.Context) {
	c.collect(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.collect(ctx)
			}
		}
	}()
}

// Stop stops the collector loop
func (c *Collector) Stop() {
	c.once.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.accounts != nil {
		if n, err := c.accounts.Count(ctx); err == nil {
			c.metrics.Accounts.Set(float64(n))
		}
	}

	if c.jobs != nil {
		for kind, n := range c.jobs.ActiveJobs() {
			c.metrics.JobsActive.WithLabelValues(kind).Set(float64(n))
		}
	}
}
