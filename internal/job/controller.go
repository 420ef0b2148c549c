package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/mailpilot/internal/account"
	"github.com/foxzi/mailpilot/internal/metrics"
)

// Options tunes a Controller
type Options struct {
	// TickInterval is the length of one countdown second
	TickInterval time.Duration
	// PausePollInterval is how often a paused run checks for resume
	PausePollInterval time.Duration
	// MaxRecipients caps the recipient list; 0 means unlimited
	MaxRecipients int
}

// DefaultOptions returns the production timings
func DefaultOptions() Options {
	return Options{
		TickInterval:      time.Second,
		PausePollInterval: 500 * time.Millisecond,
		MaxRecipients:     10000,
	}
}

// Controller drives bulk jobs of one kind, one run per account at a time
type Controller struct {
	op     Operation
	store  *Store
	opts   Options
	logger *slog.Logger

	// ctx is passed to provider calls; stopping a run does not cancel it
	ctx context.Context

	mu          sync.Mutex
	tokens      map[string]*token
	generations map[string]uint64
	wg          sync.WaitGroup
}

// NewController creates a controller for op over store
func NewController(ctx context.Context, op Operation, store *Store, opts Options, logger *slog.Logger) *Controller {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.PausePollInterval <= 0 {
		opts.PausePollInterval = def.PausePollInterval
	}

	return &Controller{
		op:          op,
		store:       store,
		opts:        opts,
		logger:      logger.With("component", "job", "kind", string(op.Kind())),
		ctx:         ctx,
		tokens:      make(map[string]*token),
		generations: make(map[string]uint64),
	}
}

// Kind returns the job kind this controller runs
func (c *Controller) Kind() Kind {
	return c.op.Kind()
}

// Store returns the controller's job store
func (c *Controller) Store() *Store {
	return c.store
}

// Job returns a snapshot of the account's job
func (c *Controller) Job(accountID string) *Job {
	return c.store.Get(accountID)
}

// UpdateInput replaces the operator-editable fields. Inputs are frozen
// while a run is active.
func (c *Controller) UpdateInput(accountID string, in Input) error {
	if in.DelaySeconds < 0 {
		return fmt.Errorf("%w: delay_seconds must not be negative", ErrValidation)
	}
	payload := in.Payload
	if len(payload) == 0 || string(payload) == "null" {
		payload = []byte(`{}`)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.Get(accountID).Status.Active() {
		return ErrJobActive
	}

	c.store.Merge(accountID, Patch{
		RecipientsRaw: &in.RecipientsRaw,
		Payload:       payload,
		DelaySeconds:  &in.DelaySeconds,
	})
	return nil
}

// Start validates the job input and launches a new run
func (c *Controller) Start(accountID string, acct *account.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	j := c.store.Get(accountID)
	if j.Status.Active() {
		return ErrJobActive
	}

	recipients := ParseRecipients(j.RecipientsRaw)
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	if c.opts.MaxRecipients > 0 && len(recipients) > c.opts.MaxRecipients {
		return fmt.Errorf("%w: %d recipients exceeds the limit of %d", ErrValidation, len(recipients), c.opts.MaxRecipients)
	}

	step, err := c.op.Prepare(acct, j.Payload)
	if err != nil {
		return err
	}

	if old := c.tokens[accountID]; old != nil {
		old.stop()
	}
	c.generations[accountID]++
	tok := newToken(c.generations[accountID])
	c.tokens[accountID] = tok

	total := len(recipients)
	c.store.Update(accountID, func(j *Job) {
		j.Status = StatusProcessing
		j.Progress = Progress{Current: 0, Total: total}
		j.Results = []Result{}
		j.Stats = Stats{}
		j.ElapsedSeconds = 0
		j.CountdownSeconds = 0
	})

	metrics.IncJobsStarted(string(c.op.Kind()))
	c.logger.Info("job started", "account_id", accountID, "recipients", total, "delay_seconds", j.DelaySeconds, "generation", tok.generation)

	c.wg.Add(1)
	go c.run(accountID, tok, recipients, j.DelaySeconds, step)

	return nil
}

// Pause suspends an active run. It is a no-op when nothing is running.
func (c *Controller) Pause(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok := c.tokens[accountID]
	if tok == nil || tok.isStopped() {
		return
	}
	if !c.store.Get(accountID).Status.Ticking() {
		return
	}

	tok.pause()
	c.store.Merge(accountID, Patch{Status: ptr(StatusPaused)})
	c.logger.Info("job paused", "account_id", accountID)
}

// Resume continues a paused run. A run paused inside a delay goes back to waiting.
func (c *Controller) Resume(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok := c.tokens[accountID]
	if tok == nil || !tok.isPaused() {
		return
	}
	if c.store.Get(accountID).Status != StatusPaused {
		return
	}

	tok.resume()
	c.store.Update(accountID, func(j *Job) {
		if j.CountdownSeconds > 0 {
			j.Status = StatusWaiting
		} else {
			j.Status = StatusProcessing
		}
	})
	c.logger.Info("job resumed", "account_id", accountID)
}

// Stop ends an active run. The status changes immediately; the run-loop
// exits at its next suspension point.
func (c *Controller) Stop(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok := c.tokens[accountID]
	if tok == nil || tok.isStopped() {
		return
	}
	if !c.store.Get(accountID).Status.Active() {
		return
	}

	tok.stop()
	c.store.Update(accountID, func(j *Job) {
		j.Status = StatusStopped
		j.CountdownSeconds = 0
	})
	c.logger.Info("job stop requested", "account_id", accountID)
}

// Forget stops the account's run and drops its job. Writes from the
// orphaned run-loop are discarded.
func (c *Controller) Forget(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tok := c.tokens[accountID]; tok != nil {
		tok.stop()
		delete(c.tokens, accountID)
	}
	c.store.Forget(accountID)
}

// ActiveCount returns the number of accounts with an active run
func (c *Controller) ActiveCount() int {
	n := 0
	c.store.Each(func(_ string, j *Job) {
		if j.Status.Active() {
			n++
		}
	})
	return n
}

// Shutdown stops every run and waits for the run-loops to exit
func (c *Controller) Shutdown() {
	c.mu.Lock()
	for _, tok := range c.tokens {
		tok.stop()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// commit applies fn to the stored job only if gen is still the account's
// current run. It reports whether the write happened.
func (c *Controller) commit(accountID string, gen uint64, fn func(j *Job)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tok := c.tokens[accountID]; tok == nil || tok.generation != gen {
		return false
	}
	c.store.Update(accountID, fn)
	return true
}

func (c *Controller) run(accountID string, tok *token, recipients []string, delay int, step Step) {
	defer c.wg.Done()

	kind := string(c.op.Kind())
	total := len(recipients)
	logger := c.logger.With("account_id", accountID, "generation", tok.generation)

	for i, recipient := range recipients {
		if tok.isStopped() {
			break
		}
		if !c.waitWhilePaused(tok) {
			break
		}
		if i > 0 && delay > 0 {
			if !c.countdown(accountID, tok, delay) {
				break
			}
		}
		if tok.isStopped() {
			break
		}

		out := step(c.ctx, i, total, recipient)

		status := ResultSuccess
		if !out.OK {
			status = ResultError
			logger.Debug("recipient failed", "recipient", recipient, "index", i+1, "response", string(out.Body))
		}
		body := out.Body
		if len(body) == 0 {
			body = []byte(`{}`)
		}

		recorded := c.commit(accountID, tok.generation, func(j *Job) {
			if out.OK {
				j.Stats.Success++
			} else {
				j.Stats.Fail++
			}
			results := make([]Result, 0, len(j.Results)+1)
			results = append(results, Result{
				ID:        i + 1,
				Recipient: recipient,
				Status:    status,
				Response:  body,
			})
			j.Results = append(results, j.Results...)
			j.Progress.Current = i + 1
		})
		if !recorded {
			logger.Debug("run superseded, dropping result", "recipient", recipient)
			return
		}
		metrics.IncJobRecipients(kind, out.OK)
	}

	final := StatusCompleted
	if tok.isStopped() {
		final = StatusStopped
	}

	var snapshot Job
	ok := c.commit(accountID, tok.generation, func(j *Job) {
		// A pause that arrived during the last call ends with the run
		tok.resume()
		j.Status = final
		j.CountdownSeconds = 0
		snapshot = *j
	})
	if !ok {
		logger.Debug("run superseded before finishing", "status", final)
		return
	}
	metrics.IncJobsFinished(kind, string(final))
	logger.Info("job finished", "status", final, "processed", snapshot.Progress.Current, "total", total,
		"success", snapshot.Stats.Success, "fail", snapshot.Stats.Fail)
}

// waitWhilePaused blocks until the token is resumed. It returns false if
// the run was stopped.
func (c *Controller) waitWhilePaused(tok *token) bool {
	for tok.isPaused() {
		if !c.sleep(tok, c.opts.PausePollInterval) {
			return false
		}
	}
	return !tok.isStopped()
}

// countdown runs the inter-recipient delay one tick at a time. A pause
// freezes the remaining value; the tick in which it arrived is not counted.
func (c *Controller) countdown(accountID string, tok *token, delay int) bool {
	gen := tok.generation
	remaining := delay

	ok := c.commit(accountID, gen, func(j *Job) {
		j.CountdownSeconds = remaining
		if j.Status == StatusProcessing {
			j.Status = StatusWaiting
		}
	})
	if !ok {
		return false
	}

	for remaining > 0 {
		if !c.sleep(tok, c.opts.TickInterval) {
			return false
		}

		// Pause is applied under the same lock, so a paused tick never decrements
		ok := c.commit(accountID, gen, func(j *Job) {
			if tok.isPaused() {
				return
			}
			remaining--
			j.CountdownSeconds = remaining
			if remaining == 0 && j.Status == StatusWaiting {
				j.Status = StatusProcessing
			}
		})
		if !ok {
			return false
		}
		if !c.waitWhilePaused(tok) {
			return false
		}
	}

	return !tok.isStopped()
}

// sleep waits for d or until the token is stopped
func (c *Controller) sleep(tok *token, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return !tok.isStopped()
	case <-tok.done():
		return false
	}
}

func ptr[T any](v T) *T {
	return &v
}

// Controllers groups the controllers of every job kind
type Controllers map[Kind]*Controller

// ActiveJobs reports active runs per kind
func (cs Controllers) ActiveJobs() map[string]int {
	out := make(map[string]int, len(cs))
	for kind, c := range cs {
		out[string(kind)] = c.ActiveCount()
	}
	return out
}

// Shutdown stops all runs of all kinds
func (cs Controllers) Shutdown() {
	var wg sync.WaitGroup
	for _, c := range cs {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			c.Shutdown()
		}(c)
	}
	wg.Wait()
}

// Forget drops all job state of a deleted account
func (cs Controllers) Forget(accountID string) {
	for _, c := range cs {
		c.Forget(accountID)
	}
}

// Stores returns the job stores of all kinds
func (cs Controllers) Stores() []*Store {
	stores := make([]*Store, 0, len(cs))
	for _, c := range cs {
		stores = append(stores, c.store)
	}
	return stores
}
