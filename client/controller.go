// Package client polls a capture server and keeps the last fetched request
// list and the current selection.
package client

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/profclems/catchhook/protocol"
)

// DefaultInterval is how often the controller polls while visible
const DefaultInterval = 5 * time.Second

// Poll triggers, used as log attributes and metric labels
const (
	TriggerInitial = "initial"
	TriggerTick    = "tick"
	TriggerManual  = "manual"
	TriggerResume  = "resume"
)

// Source provides captured requests. *API and the capture server's store
// both implement it.
type Source interface {
	Latest(ctx context.Context) ([]protocol.Request, error)
	Request(ctx context.Context, id uint64) (*protocol.Request, error)
}

// Snapshot is a copy of the controller state
type Snapshot struct {
	Requests  []protocol.Request
	Selected  *protocol.Request
	Polling   bool
	UpdatedAt time.Time
}

// Option configures a Controller
type Option func(*Controller)

// WithInterval sets the polling period
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithNotifier sets where failures are surfaced
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithMetrics attaches prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithVisible sets the initial visibility. Defaults to true.
func WithVisible(v bool) Option {
	return func(c *Controller) { c.visible = v }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller polls a Source on a fixed interval and owns the client state.
//
// Fetches are not sequenced: when a manual refresh and a tick overlap, the
// last response to arrive wins. Stopping the controller prevents new ticks
// but does not abort fetches already in flight.
type Controller struct {
	src      Source
	interval time.Duration
	logger   *slog.Logger
	notifier Notifier
	metrics  *Metrics
	now      func() time.Time

	mu        sync.RWMutex
	requests  []protocol.Request
	selected  *protocol.Request
	updatedAt time.Time
	polling   bool
	visible   bool
	resume    bool

	// pubMu is held from taking a snapshot until every subscriber has it,
	// so subscribers never see an older snapshot after a newer one.
	pubMu   sync.Mutex
	subsMu  sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewController creates a controller for src
func NewController(src Source, opts ...Option) *Controller {
	c := &Controller{
		src:      src,
		interval: DefaultInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		requests: []protocol.Request{},
		visible:  true,
		subs:     make(map[int]func(Snapshot)),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = LogNotifier{Logger: c.logger}
	}
	return c
}

// Interval returns the polling period
func (c *Controller) Interval() time.Duration {
	return c.interval
}

// Start fetches immediately, then polls every interval while visible.
// It blocks until Stop is called or ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	var ticker *time.Ticker
	var tick <-chan time.Time

	startTicker := func() {
		ticker = time.NewTicker(c.interval)
		tick = ticker.C
		c.setPolling(true)
	}
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
		}
		tick = nil
		c.setPolling(false)
	}
	defer stopTicker()

	c.logger.Info("polling started", "interval", c.interval)
	c.Refresh(ctx, TriggerInitial)

	// the initial fetch covers a show that happened before Start
	if visible, _ := c.takeResume(); visible {
		startTicker()
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("polling stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-c.stop:
			c.logger.Info("polling stopped")
			return nil
		case <-tick:
			go c.Refresh(ctx, TriggerTick)
		case <-c.wake:
			visible, resume := c.takeResume()
			switch {
			case visible:
				if tick == nil {
					c.logger.Debug("auto-refresh resumed")
					startTicker()
				}
				if resume {
					go c.Refresh(ctx, TriggerResume)
				}
			case tick != nil:
				c.logger.Debug("auto-refresh paused")
				stopTicker()
			}
		}
	}
}

// Stop ends polling. Safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// SetVisible pauses polling when false and resumes it, with an immediate
// refresh, when true again.
func (c *Controller) SetVisible(visible bool) {
	c.mu.Lock()
	changed := c.visible != visible
	c.visible = visible
	if changed && visible {
		c.resume = true
	}
	c.mu.Unlock()

	if !changed {
		return
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// takeResume returns the visibility and clears a pending resume refresh.
// A hide and show may collapse into a single wakeup.
func (c *Controller) takeResume() (visible, resume bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.visible {
		return false, false
	}
	resume = c.resume
	c.resume = false
	return true, resume
}

// IsVisible reports whether anyone is watching
func (c *Controller) IsVisible() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.visible
}

// Refresh fetches the request list now, independently of the timer.
// Failures are logged and notified; the previous state is kept.
func (c *Controller) Refresh(ctx context.Context, trigger string) error {
	items, err := c.src.Latest(ctx)
	if err != nil {
		c.logger.Error("failed to load requests", "trigger", trigger, "error", err)
		c.metrics.observePoll(trigger, err, 0, 0)
		c.notifier.Notify(LevelError, "Failed to load requests")
		return err
	}
	if items == nil {
		items = []protocol.Request{}
	}

	now := c.now()
	c.mu.Lock()
	c.requests = items
	if c.selected != nil {
		if updated := findRequest(items, c.selected.ID); updated != nil {
			c.selected = updated
		}
	}
	c.updatedAt = now
	c.mu.Unlock()

	c.logger.Debug("requests loaded", "trigger", trigger, "count", len(items))
	c.metrics.observePoll(trigger, nil, len(items), float64(now.Unix()))
	c.publish()
	return nil
}

// Select makes the request with the given id current. The last fetched list
// is checked first; otherwise the request is fetched by id. On failure the
// selection is left unchanged.
func (c *Controller) Select(ctx context.Context, id uint64) (*protocol.Request, error) {
	c.mu.RLock()
	req := findRequest(c.requests, id)
	c.mu.RUnlock()

	source := "list"
	if req == nil {
		source = "fetch"
		fetched, err := c.src.Request(ctx, id)
		if err != nil {
			c.logger.Error("failed to load request details", "id", id, "error", err)
			c.metrics.observeSelect(source, err)
			c.notifier.Notify(LevelError, "Failed to load request details")
			return nil, err
		}
		req = fetched
	}

	c.mu.Lock()
	c.selected = req
	c.mu.Unlock()

	c.metrics.observeSelect(source, nil)
	c.publish()
	return req, nil
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	requests := make([]protocol.Request, len(c.requests))
	copy(requests, c.requests)

	var selected *protocol.Request
	if c.selected != nil {
		sel := *c.selected
		selected = &sel
	}

	return Snapshot{
		Requests:  requests,
		Selected:  selected,
		Polling:   c.polling,
		UpdatedAt: c.updatedAt,
	}
}

// Subscribe registers fn to be called with a snapshot after every state
// change. Snapshots are delivered in order; fn must not call Refresh or
// Select. The returned function removes the subscription.
func (c *Controller) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Controller) publish() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	snap := c.Snapshot()

	c.subsMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Controller) setPolling(polling bool) {
	c.mu.Lock()
	changed := c.polling != polling
	c.polling = polling
	c.mu.Unlock()

	if changed {
		c.publish()
	}
}

func findRequest(items []protocol.Request, id uint64) *protocol.Request {
	for i := range items {
		if items[i].ID == id {
			req := items[i]
			return &req
		}
	}
	return nil
}
