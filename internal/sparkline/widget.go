package sparkline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aaronlmathis/sparkwatch/internal/metrics"
	"github.com/aaronlmathis/sparkwatch/internal/promclient"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultRetryDelay  = 300 * time.Millisecond
	DefaultWindow      = time.Hour
	DefaultStep        = 30 * time.Second
	DefaultServiceName = "prometheus"
)

var (
	ErrAlreadyStarted = errors.New("widget already started")
	ErrStopped        = errors.New("widget stopped")
	ErrNotStarted     = errors.New("widget not started")
	ErrUnavailable    = errors.New("metrics backend unavailable")
	ErrInFlight       = errors.New("fetch in flight")
	ErrNotRetryable   = errors.New("state does not accept retry")
	ErrPinned         = errors.New("widget state is pinned")
)

// Sample is a single point of the widget's series
type Sample = promclient.Sample

// Discoverer locates the metrics backend. Any error means unavailable.
type Discoverer interface {
	Resolve(ctx context.Context, service string) (string, error)
}

// Invalidator is implemented by resolvers that cache. A widget drops the
// cached address of its service when a query to it fails at the transport level.
type Invalidator interface {
	Invalidate(service string)
}

// RangeQuerier runs a single range query
type RangeQuerier interface {
	QueryRange(ctx context.Context, baseURL, query string, start, end time.Time, step time.Duration) promclient.Result
}

// Listener receives a snapshot after every state change. Listeners are called
// one at a time in revision order and must not call back into the widget.
type Listener func(Snapshot)

// Config describes one widget
type Config struct {
	Name        string
	Heading     string
	Query       string
	Units       string
	Limit       *float64
	ServiceName string
	Interval    time.Duration
	RetryDelay  time.Duration
	Window      time.Duration
	Step        time.Duration
	// TestState pins the widget to a state and disables polling
	TestState string
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Step <= 0 {
		c.Step = DefaultStep
	}
}

// Snapshot is the externally observable output of a widget
type Snapshot struct {
	Name      string    `json:"name"`
	Heading   string    `json:"heading"`
	Units     string    `json:"units,omitempty"`
	State     State     `json:"state"`
	Retryable bool      `json:"retryable"`
	Polling   bool      `json:"polling"`
	Samples   []Sample  `json:"samples,omitempty"`
	Stats     *Stats    `json:"stats,omitempty"`
	Limit     *float64  `json:"limit,omitempty"`
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// pollSession is the bookkeeping of one Start..Stop lifetime. It is owned by
// exactly one widget and never reused after alive goes false.
type pollSession struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	ticker clock.Ticker
	retry  clock.Timer
	halt   chan struct{}

	inFlight bool
	alive    bool
	halted   bool
}

// Widget polls a range query and tracks the resulting presentation state
type Widget struct {
	cfg      Config
	logger   *zap.Logger
	resolver Discoverer
	client   RangeQuerier
	clock    clock.WithTickerAndDelayedExecution
	listener Listener
	newID    func() string
	pinned   *State

	mu        sync.Mutex
	notifyMu  sync.Mutex
	wg        sync.WaitGroup
	state     State
	samples   []Sample
	stats     Stats
	revision  uint64
	updatedAt time.Time
	session   *pollSession
	stopped   bool
}

// Option customizes a Widget
type Option func(*Widget)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clock.WithTickerAndDelayedExecution) Option {
	return func(w *Widget) { w.clock = c }
}

// WithListener registers the snapshot listener
func WithListener(l Listener) Option {
	return func(w *Widget) { w.listener = l }
}

// WithSessionIDs sets the generator for poll session identifiers
func WithSessionIDs(f func() string) Option {
	return func(w *Widget) { w.newID = f }
}

// New creates a widget in the Loading state. It does not start polling.
func New(logger *zap.Logger, cfg Config, resolver Discoverer, client RangeQuerier, opts ...Option) (*Widget, error) {
	cfg.applyDefaults()

	var pinned *State
	if cfg.TestState != "" {
		s, err := ParseState(cfg.TestState)
		if err != nil {
			return nil, err
		}
		// Loaded requires samples, which a pinned widget never fetches
		if s == Loaded {
			return nil, fmt.Errorf("widget %q cannot be pinned to %s", cfg.Name, s)
		}
		pinned = &s
	} else if cfg.Query == "" {
		return nil, fmt.Errorf("widget %q has no query", cfg.Name)
	}

	w := &Widget{
		cfg:      cfg,
		logger:   logger.With(zap.String("widget", cfg.Name)),
		resolver: resolver,
		client:   client,
		clock:    clock.RealClock{},
		newID:    func() string { return "" },
		pinned:   pinned,
		state:    Loading,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.updatedAt = w.clock.Now()
	return w, nil
}

// Name returns the widget name
func (w *Widget) Name() string {
	return w.cfg.Name
}

// State returns the current state
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot returns the current (state, samples, stats) tuple
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Polling reports whether the widget has a live session that still polls
func (w *Widget) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session != nil && w.session.alive && !w.session.halted
}

// Start enters Loading, fetches immediately and then every interval.
// A widget can be started once; it cannot be restarted after Stop.
func (w *Widget) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	if w.session != nil {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &pollSession{
		id:     w.newID(),
		ctx:    sctx,
		cancel: cancel,
		halt:   make(chan struct{}),
		alive:  true,
	}
	w.session = s

	if w.pinned != nil {
		w.setStateLocked(*w.pinned)
		w.haltLocked(s)
		w.logger.Info("Widget pinned", zap.Stringer("state", *w.pinned))
		w.publishLocked()
		return nil
	}

	w.setStateLocked(Loading)
	s.ticker = w.clock.NewTicker(w.cfg.Interval)
	w.logger.Info("Widget polling started",
		zap.String("session", s.id),
		zap.String("query", w.cfg.Query),
		zap.Duration("interval", w.cfg.Interval))
	w.publishLocked()

	w.poll(s, "start")
	go w.loop(s)
	return nil
}

// Stop ends the session. Outcomes of fetches still in flight are discarded.
// Stop is safe to call more than once and before Start.
func (w *Widget) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopLocked(w.session) {
		w.logger.Info("Widget polling stopped", zap.String("session", w.session.id))
	}
}

// stopLocked ends s for good and reports whether it was still alive
func (w *Widget) stopLocked(s *pollSession) bool {
	w.stopped = true
	if s == nil || !s.alive {
		return false
	}
	s.alive = false
	w.haltLocked(s)
	s.cancel()
	return true
}

// Wait blocks until fetches started by this widget have returned
func (w *Widget) Wait() {
	w.wg.Wait()
}

// Retry moves a TimedOut, NoData or Broken widget back to Loading and fetches
// again after the retry delay.
func (w *Widget) Retry() error {
	w.mu.Lock()
	s := w.session
	switch {
	case w.pinned != nil:
		w.mu.Unlock()
		return ErrPinned
	case s == nil && w.stopped, s != nil && !s.alive:
		w.mu.Unlock()
		return ErrStopped
	case s == nil:
		w.mu.Unlock()
		return ErrNotStarted
	case w.state == Unavailable:
		w.mu.Unlock()
		return ErrUnavailable
	case s.inFlight:
		w.mu.Unlock()
		return ErrInFlight
	}

	next, ok := Transition(w.state, EventRetry)
	if !ok {
		current := w.state
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRetryable, current)
	}

	w.setStateLocked(next)
	if s.retry != nil {
		s.retry.Stop()
	}
	s.retry = w.clock.AfterFunc(w.cfg.RetryDelay, func() { w.poll(s, "retry") })
	w.logger.Debug("Retry scheduled", zap.Duration("delay", w.cfg.RetryDelay))
	w.publishLocked()
	return nil
}

func (w *Widget) loop(s *pollSession) {
	for {
		select {
		case <-s.halt:
			return
		case <-s.ctx.Done():
			w.mu.Lock()
			if w.stopLocked(s) {
				w.logger.Info("Widget polling stopped, context done", zap.String("session", s.id))
			}
			w.mu.Unlock()
			return
		case <-s.ticker.C():
			w.poll(s, "tick")
		}
	}
}

// poll starts a fetch unless one is already in flight
func (w *Widget) poll(s *pollSession, trigger string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !s.alive || s.halted || s.ctx.Err() != nil {
		return
	}
	if s.inFlight {
		metrics.RecordDroppedTick(w.cfg.Name, trigger)
		w.logger.Debug("Fetch already in flight, dropping", zap.String("trigger", trigger))
		return
	}

	s.inFlight = true
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.fetch(s)
	}()
}

func (w *Widget) fetch(s *pollSession) {
	started := time.Now()
	event, samples := w.attempt(s.ctx)
	metrics.RecordWidgetFetch(w.cfg.Name, event.String(), time.Since(started))

	w.mu.Lock()
	s.inFlight = false
	if s.ctx.Err() != nil {
		w.stopLocked(s)
	}
	if !s.alive {
		w.mu.Unlock()
		w.logger.Debug("Discarding fetch outcome after stop", zap.Stringer("event", event))
		return
	}

	next, ok := Transition(w.state, event)
	if !ok {
		w.mu.Unlock()
		return
	}

	if event == EventLoaded {
		w.samples = samples
		w.stats, _ = ComputeStats(samples, w.cfg.Limit)
	} else if event == EventNoData {
		w.samples = nil
	}
	w.setStateLocked(next)

	if next == Unavailable {
		w.haltLocked(s)
		w.logger.Warn("Metrics backend unavailable, polling halted",
			zap.String("service", w.cfg.ServiceName))
	}
	w.publishLocked()
}

// attempt runs discovery and the range query and classifies the outcome
func (w *Widget) attempt(ctx context.Context) (Event, []Sample) {
	baseURL, err := w.resolver.Resolve(ctx, w.cfg.ServiceName)
	if err != nil {
		w.logger.Info("Service discovery failed",
			zap.String("service", w.cfg.ServiceName),
			zap.Error(err))
		return EventUnavailable, nil
	}

	end := w.clock.Now()
	start := end.Add(-w.cfg.Window)
	result := w.client.QueryRange(ctx, baseURL, w.cfg.Query, start, end, w.cfg.Step)

	event, samples := Classify(result)
	switch r := result.(type) {
	case promclient.Failure:
		w.logger.Warn("Range query failed",
			zap.String("status", r.Status),
			zap.String("errorType", r.ErrorType),
			zap.String("error", r.Error))
	case promclient.TransportError:
		w.logger.Warn("Range query transport error",
			zap.Bool("timeout", r.Timeout),
			zap.Error(r.Err))
		if inv, ok := w.resolver.(Invalidator); ok && !r.Timeout && ctx.Err() == nil {
			inv.Invalidate(w.cfg.ServiceName)
		}
	}
	return event, samples
}

// Classify maps a range query result to the event it triggers. Only the first
// result series is used.
func Classify(result promclient.Result) (Event, []Sample) {
	switch r := result.(type) {
	case promclient.Success:
		if r.Empty() {
			return EventNoData, nil
		}
		return EventLoaded, r.Series[0].Samples
	case promclient.Failure:
		return EventQueryFailed, nil
	case promclient.TransportError:
		if r.Timeout {
			return EventTimedOut, nil
		}
		return EventTransportFailed, nil
	default:
		return EventTransportFailed, nil
	}
}

func (w *Widget) setStateLocked(next State) {
	w.state = next
	w.revision++
	w.updatedAt = w.clock.Now()
}

// haltLocked disarms the ticker and any pending retry for good
func (w *Widget) haltLocked(s *pollSession) {
	if s.halted {
		return
	}
	s.halted = true
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.retry != nil {
		s.retry.Stop()
	}
	close(s.halt)
}

func (w *Widget) snapshotLocked() Snapshot {
	snap := Snapshot{
		Name:      w.cfg.Name,
		Heading:   w.cfg.Heading,
		Units:     w.cfg.Units,
		State:     w.state,
		Retryable: w.pinned == nil && w.state.Retryable(),
		Polling:   w.session != nil && w.session.alive && !w.session.halted,
		Limit:     w.cfg.Limit,
		Revision:  w.revision,
		UpdatedAt: w.updatedAt,
	}
	if w.state == Loaded {
		snap.Samples = append([]Sample(nil), w.samples...)
		stats := w.stats
		snap.Stats = &stats
	}
	return snap
}

// publishLocked hands the current snapshot to the listener and releases w.mu.
// notifyMu is taken before w.mu is released so listeners see revisions in order.
func (w *Widget) publishLocked() {
	snap := w.snapshotLocked()
	w.notifyMu.Lock()
	w.mu.Unlock()
	defer w.notifyMu.Unlock()

	metrics.SetWidgetState(w.cfg.Name, snap.State.String(), stateLabels)
	if w.listener != nil {
		w.listener(snap)
	}
}

var stateLabels = func() []string {
	labels := make([]string, len(AllStates))
	for i, s := range AllStates {
		labels[i] = s.String()
	}
	return labels
}()
