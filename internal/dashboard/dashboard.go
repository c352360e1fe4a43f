// Package dashboard owns the configured sparkline widgets and fans their
// snapshots out to subscribers.
package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/aaronlmathis/sparkwatch/internal/sparkline"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// ErrWidgetNotFound is returned for an unknown widget name
var ErrWidgetNotFound = errors.New("widget not found")

// Subscriber receives every snapshot published by any widget. It runs on the
// publishing widget's goroutine and must not block.
type Subscriber func(sparkline.Snapshot)

// Dashboard is a named set of widgets sharing one resolver and query client
type Dashboard struct {
	logger      *zap.Logger
	widgets     *xsync.MapOf[string, *sparkline.Widget]
	order       []string
	subscribers *xsync.MapOf[string, Subscriber]
}

// Option customizes a Dashboard
type Option func(*options)

type options struct {
	clock clock.WithTickerAndDelayedExecution
}

// WithClock sets the clock handed to every widget
func WithClock(c clock.WithTickerAndDelayedExecution) Option {
	return func(o *options) { o.clock = c }
}

// New builds one widget per config. Names must be unique.
func New(logger *zap.Logger, configs []sparkline.Config, resolver sparkline.Discoverer, client sparkline.RangeQuerier, opts ...Option) (*Dashboard, error) {
	o := options{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Dashboard{
		logger:      logger,
		widgets:     xsync.NewMapOf[string, *sparkline.Widget](),
		order:       make([]string, 0, len(configs)),
		subscribers: xsync.NewMapOf[string, Subscriber](),
	}

	for _, cfg := range configs {
		if _, exists := d.widgets.Load(cfg.Name); exists {
			return nil, fmt.Errorf("duplicate widget %q", cfg.Name)
		}
		w, err := sparkline.New(logger, cfg, resolver, client,
			sparkline.WithClock(o.clock),
			sparkline.WithListener(d.publish),
			sparkline.WithSessionIDs(uuid.NewString))
		if err != nil {
			return nil, err
		}
		d.widgets.Store(cfg.Name, w)
		d.order = append(d.order, cfg.Name)
	}

	return d, nil
}

// Start starts polling on every widget
func (d *Dashboard) Start(ctx context.Context) error {
	for _, name := range d.order {
		w, _ := d.widgets.Load(name)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start widget %s: %w", name, err)
		}
	}
	d.logger.Info("Dashboard started", zap.Int("widgets", len(d.order)))
	return nil
}

// Stop stops every widget and waits for in-flight fetches to return
func (d *Dashboard) Stop() {
	d.widgets.Range(func(_ string, w *sparkline.Widget) bool {
		w.Stop()
		return true
	})
	d.widgets.Range(func(_ string, w *sparkline.Widget) bool {
		w.Wait()
		return true
	})
	d.logger.Info("Dashboard stopped")
}

// Retry retries the named widget
func (d *Dashboard) Retry(name string) error {
	w, ok := d.widgets.Load(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrWidgetNotFound, name)
	}
	return w.Retry()
}

// Snapshot returns the current snapshot of the named widget
func (d *Dashboard) Snapshot(name string) (sparkline.Snapshot, error) {
	w, ok := d.widgets.Load(name)
	if !ok {
		return sparkline.Snapshot{}, fmt.Errorf("%w: %s", ErrWidgetNotFound, name)
	}
	return w.Snapshot(), nil
}

// Snapshots returns every widget snapshot in configuration order
func (d *Dashboard) Snapshots() []sparkline.Snapshot {
	out := make([]sparkline.Snapshot, 0, len(d.order))
	for _, name := range d.order {
		w, _ := d.widgets.Load(name)
		out = append(out, w.Snapshot())
	}
	return out
}

// Subscribe registers fn for every future snapshot and returns a function
// that removes it.
func (d *Dashboard) Subscribe(fn Subscriber) (unsubscribe func()) {
	id := uuid.NewString()
	d.subscribers.Store(id, fn)
	return func() { d.subscribers.Delete(id) }
}

func (d *Dashboard) publish(snap sparkline.Snapshot) {
	d.subscribers.Range(func(_ string, fn Subscriber) bool {
		fn(snap)
		return true
	})
}
