package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Lantsov/middleman/internal/adapter/metrics"
	"github.com/Lantsov/middleman/internal/broadcast"
	"github.com/Lantsov/middleman/internal/domain"
	"github.com/Lantsov/middleman/internal/platform/retry"
	"github.com/Lantsov/middleman/internal/snapshot"
	"github.com/Lantsov/middleman/internal/source"
	"github.com/jonboulle/clockwork"
)

const defaultBroadcastInterval = time.Second

// Options configures an Engine.
type Options struct {
	Addresses         []string
	Policy            retry.Policy
	ReadTimeout       time.Duration
	HandshakeTimeout  time.Duration
	BroadcastInterval time.Duration
	MaxSubscribers    int
	Clock             clockwork.Clock
	Dialer            source.Dialer // nil = gorilla default dialer
	Metrics           *metrics.Set  // nil = no metrics
}

// Engine wires supervisors, store and broadcaster together.
type Engine struct {
	store       *snapshot.Store
	supervisors []*source.Supervisor
	slots       map[string]domain.Slot
	broadcaster *broadcast.Broadcaster

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewEngine builds the engine. Slot i+1 belongs to Addresses[i]. Nothing connects until Start.
func NewEngine(opts Options) (*Engine, error) {
	if len(opts.Addresses) == 0 {
		return nil, fmt.Errorf("at least one source address is required")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	interval := opts.BroadcastInterval
	if interval <= 0 {
		interval = defaultBroadcastInterval
	}

	var (
		sourceMetrics    *metrics.SourceMetrics
		broadcastMetrics *metrics.BroadcastMetrics
	)
	if opts.Metrics != nil {
		sourceMetrics = opts.Metrics.Sources
		broadcastMetrics = opts.Metrics.Broadcast
	}

	store := snapshot.NewStore(len(opts.Addresses))
	e := &Engine{
		store:       store,
		supervisors: make([]*source.Supervisor, 0, len(opts.Addresses)),
		slots:       make(map[string]domain.Slot, len(opts.Addresses)),
	}

	for i, raw := range opts.Addresses {
		address := strings.TrimSpace(raw)
		if address == "" {
			return nil, fmt.Errorf("source %d: empty address", i+1)
		}
		if prev, dup := e.slots[address]; dup {
			return nil, fmt.Errorf("source %d: address %q already configured as source %d", i+1, address, prev)
		}

		slot := domain.Slot(i + 1)
		e.slots[address] = slot
		e.supervisors = append(e.supervisors, source.NewSupervisor(slot, address, store, source.Options{
			Policy:           opts.Policy,
			ReadTimeout:      opts.ReadTimeout,
			HandshakeTimeout: opts.HandshakeTimeout,
			Clock:            clock,
			Dialer:           opts.Dialer,
			Metrics:          sourceMetrics,
		}))
	}

	e.broadcaster = broadcast.NewBroadcaster(store, clock, interval, opts.MaxSubscribers, broadcastMetrics)
	return e, nil
}

// Start launches every supervisor. Each one connects independently.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		slog.Info("Starting sources", "count", len(e.supervisors))
		for _, sup := range e.supervisors {
			sup.Start(ctx)
		}
	})
}

// Run starts the engine and blocks until ctx is cancelled, then stops it.
func (e *Engine) Run(ctx context.Context) error {
	e.Start(ctx)
	<-ctx.Done()
	e.Stop()
	return nil
}

// Stop closes subscribers first, then every source link. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.broadcaster.Stop()

		var wg sync.WaitGroup
		for _, sup := range e.supervisors {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sup.Stop()
			}()
		}
		wg.Wait()
		slog.Info("Engine stopped")
	})
}

// Snapshot returns the shared store.
func (e *Engine) Snapshot() *snapshot.Store { return e.store }

// Broadcaster returns the subscriber fan-out.
func (e *Engine) Broadcaster() *broadcast.Broadcaster { return e.broadcaster }

// Lookup resolves a configured address to its slot. Surrounding whitespace is ignored.
func (e *Engine) Lookup(address string) (domain.Slot, bool) {
	slot, ok := e.slots[strings.TrimSpace(address)]
	return slot, ok
}

// ReadingFor returns the current reading of the source configured at address.
func (e *Engine) ReadingFor(address string) (domain.Reading, error) {
	slot, ok := e.Lookup(address)
	if !ok {
		return domain.Reading{}, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, strings.TrimSpace(address))
	}
	return e.store.Get(slot)
}

// SourceHealth lists every supervisor in slot order.
func (e *Engine) SourceHealth() []domain.SourceHealth {
	out := make([]domain.SourceHealth, 0, len(e.supervisors))
	for _, sup := range e.supervisors {
		out = append(out, sup.Health())
	}
	return out
}
