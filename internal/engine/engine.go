// Package engine composes the local and user streams, page fetches and the
// timeline merger into one live, deduplicated timeline.
//
// This package enables tootmix to:
// - Keep two streaming connections and reconnect them on demand
// - Turn stream failures into placeholder entries without touching the other stream
// - Fetch pages incrementally from the newest known status
// - Publish incremental log changes and lifecycle signals to a presentation layer
//
// All log mutations and observer callbacks run on a single engine goroutine.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
	"github.com/gauthierbraillon/tootmix/internal/pagination"
	"github.com/gauthierbraillon/tootmix/internal/stream"
	"github.com/gauthierbraillon/tootmix/internal/timeline"
)

// ErrStopped is returned by every operation on a stopped engine.
var ErrStopped = errors.New("timeline engine stopped")

// State is the engine lifecycle.
type State int32

const (
	StateStopped State = iota
	StateConnecting
	StateLive
	StateReconnectPending
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateReconnectPending:
		return "reconnect-pending"
	default:
		return "unknown"
	}
}

// Config holds per-engine settings. Zero values take the package defaults.
type Config struct {
	Host  string
	Token string
	// SelfID is the authenticated account; it enables the pinned probe.
	SelfID mastodon.ID
	// Scheme of the streaming endpoints, wss when empty.
	Scheme string

	HostRewrites     stream.HostRewrites
	HandshakeTimeout time.Duration
	PingInterval     time.Duration

	RetentionCap   int
	RetentionFloor int
	PageLimit      int
	PinnedLimit    int
}

// Fetcher is the REST collaborator. *mastodon.Client implements it.
type Fetcher interface {
	pagination.Fetcher
	Home(ctx context.Context, since *mastodon.ID, limit int) ([]mastodon.Status, error)
	Local(ctx context.Context, since *mastodon.ID, limit int) ([]mastodon.Status, error)
}

// Connection is the part of a stream connection the engine relies on.
type Connection interface {
	Close() error
}

// DialFunc opens a stream connection that reports to observer.
type DialFunc func(ctx context.Context, cfg stream.Config, observer stream.Observer) Connection

// Option configures an Engine.
type Option func(*Engine)

// WithDialer replaces how stream connections are opened.
func WithDialer(dial DialFunc) Option {
	return func(e *Engine) {
		e.dial = dial
	}
}

// WithNotifier sets the notification boundary.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithLogger sets the logger; the global zerolog logger is used otherwise.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the time source used to stamp placeholder entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

type slot struct {
	generation uint64
	conn       Connection
}

type observerEntry struct {
	id       uint64
	observer Observer
}

// Engine is the unified timeline. Create it with New and release it with
// Stop.
type Engine struct {
	cfg      Config
	fetcher  Fetcher
	dial     DialFunc
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mailbox  *mailbox
	quit     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
	state    atomic.Int32

	obsMu     sync.Mutex
	observers []observerEntry
	nextObs   uint64

	pins *pagination.Cache

	// Owned by the engine goroutine.
	merger     *timeline.Merger
	conns      map[stream.Kind]*slot
	generation uint64
	refreshing bool
}

// New creates a stopped engine and starts its goroutine.
func New(cfg Config, fetcher Fetcher, opts ...Option) *Engine {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = pagination.PageLimit
	}
	if cfg.PinnedLimit <= 0 {
		cfg.PinnedLimit = pagination.PinnedLimit
	}
	if cfg.HostRewrites == nil {
		cfg.HostRewrites = stream.DefaultHostRewrites()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		fetcher:  fetcher,
		logger:   log.Logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		mailbox:  newMailbox(),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		pins:     &pagination.Cache{PinnedLimit: cfg.PinnedLimit},
		merger:   timeline.NewMerger(timeline.WithRetention(cfg.RetentionCap, cfg.RetentionFloor)),
		conns:    make(map[stream.Kind]*slot),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dial == nil {
		e.dial = e.openStream
	}
	e.logger = e.logger.With().Str("component", "engine").Str("host", cfg.Host).Logger()

	go e.loop()
	return e
}

func (e *Engine) openStream(ctx context.Context, cfg stream.Config, observer stream.Observer) Connection {
	return stream.Open(ctx, cfg, observer, stream.WithLogger(e.logger))
}

// State returns the current engine state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Subscribe registers o and returns a function that removes it.
func (e *Engine) Subscribe(o Observer) (unsubscribe func()) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.nextObs++
	id := e.nextObs
	e.observers = append(e.observers, observerEntry{id: id, observer: o})

	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		for i, entry := range e.observers {
			if entry.id == id {
				e.observers = append(e.observers[:i], e.observers[i+1:]...)
				return
			}
		}
	}
}

// Start opens both stream connections. It does nothing unless the engine is
// stopped.
func (e *Engine) Start(ctx context.Context) error {
	return e.call(ctx, func() {
		if e.State() != StateStopped {
			return
		}
		e.connect()
	})
}

// Reconnect closes the current connections, waits for them to finish, then
// opens new ones.
func (e *Engine) Reconnect(ctx context.Context) error {
	return e.call(ctx, func() {
		if e.State() != StateStopped {
			e.setState(StateReconnectPending)
			e.closeConnections()
		}
		e.connect()
	})
}

// Fetch loads the local and home pages newer than the watermark and merges
// them. A failed fetch leaves the log untouched.
func (e *Engine) Fetch(ctx context.Context) error {
	var since *mastodon.ID
	err := e.call(ctx, func() {
		if id, ok := pagination.Watermark(e.merger.Events()); ok {
			since = &id
		}
	})
	if err != nil {
		return err
	}

	var locals, homes []mastodon.Status
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		locals, err = e.fetcher.Local(gctx, since, e.cfg.PageLimit)
		return err
	})
	g.Go(func() error {
		var err error
		homes, err = e.fetcher.Home(gctx, since, e.cfg.PageLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		e.logger.Warn().Err(err).Msg("page fetch failed")
		return err
	}

	events := make([]timeline.Event, 0, len(locals)+len(homes))
	for _, s := range locals {
		events = append(events, timeline.NewLocal(s))
	}
	for _, s := range homes {
		events = append(events, timeline.NewHome(s))
	}
	e.logger.Debug().Int("local", len(locals)).Int("home", len(homes)).Msg("page fetched")

	return e.call(ctx, func() {
		e.ingestBatch(events)
	})
}

// Refresh raises the refreshing indicator, fetches new pages and reconnects
// both streams. The indicator drops when the user stream opens or fails.
func (e *Engine) Refresh(ctx context.Context) error {
	err := e.call(ctx, func() {
		e.refreshing = true
		e.signal(Signal{Lifecycle: e.lifecycle(), Refreshing: true})
	})
	if err != nil {
		return err
	}

	fetchErr := e.Fetch(ctx)
	if err := e.Reconnect(ctx); err != nil {
		return err
	}
	return fetchErr
}

// AccountStatuses returns a page of an account's statuses, pinned ones first
// when requested and supported. The result is not merged into the log.
func (e *Engine) AccountStatuses(ctx context.Context, accountID mastodon.ID, includePinned bool) ([]mastodon.Status, error) {
	select {
	case <-e.loopDone:
		return nil, ErrStopped
	default:
	}
	return e.pins.AccountStatuses(ctx, e.fetcher, e.cfg.SelfID, accountID, includePinned, e.cfg.PageLimit)
}

// Snapshot returns a copy of the log, newest first.
func (e *Engine) Snapshot(ctx context.Context) ([]timeline.Event, error) {
	var events []timeline.Event
	err := e.call(ctx, func() {
		events = e.merger.Events()
	})
	return events, err
}

// Stop closes both connections, waits for them and ends the engine
// goroutine. Later calls return ErrStopped.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		_ = e.call(context.Background(), func() {
			e.closeConnections()
			e.setState(StateStopped)
		})
		e.mailbox.close()
		close(e.quit)
		<-e.loopDone
		e.cancel()
		e.logger.Info().Msg("engine stopped")
	})
	<-e.loopDone
}

// call runs fn on the engine goroutine and waits for it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !e.mailbox.put(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-e.loopDone:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}
