package engine

import (
	"github.com/gauthierbraillon/tootmix/internal/mastodon"
	"github.com/gauthierbraillon/tootmix/internal/stream"
	"github.com/gauthierbraillon/tootmix/internal/timeline"
)

var streamKinds = []stream.Kind{stream.KindLocal, stream.KindUser}

func (e *Engine) loop() {
	defer close(e.loopDone)
	for {
		select {
		case <-e.quit:
			return
		case <-e.mailbox.ready:
			for _, fn := range e.mailbox.drain() {
				fn()
			}
		}
	}
}

// connect opens a fresh pair of connections. Events of older generations
// are ignored.
func (e *Engine) connect() {
	e.generation++
	generation := e.generation

	e.setState(StateConnecting)
	e.signal(Signal{Lifecycle: LifecycleConnecting, Refreshing: e.refreshing})

	for _, kind := range streamKinds {
		kind := kind
		cfg := stream.Config{
			Endpoint: stream.Endpoint{
				Host:   e.cfg.Host,
				Kind:   kind,
				Scheme: e.cfg.Scheme,
			},
			Token:            e.cfg.Token,
			HostRewrites:     e.cfg.HostRewrites,
			HandshakeTimeout: e.cfg.HandshakeTimeout,
			PingInterval:     e.cfg.PingInterval,
		}
		observer := func(ev stream.Event) {
			e.mailbox.put(func() {
				e.handleStreamEvent(kind, generation, ev)
			})
		}
		e.conns[kind] = &slot{
			generation: generation,
			conn:       e.dial(e.ctx, cfg, observer),
		}
	}
	e.logger.Info().Uint64("generation", generation).Msg("streams connecting")
}

// closeConnections closes every connection and waits for each.
func (e *Engine) closeConnections() {
	for kind, s := range e.conns {
		if err := s.conn.Close(); err != nil {
			e.logger.Warn().Err(err).Str("stream", string(kind)).Msg("stream close failed")
		}
		delete(e.conns, kind)
	}
}

func (e *Engine) handleStreamEvent(kind stream.Kind, generation uint64, ev stream.Event) {
	s, ok := e.conns[kind]
	if !ok || s.generation != generation {
		e.logger.Debug().
			Str("stream", string(kind)).
			Str("event", ev.Type.String()).
			Uint64("generation", generation).
			Msg("stale stream event dropped")
		return
	}

	switch ev.Type {
	case stream.Opened:
		changed := false
		if e.State() == StateConnecting {
			e.setState(StateLive)
			changed = true
		}
		if kind == stream.KindUser && e.refreshing {
			e.refreshing = false
			changed = true
		}
		if changed {
			e.signal(Signal{Lifecycle: e.lifecycle(), Refreshing: e.refreshing})
		}

	case stream.StatusPushed:
		if ev.Status == nil {
			return
		}
		if kind == stream.KindLocal {
			e.ingest(timeline.NewLocal(*ev.Status))
		} else {
			e.ingest(timeline.NewHome(*ev.Status))
		}

	case stream.NotificationPushed:
		if ev.Notification == nil {
			return
		}
		e.ingest(timeline.NewNotification(*ev.Notification))
		if e.notifier != nil {
			e.notifier.Notify(*ev.Notification)
		}

	case stream.Failed:
		e.ingest(placeholderEvent(kind, mastodon.PlaceholderStatus(ev.Err, e.now())))
		if !ev.Terminal() {
			return
		}

		delete(e.conns, kind)
		_ = s.conn.Close()
		e.refreshing = false
		e.logger.Error().Err(ev.Err).Str("stream", string(kind)).Msg("stream dropped")
		e.signal(Signal{
			Lifecycle:  LifecycleError,
			Refreshing: false,
			Stream:     kind,
			Err:        ev.Err,
		})
	}
}

func placeholderEvent(kind stream.Kind, s mastodon.Status) timeline.Event {
	if kind == stream.KindLocal {
		return timeline.NewLocal(s)
	}
	return timeline.NewHome(s)
}

func (e *Engine) lifecycle() Lifecycle {
	if e.State() == StateLive {
		return LifecycleLive
	}
	return LifecycleConnecting
}

func (e *Engine) ingest(ev timeline.Event) {
	res := e.merger.Ingest(ev)
	switch {
	case res.Op == timeline.Dropped:
		return
	case res.Trimmed:
		e.publish(Change{Type: ChangeReset, Events: e.merger.Events()})
	case res.Op == timeline.Upgraded:
		e.publish(Change{Type: ChangeReplace, Index: res.Index, Event: res.Event})
	default:
		e.publish(Change{Type: ChangeInsert, Index: 0, Event: res.Event})
	}
}

// ingestBatch merges fetched events. A batch that trims is published as one
// reset; otherwise changes follow ingestion order, oldest first.
func (e *Engine) ingestBatch(events []timeline.Event) {
	results := e.merger.IngestBatch(events)
	for _, res := range results {
		if res.Trimmed {
			e.publish(Change{Type: ChangeReset, Events: e.merger.Events()})
			return
		}
	}

	for i := len(results) - 1; i >= 0; i-- {
		res := results[i]
		switch res.Op {
		case timeline.Inserted:
			e.publish(Change{Type: ChangeInsert, Index: 0, Event: res.Event})
		case timeline.Upgraded:
			e.publish(Change{Type: ChangeReplace, Index: res.Index, Event: res.Event})
		}
	}
}

func (e *Engine) observersSnapshot() []Observer {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	out := make([]Observer, 0, len(e.observers))
	for _, entry := range e.observers {
		out = append(out, entry.observer)
	}
	return out
}

func (e *Engine) publish(c Change) {
	for _, o := range e.observersSnapshot() {
		o.OnChange(c)
	}
}

func (e *Engine) signal(s Signal) {
	for _, o := range e.observersSnapshot() {
		o.OnSignal(s)
	}
}
