package engine

import (
	"fmt"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
	"github.com/gauthierbraillon/tootmix/internal/stream"
	"github.com/gauthierbraillon/tootmix/internal/timeline"
)

// ChangeType tags a Change.
type ChangeType int

const (
	// ChangeInsert adds Event at the front.
	ChangeInsert ChangeType = iota
	// ChangeReplace swaps the entry at Index for Event.
	ChangeReplace
	// ChangeReset replaces the whole log with Events.
	ChangeReset
)

func (t ChangeType) String() string {
	switch t {
	case ChangeInsert:
		return "insert"
	case ChangeReplace:
		return "replace"
	case ChangeReset:
		return "reset"
	default:
		return fmt.Sprintf("change(%d)", int(t))
	}
}

// Change is one incremental update of the log. Applying changes in order to
// an initial Snapshot reproduces the engine's log.
type Change struct {
	Type   ChangeType
	Index  int
	Event  timeline.Event
	Events []timeline.Event
}

// Lifecycle drives a connection indicator.
type Lifecycle string

const (
	LifecycleConnecting Lifecycle = "connecting"
	LifecycleLive       Lifecycle = "live"
	LifecycleError      Lifecycle = "error"
)

// Signal reports lifecycle and refresh state out of band.
type Signal struct {
	Lifecycle  Lifecycle
	Refreshing bool
	// Stream is the connection that caused an error signal.
	Stream stream.Kind
	Err    error
}

// Observer receives log changes and signals on the engine goroutine.
// Implementations must not call back into the engine synchronously.
type Observer interface {
	OnChange(Change)
	OnSignal(Signal)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Change func(Change)
	Signal func(Signal)
}

func (o ObserverFuncs) OnChange(c Change) {
	if o.Change != nil {
		o.Change(c)
	}
}

func (o ObserverFuncs) OnSignal(s Signal) {
	if o.Signal != nil {
		o.Signal(s)
	}
}

// Notifier is told about every notification pushed by the user stream.
type Notifier interface {
	Notify(mastodon.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(mastodon.Notification)

func (f NotifierFunc) Notify(n mastodon.Notification) {
	f(n)
}
