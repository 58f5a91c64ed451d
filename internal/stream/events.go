package stream

import (
	"errors"
	"fmt"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
)

// EventType tags an Event.
type EventType int

const (
	// Opened is sent once the server acknowledged the connection.
	Opened EventType = iota
	// StatusPushed carries a status from an `update` frame.
	StatusPushed
	// NotificationPushed carries a notification from a `notification` frame.
	NotificationPushed
	// Failed carries a *TransportError (terminal) or *DecodeError (recoverable).
	Failed
)

func (t EventType) String() string {
	switch t {
	case Opened:
		return "opened"
	case StatusPushed:
		return "status"
	case NotificationPushed:
		return "notification"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is one observation from a connection.
type Event struct {
	Type         EventType
	Status       *mastodon.Status
	Notification *mastodon.Notification
	Err          error
}

// Terminal reports whether no more events follow this one.
func (e Event) Terminal() bool {
	if e.Type != Failed {
		return false
	}
	var decodeErr *DecodeError
	return !errors.As(e.Err, &decodeErr)
}

// Observer receives events from a connection. It is called from the
// connection's reader goroutine, one event at a time, and must not call
// Close on the same connection.
type Observer func(Event)

// State is the lifecycle state of a Connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// terminal states cannot be left.
func (s State) terminal() bool {
	return s == StateError || s == StateClosed
}
