// Package timeline holds the unified timeline log: the event model shared by
// home, local and notification entries, and the merger that keeps the log
// deduplicated, newest-first and bounded.
//
// This package enables tootmix to:
// - Wrap statuses and notifications into one displayable event type
// - Merge events from two streams and page fetches without duplicates
// - Prefer the local copy of a status over its home copy
// - Bound memory by trimming the log in one step
package timeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
)

// Kind identifies where an event came from.
type Kind int

const (
	// KindHome is a status from the authenticated user's home stream.
	KindHome Kind = iota
	// KindLocal is a status from the instance's local public stream.
	KindLocal
	// KindNotification is a notification addressed to the user.
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindHome:
		return "home"
	case KindLocal:
		return "local"
	case KindNotification:
		return "notification"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one entry of the timeline log. It is a value type: copies share
// the lazily computed text, which is derived at most once.
type Event struct {
	kind         Kind
	status       mastodon.Status
	notification mastodon.Notification
	text         *textCell
}

type textCell struct {
	once  sync.Once
	value string
}

// NewHome wraps a status pushed by or fetched from the home timeline.
func NewHome(s mastodon.Status) Event {
	return Event{kind: KindHome, status: s, text: &textCell{}}
}

// NewLocal wraps a status pushed by or fetched from the local timeline.
func NewLocal(s mastodon.Status) Event {
	return Event{kind: KindLocal, status: s, text: &textCell{}}
}

// NewNotification wraps a notification.
func NewNotification(n mastodon.Notification) Event {
	return Event{kind: KindNotification, notification: n, text: &textCell{}}
}

// WithText returns a copy of e whose text is already known.
func (e Event) WithText(text string) Event {
	cell := &textCell{value: text}
	cell.once.Do(func() {})
	e.text = cell
	return e
}

// Kind returns the variant of e.
func (e Event) Kind() Kind {
	return e.kind
}

// Status returns the underlying status of a home or local event.
func (e Event) Status() (mastodon.Status, bool) {
	if e.kind == KindNotification {
		return mastodon.Status{}, false
	}
	return e.status, true
}

// Notification returns the underlying notification of a notification event.
func (e Event) Notification() (mastodon.Notification, bool) {
	if e.kind != KindNotification {
		return mastodon.Notification{}, false
	}
	return e.notification, true
}

// CreatedAt orders events in batches.
func (e Event) CreatedAt() time.Time {
	if e.kind == KindNotification {
		return e.notification.CreatedAt
	}
	return e.status.CreatedAt
}

// StatusID returns the id events are deduplicated on. Notifications and
// placeholders have none.
func (e Event) StatusID() (mastodon.ID, bool) {
	if e.kind == KindNotification || e.status.ID == "" || e.status.IsPlaceholder() {
		return "", false
	}
	return e.status.ID, true
}

// IsPlaceholder reports whether e describes a failure rather than content.
func (e Event) IsPlaceholder() bool {
	return e.kind != KindNotification && e.status.IsPlaceholder()
}

// Text returns the plain rendering text of e, computing it on first use.
func (e Event) Text() string {
	if e.text == nil {
		return e.deriveText()
	}
	e.text.once.Do(func() {
		e.text.value = e.deriveText()
	})
	return e.text.value
}

// withFreshText detaches e from any cached text.
func (e Event) withFreshText() Event {
	e.text = &textCell{}
	return e
}

func (e Event) deriveText() string {
	if e.kind == KindNotification {
		return notificationText(e.notification)
	}
	return statusText(e.status)
}
