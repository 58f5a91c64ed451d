// Package mastodon provides the Mastodon domain types and a REST client for
// the timeline endpoints.
//
// This package enables tootmix to:
// - Decode statuses and notifications pushed by the streaming API
// - Fetch home, local and account timelines page by page
// - Build placeholder statuses that describe failures inline in a timeline
package mastodon

import (
	"fmt"
	"time"

	"golang.org/x/net/html"
)

// ID is an opaque, server-assigned identifier.
type ID string

// ZeroID identifies placeholder statuses. It is never a real server id.
const ZeroID ID = "0"

// Visibility is the audience of a status.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// rank orders visibilities from most public (highest) to least public.
func (v Visibility) rank() int {
	switch v {
	case VisibilityPublic:
		return 3
	case VisibilityUnlisted:
		return 2
	case VisibilityPrivate:
		return 1
	default:
		return 0
	}
}

// MorePublicThan reports whether v reaches a wider audience than other.
func (v Visibility) MorePublicThan(other Visibility) bool {
	return v.rank() > other.rank()
}

// Glyph returns a short prefix for terminal output.
func (v Visibility) Glyph() string {
	switch v {
	case VisibilityPublic:
		return "🌐"
	case VisibilityUnlisted:
		return "🏠"
	case VisibilityPrivate:
		return "🔒"
	case VisibilityDirect:
		return "✉️"
	default:
		return "?"
	}
}

// Account is the author of a status or the actor of a notification.
type Account struct {
	ID          ID     `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Avatar      string `json:"avatar,omitempty"`
}

// DisplayNameOrUsername prefers the display name and falls back to the username.
func (a Account) DisplayNameOrUsername() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// Status is one unit of user-generated content.
type Status struct {
	ID          ID         `json:"id"`
	URI         string     `json:"uri"`
	URL         string     `json:"url,omitempty"`
	Account     Account    `json:"account"`
	InReplyToID *ID        `json:"in_reply_to_id,omitempty"`
	Content     string     `json:"content"`
	SpoilerText string     `json:"spoiler_text,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Visibility  Visibility `json:"visibility"`
	Sensitive   bool       `json:"sensitive"`
	// Pinned is nil when the server does not expose pinned state.
	Pinned *bool `json:"pinned,omitempty"`
	// Reblog is the original status when this one is a reshare wrapper.
	Reblog *Status `json:"reblog,omitempty"`
}

// MainContent returns the reshared original, or the status itself.
func (s Status) MainContent() Status {
	if s.Reblog != nil {
		return *s.Reblog
	}
	return s
}

// IsPlaceholder reports whether the status was synthesized locally.
func (s Status) IsPlaceholder() bool {
	return s.ID == ZeroID
}

// IsPinned reports whether the status is known to be pinned.
func (s Status) IsPinned() bool {
	return s.Pinned != nil && *s.Pinned
}

// Notification is an event addressed to the authenticated account.
type Notification struct {
	ID        ID        `json:"id"`
	Type      string    `json:"type"`
	Account   Account   `json:"account"`
	Status    *Status   `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Instance describes the server an account lives on.
type Instance struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"short_description,omitempty"`
	Version     string `json:"version"`
}

// BaseURL returns the https base URL of a host.
func BaseURL(host string) string {
	return "https://" + host
}

var placeholderAccount = Account{
	ID:          ZeroID,
	Username:    "tootmix",
	Acct:        "tootmix",
	DisplayName: "tootmix.error",
}

// PlaceholderStatus builds a status that describes err. It is inserted into a
// timeline where a failure happened so the user sees it in place.
func PlaceholderStatus(err error, now time.Time) Status {
	content := "unknown error"
	if err != nil {
		content = html.EscapeString(err.Error())
	}
	return Status{
		ID:         ZeroID,
		URL:        "https://localhost/",
		Account:    placeholderAccount,
		Content:    fmt.Sprintf("<p>%s</p>", content),
		CreatedAt:  now,
		Visibility: VisibilityPublic,
	}
}
