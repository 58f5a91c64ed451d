// Package stream maintains one Mastodon streaming connection and translates
// its frames into typed events.
//
// A Connection dials in the background, reports its lifecycle through an
// Observer and is closed with Close. Transport failures end the connection;
// malformed frames are reported and skipped.
package stream

import (
	"net/url"
	"strings"
)

// Kind selects which server stream a connection follows.
type Kind string

const (
	// KindUser is the authenticated home stream with notifications.
	KindUser Kind = "user"
	// KindLocal is the instance's local public stream.
	KindLocal Kind = "public:local"
)

// HostRewrites maps an API host to the prefix of the host serving its
// streaming endpoint. Some deployments split streaming onto a sub-host.
type HostRewrites map[string]string

// DefaultHostRewrites lists known deployments with a separate streaming host.
func DefaultHostRewrites() HostRewrites {
	return HostRewrites{
		"mstdn.jp": "streaming.",
	}
}

// StreamHost returns the host that serves streaming for host.
func (r HostRewrites) StreamHost(host string) string {
	if prefix, ok := r[strings.ToLower(host)]; ok {
		return prefix + host
	}
	return host
}

// Endpoint identifies one stream on one instance.
type Endpoint struct {
	Host string
	Kind Kind
	// Scheme defaults to wss.
	Scheme string
}

// URL builds the websocket URL after applying the host rewrite table.
func (e Endpoint) URL(rewrites HostRewrites) string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "wss"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     rewrites.StreamHost(e.Host),
		Path:     "/api/v1/streaming",
		RawQuery: url.Values{"stream": []string{string(e.Kind)}}.Encode(),
	}
	return u.String()
}

func (e Endpoint) String() string {
	return e.Host + "/" + string(e.Kind)
}
