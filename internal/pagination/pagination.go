// Package pagination tracks what a timeline already knows so page fetches
// stay incremental, and remembers whether the instance exposes pinned
// statuses.
package pagination

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
	"github.com/gauthierbraillon/tootmix/internal/timeline"
)

const (
	// PinnedLimit caps the pinned statuses shown before an account's page.
	PinnedLimit = 5
	// PageLimit is the default size of a page fetch.
	PageLimit = mastodon.DefaultPageLimit
)

// Watermark returns the id of the newest real status in events, which are
// ordered newest first. Placeholders and notifications are skipped.
func Watermark(events []timeline.Event) (mastodon.ID, bool) {
	for _, ev := range events {
		if id, ok := ev.StatusID(); ok {
			return id, true
		}
	}
	return "", false
}

// CapabilityProbeError reports that the pinned support probe failed. Nothing
// is cached, so the next call probes again.
type CapabilityProbeError struct {
	Err error
}

func (e *CapabilityProbeError) Error() string {
	return "pinned status support probe failed: " + e.Err.Error()
}

func (e *CapabilityProbeError) Unwrap() error {
	return e.Err
}

// Probe detects pinned status support.
type Probe func(ctx context.Context) (bool, error)

// Fetcher loads account statuses. *mastodon.Client implements it.
type Fetcher interface {
	AccountStatuses(ctx context.Context, accountID mastodon.ID, pinned bool, limit int) ([]mastodon.Status, error)
}

// Cache memoizes pinned status support for one engine. The zero value is
// ready to use.
type Cache struct {
	group singleflight.Group

	mu        sync.Mutex
	known     bool
	supported bool

	// PinnedLimit overrides the default cap when positive.
	PinnedLimit int
}

// PinnedSupport returns the memoized capability, running probe when it is
// still unknown. Concurrent callers share one probe.
func (c *Cache) PinnedSupport(ctx context.Context, probe Probe) (bool, error) {
	if supported, ok := c.cached(); ok {
		return supported, nil
	}

	v, err, _ := c.group.Do("pinned", func() (any, error) {
		if supported, ok := c.cached(); ok {
			return supported, nil
		}
		supported, err := probe(ctx)
		if err != nil {
			return false, &CapabilityProbeError{Err: err}
		}
		c.mu.Lock()
		c.known = true
		c.supported = supported
		c.mu.Unlock()
		return supported, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Cache) cached() (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.supported, c.known
}

// SelfProbe estimates pinned support from one status of the current
// account: servers that know about pins always send the pinned field for
// their own user's statuses.
func SelfProbe(fetcher Fetcher, selfID mastodon.ID) Probe {
	return func(ctx context.Context) (bool, error) {
		statuses, err := fetcher.AccountStatuses(ctx, selfID, false, 1)
		if err != nil {
			return false, err
		}
		return len(statuses) > 0 && statuses[0].Pinned != nil, nil
	}
}

// AccountStatuses returns a page of an account's statuses. With
// includePinned, up to PinnedLimit pinned statuses are placed first when the
// instance supports them. An empty selfID means the current account is
// unknown and pins are skipped.
func (c *Cache) AccountStatuses(ctx context.Context, fetcher Fetcher, selfID, accountID mastodon.ID, includePinned bool, limit int) ([]mastodon.Status, error) {
	if limit <= 0 {
		limit = PageLimit
	}

	var pinned []mastodon.Status
	if includePinned && selfID != "" {
		supported, err := c.PinnedSupport(ctx, SelfProbe(fetcher, selfID))
		if err != nil {
			return nil, err
		}
		if supported {
			pinned, err = fetcher.AccountStatuses(ctx, accountID, true, c.pinnedLimit())
			if err != nil {
				return nil, errors.Wrap(err, "fetch pinned statuses")
			}
			// Other accounts' statuses come back without the pinned field.
			for i := range pinned {
				pinned[i].Pinned = boolPtr(true)
			}
		}
	}

	statuses, err := fetcher.AccountStatuses(ctx, accountID, false, limit)
	if err != nil {
		return nil, errors.Wrap(err, "fetch statuses")
	}
	return append(pinned, statuses...), nil
}

func (c *Cache) pinnedLimit() int {
	if c.PinnedLimit > 0 {
		return c.PinnedLimit
	}
	return PinnedLimit
}

func boolPtr(b bool) *bool {
	return &b
}
