package timeline

import (
	"fmt"
	"slices"
)

// Default retention window.
const (
	DefaultCap   = 100
	DefaultFloor = 80
)

// Op is the outcome of one ingest.
type Op int

const (
	// Inserted means the event was placed at the front of the log.
	Inserted Op = iota
	// Upgraded means the event replaced the home copy of the same status.
	Upgraded
	// Dropped means the status was already present; the log is unchanged.
	Dropped
)

func (o Op) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Upgraded:
		return "upgraded"
	case Dropped:
		return "dropped"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Result describes what Ingest did to the log.
type Result struct {
	Op Op
	// Index is 0 for insertions, the replaced position for upgrades and the
	// position of the existing entry for drops.
	Index int
	// Event is the entry now stored at Index.
	Event Event
	// Trimmed reports that the tail was cut back to the floor after the
	// insertion; positions other than the front changed.
	Trimmed bool
}

// Merger owns the timeline log. It is not safe for concurrent use.
type Merger struct {
	log   []Event
	cap   int
	floor int
}

// Option configures a Merger.
type Option func(*Merger)

// WithRetention sets the cap the log may not exceed and the floor it is
// trimmed down to. Invalid pairs keep the defaults.
func WithRetention(retentionCap, floor int) Option {
	return func(m *Merger) {
		if floor <= 0 || floor > retentionCap {
			return
		}
		m.cap = retentionCap
		m.floor = floor
	}
}

// NewMerger creates an empty log.
func NewMerger(opts ...Option) *Merger {
	m := &Merger{
		cap:   DefaultCap,
		floor: DefaultFloor,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = make([]Event, 0, m.cap+1)
	return m
}

// Ingest merges one event into the log.
func (m *Merger) Ingest(ev Event) Result {
	if id, ok := ev.StatusID(); ok {
		for i, existing := range m.log {
			existingID, ok := existing.StatusID()
			if !ok || existingID != id {
				continue
			}
			if existing.Kind() == KindHome && ev.Kind() == KindLocal {
				upgraded := ev.withFreshText()
				m.log[i] = upgraded
				return Result{Op: Upgraded, Index: i, Event: upgraded}
			}
			return Result{Op: Dropped, Index: i, Event: existing}
		}
	}

	m.log = slices.Insert(m.log, 0, ev)
	res := Result{Op: Inserted, Index: 0, Event: ev}
	if len(m.log) > m.cap {
		clear(m.log[m.floor:])
		m.log = m.log[:m.floor]
		res.Trimmed = true
	}
	return res
}

// IngestBatch merges fetched events. The batch is ordered newest first by
// creation time and inserted oldest first, so it ends up newest first at the
// front of the log. Results are returned in the sorted order.
func (m *Merger) IngestBatch(events []Event) []Result {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b Event) int {
		return b.CreatedAt().Compare(a.CreatedAt())
	})

	results := make([]Result, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		results[i] = m.Ingest(sorted[i])
	}
	return results
}

// Events returns a copy of the log, newest first.
func (m *Merger) Events() []Event {
	return slices.Clone(m.log)
}

// Len returns the number of entries in the log.
func (m *Merger) Len() int {
	return len(m.log)
}

// Cap returns the retention cap.
func (m *Merger) Cap() int {
	return m.cap
}

// Floor returns the retention floor.
func (m *Merger) Floor() int {
	return m.floor
}
