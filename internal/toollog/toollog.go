// Package toollog keeps the recent history of structured profile updates
// received from the voice agent.
package toollog

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/riata-onboarding/internal/clock"
)

// DefaultCapacity is how many events are retained.
const DefaultCapacity = 100

// RecentLimit is how many events the dashboard shows.
const RecentLimit = 5

// Event is one immutable tool invocation.
type Event struct {
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// Keys returns the field names carried by the event, sorted.
func (e Event) Keys() []string {
	return slices.Sorted(maps.Keys(e.Fields))
}

// Summary renders the event the way the recent-updates list shows it.
func (e Event) Summary() string {
	return strings.Join(e.Keys(), ", ") + " updated"
}

// Log is a bounded, append-only history. Events beyond the capacity are
// discarded oldest first; Total still counts them.
type Log struct {
	mu          sync.RWMutex
	clock       clock.Clock
	events      *ring[Event]
	total       int64
	fieldsTotal int64
}

// New returns a log retaining up to capacity events.
func New(c clock.Clock, capacity int) *Log {
	if c == nil {
		c = clock.Real()
	}
	return &Log{
		clock:  c,
		events: newRing[Event](capacity),
	}
}

// Record appends an event for fields. The map is copied.
func (l *Log) Record(fields map[string]any) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	l.fieldsTotal += int64(len(fields))
	e := Event{
		Seq:       l.total,
		Timestamp: l.clock.Now(),
		Fields:    maps.Clone(fields),
	}
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	l.events.push(e)
	return e
}

// Recent returns the last n events, most recent first.
func (l *Log) Recent(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events.newest(n)
}

// Total returns how many events were ever recorded.
func (l *Log) Total() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// FieldsTotal returns the number of keys across every recorded event.
func (l *Log) FieldsTotal() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fieldsTotal
}

// Reset clears the history and counters.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events.reset()
	l.total = 0
	l.fieldsTotal = 0
}
