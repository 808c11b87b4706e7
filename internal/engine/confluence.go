package engine

import (
	"sync"
)

// Detector decides whether a new event completes a cross-entity
// confluence for its correlation key. One instance correlates raw
// instrument events, another correlates theme events; both share this
// implementation.
type Detector[E Event] struct {
	mu        sync.Mutex
	window    *Window[E]
	threshold int
}

func NewDetector[E Event](window *Window[E], threshold int) *Detector[E] {
	return &Detector[E]{window: window, threshold: threshold}
}

func (d *Detector[E]) Threshold() int { return d.threshold }

func (d *Detector[E]) Window() *Window[E] { return d.window }

// Evaluate runs the two-phase confluence check for one event and
// returns the full alert group when the unique-entity threshold is met.
//
// The ordering is deliberate: count distinct entities in the window
// BEFORE inserting the event, add one only if this entity is not
// already represented, insert, and only then re-read the window for
// the returned group. This keeps the triggering event in the group
// exactly once and stops an entity that repeats the same trade from
// inflating the count. The mutex keeps the whole sequence from
// interleaving with another Evaluate on the same store.
func (d *Detector[E]) Evaluate(ev E) ([]E, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := ev.At()
	existing := d.window.Query(ev.Key(), now)

	entities := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		entities[e.Entity()] = struct{}{}
	}
	projected := len(entities)
	if _, counted := entities[ev.Entity()]; !counted {
		projected++
	}

	d.window.Add(ev)

	if projected < d.threshold {
		return nil, false
	}
	return d.window.Query(ev.Key(), now), true
}

// UniqueEntities counts distinct entities in an event group.
func UniqueEntities[E Event](events []E) int {
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		seen[ev.Entity()] = struct{}{}
	}
	return len(seen)
}
