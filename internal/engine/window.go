package engine

import (
	"sync"
	"time"
)

// Window is a keyed, time-bounded event buffer: events are appended per
// correlation key and expire once they fall outside the window
// duration. A single mutex covers the whole store so correlation
// queries always see a consistent cross-entity view.
type Window[E Event] struct {
	mu       sync.Mutex
	duration time.Duration
	events   map[string][]E
}

func NewWindow[E Event](duration time.Duration) *Window[E] {
	return &Window[E]{
		duration: duration,
		events:   make(map[string][]E),
	}
}

func (w *Window[E]) Duration() time.Duration { return w.duration }

func (w *Window[E]) Add(ev E) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := ev.Key()
	w.events[key] = append(w.events[key], ev)
}

// Query prunes the key's bucket to the current window and returns a
// copy of what remains. Events exactly at the window edge
// (timestamp == now - duration) are expired.
func (w *Window[E]) Query(key string, now time.Time) []E {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.pruneLocked(key, now)
	out := make([]E, len(kept))
	copy(out, kept)
	return out
}

// Prune drops expired events for one key without reading it back.
func (w *Window[E]) Prune(key string, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(key, now)
}

func (w *Window[E]) pruneLocked(key string, now time.Time) []E {
	bucket := w.events[key]
	if len(bucket) == 0 {
		return nil
	}
	cutoff := now.Add(-w.duration)
	kept := bucket[:0]
	for _, ev := range bucket {
		if ev.At().After(cutoff) {
			kept = append(kept, ev)
		}
	}
	if len(kept) == 0 {
		delete(w.events, key)
		return nil
	}
	w.events[key] = kept
	return kept
}

// DropEntity removes every event belonging to an entity across all
// keys; called when an entity is removed from tracking.
func (w *Window[E]) DropEntity(entityID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, bucket := range w.events {
		kept := bucket[:0]
		for _, ev := range bucket {
			if ev.Entity() != entityID {
				kept = append(kept, ev)
			}
		}
		if len(kept) == 0 {
			delete(w.events, key)
		} else {
			w.events[key] = kept
		}
	}
}
