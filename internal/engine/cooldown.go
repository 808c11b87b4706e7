package engine

import (
	"sync"
	"time"
)

type cooldownKey struct {
	entityID string
	symbol   string
}

// CooldownTracker suppresses repeat alerts per (entity, instrument)
// pair for a fixed duration after an alert fires. Timestamps are passed
// in explicitly so callers and tests control the clock.
type CooldownTracker struct {
	mu        sync.Mutex
	duration  time.Duration
	lastAlert map[cooldownKey]time.Time
}

func NewCooldownTracker(duration time.Duration) *CooldownTracker {
	return &CooldownTracker{
		duration:  duration,
		lastAlert: make(map[cooldownKey]time.Time),
	}
}

func (c *CooldownTracker) OnCooldown(entityID, symbol string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastAlert[cooldownKey{entityID, symbol}]
	if !ok {
		return false
	}
	return now.Before(last.Add(c.duration))
}

// Mark records an alert for the pair. Called for every entity that
// participated in a firing alert, not only the trigger entity, so the
// same group cannot re-alert on the next small move.
func (c *CooldownTracker) Mark(entityID, symbol string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAlert[cooldownKey{entityID, symbol}] = now
}

// DropEntity forgets all cooldown entries for a removed entity.
func (c *CooldownTracker) DropEntity(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.lastAlert {
		if key.entityID == entityID {
			delete(c.lastAlert, key)
		}
	}
}
