package engine

import (
	"testing"
	"time"
)

func TestCooldownSuppressesWithinDuration(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCooldownTracker(5 * time.Minute)

	if c.OnCooldown("a", "BTC", t0) {
		t.Fatal("unmarked pair should not be on cooldown")
	}

	c.Mark("a", "BTC", t0)
	if !c.OnCooldown("a", "BTC", t0.Add(4*time.Minute)) {
		t.Fatal("pair should be on cooldown inside the duration")
	}
	if c.OnCooldown("a", "BTC", t0.Add(5*time.Minute)) {
		t.Fatal("cooldown should lapse exactly at the duration")
	}
}

func TestCooldownIsPerEntityPerSymbol(t *testing.T) {
	t0 := time.Now()
	c := NewCooldownTracker(5 * time.Minute)
	c.Mark("a", "BTC", t0)

	if c.OnCooldown("a", "ETH", t0) {
		t.Fatal("other symbol for the same entity must not be suppressed")
	}
	if c.OnCooldown("b", "BTC", t0) {
		t.Fatal("other entity for the same symbol must not be suppressed")
	}
}

func TestCooldownDropEntity(t *testing.T) {
	t0 := time.Now()
	c := NewCooldownTracker(5 * time.Minute)
	c.Mark("a", "BTC", t0)
	c.Mark("a", "ETH", t0)
	c.Mark("b", "BTC", t0)

	c.DropEntity("a")

	if c.OnCooldown("a", "BTC", t0) || c.OnCooldown("a", "ETH", t0) {
		t.Fatal("dropped entity retained cooldown entries")
	}
	if !c.OnCooldown("b", "BTC", t0) {
		t.Fatal("unrelated entity lost its cooldown entry")
	}
}
