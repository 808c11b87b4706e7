package engine

import (
	"testing"
	"time"
)

func changeAt(entity, symbol string, at time.Time) ChangeEvent {
	return ChangeEvent{EntityID: entity, EntityName: entity, Symbol: symbol, Timestamp: at}
}

func TestWindowExpiry(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow[ChangeEvent](10 * time.Minute)

	w.Add(changeAt("a", "BTC", t0))
	w.Add(changeAt("b", "BTC", t0.Add(5*time.Minute)))

	if got := len(w.Query("BTC", t0.Add(9*time.Minute))); got != 2 {
		t.Fatalf("at t+9m: %d events, want 2", got)
	}
	// The first event sits exactly at the edge at t+10m and expires.
	if got := len(w.Query("BTC", t0.Add(10*time.Minute))); got != 1 {
		t.Fatalf("at t+10m: %d events, want 1", got)
	}
	if got := len(w.Query("BTC", t0.Add(16*time.Minute))); got != 0 {
		t.Fatalf("at t+16m: %d events, want 0", got)
	}
}

func TestWindowQueryIsIdempotent(t *testing.T) {
	t0 := time.Now()
	w := NewWindow[ChangeEvent](10 * time.Minute)
	w.Add(changeAt("a", "BTC", t0))

	now := t0.Add(time.Minute)
	first := w.Query("BTC", now)
	second := w.Query("BTC", now)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("repeated query changed result: %d then %d", len(first), len(second))
	}
}

func TestWindowKeysAreIndependent(t *testing.T) {
	t0 := time.Now()
	w := NewWindow[ChangeEvent](10 * time.Minute)
	w.Add(changeAt("a", "BTC", t0))
	w.Add(changeAt("a", "ETH", t0))

	if got := len(w.Query("BTC", t0)); got != 1 {
		t.Fatalf("BTC bucket: %d events, want 1", got)
	}
	if got := len(w.Query("DOGE", t0)); got != 0 {
		t.Fatalf("DOGE bucket: %d events, want 0", got)
	}
}

func TestWindowQueryReturnsCopy(t *testing.T) {
	t0 := time.Now()
	w := NewWindow[ChangeEvent](10 * time.Minute)
	w.Add(changeAt("a", "BTC", t0))

	got := w.Query("BTC", t0)
	got[0].EntityID = "mutated"
	if again := w.Query("BTC", t0); again[0].EntityID != "a" {
		t.Fatal("caller mutation leaked into the window")
	}
}

func TestWindowDropEntity(t *testing.T) {
	t0 := time.Now()
	w := NewWindow[ChangeEvent](10 * time.Minute)
	w.Add(changeAt("a", "BTC", t0))
	w.Add(changeAt("b", "BTC", t0))
	w.Add(changeAt("a", "ETH", t0))

	w.DropEntity("a")

	btc := w.Query("BTC", t0)
	if len(btc) != 1 || btc[0].EntityID != "b" {
		t.Fatalf("BTC after drop: %+v, want only entity b", btc)
	}
	if got := len(w.Query("ETH", t0)); got != 0 {
		t.Fatalf("ETH after drop: %d events, want 0", got)
	}
}
