package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func holding(sym, size, value string) Holding {
	return Holding{Symbol: sym, Size: dec(size), ValueUSD: dec(value)}
}

func TestDiffClassifiesChanges(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := map[string]Holding{
		"BTC": holding("BTC", "2.0", "120000"),
		"ETH": holding("ETH", "10", "30000"),
		"SOL": holding("SOL", "100", "15000"),
	}
	cur := map[string]Holding{
		"BTC": holding("BTC", "3.5", "210000"), // increase
		"SOL": holding("SOL", "40", "6000"),    // decrease
		"ARB": holding("ARB", "5000", "4000"),  // open
		// ETH absent -> close
	}

	events := Diff("0xabc", "fund-a", prev, cur, dec("0.1"), at)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	kinds := make(map[string]ChangeKind, len(events))
	for _, ev := range events {
		kinds[ev.Symbol] = ev.Kind()
		if !ev.Timestamp.Equal(at) {
			t.Errorf("%s: timestamp %v, want %v", ev.Symbol, ev.Timestamp, at)
		}
		if ev.EntityID != "0xabc" || ev.EntityName != "fund-a" {
			t.Errorf("%s: entity fields not propagated", ev.Symbol)
		}
	}

	want := map[string]ChangeKind{
		"BTC": ChangeIncrease,
		"SOL": ChangeDecrease,
		"ARB": ChangeOpen,
		"ETH": ChangeClose,
	}
	for sym, kind := range want {
		if kinds[sym] != kind {
			t.Errorf("%s: kind %s, want %s", sym, kinds[sym], kind)
		}
	}
}

func TestDiffNoiseThreshold(t *testing.T) {
	at := time.Now()
	noise := dec("0.1")

	cases := []struct {
		name string
		old  string
		new  string
		emit bool
	}{
		{"below threshold", "10.0", "10.05", false},
		{"exactly threshold", "10.0", "10.1", false},
		{"just above", "10.0", "10.11", true},
		{"unchanged", "10.0", "10.0", false},
		{"negative direction", "10.0", "9.8", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prev := map[string]Holding{"BTC": holding("BTC", tc.old, "0")}
			cur := map[string]Holding{"BTC": holding("BTC", tc.new, "0")}
			events := Diff("0xabc", "fund-a", prev, cur, noise, at)
			if got := len(events) == 1; got != tc.emit {
				t.Fatalf("emit=%v, want %v", got, tc.emit)
			}
		})
	}
}

func TestDiffCloseEmitsOldValue(t *testing.T) {
	prev := map[string]Holding{"ETH": holding("ETH", "10", "30000")}
	events := Diff("0xabc", "fund-a", prev, nil, dec("0.1"), time.Now())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind() != ChangeClose {
		t.Fatalf("kind %s, want CLOSE", ev.Kind())
	}
	if !ev.NewSize.IsZero() || !ev.NewValueUSD.IsZero() {
		t.Errorf("close event should have zero new size/value")
	}
	if !ev.OldValueUSD.Equal(dec("30000")) {
		t.Errorf("old value %s, want 30000", ev.OldValueUSD)
	}
}

func TestDiffDoesNotMutateInputs(t *testing.T) {
	prev := map[string]Holding{"BTC": holding("BTC", "1", "60000")}
	cur := map[string]Holding{"ETH": holding("ETH", "5", "15000")}
	Diff("0xabc", "fund-a", prev, cur, dec("0.1"), time.Now())
	if len(prev) != 1 || len(cur) != 1 {
		t.Fatalf("input snapshots mutated: prev=%d cur=%d", len(prev), len(cur))
	}
}

func TestMagnitude(t *testing.T) {
	ev := ChangeEvent{OldSize: dec("10"), NewSize: dec("4")}
	if !ev.Magnitude().Equal(dec("6")) {
		t.Fatalf("magnitude %s, want 6", ev.Magnitude())
	}
}
