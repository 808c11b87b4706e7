package alerts

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jwolabs/vaultwatch/internal/engine"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func event(entity, symbol string, at time.Time, oldSize, newSize, newValue string) engine.ChangeEvent {
	return engine.ChangeEvent{
		EntityID:    entity,
		EntityName:  entity,
		Symbol:      symbol,
		OldSize:     dec(oldSize),
		NewSize:     dec(newSize),
		NewValueUSD: dec(newValue),
		Timestamp:   at,
	}
}

func TestFormatInstrumentAlert(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := event("Fund A", "BTC", t0, "0", "2.5", "155000")
	second := event("Fund B", "BTC", t0.Add(3*time.Minute), "1", "4", "248000")

	text := formatInstrumentAlert(engine.InstrumentAlert{
		Symbol:         "BTC",
		Trigger:        second,
		Events:         []engine.ChangeEvent{first, second},
		UniqueEntities: 2,
		Window:         10 * time.Minute,
		TotalValueUSD:  dec("403000"),
		DetectedAt:     second.Timestamp,
	})

	assert.Contains(t, text, "CONFLUENCE: BTC")
	assert.Contains(t, text, "2 entities")
	assert.Contains(t, text, "10m")
	assert.Contains(t, text, "Fund A")
	assert.Contains(t, text, "Fund B")
	assert.Contains(t, text, "$403.00K")
	assert.Contains(t, text, "OPEN")
	assert.Contains(t, text, "INCREASE")

	// Newest participant listed first.
	assert.Less(t, strings.Index(text, "Fund B"), strings.Index(text, "Fund A"))
}

func TestFormatInstrumentAlertIncludesTVL(t *testing.T) {
	t0 := time.Now()
	ev := event("Fund A", "BTC", t0, "0", "2.5", "155000")
	ev.AccountValue = dec("2500000")

	text := formatInstrumentAlert(engine.InstrumentAlert{
		Symbol:         "BTC",
		Trigger:        ev,
		Events:         []engine.ChangeEvent{ev},
		UniqueEntities: 1,
		Window:         10 * time.Minute,
	})
	assert.Contains(t, text, "[TVL $2.50M]")
}

func TestFormatThemeAlert(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []engine.ThemeEvent{
		{Theme: "AI", ChangeEvent: event("Fund A", "RNDR", t0, "0", "1000", "5000")},
		{Theme: "AI", ChangeEvent: event("Fund B", "FET", t0.Add(5*time.Minute), "0", "2000", "3000")},
	}

	text := formatThemeAlert(engine.ThemeAlert{
		Theme:          "AI",
		Emoji:          "🤖",
		Symbols:        []string{"FET", "RNDR"},
		Trigger:        events[1].ChangeEvent,
		Events:         events,
		UniqueEntities: 2,
		Window:         15 * time.Minute,
	})

	assert.Contains(t, text, "🤖")
	assert.Contains(t, text, "THEME CONFLUENCE: AI")
	assert.Contains(t, text, "FET, RNDR")
	assert.Contains(t, text, "15m")
	assert.Contains(t, text, "Fund A")
	assert.Contains(t, text, "Fund B")
}

func TestFormatAlertEscapesHTML(t *testing.T) {
	t0 := time.Now()
	ev := event("<b>sneaky</b>", "BTC", t0, "0", "1", "100")

	text := formatInstrumentAlert(engine.InstrumentAlert{
		Symbol:         "BTC",
		Trigger:        ev,
		Events:         []engine.ChangeEvent{ev},
		UniqueEntities: 1,
		Window:         10 * time.Minute,
	})
	assert.NotContains(t, text, "<b>sneaky</b>")
	assert.Contains(t, text, "&lt;b&gt;sneaky&lt;/b&gt;")
}

func TestFormatUSD(t *testing.T) {
	cases := map[string]string{
		"950":        "$950.00",
		"1500":       "$1.50K",
		"403000":     "$403.00K",
		"1234567":    "$1.23M",
		"2500000000": "$2.50B",
	}
	for in, want := range cases {
		if got := formatUSD(dec(in)); got != want {
			t.Errorf("formatUSD(%s) = %s, want %s", in, got, want)
		}
	}
}
