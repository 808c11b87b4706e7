package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentAlert is a cross-entity confluence on a single instrument.
type InstrumentAlert struct {
	ID             string
	Symbol         string
	Trigger        ChangeEvent
	Events         []ChangeEvent
	UniqueEntities int
	Window         time.Duration
	TotalValueUSD  decimal.Decimal
	DetectedAt     time.Time
}

// ThemeAlert is a cross-entity confluence on a theme category,
// potentially spanning several instruments.
type ThemeAlert struct {
	ID             string
	Theme          string
	Emoji          string
	Symbols        []string
	Trigger        ChangeEvent
	Events         []ThemeEvent
	UniqueEntities int
	Window         time.Duration
	DetectedAt     time.Time
}

// AlertSink receives finished alerts. Implementations must not block
// the caller; delivery is the sink's problem.
type AlertSink interface {
	InstrumentAlert(a InstrumentAlert)
	ThemeAlert(a ThemeAlert)
}

// NopSink discards alerts; useful when no notifier is configured.
type NopSink struct{}

func (NopSink) InstrumentAlert(InstrumentAlert) {}
func (NopSink) ThemeAlert(ThemeAlert)           {}
