package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is one instrument position for one entity at one observation
// instant. Values the venue did not report stay at decimal zero.
type Holding struct {
	Symbol     string
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	ValueUSD   decimal.Decimal
	ObservedAt time.Time
}

// ChangeKind classifies a position change by its old/new sizes.
type ChangeKind string

const (
	ChangeOpen     ChangeKind = "OPEN"
	ChangeClose    ChangeKind = "CLOSE"
	ChangeIncrease ChangeKind = "INCREASE"
	ChangeDecrease ChangeKind = "DECREASE"
)

// ChangeEvent is the unit the correlation engine reasons about: one
// entity's position in one instrument moved past the noise threshold.
type ChangeEvent struct {
	EntityID    string
	EntityName  string
	Symbol      string
	OldSize     decimal.Decimal
	NewSize     decimal.Decimal
	OldValueUSD decimal.Decimal
	NewValueUSD decimal.Decimal
	// AccountValue is the entity's total account value (TVL) at
	// observation time, zero when the venue did not report one.
	AccountValue decimal.Decimal
	Timestamp    time.Time
}

func (e ChangeEvent) Magnitude() decimal.Decimal {
	return e.NewSize.Sub(e.OldSize).Abs()
}

func (e ChangeEvent) Kind() ChangeKind {
	switch {
	case e.OldSize.IsZero():
		return ChangeOpen
	case e.NewSize.IsZero():
		return ChangeClose
	case e.NewSize.GreaterThan(e.OldSize):
		return ChangeIncrease
	default:
		return ChangeDecrease
	}
}

func (e ChangeEvent) Key() string    { return e.Symbol }
func (e ChangeEvent) Entity() string { return e.EntityID }
func (e ChangeEvent) At() time.Time  { return e.Timestamp }

// ThemeEvent is a ChangeEvent whose instrument resolved to a theme
// category; it correlates by theme instead of symbol.
type ThemeEvent struct {
	Theme string
	ChangeEvent
}

func (e ThemeEvent) Key() string { return e.Theme }

// Event is what the window store and confluence detector operate on;
// both ChangeEvent and ThemeEvent satisfy it.
type Event interface {
	Key() string
	Entity() string
	At() time.Time
}
