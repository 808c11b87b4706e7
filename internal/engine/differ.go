package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Diff compares two holdings snapshots for one entity and returns the
// position changes whose magnitude exceeds the noise threshold.
//
// It walks the union of symbols with absent positions defaulting to
// size zero, so full closes (present -> absent) and fresh opens
// (absent -> present) fall out of the same comparison. Pure function:
// neither snapshot is mutated.
func Diff(entityID, entityName string, previous, current map[string]Holding, noise decimal.Decimal, at time.Time) []ChangeEvent {
	var events []ChangeEvent

	seen := make(map[string]struct{}, len(previous)+len(current))
	for sym := range previous {
		seen[sym] = struct{}{}
	}
	for sym := range current {
		seen[sym] = struct{}{}
	}

	for sym := range seen {
		old := previous[sym]
		cur := current[sym]

		if cur.Size.Sub(old.Size).Abs().LessThanOrEqual(noise) {
			continue
		}

		events = append(events, ChangeEvent{
			EntityID:    entityID,
			EntityName:  entityName,
			Symbol:      sym,
			OldSize:     old.Size,
			NewSize:     cur.Size,
			OldValueUSD: old.ValueUSD,
			NewValueUSD: cur.ValueUSD,
			Timestamp:   at,
		})
	}
	return events
}
