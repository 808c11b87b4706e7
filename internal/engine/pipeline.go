package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jwolabs/vaultwatch/internal/observ"
)

// PipelineConfig carries the tunables the per-event flow needs.
type PipelineConfig struct {
	ConfluenceThreshold int
	ThemeThreshold      int
	ThemeAlertsEnabled  bool
	// MinTradeValueUSD drops events whose USD value is known and below
	// this floor; zero disables the filter.
	MinTradeValueUSD decimal.Decimal
}

// Pipeline routes change events through the cooldown gate and the
// instrument and theme confluence detectors, and emits alerts to the
// sink. Snapshot diffing and baseline bookkeeping happen upstream; the
// pipeline only ever sees events that already cleared the noise
// threshold.
type Pipeline struct {
	cfg        PipelineConfig
	cooldown   *CooldownTracker
	categories *CategoryTable
	instrument *Detector[ChangeEvent]
	theme      *Detector[ThemeEvent]
	sink       AlertSink
	log        *logrus.Entry
}

func NewPipeline(
	cfg PipelineConfig,
	cooldown *CooldownTracker,
	categories *CategoryTable,
	instrumentWindow *Window[ChangeEvent],
	themeWindow *Window[ThemeEvent],
	sink AlertSink,
) *Pipeline {
	if sink == nil {
		sink = NopSink{}
	}
	return &Pipeline{
		cfg:        cfg,
		cooldown:   cooldown,
		categories: categories,
		instrument: NewDetector(instrumentWindow, cfg.ConfluenceThreshold),
		theme:      NewDetector(themeWindow, cfg.ThemeThreshold),
		sink:       sink,
		log:        logrus.WithField("component", "pipeline"),
	}
}

// Dispatch runs each change event through the alert path. Events on
// cooldown are dropped outright: they are not buffered and do not
// enter the windows, only the caller's snapshot bookkeeping sees them.
func (p *Pipeline) Dispatch(events []ChangeEvent) {
	for _, ev := range events {
		p.dispatchOne(ev)
	}
}

func (p *Pipeline) dispatchOne(ev ChangeEvent) {
	observ.IncCounter("change_events_total", map[string]string{"kind": string(ev.Kind())})

	if p.belowValueFloor(ev) {
		observ.IncCounter("events_below_value_floor_total", nil)
		return
	}

	if p.cooldown.OnCooldown(ev.EntityID, ev.Symbol, ev.Timestamp) {
		observ.IncCounter("cooldown_suppressed_total", nil)
		p.log.WithFields(logrus.Fields{
			"entity": ev.EntityName,
			"symbol": ev.Symbol,
		}).Debug("change event suppressed by cooldown")
		return
	}

	p.checkInstrument(ev)
	p.checkTheme(ev)
}

func (p *Pipeline) belowValueFloor(ev ChangeEvent) bool {
	if p.cfg.MinTradeValueUSD.IsZero() {
		return false
	}
	value := ev.NewValueUSD
	if value.IsZero() {
		value = ev.OldValueUSD
	}
	if value.IsZero() {
		// Unknown value: let it through rather than silently dropping.
		return false
	}
	return value.LessThan(p.cfg.MinTradeValueUSD)
}

func (p *Pipeline) checkInstrument(ev ChangeEvent) {
	group, ok := p.instrument.Evaluate(ev)
	if !ok {
		return
	}

	alert := InstrumentAlert{
		ID:             uuid.NewString(),
		Symbol:         ev.Symbol,
		Trigger:        ev,
		Events:         group,
		UniqueEntities: UniqueEntities(group),
		Window:         p.instrument.Window().Duration(),
		TotalValueUSD:  totalValue(group),
		DetectedAt:     ev.Timestamp,
	}
	p.sink.InstrumentAlert(alert)
	observ.IncCounter("alerts_total", map[string]string{"type": "instrument"})
	p.log.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"symbol":   alert.Symbol,
		"entities": alert.UniqueEntities,
	}).Info("instrument confluence alert")

	p.markGroup(groupPairs(group), ev.Timestamp)
}

func (p *Pipeline) checkTheme(ev ChangeEvent) {
	if !p.cfg.ThemeAlertsEnabled {
		return
	}
	theme, ok := p.categories.Classify(ev.Symbol)
	if !ok {
		return
	}

	tev := ThemeEvent{Theme: theme, ChangeEvent: ev}
	group, ok := p.theme.Evaluate(tev)
	if !ok {
		return
	}

	alert := ThemeAlert{
		ID:             uuid.NewString(),
		Theme:          theme,
		Emoji:          p.categories.Emoji(theme),
		Symbols:        groupSymbols(group),
		Trigger:        ev,
		Events:         group,
		UniqueEntities: UniqueEntities(group),
		Window:         p.theme.Window().Duration(),
		DetectedAt:     ev.Timestamp,
	}
	p.sink.ThemeAlert(alert)
	observ.IncCounter("alerts_total", map[string]string{"type": "theme"})
	p.log.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"theme":    alert.Theme,
		"entities": alert.UniqueEntities,
	}).Info("theme confluence alert")

	pairs := make([]entityInstrument, 0, len(group))
	for _, e := range group {
		pairs = append(pairs, entityInstrument{e.EntityID, e.Symbol})
	}
	p.markGroup(pairs, ev.Timestamp)
}

type entityInstrument struct {
	entityID string
	symbol   string
}

// markGroup puts every participant of a fired alert on cooldown, each
// under its own instrument, stamped at the trigger time.
func (p *Pipeline) markGroup(pairs []entityInstrument, at time.Time) {
	seen := make(map[entityInstrument]struct{}, len(pairs))
	for _, pair := range pairs {
		if _, dup := seen[pair]; dup {
			continue
		}
		seen[pair] = struct{}{}
		p.cooldown.Mark(pair.entityID, pair.symbol, at)
	}
}

// Forget drops all engine-side traces of a removed entity: window
// history and cooldown entries.
func (p *Pipeline) Forget(entityID string) {
	p.instrument.Window().DropEntity(entityID)
	p.theme.Window().DropEntity(entityID)
	p.cooldown.DropEntity(entityID)
}

func groupPairs(group []ChangeEvent) []entityInstrument {
	pairs := make([]entityInstrument, 0, len(group))
	for _, e := range group {
		pairs = append(pairs, entityInstrument{e.EntityID, e.Symbol})
	}
	return pairs
}

func groupSymbols(group []ThemeEvent) []string {
	set := make(map[string]struct{}, len(group))
	for _, e := range group {
		set[e.Symbol] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func totalValue(group []ChangeEvent) decimal.Decimal {
	total := decimal.Zero
	for _, e := range group {
		total = total.Add(e.NewValueUSD)
	}
	return total
}
