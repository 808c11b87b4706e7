package registry

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jwolabs/vaultwatch/internal/engine"
	"github.com/jwolabs/vaultwatch/internal/observ"
)

// latencyAlpha weights the rolling average fetch latency toward recent
// samples.
const latencyAlpha = 0.1

// ActiveSet returns the entities eligible for polling this cycle.
// Inactive entities whose cool-off has elapsed are reactivated here,
// with failure counts reset, so the next cycle re-probes them.
func (r *Registry) ActiveSet(now time.Time) []Entity {
	r.mu.Lock()
	reactivated := false
	out := make([]Entity, 0, len(r.entities))
	for _, ent := range r.entities {
		if !ent.Active {
			// Entities that never succeeded anchor the cool-off to
			// the deactivation instead, so a dead address cannot flap
			// back every cycle on a zero last-success time.
			anchor := ent.LastSuccess
			if anchor.IsZero() {
				anchor = ent.DeactivatedAt
			}
			if now.Sub(anchor) > r.cfg.ReactivateAfter {
				ent.Active = true
				ent.ConsecutiveFailures = 0
				reactivated = true
				r.log.WithField("entity", ent.Name).Info("entity reactivated after cool-off")
				observ.IncCounter("entity_reactivations_total", nil)
			}
		}
		if ent.Active {
			out = append(out, *ent)
		}
	}
	r.mu.Unlock()

	if reactivated {
		r.mutated()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RecordSuccess clears the failure count and folds the fetch latency
// into the rolling average.
func (r *Registry) RecordSuccess(address string, latency time.Duration, now time.Time) {
	r.mu.Lock()
	ent, ok := r.entities[address]
	if !ok {
		r.mu.Unlock()
		return
	}
	ent.ConsecutiveFailures = 0
	ent.LastSuccess = now
	if ent.AvgLatency == 0 {
		ent.AvgLatency = latency
	} else {
		ent.AvgLatency = time.Duration(float64(ent.AvgLatency)*(1-latencyAlpha) + float64(latency)*latencyAlpha)
	}
	r.mu.Unlock()

	observ.SetGauge("entity_fetch_latency_ms", map[string]string{"entity": address}, float64(latency.Milliseconds()))
	r.mutated()
}

// RecordFailure bumps the failure count and deactivates the entity once
// it crosses the configured threshold. Returns true on the transition
// to inactive.
func (r *Registry) RecordFailure(address string, now time.Time) bool {
	r.mu.Lock()
	ent, ok := r.entities[address]
	if !ok {
		r.mu.Unlock()
		return false
	}
	ent.ConsecutiveFailures++
	deactivated := false
	if ent.Active && ent.ConsecutiveFailures >= r.cfg.DeactivateAfterFailures {
		ent.Active = false
		ent.DeactivatedAt = now
		deactivated = true
	}
	name := ent.Name
	failures := ent.ConsecutiveFailures
	r.mu.Unlock()

	observ.IncCounter("entity_fetch_failures_total", nil)
	if deactivated {
		r.log.WithFields(logrus.Fields{
			"entity":   name,
			"failures": failures,
		}).Warn("entity deactivated after consecutive failures")
		observ.IncCounter("entity_deactivations_total", nil)
	}
	r.mutated()
	return deactivated
}

// Snapshot returns the stored previous snapshot and whether a baseline
// has been established for the entity. The map is a copy.
func (r *Registry) Snapshot(address string) (map[string]engine.Holding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[address]
	if !ok || !ent.BaselineEstablished {
		return nil, false
	}
	return copySnapshot(r.snapshots[address]), true
}

// SetBaseline stores the first successful snapshot without diffing.
// Pre-existing holdings observed here never generate events.
func (r *Registry) SetBaseline(address string, snap map[string]engine.Holding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entities[address]
	if !ok {
		return
	}
	ent.BaselineEstablished = true
	r.snapshots[address] = copySnapshot(snap)
	r.log.WithFields(logrus.Fields{
		"entity":   ent.Name,
		"holdings": len(snap),
	}).Info("baseline established")
}

// UpdateSnapshot replaces the stored snapshot after diffing.
func (r *Registry) UpdateSnapshot(address string, snap map[string]engine.Holding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[address]; !ok {
		return
	}
	r.snapshots[address] = copySnapshot(snap)
}

// SetAccountValue records the entity's total account value when the
// venue reports one.
func (r *Registry) SetAccountValue(address string, value decimal.Decimal, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ent, ok := r.entities[address]; ok {
		ent.AccountValue = value
		ent.AccountValueAt = at
	}
}

func copySnapshot(snap map[string]engine.Holding) map[string]engine.Holding {
	out := make(map[string]engine.Holding, len(snap))
	for sym, h := range snap {
		out[sym] = h
	}
	return out
}
