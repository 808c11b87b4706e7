package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry is an in-process metrics store. It is not a Prometheus
// endpoint on purpose: the Handler dump exists for quick operator
// checks, nothing scrapes it.
type Registry struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
}

func NewRegistry() *Registry {
	return &Registry{
		counters: map[string]int64{},
		gauges:   map[string]float64{},
	}
}

var def = NewRegistry()

// series builds a stable key from a metric name and its labels.
func series(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	b.WriteString("}")
	return b.String()
}

func (r *Registry) IncCounter(name string, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[series(name, labels)]++
}

func (r *Registry) AddCounter(name string, labels map[string]string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[series(name, labels)] += n
}

func (r *Registry) SetGauge(name string, labels map[string]string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[series(name, labels)] = v
}

// ObserveDuration stores the latest duration in milliseconds as a gauge.
func (r *Registry) ObserveDuration(name string, labels map[string]string, d time.Duration) {
	r.SetGauge(name+"_ms", labels, float64(d.Milliseconds()))
}

// Counter reads a counter back; used by tests.
func (r *Registry) Counter(name string, labels map[string]string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[series(name, labels)]
}

// Handler serves a JSON dump of all series.
func (r *Registry) Handler() http.Handler {
	type dump struct {
		Counters map[string]int64   `json:"counters"`
		Gauges   map[string]float64 `json:"gauges"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: r.counters, Gauges: r.gauges})
	})
}

// Package-level helpers against the default registry.

func IncCounter(name string, labels map[string]string) { def.IncCounter(name, labels) }

func AddCounter(name string, labels map[string]string, n int64) { def.AddCounter(name, labels, n) }

func SetGauge(name string, labels map[string]string, v float64) { def.SetGauge(name, labels, v) }

func ObserveDuration(name string, labels map[string]string, d time.Duration) {
	def.ObserveDuration(name, labels, d)
}

func Counter(name string, labels map[string]string) int64 { return def.Counter(name, labels) }

func Handler() http.Handler { return def.Handler() }
