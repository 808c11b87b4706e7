package registry

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jwolabs/vaultwatch/internal/engine"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Entity is one monitored account.
type Entity struct {
	Address             string
	Name                string
	Active              bool
	ConsecutiveFailures int
	LastSuccess         time.Time
	DeactivatedAt       time.Time
	BaselineEstablished bool
	AvgLatency          time.Duration
	AccountValue        decimal.Decimal
	AccountValueAt      time.Time
}

// Status derives the health state from the active flag and failure count.
type Status string

const (
	StatusActive             Status = "active"
	StatusActiveWithFailures Status = "active_with_failures"
	StatusInactive           Status = "inactive"
)

func (e Entity) Status() Status {
	switch {
	case !e.Active:
		return StatusInactive
	case e.ConsecutiveFailures > 0:
		return StatusActiveWithFailures
	default:
		return StatusActive
	}
}

// Seed restores an entity from persisted state. The baseline flag is
// deliberately absent: a restart loses in-memory snapshots, so every
// entity re-baselines on its first successful poll.
type Seed struct {
	Address             string
	Name                string
	Active              bool
	ConsecutiveFailures int
	LastSuccess         time.Time
}

type Config struct {
	DeactivateAfterFailures int
	ReactivateAfter         time.Duration
}

// Registry owns the tracked entity set, the per-entity previous
// snapshots, and the health state machine. Snapshot and health data are
// partitioned by entity; one lock protects the map structure.
type Registry struct {
	mu        sync.RWMutex
	cfg       Config
	entities  map[string]*Entity                   // by lowercased address
	names     map[string]string                    // lowercased name -> address
	snapshots map[string]map[string]engine.Holding // by address, only for baselined entities
	onMutate  func()
	log       *logrus.Entry
}

func New(cfg Config) *Registry {
	return &Registry{
		cfg:       cfg,
		entities:  make(map[string]*Entity),
		names:     make(map[string]string),
		snapshots: make(map[string]map[string]engine.Holding),
		log:       logrus.WithField("component", "registry"),
	}
}

// OnMutate registers a hook invoked after every mutation that should be
// persisted. Must be set before concurrent use.
func (r *Registry) OnMutate(fn func()) { r.onMutate = fn }

func (r *Registry) mutated() {
	if r.onMutate != nil {
		r.onMutate()
	}
}

// Add registers a new entity. The address must be a 0x-prefixed 40-hex
// identifier; duplicates are rejected by address and by display name.
func (r *Registry) Add(address, name string) error {
	address = strings.ToLower(strings.TrimSpace(address))
	name = strings.TrimSpace(name)
	if !addressPattern.MatchString(address) {
		return fmt.Errorf("invalid address format: %q", address)
	}
	if name == "" {
		return fmt.Errorf("entity name must not be empty")
	}

	r.mu.Lock()
	if _, exists := r.entities[address]; exists {
		r.mu.Unlock()
		return fmt.Errorf("entity %s already tracked", address)
	}
	if other, exists := r.names[strings.ToLower(name)]; exists {
		r.mu.Unlock()
		return fmt.Errorf("name %q already used by %s", name, other)
	}
	r.entities[address] = &Entity{Address: address, Name: name, Active: true}
	r.names[strings.ToLower(name)] = address
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"entity": name, "address": address}).Info("entity added")
	r.mutated()
	return nil
}

// Remove drops an entity and its snapshot. Window and cooldown history
// live in the engine; callers forward the removal there.
func (r *Registry) Remove(address string) bool {
	address = strings.ToLower(address)
	r.mu.Lock()
	ent, ok := r.entities[address]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.entities, address)
	delete(r.names, strings.ToLower(ent.Name))
	delete(r.snapshots, address)
	r.mu.Unlock()

	// The hook runs unlocked: it typically snapshots the registry for
	// persistence and must be free to re-enter it.
	r.log.WithField("entity", ent.Name).Info("entity removed")
	r.mutated()
	return true
}

func (r *Registry) Get(address string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[strings.ToLower(address)]
	if !ok {
		return Entity{}, false
	}
	return *ent, true
}

// List returns a copy of all entities sorted by name.
func (r *Registry) List() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entity, 0, len(r.entities))
	for _, ent := range r.entities {
		out = append(out, *ent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Restore merges persisted entities in, skipping invalid or duplicate
// records. Used once at startup before the scheduler runs.
func (r *Registry) Restore(seeds []Seed) {
	for _, s := range seeds {
		addr := strings.ToLower(s.Address)
		if !addressPattern.MatchString(addr) || s.Name == "" {
			r.log.WithField("address", s.Address).Warn("skipping invalid persisted entity")
			continue
		}
		r.mu.Lock()
		if _, exists := r.entities[addr]; exists {
			r.mu.Unlock()
			continue
		}
		r.entities[addr] = &Entity{
			Address:             addr,
			Name:                s.Name,
			Active:              s.Active,
			ConsecutiveFailures: s.ConsecutiveFailures,
			LastSuccess:         s.LastSuccess,
		}
		r.names[strings.ToLower(s.Name)] = addr
		r.mu.Unlock()
	}
}
