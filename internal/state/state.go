package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jwolabs/vaultwatch/internal/observ"
)

const currentVersion = 1

// PersistedEntity is the durable subset of an entity. Snapshots and the
// baseline flag are intentionally not saved: a restarted process has no
// previous positions to diff against, so it must re-baseline.
type PersistedEntity struct {
	Address             string    `json:"address"`
	Name                string    `json:"name"`
	Active              bool      `json:"active"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
}

// Settings records the detection tunables in effect when the state was
// saved, for operator inspection only.
type Settings struct {
	ConfluenceThreshold  int  `json:"confluence_threshold"`
	ConfluenceWindowMins int  `json:"confluence_window_mins"`
	ThemeAlertsEnabled   bool `json:"theme_alerts_enabled"`
	CooldownMins         int  `json:"cooldown_mins"`
}

type State struct {
	Version  int               `json:"version"`
	SavedAt  time.Time         `json:"saved_at"`
	Entities []PersistedEntity `json:"entities"`
	Settings Settings          `json:"settings"`
}

// Store persists state to a JSON file with write-rename atomicity and a
// one-deep backup. Saves are rate limited; mutations between allowed
// saves set a dirty flag that a background flush picks up, and Close
// always writes a final copy.
type Store struct {
	mu      sync.Mutex
	path    string
	limiter *rate.Limiter
	collect func() State
	dirty   bool
	log     *logrus.Entry

	stop chan struct{}
	done chan struct{}
}

func NewStore(path string, minSaveInterval time.Duration, collect func() State) *Store {
	if minSaveInterval <= 0 {
		minSaveInterval = time.Second
	}
	return &Store{
		path:    path,
		limiter: rate.NewLimiter(rate.Every(minSaveInterval), 1),
		collect: collect,
		log:     logrus.WithField("component", "state"),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *Store) backupPath() string { return s.path + ".backup" }

// Load reads persisted state, falling back to the backup file when the
// primary is missing or corrupt. ok is false when neither file yields a
// usable state, which is the normal first-run case.
func (s *Store) Load() (State, bool) {
	for _, path := range []string{s.path, s.backupPath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				s.log.WithError(err).WithField("path", path).Warn("state file unreadable")
			}
			continue
		}
		var st State
		if err := json.Unmarshal(data, &st); err != nil {
			s.log.WithError(err).WithField("path", path).Warn("state file corrupt")
			continue
		}
		if st.Version > currentVersion {
			s.log.WithField("version", st.Version).Warn("state written by newer version, ignoring")
			continue
		}
		s.log.WithFields(logrus.Fields{
			"path":     path,
			"entities": len(st.Entities),
		}).Info("state loaded")
		return st, true
	}
	return State{}, false
}

// MarkDirty requests a save. If the rate limit allows, the save happens
// inline; otherwise it is deferred to the flush loop.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	if s.limiter.Allow() {
		s.saveLocked()
		s.mu.Unlock()
		return
	}
	s.dirty = true
	s.mu.Unlock()
}

// Run flushes deferred saves until the context is cancelled, then
// writes one final unconditional save.
func (s *Store) Run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.saveLocked()
			s.mu.Unlock()
			return
		case <-s.stop:
			s.mu.Lock()
			s.saveLocked()
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.dirty && s.limiter.Allow() {
				s.saveLocked()
			}
			s.mu.Unlock()
		}
	}
}

// Close stops the flush loop and waits for the final save.
func (s *Store) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

func (s *Store) saveLocked() {
	st := s.collect()
	st.Version = currentVersion
	st.SavedAt = time.Now().UTC()

	if err := s.write(st); err != nil {
		s.log.WithError(err).Error("state save failed")
		observ.IncCounter("state_save_errors_total", nil)
		s.dirty = true
		return
	}
	s.dirty = false
	observ.IncCounter("state_saves_total", nil)
}

// write serializes to a temp file in the target directory, rotates the
// live file to .backup, then renames the temp file into place. A crash
// at any point leaves either the old or the new state readable.
func (s *Store) write(st State) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.backupPath()); err != nil {
			s.log.WithError(err).Warn("state backup rotation failed")
		}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
