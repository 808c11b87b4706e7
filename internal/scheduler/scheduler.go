package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/jwolabs/vaultwatch/internal/engine"
	"github.com/jwolabs/vaultwatch/internal/observ"
	"github.com/jwolabs/vaultwatch/internal/registry"
	"github.com/jwolabs/vaultwatch/internal/venue"
)

// Fetcher reads an entity's current positions from the venue.
type Fetcher interface {
	Positions(ctx context.Context, address string) (venue.Snapshot, error)
}

type Config struct {
	Interval             time.Duration
	BatchSize            int
	BatchDelay           time.Duration
	MaxConcurrentFetches int64
	MaxRetries           int
	BackoffBase          time.Duration
	BackoffMax           time.Duration
	NoiseThreshold       decimal.Decimal
}

// Scheduler drives the poll cycle: it batches the active entity set,
// fetches snapshots concurrently under a semaphore, diffs them against
// the previous state, and hands change events to the pipeline. Cycle
// starts are anchored to the previous start, not the previous end, so
// slow cycles do not drift the schedule.
type Scheduler struct {
	cfg      Config
	fetcher  Fetcher
	reg      *registry.Registry
	pipeline *engine.Pipeline
	sem      *semaphore.Weighted
	log      *logrus.Entry
}

func New(cfg Config, fetcher Fetcher, reg *registry.Registry, pipeline *engine.Pipeline) *Scheduler {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Scheduler{
		cfg:      cfg,
		fetcher:  fetcher,
		reg:      reg,
		pipeline: pipeline,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentFetches),
		log:      logrus.WithField("component", "scheduler"),
	}
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		cycleStart := time.Now()
		s.runCycle(ctx, cycleStart)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		next := cycleStart.Add(s.cfg.Interval)
		wait := time.Until(next)
		if wait <= 0 {
			s.log.WithField("overrun", -wait).Warn("poll cycle overran its interval")
			observ.IncCounter("cycle_overruns_total", nil)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, cycleStart time.Time) {
	active := s.reg.ActiveSet(cycleStart)
	observ.SetGauge("active_entities", nil, float64(len(active)))
	if len(active) == 0 {
		return
	}

	for start := 0; start < len(active); start += s.cfg.BatchSize {
		if ctx.Err() != nil {
			return
		}
		end := start + s.cfg.BatchSize
		if end > len(active) {
			end = len(active)
		}
		s.runBatch(ctx, active[start:end])

		if end < len(active) && s.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.BatchDelay):
			}
		}
	}
	observ.ObserveDuration("cycle_duration", nil, time.Since(cycleStart))
	observ.IncCounter("cycles_total", nil)
}

func (s *Scheduler) runBatch(ctx context.Context, batch []registry.Entity) {
	var wg sync.WaitGroup
	for _, ent := range batch {
		// A failed acquire means the context is gone; stop launching
		// but still wait for workers already in flight.
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(ent registry.Entity) {
			defer wg.Done()
			defer s.sem.Release(1)
			s.pollEntity(ctx, ent)
		}(ent)
	}
	wg.Wait()
}

// pollEntity fetches one entity with retries. A failure is recorded
// only after all attempts are exhausted; one flaky entity never
// affects the rest of its batch.
func (s *Scheduler) pollEntity(ctx context.Context, ent registry.Entity) {
	started := time.Now()
	snap, err := s.fetchWithRetry(ctx, ent.Address)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.WithError(err).WithField("entity", ent.Name).Warn("poll failed")
		s.reg.RecordFailure(ent.Address, time.Now())
		return
	}

	s.reg.RecordSuccess(ent.Address, time.Since(started), snap.FetchedAt)
	if snap.HasAccountValue {
		s.reg.SetAccountValue(ent.Address, snap.AccountValue, snap.FetchedAt)
	}

	previous, baselined := s.reg.Snapshot(ent.Address)
	if !baselined {
		s.reg.SetBaseline(ent.Address, snap.Holdings)
		observ.IncCounter("baselines_established_total", nil)
		return
	}

	events := engine.Diff(ent.Address, ent.Name, previous, snap.Holdings, s.cfg.NoiseThreshold, snap.FetchedAt)
	if snap.HasAccountValue {
		for i := range events {
			events[i].AccountValue = snap.AccountValue
		}
	}
	s.reg.UpdateSnapshot(ent.Address, snap.Holdings)
	if len(events) > 0 {
		s.pipeline.Dispatch(events)
	}
}

func (s *Scheduler) fetchWithRetry(ctx context.Context, address string) (venue.Snapshot, error) {
	var lastErr error
	attempts := s.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(s.cfg.BackoffBase) * math.Pow(2, float64(attempt-1)))
			if s.cfg.BackoffMax > 0 && backoff > s.cfg.BackoffMax {
				backoff = s.cfg.BackoffMax
			}
			select {
			case <-ctx.Done():
				return venue.Snapshot{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
		snap, err := s.fetcher.Positions(ctx, address)
		if err == nil {
			return snap, nil
		}
		lastErr = err
	}
	return venue.Snapshot{}, lastErr
}
