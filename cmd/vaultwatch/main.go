package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jwolabs/vaultwatch/internal/alerts"
	"github.com/jwolabs/vaultwatch/internal/config"
	"github.com/jwolabs/vaultwatch/internal/engine"
	"github.com/jwolabs/vaultwatch/internal/logging"
	"github.com/jwolabs/vaultwatch/internal/observ"
	"github.com/jwolabs/vaultwatch/internal/registry"
	"github.com/jwolabs/vaultwatch/internal/scheduler"
	"github.com/jwolabs/vaultwatch/internal/state"
	"github.com/jwolabs/vaultwatch/internal/venue"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config (defaults apply when omitted)")
	metricsAddr := flag.String("metrics-addr", "", "serve metrics JSON on this address, e.g. :9090")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.Logging); err != nil {
		logrus.WithError(err).Warn("log file unavailable, logging to console only")
	}
	log := logrus.WithField("component", "main")

	reg := registry.New(registry.Config{
		DeactivateAfterFailures: cfg.Health.DeactivateAfterFailures,
		ReactivateAfter:         cfg.Health.ReactivateAfter(),
	})

	store := state.NewStore(
		cfg.State.Path,
		time.Duration(cfg.State.MinSaveIntervalSecs)*time.Second,
		func() state.State { return collectState(reg, cfg) },
	)
	if persisted, ok := store.Load(); ok {
		seeds := make([]registry.Seed, 0, len(persisted.Entities))
		for _, pe := range persisted.Entities {
			seeds = append(seeds, registry.Seed{
				Address:             pe.Address,
				Name:                pe.Name,
				Active:              pe.Active,
				ConsecutiveFailures: pe.ConsecutiveFailures,
				LastSuccess:         pe.LastSuccess,
			})
		}
		reg.Restore(seeds)
	}
	for _, seed := range cfg.Entities {
		if err := reg.Add(seed.Address, seed.Name); err != nil {
			log.WithError(err).WithField("name", seed.Name).Debug("config entity not added")
		}
	}
	reg.OnMutate(store.MarkDirty)

	var notifier *alerts.TelegramNotifier
	var sink engine.AlertSink = engine.NopSink{}
	if cfg.Telegram.Enabled {
		notifier, err = buildNotifier(cfg.Telegram)
		if err != nil {
			log.WithError(err).Error("telegram setup failed, running without alerts")
		} else {
			sink = notifier
		}
	}

	pipeline := engine.NewPipeline(
		engine.PipelineConfig{
			ConfluenceThreshold: cfg.Detection.ConfluenceThreshold,
			ThemeThreshold:      cfg.Detection.ThemeThreshold,
			ThemeAlertsEnabled:  cfg.Detection.ThemeAlertsEnabled,
			MinTradeValueUSD:    decimal.NewFromFloat(cfg.Detection.MinTradeValueUSD),
		},
		engine.NewCooldownTracker(cfg.Detection.Cooldown()),
		engine.NewCategoryTable(),
		engine.NewWindow[engine.ChangeEvent](cfg.Detection.ConfluenceWindow()),
		engine.NewWindow[engine.ThemeEvent](cfg.Detection.ThemeWindow()),
		sink,
	)

	client := venue.NewClient(cfg.Venue.BaseURL, time.Duration(cfg.Venue.TimeoutMs)*time.Millisecond)
	sched := scheduler.New(
		scheduler.Config{
			Interval:             cfg.Polling.Interval(),
			BatchSize:            cfg.Polling.BatchSize,
			BatchDelay:           cfg.Polling.BatchDelay(),
			MaxConcurrentFetches: int64(cfg.Polling.MaxConcurrentFetches),
			MaxRetries:           cfg.Polling.MaxRetries,
			BackoffBase:          time.Duration(cfg.Polling.BackoffBaseMs) * time.Millisecond,
			BackoffMax:           time.Duration(cfg.Polling.BackoffMaxMs) * time.Millisecond,
			NoiseThreshold:       decimal.NewFromFloat(cfg.Detection.NoiseThreshold),
		},
		client, reg, pipeline,
	)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observ.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go store.Run(ctx)

	entities := reg.List()
	log.WithFields(logrus.Fields{
		"entities": len(entities),
		"interval": cfg.Polling.Interval(),
	}).Info("vaultwatch starting")
	if notifier != nil {
		notifier.Send(startupSummary(cfg, len(entities)))
	}

	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("scheduler stopped")
	}

	store.Close()
	if notifier != nil {
		notifier.Close()
	}
	log.Info("vaultwatch stopped")
}

func loadConfig(path string) (config.Root, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildNotifier(cfg config.Telegram) (*alerts.TelegramNotifier, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	chatID, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
	}
	return alerts.NewTelegramNotifier(token, chatID, alerts.Options{
		QueueSize:      cfg.QueueSize,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
		DisablePreview: true,
	})
}

func collectState(reg *registry.Registry, cfg config.Root) state.State {
	entities := reg.List()
	out := state.State{
		Entities: make([]state.PersistedEntity, 0, len(entities)),
		Settings: state.Settings{
			ConfluenceThreshold:  cfg.Detection.ConfluenceThreshold,
			ConfluenceWindowMins: cfg.Detection.ConfluenceWindowMins,
			ThemeAlertsEnabled:   cfg.Detection.ThemeAlertsEnabled,
			CooldownMins:         cfg.Detection.CooldownMins,
		},
	}
	for _, ent := range entities {
		out.Entities = append(out.Entities, state.PersistedEntity{
			Address:             ent.Address,
			Name:                ent.Name,
			Active:              ent.Active,
			ConsecutiveFailures: ent.ConsecutiveFailures,
			LastSuccess:         ent.LastSuccess,
		})
	}
	return out
}

func startupSummary(cfg config.Root, entities int) string {
	return fmt.Sprintf(
		"👀 <b>vaultwatch online</b>\nTracking %d entities every %s\nConfluence: %d entities / %dm window, cooldown %dm",
		entities,
		cfg.Polling.Interval(),
		cfg.Detection.ConfluenceThreshold,
		cfg.Detection.ConfluenceWindowMins,
		cfg.Detection.CooldownMins,
	)
}
