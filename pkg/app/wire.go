package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/chanreset/internal/archive"
	"github.com/flemzord/chanreset/internal/config"
	"github.com/flemzord/chanreset/internal/core"
	"github.com/flemzord/chanreset/internal/cron"
	"github.com/flemzord/chanreset/internal/fetch"
	"github.com/flemzord/chanreset/internal/gateway"
	"github.com/flemzord/chanreset/internal/lifecycle"
	"github.com/flemzord/chanreset/internal/reset"
	"github.com/flemzord/chanreset/internal/taskstore"
	"github.com/flemzord/chanreset/modules/channel/discord"
)

// Components holds the wired application. App starts them in dependency
// order and stops them in reverse.
type Components struct {
	App       *core.App
	Store     *taskstore.Store
	Scheduler *reset.Scheduler
	Sweep     *reset.SweepJob
	Cron      *cron.Scheduler
	Discord   *discord.Gateway
	Admin     *gateway.Gateway
	Registry  *prometheus.Registry
}

// Build opens the task store and wires every component described by cfg.
// Nothing is started; the store is already loaded.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	store, backend, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client := discord.NewClient(cfg.Discord.Token, cfg.Discord.APIURL)
	resources := discord.NewResources(client)

	sink, err := buildSink(cfg.Archive, client)
	if err != nil {
		closeBackend(backend)
		return nil, err
	}
	var archiver reset.Archiver
	if sink != nil {
		archiver = archive.New(fetch.NewEngine(resources), sink, archive.Config{
			MaxItems:  cfg.Archive.MaxMessages,
			BatchSize: cfg.Archive.BatchSize,
		}, logger.With("component", "archive"))
	} else {
		logger.Warn("app: no archive sink configured, channel history is discarded on reset")
	}

	scheduler := reset.New(reset.Config{
		Store:    store,
		Client:   resources,
		Archiver: archiver,
		Policy:   reset.DeadlinePolicy{MinDays: cfg.Schedule.MinDays, MaxDays: cfg.Schedule.MaxDays},
		Metrics:  reset.NewMetrics(registry, store),
		Logger:   logger.With("component", "reset"),
	})

	dg := discord.NewGateway(client, discord.GatewayConfig{
		Token:         cfg.Discord.Token,
		URL:           cfg.Discord.GatewayURL,
		AdoptExisting: cfg.Discord.AdoptExisting,
	}, logger.With("component", "discord"))

	adapter := lifecycle.NewAdapter(scheduler, cfg.Discord.ManagedCategories, logger.With("component", "lifecycle"))
	consumer := lifecycle.NewConsumer(adapter, dg.Events())

	sweep := &reset.SweepJob{Scheduler: scheduler, ScheduleExpr: cfg.Schedule.Sweep}
	crons := cron.NewScheduler(logger.With("component", "cron"))
	for _, job := range []cron.Job{sweep, statusReport(store, logger)} {
		if err := crons.RegisterJob(job); err != nil {
			closeBackend(backend)
			return nil, err
		}
	}

	app := core.NewApp(logger)
	app.Add("store", stopFunc(func(context.Context) error {
		if c, ok := backend.(closer); ok {
			return c.Close()
		}
		return nil
	}))
	app.Add("reset", scheduler)
	app.Add("lifecycle", consumer)
	app.Add("discord", dg)
	app.Add("cron", crons)

	c := &Components{
		App:       app,
		Store:     store,
		Scheduler: scheduler,
		Sweep:     sweep,
		Cron:      crons,
		Discord:   dg,
		Registry:  registry,
	}

	if cfg.Gateway.Bind != "" {
		c.Admin = gateway.New(gateway.Config{
			Bind:        cfg.Gateway.Bind,
			BearerToken: cfg.Gateway.BearerToken,
		}, gateway.Deps{
			Tasks:     store,
			Scheduler: scheduler,
			Sweep: func(ctx context.Context) (reset.SweepResult, error) {
				if err := crons.Trigger(ctx, reset.SweepJobName); err != nil {
					return reset.SweepResult{}, err
				}
				return sweep.Last(), nil
			},
			LastSweep:  sweep.Last,
			Gatherer:   registry,
			Registerer: registry,
			Checks: map[string]func() error{
				"discord_gateway": dg.Healthy,
			},
		}, logger.With("component", "gateway"))
		app.Add("gateway", c.Admin)
	}

	return c, nil
}

// statusReport logs the pending task count and the next deadline hourly.
func statusReport(store *taskstore.Store, logger *slog.Logger) cron.Job {
	return &cron.FuncJob{
		JobName:      "status_report",
		ScheduleExpr: "0 * * * *",
		Fn: func(context.Context) error {
			tasks := store.Snapshot()
			if len(tasks) == 0 {
				logger.Info("app: no pending resets")
				return nil
			}
			logger.Info("app: pending resets",
				"tasks", len(tasks),
				"next_group", tasks[0].GroupID,
				"next_resource", tasks[0].ResourceID,
				"next_deadline", tasks[0].Deadline,
			)
			return nil
		},
	}
}

// buildSink returns the configured archive sinks, or nil when archiving is
// disabled.
func buildSink(cfg config.ArchiveConfig, client *discord.Client) (archive.Sink, error) {
	var sinks archive.MultiSink
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkDiscord:
			sinks = append(sinks, discord.NewGraveyardSink(client, cfg.GraveyardChannel))
		case config.SinkFile:
			sinks = append(sinks, &archive.FileSink{Dir: cfg.Dir, Compress: cfg.Compress})
		default:
			return nil, fmt.Errorf("app: unknown archive sink %q", name)
		}
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}
