package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aatumaykin/modbot/internal/autodelete"
	"github.com/aatumaykin/modbot/internal/bus"
	"github.com/aatumaykin/modbot/internal/channels/discord"
	"github.com/aatumaykin/modbot/internal/channels/telegram"
	"github.com/aatumaykin/modbot/internal/commands"
	"github.com/aatumaykin/modbot/internal/logger"
	"github.com/aatumaykin/modbot/internal/retry"
	"github.com/aatumaykin/modbot/internal/workers"
)

// Initialize creates and starts all components. Connectors are created
// before the service so that their platforms are registered in the router
// when the service bootstraps channels from history.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("application already initialized")
	}

	// 1. Application context
	a.ctx, a.cancel = context.WithCancel(ctx)

	// 2. Metrics registry
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 3. Message bus
	a.messageBus = bus.New(a.config.MessageBus.Capacity, a.logger)
	if err := a.messageBus.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start message bus: %w", err)
	}

	// 4. Worker pool
	a.workerPool = workers.NewPool(a.config.Workers.PoolSize, a.config.Workers.QueueSize, a.logger)
	registerPoolMetrics(a.registry, a.config.Metrics.Namespace, a.workerPool)
	a.workerPool.Start()

	// 5. Rule store
	a.store = autodelete.NewRuleStore(a.config.AutoDelete.RulesPath, a.logger)
	if err := a.store.Load(); err != nil {
		// Повреждённый файл не мешает запуску: правила начинаются с пустого набора.
		a.logger.Error("failed to load autodelete rules, starting empty", err,
			logger.Field{Key: "path", Value: a.store.Path()})
	}

	// 6. Platform connectors
	a.router = autodelete.NewRouter()
	var cmdPlatforms []commands.Platform

	if a.config.Discord.Enabled {
		dc, err := discord.New(a.config.Discord, a.logger, a.messageBus)
		if err != nil {
			return fmt.Errorf("failed to create discord connector: %w", err)
		}
		a.router.Register(dc.Platform())
		a.connectors = append(a.connectors, namedConnector{name: discord.PlatformName, connector: dc})
		cmdPlatforms = append(cmdPlatforms, commands.Platform{
			Type:       bus.ChannelTypeDiscord,
			Prefix:     a.config.Discord.CommandPrefix,
			AdminUsers: a.config.Discord.AdminUsers,
		})
	}

	if a.config.Telegram.Enabled {
		tg, err := telegram.New(a.config.Telegram, a.logger, a.messageBus)
		if err != nil {
			return fmt.Errorf("failed to create telegram connector: %w", err)
		}
		a.router.Register(tg.Platform())
		a.connectors = append(a.connectors, namedConnector{name: telegram.PlatformName, connector: tg})
		cmdPlatforms = append(cmdPlatforms, commands.Platform{
			Type:       bus.ChannelTypeTelegram,
			Prefix:     a.config.Telegram.CommandPrefix,
			AdminUsers: a.config.Telegram.AdminUsers,
		})
	}

	// 7. Auto-delete service
	metrics := autodelete.NewMetrics(a.config.Metrics.Namespace, a.registry)
	a.service = autodelete.NewService(
		a.store,
		a.router,
		a.workerPool,
		autodelete.OptionsFromConfig(a.config.AutoDelete),
		a.logger,
		autodelete.WithMetrics(metrics),
	)
	a.events = a.service

	// 8. Command handler
	a.commands = commands.NewHandler(a.service, a.messageBus, a.workerPool, a.logger, cmdPlatforms...)

	// 9. Start connectors
	for _, nc := range a.connectors {
		if err := startConnector(a.ctx, nc, a.logger); err != nil {
			return err
		}
	}

	// 10. Start sweeper and bootstrap
	if err := a.service.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start autodelete service: %w", err)
	}

	// 11. Metrics endpoint
	if a.config.Metrics.Enabled {
		if err := a.startMetricsServer(); err != nil {
			return err
		}
	}

	a.started = true
	a.logger.Info("application initialized",
		logger.Field{Key: "platforms", Value: a.router.Platforms()},
		logger.Field{Key: "rules", Value: len(a.store.All())})
	return nil
}

// startConnector повторяет запуск при сетевых ошибках: gateway и getMe
// иногда не отвечают сразу после старта контейнера.
func startConnector(ctx context.Context, nc namedConnector, log *logger.Logger) error {
	_, err := retry.DoWithRetry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, nc.connector.Start(ctx)
	}, retry.Config{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     10 * time.Second,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("failed to start %s connector: %w", nc.name, err)
	}
	return nil
}
