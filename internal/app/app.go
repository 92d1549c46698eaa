// Package app wires modbot together: the message bus, the worker pool, the
// auto-delete service with its rule store, the platform connectors, the
// admin command handler and the metrics endpoint.
package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aatumaykin/modbot/internal/autodelete"
	"github.com/aatumaykin/modbot/internal/bus"
	"github.com/aatumaykin/modbot/internal/channels"
	"github.com/aatumaykin/modbot/internal/commands"
	"github.com/aatumaykin/modbot/internal/config"
	"github.com/aatumaykin/modbot/internal/logger"
	"github.com/aatumaykin/modbot/internal/workers"
)

// eventSink - реакция конвейера на события сообщений.
type eventSink interface {
	HandleMessage(msg autodelete.TrackedMessage)
	HandlePinUpdate(key, messageID string, pinned bool)
	HandleDelete(key, messageID string)
}

// commandProcessor - обработчик команд администратора.
type commandProcessor interface {
	HandleMessage(ctx context.Context, msg bus.InboundMessage) (bool, error)
}

// App represents the main application structure.
// It holds references to all major components and manages their lifecycle.
type App struct {
	// Configuration and core services
	config *config.Config
	logger *logger.Logger

	// Communication infrastructure
	messageBus *bus.MessageBus

	// Background task execution
	workerPool *workers.WorkerPool

	// Auto-delete pipeline
	store   *autodelete.RuleStore
	router  *autodelete.Router
	service *autodelete.Service

	// Event loop consumers
	events   eventSink
	commands commandProcessor

	// Platform connectors in start order
	connectors []namedConnector

	// Metrics
	registry      *prometheus.Registry
	metricsServer *http.Server
	metricsAddr   string

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	loopWG sync.WaitGroup

	// Thread-safety
	mu      sync.Mutex
	started bool
}

type namedConnector struct {
	name      string
	connector channels.Connector
}

// New creates a new App instance with the provided configuration and logger.
// Components are created in Initialize.
func New(cfg *config.Config, log *logger.Logger) *App {
	return &App{
		config: cfg,
		logger: log,
	}
}

// Run starts the application and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		_ = a.Shutdown()
		return err
	}

	if err := a.StartMessageProcessing(a.ctx); err != nil {
		_ = a.Shutdown()
		return err
	}

	a.logger.Info("Application is running")

	<-ctx.Done()

	return a.Shutdown()
}

// Service returns the auto-delete service, nil before Initialize.
func (a *App) Service() *autodelete.Service {
	return a.service
}

var _ commandProcessor = (*commands.Handler)(nil)
var _ eventSink = (*autodelete.Service)(nil)
