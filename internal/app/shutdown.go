package app

import (
	"context"
	"time"

	"github.com/aatumaykin/modbot/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Shutdown performs graceful shutdown of all components in this order:
//  1. Stops the sweeper so no new passes are scheduled
//  2. Cancels the application context and waits for the event loop
//  3. Stops the connectors in reverse start order
//  4. Stops the worker pool, waiting for running passes
//  5. Stops the metrics server and the message bus
//
// Shutdown is safe to call more than once and after a failed Initialize.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel == nil {
		return nil
	}

	if a.service != nil {
		a.service.Stop()
	}

	a.cancel()
	a.loopWG.Wait()

	for i := len(a.connectors) - 1; i >= 0; i-- {
		nc := a.connectors[i]
		if err := nc.connector.Stop(); err != nil {
			a.logger.Error("Failed to stop connector", err, logger.Field{Key: "platform", Value: nc.name})
		}
	}
	a.connectors = nil

	if a.workerPool != nil {
		a.workerPool.Stop()
		a.workerPool = nil
	}

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Error("Failed to stop metrics server", err)
		}
		cancel()
		a.metricsServer = nil
	}

	var busErr error
	if a.messageBus != nil {
		if busErr = a.messageBus.Stop(); busErr != nil {
			a.logger.Error("Failed to stop message bus", busErr)
		}
		a.messageBus = nil
	}

	a.cancel = nil
	a.started = false
	a.logger.Info("Application shutdown complete")
	return busErr
}
