package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"signalexecutor/src/database"
	"signalexecutor/src/executors"
	"signalexecutor/src/stats"
)

type Executor struct{}

// Start runs ingestion and the entry loop together: the two halves of the
// message-to-order path. Protection runs as its own command.
func (t *Executor) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	runtime, err := executors.NewRuntime(stats.Noop{})
	if err != nil {
		logrus.WithError(err).Error("Failed to build runtime")
		return err
	}

	if err := runtime.StartCatalog(ctx); err != nil {
		logrus.WithError(err).Error("Failed to start catalog refresher")
		return err
	}

	go func() {
		if err := runtime.StartIngestLoop(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("ingest loop exited")
			stop()
		}
	}()

	if err := runtime.StartEntryLoop(ctx); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Error("Failed to run entry loop")
		return err
	}

	return nil
}
