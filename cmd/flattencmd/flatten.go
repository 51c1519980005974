package flattencmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"signalexecutor/src/controller"
	"signalexecutor/src/database"
	"signalexecutor/src/executors"
	"signalexecutor/src/stats"
)

type Flatten struct {
	// Venue limits the exit to one venue; empty means every open position.
	Venue string
}

// Start cancels working stops and market-exits open positions, then exits.
// This is the manual emergency escape; the scheduled session-close variant
// lives in the protection loop.
func (t *Flatten) Start() error {
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

	pc := controller.NewProtectionController(controller.GetConfig(), runtime.Broker, stats.Noop{})

	if t.Venue == "" {
		return pc.FlattenAll(ctx)
	}
	return pc.FlattenVenue(ctx, t.Venue)
}
