package protector

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

type Protector struct{}

func (t *Protector) Start() error {
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

	if err := runtime.StartProtectionLoop(ctx); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Error("Failed to run protection loop")
		return err
	}

	return nil
}
