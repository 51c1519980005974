package catalogcmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"signalexecutor/src/catalog"
	"signalexecutor/src/connectors"
	"signalexecutor/src/database"
	"signalexecutor/src/repository"
)

type CatalogRefresh struct{}

// Start performs one snapshot refresh and exits; meant for cron or manual
// repair outside the long-running service.
func (t *CatalogRefresh) Start() error {
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

	source := connectors.NewInstrumentSourceClient(connectors.GetConfig())
	refresher := catalog.NewRefresher(catalog.New(), source, repository.NewInstrumentRepository())

	if err := refresher.RefreshOnce(ctx); err != nil {
		logrus.WithError(err).Error("Catalog refresh failed")
		return err
	}

	logrus.Info("Catalog refreshed")
	return nil
}
