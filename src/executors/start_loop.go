package executors

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/catalog"
	"signalexecutor/src/connectors"
	"signalexecutor/src/controller"
	"signalexecutor/src/ingest"
	"signalexecutor/src/model"
	"signalexecutor/src/parser"
	"signalexecutor/src/repository"
	"signalexecutor/src/resolver"
	"signalexecutor/src/risk"
	"signalexecutor/src/rules"
	"signalexecutor/src/security"
	"signalexecutor/src/stats"
)

// Runtime wires the long-running pieces together once and hands each command
// its loop. The catalog pointer is shared: the refresher swaps snapshots in,
// the entry loop reads whatever is current.
type Runtime struct {
	Catalog   *catalog.Catalog
	Broker    *connectors.BrokerClient
	Refresher *catalog.Refresher
	Stats     stats.Collector

	config Config
	rules  rules.Root
}

var newBrokerClient = func(cfg Config, connCfg connectors.Config) (*connectors.BrokerClient, error) {
	if cfg.BrokerAPIKeyHash == "" || cfg.BrokerAPISecretHash == "" {
		return nil, errors.New("broker credentials not set")
	}
	apiKey, err := security.DecryptString(cfg.BrokerAPIKeyHash)
	if err != nil {
		logger.WithError(err).Error("Failed to decrypt broker api key")
		return nil, err
	}
	apiSecret, err := security.DecryptString(cfg.BrokerAPISecretHash)
	if err != nil {
		logger.WithError(err).Error("Failed to decrypt broker api secret")
		return nil, err
	}
	return connectors.NewBrokerClient(apiKey, apiSecret, connCfg), nil
}

func NewRuntime(collector stats.Collector) (*Runtime, error) {
	config := GetConfig()
	connCfg := connectors.GetConfig()

	if collector == nil {
		collector = stats.Noop{}
	}

	broker, err := newBrokerClient(config, connCfg)
	if err != nil {
		return nil, err
	}

	ruleSet, err := rules.Load("")
	if err != nil {
		logger.WithError(err).Warn("Failed to load rules file, using built-in defaults")
		ruleSet = rules.Default()
	}

	cat := catalog.New()
	source := connectors.NewInstrumentSourceClient(connCfg)
	refresher := catalog.NewRefresher(cat, source, repository.NewInstrumentRepository())

	return &Runtime{
		Catalog:   cat,
		Broker:    broker,
		Refresher: refresher,
		Stats:     collector,
		config:    config,
		rules:     ruleSet,
	}, nil
}

// StartCatalog warm-loads the last persisted snapshot, refreshes once from
// the source, then keeps refreshing on the cron schedule until ctx ends.
func (r *Runtime) StartCatalog(ctx context.Context) error {
	if err := r.Refresher.WarmLoad(ctx); err != nil {
		logger.WithError(err).Warn("Catalog warm load failed, starting empty")
	}
	if err := r.Refresher.RefreshOnce(ctx); err != nil {
		logger.WithError(err).Warn("Initial catalog refresh failed, serving warm snapshot")
	}
	if err := r.Refresher.Start(r.config.CatalogRefreshCron); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		r.Refresher.Stop()
	}()
	return nil
}

// StartIngestLoop consumes the messaging stream until ctx ends. The
// websocket client owns reconnection; this loop only wires parse and persist
// behind it.
func (r *Runtime) StartIngestLoop(ctx context.Context) error {
	connCfg := connectors.GetConfig()

	var fallback parser.FallbackExtractor
	if connCfg.FallbackBaseURL != "" {
		fallback = connectors.NewFallbackClient(connCfg, r.rules.Fallback)
	} else {
		logger.Warn("No fallback service configured, running pattern tier only")
	}

	p := parser.New(r.rules, fallback, r.Stats)
	consumer := ingest.NewConsumer(p, r.Stats)
	messaging := connectors.NewMessagingClient(connCfg)

	logger.Info("starting ingest loop")
	return messaging.Run(ctx, consumer.Handle)
}

// StartEntryLoop runs the order lifecycle engine on a fixed period. One
// owner; a second entry loop against the same store would break the
// exactly-once submission guarantee.
func (r *Runtime) StartEntryLoop(ctx context.Context) error {
	ec := controller.NewEntryController(
		controller.GetConfig(),
		r.Broker,
		resolver.New(r.rules.Aliases),
		r.Catalog,
		r.Stats,
	)

	ticker := time.NewTicker(r.config.EntryLoopPeriod)
	defer ticker.Stop()

	logger.WithField("period", r.config.EntryLoopPeriod.String()).Info("starting entry loop")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := ec.ProcessPendingSignals(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				logger.WithError(err).Error("entry cycle failed")
			}
		}
	}
}

// StartProtectionLoop runs stop reconciliation on a fixed period, and the
// optional force-flatten when a venue approaches its close.
func (r *Runtime) StartProtectionLoop(ctx context.Context) error {
	ctlCfg := controller.GetConfig()
	pc := controller.NewProtectionController(ctlCfg, r.Broker, r.Stats)

	ticker := time.NewTicker(r.config.ProtectionLoopPeriod)
	defer ticker.Stop()

	logger.WithField("period", r.config.ProtectionLoopPeriod.String()).Info("starting protection loop")

	// flattened tracks which venue was already force-flattened this session.
	flattened := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := pc.ReconcileProtection(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				logger.WithError(err).Error("protection cycle failed")
			}

			if !ctlCfg.ForceFlatten {
				continue
			}
			now := time.Now()
			for _, venue := range []string{model.VenueNFO, model.VenueMCX} {
				if !risk.IsAtSessionClose(venue, now, r.config.ForceFlattenWithin) {
					continue
				}
				if last, ok := flattened[venue]; ok && now.Sub(last) < 12*time.Hour {
					continue
				}
				if err := pc.FlattenVenue(ctx, venue); err != nil {
					logger.WithError(err).WithField("venue", venue).Error("force flatten failed")
					continue
				}
				flattened[venue] = now
			}
		}
	}
}
