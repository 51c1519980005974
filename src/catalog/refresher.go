package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/model"
)

// InstrumentSource delivers one wholesale snapshot of tradable contracts.
type InstrumentSource interface {
	FetchInstruments(ctx context.Context) ([]model.Instrument, error)
}

// InstrumentStore persists snapshots for warm restarts.
type InstrumentStore interface {
	ReplaceSnapshot(ctx context.Context, snapshotID string, rows []model.Instrument) error
	LoadSnapshot(ctx context.Context) ([]model.Instrument, error)
}

// Refresher rebuilds the catalog on a cron schedule. Refreshes are infrequent
// and independent of the trading loops; a failed refresh keeps the previous
// snapshot live.
type Refresher struct {
	catalog *Catalog
	source  InstrumentSource
	store   InstrumentStore
	cron    *cron.Cron
}

func NewRefresher(catalog *Catalog, source InstrumentSource, store InstrumentStore) *Refresher {
	return &Refresher{
		catalog: catalog,
		source:  source,
		store:   store,
		cron:    cron.New(),
	}
}

// WarmLoad publishes the last persisted snapshot so resolution can start
// before the first remote refresh succeeds. No rows is not an error.
func (r *Refresher) WarmLoad(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	rows, err := r.store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("warm load instruments: %w", err)
	}
	if len(rows) == 0 {
		logger.Info("[catalog] no persisted instrument snapshot to warm load")
		return nil
	}

	snap := BuildSnapshot("warm-"+uuid.NewString(), rows)
	r.catalog.Swap(snap)

	logger.WithField("rows", snap.Size()).Info("[catalog] warm loaded persisted snapshot")
	return nil
}

// RefreshOnce fetches a fresh snapshot, swaps it in and persists it.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	rows, err := r.source.FetchInstruments(ctx)
	if err != nil {
		return fmt.Errorf("fetch instruments: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("instrument source returned an empty snapshot")
	}

	snapshotID := uuid.NewString()
	snap := BuildSnapshot(snapshotID, rows)
	r.catalog.Swap(snap)

	logger.WithFields(map[string]interface{}{
		"snapshot_id": snapshotID,
		"rows":        snap.Size(),
	}).Info("[catalog] snapshot refreshed")

	if r.store != nil {
		if err := r.store.ReplaceSnapshot(ctx, snapshotID, rows); err != nil {
			// The in-memory swap already happened; persistence failure only
			// costs the next warm restart.
			logger.WithError(err).Error("[catalog] failed to persist snapshot")
		}
	}

	return nil
}

// Start schedules periodic refreshes with the given cron expression
// (e.g. "30 8 * * 1-5") and returns immediately.
func (r *Refresher) Start(spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		if err := r.RefreshOnce(context.Background()); err != nil {
			logger.WithError(err).Error("[catalog] scheduled refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule catalog refresh: %w", err)
	}

	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
