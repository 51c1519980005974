package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/database"
	"signalexecutor/src/model"
)

// InstrumentRepository persists reference instrument snapshots so a restart
// can warm-load the last refresh before the remote source is reachable.
type InstrumentRepository struct {
	db *gorm.DB
}

// NewInstrumentRepository creates a new repository instance using the main database.
func NewInstrumentRepository() *InstrumentRepository {
	return &InstrumentRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *InstrumentRepository) WithDB(db *gorm.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

// ReplaceSnapshot stores a fresh snapshot and drops every older one in a single
// transaction. Readers go through the in-memory catalog, so a reader never
// observes a partially-written snapshot here either.
func (r *InstrumentRepository) ReplaceSnapshot(
	ctx context.Context,
	snapshotID string,
	rows []model.Instrument,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "InstrumentRepository",
		"op":          "ReplaceSnapshot",
		"snapshot_id": snapshotID,
		"rows":        len(rows),
	}).Debug("Replacing instrument snapshot")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			rows[i].SnapshotID = snapshotID
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return err
			}
		}
		return tx.
			Where("snapshot_id <> ?", snapshotID).
			Delete(&model.Instrument{}).Error
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "InstrumentRepository",
			"op":          "ReplaceSnapshot",
			"snapshot_id": snapshotID,
		}).WithError(err).Error("Failed to replace instrument snapshot")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "InstrumentRepository",
		"op":          "ReplaceSnapshot",
		"snapshot_id": snapshotID,
		"rows":        len(rows),
	}).Info("Instrument snapshot replaced")

	return nil
}

// LoadSnapshot returns all rows of the stored snapshot.
func (r *InstrumentRepository) LoadSnapshot(ctx context.Context) ([]model.Instrument, error) {
	var rows []model.Instrument

	err := r.db.WithContext(ctx).
		Order("contract_id ASC").
		Find(&rows).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "InstrumentRepository",
			"op":   "LoadSnapshot",
		}).WithError(err).Error("Failed to load instrument snapshot")

		return nil, err
	}

	return rows, nil
}
