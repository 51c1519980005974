package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/database"
	"signalexecutor/src/model"
)

// SignalRepository handles read/write operations for inbound signals.
type SignalRepository struct {
	db *gorm.DB
}

// NewSignalRepository creates a new repository instance using the main database.
func NewSignalRepository() *SignalRepository {
	logger.WithField("component", "SignalRepository").
		Debug("Creating new SignalRepository with MainDB")

	return &SignalRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// CreateIfAbsent inserts a new signal unless one already exists for the same
// (channel_id, message_id). Returns created=false on a duplicate delivery,
// which is not an error: upstream sources are at-least-once.
func (r *SignalRepository) CreateIfAbsent(
	ctx context.Context,
	signal *model.Signal,
) (created bool, err error) {

	logger.WithFields(map[string]interface{}{
		"repo":       "SignalRepository",
		"op":         "CreateIfAbsent",
		"channel_id": signal.ChannelID,
		"message_id": signal.MessageID,
	}).Debug("Creating signal")

	err = r.db.WithContext(ctx).Create(signal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.WithFields(map[string]interface{}{
				"repo":       "SignalRepository",
				"op":         "CreateIfAbsent",
				"channel_id": signal.ChannelID,
				"message_id": signal.MessageID,
			}).Info("Duplicate delivery, signal already recorded")
			return false, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "CreateIfAbsent",
		}).WithError(err).Error("Failed to create signal")

		return false, err
	}

	return true, nil
}

// FindByChannelAndMessage fetches a signal by its dedup key.
// Returns (nil, nil) if not found.
func (r *SignalRepository) FindByChannelAndMessage(
	ctx context.Context,
	channelID, messageID string,
) (*model.Signal, error) {

	var signal model.Signal

	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND message_id = ?", channelID, messageID).
		First(&signal).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":       "SignalRepository",
			"op":         "FindByChannelAndMessage",
			"channel_id": channelID,
			"message_id": messageID,
		}).WithError(err).Error("Failed to fetch signal")

		return nil, err
	}

	return &signal, nil
}

// FindPending fetches pending signals ordered from oldest to newest (ascending
// by ID) so submissions happen in arrival order. The limit parameter bounds one
// processing cycle.
func (r *SignalRepository) FindPending(
	ctx context.Context,
	limit int,
) ([]model.Signal, error) {

	if limit <= 0 {
		limit = 100 // default safety limit
	}

	logger.WithFields(map[string]interface{}{
		"repo":  "SignalRepository",
		"op":    "FindPending",
		"limit": limit,
	}).Debug("Fetching pending signals")

	var signals []model.Signal

	err := r.db.WithContext(ctx).
		Where("status = ?", model.SignalStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&signals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "SignalRepository",
			"op":    "FindPending",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch pending signals")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "SignalRepository",
		"op":          "FindPending",
		"rows_return": len(signals),
	}).Debug("Pending signals fetched")

	return signals, nil
}

// MarkDone flips a pending signal to done. The guard on the current status
// keeps the transition single-shot even if a cycle overlaps a restart.
func (r *SignalRepository) MarkDone(ctx context.Context, id uint) error {
	return r.markTerminal(ctx, id, model.SignalStatusDone, "")
}

// MarkError flips a pending signal to error and records the enumerated reason.
func (r *SignalRepository) MarkError(ctx context.Context, id uint, reason string) error {
	return r.markTerminal(ctx, id, model.SignalStatusError, reason)
}

func (r *SignalRepository) markTerminal(
	ctx context.Context,
	id uint,
	status string,
	reason string,
) error {

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       status,
		"processed_at": &now,
	}
	if reason != "" {
		updates["reject_reason"] = reason
	}

	result := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("id = ? AND status = ?", id, model.SignalStatusPending).
		Updates(updates)

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SignalRepository",
			"op":     "markTerminal",
			"id":     id,
			"status": status,
		}).WithError(result.Error).Error("Failed to update signal status")

		return result.Error
	}

	if result.RowsAffected == 0 {
		logger.WithFields(map[string]interface{}{
			"repo":   "SignalRepository",
			"op":     "markTerminal",
			"id":     id,
			"status": status,
		}).Warn("Signal was not pending, no transition applied")
	}

	return nil
}

// CountByStatus returns signal counts grouped by status, for the read-only
// status surface.
func (r *SignalRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}

	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Select("status, count(*) as total").
		Group("status").
		Find(&rows).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "CountByStatus",
		}).WithError(err).Error("Failed to count signals")

		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}
