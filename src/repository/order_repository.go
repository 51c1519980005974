package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/database"
	"signalexecutor/src/model"
)

// OrderRepository handles read/write operations for orders.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main database.
func NewOrderRepository() *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Debug("Creating new OrderRepository with MainDB")

	return &OrderRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new order into the database.
// The given order will be updated with the generated ID and timestamps.
func (r *OrderRepository) Create(
	ctx context.Context,
	order *model.Order,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "OrderRepository",
		"op":        "Create",
		"signal_id": order.SignalID,
		"contract":  order.ContractID,
		"action":    order.Action,
		"qty":       order.Quantity,
	}).Debug("Creating new order")

	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
	}).Info("Order created successfully")

	return nil
}

// FindBySignalID fetches the order created for a signal, if any.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindBySignalID(
	ctx context.Context,
	signalID uint,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":      "OrderRepository",
			"op":        "FindBySignalID",
			"signal_id": signalID,
		}).WithError(err).Error("Failed to fetch order by signal ID")

		return nil, err
	}

	return &order, nil
}

// FindLatestByContractID fetches the newest non-rejected order for a contract.
// The protection engine uses it to recover the intended stop-loss for an open
// position. Returns (nil, nil) if not found.
func (r *OrderRepository) FindLatestByContractID(
	ctx context.Context,
	contractID string,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Where("contract_id = ? AND status <> ?", contractID, model.OrderStatusRejected).
		Order("id DESC").
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "FindLatestByContractID",
			"contract": contractID,
		}).WithError(err).Error("Failed to fetch order by contract ID")

		return nil, err
	}

	return &order, nil
}

// UpdateStatus advances the entry state machine and stamps the transition time.
func (r *OrderRepository) UpdateStatus(
	ctx context.Context,
	orderID uint,
	newStatus string,
) error {

	now := time.Now().UTC()
	updates := map[string]interface{}{"status": newStatus}
	switch newStatus {
	case model.OrderStatusSubmitted:
		updates["submitted_at"] = &now
	case model.OrderStatusFilled:
		updates["filled_at"] = &now
	}

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "UpdateStatus",
			"order_id": orderID,
			"status":   newStatus,
		}).WithError(err).Error("Failed to update order status")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "UpdateStatus",
		"order_id": orderID,
		"status":   newStatus,
	}).Info("Order status updated")

	return nil
}

// MarkSubmitted records a successful entry submission: broker order id plus
// the submitted state, stamped in one update.
func (r *OrderRepository) MarkSubmitted(
	ctx context.Context,
	orderID uint,
	brokerOrderID string,
) error {

	now := time.Now().UTC()

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":          model.OrderStatusSubmitted,
			"broker_order_id": brokerOrderID,
			"submitted_at":    &now,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":            "OrderRepository",
			"op":              "MarkSubmitted",
			"order_id":        orderID,
			"broker_order_id": brokerOrderID,
		}).WithError(err).Error("Failed to mark order submitted")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":            "OrderRepository",
		"op":              "MarkSubmitted",
		"order_id":        orderID,
		"broker_order_id": brokerOrderID,
	}).Info("Order marked submitted")

	return nil
}

// UpdateProtection advances the protection state machine. protectionOrderID is
// the broker id of the protective stop; empty keeps the stored value.
func (r *OrderRepository) UpdateProtection(
	ctx context.Context,
	orderID uint,
	newStatus string,
	protectionOrderID string,
) error {

	updates := map[string]interface{}{"protection_status": newStatus}
	if protectionOrderID != "" {
		updates["protection_order_id"] = protectionOrderID
	}
	if newStatus == model.ProtectionStatusActive {
		now := time.Now().UTC()
		updates["protected_at"] = &now
	}

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "UpdateProtection",
			"order_id": orderID,
			"status":   newStatus,
		}).WithError(err).Error("Failed to update protection status")

		return err
	}

	return nil
}

// UpdateCurrentStop records the trailing engine's new ratchet base.
func (r *OrderRepository) UpdateCurrentStop(
	ctx context.Context,
	orderID uint,
	stop decimal.Decimal,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("current_stop", stop).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "UpdateCurrentStop",
			"order_id": orderID,
			"stop":     stop.String(),
		}).WithError(err).Error("Failed to update current stop")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "UpdateCurrentStop",
		"order_id": orderID,
		"stop":     stop.String(),
	}).Info("Current stop updated")

	return nil
}

// CountByProtectionStatus returns order counts grouped by protection status,
// for the read-only status surface.
func (r *OrderRepository) CountByProtectionStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		ProtectionStatus string
		Total            int64
	}

	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("protection_status, count(*) as total").
		Where("status IN ?", []string{model.OrderStatusSubmitted, model.OrderStatusFilled}).
		Group("protection_status").
		Find(&rows).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "CountByProtectionStatus",
		}).WithError(err).Error("Failed to count orders")

		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.ProtectionStatus] = r.Total
	}
	return counts, nil
}
