package controller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/connectors"
	"signalexecutor/src/model"
	"signalexecutor/src/repository"
	"signalexecutor/src/risk"
	"signalexecutor/src/stats"
	"signalexecutor/src/tp_sl"
)

type protectionOrderRepository interface {
	FindLatestByContractID(ctx context.Context, contractID string) (*model.Order, error)
	UpdateProtection(ctx context.Context, orderID uint, newStatus string, protectionOrderID string) error
	UpdateCurrentStop(ctx context.Context, orderID uint, stop decimal.Decimal) error
}

type protectionBroker interface {
	ListOpenPositions(ctx context.Context) ([]connectors.Position, error)
	ListOrders(ctx context.Context) ([]connectors.BrokerOrder, error)
	SubmitOrder(ctx context.Context, order connectors.SubmitOrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	LastTradedPrice(ctx context.Context, contractID string) (decimal.Decimal, error)
}

var newProtectionOrderRepo = func() protectionOrderRepository {
	return repository.NewOrderRepository()
}

// ProtectionController is the reconciliation engine: every cycle it compares
// the broker's open positions against the protective stop orders in the book,
// places the stops that are missing and ratchets the ones that are behind.
// The broker is the source of truth for what is open; the orders table only
// supplies per-position stop state.
type ProtectionController struct {
	config     Config
	broker     protectionBroker
	orders     protectionOrderRepository
	exceptions exceptionRepository
	stats      stats.Collector
	now        func() time.Time

	// unprotectedCycles counts consecutive cycles each contract has spent
	// without an active stop, for the escalation alert.
	unprotectedCycles map[string]int

	// ranges holds the per-contract mark history feeding the range-scaled
	// trailing variant. Only populated when that variant is enabled.
	ranges map[string]*priceWindow
}

func NewProtectionController(cfg Config, broker protectionBroker, collector stats.Collector) *ProtectionController {
	if collector == nil {
		collector = stats.Noop{}
	}
	return &ProtectionController{
		config:            cfg,
		broker:            broker,
		orders:            newProtectionOrderRepo(),
		exceptions:        newExceptionRepo(),
		stats:             collector,
		now:               time.Now,
		unprotectedCycles: make(map[string]int),
		ranges:            make(map[string]*priceWindow),
	}
}

// ReconcileProtection runs one pass. Positions and the order book are each
// fetched once; a listing failure aborts the whole cycle since reconciling
// against a partial view could cancel a live stop.
func (c *ProtectionController) ReconcileProtection(ctx context.Context) error {
	positions, err := c.broker.ListOpenPositions(ctx)
	if err != nil {
		Capture(ctx, c.exceptions, "protection_controller", "ListOpenPositions", "error", err, nil)
		return err
	}
	book, err := c.broker.ListOrders(ctx)
	if err != nil {
		Capture(ctx, c.exceptions, "protection_controller", "ListOrders", "error", err, nil)
		return err
	}

	open := make(map[string]bool, len(positions))
	unprotected := 0

	for i := range positions {
		if err := ctx.Err(); err != nil {
			return err
		}
		pos := &positions[i]
		open[pos.ContractID] = true

		if !c.reconcilePosition(ctx, pos, book) {
			unprotected++
			c.unprotectedCycles[pos.ContractID]++
			if c.unprotectedCycles[pos.ContractID] >= c.config.UnprotectedAlertCycles {
				logger.WithFields(map[string]interface{}{
					"contract": pos.ContractID,
					"symbol":   pos.Symbol,
					"qty":      pos.Quantity,
					"cycles":   c.unprotectedCycles[pos.ContractID],
				}).Error("POSITION UNPROTECTED beyond alert threshold")
			}
		} else {
			delete(c.unprotectedCycles, pos.ContractID)
		}
	}

	// Closed positions drop out of the escalation map and the mark history.
	for contract := range c.unprotectedCycles {
		if !open[contract] {
			delete(c.unprotectedCycles, contract)
		}
	}
	for contract := range c.ranges {
		if !open[contract] {
			delete(c.ranges, contract)
		}
	}

	c.stats.SetUnprotectedPositions(unprotected)
	return nil
}

// reconcilePosition protects one position and reports whether it ended the
// cycle with a stop working at the broker.
func (c *ProtectionController) reconcilePosition(
	ctx context.Context,
	pos *connectors.Position,
	book []connectors.BrokerOrder,
) bool {

	log := logger.WithFields(map[string]interface{}{
		"contract": pos.ContractID,
		"symbol":   pos.Symbol,
		"qty":      pos.Quantity,
	})

	if !risk.IsMarketOpen(pos.Venue, c.now()) {
		// Nothing can be placed or moved outside the session; the position
		// keeps whatever protection state it already has.
		log.Debug("venue closed, skipping reconciliation")
		return findProtectiveStop(pos, book) != nil
	}

	order, err := c.orders.FindLatestByContractID(ctx, pos.ContractID)
	if err != nil {
		Capture(ctx, c.exceptions, "protection_controller", "FindLatestByContractID", "error", err,
			map[string]interface{}{"contract": pos.ContractID})
		return false
	}

	side := tp_sl.SideLong
	if pos.Short() {
		side = tp_sl.SideShort
	}

	price := c.markPrice(ctx, pos)
	if c.config.RangedTrailing {
		c.observeMark(pos.ContractID, price)
	}

	stop := c.stopFor(order, pos, side)
	working := findProtectiveStop(pos, book)

	if working == nil {
		return c.placeStop(ctx, pos, order, stop, log)
	}

	// The stop exists at the broker; catch up our record if the submit
	// confirmation never landed.
	if order != nil && order.ProtectionStatus != model.ProtectionStatusActive {
		if err := c.orders.UpdateProtection(ctx, order.ID, model.ProtectionStatusActive, working.OrderID); err != nil {
			Capture(ctx, c.exceptions, "protection_controller", "UpdateProtection", "error", err,
				map[string]interface{}{"order_id": order.ID})
		}
	}

	c.trail(ctx, pos, order, working, side, price, log)
	return true
}

// markPrice prefers the mark carried on the position snapshot and falls back
// to a quote fetch when the snapshot came without one.
func (c *ProtectionController) markPrice(ctx context.Context, pos *connectors.Position) decimal.Decimal {
	if pos.LastPrice.GreaterThan(decimal.Zero) {
		return pos.LastPrice
	}

	ltp, err := c.broker.LastTradedPrice(ctx, pos.ContractID)
	if err != nil {
		Capture(ctx, c.exceptions, "protection_controller", "LastTradedPrice", "warning", err,
			map[string]interface{}{"contract": pos.ContractID})
		return decimal.Zero
	}
	return ltp
}

// stopFor picks the stop level to protect with: the persisted ratchet base
// when the position maps to a known order, the flat fallback otherwise.
func (c *ProtectionController) stopFor(order *model.Order, pos *connectors.Position, side tp_sl.Side) decimal.Decimal {
	if order != nil {
		if order.CurrentStop.GreaterThan(decimal.Zero) {
			return order.CurrentStop
		}
		if order.StopLoss.GreaterThan(decimal.Zero) {
			return order.StopLoss
		}
	}
	return tp_sl.InitialStop(side, pos.AvgEntryPrice)
}

func (c *ProtectionController) placeStop(
	ctx context.Context,
	pos *connectors.Position,
	order *model.Order,
	stop decimal.Decimal,
	log *logger.Entry,
) bool {

	req := protectiveStopRequest(pos, stop)

	stopOrderID, err := c.broker.SubmitOrder(ctx, req)
	if err != nil {
		Capture(ctx, c.exceptions, "protection_controller", "SubmitOrder", "error", err,
			map[string]interface{}{"contract": pos.ContractID, "stop": stop.String()})
		return false
	}

	log.WithFields(map[string]interface{}{
		"stop":          stop.String(),
		"stop_order_id": stopOrderID,
	}).Info("protective stop submitted")

	if order != nil {
		if err := c.orders.UpdateProtection(ctx, order.ID, model.ProtectionStatusSubmitted, stopOrderID); err != nil {
			Capture(ctx, c.exceptions, "protection_controller", "UpdateProtection", "error", err,
				map[string]interface{}{"order_id": order.ID})
		}
	}

	// Submitted this cycle; it counts as working from the next pass on, once
	// the book confirms it.
	return false
}

// trail advances the working stop when the latest price has earned a better
// one. Replacement is cancel then submit; the unprotected window in between
// is why the submit happens in the same pass.
func (c *ProtectionController) trail(
	ctx context.Context,
	pos *connectors.Position,
	order *model.Order,
	working *connectors.BrokerOrder,
	side tp_sl.Side,
	price decimal.Decimal,
	log *logger.Entry,
) {

	currentStop := working.TriggerPrice
	if currentStop.LessThanOrEqual(decimal.Zero) {
		currentStop = c.stopFor(order, pos, side)
	}

	var newStop decimal.Decimal
	var moved bool
	if c.config.RangedTrailing {
		mult := decimal.NewFromFloat(c.config.RangedTrailingMul)
		newStop, moved = tp_sl.NextTrailingStopRanged(side, currentStop, price, c.rangeSamples(pos.ContractID), mult)
	} else {
		newStop, moved = tp_sl.NextTrailingStop(side, currentStop, price)
	}
	if !moved {
		return
	}

	if err := c.broker.CancelOrder(ctx, working.OrderID); err != nil {
		Capture(ctx, c.exceptions, "protection_controller", "CancelOrder", "error", err,
			map[string]interface{}{"contract": pos.ContractID, "stop_order_id": working.OrderID})
		return
	}

	req := protectiveStopRequest(pos, newStop)
	stopOrderID, err := c.broker.SubmitOrder(ctx, req)
	if err != nil {
		// The old stop is already cancelled; the position is exposed until
		// the next pass re-places it from the persisted ratchet base.
		Capture(ctx, c.exceptions, "protection_controller", "SubmitOrder", "error", err,
			map[string]interface{}{"contract": pos.ContractID, "stop": newStop.String()})
		return
	}

	if order != nil {
		if err := c.orders.UpdateCurrentStop(ctx, order.ID, newStop); err != nil {
			Capture(ctx, c.exceptions, "protection_controller", "UpdateCurrentStop", "error", err,
				map[string]interface{}{"order_id": order.ID})
		}
		if err := c.orders.UpdateProtection(ctx, order.ID, model.ProtectionStatusActive, stopOrderID); err != nil {
			Capture(ctx, c.exceptions, "protection_controller", "UpdateProtection", "error", err,
				map[string]interface{}{"order_id": order.ID})
		}
	}

	c.stats.IncTrailAdvances()

	log.WithFields(map[string]interface{}{
		"old_stop": currentStop.String(),
		"new_stop": newStop.String(),
		"price":    price.String(),
	}).Info("trailing stop advanced")
}

func (c *ProtectionController) observeMark(contractID string, price decimal.Decimal) {
	w := c.ranges[contractID]
	if w == nil {
		w = &priceWindow{}
		c.ranges[contractID] = w
	}
	w.observe(price)
}

func (c *ProtectionController) rangeSamples(contractID string) []tp_sl.PriceRange {
	if w := c.ranges[contractID]; w != nil {
		return w.samples()
	}
	return nil
}

// FlattenAll market-exits every open position, cancelling its working stop
// first so the exit and the stop cannot both fill.
func (c *ProtectionController) FlattenAll(ctx context.Context) error {
	return c.flatten(ctx, "")
}

// FlattenVenue flattens only the positions trading on one venue, for the
// session-close job where the other venue is still open.
func (c *ProtectionController) FlattenVenue(ctx context.Context, venue string) error {
	return c.flatten(ctx, venue)
}

func (c *ProtectionController) flatten(ctx context.Context, venue string) error {
	positions, err := c.broker.ListOpenPositions(ctx)
	if err != nil {
		Capture(ctx, c.exceptions, "protection_controller", "ListOpenPositions", "error", err, nil)
		return err
	}
	if len(positions) == 0 {
		return nil
	}
	book, err := c.broker.ListOrders(ctx)
	if err != nil {
		Capture(ctx, c.exceptions, "protection_controller", "ListOrders", "error", err, nil)
		return err
	}

	logger.WithFields(map[string]interface{}{
		"count": len(positions),
		"venue": venue,
	}).Warn("force flattening open positions")

	for i := range positions {
		pos := &positions[i]
		if venue != "" && pos.Venue != venue {
			continue
		}

		if working := findProtectiveStop(pos, book); working != nil {
			if err := c.broker.CancelOrder(ctx, working.OrderID); err != nil {
				Capture(ctx, c.exceptions, "protection_controller", "CancelOrder", "error", err,
					map[string]interface{}{"contract": pos.ContractID})
				continue
			}
		}

		req := connectors.SubmitOrderRequest{
			ClientOrderID: uuid.NewString(),
			ContractID:    pos.ContractID,
			Venue:         pos.Venue,
			Action:        exitAction(pos),
			Quantity:      absQuantity(pos),
			OrderType:     connectors.OrderTypeMarket,
		}
		if _, err := c.broker.SubmitOrder(ctx, req); err != nil {
			Capture(ctx, c.exceptions, "protection_controller", "SubmitOrder", "error", err,
				map[string]interface{}{"contract": pos.ContractID})
		}
	}
	return nil
}

// findProtectiveStop scans the order book for a live stop order on the exit
// side of the position.
func findProtectiveStop(pos *connectors.Position, book []connectors.BrokerOrder) *connectors.BrokerOrder {
	exit := exitAction(pos)
	for i := range book {
		o := &book[i]
		if o.ContractID != pos.ContractID {
			continue
		}
		if o.OrderType != connectors.OrderTypeStopLoss || o.Action != exit {
			continue
		}
		if o.State == connectors.OrderStateOpen || o.State == connectors.OrderStateTriggered {
			return o
		}
	}
	return nil
}

func protectiveStopRequest(pos *connectors.Position, stop decimal.Decimal) connectors.SubmitOrderRequest {
	return connectors.SubmitOrderRequest{
		ClientOrderID: uuid.NewString(),
		ContractID:    pos.ContractID,
		Venue:         pos.Venue,
		Action:        exitAction(pos),
		Quantity:      absQuantity(pos),
		Price:         stop,
		TriggerPrice:  stop,
		OrderType:     connectors.OrderTypeStopLoss,
	}
}

func exitAction(pos *connectors.Position) string {
	if pos.Short() {
		return model.ActionBuy
	}
	return model.ActionSell
}

func absQuantity(pos *connectors.Position) int {
	if pos.Quantity < 0 {
		return -pos.Quantity
	}
	return pos.Quantity
}

const (
	// priceWindowCap bounds the per-contract mark history.
	priceWindowCap = 12
	// minRangeSamples is how many consecutive-pair ranges must exist before
	// the range-scaled distance is trusted over the fixed rule.
	minRangeSamples = 3
)

// priceWindow is a bounded history of marks seen for one contract across
// reconcile cycles. Consecutive pairs become high/low samples, a realized
// range proxy for the range-scaled trailing distance.
type priceWindow struct {
	prices []decimal.Decimal
}

func (w *priceWindow) observe(price decimal.Decimal) {
	if price.LessThanOrEqual(decimal.Zero) {
		return
	}
	w.prices = append(w.prices, price)
	if len(w.prices) > priceWindowCap {
		w.prices = w.prices[len(w.prices)-priceWindowCap:]
	}
}

// samples pairs consecutive marks into ranges. Under minRangeSamples it
// returns nil so the trail falls back to the fixed rule until the window has
// warmed up.
func (w *priceWindow) samples() []tp_sl.PriceRange {
	if len(w.prices) < minRangeSamples+1 {
		return nil
	}
	out := make([]tp_sl.PriceRange, 0, len(w.prices)-1)
	for i := 1; i < len(w.prices); i++ {
		lo, hi := w.prices[i-1], w.prices[i]
		if lo.GreaterThan(hi) {
			lo, hi = hi, lo
		}
		out = append(out, tp_sl.PriceRange{High: hi, Low: lo})
	}
	return out
}
