package controller

import (
	"context"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/catalog"
	"signalexecutor/src/connectors"
	"signalexecutor/src/model"
	"signalexecutor/src/repository"
	"signalexecutor/src/resolver"
	"signalexecutor/src/risk"
	"signalexecutor/src/stats"
)

// Boundary-failure reasons recorded on signals that resolved fine but could
// not be submitted. Resolution rejections use the resolver's enumeration.
const (
	ReasonBoundaryTransient = "transient_boundary_error"
	ReasonBoundaryTerminal  = "terminal_boundary_error"
)

type signalRepository interface {
	FindPending(ctx context.Context, limit int) ([]model.Signal, error)
	MarkDone(ctx context.Context, id uint) error
	MarkError(ctx context.Context, id uint, reason string) error
}

type orderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindBySignalID(ctx context.Context, signalID uint) (*model.Order, error)
	MarkSubmitted(ctx context.Context, orderID uint, brokerOrderID string) error
	UpdateStatus(ctx context.Context, orderID uint, newStatus string) error
}

type entryBroker interface {
	SubmitOrder(ctx context.Context, order connectors.SubmitOrderRequest) (string, error)
}

type catalogProvider interface {
	Current() *catalog.Snapshot
}

var (
	newSignalRepo = func() signalRepository {
		return repository.NewSignalRepository()
	}
	newOrderRepo = func() orderRepository {
		return repository.NewOrderRepository()
	}
	newExceptionRepo = func() exceptionRepository {
		return repository.NewExceptionRepository()
	}
)

// EntryController is the order lifecycle engine: it drains pending signals,
// resolves them against the catalog and submits entries exactly once per
// signal. Single-owner: only one process may run this loop against a store.
type EntryController struct {
	config     Config
	broker     entryBroker
	resolver   *resolver.Resolver
	catalog    catalogProvider
	signals    signalRepository
	orders     orderRepository
	exceptions exceptionRepository
	stats      stats.Collector
	now        func() time.Time
}

func NewEntryController(
	cfg Config,
	broker entryBroker,
	res *resolver.Resolver,
	cat catalogProvider,
	collector stats.Collector,
) *EntryController {

	if collector == nil {
		collector = stats.Noop{}
	}
	return &EntryController{
		config:     cfg,
		broker:     broker,
		resolver:   res,
		catalog:    cat,
		signals:    newSignalRepo(),
		orders:     newOrderRepo(),
		exceptions: newExceptionRepo(),
		stats:      collector,
		now:        time.Now,
	}
}

// ProcessPendingSignals runs one entry cycle: each pending signal is resolved
// and submitted sequentially, in arrival order. Cancellation is checked
// between items so shutdown never abandons a half-written record.
func (c *EntryController) ProcessPendingSignals(ctx context.Context) error {
	signals, err := c.signals.FindPending(ctx, c.config.SignalBatchSize)
	if err != nil {
		Capture(ctx, c.exceptions, "entry_controller", "FindPending", "error", err, nil)
		return err
	}
	if len(signals) == 0 {
		return nil
	}

	logger.WithField("count", len(signals)).Info("processing pending signals")

	for i := range signals {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.processSignal(ctx, &signals[i])
	}
	return nil
}

func (c *EntryController) processSignal(ctx context.Context, signal *model.Signal) {
	log := logger.WithFields(map[string]interface{}{
		"signal_id": signal.ID,
		"channel":   signal.ChannelName,
	})

	if !signal.Actionable() {
		// Parse produced nothing usable; not an error, just not a signal.
		if err := c.signals.MarkDone(ctx, signal.ID); err != nil {
			Capture(ctx, c.exceptions, "entry_controller", "MarkDone", "error", err,
				map[string]interface{}{"signal_id": signal.ID})
		}
		return
	}

	// A crash after order creation but before the signal flip leaves this
	// pair behind; restore the invariant instead of submitting again.
	existing, err := c.orders.FindBySignalID(ctx, signal.ID)
	if err != nil {
		Capture(ctx, c.exceptions, "entry_controller", "FindBySignalID", "error", err,
			map[string]interface{}{"signal_id": signal.ID})
		return
	}
	if existing != nil {
		log.WithField("order_id", existing.ID).
			Warn("order already exists for pending signal, repairing status flag")
		if err := c.signals.MarkDone(ctx, signal.ID); err != nil {
			Capture(ctx, c.exceptions, "entry_controller", "MarkDone", "error", err,
				map[string]interface{}{"signal_id": signal.ID})
		}
		return
	}

	orderIntent, reason := c.resolver.Resolve(signal.ID, signal.Intent, c.catalog.Current(), signal.ReceivedAt)
	if reason != resolver.RejectNone {
		log.WithField("reason", string(reason)).Info("signal rejected at resolution")
		c.stats.IncRejections(string(reason))
		if err := c.signals.MarkError(ctx, signal.ID, string(reason)); err != nil {
			Capture(ctx, c.exceptions, "entry_controller", "MarkError", "error", err,
				map[string]interface{}{"signal_id": signal.ID})
		}
		return
	}

	if !risk.IsMarketOpen(orderIntent.Venue, c.now()) {
		// Stay pending; the next cycle inside the session window picks it up.
		log.WithFields(map[string]interface{}{
			"venue":     orderIntent.Venue,
			"next_open": risk.NextOpen(orderIntent.Venue, c.now()).Format(time.RFC3339),
		}).Debug("venue closed, deferring submission")
		return
	}

	c.submit(ctx, signal, orderIntent)
}

// submit creates the order record, pushes the entry through the brokerage
// boundary with bounded backoff, then flips both records. The window between
// a successful submission and the status writes is the documented
// at-most-one-attempt-per-restart race; the persisted ClientOrderID makes the
// outcome reconcilable at the broker.
func (c *EntryController) submit(ctx context.Context, signal *model.Signal, oi *model.OrderIntent) {
	order := &model.Order{
		SignalID:      signal.ID,
		ContractID:    oi.ContractID,
		Symbol:        oi.Symbol,
		Venue:         oi.Venue,
		Action:        oi.Action,
		Quantity:      oi.Quantity,
		EntryPrice:    oi.EntryPrice,
		StopLoss:      oi.StopLoss,
		CurrentStop:   oi.StopLoss,
		ClientOrderID: uuid.NewString(),
		Status:        model.OrderStatusPending,
	}

	if err := c.orders.Create(ctx, order); err != nil {
		Capture(ctx, c.exceptions, "entry_controller", "orders.Create", "error", err,
			map[string]interface{}{"signal_id": signal.ID})
		return
	}

	req := connectors.SubmitOrderRequest{
		ClientOrderID: order.ClientOrderID,
		ContractID:    oi.ContractID,
		Venue:         oi.Venue,
		Action:        oi.Action,
		Quantity:      oi.Quantity,
		Price:         oi.EntryPrice,
		OrderType:     connectors.OrderTypeLimit,
	}

	brokerOrderID, err := c.submitWithRetry(ctx, req)
	if err != nil {
		reason := ReasonBoundaryTerminal
		if connectors.IsTransient(err) {
			reason = ReasonBoundaryTransient
		}

		Capture(ctx, c.exceptions, "entry_controller", "SubmitOrder", "error", err,
			map[string]interface{}{
				"signal_id":       signal.ID,
				"order_id":        order.ID,
				"client_order_id": order.ClientOrderID,
			})

		if err := c.orders.UpdateStatus(ctx, order.ID, model.OrderStatusRejected); err != nil {
			Capture(ctx, c.exceptions, "entry_controller", "UpdateStatus", "error", err, nil)
		}
		if err := c.signals.MarkError(ctx, signal.ID, reason); err != nil {
			Capture(ctx, c.exceptions, "entry_controller", "MarkError", "error", err, nil)
		}
		return
	}

	if err := c.orders.MarkSubmitted(ctx, order.ID, brokerOrderID); err != nil {
		Capture(ctx, c.exceptions, "entry_controller", "MarkSubmitted", "error", err,
			map[string]interface{}{"order_id": order.ID})
	}
	if err := c.signals.MarkDone(ctx, signal.ID); err != nil {
		Capture(ctx, c.exceptions, "entry_controller", "MarkDone", "error", err,
			map[string]interface{}{"signal_id": signal.ID})
	}

	c.stats.IncOrdersSubmitted()

	logger.WithFields(map[string]interface{}{
		"signal_id":       signal.ID,
		"order_id":        order.ID,
		"broker_order_id": brokerOrderID,
		"contract":        oi.ContractID,
	}).Info("entry order submitted")
}

// submitWithRetry retries transient boundary failures with exponential
// backoff; terminal rejections and context cancellation return immediately.
func (c *EntryController) submitWithRetry(ctx context.Context, req connectors.SubmitOrderRequest) (string, error) {
	attempts := c.config.SubmitRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := c.config.SubmitRetryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		brokerOrderID, err := c.broker.SubmitOrder(ctx, req)
		if err == nil {
			return brokerOrderID, nil
		}
		lastErr = err

		if !connectors.IsTransient(err) || attempt == attempts {
			break
		}

		logger.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("transient submission failure, backing off")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return "", lastErr
}
