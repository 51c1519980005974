package controller

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signalexecutor/src/connectors"
	"signalexecutor/src/model"
	"signalexecutor/src/stats"
)

type fakeProtOrderRepo struct {
	byContract  map[string]*model.Order
	protection  map[uint]string
	protOrderID map[uint]string
	stops       map[uint]decimal.Decimal
}

func (f *fakeProtOrderRepo) FindLatestByContractID(_ context.Context, contractID string) (*model.Order, error) {
	return f.byContract[contractID], nil
}

func (f *fakeProtOrderRepo) UpdateProtection(_ context.Context, orderID uint, newStatus string, protectionOrderID string) error {
	if f.protection == nil {
		f.protection = make(map[uint]string)
		f.protOrderID = make(map[uint]string)
	}
	f.protection[orderID] = newStatus
	if protectionOrderID != "" {
		f.protOrderID[orderID] = protectionOrderID
	}
	return nil
}

func (f *fakeProtOrderRepo) UpdateCurrentStop(_ context.Context, orderID uint, stop decimal.Decimal) error {
	if f.stops == nil {
		f.stops = make(map[uint]decimal.Decimal)
	}
	f.stops[orderID] = stop
	return nil
}

type fakeProtBroker struct {
	positions []connectors.Position
	book      []connectors.BrokerOrder
	ltp       decimal.Decimal

	submits    []connectors.SubmitOrderRequest
	cancelled  []string
	quoteCalls []string
	nextID     string
}

func (f *fakeProtBroker) ListOpenPositions(_ context.Context) ([]connectors.Position, error) {
	return f.positions, nil
}

func (f *fakeProtBroker) ListOrders(_ context.Context) ([]connectors.BrokerOrder, error) {
	return f.book, nil
}

func (f *fakeProtBroker) SubmitOrder(_ context.Context, req connectors.SubmitOrderRequest) (string, error) {
	f.submits = append(f.submits, req)
	if f.nextID == "" {
		return "STOP-1", nil
	}
	return f.nextID, nil
}

func (f *fakeProtBroker) CancelOrder(_ context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeProtBroker) LastTradedPrice(_ context.Context, contractID string) (decimal.Decimal, error) {
	f.quoteCalls = append(f.quoteCalls, contractID)
	return f.ltp, nil
}

func newTestProtectionController(broker *fakeProtBroker, orders *fakeProtOrderRepo) *ProtectionController {
	return &ProtectionController{
		config:            Config{UnprotectedAlertCycles: 3},
		broker:            broker,
		orders:            orders,
		stats:             stats.Noop{},
		now:               func() time.Time { return tradingTime },
		unprotectedCycles: make(map[string]int),
		ranges:            make(map[string]*priceWindow),
	}
}

func longPosition() connectors.Position {
	return connectors.Position{
		ContractID:    "NIFTY26AUG24500CE",
		Symbol:        "NIFTY",
		Venue:         model.VenueNFO,
		Quantity:      75,
		AvgEntryPrice: d("155"),
		LastPrice:     d("156"),
	}
}

func workingStop(trigger string) connectors.BrokerOrder {
	return connectors.BrokerOrder{
		OrderID:      "STOP-OLD",
		ContractID:   "NIFTY26AUG24500CE",
		Action:       model.ActionSell,
		Quantity:     75,
		Price:        d(trigger),
		TriggerPrice: d(trigger),
		OrderType:    connectors.OrderTypeStopLoss,
		State:        connectors.OrderStateOpen,
	}
}

func TestReconcilePlacesMissingStop(t *testing.T) {
	broker := &fakeProtBroker{positions: []connectors.Position{longPosition()}}
	orders := &fakeProtOrderRepo{byContract: map[string]*model.Order{
		"NIFTY26AUG24500CE": {ID: 1, CurrentStop: d("147")},
	}}

	c := newTestProtectionController(broker, orders)
	if err := c.ReconcileProtection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(broker.submits) != 1 {
		t.Fatalf("expected 1 protective submission, got %d", len(broker.submits))
	}
	req := broker.submits[0]
	if req.OrderType != connectors.OrderTypeStopLoss || req.Action != model.ActionSell {
		t.Fatalf("wrong protective order shape: %+v", req)
	}
	if !req.TriggerPrice.Equal(d("147")) {
		t.Fatalf("expected stop at 147, got %s", req.TriggerPrice.String())
	}
	if orders.protection[1] != model.ProtectionStatusSubmitted {
		t.Fatalf("expected protection_submitted, got %q", orders.protection[1])
	}
}

func TestReconcileFallbackStopForUntrackedPosition(t *testing.T) {
	broker := &fakeProtBroker{positions: []connectors.Position{longPosition()}}
	orders := &fakeProtOrderRepo{}

	c := newTestProtectionController(broker, orders)
	if err := c.ReconcileProtection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(broker.submits) != 1 {
		t.Fatalf("expected 1 protective submission, got %d", len(broker.submits))
	}
	// 5% below the average entry of 155.
	if !broker.submits[0].TriggerPrice.Equal(d("147.25")) {
		t.Fatalf("expected fallback stop 147.25, got %s", broker.submits[0].TriggerPrice.String())
	}
}

func TestReconcilePromotesConfirmedStop(t *testing.T) {
	broker := &fakeProtBroker{
		positions: []connectors.Position{longPosition()},
		book:      []connectors.BrokerOrder{workingStop("147")},
	}
	orders := &fakeProtOrderRepo{byContract: map[string]*model.Order{
		"NIFTY26AUG24500CE": {ID: 1, CurrentStop: d("147"), ProtectionStatus: model.ProtectionStatusSubmitted},
	}}

	c := newTestProtectionController(broker, orders)
	if err := c.ReconcileProtection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if orders.protection[1] != model.ProtectionStatusActive {
		t.Fatalf("expected protection_active, got %q", orders.protection[1])
	}
	// Price 156 clears the 154.35 gate and the 148.2 candidate tightens the
	// stop, so the same pass also trails.
	if len(broker.cancelled) != 1 {
		t.Fatalf("expected trail to replace the stop, cancels=%v", broker.cancelled)
	}
}

func TestReconcileTrailsProtectedPosition(t *testing.T) {
	pos := longPosition()
	pos.LastPrice = d("165")

	broker := &fakeProtBroker{
		positions: []connectors.Position{pos},
		book:      []connectors.BrokerOrder{workingStop("147")},
		nextID:    "STOP-NEW",
	}
	orders := &fakeProtOrderRepo{byContract: map[string]*model.Order{
		"NIFTY26AUG24500CE": {ID: 1, CurrentStop: d("147"), ProtectionStatus: model.ProtectionStatusActive},
	}}

	c := newTestProtectionController(broker, orders)
	if err := c.ReconcileProtection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(broker.cancelled) != 1 || broker.cancelled[0] != "STOP-OLD" {
		t.Fatalf("old stop not cancelled: %v", broker.cancelled)
	}
	if len(broker.submits) != 1 {
		t.Fatalf("expected 1 replacement stop, got %d", len(broker.submits))
	}
	if !broker.submits[0].TriggerPrice.Equal(d("156.75")) {
		t.Fatalf("expected new stop 156.75, got %s", broker.submits[0].TriggerPrice.String())
	}
	if !orders.stops[1].Equal(d("156.75")) {
		t.Fatalf("ratchet base not persisted: %v", orders.stops)
	}
	if orders.protOrderID[1] != "STOP-NEW" {
		t.Fatalf("protection order id not updated: %v", orders.protOrderID)
	}
}

func TestReconcileRangedTrailingUsesObservedRanges(t *testing.T) {
	broker := &fakeProtBroker{
		positions: []connectors.Position{longPosition()},
		book:      []connectors.BrokerOrder{workingStop("147")},
		nextID:    "STOP-NEW",
	}
	orders := &fakeProtOrderRepo{byContract: map[string]*model.Order{
		"NIFTY26AUG24500CE": {ID: 1, CurrentStop: d("147"), ProtectionStatus: model.ProtectionStatusActive},
	}}

	c := newTestProtectionController(broker, orders)
	c.config.RangedTrailing = true
	c.config.RangedTrailingMul = 2.0

	// Warm the mark window across cycles; none of these clears the 154.35
	// gate, so the stop holds at 147 while ranges accumulate.
	for _, price := range []string{"150", "152", "151", "153"} {
		broker.positions[0].LastPrice = d(price)
		if err := c.ReconcileProtection(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(broker.submits) != 0 {
		t.Fatalf("stop must not move during warmup, got %d submits", len(broker.submits))
	}

	// Marks 150,152,151,153,165 pair into spans 2,1,2,12; avg 4.25 times the
	// 2x multiplier gives a distance of 8.5, so the stop lands at 156.5 where
	// the fixed rule would give 156.75.
	broker.positions[0].LastPrice = d("165")
	if err := c.ReconcileProtection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(broker.cancelled) != 1 || broker.cancelled[0] != "STOP-OLD" {
		t.Fatalf("old stop not cancelled: %v", broker.cancelled)
	}
	if len(broker.submits) != 1 {
		t.Fatalf("expected 1 replacement stop, got %d", len(broker.submits))
	}
	if !broker.submits[0].TriggerPrice.Equal(d("156.5")) {
		t.Fatalf("expected range-scaled stop 156.5, got %s", broker.submits[0].TriggerPrice.String())
	}
	if !orders.stops[1].Equal(d("156.5")) {
		t.Fatalf("ratchet base not persisted: %v", orders.stops)
	}
}

func TestReconcileFetchesQuoteWhenMarkMissing(t *testing.T) {
	pos := longPosition()
	pos.LastPrice = decimal.Zero

	broker := &fakeProtBroker{
		positions: []connectors.Position{pos},
		book:      []connectors.BrokerOrder{workingStop("147")},
		ltp:       d("165"),
		nextID:    "STOP-NEW",
	}
	orders := &fakeProtOrderRepo{byContract: map[string]*model.Order{
		"NIFTY26AUG24500CE": {ID: 1, CurrentStop: d("147"), ProtectionStatus: model.ProtectionStatusActive},
	}}

	c := newTestProtectionController(broker, orders)
	if err := c.ReconcileProtection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(broker.quoteCalls) != 1 || broker.quoteCalls[0] != "NIFTY26AUG24500CE" {
		t.Fatalf("expected a quote fetch for the bare position, got %v", broker.quoteCalls)
	}
	if len(broker.submits) != 1 || !broker.submits[0].TriggerPrice.Equal(d("156.75")) {
		t.Fatalf("expected trail to 156.75 from the fetched quote, submits=%v", broker.submits)
	}
}

func TestReconcileDoesNotLoosenStop(t *testing.T) {
	pos := longPosition()
	pos.LastPrice = d("150")

	broker := &fakeProtBroker{
		positions: []connectors.Position{pos},
		book:      []connectors.BrokerOrder{workingStop("147")},
	}
	orders := &fakeProtOrderRepo{byContract: map[string]*model.Order{
		"NIFTY26AUG24500CE": {ID: 1, CurrentStop: d("147"), ProtectionStatus: model.ProtectionStatusActive},
	}}

	c := newTestProtectionController(broker, orders)
	if err := c.ReconcileProtection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(broker.cancelled) != 0 || len(broker.submits) != 0 {
		t.Fatal("stop must not move when the gate is not met")
	}
}

func TestReconcileShortPosition(t *testing.T) {
	pos := connectors.Position{
		ContractID:    "BANKNIFTY26SEP52000PE",
		Symbol:        "BANKNIFTY",
		Venue:         model.VenueNFO,
		Quantity:      -35,
		AvgEntryPrice: d("320"),
		LastPrice:     d("300"),
	}
	broker := &fakeProtBroker{
		positions: []connectors.Position{pos},
		book: []connectors.BrokerOrder{{
			OrderID:      "STOP-S",
			ContractID:   "BANKNIFTY26SEP52000PE",
			Action:       model.ActionBuy,
			Quantity:     35,
			TriggerPrice: d("340"),
			OrderType:    connectors.OrderTypeStopLoss,
			State:        connectors.OrderStateOpen,
		}},
	}
	orders := &fakeProtOrderRepo{byContract: map[string]*model.Order{
		"BANKNIFTY26SEP52000PE": {ID: 2, CurrentStop: d("340"), ProtectionStatus: model.ProtectionStatusActive},
	}}

	c := newTestProtectionController(broker, orders)
	if err := c.ReconcileProtection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Gate 340*0.95=323, price 300 passes; candidate 315 tightens downward.
	if len(broker.submits) != 1 {
		t.Fatalf("expected trailing replacement, got %d submits", len(broker.submits))
	}
	if broker.submits[0].Action != model.ActionBuy {
		t.Fatalf("short exit must be a BUY stop, got %s", broker.submits[0].Action)
	}
	if !broker.submits[0].TriggerPrice.Equal(d("315")) {
		t.Fatalf("expected 315, got %s", broker.submits[0].TriggerPrice.String())
	}
}

func TestReconcileSkipsClosedVenue(t *testing.T) {
	broker := &fakeProtBroker{positions: []connectors.Position{longPosition()}}
	orders := &fakeProtOrderRepo{}

	c := newTestProtectionController(broker, orders)
	// Saturday: nothing may be placed.
	c.now = func() time.Time {
		return time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC)
	}

	if err := c.ReconcileProtection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.submits) != 0 {
		t.Fatal("no orders may be placed while the venue is closed")
	}
}

func TestReconcileUnprotectedEscalation(t *testing.T) {
	broker := &fakeProtBroker{positions: []connectors.Position{longPosition()}}
	orders := &fakeProtOrderRepo{}
	c := newTestProtectionController(broker, orders)

	for i := 0; i < 4; i++ {
		if err := c.ReconcileProtection(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if c.unprotectedCycles["NIFTY26AUG24500CE"] != 4 {
		t.Fatalf("expected 4 unprotected cycles, got %d", c.unprotectedCycles["NIFTY26AUG24500CE"])
	}

	// Once the stop shows up in the book the counter resets.
	broker.book = []connectors.BrokerOrder{workingStop("147.25")}
	if err := c.ReconcileProtection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.unprotectedCycles["NIFTY26AUG24500CE"]; ok {
		t.Fatal("counter must reset once the position is protected")
	}
}

func TestFlattenAllExitsEveryVenue(t *testing.T) {
	nfo := longPosition()
	mcx := connectors.Position{
		ContractID: "GOLD26OCT72000CE",
		Symbol:     "GOLD",
		Venue:      model.VenueMCX,
		Quantity:   100,
		LastPrice:  d("1250"),
	}
	broker := &fakeProtBroker{
		positions: []connectors.Position{nfo, mcx},
		book:      []connectors.BrokerOrder{workingStop("147")},
	}

	c := newTestProtectionController(broker, &fakeProtOrderRepo{})
	if err := c.FlattenAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(broker.cancelled) != 1 || broker.cancelled[0] != "STOP-OLD" {
		t.Fatalf("working stop must be cancelled before the exit: %v", broker.cancelled)
	}
	if len(broker.submits) != 2 {
		t.Fatalf("expected both positions exited, got %d", len(broker.submits))
	}
	for _, exit := range broker.submits {
		if exit.OrderType != connectors.OrderTypeMarket {
			t.Fatalf("exit must be a market order: %+v", exit)
		}
	}
}

func TestFlattenVenue(t *testing.T) {
	nfo := longPosition()
	mcx := connectors.Position{
		ContractID: "GOLD26OCT72000CE",
		Symbol:     "GOLD",
		Venue:      model.VenueMCX,
		Quantity:   100,
		LastPrice:  d("1250"),
	}
	broker := &fakeProtBroker{
		positions: []connectors.Position{nfo, mcx},
		book:      []connectors.BrokerOrder{workingStop("147")},
	}
	orders := &fakeProtOrderRepo{}

	c := newTestProtectionController(broker, orders)
	if err := c.FlattenVenue(context.Background(), model.VenueNFO); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(broker.cancelled) != 1 || broker.cancelled[0] != "STOP-OLD" {
		t.Fatalf("working stop must be cancelled before the exit: %v", broker.cancelled)
	}
	if len(broker.submits) != 1 {
		t.Fatalf("expected 1 exit, got %d", len(broker.submits))
	}
	exit := broker.submits[0]
	if exit.ContractID != "NIFTY26AUG24500CE" || exit.OrderType != connectors.OrderTypeMarket ||
		exit.Action != model.ActionSell || exit.Quantity != 75 {
		t.Fatalf("unexpected exit order: %+v", exit)
	}
}
