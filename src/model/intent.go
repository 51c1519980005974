package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

const (
	KindCall = "CE"
	KindPut  = "PE"
)

// Intent is the structured trade extracted from one channel message. Only
// Action, Symbol and Entry are guaranteed after a successful parse; the rest
// is best effort and gets validated downstream.
type Intent struct {
	Action      string            `json:"action"`
	Symbol      string            `json:"symbol"`
	Strike      *decimal.Decimal  `json:"strike,omitempty"`
	Kind        string            `json:"kind,omitempty"`
	Entry       *decimal.Decimal  `json:"entry,omitempty"`
	StopLoss    *decimal.Decimal  `json:"stop_loss,omitempty"`
	Targets     []decimal.Decimal `json:"targets,omitempty"`
	Quantity    *int              `json:"quantity,omitempty"`
	ExpiryMonth string            `json:"expiry_month,omitempty"`
	Monthly     bool              `json:"monthly,omitempty"`
}

// HasMinimum reports whether the intent carries the smallest set of fields
// that can ever become an order: a direction, an underlying and an entry.
func (i *Intent) HasMinimum() bool {
	return i != nil &&
		(i.Action == ActionBuy || i.Action == ActionSell) &&
		i.Symbol != "" &&
		i.Entry != nil
}

// OrderIntent is a fully resolved, submittable trade: every field is bound to
// a concrete listed contract. It is a value passed between the resolver and
// the lifecycle engine, never persisted as is.
type OrderIntent struct {
	SignalID   uint
	ContractID string
	Symbol     string
	Venue      string
	Action     string
	Quantity   int
	LotSize    int
	TickSize   decimal.Decimal
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	Targets    []decimal.Decimal
	Expiry     time.Time
}

// Short is a compact single-line rendering for log lines.
func (o *OrderIntent) Short() string {
	return fmt.Sprintf("%s %d %s @ %s SL %s",
		o.Action, o.Quantity, o.ContractID, o.EntryPrice.String(), o.StopLoss.String())
}
