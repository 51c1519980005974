package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusSubmitted = "submitted"
	OrderStatusFilled    = "filled"
	OrderStatusRejected  = "rejected"
)

const (
	ProtectionStatusUnprotected = "unprotected"
	ProtectionStatusSubmitted   = "protection_submitted"
	ProtectionStatusActive      = "protection_active"
)

// Order represents one entry order submitted to the brokerage for a signal.
// SignalID carries a unique index: the signal's single state transition is what
// enforces at most one order per signal, the index is the schema-level backstop.
type Order struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	SignalID uint `gorm:"uniqueIndex" json:"signal_id"`

	ContractID string `gorm:"size:60;index" json:"contract_id"`
	Symbol     string `gorm:"size:30;index" json:"symbol"`
	Venue      string `gorm:"size:10" json:"venue"`
	Action     string `gorm:"size:10" json:"action"`
	Quantity   int    `json:"quantity"`

	EntryPrice decimal.Decimal `gorm:"type:numeric" json:"entry_price"`
	StopLoss   decimal.Decimal `gorm:"type:numeric" json:"stop_loss"`
	// CurrentStop is the trailing engine's ratchet base; starts at StopLoss and
	// only ever tightens.
	CurrentStop decimal.Decimal `gorm:"type:numeric" json:"current_stop"`

	// ClientOrderID is the idempotency key sent with the entry submission so a
	// crash between submission and the status flip is detectable at the broker.
	ClientOrderID string `gorm:"size:40;index" json:"client_order_id"`
	BrokerOrderID string `gorm:"size:60" json:"broker_order_id,omitempty"`
	// ProtectionOrderID is the broker id of the active protective stop, if any.
	ProtectionOrderID string `gorm:"size:60" json:"protection_order_id,omitempty"`

	Status           string `gorm:"size:30;not null;default:pending" json:"status"`
	ProtectionStatus string `gorm:"size:30;not null;default:unprotected" json:"protection_status"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	FilledAt    *time.Time `json:"filled_at,omitempty"`
	ProtectedAt *time.Time `json:"protected_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}
