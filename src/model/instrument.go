package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	VenueNFO = "NFO"
	VenueMCX = "MCX"
)

// Instrument is one read-only row of the reference instrument snapshot.
// Rows are replaced wholesale on refresh (keyed by SnapshotID), never mutated
// individually.
type Instrument struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	ContractID string          `gorm:"size:60;index" json:"contract_id"`
	Symbol     string          `gorm:"size:30;index" json:"symbol"`
	Strike     decimal.Decimal `gorm:"type:numeric" json:"strike"`
	Kind       string          `gorm:"size:4" json:"kind"`
	Expiry     time.Time       `gorm:"index" json:"expiry"`
	LotSize    int             `json:"lot_size"`
	TickSize   decimal.Decimal `gorm:"type:numeric" json:"tick_size"`
	Venue      string          `gorm:"size:10" json:"venue"`

	// SnapshotID groups the rows of one wholesale refresh.
	SnapshotID string    `gorm:"size:40;index" json:"snapshot_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName Ensures that GORM uses the exact table name from the database.
func (Instrument) TableName() string {
	return "instruments"
}
