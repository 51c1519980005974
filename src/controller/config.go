package controller

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SignalBatchSize bounds how many pending signals one entry cycle takes on.
	SignalBatchSize int `envconfig:"SIGNAL_BATCH_SIZE" default:"50"`

	// Bounded backoff for transient brokerage failures during submission.
	SubmitRetryAttempts  int           `envconfig:"SUBMIT_RETRY_ATTEMPTS" default:"3"`
	SubmitRetryBaseDelay time.Duration `envconfig:"SUBMIT_RETRY_BASE_DELAY" default:"500ms"`

	// UnprotectedAlertCycles is how many reconciliation cycles a position may
	// stay unprotected before the priority alert fires.
	UnprotectedAlertCycles int `envconfig:"UNPROTECTED_ALERT_CYCLES" default:"3"`

	// RangedTrailing switches the trailing engine to the range-scaled stop
	// distance; the fixed 5% rule is the default.
	RangedTrailing    bool    `envconfig:"RANGED_TRAILING" default:"false"`
	RangedTrailingMul float64 `envconfig:"RANGED_TRAILING_MUL" default:"2.0"`

	// ForceFlatten exits all open positions once at venue session close.
	ForceFlatten bool `envconfig:"FORCE_FLATTEN" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
