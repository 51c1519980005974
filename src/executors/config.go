package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Encrypted brokerage credentials; decrypted with src/security at startup.
	BrokerAPIKeyHash    string `envconfig:"BROKER_API_KEY"`
	BrokerAPISecretHash string `envconfig:"BROKER_API_SECRET"`

	// EntryLoopPeriod drives the lifecycle engine; ProtectionLoopPeriod drives
	// reconciliation. The two loops are independent single owners of their
	// state machines.
	EntryLoopPeriod      time.Duration `envconfig:"ENTRY_LOOP_PERIOD" default:"10s"`
	ProtectionLoopPeriod time.Duration `envconfig:"PROTECTION_LOOP_PERIOD" default:"30s"`

	// CatalogRefreshCron schedules the daily instrument snapshot reload,
	// before the NFO open (times are server-local, expected IST).
	CatalogRefreshCron string `envconfig:"CATALOG_REFRESH_CRON" default:"0 8 * * 1-5"`

	// ForceFlattenWithin is how close to session close the force-flatten job
	// fires, when enabled.
	ForceFlattenWithin time.Duration `envconfig:"FORCE_FLATTEN_WITHIN" default:"5m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
