package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Brokerage boundary. Key/secret arrive encrypted and are decrypted by
	// src/security at startup.
	BrokerBaseURL string        `envconfig:"BROKER_BASE_URL" default:"https://api.broker.test"`
	BrokerTimeout time.Duration `envconfig:"BROKER_TIMEOUT" default:"10s"`
	// BrokerRPS caps outbound broker calls; the APIs at this boundary are
	// rate-limited and submission order matters.
	BrokerRPS float64 `envconfig:"BROKER_RPS" default:"3"`

	// Language-model fallback service.
	FallbackBaseURL string        `envconfig:"FALLBACK_BASE_URL" default:""`
	FallbackAPIKey  string        `envconfig:"FALLBACK_API_KEY" default:""`
	FallbackModel   string        `envconfig:"FALLBACK_MODEL" default:"gpt-4o-mini"`
	FallbackTimeout time.Duration `envconfig:"FALLBACK_TIMEOUT" default:"20s"`

	// Reference instrument source.
	InstrumentsURL     string        `envconfig:"INSTRUMENTS_URL" default:""`
	InstrumentsTimeout time.Duration `envconfig:"INSTRUMENTS_TIMEOUT" default:"60s"`

	// Messaging source websocket.
	MessagingURL   string `envconfig:"MESSAGING_URL" default:""`
	MessagingToken string `envconfig:"MESSAGING_TOKEN" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
