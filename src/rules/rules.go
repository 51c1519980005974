package rules

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Noise configures the cheap pre-filter that keeps obvious non-signals away
// from the paid fallback extractor.
type Noise struct {
	MinWords int      `yaml:"min_words"`
	Keywords []string `yaml:"keywords"`
}

// FallbackExample is one worked example sent to the fallback extractor as
// few-shot context.
type FallbackExample struct {
	Text   string `yaml:"text"`
	Intent string `yaml:"intent"` // JSON body of the expected reply
}

// FallbackContext is the fixed context bundle attached to every fallback call.
type FallbackContext struct {
	Instructions string            `yaml:"instructions"`
	Examples     []FallbackExample `yaml:"examples"`
}

// Root holds the static trading-rules data: noise keywords, symbol aliases and
// the fallback context bundle. Loaded once at startup, read-only afterwards.
type Root struct {
	Noise    Noise             `yaml:"noise"`
	Aliases  map[string]string `yaml:"aliases"`
	Fallback FallbackContext   `yaml:"fallback"`
}

type Config struct {
	RulesPath string `envconfig:"RULES_PATH" default:"rules.yaml"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Load reads the rules file from path. An empty path uses RULES_PATH.
func Load(path string) (Root, error) {
	if path == "" {
		path = GetConfig().RulesPath
	}

	c := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse rules file: %w", err)
	}

	if c.Noise.MinWords <= 0 {
		c.Noise.MinWords = 3
	}
	return c, nil
}

// Default returns a usable rules set for when no file is present.
func Default() Root {
	return Root{
		Noise: Noise{
			MinWords: 3,
			Keywords: []string{
				"good morning", "good evening", "good night", "welcome",
				"join", "subscribe", "premium", "offer", "dm for", "paid group",
				"congratulations", "thanks", "thank you", "happy",
			},
		},
		Aliases: map[string]string{
			"NIFTY50":    "NIFTY",
			"NIFTY 50":   "NIFTY",
			"BANK NIFTY": "BANKNIFTY",
			"BNF":        "BANKNIFTY",
			"GOLDM":      "GOLD",
			"CRUDE":      "CRUDEOIL",
		},
		Fallback: FallbackContext{
			Instructions: "Extract a trade intent from the message. Reply with a single JSON object " +
				"with keys action (BUY/SELL), symbol, strike, kind (CE/PE), entry, stop_loss, " +
				"targets, expiry_month, monthly, quantity. Omit unknown fields. Reply with {} if " +
				"the message is not a trade call.",
		},
	}
}
