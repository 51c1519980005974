package parser

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/model"
	"signalexecutor/src/rules"
	"signalexecutor/src/stats"
)

// FallbackExtractor is the language-model boundary used when deterministic
// extraction yields nothing. A malformed or incomplete reply comes back as
// (nil, nil): a parse failure, never an error the pipeline has to handle.
type FallbackExtractor interface {
	Extract(ctx context.Context, text string) (*model.Intent, error)
}

// Parser turns raw message text into either nil (not a signal) or a partially
// populated intent. Tier 1 is the deterministic pattern matcher; tier 2 is the
// costed fallback call, gated by the noise filter.
type Parser struct {
	rules    rules.Root
	fallback FallbackExtractor // nil disables tier 2
	stats    stats.Collector
}

func New(r rules.Root, fallback FallbackExtractor, collector stats.Collector) *Parser {
	if collector == nil {
		collector = stats.Noop{}
	}
	return &Parser{rules: r, fallback: fallback, stats: collector}
}

// Parse extracts an intent from one message. The second return value names the
// tier that produced the intent, empty when the message is not actionable.
// Both tiers failing is not an error: the message is simply not a signal.
func (p *Parser) Parse(ctx context.Context, text string) (*model.Intent, string) {
	p.stats.IncMessagesSeen()

	if intent := ParseTier1(text); intent != nil {
		p.stats.IncParsed(model.ParseTierPattern)
		return intent, model.ParseTierPattern
	}

	if LooksLikeNoise(text, p.rules.Noise) {
		p.stats.IncNoiseFiltered()
		return nil, ""
	}

	if p.fallback == nil {
		return nil, ""
	}

	p.stats.IncFallbackCalls()
	intent, err := p.fallback.Extract(ctx, text)
	if err != nil {
		// The fallback boundary being down or replying garbage downgrades to a
		// parse failure; the pipeline never marks a signal error for this.
		logger.WithError(err).Warn("fallback extraction failed, treating as not a signal")
		return nil, ""
	}

	if intent == nil || !intent.HasMinimum() {
		return nil, ""
	}

	p.stats.IncParsed(model.ParseTierFallback)
	return intent, model.ParseTierFallback
}
