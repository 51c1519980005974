package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
	"signalexecutor/src/rules"
)

func TestLooksLikeNoise(t *testing.T) {
	cfg := rules.Default().Noise

	noisy := []string{
		"",
		"   ",
		"162++❤️",
		"🔥🔥🔥",
		"Good morning traders! Have a profitable day ahead",
		"Join our premium group for sure shot calls",
		"hi",
	}
	for _, text := range noisy {
		if !LooksLikeNoise(text, cfg) {
			t.Fatalf("expected noise for %q", text)
		}
	}

	clean := []string{
		"nifty call entry one five five stop loss below",
		"go long on gold august contract near current price",
	}
	for _, text := range clean {
		if LooksLikeNoise(text, cfg) {
			t.Fatalf("did not expect noise for %q", text)
		}
	}
}

type fallbackFunc func(ctx context.Context, text string) (*model.Intent, error)

func (f fallbackFunc) Extract(ctx context.Context, text string) (*model.Intent, error) {
	return f(ctx, text)
}

func TestParseTierOrdering(t *testing.T) {
	entry := decimal.NewFromInt(155)
	fallbackIntent := &model.Intent{Action: model.ActionBuy, Symbol: "NIFTY", Entry: &entry}

	calls := 0
	p := New(rules.Default(), fallbackFunc(func(_ context.Context, _ string) (*model.Intent, error) {
		calls++
		return fallbackIntent, nil
	}), nil)

	// Tier 1 handles the structured message; the fallback must not be called.
	intent, tier := p.Parse(context.Background(), "BUY NIFTY 24500 CE @ 155 SL 147")
	if intent == nil || tier != model.ParseTierPattern {
		t.Fatalf("expected pattern tier intent, got %v tier %q", intent, tier)
	}
	if calls != 0 {
		t.Fatalf("fallback called %d times for a pattern-parseable message", calls)
	}

	// Free-form but substantial: goes to the fallback.
	intent, tier = p.Parse(context.Background(), "friends nifty looking ready to move grab the 24500 strike")
	if intent == nil || tier != model.ParseTierFallback {
		t.Fatalf("expected fallback tier intent, got %v tier %q", intent, tier)
	}
	if calls != 1 {
		t.Fatalf("expected 1 fallback call, got %d", calls)
	}

	// Noise never reaches the fallback.
	intent, tier = p.Parse(context.Background(), "Good morning everyone, have a happy trading day")
	if intent != nil || tier != "" {
		t.Fatalf("expected nil for noise, got %v tier %q", intent, tier)
	}
	if calls != 1 {
		t.Fatalf("noise reached the fallback, calls=%d", calls)
	}
}

func TestParseFallbackFailureIsNotASignal(t *testing.T) {
	p := New(rules.Default(), fallbackFunc(func(_ context.Context, _ string) (*model.Intent, error) {
		return nil, errors.New("boundary down")
	}), nil)

	intent, tier := p.Parse(context.Background(), "friends nifty looking ready to move grab the 24500 strike")
	if intent != nil || tier != "" {
		t.Fatalf("expected parse failure on fallback error, got %v tier %q", intent, tier)
	}
}

func TestParseWithoutFallback(t *testing.T) {
	p := New(rules.Default(), nil, nil)

	intent, tier := p.Parse(context.Background(), "friends nifty looking ready to move grab the 24500 strike")
	if intent != nil || tier != "" {
		t.Fatalf("expected nil without a fallback, got %v tier %q", intent, tier)
	}
}
