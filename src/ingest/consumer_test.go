package ingest

import (
	"context"
	"testing"
	"time"

	"signalexecutor/src/connectors"
	"signalexecutor/src/model"
	"signalexecutor/src/parser"
	"signalexecutor/src/rules"
	"signalexecutor/src/stats"
)

type fakeSignalRepo struct {
	saved     []*model.Signal
	duplicate bool
}

func (f *fakeSignalRepo) CreateIfAbsent(_ context.Context, signal *model.Signal) (bool, error) {
	f.saved = append(f.saved, signal)
	return !f.duplicate, nil
}

func newTestConsumer(repo *fakeSignalRepo) *Consumer {
	return &Consumer{
		parser:  parser.New(rules.Default(), nil, nil),
		signals: repo,
		stats:   stats.Noop{},
	}
}

func message(text string) connectors.InboundMessage {
	return connectors.InboundMessage{
		ChannelID:   "ch1",
		MessageID:   "m1",
		ChannelName: "alerts",
		Text:        text,
		Timestamp:   time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
	}
}

func TestHandlePersistsActionableSignal(t *testing.T) {
	repo := &fakeSignalRepo{}
	c := newTestConsumer(repo)

	c.Handle(context.Background(), message("BUY NIFTY 24500 CE @ 155 SL 147"))

	if len(repo.saved) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(repo.saved))
	}
	signal := repo.saved[0]
	if signal.Status != model.SignalStatusPending {
		t.Fatalf("expected pending, got %s", signal.Status)
	}
	if signal.Intent == nil || signal.Intent.Symbol != "NIFTY" {
		t.Fatalf("unexpected intent: %+v", signal.Intent)
	}
	if signal.ParseTier != model.ParseTierPattern {
		t.Fatalf("unexpected tier: %s", signal.ParseTier)
	}
	if signal.ChannelID != "ch1" || signal.MessageID != "m1" || signal.RawText == "" {
		t.Fatalf("delivery metadata not carried over: %+v", signal)
	}
}

func TestHandleRecordsNonSignalAsDone(t *testing.T) {
	repo := &fakeSignalRepo{}
	c := newTestConsumer(repo)

	c.Handle(context.Background(), message("Good morning traders, have a great day"))

	if len(repo.saved) != 1 {
		t.Fatalf("expected the non-signal to still be persisted, got %d rows", len(repo.saved))
	}
	signal := repo.saved[0]
	if signal.Status != model.SignalStatusDone {
		t.Fatalf("non-signals must be recorded done, got %s", signal.Status)
	}
	if signal.Intent != nil {
		t.Fatalf("expected nil intent, got %+v", signal.Intent)
	}
	if signal.Actionable() {
		t.Fatal("non-signal must never be actionable")
	}
}

func TestHandleDuplicateDelivery(t *testing.T) {
	repo := &fakeSignalRepo{duplicate: true}
	c := newTestConsumer(repo)

	// Duplicate deliveries are swallowed without error; the repository's
	// dedup key is what makes redelivery safe.
	c.Handle(context.Background(), message("BUY NIFTY 24500 CE @ 155 SL 147"))

	if len(repo.saved) != 1 {
		t.Fatalf("expected a single insert attempt, got %d", len(repo.saved))
	}
}
