package ingest

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/connectors"
	"signalexecutor/src/model"
	"signalexecutor/src/parser"
	"signalexecutor/src/repository"
	"signalexecutor/src/stats"
)

type signalRepository interface {
	CreateIfAbsent(ctx context.Context, signal *model.Signal) (bool, error)
}

var newSignalRepo = func() signalRepository {
	return repository.NewSignalRepository()
}

// Consumer turns messaging-source deliveries into persisted signals. It owns
// the ingestion+parsing write path: a signal it creates stays untouched until
// the lifecycle engine resolves it.
type Consumer struct {
	parser  *parser.Parser
	signals signalRepository
	stats   stats.Collector
}

func NewConsumer(p *parser.Parser, collector stats.Collector) *Consumer {
	if collector == nil {
		collector = stats.Noop{}
	}
	return &Consumer{
		parser:  p,
		signals: newSignalRepo(),
		stats:   collector,
	}
}

// Handle processes one delivery: parse, then persist with dedup. Non-signals
// are recorded as done with a null intent so re-deliveries stay cheap; they
// never enter the actionable set.
func (c *Consumer) Handle(ctx context.Context, msg connectors.InboundMessage) {
	intent, tier := c.parser.Parse(ctx, msg.Text)

	signal := &model.Signal{
		ChannelID:   msg.ChannelID,
		MessageID:   msg.MessageID,
		ChannelName: msg.ChannelName,
		RawText:     msg.Text,
		ReceivedAt:  msg.Timestamp,
		Intent:      intent,
		ParseTier:   tier,
		Status:      model.SignalStatusPending,
	}
	if intent == nil {
		signal.Status = model.SignalStatusDone
	}

	created, err := c.signals.CreateIfAbsent(ctx, signal)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"channel_id": msg.ChannelID,
			"message_id": msg.MessageID,
		}).WithError(err).Error("failed to persist signal")
		return
	}

	if !created {
		c.stats.IncDuplicates()
		return
	}

	c.stats.IncSignalsCreated()

	logger.WithFields(map[string]interface{}{
		"signal_id":  signal.ID,
		"channel":    msg.ChannelName,
		"actionable": intent != nil,
		"tier":       tier,
	}).Info("signal recorded")
}
