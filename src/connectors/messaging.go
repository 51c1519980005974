package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// InboundMessage is one delivery from the messaging source. The source is
// at-least-once: the same (ChannelID, MessageID) pair may arrive repeatedly.
type InboundMessage struct {
	ChannelID   string    `json:"channel_id"`
	MessageID   string    `json:"message_id"`
	ChannelName string    `json:"channel_name"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// MessageHandler consumes one delivery. Errors are the handler's problem;
// the consumer keeps reading either way.
type MessageHandler func(ctx context.Context, msg InboundMessage)

// MessagingClient subscribes to the messaging source over websocket and feeds
// deliveries to a handler, reconnecting with backoff on stream failure.
type MessagingClient struct {
	url    string
	token  string
	dialer websocket.Dialer

	// minBackoff is the first reconnect delay; it doubles up to maxBackoff
	// across consecutive failures and resets after a connection survives
	// healthyAfter.
	minBackoff   time.Duration
	maxBackoff   time.Duration
	healthyAfter time.Duration
}

func NewMessagingClient(cfg Config) *MessagingClient {
	return &MessagingClient{
		url:   cfg.MessagingURL,
		token: cfg.MessagingToken,
		dialer: websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
			Proxy:             http.ProxyFromEnvironment,
		},
		minBackoff:   time.Second,
		maxBackoff:   30 * time.Second,
		healthyAfter: 30 * time.Second,
	}
}

// Run consumes the stream until ctx is cancelled. Connection loss reconnects
// with capped backoff; frames that do not decode are skipped, not fatal.
func (c *MessagingClient) Run(ctx context.Context, handle MessageHandler) error {
	backoff := c.minBackoff

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		started := time.Now()
		err := c.consume(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}

		// A connection that lived long enough was healthy; the next failure
		// starts the backoff ladder over instead of inheriting the cap.
		if time.Since(started) >= c.healthyAfter {
			backoff = c.minBackoff
		}

		logger.WithError(err).
			WithField("backoff", backoff.String()).
			Warn("messaging stream lost, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *MessagingClient) consume(ctx context.Context, handle MessageHandler) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.WithField("url", c.url).Info("messaging stream connected")

	// Unblock ReadMessage when the context is cancelled. The done channel
	// releases the watcher when this connection ends first, so reconnects do
	// not accumulate parked goroutines.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.WithError(err).Debug("skipping undecodable frame")
			continue
		}
		if msg.ChannelID == "" || msg.MessageID == "" {
			continue
		}

		handle(ctx, msg)
	}
}
