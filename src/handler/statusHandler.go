package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/connectors"
	"signalexecutor/src/model"
)

type signalCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type signalFinder interface {
	FindByChannelAndMessage(ctx context.Context, channelID, messageID string) (*model.Signal, error)
}

type protectionCounter interface {
	CountByProtectionStatus(ctx context.Context) (map[string]int64, error)
}

// Broker is the read-only slice of the brokerage client the status surface
// needs.
type Broker interface {
	ListOpenPositions(ctx context.Context) ([]connectors.Position, error)
}

// SignalStatusHandler returns pipeline counts grouped by signal status, the
// read-only view operators check first.
func SignalStatusHandler(signals signalCounter, orders protectionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signalCounts, err := signals.CountByStatus(r.Context())
		if err != nil {
			http.Error(w, "failed to count signals", http.StatusInternalServerError)
			return
		}
		protectionCounts, err := orders.CountByProtectionStatus(r.Context())
		if err != nil {
			http.Error(w, "failed to count orders", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"signals":    signalCounts,
			"protection": protectionCounts,
		})
	}
}

// SignalLookupHandler fetches one signal by its dedup key. This is the
// operator's answer to "why did that message not trade": the row carries the
// parse tier, the intent and any reject reason.
func SignalLookupHandler(signals signalFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID := r.URL.Query().Get("channel_id")
		messageID := r.URL.Query().Get("message_id")
		if channelID == "" || messageID == "" {
			http.Error(w, "channel_id and message_id are required", http.StatusBadRequest)
			return
		}

		signal, err := signals.FindByChannelAndMessage(r.Context(), channelID, messageID)
		if err != nil {
			http.Error(w, "failed to fetch signal", http.StatusInternalServerError)
			return
		}
		if signal == nil {
			http.Error(w, "signal not found", http.StatusNotFound)
			return
		}
		writeJSON(w, signal)
	}
}

// PositionsStatusHandler proxies the broker's open positions, read-only.
func PositionsStatusHandler(broker Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		positions, err := broker.ListOpenPositions(r.Context())
		if err != nil {
			http.Error(w, "failed to list positions", http.StatusBadGateway)
			return
		}
		if positions == nil {
			positions = []connectors.Position{}
		}
		writeJSON(w, map[string]interface{}{"positions": positions})
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
