package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"signalexecutor/src/model"
)

type mockSignalCounter struct {
	counts map[string]int64
	err    error
}

func (m *mockSignalCounter) CountByStatus(_ context.Context) (map[string]int64, error) {
	return m.counts, m.err
}

type mockProtectionCounter struct {
	counts map[string]int64
	err    error
}

func (m *mockProtectionCounter) CountByProtectionStatus(_ context.Context) (map[string]int64, error) {
	return m.counts, m.err
}

type mockSignalFinder struct {
	signal      *model.Signal
	err         error
	channelID   string
	messageID   string
	calledCount int
}

func (m *mockSignalFinder) FindByChannelAndMessage(_ context.Context, channelID, messageID string) (*model.Signal, error) {
	m.calledCount++
	m.channelID = channelID
	m.messageID = messageID
	return m.signal, m.err
}

func TestSignalStatusHandler(t *testing.T) {
	handler := SignalStatusHandler(
		&mockSignalCounter{counts: map[string]int64{"pending": 2, "done": 40}},
		&mockProtectionCounter{counts: map[string]int64{"protection_active": 3}},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/status/signals", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]map[string]int64
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	assert.Equal(t, int64(2), body["signals"]["pending"])
	assert.Equal(t, int64(3), body["protection"]["protection_active"])
}

func TestSignalLookupHandler_MissingParams(t *testing.T) {
	finder := &mockSignalFinder{}
	handler := SignalLookupHandler(finder)

	req := httptest.NewRequest(http.MethodGet, "/api/status/signal?channel_id=c1", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assert.Equal(t, 0, finder.calledCount)
}

func TestSignalLookupHandler_NotFound(t *testing.T) {
	handler := SignalLookupHandler(&mockSignalFinder{})

	req := httptest.NewRequest(http.MethodGet, "/api/status/signal?channel_id=c1&message_id=m404", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestSignalLookupHandler_Found(t *testing.T) {
	finder := &mockSignalFinder{signal: &model.Signal{
		ID:           7,
		ChannelID:    "c1",
		MessageID:    "m1",
		Status:       model.SignalStatusError,
		RejectReason: "unknown_symbol",
	}}
	handler := SignalLookupHandler(finder)

	req := httptest.NewRequest(http.MethodGet, "/api/status/signal?channel_id=c1&message_id=m1", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	assert.Equal(t, "c1", finder.channelID)
	assert.Equal(t, "m1", finder.messageID)

	var got model.Signal
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	assert.Equal(t, uint(7), got.ID)
	assert.Equal(t, "unknown_symbol", got.RejectReason)
}
