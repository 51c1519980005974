package connectors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limit", newBrokerError("submit_order", "RATE_LIMIT"), true},
		{"gateway timeout", newBrokerError("submit_order", "GATEWAY_TIMEOUT"), true},
		{"broker system error", newBrokerError("submit_order", "SYSTEM"), true},
		{"insufficient margin", newBrokerError("submit_order", "RMS_MARGIN"), false},
		{"invalid contract", newBrokerError("submit_order", "INVALID_CONTRACT"), false},
		{"invalid price", newBrokerError("submit_order", "INVALID_PRICE"), false},
		{"market closed", newBrokerError("submit_order", "MARKET_CLOSED"), false},
		{"duplicate client id", newBrokerError("submit_order", "DUPLICATE_CLIENT_ID"), false},
		{"unknown broker code", newBrokerError("submit_order", "SOMETHING_NEW"), false},
		{"plain transport error", errors.New("connection refused"), true},
		{"wrapped boundary error", fmt.Errorf("submit: %w", newBrokerError("submit_order", "RMS_BLOCK")), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.transient {
				t.Fatalf("expected transient=%v for %v", tc.transient, tc.err)
			}
		})
	}
}

func TestBoundaryErrorMessage(t *testing.T) {
	err := newBrokerError("submit_order", "RMS_MARGIN")
	want := "submit_order: insufficient margin for the order (RMS_MARGIN)"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}

	unknown := newBrokerError("cancel_order", "WAT")
	if unknown.Error() != "cancel_order: unknown broker error (WAT)" {
		t.Fatalf("unexpected message: %q", unknown.Error())
	}
}
