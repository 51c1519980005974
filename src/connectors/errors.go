package connectors

import (
	"errors"
	"fmt"
)

// BoundaryError wraps a brokerage-level failure with the classification the
// core needs: transient errors are retried with backoff, terminal ones mark
// the signal error immediately. The boundary itself never decides retry
// policy, it only reports what happened.
type BoundaryError struct {
	Op        string
	Code      string
	Message   string
	Transient bool
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
}

// brokerErrorCodes maps brokerage reject codes to human-readable names.
var brokerErrorCodes = map[string]string{
	"RMS_MARGIN":       "insufficient margin for the order",
	"RMS_BLOCK":        "order blocked by risk management",
	"INVALID_CONTRACT": "contract not found or not tradable",
	"INVALID_PRICE":    "price outside the allowed band",
	"INVALID_QTY":      "quantity not a multiple of lot size",
	"MARKET_CLOSED":    "venue is not accepting orders",
	"DUPLICATE_CLIENT_ID": "client order id already used",
	"RATE_LIMIT":       "too many requests",
	"GATEWAY_TIMEOUT":  "broker gateway timed out",
	"SYSTEM":           "broker internal error",
}

// transientCodes are broker rejects worth retrying; everything else in
// brokerErrorCodes is a terminal rejection.
var transientCodes = map[string]bool{
	"RATE_LIMIT":      true,
	"GATEWAY_TIMEOUT": true,
	"SYSTEM":          true,
}

func newBrokerError(op, code string) *BoundaryError {
	msg, ok := brokerErrorCodes[code]
	if !ok {
		msg = "unknown broker error"
	}
	return &BoundaryError{
		Op:        op,
		Code:      code,
		Message:   msg,
		Transient: transientCodes[code],
	}
}

// IsTransient reports whether an error from this package may succeed on
// retry. Plain transport errors (timeouts, refused connections) are always
// transient; classified broker rejects carry their own flag.
func IsTransient(err error) bool {
	var be *BoundaryError
	if errors.As(err, &be) {
		return be.Transient
	}
	return true
}
