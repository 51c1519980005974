// REST client for the brokerage boundary.
// RESTY + HMAC request signing + internal retry for transport-level failures.
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// Default retry configuration for transport-level failures. Broker-level
	// rejects are never retried here; classification is the caller's job.
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second
)

const (
	OrderTypeLimit    = "LIMIT"
	OrderTypeMarket   = "MARKET"
	OrderTypeStopLoss = "SL"
)

const (
	OrderStateOpen      = "open"
	OrderStateTriggered = "triggered"
	OrderStateComplete  = "complete"
	OrderStateRejected  = "rejected"
	OrderStateCancelled = "cancelled"
)

// APIResponse is the broker's uniform envelope.
type APIResponse struct {
	Status string          `json:"status"` // "ok" | "error"
	Code   string          `json:"code,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// SubmitOrderRequest is one order submission. ClientOrderID is the caller's
// idempotency key; the broker rejects a reused id with DUPLICATE_CLIENT_ID.
type SubmitOrderRequest struct {
	ClientOrderID string          `json:"client_order_id"`
	ContractID    string          `json:"contract_id"`
	Venue         string          `json:"venue"`
	Action        string          `json:"action"`
	Quantity      int             `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	TriggerPrice  decimal.Decimal `json:"trigger_price,omitempty"`
	OrderType     string          `json:"order_type"`
}

// Position is one open position as reported by the broker.
type Position struct {
	ContractID    string          `json:"contract_id"`
	Symbol        string          `json:"symbol"`
	Venue         string          `json:"venue"`
	Quantity      int             `json:"quantity"` // negative for short
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	LastPrice     decimal.Decimal `json:"last_price"`
}

// Short reports whether the position is a net short.
func (p Position) Short() bool { return p.Quantity < 0 }

// BrokerOrder is one order-book row as reported by the broker.
type BrokerOrder struct {
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
	ContractID    string          `json:"contract_id"`
	Action        string          `json:"action"`
	Quantity      int             `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	TriggerPrice  decimal.Decimal `json:"trigger_price"`
	OrderType     string          `json:"order_type"`
	State         string          `json:"state"`
}

// BrokerClient is the authenticated brokerage REST client. All calls are
// rate-limited; the limiter blocks inside the per-call context so a slow
// window never outlives the caller's deadline.
type BrokerClient struct {
	apiKey    string
	apiSecret string
	http      *resty.Client
	limiter   *rate.Limiter
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 || code == 408 {
		return true
	}
	return false
}

func NewBrokerClient(apiKey, apiSecret string, cfg Config) *BrokerClient {
	rps := cfg.BrokerRPS
	if rps <= 0 {
		rps = 1
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BrokerBaseURL).
		SetTimeout(cfg.BrokerTimeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &BrokerClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      httpClient,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func signRequest(path, body string, expiry int64, secret string) string {
	base := path + fmt.Sprintf("%d", expiry) + body
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *BrokerClient) doRequest(ctx context.Context, method, path string, body []byte) (*APIResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	expiry := time.Now().Add(1 * time.Minute).Unix()
	sig := signRequest(path, string(body), expiry, c.apiSecret)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.apiKey).
		SetHeader("x-request-expiry", fmt.Sprintf("%d", expiry)).
		SetHeader("x-request-signature", sig)

	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("broker %s %s: %w", method, path, err)
	}

	var api APIResponse
	if err := json.Unmarshal(resp.Body(), &api); err != nil {
		return nil, fmt.Errorf("broker %s %s: decode response: %w", method, path, err)
	}

	if api.Status != "ok" {
		return nil, newBrokerError(method+" "+path, api.Code)
	}
	return &api, nil
}

// SubmitOrder places an order and returns the broker order id.
func (c *BrokerClient) SubmitOrder(ctx context.Context, order SubmitOrderRequest) (string, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("marshal order: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"contract":        order.ContractID,
		"action":          order.Action,
		"qty":             order.Quantity,
		"type":            order.OrderType,
		"client_order_id": order.ClientOrderID,
	}).Info("submitting order to broker")

	resp, err := c.doRequest(ctx, "POST", "/v1/orders", body)
	if err != nil {
		return "", err
	}

	var out struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return "", fmt.Errorf("decode order id: %w", err)
	}
	if out.OrderID == "" {
		return "", fmt.Errorf("broker returned empty order id")
	}
	return out.OrderID, nil
}

// CancelOrder cancels an open order.
func (c *BrokerClient) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.doRequest(ctx, "DELETE", "/v1/orders/"+orderID, nil)
	return err
}

// ListOpenPositions returns the broker's view of open positions.
func (c *BrokerClient) ListOpenPositions(ctx context.Context) ([]Position, error) {
	resp, err := c.doRequest(ctx, "GET", "/v1/positions", nil)
	if err != nil {
		return nil, err
	}

	var positions []Position
	if err := json.Unmarshal(resp.Data, &positions); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return positions, nil
}

// ListOrders returns the current order book, protective stops included.
func (c *BrokerClient) ListOrders(ctx context.Context) ([]BrokerOrder, error) {
	resp, err := c.doRequest(ctx, "GET", "/v1/orders", nil)
	if err != nil {
		return nil, err
	}

	var orders []BrokerOrder
	if err := json.Unmarshal(resp.Data, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

// LastTradedPrice fetches the latest traded price for a contract.
func (c *BrokerClient) LastTradedPrice(ctx context.Context, contractID string) (decimal.Decimal, error) {
	resp, err := c.doRequest(ctx, "GET", "/v1/quotes/"+contractID+"/ltp", nil)
	if err != nil {
		return decimal.Zero, err
	}

	var out struct {
		LTP decimal.Decimal `json:"ltp"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return decimal.Zero, fmt.Errorf("decode ltp: %w", err)
	}
	return out.LTP, nil
}
