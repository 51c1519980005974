package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/model"
)

// InstrumentSourceClient downloads the bulk reference instrument snapshot.
type InstrumentSourceClient struct {
	http *resty.Client
	url  string
}

func NewInstrumentSourceClient(cfg Config) *InstrumentSourceClient {
	httpClient := resty.New().
		SetTimeout(cfg.InstrumentsTimeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &InstrumentSourceClient{
		http: httpClient,
		url:  cfg.InstrumentsURL,
	}
}

type instrumentRow struct {
	ContractID string          `json:"contract_id"`
	Symbol     string          `json:"symbol"`
	Strike     decimal.Decimal `json:"strike"`
	Kind       string          `json:"kind"`
	Expiry     string          `json:"expiry"` // YYYY-MM-DD
	LotSize    int             `json:"lot_size"`
	TickSize   decimal.Decimal `json:"tick_size"`
	Venue      string          `json:"venue"`
}

// FetchInstruments downloads one wholesale snapshot. Rows with missing
// identity fields or an unparseable expiry are dropped with a log line rather
// than failing the refresh.
func (c *InstrumentSourceClient) FetchInstruments(ctx context.Context) ([]model.Instrument, error) {
	var rows []instrumentRow

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&rows).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("instrument source status %d", resp.StatusCode())
	}

	out := make([]model.Instrument, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		if row.ContractID == "" || row.Symbol == "" || row.Kind == "" {
			skipped++
			continue
		}
		expiry, err := time.Parse("2006-01-02", row.Expiry)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, model.Instrument{
			ContractID: row.ContractID,
			Symbol:     row.Symbol,
			Strike:     row.Strike,
			Kind:       row.Kind,
			Expiry:     expiry,
			LotSize:    row.LotSize,
			TickSize:   row.TickSize,
			Venue:      row.Venue,
		})
	}

	if skipped > 0 {
		logger.WithFields(map[string]interface{}{
			"rows":    len(rows),
			"skipped": skipped,
		}).Warn("instrument snapshot had unusable rows")
	}

	return out, nil
}
