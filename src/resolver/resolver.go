package resolver

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/catalog"
	"signalexecutor/src/model"
)

// RejectReason is the enumerated, stable reason a signal fails resolution.
// Rejections are values, not errors: the lifecycle engine records them and
// moves on, nothing is thrown across this boundary.
type RejectReason string

const (
	RejectNone                 RejectReason = ""
	RejectMissingRequiredField RejectReason = "missing_required_field"
	RejectUnknownSymbol        RejectReason = "unknown_symbol"
	RejectNoMatchingContract   RejectReason = "no_matching_contract"
	RejectInvalidPrice         RejectReason = "invalid_price"
)

// stopFallbackPct is the protective distance applied when a message omits the
// stop-loss: 5% below entry for a long, above for a short.
var stopFallbackPct = decimal.NewFromFloat(0.05)

// defaultIndexSymbols are underlyings whose options expire weekly; everything
// else defaults to the monthly nearest-listed expiry.
var defaultIndexSymbols = map[string]bool{
	"NIFTY":      true,
	"BANKNIFTY":  true,
	"FINNIFTY":   true,
	"MIDCPNIFTY": true,
	"SENSEX":     true,
	"BANKEX":     true,
}

// Resolver maps a partial intent onto a concrete tradable contract using the
// reference catalog.
type Resolver struct {
	aliases      map[string]string
	indexSymbols map[string]bool
}

func New(aliases map[string]string) *Resolver {
	canonical := make(map[string]string, len(aliases))
	for k, v := range aliases {
		canonical[strings.ToUpper(k)] = strings.ToUpper(v)
	}
	return &Resolver{
		aliases:      canonical,
		indexSymbols: defaultIndexSymbols,
	}
}

// Resolve validates and enriches an intent into a submission-ready order
// intent against the given catalog snapshot. asOf is the message arrival time
// used for expiry defaulting and nearest-expiry fallback.
func (r *Resolver) Resolve(
	signalID uint,
	intent *model.Intent,
	snap *catalog.Snapshot,
	asOf time.Time,
) (*model.OrderIntent, RejectReason) {

	if intent == nil || !intent.HasMinimum() || intent.Strike == nil || intent.Kind == "" {
		return nil, RejectMissingRequiredField
	}

	entry := *intent.Entry
	if entry.LessThanOrEqual(decimal.Zero) {
		return nil, RejectInvalidPrice
	}

	symbol := r.canonicalSymbol(intent.Symbol)
	if !snap.HasSymbol(symbol) {
		return nil, RejectUnknownSymbol
	}

	row, ok := r.findContract(symbol, intent, snap, asOf)
	if !ok {
		return nil, RejectNoMatchingContract
	}

	short := intent.Action == model.ActionSell

	stop, reason := r.resolveStop(intent.StopLoss, entry, row.TickSize, short)
	if reason != RejectNone {
		return nil, reason
	}

	quantity := row.LotSize
	if intent.Quantity != nil && *intent.Quantity > 0 {
		// Messages quote size in lots; the brokerage wants units.
		quantity = *intent.Quantity * row.LotSize
	}

	oi := &model.OrderIntent{
		SignalID:   signalID,
		ContractID: row.ContractID,
		Symbol:     symbol,
		Venue:      row.Venue,
		Action:     intent.Action,
		Quantity:   quantity,
		LotSize:    row.LotSize,
		TickSize:   row.TickSize,
		EntryPrice: entry,
		StopLoss:   stop,
		Targets:    intent.Targets,
		Expiry:     row.Expiry,
	}

	logger.WithFields(map[string]interface{}{
		"signal_id": signalID,
		"contract":  oi.ContractID,
		"action":    oi.Action,
		"qty":       oi.Quantity,
		"entry":     oi.EntryPrice.String(),
		"stop":      oi.StopLoss.String(),
		"expiry":    oi.Expiry.Format("2006-01-02"),
	}).Info("intent resolved")

	return oi, RejectNone
}

func (r *Resolver) canonicalSymbol(raw string) string {
	up := strings.ToUpper(strings.TrimSpace(raw))
	if canonical, ok := r.aliases[up]; ok {
		return canonical
	}
	return up
}

// findContract applies the expiry defaulting rules and falls back to the
// nearest listed expiry on or after asOf when no exact match exists.
func (r *Resolver) findContract(
	symbol string,
	intent *model.Intent,
	snap *catalog.Snapshot,
	asOf time.Time,
) (model.Instrument, bool) {

	strike := *intent.Strike
	kind := intent.Kind

	switch {
	case intent.ExpiryMonth != "":
		// Explicit month token: first listed expiry inside that month.
		if row, ok := firstExpiryInMonth(snap, symbol, strike, kind, intent.ExpiryMonth, asOf); ok {
			return row, true
		}
		return model.Instrument{}, false

	case intent.Monthly:
		// "Monthly" without a month: the month-end expiry of the nearest month
		// with listed contracts.
		if row, ok := monthlyExpiry(snap, symbol, strike, kind, asOf); ok {
			return row, true
		}
		return snap.NearestOnOrAfter(symbol, strike, kind, asOf)

	case r.indexSymbols[symbol]:
		// Weekly class: target the nearest Thursday, fall back to the nearest
		// listed expiry when that exact day is not listed (holiday shifts).
		target := nearestThursday(asOf)
		if row, ok := snap.Lookup(symbol, strike, kind, target); ok {
			return row, true
		}
		return snap.NearestOnOrAfter(symbol, strike, kind, asOf)

	default:
		// Single-stock and commodity contracts list monthly: nearest listed.
		return snap.NearestOnOrAfter(symbol, strike, kind, asOf)
	}
}

// resolveStop validates a supplied stop or computes the 5% fallback, truncated
// toward the entry price on the contract's tick grid so risk is never widened.
func (r *Resolver) resolveStop(
	supplied *decimal.Decimal,
	entry decimal.Decimal,
	tick decimal.Decimal,
	short bool,
) (decimal.Decimal, RejectReason) {

	if supplied != nil {
		stop := *supplied
		if stop.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, RejectInvalidPrice
		}
		// A long's stop must sit strictly below entry, a short's strictly above.
		if !short && stop.GreaterThanOrEqual(entry) {
			return decimal.Zero, RejectInvalidPrice
		}
		if short && stop.LessThanOrEqual(entry) {
			return decimal.Zero, RejectInvalidPrice
		}
		return stop, RejectNone
	}

	var stop decimal.Decimal
	if short {
		stop = entry.Mul(decimal.NewFromInt(1).Add(stopFallbackPct))
	} else {
		stop = entry.Mul(decimal.NewFromInt(1).Sub(stopFallbackPct))
	}

	return truncateTowardEntry(stop, tick, short), RejectNone
}

// truncateTowardEntry aligns a stop on the tick grid, always moving toward the
// entry: up for a long, down for a short.
func truncateTowardEntry(stop, tick decimal.Decimal, short bool) decimal.Decimal {
	if tick.LessThanOrEqual(decimal.Zero) {
		return stop
	}
	q := stop.Div(tick)
	if short {
		return q.Floor().Mul(tick)
	}
	return q.Ceil().Mul(tick)
}

func nearestThursday(t time.Time) time.Time {
	day := t.Truncate(24 * time.Hour)
	offset := (int(time.Thursday) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, offset)
}

func firstExpiryInMonth(
	snap *catalog.Snapshot,
	symbol string,
	strike decimal.Decimal,
	kind, monthToken string,
	asOf time.Time,
) (model.Instrument, bool) {

	month, ok := monthFromToken(monthToken)
	if !ok {
		return model.Instrument{}, false
	}

	year := asOf.Year()
	if month < asOf.Month() {
		year++
	}

	for _, expiry := range snap.Expiries(symbol, strike, kind) {
		if expiry.Month() == month && expiry.Year() == year && !expiry.Before(asOf.Truncate(24*time.Hour)) {
			return snap.Lookup(symbol, strike, kind, expiry)
		}
	}
	return model.Instrument{}, false
}

// monthlyExpiry picks the last listed expiry inside the month of the nearest
// listed expiry: the weekly rows of that month are skipped, the month-end one
// wins.
func monthlyExpiry(
	snap *catalog.Snapshot,
	symbol string,
	strike decimal.Decimal,
	kind string,
	asOf time.Time,
) (model.Instrument, bool) {

	expiries := snap.Expiries(symbol, strike, kind)

	var inMonth []time.Time
	for _, expiry := range expiries {
		if expiry.Truncate(24 * time.Hour).Before(asOf.Truncate(24 * time.Hour)) {
			continue
		}
		if len(inMonth) == 0 ||
			(expiry.Month() == inMonth[0].Month() && expiry.Year() == inMonth[0].Year()) {
			inMonth = append(inMonth, expiry)
		}
	}
	if len(inMonth) == 0 {
		return model.Instrument{}, false
	}

	return snap.Lookup(symbol, strike, kind, inMonth[len(inMonth)-1])
}

func monthFromToken(token string) (time.Month, bool) {
	up := strings.ToUpper(strings.TrimSpace(token))
	if len(up) < 3 {
		return 0, false
	}
	switch up[:3] {
	case "JAN":
		return time.January, true
	case "FEB":
		return time.February, true
	case "MAR":
		return time.March, true
	case "APR":
		return time.April, true
	case "MAY":
		return time.May, true
	case "JUN":
		return time.June, true
	case "JUL":
		return time.July, true
	case "AUG":
		return time.August, true
	case "SEP":
		return time.September, true
	case "OCT":
		return time.October, true
	case "NOV":
		return time.November, true
	case "DEC":
		return time.December, true
	}
	return 0, false
}
