package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
)

var (
	reAction = regexp.MustCompile(`\b(BUY|BOUGHT|LONG|SELL|SOLD|SHORT)\b`)
	reStrike = regexp.MustCompile(`\b(\d[\d,]*(?:\.\d+)?)\s*(CE|PE|CALL|PUT)\b`)
	reEntry  = regexp.MustCompile(`(?:@|\bAT\b|\bABOVE\b|\bNEAR\b|\bCMP\b|\bAROUND\b)\s*[:\-]?\s*(\d[\d,]*(?:\.\d+)?)`)
	reStop   = regexp.MustCompile(`\b(?:SL|STOP\s?LOSS|STOPLOSS)\b\s*[:\-]?\s*(\d[\d,]*(?:\.\d+)?)`)
	reTarget = regexp.MustCompile(`\b(?:TGTS?|TARGETS?)\b\s*[:\-]?\s*((?:\d[\d,]*(?:\.\d+)?[\s,/]*)+)`)
	reLots   = regexp.MustCompile(`\b(\d+)\s*LOTS?\b`)
	reMonth  = regexp.MustCompile(`\b(JAN(?:UARY)?|FEB(?:RUARY)?|MAR(?:CH)?|APR(?:IL)?|MAY|JUN(?:E)?|JUL(?:Y)?|AUG(?:UST)?|SEP(?:T|TEMBER)?|OCT(?:OBER)?|NOV(?:EMBER)?|DEC(?:EMBER)?)\b`)
	reToken  = regexp.MustCompile(`\b[A-Z][A-Z&]{2,}\b`)
	reNum    = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

// stopwords are uppercase tokens that can never be the underlying symbol.
var stopwords = map[string]bool{
	"BUY": true, "SELL": true, "BOUGHT": true, "SOLD": true, "LONG": true, "SHORT": true,
	"CALL": true, "PUT": true, "ABOVE": true, "NEAR": true, "CMP": true, "AROUND": true,
	"TGT": true, "TGTS": true, "TARGET": true, "TARGETS": true,
	"STOPLOSS": true, "STOP": true, "LOSS": true, "HOLD": true, "BOOK": true, "EXIT": true,
	"LOT": true, "LOTS": true, "QTY": true, "ONLY": true, "WITH": true, "STRICT": true,
	"OPTION": true, "OPTIONS": true, "INTRADAY": true, "POSITIONAL": true, "EXPIRY": true,
	"MONTHLY": true, "WEEKLY": true, "SAFE": true, "TRADERS": true, "RISKY": true,
	"JAN": true, "FEB": true, "MAR": true, "APR": true, "MAY": true, "JUN": true,
	"JUL": true, "AUG": true, "SEP": true, "OCT": true, "NOV": true, "DEC": true,
	"JANUARY": true, "FEBRUARY": true, "MARCH": true, "APRIL": true, "JUNE": true,
	"JULY": true, "AUGUST": true, "SEPT": true, "SEPTEMBER": true, "OCTOBER": true,
	"NOVEMBER": true, "DECEMBER": true,
}

// ParseTier1 applies deterministic token extraction to one message. It returns
// nil unless the minimum required subset (action, symbol, entry price) is
// present. No network, no side effects.
func ParseTier1(text string) *model.Intent {
	up := strings.ToUpper(text)

	intent := &model.Intent{}

	if m := reAction.FindStringSubmatch(up); m != nil {
		switch m[1] {
		case "BUY", "BOUGHT", "LONG":
			intent.Action = model.ActionBuy
		default:
			intent.Action = model.ActionSell
		}
	}

	if m := reStrike.FindStringSubmatch(up); m != nil {
		if strike, ok := parseNumber(m[1]); ok {
			intent.Strike = &strike
		}
		switch m[2] {
		case "CE", "CALL":
			intent.Kind = model.KindCall
		case "PE", "PUT":
			intent.Kind = model.KindPut
		}
	}

	// Strip the stop-loss clause before looking for the entry so "SL 150"
	// cannot be mistaken for an entry reference.
	entryText := reStop.ReplaceAllString(up, " ")
	if m := reEntry.FindStringSubmatch(entryText); m != nil {
		if entry, ok := parseNumber(m[1]); ok {
			intent.Entry = &entry
		}
	}

	if m := reStop.FindStringSubmatch(up); m != nil {
		if stop, ok := parseNumber(m[1]); ok {
			intent.StopLoss = &stop
		}
	}

	if m := reTarget.FindStringSubmatch(up); m != nil {
		for _, raw := range reNum.FindAllString(m[1], -1) {
			if tgt, ok := parseNumber(raw); ok {
				intent.Targets = append(intent.Targets, tgt)
			}
		}
	}

	if m := reLots.FindStringSubmatch(up); m != nil {
		if lots, err := strconv.Atoi(m[1]); err == nil && lots > 0 {
			intent.Quantity = &lots
		}
	}

	if strings.Contains(up, "MONTHLY") {
		intent.Monthly = true
	}
	if m := reMonth.FindStringSubmatch(up); m != nil {
		intent.ExpiryMonth = m[1][:3]
	}

	intent.Symbol = extractSymbol(up)

	if !intent.HasMinimum() {
		return nil
	}
	return intent
}

func extractSymbol(up string) string {
	for _, tok := range reToken.FindAllString(up, -1) {
		if !stopwords[tok] {
			return tok
		}
	}
	return ""
}

func parseNumber(raw string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return d, true
}
