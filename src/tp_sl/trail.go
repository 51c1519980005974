package tp_sl

import (
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

var (
	one = decimal.NewFromInt(1)
	// trailPct is the fixed 5% used both as the trigger threshold and as the
	// protective distance behind the latest price.
	trailPct = decimal.NewFromFloat(0.05)
)

// PriceRange is one recent high/low sample used by the range-scaled variant.
type PriceRange struct {
	High decimal.Decimal
	Low  decimal.Decimal
}

// NextTrailingStop applies the 5% ratchet rule for long or short.
//
// Long:
// - gate: latest price >= currentStop * 1.05
// - candidate: latest price * 0.95
// - update: stop = candidate only when candidate > currentStop
//
// Short mirrors all three. Each trail uses the previous stop, not the original
// entry, as its base, so repeated favorable moves compound protection. The
// stop is monotonically non-decreasing for longs and non-increasing for
// shorts; a candidate that does not strictly improve is discarded.
func NextTrailingStop(
	side Side,
	currentStop decimal.Decimal,
	latestPrice decimal.Decimal,
) (newStop decimal.Decimal, moved bool) {

	if currentStop.LessThanOrEqual(decimal.Zero) || latestPrice.LessThanOrEqual(decimal.Zero) {
		return currentStop, false
	}

	switch side {
	case SideLong:
		threshold := currentStop.Mul(one.Add(trailPct))
		if latestPrice.LessThan(threshold) {
			return currentStop, false
		}
		candidate := latestPrice.Mul(one.Sub(trailPct))
		if candidate.GreaterThan(currentStop) {
			return candidate, true
		}
		return currentStop, false

	case SideShort:
		threshold := currentStop.Mul(one.Sub(trailPct))
		if latestPrice.GreaterThan(threshold) {
			return currentStop, false
		}
		candidate := latestPrice.Mul(one.Add(trailPct))
		if candidate.LessThan(currentStop) {
			return candidate, true
		}
		return currentStop, false

	default:
		return currentStop, false
	}
}

// NextTrailingStopRanged is the range-scaled variant: the protective distance
// is the average high-low range of recent samples scaled by mult, instead of
// the fixed 5%. The trigger gate and the strictly-improving ratchet are the
// same as NextTrailingStop; with no samples it falls back to the fixed rule.
func NextTrailingStopRanged(
	side Side,
	currentStop decimal.Decimal,
	latestPrice decimal.Decimal,
	samples []PriceRange,
	mult decimal.Decimal,
) (newStop decimal.Decimal, moved bool) {

	if len(samples) == 0 || mult.LessThanOrEqual(decimal.Zero) {
		return NextTrailingStop(side, currentStop, latestPrice)
	}
	if currentStop.LessThanOrEqual(decimal.Zero) || latestPrice.LessThanOrEqual(decimal.Zero) {
		return currentStop, false
	}

	distance := AvgRange(samples).Mul(mult)
	if distance.LessThanOrEqual(decimal.Zero) {
		return NextTrailingStop(side, currentStop, latestPrice)
	}

	switch side {
	case SideLong:
		threshold := currentStop.Mul(one.Add(trailPct))
		if latestPrice.LessThan(threshold) {
			return currentStop, false
		}
		candidate := latestPrice.Sub(distance)
		if candidate.GreaterThan(currentStop) {
			return candidate, true
		}
		return currentStop, false

	case SideShort:
		threshold := currentStop.Mul(one.Sub(trailPct))
		if latestPrice.GreaterThan(threshold) {
			return currentStop, false
		}
		candidate := latestPrice.Add(distance)
		if candidate.LessThan(currentStop) {
			return candidate, true
		}
		return currentStop, false

	default:
		return currentStop, false
	}
}

// AvgRange averages the high-low span of the samples.
func AvgRange(samples []PriceRange) decimal.Decimal {
	if len(samples) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, s := range samples {
		sum = sum.Add(s.High.Sub(s.Low))
	}
	return sum.Div(decimal.NewFromInt(int64(len(samples))))
}

// InitialStop computes the 5%-of-entry fallback used when no originating
// order can be found for a position.
func InitialStop(side Side, entry decimal.Decimal) decimal.Decimal {
	if side == SideShort {
		return entry.Mul(one.Add(trailPct))
	}
	return entry.Mul(one.Sub(trailPct))
}
