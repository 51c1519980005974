package catalog

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
)

type contractKey struct {
	Symbol string
	Strike string
	Kind   string
}

// Snapshot is one immutable build of the reference instrument dataset. All
// lookups run against a single snapshot, so a refresh in flight is never
// observed partially.
type Snapshot struct {
	id      string
	builtAt time.Time

	// contracts maps (symbol, strike, kind) to rows sorted by expiry ascending.
	contracts map[contractKey][]model.Instrument
	symbols   map[string]bool
	size      int
}

// BuildSnapshot indexes rows into an immutable snapshot.
func BuildSnapshot(id string, rows []model.Instrument) *Snapshot {
	s := &Snapshot{
		id:        id,
		builtAt:   time.Now().UTC(),
		contracts: make(map[contractKey][]model.Instrument),
		symbols:   make(map[string]bool),
		size:      len(rows),
	}

	for _, row := range rows {
		k := keyOf(row.Symbol, row.Strike, row.Kind)
		s.contracts[k] = append(s.contracts[k], row)
		s.symbols[row.Symbol] = true
	}

	for k := range s.contracts {
		rows := s.contracts[k]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Expiry.Before(rows[j].Expiry) })
	}

	return s
}

func keyOf(symbol string, strike decimal.Decimal, kind string) contractKey {
	return contractKey{Symbol: symbol, Strike: strike.String(), Kind: kind}
}

func (s *Snapshot) ID() string         { return s.id }
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }
func (s *Snapshot) Size() int          { return s.size }

// HasSymbol reports whether any contract exists for the canonical symbol.
func (s *Snapshot) HasSymbol(symbol string) bool {
	return s.symbols[symbol]
}

// Lookup finds the contract expiring on the given calendar day.
func (s *Snapshot) Lookup(symbol string, strike decimal.Decimal, kind string, expiry time.Time) (model.Instrument, bool) {
	day := expiry.Truncate(24 * time.Hour)
	for _, row := range s.contracts[keyOf(symbol, strike, kind)] {
		if row.Expiry.Truncate(24 * time.Hour).Equal(day) {
			return row, true
		}
	}
	return model.Instrument{}, false
}

// NearestOnOrAfter finds the contract with the earliest expiry on or after
// from, for the same (symbol, strike, kind).
func (s *Snapshot) NearestOnOrAfter(symbol string, strike decimal.Decimal, kind string, from time.Time) (model.Instrument, bool) {
	day := from.Truncate(24 * time.Hour)
	for _, row := range s.contracts[keyOf(symbol, strike, kind)] {
		if !row.Expiry.Truncate(24 * time.Hour).Before(day) {
			return row, true
		}
	}
	return model.Instrument{}, false
}

// Expiries returns the distinct listed expiries for (symbol, strike, kind),
// ascending.
func (s *Snapshot) Expiries(symbol string, strike decimal.Decimal, kind string) []time.Time {
	rows := s.contracts[keyOf(symbol, strike, kind)]
	out := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Expiry)
	}
	return out
}

// Catalog hands out the current snapshot and swaps in fresh ones atomically.
// Readers holding an older snapshot keep resolving against it until they ask
// again.
type Catalog struct {
	snap atomic.Pointer[Snapshot]
}

func New() *Catalog {
	c := &Catalog{}
	c.snap.Store(BuildSnapshot("empty", nil))
	return c
}

// Current returns the active snapshot. Never nil.
func (c *Catalog) Current() *Snapshot {
	return c.snap.Load()
}

// Swap publishes a new snapshot.
func (c *Catalog) Swap(s *Snapshot) {
	c.snap.Store(s)
}
