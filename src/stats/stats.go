package stats

// Collector receives pipeline statistics through explicit calls. Components
// take it as a dependency instead of bumping module-level counters.
type Collector interface {
	IncMessagesSeen()
	IncParsed(tier string)
	IncNoiseFiltered()
	IncFallbackCalls()
	IncDuplicates()
	IncSignalsCreated()
	IncOrdersSubmitted()
	IncRejections(reason string)
	IncTrailAdvances()
	SetUnprotectedPositions(n int)
}

// Noop discards every update. Handy default for tests and one-shot commands.
type Noop struct{}

func (Noop) IncMessagesSeen()              {}
func (Noop) IncParsed(string)              {}
func (Noop) IncNoiseFiltered()             {}
func (Noop) IncFallbackCalls()             {}
func (Noop) IncDuplicates()                {}
func (Noop) IncSignalsCreated()            {}
func (Noop) IncOrdersSubmitted()           {}
func (Noop) IncRejections(string)          {}
func (Noop) IncTrailAdvances()             {}
func (Noop) SetUnprotectedPositions(int)   {}

var _ Collector = Noop{}
