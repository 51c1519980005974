package stats

import "github.com/prometheus/client_golang/prometheus"

// Prometheus is a Collector backed by prometheus counters, served by the
// status server at /metrics (Prometheus text exposition format).
type Prometheus struct {
	messagesSeen  prometheus.Counter
	parsed        *prometheus.CounterVec
	noiseFiltered prometheus.Counter
	fallbackCalls prometheus.Counter
	duplicates    prometheus.Counter
	signals       prometheus.Counter
	orders        prometheus.Counter
	rejections    *prometheus.CounterVec
	trailAdvances prometheus.Counter
	unprotected   prometheus.Gauge
}

// NewPrometheus builds the collector and registers its metrics on reg.
// Pass prometheus.DefaultRegisterer outside of tests.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		messagesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "executor_messages_seen_total",
			Help: "Inbound messages observed",
		}),
		parsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "executor_parsed_total",
			Help: "Messages parsed into an intent, by tier",
		}, []string{"tier"}),
		noiseFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "executor_noise_filtered_total",
			Help: "Messages dropped by the noise filter before the fallback call",
		}),
		fallbackCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "executor_fallback_calls_total",
			Help: "Calls made to the fallback extraction service",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "executor_duplicate_deliveries_total",
			Help: "Messages rejected by the (channel, message) dedup key",
		}),
		signals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "executor_signals_created_total",
			Help: "Signal records created",
		}),
		orders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "executor_orders_submitted_total",
			Help: "Entry orders submitted to the brokerage",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "executor_resolution_rejections_total",
			Help: "Signals rejected at resolution, by reason",
		}, []string{"reason"}),
		trailAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "executor_trail_advances_total",
			Help: "Protective stops advanced by the trailing engine",
		}),
		unprotected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "executor_unprotected_positions",
			Help: "Open positions currently without an active protective order",
		}),
	}

	reg.MustRegister(
		p.messagesSeen, p.parsed, p.noiseFiltered, p.fallbackCalls,
		p.duplicates, p.signals, p.orders, p.rejections,
		p.trailAdvances, p.unprotected,
	)
	return p
}

func (p *Prometheus) IncMessagesSeen()       { p.messagesSeen.Inc() }
func (p *Prometheus) IncParsed(tier string)  { p.parsed.WithLabelValues(tier).Inc() }
func (p *Prometheus) IncNoiseFiltered()      { p.noiseFiltered.Inc() }
func (p *Prometheus) IncFallbackCalls()      { p.fallbackCalls.Inc() }
func (p *Prometheus) IncDuplicates()         { p.duplicates.Inc() }
func (p *Prometheus) IncSignalsCreated()     { p.signals.Inc() }
func (p *Prometheus) IncOrdersSubmitted()    { p.orders.Inc() }
func (p *Prometheus) IncRejections(r string) { p.rejections.WithLabelValues(r).Inc() }
func (p *Prometheus) IncTrailAdvances()      { p.trailAdvances.Inc() }
func (p *Prometheus) SetUnprotectedPositions(n int) {
	p.unprotected.Set(float64(n))
}

var _ Collector = (*Prometheus)(nil)
