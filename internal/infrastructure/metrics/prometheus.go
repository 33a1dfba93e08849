package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"perp-autotrader/internal/domain"
)

const namespace = "autotrader"

// Recorder implements domain.Metrics using Prometheus.
type Recorder struct {
	cycles         *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	orders         *prometheus.CounterVec
	protections    *prometheus.CounterVec
	positionEvents *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	openPositions  prometheus.Gauge
	scores         *prometheus.GaugeVec
	dailyLoss      prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Auto-trade cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of auto-trade cycles",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		),
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_total",
				Help:      "Market orders placed",
			},
			[]string{"symbol", "side"},
		),
		protections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "protection_total",
				Help:      "Stop/target placement attempts",
			},
			[]string{"symbol", "result"},
		),
		positionEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "position_events_total",
				Help:      "Position lifecycle events",
			},
			[]string{"kind"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications by channel and result",
			},
			[]string{"channel", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors by kind",
			},
			[]string{"type"},
		),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Active positions seen on the last poll",
		}),
		scores: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "opportunity_score",
				Help:      "Last opportunity score per symbol",
			},
			[]string{"symbol"},
		),
		dailyLoss: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_loss_ratio",
			Help:      "Realized loss today as a fraction of balance",
		}),
	}
}

func (r *Recorder) RecordCycle(outcome string, seconds float64) {
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.WithLabelValues(outcome).Observe(seconds)
}

func (r *Recorder) RecordOrder(symbol, side string) {
	r.orders.WithLabelValues(symbol, side).Inc()
}

func (r *Recorder) RecordProtection(symbol string, ok bool) {
	r.protections.WithLabelValues(symbol, result(ok)).Inc()
}

func (r *Recorder) RecordPositionEvent(kind string) {
	r.positionEvents.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordNotification(channel string, ok bool) {
	r.notifications.WithLabelValues(channel, result(ok)).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordOpenPositions(n int) {
	r.openPositions.Set(float64(n))
}

func (r *Recorder) RecordScore(symbol string, score float64) {
	r.scores.WithLabelValues(symbol).Set(score)
}

func (r *Recorder) RecordDailyLoss(pct float64) {
	r.dailyLoss.Set(pct)
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

var _ domain.Metrics = (*Recorder)(nil)
