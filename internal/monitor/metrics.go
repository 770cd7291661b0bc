package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"binary-core/internal/session"
)

// Metrics exports session activity to Prometheus. It is a session.Observer.
type Metrics struct {
	trades     *prometheus.CounterVec
	profit     *prometheus.CounterVec
	stakes     *prometheus.HistogramVec
	releases   *prometheus.CounterVec
	stops      *prometheus.CounterVec
	active     prometheus.Gauge
	netBalance *prometheus.GaugeVec
	nextStake  *prometheus.GaugeVec
}

// NewMetrics registers the session collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binary_trades_total",
				Help: "Settled contracts",
			},
			[]string{"symbol", "result"}, // win|loss
		),
		profit: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binary_trade_profit_total",
				Help: "Absolute money won or lost on settled contracts",
			},
			[]string{"result"},
		),
		stakes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "binary_trade_stake",
				Help:    "Stake of settled contracts",
				Buckets: []float64{0.35, 0.5, 1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"symbol"},
		),
		releases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binary_contract_releases_total",
				Help: "Pending contracts released without a settlement",
			},
			[]string{"reason"},
		),
		stops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binary_session_stops_total",
				Help: "Stopped sessions by reason",
			},
			[]string{"reason"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "binary_sessions_active",
				Help: "Sessions currently running",
			},
		),
		netBalance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "binary_session_net_balance",
				Help: "Net result of a session",
			},
			[]string{"session"},
		),
		nextStake: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "binary_session_next_stake",
				Help: "Stake the session will place on its next signal",
			},
			[]string{"session"},
		),
	}
	reg.MustRegister(m.trades, m.profit, m.stakes, m.releases, m.stops, m.active, m.netBalance, m.nextStake)
	return m
}

// SessionStarted counts a session that reached RUNNING.
func (m *Metrics) SessionStarted(id string) {
	m.active.Inc()
	m.netBalance.WithLabelValues(id).Set(0)
}

func (m *Metrics) OnTrade(r session.TradeRecord) {
	m.trades.WithLabelValues(r.Symbol, r.Result).Inc()
	amount := r.Profit
	if amount < 0 {
		amount = -amount
	}
	m.profit.WithLabelValues(r.Result).Add(amount)
	m.stakes.WithLabelValues(r.Symbol).Observe(r.Stake)
	m.netBalance.WithLabelValues(r.SessionID).Set(r.NetBalance)
	m.nextStake.WithLabelValues(r.SessionID).Set(r.NextStake)
}

func (m *Metrics) OnRelease(r session.Release) {
	m.releases.WithLabelValues(r.Reason).Inc()
}

func (m *Metrics) OnSessionStopped(s session.Stats) {
	m.stops.WithLabelValues(s.StopReason).Inc()
	m.active.Dec()
	m.netBalance.DeleteLabelValues(s.SessionID)
	m.nextStake.DeleteLabelValues(s.SessionID)
}
