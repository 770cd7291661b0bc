package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"binary-core/internal/events"
	"binary-core/internal/risk"
	"binary-core/internal/session"
)

type chanSink chan string

func (c chanSink) Send(msg string) error {
	c <- msg
	return nil
}

func TestMonitorAlerts(t *testing.T) {
	bus := events.NewBus()
	sink := make(chanSink, 4)
	m := &Monitor{
		Bus:  bus,
		Sink: sink,
		Log:  zerolog.Nop(),
		Now:  func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) },
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	pub := events.Publisher{Bus: bus}
	pub.OnSessionStopped(session.Stats{SessionID: "s1", StopReason: risk.ReasonTakeProfit})
	pub.OnRelease(session.Release{SessionID: "s1", ContractID: 9, Reason: "watchdog", Stake: 1})
	pub.OnSessionStopped(session.Stats{SessionID: "s1", StopReason: risk.ReasonPreventiveStop})

	want := []string{"released contract 9 (watchdog", "stopped: preventive_stop"}
	for _, w := range want {
		select {
		case got := <-sink:
			if !strings.Contains(got, w) || !strings.HasPrefix(got, "[2026-03-02T10:00:00Z]") {
				t.Fatalf("alert=%q, expected to contain %q", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("no alert for %q", w)
		}
	}
}

func TestMetricsObserveSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SessionStarted("s1")
	m.OnTrade(session.TradeRecord{SessionID: "s1", Symbol: "R_100", Result: session.ResultLoss, Profit: -1, Stake: 1, NetBalance: -1})
	m.OnTrade(session.TradeRecord{SessionID: "s1", Symbol: "R_100", Result: session.ResultWin, Profit: 2.64, Stake: 3, NetBalance: 1.64})
	m.OnRelease(session.Release{SessionID: "s1", Reason: "timeout"})

	values := gather(t, reg)
	tests := []struct {
		key  string
		want float64
	}{
		{"binary_trades_total{result=loss,symbol=R_100}", 1},
		{"binary_trades_total{result=win,symbol=R_100}", 1},
		{"binary_trade_profit_total{result=win}", 2.64},
		{"binary_contract_releases_total{reason=timeout}", 1},
		{"binary_sessions_active{}", 1},
		{"binary_session_net_balance{session=s1}", 1.64},
	}
	for _, tt := range tests {
		if got := values[tt.key]; got != tt.want {
			t.Fatalf("%s=%v, expected %v", tt.key, got, tt.want)
		}
	}

	m.OnSessionStopped(session.Stats{SessionID: "s1", StopReason: "manual"})
	values = gather(t, reg)
	if _, ok := values["binary_session_net_balance{session=s1}"]; ok {
		t.Fatalf("net balance gauge kept after stop")
	}
	if got := values["binary_sessions_active{}"]; got != 0 {
		t.Fatalf("binary_sessions_active=%v, expected 0", got)
	}
}

// gather flattens counters and gauges into name{k=v,...} keys.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			var labels []string
			for _, lp := range metric.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			key := mf.GetName() + "{" + strings.Join(labels, ",") + "}"
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			}
		}
	}
	return out
}
