package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"binary-core/internal/events"
	"binary-core/internal/session"
)

// Monitor watches the event bus and raises alerts for releases and for
// sessions that stopped on a loss condition.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink
	Log  zerolog.Logger
	Now  func() time.Time
}

func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		m.Log.Warn().Msg("monitor not fully configured; skipping")
		return
	}
	if m.Now == nil {
		m.Now = time.Now
	}
	stream, unsub := m.Bus.Subscribe([]events.Event{events.EventContractRelease, events.EventSessionStopped}, 50)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				msg, raise := m.evaluate(env)
				if !raise {
					continue
				}
				if err := m.Sink.Send(m.format(msg)); err != nil {
					m.Log.Error().Err(err).Msg("alert delivery failed")
				}
			}
		}
	}()
}

func (m *Monitor) evaluate(env events.Envelope) (string, bool) {
	switch v := env.Data.(type) {
	case session.Release:
		return fmt.Sprintf("session %s released contract %d (%s, stake %.2f); outcome unverified",
			v.SessionID, v.ContractID, v.Reason, v.Stake), true
	case session.Stats:
		if !alertingStop(v.StopReason) {
			return "", false
		}
		return fmt.Sprintf("session %s stopped: %s (net %.2f)", v.SessionID, v.StopReason, v.Ledger.NetBalance), true
	}
	return "", false
}

func (m *Monitor) format(msg string) string {
	return "[" + m.Now().Format(time.RFC3339) + "] " + msg
}
