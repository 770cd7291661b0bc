package events

import "binary-core/internal/session"

// Publisher forwards session notifications to a Bus.
type Publisher struct {
	Bus *Bus
}

func (p Publisher) OnTrade(r session.TradeRecord) {
	p.Bus.Publish(EventTradeSettled, r.SessionID, r)
}

func (p Publisher) OnRelease(r session.Release) {
	p.Bus.Publish(EventContractRelease, r.SessionID, r)
}

func (p Publisher) OnSessionStopped(s session.Stats) {
	p.Bus.Publish(EventSessionStopped, s.SessionID, s)
}
