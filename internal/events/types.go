package events

// Event enumerates high-level topics inside the session service.
type Event string

const (
	EventSessionStarted  Event = "session.started"
	EventSessionStopped  Event = "session.stopped"
	EventTradeSettled    Event = "trade.settled"
	EventContractRelease Event = "contract.released"
)

// All lists every topic, for subscribers that want the whole stream.
var All = []Event{
	EventSessionStarted,
	EventSessionStopped,
	EventTradeSettled,
	EventContractRelease,
}

// Envelope is what the dashboard stream sees for each published event.
type Envelope struct {
	Type      Event  `json:"type"`
	SessionID string `json:"session_id"`
	Data      any    `json:"data"`
}
