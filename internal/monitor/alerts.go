package monitor

import (
	"github.com/rs/zerolog"

	"binary-core/internal/risk"
)

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts to the log at warn level.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Send(message string) error {
	s.Log.Warn().Str("alert", message).Msg("alert")
	return nil
}

// alertingStop reports whether a stop reason needs a human to look at it.
// Reaching the profit target or a manual stop does not.
func alertingStop(reason string) bool {
	switch reason {
	case risk.ReasonStopLoss, risk.ReasonPreventiveStop, risk.ReasonConsecutiveLosses, risk.ReasonLowBalance:
		return true
	}
	return false
}
