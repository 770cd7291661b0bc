package session

import (
	"context"
	"time"
)

func (s *Session) watch(ctx context.Context) {
	ticker := time.NewTicker(s.timing.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkWatchdogs(s.now())
		}
	}
}

// checkWatchdogs runs the contract, tick and signal watchdogs once.
func (s *Session) checkWatchdogs(now time.Time) {
	s.dispatch("watchdog", func() func() {
		if s.state != StateRunning {
			return nil
		}

		var rel *Release
		if s.waiting && now.Sub(s.waitingSince) > s.timing.ContractWait {
			rel = s.releaseLocked(s.currentContract, ReleaseWatchdog, now)
		}

		resubscribe := false
		if !s.waiting && now.Sub(s.lastTick) > s.timing.TickStale {
			s.log.Warn().Dur("silent_for", now.Sub(s.lastTick)).Msg("no ticks, resubscribing")
			s.lastTick = now
			resubscribe = true
		}

		recovering := s.accumulatedLoss > 0
		limit := s.timing.SignalIdle
		if recovering {
			limit = s.timing.SignalRecovery
		}
		if !s.waiting && now.Sub(s.lastSignal) > limit {
			ev := s.log.Warn().
				Dur("silent_for", now.Sub(s.lastSignal)).
				Int("skipped_ticks", s.noSignalStreak).
				Bool("recovering", recovering)
			s.noSignalStreak = 0
			s.lastSignal = now
			resubscribe = true

			if recovering && !s.recoveryStartedAt.IsZero() && now.Sub(s.recoveryStartedAt) > 2*s.timing.SignalRecovery {
				s.resetProviderLocked()
				s.history.Reset()
				ev = ev.Bool("strategy_reset", true)
			}
			ev.Msg("no signal, soft reset")
		}

		if rel == nil && !resubscribe {
			return nil
		}
		return func() {
			if rel != nil {
				s.broker.Abandon()
				s.notifyRelease(*rel)
			}
			if resubscribe {
				if err := s.broker.Resubscribe(); err != nil {
					s.log.Error().Err(err).Msg("resubscribe failed")
				}
			}
		}
	})
}
