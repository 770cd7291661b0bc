package persistence

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"binary-core/internal/session"
	"binary-core/pkg/db"
)

// Journal is a session.Observer that records everything a session does.
// Releases are stored as unverified: their real outcome is unknown.
type Journal struct {
	w   *BatchWriter
	log zerolog.Logger
}

func NewJournal(w *BatchWriter, logger zerolog.Logger) *Journal {
	return &Journal{w: w, log: logger.With().Str("component", "journal").Logger()}
}

// SessionStarted records the session row. Call it before the session runs.
func (j *Journal) SessionStarted(id string, cfg session.Config, st session.Stats) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		j.log.Warn().Err(err).Str("session", id).Msg("config not serializable")
	}
	j.w.WriteQuery("sessions", db.InsertSessionSQL,
		id, cfg.Slot, cfg.StrategyID, cfg.Symbol, cfg.AccountMode, string(raw), string(st.State), st.StartedAt)
}

func (j *Journal) OnTrade(r session.TradeRecord) {
	j.w.WriteQuery("trades", db.InsertTradeSQL,
		r.ID, r.SessionID, r.ContractID, string(r.Direction), r.ContractType, r.Result,
		r.Profit, r.Stake, r.Symbol, r.Step, r.NextStake, r.WinRateSoFar, r.NetBalance, r.ExitTick, r.Timestamp)
}

func (j *Journal) OnRelease(r session.Release) {
	j.w.WriteQuery("contract_releases", db.InsertReleaseSQL,
		r.SessionID, r.ContractID, r.Reason, r.Stake, r.At)
}

func (j *Journal) OnSessionStopped(s session.Stats) {
	j.w.WriteQuery("sessions", db.FinishSessionSQL,
		string(s.State), s.StopReason, s.Ledger.NetBalance, s.Ledger.Wins, s.Ledger.Losses, s.Releases, s.StoppedAt,
		s.SessionID)
	if err := j.w.Flush(); err != nil {
		j.log.Error().Err(err).Str("session", s.SessionID).Msg("flush on stop failed")
	}
}
