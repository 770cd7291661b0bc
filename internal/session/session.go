// Package session runs one trading session: it turns ticks into signals,
// signals into contracts, and settlements into ledger entries, with
// watchdogs that keep the session live when the broker goes quiet.
package session

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"binary-core/internal/gateway"
	"binary-core/internal/indicators"
	"binary-core/internal/risk"
	"binary-core/internal/strategy"
)

const (
	historySize   = 200
	tradeMemory   = 100
	escapeValveAt = 0.5 // fraction of balance above which an unaffordable stake resets recovery
)

// Options wires a session's collaborators.
type Options struct {
	Broker    Broker
	Provider  strategy.Provider
	Observers []Observer
	Logger    zerolog.Logger
	Timing    Timing
	Clock     func() time.Time
}

// openTrade is what the session knows about a contract it paid for.
type openTrade struct {
	stake        float64
	direction    strategy.Direction
	contractType string
	step         int
}

// Session is one bot slot trading one symbol.
type Session struct {
	id        string
	cfg       Config
	broker    Broker
	provider  strategy.Provider
	ledger    *risk.Manager
	observers []Observer
	timing    Timing
	now       func() time.Time
	log       zerolog.Logger

	mu              sync.Mutex
	state           State
	started         bool
	waiting         bool
	waitingSince    time.Time
	currentContract int64
	pending         openTrade
	contracts       map[int64]openTrade // bought, not yet settled
	settled         map[int64]struct{}
	history         *indicators.Window

	accumulatedLoss   float64
	recoveryStep      int
	recoveryStartedAt time.Time

	lastTrade      time.Time
	lastTick       time.Time
	lastSignal     time.Time
	noSignalStreak int
	tradesToday    int
	tradeDay       string
	ticks          int

	trades     []TradeRecord
	releases   int
	stopReason string
	startedAt  time.Time
	stoppedAt  time.Time
	final      *Stats
	cancel     context.CancelFunc
	done       chan struct{}
}

// New builds a stopped session. cfg must already be validated.
func New(id string, cfg Config, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	def := DefaultTiming()
	if opts.Timing.Poll <= 0 {
		opts.Timing.Poll = def.Poll
	}
	if opts.Timing.ContractWait <= 0 {
		opts.Timing.ContractWait = def.ContractWait
	}
	if opts.Timing.TickStale <= 0 {
		opts.Timing.TickStale = def.TickStale
	}
	if opts.Timing.SignalRecovery <= 0 {
		opts.Timing.SignalRecovery = def.SignalRecovery
	}
	if opts.Timing.SignalIdle <= 0 {
		opts.Timing.SignalIdle = def.SignalIdle
	}

	ledger := risk.NewInMemory(cfg.RiskConfig())
	ledger.SetClock(opts.Clock)

	return &Session{
		id:        id,
		cfg:       cfg,
		broker:    opts.Broker,
		provider:  opts.Provider,
		ledger:    ledger,
		observers: opts.Observers,
		timing:    opts.Timing,
		now:       opts.Clock,
		log: opts.Logger.With().
			Str("component", "session").
			Str("session", id).
			Str("symbol", cfg.Symbol).
			Logger(),
		state:     StateStopped,
		contracts: make(map[int64]openTrade),
		settled:   make(map[int64]struct{}),
		history:   indicators.NewWindow(historySize),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Config() Config { return s.cfg }

// Done is closed once the session reaches STOPPED after running.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start connects, authorizes and subscribes, then begins trading. A failure
// at any step leaves the session STOPPED with the broker closed.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.state = StateConnecting
	s.mu.Unlock()

	s.broker.SetListener(s)
	s.log.Info().Str("strategy", s.cfg.StrategyID).Str("account", s.cfg.AccountMode).Msg("connecting")

	if err := s.broker.Connect(ctx); err != nil {
		return s.abort(fmt.Errorf("connect: %w", err))
	}
	if !s.advance(StateConnecting, StateAuthorizing) {
		return s.abort(ErrStopped)
	}
	if err := s.broker.Authorize(ctx, s.cfg.Token); err != nil {
		return s.abort(fmt.Errorf("authorize: %w", err))
	}
	if err := s.broker.SubscribeTicks(s.cfg.Symbol); err != nil {
		return s.abort(fmt.Errorf("subscribe: %w", err))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	now := s.now()

	s.mu.Lock()
	if s.state != StateAuthorizing {
		s.mu.Unlock()
		cancel()
		return s.abort(ErrStopped)
	}
	s.state = StateRunning
	s.startedAt = now
	s.lastTick, s.lastSignal, s.lastTrade = now, now, now
	s.tradeDay = now.Format("2006-01-02")
	s.cancel = cancel
	s.mu.Unlock()

	go s.watch(runCtx)
	s.log.Info().Float64("balance", s.broker.Balance()).Msg("session running")
	return nil
}

func (s *Session) advance(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) abort(err error) error {
	s.mu.Lock()
	s.state = StateStopped
	s.stopReason = "start_failed"
	s.stoppedAt = s.now()
	s.mu.Unlock()

	_ = s.broker.Close()
	s.log.Error().Err(err).Msg("session failed to start")
	return err
}

// Stop ends the session and returns the frozen snapshot. Calling Stop on a
// stopped session returns the same snapshot.
func (s *Session) Stop() Stats {
	s.mu.Lock()
	if s.state == StateStopped {
		snap := s.statsLocked()
		s.mu.Unlock()
		return snap
	}
	finish := s.stopLocked(ReasonManual)
	snap := *s.final
	s.mu.Unlock()

	finish()
	return snap
}

// Stats returns a live snapshot, or the frozen one after stop.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

// Trades returns up to limit of the most recent trades, oldest first.
func (s *Session) Trades(limit int) []TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.trades)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]TradeRecord, limit)
	copy(out, s.trades[n-limit:])
	return out
}

// OnTick implements gateway.Listener.
func (s *Session) OnTick(t gateway.Tick) {
	s.dispatch("tick", func() func() { return s.handleTickLocked(t) })
}

// OnContract implements gateway.Listener.
func (s *Session) OnContract(u gateway.ContractUpdate) {
	s.dispatch("contract", func() func() { return s.handleContractLocked(u) })
}

// dispatch runs fn under s.mu, then whatever fn returned once the lock is
// released. A panic in either half is logged and swallowed.
func (s *Session) dispatch(kind string, fn func() func()) {
	var after func()
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Str("event", kind).Msg("handler panicked, event ignored")
			}
		}()
		s.mu.Lock()
		defer s.mu.Unlock()
		after = fn()
	}()
	if after == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("event", kind).Msg("post-event hook panicked")
		}
	}()
	after()
}

func (s *Session) handleTickLocked(t gateway.Tick) func() {
	if s.state != StateRunning {
		return nil
	}
	now := s.now()
	s.lastTick = now
	s.ticks++
	s.history.Push(t.Quote)

	if s.waiting {
		return nil
	}
	s.rollDayLocked(now)

	balance := s.broker.Balance()
	if ok, reason := s.ledger.MayOperate(balance); !ok {
		return s.stopLocked(reason)
	}
	if s.cfg.MaxTradesPerDay > 0 && s.tradesToday >= s.cfg.MaxTradesPerDay {
		return s.stopLocked(ReasonDailyTradeLimit)
	}

	sig := s.analyzeLocked()
	if sig.IsSkip() {
		s.noSignalStreak++
		return nil
	}
	s.noSignalStreak = 0
	s.lastSignal = now

	stake := s.nextStakeLocked(balance)
	if stop, reason := s.ledger.PreventiveStop(s.accumulatedLoss, stake); stop {
		s.log.Warn().
			Float64("accumulated_loss", s.accumulatedLoss).
			Float64("stake", stake).
			Float64("loss_limit", s.cfg.LossLimit).
			Msg("trade would breach loss limit")
		return s.stopLocked(reason)
	}
	if stake > balance {
		ev := s.log.Warn().Float64("stake", stake).Float64("balance", balance)
		if stake > balance*escapeValveAt {
			s.resetRecoveryLocked()
			ev = ev.Bool("recovery_reset", true)
		}
		ev.Msg("stake unaffordable, trade skipped")
		return nil
	}

	ct := ContractType(s.cfg.Symbol, sig.Direction)
	spec := gateway.ContractSpec{
		Amount:       stake,
		ContractType: ct,
		Currency:     s.broker.Currency(),
		Duration:     s.cfg.Duration,
		DurationUnit: s.cfg.DurationUnit,
		Symbol:       s.cfg.Symbol,
	}

	s.waiting = true
	s.waitingSince = now
	s.currentContract = 0
	s.pending = openTrade{stake: stake, direction: sig.Direction, contractType: ct, step: s.recoveryStep}
	if err := s.broker.QuoteAndBuy(spec); err != nil {
		s.waiting = false
		s.log.Error().Err(err).Msg("order not sent")
		return nil
	}
	s.lastTrade = now
	s.tradesToday++

	s.log.Info().
		Str("direction", string(sig.Direction)).
		Str("contract_type", ct).
		Float64("stake", stake).
		Float64("confidence", sig.Confidence).
		Int("step", s.recoveryStep).
		Msg("order placed")
	return nil
}

func (s *Session) handleContractLocked(u gateway.ContractUpdate) func() {
	if s.state != StateRunning {
		return nil
	}
	now := s.now()

	if u.Interrupted() {
		id := u.ContractID
		if s.releasedLocked(id) {
			s.log.Debug().Int64("contract_id", id).Str("flag", string(u.Flag)).Msg("interruption for released contract ignored")
			return nil
		}
		if id == 0 {
			id = s.currentContract
		}
		rel := s.releaseLocked(id, string(u.Flag), now)
		if rel == nil {
			return nil
		}
		return func() { s.notifyRelease(*rel) }
	}

	switch {
	case u.Status == gateway.StatusOpen:
		if s.waiting && s.currentContract == 0 && u.ContractID != 0 && !s.releasedLocked(u.ContractID) {
			s.currentContract = u.ContractID
			s.contracts[u.ContractID] = s.pending
		}
		return nil
	case !u.Terminal():
		return nil
	}

	id := u.ContractID
	if id != 0 {
		if _, dup := s.settled[id]; dup {
			s.log.Debug().Int64("contract_id", id).Msg("duplicate settlement ignored")
			return nil
		}
	}

	var trade openTrade
	current := !s.releasedLocked(id) && s.waiting && (s.currentContract == 0 || s.currentContract == id)
	if current {
		trade = s.pending
		s.waiting = false
		s.currentContract = 0
	} else {
		known, ok := s.contracts[id]
		if !ok || id == 0 {
			s.log.Warn().Int64("contract_id", id).Msg("settlement for unknown contract ignored")
			return nil
		}
		trade = known
		s.log.Warn().Int64("contract_id", id).Msg("late settlement for released contract")
	}
	if id != 0 {
		s.settled[id] = struct{}{}
		delete(s.contracts, id)
	}

	won := u.Status == gateway.StatusWon
	if won {
		s.resetRecoveryLocked()
	} else {
		s.accumulatedLoss = risk.RoundMoney(s.accumulatedLoss + math.Abs(u.Profit))
		if s.accumulatedLoss > 0 && s.recoveryStartedAt.IsZero() {
			s.recoveryStartedAt = now
		}
		s.recoveryStep++
	}
	s.lastTrade = now

	s.feedProviderLocked(won)
	s.ledger.RecordTrade(u.Profit, won)

	m := s.ledger.GetMetrics()
	rec := TradeRecord{
		ID:           uuid.NewString(),
		SessionID:    s.id,
		ContractID:   id,
		Direction:    trade.direction,
		ContractType: trade.contractType,
		Result:       ResultLoss,
		Profit:       risk.RoundMoney(u.Profit),
		Stake:        trade.stake,
		Symbol:       s.cfg.Symbol,
		ExitTick:     u.ExitTick,
		Timestamp:    now,
		NextStake:    s.nextStakeLocked(s.broker.Balance()),
		Step:         trade.step,
		WinRateSoFar: m.WinRate,
		NetBalance:   m.NetBalance,
	}
	if won {
		rec.Result = ResultWin
	}
	s.trades = append(s.trades, rec)
	if len(s.trades) > tradeMemory {
		s.trades = append(s.trades[:0], s.trades[len(s.trades)-tradeMemory:]...)
	}

	s.log.Info().
		Int64("contract_id", id).
		Str("result", rec.Result).
		Float64("profit", rec.Profit).
		Float64("net", m.NetBalance).
		Float64("accumulated_loss", s.accumulatedLoss).
		Float64("next_stake", rec.NextStake).
		Msg("contract settled")

	var finish func()
	if stop, reason := s.ledger.ShouldStop(); stop {
		finish = s.stopLocked(reason)
	}
	return func() {
		s.notifyTrade(rec)
		if finish != nil {
			finish()
		}
	}
}

// releaseLocked frees the pending slot without touching the ledger. It is a
// no-op when nothing is pending.
func (s *Session) releaseLocked(id int64, reason string, now time.Time) *Release {
	if !s.waiting {
		return nil
	}
	s.waiting = false
	s.currentContract = 0
	s.lastTrade = now
	s.lastSignal = now
	s.releases++
	if id != 0 {
		if _, done := s.settled[id]; !done {
			s.contracts[id] = s.pending
		}
	}

	s.log.Warn().Int64("contract_id", id).Str("reason", reason).Float64("stake", s.pending.stake).Msg("contract released without settlement")
	return &Release{SessionID: s.id, ContractID: id, Reason: reason, Stake: s.pending.stake, At: now}
}

// releasedLocked reports whether id belongs to a contract the session already
// gave up on. Such ids never settle or release the current wait.
func (s *Session) releasedLocked(id int64) bool {
	if id == 0 || id == s.currentContract {
		return false
	}
	_, ok := s.contracts[id]
	return ok
}

func (s *Session) resetRecoveryLocked() {
	s.accumulatedLoss = 0
	s.recoveryStep = 0
	s.recoveryStartedAt = time.Time{}
}

// nextStakeLocked is the single stake authority: recovery sizing while a loss
// is outstanding and the step budget allows it, the base stake otherwise.
func (s *Session) nextStakeLocked(balance float64) float64 {
	base := s.cfg.BaseStake
	if !s.cfg.MartingaleEnabled || s.accumulatedLoss <= 0 {
		return base
	}
	if s.cfg.MaxMartingaleSteps > 0 && s.recoveryStep > s.cfg.MaxMartingaleSteps {
		return base
	}
	return risk.RecoveryStake(s.accumulatedLoss, s.cfg.ProfitTarget, s.cfg.PayoutRate, base, balance)
}

func (s *Session) analyzeLocked() (sig strategy.Signal) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("strategy", s.provider.ID()).Msg("strategy panicked, treating as skip")
			sig = strategy.Signal{Direction: strategy.Skip, Reason: "panic"}
		}
	}()
	return s.provider.Analyze(s.history.Values())
}

func (s *Session) feedProviderLocked(won bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("strategy result hook panicked")
		}
	}()
	s.provider.OnTradeResult(won)
}

func (s *Session) resetProviderLocked() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("strategy reset panicked")
		}
	}()
	s.provider.Reset()
}

func (s *Session) rollDayLocked(now time.Time) {
	day := now.Format("2006-01-02")
	if day != s.tradeDay {
		if s.tradeDay != "" {
			s.log.Info().Int("trades", s.tradesToday).Str("day", s.tradeDay).Msg("daily trade count reset")
		}
		s.tradeDay = day
		s.tradesToday = 0
	}
}

// stopLocked moves to STOPPED, freezes the snapshot and returns the teardown
// to run after s.mu is released.
func (s *Session) stopLocked(reason string) func() {
	if s.state == StateStopped {
		return nil
	}
	s.state = StateStopped
	s.stopReason = reason
	s.stoppedAt = s.now()
	if s.cancel != nil {
		s.cancel()
	}
	snap := s.statsLocked()
	s.final = &snap
	close(s.done)

	s.log.Info().
		Str("reason", reason).
		Float64("net", snap.Ledger.NetBalance).
		Int("trades", snap.Ledger.TotalTrades).
		Msg("session stopped")

	return func() {
		if err := s.broker.Close(); err != nil {
			s.log.Warn().Err(err).Msg("broker close failed")
		}
		for _, o := range s.observers {
			s.safeNotify(func() { o.OnSessionStopped(snap) })
		}
	}
}

func (s *Session) statsLocked() Stats {
	if s.final != nil {
		return *s.final
	}
	balance := s.broker.Balance()
	return Stats{
		SessionID:       s.id,
		Slot:            s.cfg.Slot,
		StrategyID:      s.cfg.StrategyID,
		Symbol:          s.cfg.Symbol,
		AccountMode:     s.cfg.AccountMode,
		State:           s.state,
		StopReason:      s.stopReason,
		Balance:         balance,
		AccumulatedLoss: s.accumulatedLoss,
		RecoveryStep:    s.recoveryStep,
		NextStake:       s.nextStakeLocked(balance),
		TradesToday:     s.tradesToday,
		WaitingContract: s.waiting,
		Releases:        s.releases,
		TickCount:       s.ticks,
		StartedAt:       s.startedAt,
		StoppedAt:       s.stoppedAt,
		Ledger:          s.ledger.GetMetrics(),
	}
}

func (s *Session) notifyTrade(rec TradeRecord) {
	for _, o := range s.observers {
		s.safeNotify(func() { o.OnTrade(rec) })
	}
}

func (s *Session) notifyRelease(rel Release) {
	for _, o := range s.observers {
		s.safeNotify(func() { o.OnRelease(rel) })
	}
}

func (s *Session) safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("observer panicked")
		}
	}()
	fn()
}

// ContractType maps a signal direction to the broker contract. Volatility and
// bear/bull indices trade digit parity; everything else trades rise/fall.
func ContractType(symbol string, dir strategy.Direction) string {
	if strings.Contains(symbol, "R_") || strings.Contains(symbol, "RDBEAR") || strings.Contains(symbol, "RDBULL") {
		if dir == strategy.Call {
			return "DIGITODD"
		}
		return "DIGITEVEN"
	}
	return string(dir)
}
