// Package market provides an offline broker that synthesizes ticks and
// settles contracts locally, for sessions in sim account mode.
package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"binary-core/internal/gateway"
)

// SimConfig tunes the synthetic market.
type SimConfig struct {
	StartPrice float64
	Volatility float64 // per-tick relative standard deviation
	Interval   time.Duration
	Balance    float64
	Currency   string
	WinRate    float64 // probability that a contract wins
	PayoutRate float64
	Seed       int64
}

func DefaultSimConfig() SimConfig {
	return SimConfig{
		StartPrice: 5000,
		Volatility: 0.0008,
		Interval:   500 * time.Millisecond,
		Balance:    1000,
		Currency:   "USD",
		WinRate:    0.72,
		PayoutRate: 0.88,
	}
}

type simContract struct {
	id        int64
	stake     decimal.Decimal
	announced bool
}

// Simulator implements the session broker without a network. Listener calls
// come from its own ticker goroutine, never from inside a method call.
type Simulator struct {
	cfg SimConfig
	log zerolog.Logger

	mu         sync.Mutex
	rng        *rand.Rand
	listener   gateway.Listener
	price      float64
	balance    decimal.Decimal
	symbol     string
	connected  bool
	authorized bool
	pending    *simContract
	nextID     int64
	cancel     context.CancelFunc
}

// NewSimulator fills zero fields of cfg from DefaultSimConfig.
func NewSimulator(cfg SimConfig, logger zerolog.Logger) *Simulator {
	def := DefaultSimConfig()
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = def.StartPrice
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = def.Volatility
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Balance <= 0 {
		cfg.Balance = def.Balance
	}
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	if cfg.PayoutRate <= 0 {
		cfg.PayoutRate = def.PayoutRate
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg:     cfg,
		log:     logger.With().Str("component", "simulator").Logger(),
		rng:     rand.New(rand.NewSource(seed)),
		price:   cfg.StartPrice,
		balance: decimal.NewFromFloat(cfg.Balance),
		nextID:  1,
	}
}

func (s *Simulator) SetListener(l gateway.Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// Connect starts the tick loop.
func (s *Simulator) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.connected = true
	go s.run(loopCtx)
	return nil
}

// Authorize accepts any token.
func (s *Simulator) Authorize(ctx context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return gateway.ErrNotConnected
	}
	s.authorized = true
	s.log.Info().Str("balance", s.balance.StringFixed(2)).Msg("simulated account ready")
	return nil
}

func (s *Simulator) SubscribeTicks(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return gateway.ErrNotConnected
	}
	s.symbol = symbol
	return nil
}

// Resubscribe has nothing to re-establish.
func (s *Simulator) Resubscribe() error {
	s.log.Debug().Msg("resubscribe requested")
	return nil
}

// QuoteAndBuy accepts the contract at its stake. It is announced as open on
// the next step and settles on the one after.
func (s *Simulator) QuoteAndBuy(spec gateway.ContractSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || !s.authorized {
		return gateway.ErrNotConnected
	}
	if s.pending != nil {
		return gateway.ErrContractPending
	}
	s.pending = &simContract{id: s.nextID, stake: decimal.NewFromFloat(spec.Amount)}
	s.nextID++
	return nil
}

// Abandon cancels the pending contract. Its stake was never debited, so the
// balance is untouched.
func (s *Simulator) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.log.Debug().Int64("contract_id", s.pending.id).Msg("simulated contract abandoned")
		s.pending = nil
	}
}

func (s *Simulator) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance.InexactFloat64()
}

func (s *Simulator) Currency() string { return s.cfg.Currency }

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.connected = false
	s.authorized = false
	return nil
}

func (s *Simulator) run(ctx context.Context) {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.step()
		}
	}
}

// step advances the market by one tick and emits whatever it produced.
func (s *Simulator) step() {
	s.mu.Lock()
	s.price = s.price * (1 + s.rng.NormFloat64()*s.cfg.Volatility)
	s.price = math.Round(s.price*1e4) / 1e4
	listener := s.listener
	symbol := s.symbol
	price := s.price

	var updates []gateway.ContractUpdate
	if c := s.pending; c != nil {
		if !c.announced {
			c.announced = true
			updates = append(updates, gateway.ContractUpdate{ContractID: c.id, Status: gateway.StatusOpen})
		} else {
			updates = append(updates, s.settleLocked(c, price))
			s.pending = nil
		}
	}
	s.mu.Unlock()

	if listener == nil {
		return
	}
	if symbol != "" {
		listener.OnTick(gateway.Tick{Symbol: symbol, Quote: price, Epoch: time.Now().Unix()})
	}
	for _, u := range updates {
		listener.OnContract(u)
	}
}

func (s *Simulator) settleLocked(c *simContract, exit float64) gateway.ContractUpdate {
	won := s.rng.Float64() < s.cfg.WinRate
	profit := c.stake.Neg()
	status := gateway.StatusLost
	if won {
		profit = c.stake.Mul(decimal.NewFromFloat(s.cfg.PayoutRate)).Round(2)
		status = gateway.StatusWon
	}
	s.balance = s.balance.Add(profit)

	s.log.Debug().
		Int64("contract_id", c.id).
		Str("status", string(status)).
		Str("profit", profit.StringFixed(2)).
		Msg("simulated contract settled")

	return gateway.ContractUpdate{
		ContractID: c.id,
		Status:     status,
		Profit:     profit.InexactFloat64(),
		ExitTick:   exit,
	}
}
