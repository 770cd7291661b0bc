// Package gateway maintains an authorized Deriv connection for one session:
// tick subscription, proposal-and-buy, contract tracking, keep-alive and
// reconnect.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"binary-core/pkg/deriv"
)

// Config holds gateway timings and endpoint.
type Config struct {
	URL             string
	AppID           string
	ConnectTimeout  time.Duration
	AuthTimeout     time.Duration
	ContractTimeout time.Duration // max wait for the buy ack, then again for the settlement
	PingInterval    time.Duration
	StaleAfter      time.Duration // silence that forces a reconnect
	ReconnectDelay  time.Duration
	SendRate        rate.Limit
	SendBurst       int
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		URL:             deriv.DefaultURL,
		AppID:           deriv.DefaultAppID,
		ConnectTimeout:  10 * time.Second,
		AuthTimeout:     15 * time.Second,
		ContractTimeout: 30 * time.Second,
		PingInterval:    5 * time.Second,
		StaleAfter:      30 * time.Second,
		ReconnectDelay:  2 * time.Second,
		SendRate:        20,
		SendBurst:       10,
	}
}

// Gateway is safe for concurrent use. The listener is never called while
// g.mu is held.
type Gateway struct {
	cfg     Config
	log     zerolog.Logger
	limiter *rate.Limiter

	ctx           context.Context
	cancel        context.CancelFunc
	keepAliveOnce sync.Once

	mu           sync.Mutex
	conn         *deriv.Conn
	listener     Listener
	token        string
	symbol       string
	subscribed   bool
	authorized   bool
	authWait     chan error
	balance      float64
	currency     string
	quotePending bool
	contractID   int64  // bought and not yet settled, 0 if none
	trade        uint64 // bumped per trade so stale timers do nothing
	timer        *time.Timer
	lastMessage  time.Time
	reconnecting bool
	closed       bool
}

// New creates a gateway. Nothing is dialed until Connect.
func New(cfg Config, logger zerolog.Logger) *Gateway {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = def.AuthTimeout
	}
	if cfg.ContractTimeout <= 0 {
		cfg.ContractTimeout = def.ContractTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = def.SendRate
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = def.SendBurst
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		cfg:      cfg,
		log:      logger.With().Str("component", "gateway").Logger(),
		limiter:  rate.NewLimiter(cfg.SendRate, cfg.SendBurst),
		ctx:      ctx,
		cancel:   cancel,
		currency: "USD",
	}
}

func (g *Gateway) SetListener(l Listener) {
	g.mu.Lock()
	g.listener = l
	g.mu.Unlock()
}

// Connect dials the broker and starts the read loop. The keep-alive loop is
// started once per gateway.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return ErrClosed
	}

	endpoint, err := deriv.Endpoint(g.cfg.URL, g.cfg.AppID)
	if err != nil {
		return err
	}
	conn, err := deriv.Dial(ctx, endpoint, g.cfg.ConnectTimeout, g.limiter)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return err
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	old := g.conn
	g.conn = conn
	g.lastMessage = time.Now()
	g.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	go g.readLoop(conn)
	g.keepAliveOnce.Do(func() { go g.keepAlive() })

	g.log.Info().Str("url", g.cfg.URL).Msg("connected")
	return nil
}

// Authorize sends the token and waits for the reply. On success the balance
// stream is subscribed.
func (g *Gateway) Authorize(ctx context.Context, token string) error {
	wait := make(chan error, 1)
	g.mu.Lock()
	g.token = token
	g.authorized = false
	g.authWait = wait
	g.mu.Unlock()

	drop := func() {
		g.mu.Lock()
		if g.authWait == wait {
			g.authWait = nil
		}
		g.mu.Unlock()
	}

	if err := g.send(deriv.AuthorizeRequest{Authorize: token}); err != nil {
		drop()
		return fmt.Errorf("send authorize: %w", err)
	}

	timer := time.NewTimer(g.cfg.AuthTimeout)
	defer timer.Stop()
	select {
	case err := <-wait:
		if err != nil {
			return err
		}
	case <-timer.C:
		drop()
		return fmt.Errorf("%w: no reply within %s", ErrAuthorizationFailed, g.cfg.AuthTimeout)
	case <-ctx.Done():
		drop()
		return ctx.Err()
	case <-g.ctx.Done():
		return ErrClosed
	}

	if err := g.send(deriv.BalanceRequest{Balance: 1, Subscribe: 1}); err != nil {
		g.log.Warn().Err(err).Msg("balance subscribe failed")
	}
	g.log.Info().Float64("balance", g.Balance()).Str("currency", g.Currency()).Msg("authorized")
	return nil
}

// SubscribeTicks subscribes to symbol. Repeated calls for the same symbol are
// no-ops until the subscription is lost.
func (g *Gateway) SubscribeTicks(symbol string) error {
	g.mu.Lock()
	if g.subscribed && g.symbol == symbol {
		g.mu.Unlock()
		return nil
	}
	switching := g.subscribed
	g.symbol = symbol
	g.mu.Unlock()

	if switching {
		_ = g.send(deriv.ForgetAllRequest{ForgetAll: "ticks"})
	}
	if err := g.send(deriv.TicksRequest{Ticks: symbol, Subscribe: 1}); err != nil {
		return fmt.Errorf("subscribe ticks %s: %w", symbol, err)
	}

	g.mu.Lock()
	g.subscribed = true
	g.mu.Unlock()
	g.log.Info().Str("symbol", symbol).Msg("subscribed to ticks")
	return nil
}

// Resubscribe drops and re-requests the tick stream for the last symbol.
func (g *Gateway) Resubscribe() error {
	g.mu.Lock()
	symbol := g.symbol
	g.subscribed = false
	g.mu.Unlock()
	if symbol == "" {
		return nil
	}
	_ = g.send(deriv.ForgetAllRequest{ForgetAll: "ticks"})
	return g.SubscribeTicks(symbol)
}

// QuoteAndBuy requests a proposal; a valid proposal is bought immediately by
// the read loop. Failures after this call returns arrive as flagged updates.
func (g *Gateway) QuoteAndBuy(spec ContractSpec) error {
	g.mu.Lock()
	switch {
	case g.conn == nil || !g.authorized:
		g.mu.Unlock()
		return ErrNotConnected
	case g.quotePending || g.contractID != 0:
		g.mu.Unlock()
		return ErrContractPending
	}
	if spec.Currency == "" {
		spec.Currency = g.currency
	}
	g.trade++
	g.quotePending = true
	g.armTimerLocked(g.trade)
	g.mu.Unlock()

	if spec.Duration <= 0 {
		spec.Duration = 1
	}
	if spec.DurationUnit == "" {
		spec.DurationUnit = "t"
	}

	req := deriv.ProposalRequest{
		Proposal:     1,
		Amount:       spec.Amount,
		Basis:        "stake",
		ContractType: spec.ContractType,
		Currency:     spec.Currency,
		Duration:     spec.Duration,
		DurationUnit: spec.DurationUnit,
		Symbol:       spec.Symbol,
		Barrier:      spec.Barrier,
	}
	if err := g.send(req); err != nil {
		g.mu.Lock()
		g.quotePending = false
		g.stopTimerLocked()
		g.mu.Unlock()
		return fmt.Errorf("send proposal: %w", err)
	}

	g.log.Info().
		Str("contract_type", spec.ContractType).
		Float64("amount", spec.Amount).
		Str("symbol", spec.Symbol).
		Msg("proposal requested")
	return nil
}

// Sell asks the broker to close an open contract at price (0 = market).
func (g *Gateway) Sell(contractID int64, price float64) error {
	return g.send(deriv.SellRequest{Sell: contractID, Price: price})
}

// Abandon forgets the trade in flight without emitting an update, so the
// next QuoteAndBuy is accepted. A contract that was already bought is sold at
// market; its settlement still arrives on the contract stream.
func (g *Gateway) Abandon() {
	g.mu.Lock()
	id := g.contractID
	quoting := g.quotePending
	g.trade++
	g.quotePending = false
	g.contractID = 0
	g.stopTimerLocked()
	g.mu.Unlock()

	if id == 0 {
		if quoting {
			g.log.Warn().Msg("pending quote abandoned")
		}
		return
	}
	if err := g.Sell(id, 0); err != nil {
		g.log.Warn().Err(err).Int64("contract_id", id).Msg("sell of abandoned contract failed")
		return
	}
	g.log.Warn().Int64("contract_id", id).Msg("abandoned contract sent for sale")
}

func (g *Gateway) Balance() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance
}

func (g *Gateway) Currency() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currency
}

func (g *Gateway) Authorized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authorized && g.conn != nil
}

// Close stops reconnecting and tears down the connection. It does not wait
// for the read loop, which may be blocked inside the listener.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	conn := g.conn
	g.conn = nil
	g.authorized = false
	g.stopTimerLocked()
	g.mu.Unlock()

	g.cancel()
	g.log.Info().Msg("closed")
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (g *Gateway) send(v any) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(g.ctx, v)
}

func (g *Gateway) readLoop(conn *deriv.Conn) {
	for {
		resp, err := conn.Read()
		if err != nil {
			if errors.Is(err, deriv.ErrDecode) {
				g.log.Warn().Err(err).Msg("dropping undecodable message")
				continue
			}
			if g.isCurrent(conn) {
				if deriv.IsClosedError(err) {
					g.log.Warn().Err(err).Msg("connection closed by broker")
				} else {
					g.log.Error().Err(err).Msg("read failed")
				}
				go g.reconnect("read error")
			}
			return
		}

		g.mu.Lock()
		g.lastMessage = time.Now()
		g.mu.Unlock()
		g.dispatch(resp)
	}
}

func (g *Gateway) isCurrent(conn *deriv.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed && g.conn == conn
}

func (g *Gateway) dispatch(resp *deriv.Response) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Str("msg_type", resp.MsgType).Msg("message handler panicked")
		}
	}()

	g.log.Debug().Str("msg_type", resp.MsgType).Msg("inbound")
	switch resp.MsgType {
	case "authorize":
		g.onAuthorize(resp)
	case "balance":
		if resp.Error == nil && resp.Balance != nil {
			g.mu.Lock()
			g.balance = resp.Balance.Balance
			if resp.Balance.Currency != "" {
				g.currency = resp.Balance.Currency
			}
			g.mu.Unlock()
		}
	case "tick":
		if resp.Error != nil {
			g.log.Error().Str("error", resp.Error.Error()).Msg("tick subscription error")
			return
		}
		if resp.Tick != nil {
			g.emitTick(Tick{Symbol: resp.Tick.Symbol, Quote: resp.Tick.Quote, Epoch: resp.Tick.Epoch})
		}
	case "proposal":
		g.onProposal(resp)
	case "buy":
		g.onBuy(resp)
	case "proposal_open_contract":
		g.onOpenContract(resp)
	case "sell":
		if resp.Error != nil {
			g.log.Error().Str("error", resp.Error.Error()).Msg("sell rejected")
		} else if resp.Sell != nil {
			g.log.Info().Int64("contract_id", resp.Sell.ContractID).Float64("sold_for", resp.Sell.SoldFor).Msg("contract sold")
		}
	case "ping", "forget_all":
	default:
		if resp.Error != nil {
			g.log.Error().Str("msg_type", resp.MsgType).Str("error", resp.Error.Error()).Msg("broker error")
		}
	}
}

func (g *Gateway) onAuthorize(resp *deriv.Response) {
	var err error
	g.mu.Lock()
	wait := g.authWait
	g.authWait = nil
	switch {
	case resp.Error != nil:
		err = fmt.Errorf("%w: %s", ErrAuthorizationFailed, resp.Error.Message)
	case resp.Authorize != nil:
		g.authorized = true
		g.balance = resp.Authorize.Balance
		if resp.Authorize.Currency != "" {
			g.currency = resp.Authorize.Currency
		}
	default:
		err = fmt.Errorf("%w: empty reply", ErrAuthorizationFailed)
	}
	g.mu.Unlock()

	if wait != nil {
		wait <- err
	}
}

func (g *Gateway) onProposal(resp *deriv.Response) {
	ok := resp.Error == nil && resp.Proposal != nil

	g.mu.Lock()
	pending := g.quotePending
	if pending && !ok {
		g.quotePending = false
		g.stopTimerLocked()
	}
	g.mu.Unlock()

	if !pending {
		g.log.Debug().Msg("ignoring proposal with no quote pending")
		return
	}
	if !ok {
		msg := "empty proposal"
		if resp.Error != nil {
			msg = resp.Error.Error()
		}
		g.log.Warn().Str("error", msg).Msg("proposal rejected")
		g.emitContract(ContractUpdate{Status: StatusLost, Flag: FlagQuoteError})
		return
	}

	p := resp.Proposal
	if err := g.send(deriv.BuyRequest{Buy: p.ID, Price: p.AskPrice}); err != nil {
		g.mu.Lock()
		g.quotePending = false
		g.stopTimerLocked()
		g.mu.Unlock()
		g.log.Error().Err(err).Msg("buy send failed")
		g.emitContract(ContractUpdate{Status: StatusLost, Flag: FlagBuyError})
	}
}

func (g *Gateway) onBuy(resp *deriv.Response) {
	ok := resp.Error == nil && resp.Buy != nil

	g.mu.Lock()
	pending := g.quotePending
	g.quotePending = false
	if pending && ok {
		g.contractID = resp.Buy.ContractID
		g.armTimerLocked(g.trade)
	} else if pending {
		g.stopTimerLocked()
	}
	g.mu.Unlock()

	if !pending {
		if ok {
			g.log.Warn().Int64("contract_id", resp.Buy.ContractID).Msg("buy ack after the trade was released")
		}
		return
	}
	if !ok {
		msg := "empty buy reply"
		if resp.Error != nil {
			msg = resp.Error.Error()
		}
		g.log.Warn().Str("error", msg).Msg("buy rejected")
		g.emitContract(ContractUpdate{Status: StatusLost, Flag: FlagBuyError})
		return
	}

	id := resp.Buy.ContractID
	g.log.Info().Int64("contract_id", id).Float64("buy_price", resp.Buy.BuyPrice).Msg("contract bought")
	if err := g.send(deriv.OpenContractRequest{ProposalOpenContract: 1, ContractID: id, Subscribe: 1}); err != nil {
		g.log.Error().Err(err).Int64("contract_id", id).Msg("contract subscribe failed")
	}
}

func (g *Gateway) onOpenContract(resp *deriv.Response) {
	if resp.Error != nil {
		g.log.Error().Str("error", resp.Error.Error()).Msg("contract stream error")
		return
	}
	c := resp.ProposalOpenContract
	if c == nil {
		return
	}

	upd := ContractUpdate{ContractID: c.ContractID, Profit: c.Profit, ExitTick: c.ExitTick}
	switch c.Status {
	case deriv.StatusOpen:
		upd.Status = StatusOpen
	case deriv.StatusWon:
		upd.Status = StatusWon
	case deriv.StatusLost:
		upd.Status = StatusLost
	case deriv.StatusSold:
		upd.Status = StatusLost
		if c.Profit > 0 {
			upd.Status = StatusWon
		}
	default:
		return
	}

	if upd.Terminal() {
		g.mu.Lock()
		if g.contractID == c.ContractID {
			g.contractID = 0
			g.stopTimerLocked()
		}
		g.mu.Unlock()
		g.log.Info().
			Int64("contract_id", c.ContractID).
			Str("status", string(upd.Status)).
			Float64("profit", c.Profit).
			Float64("exit_tick", c.ExitTick).
			Msg("contract settled")
	}
	g.emitContract(upd)
}

// armTimerLocked restarts the trade timer. It is armed when the proposal is
// sent and again on the buy ack.
func (g *Gateway) armTimerLocked(trade uint64) {
	g.stopTimerLocked()
	g.timer = time.AfterFunc(g.cfg.ContractTimeout, func() { g.onContractTimeout(trade) })
}

func (g *Gateway) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// onContractTimeout releases a trade whose proposal, buy ack or settlement
// never arrived.
func (g *Gateway) onContractTimeout(trade uint64) {
	g.mu.Lock()
	if g.closed || g.trade != trade || (!g.quotePending && g.contractID == 0) {
		g.mu.Unlock()
		return
	}
	id := g.contractID
	stage := "settlement"
	if g.quotePending {
		stage = "quote"
	}
	g.quotePending = false
	g.contractID = 0
	g.timer = nil
	g.mu.Unlock()

	g.log.Warn().Int64("contract_id", id).Str("waiting_for", stage).Dur("after", g.cfg.ContractTimeout).Msg("broker silent, releasing trade")
	g.emitContract(ContractUpdate{ContractID: id, Status: StatusLost, Flag: FlagTimeout})
}

func (g *Gateway) keepAlive() {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
		}

		g.mu.Lock()
		conn := g.conn
		last := g.lastMessage
		busy := g.reconnecting
		g.mu.Unlock()
		if conn == nil || busy {
			continue
		}

		if time.Since(last) > g.cfg.StaleAfter {
			g.log.Warn().Dur("silent_for", time.Since(last)).Msg("connection stale")
			go g.reconnect("stale")
			continue
		}
		if err := conn.Send(g.ctx, deriv.PingRequest{Ping: 1}); err != nil {
			g.log.Debug().Err(err).Msg("ping failed")
		}
	}
}

// reconnect releases any pending work, then retries connect, authorize and
// resubscribe until it succeeds or the gateway is closed.
func (g *Gateway) reconnect(reason string) {
	g.mu.Lock()
	if g.closed || g.reconnecting {
		g.mu.Unlock()
		return
	}
	g.reconnecting = true
	old := g.conn
	g.conn = nil
	g.authorized = false
	g.subscribed = false
	released := g.quotePending || g.contractID != 0
	id := g.contractID
	g.quotePending = false
	g.contractID = 0
	g.trade++
	g.stopTimerLocked()
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.reconnecting = false
		g.mu.Unlock()
	}()

	if old != nil {
		_ = old.Close()
	}
	g.log.Warn().Str("reason", reason).Bool("released", released).Msg("reconnecting")
	if released {
		g.emitContract(ContractUpdate{ContractID: id, Status: StatusLost, Flag: FlagReconnect})
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-g.ctx.Done():
			return
		case <-time.After(g.cfg.ReconnectDelay):
		}
		if err := g.restore(); err != nil {
			g.log.Error().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}
		g.log.Info().Int("attempt", attempt).Msg("reconnected")
		return
	}
}

func (g *Gateway) restore() error {
	if err := g.Connect(g.ctx); err != nil {
		return err
	}
	g.mu.Lock()
	token, symbol := g.token, g.symbol
	g.mu.Unlock()

	if token != "" {
		if err := g.Authorize(g.ctx, token); err != nil {
			return err
		}
	}
	if symbol != "" {
		return g.SubscribeTicks(symbol)
	}
	return nil
}

func (g *Gateway) emitTick(t Tick) {
	g.mu.Lock()
	l := g.listener
	g.mu.Unlock()
	if l != nil {
		l.OnTick(t)
	}
}

func (g *Gateway) emitContract(u ContractUpdate) {
	g.mu.Lock()
	l := g.listener
	g.mu.Unlock()
	if l != nil {
		l.OnContract(u)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
