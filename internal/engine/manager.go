package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"binary-core/internal/events"
	"binary-core/internal/monitor"
	"binary-core/internal/persistence"
	"binary-core/internal/risk"
	"binary-core/internal/session"
	"binary-core/internal/strategy"
	"binary-core/pkg/db"
)

// maxFinished bounds how many stopped sessions stay queryable in memory.
const maxFinished = 50

// BrokerFactory builds the broker a session trades through.
type BrokerFactory func(cfg session.Config, info strategy.Info) session.Broker

// Config holds the collaborators of a Manager. Journal, Metrics, Bus and
// Queries are optional.
type Config struct {
	Registry *strategy.Registry
	Defaults session.Config
	Brokers  BrokerFactory
	Tokens   func(accountMode string) string
	Timing   session.Timing
	Logger   zerolog.Logger
	Version  string

	Journal *persistence.Journal
	Metrics *monitor.Metrics
	Bus     *events.Bus
	Queries *db.Queries
}

var _ Service = (*Manager)(nil)

// Manager implements Service. It owns every session by id and allows one
// running session per slot.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*session.Session
	slots    map[string]string // slot -> session id, including reservations
}

// NewManager creates a manager.
func NewManager(cfg Config) *Manager {
	if cfg.Tokens == nil {
		cfg.Tokens = func(string) string { return "" }
	}
	return &Manager{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "engine").Logger(),
		sessions: make(map[string]*session.Session),
		slots:    make(map[string]string),
	}
}

// --- Session Commands ---

func (m *Manager) Start(ctx context.Context, req StartRequest) (*SessionInfo, error) {
	cfg, err := m.buildConfig(req)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(m.cfg.Registry.Modes()); err != nil {
		return nil, err
	}
	provider, err := m.cfg.Registry.New(cfg.StrategyID, cfg.TradingMode)
	if err != nil {
		return nil, err
	}
	info, _ := m.cfg.Registry.Info(cfg.StrategyID)

	id := uuid.NewString()
	if err := m.reserve(cfg.Slot, id); err != nil {
		return nil, err
	}

	s := session.New(id, cfg, session.Options{
		Broker:    m.cfg.Brokers(cfg, info),
		Provider:  provider,
		Observers: m.observers(),
		Logger:    m.cfg.Logger,
		Timing:    m.cfg.Timing,
	})
	if err := s.Start(ctx); err != nil {
		m.release(cfg.Slot, id)
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.pruneLocked()
	m.mu.Unlock()

	st := s.Stats()
	if m.cfg.Journal != nil {
		m.cfg.Journal.SessionStarted(id, cfg, st)
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SessionStarted(id)
	}
	if m.cfg.Bus != nil {
		m.cfg.Bus.Publish(events.EventSessionStarted, id, st)
	}
	go m.reap(s)

	m.log.Info().
		Str("session", id).
		Str("slot", cfg.Slot).
		Str("strategy", cfg.StrategyID).
		Str("symbol", cfg.Symbol).
		Str("account", cfg.AccountMode).
		Msg("session started")

	out := infoOf(s, st)
	return &out, nil
}

func (m *Manager) Stop(ctx context.Context, id string) (session.Stats, error) {
	s, err := m.get(id)
	if err != nil {
		return session.Stats{}, err
	}
	st := s.Stop()
	m.release(s.Config().Slot, id)
	return st, nil
}

// Shutdown stops every running session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	running := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.State() != session.StateStopped {
			running = append(running, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range running {
		if ctx.Err() != nil {
			return
		}
		st := s.Stop()
		m.release(s.Config().Slot, s.ID())
		m.log.Info().Str("session", s.ID()).Float64("net", st.Ledger.NetBalance).Msg("session stopped on shutdown")
	}
}

// --- Session Queries ---

func (m *Manager) Stats(ctx context.Context, id string) (session.Stats, error) {
	s, err := m.get(id)
	if err != nil {
		return session.Stats{}, err
	}
	return s.Stats(), nil
}

func (m *Manager) Trades(ctx context.Context, id string, limit int) ([]session.TradeRecord, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return s.Trades(limit), nil
}

func (m *Manager) List(ctx context.Context) []SessionInfo {
	m.mu.RLock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, infoOf(s, s.Stats()))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (m *Manager) History(ctx context.Context, limit int) ([]db.SessionRow, error) {
	if m.cfg.Queries == nil {
		return []db.SessionRow{}, nil
	}
	return m.cfg.Queries.ListSessions(ctx, limit)
}

// --- Catalog ---

func (m *Manager) Strategies(ctx context.Context) []strategy.Info {
	return m.cfg.Registry.List()
}

func (m *Manager) Defaults() session.Config {
	cfg := m.cfg.Defaults
	cfg.Token = ""
	return cfg
}

// --- System ---

func (m *Manager) GetSystemStatus(ctx context.Context) *SystemStatus {
	active := 0
	m.mu.RLock()
	for _, s := range m.sessions {
		if s.State() == session.StateRunning {
			active++
		}
	}
	m.mu.RUnlock()

	return &SystemStatus{
		Version:        m.cfg.Version,
		AccountMode:    m.cfg.Defaults.AccountMode,
		ActiveSessions: active,
		Strategies:     len(m.cfg.Registry.List()),
		ServerTime:     time.Now(),
	}
}

// --- internals ---

// buildConfig layers req over the defaults. An explicit martingale field
// wins over the risk-mode preset.
func (m *Manager) buildConfig(req StartRequest) (session.Config, error) {
	cfg := m.cfg.Defaults

	setString(&cfg.Slot, req.Slot)
	setString(&cfg.StrategyID, req.StrategyID)
	setString(&cfg.Symbol, req.Symbol)
	setString(&cfg.AccountMode, strings.ToLower(req.AccountMode))
	setString(&cfg.TradingMode, req.TradingMode)
	setString(&cfg.RiskMode, req.RiskMode)

	if req.RiskMode != "" {
		rm, err := m.cfg.Registry.Modes().RiskMode(req.RiskMode)
		if err != nil {
			return cfg, &session.ValidationError{Violations: []session.Violation{
				{Field: "risk_mode", Message: fmt.Sprintf("unknown mode %q", req.RiskMode)},
			}}
		}
		cfg.ApplyRiskMode(rm)
	}

	setFloat(&cfg.BaseStake, req.BaseStake)
	setFloat(&cfg.ProfitTarget, req.ProfitTarget)
	setFloat(&cfg.LossLimit, req.LossLimit)
	setFloat(&cfg.PayoutRate, req.PayoutRate)
	setFloat(&cfg.MinBalance, req.MinBalance)
	setFloat(&cfg.MartingaleMultiplier, req.MartingaleMultiplier)
	setInt(&cfg.MaxMartingaleSteps, req.MaxMartingaleSteps)
	setInt(&cfg.MaxConsecutiveLosses, req.MaxConsecutiveLosses)
	setInt(&cfg.MaxTradesPerDay, req.MaxTradesPerDay)
	if req.MartingaleEnabled != nil {
		cfg.MartingaleEnabled = *req.MartingaleEnabled
	}
	if req.StopLossPolicy != "" {
		cfg.StopPolicy = normalizePolicy(req.StopLossPolicy)
	}

	cfg.Token = req.Token
	if cfg.Token == "" {
		cfg.Token = m.cfg.Tokens(cfg.AccountMode)
	}
	return cfg, nil
}

func normalizePolicy(p string) risk.StopPolicy {
	switch strings.ToLower(strings.ReplaceAll(p, "_", "")) {
	case "consecutivelosses":
		return risk.StopPolicyConsecutiveLosses
	case "value":
		return risk.StopPolicyValue
	}
	return risk.StopPolicy(p)
}

func (m *Manager) observers() []session.Observer {
	var obs []session.Observer
	if m.cfg.Journal != nil {
		obs = append(obs, m.cfg.Journal)
	}
	if m.cfg.Metrics != nil {
		obs = append(obs, m.cfg.Metrics)
	}
	if m.cfg.Bus != nil {
		obs = append(obs, events.Publisher{Bus: m.cfg.Bus})
	}
	return obs
}

func (m *Manager) get(id string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (m *Manager) reserve(slot, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if holder, ok := m.slots[slot]; ok {
		return fmt.Errorf("%w: %s (session %s)", ErrSlotBusy, slot, holder)
	}
	m.slots[slot] = id
	return nil
}

// release frees slot if id still holds it.
func (m *Manager) release(slot, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots[slot] == id {
		delete(m.slots, slot)
	}
}

// reap frees the slot once the session stops on its own.
func (m *Manager) reap(s *session.Session) {
	<-s.Done()
	m.release(s.Config().Slot, s.ID())
	st := s.Stats()
	m.log.Info().
		Str("session", s.ID()).
		Str("reason", st.StopReason).
		Float64("net", st.Ledger.NetBalance).
		Msg("session finished")
}

// pruneLocked drops the oldest stopped sessions beyond maxFinished.
func (m *Manager) pruneLocked() {
	type done struct {
		id string
		at time.Time
	}
	var stopped []done
	for id, s := range m.sessions {
		if st := s.Stats(); st.State == session.StateStopped {
			stopped = append(stopped, done{id, st.StoppedAt})
		}
	}
	if len(stopped) <= maxFinished {
		return
	}
	sort.Slice(stopped, func(i, j int) bool { return stopped[i].at.Before(stopped[j].at) })
	for _, d := range stopped[:len(stopped)-maxFinished] {
		delete(m.sessions, d.id)
	}
}

func infoOf(s *session.Session, st session.Stats) SessionInfo {
	cfg := s.Config()
	return SessionInfo{
		ID:          s.ID(),
		Slot:        cfg.Slot,
		StrategyID:  cfg.StrategyID,
		Symbol:      cfg.Symbol,
		AccountMode: cfg.AccountMode,
		State:       st.State,
		StopReason:  st.StopReason,
		StartedAt:   st.StartedAt,
	}
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
