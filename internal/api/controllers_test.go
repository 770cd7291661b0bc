package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"binary-core/internal/engine"
	"binary-core/internal/events"
	"binary-core/internal/session"
	"binary-core/internal/strategy"
	"binary-core/pkg/db"
)

type fakeService struct {
	startErr   error
	lastReq    engine.StartRequest
	tradeLimit int
}

func (f *fakeService) Start(_ context.Context, req engine.StartRequest) (*engine.SessionInfo, error) {
	f.lastReq = req
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &engine.SessionInfo{ID: "s-1", Slot: "default", StrategyID: req.StrategyID, State: session.StateRunning}, nil
}

func (f *fakeService) Stop(_ context.Context, id string) (session.Stats, error) {
	if id != "s-1" {
		return session.Stats{}, fmt.Errorf("%w: %s", engine.ErrSessionNotFound, id)
	}
	return session.Stats{SessionID: id, State: session.StateStopped, StopReason: session.ReasonManual}, nil
}

func (f *fakeService) Stats(_ context.Context, id string) (session.Stats, error) {
	if id != "s-1" {
		return session.Stats{}, fmt.Errorf("%w: %s", engine.ErrSessionNotFound, id)
	}
	return session.Stats{SessionID: id, State: session.StateRunning}, nil
}

func (f *fakeService) Trades(_ context.Context, id string, limit int) ([]session.TradeRecord, error) {
	f.tradeLimit = limit
	return nil, nil
}

func (f *fakeService) List(context.Context) []engine.SessionInfo {
	return []engine.SessionInfo{{ID: "s-1"}}
}

func (f *fakeService) History(context.Context, int) ([]db.SessionRow, error) {
	return []db.SessionRow{}, nil
}

func (f *fakeService) Strategies(context.Context) []strategy.Info {
	return []strategy.Info{{ID: "alpha_bot_1", Enabled: true}}
}

func (f *fakeService) Defaults() session.Config { return session.DefaultConfig() }

func (f *fakeService) GetSystemStatus(context.Context) *engine.SystemStatus {
	return &engine.SystemStatus{Version: "test"}
}

func newTestServer(t *testing.T, svc engine.Service, opts Options) (*Server, *events.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bus := events.NewBus()
	if opts.JWTSecret == "" {
		opts.JWTSecret = "test-secret"
	}
	return NewServer(svc, bus, opts, zerolog.Nop()), bus
}

func doJSONRequest(t *testing.T, h http.Handler, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code
}

type errorBody struct {
	Success    bool                `json:"success"`
	ErrorCode  string              `json:"errorCode"`
	Error      string              `json:"error"`
	Violations []session.Violation `json:"violations"`
}

func TestStartSessionMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &session.ValidationError{Violations: []session.Violation{{Field: "base_stake", Message: "must be >= 0.35"}}}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"unknown strategy", fmt.Errorf("%w: nope", strategy.ErrUnknownStrategy), http.StatusBadRequest, "UNKNOWN_STRATEGY"},
		{"slot busy", fmt.Errorf("%w: default", engine.ErrSlotBusy), http.StatusConflict, "SLOT_BUSY"},
		{"start failed", fmt.Errorf("%w: %w", engine.ErrStartFailed, errors.New("auth")), http.StatusBadGateway, "START_FAILED"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &fakeService{startErr: tc.err}, Options{})
			var body errorBody
			status := doJSONRequest(t, srv.Router, http.MethodPost, "/api/sessions", "", map[string]any{"strategyId": "alpha_bot_1"}, &body)
			if status != tc.status {
				t.Fatalf("status=%d, expected %d", status, tc.status)
			}
			if body.Success || body.ErrorCode != tc.code {
				t.Fatalf("body=%+v, expected code %s", body, tc.code)
			}
			if tc.code == "VALIDATION_FAILED" && len(body.Violations) != 1 {
				t.Fatalf("violations=%v, expected 1", body.Violations)
			}
		})
	}
}

func TestStartSessionPassesOverrides(t *testing.T) {
	svc := &fakeService{}
	srv, _ := newTestServer(t, svc, Options{})

	payload := map[string]any{
		"strategyId":        "alpha_nexus",
		"baseStake":         1.5,
		"martingaleEnabled": false,
		"stopLossPolicy":    "consecutiveLosses",
	}
	var body struct {
		Success bool               `json:"success"`
		Session engine.SessionInfo `json:"session"`
	}
	status := doJSONRequest(t, srv.Router, http.MethodPost, "/api/sessions", "", payload, &body)
	if status != http.StatusCreated || !body.Success {
		t.Fatalf("status=%d success=%v, expected 201 true", status, body.Success)
	}
	if body.Session.ID != "s-1" {
		t.Fatalf("session id=%q, expected s-1", body.Session.ID)
	}
	req := svc.lastReq
	if req.StrategyID != "alpha_nexus" || req.BaseStake == nil || *req.BaseStake != 1.5 {
		t.Fatalf("request=%+v, expected strategy and stake override", req)
	}
	if req.MartingaleEnabled == nil || *req.MartingaleEnabled {
		t.Fatalf("martingaleEnabled=%v, expected explicit false", req.MartingaleEnabled)
	}
	if req.ProfitTarget != nil {
		t.Fatalf("profitTarget=%v, expected nil", *req.ProfitTarget)
	}
}

func TestStartSessionRejectsBadPayload(t *testing.T) {
	srv, _ := newTestServer(t, &fakeService{}, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, expected %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rec.Body.String(), "INVALID_REQUEST") {
		t.Fatalf("body=%s, expected INVALID_REQUEST", rec.Body.String())
	}
}

func TestSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &fakeService{}, Options{})
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/sessions/missing/stats"},
		{http.MethodPost, "/api/sessions/missing/stop"},
	} {
		var body errorBody
		status := doJSONRequest(t, srv.Router, route.method, route.path, "", nil, &body)
		if status != http.StatusNotFound || body.ErrorCode != "SESSION_NOT_FOUND" {
			t.Fatalf("%s %s: status=%d code=%s, expected 404 SESSION_NOT_FOUND", route.method, route.path, status, body.ErrorCode)
		}
	}
}

func TestTradesLimitIsClamped(t *testing.T) {
	cases := []struct {
		query string
		want  int
	}{
		{"", 100},
		{"?limit=5", 5},
		{"?limit=0", 100},
		{"?limit=9999", 500},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			svc := &fakeService{}
			srv, _ := newTestServer(t, svc, Options{})
			var body struct {
				Trades []session.TradeRecord `json:"trades"`
			}
			status := doJSONRequest(t, srv.Router, http.MethodGet, "/api/sessions/s-1/trades"+tc.query, "", nil, &body)
			if status != http.StatusOK {
				t.Fatalf("status=%d, expected 200", status)
			}
			if svc.tradeLimit != tc.want {
				t.Fatalf("limit=%d, expected %d", svc.tradeLimit, tc.want)
			}
			if body.Trades == nil {
				t.Fatalf("trades=nil, expected empty list")
			}
		})
	}
}

func TestDefaultsHideToken(t *testing.T) {
	srv, _ := newTestServer(t, &fakeService{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, expected 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"token"`) {
		t.Fatalf("body=%s, expected no token field", rec.Body.String())
	}
}

func TestAuthRequiredWhenAPIKeySet(t *testing.T) {
	srv, _ := newTestServer(t, &fakeService{}, Options{APIKey: "k3y"})

	var body errorBody
	if status := doJSONRequest(t, srv.Router, http.MethodGet, "/api/sessions", "", nil, &body); status != http.StatusUnauthorized {
		t.Fatalf("status=%d, expected 401 without token", status)
	}
	if body.ErrorCode != "UNAUTHORIZED" {
		t.Fatalf("errorCode=%s, expected UNAUTHORIZED", body.ErrorCode)
	}

	if status := doJSONRequest(t, srv.Router, http.MethodPost, "/api/auth/token", "", map[string]string{"apiKey": "wrong"}, nil); status != http.StatusUnauthorized {
		t.Fatalf("status=%d, expected 401 for wrong key", status)
	}

	var tok struct {
		Token    string `json:"token"`
		ClientID string `json:"client_id"`
	}
	if status := doJSONRequest(t, srv.Router, http.MethodPost, "/api/auth/token", "", map[string]string{"apiKey": "k3y"}, &tok); status != http.StatusOK {
		t.Fatalf("status=%d, expected 200 for right key", status)
	}
	if tok.Token == "" || tok.ClientID != "dashboard" {
		t.Fatalf("token response=%+v, expected token for dashboard", tok)
	}

	if status := doJSONRequest(t, srv.Router, http.MethodGet, "/api/sessions", tok.Token, nil, nil); status != http.StatusOK {
		t.Fatalf("status=%d, expected 200 with token", status)
	}
	if status := doJSONRequest(t, srv.Router, http.MethodGet, "/api/sessions", "garbage", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("status=%d, expected 401 with bad token", status)
	}
}

func TestTokenSignedWithOtherSecretIsRejected(t *testing.T) {
	tok, err := generateToken("c", "other-secret", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("generateToken: %v", err)
	}
	if _, err := parseToken(tok, "test-secret"); err == nil {
		t.Fatalf("parseToken succeeded, expected signature error")
	}
	expired, _ := generateToken("c", "test-secret", time.Now().Add(-time.Minute))
	if _, err := parseToken(expired, "test-secret"); err == nil {
		t.Fatalf("parseToken succeeded, expected expiry error")
	}
	id, err := parseToken(tok, "other-secret")
	if err != nil || id != "c" {
		t.Fatalf("parseToken=%q,%v, expected c,nil", id, err)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, &fakeService{}, Options{RateLimit: 0.001, RateBurst: 2})
	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		srv.Router.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes=%v, expected [200 200 429]", codes)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv, _ := newTestServer(t, &fakeService{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Fatalf("X-Request-ID=%q, expected abc", got)
	}

	rec = httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("X-Request-ID empty, expected a generated id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "binary_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv, _ := newTestServer(t, &fakeService{}, Options{Gatherer: reg})
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, expected 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "binary_test_total 1") {
		t.Fatalf("body missing counter: %s", rec.Body.String())
	}
}

func TestWebsocketStreamsSessionEvents(t *testing.T) {
	srv, bus := newTestServer(t, &fakeService{}, Options{})
	httpServer := httptest.NewServer(srv.Router)
	defer httpServer.Close()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws?session=s-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered after the upgrade; keep publishing
	// until the first envelope arrives.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bus.Publish(events.EventTradeSettled, "other", session.TradeRecord{Result: session.ResultLoss})
				bus.Publish(events.EventTradeSettled, "s-1", session.TradeRecord{Result: session.ResultWin})
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env struct {
		Type      events.Event        `json:"type"`
		SessionID string              `json:"session_id"`
		Data      session.TradeRecord `json:"data"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != events.EventTradeSettled || env.SessionID != "s-1" || env.Data.Result != session.ResultWin {
		t.Fatalf("envelope=%+v, expected trade.settled for s-1", env)
	}
}
