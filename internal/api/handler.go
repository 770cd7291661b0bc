package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"binary-core/internal/engine"
	"binary-core/internal/events"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Options configures the HTTP surface. Auth is enforced only when APIKey is
// set.
type Options struct {
	JWTSecret   string
	APIKey      string
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
	Timeout     time.Duration
	Gatherer    prometheus.Gatherer
}

// Server wires HTTP endpoints around the session engine.
type Server struct {
	Router    *gin.Engine
	Svc       engine.Service
	Bus       *events.Bus
	JWTSecret string
	APIKey    string

	log      zerolog.Logger
	limiters *ipLimiters
}

func NewServer(svc engine.Service, bus *events.Bus, opts Options, logger zerolog.Logger) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger = logger.With().Str("component", "api").Logger()

	s := &Server{
		Router:    gin.New(),
		Svc:       svc,
		Bus:       bus,
		JWTSecret: opts.JWTSecret,
		APIKey:    opts.APIKey,
		log:       logger,
		limiters:  newIPLimiters(opts.RateLimit, opts.RateBurst),
	}

	// Middleware stack (order matters!)
	r := s.Router
	r.Use(gin.Recovery())                          // Panic recovery (first)
	r.Use(RequestIDMiddleware())                   // Request ID tracking
	r.Use(RequestLogger(logger))                   // Request logging (after ID is set)
	r.Use(RateLimitMiddleware(s.limiters, logger)) // Rate limiting
	r.Use(TimeoutMiddleware(opts.Timeout))         // Request timeout
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))  // CORS (last before routes)

	s.routes(opts.Gatherer)
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "X-Request-ID")
	cfg.ExposeHeaders = []string{"X-Request-ID"}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.Router.GET("/health", s.health)
	if gatherer != nil {
		s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)

		// Auth endpoints (no auth required)
		api.POST("/auth/token", s.issueToken)

		protected := api.Group("")
		if s.APIKey != "" {
			protected.Use(AuthMiddleware(s.JWTSecret))
		}
		{
			protected.GET("/config", s.getDefaults)
			protected.GET("/strategies", s.getStrategies)

			protected.POST("/sessions", s.startSession)
			protected.GET("/sessions", s.listSessions)
			protected.GET("/sessions/history", s.getHistory)
			protected.GET("/sessions/:id/stats", s.getStats)
			protected.GET("/sessions/:id/trades", s.getTrades)
			protected.POST("/sessions/:id/stop", s.stopSession)
		}
	}

	ws := s.Router.Group("")
	if s.APIKey != "" {
		ws.Use(queryTokenAuth(), AuthMiddleware(s.JWTSecret))
	}
	ws.GET("/ws", s.websocket)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Run serves addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.limiters.sweep(ctx, 5*time.Minute)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	}
}
