package api

import (
	"errors"
	"net/http"

	"binary-core/internal/engine"
	"binary-core/internal/session"
	"binary-core/internal/strategy"

	"github.com/gin-gonic/gin"
)

type listTradesQuery struct {
	Limit int `form:"limit"`
}

func (q *listTradesQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

type listHistoryQuery struct {
	Limit int `form:"limit"`
}

func (q *listHistoryQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"success":   false,
		"errorCode": code,
		"error":     msg,
	})
}

// respondEngineError maps engine and session errors onto API codes.
func respondEngineError(c *gin.Context, err error) {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success":    false,
			"errorCode":  "VALIDATION_FAILED",
			"error":      err.Error(),
			"violations": verr.Violations,
		})
	case errors.Is(err, strategy.ErrUnknownStrategy):
		respondError(c, http.StatusBadRequest, "UNKNOWN_STRATEGY", err.Error())
	case errors.Is(err, engine.ErrSessionNotFound):
		respondError(c, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
	case errors.Is(err, engine.ErrSlotBusy):
		respondError(c, http.StatusConflict, "SLOT_BUSY", err.Error())
	case errors.Is(err, engine.ErrStartFailed):
		respondError(c, http.StatusBadGateway, "START_FAILED", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// startSession creates and starts a session from the defaults plus overrides.
func (s *Server) startSession(c *gin.Context) {
	var req engine.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	info, err := s.Svc.Start(c.Request.Context(), req)
	if err != nil {
		s.log.Warn().Err(err).Str("strategy", req.StrategyID).Msg("session start rejected")
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"session": info,
	})
}

func (s *Server) stopSession(c *gin.Context) {
	st, err := s.Svc.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   st,
	})
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"sessions": s.Svc.List(c.Request.Context()),
	})
}

func (s *Server) getStats(c *gin.Context) {
	st, err := s.Svc.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   st,
	})
}

// getTrades returns the newest settled trades, oldest first.
func (s *Server) getTrades(c *gin.Context) {
	var q listTradesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid query parameters")
		return
	}
	q.normalize()

	trades, err := s.Svc.Trades(c.Request.Context(), c.Param("id"), q.Limit)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	if trades == nil {
		trades = []session.TradeRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"trades":  trades,
	})
}

// getHistory lists journaled sessions, newest first.
func (s *Server) getHistory(c *gin.Context) {
	var q listHistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid query parameters")
		return
	}
	q.normalize()

	rows, err := s.Svc.History(c.Request.Context(), q.Limit)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"sessions": rows,
	})
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"strategies": s.Svc.Strategies(c.Request.Context()),
	})
}

// getDefaults exposes the session defaults a start request is layered over.
func (s *Server) getDefaults(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"config":  s.Svc.Defaults(),
	})
}

// getSystemStatus exposes runtime status for the dashboard.
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  s.Svc.GetSystemStatus(c.Request.Context()),
	})
}
