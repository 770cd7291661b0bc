// Package engine owns the running sessions and is the only thing the API
// layer talks to.
package engine

import (
	"context"

	"binary-core/internal/session"
	"binary-core/internal/strategy"
	"binary-core/pkg/db"
)

// Service defines the interface for session operations.
// The API layer should only interact with the engine through this interface.
type Service interface {
	// Session commands
	Start(ctx context.Context, req StartRequest) (*SessionInfo, error)
	Stop(ctx context.Context, id string) (session.Stats, error)

	// Session queries
	Stats(ctx context.Context, id string) (session.Stats, error)
	Trades(ctx context.Context, id string, limit int) ([]session.TradeRecord, error)
	List(ctx context.Context) []SessionInfo
	History(ctx context.Context, limit int) ([]db.SessionRow, error)

	// Catalog
	Strategies(ctx context.Context) []strategy.Info
	Defaults() session.Config

	// System
	GetSystemStatus(ctx context.Context) *SystemStatus
}
