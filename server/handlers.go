package server

import (
	"database/sql"

	"github.com/onnwee/playlist-pulse/backend/analysis"
	"github.com/onnwee/playlist-pulse/backend/config"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	DB  *sql.DB
	Cfg *config.Config
	// Preview serves /preview lookups that miss the cache. It is the
	// configured primary backend; the worker owns fallback policy, not the
	// HTTP layer.
	Preview analysis.Backend
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(db *sql.DB, cfg *config.Config, preview analysis.Backend) *Handlers {
	return &Handlers{DB: db, Cfg: cfg, Preview: preview}
}
