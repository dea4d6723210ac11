package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/savingscode/license-server/internal/config"
	"github.com/savingscode/license-server/internal/license"
)

// New creates a license store from configuration
func New(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (license.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "mongo":
		return NewMongoStore(ctx, cfg, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
	}
}
