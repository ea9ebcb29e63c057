package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/moodring/internal/services/engine/gateway/discord"
	"github.com/louisbranch/moodring/internal/services/engine/gateway/memory"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
	enginepostgres "github.com/louisbranch/moodring/internal/services/engine/storage/postgres"
	enginesqlite "github.com/louisbranch/moodring/internal/services/engine/storage/sqlite"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Gateway kinds.
const (
	GatewayDiscord = "discord"
	GatewayMemory  = "memory"
)

const defaultEngineDB = "data/engine.db"

// Gateway is everything the engine and its tooling need from the chat
// platform.
type Gateway interface {
	PresenceSource
	RoleClient
	RoleCreator
}

var (
	_ Gateway = (*memory.Gateway)(nil)
	_ Gateway = (*discord.Gateway)(nil)
)

// StoreConfig selects and locates the engine store.
type StoreConfig struct {
	Driver      string
	Path        string
	PostgresDSN string
}

// OpenStore opens the configured store. SQLite paths get their parent
// directory created.
func OpenStore(ctx context.Context, cfg StoreConfig) (storage.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = defaultEngineDB
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create engine storage dir: %w", err)
			}
		}
		store, err := enginesqlite.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open engine sqlite store: %w", err)
		}
		return store, nil
	case DriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		store, err := enginepostgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open engine postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// GatewayConfig selects the chat platform adapter.
type GatewayConfig struct {
	Kind         string
	DiscordToken string
	Logf         func(string, ...any)
}

// OpenGateway connects the configured gateway. The returned close func is
// never nil.
func OpenGateway(ctx context.Context, cfg GatewayConfig) (Gateway, func() error, error) {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", GatewayDiscord:
		gw, err := discord.Open(ctx, discord.Config{Token: cfg.DiscordToken, Logf: logf})
		if err != nil {
			return nil, nil, fmt.Errorf("open discord gateway: %w", err)
		}
		return gw, gw.Close, nil
	case GatewayMemory:
		logf("using in-memory gateway: no roles will change on the chat platform")
		return memory.New(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown gateway %q", cfg.Kind)
	}
}
