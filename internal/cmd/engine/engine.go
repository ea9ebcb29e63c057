// Package engine parses engine command flags and launches the engine runtime.
package engine

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/moodring/internal/platform/cmd"
	engineapp "github.com/louisbranch/moodring/internal/services/engine/app"
)

// Config holds engine command configuration.
type Config struct {
	Port           int           `env:"MOODRING_ENGINE_PORT" envDefault:"8091"`
	HTTPAddr       string        `env:"MOODRING_ENGINE_HTTP_ADDR" envDefault:":8092"`
	DBDriver       string        `env:"MOODRING_ENGINE_DB_DRIVER" envDefault:"sqlite"`
	DBPath         string        `env:"MOODRING_ENGINE_DB_PATH" envDefault:"data/engine.db"`
	PostgresDSN    string        `env:"MOODRING_ENGINE_POSTGRES_DSN"`
	TickInterval   time.Duration `env:"MOODRING_ENGINE_TICK_INTERVAL" envDefault:"60s"`
	SweepEvery     int           `env:"MOODRING_ENGINE_SWEEP_EVERY" envDefault:"10"`
	Workers        int           `env:"MOODRING_ENGINE_WORKERS" envDefault:"4"`
	RoleCooldown   time.Duration `env:"MOODRING_ENGINE_ROLE_COOLDOWN" envDefault:"30s"`
	ChaosInterval  time.Duration `env:"MOODRING_ENGINE_CHAOS_INTERVAL" envDefault:"6h"`
	ChaosChance    float64       `env:"MOODRING_ENGINE_CHAOS_CHANCE" envDefault:"0.05"`
	ChaosDuration  time.Duration `env:"MOODRING_ENGINE_CHAOS_DURATION" envDefault:"1h"`
	Timezone       string        `env:"MOODRING_ENGINE_TIMEZONE" envDefault:"UTC"`
	PresetsPath    string        `env:"MOODRING_ENGINE_PRESETS_PATH"`
	Gateway        string        `env:"MOODRING_ENGINE_GATEWAY" envDefault:"discord"`
	DiscordToken   string        `env:"MOODRING_ENGINE_DISCORD_TOKEN"`
	AuditDir       string        `env:"MOODRING_ENGINE_AUDIT_DIR"`
	AdminJWTSecret string        `env:"MOODRING_ENGINE_ADMIN_JWT_SECRET"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The engine health gRPC server port")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The admin HTTP API address")
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "Storage driver: sqlite or postgres")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The engine SQLite database path")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "The engine Postgres connection string")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "Engine tick interval")
	fs.IntVar(&cfg.SweepEvery, "sweep-every", cfg.SweepEvery, "Sweep expired triggers every N cycles")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent member updates per community")
	fs.DurationVar(&cfg.RoleCooldown, "role-cooldown", cfg.RoleCooldown, "Minimum time between unchanged role syncs")
	fs.DurationVar(&cfg.ChaosInterval, "chaos-interval", cfg.ChaosInterval, "Minimum time between chaos rolls per member")
	fs.Float64Var(&cfg.ChaosChance, "chaos-chance", cfg.ChaosChance, "Probability a due chaos roll grants a role")
	fs.DurationVar(&cfg.ChaosDuration, "chaos-duration", cfg.ChaosDuration, "Default chaos role lifetime")
	fs.StringVar(&cfg.Timezone, "timezone", cfg.Timezone, "IANA timezone for time-of-day periods")
	fs.StringVar(&cfg.PresetsPath, "presets", cfg.PresetsPath, "Presets YAML file")
	fs.StringVar(&cfg.Gateway, "gateway", cfg.Gateway, "Community gateway: discord or memory")
	fs.StringVar(&cfg.AuditDir, "audit-dir", cfg.AuditDir, "Directory for the role operation audit trail")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RuntimeConfig maps command configuration onto the engine runtime.
func (c Config) RuntimeConfig() engineapp.RuntimeConfig {
	return engineapp.RuntimeConfig{
		Port:     c.Port,
		HTTPAddr: c.HTTPAddr,
		Store: engineapp.StoreConfig{
			Driver:      c.DBDriver,
			Path:        c.DBPath,
			PostgresDSN: c.PostgresDSN,
		},
		Gateway: engineapp.GatewayConfig{
			Kind:         c.Gateway,
			DiscordToken: c.DiscordToken,
		},
		PresetsPath:    c.PresetsPath,
		AuditDir:       c.AuditDir,
		AdminJWTSecret: c.AdminJWTSecret,
		TickInterval:   c.TickInterval,
		SweepEvery:     c.SweepEvery,
		Workers:        c.Workers,
		RoleCooldown:   c.RoleCooldown,
		Chaos: engineapp.ChaosConfig{
			Interval: c.ChaosInterval,
			Chance:   c.ChaosChance,
			Duration: c.ChaosDuration,
		},
		Timezone: c.Timezone,
	}
}

// Run starts the engine runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngine, func(context.Context) error {
		return engineapp.Run(ctx, cfg.RuntimeConfig())
	})
}
