// Package moodctl implements the operator command line for the engine store,
// presets and community roles.
package moodctl

import (
	"context"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/moodring/internal/platform/cmd"
	engineapp "github.com/louisbranch/moodring/internal/services/engine/app"
	"github.com/louisbranch/moodring/internal/services/engine/export"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
	"github.com/spf13/cobra"
)

// Build metadata, set with -ldflags at release time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Config holds moodctl configuration. Store, gateway and preset settings share
// the engine's environment so both processes see the same data.
type Config struct {
	DBDriver       string `env:"MOODRING_ENGINE_DB_DRIVER" envDefault:"sqlite"`
	DBPath         string `env:"MOODRING_ENGINE_DB_PATH" envDefault:"data/engine.db"`
	PostgresDSN    string `env:"MOODRING_ENGINE_POSTGRES_DSN"`
	PresetsPath    string `env:"MOODRING_ENGINE_PRESETS_PATH"`
	Gateway        string `env:"MOODRING_ENGINE_GATEWAY" envDefault:"discord"`
	DiscordToken   string `env:"MOODRING_ENGINE_DISCORD_TOKEN"`
	AdminJWTSecret string `env:"MOODRING_ENGINE_ADMIN_JWT_SECRET"`
	EngineAddr     string `env:"MOODRING_MOODCTL_ENGINE_ADDR" envDefault:"localhost:8091"`

	ExportBucket          string `env:"MOODRING_EXPORT_BUCKET"`
	ExportPrefix          string `env:"MOODRING_EXPORT_PREFIX" envDefault:"exports"`
	ExportRegion          string `env:"MOODRING_EXPORT_REGION" envDefault:"us-east-1"`
	ExportEndpoint        string `env:"MOODRING_EXPORT_ENDPOINT"`
	ExportAccessKeyID     string `env:"MOODRING_EXPORT_ACCESS_KEY_ID"`
	ExportSecretAccessKey string `env:"MOODRING_EXPORT_SECRET_ACCESS_KEY"`
	ExportPathStyle       bool   `env:"MOODRING_EXPORT_PATH_STYLE"`
}

// ParseConfig loads moodctl configuration from dotenv files and the environment.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) storeConfig() engineapp.StoreConfig {
	return engineapp.StoreConfig{Driver: c.DBDriver, Path: c.DBPath, PostgresDSN: c.PostgresDSN}
}

func (c Config) gatewayConfig() engineapp.GatewayConfig {
	return engineapp.GatewayConfig{Kind: c.Gateway, DiscordToken: c.DiscordToken}
}

func (c Config) s3Config() export.S3Config {
	return export.S3Config{
		Bucket:          c.ExportBucket,
		Region:          c.ExportRegion,
		Endpoint:        c.ExportEndpoint,
		AccessKeyID:     c.ExportAccessKeyID,
		SecretAccessKey: c.ExportSecretAccessKey,
		PathStyle:       c.ExportPathStyle,
	}
}

// cli carries configuration and the collaborators commands open on demand.
type cli struct {
	cfg       Config
	now       func() time.Time
	openStore func(context.Context, engineapp.StoreConfig) (storage.Store, error)
	openS3    func(context.Context, export.S3Config) (export.ObjectPutter, error)
}

func newCLI(cfg Config) *cli {
	return &cli{
		cfg:       cfg,
		now:       time.Now,
		openStore: engineapp.OpenStore,
		openS3: func(ctx context.Context, s3cfg export.S3Config) (export.ObjectPutter, error) {
			return export.NewS3Client(ctx, s3cfg)
		},
	}
}

// withStore opens the configured store for the duration of fn.
func (c *cli) withStore(ctx context.Context, fn func(storage.Store) error) (err error) {
	store, err := c.openStore(ctx, c.cfg.storeConfig())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close store: %w", closeErr)
		}
	}()
	return fn(store)
}

// NewRootCommand builds the moodctl command tree for cfg.
func NewRootCommand(cfg Config) *cobra.Command {
	return newCLI(cfg).rootCommand()
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           entrypoint.ServiceMoodctl,
		Short:         "Operate the moodring engine",
		Long:          `moodctl manages custom triggers, imports preset roles, inspects member state and audit files, exports snapshots and issues admin API tokens.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		c.triggerCommand(),
		c.rolesCommand(),
		c.stateCommand(),
		c.exportCommand(),
		c.auditCommand(),
		c.tokenCommand(),
		c.healthCommand(),
		versionCommand(),
	)
	return root
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "moodctl version %s\n", Version)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  Build date: %s\n", BuildDate)
		},
	}
}
