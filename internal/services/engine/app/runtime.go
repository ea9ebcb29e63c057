package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/moodring/internal/platform/grpc"
	"github.com/louisbranch/moodring/internal/platform/timeouts"
	"github.com/louisbranch/moodring/internal/services/engine/api"
	"github.com/louisbranch/moodring/internal/services/engine/audit"
	"github.com/louisbranch/moodring/internal/services/engine/presets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// RuntimeConfig controls engine startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port           int
	HTTPAddr       string
	Store          StoreConfig
	Gateway        GatewayConfig
	PresetsPath    string
	AuditDir       string
	AdminJWTSecret string
	TickInterval   time.Duration
	SweepEvery     int
	Workers        int
	RoleCooldown   time.Duration
	Chaos          ChaosConfig
	Timezone       string
}

const (
	defaultEnginePort = 8091
	defaultHTTPAddr   = ":8092"
)

// HealthService is the gRPC health service reported while the engine runs.
const HealthService = "engine.scheduler"

func (c RuntimeConfig) normalized() RuntimeConfig {
	if c.Port <= 0 {
		c.Port = defaultEnginePort
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = "UTC"
	}
	if c.RoleCooldown <= 0 {
		c.RoleCooldown = defaultRoleCooldown
	}
	return c
}

// Run starts engine dependencies, the admin API and the tick loop, and blocks
// until ctx is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	presetFile, err := presets.Load(cfg.PresetsPath)
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}
	rulesets, err := presets.NewProvider(presetFile)
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close engine store: %v", closeErr)
		}
	}()

	gateway, closeGateway, err := OpenGateway(ctx, cfg.Gateway)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeGateway(); closeErr != nil {
			log.Printf("close gateway: %v", closeErr)
		}
	}()

	var recorder OperationRecorder
	if dir := strings.TrimSpace(cfg.AuditDir); dir != "" {
		writer, err := audit.NewWriter(dir)
		if err != nil {
			return fmt.Errorf("open audit trail: %w", err)
		}
		defer func() {
			if closeErr := writer.Close(); closeErr != nil {
				log.Printf("close audit trail: %v", closeErr)
			}
		}()
		recorder = writer
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := NewMetrics(registry)

	chaos, err := NewChaosEngine(cfg.Chaos, nil)
	if err != nil {
		return fmt.Errorf("create chaos engine: %w", err)
	}
	achievements, err := NewAchievementEngine(store, nil)
	if err != nil {
		return fmt.Errorf("create achievement engine: %w", err)
	}
	triggers := NewTriggerEngine(store)
	scheduler, err := NewScheduler(SchedulerDeps{
		Store:        store,
		Presence:     gateway,
		Rulesets:     rulesets,
		Triggers:     triggers,
		Chaos:        chaos,
		Achievements: achievements,
		Reconciler:   NewReconciler(gateway, recorder, metrics, cfg.RoleCooldown, log.Printf),
		Metrics:      metrics,
		Logf:         log.Printf,
	}, SchedulerConfig{
		Interval:   cfg.TickInterval,
		SweepEvery: cfg.SweepEvery,
		Workers:    cfg.Workers,
		Location:   location,
	})
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	adminAPI, err := api.New(api.Config{
		Triggers:  triggers,
		Members:   store,
		Gatherer:  registry,
		JWTSecret: cfg.AdminJWTSecret,
	})
	if err != nil {
		return fmt.Errorf("create admin api: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on engine port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer, healthServer := platformgrpc.NewHealthServer(HealthService)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- adminAPI.Listen(cfg.HTTPAddr)
	}()
	defer func() {
		if err := adminAPI.ShutdownWithTimeout(timeouts.Shutdown); err != nil {
			log.Printf("shutdown admin api: %v", err)
		}
	}()
	go func() {
		select {
		case err := <-httpErr:
			if err != nil {
				log.Printf("admin api stopped: %v", err)
				cancel()
			}
		case <-runCtx.Done():
		}
	}()

	log.Printf("engine server listening at %v", listener.Addr())
	log.Printf("engine admin api listening at %s", cfg.HTTPAddr)
	log.Printf("engine ticking every %s with presets %v", scheduler.Config().Interval, presetFile.PresetNames())
	return scheduler.Run(runCtx)
}
