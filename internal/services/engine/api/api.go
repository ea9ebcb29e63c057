// Package api serves the engine's admin HTTP surface: health, Prometheus
// metrics and custom trigger management.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/louisbranch/moodring/internal/platform/timeouts"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TriggerService manages custom triggers.
type TriggerService interface {
	Create(ctx context.Context, communityID, name string, stat domain.Stat, modifier float64, duration *time.Duration) (string, error)
	Get(ctx context.Context, triggerID string) (domain.Trigger, error)
	List(ctx context.Context, communityID string) ([]domain.Trigger, error)
	ListActive(ctx context.Context, communityID string) ([]domain.Trigger, error)
	Deactivate(ctx context.Context, triggerID string) (bool, error)
}

// MemberReader reads persisted member records and unlocks.
type MemberReader interface {
	GetMember(ctx context.Context, communityID, memberID string) (storage.MemberRecord, error)
	ListUnlocks(ctx context.Context, communityID, memberID string) ([]domain.Unlock, error)
}

// Config wires the admin API.
type Config struct {
	Triggers TriggerService
	Members  MemberReader
	Gatherer prometheus.Gatherer
	// JWTSecret enables bearer auth on /v1 when set.
	JWTSecret string
}

// New builds the fiber app.
func New(cfg Config) (*fiber.App, error) {
	if cfg.Triggers == nil {
		return nil, errors.New("trigger service is required")
	}
	if cfg.Members == nil {
		return nil, errors.New("member reader is required")
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	app := fiber.New(fiber.Config{
		AppName:               "moodring-engine",
		DisableStartupMessage: true,
		// Params and bodies are handed to the trigger service and stored.
		Immutable:             true,
		ReadTimeout:           timeouts.Request,
		WriteTimeout:          timeouts.Request,
		ErrorHandler:          errorHandler,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))

	h := &handlers{triggers: cfg.Triggers, members: cfg.Members}
	v1 := app.Group("/v1")
	if cfg.JWTSecret != "" {
		v1.Use(RequireAdmin(cfg.JWTSecret))
	}
	v1.Get("/communities/:community/triggers", h.listTriggers)
	v1.Post("/communities/:community/triggers", h.createTrigger)
	v1.Get("/communities/:community/members/:member", h.getMember)
	v1.Get("/triggers/:id", h.getTrigger)
	v1.Delete("/triggers/:id", h.deactivateTrigger)
	return app, nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal error"

	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
		message = fiberErr.Message
	case errors.Is(err, storage.ErrNotFound):
		code = fiber.StatusNotFound
		message = "not found"
	}
	return c.Status(code).JSON(fiber.Map{"error": message})
}
