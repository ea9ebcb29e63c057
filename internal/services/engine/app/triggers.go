package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/louisbranch/moodring/internal/platform/id"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
)

// TriggerEngine manages administrator-defined stat modifiers.
type TriggerEngine struct {
	store storage.TriggerStore
	now   func() time.Time
	newID func() (string, error)
}

// NewTriggerEngine builds a trigger engine on store.
func NewTriggerEngine(store storage.TriggerStore) *TriggerEngine {
	return &TriggerEngine{store: store, now: time.Now, newID: id.NewID}
}

// Create stores a new active trigger and returns its id. A nil duration never
// expires.
func (e *TriggerEngine) Create(ctx context.Context, communityID, name string, stat domain.Stat, modifier float64, duration *time.Duration) (string, error) {
	communityID = strings.TrimSpace(communityID)
	name = strings.TrimSpace(name)
	if communityID == "" {
		return "", fmt.Errorf("community id is required")
	}
	if name == "" {
		return "", fmt.Errorf("trigger name is required")
	}
	if !stat.Valid() {
		return "", fmt.Errorf("trigger stat is required")
	}
	if math.IsNaN(modifier) || math.IsInf(modifier, 0) {
		return "", fmt.Errorf("trigger modifier must be finite")
	}
	if duration != nil && *duration <= 0 {
		return "", fmt.Errorf("trigger duration must be positive")
	}

	triggerID, err := e.newID()
	if err != nil {
		return "", fmt.Errorf("create trigger: %w", err)
	}
	now := e.now().UTC()
	trigger := domain.Trigger{
		ID:          triggerID,
		CommunityID: communityID,
		Name:        name,
		Stat:        stat,
		Modifier:    modifier,
		CreatedAt:   now,
		Active:      true,
	}
	if duration != nil {
		expiresAt := now.Add(*duration)
		trigger.ExpiresAt = &expiresAt
	}
	if err := e.store.PutTrigger(ctx, trigger); err != nil {
		return "", fmt.Errorf("create trigger: %w", err)
	}
	return triggerID, nil
}

// ListActive returns the triggers applied to a community right now. Expired
// triggers are excluded even before a sweep deactivates them.
func (e *TriggerEngine) ListActive(ctx context.Context, communityID string) ([]domain.Trigger, error) {
	return e.ActiveAt(ctx, communityID, e.now())
}

// ActiveAt returns the triggers active at now.
func (e *TriggerEngine) ActiveAt(ctx context.Context, communityID string, now time.Time) ([]domain.Trigger, error) {
	return e.store.ListActiveTriggers(ctx, communityID, now)
}

// List returns every trigger of a community, newest first.
func (e *TriggerEngine) List(ctx context.Context, communityID string) ([]domain.Trigger, error) {
	return e.store.ListTriggers(ctx, communityID)
}

// Get returns one trigger.
func (e *TriggerEngine) Get(ctx context.Context, triggerID string) (domain.Trigger, error) {
	return e.store.GetTrigger(ctx, triggerID)
}

// Deactivate turns a trigger off and reports whether anything changed.
func (e *TriggerEngine) Deactivate(ctx context.Context, triggerID string) (bool, error) {
	return e.store.DeactivateTrigger(ctx, triggerID)
}

// SweepExpired deactivates every trigger whose deadline has passed.
func (e *TriggerEngine) SweepExpired(ctx context.Context) (int64, error) {
	return e.store.DeactivateExpiredTriggers(ctx, e.now())
}
