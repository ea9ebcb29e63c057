package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/moodring/internal/services/engine/domain"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
)

// Unlocked is an achievement earned during the current evaluation.
type Unlocked struct {
	Achievement domain.Achievement
	// RewardRole is empty when the community maps no role to the achievement.
	RewardRole string
}

// AchievementEngine evaluates the catalog and records unlocks.
type AchievementEngine struct {
	store   storage.UnlockStore
	catalog domain.Catalog
	now     func() time.Time
}

// NewAchievementEngine builds an engine over catalog; an empty catalog uses
// domain.DefaultCatalog.
func NewAchievementEngine(store storage.UnlockStore, catalog domain.Catalog) (*AchievementEngine, error) {
	if len(catalog) == 0 {
		catalog = domain.DefaultCatalog
	}
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("validate achievement catalog: %w", err)
	}
	return &AchievementEngine{store: store, catalog: catalog, now: time.Now}, nil
}

// Catalog returns the evaluated achievements.
func (e *AchievementEngine) Catalog() domain.Catalog {
	return e.catalog
}

// Evaluate unlocks every satisfied achievement and returns the newly
// unlocked ones with their reward role.
func (e *AchievementEngine) Evaluate(ctx context.Context, state domain.MemberState, progress domain.MemberProgress, rules domain.Ruleset) ([]Unlocked, error) {
	var unlocked []Unlocked
	for _, achievement := range e.catalog.Satisfied(progress) {
		fresh, err := e.Unlock(ctx, state.CommunityID, state.MemberID, achievement.ID)
		if err != nil {
			return unlocked, err
		}
		if !fresh {
			continue
		}
		reward, _ := rules.RewardRole(achievement.ID)
		unlocked = append(unlocked, Unlocked{Achievement: achievement, RewardRole: reward})
	}
	return unlocked, nil
}

// RewardRoles maps every stored unlock of a member through the community's
// reward table. Rewards whose grant failed on an earlier tick come back here
// and are retried by reconciliation.
func (e *AchievementEngine) RewardRoles(ctx context.Context, communityID, memberID string, rules domain.Ruleset) ([]string, error) {
	if len(rules.RewardRoles) == 0 {
		return nil, nil
	}
	unlocks, err := e.store.ListUnlocks(ctx, communityID, memberID)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	var roles []string
	for _, unlock := range unlocks {
		if roleID, ok := rules.RewardRole(unlock.AchievementID); ok {
			roles = append(roles, roleID)
		}
	}
	return roles, nil
}

// Unlock records an achievement, reporting false without writing when the
// member already holds it.
func (e *AchievementEngine) Unlock(ctx context.Context, communityID, memberID, achievementID string) (bool, error) {
	achievementID = strings.TrimSpace(achievementID)
	if _, ok := e.catalog.Find(achievementID); !ok {
		return false, fmt.Errorf("unknown achievement %q", achievementID)
	}
	inserted, err := e.store.InsertUnlock(ctx, domain.Unlock{
		CommunityID:   communityID,
		MemberID:      memberID,
		AchievementID: achievementID,
		UnlockedAt:    e.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("unlock %s: %w", achievementID, err)
	}
	return inserted, nil
}

// List returns a member's unlocks.
func (e *AchievementEngine) List(ctx context.Context, communityID, memberID string) ([]domain.Unlock, error) {
	return e.store.ListUnlocks(ctx, communityID, memberID)
}
