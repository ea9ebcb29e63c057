package app

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/louisbranch/moodring/internal/platform/random"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

const (
	defaultChaosInterval = 6 * time.Hour
	defaultChaosChance   = 0.05
	defaultChaosDuration = time.Hour
)

// ChaosConfig controls how often chaos roles are rolled and how long they last.
type ChaosConfig struct {
	Interval time.Duration
	Chance   float64
	Duration time.Duration
}

func (c ChaosConfig) normalized() ChaosConfig {
	if c.Interval <= 0 {
		c.Interval = defaultChaosInterval
	}
	if c.Chance < 0 {
		c.Chance = 0
	}
	if c.Chance > 1 {
		c.Chance = 1
	}
	if c.Duration <= 0 {
		c.Duration = defaultChaosDuration
	}
	return c
}

// ChaosEngine grants and expires temporary random roles.
type ChaosEngine struct {
	cfg ChaosConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewChaosEngine builds a chaos engine. A nil source is replaced with a
// crypto-seeded PCG.
func NewChaosEngine(cfg ChaosConfig, source rand.Source) (*ChaosEngine, error) {
	if source == nil {
		seeded, err := random.NewSource()
		if err != nil {
			return nil, fmt.Errorf("seed chaos engine: %w", err)
		}
		source = seeded
	}
	return &ChaosEngine{cfg: cfg.normalized(), rng: rand.New(source)}, nil
}

// Config returns the normalized configuration.
func (e *ChaosEngine) Config() ChaosConfig {
	return e.cfg
}

// Expire clears an expired chaos role and reports whether it did.
func (e *ChaosEngine) Expire(state *domain.MemberState, now time.Time) bool {
	return domain.ExpireChaos(state, now)
}

// Roll may grant a chaos role from pool. It returns the granted rule.
//
// Nothing happens while a chaos role is live or the interval since the last
// event has not passed. An empty pool never consumes the interval.
func (e *ChaosEngine) Roll(state *domain.MemberState, pool []domain.RoleRule, now time.Time) (domain.RoleRule, bool) {
	if state.HasChaosRole(now) || !domain.ChaosDue(*state, e.cfg.Interval, now) {
		return domain.RoleRule{}, false
	}
	if len(pool) == 0 {
		return domain.RoleRule{}, false
	}

	e.mu.Lock()
	hit := e.rng.Float64() < e.cfg.Chance
	var pick int
	if hit {
		pick = e.rng.IntN(len(pool))
	}
	e.mu.Unlock()

	if !hit {
		return domain.RoleRule{}, false
	}
	rule := pool[pick]
	domain.GrantChaos(state, rule, e.cfg.Duration, now)
	return rule, true
}
