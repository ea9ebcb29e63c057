package domain

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// RoleRule maps a stat band, or a time period, to one external role.
type RoleRule struct {
	Category Category
	RoleID   string
	Name     string
	Priority int
	// Min and Max bound the band inclusively for stat categories.
	Min float64
	Max float64
	// Period selects the time-of-day band for CategoryTime rules.
	Period Period
	// Temporary chaos rules with a positive Duration override the default
	// chaos role lifetime.
	Temporary bool
	Duration  time.Duration
}

// Matches reports whether the rule claims value (stat categories) or period
// (time category). Chaos rules never match thresholds.
func (r RoleRule) Matches(value float64, period Period) bool {
	switch r.Category {
	case CategoryMood, CategoryEnergy, CategoryActivity:
		return value >= r.Min && value <= r.Max
	case CategoryTime:
		return r.Period == period
	case CategoryChaos:
		return false
	default:
		return false
	}
}

// Features are per-community enable flags.
type Features struct {
	Stats        bool
	Chaos        bool
	Achievements bool
	Roles        bool
}

// AllFeatures enables every engine stage.
func AllFeatures() Features {
	return Features{Stats: true, Chaos: true, Achievements: true, Roles: true}
}

// Ruleset is the immutable rule configuration of one community for a cycle.
type Ruleset struct {
	Preset      string
	Features    Features
	Rules       map[Category][]RoleRule
	RewardRoles map[string]string
}

// NewRuleset groups rules by category and orders each group by descending
// priority, keeping declaration order for ties.
func NewRuleset(preset string, features Features, rules []RoleRule, rewards map[string]string) Ruleset {
	grouped := make(map[Category][]RoleRule, len(Categories))
	for _, rule := range rules {
		rule.RoleID = strings.TrimSpace(rule.RoleID)
		grouped[rule.Category] = append(grouped[rule.Category], rule)
	}
	for category := range grouped {
		slices.SortStableFunc(grouped[category], func(a, b RoleRule) int {
			return cmp.Compare(b.Priority, a.Priority)
		})
	}
	copied := make(map[string]string, len(rewards))
	for achievementID, roleID := range rewards {
		copied[strings.TrimSpace(achievementID)] = strings.TrimSpace(roleID)
	}
	return Ruleset{Preset: preset, Features: features, Rules: grouped, RewardRoles: copied}
}

// Validate checks band bounds, periods and that every role belongs to at most
// one managed category and is never also a reward role.
func (r Ruleset) Validate() error {
	owner := make(map[string]Category)
	var errs []error
	for _, category := range Categories {
		for _, rule := range r.Rules[category] {
			if rule.Category != category {
				errs = append(errs, fmt.Errorf("rule %q grouped under %s has category %s", rule.RoleID, category, rule.Category))
			}
			if rule.RoleID == "" {
				errs = append(errs, fmt.Errorf("%s rule %q: role id is required", category, rule.Name))
				continue
			}
			if prev, ok := owner[rule.RoleID]; ok && prev != category {
				errs = append(errs, fmt.Errorf("role %s is claimed by %s and %s", rule.RoleID, prev, category))
			}
			owner[rule.RoleID] = category
			switch category {
			case CategoryMood, CategoryEnergy, CategoryActivity:
				if rule.Min < MinStat || rule.Max > MaxStat || rule.Min > rule.Max {
					errs = append(errs, fmt.Errorf("%s rule %s: band [%g, %g] is outside [0, 100] or inverted", category, rule.RoleID, rule.Min, rule.Max))
				}
			case CategoryTime:
				if rule.Period < PeriodNight || rule.Period > PeriodEvening {
					errs = append(errs, fmt.Errorf("time rule %s: period is required", rule.RoleID))
				}
			case CategoryChaos:
				if rule.Duration < 0 {
					errs = append(errs, fmt.Errorf("chaos rule %s: duration must not be negative", rule.RoleID))
				}
			}
		}
	}
	for category := range r.Rules {
		if !category.Valid() {
			errs = append(errs, fmt.Errorf("unknown category %s", category))
		}
	}
	for achievementID, roleID := range r.RewardRoles {
		if roleID == "" {
			errs = append(errs, fmt.Errorf("reward for %s: role id is required", achievementID))
			continue
		}
		if category, ok := owner[roleID]; ok {
			errs = append(errs, fmt.Errorf("reward role %s for %s is already managed by %s", roleID, achievementID, category))
		}
	}
	return errors.Join(errs...)
}

// Select returns the highest-priority rule of category matching value/period.
func (r Ruleset) Select(category Category, value float64, period Period) (RoleRule, bool) {
	for _, rule := range r.Rules[category] {
		if rule.Matches(value, period) {
			return rule, true
		}
	}
	return RoleRule{}, false
}

// ChaosPool returns the chaos rules in priority order.
func (r Ruleset) ChaosPool() []RoleRule {
	return r.Rules[CategoryChaos]
}

// ChaosRule looks up the chaos rule for a role.
func (r Ruleset) ChaosRule(roleID string) (RoleRule, bool) {
	for _, rule := range r.Rules[CategoryChaos] {
		if rule.RoleID == roleID {
			return rule, true
		}
	}
	return RoleRule{}, false
}

// Managed returns the role IDs claimed by a category.
func (r Ruleset) Managed(category Category) map[string]struct{} {
	out := make(map[string]struct{}, len(r.Rules[category]))
	for _, rule := range r.Rules[category] {
		out[rule.RoleID] = struct{}{}
	}
	return out
}

// RewardRole returns the role granted for an achievement, if any.
func (r Ruleset) RewardRole(achievementID string) (string, bool) {
	roleID, ok := r.RewardRoles[achievementID]
	return roleID, ok && roleID != ""
}

// AllRules returns every rule in category order.
func (r Ruleset) AllRules() []RoleRule {
	var out []RoleRule
	for _, category := range Categories {
		out = append(out, r.Rules[category]...)
	}
	return out
}
