package domain

import (
	"fmt"
	"slices"
	"time"
)

// Desired is the role set the engine wants a member to hold: at most one role
// per managed category plus add-only reward roles.
type Desired struct {
	ByCategory map[Category]string
	Rewards    []string
}

// Roles returns the sorted, de-duplicated union of category and reward roles.
func (d Desired) Roles() []string {
	out := make([]string, 0, len(d.ByCategory)+len(d.Rewards))
	for _, roleID := range d.ByCategory {
		if roleID != "" {
			out = append(out, roleID)
		}
	}
	for _, roleID := range d.Rewards {
		if roleID != "" {
			out = append(out, roleID)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// SameAs reports whether the desired roles, rewards included, equal a
// previously applied set. A newly earned reward makes the sets differ.
func (d Desired) SameAs(applied []string) bool {
	sorted := slices.Clone(applied)
	slices.Sort(sorted)
	return slices.Equal(d.Roles(), slices.Compact(sorted))
}

// DesiredRoles selects the winning rule of every threshold category, the
// member's live chaos role and the reward roles of every unlocked
// achievement.
func DesiredRoles(state MemberState, rules Ruleset, period Period, now time.Time, rewards []string) Desired {
	desired := Desired{ByCategory: make(map[Category]string, len(Categories))}
	for _, category := range Categories {
		var (
			rule RoleRule
			ok   bool
		)
		switch category {
		case CategoryMood:
			rule, ok = rules.Select(category, state.Mood, period)
		case CategoryEnergy:
			rule, ok = rules.Select(category, state.Energy, period)
		case CategoryActivity:
			rule, ok = rules.Select(category, state.Activity, period)
		case CategoryTime:
			rule, ok = rules.Select(category, 0, period)
		case CategoryChaos:
			if state.HasChaosRole(now) {
				rule, ok = rules.ChaosRule(state.ChaosRole)
			}
		}
		if ok {
			desired.ByCategory[category] = rule.RoleID
		}
	}
	for _, roleID := range rewards {
		if roleID != "" && !slices.Contains(desired.Rewards, roleID) {
			desired.Rewards = append(desired.Rewards, roleID)
		}
	}
	return desired
}

// OperationKind is the direction of a role change.
type OperationKind uint8

const (
	OperationAdd OperationKind = iota + 1
	OperationRemove
)

func (k OperationKind) String() string {
	switch k {
	case OperationAdd:
		return "add"
	case OperationRemove:
		return "remove"
	default:
		return fmt.Sprintf("operation(%d)", uint8(k))
	}
}

// Operation is one independent external role change.
type Operation struct {
	Kind     OperationKind
	RoleID   string
	Category Category
	Reward   bool
}

// Scope names the rule group an operation belongs to, for logs and metrics.
func (o Operation) Scope() string {
	if o.Reward {
		return "reward"
	}
	return o.Category.String()
}

// PlanReconciliation diffs desired roles against held roles. It removes held
// roles of a managed category that are not desired, adds missing desired
// roles, adds missing rewards, and never touches any other role.
func PlanReconciliation(desired Desired, held []string, rules Ruleset) []Operation {
	heldSet := make(map[string]struct{}, len(held))
	for _, roleID := range held {
		heldSet[roleID] = struct{}{}
	}
	planned := make(map[string]struct{})

	var ops []Operation
	for _, category := range Categories {
		want := desired.ByCategory[category]
		managed := rules.Managed(category)

		var removals []string
		for roleID := range heldSet {
			if _, ok := managed[roleID]; ok && roleID != want {
				removals = append(removals, roleID)
			}
		}
		slices.Sort(removals)
		for _, roleID := range removals {
			ops = append(ops, Operation{Kind: OperationRemove, RoleID: roleID, Category: category})
		}

		if want == "" {
			continue
		}
		if _, ok := heldSet[want]; ok {
			continue
		}
		if _, ok := planned[want]; ok {
			continue
		}
		planned[want] = struct{}{}
		ops = append(ops, Operation{Kind: OperationAdd, RoleID: want, Category: category})
	}

	rewards := slices.Clone(desired.Rewards)
	slices.Sort(rewards)
	for _, roleID := range slices.Compact(rewards) {
		if roleID == "" {
			continue
		}
		if _, ok := heldSet[roleID]; ok {
			continue
		}
		if _, ok := planned[roleID]; ok {
			continue
		}
		planned[roleID] = struct{}{}
		ops = append(ops, Operation{Kind: OperationAdd, RoleID: roleID, Reward: true})
	}
	return ops
}

// OperationResult is the outcome of one executed role operation.
type OperationResult struct {
	CommunityID string
	MemberID    string
	Operation   Operation
	At          time.Time
	Err         error
}

// OK reports whether the operation succeeded.
func (r OperationResult) OK() bool {
	return r.Err == nil
}
