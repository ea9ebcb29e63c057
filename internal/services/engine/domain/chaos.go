package domain

import "time"

// ChaosDue reports whether enough time has passed since the last chaos event
// for a new roll.
func ChaosDue(state MemberState, interval time.Duration, now time.Time) bool {
	if state.LastChaosEvent.IsZero() {
		return true
	}
	return now.Sub(state.LastChaosEvent) >= interval
}

// GrantChaos assigns a chaos role to the member. A temporary rule with a
// positive duration overrides fallback.
func GrantChaos(state *MemberState, rule RoleRule, fallback time.Duration, now time.Time) {
	duration := fallback
	if rule.Temporary && rule.Duration > 0 {
		duration = rule.Duration
	}
	state.ChaosRole = rule.RoleID
	state.ChaosExpires = now.Add(duration)
	state.LastChaosEvent = now
}

// ExpireChaos clears an expired chaos role and reports whether it did.
func ExpireChaos(state *MemberState, now time.Time) bool {
	if state.ChaosRole == "" {
		return false
	}
	if now.Before(state.ChaosExpires) {
		return false
	}
	state.ChaosRole = ""
	state.ChaosExpires = time.Time{}
	return true
}
