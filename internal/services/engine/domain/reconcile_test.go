package domain

import (
	"slices"
	"testing"
	"time"
)

// applyOperations simulates a role client that honours every operation.
func applyOperations(held []string, ops []Operation) []string {
	set := make(map[string]struct{}, len(held))
	for _, roleID := range held {
		set[roleID] = struct{}{}
	}
	for _, op := range ops {
		switch op.Kind {
		case OperationAdd:
			set[op.RoleID] = struct{}{}
		case OperationRemove:
			delete(set, op.RoleID)
		}
	}
	out := make([]string, 0, len(set))
	for roleID := range set {
		out = append(out, roleID)
	}
	slices.Sort(out)
	return out
}

func TestDesiredRolesPicksOneRolePerCategory(t *testing.T) {
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	state := NewMemberState("c", "m")
	state.Mood = 80
	state.Energy = 95
	state.Activity = 10
	state.ChaosRole = "chaos-clown"
	state.ChaosExpires = now.Add(time.Minute)

	desired := DesiredRoles(state, testRuleset(), PeriodForHour(now.Hour()), now, []string{"reward-voice", "reward-voice"})

	want := map[Category]string{
		CategoryMood:   "mood-high",
		CategoryEnergy: "energy-full",
		CategoryTime:   "time-evening",
		CategoryChaos:  "chaos-clown",
	}
	for category, roleID := range want {
		if got := desired.ByCategory[category]; got != roleID {
			t.Fatalf("%s = %q, want %q", category, got, roleID)
		}
	}
	if _, ok := desired.ByCategory[CategoryActivity]; ok {
		t.Fatal("activity should have no desired role below every band")
	}
	if !slices.Equal(desired.Rewards, []string{"reward-voice"}) {
		t.Fatalf("rewards = %v", desired.Rewards)
	}
	wantRoles := []string{"chaos-clown", "energy-full", "mood-high", "reward-voice", "time-evening"}
	if got := desired.Roles(); !slices.Equal(got, wantRoles) {
		t.Fatalf("roles = %v, want %v", got, wantRoles)
	}
}

func TestDesiredRolesDropsExpiredOrUnknownChaos(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rules := testRuleset()

	expired := NewMemberState("c", "m")
	expired.ChaosRole = "chaos-clown"
	expired.ChaosExpires = now
	if got := DesiredRoles(expired, rules, PeriodDay, now, nil).ByCategory[CategoryChaos]; got != "" {
		t.Fatalf("expired chaos desired = %q", got)
	}

	removed := NewMemberState("c", "m")
	removed.ChaosRole = "chaos-retired"
	removed.ChaosExpires = now.Add(time.Hour)
	if got := DesiredRoles(removed, rules, PeriodDay, now, nil).ByCategory[CategoryChaos]; got != "" {
		t.Fatalf("chaos role outside the pool desired = %q", got)
	}
}

func TestPlanReconciliationConvergesFromAnyStart(t *testing.T) {
	rules := testRuleset()
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	state := NewMemberState("c", "m")
	state.Mood = 15
	state.Energy = 40
	state.Activity = 75
	desired := DesiredRoles(state, rules, PeriodForHour(now.Hour()), now, []string{"reward-voice"})

	starts := [][]string{
		nil,
		{"everyone", "moderator"},
		{"mood-mid", "mood-high", "energy-full", "time-day", "time-evening"},
		{"chaos-clown", "chaos-ghost", "activity-busy"},
		{"mood-low", "energy-any", "activity-busy", "time-night", "reward-voice"},
		{"mood-low", "mood-mid", "mood-high", "energy-any", "energy-full", "activity-busy",
			"time-night", "time-day", "time-evening", "chaos-clown", "chaos-ghost", "moderator"},
	}
	for _, start := range starts {
		held := applyOperations(start, PlanReconciliation(desired, start, rules))

		for _, roleID := range desired.Roles() {
			if !slices.Contains(held, roleID) {
				t.Fatalf("start %v: desired role %s missing from %v", start, roleID, held)
			}
		}
		for _, category := range Categories {
			for roleID := range rules.Managed(category) {
				if roleID != desired.ByCategory[category] && slices.Contains(held, roleID) {
					t.Fatalf("start %v: stale %s role %s kept", start, category, roleID)
				}
			}
		}
		for _, roleID := range []string{"everyone", "moderator"} {
			if slices.Contains(start, roleID) != slices.Contains(held, roleID) {
				t.Fatalf("start %v: unmanaged role %s was touched", start, roleID)
			}
		}
		if again := PlanReconciliation(desired, held, rules); len(again) != 0 {
			t.Fatalf("start %v: second plan = %+v, want no operations", start, again)
		}
	}
}

func TestPlanReconciliationNeverRemovesRewards(t *testing.T) {
	rules := testRuleset()
	desired := Desired{ByCategory: map[Category]string{}}
	ops := PlanReconciliation(desired, []string{"reward-voice", "mood-low"}, rules)
	if len(ops) != 1 || ops[0].Kind != OperationRemove || ops[0].RoleID != "mood-low" {
		t.Fatalf("ops = %+v, want single removal of mood-low", ops)
	}
}

func TestPlanReconciliationOrdersRemovalsBeforeAddsPerCategory(t *testing.T) {
	rules := testRuleset()
	desired := Desired{
		ByCategory: map[Category]string{CategoryMood: "mood-mid", CategoryTime: "time-day"},
		Rewards:    []string{"reward-voice"},
	}
	ops := PlanReconciliation(desired, []string{"time-night", "mood-high", "mood-low"}, rules)

	want := []Operation{
		{Kind: OperationRemove, RoleID: "mood-high", Category: CategoryMood},
		{Kind: OperationRemove, RoleID: "mood-low", Category: CategoryMood},
		{Kind: OperationAdd, RoleID: "mood-mid", Category: CategoryMood},
		{Kind: OperationRemove, RoleID: "time-night", Category: CategoryTime},
		{Kind: OperationAdd, RoleID: "time-day", Category: CategoryTime},
		{Kind: OperationAdd, RoleID: "reward-voice", Reward: true},
	}
	if !slices.Equal(ops, want) {
		t.Fatalf("ops = %+v\nwant %+v", ops, want)
	}
	if got := ops[5].Scope(); got != "reward" {
		t.Fatalf("scope = %q, want reward", got)
	}
	if got := ops[0].Scope(); got != "mood" {
		t.Fatalf("scope = %q, want mood", got)
	}
}

func TestDesiredSameAsIgnoresOrderAndDuplicates(t *testing.T) {
	desired := Desired{ByCategory: map[Category]string{CategoryMood: "a", CategoryTime: "b"}}
	if !desired.SameAs([]string{"b", "a", "a"}) {
		t.Fatal("expected equal role sets")
	}
	if desired.SameAs([]string{"a"}) {
		t.Fatal("expected different role sets")
	}
	if got := desired.Roles(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("roles = %v", got)
	}
}

func TestDesiredSameAsIncludesRewards(t *testing.T) {
	desired := Desired{ByCategory: map[Category]string{CategoryMood: "a"}, Rewards: []string{"c"}}
	if desired.SameAs([]string{"a"}) {
		t.Fatal("unapplied reward must force reconciliation")
	}
	if !desired.SameAs([]string{"c", "a"}) {
		t.Fatal("applied reward must not force reconciliation")
	}
}
