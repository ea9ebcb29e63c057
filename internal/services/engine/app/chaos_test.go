package app

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

func fixedSource() rand.Source {
	return rand.NewPCG(7, 11)
}

func chaosPool() []domain.RoleRule {
	return []domain.RoleRule{
		{Category: domain.CategoryChaos, RoleID: "r-gremlin", Temporary: true, Duration: 30 * time.Minute},
		{Category: domain.CategoryChaos, RoleID: "r-star"},
	}
}

func TestChaosConfig_Normalized(t *testing.T) {
	tests := []struct {
		name string
		in   ChaosConfig
		want ChaosConfig
	}{
		{name: "defaults", in: ChaosConfig{}, want: ChaosConfig{Interval: 6 * time.Hour, Chance: 0, Duration: time.Hour}},
		{name: "clamp high", in: ChaosConfig{Chance: 3}, want: ChaosConfig{Interval: 6 * time.Hour, Chance: 1, Duration: time.Hour}},
		{name: "clamp low", in: ChaosConfig{Chance: -1, Interval: time.Minute, Duration: time.Second}, want: ChaosConfig{Interval: time.Minute, Chance: 0, Duration: time.Second}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.normalized(); got != tc.want {
				t.Fatalf("normalized = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestNewChaosEngine_NilSourceSeeds(t *testing.T) {
	engine, err := NewChaosEngine(ChaosConfig{Chance: 1}, nil)
	if err != nil {
		t.Fatalf("new chaos engine: %v", err)
	}
	state := domain.NewMemberState("g1", "m1")
	if _, ok := engine.Roll(&state, chaosPool(), testNow); !ok {
		t.Fatal("expected grant with chance 1")
	}
}

func TestChaosEngine_ChanceZeroNeverGrants(t *testing.T) {
	engine, err := NewChaosEngine(ChaosConfig{Chance: 0}, fixedSource())
	if err != nil {
		t.Fatalf("new chaos engine: %v", err)
	}
	for i := 0; i < 10000; i++ {
		state := domain.NewMemberState("g1", "m1")
		if rule, ok := engine.Roll(&state, chaosPool(), testNow); ok {
			t.Fatalf("roll %d granted %s with chance 0", i, rule.RoleID)
		}
		if state.ChaosRole != "" || !state.LastChaosEvent.IsZero() {
			t.Fatalf("roll %d mutated state: %+v", i, state)
		}
	}
}

func TestChaosEngine_ChanceOneGrantsOnFirstRoll(t *testing.T) {
	engine, err := NewChaosEngine(ChaosConfig{Chance: 1, Interval: 6 * time.Hour, Duration: time.Hour}, fixedSource())
	if err != nil {
		t.Fatalf("new chaos engine: %v", err)
	}
	state := domain.NewMemberState("g1", "m1")
	rule, ok := engine.Roll(&state, chaosPool(), testNow)
	if !ok {
		t.Fatal("expected grant")
	}
	if state.ChaosRole != rule.RoleID || !state.LastChaosEvent.Equal(testNow) {
		t.Fatalf("state = %+v, want role %s at %v", state, rule.RoleID, testNow)
	}
	wantExpiry := testNow.Add(time.Hour)
	if rule.Temporary {
		wantExpiry = testNow.Add(rule.Duration)
	}
	if !state.ChaosExpires.Equal(wantExpiry) {
		t.Fatalf("expires = %v, want %v", state.ChaosExpires, wantExpiry)
	}

	if _, ok := engine.Roll(&state, chaosPool(), testNow.Add(time.Minute)); ok {
		t.Fatal("expected no roll while a chaos role is live")
	}

	afterExpiry := wantExpiry.Add(time.Minute)
	if !engine.Expire(&state, afterExpiry) {
		t.Fatal("expected expiry")
	}
	if _, ok := engine.Roll(&state, chaosPool(), afterExpiry); ok {
		t.Fatal("expected no roll before the interval elapses")
	}
	if _, ok := engine.Roll(&state, chaosPool(), testNow.Add(6*time.Hour)); !ok {
		t.Fatal("expected grant once the interval elapsed")
	}
}

func TestChaosEngine_EmptyPoolKeepsInterval(t *testing.T) {
	engine, err := NewChaosEngine(ChaosConfig{Chance: 1}, fixedSource())
	if err != nil {
		t.Fatalf("new chaos engine: %v", err)
	}
	state := domain.NewMemberState("g1", "m1")
	if _, ok := engine.Roll(&state, nil, testNow); ok {
		t.Fatal("expected no grant from empty pool")
	}
	if !state.LastChaosEvent.IsZero() {
		t.Fatalf("last chaos event = %v, want zero", state.LastChaosEvent)
	}
}
