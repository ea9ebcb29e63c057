package domain

import (
	"math"
	"testing"
	"time"
)

const epsilon = 1e-9

func assertStat(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > epsilon {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func TestPipelineVoiceDayExample(t *testing.T) {
	state := NewMemberState("c1", "m1")
	in := PassInput{
		Context: ModifierContext{IsInVoice: true},
		Hour:    12,
		Now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	got := DefaultPipeline().Run(state, in)

	// activity 50 falls in the >=40 band: multiplier 0.7.
	assertStat(t, "mood", got.Mood, 50.45)
	assertStat(t, "energy", got.Energy, 50.8)
	assertStat(t, "activity", got.Activity, 50.79)
}

func TestPipelineVoiceDayExampleWithHalfDrainAtFifty(t *testing.T) {
	bands := DrainBands{
		{MinActivity: 80, Multiplier: 0.3},
		{MinActivity: 50, Multiplier: 0.5},
		{MinActivity: 40, Multiplier: 0.7},
		{MinActivity: 20, Multiplier: 0.85},
	}
	state := NewMemberState("c1", "m1")
	in := PassInput{Context: ModifierContext{IsInVoice: true}, Hour: 12}

	got := NewPipeline(bands).Run(state, in)

	assertStat(t, "mood", got.Mood, 50.55)
	assertStat(t, "energy", got.Energy, 51.0)
	assertStat(t, "activity", got.Activity, 50.85)
}

func TestPipelineOrderMattersNearSaturation(t *testing.T) {
	state := NewMemberState("c1", "m1")
	state.Activity = 99.8
	in := PassInput{Context: ModifierContext{IsInVoice: true}, Hour: 12}
	drain := BaseDrain(DefaultDrainBands)

	voiceFirst := Pipeline{VoiceBonus, drain}.Run(state, in)
	drainFirst := Pipeline{drain, VoiceBonus}.Run(state, in)

	assertStat(t, "voice first activity", voiceFirst.Activity, 99.91)
	assertStat(t, "drain first activity", drainFirst.Activity, 100)
	if voiceFirst.Activity == drainFirst.Activity {
		t.Fatal("expected pass order to change the result")
	}
}

func TestPipelineClampsAfterEveryPass(t *testing.T) {
	values := []float64{0, 0.2, 1, 19.99, 20, 40, 59.9, 60, 80, 99.5, 99.8, 100}
	contexts := []ModifierContext{
		{},
		{IsIdle: true},
		{IsInVoice: true},
		{IsInVoice: true, IsAfk: true},
		{IsIdle: true, IsAfk: true, IsInVoice: true},
	}
	triggers := []Trigger{
		{Stat: StatMood, Modifier: 250, Active: true},
		{Stat: StatEnergy, Modifier: -250, Active: true},
		{Stat: StatActivity, Modifier: 0.7, Active: true},
	}
	pipeline := DefaultPipeline()

	for _, v := range values {
		for _, ctx := range contexts {
			for hour := 0; hour < 24; hour += 5 {
				state := MemberState{Mood: v, Energy: 100 - v, Activity: v}
				in := PassInput{Context: ctx, Hour: hour, Triggers: triggers}
				for n := 1; n <= len(pipeline); n++ {
					got := pipeline[:n].Run(state, in)
					for _, stat := range Stats {
						if x := got.Get(stat); x < MinStat || x > MaxStat {
							t.Fatalf("after %s: %s = %v out of bounds (start %v, ctx %+v, hour %d)",
								pipeline[n-1].Name, stat, x, v, ctx, hour)
						}
					}
				}
			}
		}
	}
}

func TestPipelineClampsOutOfRangeInput(t *testing.T) {
	state := MemberState{Mood: -5, Energy: 140, Activity: 50}
	got := Pipeline{}.Run(state, PassInput{})
	assertStat(t, "mood", got.Mood, 0)
	assertStat(t, "energy", got.Energy, 100)
}

func TestIdlePenaltyAppliesToIdleAndAfk(t *testing.T) {
	for _, ctx := range []ModifierContext{{IsIdle: true}, {IsAfk: true}} {
		got := Pipeline{IdlePenalty}.Run(NewMemberState("c", "m"), PassInput{Context: ctx})
		assertStat(t, "energy", got.Energy, 49)
		assertStat(t, "activity", got.Activity, 49)
		assertStat(t, "mood", got.Mood, 50)
	}
	got := Pipeline{IdlePenalty}.Run(NewMemberState("c", "m"), PassInput{})
	assertStat(t, "energy", got.Energy, 50)
}

func TestTimeOfDayBias(t *testing.T) {
	cases := []struct {
		hour       int
		wantMood   float64
		wantEnergy float64
	}{
		{hour: 0, wantMood: 49.5, wantEnergy: 50.5},
		{hour: 5, wantMood: 49.5, wantEnergy: 50.5},
		{hour: 6, wantMood: 50.3, wantEnergy: 50},
		{hour: 17, wantMood: 50.3, wantEnergy: 50},
		{hour: 18, wantMood: 50, wantEnergy: 49.7},
		{hour: 23, wantMood: 50, wantEnergy: 49.7},
	}
	for _, tc := range cases {
		got := Pipeline{TimeOfDayBias}.Run(NewMemberState("c", "m"), PassInput{Hour: tc.hour})
		assertStat(t, "mood", got.Mood, tc.wantMood)
		assertStat(t, "energy", got.Energy, tc.wantEnergy)
	}
}

func TestCustomTriggersSkipInactiveAndExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	in := PassInput{
		Now: now,
		Triggers: []Trigger{
			{Stat: StatMood, Modifier: 5, Active: true},
			{Stat: StatMood, Modifier: 2, Active: true, ExpiresAt: &future},
			{Stat: StatMood, Modifier: 100, Active: false},
			{Stat: StatEnergy, Modifier: -30, Active: true, ExpiresAt: &past},
			{Stat: StatActivity, Modifier: -1.5, Active: true},
		},
	}

	got := Pipeline{CustomTriggers}.Run(NewMemberState("c", "m"), in)

	assertStat(t, "mood", got.Mood, 57)
	assertStat(t, "energy", got.Energy, 50)
	assertStat(t, "activity", got.Activity, 48.5)
}

func TestDrainBandsMultiplier(t *testing.T) {
	cases := []struct {
		activity float64
		want     float64
	}{
		{100, 0.3}, {80, 0.3}, {79.9, 0.5}, {60, 0.5}, {50, 0.7}, {40, 0.7}, {39, 0.85}, {20, 0.85}, {19.9, 1.0}, {0, 1.0},
	}
	for _, tc := range cases {
		if got := DefaultDrainBands.Multiplier(tc.activity); got != tc.want {
			t.Fatalf("multiplier(%v) = %v, want %v", tc.activity, got, tc.want)
		}
	}
}

func TestPipelineRunDoesNotAliasAppliedRoles(t *testing.T) {
	state := NewMemberState("c", "m")
	state.AppliedRoles = []string{"r1"}
	got := DefaultPipeline().Run(state, PassInput{Hour: 12})
	got.AppliedRoles[0] = "changed"
	if state.AppliedRoles[0] != "r1" {
		t.Fatalf("input applied roles mutated: %v", state.AppliedRoles)
	}
}
