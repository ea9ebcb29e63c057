package domain

import (
	"testing"
	"time"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	if err := DefaultCatalog.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestCatalogValidateRejectsMalformedEntries(t *testing.T) {
	cases := []Catalog{
		{{ID: "", Requirement: Requirement{Kind: RequireVoiceHours, Hours: 1}}},
		{{ID: "a", Requirement: Requirement{Kind: RequireVoiceHours, Hours: 1}}, {ID: "a", Requirement: Requirement{Kind: RequireVoiceHours, Hours: 1}}},
		{{ID: "a", Requirement: Requirement{Kind: RequireOnlineHours}}},
		{{ID: "a", Requirement: Requirement{Kind: RequireStatMax}}},
		{{ID: "a"}},
	}
	for i, catalog := range cases {
		if err := catalog.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestRequirementSatisfied(t *testing.T) {
	progress := NewMemberProgress("c", "m")
	progress.VoiceMinutes = 59
	progress.OnlineMinutes = 24 * 60
	progress.PeakEnergy = 100

	ids := func() map[string]bool {
		out := map[string]bool{}
		for _, a := range DefaultCatalog.Satisfied(progress) {
			out[a.ID] = true
		}
		return out
	}

	got := ids()
	if got["voice_1h"] {
		t.Fatal("voice_1h unlocked at 59 minutes")
	}
	if !got["online_24h"] || got["online_168h"] {
		t.Fatalf("online unlocks = %v", got)
	}
	if !got["max_energy"] || got["max_mood"] {
		t.Fatalf("peak unlocks = %v", got)
	}

	progress.VoiceMinutes = 60
	if !ids()["voice_1h"] {
		t.Fatal("voice_1h should unlock at 60 minutes")
	}
}

func TestProgressObserveAccumulatesMinutesAndPeaks(t *testing.T) {
	progress := NewMemberProgress("c", "m")
	state := NewMemberState("c", "m")
	state.Mood = 100
	state.Activity = 70

	progress.Observe(state, time.Minute, true)
	state.Mood = 40
	state.Activity = 80
	progress.Observe(state, 30*time.Second, false)

	if progress.OnlineMinutes != 1.5 {
		t.Fatalf("online minutes = %v, want 1.5", progress.OnlineMinutes)
	}
	if progress.VoiceMinutes != 1 {
		t.Fatalf("voice minutes = %v, want 1", progress.VoiceMinutes)
	}
	if progress.Peak(StatMood) != 100 || progress.Peak(StatActivity) != 80 || progress.Peak(StatEnergy) != 50 {
		t.Fatalf("peaks = %+v", progress)
	}
}

func TestCatalogFind(t *testing.T) {
	if a, ok := DefaultCatalog.Find("voice_100h"); !ok || a.Requirement.Hours != 100 {
		t.Fatalf("find = %+v/%v", a, ok)
	}
	if _, ok := DefaultCatalog.Find("nope"); ok {
		t.Fatal("unexpected achievement")
	}
}
