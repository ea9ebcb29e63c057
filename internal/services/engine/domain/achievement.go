package domain

import (
	"fmt"
	"time"
)

// RequirementKind selects how an achievement is earned.
type RequirementKind uint8

const (
	RequireVoiceHours RequirementKind = iota + 1
	RequireStatMax
	RequireOnlineHours
)

// Requirement is the unlock predicate of an achievement.
type Requirement struct {
	Kind  RequirementKind
	Hours float64
	Stat  Stat
}

// Satisfied evaluates the requirement against progress.
func (r Requirement) Satisfied(progress MemberProgress) bool {
	switch r.Kind {
	case RequireVoiceHours:
		return progress.VoiceMinutes/60 >= r.Hours
	case RequireStatMax:
		return progress.Peak(r.Stat) >= MaxStat
	case RequireOnlineHours:
		return progress.OnlineMinutes/60 >= r.Hours
	default:
		return false
	}
}

// Achievement is one static catalog entry.
type Achievement struct {
	ID          string
	Name        string
	Requirement Requirement
}

// Unlock is the append-only record of an earned achievement.
type Unlock struct {
	CommunityID   string
	MemberID      string
	AchievementID string
	UnlockedAt    time.Time
}

// Catalog is an ordered set of achievements.
type Catalog []Achievement

// DefaultCatalog is the built-in achievement list.
var DefaultCatalog = Catalog{
	{ID: "voice_1h", Name: "First Words", Requirement: Requirement{Kind: RequireVoiceHours, Hours: 1}},
	{ID: "voice_10h", Name: "Regular Voice", Requirement: Requirement{Kind: RequireVoiceHours, Hours: 10}},
	{ID: "voice_100h", Name: "Voice Veteran", Requirement: Requirement{Kind: RequireVoiceHours, Hours: 100}},
	{ID: "online_24h", Name: "Day One", Requirement: Requirement{Kind: RequireOnlineHours, Hours: 24}},
	{ID: "online_168h", Name: "Week Long", Requirement: Requirement{Kind: RequireOnlineHours, Hours: 168}},
	{ID: "online_720h", Name: "Resident", Requirement: Requirement{Kind: RequireOnlineHours, Hours: 720}},
	{ID: "max_mood", Name: "Radiant", Requirement: Requirement{Kind: RequireStatMax, Stat: StatMood}},
	{ID: "max_energy", Name: "Overcharged", Requirement: Requirement{Kind: RequireStatMax, Stat: StatEnergy}},
	{ID: "max_activity", Name: "Unstoppable", Requirement: Requirement{Kind: RequireStatMax, Stat: StatActivity}},
}

// Satisfied returns the catalog entries whose requirement progress meets.
func (c Catalog) Satisfied(progress MemberProgress) []Achievement {
	var out []Achievement
	for _, a := range c {
		if a.Requirement.Satisfied(progress) {
			out = append(out, a)
		}
	}
	return out
}

// Find returns the achievement with id.
func (c Catalog) Find(id string) (Achievement, bool) {
	for _, a := range c {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// Validate rejects duplicate or empty ids and malformed requirements.
func (c Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c))
	for _, a := range c {
		if a.ID == "" {
			return fmt.Errorf("achievement id is required")
		}
		if _, ok := seen[a.ID]; ok {
			return fmt.Errorf("duplicate achievement %s", a.ID)
		}
		seen[a.ID] = struct{}{}
		switch a.Requirement.Kind {
		case RequireVoiceHours, RequireOnlineHours:
			if a.Requirement.Hours <= 0 {
				return fmt.Errorf("achievement %s: hours must be positive", a.ID)
			}
		case RequireStatMax:
			if !a.Requirement.Stat.Valid() {
				return fmt.Errorf("achievement %s: stat is required", a.ID)
			}
		default:
			return fmt.Errorf("achievement %s: unknown requirement", a.ID)
		}
	}
	return nil
}
