package domain

import (
	"slices"
	"time"
)

const (
	// MinStat and MaxStat bound every engagement scalar.
	MinStat = 0.0
	MaxStat = 100.0
	// DefaultStat is the midpoint a member starts at on first observation.
	DefaultStat = 50.0
)

// MemberState is the mutable engagement state of one member in one community.
type MemberState struct {
	CommunityID string
	MemberID    string

	Mood     float64
	Energy   float64
	Activity float64

	LastRoleUpdate time.Time
	LastChaosEvent time.Time
	ChaosRole      string
	ChaosExpires   time.Time

	// AppliedRoles is the sorted category role set last applied without errors.
	AppliedRoles []string
}

// NewMemberState returns the midpoint state used for members seen for the first time.
func NewMemberState(communityID, memberID string) MemberState {
	return MemberState{
		CommunityID: communityID,
		MemberID:    memberID,
		Mood:        DefaultStat,
		Energy:      DefaultStat,
		Activity:    DefaultStat,
	}
}

// Get returns the value of one stat.
func (s MemberState) Get(stat Stat) float64 {
	switch stat {
	case StatMood:
		return s.Mood
	case StatEnergy:
		return s.Energy
	case StatActivity:
		return s.Activity
	default:
		return 0
	}
}

// Add shifts one stat by delta and clamps it.
func (s *MemberState) Add(stat Stat, delta float64) {
	switch stat {
	case StatMood:
		s.Mood = Clamp(s.Mood + delta)
	case StatEnergy:
		s.Energy = Clamp(s.Energy + delta)
	case StatActivity:
		s.Activity = Clamp(s.Activity + delta)
	}
}

// ClampAll forces every scalar back into [MinStat, MaxStat].
func (s *MemberState) ClampAll() {
	s.Mood = Clamp(s.Mood)
	s.Energy = Clamp(s.Energy)
	s.Activity = Clamp(s.Activity)
}

// HasChaosRole reports whether a chaos role is held and unexpired at now.
func (s MemberState) HasChaosRole(now time.Time) bool {
	return s.ChaosRole != "" && now.Before(s.ChaosExpires)
}

// Clone returns a copy that shares no slices with s.
func (s MemberState) Clone() MemberState {
	s.AppliedRoles = slices.Clone(s.AppliedRoles)
	return s
}

// Clamp bounds v to [MinStat, MaxStat].
func Clamp(v float64) float64 {
	switch {
	case v < MinStat:
		return MinStat
	case v > MaxStat:
		return MaxStat
	default:
		return v
	}
}

// MemberProgress holds cumulative counters used by the achievement catalog.
type MemberProgress struct {
	CommunityID string
	MemberID    string

	VoiceMinutes  float64
	OnlineMinutes float64

	PeakMood     float64
	PeakEnergy   float64
	PeakActivity float64
}

// NewMemberProgress returns empty progress for a member.
func NewMemberProgress(communityID, memberID string) MemberProgress {
	return MemberProgress{CommunityID: communityID, MemberID: memberID}
}

// Observe accrues one tick of presence and raises the peak marks. Counters and
// peaks never decrease; negative elapsed time is ignored.
func (p *MemberProgress) Observe(state MemberState, elapsed time.Duration, inVoice bool) {
	if elapsed > 0 {
		minutes := elapsed.Minutes()
		p.OnlineMinutes += minutes
		if inVoice {
			p.VoiceMinutes += minutes
		}
	}
	p.PeakMood = max(p.PeakMood, state.Mood)
	p.PeakEnergy = max(p.PeakEnergy, state.Energy)
	p.PeakActivity = max(p.PeakActivity, state.Activity)
}

// Peak returns the high-water mark of one stat.
func (p MemberProgress) Peak(stat Stat) float64 {
	switch stat {
	case StatMood:
		return p.PeakMood
	case StatEnergy:
		return p.PeakEnergy
	case StatActivity:
		return p.PeakActivity
	default:
		return 0
	}
}
