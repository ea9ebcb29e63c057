package domain

import "time"

// ModifierContext describes the member's situation during one tick.
type ModifierContext struct {
	IsIdle    bool
	IsAfk     bool
	IsInVoice bool
}

// PassInput is everything a pipeline pass may read besides the state itself.
type PassInput struct {
	Context  ModifierContext
	Hour     int
	Triggers []Trigger
	Now      time.Time
}

// Pass is one ordered step of the stat pipeline.
type Pass struct {
	Name  string
	Apply func(*MemberState, PassInput)
}

// Pipeline applies passes in order, clamping every scalar after each pass.
// Order is part of the contract: clamping is not linear near the bounds.
type Pipeline []Pass

// Run returns the state after every pass has been applied.
func (p Pipeline) Run(state MemberState, in PassInput) MemberState {
	out := state.Clone()
	out.ClampAll()
	for _, pass := range p {
		if pass.Apply == nil {
			continue
		}
		pass.Apply(&out, in)
		out.ClampAll()
	}
	return out
}

// DrainBand maps an activity floor to a drain multiplier.
type DrainBand struct {
	MinActivity float64
	Multiplier  float64
}

// DrainBands are evaluated top to bottom; the first band whose floor is at or
// below the current activity wins. Activity below every floor drains at 1.0.
type DrainBands []DrainBand

// DefaultDrainBands damps the base drain for active members. A fresh member
// at activity 50 falls in the 40 band (0.7), so one voice tick at midday
// takes mood to 50.45. Deployments that want 0.5 at 50 and a 50.55 result
// pass their own bands to NewPipeline.
var DefaultDrainBands = DrainBands{
	{MinActivity: 80, Multiplier: 0.3},
	{MinActivity: 60, Multiplier: 0.5},
	{MinActivity: 40, Multiplier: 0.7},
	{MinActivity: 20, Multiplier: 0.85},
}

// Multiplier returns the drain multiplier for an activity value.
func (b DrainBands) Multiplier(activity float64) float64 {
	for _, band := range b {
		if activity >= band.MinActivity {
			return band.Multiplier
		}
	}
	return 1.0
}

// BaseDrain returns the pass that slowly drains every stat, damped by activity.
func BaseDrain(bands DrainBands) Pass {
	return Pass{
		Name: "base_drain",
		Apply: func(s *MemberState, _ PassInput) {
			m := bands.Multiplier(s.Activity)
			s.Energy -= 1 * m
			s.Mood -= 0.5 * m
			s.Activity -= 0.3 * m
		},
	}
}

// IdlePenalty drains energy and activity from idle or muted members.
var IdlePenalty = Pass{
	Name: "idle_penalty",
	Apply: func(s *MemberState, in PassInput) {
		if in.Context.IsIdle || in.Context.IsAfk {
			s.Energy -= 1
			s.Activity -= 1
		}
	},
}

// VoiceBonus rewards members connected to a voice channel.
var VoiceBonus = Pass{
	Name: "voice_bonus",
	Apply: func(s *MemberState, in PassInput) {
		if in.Context.IsInVoice {
			s.Mood += 0.5
			s.Activity += 1.0
			s.Energy += 1.5
		}
	},
}

// TimeOfDayBias nudges mood and energy by the period of the tick's hour.
var TimeOfDayBias = Pass{
	Name: "time_of_day",
	Apply: func(s *MemberState, in PassInput) {
		switch PeriodForHour(in.Hour) {
		case PeriodNight:
			s.Mood -= 0.5
			s.Energy += 0.5
		case PeriodDay:
			s.Mood += 0.3
		case PeriodEvening:
			s.Energy -= 0.3
		}
	},
}

// CustomTriggers adds the modifier of every trigger active at in.Now.
var CustomTriggers = Pass{
	Name: "custom_triggers",
	Apply: func(s *MemberState, in PassInput) {
		for _, t := range in.Triggers {
			if !t.ActiveAt(in.Now) {
				continue
			}
			switch t.Stat {
			case StatMood:
				s.Mood += t.Modifier
			case StatEnergy:
				s.Energy += t.Modifier
			case StatActivity:
				s.Activity += t.Modifier
			}
		}
	},
}

// NewPipeline returns the standard pass order with the given drain bands.
func NewPipeline(bands DrainBands) Pipeline {
	if len(bands) == 0 {
		bands = DefaultDrainBands
	}
	return Pipeline{BaseDrain(bands), IdlePenalty, VoiceBonus, TimeOfDayBias, CustomTriggers}
}

// DefaultPipeline returns the standard pass order with DefaultDrainBands.
func DefaultPipeline() Pipeline {
	return NewPipeline(DefaultDrainBands)
}
