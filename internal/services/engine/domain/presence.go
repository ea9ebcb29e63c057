package domain

import "strings"

// Status is a member's presence status as reported by the community gateway.
type Status string

const (
	StatusOnline       Status = "online"
	StatusIdle         Status = "idle"
	StatusDoNotDisturb Status = "dnd"
	StatusInvisible    Status = "invisible"
	StatusOffline      Status = "offline"
)

// Presence is the observable slice of one member the engine consumes.
type Presence struct {
	MemberID       string
	Bot            bool
	Status         Status
	VoiceChannelID string
	SelfMuted      bool
	SelfDeafened   bool
}

// Eligible reports whether the member takes part in a tick: human accounts
// that are online, idle or do-not-disturb.
func (p Presence) Eligible() bool {
	if p.Bot || strings.TrimSpace(p.MemberID) == "" {
		return false
	}
	switch p.Status {
	case StatusOnline, StatusIdle, StatusDoNotDisturb:
		return true
	default:
		return false
	}
}

// InVoice reports whether the member is connected to a voice channel.
func (p Presence) InVoice() bool {
	return strings.TrimSpace(p.VoiceChannelID) != ""
}

// ModifierContext derives the stat pipeline context from a presence.
func (p Presence) ModifierContext() ModifierContext {
	inVoice := p.InVoice()
	return ModifierContext{
		IsIdle:    p.Status == StatusIdle,
		IsAfk:     inVoice && (p.SelfMuted || p.SelfDeafened),
		IsInVoice: inVoice,
	}
}
