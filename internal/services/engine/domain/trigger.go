package domain

import "time"

// Trigger is an administrator-defined modifier added to one stat every tick
// while it is active and unexpired.
type Trigger struct {
	ID          string
	CommunityID string
	Name        string
	Stat        Stat
	Modifier    float64
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	Active      bool
}

// ActiveAt reports whether the trigger applies at now. Expiry is decided here,
// independent of whether a sweep has flipped Active yet.
func (t Trigger) ActiveAt(now time.Time) bool {
	if !t.Active {
		return false
	}
	return t.ExpiresAt == nil || t.ExpiresAt.After(now)
}

// ExpiredAt reports whether the trigger has a deadline that has passed.
func (t Trigger) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}
