// Package storage defines persistence contracts for engine member state,
// custom triggers and achievement unlocks.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

// ErrNotFound indicates a requested engine record is missing.
var ErrNotFound = errors.New("record not found")

// MemberRecord is the unit of member persistence: state and progress are
// always written together.
type MemberRecord struct {
	State    domain.MemberState
	Progress domain.MemberProgress
}

// MemberStore persists per-member engagement state and progress.
type MemberStore interface {
	GetMember(ctx context.Context, communityID, memberID string) (MemberRecord, error)
	// PutMember upserts state and progress in one transaction.
	PutMember(ctx context.Context, record MemberRecord) error
	ListMembers(ctx context.Context, communityID string) ([]MemberRecord, error)
	ListCommunities(ctx context.Context) ([]string, error)
}

// TriggerStore persists administrator-defined stat triggers.
type TriggerStore interface {
	PutTrigger(ctx context.Context, trigger domain.Trigger) error
	GetTrigger(ctx context.Context, id string) (domain.Trigger, error)
	// ListTriggers returns every trigger of a community, newest first.
	ListTriggers(ctx context.Context, communityID string) ([]domain.Trigger, error)
	// ListActiveTriggers returns triggers that are active and unexpired at now.
	ListActiveTriggers(ctx context.Context, communityID string, now time.Time) ([]domain.Trigger, error)
	// DeactivateTrigger reports whether the trigger changed from active to inactive.
	DeactivateTrigger(ctx context.Context, id string) (bool, error)
	// DeactivateExpiredTriggers flips every active trigger whose deadline is at or before now.
	DeactivateExpiredTriggers(ctx context.Context, now time.Time) (int64, error)
}

// UnlockStore persists append-only achievement unlocks.
type UnlockStore interface {
	// InsertUnlock reports false without writing when the unlock already exists.
	InsertUnlock(ctx context.Context, unlock domain.Unlock) (bool, error)
	ListUnlocks(ctx context.Context, communityID, memberID string) ([]domain.Unlock, error)
}

// Store is the full engine persistence surface.
type Store interface {
	MemberStore
	TriggerStore
	UnlockStore
	Close() error
}
