package app

import (
	"context"

	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

// PresenceSource reports which communities exist and who is present in them.
type PresenceSource interface {
	ListCommunities(ctx context.Context) ([]string, error)
	ListPresent(ctx context.Context, communityID string) ([]domain.Presence, error)
}

// RoleClient reads and changes a member's external roles.
type RoleClient interface {
	ListHeldRoles(ctx context.Context, communityID, memberID string) ([]string, error)
	AddRole(ctx context.Context, communityID, memberID, roleID string) error
	RemoveRole(ctx context.Context, communityID, memberID, roleID string) error
}

// RoleCreator provisions roles by name for operator tooling.
type RoleCreator interface {
	CreateRoleIfAbsent(ctx context.Context, communityID, name string) (roleID string, created bool, err error)
}

// RulesetProvider returns the rule configuration of a community.
type RulesetProvider interface {
	Ruleset(ctx context.Context, communityID string) (domain.Ruleset, error)
}

// OperationRecorder receives the outcome of every executed role operation.
type OperationRecorder interface {
	RecordOperation(ctx context.Context, result domain.OperationResult) error
}
