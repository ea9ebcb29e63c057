package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

const defaultRoleCooldown = 30 * time.Second

// ReconcileResult summarizes one reconciliation attempt.
type ReconcileResult struct {
	// Skipped is true when the cooldown held and nothing changed.
	Skipped    bool
	Operations []domain.Operation
	Failed     int
}

// Reconciler converges a member's external roles to the desired set.
type Reconciler struct {
	roles    RoleClient
	recorder OperationRecorder
	metrics  *Metrics
	cooldown time.Duration
	logf     func(string, ...any)
}

// NewReconciler builds a reconciler. recorder and metrics may be nil.
func NewReconciler(roles RoleClient, recorder OperationRecorder, metrics *Metrics, cooldown time.Duration, logf func(string, ...any)) *Reconciler {
	if cooldown <= 0 {
		cooldown = defaultRoleCooldown
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Reconciler{roles: roles, recorder: recorder, metrics: metrics, cooldown: cooldown, logf: logf}
}

// Reconcile lists the member's held roles, plans the diff against desired and
// executes every operation independently.
//
// On full success state.LastRoleUpdate and state.AppliedRoles are advanced;
// AppliedRoles records rewards too, so a held reward does not defeat the
// cooldown. On any operation failure both stay unchanged so the next tick
// retries.
func (r *Reconciler) Reconcile(ctx context.Context, state *domain.MemberState, rules domain.Ruleset, desired domain.Desired, now time.Time) (ReconcileResult, error) {
	if !state.LastRoleUpdate.IsZero() && now.Sub(state.LastRoleUpdate) < r.cooldown && desired.SameAs(state.AppliedRoles) {
		return ReconcileResult{Skipped: true}, nil
	}

	held, err := r.roles.ListHeldRoles(ctx, state.CommunityID, state.MemberID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("list held roles: %w", err)
	}

	ops := domain.PlanReconciliation(desired, held, rules)
	result := ReconcileResult{Operations: ops}
	for _, op := range ops {
		var opErr error
		switch op.Kind {
		case domain.OperationAdd:
			opErr = r.roles.AddRole(ctx, state.CommunityID, state.MemberID, op.RoleID)
		case domain.OperationRemove:
			opErr = r.roles.RemoveRole(ctx, state.CommunityID, state.MemberID, op.RoleID)
		default:
			opErr = fmt.Errorf("unknown operation %s", op.Kind)
		}
		if opErr != nil {
			result.Failed++
			r.logf("role %s failed: community=%s member=%s role=%s scope=%s: %v",
				op.Kind, state.CommunityID, state.MemberID, op.RoleID, op.Scope(), opErr)
		}
		r.metrics.roleOperation(op.Kind.String(), op.Scope(), opErr == nil)
		r.record(ctx, domain.OperationResult{
			CommunityID: state.CommunityID,
			MemberID:    state.MemberID,
			Operation:   op,
			At:          now,
			Err:         opErr,
		})
	}

	if result.Failed == 0 {
		state.LastRoleUpdate = now
		state.AppliedRoles = desired.Roles()
	}
	return result, nil
}

func (r *Reconciler) record(ctx context.Context, result domain.OperationResult) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordOperation(ctx, result); err != nil {
		r.logf("record role operation: %v", err)
	}
}
