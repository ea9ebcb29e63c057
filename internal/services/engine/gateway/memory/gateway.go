// Package memory provides an in-process community gateway holding presences
// and role membership in a mutex-guarded registry. It backs tests and dry
// runs of the engine.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/louisbranch/moodring/internal/platform/id"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

// Op names a gateway operation for failure injection.
type Op string

const (
	OpListCommunities Op = "list_communities"
	OpListPresent     Op = "list_present"
	OpListHeldRoles   Op = "list_held_roles"
	OpAddRole         Op = "add_role"
	OpRemoveRole      Op = "remove_role"
	OpCreateRole      Op = "create_role"
)

type community struct {
	presences map[string]domain.Presence
	held      map[string]map[string]struct{}
	roles     map[string]string // name -> id
}

// Gateway is a thread-safe in-memory community registry.
type Gateway struct {
	mu          sync.Mutex
	communities map[string]*community
	failures    map[failureKey]error
	calls       map[Op]int
}

type failureKey struct {
	op     Op
	target string
}

// New returns an empty gateway.
func New() *Gateway {
	return &Gateway{
		communities: make(map[string]*community),
		failures:    make(map[failureKey]error),
		calls:       make(map[Op]int),
	}
}

func (g *Gateway) community(communityID string) *community {
	c, ok := g.communities[communityID]
	if !ok {
		c = &community{
			presences: make(map[string]domain.Presence),
			held:      make(map[string]map[string]struct{}),
			roles:     make(map[string]string),
		}
		g.communities[communityID] = c
	}
	return c
}

// AddCommunity registers an empty community.
func (g *Gateway) AddCommunity(communityID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.community(strings.TrimSpace(communityID))
}

// SetPresence records or replaces a member's presence.
func (g *Gateway) SetPresence(communityID string, presence domain.Presence) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.community(strings.TrimSpace(communityID)).presences[presence.MemberID] = presence
}

// RemovePresence forgets a member's presence.
func (g *Gateway) RemovePresence(communityID, memberID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.communities[communityID]; ok {
		delete(c.presences, memberID)
	}
}

// SetHeldRoles replaces the roles a member holds.
func (g *Gateway) SetHeldRoles(communityID, memberID string, roles ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := make(map[string]struct{}, len(roles))
	for _, roleID := range roles {
		set[roleID] = struct{}{}
	}
	g.community(communityID).held[memberID] = set
}

// HeldRoles returns a sorted copy of the roles a member holds.
func (g *Gateway) HeldRoles(communityID, memberID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.communities[communityID]
	if !ok {
		return nil
	}
	return sortedKeys(c.held[memberID])
}

// FailWith makes every call of op against target fail with err until cleared
// with a nil err. Target is a community id for list operations and a role id
// for role changes; an empty target matches all calls of op.
func (g *Gateway) FailWith(op Op, target string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := failureKey{op: op, target: target}
	if err == nil {
		delete(g.failures, key)
		return
	}
	g.failures[key] = err
}

// Calls returns how many times op was invoked.
func (g *Gateway) Calls(op Op) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// begin counts the call and returns the injected failure, if any. Callers
// hold g.mu.
func (g *Gateway) begin(op Op, target string) error {
	g.calls[op]++
	if err, ok := g.failures[failureKey{op: op, target: target}]; ok {
		return err
	}
	if err, ok := g.failures[failureKey{op: op}]; ok {
		return err
	}
	return nil
}

// ListCommunities returns every registered community id, sorted.
func (g *Gateway) ListCommunities(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpListCommunities, ""); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(g.communities))
	for communityID := range g.communities {
		ids = append(ids, communityID)
	}
	slices.Sort(ids)
	return ids, nil
}

// ListPresent returns the presences of a community ordered by member id.
func (g *Gateway) ListPresent(ctx context.Context, communityID string) ([]domain.Presence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpListPresent, communityID); err != nil {
		return nil, err
	}
	c, ok := g.communities[communityID]
	if !ok {
		return nil, fmt.Errorf("unknown community %s", communityID)
	}
	out := make([]domain.Presence, 0, len(c.presences))
	for _, presence := range c.presences {
		out = append(out, presence)
	}
	slices.SortFunc(out, func(a, b domain.Presence) int { return strings.Compare(a.MemberID, b.MemberID) })
	return out, nil
}

// ListHeldRoles returns the roles a member holds.
func (g *Gateway) ListHeldRoles(ctx context.Context, communityID, memberID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpListHeldRoles, communityID); err != nil {
		return nil, err
	}
	c, ok := g.communities[communityID]
	if !ok {
		return nil, fmt.Errorf("unknown community %s", communityID)
	}
	return sortedKeys(c.held[memberID]), nil
}

// AddRole grants a role to a member.
func (g *Gateway) AddRole(ctx context.Context, communityID, memberID, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpAddRole, roleID); err != nil {
		return err
	}
	c := g.community(communityID)
	set, ok := c.held[memberID]
	if !ok {
		set = make(map[string]struct{})
		c.held[memberID] = set
	}
	set[roleID] = struct{}{}
	return nil
}

// RemoveRole revokes a role from a member.
func (g *Gateway) RemoveRole(ctx context.Context, communityID, memberID, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpRemoveRole, roleID); err != nil {
		return err
	}
	if c, ok := g.communities[communityID]; ok {
		delete(c.held[memberID], roleID)
	}
	return nil
}

// CreateRoleIfAbsent returns the id of the named role, creating it first when
// the community has none.
func (g *Gateway) CreateRoleIfAbsent(ctx context.Context, communityID, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, fmt.Errorf("role name is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpCreateRole, communityID); err != nil {
		return "", false, err
	}
	c := g.community(communityID)
	if roleID, ok := c.roles[name]; ok {
		return roleID, false, nil
	}
	roleID, err := id.NewID()
	if err != nil {
		return "", false, fmt.Errorf("create role: %w", err)
	}
	c.roles[name] = roleID
	return roleID, true, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}
