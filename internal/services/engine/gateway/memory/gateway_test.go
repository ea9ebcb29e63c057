package memory

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

func TestGatewayPresenceAndRoles(t *testing.T) {
	ctx := context.Background()
	g := New()
	g.SetPresence("guild-b", domain.Presence{MemberID: "m2", Status: domain.StatusOnline})
	g.SetPresence("guild-a", domain.Presence{MemberID: "m1", Status: domain.StatusIdle})
	g.SetPresence("guild-a", domain.Presence{MemberID: "m0", Status: domain.StatusOnline})

	communities, err := g.ListCommunities(ctx)
	if err != nil {
		t.Fatalf("list communities: %v", err)
	}
	if !slices.Equal(communities, []string{"guild-a", "guild-b"}) {
		t.Fatalf("communities = %v", communities)
	}
	present, err := g.ListPresent(ctx, "guild-a")
	if err != nil {
		t.Fatalf("list present: %v", err)
	}
	if len(present) != 2 || present[0].MemberID != "m0" {
		t.Fatalf("present = %+v", present)
	}

	if err := g.AddRole(ctx, "guild-a", "m1", "r2"); err != nil {
		t.Fatalf("add role: %v", err)
	}
	if err := g.AddRole(ctx, "guild-a", "m1", "r1"); err != nil {
		t.Fatalf("add role: %v", err)
	}
	if err := g.RemoveRole(ctx, "guild-a", "m1", "r2"); err != nil {
		t.Fatalf("remove role: %v", err)
	}
	held, err := g.ListHeldRoles(ctx, "guild-a", "m1")
	if err != nil {
		t.Fatalf("list held roles: %v", err)
	}
	if !slices.Equal(held, []string{"r1"}) {
		t.Fatalf("held = %v, want [r1]", held)
	}
}

func TestGatewayFailureInjection(t *testing.T) {
	ctx := context.Background()
	g := New()
	g.AddCommunity("guild-a")
	boom := errors.New("boom")

	g.FailWith(OpAddRole, "r1", boom)
	if err := g.AddRole(ctx, "guild-a", "m1", "r1"); !errors.Is(err, boom) {
		t.Fatalf("add role error = %v, want %v", err, boom)
	}
	if err := g.AddRole(ctx, "guild-a", "m1", "r1"); !errors.Is(err, boom) {
		t.Fatalf("second add role error = %v, want failure to persist", err)
	}
	if err := g.AddRole(ctx, "guild-a", "m1", "r2"); err != nil {
		t.Fatalf("add other role: %v", err)
	}
	g.FailWith(OpAddRole, "r1", nil)
	if err := g.AddRole(ctx, "guild-a", "m1", "r1"); err != nil {
		t.Fatalf("add role after clear: %v", err)
	}
	if got := g.Calls(OpAddRole); got != 4 {
		t.Fatalf("add calls = %d, want 4", got)
	}

	g.FailWith(OpListPresent, "", boom)
	if _, err := g.ListPresent(ctx, "guild-a"); !errors.Is(err, boom) {
		t.Fatalf("list present error = %v, want %v", err, boom)
	}
}

func TestCreateRoleIfAbsent(t *testing.T) {
	ctx := context.Background()
	g := New()
	first, created, err := g.CreateRoleIfAbsent(ctx, "guild-a", "Sunny")
	if err != nil || !created || first == "" {
		t.Fatalf("create = %q/%v/%v", first, created, err)
	}
	second, created, err := g.CreateRoleIfAbsent(ctx, "guild-a", " Sunny ")
	if err != nil || created || second != first {
		t.Fatalf("second create = %q/%v/%v, want %q/false", second, created, err, first)
	}
	if _, _, err := g.CreateRoleIfAbsent(ctx, "guild-a", ""); err == nil {
		t.Fatal("expected empty name error")
	}
}
