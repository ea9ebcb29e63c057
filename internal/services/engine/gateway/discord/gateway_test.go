package discord

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

type fakeSession struct {
	openErrs []error
	opens    int

	members map[string]*discordgo.Member
	roles   []*discordgo.Role
	added   []string
	removed []string
	created []string
	addErr  error
}

func (f *fakeSession) Open() error {
	f.opens++
	if len(f.openErrs) > 0 {
		err := f.openErrs[0]
		f.openErrs = f.openErrs[1:]
		return err
	}
	return nil
}

func (f *fakeSession) Close() error { return nil }

func (f *fakeSession) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	member, ok := f.members[guildID+"/"+userID]
	if !ok {
		return nil, errors.New("unknown member")
	}
	return member, nil
}

func (f *fakeSession) GuildMemberRoleAdd(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, userID+":"+roleID)
	return nil
}

func (f *fakeSession) GuildMemberRoleRemove(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.removed = append(f.removed, userID+":"+roleID)
	return nil
}

func (f *fakeSession) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return f.roles, nil
}

func (f *fakeSession) GuildRoleCreate(_ string, data *discordgo.RoleParams, _ ...discordgo.RequestOption) (*discordgo.Role, error) {
	f.created = append(f.created, data.Name)
	role := &discordgo.Role{ID: "new-" + data.Name, Name: data.Name}
	f.roles = append(f.roles, role)
	return role, nil
}

func newTestGateway(s *fakeSession, guilds ...*discordgo.Guild) *Gateway {
	state := discordgo.NewState()
	state.Guilds = append(state.Guilds, guilds...)
	return newGateway(s, state, func(string, ...any) {})
}

func TestListPresentJoinsVoiceAndBotFlags(t *testing.T) {
	guild := &discordgo.Guild{
		ID: "g1",
		Members: []*discordgo.Member{
			{User: &discordgo.User{ID: "bot", Bot: true}},
			{User: &discordgo.User{ID: "u1"}},
		},
		Presences: []*discordgo.Presence{
			{User: &discordgo.User{ID: "u2"}, Status: discordgo.StatusIdle},
			{User: &discordgo.User{ID: "u1"}, Status: discordgo.StatusOnline},
			{User: &discordgo.User{ID: "bot"}, Status: discordgo.StatusOnline},
			{User: nil, Status: discordgo.StatusOnline},
		},
		VoiceStates: []*discordgo.VoiceState{
			{UserID: "u1", ChannelID: "voice-1", SelfMute: true},
		},
	}
	g := newTestGateway(&fakeSession{}, guild)

	present, err := g.ListPresent(context.Background(), "g1")
	if err != nil {
		t.Fatalf("list present: %v", err)
	}
	if len(present) != 3 {
		t.Fatalf("present = %+v, want 3 entries", present)
	}
	byID := map[string]domain.Presence{}
	for _, p := range present {
		byID[p.MemberID] = p
	}
	if !byID["bot"].Bot {
		t.Fatal("bot flag not joined from member cache")
	}
	u1 := byID["u1"]
	if u1.VoiceChannelID != "voice-1" || !u1.SelfMuted || u1.Status != domain.StatusOnline {
		t.Fatalf("u1 = %+v", u1)
	}
	if !u1.ModifierContext().IsAfk {
		t.Fatal("self-muted voice member should be afk")
	}
	if byID["u2"].Status != domain.StatusIdle {
		t.Fatalf("u2 = %+v", byID["u2"])
	}

	if _, err := g.ListPresent(context.Background(), "missing"); err == nil {
		t.Fatal("expected unknown guild error")
	}
	communities, err := g.ListCommunities(context.Background())
	if err != nil || !slices.Equal(communities, []string{"g1"}) {
		t.Fatalf("communities = %v/%v", communities, err)
	}
}

func TestRoleOperations(t *testing.T) {
	s := &fakeSession{
		members: map[string]*discordgo.Member{"g1/u1": {Roles: []string{"r1", "r2"}}},
		roles:   []*discordgo.Role{{ID: "r1", Name: "Sunny"}},
	}
	g := newTestGateway(s)
	ctx := context.Background()

	held, err := g.ListHeldRoles(ctx, "g1", "u1")
	if err != nil || !slices.Equal(held, []string{"r1", "r2"}) {
		t.Fatalf("held = %v/%v", held, err)
	}
	if err := g.AddRole(ctx, "g1", "u1", "r3"); err != nil {
		t.Fatalf("add role: %v", err)
	}
	if err := g.RemoveRole(ctx, "g1", "u1", "r1"); err != nil {
		t.Fatalf("remove role: %v", err)
	}
	if !slices.Equal(s.added, []string{"u1:r3"}) || !slices.Equal(s.removed, []string{"u1:r1"}) {
		t.Fatalf("added = %v removed = %v", s.added, s.removed)
	}

	s.addErr = errors.New("missing permissions")
	if err := g.AddRole(ctx, "g1", "u1", "r4"); err == nil {
		t.Fatal("expected add role error")
	}

	roleID, created, err := g.CreateRoleIfAbsent(ctx, "g1", "sunny")
	if err != nil || created || roleID != "r1" {
		t.Fatalf("existing role = %q/%v/%v", roleID, created, err)
	}
	roleID, created, err = g.CreateRoleIfAbsent(ctx, "g1", "Gloomy")
	if err != nil || !created || roleID != "new-Gloomy" {
		t.Fatalf("new role = %q/%v/%v", roleID, created, err)
	}
}

func TestOpenRetriesUntilSessionConnects(t *testing.T) {
	s := &fakeSession{openErrs: []error{errors.New("gateway unavailable")}}
	g := newTestGateway(s)

	if err := g.open(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.opens != 2 {
		t.Fatalf("opens = %d, want 2", s.opens)
	}
}

func TestOpenRequiresToken(t *testing.T) {
	if _, err := Open(context.Background(), Config{Token: " "}); err == nil {
		t.Fatal("expected token error")
	}
}
