// Package discord implements the engine's presence and role collaborators on
// a Discord bot session. Presence and voice state come from the session's
// state cache; role changes go through the REST API.
package discord

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/moodring/internal/platform/timeouts"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

// Intents are the gateway intents the engine needs.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsGuildVoiceStates

// session is the subset of *discordgo.Session the gateway calls.
type session interface {
	Open() error
	Close() error
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
}

// Config controls the Discord connection.
type Config struct {
	Token string
	// OpenTimeout caps retries of the initial connection.
	OpenTimeout time.Duration
	Logf        func(string, ...any)
}

// Gateway is a Discord-backed community gateway.
type Gateway struct {
	session session
	state   *discordgo.State
	logf    func(string, ...any)
}

// Open connects a bot session, retrying with exponential backoff until
// cfg.OpenTimeout elapses.
func Open(ctx context.Context, cfg Config) (*Gateway, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.TrackPresences = true
	s.State.TrackVoice = true
	s.State.TrackMembers = true
	s.State.TrackRoles = true

	g := newGateway(s, s.State, cfg.Logf)
	if err := g.open(ctx, cfg.OpenTimeout); err != nil {
		return nil, err
	}
	return g, nil
}

func newGateway(s session, state *discordgo.State, logf func(string, ...any)) *Gateway {
	if logf == nil {
		logf = log.Printf
	}
	return &Gateway{session: s, state: state, logf: logf}
}

func (g *Gateway) open(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = timeouts.GatewayOpen
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, g.session.Open()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.logf("discord gateway open failed, retrying in %s: %v", next, err)
		}),
	)
	if err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	return nil
}

// Close disconnects the session.
func (g *Gateway) Close() error {
	if g == nil || g.session == nil {
		return nil
	}
	return g.session.Close()
}

// ListCommunities returns the ids of every guild in the state cache.
func (g *Gateway) ListCommunities(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.state.RLock()
	defer g.state.RUnlock()
	ids := make([]string, 0, len(g.state.Guilds))
	for _, guild := range g.state.Guilds {
		ids = append(ids, guild.ID)
	}
	slices.Sort(ids)
	return ids, nil
}

// ListPresent snapshots the cached presences of a guild joined with voice
// state and the member's bot flag.
func (g *Gateway) ListPresent(ctx context.Context, communityID string) ([]domain.Presence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.state.RLock()
	defer g.state.RUnlock()

	var guild *discordgo.Guild
	for _, candidate := range g.state.Guilds {
		if candidate.ID == communityID {
			guild = candidate
			break
		}
	}
	if guild == nil {
		return nil, fmt.Errorf("guild %s not in state cache", communityID)
	}

	bots := make(map[string]bool, len(guild.Members))
	for _, member := range guild.Members {
		if member != nil && member.User != nil {
			bots[member.User.ID] = member.User.Bot
		}
	}
	voice := make(map[string]*discordgo.VoiceState, len(guild.VoiceStates))
	for _, vs := range guild.VoiceStates {
		if vs != nil {
			voice[vs.UserID] = vs
		}
	}

	out := make([]domain.Presence, 0, len(guild.Presences))
	for _, p := range guild.Presences {
		if p == nil || p.User == nil || p.User.ID == "" {
			continue
		}
		presence := domain.Presence{
			MemberID: p.User.ID,
			Bot:      p.User.Bot || bots[p.User.ID],
			Status:   domain.Status(p.Status),
		}
		if vs, ok := voice[p.User.ID]; ok && vs.ChannelID != "" {
			presence.VoiceChannelID = vs.ChannelID
			presence.SelfMuted = vs.SelfMute
			presence.SelfDeafened = vs.SelfDeaf
		}
		out = append(out, presence)
	}
	slices.SortFunc(out, func(a, b domain.Presence) int { return strings.Compare(a.MemberID, b.MemberID) })
	return out, nil
}

// ListHeldRoles fetches the member's current roles from the REST API.
func (g *Gateway) ListHeldRoles(ctx context.Context, communityID, memberID string) ([]string, error) {
	member, err := g.session.GuildMember(communityID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get guild member: %w", err)
	}
	return slices.Clone(member.Roles), nil
}

// AddRole grants a role to a member.
func (g *Gateway) AddRole(ctx context.Context, communityID, memberID, roleID string) error {
	if err := g.session.GuildMemberRoleAdd(communityID, memberID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add guild member role: %w", err)
	}
	return nil
}

// RemoveRole revokes a role from a member.
func (g *Gateway) RemoveRole(ctx context.Context, communityID, memberID, roleID string) error {
	if err := g.session.GuildMemberRoleRemove(communityID, memberID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("remove guild member role: %w", err)
	}
	return nil
}

// CreateRoleIfAbsent returns the id of the guild role named name, creating it
// when missing. Name matching ignores case.
func (g *Gateway) CreateRoleIfAbsent(ctx context.Context, communityID, name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, fmt.Errorf("role name is required")
	}
	roles, err := g.session.GuildRoles(communityID, discordgo.WithContext(ctx))
	if err != nil {
		return "", false, fmt.Errorf("list guild roles: %w", err)
	}
	for _, role := range roles {
		if role != nil && strings.EqualFold(role.Name, name) {
			return role.ID, false, nil
		}
	}
	role, err := g.session.GuildRoleCreate(communityID, &discordgo.RoleParams{Name: name}, discordgo.WithContext(ctx))
	if err != nil {
		return "", false, fmt.Errorf("create guild role: %w", err)
	}
	return role.ID, true, nil
}
