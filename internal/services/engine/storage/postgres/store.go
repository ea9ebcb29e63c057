// Package postgres provides a Postgres-backed engine storage implementation
// for deployments that share one database across engine instances.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/louisbranch/moodring/internal/platform/storage/migrate"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
	"github.com/louisbranch/moodring/internal/services/engine/storage/postgres/migrations"
)

// Store persists engine state in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func optionalMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return toMillis(value)
}

func fromOptionalMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return fromMillis(value)
}

// Open connects to Postgres and applies embedded migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// migrationBackend keeps migration bookkeeping in Postgres.
type migrationBackend struct {
	pool *pgxpool.Pool
}

func (b migrationBackend) EnsureTable(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrate.Table+` (
		name TEXT PRIMARY KEY,
		checksum TEXT NOT NULL DEFAULT '',
		applied_at BIGINT NOT NULL
	)`)
	return err
}

func (b migrationBackend) Applied(ctx context.Context) (map[string]string, error) {
	rows, err := b.pool.Query(ctx, `SELECT name, checksum FROM `+migrate.Table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	var name, sum string
	_, err = pgx.ForEachRow(rows, []any{&name, &sum}, func() error {
		out[name] = sum
		return nil
	})
	return out, err
}

// Apply records the migration first so concurrent engines racing on the same
// database serialize on the primary key.
func (b migrationBackend) Apply(ctx context.Context, m migrate.Migration) error {
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+migrate.Table+` (name, checksum, applied_at) VALUES ($1, $2, $3)`,
			m.Name, m.Checksum, toMillis(time.Now())); err != nil {
			return fmt.Errorf("record: %w", err)
		}
		_, err := tx.Exec(ctx, m.Up)
		return err
	})
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := migrate.Load(migrations.FS, "")
	if err != nil {
		return err
	}
	_, err = migrate.Run(ctx, migrationBackend{pool: pool}, files)
	return err
}

func encodeRoles(roles []string) ([]byte, error) {
	if roles == nil {
		roles = []string{}
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return nil, fmt.Errorf("encode applied roles: %w", err)
	}
	return data, nil
}

func decodeRoles(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var roles []string
	if err := json.Unmarshal(raw, &roles); err != nil {
		return nil, fmt.Errorf("decode applied roles: %w", err)
	}
	if len(roles) == 0 {
		return nil, nil
	}
	return roles, nil
}

const memberSelect = `SELECT s.community_id, s.member_id, s.mood, s.energy, s.activity,
	       s.last_role_update, s.last_chaos_event, s.chaos_role, s.chaos_expires, s.applied_roles,
	       COALESCE(p.voice_minutes, 0), COALESCE(p.online_minutes, 0),
	       COALESCE(p.peak_mood, 0), COALESCE(p.peak_energy, 0), COALESCE(p.peak_activity, 0)
	  FROM member_states s
	  LEFT JOIN member_progress p
	    ON p.community_id = s.community_id AND p.member_id = s.member_id`

func scanMember(row pgx.Row) (storage.MemberRecord, error) {
	var record storage.MemberRecord
	var lastRoleUpdate, lastChaosEvent, chaosExpires int64
	var appliedRoles []byte
	if err := row.Scan(
		&record.State.CommunityID,
		&record.State.MemberID,
		&record.State.Mood,
		&record.State.Energy,
		&record.State.Activity,
		&lastRoleUpdate,
		&lastChaosEvent,
		&record.State.ChaosRole,
		&chaosExpires,
		&appliedRoles,
		&record.Progress.VoiceMinutes,
		&record.Progress.OnlineMinutes,
		&record.Progress.PeakMood,
		&record.Progress.PeakEnergy,
		&record.Progress.PeakActivity,
	); err != nil {
		return storage.MemberRecord{}, err
	}
	roles, err := decodeRoles(appliedRoles)
	if err != nil {
		return storage.MemberRecord{}, err
	}
	record.State.AppliedRoles = roles
	record.State.LastRoleUpdate = fromOptionalMillis(lastRoleUpdate)
	record.State.LastChaosEvent = fromOptionalMillis(lastChaosEvent)
	record.State.ChaosExpires = fromOptionalMillis(chaosExpires)
	record.Progress.CommunityID = record.State.CommunityID
	record.Progress.MemberID = record.State.MemberID
	return record, nil
}

// GetMember returns one member record.
func (s *Store) GetMember(ctx context.Context, communityID, memberID string) (storage.MemberRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MemberRecord{}, err
	}
	communityID = strings.TrimSpace(communityID)
	memberID = strings.TrimSpace(memberID)
	if communityID == "" || memberID == "" {
		return storage.MemberRecord{}, fmt.Errorf("community and member ids are required")
	}
	record, err := scanMember(s.pool.QueryRow(ctx, memberSelect+` WHERE s.community_id = $1 AND s.member_id = $2`, communityID, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.MemberRecord{}, storage.ErrNotFound
		}
		return storage.MemberRecord{}, fmt.Errorf("get member: %w", err)
	}
	return record, nil
}

// PutMember upserts state and progress in one transaction.
func (s *Store) PutMember(ctx context.Context, record storage.MemberRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	state := record.State
	progress := record.Progress
	communityID := strings.TrimSpace(state.CommunityID)
	memberID := strings.TrimSpace(state.MemberID)
	if communityID == "" || memberID == "" {
		return fmt.Errorf("community and member ids are required")
	}
	roles, err := encodeRoles(state.AppliedRoles)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO member_states (
			   community_id, member_id, mood, energy, activity,
			   last_role_update, last_chaos_event, chaos_role, chaos_expires,
			   applied_roles, updated_at
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (community_id, member_id) DO UPDATE SET
			   mood = EXCLUDED.mood,
			   energy = EXCLUDED.energy,
			   activity = EXCLUDED.activity,
			   last_role_update = EXCLUDED.last_role_update,
			   last_chaos_event = EXCLUDED.last_chaos_event,
			   chaos_role = EXCLUDED.chaos_role,
			   chaos_expires = EXCLUDED.chaos_expires,
			   applied_roles = EXCLUDED.applied_roles,
			   updated_at = EXCLUDED.updated_at`,
			communityID, memberID, state.Mood, state.Energy, state.Activity,
			optionalMillis(state.LastRoleUpdate), optionalMillis(state.LastChaosEvent),
			strings.TrimSpace(state.ChaosRole), optionalMillis(state.ChaosExpires),
			string(roles), toMillis(time.Now()),
		); err != nil {
			return fmt.Errorf("put member state: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO member_progress (
			   community_id, member_id, voice_minutes, online_minutes,
			   peak_mood, peak_energy, peak_activity
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (community_id, member_id) DO UPDATE SET
			   voice_minutes = EXCLUDED.voice_minutes,
			   online_minutes = EXCLUDED.online_minutes,
			   peak_mood = EXCLUDED.peak_mood,
			   peak_energy = EXCLUDED.peak_energy,
			   peak_activity = EXCLUDED.peak_activity`,
			communityID, memberID, progress.VoiceMinutes, progress.OnlineMinutes,
			progress.PeakMood, progress.PeakEnergy, progress.PeakActivity,
		); err != nil {
			return fmt.Errorf("put member progress: %w", err)
		}
		return nil
	})
}

// ListMembers returns every member record of a community ordered by member id.
func (s *Store) ListMembers(ctx context.Context, communityID string) ([]storage.MemberRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return nil, fmt.Errorf("community id is required")
	}
	rows, err := s.pool.Query(ctx, memberSelect+` WHERE s.community_id = $1 ORDER BY s.member_id ASC`, communityID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var records []storage.MemberRecord
	for rows.Next() {
		record, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return records, nil
}

// ListCommunities returns the ids of every community with stored members.
func (s *Store) ListCommunities(ctx context.Context) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT community_id FROM member_states ORDER BY community_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	return ids, nil
}

const triggerSelect = `SELECT id, community_id, name, stat, modifier, created_at, expires_at, active FROM custom_triggers`

func scanTrigger(row pgx.Row) (domain.Trigger, error) {
	var trigger domain.Trigger
	var stat string
	var createdAt int64
	var expiresAt *int64
	if err := row.Scan(
		&trigger.ID,
		&trigger.CommunityID,
		&trigger.Name,
		&stat,
		&trigger.Modifier,
		&createdAt,
		&expiresAt,
		&trigger.Active,
	); err != nil {
		return domain.Trigger{}, err
	}
	parsed, err := domain.ParseStat(stat)
	if err != nil {
		return domain.Trigger{}, fmt.Errorf("trigger %s: %w", trigger.ID, err)
	}
	trigger.Stat = parsed
	trigger.CreatedAt = fromMillis(createdAt)
	if expiresAt != nil {
		value := fromMillis(*expiresAt)
		trigger.ExpiresAt = &value
	}
	return trigger, nil
}

// PutTrigger inserts or replaces one trigger.
func (s *Store) PutTrigger(ctx context.Context, trigger domain.Trigger) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(trigger.ID)
	communityID := strings.TrimSpace(trigger.CommunityID)
	name := strings.TrimSpace(trigger.Name)
	switch {
	case id == "":
		return fmt.Errorf("trigger id is required")
	case communityID == "":
		return fmt.Errorf("community id is required")
	case name == "":
		return fmt.Errorf("trigger name is required")
	case !trigger.Stat.Valid():
		return fmt.Errorf("trigger stat is required")
	}
	createdAt := trigger.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var expiresAt *int64
	if trigger.ExpiresAt != nil {
		value := toMillis(*trigger.ExpiresAt)
		expiresAt = &value
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO custom_triggers (id, community_id, name, stat, modifier, created_at, expires_at, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   community_id = EXCLUDED.community_id,
		   name = EXCLUDED.name,
		   stat = EXCLUDED.stat,
		   modifier = EXCLUDED.modifier,
		   created_at = EXCLUDED.created_at,
		   expires_at = EXCLUDED.expires_at,
		   active = EXCLUDED.active`,
		id, communityID, name, trigger.Stat.String(), trigger.Modifier, toMillis(createdAt), expiresAt, trigger.Active,
	); err != nil {
		return fmt.Errorf("put trigger: %w", err)
	}
	return nil
}

// GetTrigger returns one trigger by id.
func (s *Store) GetTrigger(ctx context.Context, id string) (domain.Trigger, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Trigger{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Trigger{}, fmt.Errorf("trigger id is required")
	}
	trigger, err := scanTrigger(s.pool.QueryRow(ctx, triggerSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trigger{}, storage.ErrNotFound
		}
		return domain.Trigger{}, fmt.Errorf("get trigger: %w", err)
	}
	return trigger, nil
}

// ListTriggers returns every trigger of a community, newest first.
func (s *Store) ListTriggers(ctx context.Context, communityID string) ([]domain.Trigger, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return nil, fmt.Errorf("community id is required")
	}
	return s.queryTriggers(ctx, triggerSelect+` WHERE community_id = $1 ORDER BY created_at DESC, id ASC`, communityID)
}

// ListActiveTriggers returns triggers that are active and unexpired at now.
func (s *Store) ListActiveTriggers(ctx context.Context, communityID string, now time.Time) ([]domain.Trigger, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return nil, fmt.Errorf("community id is required")
	}
	return s.queryTriggers(ctx,
		triggerSelect+` WHERE community_id = $1 AND active AND (expires_at IS NULL OR expires_at > $2)
		 ORDER BY created_at ASC, id ASC`,
		communityID, toMillis(now))
}

func (s *Store) queryTriggers(ctx context.Context, query string, args ...any) ([]domain.Trigger, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var triggers []domain.Trigger
	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("list triggers: %w", err)
		}
		triggers = append(triggers, trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return triggers, nil
}

// DeactivateTrigger reports whether the trigger changed from active to inactive.
func (s *Store) DeactivateTrigger(ctx context.Context, id string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("trigger id is required")
	}
	tag, err := s.pool.Exec(ctx, `UPDATE custom_triggers SET active = FALSE WHERE id = $1 AND active`, id)
	if err != nil {
		return false, fmt.Errorf("deactivate trigger: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var found int
	err = s.pool.QueryRow(ctx, `SELECT 1 FROM custom_triggers WHERE id = $1`, id).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, storage.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("deactivate trigger: %w", err)
	}
	return false, nil
}

// DeactivateExpiredTriggers flips every active trigger whose deadline is at or before now.
func (s *Store) DeactivateExpiredTriggers(ctx context.Context, now time.Time) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE custom_triggers SET active = FALSE
		  WHERE active AND expires_at IS NOT NULL AND expires_at <= $1`,
		toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("sweep expired triggers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertUnlock appends one achievement unlock, reporting false when the
// member already holds it.
func (s *Store) InsertUnlock(ctx context.Context, unlock domain.Unlock) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	communityID := strings.TrimSpace(unlock.CommunityID)
	memberID := strings.TrimSpace(unlock.MemberID)
	achievementID := strings.TrimSpace(unlock.AchievementID)
	if communityID == "" || memberID == "" || achievementID == "" {
		return false, fmt.Errorf("community, member and achievement ids are required")
	}
	unlockedAt := unlock.UnlockedAt
	if unlockedAt.IsZero() {
		unlockedAt = time.Now()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO achievement_unlocks (community_id, member_id, achievement_id, unlocked_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (community_id, member_id, achievement_id) DO NOTHING`,
		communityID, memberID, achievementID, toMillis(unlockedAt))
	if err != nil {
		return false, fmt.Errorf("insert unlock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListUnlocks returns a member's unlocks in unlock order.
func (s *Store) ListUnlocks(ctx context.Context, communityID, memberID string) ([]domain.Unlock, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	communityID = strings.TrimSpace(communityID)
	memberID = strings.TrimSpace(memberID)
	if communityID == "" || memberID == "" {
		return nil, fmt.Errorf("community and member ids are required")
	}
	rows, err := s.pool.Query(ctx,
		`SELECT community_id, member_id, achievement_id, unlocked_at
		   FROM achievement_unlocks
		  WHERE community_id = $1 AND member_id = $2
		  ORDER BY unlocked_at ASC, achievement_id ASC`,
		communityID, memberID)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	defer rows.Close()

	var unlocks []domain.Unlock
	for rows.Next() {
		var unlock domain.Unlock
		var unlockedAt int64
		if err := rows.Scan(&unlock.CommunityID, &unlock.MemberID, &unlock.AchievementID, &unlockedAt); err != nil {
			return nil, fmt.Errorf("list unlocks: %w", err)
		}
		unlock.UnlockedAt = fromMillis(unlockedAt)
		unlocks = append(unlocks, unlock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	return unlocks, nil
}

var _ storage.Store = (*Store)(nil)
