package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/moodring/internal/services/engine/storage"
)

const memberColumns = `s.community_id, s.member_id, s.mood, s.energy, s.activity,
		        s.last_role_update, s.last_chaos_event, s.chaos_role, s.chaos_expires, s.applied_roles,
		        COALESCE(p.voice_minutes, 0), COALESCE(p.online_minutes, 0),
		        COALESCE(p.peak_mood, 0), COALESCE(p.peak_energy, 0), COALESCE(p.peak_activity, 0)`

const memberFrom = `FROM member_states s
		   LEFT JOIN member_progress p
		     ON p.community_id = s.community_id AND p.member_id = s.member_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (storage.MemberRecord, error) {
	var record storage.MemberRecord
	var lastRoleUpdate, lastChaosEvent, chaosExpires int64
	var appliedRoles string
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
	if communityID == "" {
		return storage.MemberRecord{}, fmt.Errorf("community id is required")
	}
	if memberID == "" {
		return storage.MemberRecord{}, fmt.Errorf("member id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+memberColumns+`
		   `+memberFrom+`
		  WHERE s.community_id = ? AND s.member_id = ?`,
		communityID,
		memberID,
	)
	record, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	if communityID == "" {
		return fmt.Errorf("community id is required")
	}
	if memberID == "" {
		return fmt.Errorf("member id is required")
	}
	roles, err := encodeRoles(state.AppliedRoles)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO member_states (
		   community_id, member_id, mood, energy, activity,
		   last_role_update, last_chaos_event, chaos_role, chaos_expires,
		   applied_roles, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (community_id, member_id) DO UPDATE SET
		   mood = excluded.mood,
		   energy = excluded.energy,
		   activity = excluded.activity,
		   last_role_update = excluded.last_role_update,
		   last_chaos_event = excluded.last_chaos_event,
		   chaos_role = excluded.chaos_role,
		   chaos_expires = excluded.chaos_expires,
		   applied_roles = excluded.applied_roles,
		   updated_at = excluded.updated_at`,
		communityID,
		memberID,
		state.Mood,
		state.Energy,
		state.Activity,
		optionalMillis(state.LastRoleUpdate),
		optionalMillis(state.LastChaosEvent),
		strings.TrimSpace(state.ChaosRole),
		optionalMillis(state.ChaosExpires),
		roles,
		toMillis(time.Now()),
	); err != nil {
		return fmt.Errorf("put member state: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO member_progress (
		   community_id, member_id, voice_minutes, online_minutes,
		   peak_mood, peak_energy, peak_activity
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (community_id, member_id) DO UPDATE SET
		   voice_minutes = excluded.voice_minutes,
		   online_minutes = excluded.online_minutes,
		   peak_mood = excluded.peak_mood,
		   peak_energy = excluded.peak_energy,
		   peak_activity = excluded.peak_activity`,
		communityID,
		memberID,
		progress.VoiceMinutes,
		progress.OnlineMinutes,
		progress.PeakMood,
		progress.PeakEnergy,
		progress.PeakActivity,
	); err != nil {
		return fmt.Errorf("put member progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit member: %w", err)
	}
	return nil
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

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+memberColumns+`
		   `+memberFrom+`
		  WHERE s.community_id = ?
		  ORDER BY s.member_id ASC`,
		communityID,
	)
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
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT DISTINCT community_id FROM member_states ORDER BY community_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list communities: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	return ids, nil
}
