package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/moodring/internal/services/engine/domain"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
)

const triggerColumns = `id, community_id, name, stat, modifier, created_at, expires_at, active`

func scanTrigger(row rowScanner) (domain.Trigger, error) {
	var trigger domain.Trigger
	var stat string
	var createdAt int64
	var expiresAt sql.NullInt64
	var active int64
	if err := row.Scan(
		&trigger.ID,
		&trigger.CommunityID,
		&trigger.Name,
		&stat,
		&trigger.Modifier,
		&createdAt,
		&expiresAt,
		&active,
	); err != nil {
		return domain.Trigger{}, err
	}
	parsed, err := domain.ParseStat(stat)
	if err != nil {
		return domain.Trigger{}, fmt.Errorf("trigger %s: %w", trigger.ID, err)
	}
	trigger.Stat = parsed
	trigger.CreatedAt = fromMillis(createdAt)
	if expiresAt.Valid {
		value := fromMillis(expiresAt.Int64)
		trigger.ExpiresAt = &value
	}
	trigger.Active = active != 0
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
	if id == "" {
		return fmt.Errorf("trigger id is required")
	}
	if communityID == "" {
		return fmt.Errorf("community id is required")
	}
	if name == "" {
		return fmt.Errorf("trigger name is required")
	}
	if !trigger.Stat.Valid() {
		return fmt.Errorf("trigger stat is required")
	}
	createdAt := trigger.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var expiresAt sql.NullInt64
	if trigger.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: toMillis(*trigger.ExpiresAt), Valid: true}
	}
	active := 0
	if trigger.Active {
		active = 1
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO custom_triggers (`+triggerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   community_id = excluded.community_id,
		   name = excluded.name,
		   stat = excluded.stat,
		   modifier = excluded.modifier,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at,
		   active = excluded.active`,
		id,
		communityID,
		name,
		trigger.Stat.String(),
		trigger.Modifier,
		toMillis(createdAt),
		expiresAt,
		active,
	)
	if err != nil {
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
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+triggerColumns+` FROM custom_triggers WHERE id = ?`, id)
	trigger, err := scanTrigger(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	return s.queryTriggers(
		ctx,
		`SELECT `+triggerColumns+`
		   FROM custom_triggers
		  WHERE community_id = ?
		  ORDER BY created_at DESC, id ASC`,
		communityID,
	)
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
	return s.queryTriggers(
		ctx,
		`SELECT `+triggerColumns+`
		   FROM custom_triggers
		  WHERE community_id = ?
		    AND active = 1
		    AND (expires_at IS NULL OR expires_at > ?)
		  ORDER BY created_at ASC, id ASC`,
		communityID,
		toMillis(now),
	)
}

func (s *Store) queryTriggers(ctx context.Context, query string, args ...any) ([]domain.Trigger, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
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
	result, err := s.sqlDB.ExecContext(ctx, `UPDATE custom_triggers SET active = 0 WHERE id = ? AND active = 1`, id)
	if err != nil {
		return false, fmt.Errorf("deactivate trigger: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate trigger: %w", err)
	}
	if affected > 0 {
		return true, nil
	}
	var found int
	err = s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM custom_triggers WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
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
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE custom_triggers
		    SET active = 0
		  WHERE active = 1 AND expires_at IS NOT NULL AND expires_at <= ?`,
		toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired triggers: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired triggers: %w", err)
	}
	return affected, nil
}
