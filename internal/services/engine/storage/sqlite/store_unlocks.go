package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

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

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO achievement_unlocks (community_id, member_id, achievement_id, unlocked_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (community_id, member_id, achievement_id) DO NOTHING`,
		communityID,
		memberID,
		achievementID,
		toMillis(unlockedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert unlock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert unlock: %w", err)
	}
	return affected == 1, nil
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

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT community_id, member_id, achievement_id, unlocked_at
		   FROM achievement_unlocks
		  WHERE community_id = ? AND member_id = ?
		  ORDER BY unlocked_at ASC, achievement_id ASC`,
		communityID,
		memberID,
	)
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
