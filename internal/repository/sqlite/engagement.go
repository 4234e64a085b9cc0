package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/bookclub-bot/internal/apperror"
	"github.com/sakif/bookclub-bot/internal/model"
	"github.com/sakif/bookclub-bot/internal/repository"
)

// Compile-time check that *DB satisfies the interface.
var _ repository.EngagementRepository = (*DB)(nil)

// EnsureRecord creates the engagement record with zero counters if it does
// not exist, then returns the current state. ON CONFLICT DO NOTHING keeps
// this a single race-free statement: two concurrent calls both succeed and
// both read the same row.
func (db *DB) EnsureRecord(ctx context.Context, guildID, userID, username string) (*model.EngagementRecord, error) {
	now := toMillis(time.Now())

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_engagement (guild_id, user_id, username, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (guild_id, user_id) DO NOTHING
	`, guildID, userID, username, now)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ensuring engagement record: %w", err)
	}

	return db.GetRecord(ctx, guildID, userID)
}

// GetRecord retrieves the engagement record for a (guild, user) pair.
func (db *DB) GetRecord(ctx context.Context, guildID, userID string) (*model.EngagementRecord, error) {
	var (
		rec          model.EngagementRecord
		lastActivity int64
		createdAt    int64
	)

	err := db.conn.QueryRowContext(ctx, `
		SELECT guild_id, user_id, username, points, weekly_points,
		       total_takeaways, last_activity, created_at
		FROM user_engagement
		WHERE guild_id = ? AND user_id = ?
	`, guildID, userID).Scan(
		&rec.GuildID, &rec.UserID, &rec.Username, &rec.LifetimePoints,
		&rec.WeeklyPoints, &rec.TotalTakeaways, &lastActivity, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("engagement record", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting engagement record: %w", err)
	}

	rec.LastActivityAt = fromMillis(lastActivity)
	rec.CreatedAt = fromMillis(createdAt)
	return &rec, nil
}

// AwardTakeaway runs the whole award as one transaction: the daily-bonus
// check, the takeaway insert and the counter update either all apply or none
// do. The transaction starts immediate (see the DSN in New), so it holds the
// write lock before the daily-bonus count runs; two concurrent awards for
// the same user cannot both observe "no post today", the second transaction
// queues behind the first and sees its takeaway row.
func (db *DB) AwardTakeaway(ctx context.Context, entry *model.TakeawayEntry, dailyBonus int) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: beginning award transaction: %w", err)
	}
	defer tx.Rollback()

	firstToday := false
	if dailyBonus > 0 {
		// Calendar-day window in UTC around the entry's own timestamp.
		dayStart := entry.CreatedAt.UTC().Truncate(24 * time.Hour)
		dayEnd := dayStart.Add(24 * time.Hour)

		var count int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM takeaways
			WHERE guild_id = ? AND user_id = ?
			  AND created_at >= ? AND created_at < ?
		`, entry.GuildID, entry.UserID, toMillis(dayStart), toMillis(dayEnd)).Scan(&count)
		if err != nil {
			return false, fmt.Errorf("sqlite: counting takeaways today: %w", err)
		}

		if count == 0 {
			firstToday = true
			entry.PointsAwarded += dailyBonus
		}
	}

	entry.ID = xid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO takeaways (id, guild_id, user_id, message_id, channel_id,
		                       content, points_awarded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.GuildID, entry.UserID, entry.MessageID, entry.ChannelID,
		entry.Content, entry.PointsAwarded, toMillis(entry.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("sqlite: inserting takeaway: %w", err)
	}

	// EnsureRecord normally ran before this, but the upsert keeps the award
	// correct even for a brand-new user.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_engagement (guild_id, user_id, username, points,
		                             weekly_points, total_takeaways,
		                             last_activity, created_at)
		VALUES (?, ?, '', ?, ?, 1, ?, ?)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			points          = points + excluded.points,
			weekly_points   = weekly_points + excluded.weekly_points,
			total_takeaways = total_takeaways + 1,
			last_activity   = excluded.last_activity
	`, entry.GuildID, entry.UserID, entry.PointsAwarded, entry.PointsAwarded,
		toMillis(entry.CreatedAt), toMillis(entry.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("sqlite: updating engagement counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: committing award transaction: %w", err)
	}
	return firstToday, nil
}

// AddManualPoints applies an administrative adjustment. Only lifetime points
// move; the weekly race and the takeaway count are unaffected. The audit
// entry lands in the same transaction as the counter update.
func (db *DB) AddManualPoints(ctx context.Context, entry *model.TakeawayEntry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning manual points transaction: %w", err)
	}
	defer tx.Rollback()

	entry.ID = xid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO takeaways (id, guild_id, user_id, message_id, channel_id,
		                       content, points_awarded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.GuildID, entry.UserID, entry.MessageID, entry.ChannelID,
		entry.Content, entry.PointsAwarded, toMillis(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: inserting manual points entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_engagement (guild_id, user_id, username, points,
		                             last_activity, created_at)
		VALUES (?, ?, '', ?, ?, ?)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			points = points + excluded.points
	`, entry.GuildID, entry.UserID, entry.PointsAwarded,
		toMillis(entry.CreatedAt), toMillis(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: updating lifetime points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing manual points transaction: %w", err)
	}
	return nil
}

// WeeklyLeaderboard ranks users with weekly points above zero. Ties rank by
// row id, which is insertion order of the engagement record.
func (db *DB) WeeklyLeaderboard(ctx context.Context, guildID string, limit int) ([]model.WeeklyLeaderboardEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, username, weekly_points
		FROM user_engagement
		WHERE guild_id = ? AND weekly_points > 0
		ORDER BY weekly_points DESC, id ASC
		LIMIT ?
	`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying weekly leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.WeeklyLeaderboardEntry
	for rows.Next() {
		var e model.WeeklyLeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.WeeklyPoints); err != nil {
			return nil, fmt.Errorf("sqlite: scanning weekly leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating weekly leaderboard rows: %w", err)
	}
	return entries, nil
}

// AllTimeLeaderboard ranks users by lifetime points.
func (db *DB) AllTimeLeaderboard(ctx context.Context, guildID string, limit int) ([]model.AllTimeLeaderboardEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, username, points, total_takeaways
		FROM user_engagement
		WHERE guild_id = ? AND points > 0
		ORDER BY points DESC, id ASC
		LIMIT ?
	`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying all-time leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.AllTimeLeaderboardEntry
	for rows.Next() {
		var e model.AllTimeLeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.LifetimePoints, &e.TotalTakeaways); err != nil {
			return nil, fmt.Errorf("sqlite: scanning all-time leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating all-time leaderboard rows: %w", err)
	}
	return entries, nil
}

// EngagementStats aggregates guild-wide activity counters. TotalTakeaways
// sums the per-user counters, which only accepted messages increment, so
// manual point adjustments never inflate it even though they leave audit
// rows in the takeaways table.
func (db *DB) EngagementStats(ctx context.Context, guildID string) (*model.EngagementStats, error) {
	var stats model.EngagementStats

	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_takeaways), 0)
		FROM user_engagement
		WHERE guild_id = ?
	`, guildID).Scan(&stats.TotalUsers, &stats.TotalTakeaways)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating engagement totals: %w", err)
	}

	var avg float64
	err = db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(weekly_points), 0)
		FROM user_engagement
		WHERE guild_id = ? AND weekly_points > 0
	`, guildID).Scan(&stats.ActiveThisWeek, &avg)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating weekly activity: %w", err)
	}

	stats.AvgWeeklyPoints = int(math.Round(avg))
	return &stats, nil
}

// ResetWeeklyCycle snapshots the top weekly performers and zeroes every
// weekly counter, all in one transaction. The cut is point-in-time: an award
// committing after this transaction lands entirely in the next week.
func (db *DB) ResetWeeklyCycle(ctx context.Context, guildID string, now time.Time, topN int) (*model.WeeklyLeaderboardSnapshot, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning weekly reset transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT user_id, username, weekly_points
		FROM user_engagement
		WHERE guild_id = ? AND weekly_points > 0
		ORDER BY weekly_points DESC, id ASC
		LIMIT ?
	`, guildID, topN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying weekly standings: %w", err)
	}

	var entries []model.WeeklyLeaderboardEntry
	for rows.Next() {
		var e model.WeeklyLeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.WeeklyPoints); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning weekly standings row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("sqlite: reading weekly standings: %w", err)
	}

	snapshot := &model.WeeklyLeaderboardSnapshot{
		GuildID:   guildID,
		WeekStart: now.UTC().Add(-7 * 24 * time.Hour),
		WeekEnd:   now.UTC(),
		Entries:   entries,
		CreatedAt: now.UTC(),
	}

	// A week with no activity leaves no archive row behind.
	if len(entries) > 0 {
		snapshot.ID = xid.New().String()

		data, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding weekly snapshot: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO weekly_leaderboards (id, guild_id, week_start, week_end,
			                                 leaderboard_data, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, snapshot.ID, guildID, toMillis(snapshot.WeekStart),
			toMillis(snapshot.WeekEnd), string(data), toMillis(snapshot.CreatedAt))
		if err != nil {
			return nil, fmt.Errorf("sqlite: archiving weekly snapshot: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE user_engagement SET weekly_points = 0 WHERE guild_id = ?
	`, guildID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: zeroing weekly points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing weekly reset transaction: %w", err)
	}
	return snapshot, nil
}
