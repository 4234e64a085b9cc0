// Package repository defines the storage contracts consumed by the service
// layer. The sqlite subpackage provides the durable implementation; tests
// substitute in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/bookclub-bot/internal/model"
)

// EngagementRepository is the aggregate store for the scoring pipeline:
// per-user counters, the append-only takeaway log, leaderboard queries and
// the weekly reset.
//
// Implementations must provide the atomicity the pipeline relies on:
//   - AwardTakeaway and AddManualPoints write the log entry and the counter
//     update as a single transaction; on failure neither is applied.
//   - AwardTakeaway performs the "first post today" check inside that same
//     transaction, so concurrent awards for one user cannot both win the
//     daily bonus.
//   - ResetWeeklyCycle snapshots and zeroes in one transaction, a
//     point-in-time cut that neither loses nor double-counts in-flight
//     awards.
type EngagementRepository interface {
	// EnsureRecord creates the (guild, user) engagement record with zero
	// counters if it does not exist yet, and returns the current record.
	// An existing record is left untouched (the stored username wins).
	EnsureRecord(ctx context.Context, guildID, userID, username string) (*model.EngagementRecord, error)

	// GetRecord returns the engagement record, or apperror.ErrNotFound.
	GetRecord(ctx context.Context, guildID, userID string) (*model.EngagementRecord, error)

	// AwardTakeaway appends entry and applies its points to the user's
	// lifetime and weekly counters, incrementing the takeaway count and
	// refreshing last-activity. If dailyBonus > 0 and entry is the user's
	// first of its calendar day (UTC) in this guild, dailyBonus is added to
	// entry.PointsAwarded before the write; the returned bool reports
	// whether that happened. Sets entry.ID.
	AwardTakeaway(ctx context.Context, entry *model.TakeawayEntry, dailyBonus int) (bool, error)

	// AddManualPoints applies an administrative adjustment to lifetime
	// points only (weekly points are untouched) and appends the given audit
	// entry in the same transaction. Sets entry.ID.
	AddManualPoints(ctx context.Context, entry *model.TakeawayEntry) error

	WeeklyLeaderboard(ctx context.Context, guildID string, limit int) ([]model.WeeklyLeaderboardEntry, error)
	AllTimeLeaderboard(ctx context.Context, guildID string, limit int) ([]model.AllTimeLeaderboardEntry, error)
	EngagementStats(ctx context.Context, guildID string) (*model.EngagementStats, error)

	// ResetWeeklyCycle captures the current top-N weekly leaderboard into an
	// archival snapshot with window [now-7d, now], then zeroes every weekly
	// counter in the guild. The snapshot is persisted only when it has
	// entries; the returned value always describes the cut.
	ResetWeeklyCycle(ctx context.Context, guildID string, now time.Time, topN int) (*model.WeeklyLeaderboardSnapshot, error)
}

// BookRepository stores each guild's current reading selection.
type BookRepository interface {
	// SetCurrentBook deactivates the guild's previous selection and inserts
	// book as the new active one. Sets book.ID and book.StartDate.
	SetCurrentBook(ctx context.Context, book *model.Book) error

	// CurrentBook returns the guild's active book, or apperror.ErrNotFound.
	CurrentBook(ctx context.Context, guildID string) (*model.Book, error)

	// UpdateCurrentChapter updates the active book's chapter marker.
	// Returns apperror.ErrNotFound when the guild has no active book.
	UpdateCurrentChapter(ctx context.Context, guildID, chapter string) error
}

// SettingsRepository stores per-guild bot configuration.
type SettingsRepository interface {
	// EnsureGuild creates the settings row if absent.
	EnsureGuild(ctx context.Context, guildID string) error

	SetReminderChannel(ctx context.Context, guildID, channelID string) error
	SetLeaderboardChannel(ctx context.Context, guildID, channelID string) error
	SetWelcomeChannel(ctx context.Context, guildID, channelID string) error
	SetModeratorRole(ctx context.Context, guildID, roleID string) error

	// GetSettings returns the guild's settings, or apperror.ErrNotFound.
	GetSettings(ctx context.Context, guildID string) (*model.GuildSettings, error)

	// ListGuilds returns the settings of every known guild, used by the
	// scheduler to fan out reminders and weekly resets.
	ListGuilds(ctx context.Context) ([]model.GuildSettings, error)
}
