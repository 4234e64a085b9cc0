// Package model defines the data structures used throughout the application.
package model

import "time"

// EngagementRecord is the per-guild, per-user engagement aggregate.
//
// Exactly one record exists per (guild, user) pair. Records are created lazily
// on the first accepted message and are never deleted. Weekly points are
// zeroed on each weekly cycle, lifetime points only grow (except through an
// administrative correction, which may pass a negative adjustment).
type EngagementRecord struct {
	GuildID        string    `json:"guildId"`
	UserID         string    `json:"userId"`
	Username       string    `json:"username"`
	LifetimePoints int       `json:"lifetimePoints"`
	WeeklyPoints   int       `json:"weeklyPoints"`
	TotalTakeaways int       `json:"totalTakeaways"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TakeawayEntry is one accepted (or administratively logged) message.
//
// Entries are immutable once written; they form the append-only audit trail
// that reconciles with the counters on EngagementRecord. PointsAwarded is the
// value computed at scoring time and is never recomputed retroactively.
type TakeawayEntry struct {
	ID            string    `json:"id"`
	GuildID       string    `json:"guildId"`
	UserID        string    `json:"userId"`
	MessageID     string    `json:"messageId"` // "manual" for administrative adjustments
	ChannelID     string    `json:"channelId"`
	Content       string    `json:"content"` // truncated copy of the message text
	PointsAwarded int       `json:"pointsAwarded"`
	CreatedAt     time.Time `json:"createdAt"`
}

// WeeklyLeaderboardEntry is one row of a weekly ranking.
type WeeklyLeaderboardEntry struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	WeeklyPoints int    `json:"weeklyPoints"`
}

// AllTimeLeaderboardEntry is one row of the lifetime ranking.
type AllTimeLeaderboardEntry struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	LifetimePoints int    `json:"lifetimePoints"`
	TotalTakeaways int    `json:"totalTakeaways"`
}

// WeeklyLeaderboardSnapshot is the immutable archival copy of the top-ranked
// entries captured at the moment of a weekly reset.
type WeeklyLeaderboardSnapshot struct {
	ID        string                   `json:"id"`
	GuildID   string                   `json:"guildId"`
	WeekStart time.Time                `json:"weekStart"`
	WeekEnd   time.Time                `json:"weekEnd"`
	Entries   []WeeklyLeaderboardEntry `json:"entries"`
	CreatedAt time.Time                `json:"createdAt"`
}

// EngagementStats summarises a guild's activity.
//
// ActiveThisWeek counts records with weekly points above zero, and
// AvgWeeklyPoints averages over that same active subset (rounded to the
// nearest integer, 0 when nobody is active).
type EngagementStats struct {
	TotalUsers      int `json:"totalUsers"`
	ActiveThisWeek  int `json:"activeThisWeek"`
	TotalTakeaways  int `json:"totalTakeaways"`
	AvgWeeklyPoints int `json:"avgWeeklyPoints"`
}
