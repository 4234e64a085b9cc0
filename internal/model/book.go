package model

import "time"

// Book is a guild's reading selection. At most one book per guild is active
// at a time; setting a new one deactivates the previous selection rather
// than deleting it, so the reading history is preserved.
type Book struct {
	ID             string    `json:"id"`
	GuildID        string    `json:"guildId"`
	Title          string    `json:"title"`
	Author         string    `json:"author"`
	Description    string    `json:"description"`
	Benefits       string    `json:"benefits"`
	CurrentChapter string    `json:"currentChapter"`
	StartDate      time.Time `json:"startDate"`
	Active         bool      `json:"active"`
}

// GuildSettings holds per-guild bot configuration: which channels receive
// reminders, leaderboard posts and welcome messages, and which role is
// allowed to manage the book club. Empty string means "not configured".
type GuildSettings struct {
	GuildID              string    `json:"guildId"`
	ReminderChannelID    string    `json:"reminderChannelId"`
	LeaderboardChannelID string    `json:"leaderboardChannelId"`
	WelcomeChannelID     string    `json:"welcomeChannelId"`
	ModeratorRoleID      string    `json:"moderatorRoleId"`
	CreatedAt            time.Time `json:"createdAt"`
}
