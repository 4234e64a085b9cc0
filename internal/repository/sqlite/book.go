package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/bookclub-bot/internal/apperror"
	"github.com/sakif/bookclub-bot/internal/model"
	"github.com/sakif/bookclub-bot/internal/repository"
)

var (
	_ repository.BookRepository     = (*DB)(nil)
	_ repository.SettingsRepository = (*DB)(nil)
)

// SetCurrentBook deactivates the guild's previous selection and inserts the
// new one in a single transaction, so the guild never has two active books.
func (db *DB) SetCurrentBook(ctx context.Context, book *model.Book) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning set book transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE current_books SET is_active = 0
		WHERE guild_id = ? AND is_active = 1
	`, book.GuildID)
	if err != nil {
		return fmt.Errorf("sqlite: deactivating previous book: %w", err)
	}

	book.ID = xid.New().String()
	book.StartDate = time.Now().UTC()
	book.Active = true

	_, err = tx.ExecContext(ctx, `
		INSERT INTO current_books (id, guild_id, title, author, description,
		                           benefits, current_chapter, start_date, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
	`, book.ID, book.GuildID, book.Title, book.Author, book.Description,
		book.Benefits, book.CurrentChapter, toMillis(book.StartDate))
	if err != nil {
		return fmt.Errorf("sqlite: inserting book: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing set book transaction: %w", err)
	}
	return nil
}

// CurrentBook returns the guild's active reading selection.
func (db *DB) CurrentBook(ctx context.Context, guildID string) (*model.Book, error) {
	var (
		book      model.Book
		startDate int64
		active    int
	)

	err := db.conn.QueryRowContext(ctx, `
		SELECT id, guild_id, title, author, description, benefits,
		       current_chapter, start_date, is_active
		FROM current_books
		WHERE guild_id = ? AND is_active = 1
	`, guildID).Scan(
		&book.ID, &book.GuildID, &book.Title, &book.Author, &book.Description,
		&book.Benefits, &book.CurrentChapter, &startDate, &active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("current book", guildID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting current book: %w", err)
	}

	book.StartDate = fromMillis(startDate)
	book.Active = active == 1
	return &book, nil
}

// UpdateCurrentChapter moves the active book's chapter marker.
func (db *DB) UpdateCurrentChapter(ctx context.Context, guildID, chapter string) error {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE current_books SET current_chapter = ?
		WHERE guild_id = ? AND is_active = 1
	`, chapter, guildID)
	if err != nil {
		return fmt.Errorf("sqlite: updating current chapter: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking chapter update: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("current book", guildID)
	}
	return nil
}

// ===== GUILD SETTINGS =====

func (db *DB) EnsureGuild(ctx context.Context, guildID string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, created_at)
		VALUES (?, ?)
		ON CONFLICT (guild_id) DO NOTHING
	`, guildID, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("sqlite: ensuring guild settings: %w", err)
	}
	return nil
}

// setSettingsColumn updates one configuration column, creating the settings
// row first if the guild is new.
func (db *DB) setSettingsColumn(ctx context.Context, guildID, column, value string) error {
	if err := db.EnsureGuild(ctx, guildID); err != nil {
		return err
	}

	// column comes from a fixed set of callers below, never from user input.
	query := fmt.Sprintf("UPDATE guild_settings SET %s = ? WHERE guild_id = ?", column)
	if _, err := db.conn.ExecContext(ctx, query, value, guildID); err != nil {
		return fmt.Errorf("sqlite: updating %s: %w", column, err)
	}
	return nil
}

func (db *DB) SetReminderChannel(ctx context.Context, guildID, channelID string) error {
	return db.setSettingsColumn(ctx, guildID, "reminder_channel_id", channelID)
}

func (db *DB) SetLeaderboardChannel(ctx context.Context, guildID, channelID string) error {
	return db.setSettingsColumn(ctx, guildID, "leaderboard_channel_id", channelID)
}

func (db *DB) SetWelcomeChannel(ctx context.Context, guildID, channelID string) error {
	return db.setSettingsColumn(ctx, guildID, "welcome_channel_id", channelID)
}

func (db *DB) SetModeratorRole(ctx context.Context, guildID, roleID string) error {
	return db.setSettingsColumn(ctx, guildID, "moderator_role_id", roleID)
}

func (db *DB) GetSettings(ctx context.Context, guildID string) (*model.GuildSettings, error) {
	var (
		s         model.GuildSettings
		createdAt int64
	)

	err := db.conn.QueryRowContext(ctx, `
		SELECT guild_id, reminder_channel_id, leaderboard_channel_id,
		       welcome_channel_id, moderator_role_id, created_at
		FROM guild_settings
		WHERE guild_id = ?
	`, guildID).Scan(
		&s.GuildID, &s.ReminderChannelID, &s.LeaderboardChannelID,
		&s.WelcomeChannelID, &s.ModeratorRoleID, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("guild settings", guildID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting guild settings: %w", err)
	}

	s.CreatedAt = fromMillis(createdAt)
	return &s, nil
}

func (db *DB) ListGuilds(ctx context.Context) ([]model.GuildSettings, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT guild_id, reminder_channel_id, leaderboard_channel_id,
		       welcome_channel_id, moderator_role_id, created_at
		FROM guild_settings
		ORDER BY guild_id
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing guilds: %w", err)
	}
	defer rows.Close()

	var guilds []model.GuildSettings
	for rows.Next() {
		var (
			s         model.GuildSettings
			createdAt int64
		)
		if err := rows.Scan(&s.GuildID, &s.ReminderChannelID, &s.LeaderboardChannelID,
			&s.WelcomeChannelID, &s.ModeratorRoleID, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning guild settings row: %w", err)
		}
		s.CreatedAt = fromMillis(createdAt)
		guilds = append(guilds, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating guild settings rows: %w", err)
	}
	return guilds, nil
}
