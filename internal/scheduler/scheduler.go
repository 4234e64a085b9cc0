// Package scheduler drives the periodic jobs: the daily reading reminder
// and the Sunday weekly wrap-up that posts the leaderboard and resets the
// weekly counters.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sakif/bookclub-bot/internal/engagement"
	"github.com/sakif/bookclub-bot/internal/repository"
)

const (
	// 09:00 UTC every day.
	dailyReminderSpec = "0 9 * * *"
	// 18:00 UTC on Sundays.
	weeklyWrapSpec = "0 18 * * 0"

	jobTimeout = time.Minute
)

// Notifier posts a message to a configured channel. The bot implements it;
// tests use a recording fake.
type Notifier interface {
	SendToChannel(channelID, text string) error
}

type Scheduler struct {
	cron     *cron.Cron
	tracker  *engagement.Tracker
	books    repository.BookRepository
	settings repository.SettingsRepository
	notifier Notifier
	logger   *slog.Logger
}

func New(tracker *engagement.Tracker, books repository.BookRepository, settings repository.SettingsRepository, notifier Notifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		tracker:  tracker,
		books:    books,
		settings: settings,
		notifier: notifier,
		logger:   logger,
	}
}

// Start registers the jobs and launches the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(dailyReminderSpec, s.runDailyReminder); err != nil {
		return fmt.Errorf("scheduler: registering daily reminder: %w", err)
	}
	if _, err := s.cron.AddFunc(weeklyWrapSpec, s.runWeeklyWrap); err != nil {
		return fmt.Errorf("scheduler: registering weekly wrap: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runDailyReminder() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.DailyReminder(ctx)
}

func (s *Scheduler) runWeeklyWrap() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.WeeklyWrap(ctx)
}

// DailyReminder nudges every guild with a configured reminder channel to
// post a takeaway from the current book.
func (s *Scheduler) DailyReminder(ctx context.Context) {
	guilds, err := s.settings.ListGuilds(ctx)
	if err != nil {
		s.logger.Error("daily reminder: listing guilds failed", slog.String("error", err.Error()))
		return
	}

	for _, g := range guilds {
		if g.ReminderChannelID == "" {
			continue
		}

		text := "📚 Daily reminder: share a takeaway from today's reading to earn points!"
		if book, err := s.books.CurrentBook(ctx, g.GuildID); err == nil {
			text = fmt.Sprintf("📚 Daily reminder: share a takeaway from %q to earn points!", book.Title)
			if book.CurrentChapter != "" {
				text = fmt.Sprintf("📚 Daily reminder: we are on %s of %q, share a takeaway to earn points!",
					book.CurrentChapter, book.Title)
			}
		}

		if err := s.notifier.SendToChannel(g.ReminderChannelID, text); err != nil {
			s.logger.Error("daily reminder: send failed",
				slog.String("guildId", g.GuildID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// WeeklyWrap posts the final weekly standings where configured, then resets
// the weekly counters for every guild. The reset runs regardless of channel
// configuration so weekly windows stay aligned across guilds.
func (s *Scheduler) WeeklyWrap(ctx context.Context) {
	guilds, err := s.settings.ListGuilds(ctx)
	if err != nil {
		s.logger.Error("weekly wrap: listing guilds failed", slog.String("error", err.Error()))
		return
	}

	for _, g := range guilds {
		snapshot, err := s.tracker.ResetWeeklyCycle(ctx, g.GuildID)
		if err != nil {
			s.logger.Error("weekly wrap: reset failed",
				slog.String("guildId", g.GuildID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if g.LeaderboardChannelID == "" || len(snapshot.Entries) == 0 {
			continue
		}

		text := "🏁 The reading week is over! Final standings:\n"
		for i, e := range snapshot.Entries {
			text += fmt.Sprintf("%d. %s - %d points\n", i+1, e.Username, e.WeeklyPoints)
		}
		text += "Counters are reset, a new week starts now. Happy reading!"

		if err := s.notifier.SendToChannel(g.LeaderboardChannelID, text); err != nil {
			s.logger.Error("weekly wrap: send failed",
				slog.String("guildId", g.GuildID),
				slog.String("error", err.Error()),
			)
		}
	}
}
