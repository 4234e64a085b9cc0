package scheduler

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sakif/bookclub-bot/internal/engagement"
	"github.com/sakif/bookclub-bot/internal/model"
	"github.com/sakif/bookclub-bot/internal/repository/sqlite"
)

type recordingNotifier struct {
	sent map[string][]string // channelID -> messages
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[string][]string)}
}

func (n *recordingNotifier) SendToChannel(channelID, text string) error {
	n.sent[channelID] = append(n.sent[channelID], text)
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *sqlite.DB, *recordingNotifier) {
	t.Helper()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := engagement.NewTracker(db, nil, nil, logger)
	notifier := newRecordingNotifier()
	return New(tracker, db, db, notifier, logger), db, notifier
}

func award(t *testing.T, db *sqlite.DB, tracker *engagement.Tracker, guildID, userID, username string) {
	t.Helper()
	_, err := tracker.Award(context.Background(), engagement.Message{
		GuildID:  guildID,
		UserID:   userID,
		Username: username,
		Content:  "my main takeaway from this chapter is to slow down and reflect daily",
	})
	if err != nil {
		t.Fatalf("Award() error = %v", err)
	}
}

func TestDailyReminderOnlyConfiguredGuilds(t *testing.T) {
	s, db, notifier := newTestScheduler(t)
	ctx := context.Background()

	if err := db.SetReminderChannel(ctx, "g1", "chan-1"); err != nil {
		t.Fatalf("SetReminderChannel() error = %v", err)
	}
	// g2 has settings but no reminder channel.
	if err := db.EnsureGuild(ctx, "g2"); err != nil {
		t.Fatalf("EnsureGuild() error = %v", err)
	}

	s.DailyReminder(ctx)

	if len(notifier.sent) != 1 {
		t.Fatalf("sent to %d channels, want 1", len(notifier.sent))
	}
	if len(notifier.sent["chan-1"]) != 1 {
		t.Errorf("chan-1 got %d messages, want 1", len(notifier.sent["chan-1"]))
	}
}

func TestDailyReminderMentionsBook(t *testing.T) {
	s, db, notifier := newTestScheduler(t)
	ctx := context.Background()

	if err := db.SetReminderChannel(ctx, "g1", "chan-1"); err != nil {
		t.Fatalf("SetReminderChannel() error = %v", err)
	}
	book := &model.Book{GuildID: "g1", Title: "Deep Work", Author: "Cal Newport"}
	if err := db.SetCurrentBook(ctx, book); err != nil {
		t.Fatalf("SetCurrentBook() error = %v", err)
	}

	s.DailyReminder(ctx)

	msgs := notifier.sent["chan-1"]
	if len(msgs) != 1 || !strings.Contains(msgs[0], "Deep Work") {
		t.Errorf("reminder = %q, want mention of the book", msgs)
	}
}

func TestWeeklyWrapPostsAndResets(t *testing.T) {
	s, db, notifier := newTestScheduler(t)
	ctx := context.Background()

	if err := db.SetLeaderboardChannel(ctx, "g1", "chan-board"); err != nil {
		t.Fatalf("SetLeaderboardChannel() error = %v", err)
	}
	award(t, db, s.tracker, "g1", "u1", "alice")

	s.WeeklyWrap(ctx)

	msgs := notifier.sent["chan-board"]
	if len(msgs) != 1 || !strings.Contains(msgs[0], "alice") {
		t.Fatalf("wrap messages = %q, want standings with alice", msgs)
	}

	// Counters are reset.
	rec, err := db.GetRecord(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec.WeeklyPoints != 0 {
		t.Errorf("WeeklyPoints after wrap = %d, want 0", rec.WeeklyPoints)
	}
}

func TestWeeklyWrapResetsWithoutChannel(t *testing.T) {
	s, db, notifier := newTestScheduler(t)
	ctx := context.Background()

	// Guild known but no leaderboard channel configured.
	if err := db.EnsureGuild(ctx, "g1"); err != nil {
		t.Fatalf("EnsureGuild() error = %v", err)
	}
	award(t, db, s.tracker, "g1", "u1", "alice")

	s.WeeklyWrap(ctx)

	if len(notifier.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(notifier.sent))
	}
	rec, err := db.GetRecord(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec.WeeklyPoints != 0 {
		t.Errorf("WeeklyPoints = %d, want 0 even without a channel", rec.WeeklyPoints)
	}
}
