// Package bot is the Telegram adapter: it turns chat updates into calls on
// the engagement tracker and renders the results back into chat messages.
// Every group chat maps to a guild, keyed by the chat ID.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sakif/bookclub-bot/internal/apperror"
	"github.com/sakif/bookclub-bot/internal/bookinfo"
	"github.com/sakif/bookclub-bot/internal/engagement"
	"github.com/sakif/bookclub-bot/internal/model"
	"github.com/sakif/bookclub-bot/internal/repository"
)

// DefaultNotifyProbability is how often an accepted low-scoring takeaway
// gets a visible reply. High awards are always acknowledged; replying to
// every message would drown the chat.
const DefaultNotifyProbability = 0.3

// notifyAlwaysMin is the award size that always earns a reply.
const notifyAlwaysMin = 8

const updateTimeout = 10 * time.Second

type Bot struct {
	api               *tgbotapi.BotAPI
	tracker           *engagement.Tracker
	books             repository.BookRepository
	settings          repository.SettingsRepository
	ai                *bookinfo.Client
	notifyProbability float64
	logger            *slog.Logger
}

// New creates the bot. ai may be nil; notifyProbability outside [0,1] falls
// back to the default.
func New(token string, tracker *engagement.Tracker, books repository.BookRepository, settings repository.SettingsRepository, ai *bookinfo.Client, notifyProbability float64, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("bot: initializing telegram api: %w", err)
	}
	api.Debug = false

	if notifyProbability < 0 || notifyProbability > 1 {
		notifyProbability = DefaultNotifyProbability
	}

	return &Bot{
		api:               api,
		tracker:           tracker,
		books:             books,
		settings:          settings,
		ai:                ai,
		notifyProbability: notifyProbability,
		logger:            logger,
	}, nil
}

// Run consumes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("bot running", slog.String("username", b.api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message"}
	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil {
			continue
		}
		b.handleMessage(update.Message)
	}

	b.logger.Info("bot stopped")
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	guildID := strconv.FormatInt(msg.Chat.ID, 10)

	if msg.IsCommand() {
		b.handleCommand(ctx, guildID, msg)
		return
	}
	if msg.Text == "" {
		return
	}

	b.trackTakeaway(ctx, guildID, msg)
}

func (b *Bot) handleCommand(ctx context.Context, guildID string, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, guildID, msg)
	case "help":
		b.reply(msg, helpText)
	case "mystats":
		b.handleMyStats(ctx, guildID, msg)
	case "leaderboard":
		b.handleLeaderboard(ctx, guildID, msg)
	case "alltime":
		b.handleAllTime(ctx, guildID, msg)
	case "bookinfo":
		b.handleBookInfo(ctx, guildID, msg)
	case "questions":
		b.handleQuestions(ctx, guildID, msg)
	case "goals":
		b.handleGoals(ctx, guildID, msg)
	case "setbook":
		b.handleSetBook(ctx, guildID, msg)
	case "setchapter":
		b.handleSetChapter(ctx, guildID, msg)
	}
}

// trackTakeaway runs a plain chat message through the scoring pipeline.
// Ineligible messages pass silently; accepted ones sometimes earn a reply.
func (b *Bot) trackTakeaway(ctx context.Context, guildID string, msg *tgbotapi.Message) {
	result, err := b.tracker.Award(ctx, engagement.Message{
		GuildID:   guildID,
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		Username:  displayName(msg.From),
		MessageID: strconv.Itoa(msg.MessageID),
		ChannelID: guildID,
		Content:   msg.Text,
		SentAt:    msg.Time(),
	})
	if err != nil {
		// Never take the chat loop down over one message. Ineligible is a
		// normal outcome and stays silent; anything else means the award
		// was dropped and must leave a trace.
		if !errors.Is(err, apperror.ErrIneligible) {
			b.logger.Error("failed to track takeaway",
				slog.String("guildId", guildID),
				slog.String("userId", strconv.FormatInt(msg.From.ID, 10)),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if result.Points >= notifyAlwaysMin || rand.Float64() < b.notifyProbability {
		text := fmt.Sprintf("📚 Nice takeaway, %s! +%d points (quality %d/10)",
			displayName(msg.From), result.Points, result.QualityScore)
		if result.Bonuses.DailyBonus {
			text += " (first post today bonus!)"
		}
		b.reply(msg, text)
	}
}

func (b *Bot) handleStart(ctx context.Context, guildID string, msg *tgbotapi.Message) {
	if err := b.settings.EnsureGuild(ctx, guildID); err != nil {
		b.logger.Error("failed to register guild",
			slog.String("guildId", guildID),
			slog.String("error", err.Error()),
		)
	}
	b.reply(msg, "👋 Welcome to the book club! Post your takeaways from the current "+
		"reading and earn points. Try /help to see what I can do.")
}

const helpText = `📖 Book club commands:
/mystats - your points and takeaway count
/leaderboard - this week's top readers
/alltime - the all-time ranking
/bookinfo - what we are currently reading
/questions - discussion questions for the current chapter
/goals - a suggested reading plan
/setbook Title - Author - pick the next book
/setchapter Chapter 3 - move the reading marker

Just write your thoughts about the book in chat to earn points.`

func (b *Bot) handleMyStats(ctx context.Context, guildID string, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	rec, err := b.tracker.UserStats(ctx, guildID, userID)
	if err != nil {
		b.reply(msg, "No stats yet. Share a takeaway about the book to get started!")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Stats for %s\n", displayName(msg.From))
	fmt.Fprintf(&sb, "🏆 Lifetime points: %d\n", rec.LifetimePoints)
	fmt.Fprintf(&sb, "🔥 This week: %d\n", rec.WeeklyPoints)
	fmt.Fprintf(&sb, "📝 Takeaways shared: %d\n", rec.TotalTakeaways)

	weeklyRank, allTimeRank := b.rankings(ctx, guildID, userID)
	if weeklyRank > 0 || allTimeRank > 0 {
		sb.WriteString("\n📈 Your rankings\n")
		if weeklyRank > 0 {
			fmt.Fprintf(&sb, "🗓 Weekly rank: #%d\n", weeklyRank)
		}
		if allTimeRank > 0 {
			fmt.Fprintf(&sb, "👑 All-time rank: #%d\n", allTimeRank)
		}
	}

	if badges := achievements(rec); len(badges) > 0 {
		sb.WriteString("\n🏅 Achievements\n")
		for _, a := range badges {
			sb.WriteString(a)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(nextMilestone(rec.LifetimePoints))
	b.reply(msg, sb.String())
}

// rankings locates the user on the weekly and all-time boards. A zero rank
// means the user is not on that board (no points, or outside the cap).
func (b *Bot) rankings(ctx context.Context, guildID, userID string) (weekly, allTime int) {
	if entries, err := b.tracker.WeeklyLeaderboard(ctx, guildID, engagement.MaxLeaderboardLimit); err == nil {
		for i, e := range entries {
			if e.UserID == userID {
				weekly = i + 1
				break
			}
		}
	}
	if entries, err := b.tracker.AllTimeLeaderboard(ctx, guildID, engagement.MaxLeaderboardLimit); err == nil {
		for i, e := range entries {
			if e.UserID == userID {
				allTime = i + 1
				break
			}
		}
	}
	return weekly, allTime
}

// achievements lists the badges a record has unlocked, at most one per
// category: the highest points tier, the highest takeaway tier and the
// highest weekly tier.
func achievements(rec *model.EngagementRecord) []string {
	var out []string

	switch {
	case rec.LifetimePoints >= 100:
		out = append(out, "🌟 Centurion: 100+ points earned!")
	case rec.LifetimePoints >= 50:
		out = append(out, "⭐ Half Century: 50+ points earned!")
	case rec.LifetimePoints >= 25:
		out = append(out, "🔸 Quarter Master: 25+ points earned!")
	}

	switch {
	case rec.TotalTakeaways >= 20:
		out = append(out, "📚 Wisdom Keeper: 20+ takeaways shared!")
	case rec.TotalTakeaways >= 10:
		out = append(out, "📖 Knowledge Sharer: 10+ takeaways shared!")
	case rec.TotalTakeaways >= 5:
		out = append(out, "✏️ Active Reader: 5+ takeaways shared!")
	}

	switch {
	case rec.WeeklyPoints >= 20:
		out = append(out, "🔥 Weekly Warrior: 20+ points this week!")
	case rec.WeeklyPoints >= 10:
		out = append(out, "💪 Consistent Contributor: 10+ points this week!")
	}

	return out
}

// nextMilestone names the next points badge to chase.
func nextMilestone(points int) string {
	switch {
	case points < 25:
		return fmt.Sprintf("🎯 Next goal: reach 25 points for Quarter Master status (%d points to go)", 25-points)
	case points < 50:
		return fmt.Sprintf("🎯 Next goal: reach 50 points for Half Century status (%d points to go)", 50-points)
	case points < 100:
		return fmt.Sprintf("🎯 Next goal: reach 100 points for Centurion status (%d points to go)", 100-points)
	default:
		return "🎉 Amazing! You've reached all major milestones!"
	}
}

func (b *Bot) handleLeaderboard(ctx context.Context, guildID string, msg *tgbotapi.Message) {
	entries, err := b.tracker.WeeklyLeaderboard(ctx, guildID, 10)
	if err != nil || len(entries) == 0 {
		b.reply(msg, "The weekly leaderboard is empty. Be the first to post a takeaway!")
		return
	}
	b.reply(msg, formatWeeklyLeaderboard(entries))
}

func (b *Bot) handleAllTime(ctx context.Context, guildID string, msg *tgbotapi.Message) {
	entries, err := b.tracker.AllTimeLeaderboard(ctx, guildID, 10)
	if err != nil || len(entries) == 0 {
		b.reply(msg, "No points on the board yet. Share a takeaway to open the scoring!")
		return
	}

	var sb strings.Builder
	sb.WriteString("🏆 All-time leaderboard\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "%s %s - %d points (%d takeaways)\n",
			rankEmoji(i), e.Username, e.LifetimePoints, e.TotalTakeaways)
	}
	b.reply(msg, sb.String())
}

func (b *Bot) handleBookInfo(ctx context.Context, guildID string, msg *tgbotapi.Message) {
	book, err := b.books.CurrentBook(ctx, guildID)
	if err != nil {
		b.reply(msg, "No book selected yet. Use /setbook Title - Author to pick one.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📕 %s by %s\n", book.Title, book.Author)
	if book.CurrentChapter != "" {
		fmt.Fprintf(&sb, "Currently reading: %s\n", book.CurrentChapter)
	}
	if book.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", book.Description)
	}
	if book.Benefits != "" {
		fmt.Fprintf(&sb, "\nWhy it is worth reading: %s\n", book.Benefits)
	}
	b.reply(msg, sb.String())
}

func (b *Bot) handleQuestions(ctx context.Context, guildID string, msg *tgbotapi.Message) {
	book, err := b.books.CurrentBook(ctx, guildID)
	if err != nil {
		b.reply(msg, "No book selected yet. Use /setbook Title - Author to pick one.")
		return
	}

	questions := bookinfo.DefaultQuestions()
	if b.ai != nil {
		if generated, err := b.ai.DiscussionQuestions(ctx, book.Title, book.CurrentChapter); err == nil {
			questions = generated
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💬 Discussion questions for %s:\n", book.Title)
	for _, q := range questions {
		sb.WriteString(q)
		sb.WriteString("\n")
	}
	b.reply(msg, sb.String())
}

func (b *Bot) handleGoals(ctx context.Context, guildID string, msg *tgbotapi.Message) {
	book, err := b.books.CurrentBook(ctx, guildID)
	if err != nil {
		b.reply(msg, "No book selected yet. Use /setbook Title - Author to pick one.")
		return
	}
	if b.ai == nil {
		b.reply(msg, "Reading goal suggestions are not available right now.")
		return
	}

	goals, err := b.ai.SuggestReadingGoals(ctx, book.Title, 0)
	if err != nil {
		b.reply(msg, "Could not come up with reading goals right now, try again later.")
		return
	}
	b.reply(msg, "🎯 Suggested reading plan:\n"+goals)
}

func (b *Bot) handleSetBook(ctx context.Context, guildID string, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		b.reply(msg, "Usage: /setbook Title - Author")
		return
	}

	title, author := args, ""
	if idx := strings.LastIndex(args, " - "); idx > 0 {
		title = strings.TrimSpace(args[:idx])
		author = strings.TrimSpace(args[idx+3:])
	}

	book := &model.Book{GuildID: guildID, Title: title, Author: author}
	if b.ai != nil {
		if info, err := b.ai.Lookup(ctx, title, author); err == nil {
			if book.Author == "" {
				book.Author = info.Author
			}
			book.Description = info.Description
			book.Benefits = info.Benefits
		}
	}

	if err := b.books.SetCurrentBook(ctx, book); err != nil {
		b.logger.Error("failed to set book",
			slog.String("guildId", guildID),
			slog.String("error", err.Error()),
		)
		b.reply(msg, "Could not save the book, please try again.")
		return
	}

	b.reply(msg, fmt.Sprintf("📕 New book set: %s by %s. Happy reading!", book.Title, book.Author))
}

func (b *Bot) handleSetChapter(ctx context.Context, guildID string, msg *tgbotapi.Message) {
	chapter := strings.TrimSpace(msg.CommandArguments())
	if chapter == "" {
		b.reply(msg, "Usage: /setchapter Chapter 3")
		return
	}

	if err := b.books.UpdateCurrentChapter(ctx, guildID, chapter); err != nil {
		b.reply(msg, "No active book to update. Use /setbook first.")
		return
	}
	b.reply(msg, fmt.Sprintf("🔖 Reading marker moved to %s.", chapter))
}

// SendToChannel posts to a chat by its stored string ID. The scheduler uses
// this for reminders and weekly leaderboard posts.
func (b *Bot) SendToChannel(channelID, text string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("bot: invalid channel id %q: %w", channelID, err)
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("bot: sending to channel %s: %w", channelID, err)
	}
	return nil
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		b.logger.Error("failed to send reply",
			slog.Int64("chatId", msg.Chat.ID),
			slog.String("error", err.Error()),
		)
	}
}

func displayName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if user.UserName != "" {
		return user.UserName
	}
	return user.FirstName
}

func rankEmoji(i int) string {
	switch i {
	case 0:
		return "🥇"
	case 1:
		return "🥈"
	case 2:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", i+1)
	}
}

func formatWeeklyLeaderboard(entries []model.WeeklyLeaderboardEntry) string {
	var sb strings.Builder
	sb.WriteString("📈 This week's leaderboard\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "%s %s - %d points\n", rankEmoji(i), e.Username, e.WeeklyPoints)
	}
	return sb.String()
}
