package engagement

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/bookclub-bot/internal/apperror"
	"github.com/sakif/bookclub-bot/internal/model"
	"github.com/sakif/bookclub-bot/internal/repository"
)

// Point values.
const (
	// TakeawayPostPoints is the base award for any accepted message.
	TakeawayPostPoints = 5
	// QualityBonusPoints is added when the quality score reaches
	// QualityBonusMin.
	QualityBonusPoints = 5
	QualityBonusMin    = 8
	// FirstPostDailyPoints rewards the first accepted post of a UTC
	// calendar day.
	FirstPostDailyPoints = 3

	// MaxContentLength bounds the stored copy of the message text.
	MaxContentLength = 500

	// SnapshotTopN is how many entries a weekly archive keeps.
	SnapshotTopN = 20

	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// ManualSourceID tags administrative adjustments in the takeaway log.
const ManualSourceID = "manual"

// Message is an incoming chat message, transport-agnostic. The bot adapter
// and the HTTP handler both build one of these.
type Message struct {
	GuildID   string
	UserID    string
	Username  string
	MessageID string
	ChannelID string
	Content   string
	SentAt    time.Time
}

// AwardResult reports what a single accepted message earned.
type AwardResult struct {
	Points       int          `json:"points"`
	QualityScore int          `json:"qualityScore"`
	Bonuses      AwardBonuses `json:"bonuses"`
}

type AwardBonuses struct {
	QualityBonus bool `json:"qualityBonus"`
	DailyBonus   bool `json:"dailyBonus"`
}

// Scorer rates a message's quality on the same 1..10 scale as ScoreQuality.
// The AI-assisted scorer in the bookinfo package implements this; the tracker
// falls back to ScoreQuality when the scorer is nil, fails or misbehaves.
type Scorer interface {
	ScoreTakeaway(ctx context.Context, content string) (int, error)
}

// LeaderboardCache is an optional hot copy of the weekly standings. The
// store remains the source of truth: writes go through to the cache after
// the transaction commits, reads fall back to the store on a miss.
type LeaderboardCache interface {
	AddPoints(ctx context.Context, guildID, userID, username string, points int) error
	Top(ctx context.Context, guildID string, limit int) ([]model.WeeklyLeaderboardEntry, error)
	Reset(ctx context.Context, guildID string) error
}

// Tracker is the points engine. It classifies incoming messages, scores
// them, and drives the aggregate store.
type Tracker struct {
	repo          repository.EngagementRepository
	scorer        Scorer
	scorerTimeout time.Duration
	cache         LeaderboardCache
	logger        *slog.Logger
}

// NewTracker creates a Tracker. scorer and cache may be nil: without a
// scorer every message is scored by ScoreQuality, without a cache every
// leaderboard read hits the store.
func NewTracker(repo repository.EngagementRepository, scorer Scorer, cache LeaderboardCache, logger *slog.Logger) *Tracker {
	return &Tracker{
		repo:          repo,
		scorer:        scorer,
		scorerTimeout: 3 * time.Second,
		cache:         cache,
		logger:        logger,
	}
}

// Award runs the full pipeline for one message: classify, score, persist.
// Ineligible messages return apperror.ErrIneligible with no state mutated.
func (t *Tracker) Award(ctx context.Context, msg Message) (*AwardResult, error) {
	if strings.TrimSpace(msg.GuildID) == "" {
		return nil, apperror.ValidationFailed("guildId", "guild ID is required")
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}

	if !IsEligible(msg.Content) {
		return nil, apperror.Ineligible("message does not qualify as a takeaway")
	}

	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}

	if _, err := t.repo.EnsureRecord(ctx, msg.GuildID, msg.UserID, msg.Username); err != nil {
		return nil, apperror.Persistence("ensuring engagement record", err)
	}

	quality := t.scoreWithFallback(ctx, msg.Content)

	points := TakeawayPostPoints
	qualityBonus := quality >= QualityBonusMin
	if qualityBonus {
		points += QualityBonusPoints
	}

	entry := &model.TakeawayEntry{
		GuildID:       msg.GuildID,
		UserID:        msg.UserID,
		MessageID:     msg.MessageID,
		ChannelID:     msg.ChannelID,
		Content:       truncateRunes(msg.Content, MaxContentLength),
		PointsAwarded: points,
		CreatedAt:     msg.SentAt.UTC(),
	}

	dailyBonus, err := t.repo.AwardTakeaway(ctx, entry, FirstPostDailyPoints)
	if err != nil {
		return nil, apperror.Persistence("awarding takeaway", err)
	}

	t.cacheAddPoints(ctx, msg.GuildID, msg.UserID, msg.Username, entry.PointsAwarded)

	t.logger.Info("takeaway awarded",
		slog.String("guildId", msg.GuildID),
		slog.String("userId", msg.UserID),
		slog.Int("points", entry.PointsAwarded),
		slog.Int("quality", quality),
		slog.Bool("dailyBonus", dailyBonus),
	)

	return &AwardResult{
		Points:       entry.PointsAwarded,
		QualityScore: quality,
		Bonuses: AwardBonuses{
			QualityBonus: qualityBonus,
			DailyBonus:   dailyBonus,
		},
	}, nil
}

// AddManualPoints is the administrative path: no eligibility or quality
// gate, lifetime points only, reason recorded in the audit log.
func (t *Tracker) AddManualPoints(ctx context.Context, guildID, userID, username string, points int, reason string) error {
	if strings.TrimSpace(guildID) == "" {
		return apperror.ValidationFailed("guildId", "guild ID is required")
	}
	if strings.TrimSpace(userID) == "" {
		return apperror.ValidationFailed("userId", "user ID is required")
	}
	if points == 0 {
		return apperror.ValidationFailed("points", "points adjustment must be non-zero")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperror.ValidationFailed("reason", "a reason is required")
	}

	if _, err := t.repo.EnsureRecord(ctx, guildID, userID, username); err != nil {
		return apperror.Persistence("ensuring engagement record", err)
	}

	entry := &model.TakeawayEntry{
		GuildID:       guildID,
		UserID:        userID,
		MessageID:     ManualSourceID,
		ChannelID:     ManualSourceID,
		Content:       truncateRunes(reason, MaxContentLength),
		PointsAwarded: points,
		CreatedAt:     time.Now().UTC(),
	}

	if err := t.repo.AddManualPoints(ctx, entry); err != nil {
		return apperror.Persistence("adding manual points", err)
	}

	t.logger.Info("manual points added",
		slog.String("guildId", guildID),
		slog.String("userId", userID),
		slog.Int("points", points),
		slog.String("reason", reason),
	)
	return nil
}

// UserStats returns a user's engagement record.
func (t *Tracker) UserStats(ctx context.Context, guildID, userID string) (*model.EngagementRecord, error) {
	rec, err := t.repo.GetRecord(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.Persistence("getting engagement record", err)
	}
	return rec, nil
}

// WeeklyLeaderboard reads the cache first and falls back to the store when
// the cache is empty or unavailable.
func (t *Tracker) WeeklyLeaderboard(ctx context.Context, guildID string, limit int) ([]model.WeeklyLeaderboardEntry, error) {
	limit = clampLimit(limit)

	if t.cache != nil {
		entries, err := t.cache.Top(ctx, guildID, limit)
		if err != nil {
			t.logger.Warn("leaderboard cache read failed",
				slog.String("guildId", guildID),
				slog.String("error", err.Error()),
			)
		} else if len(entries) > 0 {
			return entries, nil
		}
	}

	entries, err := t.repo.WeeklyLeaderboard(ctx, guildID, limit)
	if err != nil {
		return nil, apperror.Persistence("querying weekly leaderboard", err)
	}
	return entries, nil
}

func (t *Tracker) AllTimeLeaderboard(ctx context.Context, guildID string, limit int) ([]model.AllTimeLeaderboardEntry, error) {
	entries, err := t.repo.AllTimeLeaderboard(ctx, guildID, clampLimit(limit))
	if err != nil {
		return nil, apperror.Persistence("querying all-time leaderboard", err)
	}
	return entries, nil
}

func (t *Tracker) Stats(ctx context.Context, guildID string) (*model.EngagementStats, error) {
	stats, err := t.repo.EngagementStats(ctx, guildID)
	if err != nil {
		return nil, apperror.Persistence("aggregating engagement stats", err)
	}
	return stats, nil
}

// ResetWeeklyCycle archives the top standings and starts a fresh week.
func (t *Tracker) ResetWeeklyCycle(ctx context.Context, guildID string) (*model.WeeklyLeaderboardSnapshot, error) {
	snapshot, err := t.repo.ResetWeeklyCycle(ctx, guildID, time.Now(), SnapshotTopN)
	if err != nil {
		return nil, apperror.Persistence("resetting weekly cycle", err)
	}

	if t.cache != nil {
		if err := t.cache.Reset(ctx, guildID); err != nil {
			t.logger.Warn("leaderboard cache reset failed",
				slog.String("guildId", guildID),
				slog.String("error", err.Error()),
			)
		}
	}

	t.logger.Info("weekly cycle reset",
		slog.String("guildId", guildID),
		slog.Int("entries", len(snapshot.Entries)),
	)
	return snapshot, nil
}

// scoreWithFallback asks the external scorer first. Any failure, timeout or
// out-of-range answer falls back to the deterministic scorer, so scoring
// never blocks an award.
func (t *Tracker) scoreWithFallback(ctx context.Context, content string) int {
	if t.scorer == nil {
		return ScoreQuality(content)
	}

	scoreCtx, cancel := context.WithTimeout(ctx, t.scorerTimeout)
	defer cancel()

	score, err := t.scorer.ScoreTakeaway(scoreCtx, content)
	if err != nil {
		t.logger.Warn("external scorer failed, using basic scoring",
			slog.String("error", err.Error()),
		)
		return ScoreQuality(content)
	}
	if score < 1 || score > MaxQualityScore {
		t.logger.Warn("external scorer returned out-of-range score, using basic scoring",
			slog.Int("score", score),
		)
		return ScoreQuality(content)
	}
	return score
}

// cacheAddPoints mirrors a committed award into the cache. Cache failures
// are logged and ignored: the store already holds the truth.
func (t *Tracker) cacheAddPoints(ctx context.Context, guildID, userID, username string, points int) {
	if t.cache == nil {
		return
	}
	if err := t.cache.AddPoints(ctx, guildID, userID, username, points); err != nil {
		t.logger.Warn("leaderboard cache update failed",
			slog.String("guildId", guildID),
			slog.String("error", err.Error()),
		)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
