package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookclub-bot/internal/apperror"
	"github.com/sakif/bookclub-bot/internal/engagement"
	"github.com/sakif/bookclub-bot/internal/model"
)

// EngagementHandler exposes the scoring pipeline: message ingestion,
// leaderboards, stats, and the admin-only points and reset operations.
type EngagementHandler struct {
	tracker *engagement.Tracker
	logger  *slog.Logger
}

func NewEngagementHandler(tracker *engagement.Tracker, logger *slog.Logger) *EngagementHandler {
	return &EngagementHandler{tracker: tracker, logger: logger}
}

type trackMessageRequest struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
	Content   string `json:"content"`
}

type trackMessageResponse struct {
	Tracked bool                    `json:"tracked"`
	Reason  string                  `json:"reason,omitempty"`
	Award   *engagement.AwardResult `json:"award,omitempty"`
}

// HandleTrackMessage runs a chat message through the pipeline.
//
// HTTP: POST /api/guilds/{guildID}/messages
//
// An ineligible message is a normal outcome, not an error: the response is
// 200 with tracked=false so chat adapters can ingest every message without
// branching on status codes.
func (h *EngagementHandler) HandleTrackMessage(w http.ResponseWriter, r *http.Request) {
	var req trackMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.tracker.Award(r.Context(), engagement.Message{
		GuildID:   chi.URLParam(r, "guildID"),
		UserID:    req.UserID,
		Username:  req.Username,
		MessageID: req.MessageID,
		ChannelID: req.ChannelID,
		Content:   req.Content,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrIneligible) {
			h.logger.Debug("message not eligible",
				slog.String("guildId", chi.URLParam(r, "guildID")),
				slog.String("userId", req.UserID),
			)
			writeJSON(w, http.StatusOK, trackMessageResponse{
				Tracked: false,
				Reason:  "not eligible",
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, trackMessageResponse{Tracked: true, Award: result})
}

// HandleWeeklyLeaderboard returns the current weekly ranking.
//
// HTTP: GET /api/guilds/{guildID}/leaderboard/weekly?limit=10
func (h *EngagementHandler) HandleWeeklyLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.tracker.WeeklyLeaderboard(r.Context(), chi.URLParam(r, "guildID"), parseLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.WeeklyLeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleAllTimeLeaderboard returns the lifetime ranking.
//
// HTTP: GET /api/guilds/{guildID}/leaderboard/alltime?limit=10
func (h *EngagementHandler) HandleAllTimeLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.tracker.AllTimeLeaderboard(r.Context(), chi.URLParam(r, "guildID"), parseLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.AllTimeLeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGuildStats returns guild-wide engagement aggregates.
//
// HTTP: GET /api/guilds/{guildID}/stats
func (h *EngagementHandler) HandleGuildStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tracker.Stats(r.Context(), chi.URLParam(r, "guildID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleUserStats returns one member's engagement record.
//
// HTTP: GET /api/guilds/{guildID}/users/{userID}
func (h *EngagementHandler) HandleUserStats(w http.ResponseWriter, r *http.Request) {
	rec, err := h.tracker.UserStats(r.Context(), chi.URLParam(r, "guildID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type manualPointsRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Points   int    `json:"points"`
	Reason   string `json:"reason"`
}

// HandleAddPoints applies an administrative point adjustment.
//
// HTTP: POST /api/guilds/{guildID}/points (admin token required)
func (h *EngagementHandler) HandleAddPoints(w http.ResponseWriter, r *http.Request) {
	var req manualPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	guildID := chi.URLParam(r, "guildID")
	if err := h.tracker.AddManualPoints(r.Context(), guildID, req.UserID, req.Username, req.Points, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetWeekly archives the current standings and starts a new week.
//
// HTTP: POST /api/guilds/{guildID}/reset (admin token required)
func (h *EngagementHandler) HandleResetWeekly(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.tracker.ResetWeeklyCycle(r.Context(), chi.URLParam(r, "guildID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0 // tracker applies its default
	}
	return limit
}
