package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookclub-bot/internal/apperror"
	"github.com/sakif/bookclub-bot/internal/bookinfo"
	"github.com/sakif/bookclub-bot/internal/model"
	"github.com/sakif/bookclub-bot/internal/repository"
)

// BookHandler manages each guild's reading selection and bot settings.
// The AI client is optional: without it, setting a book simply skips the
// metadata enrichment and question generation falls back to the defaults.
type BookHandler struct {
	books    repository.BookRepository
	settings repository.SettingsRepository
	ai       *bookinfo.Client
	logger   *slog.Logger
}

func NewBookHandler(books repository.BookRepository, settings repository.SettingsRepository, ai *bookinfo.Client, logger *slog.Logger) *BookHandler {
	return &BookHandler{books: books, settings: settings, ai: ai, logger: logger}
}

// HandleGetBook returns the guild's current book.
//
// HTTP: GET /api/guilds/{guildID}/book
func (h *BookHandler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.books.CurrentBook(r.Context(), chi.URLParam(r, "guildID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

type setBookRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

// HandleSetBook replaces the guild's current book. When the AI client is
// available the description and benefits are filled in automatically.
//
// HTTP: PUT /api/guilds/{guildID}/book (admin token required)
func (h *BookHandler) HandleSetBook(w http.ResponseWriter, r *http.Request) {
	var req setBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, apperror.ValidationFailed("title", "book title is required"))
		return
	}

	guildID := chi.URLParam(r, "guildID")
	book := &model.Book{
		GuildID: guildID,
		Title:   req.Title,
		Author:  strings.TrimSpace(req.Author),
	}

	if h.ai != nil {
		if info, err := h.ai.Lookup(r.Context(), book.Title, book.Author); err == nil {
			if book.Author == "" {
				book.Author = info.Author
			}
			book.Description = info.Description
			book.Benefits = info.Benefits
		} else {
			h.logger.Warn("book info lookup failed, using fallback",
				slog.String("title", book.Title),
				slog.String("error", err.Error()),
			)
			fallback := bookinfo.FallbackInfo(book.Title, book.Author)
			book.Description = fallback.Description
			book.Benefits = fallback.Benefits
		}
	}

	if err := h.books.SetCurrentBook(r.Context(), book); err != nil {
		writeError(w, apperror.Persistence("setting current book", err))
		return
	}

	h.logger.Info("current book set",
		slog.String("guildId", guildID),
		slog.String("title", book.Title),
	)
	writeJSON(w, http.StatusOK, book)
}

type setChapterRequest struct {
	Chapter string `json:"chapter"`
}

// HandleSetChapter moves the reading marker of the current book.
//
// HTTP: PUT /api/guilds/{guildID}/book/chapter (admin token required)
func (h *BookHandler) HandleSetChapter(w http.ResponseWriter, r *http.Request) {
	var req setChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	req.Chapter = strings.TrimSpace(req.Chapter)
	if req.Chapter == "" {
		writeError(w, apperror.ValidationFailed("chapter", "chapter is required"))
		return
	}

	guildID := chi.URLParam(r, "guildID")
	if err := h.books.UpdateCurrentChapter(r.Context(), guildID, req.Chapter); err != nil {
		writeError(w, err)
		return
	}

	book, err := h.books.CurrentBook(r.Context(), guildID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleDiscussionQuestions generates discussion prompts for the current
// book, scoped to the current chapter when one is set.
//
// HTTP: GET /api/guilds/{guildID}/book/questions
func (h *BookHandler) HandleDiscussionQuestions(w http.ResponseWriter, r *http.Request) {
	book, err := h.books.CurrentBook(r.Context(), chi.URLParam(r, "guildID"))
	if err != nil {
		writeError(w, err)
		return
	}

	questions := bookinfo.DefaultQuestions()
	if h.ai != nil {
		if generated, err := h.ai.DiscussionQuestions(r.Context(), book.Title, book.CurrentChapter); err == nil {
			questions = generated
		} else {
			h.logger.Warn("question generation failed, using defaults",
				slog.String("title", book.Title),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"book":      book.Title,
		"questions": questions,
	})
}

// HandleGetSettings returns a guild's bot configuration.
//
// HTTP: GET /api/guilds/{guildID}/settings (admin token required)
func (h *BookHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetSettings(r.Context(), chi.URLParam(r, "guildID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type updateSettingsRequest struct {
	ReminderChannelID    *string `json:"reminderChannelId"`
	LeaderboardChannelID *string `json:"leaderboardChannelId"`
	WelcomeChannelID     *string `json:"welcomeChannelId"`
	ModeratorRoleID      *string `json:"moderatorRoleId"`
}

// HandleUpdateSettings updates guild configuration. Pointer fields make the
// update partial: absent fields are left untouched.
//
// HTTP: PUT /api/guilds/{guildID}/settings (admin token required)
func (h *BookHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	guildID := chi.URLParam(r, "guildID")
	ctx := r.Context()

	var err error
	if req.ReminderChannelID != nil {
		err = h.settings.SetReminderChannel(ctx, guildID, *req.ReminderChannelID)
	}
	if err == nil && req.LeaderboardChannelID != nil {
		err = h.settings.SetLeaderboardChannel(ctx, guildID, *req.LeaderboardChannelID)
	}
	if err == nil && req.WelcomeChannelID != nil {
		err = h.settings.SetWelcomeChannel(ctx, guildID, *req.WelcomeChannelID)
	}
	if err == nil && req.ModeratorRoleID != nil {
		err = h.settings.SetModeratorRole(ctx, guildID, *req.ModeratorRoleID)
	}
	if err == nil && req.ReminderChannelID == nil && req.LeaderboardChannelID == nil &&
		req.WelcomeChannelID == nil && req.ModeratorRoleID == nil {
		err = h.settings.EnsureGuild(ctx, guildID)
	}
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			err = apperror.Persistence("updating guild settings", err)
		}
		writeError(w, err)
		return
	}

	settings, err := h.settings.GetSettings(ctx, guildID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
