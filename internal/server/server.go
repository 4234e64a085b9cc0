// Package server wires the application together: store, cache, AI client,
// engagement tracker, HTTP routes, the Telegram bot, and the scheduler.
// It is the composition root; main.go only reads configuration and calls
// New/Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/bookclub-bot/internal/auth"
	"github.com/sakif/bookclub-bot/internal/bookinfo"
	"github.com/sakif/bookclub-bot/internal/bot"
	"github.com/sakif/bookclub-bot/internal/cache"
	"github.com/sakif/bookclub-bot/internal/engagement"
	"github.com/sakif/bookclub-bot/internal/handler"
	"github.com/sakif/bookclub-bot/internal/middleware"
	"github.com/sakif/bookclub-bot/internal/repository/sqlite"
	"github.com/sakif/bookclub-bot/internal/scheduler"
)

// Config holds everything the server needs to start. Optional fields
// (TelegramToken, AnthropicKey, RedisAddr) disable their component when
// empty: the HTTP API works on its own.
type Config struct {
	Port              int
	DBPath            string
	JWTSecret         string
	TelegramToken     string
	AnthropicKey      string
	RedisAddr         string
	NotifyProbability float64
}

// Server owns the long-lived resources: the database, the optional Redis
// connection, the bot, and the cron scheduler. Start() runs until a
// shutdown signal arrives, then tears them down in reverse order.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger

	db        *sqlite.DB
	cache     *cache.Leaderboard
	bot       *bot.Bot
	scheduler *scheduler.Scheduler
}

// New assembles the full dependency chain:
//
//	sqlite.DB → engagement.Tracker → handlers → chi router
//	                   ↘ bot → scheduler
//
// The tracker receives interfaces (repository, Scorer, LeaderboardCache),
// so the optional pieces plug in as nil when not configured.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Redis is a best-effort accelerator for the weekly leaderboard.
	// If it is unreachable at startup we run without it rather than fail.
	var board engagement.LeaderboardCache
	if cfg.RedisAddr != "" {
		rc := cache.NewLeaderboard(cfg.RedisAddr)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, leaderboard cache disabled",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
			rc.Close()
		} else {
			s.cache = rc
			board = rc
		}
	}

	var ai *bookinfo.Client
	var scorer engagement.Scorer
	if cfg.AnthropicKey != "" {
		ai = bookinfo.NewClient(cfg.AnthropicKey, logger)
		scorer = ai
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, using heuristic scoring and canned book info")
	}

	tracker := engagement.NewTracker(db, scorer, board, logger)

	if err := s.setupRoutes(tracker, ai); err != nil {
		s.closeResources()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken, tracker, db, db, ai, cfg.NotifyProbability, logger)
		if err != nil {
			s.closeResources()
			return nil, fmt.Errorf("starting telegram bot: %w", err)
		}
		s.bot = b
		s.scheduler = scheduler.New(tracker, db, db, b, logger)
	} else {
		logger.Warn("TELEGRAM_TOKEN not set, bot and scheduled jobs are disabled")
	}

	return s, nil
}

// setupRoutes configures middleware and the route tree.
//
// Public:
//
//	POST /api/guilds/{guildID}/messages             track a message
//	GET  /api/guilds/{guildID}/leaderboard/weekly
//	GET  /api/guilds/{guildID}/leaderboard/alltime
//	GET  /api/guilds/{guildID}/stats
//	GET  /api/guilds/{guildID}/users/{userID}
//	GET  /api/guilds/{guildID}/book
//	GET  /api/guilds/{guildID}/book/questions
//
// Admin (JWT bearer token):
//
//	POST /api/guilds/{guildID}/points               manual adjustment
//	POST /api/guilds/{guildID}/reset                weekly reset
//	PUT  /api/guilds/{guildID}/book
//	PUT  /api/guilds/{guildID}/book/chapter
//	GET  /api/guilds/{guildID}/settings
//	PUT  /api/guilds/{guildID}/settings
func (s *Server) setupRoutes(tracker *engagement.Tracker, ai *bookinfo.Client) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	eh := handler.NewEngagementHandler(tracker, s.logger)
	bh := handler.NewBookHandler(s.db, s.db, ai, s.logger)

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	s.router.Route("/api/guilds/{guildID}", func(r chi.Router) {
		r.Post("/messages", eh.HandleTrackMessage)
		r.Get("/leaderboard/weekly", eh.HandleWeeklyLeaderboard)
		r.Get("/leaderboard/alltime", eh.HandleAllTimeLeaderboard)
		r.Get("/stats", eh.HandleGuildStats)
		r.Get("/users/{userID}", eh.HandleUserStats)
		r.Get("/book", bh.HandleGetBook)
		r.Get("/book/questions", bh.HandleDiscussionQuestions)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(tokens))
			r.Post("/points", eh.HandleAddPoints)
			r.Post("/reset", eh.HandleResetWeekly)
			r.Put("/book", bh.HandleSetBook)
			r.Put("/book/chapter", bh.HandleSetChapter)
			r.Get("/settings", bh.HandleGetSettings)
			r.Put("/settings", bh.HandleUpdateSettings)
		})
	})

	return nil
}

// Start runs the HTTP server, the bot long-poll loop, and the scheduler,
// then blocks until SIGINT/SIGTERM. Shutdown order: stop cron jobs, stop
// the bot, drain HTTP, close Redis, close the database.
func (s *Server) Start() error {
	defer s.closeResources()

	botCtx, stopBot := context.WithCancel(context.Background())
	defer stopBot()

	if s.bot != nil {
		go s.bot.Run(botCtx)
	}
	if s.scheduler != nil {
		if err := s.scheduler.Start(); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.Bool("bot", s.bot != nil),
			slog.Bool("cache", s.cache != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		if s.scheduler != nil {
			s.scheduler.Stop()
		}
		stopBot()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) closeResources() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
		s.cache = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
}
