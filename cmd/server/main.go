// Package main is the entry point for the book club bot. It reads
// configuration from the environment (optionally via a .env file),
// builds the server, and runs it until interrupted.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/sakif/bookclub-bot/internal/bot"
	"github.com/sakif/bookclub-bot/internal/server"
)

func main() {
	// .env is a development convenience; in production the variables
	// come from the process environment.
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not load .env file", slog.String("error", err.Error()))
		}
	}

	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	dbPath := "data/bookclub.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// JWT_SECRET protects the admin API (manual points, resets, book
	// and settings management). Generate one with: openssl rand -hex 32
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	notifyProbability := bot.DefaultNotifyProbability
	if v := os.Getenv("NOTIFY_PROBABILITY"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 || p > 1 {
			logger.Error("invalid NOTIFY_PROBABILITY value, expected 0..1", slog.String("value", v))
			os.Exit(1)
		}
		notifyProbability = p
	}

	cfg := server.Config{
		Port:              port,
		DBPath:            dbPath,
		JWTSecret:         jwtSecret,
		TelegramToken:     os.Getenv("TELEGRAM_TOKEN"),
		AnthropicKey:      os.Getenv("ANTHROPIC_API_KEY"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		NotifyProbability: notifyProbability,
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
