// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Power Letter: letter generation service
//
// Entry point for the letter backend. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to Redis for rate limiting and, if configured, PostgreSQL for history
//  3. Prepares a lazily-initialised model client (API key from env or Secret Manager)
//  4. Serves /health and /generateLetter
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/powerletter/backend/internal/config"
	"github.com/powerletter/backend/internal/gateway"
	"github.com/powerletter/backend/internal/generator"
	"github.com/powerletter/backend/internal/history"
	"github.com/powerletter/backend/internal/llm"
	"github.com/powerletter/backend/internal/ratelimit"
	"github.com/powerletter/backend/internal/secrets"
)

func main() {
	// Structured JSON logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("starting Power Letter backend")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"model", cfg.Anthropic.Model,
		"api_key_source", keySourceName(cfg),
		"rate_limit", cfg.RateLimitRequests,
		"rate_window", cfg.RateLimitWindow,
		"history_enabled", cfg.DatabaseURL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	limiter := ratelimit.NewLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow)

	// --- Generation History (optional) ---
	var recorder gateway.Recorder
	if cfg.DatabaseURL != "" {
		pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		store, err := history.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise history store", "error", err)
			os.Exit(1)
		}
		recorder = store
	}

	// --- Model Client ---
	keys, err := secrets.Resolve(cfg.Anthropic.APIKey, cfg.SecretProject, cfg.SecretName)
	if err != nil {
		slog.Error("failed to resolve API key source", "error", err)
		os.Exit(1)
	}
	model := llm.NewLazy(keys, llm.Options{
		BaseURL:   cfg.Anthropic.BaseURL,
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		Timeout:   cfg.Anthropic.Timeout,
	})

	// --- HTTP Server ---
	handler := gateway.NewHandler(generator.New(model), limiter, recorder)
	stopped, err := gateway.Serve(ctx, cfg.Port, gateway.NewRouter(handler, cfg.TrustProxy))
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("received shutdown signal")
	<-stopped
	handler.Wait()

	slog.Info("Power Letter backend stopped")
}

func keySourceName(cfg *config.Config) string {
	if cfg.Anthropic.APIKey != "" {
		return "environment"
	}
	return "secret_manager"
}
