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

// Power Letter: draft command
//
// Developer CLI that runs one letter generation against the configured
// model and prints the letter JSON to stdout. It applies the same input
// validation and repair budget as the HTTP service.
//
// Usage:
//
//	go run ./cmd/draft/ -type GYM -company FitCo -issue "Charged after cancellation" -amount 49.99 -date 2024-01-15 [-ref A123]
//	go run ./cmd/draft/ -types
//	go run ./cmd/draft/ -stats 24h
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/powerletter/backend/internal/config"
	"github.com/powerletter/backend/internal/generator"
	"github.com/powerletter/backend/internal/history"
	"github.com/powerletter/backend/internal/intake"
	"github.com/powerletter/backend/internal/llm"
	"github.com/powerletter/backend/internal/models"
	"github.com/powerletter/backend/internal/secrets"
)

func main() {
	// Logs go to stderr so stdout carries only the letter
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	typeFlag := flag.String("type", "", "Letter type: GYM, TELECOM, SUBSCRIPTION or AIRLINE")
	companyFlag := flag.String("company", "", "Company name")
	issueFlag := flag.String("issue", "", "Description of the issue")
	amountFlag := flag.String("amount", "", "Amount in dispute, e.g. 150.00")
	dateFlag := flag.String("date", "", "Date of the transaction or incident")
	refFlag := flag.String("ref", "", "Account, order or reference number (optional)")
	typesFlag := flag.Bool("types", false, "List letter types and exit")
	statsFlag := flag.Duration("stats", 0, "Print generation outcomes recorded over this window and exit")
	flag.Parse()

	if *typesFlag {
		printTypes()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if *statsFlag > 0 {
		if err := printStats(ctx, cfg.DatabaseURL, *statsFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fields := map[string]any{
		"letterType":       strings.ToUpper(*typeFlag),
		"companyName":      *companyFlag,
		"issueDescription": *issueFlag,
		"amount":           *amountFlag,
		"transactionDate":  *dateFlag,
	}
	if *refFlag != "" {
		fields["accountOrOrderNumber"] = *refFlag
	}

	req, err := intake.Validate(fields)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
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

	slog.Info("generating letter", "letter_type", req.LetterType, "model", cfg.Anthropic.Model)

	start := time.Now()
	letter, att, err := generator.New(model).Generate(ctx, req)
	if err != nil {
		slog.Error("letter generation failed",
			"attempts", att.Calls,
			"repair_used", att.RepairUsed,
			"error", err,
		)
		os.Exit(1)
	}

	slog.Info("letter generated",
		"attempts", att.Calls,
		"repair_used", att.RepairUsed,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(letter); err != nil {
		slog.Error("failed to write letter", "error", err)
		os.Exit(1)
	}
}

func printTypes() {
	for _, t := range models.LetterTypes {
		fmt.Printf("%-13s %s\n", t, t.DisplayName())
		for _, basis := range models.ApplicableLegalBasis(t) {
			fmt.Printf("%-13s   - %s\n", "", basis)
		}
	}
}

func printStats(ctx context.Context, databaseURL string, window time.Duration) error {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("create Postgres pool: %w", err)
	}
	defer pool.Close()

	store, err := history.NewStore(ctx, pool)
	if err != nil {
		return err
	}

	counts, err := store.Summary(ctx, time.Now().Add(-window))
	if err != nil {
		return err
	}

	fmt.Printf("Generations in the last %s:\n", window)
	for _, outcome := range []string{
		history.OutcomeSuccess,
		history.OutcomeInvalidInput,
		history.OutcomeRateLimited,
		history.OutcomeTransportError,
		history.OutcomeParseError,
		history.OutcomeValidationError,
	} {
		fmt.Printf("  %-17s %d\n", outcome, counts[outcome])
	}
	return nil
}
