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

// Package history provides a Postgres-backed log of letter generation
// outcomes. Only metadata is stored: complaint text and letter bodies
// never reach the table.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Outcomes recorded per request.
const (
	OutcomeSuccess         = "success"
	OutcomeInvalidInput    = "invalid_input"
	OutcomeRateLimited     = "rate_limited"
	OutcomeTransportError  = "transport_error"
	OutcomeParseError      = "parse_error"
	OutcomeValidationError = "validation_error"
)

// maxReasonLen bounds the stored failure reason.
const maxReasonLen = 500

// Entry is one generation request.
type Entry struct {
	ID            uuid.UUID
	RequestID     string
	LetterType    string
	Outcome       string
	Attempts      int
	RepairUsed    bool
	FailureReason string
	Duration      time.Duration
	CreatedAt     time.Time
}

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store writes entries to the letter_generations table.
type Store struct {
	pool DB
}

// NewStore creates a history store backed by the given Postgres pool.
// It ensures the letter_generations table exists on creation.
func NewStore(ctx context.Context, pool DB) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}
	slog.Info("history store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS letter_generations (
			id             UUID PRIMARY KEY,
			request_id     TEXT NOT NULL,
			letter_type    TEXT DEFAULT '',
			outcome        TEXT NOT NULL,
			attempts       INTEGER NOT NULL DEFAULT 0,
			repair_used    BOOLEAN NOT NULL DEFAULT FALSE,
			failure_reason TEXT DEFAULT '',
			duration_ms    BIGINT NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_generations_created ON letter_generations(created_at);
		CREATE INDEX IF NOT EXISTS idx_generations_outcome ON letter_generations(outcome);
	`)
	return err
}

// Record inserts one entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	e = prepare(e, time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO letter_generations
			(id, request_id, letter_type, outcome, attempts, repair_used, failure_reason, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.RequestID, e.LetterType, e.Outcome, e.Attempts, e.RepairUsed,
		e.FailureReason, e.Duration.Milliseconds(), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert generation %s: %w", e.RequestID, err)
	}
	return nil
}

// Summary counts entries per outcome since a point in time.
func (s *Store) Summary(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT outcome, COUNT(*)
		FROM letter_generations
		WHERE created_at >= $1
		GROUP BY outcome
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query generation summary: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan generation summary: %w", err)
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

func prepare(e Entry, now time.Time) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	if r := []rune(e.FailureReason); len(r) > maxReasonLen {
		e.FailureReason = string(r[:maxReasonLen])
	}
	return e
}
