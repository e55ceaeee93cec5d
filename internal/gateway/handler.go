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

// Package gateway exposes the letter service over HTTP: input validation,
// rate limiting, and the mapping from generation outcomes to responses.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/powerletter/backend/internal/generator"
	"github.com/powerletter/backend/internal/history"
	"github.com/powerletter/backend/internal/intake"
	"github.com/powerletter/backend/internal/llm"
	"github.com/powerletter/backend/internal/models"
	"github.com/powerletter/backend/internal/parser"
	"github.com/powerletter/backend/internal/ratelimit"
	"github.com/powerletter/backend/internal/schema"
)

// MaxBodyBytes caps the /generateLetter request body.
const MaxBodyBytes = 10 << 10

const historyTimeout = 5 * time.Second

// Client-facing error messages.
const (
	msgValidation   = "Validation failed"
	msgTooLarge     = "Request body too large"
	msgUnavailable  = "Service temporarily unavailable, please try again"
	msgTooMany      = "Too many requests, please try again later"
	msgFailed       = "Failed to generate letter"
	msgInvalidOut   = "Failed to generate valid letter"
	msgNotFound     = "Not found"
	msgInternal     = "Internal server error"
	healthTimestamp = "2006-01-02T15:04:05.000Z07:00"
)

// Generator produces a validated letter for a complaint.
type Generator interface {
	Generate(ctx context.Context, req models.ComplaintRequest) (models.GeneratedLetter, generator.Attempt, error)
}

// Limiter counts requests per source address.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Result, error)
}

// Recorder stores generation outcomes.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Handler serves the letter API. Limiter and Recorder are optional.
type Handler struct {
	gen     Generator
	limiter Limiter
	history Recorder
	now     func() time.Time

	mu       sync.Mutex
	draining bool
	pending  sync.WaitGroup
}

// NewHandler creates the API handler. limiter and recorder may be nil.
func NewHandler(gen Generator, limiter Limiter, recorder Recorder) *Handler {
	return &Handler{
		gen:     gen,
		limiter: limiter,
		history: recorder,
		now:     time.Now,
	}
}

// Wait stops accepting new history writes and blocks until the ones in
// flight have finished.
func (h *Handler) Wait() {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()
	h.pending.Wait()
}

// ServeHealth reports liveness.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(healthTimestamp),
	})
}

// ServeGenerateLetter validates the complaint, runs the generator and maps
// its outcome to a response. Internal failure detail is only logged.
func (h *Handler) ServeGenerateLetter(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	ctx := r.Context()
	reqID := requestIDFromContext(ctx)
	logger := httpLogger().With("request_id", reqID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		logger.WarnContext(ctx, "failed to read request body", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   msgValidation,
			"details": []string{"request body could not be read"},
		})
		return
	}

	req, err := intake.Decode(body)
	var verr *intake.ValidationError
	if errors.As(err, &verr) {
		logger.InfoContext(ctx, "complaint rejected", "violations", len(verr.Details))
		h.record(ctx, history.Entry{
			RequestID:     reqID,
			Outcome:       history.OutcomeInvalidInput,
			FailureReason: verr.Error(),
			Duration:      h.now().Sub(start),
		})
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   msgValidation,
			"details": verr.Details,
		})
		return
	}

	logger.InfoContext(ctx, "generating letter", "letter_type", req.LetterType)

	letter, att, err := h.gen.Generate(ctx, req)
	entry := history.Entry{
		RequestID:  reqID,
		LetterType: string(req.LetterType),
		Attempts:   att.Calls,
		RepairUsed: att.RepairUsed,
		Duration:   h.now().Sub(start),
	}

	if err != nil {
		status, msg, outcome := statusFor(err)
		logger.ErrorContext(ctx, "letter generation failed",
			"letter_type", req.LetterType,
			"outcome", outcome,
			"attempts", att.Calls,
			"repair_used", att.RepairUsed,
			"error", err,
		)
		entry.Outcome = outcome
		entry.FailureReason = err.Error()
		h.record(ctx, entry)
		writeError(w, status, msg)
		return
	}

	logger.InfoContext(ctx, "letter generated",
		"letter_type", req.LetterType,
		"attempts", att.Calls,
		"repair_used", att.RepairUsed,
		"duration_ms", entry.Duration.Milliseconds(),
	)
	entry.Outcome = history.OutcomeSuccess
	h.record(ctx, entry)
	writeJSON(w, http.StatusOK, letter)
}

// statusFor maps a generation error onto a status, client message and
// history outcome.
func statusFor(err error) (int, string, string) {
	var (
		pe *parser.ParseError
		ve *schema.Violation
	)
	switch {
	case llm.IsRateLimited(err):
		return http.StatusTooManyRequests, msgUnavailable, history.OutcomeRateLimited
	case errors.As(err, &pe):
		return http.StatusInternalServerError, msgInvalidOut, history.OutcomeParseError
	case errors.As(err, &ve):
		return http.StatusInternalServerError, msgInvalidOut, history.OutcomeValidationError
	default:
		return http.StatusInternalServerError, msgFailed, history.OutcomeTransportError
	}
}

// record writes the entry in the background so the response is not held
// up by the database.
func (h *Handler) record(ctx context.Context, e history.Entry) {
	if h.history == nil {
		return
	}

	h.mu.Lock()
	if h.draining {
		h.mu.Unlock()
		httpLogger().Warn("history draining, generation not recorded", "request_id", e.RequestID, "outcome", e.Outcome)
		return
	}
	h.pending.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
		defer cancel()
		if err := h.history.Record(ctx, e); err != nil {
			httpLogger().Warn("failed to record generation", "request_id", e.RequestID, "error", err)
		}
	}()
}

// rateLimit enforces the per-address request window and sets the standard
// RateLimit headers. Limiter errors let the request through.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		res, err := h.limiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			httpLogger().WarnContext(r.Context(), "rate limiter unavailable, allowing request",
				"request_id", requestIDFromContext(r.Context()),
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		reset := strconv.Itoa(int(math.Ceil(res.Reset.Seconds())))
		w.Header().Set("RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("RateLimit-Reset", reset)

		if !res.Allowed {
			w.Header().Set("Retry-After", reset)
			writeError(w, http.StatusTooManyRequests, msgTooMany)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the host part of RemoteAddr, which RealIP has already
// rewritten when proxy headers are trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, msgNotFound)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		httpLogger().Error("failed to encode response", "error", err)
	}
}
