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

// Package generator drives one letter generation: prompt, model call, parse,
// validate, and at most one repair round-trip shared by parse and
// validation failures.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/powerletter/backend/internal/llm"
	"github.com/powerletter/backend/internal/models"
	"github.com/powerletter/backend/internal/parser"
	"github.com/powerletter/backend/internal/prompt"
	"github.com/powerletter/backend/internal/schema"
)

// State is a step of a generation.
type State int

const (
	StateInitial State = iota
	StateFirstAttempt
	StateParseRetry
	StateValidationRetry
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateFirstAttempt:
		return "first_attempt"
	case StateParseRetry:
		return "parse_retry"
	case StateValidationRetry:
		return "validation_retry"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Model is the slice of the provider client the generator needs.
type Model interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Attempt records the path one Generate call took.
type Attempt struct {
	// Number is 0 for the first call and 1 for the repair call.
	Number     int
	RepairUsed bool
	Calls      int
	State      State
	LastErr    error
}

// Error is a terminal generation failure. Err is one of
// *llm.TransportError, *parser.ParseError or *schema.Violation.
type Error struct {
	// State is the step whose model call or output failed.
	State   State
	Attempt int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generate letter (%s, attempt %d): %v", e.State, e.Attempt, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Generator is stateless across calls and safe for concurrent use.
type Generator struct {
	model Model
}

// New creates a Generator backed by model.
func New(model Model) *Generator {
	return &Generator{model: model}
}

// Generate produces a validated letter for req. The returned Attempt is
// filled on both success and failure.
func (g *Generator) Generate(ctx context.Context, req models.ComplaintRequest) (models.GeneratedLetter, Attempt, error) {
	userPrompt := prompt.Build(req)
	att := Attempt{State: StateFirstAttempt}

	for {
		text, err := g.model.Complete(ctx, llm.Request{
			System:   prompt.System,
			Messages: prompt.Conversation(userPrompt, att.RepairUsed),
		})
		att.Calls++
		if err != nil {
			var te *llm.TransportError
			if !errors.As(err, &te) {
				err = &llm.TransportError{Err: err}
			}
			err = att.fail(err)
			return models.GeneratedLetter{}, att, err
		}

		letter, err := evaluate(text)
		if err == nil {
			att.State = StateSuccess
			att.LastErr = nil
			return letter, att, nil
		}
		if att.RepairUsed {
			err = att.fail(err)
			return models.GeneratedLetter{}, att, err
		}

		att.LastErr = err
		att.RepairUsed = true
		att.Number = 1
		var pe *parser.ParseError
		if errors.As(err, &pe) {
			att.State = StateParseRetry
		} else {
			att.State = StateValidationRetry
		}
		slog.WarnContext(ctx, "model output rejected, requesting repair",
			"letter_type", req.LetterType,
			"next_state", att.State.String(),
			"error", err,
		)
	}
}

func (a *Attempt) fail(err error) error {
	e := &Error{State: a.State, Attempt: a.Number, Err: err}
	a.State = StateFailed
	a.LastErr = err
	return e
}

func evaluate(text string) (models.GeneratedLetter, error) {
	candidate, err := parser.Extract(text)
	if err != nil {
		return models.GeneratedLetter{}, err
	}
	return schema.Validate(candidate)
}
