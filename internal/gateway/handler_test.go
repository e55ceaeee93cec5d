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

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerletter/backend/internal/generator"
	"github.com/powerletter/backend/internal/history"
	"github.com/powerletter/backend/internal/llm"
	"github.com/powerletter/backend/internal/models"
	"github.com/powerletter/backend/internal/parser"
	"github.com/powerletter/backend/internal/ratelimit"
	"github.com/powerletter/backend/internal/schema"
)

const gymBody = `{"letterType":"GYM","companyName":"FitCo","issueDescription":"Charged after cancellation","amount":"49.99","transactionDate":"2024-01-15","accountOrOrderNumber":"A123"}`

// stubModel returns its replies in order; the last one repeats.
type stubModel struct {
	mu    sync.Mutex
	texts []string
	errs  []error
	calls int
}

func (m *stubModel) Complete(context.Context, llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if n := max(len(m.texts), len(m.errs)); i >= n {
		i = n - 1
	}
	var text string
	var err error
	if i < len(m.texts) {
		text = m.texts[i]
	}
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return text, err
}

func (m *stubModel) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (r *memoryRecorder) Record(_ context.Context, e history.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memoryRecorder) all() []history.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]history.Entry(nil), r.entries...)
}

func validLetter() models.GeneratedLetter {
	return models.GeneratedLetter{
		Subject:    "Refund Request - FitCo Membership",
		EmailBody:  strings.Repeat("I cancelled my membership and was still charged <$49.99> & fees. ", 4),
		LegalBasis: []string{models.ConsumerProtectionAct},
		Tone:       models.ToneProfessional,
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func newTestServer(t *testing.T, model *stubModel, limiter Limiter, rec Recorder) (*Handler, *httptest.Server) {
	t.Helper()
	h := NewHandler(generator.New(model), limiter, rec)
	server := httptest.NewServer(NewRouter(h, false))
	t.Cleanup(server.Close)
	return h, server
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/generateLetter", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestGenerateLetter_ReturnsLetterUnchanged(t *testing.T) {
	want := validLetter()
	model := &stubModel{texts: []string{"```json\n" + mustJSON(t, want) + "\n```"}}
	_, server := newTestServer(t, model, nil, nil)

	resp := post(t, server.URL, gymBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	var got models.GeneratedLetter
	decode(t, resp, &got)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, model.count())
}

func TestGenerateLetter_AmountFormat(t *testing.T) {
	model := &stubModel{texts: []string{mustJSON(t, validLetter())}}
	_, server := newTestServer(t, model, nil, nil)

	resp := post(t, server.URL, strings.Replace(gymBody, `"49.99"`, `"49.999"`, 1))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "Validation failed", body.Error)
	assert.Equal(t, []string{"amount must be a valid number (e.g., 150.00)"}, body.Details)
	assert.Equal(t, 0, model.count())
}

func TestGenerateLetter_InvalidInputNeverCallsModel(t *testing.T) {
	tests := map[string]string{
		"empty body":       ``,
		"empty object":     `{}`,
		"array":            `[]`,
		"not json":         `letterType=GYM`,
		"bad letter type":  strings.Replace(gymBody, `"GYM"`, `"BANK"`, 1),
		"missing company":  strings.Replace(gymBody, `"companyName":"FitCo",`, ``, 1),
		"long description": strings.Replace(gymBody, `Charged after cancellation`, strings.Repeat("x", 1001), 1),
		"numeric amount":   strings.Replace(gymBody, `"49.99"`, `49.99`, 1),
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			model := &stubModel{texts: []string{mustJSON(t, validLetter())}}
			_, server := newTestServer(t, model, nil, nil)

			resp := post(t, server.URL, body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var out map[string]any
			decode(t, resp, &out)
			assert.Equal(t, "Validation failed", out["error"])
			assert.NotEmpty(t, out["details"])
			assert.Equal(t, 0, model.count())
		})
	}
}

func TestGenerateLetter_ProviderRateLimited(t *testing.T) {
	model := &stubModel{errs: []error{&llm.TransportError{StatusCode: 429, Type: "rate_limit_error", Err: errors.New("rate limited")}}}
	_, server := newTestServer(t, model, nil, nil)

	resp := post(t, server.URL, gymBody)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var out map[string]string
	decode(t, resp, &out)
	assert.Equal(t, map[string]string{"error": "Service temporarily unavailable, please try again"}, out)
	assert.Equal(t, 1, model.count())
}

func TestGenerateLetter_GenerationFailures(t *testing.T) {
	invalid := validLetter()
	invalid.LegalBasis = []string{"Magna Carta"}

	tests := map[string]struct {
		model     *stubModel
		wantCalls int
		wantMsg   string
	}{
		"transport": {
			model:     &stubModel{errs: []error{&llm.TransportError{StatusCode: 500, Err: errors.New("boom")}}},
			wantCalls: 1,
			wantMsg:   "Failed to generate letter",
		},
		"unauthorized": {
			model:     &stubModel{errs: []error{&llm.TransportError{StatusCode: 401, Err: errors.New("invalid x-api-key")}}},
			wantCalls: 1,
			wantMsg:   "Failed to generate letter",
		},
		"malformed twice": {
			model:     &stubModel{texts: []string{"Here you go!"}},
			wantCalls: 2,
			wantMsg:   "Failed to generate valid letter",
		},
		"malformed then invalid": {
			model:     &stubModel{texts: []string{"{", mustJSON(t, invalid)}},
			wantCalls: 2,
			wantMsg:   "Failed to generate valid letter",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, server := newTestServer(t, tt.model, nil, nil)

			resp := post(t, server.URL, gymBody)
			require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

			var out map[string]string
			decode(t, resp, &out)
			assert.Equal(t, map[string]string{"error": tt.wantMsg}, out)
			assert.Equal(t, tt.wantCalls, tt.model.count())
		})
	}
}

func TestGenerateLetter_BodyTooLarge(t *testing.T) {
	model := &stubModel{texts: []string{mustJSON(t, validLetter())}}
	_, server := newTestServer(t, model, nil, nil)

	big := `{"companyName":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	resp := post(t, server.URL, big)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	var out map[string]string
	decode(t, resp, &out)
	assert.Equal(t, "Request body too large", out["error"])
	assert.Equal(t, 0, model.count())
}

func TestGenerateLetter_RecordsHistory(t *testing.T) {
	rec := &memoryRecorder{}
	model := &stubModel{texts: []string{"nope", mustJSON(t, validLetter())}}
	h, server := newTestServer(t, model, nil, rec)

	resp := post(t, server.URL, gymBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = post(t, server.URL, `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	h.Wait()

	entries := rec.all()
	require.Len(t, entries, 2)

	byOutcome := map[string]history.Entry{}
	for _, e := range entries {
		byOutcome[e.Outcome] = e
	}
	ok := byOutcome[history.OutcomeSuccess]
	assert.Equal(t, "GYM", ok.LetterType)
	assert.Equal(t, 2, ok.Attempts)
	assert.True(t, ok.RepairUsed)
	assert.NotEmpty(t, ok.RequestID)

	bad := byOutcome[history.OutcomeInvalidInput]
	assert.Contains(t, bad.FailureReason, "companyName is required")
	assert.Equal(t, 0, bad.Attempts)
}

func TestGenerateLetter_UnreadableBody(t *testing.T) {
	model := &stubModel{texts: []string{mustJSON(t, validLetter())}}
	router := NewRouter(NewHandler(generator.New(model), nil, nil), false)

	req := httptest.NewRequest(http.MethodPost, "/generateLetter", iotest.ErrReader(errors.New("connection reset")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"Validation failed","details":["request body could not be read"]}`, rr.Body.String())
	assert.Equal(t, 0, model.count())
}

func TestGenerateLetter_NotRecordedAfterDrain(t *testing.T) {
	rec := &memoryRecorder{}
	model := &stubModel{texts: []string{mustJSON(t, validLetter())}}
	h := NewHandler(generator.New(model), nil, rec)
	router := NewRouter(h, false)

	h.Wait()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generateLetter", strings.NewReader(gymBody)))
	assert.Equal(t, http.StatusOK, rr.Code)

	h.Wait()
	assert.Empty(t, rec.all())
}

func TestGenerateLetter_DrainWhileServing(t *testing.T) {
	rec := &memoryRecorder{}
	model := &stubModel{texts: []string{mustJSON(t, validLetter())}}
	h := NewHandler(generator.New(model), nil, rec)
	router := NewRouter(h, false)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generateLetter", strings.NewReader(gymBody)))
			assert.Equal(t, http.StatusOK, rr.Code)
		}()
	}
	h.Wait()
	wg.Wait()

	// Every write accepted before draining has landed; later ones were refused.
	n := len(rec.all())
	h.Wait()
	assert.Equal(t, n, len(rec.all()))
	assert.LessOrEqual(t, n, 20)
}

func TestHealth(t *testing.T) {
	h := NewHandler(generator.New(&stubModel{}), nil, nil)
	h.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.FixedZone("EDT", -4*3600))
	}

	rr := httptest.NewRecorder()
	NewRouter(h, false).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, map[string]string{"status": "healthy", "timestamp": "2026-03-14T13:26:53.589Z"}, out)
}

func TestNotFound(t *testing.T) {
	router := NewRouter(NewHandler(generator.New(&stubModel{}), nil, nil), false)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/generateLetter"},
		{http.MethodPost, "/health"},
		{http.MethodPost, "/generate"},
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, "%s %s", tc.method, tc.path)
		assert.JSONEq(t, `{"error":"Not found"}`, rr.Body.String())
	}
}

type panicGenerator struct{}

func (panicGenerator) Generate(context.Context, models.ComplaintRequest) (models.GeneratedLetter, generator.Attempt, error) {
	panic("unexpected")
}

func TestPanicRecovered(t *testing.T) {
	router := NewRouter(NewHandler(panicGenerator{}, nil, nil), false)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generateLetter", strings.NewReader(gymBody)))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rr.Body.String())
}

func TestResponseHeaders(t *testing.T) {
	router := NewRouter(NewHandler(generator.New(&stubModel{}), nil, nil), false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-abc")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, "req-abc", rr.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("Strict-Transport-Security"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rr.Header().Get("X-Request-Id"), 36)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	model := &stubModel{texts: []string{mustJSON(t, validLetter())}}
	_, server := newTestServer(t, model, ratelimit.NewLimiter(rdb, 2, time.Minute), nil)

	for i := 0; i < 2; i++ {
		resp := post(t, server.URL, gymBody)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("RateLimit-Limit"))
		assert.Equal(t, "60", resp.Header.Get("RateLimit-Reset"))
	}

	resp := post(t, server.URL, gymBody)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	var out map[string]string
	decode(t, resp, &out)
	assert.Equal(t, "Too many requests, please try again later", out["error"])
	assert.Equal(t, 2, model.count())

	health, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

type funcLimiter func(ctx context.Context, key string) (ratelimit.Result, error)

func (f funcLimiter) Allow(ctx context.Context, key string) (ratelimit.Result, error) {
	return f(ctx, key)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	limiter := funcLimiter(func(context.Context, string) (ratelimit.Result, error) {
		return ratelimit.Result{}, errors.New("redis down")
	})
	model := &stubModel{texts: []string{mustJSON(t, validLetter())}}
	_, server := newTestServer(t, model, limiter, nil)

	resp := post(t, server.URL, gymBody)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("RateLimit-Limit"))
}

func TestRateLimit_ClientKey(t *testing.T) {
	tests := map[string]struct {
		trustProxy bool
		want       string
	}{
		"direct":        {trustProxy: false, want: "192.0.2.1"},
		"trusted proxy": {trustProxy: true, want: "203.0.113.7"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var seen string
			limiter := funcLimiter(func(_ context.Context, key string) (ratelimit.Result, error) {
				seen = key
				return ratelimit.Result{Allowed: false, Limit: 10}, nil
			})
			router := NewRouter(NewHandler(generator.New(&stubModel{}), limiter, nil), tt.trustProxy)

			req := httptest.NewRequest(http.MethodPost, "/generateLetter", strings.NewReader(gymBody))
			req.RemoteAddr = "192.0.2.1:5555"
			req.Header.Set("X-Forwarded-For", "203.0.113.7")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusTooManyRequests, rr.Code)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestStatusFor(t *testing.T) {
	wrap := func(err error) error {
		return &generator.Error{State: generator.StateParseRetry, Attempt: 1, Err: err}
	}

	tests := map[string]struct {
		err     error
		status  int
		msg     string
		outcome string
	}{
		"rate limit status": {wrap(&llm.TransportError{StatusCode: 429, Err: errors.New("x")}), 429, msgUnavailable, history.OutcomeRateLimited},
		"rate limit type":   {wrap(&llm.TransportError{StatusCode: 400, Type: "rate_limit_error", Err: errors.New("x")}), 429, msgUnavailable, history.OutcomeRateLimited},
		"forbidden":         {wrap(&llm.TransportError{StatusCode: 403, Err: errors.New("x")}), 500, msgFailed, history.OutcomeTransportError},
		"parse":             {wrap(&parser.ParseError{Err: errors.New("x")}), 500, msgInvalidOut, history.OutcomeParseError},
		"schema":            {wrap(&schema.Violation{Field: "tone", Reason: "x"}), 500, msgInvalidOut, history.OutcomeValidationError},
		"unknown":           {errors.New("x"), 500, msgFailed, history.OutcomeTransportError},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			status, msg, outcome := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, msg)
			assert.Equal(t, tt.outcome, outcome)
		})
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped, err := Serve(ctx, 0, http.NotFoundHandler())
	require.NoError(t, err)

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
