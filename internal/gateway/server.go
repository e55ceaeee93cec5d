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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 15 * time.Second

// NewRouter builds the HTTP routes. With trustProxy set, the client address
// used for rate limiting comes from X-Forwarded-For or X-Real-IP.
func NewRouter(h *Handler, trustProxy bool) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	if trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(loggingMiddleware)
	r.Use(recoverMiddleware)
	r.Use(securityHeaders)

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Get("/health", h.ServeHealth)
	r.With(h.rateLimit).Post("/generateLetter", h.ServeGenerateLetter)

	return r
}

// Serve binds the port and serves handler until ctx is cancelled, then
// drains in-flight requests. The returned channel is closed once the
// server has stopped.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		<-ctx.Done()
		slog.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown incomplete", "error", err)
			server.Close()
		}
	}()

	go func() {
		slog.Info("http server listening", "port", port)
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	return stopped, nil
}
