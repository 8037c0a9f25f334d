// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/stacklok/toolhive-core/env"
	"go.opentelemetry.io/otel"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/logger"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/login"
	"github.com/stacklok/socialauth/pkg/socialauth/telemetry"
)

const (
	defaultServeAddr  = "127.0.0.1:8080"
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func newServeCmd() *cobra.Command {
	var addr string
	var runtimeMetrics bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a demo login server",
		Long: `Run an HTTP server that performs complete logins with the configured providers.

Routes:
  GET  /login/{provider}     redirect to the provider
  GET  /callback/{provider}  complete the login (POST for form_post providers)
  GET  /healthz              liveness and state store health
  GET  /metrics              Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr, runtimeMetrics)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultServeAddr, "Listen address")
	cmd.Flags().BoolVar(&runtimeMetrics, "runtime-metrics", true, "Export Go runtime and process metrics")
	return cmd
}

func runServe(ctx context.Context, addr string, runtimeMetrics bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newHTTPClient(cfg)
	if err != nil {
		return err
	}

	meterProvider, err := telemetry.NewPrometheusProvider(runtimeMetrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shut down meter provider: %v", err)
		}
	}()

	registry, err := registryOf(cfg, client, func(p socialauth.OAuthProvider) (socialauth.OAuthProvider, error) {
		return telemetry.Instrument(p, meterProvider, otel.GetTracerProvider())
	})
	if err != nil {
		return err
	}
	if err := registry.Warm(ctx); err != nil {
		// Discovery is retried lazily on the first login.
		logger.Warnw("Provider warm-up failed", "error", err)
	}

	store, err := cfg.StateStore.OpenStateStore(ctx, &env.OSReader{})
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	gen, err := cfg.PKCEGenerator()
	if err != nil {
		return err
	}
	manager, err := login.NewManager(registry, store, login.WithPKCEGenerator(gen))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(&server{manager: manager, store: store, metrics: meterProvider.Handler()}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Serving logins for %v on http://%s", registry.Names(), addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type server struct {
	manager *login.Manager
	store   login.Store
	metrics http.Handler
	log     *slog.Logger
}

func newRouter(s *server) http.Handler {
	if s.log == nil {
		s.log = logger.Component("serve")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/login/{provider}", s.handleLogin)
	r.Get("/callback/{provider}", s.handleCallback)
	r.Post("/callback/{provider}", s.handleCallback)
	return r
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h, ok := s.store.(interface{ Health(context.Context) error }); ok {
		if err := h.Health(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: "state_store_unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	auth, err := s.manager.Begin(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	http.Redirect(w, r, auth.URL, http.StatusFound)
}

type identityBody struct {
	Provider string                     `json:"provider"`
	Subject  string                     `json:"subject"`
	Claims   *socialauth.StandardClaims `json:"claims"`
	Source   string                     `json:"source"`
}

func (s *server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request"})
		return
	}
	if code := r.Form.Get("error"); code != "" {
		if err := s.manager.Cancel(r.Context(), r.Form.Get("state")); err != nil {
			s.log.Warn("failed to discard pending login", "error", err)
		}
		respondJSON(w, http.StatusBadRequest, errorBody{Error: code, ErrorDescription: r.Form.Get("error_description")})
		return
	}

	identity, err := s.manager.Complete(r.Context(), chi.URLParam(r, "provider"), r.Form.Get("state"), r.Form.Get("code"))
	if err != nil {
		s.respondError(w, err)
		return
	}

	source := "userinfo"
	if identity.IDToken != nil {
		source = "id_token"
	}
	respondJSON(w, http.StatusOK, identityBody{
		Provider: identity.Provider,
		Subject:  identity.Subject,
		Claims:   identity.Claims,
		Source:   source,
	})
}

func (s *server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, login.ErrStateNotFound), errors.Is(err, login.ErrProviderMismatch):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_state"})
		return
	case errors.Is(err, login.ErrUnknownProvider):
		respondJSON(w, http.StatusNotFound, errorBody{Error: "unknown_provider"})
		return
	}

	kind, ok := autherrors.KindOf(err)
	if !ok {
		s.log.Error("login failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "server_error"})
		return
	}
	s.log.Debug("login rejected", "kind", string(kind), "error", err)
	status := http.StatusUnauthorized
	switch kind {
	case autherrors.KindDiscoveryFailed:
		status = http.StatusBadGateway
	case autherrors.KindInvalidConfiguration:
		status = http.StatusBadRequest
	}
	respondJSON(w, status, errorBody{Error: string(kind), ErrorDescription: autherrors.DescriptionOf(err)})
}
