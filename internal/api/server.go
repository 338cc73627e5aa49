/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package api is the ambient HTTP surface: liveness/readiness probes,
// a Prometheus exposition endpoint, and a thin REST front for the
// coreapi collaborator (read-only target/observation queries, manual
// probe invocation). Shaped on the teacher's chi router setup in
// internal/api/server.go, trimmed to what this core needs — the full
// CRUD/UI surface the teacher exposed belongs to a REST layer outside
// this repo's scope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uptimeguard/monitorcore/internal/coreapi"
	"github.com/uptimeguard/monitorcore/internal/metrics"
	"github.com/uptimeguard/monitorcore/internal/store"
)

// Server is the ambient health/metrics/coreapi HTTP server.
type Server struct {
	store    store.Store
	core     *coreapi.API
	bindAddr string
	log      logr.Logger
	server   *http.Server
}

func NewServer(st store.Store, core *coreapi.API, bindAddr string, log logr.Logger) *Server {
	if bindAddr == "" {
		bindAddr = ":8080"
	}
	return &Server{store: st, core: core, bindAddr: bindAddr, log: log}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// with a 10s grace period.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.bindAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.log.Info("starting api server", "addr", s.bindAddr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(err, "api server error")
		}
	}()

	<-ctx.Done()
	s.log.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/targets/{id}", s.handleGetTarget)
		r.Get("/targets/{id}/observations", s.handleListObservations)
		r.Post("/targets/{id}/probe", s.handleManualProbe)
		r.Post("/probe/batch", s.handleBatchProbe)
		r.Post("/targets/{id}/invalidate", s.handleInvalidate)
		r.Delete("/targets/{id}", s.handleDeleteTarget)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target, err := s.core.GetTarget(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if target == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "target not found"})
		return
	}
	writeJSON(w, http.StatusOK, target)
}

func (s *Server) handleListObservations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	since := time.Now().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since_hours"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			since = time.Now().Add(-time.Duration(hours) * time.Hour)
		}
	}
	limit := 500
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	observations, err := s.core.ListObservations(r.Context(), id, since, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, observations)
}

func (s *Server) handleManualProbe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force := r.URL.Query().Get("force") == "true"

	obs, err := s.core.ManualProbe(r.Context(), id, force)
	if err != nil {
		var cooldown *coreapi.ErrCooldown
		if errors.As(err, &cooldown) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cooldown.RetryAfter.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if obs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "target not found"})
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

type batchProbeRequest struct {
	TargetIDs []string `json:"target_ids"`
	Force     bool     `json:"force"`
}

func (s *Server) handleBatchProbe(w http.ResponseWriter, r *http.Request) {
	var req batchProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	results, errs := s.core.BatchProbe(r.Context(), req.TargetIDs, req.Force)

	errStrings := make(map[string]string, len(errs))
	for id, err := range errs {
		errStrings[id] = err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "errors": errStrings})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.core.InvalidateTarget(id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "invalidated"})
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.core.DeleteTarget(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
