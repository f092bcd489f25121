/*
 * Copyright 2025 the Gimpel Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api provides the HTTP API server for the Gimpel master
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gimpelhq/gimpel/pkg/deployments"
	"github.com/gimpelhq/gimpel/pkg/directory"
	gimpelHttp "github.com/gimpelhq/gimpel/pkg/http"
	"github.com/gimpelhq/gimpel/pkg/logger"
	"github.com/gimpelhq/gimpel/pkg/models"
	"github.com/gimpelhq/gimpel/pkg/pairing"
	"github.com/gimpelhq/gimpel/pkg/registry"
)

// APIServer routes the master's REST surface to the component services.
type APIServer struct {
	router     *mux.Router
	corsConfig models.CORSConfig
	apiKey     string
	logger     logger.Logger

	registry    registry.Service
	directory   directory.Service
	deployments deployments.Service
	pairing     pairing.Service
	pairingTTL  time.Duration
}

// NewAPIServer creates a new API server instance with the given configuration
func NewAPIServer(config models.CORSConfig, options ...func(server *APIServer)) *APIServer {
	s := &APIServer{
		router:     mux.NewRouter(),
		corsConfig: config,
		logger:     logger.NewTestLogger(),
	}

	for _, o := range options {
		o(s)
	}

	s.setupRoutes()

	return s
}

// WithLogger sets the server logger
func WithLogger(log logger.Logger) func(*APIServer) {
	return func(server *APIServer) {
		server.logger = log
	}
}

// WithModuleRegistry wires the module registry into the API server
func WithModuleRegistry(r registry.Service) func(*APIServer) {
	return func(server *APIServer) {
		server.registry = r
	}
}

// WithDirectory wires the satellite directory into the API server
func WithDirectory(d directory.Service) func(*APIServer) {
	return func(server *APIServer) {
		server.directory = d
	}
}

// WithDeploymentManager wires the deployment manager into the API server
func WithDeploymentManager(m deployments.Service) func(*APIServer) {
	return func(server *APIServer) {
		server.deployments = m
	}
}

// WithPairingService wires the pairing service into the API server
func WithPairingService(p pairing.Service) func(*APIServer) {
	return func(server *APIServer) {
		server.pairing = p
	}
}

// WithAPIKey enables API key authentication on all routes
func WithAPIKey(key string) func(*APIServer) {
	return func(server *APIServer) {
		server.apiKey = key
	}
}

// WithPairingTTL overrides the default pairing lifetime
func WithPairingTTL(ttl time.Duration) func(*APIServer) {
	return func(server *APIServer) {
		server.pairingTTL = ttl
	}
}

func (s *APIServer) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return gimpelHttp.CommonMiddleware(next, s.corsConfig, s.logger)
	})

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.apiKey != "" {
		api.Use(gimpelHttp.APIKeyMiddleware(s.apiKey, s.logger))
	}

	api.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)

	api.HandleFunc("/modules", s.listModules).Methods(http.MethodGet)
	api.HandleFunc("/modules", s.uploadModule).Methods(http.MethodPost)
	api.HandleFunc("/modules/{id}/{version}", s.getModule).Methods(http.MethodGet)
	api.HandleFunc("/modules/{id}/{version}", s.deleteModule).Methods(http.MethodDelete)
	api.HandleFunc("/modules/{id}/{version}/download", s.downloadModule).Methods(http.MethodGet)

	api.HandleFunc("/satellites", s.listSatellites).Methods(http.MethodGet)
	api.HandleFunc("/satellites/{id}", s.getSatellite).Methods(http.MethodGet)
	api.HandleFunc("/satellites/{id}/deployments", s.getDeployment).Methods(http.MethodGet)
	api.HandleFunc("/satellites/{id}/deployments", s.createDeployment).Methods(http.MethodPost)
	api.HandleFunc("/satellites/{id}/deployments", s.deleteDeployment).Methods(http.MethodDelete)

	api.HandleFunc("/deployments", s.listDeployments).Methods(http.MethodGet)

	api.HandleFunc("/pairings", s.createPairing).Methods(http.MethodPost)
	api.HandleFunc("/pairings", s.listPairings).Methods(http.MethodGet)
	api.HandleFunc("/pairings/active", s.listActivePairings).Methods(http.MethodGet)
	api.HandleFunc("/pairings/redeem", s.redeemPairing).Methods(http.MethodPost)
}

// Router exposes the configured handler; lifecycle.RunServer owns the
// http.Server and its timeouts.
func (s *APIServer) Router() http.Handler {
	return s.router
}

func (s *APIServer) getHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
	}

	if s.registry != nil {
		if count, err := s.registry.Count(r.Context()); err == nil {
			health["modules"] = count
		}
	}

	if s.directory != nil {
		if count, err := s.directory.Count(r.Context()); err == nil {
			health["satellites"] = count
		}
	}

	s.writeJSON(w, http.StatusOK, health)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(statusCode)

	errResponse := models.ErrorResponse{
		Message: message,
		Status:  statusCode,
	}

	if err := json.NewEncoder(w).Encode(errResponse); err != nil {
		// Fallback in case encoding fails
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}

// writeServiceError maps service sentinel errors onto HTTP statuses so
// callers can branch on kind.
func (s *APIServer) writeServiceError(w http.ResponseWriter, err error) {
	var status int

	switch {
	case errors.Is(err, models.ErrModuleNotFound),
		errors.Is(err, models.ErrImageNotFound),
		errors.Is(err, models.ErrSatelliteNotFound),
		errors.Is(err, models.ErrDeploymentNotFound),
		errors.Is(err, models.ErrPairingNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateVersion),
		errors.Is(err, models.ErrModuleInUse),
		errors.Is(err, models.ErrPairingAlreadyUsed):
		status = http.StatusConflict
	case errors.Is(err, models.ErrPairingExpired):
		status = http.StatusGone
	case errors.Is(err, models.ErrDigestMismatch),
		errors.Is(err, models.ErrInvalidSignature),
		errors.Is(err, models.ErrInvalidReference),
		errors.Is(err, models.ErrInvalidListener),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	default:
		s.logger.Error().Err(err).Msg("Unhandled service error")

		status = http.StatusInternalServerError
	}

	writeError(w, err.Error(), status)
}
