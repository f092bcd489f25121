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

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gimpelhq/gimpel/pkg/models"
)

// CreatePairingRequest selects the pairing lifetime. Zero means the service
// default.
type CreatePairingRequest struct {
	TTLSeconds int64 `json:"ttl_seconds"`
}

// PairingCreateResponse is the only place the full token ever appears.
type PairingCreateResponse struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	DisplayToken string    `json:"display_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	ExpiresIn    int       `json:"expires_in_seconds"`
}

// RedeemPairingRequest carries the satellite facts presented with a token.
type RedeemPairingRequest struct {
	Token    string `json:"token"`
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
	OS       string `json:"os"`
	Arch     string `json:"arch"`
}

func (s *APIServer) createPairing(w http.ResponseWriter, r *http.Request) {
	var req CreatePairingRequest

	// An empty body means default TTL.
	_ = json.NewDecoder(r.Body).Decode(&req)

	ttl := s.pairingTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	p, err := s.pairing.Create(r.Context(), ttl)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, PairingCreateResponse{
		ID:           p.ID,
		Token:        p.Token,
		DisplayToken: p.DisplayToken,
		ExpiresAt:    p.ExpiresAt,
		ExpiresIn:    int(time.Until(p.ExpiresAt).Seconds()),
	})
}

func (s *APIServer) redeemPairing(w http.ResponseWriter, r *http.Request) {
	var req RedeemPairingRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "failed to decode request: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Token == "" {
		writeError(w, "token is required", http.StatusBadRequest)
		return
	}

	sat, err := s.pairing.Redeem(r.Context(), &models.PairingRedeemRequest{
		Token:    req.Token,
		Hostname: req.Hostname,
		IP:       req.IP,
		OS:       req.OS,
		Arch:     req.Arch,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sat)
}

func (s *APIServer) listPairings(w http.ResponseWriter, r *http.Request) {
	pairings, err := s.pairing.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writePairings(w, pairings)
}

func (s *APIServer) listActivePairings(w http.ResponseWriter, r *http.Request) {
	pairings, err := s.pairing.ListActive(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writePairings(w, pairings)
}

func (s *APIServer) writePairings(w http.ResponseWriter, pairings []*models.Pairing) {
	if pairings == nil {
		pairings = []*models.Pairing{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pairings": pairings,
	})
}
