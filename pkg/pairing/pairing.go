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

// Package pairing issues and redeems one-time enrollment tokens. A redeemed
// token registers the presenting satellite; the full token leaves this
// package exactly once, in the create response.
package pairing

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gimpelhq/gimpel/pkg/db"
	"github.com/gimpelhq/gimpel/pkg/logger"
	"github.com/gimpelhq/gimpel/pkg/models"
)

const (
	// tokenAlphabet excludes visually ambiguous characters (0/O, 1/I/L).
	tokenAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	tokenLength   = 8

	// DefaultTTL is the pairing lifetime when the caller does not choose one.
	DefaultTTL = 10 * time.Minute
)

// Service issues and redeems pairing tokens.
type Service interface {
	Create(ctx context.Context, ttl time.Duration) (*models.Pairing, error)
	Redeem(ctx context.Context, req *models.PairingRedeemRequest) (*models.Satellite, error)
	List(ctx context.Context) ([]*models.Pairing, error)
	ListActive(ctx context.Context) ([]*models.Pairing, error)
}

// Manager implements Service over the pairing store.
type Manager struct {
	store  db.PairingStore
	logger logger.Logger
}

func NewManager(store db.PairingStore, log logger.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: log,
	}
}

// Create issues a new pairing. A non-positive ttl falls back to DefaultTTL.
// The returned record carries the full token; it is never retrievable again.
func (m *Manager) Create(ctx context.Context, ttl time.Duration) (*models.Pairing, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generating pairing token: %w", err)
	}

	now := time.Now()

	p := &models.Pairing{
		ID:           uuid.New().String(),
		Token:        token,
		DisplayToken: redactToken(token),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}

	if err := m.store.CreatePairing(ctx, p); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("pairing_id", p.ID).
		Str("display_token", p.DisplayToken).
		Time("expires_at", p.ExpiresAt).
		Msg("Pairing created")

	return p, nil
}

// Redeem consumes a pairing token and registers the presenting satellite.
// The used-flag check, the mark, and the registration are one store
// transaction, so a token redeems exactly once no matter how many satellites
// race on it.
func (m *Manager) Redeem(ctx context.Context, req *models.PairingRedeemRequest) (*models.Satellite, error) {
	now := time.Now()

	sat := &models.Satellite{
		ID:           uuid.New().String(),
		Hostname:     req.Hostname,
		IPAddress:    req.IP,
		OS:           req.OS,
		Arch:         req.Arch,
		Status:       models.SatelliteStatusRegistered,
		RegisteredAt: now,
		LastSeenAt:   now,
	}

	p, err := m.store.RedeemPairing(ctx, req.Token, sat)
	if err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("pairing_id", p.ID).
		Str("satellite_id", sat.ID).
		Str("hostname", sat.Hostname).
		Msg("Pairing redeemed, satellite registered")

	return sat, nil
}

// List returns every pairing with the full token stripped.
func (m *Manager) List(ctx context.Context) ([]*models.Pairing, error) {
	pairings, err := m.store.ListPairings(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range pairings {
		p.Token = ""
	}

	return pairings, nil
}

// ListActive returns the unredeemed, unexpired pairings, token stripped.
func (m *Manager) ListActive(ctx context.Context) ([]*models.Pairing, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	active := make([]*models.Pairing, 0, len(all))

	for _, p := range all {
		if p.Active(now) {
			active = append(active, p)
		}
	}

	return active, nil
}

func generateToken() (string, error) {
	raw := make([]byte, tokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	code := make([]byte, tokenLength)
	for i := range code {
		code[i] = tokenAlphabet[int(raw[i])%len(tokenAlphabet)]
	}

	return string(code), nil
}

// redactToken keeps the first half for operator correlation and blanks the
// rest. The redaction is irreversible: the full token is never derivable
// from a listing.
func redactToken(token string) string {
	return token[:4] + "-****"
}
