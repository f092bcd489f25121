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

// Package directory tracks the fleet of satellites known to the master:
// registration, liveness updates, and a background sweep that downgrades
// satellites that stop reporting.
package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gimpelhq/gimpel/pkg/db"
	"github.com/gimpelhq/gimpel/pkg/logger"
	"github.com/gimpelhq/gimpel/pkg/models"
)

// Service is the satellite directory.
type Service interface {
	Register(ctx context.Context, req *models.SatelliteRegisterRequest) (*models.Satellite, error)
	Get(ctx context.Context, id string) (*models.Satellite, error)
	List(ctx context.Context) ([]*models.Satellite, error)
	Touch(ctx context.Context, id string, status models.SatelliteStatus, seenAt time.Time) (*models.Satellite, error)
	Count(ctx context.Context) (int, error)
}

// Directory implements Service over the satellite store.
type Directory struct {
	store  db.SatelliteStore
	logger logger.Logger
}

func NewDirectory(store db.SatelliteStore, log logger.Logger) *Directory {
	return &Directory{
		store:  store,
		logger: log,
	}
}

// Register creates a new satellite record with a generated ID and status
// "registered".
func (d *Directory) Register(ctx context.Context, req *models.SatelliteRegisterRequest) (*models.Satellite, error) {
	now := time.Now()

	sat := &models.Satellite{
		ID:           uuid.New().String(),
		Hostname:     req.Hostname,
		IPAddress:    req.IPAddress,
		OS:           req.OS,
		Arch:         req.Arch,
		Status:       models.SatelliteStatusRegistered,
		RegisteredAt: now,
		LastSeenAt:   now,
	}

	if err := d.store.CreateSatellite(ctx, sat); err != nil {
		return nil, err
	}

	d.logger.Info().
		Str("satellite_id", sat.ID).
		Str("hostname", sat.Hostname).
		Msg("Satellite registered")

	return sat, nil
}

func (d *Directory) Get(ctx context.Context, id string) (*models.Satellite, error) {
	return d.store.GetSatellite(ctx, id)
}

func (d *Directory) List(ctx context.Context) ([]*models.Satellite, error) {
	return d.store.ListSatellites(ctx)
}

// Touch records a liveness report. A zero seenAt means "now". Reports older
// than the stored last-seen timestamp are ignored.
func (d *Directory) Touch(ctx context.Context, id string, status models.SatelliteStatus, seenAt time.Time) (*models.Satellite, error) {
	if !models.ValidSatelliteStatus(status) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}

	if seenAt.IsZero() {
		seenAt = time.Now()
	}

	return d.store.TouchSatellite(ctx, id, status, seenAt)
}

func (d *Directory) Count(ctx context.Context) (int, error) {
	return d.store.CountSatellites(ctx)
}
