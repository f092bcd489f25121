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

package db

import (
	"context"
	"time"

	"github.com/gimpelhq/gimpel/pkg/models"
)

// Service is the storage capability set the services are built on. Each
// component receives its own handle, injected at construction.
type Service interface {
	ModuleStore
	SatelliteStore
	DeploymentStore
	PairingStore

	Close() error
}

// ModuleStore persists module metadata. Image blobs live in the image store,
// not here.
type ModuleStore interface {
	// CreateModule fails with models.ErrDuplicateVersion if the (id, version)
	// pair already exists. Duplicate detection and the write are one
	// transaction.
	CreateModule(ctx context.Context, mod *models.Module) error
	GetModule(ctx context.Context, id, version string) (*models.Module, error)
	ListModules(ctx context.Context) ([]*models.Module, error)
	// DeleteModule fails with models.ErrModuleInUse while any deployment
	// references the (id, version) pair.
	DeleteModule(ctx context.Context, id, version string) error
	CountModules(ctx context.Context) (int, error)
}

type SatelliteStore interface {
	CreateSatellite(ctx context.Context, sat *models.Satellite) error
	GetSatellite(ctx context.Context, id string) (*models.Satellite, error)
	ListSatellites(ctx context.Context) ([]*models.Satellite, error)
	// TouchSatellite applies the status/last-seen update only when seenAt is
	// not older than the stored last_seen_at: the writer with the newest
	// timestamp wins, independent of call order.
	TouchSatellite(ctx context.Context, id string, status models.SatelliteStatus, seenAt time.Time) (*models.Satellite, error)
	// MarkSatelliteStatus changes the status without touching last_seen_at.
	MarkSatelliteStatus(ctx context.Context, id string, status models.SatelliteStatus) error
	CountSatellites(ctx context.Context) (int, error)
}

type DeploymentStore interface {
	// ReplaceDeployment swaps the satellite's entire deployment and bumps the
	// version by exactly 1 (starting at 1) inside one transaction.
	ReplaceDeployment(ctx context.Context, dep *models.Deployment) (*models.Deployment, error)
	GetDeployment(ctx context.Context, satelliteID string) (*models.Deployment, error)
	ListDeployments(ctx context.Context) ([]*models.Deployment, error)
	DeleteDeployment(ctx context.Context, satelliteID string) error
}

type PairingStore interface {
	CreatePairing(ctx context.Context, p *models.Pairing) error
	GetPairingByToken(ctx context.Context, token string) (*models.Pairing, error)
	// RedeemPairing marks the pairing used and registers the satellite in one
	// transaction. Exactly one of any number of concurrent redemptions of the
	// same token succeeds.
	RedeemPairing(ctx context.Context, token string, sat *models.Satellite) (*models.Pairing, error)
	ListPairings(ctx context.Context) ([]*models.Pairing, error)
}
