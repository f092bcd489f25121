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

// Package deployments assigns module versions and runtime configuration to
// satellites. A deployment is always replaced as a whole: validation runs
// first, then the store swaps the full descriptor and bumps the version in
// one transaction.
package deployments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gimpelhq/gimpel/pkg/db"
	"github.com/gimpelhq/gimpel/pkg/logger"
	"github.com/gimpelhq/gimpel/pkg/models"
)

const maxListenerPort = 65535

// Service is the deployment manager.
type Service interface {
	CreateOrReplace(ctx context.Context, satelliteID string, assignments []models.ModuleAssignment) (*models.Deployment, error)
	Get(ctx context.Context, satelliteID string) (*models.Deployment, error)
	Delete(ctx context.Context, satelliteID string) error
	List(ctx context.Context, statusFilter models.SatelliteStatus) ([]*DeploymentWithStatus, error)
}

// DeploymentWithStatus joins a deployment with its satellite's current status.
type DeploymentWithStatus struct {
	*models.Deployment
	SatelliteStatus models.SatelliteStatus `json:"satellite_status"`
}

// Store is the storage slice the manager needs.
type Store interface {
	db.DeploymentStore
	GetSatellite(ctx context.Context, id string) (*models.Satellite, error)
	GetModule(ctx context.Context, id, version string) (*models.Module, error)
	ListSatellites(ctx context.Context) ([]*models.Satellite, error)
}

// Manager implements Service.
type Manager struct {
	store  Store
	logger logger.Logger
}

func NewManager(store Store, log logger.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: log,
	}
}

// CreateOrReplace validates the target satellite, every module reference, and
// every listener and environment entry, then swaps the satellite's deployment.
// On any validation failure the previous deployment is left untouched.
func (m *Manager) CreateOrReplace(ctx context.Context, satelliteID string, assignments []models.ModuleAssignment) (*models.Deployment, error) {
	if _, err := m.store.GetSatellite(ctx, satelliteID); err != nil {
		return nil, err
	}

	for i := range assignments {
		if err := m.validateAssignment(ctx, &assignments[i]); err != nil {
			return nil, err
		}
	}

	dep, err := m.store.ReplaceDeployment(ctx, &models.Deployment{
		SatelliteID: satelliteID,
		Modules:     assignments,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("satellite_id", dep.SatelliteID).
		Int64("version", dep.Version).
		Int("modules", len(dep.Modules)).
		Msg("Deployment replaced")

	return dep, nil
}

func (m *Manager) validateAssignment(ctx context.Context, a *models.ModuleAssignment) error {
	if a.ModuleID == "" || a.ModuleVersion == "" {
		return fmt.Errorf("%w: assignment needs module_id and module_version", models.ErrValidation)
	}

	if _, err := m.store.GetModule(ctx, a.ModuleID, a.ModuleVersion); err != nil {
		if errors.Is(err, models.ErrModuleNotFound) {
			return fmt.Errorf("%w: module %s:%s is not in the registry",
				models.ErrInvalidReference, a.ModuleID, a.ModuleVersion)
		}

		return err
	}

	seen := make(map[string]struct{}, len(a.Listeners))

	for _, l := range a.Listeners {
		if l.ID == "" {
			return fmt.Errorf("%w: listener on %s:%s has no id",
				models.ErrInvalidListener, a.ModuleID, a.ModuleVersion)
		}

		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("%w: duplicate listener id %q on %s:%s",
				models.ErrInvalidListener, l.ID, a.ModuleID, a.ModuleVersion)
		}

		seen[l.ID] = struct{}{}

		if l.Port < 1 || l.Port > maxListenerPort {
			return fmt.Errorf("%w: listener %q port %d out of range",
				models.ErrInvalidListener, l.ID, l.Port)
		}
	}

	for key := range a.Env {
		if key == "" || strings.ContainsAny(key, " =\x00") {
			return fmt.Errorf("%w: invalid environment variable name %q on %s:%s",
				models.ErrValidation, key, a.ModuleID, a.ModuleVersion)
		}
	}

	return nil
}

func (m *Manager) Get(ctx context.Context, satelliteID string) (*models.Deployment, error) {
	return m.store.GetDeployment(ctx, satelliteID)
}

func (m *Manager) Delete(ctx context.Context, satelliteID string) error {
	if err := m.store.DeleteDeployment(ctx, satelliteID); err != nil {
		return err
	}

	m.logger.Info().
		Str("satellite_id", satelliteID).
		Msg("Deployment deleted")

	return nil
}

// List returns current deployments joined with satellite status. A non-empty
// statusFilter keeps only deployments whose satellite is in that status.
func (m *Manager) List(ctx context.Context, statusFilter models.SatelliteStatus) ([]*DeploymentWithStatus, error) {
	if statusFilter != "" && !models.ValidSatelliteStatus(statusFilter) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStatus, statusFilter)
	}

	deps, err := m.store.ListDeployments(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]models.SatelliteStatus)

	satellites, err := m.store.ListSatellites(ctx)
	if err != nil {
		return nil, err
	}

	for _, sat := range satellites {
		statuses[sat.ID] = sat.Status
	}

	out := make([]*DeploymentWithStatus, 0, len(deps))

	for _, dep := range deps {
		status, ok := statuses[dep.SatelliteID]
		if !ok {
			status = models.SatelliteStatusUnknown
		}

		if statusFilter != "" && status != statusFilter {
			continue
		}

		out = append(out, &DeploymentWithStatus{
			Deployment:      dep,
			SatelliteStatus: status,
		})
	}

	return out, nil
}
