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

package models

import "time"

// Deployment is the current, wholly-replaceable module set for one satellite.
// Version increases by exactly 1 on every successful replace; a satellite
// never observes a mixed-version module set.
type Deployment struct {
	SatelliteID string             `json:"satellite_id"`
	Version     int64              `json:"version"`
	Modules     []ModuleAssignment `json:"modules"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ModuleAssignment binds one module version, its listeners, and its runtime
// environment into a deployment.
type ModuleAssignment struct {
	ModuleID      string            `json:"module_id"`
	ModuleVersion string            `json:"module_version"`
	Enabled       bool              `json:"enabled"`
	ExecutionMode string            `json:"execution_mode,omitempty"`
	Listeners     []Listener        `json:"listeners,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
}

// Listener is a network endpoint a deployed module exposes on its satellite.
type Listener struct {
	ID              string `json:"id"`
	Protocol        string `json:"protocol"`
	Port            uint32 `json:"port"`
	HighInteraction bool   `json:"high_interaction"`
}

// DeploymentRequest is the wire form of a deployment replace. Assignments
// leaving Enabled unset default to enabled.
type DeploymentRequest struct {
	Modules []ModuleAssignmentRequest `json:"modules"`
}

// ModuleAssignmentRequest mirrors ModuleAssignment with an optional Enabled
// flag so absent and explicit-false are distinguishable.
type ModuleAssignmentRequest struct {
	ModuleID      string            `json:"module_id"`
	ModuleVersion string            `json:"module_version"`
	Enabled       *bool             `json:"enabled,omitempty"`
	ExecutionMode string            `json:"execution_mode,omitempty"`
	Listeners     []Listener        `json:"listeners,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
}

// Assignment converts the request form, defaulting Enabled to true.
func (r *ModuleAssignmentRequest) Assignment() ModuleAssignment {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return ModuleAssignment{
		ModuleID:      r.ModuleID,
		ModuleVersion: r.ModuleVersion,
		Enabled:       enabled,
		ExecutionMode: r.ExecutionMode,
		Listeners:     r.Listeners,
		Env:           r.Env,
	}
}
