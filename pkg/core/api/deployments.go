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

	"github.com/gorilla/mux"

	"github.com/gimpelhq/gimpel/pkg/deployments"
	"github.com/gimpelhq/gimpel/pkg/models"
)

func (s *APIServer) getDeployment(w http.ResponseWriter, r *http.Request) {
	dep, err := s.deployments.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, dep)
}

func (s *APIServer) createDeployment(w http.ResponseWriter, r *http.Request) {
	satelliteID := mux.Vars(r)["id"]

	var req models.DeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "failed to decode request: "+err.Error(), http.StatusBadRequest)
		return
	}

	assignments := make([]models.ModuleAssignment, 0, len(req.Modules))
	for i := range req.Modules {
		assignments = append(assignments, req.Modules[i].Assignment())
	}

	dep, err := s.deployments.CreateOrReplace(r.Context(), satelliteID, assignments)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, dep)
}

func (s *APIServer) deleteDeployment(w http.ResponseWriter, r *http.Request) {
	if err := s.deployments.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *APIServer) listDeployments(w http.ResponseWriter, r *http.Request) {
	statusFilter := models.SatelliteStatus(r.URL.Query().Get("status"))

	deps, err := s.deployments.List(r.Context(), statusFilter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if deps == nil {
		deps = []*deployments.DeploymentWithStatus{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"deployments": deps,
	})
}
