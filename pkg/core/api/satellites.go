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
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gimpelhq/gimpel/pkg/models"
)

func (s *APIServer) listSatellites(w http.ResponseWriter, r *http.Request) {
	satellites, err := s.directory.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if satellites == nil {
		satellites = []*models.Satellite{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"satellites": satellites,
	})
}

func (s *APIServer) getSatellite(w http.ResponseWriter, r *http.Request) {
	sat, err := s.directory.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sat)
}
