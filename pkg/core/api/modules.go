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
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/gimpelhq/gimpel/pkg/models"
)

// maxUploadMemory bounds the in-memory part of multipart parsing; the image
// part itself is streamed from its spool file.
const maxUploadMemory = 32 << 20

// ModuleUploadResponse is the wire shape of a successful upload. The
// signature travels hex encoded, matching the upload form field.
type ModuleUploadResponse struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	Digest    string    `json:"digest"`
	Signature string    `json:"signature,omitempty"`
	SignedBy  string    `json:"signed_by,omitempty"`
	SignedAt  int64     `json:"signed_at,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *APIServer) listModules(w http.ResponseWriter, r *http.Request) {
	modules, err := s.registry.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if modules == nil {
		modules = []*models.Module{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"modules": modules,
	})
}

func (s *APIServer) uploadModule(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, "failed to parse multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	req := &models.ModuleUploadRequest{
		ID:          r.FormValue("id"),
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Version:     r.FormValue("version"),
		Protocol:    r.FormValue("protocol"),
		Digest:      r.FormValue("digest"),
		SignedBy:    r.FormValue("signed_by"),
	}

	if req.ID == "" || req.Version == "" {
		writeError(w, "id and version are required", http.StatusBadRequest)
		return
	}

	if signatureHex := r.FormValue("signature"); signatureHex != "" {
		signature, err := hex.DecodeString(signatureHex)
		if err != nil {
			writeError(w, "invalid signature encoding", http.StatusBadRequest)
			return
		}

		req.Signature = signature
	}

	if signedAtStr := r.FormValue("signed_at"); signedAtStr != "" {
		signedAt, err := strconv.ParseInt(signedAtStr, 10, 64)
		if err != nil {
			writeError(w, "invalid signed_at", http.StatusBadRequest)
			return
		}

		req.SignedAt = time.Unix(signedAt, 0)
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, "image file is required", http.StatusBadRequest)
		return
	}

	defer func() { _ = file.Close() }()

	module, err := s.registry.Upload(r.Context(), req, file)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := ModuleUploadResponse{
		ID:        module.ID,
		Version:   module.Version,
		Digest:    module.Digest,
		Signature: hex.EncodeToString(module.Signature),
		SignedBy:  module.SignedBy,
		Size:      module.SizeBytes,
		CreatedAt: module.CreatedAt,
	}

	if !module.SignedAt.IsZero() {
		resp.SignedAt = module.SignedAt.Unix()
	}

	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *APIServer) getModule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	module, err := s.registry.Get(r.Context(), vars["id"], vars["version"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, module)
}

func (s *APIServer) deleteModule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := s.registry.Delete(r.Context(), vars["id"], vars["version"]); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *APIServer) downloadModule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	module, reader, err := s.registry.Download(r.Context(), vars["id"], vars["version"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s_%s.img", module.ID, module.Version))
	w.Header().Set("Content-Length", strconv.FormatInt(module.SizeBytes, 10))
	w.Header().Set("Digest", module.Digest)

	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error().
			Err(err).
			Str("module_id", module.ID).
			Str("version", module.Version).
			Msg("Failed to stream module image")
	}
}
