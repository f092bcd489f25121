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

// Package models defines the shared data types for the Gimpel master.
package models

import (
	"fmt"
	"time"
)

// Module is the metadata record for one signed, versioned module image.
// The (ID, Version) pair is immutable once created.
type Module struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Protocol    string    `json:"protocol"`
	Digest      string    `json:"digest"`
	ImageRef    string    `json:"image_ref,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	Signature   []byte    `json:"signature,omitempty"`
	SignedBy    string    `json:"signed_by,omitempty"`
	SignedAt    time.Time `json:"signed_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ModuleKey builds the store key for a module version.
func ModuleKey(id, version string) string {
	return fmt.Sprintf("%s:%s", id, version)
}

// ModuleUploadRequest carries the metadata fields of a module upload. The
// image bytes travel separately as a stream.
type ModuleUploadRequest struct {
	ID          string
	Name        string
	Description string
	Version     string
	Protocol    string
	// Digest is optional; when present it must match the digest computed
	// from the uploaded image bytes.
	Digest    string
	Signature []byte
	SignedBy  string
	SignedAt  time.Time
}
