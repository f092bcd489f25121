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

package registry

import (
	"context"
	"io"

	"github.com/gimpelhq/gimpel/pkg/models"
)

// Service is the module registry: signed, versioned module images plus
// their metadata.
type Service interface {
	// Upload stores a new module version. The image bytes are consumed from
	// body exactly once; the digest is computed while streaming.
	Upload(ctx context.Context, req *models.ModuleUploadRequest, body io.Reader) (*models.Module, error)

	// Get returns the metadata for one module version.
	Get(ctx context.Context, id, version string) (*models.Module, error)

	// Download returns the metadata together with a reader over the stored
	// image bytes. The caller owns closing the reader.
	Download(ctx context.Context, id, version string) (*models.Module, io.ReadCloser, error)

	// Delete removes a module version and its image. Versions referenced by
	// any deployment cannot be deleted.
	Delete(ctx context.Context, id, version string) error

	// List returns all stored module versions.
	List(ctx context.Context) ([]*models.Module, error)

	// Count returns the number of stored module versions.
	Count(ctx context.Context) (int, error)
}
