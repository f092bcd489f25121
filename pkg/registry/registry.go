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

// Package registry implements the module registry. It pairs metadata rows in
// the store with image blobs on disk and enforces digest and signature checks
// on upload.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/gimpelhq/gimpel/pkg/db"
	"github.com/gimpelhq/gimpel/pkg/imagestore"
	"github.com/gimpelhq/gimpel/pkg/logger"
	"github.com/gimpelhq/gimpel/pkg/models"
	"github.com/gimpelhq/gimpel/pkg/signing"
	"github.com/opencontainers/go-digest"
)

// refPattern bounds module IDs and versions to filename-safe characters.
// Blob paths are derived from both, so anything outside this set would allow
// path traversal.
var refPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// Registry implements Service over a module store and an image blob store.
type Registry struct {
	store    db.ModuleStore
	images   *imagestore.Store
	verifier *signing.Verifier
	logger   logger.Logger

	mu      sync.Mutex
	uploads map[string]*sync.Mutex
}

// NewRegistry builds a Registry. A nil verifier disables signature checks;
// uploads then store whatever signature the caller sent without validating it.
func NewRegistry(store db.ModuleStore, images *imagestore.Store, verifier *signing.Verifier, log logger.Logger) *Registry {
	return &Registry{
		store:    store,
		images:   images,
		verifier: verifier,
		logger:   log,
		uploads:  make(map[string]*sync.Mutex),
	}
}

// uploadLock returns the mutex serializing uploads of one (id, version).
// Uploads of unrelated module versions proceed in parallel.
func (r *Registry) uploadLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.uploads[key]
	if !ok {
		lock = &sync.Mutex{}
		r.uploads[key] = lock
	}

	return lock
}

func (r *Registry) Upload(ctx context.Context, req *models.ModuleUploadRequest, body io.Reader) (*models.Module, error) {
	if err := validateRef(req.ID, req.Version); err != nil {
		return nil, err
	}

	// The duplicate check, blob write, and metadata commit must not
	// interleave with another upload of the same version.
	lock := r.uploadLock(models.ModuleKey(req.ID, req.Version))
	lock.Lock()
	defer lock.Unlock()

	// Reject duplicates before the blob write, which would otherwise
	// overwrite the existing version's image.
	switch _, err := r.store.GetModule(ctx, req.ID, req.Version); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s:%s", models.ErrDuplicateVersion, req.ID, req.Version)
	case !errors.Is(err, models.ErrModuleNotFound):
		return nil, err
	}

	meta, err := r.images.Write(ctx, req.ID, req.Version, body)
	if err != nil {
		return nil, fmt.Errorf("storing module image: %w", err)
	}

	module, err := r.finishUpload(ctx, req, meta)
	if err != nil {
		// The metadata row was never written, so the blob is orphaned.
		if rmErr := r.images.Remove(ctx, req.ID, req.Version); rmErr != nil {
			r.logger.Warn().
				Err(rmErr).
				Str("module_id", req.ID).
				Str("version", req.Version).
				Msg("Failed to remove image after rejected upload")
		}

		return nil, err
	}

	r.logger.Info().
		Str("module_id", module.ID).
		Str("version", module.Version).
		Str("digest", module.Digest).
		Int64("size_bytes", module.SizeBytes).
		Msg("Module uploaded")

	return module, nil
}

func (r *Registry) finishUpload(ctx context.Context, req *models.ModuleUploadRequest, meta *imagestore.ImageMeta) (*models.Module, error) {
	if req.Digest != "" && req.Digest != meta.Digest.String() {
		return nil, fmt.Errorf("%w: expected %s, got %s",
			models.ErrDigestMismatch, meta.Digest, req.Digest)
	}

	if r.verifier != nil {
		if err := r.verifier.VerifyDigest(meta.Digest, req.Signature, req.SignedBy); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrInvalidSignature, err)
		}
	}

	signedAt := req.SignedAt
	if signedAt.IsZero() && len(req.Signature) > 0 {
		signedAt = time.Now()
	}

	module := &models.Module{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Protocol:    req.Protocol,
		Digest:      meta.Digest.String(),
		SizeBytes:   meta.SizeBytes,
		Signature:   req.Signature,
		SignedBy:    req.SignedBy,
		SignedAt:    signedAt,
	}

	if err := r.store.CreateModule(ctx, module); err != nil {
		return nil, err
	}

	return module, nil
}

func (r *Registry) Get(ctx context.Context, id, version string) (*models.Module, error) {
	if err := validateRef(id, version); err != nil {
		return nil, err
	}

	return r.store.GetModule(ctx, id, version)
}

func (r *Registry) Download(ctx context.Context, id, version string) (*models.Module, io.ReadCloser, error) {
	module, err := r.Get(ctx, id, version)
	if err != nil {
		return nil, nil, err
	}

	reader, size, err := r.images.Open(ctx, id, version)
	if err != nil {
		return nil, nil, err
	}

	if size != module.SizeBytes {
		_ = reader.Close()
		return nil, nil, fmt.Errorf("%w: image size %d does not match recorded %d",
			models.ErrImageNotFound, size, module.SizeBytes)
	}

	return module, reader, nil
}

func (r *Registry) Delete(ctx context.Context, id, version string) error {
	if err := validateRef(id, version); err != nil {
		return err
	}

	if err := r.store.DeleteModule(ctx, id, version); err != nil {
		return err
	}

	// Metadata is gone; a leftover blob is unreachable but worth reporting.
	if err := r.images.Remove(ctx, id, version); err != nil {
		r.logger.Warn().
			Err(err).
			Str("module_id", id).
			Str("version", version).
			Msg("Failed to remove image for deleted module")
	}

	r.logger.Info().
		Str("module_id", id).
		Str("version", version).
		Msg("Module deleted")

	return nil
}

func (r *Registry) List(ctx context.Context) ([]*models.Module, error) {
	return r.store.ListModules(ctx)
}

func (r *Registry) Count(ctx context.Context) (int, error) {
	return r.store.CountModules(ctx)
}

// VerifyImage recomputes the digest of a stored image and checks it against
// the recorded metadata.
func (r *Registry) VerifyImage(ctx context.Context, id, version string) error {
	module, reader, err := r.Download(ctx, id, version)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	actual, err := digest.Canonical.FromReader(reader)
	if err != nil {
		return fmt.Errorf("reading module image: %w", err)
	}

	if actual.String() != module.Digest {
		return fmt.Errorf("%w: stored image digests to %s, metadata says %s",
			models.ErrDigestMismatch, actual, module.Digest)
	}

	return nil
}

func validateRef(id, version string) error {
	if !refPattern.MatchString(id) {
		return fmt.Errorf("%w: module id %q", models.ErrInvalidReference, id)
	}

	if !refPattern.MatchString(version) {
		return fmt.Errorf("%w: version %q", models.ErrInvalidReference, version)
	}

	return nil
}
