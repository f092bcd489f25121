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

// Package imagestore persists module image blobs on the local filesystem.
// Blobs are written through a temp file and renamed into place, so a failed
// or abandoned upload never leaves a readable image behind. The sha256 digest
// is computed while streaming; images are never buffered fully in memory.
package imagestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/gimpelhq/gimpel/pkg/logger"
	"github.com/gimpelhq/gimpel/pkg/models"
)

// ImageMeta describes a stored blob.
type ImageMeta struct {
	ModuleID  string
	Version   string
	Digest    digest.Digest
	SizeBytes int64
	Path      string
	StoredAt  time.Time
}

type Store struct {
	dir    string
	logger logger.Logger
}

func New(dir string, log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}

	return &Store{dir: dir, logger: log}, nil
}

// Write streams the image to disk and returns its digest and size. Callers
// must have validated id and version against the module name charset; they
// are used directly in the blob filename.
func (s *Store) Write(ctx context.Context, id, version string, reader io.Reader) (*ImageMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.blobPath(id, version)

	// Each writer gets its own temp file so concurrent writes can never
	// share an inode; only the rename is visible.
	file, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp blob: %w", err)
	}

	tmpPath := file.Name()

	digester := digest.Canonical.Digester()

	size, err := io.Copy(io.MultiWriter(file, digester.Hash()), reader)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)

		return nil, fmt.Errorf("writing image: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("closing temp blob: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("renaming blob into place: %w", err)
	}

	meta := &ImageMeta{
		ModuleID:  id,
		Version:   version,
		Digest:    digester.Digest(),
		SizeBytes: size,
		Path:      path,
		StoredAt:  time.Now(),
	}

	s.logger.Info().
		Str("module_id", id).
		Str("version", version).
		Str("digest", meta.Digest.String()).
		Int64("size_bytes", size).
		Msg("image stored")

	return meta, nil
}

// Open returns a streaming reader over the blob plus its size on disk.
func (s *Store) Open(ctx context.Context, id, version string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	path := s.blobPath(id, version)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, models.ErrImageNotFound
		}

		return nil, 0, fmt.Errorf("stat image: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening image: %w", err)
	}

	return file, info.Size(), nil
}

// Remove deletes the blob. Removing an absent blob is not an error; the
// metadata record is the authority on module existence.
func (s *Store) Remove(ctx context.Context, id, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.blobPath(id, version)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing image: %w", err)
	}

	return nil
}

func (s *Store) blobPath(id, version string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.img", id, version))
}
