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

// Package db implements the master's transactional store on top of bbolt.
package db

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/gimpelhq/gimpel/pkg/logger"
)

const (
	bucketSatellites    = "satellites"
	bucketModules       = "modules"
	bucketDeployments   = "deployments"
	bucketPairings      = "pairings"
	bucketPairingTokens = "pairing_tokens"
)

const openTimeout = 5 * time.Second

// Config holds the store settings.
type Config struct {
	Path string `json:"path"`
}

// DB is the bbolt-backed implementation of Service. All conditional writes
// (duplicate detection, version bumps, pairing redemption) run inside a single
// bbolt update transaction, which serializes them per store.
type DB struct {
	db     *bbolt.DB
	logger logger.Logger
}

// New opens (or creates) the store at cfg.Path and ensures all buckets exist.
func New(cfg *Config, log logger.Logger) (*DB, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, ErrPathRequired
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToOpen, err)
	}

	boltDB, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToOpen, err)
	}

	err = boltDB.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{
			bucketSatellites,
			bucketModules,
			bucketDeployments,
			bucketPairings,
			bucketPairingTokens,
		} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		return nil
	})
	if err != nil {
		_ = boltDB.Close()
		return nil, fmt.Errorf("%w: %w", ErrFailedToInit, err)
	}

	log.Info().Str("path", cfg.Path).Msg("store opened")

	return &DB{db: boltDB, logger: log}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func putJSON(b *bbolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}

	return b.Put([]byte(key), data)
}

func unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func getJSON(b *bbolt.Bucket, key string, v interface{}) (bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshaling %s: %w", key, err)
	}

	return true, nil
}
