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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gimpelhq/gimpel/pkg/config"
	"github.com/gimpelhq/gimpel/pkg/core/api"
	"github.com/gimpelhq/gimpel/pkg/db"
	"github.com/gimpelhq/gimpel/pkg/deployments"
	"github.com/gimpelhq/gimpel/pkg/directory"
	"github.com/gimpelhq/gimpel/pkg/imagestore"
	"github.com/gimpelhq/gimpel/pkg/lifecycle"
	"github.com/gimpelhq/gimpel/pkg/logger"
	"github.com/gimpelhq/gimpel/pkg/models"
	"github.com/gimpelhq/gimpel/pkg/pairing"
	"github.com/gimpelhq/gimpel/pkg/registry"
	"github.com/gimpelhq/gimpel/pkg/signing"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/gimpel/master.json", "Path to master config file")
	flag.Parse()

	ctx := context.Background()

	var cfg models.MasterConfig

	bootLog := logger.NewTestLogger()
	if err := config.NewConfig(bootLog).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg := logger.DefaultConfig()
	if cfg.Logging != nil {
		logCfg = &logger.Config{
			Level:      cfg.Logging.Level,
			Debug:      cfg.Logging.Debug,
			Output:     cfg.Logging.Output,
			TimeFormat: cfg.Logging.TimeFormat,
		}
	}

	mainLog, err := lifecycle.CreateLogger("master", logCfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	store, err := db.New(&db.Config{Path: cfg.DBPath}, mainLog)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	defer func() { _ = store.Close() }()

	images, err := imagestore.New(cfg.ImageDir, mainLog)
	if err != nil {
		return fmt.Errorf("opening image store: %w", err)
	}

	verifier, err := loadVerifier(cfg.TrustedKeys, mainLog)
	if err != nil {
		return err
	}

	dir := directory.NewDirectory(store, mainLog)

	server := api.NewAPIServer(cfg.CORS,
		api.WithLogger(mainLog),
		api.WithModuleRegistry(registry.NewRegistry(store, images, verifier, mainLog)),
		api.WithDirectory(dir),
		api.WithDeploymentManager(deployments.NewManager(store, mainLog)),
		api.WithPairingService(pairing.NewManager(store, mainLog)),
		api.WithAPIKey(cfg.APIKey),
		api.WithPairingTTL(time.Duration(cfg.PairingTTL)),
	)

	sweeperCfg := &directory.SweeperConfig{
		Interval:   time.Duration(cfg.SweepInterval),
		StaleAfter: time.Duration(cfg.StaleAfter),
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ListenAddr: cfg.ListenAddr,
		Handler:    server.Router(),
		Logger:     mainLog,
		Workers: []func(ctx context.Context) error{
			func(ctx context.Context) error {
				return dir.RunSweeper(ctx, sweeperCfg)
			},
		},
	})
}

// loadVerifier builds the signature trust set from the configured public key
// files. No keys means verification is disabled.
func loadVerifier(paths []string, log logger.Logger) (*signing.Verifier, error) {
	if len(paths) == 0 {
		log.Warn().Msg("No trusted keys configured; module signature verification is disabled")
		return nil, nil
	}

	keys := make([]*signing.KeyPair, 0, len(paths))

	for _, path := range paths {
		kp, err := signing.LoadPublicKey(path)
		if err != nil {
			return nil, fmt.Errorf("loading trusted key %s: %w", path, err)
		}

		log.Info().Str("key_id", kp.KeyID).Str("path", path).Msg("Trusted signing key loaded")
		keys = append(keys, kp)
	}

	return signing.NewVerifier(keys...), nil
}
