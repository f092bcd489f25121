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

// Package lifecycle owns process startup and shutdown for the master:
// logger construction, signal handling, and graceful HTTP teardown.
package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gimpelhq/gimpel/pkg/logger"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Minute
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// CreateLogger builds the component logger for a service, falling back to
// defaults when config is nil.
func CreateLogger(component string, cfg *logger.Config) (logger.Logger, error) {
	if cfg == nil {
		cfg = logger.DefaultConfig()
	}

	return logger.NewComponent(component, cfg)
}

// ServerOptions configures RunServer.
type ServerOptions struct {
	ListenAddr      string
	Handler         http.Handler
	Logger          logger.Logger
	ShutdownTimeout time.Duration

	// Workers run alongside the HTTP server and are expected to exit when
	// their context is canceled.
	Workers []func(ctx context.Context) error
}

// RunServer serves HTTP until SIGINT/SIGTERM or a worker failure, then shuts
// the listener down gracefully.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	srv := &http.Server{
		Addr:         opts.ListenAddr,
		Handler:      opts.Handler,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		opts.Logger.Info().Str("addr", opts.ListenAddr).Msg("HTTP server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	for _, worker := range opts.Workers {
		w := worker

		g.Go(func() error {
			err := w(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		opts.Logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
