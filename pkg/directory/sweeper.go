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

package directory

import (
	"context"
	"time"

	"github.com/gimpelhq/gimpel/pkg/models"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultStaleAfter    = 2 * time.Minute

	// A satellite silent for offlineFactor times the stale threshold is
	// considered offline rather than merely unknown.
	offlineFactor = 3
)

// SweeperConfig controls the liveness sweep.
type SweeperConfig struct {
	Interval   time.Duration `json:"interval"`
	StaleAfter time.Duration `json:"stale_after"`
}

func (c *SweeperConfig) withDefaults() SweeperConfig {
	out := SweeperConfig{}
	if c != nil {
		out = *c
	}

	if out.Interval <= 0 {
		out.Interval = defaultSweepInterval
	}

	if out.StaleAfter <= 0 {
		out.StaleAfter = defaultStaleAfter
	}

	return out
}

// RunSweeper periodically downgrades satellites that stopped reporting:
// silent past the stale threshold they become unknown, silent past three
// times the threshold they become offline. It blocks until ctx is done.
func (d *Directory) RunSweeper(ctx context.Context, cfg *SweeperConfig) error {
	conf := cfg.withDefaults()

	d.logger.Info().
		Dur("interval", conf.Interval).
		Dur("stale_after", conf.StaleAfter).
		Msg("Starting satellite liveness sweeper")

	ticker := time.NewTicker(conf.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.sweep(ctx, conf.StaleAfter)
		}
	}
}

func (d *Directory) sweep(ctx context.Context, staleAfter time.Duration) {
	satellites, err := d.store.ListSatellites(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("Liveness sweep failed to list satellites")
		return
	}

	now := time.Now()

	for _, sat := range satellites {
		silent := now.Sub(sat.LastSeenAt)

		var next models.SatelliteStatus

		switch {
		case silent > staleAfter*offlineFactor:
			next = models.SatelliteStatusOffline
		case silent > staleAfter:
			next = models.SatelliteStatusUnknown
		default:
			continue
		}

		if sat.Status == next || sat.Status == models.SatelliteStatusOffline {
			continue
		}

		if err := d.store.MarkSatelliteStatus(ctx, sat.ID, next); err != nil {
			d.logger.Error().
				Err(err).
				Str("satellite_id", sat.ID).
				Msg("Failed to downgrade satellite status")

			continue
		}

		d.logger.Warn().
			Str("satellite_id", sat.ID).
			Str("status", string(next)).
			Dur("silent_for", silent).
			Msg("Satellite downgraded by liveness sweep")
	}
}
