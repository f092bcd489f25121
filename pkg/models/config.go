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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	errNoListenAddr = errors.New("listen_addr is required")
	errNoDBPath     = errors.New("db_path is required")
	errNoImageDir   = errors.New("image_dir is required")
)

// Duration wraps time.Duration so config files can say "10m" or "90s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch value := raw.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}

		*d = Duration(parsed)

		return nil
	default:
		return fmt.Errorf("invalid duration value of type %T", raw)
	}
}

// MasterConfig is the top-level configuration for the Gimpel master.
type MasterConfig struct {
	ListenAddr string `json:"listen_addr"`
	DBPath     string `json:"db_path"`
	ImageDir   string `json:"image_dir"`
	APIKey     string `json:"api_key,omitempty"`

	// TrustedKeys are paths to PEM public keys whose signatures the module
	// registry accepts. Empty disables signature verification.
	TrustedKeys []string `json:"trusted_keys,omitempty"`

	PairingTTL    Duration `json:"pairing_ttl,omitempty"`
	SweepInterval Duration `json:"sweep_interval,omitempty"`
	StaleAfter    Duration `json:"stale_after,omitempty"`

	CORS    CORSConfig `json:"cors,omitempty"`
	Logging *LogConfig `json:"logging,omitempty"`
}

// LogConfig mirrors logger.Config for the config file surface.
type LogConfig struct {
	Level      string `json:"level,omitempty"`
	Debug      bool   `json:"debug,omitempty"`
	Output     string `json:"output,omitempty"`
	TimeFormat string `json:"time_format,omitempty"`
}

func (c *MasterConfig) Validate() error {
	if c.ListenAddr == "" {
		return errNoListenAddr
	}

	if c.DBPath == "" {
		return errNoDBPath
	}

	if c.ImageDir == "" {
		return errNoImageDir
	}

	return nil
}
