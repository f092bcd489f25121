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

import "time"

// SatelliteStatus represents the liveness state of a satellite.
type SatelliteStatus string

const (
	SatelliteStatusRegistered SatelliteStatus = "registered"
	SatelliteStatusOnline     SatelliteStatus = "online"
	SatelliteStatusOffline    SatelliteStatus = "offline"
	SatelliteStatusUnknown    SatelliteStatus = "unknown"
)

// ValidSatelliteStatus reports whether s is one of the known status values.
func ValidSatelliteStatus(s SatelliteStatus) bool {
	switch s {
	case SatelliteStatusRegistered, SatelliteStatusOnline, SatelliteStatusOffline, SatelliteStatusUnknown:
		return true
	default:
		return false
	}
}

// Satellite is a remote agent registered with the master. The ID is assigned
// at registration and stable thereafter; satellites are never hard-deleted.
type Satellite struct {
	ID           string          `json:"id"`
	Hostname     string          `json:"hostname"`
	IPAddress    string          `json:"ip_address"`
	OS           string          `json:"os"`
	Arch         string          `json:"arch"`
	Status       SatelliteStatus `json:"status"`
	RegisteredAt time.Time       `json:"registered_at"`
	LastSeenAt   time.Time       `json:"last_seen_at"`
}

// SatelliteRegisterRequest carries the self-reported facts a satellite sends
// when enrolling directly with the directory.
type SatelliteRegisterRequest struct {
	Hostname  string `json:"hostname"`
	IPAddress string `json:"ip_address"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}
