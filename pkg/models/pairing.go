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

// Pairing is a one-time token that authorizes a satellite to register itself.
// Token holds the full secret and is returned only once, from the creation
// response; DisplayToken is the redacted form used everywhere else.
type Pairing struct {
	ID            string     `json:"id"`
	Token         string     `json:"token,omitempty"`
	DisplayToken  string     `json:"display_token"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Used          bool       `json:"used"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
	AssignedAgent string     `json:"assigned_agent,omitempty"`
	AgentHostname string     `json:"agent_hostname,omitempty"`
}

// Active reports whether the pairing can still be redeemed at the given time.
func (p *Pairing) Active(now time.Time) bool {
	return !p.Used && p.ExpiresAt.After(now)
}

// PairingRedeemRequest carries the satellite facts presented at redemption.
type PairingRedeemRequest struct {
	Token    string
	Hostname string
	IP       string
	OS       string
	Arch     string
}
