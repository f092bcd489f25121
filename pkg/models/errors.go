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

import "errors"

// Registry errors.
var (
	ErrModuleNotFound   = errors.New("module not found")
	ErrDuplicateVersion = errors.New("module version already exists")
	ErrModuleInUse      = errors.New("module is referenced by a deployment")
	ErrDigestMismatch   = errors.New("supplied digest does not match image")
	ErrInvalidSignature = errors.New("module signature verification failed")
	ErrImageNotFound    = errors.New("module image not found")
)

// Directory errors.
var (
	ErrSatelliteNotFound = errors.New("satellite not found")
	ErrInvalidStatus     = errors.New("invalid satellite status")
)

// Deployment errors.
var (
	ErrDeploymentNotFound = errors.New("deployment not found")
	ErrInvalidReference   = errors.New("deployment references unknown module")
	ErrInvalidListener    = errors.New("invalid listener configuration")
)

// Pairing errors.
var (
	ErrPairingNotFound    = errors.New("pairing token not found")
	ErrPairingExpired     = errors.New("pairing token expired")
	ErrPairingAlreadyUsed = errors.New("pairing token already used")
)

// ErrValidation covers malformed input, such as a missing required field.
var ErrValidation = errors.New("validation failed")
