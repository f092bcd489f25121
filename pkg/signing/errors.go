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

package signing

import "errors"

var (
	ErrNoPEMBlock   = errors.New("no PEM block found")
	ErrWrongPEMType = errors.New("unexpected PEM block type")
	ErrBadKeySize   = errors.New("invalid key size")
	ErrUnknownKeyID = errors.New("unknown key ID")
	ErrBadSignature = errors.New("signature verification failed")
	ErrNoPrivateKey = errors.New("key pair has no private key")
)
