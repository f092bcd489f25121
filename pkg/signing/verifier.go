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

import (
	"crypto/ed25519"
	"fmt"
	"sort"

	"github.com/opencontainers/go-digest"
)

// Verifier checks module signatures against a fixed set of trusted keys.
// The key set is built at startup and never mutated afterwards, so lookups
// need no locking.
type Verifier struct {
	trusted map[string]ed25519.PublicKey
}

// NewVerifier builds a verifier trusting the public halves of the given
// key pairs.
func NewVerifier(keys ...*KeyPair) *Verifier {
	v := &Verifier{trusted: make(map[string]ed25519.PublicKey, len(keys))}

	for _, kp := range keys {
		v.trusted[kp.KeyID] = kp.PublicKey
	}

	return v
}

// VerifyDigest checks that signature is a valid signature over the canonical
// digest string by the key identified by keyID.
func (v *Verifier) VerifyDigest(d digest.Digest, signature []byte, keyID string) error {
	pub, ok := v.trusted[keyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKeyID, keyID)
	}

	if !ed25519.Verify(pub, []byte(d.String()), signature) {
		return ErrBadSignature
	}

	return nil
}

// HasTrustedKey reports whether keyID is in the trust set.
func (v *Verifier) HasTrustedKey(keyID string) bool {
	_, ok := v.trusted[keyID]
	return ok
}

// TrustedKeyIDs returns the trusted key IDs in sorted order.
func (v *Verifier) TrustedKeyIDs() []string {
	ids := make([]string, 0, len(v.trusted))
	for id := range v.trusted {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
