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

// Package signing implements Ed25519 signatures over module image digests.
//
// A module signature covers the canonical digest string of the image
// ("sha256:<hex>"), not the image bytes themselves; signing and verification
// therefore never need to re-read the blob.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/opencontainers/go-digest"
)

// PEM block types used for key material at rest.
const (
	PrivateKeyPEMType = "GIMPEL PRIVATE KEY"
	PublicKeyPEMType  = "GIMPEL PUBLIC KEY"
)

// KeyPair holds an Ed25519 key pair plus its derived key ID. Key pairs
// loaded from a public key file carry a nil PrivateKey and can only verify.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	KeyID      string
}

// GenerateKeyPair creates a fresh Ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}

	return &KeyPair{
		PublicKey:  pub,
		PrivateKey: priv,
		KeyID:      KeyIDFor(pub),
	}, nil
}

// KeyIDFor derives the key ID for a public key: the first 8 bytes of its
// SHA-256 hash, hex encoded.
func KeyIDFor(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

// SignDigest signs the canonical string form of an image digest.
func (kp *KeyPair) SignDigest(d digest.Digest) ([]byte, error) {
	if kp.PrivateKey == nil {
		return nil, ErrNoPrivateKey
	}

	return ed25519.Sign(kp.PrivateKey, []byte(d.String())), nil
}

// SavePrivateKey writes the private key as a PEM block readable only by the
// owner.
func (kp *KeyPair) SavePrivateKey(path string) error {
	if kp.PrivateKey == nil {
		return ErrNoPrivateKey
	}

	block := &pem.Block{
		Type:  PrivateKeyPEMType,
		Bytes: kp.PrivateKey,
		Headers: map[string]string{
			"Key-ID":     kp.KeyID,
			"Created-At": time.Now().UTC().Format(time.RFC3339),
		},
	}

	return os.WriteFile(path, pem.EncodeToMemory(block), 0600)
}

// SavePublicKey writes the public key as a PEM block.
func (kp *KeyPair) SavePublicKey(path string) error {
	block := &pem.Block{
		Type:  PublicKeyPEMType,
		Bytes: kp.PublicKey,
		Headers: map[string]string{
			"Key-ID": kp.KeyID,
		},
	}

	return os.WriteFile(path, pem.EncodeToMemory(block), 0644)
}

// LoadPrivateKey reads a PEM-encoded private key and rederives the public
// half and key ID.
func LoadPrivateKey(path string) (*KeyPair, error) {
	block, err := readPEM(path, PrivateKeyPEMType)
	if err != nil {
		return nil, err
	}

	if len(block.Bytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadKeySize, len(block.Bytes))
	}

	priv := ed25519.PrivateKey(block.Bytes)

	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, ErrBadKeySize
	}

	return &KeyPair{
		PublicKey:  pub,
		PrivateKey: priv,
		KeyID:      KeyIDFor(pub),
	}, nil
}

// LoadPublicKey reads a PEM-encoded public key. The returned pair can verify
// but not sign.
func LoadPublicKey(path string) (*KeyPair, error) {
	block, err := readPEM(path, PublicKeyPEMType)
	if err != nil {
		return nil, err
	}

	if len(block.Bytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadKeySize, len(block.Bytes))
	}

	pub := ed25519.PublicKey(block.Bytes)

	return &KeyPair{
		PublicKey: pub,
		KeyID:     KeyIDFor(pub),
	}, nil
}

func readPEM(path, wantType string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w in %s", ErrNoPEMBlock, path)
	}

	if block.Type != wantType {
		return nil, fmt.Errorf("%w: %s", ErrWrongPEMType, block.Type)
	}

	return block, nil
}
