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

// gimpel-sign manages Ed25519 signing keys and produces module image
// signatures for upload to the master registry.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"github.com/gimpelhq/gimpel/pkg/signing"
)

var rootCmd = &cobra.Command{
	Use:   "gimpel-sign",
	Short: "Key management and module signing for Gimpel",
}

var generateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Generate a new Ed25519 key pair",
	RunE: func(cmd *cobra.Command, _ []string) error {
		outputDir, _ := cmd.Flags().GetString("output")
		name, _ := cmd.Flags().GetString("name")

		kp, err := signing.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("generating key pair: %w", err)
		}

		privPath := filepath.Join(outputDir, name+".key")
		pubPath := filepath.Join(outputDir, name+".pub")

		if err := kp.SavePrivateKey(privPath); err != nil {
			return fmt.Errorf("saving private key: %w", err)
		}

		if err := kp.SavePublicKey(pubPath); err != nil {
			_ = os.Remove(privPath)
			return fmt.Errorf("saving public key: %w", err)
		}

		fmt.Printf("Key pair generated\n")
		fmt.Printf("  Key ID:      %s\n", kp.KeyID)
		fmt.Printf("  Private key: %s (keep this secure)\n", privPath)
		fmt.Printf("  Public key:  %s (add to the master's trusted_keys)\n", pubPath)

		return nil
	},
}

var showKeyCmd = &cobra.Command{
	Use:   "show-key [key-file]",
	Short: "Display information about a key file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		kp, err := signing.LoadPrivateKey(args[0])
		if err != nil {
			kp, err = signing.LoadPublicKey(args[0])
			if err != nil {
				return fmt.Errorf("loading key: %w", err)
			}
		}

		fmt.Printf("  Key ID:      %s\n", kp.KeyID)
		fmt.Printf("  Has private: %v\n", kp.PrivateKey != nil)

		return nil
	},
}

// signatureMetadata is the JSON emitted by sign-module --output. Its fields
// line up with the multipart form fields the upload endpoint expects.
type signatureMetadata struct {
	ID        string `json:"id"`
	Version   string `json:"version"`
	Digest    string `json:"digest"`
	Signature string `json:"signature"`
	SignedBy  string `json:"signed_by"`
	SignedAt  int64  `json:"signed_at"`
	SizeBytes int64  `json:"size_bytes"`
}

var signModuleCmd = &cobra.Command{
	Use:   "sign-module",
	Short: "Sign a module image file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		keyFile, _ := cmd.Flags().GetString("key")
		moduleID, _ := cmd.Flags().GetString("id")
		version, _ := cmd.Flags().GetString("version")
		imageFile, _ := cmd.Flags().GetString("image")
		outputFile, _ := cmd.Flags().GetString("output")

		kp, err := signing.LoadPrivateKey(keyFile)
		if err != nil {
			return fmt.Errorf("loading private key: %w", err)
		}

		d, size, err := digestFile(imageFile)
		if err != nil {
			return err
		}

		sig, err := kp.SignDigest(d)
		if err != nil {
			return fmt.Errorf("signing digest: %w", err)
		}

		meta := signatureMetadata{
			ID:        moduleID,
			Version:   version,
			Digest:    d.String(),
			Signature: hex.EncodeToString(sig),
			SignedBy:  kp.KeyID,
			SignedAt:  time.Now().Unix(),
			SizeBytes: size,
		}

		fmt.Printf("Module signed\n")
		fmt.Printf("  Module:    %s:%s\n", meta.ID, meta.Version)
		fmt.Printf("  Digest:    %s\n", meta.Digest)
		fmt.Printf("  Signed by: %s\n", meta.SignedBy)
		fmt.Printf("  Signature: %s\n", meta.Signature)
		fmt.Printf("  Size:      %d bytes\n", meta.SizeBytes)

		if outputFile != "" {
			data, err := json.MarshalIndent(meta, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding metadata: %w", err)
			}

			if err := os.WriteFile(outputFile, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("writing metadata file: %w", err)
			}

			fmt.Printf("  Metadata:  %s\n", outputFile)
		}

		return nil
	},
}

var verifyModuleCmd = &cobra.Command{
	Use:   "verify-module",
	Short: "Verify a module image signature",
	RunE: func(cmd *cobra.Command, _ []string) error {
		keyFile, _ := cmd.Flags().GetString("key")
		imageFile, _ := cmd.Flags().GetString("image")
		signatureHex, _ := cmd.Flags().GetString("signature")

		kp, err := signing.LoadPublicKey(keyFile)
		if err != nil {
			return fmt.Errorf("loading public key: %w", err)
		}

		d, _, err := digestFile(imageFile)
		if err != nil {
			return err
		}

		sig, err := hex.DecodeString(signatureHex)
		if err != nil {
			return fmt.Errorf("parsing signature: %w", err)
		}

		verifier := signing.NewVerifier(kp)
		if err := verifier.VerifyDigest(d, sig, kp.KeyID); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}

		fmt.Printf("Verification passed\n")
		fmt.Printf("  Digest:    %s\n", d)
		fmt.Printf("  Signed by: %s\n", kp.KeyID)

		return nil
	},
}

func digestFile(path string) (digest.Digest, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening image file: %w", err)
	}
	defer func() { _ = f.Close() }()

	d, err := digest.Canonical.FromReader(f)
	if err != nil {
		return "", 0, fmt.Errorf("digesting image file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("reading image file size: %w", err)
	}

	return d, info.Size(), nil
}

func init() {
	generateKeyCmd.Flags().StringP("output", "o", ".", "Output directory for key files")
	generateKeyCmd.Flags().StringP("name", "n", "gimpel", "Base name for key files")

	signModuleCmd.Flags().StringP("key", "k", "", "Path to private key file")
	signModuleCmd.Flags().StringP("id", "i", "", "Module ID")
	signModuleCmd.Flags().StringP("version", "v", "", "Module version")
	signModuleCmd.Flags().String("image", "", "Path to module image file")
	signModuleCmd.Flags().StringP("output", "o", "", "Output file for signature metadata (JSON)")
	_ = signModuleCmd.MarkFlagRequired("key")
	_ = signModuleCmd.MarkFlagRequired("id")
	_ = signModuleCmd.MarkFlagRequired("version")
	_ = signModuleCmd.MarkFlagRequired("image")

	verifyModuleCmd.Flags().StringP("key", "k", "", "Path to public key file")
	verifyModuleCmd.Flags().String("image", "", "Path to module image file")
	verifyModuleCmd.Flags().String("signature", "", "Signature in hex")
	_ = verifyModuleCmd.MarkFlagRequired("key")
	_ = verifyModuleCmd.MarkFlagRequired("image")
	_ = verifyModuleCmd.MarkFlagRequired("signature")

	rootCmd.AddCommand(generateKeyCmd)
	rootCmd.AddCommand(showKeyCmd)
	rootCmd.AddCommand(signModuleCmd)
	rootCmd.AddCommand(verifyModuleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
