// Copyright 2025 The Private-Blockchain Authors
// This file is part of the Private-Blockchain library.
//
// The Private-Blockchain library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The Private-Blockchain library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the Private-Blockchain library. If not, see <http://www.gnu.org/licenses/>.

package wallet

import (
	stdcrypto "crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/muuduuu/Private-Blockchain/core/types"
)

// Verifier checks one wallet family's signatures. Implementations keep the
// cryptographic specifics out of the auth flow; the dispatcher picks the
// first verifier claiming the wallet's family.
type Verifier interface {
	CanVerify(family string) bool
	Verify(w *types.WalletProfile, message, signature string) (bool, error)
}

// DefaultVerifiers covers both supported wallet families.
func DefaultVerifiers() []Verifier {
	return []Verifier{new(ExternalSignerVerifier), new(CustomKeypairVerifier)}
}

// ExternalSignerVerifier verifies external-signer wallets: secp256k1
// signatures over the EIP-191 personal-sign envelope, checked by recovering
// the signing address and comparing it to the registered one.
type ExternalSignerVerifier struct{}

// CanVerify reports whether this verifier handles the family.
func (v *ExternalSignerVerifier) CanVerify(family string) bool {
	return family == types.WalletFamilyExternal
}

// personalSignHash hashes a message the way personal_sign does:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func personalSignHash(message []byte) []byte {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(msg))
}

// Verify recovers the signer address from the 65-byte [R||S||V] signature.
// V is accepted as 0/1 or the legacy 27/28.
func (v *ExternalSignerVerifier) Verify(w *types.WalletProfile, message, signature string) (bool, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return false, err
	}
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("wallet: signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(personalSignHash([]byte(message)), sig)
	if err != nil {
		return false, nil
	}
	recovered := strings.ToLower(crypto.PubkeyToAddress(*pub).Hex())
	return recovered == w.Normalized, nil
}

// CustomKeypairVerifier verifies custom-keypair wallets directly against the
// registered public key. metadata.scheme selects Ed25519 (default, raw
// message bytes) or RSA-PSS (SHA-256 digest, PSS padding).
type CustomKeypairVerifier struct{}

// CanVerify reports whether this verifier handles the family.
func (v *CustomKeypairVerifier) CanVerify(family string) bool {
	return family == types.WalletFamilyCustom
}

// Verify dispatches on the wallet's registered scheme.
func (v *CustomKeypairVerifier) Verify(w *types.WalletProfile, message, signature string) (bool, error) {
	if w.PublicKey == "" {
		return false, ErrMissingPublicKey
	}
	sig, err := decodeSignature(signature)
	if err != nil {
		return false, err
	}
	key, err := decodeKeyMaterial(w.PublicKey)
	if err != nil {
		return false, fmt.Errorf("wallet: bad public key: %w", err)
	}
	switch scheme := w.Scheme(); scheme {
	case "ed25519":
		if len(key) != ed25519.PublicKeySize {
			return false, fmt.Errorf("wallet: ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
		}
		return ed25519.Verify(ed25519.PublicKey(key), []byte(message), sig), nil
	case "rsa-pss":
		parsed, err := x509.ParsePKIXPublicKey(key)
		if err != nil {
			return false, fmt.Errorf("wallet: parsing RSA public key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return false, errors.New("wallet: public key is not RSA")
		}
		digest := sha256.Sum256([]byte(message))
		err = rsa.VerifyPSS(rsaKey, stdcrypto.SHA256, digest[:], sig, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthAuto,
			Hash:       stdcrypto.SHA256,
		})
		return err == nil, nil
	default:
		return false, fmt.Errorf("wallet: unsupported scheme %q", scheme)
	}
}

// decodeSignature accepts 0x-prefixed hex or base64.
func decodeSignature(signature string) ([]byte, error) {
	s := strings.TrimSpace(signature)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		raw, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, fmt.Errorf("wallet: bad hex signature: %w", err)
		}
		return raw, nil
	}
	if raw, err := hex.DecodeString(s); err == nil {
		return raw, nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("wallet: signature is neither hex nor base64: %w", err)
	}
	return raw, nil
}

// decodeKeyMaterial accepts the same encodings as decodeSignature.
func decodeKeyMaterial(key string) ([]byte, error) {
	return decodeSignature(key)
}
