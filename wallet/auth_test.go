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
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage/memstore"
)

func newAuth(t *testing.T, ttl time.Duration) (*Auth, *Registry, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	registry := NewRegistry(store)
	return NewAuth(registry, store, nil, ttl), registry, store
}

func TestExternalSignerChallengeVerify(t *testing.T) {
	auth, _, _ := newAuth(t, 0)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	ch, err := auth.IssueNonce(address, IssueOptions{})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ch.Nonce, NoncePrefix))
	require.Contains(t, ch.Message, "Sign this message to authenticate")
	require.Contains(t, ch.Message, "Wallet: "+address)
	require.Contains(t, ch.Message, "Nonce: "+ch.Nonce)
	require.Equal(t, types.WalletFamilyExternal, ch.Wallet.Family)

	sig, err := crypto.Sign(personalSignHash([]byte(ch.Message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27 // clients send the legacy V

	res, err := auth.Verify(address, "0x"+hex.EncodeToString(sig))
	require.NoError(t, err)
	require.Equal(t, ch.Wallet.ID, res.Wallet.ID)
	require.NotNil(t, res.Wallet.LastSeenAt)

	// The token and proof are the documented hashes.
	wantToken := sha256.Sum256([]byte(res.Wallet.ID + ":" + ch.Nonce + ":" + res.VerifiedAt))
	require.Equal(t, hex.EncodeToString(wantToken[:]), res.SessionToken)
	wantProof := sha256.Sum256([]byte("0x" + hex.EncodeToString(sig) + ":" + ch.Message))
	require.Equal(t, hex.EncodeToString(wantProof[:]), res.Proof)

	// The nonce is single-use.
	_, err = auth.Verify(address, "0x"+hex.EncodeToString(sig))
	require.ErrorIs(t, err, ErrNoActiveNonce)

	// A fresh challenge gets a different nonce.
	ch2, err := auth.IssueNonce(address, IssueOptions{})
	require.NoError(t, err)
	require.NotEqual(t, ch.Nonce, ch2.Nonce)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	auth, _, _ := newAuth(t, 0)

	key, _ := crypto.GenerateKey()
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	ch, err := auth.IssueNonce(address, IssueOptions{})
	require.NoError(t, err)

	other, _ := crypto.GenerateKey()
	sig, err := crypto.Sign(personalSignHash([]byte(ch.Message)), other)
	require.NoError(t, err)
	_, err = auth.Verify(address, "0x"+hex.EncodeToString(sig))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestNonceExpiry(t *testing.T) {
	auth, _, store := newAuth(t, 0)

	key, _ := crypto.GenerateKey()
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	ch, err := auth.IssueNonce(address, IssueOptions{})
	require.NoError(t, err)

	// Backdate the stored record past its deadline.
	rec, err := store.Nonce(types.NormalizeAddress(address))
	require.NoError(t, err)
	rec.ExpiresAt = time.Now().UTC().Add(-time.Second)
	require.NoError(t, store.PutNonce(rec))

	sig, _ := crypto.Sign(personalSignHash([]byte(ch.Message)), key)
	_, err = auth.Verify(address, "0x"+hex.EncodeToString(sig))
	require.ErrorIs(t, err, ErrNonceExpired)

	// The sweep removes it; the next verify reports no active nonce.
	auth.SweepExpired(time.Now().UTC())
	_, err = auth.Verify(address, "0x"+hex.EncodeToString(sig))
	require.ErrorIs(t, err, ErrNoActiveNonce)
}

func TestVerifyUnknownWallet(t *testing.T) {
	auth, _, _ := newAuth(t, 0)
	_, err := auth.Verify("0xdeadbeef00000000000000000000000000000000", "0x00")
	require.ErrorIs(t, err, ErrUnknownWallet)
}

func TestEd25519CustomKeypair(t *testing.T) {
	auth, _, _ := newAuth(t, 0)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	address := "clinic-node-7"

	ch, err := auth.IssueNonce(address, IssueOptions{
		Family:    types.WalletFamilyCustom,
		PublicKey: "0x" + hex.EncodeToString(pub),
	})
	require.NoError(t, err)

	sig := ed25519.Sign(priv, []byte(ch.Message))

	// Base64 signatures are accepted alongside hex.
	res, err := auth.Verify(address, base64.StdEncoding.EncodeToString(sig))
	require.NoError(t, err)
	require.Equal(t, types.WalletFamilyCustom, res.Wallet.Family)
}

func TestRSAPSSCustomKeypair(t *testing.T) {
	auth, _, _ := newAuth(t, 0)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	address := "lab-gateway-1"
	ch, err := auth.IssueNonce(address, IssueOptions{
		Family:    types.WalletFamilyCustom,
		PublicKey: base64.StdEncoding.EncodeToString(der),
		Metadata:  map[string]interface{}{"scheme": "rsa-pss"},
	})
	require.NoError(t, err)

	digest := sha256.Sum256([]byte(ch.Message))
	sig, err := rsa.SignPSS(rand.Reader, key, stdcrypto.SHA256, digest[:], nil)
	require.NoError(t, err)

	res, err := auth.Verify(address, "0x"+hex.EncodeToString(sig))
	require.NoError(t, err)
	require.Equal(t, "rsa-pss", res.Wallet.Scheme())
}

func TestCustomKeypairRequiresPublicKey(t *testing.T) {
	auth, _, _ := newAuth(t, 0)
	_, err := auth.IssueNonce("sensor-1", IssueOptions{Family: types.WalletFamilyCustom})
	require.ErrorIs(t, err, ErrMissingPublicKey)
}

func TestFamilyMismatch(t *testing.T) {
	auth, _, _ := newAuth(t, 0)
	_, err := auth.IssueNonce("0xabc0000000000000000000000000000000000001", IssueOptions{})
	require.NoError(t, err)
	_, err = auth.IssueNonce("0xabc0000000000000000000000000000000000001", IssueOptions{
		Family:    types.WalletFamilyCustom,
		PublicKey: "0x00",
	})
	require.ErrorIs(t, err, ErrFamilyMismatch)
}

func TestRegistryIdempotence(t *testing.T) {
	store := memstore.New()
	registry := NewRegistry(store)

	first, err := registry.Register(RegisterInput{Address: "0xABC000__IGNORED", Label: "dr. chen"})
	require.NoError(t, err)
	second, err := registry.Register(RegisterInput{Address: "0xABC000__IGNORED"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	wallets, err := store.Wallets()
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	require.Equal(t, types.DefaultWalletRoles, wallets[0].Roles)
}

func TestSetStatusGatesIssuance(t *testing.T) {
	auth, registry, _ := newAuth(t, 0)
	address := "0xabc0000000000000000000000000000000000002"
	_, err := auth.IssueNonce(address, IssueOptions{})
	require.NoError(t, err)

	_, err = registry.SetStatus(address, types.WalletStatusSuspended)
	require.NoError(t, err)
	_, err = auth.IssueNonce(address, IssueOptions{})
	require.ErrorIs(t, err, ErrWalletInactive)

	_, err = registry.SetStatus(address, "frozen")
	require.ErrorIs(t, err, ErrInvalidStatus)
}
