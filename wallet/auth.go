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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage"
)

var (
	// ErrNoActiveNonce is returned when verify finds no outstanding
	// challenge, including after a nonce was consumed.
	ErrNoActiveNonce = errors.New("wallet: no active nonce")

	// ErrNonceExpired is returned when the challenge deadline has passed.
	ErrNonceExpired = errors.New("wallet: nonce expired")

	// ErrInvalidSignature is returned when the signature does not verify
	// under the wallet's family.
	ErrInvalidSignature = errors.New("wallet: signature invalid")
)

// DefaultNonceTTL bounds a challenge's validity when not configured.
const DefaultNonceTTL = 300 * time.Second

// NoncePrefix starts every issued nonce.
const NoncePrefix = "CAMTC-"

// defaultSystemID is the first line of every challenge message.
const defaultSystemID = "CAMTC Healthcare Transaction Ledger"

// IssueOptions carries the optional registration material of a challenge
// request.
type IssueOptions struct {
	Family    string
	Label     string
	PublicKey string
	Metadata  map[string]interface{}
	Context   map[string]interface{}
}

// Challenge is an issued nonce with the message the wallet must sign.
type Challenge struct {
	Nonce     string               `json:"nonce"`
	Message   string               `json:"message"`
	ExpiresAt time.Time            `json:"expiresAt"`
	Wallet    *types.WalletProfile `json:"wallet"`
}

// VerifyResult is returned on a successful signature verification. The
// session token and proof are opaque correlation handles for the caller's
// session layer; the core does not authorize by them.
type VerifyResult struct {
	Wallet       *types.WalletProfile `json:"wallet"`
	VerifiedAt   string               `json:"verifiedAt"`
	SessionToken string               `json:"sessionToken"`
	Proof        string               `json:"proof"`
}

// Auth issues time-bounded challenges and verifies wallet signatures
// against them.
type Auth struct {
	registry  *Registry
	nonces    storage.NonceStore
	verifiers []Verifier
	ttl       time.Duration
	systemID  string
	log       log.Logger

	// verifyMu serializes nonce reads during verification so a nonce can
	// never be consumed twice.
	verifyMu sync.Mutex
}

// NewAuth wires the challenge/verify service. A zero ttl selects the
// default 300 seconds.
func NewAuth(registry *Registry, nonces storage.NonceStore, verifiers []Verifier, ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	if len(verifiers) == 0 {
		verifiers = DefaultVerifiers()
	}
	return &Auth{
		registry:  registry,
		nonces:    nonces,
		verifiers: verifiers,
		ttl:       ttl,
		systemID:  defaultSystemID,
		log:       log.New("module", "walletauth"),
	}
}

// IssueNonce resolves (or, for external-signer wallets, auto-creates) the
// wallet and stores a fresh challenge keyed by normalized address,
// replacing any previous one.
func (a *Auth) IssueNonce(address string, opts IssueOptions) (*Challenge, error) {
	w, err := a.registry.Register(RegisterInput{
		Address:   address,
		Family:    opts.Family,
		Label:     opts.Label,
		PublicKey: opts.PublicKey,
		Metadata:  opts.Metadata,
	})
	if err != nil {
		return nil, err
	}
	if w.Status != types.WalletStatusActive {
		return nil, ErrWalletInactive
	}

	now := time.Now().UTC()
	nonce := NoncePrefix + uuid.NewString()
	message := fmt.Sprintf("%s\nSign this message to authenticate\nWallet: %s\nNonce: %s\nTimestamp: %s",
		a.systemID, address, nonce, now.Format(time.RFC3339))

	rec := &types.NonceRecord{
		Address:    address,
		Normalized: w.Normalized,
		Nonce:      nonce,
		Message:    message,
		Family:     w.Family,
		IssuedAt:   now,
		ExpiresAt:  now.Add(a.ttl),
		Context:    opts.Context,
	}
	if err := a.nonces.PutNonce(rec); err != nil {
		return nil, err
	}
	a.log.Debug("Nonce issued", "address", w.Normalized, "expiresAt", rec.ExpiresAt)
	return &Challenge{Nonce: nonce, Message: message, ExpiresAt: rec.ExpiresAt, Wallet: w}, nil
}

// Verify checks the signature against the wallet's outstanding challenge.
// On success the nonce is deleted atomically with persistence, the wallet's
// lastSeenAt advances, and the session token and proof are derived. The
// error distinguishes unknown wallet, no active nonce, expired nonce and
// invalid signature.
func (a *Auth) Verify(address, signature string) (*VerifyResult, error) {
	a.verifyMu.Lock()
	defer a.verifyMu.Unlock()

	w, err := a.registry.Get(address)
	if err != nil {
		return nil, err
	}
	rec, err := a.nonces.Nonce(w.Normalized)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoActiveNonce
	}
	if err != nil {
		return nil, err
	}
	if rec.Expired(time.Now().UTC()) {
		return nil, ErrNonceExpired
	}

	verifier := a.verifierFor(w.Family)
	if verifier == nil {
		return nil, fmt.Errorf("wallet: no verifier for family %q", w.Family)
	}
	ok, err := verifier.Verify(w, rec.Message, signature)
	if err != nil {
		a.log.Debug("Signature verification errored", "address", w.Normalized, "err", err)
		return nil, ErrInvalidSignature
	}
	if !ok {
		return nil, ErrInvalidSignature
	}

	// Consume the nonce before reporting success; a durable delete failure
	// fails the verification rather than leaving a replayable challenge.
	if err := a.nonces.DeleteNonce(w.Normalized); err != nil {
		return nil, err
	}
	if err := a.registry.Touch(address); err != nil {
		a.log.Warn("Failed to update lastSeenAt", "address", w.Normalized, "err", err)
	}
	w, err = a.registry.Get(address)
	if err != nil {
		return nil, err
	}

	verifiedAt := time.Now().UTC().Format(time.RFC3339Nano)
	return &VerifyResult{
		Wallet:       w,
		VerifiedAt:   verifiedAt,
		SessionToken: sha256Hex(w.ID + ":" + rec.Nonce + ":" + verifiedAt),
		Proof:        sha256Hex(signature + ":" + rec.Message),
	}, nil
}

func (a *Auth) verifierFor(family string) Verifier {
	for _, v := range a.verifiers {
		if v.CanVerify(family) {
			return v
		}
	}
	return nil
}

// SweepExpired removes challenges past their deadline. Best effort: errors
// are logged and sweeping continues.
func (a *Auth) SweepExpired(now time.Time) {
	records, err := a.nonces.Nonces()
	if err != nil {
		a.log.Warn("Nonce sweep failed", "err", err)
		return
	}
	for _, rec := range records {
		if rec.Expired(now) {
			if err := a.nonces.DeleteNonce(rec.Normalized); err != nil {
				a.log.Warn("Failed to delete expired nonce", "address", rec.Normalized, "err", err)
				continue
			}
			a.log.Debug("Expired nonce swept", "address", rec.Normalized)
		}
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
