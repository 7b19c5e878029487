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

// Package wallet implements the address registry and the nonce-based
// challenge/verify authentication flow gating write access to the ledger.
package wallet

import (
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
	// ErrUnknownWallet is returned when no profile exists for an address.
	ErrUnknownWallet = errors.New("wallet: unknown wallet")

	// ErrFamilyMismatch is returned when a request declares a family other
	// than the registered one.
	ErrFamilyMismatch = errors.New("wallet: wallet family mismatch")

	// ErrMissingPublicKey is returned when a custom-keypair wallet is seen
	// for the first time without a public key.
	ErrMissingPublicKey = errors.New("wallet: custom-keypair wallet requires a public key")

	// ErrWalletInactive is returned for revoked or suspended wallets.
	ErrWalletInactive = errors.New("wallet: wallet is not active")

	// ErrInvalidStatus is returned by SetStatus for an unrecognized value.
	ErrInvalidStatus = errors.New("wallet: invalid status")
)

// RegisterInput describes a wallet to materialize.
type RegisterInput struct {
	Address   string
	Family    string
	Label     string
	PublicKey string
	Metadata  map[string]interface{}
	Roles     []string
}

// Registry is the durable keyed map from normalized address to wallet
// profile. Writes are single-writer; reads see consistent snapshots from
// the backing store.
type Registry struct {
	store storage.WalletStore
	mu    sync.Mutex
	log   log.Logger
}

// NewRegistry creates a registry over its durable store.
func NewRegistry(store storage.WalletStore) *Registry {
	return &Registry{store: store, log: log.New("module", "wallet")}
}

// Register materializes a wallet, idempotently by normalized address: a
// second call for the same address returns the existing profile and creates
// no second row. Custom-keypair wallets must carry a public key on first
// registration.
func (r *Registry) Register(input RegisterInput) (*types.WalletProfile, error) {
	normalized := types.NormalizeAddress(input.Address)
	if normalized == "" {
		return nil, errors.New("wallet: empty address")
	}
	family := input.Family
	if family == "" {
		family = types.WalletFamilyExternal
	}
	if family != types.WalletFamilyExternal && family != types.WalletFamilyCustom {
		return nil, fmt.Errorf("wallet: unknown family %q", family)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, err := r.store.Wallet(normalized); err == nil {
		if input.Family != "" && existing.Family != input.Family {
			return nil, ErrFamilyMismatch
		}
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if family == types.WalletFamilyCustom && input.PublicKey == "" {
		return nil, ErrMissingPublicKey
	}
	roles := input.Roles
	if len(roles) == 0 {
		roles = append([]string(nil), types.DefaultWalletRoles...)
	}
	now := time.Now().UTC()
	profile := &types.WalletProfile{
		ID:         uuid.NewString(),
		Address:    input.Address,
		Normalized: normalized,
		Family:     family,
		Label:      input.Label,
		PublicKey:  input.PublicKey,
		Metadata:   input.Metadata,
		Roles:      roles,
		Status:     types.WalletStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.store.PutWallet(profile); err != nil {
		return nil, err
	}
	r.log.Info("Wallet registered", "address", normalized, "family", family, "id", profile.ID)
	return profile, nil
}

// Get fetches a wallet by (not necessarily normalized) address.
func (r *Registry) Get(address string) (*types.WalletProfile, error) {
	w, err := r.store.Wallet(types.NormalizeAddress(address))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownWallet
	}
	return w, err
}

// Touch updates a wallet's lastSeenAt.
func (r *Registry) Touch(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, err := r.store.Wallet(types.NormalizeAddress(address))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUnknownWallet
	}
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	w.LastSeenAt = &now
	w.UpdatedAt = now
	return r.store.PutWallet(w)
}

// SetStatus transitions a wallet among active, revoked and suspended.
func (r *Registry) SetStatus(address, status string) (*types.WalletProfile, error) {
	switch status {
	case types.WalletStatusActive, types.WalletStatusRevoked, types.WalletStatusSuspended:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, err := r.store.Wallet(types.NormalizeAddress(address))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownWallet
	}
	if err != nil {
		return nil, err
	}
	w.Status = status
	w.UpdatedAt = time.Now().UTC()
	if err := r.store.PutWallet(w); err != nil {
		return nil, err
	}
	r.log.Info("Wallet status changed", "address", w.Normalized, "status", status)
	return w, nil
}

// Count reports the number of registered wallets.
func (r *Registry) Count() (int, error) {
	wallets, err := r.store.Wallets()
	if err != nil {
		return 0, err
	}
	return len(wallets), nil
}
