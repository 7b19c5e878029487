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

package types

import (
	"strings"
	"time"
)

// Wallet families. External-signer wallets are verified by secp256k1 address
// recovery over an EIP-191 personal-sign envelope; custom-keypair wallets
// are verified directly against a registered public key.
const (
	WalletFamilyExternal = "external-signer"
	WalletFamilyCustom   = "custom-keypair"
)

// Wallet statuses.
const (
	WalletStatusActive    = "active"
	WalletStatusRevoked   = "revoked"
	WalletStatusSuspended = "suspended"
)

// DefaultWalletRoles is assigned to wallets registered without explicit roles.
var DefaultWalletRoles = []string{"clinician"}

// NormalizeAddress lowercases and trims an address. The normalized form is
// the registry key and is unique across the registry.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// WalletProfile is one registered address with its verification material.
type WalletProfile struct {
	ID         string                 `json:"id"`
	Address    string                 `json:"address"`
	Normalized string                 `json:"normalized"`
	Family     string                 `json:"family"`
	Label      string                 `json:"label,omitempty"`
	PublicKey  string                 `json:"publicKey,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Roles      []string               `json:"roles"`
	Status     string                 `json:"status"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
	LastSeenAt *time.Time             `json:"lastSeenAt,omitempty"`
}

// Scheme reads metadata.scheme for custom-keypair wallets; ed25519 is the
// default when unset.
func (w *WalletProfile) Scheme() string {
	if w.Metadata != nil {
		if s, ok := w.Metadata["scheme"].(string); ok && s != "" {
			return s
		}
	}
	return "ed25519"
}

// NonceRecord is one outstanding authentication challenge. At most one
// active record exists per normalized address; the record is deleted on
// successful verification or by the expiry sweep.
type NonceRecord struct {
	Address    string                 `json:"address"`
	Normalized string                 `json:"normalized"`
	Nonce      string                 `json:"nonce"`
	Message    string                 `json:"message"`
	Family     string                 `json:"family"`
	IssuedAt   time.Time              `json:"issuedAt"`
	ExpiresAt  time.Time              `json:"expiresAt"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Expired reports whether the challenge is past its deadline.
func (n *NonceRecord) Expired(now time.Time) bool {
	return now.After(n.ExpiresAt)
}
