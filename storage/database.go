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

// Package storage defines the durable store interfaces of the ledger core
// and hosts its backends. One backend serves a whole deployment: either the
// file store (goleveldb plus JSON documents under a data root) or the
// Postgres store.
package storage

import (
	"errors"
	"time"

	"github.com/muuduuu/Private-Blockchain/core/types"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrClosed is returned on operations against a closed store.
	ErrClosed = errors.New("storage: closed")
)

// TransactionFilter narrows a transaction listing. Zero values mean "any";
// predicates compose with logical AND.
type TransactionFilter struct {
	PatientID string
	Type      string
	Status    string
	Tier      int
	Limit     int
}

// TransactionStore persists submitted transactions.
type TransactionStore interface {
	UpsertTransaction(tx *types.Transaction) error
	Transaction(id string) (*types.Transaction, error)
	Transactions(filter TransactionFilter) ([]*types.Transaction, error)

	// MarkCommitted labels stored transactions with the hash of the block
	// that included them. Unknown ids are skipped.
	MarkCommitted(ids []string, blockHash string) error
}

// AuditStore is the append-only durable half of the audit log. Appends are
// issued strictly in sequence order by the audit component.
type AuditStore interface {
	AppendAudit(entry *types.AuditEntry) error
	AuditEntries() ([]*types.AuditEntry, error)

	// PruneAudit removes entries whose timestamp is strictly before cutoff
	// and reports how many were removed.
	PruneAudit(cutoff time.Time) (int, error)

	// RotateAudit archives the current durable log and continues a fresh
	// one, returning the archive name. Backends without a rotatable medium
	// return ("", nil).
	RotateAudit() (string, error)

	// AuditSize reports the byte size of the durable log, or 0 when the
	// backend has no meaningful byte measure.
	AuditSize() (int64, error)
}

// WalletStore persists the wallet registry, keyed by normalized address.
type WalletStore interface {
	PutWallet(w *types.WalletProfile) error
	Wallet(normalized string) (*types.WalletProfile, error)
	Wallets() ([]*types.WalletProfile, error)
}

// NonceStore persists outstanding wallet challenges, keyed by normalized
// address. Writing an address that already holds a nonce replaces it.
type NonceStore interface {
	PutNonce(rec *types.NonceRecord) error
	Nonce(normalized string) (*types.NonceRecord, error)
	DeleteNonce(normalized string) error
	Nonces() ([]*types.NonceRecord, error)
}

// MempoolStore persists the mempool snapshot.
type MempoolStore interface {
	SaveMempool(snap *types.MempoolSnapshot) error

	// LoadMempool returns (nil, nil) when no snapshot has been written yet.
	LoadMempool() (*types.MempoolSnapshot, error)
}

// ReferenceStore serves the read-only reference directory.
type ReferenceStore interface {
	Providers() ([]*types.Provider, error)
	Patients() ([]*types.Patient, error)
	Validators() ([]*types.Validator, error)

	// SeedReference installs directory rows; used once at bootstrap when
	// the directory is empty.
	SeedReference(providers []*types.Provider, patients []*types.Patient, validators []*types.Validator) error
}

// BlockStore holds the committed blocks written by the external block
// producer. The ledger core reads them and, in tests, appends them.
type BlockStore interface {
	Blocks() ([]*types.Block, error)
	HeadBlock() (*types.Block, error)
	AppendBlock(b *types.Block) error
}

// Store is the full persistence surface a backend must provide.
type Store interface {
	TransactionStore
	AuditStore
	WalletStore
	NonceStore
	MempoolStore
	ReferenceStore
	BlockStore

	Close() error
}
