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

// Package memstore implements the storage interfaces purely in memory. It
// backs the test suites and serves as the reference semantics for the
// durable backends.
package memstore

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage"
)

// Store is an in-memory storage.Store. Values are copied on the way in and
// out through JSON so callers cannot alias internal state.
type Store struct {
	mu sync.RWMutex

	txs     map[string]*types.Transaction
	txOrder []string

	audit []*types.AuditEntry

	wallets map[string]*types.WalletProfile
	nonces  map[string]*types.NonceRecord

	mempool *types.MempoolSnapshot

	providers  []*types.Provider
	patients   []*types.Patient
	validators []*types.Validator

	blocks []*types.Block

	closed bool

	// FailNextSave makes the next mempool save fail; used by tests to
	// exercise the rollback path.
	FailNextSave error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		txs:     make(map[string]*types.Transaction),
		wallets: make(map[string]*types.WalletProfile),
		nonces:  make(map[string]*types.NonceRecord),
	}
}

func clone[T any](src *T) *T {
	if src == nil {
		return nil
	}
	raw, _ := json.Marshal(src)
	dst := new(T)
	_ = json.Unmarshal(raw, dst)
	return dst
}

func cloneSlice[T any](src []*T) []*T {
	out := make([]*T, len(src))
	for i, item := range src {
		out[i] = clone(item)
	}
	return out
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) guard() error {
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

// UpsertTransaction stores or replaces a transaction by id.
func (s *Store) UpsertTransaction(tx *types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	if _, ok := s.txs[tx.ID]; !ok {
		s.txOrder = append(s.txOrder, tx.ID)
	}
	s.txs[tx.ID] = clone(tx)
	return nil
}

// Transaction fetches one transaction by id.
func (s *Store) Transaction(id string) (*types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(tx), nil
}

// Transactions lists transactions matching the filter, newest first.
func (s *Store) Transactions(filter storage.TransactionFilter) ([]*types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Transaction
	for i := len(s.txOrder) - 1; i >= 0; i-- {
		tx := s.txs[s.txOrder[i]]
		if !matches(tx, filter) {
			continue
		}
		out = append(out, clone(tx))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func matches(tx *types.Transaction, f storage.TransactionFilter) bool {
	if f.PatientID != "" && tx.PatientID() != f.PatientID {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.Tier != 0 && tx.Tier != f.Tier {
		return false
	}
	return true
}

// MarkCommitted labels known transactions with the block hash.
func (s *Store) MarkCommitted(ids []string, blockHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if tx, ok := s.txs[id]; ok {
			tx.BlockHash = blockHash
			tx.Status = "committed"
		}
	}
	return nil
}

// AppendAudit appends an audit entry.
func (s *Store) AppendAudit(entry *types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.audit = append(s.audit, clone(entry))
	return nil
}

// AuditEntries returns all audit entries in append order.
func (s *Store) AuditEntries() ([]*types.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.audit), nil
}

// PruneAudit drops entries older than the cutoff.
func (s *Store) PruneAudit(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.audit[:0]
	removed := 0
	for _, e := range s.audit {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err == nil && ts.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return removed, nil
}

// RotateAudit is a no-op for the memory backend.
func (s *Store) RotateAudit() (string, error) { return "", nil }

// AuditSize reports 0; memory has no rotatable medium.
func (s *Store) AuditSize() (int64, error) { return 0, nil }

// PutWallet stores a wallet profile keyed by normalized address.
func (s *Store) PutWallet(w *types.WalletProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.wallets[w.Normalized] = clone(w)
	return nil
}

// Wallet fetches a wallet by normalized address.
func (s *Store) Wallet(normalized string) (*types.WalletProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[normalized]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(w), nil
}

// Wallets lists all registered wallets, ordered by normalized address.
func (s *Store) Wallets() ([]*types.WalletProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.wallets))
	for k := range s.wallets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*types.WalletProfile, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(s.wallets[k]))
	}
	return out, nil
}

// PutNonce stores the active challenge for an address, replacing any
// previous one.
func (s *Store) PutNonce(rec *types.NonceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.nonces[rec.Normalized] = clone(rec)
	return nil
}

// Nonce fetches the active challenge for an address.
func (s *Store) Nonce(normalized string) (*types.NonceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.nonces[normalized]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(rec), nil
}

// DeleteNonce removes the active challenge for an address.
func (s *Store) DeleteNonce(normalized string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nonces, normalized)
	return nil
}

// Nonces lists all outstanding challenges.
func (s *Store) Nonces() ([]*types.NonceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.NonceRecord, 0, len(s.nonces))
	for _, rec := range s.nonces {
		out = append(out, clone(rec))
	}
	return out, nil
}

// SaveMempool persists the snapshot.
func (s *Store) SaveMempool(snap *types.MempoolSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	if s.FailNextSave != nil {
		err := s.FailNextSave
		s.FailNextSave = nil
		return err
	}
	s.mempool = clone(snap)
	return nil
}

// LoadMempool returns the stored snapshot, or (nil, nil) when absent.
func (s *Store) LoadMempool() (*types.MempoolSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mempool == nil {
		return nil, nil
	}
	return clone(s.mempool), nil
}

// Providers returns the provider directory.
func (s *Store) Providers() ([]*types.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.providers), nil
}

// Patients returns the patient directory.
func (s *Store) Patients() ([]*types.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.patients), nil
}

// Validators returns the validator directory.
func (s *Store) Validators() ([]*types.Validator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.validators), nil
}

// SeedReference installs the reference directory.
func (s *Store) SeedReference(providers []*types.Provider, patients []*types.Patient, validators []*types.Validator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = cloneSlice(providers)
	s.patients = cloneSlice(patients)
	s.validators = cloneSlice(validators)
	return nil
}

// Blocks returns all committed blocks in chain order.
func (s *Store) Blocks() ([]*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.blocks), nil
}

// HeadBlock returns the latest committed block.
func (s *Store) HeadBlock() (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return nil, storage.ErrNotFound
	}
	return clone(s.blocks[len(s.blocks)-1]), nil
}

// AppendBlock appends a committed block.
func (s *Store) AppendBlock(b *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, clone(b))
	return nil
}
