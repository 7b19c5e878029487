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

// Package filestore implements the storage interfaces on the local
// filesystem: a goleveldb database for transactions and blocks, a
// newline-delimited JSON audit log, and atomically rewritten JSON documents
// for the registry-style state (wallets, nonces, mempool snapshot,
// reference directory).
package filestore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage"
)

const (
	txPrefix  = "tx-"
	blkPrefix = "blk-"

	auditLogName = "audit.log"
)

// Store is a filesystem-backed storage.Store rooted at a data directory.
//
//	<root>/ledgerdb/        goleveldb: tx-<id>, blk-<index>
//	<root>/audit.log        NDJSON, one audit entry per line
//	<root>/mempool.json     mempool snapshot
//	<root>/wallets.json     wallet registry
//	<root>/nonces.json      outstanding challenges
//	<root>/reference/*.json directory documents
type Store struct {
	root string
	db   *leveldb.DB
	log  log.Logger

	mu       sync.Mutex
	auditOut *os.File

	wallets map[string]*types.WalletProfile
	nonces  map[string]*types.NonceRecord

	closed bool
}

// Open creates (or reopens) a file store under root.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "reference"), 0o755); err != nil {
		return nil, fmt.Errorf("filestore: creating data root: %w", err)
	}
	db, err := leveldb.OpenFile(filepath.Join(root, "ledgerdb"), nil)
	if err != nil {
		return nil, fmt.Errorf("filestore: opening leveldb: %w", err)
	}
	out, err := os.OpenFile(filepath.Join(root, auditLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("filestore: opening audit log: %w", err)
	}
	s := &Store{
		root:     root,
		db:       db,
		log:      log.New("module", "filestore"),
		auditOut: out,
		wallets:  make(map[string]*types.WalletProfile),
		nonces:   make(map[string]*types.NonceRecord),
	}
	if err := s.loadDocuments(); err != nil {
		out.Close()
		db.Close()
		return nil, err
	}
	s.log.Info("File store opened", "root", root)
	return s, nil
}

func (s *Store) loadDocuments() error {
	var wallets []*types.WalletProfile
	if err := readJSON(filepath.Join(s.root, "wallets.json"), &wallets); err != nil {
		return err
	}
	for _, w := range wallets {
		s.wallets[w.Normalized] = w
	}
	var nonces []*types.NonceRecord
	if err := readJSON(filepath.Join(s.root, "nonces.json"), &nonces); err != nil {
		return err
	}
	for _, rec := range nonces {
		s.nonces[rec.Normalized] = rec
	}
	return nil
}

// Close flushes and closes the underlying database and the audit log.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.auditOut.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
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
	raw, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(txPrefix+tx.ID), raw, nil)
}

// Transaction fetches one transaction by id.
func (s *Store) Transaction(id string) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	raw, err := s.db.Get([]byte(txPrefix+id), nil)
	if err == leveldb.ErrNotFound {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tx := new(types.Transaction)
	if err := json.Unmarshal(raw, tx); err != nil {
		return nil, fmt.Errorf("filestore: corrupt transaction %s: %w", id, err)
	}
	return tx, nil
}

// Transactions lists transactions matching the filter, newest first by
// submission time.
func (s *Store) Transactions(filter storage.TransactionFilter) ([]*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	var all []*types.Transaction
	iter := s.db.NewIterator(util.BytesPrefix([]byte(txPrefix)), nil)
	for iter.Next() {
		tx := new(types.Transaction)
		if err := json.Unmarshal(iter.Value(), tx); err != nil {
			s.log.Warn("Skipping corrupt transaction row", "key", string(iter.Key()), "err", err)
			continue
		}
		all = append(all, tx)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	var out []*types.Transaction
	for _, tx := range all {
		if !matches(tx, filter) {
			continue
		}
		out = append(out, tx)
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

// MarkCommitted labels known transactions with the block hash. Unknown ids
// are skipped; the batch commits atomically.
func (s *Store) MarkCommitted(ids []string, blockHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	for _, id := range ids {
		raw, err := s.db.Get([]byte(txPrefix+id), nil)
		if err == leveldb.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		tx := new(types.Transaction)
		if err := json.Unmarshal(raw, tx); err != nil {
			continue
		}
		tx.BlockHash = blockHash
		tx.Status = "committed"
		updated, err := json.Marshal(tx)
		if err != nil {
			return err
		}
		batch.Put([]byte(txPrefix+id), updated)
	}
	return s.db.Write(batch, nil)
}

// AppendAudit appends one entry to the audit log and syncs it to disk.
func (s *Store) AppendAudit(entry *types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := s.auditOut.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("filestore: appending audit entry: %w", err)
	}
	return s.auditOut.Sync()
}

// AuditEntries reads the whole audit log in append order. Unparseable lines
// are skipped with a warning so one bad line cannot take the log offline.
func (s *Store) AuditEntries() ([]*types.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	return s.readAuditLocked()
}

func (s *Store) readAuditLocked() ([]*types.AuditEntry, error) {
	f, err := os.Open(filepath.Join(s.root, auditLogName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []*types.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		entry := new(types.AuditEntry)
		if err := json.Unmarshal(line, entry); err != nil {
			s.log.Warn("Skipping unparseable audit line", "err", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// PruneAudit rewrites the log keeping only entries at or after the cutoff.
func (s *Store) PruneAudit(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return 0, err
	}
	entries, err := s.readAuditLocked()
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	removed := 0
	for _, e := range entries {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err == nil && ts.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.rewriteAuditLocked(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) rewriteAuditLocked(entries []*types.AuditEntry) error {
	path := filepath.Join(s.root, auditLogName)
	tmp, err := os.CreateTemp(s.root, auditLogName+".tmp-")
	if err != nil {
		return err
	}
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return err
		}
		if _, err := tmp.Write(append(raw, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return err
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	s.auditOut.Close()
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return s.reopenAuditLocked()
}

func (s *Store) reopenAuditLocked() error {
	out, err := os.OpenFile(filepath.Join(s.root, auditLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	s.auditOut = out
	return nil
}

// RotateAudit renames the current log to a timestamped archive next to it
// and starts a fresh one. Returns the archive file name.
func (s *Store) RotateAudit() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return "", err
	}
	archive := fmt.Sprintf("audit-%s.log", time.Now().UTC().Format("20060102T150405"))
	s.auditOut.Close()
	if err := os.Rename(filepath.Join(s.root, auditLogName), filepath.Join(s.root, archive)); err != nil {
		return "", err
	}
	if err := s.reopenAuditLocked(); err != nil {
		return "", err
	}
	s.log.Info("Audit log rotated", "archive", archive)
	return archive, nil
}

// AuditSize reports the byte size of the active audit log.
func (s *Store) AuditSize() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, err := os.Stat(filepath.Join(s.root, auditLogName))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// PutWallet stores a wallet profile and rewrites the wallet document.
func (s *Store) PutWallet(w *types.WalletProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.wallets[w.Normalized] = cloneWallet(w)
	return writeJSON(filepath.Join(s.root, "wallets.json"), s.walletSliceLocked())
}

// Wallet fetches a wallet by normalized address.
func (s *Store) Wallet(normalized string) (*types.WalletProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[normalized]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneWallet(w), nil
}

// Wallets lists all registered wallets, ordered by normalized address.
func (s *Store) Wallets() ([]*types.WalletProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.walletSliceLocked()
	for i, w := range out {
		out[i] = cloneWallet(w)
	}
	return out, nil
}

func (s *Store) walletSliceLocked() []*types.WalletProfile {
	keys := make([]string, 0, len(s.wallets))
	for k := range s.wallets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*types.WalletProfile, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.wallets[k])
	}
	return out
}

// PutNonce stores the active challenge for an address, replacing any
// previous one.
func (s *Store) PutNonce(rec *types.NonceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.nonces[rec.Normalized] = cloneNonce(rec)
	return s.writeNoncesLocked()
}

// Nonce fetches the active challenge for an address.
func (s *Store) Nonce(normalized string) (*types.NonceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.nonces[normalized]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneNonce(rec), nil
}

// DeleteNonce removes the active challenge for an address.
func (s *Store) DeleteNonce(normalized string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	delete(s.nonces, normalized)
	return s.writeNoncesLocked()
}

// Nonces lists all outstanding challenges.
func (s *Store) Nonces() ([]*types.NonceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.NonceRecord, 0, len(s.nonces))
	for _, rec := range s.nonces {
		out = append(out, cloneNonce(rec))
	}
	return out, nil
}

func (s *Store) writeNoncesLocked() error {
	out := make([]*types.NonceRecord, 0, len(s.nonces))
	for _, rec := range s.nonces {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Normalized < out[j].Normalized })
	return writeJSON(filepath.Join(s.root, "nonces.json"), out)
}

// SaveMempool rewrites the snapshot document atomically.
func (s *Store) SaveMempool(snap *types.MempoolSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.root, "mempool.json"), snap)
}

// LoadMempool returns the stored snapshot, or (nil, nil) when absent.
func (s *Store) LoadMempool() (*types.MempoolSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.root, "mempool.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	snap := new(types.MempoolSnapshot)
	if err := readJSON(path, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Providers returns the provider directory.
func (s *Store) Providers() ([]*types.Provider, error) {
	var out []*types.Provider
	err := readJSON(filepath.Join(s.root, "reference", "providers.json"), &out)
	return out, err
}

// Patients returns the patient directory.
func (s *Store) Patients() ([]*types.Patient, error) {
	var out []*types.Patient
	err := readJSON(filepath.Join(s.root, "reference", "patients.json"), &out)
	return out, err
}

// Validators returns the validator directory.
func (s *Store) Validators() ([]*types.Validator, error) {
	var out []*types.Validator
	err := readJSON(filepath.Join(s.root, "reference", "validators.json"), &out)
	return out, err
}

// SeedReference installs the reference directory documents.
func (s *Store) SeedReference(providers []*types.Provider, patients []*types.Patient, validators []*types.Validator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(s.root, "reference", "providers.json"), providers); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(s.root, "reference", "patients.json"), patients); err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.root, "reference", "validators.json"), validators)
}

// Blocks returns all committed blocks in chain order.
func (s *Store) Blocks() ([]*types.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	var out []*types.Block
	iter := s.db.NewIterator(util.BytesPrefix([]byte(blkPrefix)), nil)
	for iter.Next() {
		b := new(types.Block)
		if err := json.Unmarshal(iter.Value(), b); err != nil {
			iter.Release()
			return nil, fmt.Errorf("filestore: corrupt block row %s: %w", string(iter.Key()), err)
		}
		out = append(out, b)
	}
	iter.Release()
	return out, iter.Error()
}

// HeadBlock returns the latest committed block.
func (s *Store) HeadBlock() (*types.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	iter := s.db.NewIterator(util.BytesPrefix([]byte(blkPrefix)), nil)
	defer iter.Release()
	if !iter.Last() {
		return nil, storage.ErrNotFound
	}
	b := new(types.Block)
	if err := json.Unmarshal(iter.Value(), b); err != nil {
		return nil, err
	}
	return b, nil
}

// AppendBlock appends a committed block. The fixed-width hex index keeps
// leveldb's lexicographic iteration in chain order.
func (s *Store) AppendBlock(b *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(fmt.Sprintf("%s%016x", blkPrefix, b.Index)), raw, nil)
}

func cloneWallet(w *types.WalletProfile) *types.WalletProfile {
	raw, _ := json.Marshal(w)
	out := new(types.WalletProfile)
	_ = json.Unmarshal(raw, out)
	return out
}

func cloneNonce(rec *types.NonceRecord) *types.NonceRecord {
	raw, _ := json.Marshal(rec)
	out := new(types.NonceRecord)
	_ = json.Unmarshal(raw, out)
	return out
}

// readJSON loads a JSON document; a missing file leaves dst untouched.
func readJSON(path string, dst interface{}) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("filestore: corrupt document %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON rewrites a document through a temp file and rename, so readers
// never observe a torn write.
func writeJSON(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
