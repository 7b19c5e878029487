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

// Package pgstore implements the storage interfaces on PostgreSQL. Rows
// carry the full record as a jsonb document plus the denormalized columns
// the listing filters need. The schema is migrated at open.
package pgstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	_ "github.com/lib/pq"

	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id         text PRIMARY KEY,
		patient_id text NOT NULL DEFAULT '',
		tx_type    text NOT NULL DEFAULT '',
		status     text NOT NULL DEFAULT '',
		tier       int  NOT NULL DEFAULT 0,
		created_at timestamptz NOT NULL,
		doc        jsonb NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_created_at_idx ON transactions (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		sequence bigint PRIMARY KEY,
		ts       timestamptz NOT NULL,
		doc      jsonb NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		normalized text PRIMARY KEY,
		doc        jsonb NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wallet_nonces (
		normalized text PRIMARY KEY,
		doc        jsonb NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mempool_snapshot (
		id  int PRIMARY KEY CHECK (id = 1),
		doc jsonb NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS providers (
		id  text PRIMARY KEY,
		doc jsonb NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id  text PRIMARY KEY,
		doc jsonb NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS validators (
		id  text PRIMARY KEY,
		doc jsonb NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS blocks (
		block_index bigint PRIMARY KEY,
		doc         jsonb NOT NULL
	)`,
}

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	db  *sql.DB
	log log.Logger
}

// Open connects to the database named by the connection string and migrates
// the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: pinging database: %w", err)
	}
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("pgstore: migrating schema: %w", err)
		}
	}
	s := &Store{db: db, log: log.New("module", "pgstore")}
	s.log.Info("Postgres store opened")
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertTransaction stores or replaces a transaction by id.
func (s *Store) UpsertTransaction(tx *types.Transaction) error {
	doc, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO transactions (id, patient_id, tx_type, status, tier, created_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			tx_type    = EXCLUDED.tx_type,
			status     = EXCLUDED.status,
			tier       = EXCLUDED.tier,
			created_at = EXCLUDED.created_at,
			doc        = EXCLUDED.doc`,
		tx.ID, tx.PatientID(), tx.Type, tx.Status, tx.Tier, tx.CreatedAt, doc)
	return err
}

// Transaction fetches one transaction by id.
func (s *Store) Transaction(id string) (*types.Transaction, error) {
	var doc []byte
	err := s.db.QueryRow(`SELECT doc FROM transactions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tx := new(types.Transaction)
	if err := json.Unmarshal(doc, tx); err != nil {
		return nil, fmt.Errorf("pgstore: corrupt transaction %s: %w", id, err)
	}
	return tx, nil
}

// Transactions lists transactions matching the filter, newest first.
func (s *Store) Transactions(filter storage.TransactionFilter) ([]*types.Transaction, error) {
	query := `SELECT doc FROM transactions WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.PatientID != "" {
		query += ` AND patient_id = ` + arg(filter.PatientID)
	}
	if filter.Type != "" {
		query += ` AND tx_type = ` + arg(filter.Type)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(filter.Status)
	}
	if filter.Tier != 0 {
		query += ` AND tier = ` + arg(filter.Tier)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Transaction
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		tx := new(types.Transaction)
		if err := json.Unmarshal(doc, tx); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// MarkCommitted labels known transactions with the block hash in a single
// transaction. Unknown ids are skipped.
func (s *Store) MarkCommitted(ids []string, blockHash string) error {
	dbtx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	for _, id := range ids {
		var doc []byte
		err := dbtx.QueryRow(`SELECT doc FROM transactions WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		tx := new(types.Transaction)
		if err := json.Unmarshal(doc, tx); err != nil {
			continue
		}
		tx.BlockHash = blockHash
		tx.Status = "committed"
		updated, err := json.Marshal(tx)
		if err != nil {
			return err
		}
		if _, err := dbtx.Exec(`UPDATE transactions SET status = 'committed', doc = $2 WHERE id = $1`, id, updated); err != nil {
			return err
		}
	}
	return dbtx.Commit()
}

// AppendAudit inserts one audit entry. The sequence primary key rejects
// duplicates, which keeps the append-only discipline honest at the schema
// level.
func (s *Store) AppendAudit(entry *types.AuditEntry) error {
	doc, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("pgstore: bad audit timestamp: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO audit_log (sequence, ts, doc) VALUES ($1, $2, $3)`,
		int64(entry.Sequence), ts, doc)
	return err
}

// AuditEntries returns all audit entries in sequence order.
func (s *Store) AuditEntries() ([]*types.AuditEntry, error) {
	rows, err := s.db.Query(`SELECT doc FROM audit_log ORDER BY sequence ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.AuditEntry
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		entry := new(types.AuditEntry)
		if err := json.Unmarshal(doc, entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// PruneAudit drops entries older than the cutoff.
func (s *Store) PruneAudit(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM audit_log WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// RotateAudit is a no-op: the table has no rotatable medium.
func (s *Store) RotateAudit() (string, error) { return "", nil }

// AuditSize reports 0; size-based rotation does not apply to the table.
func (s *Store) AuditSize() (int64, error) { return 0, nil }

// PutWallet stores a wallet profile keyed by normalized address.
func (s *Store) PutWallet(w *types.WalletProfile) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO wallets (normalized, doc) VALUES ($1, $2)
		ON CONFLICT (normalized) DO UPDATE SET doc = EXCLUDED.doc`,
		w.Normalized, doc)
	return err
}

// Wallet fetches a wallet by normalized address.
func (s *Store) Wallet(normalized string) (*types.WalletProfile, error) {
	var doc []byte
	err := s.db.QueryRow(`SELECT doc FROM wallets WHERE normalized = $1`, normalized).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w := new(types.WalletProfile)
	if err := json.Unmarshal(doc, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Wallets lists all registered wallets, ordered by normalized address.
func (s *Store) Wallets() ([]*types.WalletProfile, error) {
	rows, err := s.db.Query(`SELECT doc FROM wallets ORDER BY normalized ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.WalletProfile
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		w := new(types.WalletProfile)
		if err := json.Unmarshal(doc, w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// PutNonce stores the active challenge for an address, replacing any
// previous one.
func (s *Store) PutNonce(rec *types.NonceRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO wallet_nonces (normalized, doc) VALUES ($1, $2)
		ON CONFLICT (normalized) DO UPDATE SET doc = EXCLUDED.doc`,
		rec.Normalized, doc)
	return err
}

// Nonce fetches the active challenge for an address.
func (s *Store) Nonce(normalized string) (*types.NonceRecord, error) {
	var doc []byte
	err := s.db.QueryRow(`SELECT doc FROM wallet_nonces WHERE normalized = $1`, normalized).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := new(types.NonceRecord)
	if err := json.Unmarshal(doc, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteNonce removes the active challenge for an address.
func (s *Store) DeleteNonce(normalized string) error {
	_, err := s.db.Exec(`DELETE FROM wallet_nonces WHERE normalized = $1`, normalized)
	return err
}

// Nonces lists all outstanding challenges.
func (s *Store) Nonces() ([]*types.NonceRecord, error) {
	rows, err := s.db.Query(`SELECT doc FROM wallet_nonces`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.NonceRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		rec := new(types.NonceRecord)
		if err := json.Unmarshal(doc, rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveMempool upserts the singleton snapshot row.
func (s *Store) SaveMempool(snap *types.MempoolSnapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO mempool_snapshot (id, doc) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, doc)
	return err
}

// LoadMempool returns the stored snapshot, or (nil, nil) when absent.
func (s *Store) LoadMempool() (*types.MempoolSnapshot, error) {
	var doc []byte
	err := s.db.QueryRow(`SELECT doc FROM mempool_snapshot WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap := new(types.MempoolSnapshot)
	if err := json.Unmarshal(doc, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func listDocs[T any](db *sql.DB, table string) ([]*T, error) {
	rows, err := db.Query(`SELECT doc FROM ` + table + ` ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		item := new(T)
		if err := json.Unmarshal(doc, item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Providers returns the provider directory.
func (s *Store) Providers() ([]*types.Provider, error) {
	return listDocs[types.Provider](s.db, "providers")
}

// Patients returns the patient directory.
func (s *Store) Patients() ([]*types.Patient, error) {
	return listDocs[types.Patient](s.db, "patients")
}

// Validators returns the validator directory.
func (s *Store) Validators() ([]*types.Validator, error) {
	return listDocs[types.Validator](s.db, "validators")
}

// SeedReference installs the reference directory atomically.
func (s *Store) SeedReference(providers []*types.Provider, patients []*types.Patient, validators []*types.Validator) error {
	dbtx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	for _, table := range []string{"providers", "patients", "validators"} {
		if _, err := dbtx.Exec(`DELETE FROM ` + table); err != nil {
			return err
		}
	}
	put := func(table, id string, v interface{}) error {
		doc, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = dbtx.Exec(`INSERT INTO `+table+` (id, doc) VALUES ($1, $2)`, id, doc)
		return err
	}
	for _, p := range providers {
		if err := put("providers", p.ID, p); err != nil {
			return err
		}
	}
	for _, p := range patients {
		if err := put("patients", p.ID, p); err != nil {
			return err
		}
	}
	for _, v := range validators {
		if err := put("validators", v.ID, v); err != nil {
			return err
		}
	}
	return dbtx.Commit()
}

// Blocks returns all committed blocks in chain order.
func (s *Store) Blocks() ([]*types.Block, error) {
	rows, err := s.db.Query(`SELECT doc FROM blocks ORDER BY block_index ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Block
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		b := new(types.Block)
		if err := json.Unmarshal(doc, b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// HeadBlock returns the latest committed block.
func (s *Store) HeadBlock() (*types.Block, error) {
	var doc []byte
	err := s.db.QueryRow(`SELECT doc FROM blocks ORDER BY block_index DESC LIMIT 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b := new(types.Block)
	if err := json.Unmarshal(doc, b); err != nil {
		return nil, err
	}
	return b, nil
}

// AppendBlock appends a committed block.
func (s *Store) AppendBlock(b *types.Block) error {
	doc, err := json.Marshal(b)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO blocks (block_index, doc) VALUES ($1, $2)`, int64(b.Index), doc)
	return err
}
