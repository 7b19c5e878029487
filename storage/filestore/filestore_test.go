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

package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, root
}

func sampleTx(id string, createdAt time.Time) *types.Transaction {
	return &types.Transaction{
		ID:       id,
		Type:     "prescription",
		Tier:     types.Tier2,
		Priority: 0.7,
		Payload: map[string]interface{}{
			"patientId": "PAT-1",
			"drug":      "amoxicillin",
		},
		Status:    "pending",
		CreatedAt: createdAt,
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.UpsertTransaction(sampleTx("tx-a", now.Add(-time.Minute))))
	require.NoError(t, s.UpsertTransaction(sampleTx("tx-b", now)))

	got, err := s.Transaction("tx-a")
	require.NoError(t, err)
	require.Equal(t, "prescription", got.Type)
	require.Equal(t, "PAT-1", got.PatientID())

	_, err = s.Transaction("missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Listing is newest first.
	list, err := s.Transactions(storage.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "tx-b", list[0].ID)

	list, err = s.Transactions(storage.TransactionFilter{PatientID: "PAT-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestMarkCommitted(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.UpsertTransaction(sampleTx("tx-a", time.Now().UTC())))

	require.NoError(t, s.MarkCommitted([]string{"tx-a", "tx-unknown"}, "0xblock"))
	got, err := s.Transaction("tx-a")
	require.NoError(t, err)
	require.Equal(t, "0xblock", got.BlockHash)
	require.Equal(t, "committed", got.Status)
}

func auditEntry(seq uint64, ts time.Time) *types.AuditEntry {
	return &types.AuditEntry{
		Sequence:  seq,
		ID:        fmt.Sprintf("entry-%d", seq),
		Timestamp: ts.Format(time.RFC3339Nano),
		Action:    "test",
		ActorID:   "wallet-1",
		ActorType: "clinician",
		Resource:  "transaction",
		Outcome:   types.OutcomeSuccess,
		Metadata:  map[string]interface{}{},
		Tags:      []string{},
		Channel:   types.DefaultAuditChannel,
	}
}

func TestAuditAppendPruneRotate(t *testing.T) {
	s, root := openTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, s.AppendAudit(auditEntry(1, now.AddDate(0, 0, -40))))
	require.NoError(t, s.AppendAudit(auditEntry(2, now)))

	entries, err := s.AuditEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(1), entries[0].Sequence)

	size, err := s.AuditSize()
	require.NoError(t, err)
	require.Positive(t, size)

	removed, err := s.PruneAudit(now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	entries, err = s.AuditEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(2), entries[0].Sequence)

	// Appends still land after the rewrite.
	require.NoError(t, s.AppendAudit(auditEntry(3, now)))

	archive, err := s.RotateAudit()
	require.NoError(t, err)
	require.NotEmpty(t, archive)
	_, err = os.Stat(filepath.Join(root, archive))
	require.NoError(t, err)

	entries, err = s.AuditEntries()
	require.NoError(t, err)
	require.Empty(t, entries)
	require.NoError(t, s.AppendAudit(auditEntry(4, now)))
	entries, err = s.AuditEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWalletsAndNoncesSurviveReopen(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	w := &types.WalletProfile{
		ID:         "w-1",
		Address:    "0xABC",
		Normalized: "0xabc",
		Family:     types.WalletFamilyExternal,
		Status:     types.WalletStatusActive,
		Roles:      []string{"clinician"},
	}
	require.NoError(t, s.PutWallet(w))
	require.NoError(t, s.PutNonce(&types.NonceRecord{
		Address:    "0xABC",
		Normalized: "0xabc",
		Nonce:      "CAMTC-test",
		ExpiresAt:  time.Now().UTC().Add(time.Minute),
	}))
	require.NoError(t, s.Close())

	s2, err := Open(root)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Wallet("0xabc")
	require.NoError(t, err)
	require.Equal(t, "w-1", got.ID)

	rec, err := s2.Nonce("0xabc")
	require.NoError(t, err)
	require.Equal(t, "CAMTC-test", rec.Nonce)

	require.NoError(t, s2.DeleteNonce("0xabc"))
	_, err = s2.Nonce("0xabc")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMempoolSnapshot(t *testing.T) {
	s, _ := openTestStore(t)

	snap, err := s.LoadMempool()
	require.NoError(t, err)
	require.Nil(t, snap)

	tx := sampleTx("tx-a", time.Now().UTC())
	require.NoError(t, s.SaveMempool(&types.MempoolSnapshot{
		Tier2: []types.MempoolEntry{{Transaction: *tx}},
	}))
	snap, err = s.LoadMempool()
	require.NoError(t, err)
	require.Len(t, snap.Tier2, 1)
	require.Equal(t, "tx-a", snap.Tier2[0].Transaction.ID)
}

func TestReferenceDirectory(t *testing.T) {
	s, _ := openTestStore(t)

	providers, err := s.Providers()
	require.NoError(t, err)
	require.Empty(t, providers)

	require.NoError(t, s.SeedReference(
		[]*types.Provider{{ID: "prov-1", Name: "Dr. Okafor", Specialty: "cardiology"}},
		[]*types.Patient{{ID: "PAT-1", FullName: "Pat One"}},
		[]*types.Validator{{ID: "val-1", Tier: 1, Reputation: 0.9, Uptime: 0.99}},
	))

	providers, err = s.Providers()
	require.NoError(t, err)
	require.Len(t, providers, 1)
	patients, err := s.Patients()
	require.NoError(t, err)
	require.Len(t, patients, 1)
	validators, err := s.Validators()
	require.NoError(t, err)
	require.Len(t, validators, 1)
}

func TestBlocks(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.HeadBlock()
	require.ErrorIs(t, err, storage.ErrNotFound)

	for i := uint64(0); i < 3; i++ {
		require.NoError(t, s.AppendBlock(&types.Block{
			Index:    i,
			Hash:     fmt.Sprintf("hash-%d", i),
			PrevHash: fmt.Sprintf("hash-%d", i-1),
		}))
	}

	blocks, err := s.Blocks()
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	require.Equal(t, uint64(0), blocks[0].Index)
	require.Equal(t, uint64(2), blocks[2].Index)

	head, err := s.HeadBlock()
	require.NoError(t, err)
	require.Equal(t, "hash-2", head.Hash)
}

func TestClosedStore(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.UpsertTransaction(sampleTx("x", time.Now())), storage.ErrClosed)
	require.ErrorIs(t, s.AppendAudit(auditEntry(1, time.Now())), storage.ErrClosed)
	_, err = s.Blocks()
	require.ErrorIs(t, err, storage.ErrClosed)
}
