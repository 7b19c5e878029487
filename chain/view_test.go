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

package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/muuduuu/Private-Blockchain/core/mempool"
	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage/memstore"
)

func seedChain(t *testing.T, store *memstore.Store, n int) []*types.Block {
	t.Helper()
	var blocks []*types.Block
	prev := GenesisPrevHash
	for i := 0; i < n; i++ {
		b := &types.Block{
			Index:     uint64(i),
			Hash:      hexOf(byte(i)),
			PrevHash:  prev,
			Timestamp: time.Now().UTC(),
		}
		require.NoError(t, store.AppendBlock(b))
		blocks = append(blocks, b)
		prev = b.Hash
	}
	return blocks
}

func hexOf(b byte) string {
	return "0x" + hex.EncodeToString([]byte{b})
}

func TestHeadAndTotal(t *testing.T) {
	store := memstore.New()
	view := NewView(store, store, nil)

	_, err := view.Head()
	require.ErrorIs(t, err, ErrNoBlocks)

	blocks := seedChain(t, store, 3)
	head, err := view.Head()
	require.NoError(t, err)
	require.Equal(t, blocks[2].Hash, head.Hash)

	total, err := view.TotalBlocks()
	require.NoError(t, err)
	require.Equal(t, 3, total)
}

func TestVerifyChain(t *testing.T) {
	store := memstore.New()
	view := NewView(store, store, nil)

	status, err := view.VerifyChain()
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.Zero(t, status.Blocks)

	seedChain(t, store, 4)
	status, err = view.VerifyChain()
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.Equal(t, 4, status.Blocks)

	// A block with a mismatched prevHash breaks the walk at its index.
	require.NoError(t, store.AppendBlock(&types.Block{Index: 4, Hash: hexOf(4), PrevHash: "wrong"}))
	status, err = view.VerifyChain()
	require.NoError(t, err)
	require.False(t, status.Valid)
	require.Equal(t, uint64(4), status.BrokenIndex)
}

func TestVerifyChainBadGenesis(t *testing.T) {
	store := memstore.New()
	require.NoError(t, store.AppendBlock(&types.Block{Index: 0, Hash: hexOf(0), PrevHash: "not-zero"}))
	status, err := NewView(store, store, nil).VerifyChain()
	require.NoError(t, err)
	require.False(t, status.Valid)
}

func TestMarkCommittedLabelsAndFlushes(t *testing.T) {
	store := memstore.New()
	pool := mempool.New(store)

	tx := &types.Transaction{
		ID:        "tx-1",
		Type:      "prescription",
		Payload:   map[string]interface{}{"patientId": "PAT-1"},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertTransaction(tx))
	_, _, err := pool.Add(tx, types.PriorityBreakdown{Priority: 0.7}, 0)
	require.NoError(t, err)

	view := NewView(store, store, pool)
	require.NoError(t, view.MarkCommitted([]string{"tx-1"}, "0xblock"))

	got, err := store.Transaction("tx-1")
	require.NoError(t, err)
	require.Equal(t, "0xblock", got.BlockHash)
	require.Equal(t, "committed", got.Status)
	require.Zero(t, pool.Stats(0, 0).TotalSize)
}

func TestMerkleRoot(t *testing.T) {
	require.Equal(t, "0", MerkleRoot(nil))

	a := &types.Transaction{ID: "a"}
	b := &types.Transaction{ID: "b"}
	c := &types.Transaction{ID: "c"}

	// Single leaf: root is the leaf hash itself.
	require.Equal(t, TransactionHash(a), MerkleRoot([]*types.Transaction{a}))

	// Two leaves: hash of the concatenated digests.
	pair := sha256.Sum256([]byte(TransactionHash(a) + TransactionHash(b)))
	require.Equal(t, hex.EncodeToString(pair[:]), MerkleRoot([]*types.Transaction{a, b}))

	// Odd count duplicates the last leaf.
	ab := hex.EncodeToString(pair[:])
	ccSum := sha256.Sum256([]byte(TransactionHash(c) + TransactionHash(c)))
	cc := hex.EncodeToString(ccSum[:])
	rootSum := sha256.Sum256([]byte(ab + cc))
	require.Equal(t, hex.EncodeToString(rootSum[:]), MerkleRoot([]*types.Transaction{a, b, c}))

	// Deterministic regardless of payload key order in the source map.
	x1 := &types.Transaction{ID: "x", Payload: map[string]interface{}{"k1": "v1", "k2": "v2"}}
	x2 := &types.Transaction{ID: "x", Payload: map[string]interface{}{"k2": "v2", "k1": "v1"}}
	require.Equal(t, TransactionHash(x1), TransactionHash(x2))
}
