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

// Package chain is the read-only view over committed blocks. Blocks are
// written by the external block producer; this side verifies their linkage
// and labels stored transactions with the including block's hash. It never
// builds, gossips or finalizes blocks.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/log"

	"github.com/muuduuu/Private-Blockchain/core/mempool"
	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage"
)

// GenesisPrevHash is the previous-hash sentinel of the genesis block.
const GenesisPrevHash = "0"

// ErrNoBlocks is returned by Head when no block has been committed yet.
var ErrNoBlocks = errors.New("chain: no committed blocks")

// Status is the outcome of a chain verification walk.
type Status struct {
	Valid       bool   `json:"valid"`
	Blocks      int    `json:"blocks"`
	BrokenIndex uint64 `json:"brokenIndex,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// View reads committed blocks and applies their effect to the transaction
// store and the mempool.
type View struct {
	blocks storage.BlockStore
	txs    storage.TransactionStore
	pool   *mempool.Pool
	log    log.Logger
}

// NewView wires the chain view. The pool may be nil for read-only consumers.
func NewView(blocks storage.BlockStore, txs storage.TransactionStore, pool *mempool.Pool) *View {
	return &View{
		blocks: blocks,
		txs:    txs,
		pool:   pool,
		log:    log.New("module", "chain"),
	}
}

// Head returns the latest committed block.
func (v *View) Head() (*types.Block, error) {
	b, err := v.blocks.HeadBlock()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoBlocks
	}
	return b, err
}

// TotalBlocks reports the number of committed blocks.
func (v *View) TotalBlocks() (int, error) {
	blocks, err := v.blocks.Blocks()
	if err != nil {
		return 0, err
	}
	return len(blocks), nil
}

// VerifyChain walks the committed blocks and reports the first broken link:
// a non-contiguous index, a prevHash that does not match the previous
// block's hash, or a genesis block whose prevHash is not "0".
func (v *View) VerifyChain() (*Status, error) {
	blocks, err := v.blocks.Blocks()
	if err != nil {
		return nil, err
	}
	status := &Status{Valid: true, Blocks: len(blocks)}
	for i, b := range blocks {
		if i == 0 {
			if b.PrevHash != GenesisPrevHash {
				return broken(status, b.Index, "genesis prevHash is not \"0\""), nil
			}
			continue
		}
		prev := blocks[i-1]
		if b.Index != prev.Index+1 {
			return broken(status, b.Index, "non-contiguous block index"), nil
		}
		if b.PrevHash != prev.Hash {
			return broken(status, b.Index, "prevHash does not match previous block"), nil
		}
	}
	return status, nil
}

func broken(s *Status, index uint64, reason string) *Status {
	s.Valid = false
	s.BrokenIndex = index
	s.Reason = reason
	return s
}

// MarkCommitted labels the stored transactions with the block hash and
// flushes them from the mempool. The durable label happens first; a mempool
// flush failure is logged but does not undo it.
func (v *View) MarkCommitted(txIDs []string, blockHash string) error {
	if err := v.txs.MarkCommitted(txIDs, blockHash); err != nil {
		return err
	}
	if v.pool != nil {
		if _, err := v.pool.Flush(txIDs); err != nil {
			v.log.Warn("Mempool flush after commit failed", "block", blockHash, "err", err)
		}
	}
	v.log.Info("Transactions committed", "block", blockHash, "count", len(txIDs))
	return nil
}

// MerkleRoot computes the merkle root over the transactions: leaves are the
// SHA-256 of each transaction's canonical JSON, pairs are hashed over the
// concatenated hex digests, and an odd leaf is paired with itself. An empty
// set yields "0".
func MerkleRoot(txs []*types.Transaction) string {
	if len(txs) == 0 {
		return "0"
	}
	level := make([]string, len(txs))
	for i, tx := range txs {
		level[i] = TransactionHash(tx)
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			sum := sha256.Sum256([]byte(level[i] + level[i+1]))
			next = append(next, hex.EncodeToString(sum[:]))
		}
		level = next
	}
	return level[0]
}

// TransactionHash is the SHA-256 hex of the transaction's canonical JSON.
// encoding/json emits map keys sorted, which makes the serialization
// canonical for equal values.
func TransactionHash(tx *types.Transaction) string {
	raw, _ := json.Marshal(tx)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
