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

package mempool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage/memstore"
	"github.com/stretchr/testify/require"
)

func breakdown(priority float64) types.PriorityBreakdown {
	return types.PriorityBreakdown{Priority: priority}
}

func tx(id string) *types.Transaction {
	return &types.Transaction{ID: id, Type: "Lab Result"}
}

func TestTierSelection(t *testing.T) {
	require.Equal(t, types.Tier1, TierFor(0, 0.85))
	require.Equal(t, types.Tier1, TierFor(0, 0.99))
	require.Equal(t, types.Tier2, TierFor(0, 0.84))
	require.Equal(t, types.Tier2, TierFor(0, 0.60))
	require.Equal(t, types.Tier3, TierFor(0, 0.59))
	require.Equal(t, types.Tier3, TierFor(0, 0.0))

	// Hints pull low-priority entries up but never demote high ones.
	require.Equal(t, types.Tier1, TierFor(1, 0.10))
	require.Equal(t, types.Tier2, TierFor(2, 0.10))
	require.Equal(t, types.Tier1, TierFor(2, 0.90))
}

func TestAddOrdersByPriority(t *testing.T) {
	pool := New(memstore.New())

	_, _, err := pool.Add(tx("a"), breakdown(0.61), 0)
	require.NoError(t, err)
	_, _, err = pool.Add(tx("b"), breakdown(0.80), 0)
	require.NoError(t, err)
	_, _, err = pool.Add(tx("c"), breakdown(0.70), 0)
	require.NoError(t, err)

	top := pool.ByTier(types.Tier2, 10)
	require.Len(t, top, 3)
	require.Equal(t, "b", top[0].ID)
	require.Equal(t, "c", top[1].ID)
	require.Equal(t, "a", top[2].ID)
}

func TestEvictionAtCapacity(t *testing.T) {
	pool := New(memstore.New())

	for i := 0; i < types.Tier1Capacity; i++ {
		_, evicted, err := pool.Add(tx(fmt.Sprintf("tx-%03d", i)), breakdown(0.90), 0)
		require.NoError(t, err)
		require.Nil(t, evicted)
	}

	tier, evicted, err := pool.Add(tx("newcomer"), breakdown(0.86), 0)
	require.NoError(t, err)
	require.Equal(t, types.Tier1, tier)
	require.NotNil(t, evicted)
	require.Equal(t, "newcomer", evicted.Transaction.ID)

	stats := pool.Stats(0, 0)
	require.Equal(t, types.Tier1Capacity, stats.Tiers[0].Size)
	for _, entry := range pool.Snapshot().Tier1 {
		require.Equal(t, 0.90, entry.Priority)
	}
}

func TestEvictionDropsLowest(t *testing.T) {
	pool := New(memstore.New())

	for i := 0; i < types.Tier1Capacity; i++ {
		_, _, err := pool.Add(tx(fmt.Sprintf("tx-%03d", i)), breakdown(0.90), 0)
		require.NoError(t, err)
	}
	// A higher-priority newcomer displaces one of the incumbents.
	_, evicted, err := pool.Add(tx("critical"), breakdown(0.99), 0)
	require.NoError(t, err)
	require.NotNil(t, evicted)
	require.NotEqual(t, "critical", evicted.Transaction.ID)
	require.Equal(t, "critical", pool.ByTier(types.Tier1, 1)[0].ID)
}

func TestRemoveAndFlush(t *testing.T) {
	store := memstore.New()
	pool := New(store)

	for _, id := range []string{"a", "b", "c"} {
		_, _, err := pool.Add(tx(id), breakdown(0.70), 0)
		require.NoError(t, err)
	}
	ok, err := pool.RemoveByID("b")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = pool.RemoveByID("b")
	require.NoError(t, err)
	require.False(t, ok)

	removed, err := pool.Flush([]string{"a", "c", "missing"})
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.Equal(t, 0, pool.Stats(0, 0).TotalSize)

	snap, err := store.LoadMempool()
	require.NoError(t, err)
	require.Empty(t, snap.Tier2)
}

func TestPersistFailureRollsBack(t *testing.T) {
	store := memstore.New()
	pool := New(store)

	_, _, err := pool.Add(tx("kept"), breakdown(0.70), 0)
	require.NoError(t, err)

	store.FailNextSave = errors.New("disk full")
	_, _, err = pool.Add(tx("lost"), breakdown(0.75), 0)
	require.Error(t, err)

	// In-memory state must not have advanced past the failed persist.
	top := pool.ByTier(types.Tier2, 10)
	require.Len(t, top, 1)
	require.Equal(t, "kept", top[0].ID)

	// The durable snapshot still matches.
	snap, err := store.LoadMempool()
	require.NoError(t, err)
	require.Len(t, snap.Tier2, 1)
	require.Equal(t, "kept", snap.Tier2[0].Transaction.ID)
}

func TestSnapshotRestore(t *testing.T) {
	store := memstore.New()
	pool := New(store)
	_, _, err := pool.Add(tx("t1"), breakdown(0.90), 0)
	require.NoError(t, err)
	_, _, err = pool.Add(tx("t3"), breakdown(0.30), 0)
	require.NoError(t, err)

	// A second pool over the same store sees the persisted queues.
	restored := New(store)
	require.Equal(t, 1, restored.Stats(0, 0).Tiers[0].Size)
	require.Equal(t, 1, restored.Stats(0, 0).Tiers[2].Size)
	require.Equal(t, "t1", restored.ByTier(types.Tier1, 1)[0].ID)
}

func TestTierInvariantsAfterMutations(t *testing.T) {
	pool := New(memstore.New())
	priorities := []float64{0.61, 0.99, 0.72, 0.85, 0.60, 0.93, 0.40}
	for i, p := range priorities {
		_, _, err := pool.Add(tx(fmt.Sprintf("x%d", i)), breakdown(p), 0)
		require.NoError(t, err)
	}
	snap := pool.Snapshot()
	for _, queue := range [][]types.MempoolEntry{snap.Tier1, snap.Tier2, snap.Tier3} {
		for i := 1; i < len(queue); i++ {
			require.GreaterOrEqual(t, queue[i-1].Priority, queue[i].Priority)
		}
	}
	require.Len(t, snap.Tier1, 3)
	require.Len(t, snap.Tier2, 3)
	require.Len(t, snap.Tier3, 1)
}
