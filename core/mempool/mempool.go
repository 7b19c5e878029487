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

// Package mempool implements the tiered transaction pool feeding block
// production. Three queues with fixed capacities (100/2000/8000) hold
// admitted entries ordered by priority descending; the lowest entry of a
// full tier is evicted to make room. Every mutation is persisted before it
// becomes visible: mutate, persist, and on persist failure roll the
// in-memory change back.
package mempool

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage"
)

// Priority thresholds of the tier rule. A caller-supplied tier hint can pull
// an entry into tier 1 or 2; the thresholds are authoritative otherwise.
const (
	tier1Threshold = 0.85
	tier2Threshold = 0.60
)

var (
	admittedMeter = metrics.NewRegisteredMeter("mempool/admitted", nil)
	evictedMeter  = metrics.NewRegisteredMeter("mempool/evicted", nil)
	removedMeter  = metrics.NewRegisteredMeter("mempool/removed", nil)
)

var capacities = [3]int{types.Tier1Capacity, types.Tier2Capacity, types.Tier3Capacity}

// Pool is the tiered mempool. All mutations take the writer lock; readers
// see a consistent instantaneous view.
type Pool struct {
	mu    sync.RWMutex
	tiers [3][]types.MempoolEntry
	store storage.MempoolStore
	log   log.Logger
}

// New creates a pool backed by the given snapshot store and rehydrates any
// persisted snapshot. A corrupt or missing snapshot starts the pool empty
// and writes a fresh one.
func New(store storage.MempoolStore) *Pool {
	p := &Pool{
		store: store,
		log:   log.New("module", "mempool"),
	}
	snap, err := store.LoadMempool()
	if err != nil {
		p.log.Warn("Mempool snapshot unreadable, starting empty", "err", err)
		snap = nil
	}
	if snap != nil {
		p.tiers[0] = normalizeTier(snap.Tier1, capacities[0])
		p.tiers[1] = normalizeTier(snap.Tier2, capacities[1])
		p.tiers[2] = normalizeTier(snap.Tier3, capacities[2])
		p.log.Info("Mempool snapshot restored",
			"tier1", len(p.tiers[0]), "tier2", len(p.tiers[1]), "tier3", len(p.tiers[2]))
	} else {
		if err := p.persist(); err != nil {
			p.log.Warn("Failed to write fresh mempool snapshot", "err", err)
		}
	}
	return p
}

// normalizeTier re-establishes the tier invariants on a loaded queue:
// priority-descending order and the capacity bound.
func normalizeTier(entries []types.MempoolEntry, capacity int) []types.MempoolEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority > entries[j].Priority
	})
	if len(entries) > capacity {
		entries = entries[:capacity]
	}
	return entries
}

// TierFor resolves the target tier from a hint and a priority. Hints for
// tier 1 and 2 win; otherwise the thresholds decide.
func TierFor(hint int, priority float64) int {
	switch {
	case hint == types.Tier1 || priority >= tier1Threshold:
		return types.Tier1
	case hint == types.Tier2 || priority >= tier2Threshold:
		return types.Tier2
	default:
		return types.Tier3
	}
}

// Add admits a transaction at the tier implied by its priority and the
// caller's hint. When the tier is at capacity the lowest-priority entry is
// evicted and returned. The snapshot is persisted before the admission
// becomes visible; a persist failure rolls the queue back and surfaces the
// error.
func (p *Pool) Add(tx *types.Transaction, breakdown types.PriorityBreakdown, hint int) (int, *types.MempoolEntry, error) {
	tier := TierFor(hint, breakdown.Priority)
	entry := types.MempoolEntry{
		Transaction: *tx.Copy(),
		Tier:        tier,
		Priority:    breakdown.Priority,
		Breakdown:   breakdown,
		AdmittedAt:  time.Now().UTC(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := tier - 1
	backup := append([]types.MempoolEntry(nil), p.tiers[idx]...)

	queue := append(p.tiers[idx], entry)
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].Priority > queue[j].Priority
	})

	var evicted *types.MempoolEntry
	if len(queue) > capacities[idx] {
		last := queue[len(queue)-1]
		evicted = &last
		queue = queue[:len(queue)-1]
	}
	p.tiers[idx] = queue

	if err := p.persist(); err != nil {
		p.tiers[idx] = backup
		p.log.Error("Mempool persist failed, admission rolled back",
			"tx", tx.ID, "tier", tier, "err", err)
		return 0, nil, err
	}
	admittedMeter.Mark(1)
	if evicted != nil {
		evictedMeter.Mark(1)
		p.log.Debug("Mempool tier full, evicted lowest entry",
			"tier", tier, "evicted", evicted.Transaction.ID, "priority", evicted.Priority)
	}
	return tier, evicted, nil
}

// RemoveByID removes the first entry matching the id across all tiers. It
// reports whether an entry was removed.
func (p *Pool) RemoveByID(id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(id, true)
}

// Flush removes many entries and persists the snapshot once at the end.
func (p *Pool) Flush(ids []string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var backups [3][]types.MempoolEntry
	for i := range p.tiers {
		backups[i] = append([]types.MempoolEntry(nil), p.tiers[i]...)
	}
	removed := 0
	for _, id := range ids {
		if ok, _ := p.removeLocked(id, false); ok {
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := p.persist(); err != nil {
		p.tiers = backups
		p.log.Error("Mempool persist failed, flush rolled back", "err", err)
		return 0, err
	}
	removedMeter.Mark(int64(removed))
	return removed, nil
}

// removeLocked removes the first entry with the given id; persist controls
// whether the snapshot is written immediately.
func (p *Pool) removeLocked(id string, persist bool) (bool, error) {
	for t := range p.tiers {
		for i, entry := range p.tiers[t] {
			if entry.Transaction.ID != id {
				continue
			}
			backup := append([]types.MempoolEntry(nil), p.tiers[t]...)
			p.tiers[t] = append(p.tiers[t][:i], p.tiers[t][i+1:]...)
			if persist {
				if err := p.persist(); err != nil {
					p.tiers[t] = backup
					return false, err
				}
				removedMeter.Mark(1)
			}
			return true, nil
		}
	}
	return false, nil
}

// ByTier returns the top-limit transactions of one tier in priority order.
func (p *Pool) ByTier(tier, limit int) []*types.Transaction {
	if tier < types.Tier1 || tier > types.Tier3 {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	queue := p.tiers[tier-1]
	if limit <= 0 || limit > len(queue) {
		limit = len(queue)
	}
	out := make([]*types.Transaction, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, queue[i].Transaction.Copy())
	}
	return out
}

// Stats reports current sizes and capacities. Validator counts are passed
// through from the caller; the pool does not track them.
func (p *Pool) Stats(validatorsOnline, validatorsTotal int) *types.MempoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := &types.MempoolStats{
		ValidatorsOnline: validatorsOnline,
		ValidatorsTotal:  validatorsTotal,
	}
	for i := range p.tiers {
		stats.Tiers[i] = types.TierStats{Size: len(p.tiers[i]), Capacity: capacities[i]}
		stats.TotalSize += len(p.tiers[i])
		stats.TotalCapacity += capacities[i]
	}
	return stats
}

// Snapshot returns a read-only copy of the three queues.
func (p *Pool) Snapshot() *types.MempoolSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Pool) snapshotLocked() *types.MempoolSnapshot {
	return &types.MempoolSnapshot{
		Tier1: append([]types.MempoolEntry(nil), p.tiers[0]...),
		Tier2: append([]types.MempoolEntry(nil), p.tiers[1]...),
		Tier3: append([]types.MempoolEntry(nil), p.tiers[2]...),
	}
}

func (p *Pool) persist() error {
	return p.store.SaveMempool(p.snapshotLocked())
}
