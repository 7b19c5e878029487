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

// Package directory serves the read-only reference data of a deployment:
// the provider, patient and validator rosters. The core never mutates the
// directory; it only seeds a demo roster when the backing store is empty.
package directory

import (
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage"
)

// DefaultLivenessWindow bounds how stale a validator's lastSeen may be
// before it counts as offline.
const DefaultLivenessWindow = 5 * time.Minute

// Directory is the read-only roster view.
type Directory struct {
	store storage.ReferenceStore
	log   log.Logger
}

// New creates a directory over its backing store.
func New(store storage.ReferenceStore) *Directory {
	return &Directory{store: store, log: log.New("module", "directory")}
}

// Providers returns the provider roster.
func (d *Directory) Providers() ([]*types.Provider, error) {
	return d.store.Providers()
}

// Patients returns the patient roster.
func (d *Directory) Patients() ([]*types.Patient, error) {
	return d.store.Patients()
}

// Validators returns the validator roster.
func (d *Directory) Validators() ([]*types.Validator, error) {
	return d.store.Validators()
}

// ValidatorCounts reports how many validators were seen within the liveness
// window, and the roster total.
func (d *Directory) ValidatorCounts(now time.Time, window time.Duration) (online, total int, err error) {
	if window <= 0 {
		window = DefaultLivenessWindow
	}
	validators, err := d.store.Validators()
	if err != nil {
		return 0, 0, err
	}
	cutoff := now.Add(-window)
	for _, v := range validators {
		if !v.LastSeen.Before(cutoff) {
			online++
		}
	}
	return online, len(validators), nil
}

// EnsureSeed installs the demo roster when the directory is empty. It
// reports whether a seed was written.
func (d *Directory) EnsureSeed() (bool, error) {
	providers, err := d.store.Providers()
	if err != nil {
		return false, err
	}
	if len(providers) > 0 {
		return false, nil
	}
	if err := d.store.SeedReference(demoProviders(), demoPatients(), demoValidators()); err != nil {
		return false, err
	}
	d.log.Info("Reference directory seeded with demo roster")
	return true, nil
}

func demoProviders() []*types.Provider {
	return []*types.Provider{
		{ID: "prov-001", Name: "Dr. Amara Okafor", Specialty: "cardiology"},
		{ID: "prov-002", Name: "Dr. Luis Ferreira", Specialty: "emergency medicine"},
		{ID: "prov-003", Name: "Dr. Mei-Ling Zhao", Specialty: "internal medicine"},
		{ID: "prov-004", Name: "Dr. Priya Raman", Specialty: "pathology"},
	}
}

func demoPatients() []*types.Patient {
	return []*types.Patient{
		{ID: "PAT-1001", FullName: "Jordan Avery", DOB: "1984-03-12", PrimaryProviderID: "prov-001"},
		{ID: "PAT-1002", FullName: "Sam Whitfield", DOB: "1972-11-02", PrimaryProviderID: "prov-002"},
		{ID: "PAT-1003", FullName: "Rosa Delgado", DOB: "1996-07-30", PrimaryProviderID: "prov-003"},
	}
}

func demoValidators() []*types.Validator {
	now := time.Now().UTC()
	return []*types.Validator{
		{ID: "val-hospital-a", Tier: 1, Reputation: 0.97, BlocksProposed: 0, Uptime: 0.999, LastSeen: now},
		{ID: "val-hospital-b", Tier: 1, Reputation: 0.94, BlocksProposed: 0, Uptime: 0.995, LastSeen: now},
		{ID: "val-clinic-c", Tier: 2, Reputation: 0.88, BlocksProposed: 0, Uptime: 0.98, LastSeen: now},
		{ID: "val-lab-d", Tier: 2, Reputation: 0.85, BlocksProposed: 0, Uptime: 0.97, LastSeen: now},
		{ID: "val-pharmacy-e", Tier: 3, Reputation: 0.8, BlocksProposed: 0, Uptime: 0.95, LastSeen: now},
	}
}

// OccupancyReader is the slice of the mempool the stats source needs.
type OccupancyReader interface {
	Stats(validatorsOnline, validatorsTotal int) *types.MempoolStats
}

// StatsSource adapts the directory and a mempool into the stats provider the
// Context Engine consumes for its resource component.
type StatsSource struct {
	dir    *Directory
	pool   OccupancyReader
	window time.Duration
}

// NewStatsSource wires a stats source with the default liveness window.
func NewStatsSource(dir *Directory, pool OccupancyReader) *StatsSource {
	return &StatsSource{dir: dir, pool: pool, window: DefaultLivenessWindow}
}

// MempoolStats returns the pool occupancy decorated with live validator
// counts. A directory read failure degrades to zero counts rather than
// blocking scoring.
func (s *StatsSource) MempoolStats() *types.MempoolStats {
	online, total, err := s.dir.ValidatorCounts(time.Now().UTC(), s.window)
	if err != nil {
		online, total = 0, 0
	}
	return s.pool.Stats(online, total)
}
