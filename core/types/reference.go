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

package types

import "time"

// Provider is a clinician in the reference directory. The core reads the
// directory; it never mutates it.
type Provider struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

// Patient is a de-identified patient directory row.
type Patient struct {
	ID                string `json:"id"`
	FullName          string `json:"fullName"`
	DOB               string `json:"dob"`
	PrimaryProviderID string `json:"primaryProviderId"`
}

// Validator is one block-producing peer as reported by the out-of-scope
// chain layer. Reputation and uptime are in [0, 1].
type Validator struct {
	ID             string    `json:"id"`
	Tier           int       `json:"tier"`
	Reputation     float64   `json:"reputation"`
	BlocksProposed int       `json:"blocksProposed"`
	Uptime         float64   `json:"uptime"`
	LastSeen       time.Time `json:"lastSeen"`
}

// Block is a committed block as written by the external block producer. The
// ledger core consumes blocks read-only: it verifies the chain and labels
// transactions with the block hash, nothing more.
type Block struct {
	Index        uint64    `json:"index"`
	Hash         string    `json:"hash"`
	PrevHash     string    `json:"previousHash"`
	MerkleRoot   string    `json:"merkleRoot"`
	Proposer     string    `json:"proposer"`
	Timestamp    time.Time `json:"timestamp"`
	Transactions []string  `json:"transactions"`
}
