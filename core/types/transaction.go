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

// Package types contains the data types of the healthcare ledger core.
package types

import (
	"time"
)

// Mempool tier identifiers. Tier 1 carries the most critical clinical
// traffic and has the smallest capacity.
const (
	Tier1 = 1
	Tier2 = 2
	Tier3 = 3
)

// Capacities of the three mempool tiers. These are protocol constants and
// are not configurable per deployment.
const (
	Tier1Capacity = 100
	Tier2Capacity = 2000
	Tier3Capacity = 8000
)

// Transaction is a signed clinical event: an emergency record, a
// prescription, a lab result or any other payload a provider submits to the
// ledger. The payload is heterogeneous and only ever walked as a recursive
// value.
type Transaction struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Tier      int                    `json:"tier"`
	Priority  float64                `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	Signature string                 `json:"signature,omitempty"`
	Status    string                 `json:"status,omitempty"`
	BlockHash string                 `json:"blockHash,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// PatientID returns payload.patientId if present and a string.
func (tx *Transaction) PatientID() string {
	if tx.Payload == nil {
		return ""
	}
	if v, ok := tx.Payload["patientId"].(string); ok {
		return v
	}
	return ""
}

// Provider returns payload.provider if present and a string.
func (tx *Transaction) Provider() string {
	if tx.Payload == nil {
		return ""
	}
	if v, ok := tx.Payload["provider"].(string); ok {
		return v
	}
	return ""
}

// Copy returns a deep copy of the transaction. The payload is copied
// recursively so callers may mutate the result freely.
func (tx *Transaction) Copy() *Transaction {
	cpy := *tx
	cpy.Payload = copyValueMap(tx.Payload)
	return &cpy
}

func copyValueMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyValueMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}

// PriorityBreakdown is the Context Engine's verdict for one transaction.
// All components are in [0, 1] and the final priority is the clamped
// weighted sum 0.45*C + 0.35*S + 0.10*R + 0.10*K.
type PriorityBreakdown struct {
	Criticality float64 `json:"criticality"`
	Sensitivity float64 `json:"sensitivity"`
	Resources   float64 `json:"resources"`
	Compliance  float64 `json:"compliance"`
	Priority    float64 `json:"priority"`
}

// MempoolEntry is one admitted transaction together with the scoring that
// placed it. Entries hold the transaction by value; the mempool owns them
// until removal, flush or eviction.
type MempoolEntry struct {
	Transaction Transaction       `json:"transaction"`
	Tier        int               `json:"tier"`
	Priority    float64           `json:"priority"`
	Breakdown   PriorityBreakdown `json:"breakdown"`
	AdmittedAt  time.Time         `json:"admittedAt"`
}

// MempoolSnapshot is the durable projection of the mempool: the three tier
// queues, each ordered by priority descending.
type MempoolSnapshot struct {
	Tier1 []MempoolEntry `json:"tier1"`
	Tier2 []MempoolEntry `json:"tier2"`
	Tier3 []MempoolEntry `json:"tier3"`
}

// TierStats describes one tier's occupancy.
type TierStats struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
}

// MempoolStats is the live occupancy view the Context Engine and the API
// consume. Validator counts are supplied by the caller; the mempool itself
// only knows its queues.
type MempoolStats struct {
	Tiers            [3]TierStats `json:"tiers"`
	TotalSize        int          `json:"totalSize"`
	TotalCapacity    int          `json:"totalCapacity"`
	ValidatorsOnline int          `json:"validatorsOnline"`
	ValidatorsTotal  int          `json:"validatorsTotal"`
}
