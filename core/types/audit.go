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

// AuditRootHash is the prevHash of the very first audit entry.
const AuditRootHash = "AUDIT_ROOT"

// Recognized audit outcomes. The field is string-typed and operator-defined
// values are stored verbatim, but the server itself only ever emits these.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeBlocked = "blocked"
)

// DefaultAuditChannel is used when a caller does not name a channel.
const DefaultAuditChannel = "system"

// AuditEntry is one row of the tamper-evident audit log. Each entry's
// integrity hash binds the previous entry's integrity hash, so rewriting any
// committed entry breaks every hash after it.
//
// Timestamp is kept as the ISO-8601 string that was hashed, not a parsed
// time, so that entries read back from storage are byte-identical to what
// was recorded.
type AuditEntry struct {
	Sequence      uint64                 `json:"sequence"`
	ID            string                 `json:"id"`
	Timestamp     string                 `json:"timestamp"`
	Action        string                 `json:"action"`
	ActorID       string                 `json:"actorId"`
	ActorType     string                 `json:"actorType"`
	Resource      string                 `json:"resource"`
	Outcome       string                 `json:"outcome"`
	PatientID     string                 `json:"patientId,omitempty"`
	IPAddress     string                 `json:"ipAddress,omitempty"`
	BlockHash     string                 `json:"blockHash,omitempty"`
	Details       string                 `json:"details,omitempty"`
	Metadata      map[string]interface{} `json:"metadata"`
	Tags          []string               `json:"tags"`
	Channel       string                 `json:"channel"`
	PrevHash      string                 `json:"prevHash"`
	IntegrityHash string                 `json:"integrityHash"`
}

// AuditInput is what callers hand to the audit log; sequence, hashes and id
// are assigned by the log itself.
type AuditInput struct {
	Action    string                 `json:"action"`
	ActorID   string                 `json:"actorId"`
	ActorType string                 `json:"actorType"`
	Resource  string                 `json:"resource"`
	Outcome   string                 `json:"outcome"`
	PatientID string                 `json:"patientId,omitempty"`
	IPAddress string                 `json:"ipAddress,omitempty"`
	BlockHash string                 `json:"blockHash,omitempty"`
	Details   string                 `json:"details,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
	Channel   string                 `json:"channel,omitempty"`
}
