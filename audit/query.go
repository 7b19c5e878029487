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

package audit

import (
	"encoding/csv"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/muuduuu/Private-Blockchain/core/types"
)

// DefaultQueryLimit bounds a query page when the caller does not set one.
const DefaultQueryLimit = 100

// Filters narrow an audit query. All predicates compose with logical AND;
// zero values match everything.
type Filters struct {
	ActorID   string
	ActorType string
	PatientID string
	Resource  string
	Action    string
	Outcome   string
	From      *time.Time // inclusive
	To        *time.Time // inclusive
	Tags      []string   // entry tags must be a superset
	Search    string     // case-insensitive substring
}

// Query is one paginated request against the log.
type Query struct {
	Filters   Filters
	Limit     int
	Cursor    string // sequence of the last entry of the previous page
	Direction string // "asc" or "desc" (default) by sequence
}

// Result is one page plus pagination state. TotalMatches counts every entry
// matching the filters regardless of pagination.
type Result struct {
	Entries        []*types.AuditEntry `json:"entries"`
	TotalMatches   int                 `json:"totalMatches"`
	NextCursor     string              `json:"nextCursor,omitempty"`
	PreviousCursor string              `json:"previousCursor,omitempty"`
	HasMore        bool                `json:"hasMore"`
}

// Run executes a filtered, paginated scan over the stored log. Appends are
// not blocked: the scan reads the full log from storage.
func (l *Log) Run(q Query) (*Result, error) {
	entries, err := l.store.AuditEntries()
	if err != nil {
		return nil, err
	}

	matched := make([]*types.AuditEntry, 0, len(entries))
	for _, e := range entries {
		if q.Filters.match(e) {
			matched = append(matched, e)
		}
	}

	desc := q.Direction != "asc"
	sort.Slice(matched, func(i, j int) bool {
		if desc {
			return matched[i].Sequence > matched[j].Sequence
		}
		return matched[i].Sequence < matched[j].Sequence
	})

	// The cursor is the sequence of the last entry of the previous page;
	// the next page starts strictly past it in scan direction.
	start := 0
	if q.Cursor != "" {
		if cur, err := strconv.ParseUint(q.Cursor, 10, 64); err == nil {
			for i, e := range matched {
				if (desc && e.Sequence < cur) || (!desc && e.Sequence > cur) {
					start = i
					break
				}
				start = len(matched)
			}
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := matched[start:end]

	res := &Result{
		Entries:      page,
		TotalMatches: len(matched),
		HasMore:      end < len(matched),
	}
	if res.HasMore && len(page) > 0 {
		res.NextCursor = strconv.FormatUint(page[len(page)-1].Sequence, 10)
	}
	if start > 0 && len(page) > 0 {
		res.PreviousCursor = strconv.FormatUint(page[0].Sequence, 10)
	}
	return res, nil
}

func (f *Filters) match(e *types.AuditEntry) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.ActorType != "" && e.ActorType != f.ActorType {
		return false
	}
	if f.PatientID != "" && e.PatientID != f.PatientID {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if f.From != nil || f.To != nil {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			return false
		}
		if f.From != nil && ts.Before(*f.From) {
			return false
		}
		if f.To != nil && ts.After(*f.To) {
			return false
		}
	}
	if len(f.Tags) > 0 {
		if !mapset.NewSet(e.Tags...).IsSuperset(mapset.NewSet(f.Tags...)) {
			return false
		}
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		meta, _ := json.Marshal(e.Metadata)
		haystack := strings.ToLower(strings.Join([]string{
			e.Details, string(meta), e.ActorID, e.Resource, e.BlockHash, e.PatientID,
		}, " "))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

// csvHeader is the fixed export column order.
var csvHeader = []string{
	"sequence", "id", "timestamp", "action", "actorId", "actorType",
	"resource", "outcome", "patientId", "ipAddress", "blockHash",
	"channel", "tags", "details",
}

// ExportCSV renders every entry matching the filters as CSV, in ascending
// sequence order. Fields containing commas, quotes or newlines are quoted
// with embedded quotes doubled.
func (l *Log) ExportCSV(filters Filters) (string, error) {
	entries, err := l.store.AuditEntries()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for _, e := range entries {
		if !filters.match(e) {
			continue
		}
		record := []string{
			strconv.FormatUint(e.Sequence, 10),
			e.ID,
			e.Timestamp,
			e.Action,
			e.ActorID,
			e.ActorType,
			e.Resource,
			e.Outcome,
			e.PatientID,
			e.IPAddress,
			e.BlockHash,
			e.Channel,
			strings.Join(e.Tags, "|"),
			e.Details,
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}
