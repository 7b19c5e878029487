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

// Package priority implements the Context Engine: a pure scoring function
// from a clinical transaction to its priority breakdown.
//
// The final priority is a weighted sum over four components:
//
//	P = 0.45*criticality + 0.35*sensitivity + 0.10*resources + 0.10*compliance
//
// tuned so that life-critical events preempt everything else while
// compliance-heavy paperwork still beats plain noise.
package priority

import (
	"fmt"
	"strings"

	"github.com/muuduuu/Private-Blockchain/core/types"
)

// Component weights of the priority formula.
const (
	weightCriticality = 0.45
	weightSensitivity = 0.35
	weightResources   = 0.10
	weightCompliance  = 0.10
)

// keywordScore is one rule of an ordered keyword table. Within one rule the
// alternatives are equivalent; across rules the first match wins.
type keywordScore struct {
	keywords []string
	score    float64
}

// Keyword tables. Order is significant: scanning stops at the first rule
// whose keywords occur in the search text.
var (
	criticalityRules = []keywordScore{
		{[]string{"cardiac arrest"}, 0.95},
		{[]string{"stroke"}, 0.93},
		{[]string{"sepsis", "trauma"}, 0.90},
		{[]string{"prescription"}, 0.65},
		{[]string{"lab", "diagnostic"}, 0.50},
		{[]string{"routine", "checkup"}, 0.35},
	}
	sensitivityRules = []keywordScore{
		{[]string{"stat"}, 0.95},
		{[]string{"urgent"}, 0.80},
		{[]string{"routine"}, 0.40},
	}
	complianceRules = []keywordScore{
		{[]string{"controlled substance"}, 0.50},
		{[]string{"prescription"}, 0.30},
	}
)

const (
	defaultCriticality = 0.40
	defaultSensitivity = 0.50
	defaultResources   = 0.50
	defaultCompliance  = 0.10
)

// StatsProvider supplies the live mempool occupancy the resources component
// reads. A nil provider, or a provider returning nil, falls back to the
// neutral resource score.
type StatsProvider interface {
	MempoolStats() *types.MempoolStats
}

// Engine scores transactions. The zero value (no stats provider) is usable.
type Engine struct {
	stats StatsProvider
}

// NewEngine creates a Context Engine reading occupancy from the given
// provider. The provider may be nil.
func NewEngine(stats StatsProvider) *Engine {
	return &Engine{stats: stats}
}

// Calculate derives the priority breakdown for a transaction. It is pure
// with respect to the transaction and the single stats snapshot read per
// call, and it never fails.
func (e *Engine) Calculate(tx *types.Transaction) types.PriorityBreakdown {
	payloadText := strings.ToLower(flatten(tx.Payload))
	searchText := strings.ToLower(tx.Type) + " " + payloadText

	crit := scanKeywords(searchText, criticalityRules, defaultCriticality)
	sens := scanKeywords(payloadText, sensitivityRules, defaultSensitivity)
	res := e.resourceScore()
	comp := scanKeywords(payloadText, complianceRules, defaultCompliance)

	return types.PriorityBreakdown{
		Criticality: crit,
		Sensitivity: sens,
		Resources:   res,
		Compliance:  comp,
		Priority: Clamp01(weightCriticality*crit + weightSensitivity*sens +
			weightResources*res + weightCompliance*comp),
	}
}

// resourceScore blends validator availability against mempool utilization.
// A saturated pool with few validators online pushes the score towards zero,
// throttling everything that is not clinically critical.
func (e *Engine) resourceScore() float64 {
	if e == nil || e.stats == nil {
		return defaultResources
	}
	stats := e.stats.MempoolStats()
	if stats == nil {
		return defaultResources
	}
	utilization := 0.0
	if stats.TotalCapacity > 0 {
		utilization = float64(stats.TotalSize) / float64(stats.TotalCapacity)
	}
	availability := 1.0
	if stats.ValidatorsTotal > 0 {
		availability = float64(stats.ValidatorsOnline) / float64(stats.ValidatorsTotal)
	}
	return Clamp01(0.20 + 0.60*availability - 0.50*utilization)
}

func scanKeywords(text string, rules []keywordScore, fallback float64) float64 {
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.score
			}
		}
	}
	return fallback
}

// Clamp01 clamps v into [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// flatten renders every scalar leaf of a payload in depth-first order,
// space-separated. Maps and lists are descended into; anything else is
// formatted with %v so numbers and booleans participate in keyword matching.
func flatten(v interface{}) string {
	var sb strings.Builder
	flattenInto(&sb, v)
	return sb.String()
}

func flattenInto(sb *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
	case string:
		sb.WriteString(val)
		sb.WriteByte(' ')
	case map[string]interface{}:
		for _, item := range val {
			flattenInto(sb, item)
		}
	case []interface{}:
		for _, item := range val {
			flattenInto(sb, item)
		}
	default:
		fmt.Fprintf(sb, "%v ", val)
	}
}
