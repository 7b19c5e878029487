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

package priority

import (
	"testing"

	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/stretchr/testify/require"
)

type fixedStats struct {
	stats *types.MempoolStats
}

func (f *fixedStats) MempoolStats() *types.MempoolStats { return f.stats }

func TestCriticalCardiacCase(t *testing.T) {
	engine := NewEngine(nil)
	tx := &types.Transaction{
		Type: "Emergency Record",
		Payload: map[string]interface{}{
			"chiefComplaint": "Cardiac Arrest, stat",
			"severity":       "Cardiac Arrest",
		},
	}
	b := engine.Calculate(tx)
	require.Equal(t, 0.95, b.Criticality)
	require.Equal(t, 0.95, b.Sensitivity)
	require.Equal(t, 0.50, b.Resources)
	require.Equal(t, 0.10, b.Compliance)
	require.InDelta(t, 0.82, b.Priority, 0.005)
}

func TestRoutineLabResult(t *testing.T) {
	engine := NewEngine(nil)
	tx := &types.Transaction{
		Type: "Lab Result",
		Payload: map[string]interface{}{
			"testType": "CBC",
			"status":   "Normal",
			"notes":    "routine",
		},
	}
	b := engine.Calculate(tx)
	require.Equal(t, 0.50, b.Criticality)
	require.Equal(t, 0.40, b.Sensitivity)
	require.Equal(t, 0.50, b.Resources)
	require.Equal(t, 0.10, b.Compliance)
	require.InDelta(t, 0.425, b.Priority, 0.0001)
}

func TestCriticalityKeywordOrder(t *testing.T) {
	engine := NewEngine(nil)

	// "cardiac arrest" beats "stroke" even when both occur: the table is
	// scanned in declared order.
	tx := &types.Transaction{
		Type:    "Emergency Record",
		Payload: map[string]interface{}{"notes": "stroke after cardiac arrest"},
	}
	require.Equal(t, 0.95, engine.Calculate(tx).Criticality)

	tx = &types.Transaction{Type: "Emergency Record",
		Payload: map[string]interface{}{"notes": "suspected stroke"}}
	require.Equal(t, 0.93, engine.Calculate(tx).Criticality)
}

func TestSensitivityIgnoresType(t *testing.T) {
	engine := NewEngine(nil)

	// "stat" in the type alone must not raise sensitivity; only payload
	// text counts for the temporal component.
	tx := &types.Transaction{Type: "stat order", Payload: map[string]interface{}{}}
	require.Equal(t, defaultSensitivity, engine.Calculate(tx).Sensitivity)
}

func TestCaseInsensitiveMatching(t *testing.T) {
	engine := NewEngine(nil)
	tx := &types.Transaction{
		Type:    "Prescription",
		Payload: map[string]interface{}{"drug": "CONTROLLED SUBSTANCE schedule II", "note": "URGENT"},
	}
	b := engine.Calculate(tx)
	require.Equal(t, 0.65, b.Criticality)
	require.Equal(t, 0.80, b.Sensitivity)
	require.Equal(t, 0.50, b.Compliance)
}

func TestNestedPayloadLeaves(t *testing.T) {
	engine := NewEngine(nil)
	tx := &types.Transaction{
		Type: "Emergency Record",
		Payload: map[string]interface{}{
			"vitals": map[string]interface{}{
				"observations": []interface{}{
					map[string]interface{}{"finding": "possible sepsis"},
				},
			},
		},
	}
	require.Equal(t, 0.90, engine.Calculate(tx).Criticality)
}

func TestResourceScore(t *testing.T) {
	stats := &types.MempoolStats{
		TotalSize:        5050,
		TotalCapacity:    10100,
		ValidatorsOnline: 3,
		ValidatorsTotal:  4,
	}
	engine := NewEngine(&fixedStats{stats: stats})
	b := engine.Calculate(&types.Transaction{Type: "Lab Result"})
	// 0.20 + 0.60*0.75 - 0.50*0.5 = 0.40
	require.InDelta(t, 0.40, b.Resources, 1e-9)

	// No validators known at all counts as full availability.
	stats.ValidatorsTotal = 0
	stats.ValidatorsOnline = 0
	b = engine.Calculate(&types.Transaction{Type: "Lab Result"})
	require.InDelta(t, 0.55, b.Resources, 1e-9)

	// A provider with nothing to report falls back to neutral.
	engine = NewEngine(&fixedStats{})
	b = engine.Calculate(&types.Transaction{Type: "Lab Result"})
	require.Equal(t, defaultResources, b.Resources)
}

func TestPriorityIsClamped(t *testing.T) {
	require.Equal(t, 0.0, Clamp01(-0.2))
	require.Equal(t, 1.0, Clamp01(1.7))
	require.Equal(t, 0.5, Clamp01(0.5))
}
