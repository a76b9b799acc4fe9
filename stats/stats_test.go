// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/propeller/cfg"
)

func randomStats(rng *rand.Rand) *PropellerStats {
	s := New()
	s.BinaryMmapNum = rng.Int64N(10)
	s.PerfFileParsed = rng.Int64N(10)
	s.BranchCountersAccumulated = rng.Uint64N(1000)
	s.EdgesWithSameSrcSinkButDifferentType = rng.Uint64N(10)
	s.CFGsCreated = rng.Uint64N(100)
	s.CFGsWithHotLandingPads = rng.Uint64N(10)
	s.NodesCreated = rng.Uint64N(1000)
	s.DuplicateSymbols = rng.Uint64N(10)
	s.BBAddrMapFunctionDoesNotHaveSymtabEntry = rng.Uint64N(10)
	s.OriginalIntraScore = rng.Uint64N(1000)
	s.OptimizedIntraScore = rng.Uint64N(1000)
	s.OriginalInterScore = rng.Uint64N(1000)
	s.OptimizedInterScore = rng.Uint64N(1000)
	s.HotFunctions = rng.Uint64N(100)
	s.DuplicateEdgeCreations = rng.Uint64N(10)
	s.BranchEventsOutsideBlocks = rng.Uint64N(10)
	s.FallthroughRangesDropped = rng.Uint64N(10)
	s.FunctionsFailed = rng.Uint64N(3)
	for _, kind := range cfg.EdgeKinds {
		// Leave some kinds out so the histograms have different key sets.
		if rng.IntN(3) == 0 {
			continue
		}
		s.EdgesCreatedByKind[kind] = rng.Uint64N(100)
		s.TotalEdgeWeightByKind[kind] = rng.Uint64N(10000)
	}
	return s
}

func merged(a, b *PropellerStats) *PropellerStats {
	m := a.Clone()
	m.Merge(b)
	return m
}

func TestMergeIsAssociativeAndCommutative(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		a, b, c := randomStats(rng), randomStats(rng), randomStats(rng)

		assert.Equal(t, merged(merged(a, b), c), merged(a, merged(b, c)))
		assert.Equal(t, merged(a, b), merged(b, a))
	}
}

func TestMergeFieldwise(t *testing.T) {
	a := New()
	a.CFGsCreated = 2
	a.RecordEdge(cfg.EdgeKindCall)
	a.RecordEdgeWeight(cfg.EdgeKindCall, 10)

	b := &PropellerStats{CFGsCreated: 3}
	b.RecordEdge(cfg.EdgeKindCall)
	b.RecordEdge(cfg.EdgeKindReturn)
	b.RecordEdgeWeight(cfg.EdgeKindCall, 5)
	b.RecordEdgeWeight(cfg.EdgeKindReturn, 7)

	a.Merge(b)
	assert.Equal(t, uint64(5), a.CFGsCreated)
	assert.Equal(t, uint64(2), a.EdgesCreatedByKind[cfg.EdgeKindCall])
	assert.Equal(t, uint64(1), a.EdgesCreatedByKind[cfg.EdgeKindReturn])
	assert.Equal(t, uint64(3), a.TotalEdgesCreated())
	assert.Equal(t, uint64(22), a.TotalEdgeWeightCreated())

	// Merging into the zero value allocates the histograms.
	var z PropellerStats
	z.Merge(b)
	assert.Equal(t, b.EdgesCreatedByKind, z.EdgesCreatedByKind)

	before := a.Clone()
	a.Merge(nil)
	assert.Equal(t, before, a)
}

func TestRecorder(t *testing.T) {
	s := New()
	b := cfg.NewBuilder([]string{"foo"}, s)
	require.NoError(t, b.CreateNodes(nil, 0, 0))
	assert.Equal(t, uint64(0), s.NodesCreated)

	var zero PropellerStats
	zero.RecordDuplicateEdge(cfg.EdgeKindBranchOrFallthrough)
	zero.RecordNodes(3)
	assert.Equal(t, uint64(1), zero.DuplicateEdgeCreations)
	assert.Equal(t, uint64(3), zero.NodesCreated)
}

func TestFields(t *testing.T) {
	s := New()
	s.HotFunctions = 4
	s.RecordEdgeWeight(cfg.EdgeKindReturn, 9)

	values := map[string]uint64{}
	for _, f := range s.Fields() {
		_, dup := values[f.Name]
		require.False(t, dup, f.Name)
		values[f.Name] = f.Value
	}
	assert.Equal(t, uint64(4), values["hot_functions"])
	assert.Equal(t, uint64(9), values["total_edge_weight.Return"])
	assert.Contains(t, values, "edges_created.Call")
}
