// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package programcfg

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/propeller/bbaddrmap"
	"go.opentelemetry.io/propeller/cfg"
	"go.opentelemetry.io/propeller/instmap"
	"go.opentelemetry.io/propeller/libpf"
	"go.opentelemetry.io/propeller/profiledata"
	"go.opentelemetry.io/propeller/symbolmap"
)

func testProgram() *bbaddrmap.Program {
	return testProgramWith(nil, nil)
}

// testProgramWith returns the test program extended by the given symbols and
// functions.
func testProgramWith(syms []libpf.Symbol, fns []bbaddrmap.Function) *bbaddrmap.Program {
	symbols := libpf.NewSymbolMap(5 + len(syms))
	for _, sym := range append([]libpf.Symbol{
		{Name: "foo", Address: 0x1000, Size: 0x30},
		{Name: "foo_alias", Address: 0x1000, Size: 0x30},
		{Name: "bar", Address: 0x2000, Size: 0x20},
		{Name: "foo", Address: 0x4000, Size: 0x10},
	}, syms...) {
		symbols.Add(sym)
	}
	symbols.Finalize()

	return &bbaddrmap.Program{
		Functions: append([]bbaddrmap.Function{
			{Address: 0x1000, Blocks: []bbaddrmap.BlockEntry{
				{Address: 0x1000, Size: 0x10},
				{Address: 0x1010, Size: 0x10},
				{Address: 0x1020, Size: 0x10, IsLandingPad: true},
			}},
			{Address: 0x2000, Blocks: []bbaddrmap.BlockEntry{
				{Address: 0x2000, Size: 0x10},
				{Address: 0x2010, Size: 0x10},
			}},
			// No symbol.
			{Address: 0x3000, Blocks: []bbaddrmap.BlockEntry{{Address: 0x3000, Size: 0x10}}},
			// Only a duplicate symbol.
			{Address: 0x4000, Blocks: []bbaddrmap.BlockEntry{{Address: 0x4000, Size: 0x10}}},
		}, fns...),
		Symbols: symbols,
	}
}

func testProfile() *profiledata.Aggregation {
	agg := profiledata.NewAggregation()
	agg.AddBranch(0x100c, 0x1010, 4) // foo#0 -> foo#1
	agg.AddBranch(0x100c, 0x1020, 5) // foo#0 -> foo#2
	agg.AddBranch(0x101c, 0x2000, 3) // call bar
	agg.AddBranch(0x1020, 0x1004, 1) // foo#2 -> foo#0
	agg.AddBranch(0x1028, 0x1000, 1) // recursive call, same nodes as above
	agg.AddBranch(0x201c, 0x1018, 3) // return from bar
	agg.AddBranch(0x5000, 0x1000, 1) // unknown source
	agg.AddFallthrough(0x1000, 0x101c, 2)
	agg.AddFallthrough(0x1018, 0x2004, 1) // crosses functions
	agg.AddFallthrough(0x1020, 0x1000, 1) // backwards
	agg.AddFallthrough(0x2000, 0x201c, 3)
	return agg
}

type edgeDesc struct {
	src, sink string
	kind      cfg.EdgeKind
	weight    uint64
}

func describe(edges []*cfg.Edge) []edgeDesc {
	descs := make([]edgeDesc, 0, len(edges))
	for _, e := range edges {
		descs = append(descs, edgeDesc{e.Src().Name(), e.Sink().Name(), e.Kind(), e.Weight()})
	}
	return descs
}

func freqs(g *cfg.ControlFlowGraph) []uint64 {
	var result []uint64
	g.ForEachNode(func(n *cfg.Node) {
		result = append(result, n.Freq())
	})
	return result
}

func TestBuild(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallelism %d", parallelism), func(t *testing.T) {
			p, err := Build(context.Background(), testProgram(), testProfile(),
				Options{Parallelism: parallelism})
			require.NoError(t, err)

			cfgs := p.CFGs()
			require.Len(t, cfgs, 2)
			foo, bar := cfgs[0], cfgs[1]
			assert.Equal(t, []string{"foo", "foo_alias"}, foo.Names())
			assert.Equal(t, []string{"bar"}, bar.Names())
			assert.Equal(t, uint64(0), foo.FunctionOrdinal())
			assert.Equal(t, uint64(1), bar.FunctionOrdinal())
			assert.Equal(t, uint64(0), foo.BaseOrdinal())
			assert.Equal(t, uint64(3), bar.BaseOrdinal())
			var ordinals []uint64
			for _, g := range cfgs {
				g.ForEachNode(func(n *cfg.Node) {
					ordinals = append(ordinals, n.Ordinal())
				})
			}
			assert.Equal(t, []uint64{0, 1, 2, 3, 4}, ordinals)

			byAlias, ok := p.CFGByName("foo_alias")
			require.True(t, ok)
			assert.Same(t, foo, byAlias)
			_, ok = p.CFGByName("missing")
			assert.False(t, ok)

			assert.ElementsMatch(t, []edgeDesc{
				{"foo", "foo#1", cfg.EdgeKindBranchOrFallthrough, 6},
				{"foo", "foo#2", cfg.EdgeKindBranchOrFallthrough, 5},
				{"foo#2", "foo", cfg.EdgeKindBranchOrFallthrough, 2},
			}, describe(foo.IntraEdges()))
			assert.Equal(t, []edgeDesc{
				{"foo#1", "bar", cfg.EdgeKindCall, 3},
			}, describe(foo.InterEdges()))
			assert.Equal(t, []edgeDesc{
				{"bar", "bar#1", cfg.EdgeKindBranchOrFallthrough, 3},
			}, describe(bar.IntraEdges()))
			assert.Equal(t, []edgeDesc{
				{"bar#1", "foo#1", cfg.EdgeKindReturn, 3},
			}, describe(bar.InterEdges()))

			assert.Equal(t, []uint64{11, 9, 5}, freqs(foo))
			assert.Equal(t, []uint64{3, 3}, freqs(bar))
			assert.Equal(t, 1, foo.NumHotLandingPads())
			assert.Equal(t, []*cfg.ControlFlowGraph{foo, bar}, p.HotCFGs())

			st := p.Stats()
			assert.Equal(t, uint64(7), st.BranchCountersAccumulated)
			assert.Equal(t, uint64(1), st.EdgesWithSameSrcSinkButDifferentType)
			assert.Equal(t, uint64(2), st.CFGsCreated)
			assert.Equal(t, uint64(2), st.HotFunctions)
			assert.Equal(t, uint64(1), st.CFGsWithHotLandingPads)
			assert.Equal(t, uint64(5), st.NodesCreated)
			assert.Equal(t, uint64(1), st.DuplicateSymbols)
			assert.Equal(t, uint64(1), st.BBAddrMapFunctionDoesNotHaveSymtabEntry)
			assert.Equal(t, uint64(1), st.BranchEventsOutsideBlocks)
			assert.Equal(t, uint64(2), st.FallthroughRangesDropped)
			assert.Equal(t, uint64(0), st.DuplicateEdgeCreations)
			assert.Equal(t, uint64(0), st.FunctionsFailed)
			assert.Equal(t, map[cfg.EdgeKind]uint64{
				cfg.EdgeKindBranchOrFallthrough: 4,
				cfg.EdgeKindCall:                1,
				cfg.EdgeKindReturn:              1,
			}, st.EdgesCreatedByKind)
			assert.Equal(t, map[cfg.EdgeKind]uint64{
				cfg.EdgeKindBranchOrFallthrough: 16,
				cfg.EdgeKindCall:                3,
				cfg.EdgeKindReturn:              3,
			}, st.TotalEdgeWeightByKind)
			assert.Equal(t, uint64(6), st.TotalEdgesCreated())
		})
	}
}

func TestBuildEdgeAccounting(t *testing.T) {
	p, err := Build(context.Background(), testProgram(), testProfile(), Options{})
	require.NoError(t, err)

	var owned, outs, ins int
	for _, g := range p.CFGs() {
		owned += len(g.IntraEdges()) + len(g.InterEdges())
		g.ForEachNode(func(n *cfg.Node) {
			outs += len(n.IntraOuts()) + len(n.InterOuts())
			ins += len(n.IntraIns()) + len(n.InterIns())
		})
	}
	assert.Equal(t, 6, owned)
	assert.Equal(t, owned, outs)
	assert.Equal(t, owned, ins)
}

func TestBuildWithoutProfile(t *testing.T) {
	p, err := Build(context.Background(), testProgram(), nil, Options{})
	require.NoError(t, err)
	require.Len(t, p.CFGs(), 2)
	assert.Empty(t, p.HotCFGs())
	for _, g := range p.CFGs() {
		assert.False(t, g.IsHot())
		assert.Empty(t, g.IntraEdges())
	}
}

type countingResolver struct {
	calls atomic.Uint64
}

func (r *countingResolver) InlineStack(addr libpf.Address) instmap.SourceStack {
	r.calls.Add(1)
	return instmap.SourceStack{{FunctionName: "bar", FileName: "bar.cc", Line: uint32(addr & 0xff)}}
}

func TestBuildInstructionMaps(t *testing.T) {
	resolver := &countingResolver{}
	aggregator := symbolmap.New()
	p, err := Build(context.Background(), testProgram(), testProfile(), Options{
		Resolver:         resolver,
		Aggregator:       aggregator,
		SampledAddresses: libpf.Set[libpf.Address]{0x2004: {}},
	})
	require.NoError(t, err)

	foo, _ := p.CFGByName("foo")
	bar, _ := p.CFGByName("bar")
	_, ok := p.InstructionMap(foo)
	assert.False(t, ok)
	m, ok := p.InstructionMap(bar)
	require.True(t, ok)
	assert.Equal(t, 0x20, m.Len())
	assert.Equal(t, libpf.Address(0x2000), m.StartAddress())
	assert.Equal(t, uint64(0x20), resolver.calls.Load())
	assert.Equal(t, []string{"bar"}, aggregator.Names())
	assert.Equal(t, uint64(0x20), aggregator.TotalCount())
}

func TestBuildMalformedFunctions(t *testing.T) {
	far := libpf.Address(0x7fff_ffff_ffff_0000)
	tests := map[string]struct {
		sym libpf.Symbol
		fn  bbaddrmap.Function
	}{
		"block outside symbol": {
			sym: libpf.Symbol{Name: "spill", Address: 0x5000, Size: 0x10},
			fn: bbaddrmap.Function{Address: 0x5000, Blocks: []bbaddrmap.BlockEntry{
				{Address: 0x5000, Size: 0x10},
				{Address: far, Size: 0x10},
			}},
		},
		"unsized symbol with distant block": {
			sym: libpf.Symbol{Name: "spill", Address: 0x5000},
			fn: bbaddrmap.Function{Address: 0x5000, Blocks: []bbaddrmap.BlockEntry{
				{Address: 0x5000, Size: 0x10},
				{Address: far, Size: 0x10},
			}},
		},
		"function inside another function": {
			sym: libpf.Symbol{Name: "inner", Address: 0x2010, Size: 0x10},
			fn: bbaddrmap.Function{Address: 0x2010, Blocks: []bbaddrmap.BlockEntry{
				{Address: 0x2010, Size: 0x10},
			}},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			program := testProgramWith([]libpf.Symbol{tc.sym}, []bbaddrmap.Function{tc.fn})
			resolver := &countingResolver{}
			p, err := Build(context.Background(), program, testProfile(), Options{
				Resolver:   resolver,
				Aggregator: symbolmap.New(),
			})
			require.NoError(t, err)

			assert.Equal(t, uint64(1), p.Stats().FunctionsFailed)
			_, ok := p.CFGByName(string(tc.sym.Name))
			assert.False(t, ok)

			require.Len(t, p.CFGs(), 2)
			bar, ok := p.CFGByName("bar")
			require.True(t, ok)
			assert.Equal(t, []edgeDesc{
				{"bar", "bar#1", cfg.EdgeKindBranchOrFallthrough, 3},
			}, describe(bar.IntraEdges()))
			// Only foo and bar are resolved.
			assert.Equal(t, uint64(0x30+0x20), resolver.calls.Load())
		})
	}
}

func TestBuildInvalidProgram(t *testing.T) {
	program := testProgram()
	program.Functions[1].Blocks[1].Address = 0x1ff0
	_, err := Build(context.Background(), program, nil, Options{})
	require.Error(t, err)

	program.Symbols = nil
	_, err = Build(context.Background(), program, nil, Options{})
	require.Error(t, err)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, testProgram(), testProfile(), Options{})
	require.ErrorIs(t, err, context.Canceled)
}
