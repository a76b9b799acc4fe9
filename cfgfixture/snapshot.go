// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package cfgfixture stores control flow graphs in a lossless serialized form,
// e.g. as test data for layout algorithms.
package cfgfixture // import "go.opentelemetry.io/propeller/cfgfixture"

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/propeller/bbaddrmap"
	"go.opentelemetry.io/propeller/cfg"
	"go.opentelemetry.io/propeller/libpf"
)

// ErrUnknownNode is returned by Rebuild for edges referring to missing nodes.
var ErrUnknownNode = errors.New("edge refers to unknown node")

// Snapshot is the serializable form of the graphs of a program.
type Snapshot struct {
	Functions []Function `msgpack:"functions" yaml:"functions"`
}

// Function is one graph. Node i has bb index i.
type Function struct {
	Names       []string `msgpack:"names" yaml:"names,flow"`
	Ordinal     uint64   `msgpack:"ordinal" yaml:"ordinal"`
	BaseOrdinal uint64   `msgpack:"base_ordinal" yaml:"base_ordinal"`
	Nodes       []Node   `msgpack:"nodes" yaml:"nodes"`
	// Edges lists the intra function edges followed by the inter function
	// edges leaving this function.
	Edges []Edge `msgpack:"edges" yaml:"edges"`
}

type Node struct {
	Address    uint64 `msgpack:"address" yaml:"address"`
	Size       uint64 `msgpack:"size" yaml:"size"`
	LandingPad bool   `msgpack:"landing_pad,omitempty" yaml:"landing_pad,omitempty"`
	Freq       uint64 `msgpack:"freq" yaml:"freq"`
}

// NodeRef identifies a node by its function ordinal and bb index.
type NodeRef struct {
	Function uint64 `msgpack:"function" yaml:"function"`
	BBIndex  int    `msgpack:"bb_index" yaml:"bb_index"`
}

type Edge struct {
	Src    NodeRef `msgpack:"src" yaml:"src,flow"`
	Sink   NodeRef `msgpack:"sink" yaml:"sink,flow"`
	Kind   string  `msgpack:"kind" yaml:"kind"`
	Weight uint64  `msgpack:"weight" yaml:"weight"`
}

func refOf(n *cfg.Node) NodeRef {
	return NodeRef{Function: n.FunctionOrdinal(), BBIndex: n.BBIndex()}
}

// FromProgram captures finalized graphs. The snapshot is ordered by function
// ordinal.
func FromProgram(graphs []*cfg.ControlFlowGraph) *Snapshot {
	snap := &Snapshot{Functions: make([]Function, 0, len(graphs))}
	for _, g := range graphs {
		f := Function{
			Names:       slices.Clone(g.Names()),
			Ordinal:     g.FunctionOrdinal(),
			BaseOrdinal: g.BaseOrdinal(),
			Nodes:       make([]Node, 0, g.NumNodes()),
			Edges:       make([]Edge, 0, len(g.IntraEdges())+len(g.InterEdges())),
		}
		g.ForEachNode(func(n *cfg.Node) {
			f.Nodes = append(f.Nodes, Node{
				Address:    uint64(n.Address()),
				Size:       n.Size(),
				LandingPad: n.IsLandingPad(),
				Freq:       n.Freq(),
			})
		})
		for _, edges := range [][]*cfg.Edge{g.IntraEdges(), g.InterEdges()} {
			for _, e := range edges {
				f.Edges = append(f.Edges, Edge{
					Src:    refOf(e.Src()),
					Sink:   refOf(e.Sink()),
					Kind:   e.Kind().String(),
					Weight: e.Weight(),
				})
			}
		}
		snap.Functions = append(snap.Functions, f)
	}
	slices.SortStableFunc(snap.Functions, func(a, b Function) int {
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})
	return snap
}

// Rebuild reconstructs the graphs through cfg.Builder. Frequencies are
// recomputed from the edge weights.
func (s *Snapshot) Rebuild() ([]*cfg.ControlFlowGraph, error) {
	builders := make(map[uint64]*cfg.Builder, len(s.Functions))
	for i := range s.Functions {
		f := &s.Functions[i]
		if len(f.Names) == 0 {
			return nil, fmt.Errorf("function %d has no name", f.Ordinal)
		}
		if _, ok := builders[f.Ordinal]; ok {
			return nil, fmt.Errorf("duplicate function ordinal %d", f.Ordinal)
		}
		blocks := make([]bbaddrmap.BlockEntry, len(f.Nodes))
		for j, n := range f.Nodes {
			blocks[j] = bbaddrmap.BlockEntry{
				Address:      libpf.Address(n.Address),
				Size:         n.Size,
				IsLandingPad: n.LandingPad,
			}
		}
		b := cfg.NewBuilder(f.Names, nil)
		if err := b.CreateNodes(blocks, f.Ordinal, f.BaseOrdinal); err != nil {
			return nil, err
		}
		builders[f.Ordinal] = b
	}

	node := func(ref NodeRef) (*cfg.Node, error) {
		b, ok := builders[ref.Function]
		if !ok {
			return nil, fmt.Errorf("%+v: %w", ref, ErrUnknownNode)
		}
		n := b.NodeAt(ref.BBIndex)
		if n == nil {
			return nil, fmt.Errorf("%+v: %w", ref, ErrUnknownNode)
		}
		return n, nil
	}
	for i := range s.Functions {
		f := &s.Functions[i]
		b := builders[f.Ordinal]
		for _, e := range f.Edges {
			kind, err := cfg.ParseEdgeKind(e.Kind)
			if err != nil {
				return nil, err
			}
			src, err := node(e.Src)
			if err != nil {
				return nil, err
			}
			sink, err := node(e.Sink)
			if err != nil {
				return nil, err
			}
			if _, err := b.CreateEdge(src, sink, e.Weight, kind); err != nil {
				return nil, err
			}
		}
	}

	graphs := make([]*cfg.ControlFlowGraph, 0, len(s.Functions))
	for i := range s.Functions {
		g, err := builders[s.Functions[i].Ordinal].Finalize()
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}
