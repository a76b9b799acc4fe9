// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package cfg // import "go.opentelemetry.io/propeller/cfg"

import (
	"errors"
	"sort"

	"go.opentelemetry.io/propeller/libpf"
)

var (
	// ErrInvalidState is returned when a construction operation is invoked
	// out of order, e.g. creating nodes twice or adding edges after the node
	// frequencies were computed.
	ErrInvalidState = errors.New("operation not allowed in current graph state")
	// ErrNoNodes is returned when the entry node of an empty graph is requested.
	ErrNoNodes = errors.New("graph has no nodes")
	// ErrForeignNode is returned when a node does not belong to the graph of
	// the builder it was passed to.
	ErrForeignNode = errors.New("node belongs to a different graph")
	// ErrUnsortedBlocks is returned by CreateNodes if the block addresses are
	// not in ascending order.
	ErrUnsortedBlocks = errors.New("block addresses are not sorted")
	// ErrDuplicateEdge is returned if re-pointing an edge would create a
	// second edge with the same source, sink and kind.
	ErrDuplicateEdge = errors.New("edge already exists")
)

// state tracks the construction progress of a graph. Transitions only move
// forward.
type state uint8

const (
	stateEmpty state = iota
	stateNodesBuilt
	stateEdgesBuilt
	stateFinalized
)

func (s state) String() string {
	switch s {
	case stateEmpty:
		return "Empty"
	case stateNodesBuilt:
		return "NodesBuilt"
	case stateEdgesBuilt:
		return "EdgesBuilt"
	case stateFinalized:
		return "FrequenciesFinalized"
	}
	return "unknown"
}

// ControlFlowGraph is the weighted CFG of one function and its aliases.
//
// A ControlFlowGraph owns all of its nodes and all edges whose source is one
// of its nodes. Every edge appears exactly once in either intraEdges or
// interEdges and is referenced exactly twice from node adjacency lists: once
// from the source's outgoing and once from the sink's incoming list.
type ControlFlowGraph struct {
	// Function names associated with this CFG: The first name is the primary
	// function name and the rest are aliases.
	names           []string
	functionOrdinal uint64
	// Program-unique ordinal of the entry block. Block i has the ordinal
	// baseOrdinal+i.
	baseOrdinal uint64

	// Nodes are *strictly* sorted by (function ordinal, address, bb index).
	// The slice is allocated once and never grown, so pointers into it are
	// stable.
	nodes []Node

	intraEdges []*Edge
	interEdges []*Edge

	hot             bool
	nLandingPads    int
	nHotLandingPads int

	state state
}

func newControlFlowGraph(names []string) *ControlFlowGraph {
	if len(names) == 0 {
		panic("control flow graph requires a primary name")
	}
	return &ControlFlowGraph{names: append([]string(nil), names...)}
}

// Names returns the primary name followed by all aliases.
func (g *ControlFlowGraph) Names() []string { return g.names }

// PrimaryName returns the first symbol name associated with the function.
func (g *ControlFlowGraph) PrimaryName() string { return g.names[0] }

func (g *ControlFlowGraph) FunctionOrdinal() uint64 { return g.functionOrdinal }
func (g *ControlFlowGraph) BaseOrdinal() uint64     { return g.baseOrdinal }
func (g *ControlFlowGraph) NumLandingPads() int     { return g.nLandingPads }
func (g *ControlFlowGraph) NumHotLandingPads() int  { return g.nHotLandingPads }
func (g *ControlFlowGraph) NumNodes() int           { return len(g.nodes) }
func (g *ControlFlowGraph) IntraEdges() []*Edge     { return g.intraEdges }
func (g *ControlFlowGraph) InterEdges() []*Edge     { return g.interEdges }

// IsHot reports whether any node has a nonzero frequency.
func (g *ControlFlowGraph) IsHot() bool {
	if len(g.nodes) == 0 {
		return false
	}
	return g.hot
}

// EntryNode returns the node with bb index 0.
func (g *ControlFlowGraph) EntryNode() (*Node, error) {
	if len(g.nodes) == 0 {
		return nil, ErrNoNodes
	}
	return &g.nodes[0], nil
}

// NodeAt returns the node with the given bb index or nil.
func (g *ControlFlowGraph) NodeAt(bbIndex int) *Node {
	if bbIndex < 0 || bbIndex >= len(g.nodes) {
		return nil
	}
	return &g.nodes[bbIndex]
}

// Nodes returns handles to all nodes in graph order.
func (g *ControlFlowGraph) Nodes() []*Node {
	nodes := make([]*Node, len(g.nodes))
	for i := range g.nodes {
		nodes[i] = &g.nodes[i]
	}
	return nodes
}

// ForEachNode calls fn for each node in graph order.
func (g *ControlFlowGraph) ForEachNode(fn func(*Node)) {
	for i := range g.nodes {
		fn(&g.nodes[i])
	}
}

// NodeByAddress returns the first node starting at addr or nil.
func (g *ControlFlowGraph) NodeByAddress(addr libpf.Address) *Node {
	i := sort.Search(len(g.nodes), func(i int) bool {
		return g.nodes[i].addr >= addr
	})
	if i < len(g.nodes) && g.nodes[i].addr == addr {
		return &g.nodes[i]
	}
	return nil
}

// NodeContaining returns the last node whose address range covers addr or nil.
// Zero sized blocks never contain an address.
func (g *ControlFlowGraph) NodeContaining(addr libpf.Address) *Node {
	i := sort.Search(len(g.nodes), func(i int) bool {
		return g.nodes[i].addr > addr
	}) - 1
	for ; i >= 0; i-- {
		n := &g.nodes[i]
		if n.Contains(addr) {
			return n
		}
		if n.size > 0 {
			break
		}
	}
	return nil
}

// calculateNodeFreqs computes node frequencies from edge weights. The entry
// block usually has no incoming intra edges, so its frequency is the larger
// of the incoming call weight and the outgoing weight.
func (g *ControlFlowGraph) calculateNodeFreqs() {
	g.hot = false
	g.nHotLandingPads = 0
	for i := range g.nodes {
		n := &g.nodes[i]
		if n.IsEntry() {
			n.freq = max(sumWeights(n.interIns), sumWeights(n.intraOuts)+sumWeights(n.interOuts))
		} else {
			n.freq = sumWeights(n.intraIns) + sumWeights(n.interIns)
		}
		if n.freq == 0 {
			continue
		}
		g.hot = true
		if n.isLandingPad {
			g.nHotLandingPads++
		}
	}
}
