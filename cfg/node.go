// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package cfg // import "go.opentelemetry.io/propeller/cfg"

import (
	"fmt"

	"go.opentelemetry.io/propeller/libpf"
)

// Node is a basic block of a function. Nodes are created by Builder.CreateNodes
// and live in the arena of their ControlFlowGraph, so a *Node is a stable
// handle for as long as the graph exists.
type Node struct {
	functionOrdinal uint64
	addr            libpf.Address
	// Zero-based index of the basic block in the function. A zero value
	// indicates the entry basic block.
	bbIndex      int
	size         uint64
	isLandingPad bool
	freq         uint64
	graph        *ControlFlowGraph

	intraOuts []*Edge // Intra function edges.
	intraIns  []*Edge // Intra function edges.
	interOuts []*Edge // Calls to other functions.
	interIns  []*Edge // Returns from other functions.
}

func (n *Node) FunctionOrdinal() uint64  { return n.functionOrdinal }
func (n *Node) Address() libpf.Address   { return n.addr }
func (n *Node) BBIndex() int             { return n.bbIndex }
func (n *Node) Size() uint64             { return n.size }
func (n *Node) IsLandingPad() bool       { return n.isLandingPad }
func (n *Node) Freq() uint64             { return n.freq }
func (n *Node) IsEntry() bool            { return n.bbIndex == 0 }
func (n *Node) Ordinal() uint64          { return n.graph.baseOrdinal + uint64(n.bbIndex) }
func (n *Node) Graph() *ControlFlowGraph { return n.graph }
func (n *Node) IntraOuts() []*Edge       { return n.intraOuts }
func (n *Node) IntraIns() []*Edge        { return n.intraIns }
func (n *Node) InterOuts() []*Edge       { return n.interOuts }
func (n *Node) InterIns() []*Edge        { return n.interIns }
func (n *Node) End() libpf.Address       { return n.addr + libpf.Address(n.size) }
func (n *Node) Contains(addr libpf.Address) bool {
	return addr >= n.addr && addr < n.End()
}

// ForEachInEdge calls fn for all incoming edges, intra function edges first.
func (n *Node) ForEachInEdge(fn func(*Edge)) {
	for _, e := range n.intraIns {
		fn(e)
	}
	for _, e := range n.interIns {
		fn(e)
	}
}

// ForEachOutEdge calls fn for all outgoing edges, intra function edges first.
func (n *Node) ForEachOutEdge(fn func(*Edge)) {
	for _, e := range n.intraOuts {
		fn(e)
	}
	for _, e := range n.interOuts {
		fn(e)
	}
}

// Name returns the function name for the entry block and
// "<function>#<bb index>" for all other blocks.
func (n *Node) Name() string {
	if n.IsEntry() {
		return n.graph.PrimaryName()
	}
	return fmt.Sprintf("%s#%d", n.graph.PrimaryName(), n.bbIndex)
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("CFGNode {function_ordinal: %d, address: %X, bb_index: %d, "+
		"frequency: %d, size: %X, CFG: %s}",
		n.functionOrdinal, uint64(n.addr), n.bbIndex, n.freq, n.size, n.graph.PrimaryName())
}

// less orders nodes by (function ordinal, address, block index).
func (n *Node) less(o *Node) bool {
	if n.functionOrdinal != o.functionOrdinal {
		return n.functionOrdinal < o.functionOrdinal
	}
	if n.addr != o.addr {
		return n.addr < o.addr
	}
	return n.bbIndex < o.bbIndex
}
