// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package cfg // import "go.opentelemetry.io/propeller/cfg"

import (
	"fmt"
	"slices"

	"go.opentelemetry.io/propeller/bbaddrmap"
	"go.opentelemetry.io/propeller/libpf"
)

// Recorder observes graph construction. *stats.PropellerStats implements it.
type Recorder interface {
	RecordNodes(n int)
	RecordEdge(kind EdgeKind)
	RecordEdgeWeight(kind EdgeKind, weight uint64)
	RecordDuplicateEdge(kind EdgeKind)
}

type nopRecorder struct{}

func (nopRecorder) RecordNodes(int)                   {}
func (nopRecorder) RecordEdge(EdgeKind)               {}
func (nopRecorder) RecordEdgeWeight(EdgeKind, uint64) {}
func (nopRecorder) RecordDuplicateEdge(EdgeKind)      {}

type edgeKey struct {
	src, sink *Node
	kind      EdgeKind
}

// Builder holds the exclusive right to mutate one ControlFlowGraph while it
// is constructed. The graph itself is only handed out by Finalize, after which
// the builder refuses all further mutations.
//
// A Builder is not safe for concurrent use. Creating an inter function edge
// also mutates the sink's graph, so callers must not create edges into a
// graph whose own builder is used concurrently.
type Builder struct {
	g     *ControlFlowGraph
	rec   Recorder
	edges map[edgeKey]*Edge
}

// NewBuilder starts the construction of the graph for the function with the
// given names. The first name is the primary name. rec may be nil.
func NewBuilder(names []string, rec Recorder) *Builder {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Builder{
		g:     newControlFlowGraph(names),
		rec:   rec,
		edges: make(map[edgeKey]*Edge),
	}
}

// PrimaryName returns the primary name of the graph under construction.
func (b *Builder) PrimaryName() string { return b.g.PrimaryName() }

// NumNodes returns the number of nodes created so far.
func (b *Builder) NumNodes() int { return len(b.g.nodes) }

// NodeAt returns the node with the given bb index or nil.
func (b *Builder) NodeAt(bbIndex int) *Node { return b.g.NodeAt(bbIndex) }

// NodeContaining returns the node covering addr or nil.
func (b *Builder) NodeContaining(addr libpf.Address) *Node {
	return b.g.NodeContaining(addr)
}

// Owns reports whether n belongs to the graph under construction.
func (b *Builder) Owns(n *Node) bool { return n != nil && n.graph == b.g }

func (b *Builder) checkState(op string, allowed ...state) error {
	if !slices.Contains(allowed, b.g.state) {
		return fmt.Errorf("%s on %s in state %s: %w", op, b.g.PrimaryName(), b.g.state,
			ErrInvalidState)
	}
	return nil
}

// CreateNodes creates a node for every block of the function. Nodes get the
// bb indices 0..len(blocks)-1 in block order; index 0 is the entry block.
// Block i gets the program-unique ordinal baseOrdinal+i.
// CreateNodes may only be called once.
func (b *Builder) CreateNodes(blocks []bbaddrmap.BlockEntry,
	functionOrdinal, baseOrdinal uint64) error {
	if err := b.checkState("CreateNodes", stateEmpty); err != nil {
		return err
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i].Address < blocks[i-1].Address {
			return fmt.Errorf("%s: block %d at %v: %w", b.g.PrimaryName(), i,
				blocks[i].Address, ErrUnsortedBlocks)
		}
	}

	g := b.g
	g.functionOrdinal = functionOrdinal
	g.baseOrdinal = baseOrdinal
	g.nodes = make([]Node, len(blocks))
	for i, blk := range blocks {
		g.nodes[i] = Node{
			functionOrdinal: functionOrdinal,
			addr:            blk.Address,
			bbIndex:         i,
			size:            blk.Size,
			isLandingPad:    blk.IsLandingPad,
			graph:           g,
		}
		if blk.IsLandingPad {
			g.nLandingPads++
		}
	}
	g.state = stateNodesBuilt
	b.rec.RecordNodes(len(blocks))
	return nil
}

// CreateEdge creates an edge from -> to and registers it with both endpoints.
// from must belong to this builder's graph; to may belong to any graph that
// is not finalized yet, in which case the edge is an inter function edge.
//
// If an edge with the same source, sink and kind exists already, its weight
// is incremented instead, the duplicate is reported to the Recorder and the
// existing edge is returned.
func (b *Builder) CreateEdge(from, to *Node, weight uint64, kind EdgeKind) (*Edge, error) {
	if err := b.checkState("CreateEdge", stateNodesBuilt, stateEdgesBuilt); err != nil {
		return nil, err
	}
	if err := b.checkEndpoints(from, to, kind); err != nil {
		return nil, err
	}

	key := edgeKey{src: from, sink: to, kind: kind}
	if e, ok := b.edges[key]; ok {
		e.weight += weight
		b.rec.RecordDuplicateEdge(kind)
		b.rec.RecordEdgeWeight(kind, weight)
		return e, nil
	}

	e := &Edge{src: from, sink: to, weight: weight, kind: kind}
	b.attach(e)
	b.edges[key] = e
	b.g.state = stateEdgesBuilt
	b.rec.RecordEdge(kind)
	b.rec.RecordEdgeWeight(kind, weight)
	return e, nil
}

func (b *Builder) checkEndpoints(from, to *Node, kind EdgeKind) error {
	if from == nil || to == nil {
		return fmt.Errorf("%s: nil edge endpoint: %w", b.g.PrimaryName(), ErrForeignNode)
	}
	if from.graph != b.g {
		return fmt.Errorf("%s: source %s: %w", b.g.PrimaryName(), from.Name(), ErrForeignNode)
	}
	if to.graph.state == stateFinalized {
		return fmt.Errorf("%s: sink graph %s is finalized: %w", b.g.PrimaryName(),
			to.graph.PrimaryName(), ErrInvalidState)
	}
	if !kind.Valid() {
		return fmt.Errorf("%s: invalid edge kind %d", b.g.PrimaryName(), kind)
	}
	return nil
}

// FindEdge returns the first created edge from -> to of any kind, or nil.
func (b *Builder) FindEdge(from, to *Node) *Edge {
	if !b.Owns(from) || to == nil {
		return nil
	}
	outs := from.intraOuts
	if from.graph != to.graph {
		outs = from.interOuts
	}
	for _, e := range outs {
		if e.sink == to {
			return e
		}
	}
	return nil
}

// IncrementEdgeWeight adds increment to the weight of e.
func (b *Builder) IncrementEdgeWeight(e *Edge, increment uint64) error {
	if err := b.checkState("IncrementEdgeWeight", stateEdgesBuilt); err != nil {
		return err
	}
	if !b.Owns(e.src) {
		return fmt.Errorf("%s: edge %v: %w", b.g.PrimaryName(), e, ErrForeignNode)
	}
	e.weight += increment
	b.rec.RecordEdgeWeight(e.kind, increment)
	return nil
}

// ReplaceSink re-points e to a new sink, keeping the adjacency lists and the
// owning collections consistent. The edge may change between intra and inter.
func (b *Builder) ReplaceSink(e *Edge, sink *Node) error {
	if err := b.checkState("ReplaceSink", stateEdgesBuilt); err != nil {
		return err
	}
	if !b.Owns(e.src) {
		return fmt.Errorf("%s: edge %v: %w", b.g.PrimaryName(), e, ErrForeignNode)
	}
	if err := b.checkEndpoints(e.src, sink, e.kind); err != nil {
		return err
	}
	newKey := edgeKey{src: e.src, sink: sink, kind: e.kind}
	if _, ok := b.edges[newKey]; ok {
		return fmt.Errorf("%s: %v to %s: %w", b.g.PrimaryName(), e, sink.Name(),
			ErrDuplicateEdge)
	}

	delete(b.edges, edgeKey{src: e.src, sink: e.sink, kind: e.kind})
	b.detach(e)
	e.sink = sink
	b.attach(e)
	b.edges[newKey] = e
	return nil
}

func (b *Builder) attach(e *Edge) {
	if e.IsInter() {
		e.src.interOuts = append(e.src.interOuts, e)
		e.sink.interIns = append(e.sink.interIns, e)
		b.g.interEdges = append(b.g.interEdges, e)
		return
	}
	e.src.intraOuts = append(e.src.intraOuts, e)
	e.sink.intraIns = append(e.sink.intraIns, e)
	b.g.intraEdges = append(b.g.intraEdges, e)
}

func (b *Builder) detach(e *Edge) {
	isEdge := func(other *Edge) bool { return other == e }
	if e.IsInter() {
		e.src.interOuts = slices.DeleteFunc(e.src.interOuts, isEdge)
		e.sink.interIns = slices.DeleteFunc(e.sink.interIns, isEdge)
		b.g.interEdges = slices.DeleteFunc(b.g.interEdges, isEdge)
		return
	}
	e.src.intraOuts = slices.DeleteFunc(e.src.intraOuts, isEdge)
	e.sink.intraIns = slices.DeleteFunc(e.sink.intraIns, isEdge)
	b.g.intraEdges = slices.DeleteFunc(b.g.intraEdges, isEdge)
}

// Finalize computes the node frequencies from the edge weights and returns
// the finished graph. No mutation is possible afterwards.
//
// Finalize is also legal directly after CreateNodes. A function without any
// sampled branch never gets an edge, and its graph is still part of the
// result, with all frequencies zero and IsHot false.
func (b *Builder) Finalize() (*ControlFlowGraph, error) {
	if err := b.checkState("CalculateNodeFreqs", stateNodesBuilt, stateEdgesBuilt); err != nil {
		return nil, err
	}
	b.g.calculateNodeFreqs()
	b.g.state = stateFinalized
	b.edges = nil
	return b.g, nil
}
