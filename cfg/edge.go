// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package cfg // import "go.opentelemetry.io/propeller/cfg"

import "fmt"

// EdgeKind is the branch kind of an edge. It is fixed at creation.
type EdgeKind uint8

const (
	// EdgeKindBranchOrFallthrough covers taken branches and fallthroughs
	// between blocks of the same function.
	EdgeKindBranchOrFallthrough EdgeKind = iota
	// EdgeKindCall is a call from a block into a function entry.
	EdgeKindCall
	// EdgeKindReturn is a return from a function back into its caller.
	EdgeKindReturn

	numEdgeKinds
)

// EdgeKinds lists all valid kinds in declaration order.
var EdgeKinds = [...]EdgeKind{EdgeKindBranchOrFallthrough, EdgeKindCall, EdgeKindReturn}

var edgeKindNames = [numEdgeKinds]string{
	EdgeKindBranchOrFallthrough: "BranchOrFallthrough",
	EdgeKindCall:                "Call",
	EdgeKindReturn:              "Return",
}

var edgeKindDotLabels = [numEdgeKinds]string{
	EdgeKindBranchOrFallthrough: "BoF",
	EdgeKindCall:                "call",
	EdgeKindReturn:              "ret",
}

// String implements fmt.Stringer.
func (k EdgeKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("EdgeKind(%d)", uint8(k))
	}
	return edgeKindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k EdgeKind) Valid() bool {
	return k < numEdgeKinds
}

// ParseEdgeKind is the inverse of EdgeKind.String.
func ParseEdgeKind(s string) (EdgeKind, error) {
	for _, k := range EdgeKinds {
		if edgeKindNames[k] == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown edge kind %q", s)
}

func (k EdgeKind) dotLabel() string {
	if !k.Valid() {
		return "?"
	}
	return edgeKindDotLabels[k]
}

// Edge is a directed, weighted edge between two nodes. All edges are owned by
// the graph of their source node. Only a Builder can change the weight or the
// sink of an edge.
type Edge struct {
	src    *Node
	sink   *Node
	weight uint64
	kind   EdgeKind
}

func (e *Edge) Src() *Node     { return e.src }
func (e *Edge) Sink() *Node    { return e.sink }
func (e *Edge) Weight() uint64 { return e.weight }
func (e *Edge) Kind() EdgeKind { return e.kind }
func (e *Edge) IsCall() bool   { return e.kind == EdgeKindCall }
func (e *Edge) IsReturn() bool { return e.kind == EdgeKindReturn }
func (e *Edge) IsBranchOrFallthrough() bool {
	return e.kind == EdgeKindBranchOrFallthrough
}

// IsInter reports whether the edge crosses function boundaries.
func (e *Edge) IsInter() bool {
	return e.src.graph != e.sink.graph
}

func (e *Edge) dotLabel() string {
	return fmt.Sprintf("%s#%d", e.kind.dotLabel(), e.weight)
}

// String implements fmt.Stringer.
func (e *Edge) String() string {
	return fmt.Sprintf("%s -> %s [%s, weight: %d]", e.src.Name(), e.sink.Name(), e.kind, e.weight)
}

func sumWeights(edges []*Edge) uint64 {
	var sum uint64
	for _, e := range edges {
		sum += e.weight
	}
	return sum
}
