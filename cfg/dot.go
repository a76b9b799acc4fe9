// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package cfg // import "go.opentelemetry.io/propeller/cfg"

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ianlancetaylor/demangle"
)

// WriteDotFormat writes the graph in dot format. layoutIndex maps the bb index
// of every hot block to its position in the chosen layout; intra edges whose
// sink directly follows their source in that layout are drawn red. layoutIndex
// may be nil.
func (g *ControlFlowGraph) WriteDotFormat(w io.Writer, layoutIndex map[int]int) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "digraph {\n")
	fmt.Fprintf(bw, "label=%q\n", fmt.Sprintf("%s#%d", demangle.Filter(g.PrimaryName()),
		len(g.nodes)))
	fmt.Fprintf(bw, "forcelabels=true;\n")
	for i := range g.nodes {
		n := &g.nodes[i]
		color := "black"
		if n.IsEntry() {
			color = "red"
		}
		fmt.Fprintf(bw, "%d [xlabel=\"%d#%d\", color = \"%s\" ];\n",
			n.bbIndex, n.freq, n.size, color)
	}
	for _, e := range g.intraEdges {
		color := "black"
		if isLayoutFallthrough(e, layoutIndex) {
			color = "red"
		}
		fmt.Fprintf(bw, "%d -> %d[ label=\"%s\", color =\"%s\"];\n",
			e.src.bbIndex, e.sink.bbIndex, e.dotLabel(), color)
	}
	fmt.Fprintf(bw, "}\n")
	return bw.Flush()
}

func isLayoutFallthrough(e *Edge, layoutIndex map[int]int) bool {
	srcPos, ok := layoutIndex[e.src.bbIndex]
	if !ok {
		return false
	}
	sinkPos, ok := layoutIndex[e.sink.bbIndex]
	if !ok {
		return false
	}
	return sinkPos-srcPos == 1
}
