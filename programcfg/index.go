// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package programcfg // import "go.opentelemetry.io/propeller/programcfg"

import (
	"cmp"
	"slices"
	"sort"

	"go.opentelemetry.io/propeller/cfg"
	"go.opentelemetry.io/propeller/libpf"
)

// blockIndex maps addresses to the nodes of all functions of the program.
type blockIndex struct {
	// Nodes sorted by address. Functions never overlap, so nodes of one
	// function are contiguous.
	nodes []*cfg.Node
	// Entry nodes by function address.
	entries map[libpf.Address]*cfg.Node
}

func newBlockIndex(jobs []*job) *blockIndex {
	ix := &blockIndex{entries: make(map[libpf.Address]*cfg.Node)}
	for _, j := range jobs {
		if j.err != nil {
			continue
		}
		for i := range j.builder.NumNodes() {
			n := j.builder.NodeAt(i)
			ix.nodes = append(ix.nodes, n)
			if n.IsEntry() {
				ix.entries[n.Address()] = n
			}
		}
	}
	slices.SortStableFunc(ix.nodes, func(a, b *cfg.Node) int {
		return cmp.Compare(a.Address(), b.Address())
	})
	return ix
}

// find returns the node whose block covers addr or nil. If zero sized blocks
// share the start address of a sized block, the sized block wins.
func (ix *blockIndex) find(addr libpf.Address) *cfg.Node {
	i := sort.Search(len(ix.nodes), func(i int) bool {
		return ix.nodes[i].Address() > addr
	}) - 1
	for ; i >= 0; i-- {
		n := ix.nodes[i]
		if n.Contains(addr) {
			return n
		}
		if n.Size() > 0 {
			break
		}
	}
	return nil
}

// entry returns the entry node of the function starting at addr or nil.
func (ix *blockIndex) entry(addr libpf.Address) *cfg.Node {
	return ix.entries[addr]
}
