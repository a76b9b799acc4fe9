// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package cfg // import "go.opentelemetry.io/propeller/cfg"

import (
	"errors"
	"fmt"
)

// ErrBundleAssigned is returned when a node is assigned to a second bundle.
var ErrBundleAssigned = errors.New("node already belongs to a bundle")

// BundleRef locates a node inside a layout bundle.
type BundleRef struct {
	Bundle int
	Offset int64
}

// BundleTable records which layout bundle each node belongs to. It is owned by
// the layout stage and never changes the graph itself.
type BundleTable struct {
	refs map[*Node]BundleRef
}

func NewBundleTable() *BundleTable {
	return &BundleTable{refs: make(map[*Node]BundleRef)}
}

// Assign places n into bundle at offset. A node can only join one bundle.
func (t *BundleTable) Assign(n *Node, bundle int, offset int64) error {
	if ref, ok := t.refs[n]; ok {
		return fmt.Errorf("%s in bundle %d: %w", n.Name(), ref.Bundle, ErrBundleAssigned)
	}
	t.refs[n] = BundleRef{Bundle: bundle, Offset: offset}
	return nil
}

// SetOffset moves n within its bundle.
func (t *BundleTable) SetOffset(n *Node, offset int64) error {
	ref, ok := t.refs[n]
	if !ok {
		return fmt.Errorf("%s has no bundle", n.Name())
	}
	ref.Offset = offset
	t.refs[n] = ref
	return nil
}

// Lookup returns the bundle reference of n.
func (t *BundleTable) Lookup(n *Node) (BundleRef, bool) {
	ref, ok := t.refs[n]
	return ref, ok
}

// Len returns the number of nodes assigned to bundles.
func (t *BundleTable) Len() int {
	return len(t.refs)
}
