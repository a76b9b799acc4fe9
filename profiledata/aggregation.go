// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package profiledata holds aggregated samples of a profiled binary.
package profiledata // import "go.opentelemetry.io/propeller/profiledata"

import (
	"go.opentelemetry.io/propeller/libpf"
)

// AddressPair is the source and destination of a branch or the start and end
// of a fallthrough range.
type AddressPair struct {
	From libpf.Address
	To   libpf.Address
}

// Aggregation counts branches and fallthrough ranges by address.
type Aggregation struct {
	// Branches counts taken branches from From to To.
	Branches map[AddressPair]uint64
	// Fallthroughs counts straight-line execution from the branch target
	// From up to the next taken branch at To.
	Fallthroughs map[AddressPair]uint64
}

func NewAggregation() *Aggregation {
	return &Aggregation{
		Branches:     make(map[AddressPair]uint64),
		Fallthroughs: make(map[AddressPair]uint64),
	}
}

func (a *Aggregation) AddBranch(from, to libpf.Address, count uint64) {
	a.Branches[AddressPair{From: from, To: to}] += count
}

func (a *Aggregation) AddFallthrough(from, to libpf.Address, count uint64) {
	a.Fallthroughs[AddressPair{From: from, To: to}] += count
}

// Merge adds all counters of other to a.
func (a *Aggregation) Merge(other *Aggregation) {
	for pair, count := range other.Branches {
		a.Branches[pair] += count
	}
	for pair, count := range other.Fallthroughs {
		a.Fallthroughs[pair] += count
	}
}

// NumBranchCounters returns the number of distinct branches.
func (a *Aggregation) NumBranchCounters() int {
	return len(a.Branches)
}
