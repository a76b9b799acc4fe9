// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package instmap attributes the instructions of a function to inlined source
// locations.
package instmap // import "go.opentelemetry.io/propeller/instmap"

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/propeller/libpf"
)

// ErrAlreadyBuilt is returned when an InstructionMap is built a second time.
var ErrAlreadyBuilt = errors.New("instruction map already built")

// ErrRangeTooLarge is returned for an address range wider than MaxRange.
var ErrRangeTooLarge = errors.New("address range too large")

// MaxRange bounds the number of addresses a single map covers.
const MaxRange = 1 << 24

// InstructionMap holds the inline stack of every address of one function.
type InstructionMap struct {
	resolver   InlineStackResolver
	aggregator SourceCountAggregator

	startAddr libpf.Address
	stacks    []SourceStack
}

// New creates an empty InstructionMap. Both collaborators may be shared with
// other instances.
func New(resolver InlineStackResolver, aggregator SourceCountAggregator) *InstructionMap {
	return &InstructionMap{
		resolver:   resolver,
		aggregator: aggregator,
	}
}

// BuildPerFunctionInstructionMap resolves every address in [start, end) and
// forwards each resolved stack as a single PerfData sample of function name.
// An empty range is a no-op. A map can only be built once, and the range may
// not exceed MaxRange addresses.
func (m *InstructionMap) BuildPerFunctionInstructionMap(name string,
	start, end libpf.Address) error {
	if start >= end {
		return nil
	}
	if m.stacks != nil {
		return fmt.Errorf("%s at %v: %w", name, start, ErrAlreadyBuilt)
	}
	if end-start > MaxRange {
		return fmt.Errorf("%s at %v: %d addresses: %w", name, start, end-start,
			ErrRangeTooLarge)
	}

	m.startAddr = start
	m.stacks = make([]SourceStack, end-start)
	for addr := start; addr < end; addr++ {
		stack := m.resolver.InlineStack(addr)
		m.stacks[addr-start] = stack
		if len(stack) > 0 {
			m.aggregator.AddSourceCount(name, stack, 0, 1, 1, DataSourcePerfData)
		}
	}
	return nil
}

// Lookup returns the inline stack of addr. The result is empty for unresolved
// addresses and addresses outside the built range.
func (m *InstructionMap) Lookup(addr libpf.Address) SourceStack {
	if addr < m.startAddr || addr-m.startAddr >= libpf.Address(len(m.stacks)) {
		return nil
	}
	return m.stacks[addr-m.startAddr]
}

func (m *InstructionMap) StartAddress() libpf.Address { return m.startAddr }

// Len returns the number of addresses covered by the map.
func (m *InstructionMap) Len() int { return len(m.stacks) }
