// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package symbolmap aggregates sample counts attributed to inlined source
// locations into per-function inline trees.
package symbolmap // import "go.opentelemetry.io/propeller/symbolmap"

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/propeller/instmap"
	"go.opentelemetry.io/propeller/libpf"
	"go.opentelemetry.io/propeller/libpf/xsync"
)

// Offset identifies a source position inside a function body: the line in the
// upper 32 bits and the discriminator in the lower 32 bits.
type Offset uint64

func MakeOffset(line, discriminator uint32) Offset {
	return Offset(line)<<32 | Offset(discriminator)
}

func (o Offset) Line() uint32          { return uint32(o >> 32) }
func (o Offset) Discriminator() uint32 { return uint32(o) }

// String implements fmt.Stringer.
func (o Offset) String() string {
	if o.Discriminator() == 0 {
		return fmt.Sprintf("%d", o.Line())
	}
	return fmt.Sprintf("%d.%d", o.Line(), o.Discriminator())
}

// PosCount is the sample information of one source position.
type PosCount struct {
	Count uint64
	// NumInst is the number of instructions attributed to the position.
	NumInst uint64
}

// Callsite identifies an inlined call: its position in the caller and the
// callee function.
type Callsite struct {
	Offset Offset
	Callee string
}

// Symbol is a function, or an inlined instance of a function, together with
// the counts of its own positions and of the functions inlined into it.
type Symbol struct {
	Name       string
	TotalCount uint64
	PosCounts  map[Offset]PosCount
	Callsites  map[Callsite]*Symbol
	// Sources is the set of data sources that contributed counts.
	Sources libpf.Set[instmap.DataSource]
}

func newSymbol(name string) *Symbol {
	return &Symbol{
		Name:      name,
		PosCounts: make(map[Offset]PosCount),
		Callsites: make(map[Callsite]*Symbol),
		Sources:   make(libpf.Set[instmap.DataSource]),
	}
}

func (s *Symbol) callee(cs Callsite) *Symbol {
	callee, ok := s.Callsites[cs]
	if !ok {
		callee = newSymbol(cs.Callee)
		s.Callsites[cs] = callee
	}
	return callee
}

func (s *Symbol) clone() *Symbol {
	c := &Symbol{
		Name:       s.Name,
		TotalCount: s.TotalCount,
		PosCounts:  make(map[Offset]PosCount, len(s.PosCounts)),
		Callsites:  make(map[Callsite]*Symbol, len(s.Callsites)),
		Sources:    make(libpf.Set[instmap.DataSource], len(s.Sources)),
	}
	for off, pc := range s.PosCounts {
		c.PosCounts[off] = pc
	}
	for cs, callee := range s.Callsites {
		c.Callsites[cs] = callee.clone()
	}
	for src := range s.Sources {
		c.Sources.Add(src)
	}
	return c
}

// Dump writes the inline tree of s, one position or callsite per line, sorted
// by offset.
func (s *Symbol) Dump(sb *strings.Builder, indent int) {
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(sb, "%s%s total:%d\n", pad, s.Name, s.TotalCount)
	for _, off := range libpf.SortedKeys(s.PosCounts) {
		pc := s.PosCounts[off]
		fmt.Fprintf(sb, "%s  %s: %d (%d inst)\n", pad, off, pc.Count, pc.NumInst)
	}
	callsites := make([]Callsite, 0, len(s.Callsites))
	for cs := range s.Callsites {
		callsites = append(callsites, cs)
	}
	slices.SortFunc(callsites, func(a, b Callsite) int {
		return cmp.Or(cmp.Compare(a.Offset, b.Offset), strings.Compare(a.Callee, b.Callee))
	})
	for _, cs := range callsites {
		fmt.Fprintf(sb, "%s  %s: inlined\n", pad, cs.Offset)
		s.Callsites[cs].Dump(sb, indent+2)
	}
}

// SymbolMap is the top-level aggregator keyed by function name. It is safe for
// concurrent use.
type SymbolMap struct {
	symbols xsync.RWMutex[map[string]*Symbol]
}

var _ instmap.SourceCountAggregator = (*SymbolMap)(nil)

func New() *SymbolMap {
	return &SymbolMap{
		symbols: xsync.NewRWMutex(make(map[string]*Symbol)),
	}
}

// AddSourceCount attributes count samples to the innermost frame of stack,
// creating the inline path from the outermost frame of function name. A
// nonzero discriminator overrides the one of the innermost frame.
func (m *SymbolMap) AddSourceCount(name string, stack instmap.SourceStack,
	discriminator uint32, count uint64, numDups uint32, source instmap.DataSource) {
	if len(stack) == 0 {
		return
	}

	symbols := m.symbols.WLock()
	defer m.symbols.WUnlock(&symbols)

	sym, ok := (*symbols)[name]
	if !ok {
		sym = newSymbol(name)
		(*symbols)[name] = sym
	}
	sym.TotalCount += count
	sym.Sources.Add(source)

	for i := len(stack) - 1; i > 0; i-- {
		caller := stack[i]
		sym = sym.callee(Callsite{
			Offset: MakeOffset(caller.Line, caller.Discriminator),
			Callee: stack[i-1].FunctionName,
		})
		sym.TotalCount += count
		sym.Sources.Add(source)
	}

	leaf := stack[0]
	if discriminator == 0 {
		discriminator = leaf.Discriminator
	}
	off := MakeOffset(leaf.Line, discriminator)
	pc := sym.PosCounts[off]
	pc.Count += count
	pc.NumInst += uint64(numDups)
	sym.PosCounts[off] = pc
}

// Symbol returns a copy of the inline tree of the function name.
func (m *SymbolMap) Symbol(name string) (*Symbol, bool) {
	symbols := m.symbols.RLock()
	defer m.symbols.RUnlock(&symbols)
	sym, ok := (*symbols)[name]
	if !ok {
		return nil, false
	}
	return sym.clone(), true
}

// Names returns the sorted names of all top-level functions.
func (m *SymbolMap) Names() []string {
	symbols := m.symbols.RLock()
	defer m.symbols.RUnlock(&symbols)
	return libpf.SortedKeys(*symbols)
}

// TotalCount returns the sum of the counts of all top-level functions.
func (m *SymbolMap) TotalCount() uint64 {
	symbols := m.symbols.RLock()
	defer m.symbols.RUnlock(&symbols)
	var total uint64
	for _, sym := range *symbols {
		total += sym.TotalCount
	}
	return total
}
