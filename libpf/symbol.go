// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libpf // import "go.opentelemetry.io/propeller/libpf"

import (
	"cmp"
	"slices"
	"sort"
)

// SymbolName represents the name of a symbol
type SymbolName string

// SymbolNameUnknown is the value returned by SymbolMap functions when address has no symbol info.
const SymbolNameUnknown = ""

// Symbol represents a function symbol of the profiled binary.
type Symbol struct {
	Name    SymbolName
	Address Address
	Size    uint64
}

// SymbolMap represents collections of symbols that can be resolved or reverse mapped.
// Symbols sharing an address are aliases (e.g. produced by identical code folding)
// and are kept in the order they were added.
type SymbolMap struct {
	addressToSymbol []Symbol
	finalized       bool
}

func NewSymbolMap(capacity int) *SymbolMap {
	return &SymbolMap{
		addressToSymbol: make([]Symbol, 0, capacity),
	}
}

// Add a symbol to the map
func (symmap *SymbolMap) Add(s Symbol) {
	symmap.addressToSymbol = append(symmap.addressToSymbol, s)
	symmap.finalized = false
}

// Finalize symbol map by sorting it by address after all symbols are inserted
// via Add() calls.
func (symmap *SymbolMap) Finalize() {
	slices.SortStableFunc(symmap.addressToSymbol, func(a, b Symbol) int {
		return cmp.Compare(a.Address, b.Address)
	})
	symmap.finalized = true
}

func (symmap *SymbolMap) ensureFinalized() {
	if !symmap.finalized {
		symmap.Finalize()
	}
}

// SymbolsAt returns all symbols whose start address equals addr, in the order
// they were added.
func (symmap *SymbolMap) SymbolsAt(addr Address) []Symbol {
	symmap.ensureFinalized()
	lo := sort.Search(len(symmap.addressToSymbol), func(i int) bool {
		return symmap.addressToSymbol[i].Address >= addr
	})
	hi := lo
	for hi < len(symmap.addressToSymbol) && symmap.addressToSymbol[hi].Address == addr {
		hi++
	}
	return symmap.addressToSymbol[lo:hi]
}

// LookupByAddress translates the address to a symbolic information. Return empty string and
// absolute address if it did not match any symbol.
func (symmap *SymbolMap) LookupByAddress(val Address) (SymbolName, Address, bool) {
	symmap.ensureFinalized()
	i := sort.Search(len(symmap.addressToSymbol), func(i int) bool {
		return symmap.addressToSymbol[i].Address > val
	}) - 1
	// Prefer the first alias added at that address.
	for i > 0 && symmap.addressToSymbol[i-1].Address == symmap.addressToSymbol[i].Address {
		i--
	}
	if i >= 0 {
		sym := symmap.addressToSymbol[i]
		if sym.Size == 0 || val < sym.Address+Address(sym.Size) {
			return sym.Name, val - sym.Address, true
		}
	}
	return SymbolNameUnknown, val, false
}

// Len returns the number of elements in the map.
func (symmap *SymbolMap) Len() int {
	return len(symmap.addressToSymbol)
}
