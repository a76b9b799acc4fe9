// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/propeller/internal/controller"

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/ianlancetaylor/demangle"

	"go.opentelemetry.io/propeller/cfg"
	"go.opentelemetry.io/propeller/symbolmap"
)

func entryFreq(g *cfg.ControlFlowGraph) uint64 {
	entry, err := g.EntryNode()
	if err != nil {
		return 0
	}
	return entry.Freq()
}

// writeHotReport writes the n hottest functions by entry frequency with
// demangled names. n == 0 reports all hot functions.
func writeHotReport(w io.Writer, hot []*cfg.ControlFlowGraph, n int) error {
	hot = slices.Clone(hot)
	slices.SortStableFunc(hot, func(a, b *cfg.ControlFlowGraph) int {
		return cmp.Compare(entryFreq(b), entryFreq(a))
	})
	if n > 0 && n < len(hot) {
		hot = hot[:n]
	}
	for _, g := range hot {
		if _, err := fmt.Fprintf(w, "%12d %4d %s\n", entryFreq(g), g.NumNodes(),
			demangle.Filter(g.PrimaryName())); err != nil {
			return err
		}
	}
	return nil
}

func writeSymbols(w io.Writer, symbols *symbolmap.SymbolMap) error {
	var sb strings.Builder
	for _, name := range symbols.Names() {
		sym, ok := symbols.Symbol(name)
		if !ok {
			continue
		}
		sym.Dump(&sb, 0)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
