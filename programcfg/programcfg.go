// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package programcfg builds the control flow graphs of all functions of a
// program from its basic block address map and an aggregated branch profile.
package programcfg // import "go.opentelemetry.io/propeller/programcfg"

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/propeller/bbaddrmap"
	"go.opentelemetry.io/propeller/cfg"
	"go.opentelemetry.io/propeller/instmap"
	"go.opentelemetry.io/propeller/libpf"
	"go.opentelemetry.io/propeller/profiledata"
	"go.opentelemetry.io/propeller/stats"
)

var (
	// ErrBlockOutsideSymbol marks a function with a block past the end of its
	// symbol.
	ErrBlockOutsideSymbol = errors.New("basic block outside of function symbol")

	// ErrOverlappingFunction marks a function starting inside the address
	// range of another function.
	ErrOverlappingFunction = errors.New("function overlaps another function")
)

// Options configures Build.
type Options struct {
	// Parallelism bounds the number of functions processed concurrently.
	// Zero or less uses runtime.NumCPU().
	Parallelism int

	// Resolver and Aggregator enable building an instruction map per
	// function. Both must be safe for concurrent use.
	Resolver   instmap.InlineStackResolver
	Aggregator instmap.SourceCountAggregator

	// SampledAddresses restricts instruction maps to functions containing at
	// least one sampled address. nil builds instruction maps for all functions.
	SampledAddresses libpf.Set[libpf.Address]
}

// ProgramCFG holds the finalized graphs of all functions.
type ProgramCFG struct {
	cfgs     []*cfg.ControlFlowGraph
	byName   map[string]*cfg.ControlFlowGraph
	instMaps map[*cfg.ControlFlowGraph]*instmap.InstructionMap
	stats    *stats.PropellerStats
}

// CFGs returns all graphs ordered by function ordinal.
func (p *ProgramCFG) CFGs() []*cfg.ControlFlowGraph { return p.cfgs }

// Stats returns the merged statistics of the construction.
func (p *ProgramCFG) Stats() *stats.PropellerStats { return p.stats }

// CFGByName returns the graph of the function with the given primary or alias
// name.
func (p *ProgramCFG) CFGByName(name string) (*cfg.ControlFlowGraph, bool) {
	g, ok := p.byName[name]
	return g, ok
}

// HotCFGs returns all graphs with at least one executed block, ordered by
// function ordinal.
func (p *ProgramCFG) HotCFGs() []*cfg.ControlFlowGraph {
	var hot []*cfg.ControlFlowGraph
	for _, g := range p.cfgs {
		if g.IsHot() {
			hot = append(hot, g)
		}
	}
	return hot
}

// InstructionMap returns the instruction map built for g, if any.
func (p *ProgramCFG) InstructionMap(g *cfg.ControlFlowGraph) (*instmap.InstructionMap, bool) {
	m, ok := p.instMaps[g]
	return m, ok
}

// job is the unit of work for one function. Only the goroutine processing the
// job touches it during the parallel phases.
type job struct {
	ordinal     uint64
	baseOrdinal uint64
	fn          *bbaddrmap.Function
	names       []string
	// End of the function symbol, or of the last block for unsized symbols.
	end libpf.Address

	builder *cfg.Builder
	stats   *stats.PropellerStats
	instMap *instmap.InstructionMap
	events  []edgeEvent
	graph   *cfg.ControlFlowGraph
	err     error
}

func (j *job) fail(err error) {
	if j.err == nil {
		j.err = err
	}
}

// Build creates, populates and finalizes the graphs of all functions of
// program. Anomalies in the input are counted in the returned statistics.
// A function whose construction fails is left out of the result; the error
// is only returned if ctx is cancelled.
func Build(ctx context.Context, program *bbaddrmap.Program, profile *profiledata.Aggregation,
	opts Options) (*ProgramCFG, error) {
	if err := program.Validate(); err != nil {
		return nil, err
	}
	if profile == nil {
		profile = profiledata.NewAggregation()
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	st := stats.New()
	jobs := foldSymbols(program, st)
	rejectOverlaps(jobs)

	if err := createNodes(ctx, jobs, &opts, parallelism); err != nil {
		return nil, err
	}
	ix := newBlockIndex(jobs)
	st.BranchCountersAccumulated += uint64(profile.NumBranchCounters())
	inter := partitionEvents(jobs, ix, profile, st)

	if err := runParallel(ctx, jobs, parallelism, applyIntraEvents); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	applyInterEvents(inter)

	if err := runParallel(ctx, jobs, parallelism, finalize); err != nil {
		return nil, err
	}
	return collect(jobs, st), nil
}

// foldSymbols assigns names to the functions of the block map. The primary
// name is the first symbol at the function address, further symbols at the
// same address are aliases. Block ordinals are numbered across all functions
// of the block map, so they stay stable when functions are dropped.
func foldSymbols(program *bbaddrmap.Program, st *stats.PropellerStats) []*job {
	seen := make(map[libpf.SymbolName]libpf.Address)
	jobs := make([]*job, 0, len(program.Functions))
	var base uint64
	for i := range program.Functions {
		fn := &program.Functions[i]
		baseOrdinal := base
		base += uint64(len(fn.Blocks))

		syms := program.Symbols.SymbolsAt(fn.Address)
		if len(syms) == 0 {
			st.BBAddrMapFunctionDoesNotHaveSymtabEntry++
			log.Debugf("No symbol for function at %v", fn.Address)
			continue
		}
		var names []string
		for _, sym := range syms {
			if _, ok := seen[sym.Name]; ok {
				st.DuplicateSymbols++
				log.Debugf("Dropping duplicate symbol %s at %v", sym.Name, fn.Address)
				continue
			}
			seen[sym.Name] = fn.Address
			names = append(names, string(sym.Name))
		}
		if len(names) == 0 {
			continue
		}
		j := &job{
			ordinal:     uint64(i),
			baseOrdinal: baseOrdinal,
			fn:          fn,
			names:       names,
			end:         fn.End(),
			stats:       stats.New(),
		}
		if size := syms[0].Size; size > 0 {
			j.end = fn.Address + libpf.Address(size)
			if fn.End() > j.end {
				j.fail(fmt.Errorf("%s: blocks end at %v, symbol at %v: %w",
					names[0], fn.End(), j.end, ErrBlockOutsideSymbol))
			}
		}
		jobs = append(jobs, j)
	}
	return jobs
}

// rejectOverlaps fails every function that starts before the end of a
// function at a lower address.
func rejectOverlaps(jobs []*job) {
	sorted := make([]*job, 0, len(jobs))
	for _, j := range jobs {
		if j.err == nil && len(j.fn.Blocks) > 0 {
			sorted = append(sorted, j)
		}
	}
	slices.SortStableFunc(sorted, func(a, b *job) int {
		return cmp.Compare(a.fn.Address, b.fn.Address)
	})
	var prev *job
	for _, j := range sorted {
		if prev != nil && j.fn.Address < prev.end {
			j.fail(fmt.Errorf("%s at %v inside %s [%v, %v): %w", j.names[0],
				j.fn.Address, prev.names[0], prev.fn.Address, prev.end,
				ErrOverlappingFunction))
			continue
		}
		prev = j
	}
}

// runParallel calls fn for every job that has not failed yet, with at most
// parallelism calls in flight.
func runParallel(ctx context.Context, jobs []*job, parallelism int, fn func(*job)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, j := range jobs {
		if j.err != nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(j)
			return nil
		})
	}
	return g.Wait()
}

func createNodes(ctx context.Context, jobs []*job, opts *Options, parallelism int) error {
	var sampled []libpf.Address
	if opts.SampledAddresses != nil {
		sampled = libpf.SortedKeys(opts.SampledAddresses)
	}
	buildInstMaps := opts.Resolver != nil && opts.Aggregator != nil

	return runParallel(ctx, jobs, parallelism, func(j *job) {
		j.builder = cfg.NewBuilder(j.names, j.stats)
		if err := j.builder.CreateNodes(j.fn.Blocks, j.ordinal, j.baseOrdinal); err != nil {
			j.fail(err)
			return
		}
		if !buildInstMaps ||
			(sampled != nil && !containsSample(sampled, j.fn.Address, j.end)) {
			return
		}
		j.instMap = instmap.New(opts.Resolver, opts.Aggregator)
		if err := j.instMap.BuildPerFunctionInstructionMap(j.names[0], j.fn.Address,
			j.end); err != nil {
			j.fail(err)
		}
	})
}

func containsSample(sorted []libpf.Address, start, end libpf.Address) bool {
	i, _ := slices.BinarySearch(sorted, start)
	return i < len(sorted) && sorted[i] < end
}

func applyIntraEvents(j *job) {
	for _, ev := range j.events {
		if err := applyEvent(j.builder, j.stats, ev); err != nil {
			j.fail(err)
			return
		}
	}
	j.events = nil
}

// applyInterEvents creates the edges crossing functions. Each of them touches
// two graphs, so they are applied sequentially.
func applyInterEvents(events []interEvent) {
	for _, ev := range events {
		if ev.src.err != nil || ev.sink.err != nil {
			continue
		}
		if err := applyEvent(ev.src.builder, ev.src.stats, ev.edgeEvent); err != nil {
			ev.src.fail(err)
		}
	}
}

// applyEvent adds the weight of ev to the edge between its nodes. If an edge
// of another kind already connects the nodes, that edge receives the weight.
func applyEvent(b *cfg.Builder, st *stats.PropellerStats, ev edgeEvent) error {
	if e := b.FindEdge(ev.from, ev.to); e != nil {
		if e.Kind() != ev.kind {
			st.EdgesWithSameSrcSinkButDifferentType++
			log.Debugf("Edge %v also seen as %s", e, ev.kind)
		}
		return b.IncrementEdgeWeight(e, ev.weight)
	}
	_, err := b.CreateEdge(ev.from, ev.to, ev.weight, ev.kind)
	return err
}

func finalize(j *job) {
	g, err := j.builder.Finalize()
	if err != nil {
		j.fail(err)
		return
	}
	j.graph = g
}

// collect merges the per function results. Failed functions are counted and
// left out.
func collect(jobs []*job, st *stats.PropellerStats) *ProgramCFG {
	p := &ProgramCFG{
		byName:   make(map[string]*cfg.ControlFlowGraph),
		instMaps: make(map[*cfg.ControlFlowGraph]*instmap.InstructionMap),
		stats:    st,
	}
	for _, j := range jobs {
		st.Merge(j.stats)
		if j.err != nil || j.graph == nil {
			st.FunctionsFailed++
			log.Errorf("Failed to build CFG for %s: %v", j.names[0], j.err)
			continue
		}
		g := j.graph
		p.cfgs = append(p.cfgs, g)
		for _, name := range g.Names() {
			p.byName[name] = g
		}
		if j.instMap != nil {
			p.instMaps[g] = j.instMap
		}
		st.CFGsCreated++
		if g.IsHot() {
			st.HotFunctions++
		}
		if g.NumHotLandingPads() > 0 {
			st.CFGsWithHotLandingPads++
		}
	}
	slices.SortFunc(p.cfgs, func(a, b *cfg.ControlFlowGraph) int {
		return cmp.Compare(a.FunctionOrdinal(), b.FunctionOrdinal())
	})
	return p
}
