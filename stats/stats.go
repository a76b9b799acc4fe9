// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package stats aggregates counters describing the construction of control
// flow graphs, including anomalies in the input data. Partial statistics of
// independently built shards are combined with Merge.
package stats // import "go.opentelemetry.io/propeller/stats"

import (
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/propeller/cfg"
)

// PropellerStats holds the counters of one CFG construction run or shard.
// The zero value is ready to use.
type PropellerStats struct {
	BinaryMmapNum                        int64
	PerfFileParsed                       int64
	BranchCountersAccumulated            uint64
	EdgesWithSameSrcSinkButDifferentType uint64
	CFGsCreated                          uint64
	// Number of CFGs which have hot landing pads.
	CFGsWithHotLandingPads                  uint64
	NodesCreated                            uint64
	EdgesCreatedByKind                      map[cfg.EdgeKind]uint64
	TotalEdgeWeightByKind                   map[cfg.EdgeKind]uint64
	DuplicateSymbols                        uint64
	BBAddrMapFunctionDoesNotHaveSymtabEntry uint64
	OriginalIntraScore                      uint64
	OptimizedIntraScore                     uint64
	OriginalInterScore                      uint64
	OptimizedInterScore                     uint64
	HotFunctions                            uint64

	// CreateEdge calls that hit an existing (src, sink, kind) edge.
	DuplicateEdgeCreations uint64
	// Branch events with an endpoint outside of any known block.
	BranchEventsOutsideBlocks uint64
	// Fallthrough ranges that crossed functions or ran backwards.
	FallthroughRangesDropped uint64
	// Functions whose construction failed a precondition.
	FunctionsFailed uint64
}

var _ cfg.Recorder = (*PropellerStats)(nil)

// New returns empty statistics with allocated histograms.
func New() *PropellerStats {
	return &PropellerStats{
		EdgesCreatedByKind:    make(map[cfg.EdgeKind]uint64),
		TotalEdgeWeightByKind: make(map[cfg.EdgeKind]uint64),
	}
}

// RecordNodes implements cfg.Recorder.
func (s *PropellerStats) RecordNodes(n int) {
	s.NodesCreated += uint64(n)
}

// RecordEdge implements cfg.Recorder.
func (s *PropellerStats) RecordEdge(kind cfg.EdgeKind) {
	if s.EdgesCreatedByKind == nil {
		s.EdgesCreatedByKind = make(map[cfg.EdgeKind]uint64)
	}
	s.EdgesCreatedByKind[kind]++
}

// RecordEdgeWeight implements cfg.Recorder.
func (s *PropellerStats) RecordEdgeWeight(kind cfg.EdgeKind, weight uint64) {
	if s.TotalEdgeWeightByKind == nil {
		s.TotalEdgeWeightByKind = make(map[cfg.EdgeKind]uint64)
	}
	s.TotalEdgeWeightByKind[kind] += weight
}

// RecordDuplicateEdge implements cfg.Recorder.
func (s *PropellerStats) RecordDuplicateEdge(cfg.EdgeKind) {
	s.DuplicateEdgeCreations++
}

// TotalEdgesCreated sums the created edges of all kinds.
func (s *PropellerStats) TotalEdgesCreated() uint64 {
	var total uint64
	for _, n := range s.EdgesCreatedByKind {
		total += n
	}
	return total
}

// TotalEdgeWeightCreated sums the edge weight of all kinds.
func (s *PropellerStats) TotalEdgeWeightCreated() uint64 {
	var total uint64
	for _, w := range s.TotalEdgeWeightByKind {
		total += w
	}
	return total
}

// Merge adds all counters of other to s. Merge is associative and
// commutative, so shards may be combined in any order. Merging nil is a no-op.
func (s *PropellerStats) Merge(other *PropellerStats) {
	if other == nil {
		return
	}
	s.BinaryMmapNum += other.BinaryMmapNum
	s.PerfFileParsed += other.PerfFileParsed
	s.BranchCountersAccumulated += other.BranchCountersAccumulated
	s.EdgesWithSameSrcSinkButDifferentType += other.EdgesWithSameSrcSinkButDifferentType
	s.CFGsCreated += other.CFGsCreated
	s.CFGsWithHotLandingPads += other.CFGsWithHotLandingPads
	s.NodesCreated += other.NodesCreated
	for kind, n := range other.EdgesCreatedByKind {
		if s.EdgesCreatedByKind == nil {
			s.EdgesCreatedByKind = make(map[cfg.EdgeKind]uint64)
		}
		s.EdgesCreatedByKind[kind] += n
	}
	for kind, w := range other.TotalEdgeWeightByKind {
		if s.TotalEdgeWeightByKind == nil {
			s.TotalEdgeWeightByKind = make(map[cfg.EdgeKind]uint64)
		}
		s.TotalEdgeWeightByKind[kind] += w
	}
	s.DuplicateSymbols += other.DuplicateSymbols
	s.BBAddrMapFunctionDoesNotHaveSymtabEntry += other.BBAddrMapFunctionDoesNotHaveSymtabEntry
	s.OriginalIntraScore += other.OriginalIntraScore
	s.OptimizedIntraScore += other.OptimizedIntraScore
	s.OriginalInterScore += other.OriginalInterScore
	s.OptimizedInterScore += other.OptimizedInterScore
	s.HotFunctions += other.HotFunctions
	s.DuplicateEdgeCreations += other.DuplicateEdgeCreations
	s.BranchEventsOutsideBlocks += other.BranchEventsOutsideBlocks
	s.FallthroughRangesDropped += other.FallthroughRangesDropped
	s.FunctionsFailed += other.FunctionsFailed
}

// Clone returns a deep copy of s.
func (s *PropellerStats) Clone() *PropellerStats {
	c := New()
	c.Merge(s)
	return c
}

// Field is a named counter value.
type Field struct {
	Name  string
	Value uint64
}

// Fields returns all counters in a fixed order. Histogram entries are
// reported for every edge kind, including zero values.
func (s *PropellerStats) Fields() []Field {
	fields := []Field{
		{"binary_mmap_num", uint64(s.BinaryMmapNum)},
		{"perf_file_parsed", uint64(s.PerfFileParsed)},
		{"br_counters_accumulated", s.BranchCountersAccumulated},
		{"edges_with_same_src_sink_but_different_type",
			s.EdgesWithSameSrcSinkButDifferentType},
		{"cfgs_created", s.CFGsCreated},
		{"cfgs_with_hot_landing_pads", s.CFGsWithHotLandingPads},
		{"nodes_created", s.NodesCreated},
	}
	for _, kind := range cfg.EdgeKinds {
		fields = append(fields,
			Field{"edges_created." + kind.String(), s.EdgesCreatedByKind[kind]},
			Field{"total_edge_weight." + kind.String(), s.TotalEdgeWeightByKind[kind]})
	}
	return append(fields,
		Field{"duplicate_symbols", s.DuplicateSymbols},
		Field{"bbaddrmap_function_does_not_have_symtab_entry",
			s.BBAddrMapFunctionDoesNotHaveSymtabEntry},
		Field{"original_intra_score", s.OriginalIntraScore},
		Field{"optimized_intra_score", s.OptimizedIntraScore},
		Field{"original_inter_score", s.OriginalInterScore},
		Field{"optimized_inter_score", s.OptimizedInterScore},
		Field{"hot_functions", s.HotFunctions},
		Field{"duplicate_edge_creations", s.DuplicateEdgeCreations},
		Field{"branch_events_outside_blocks", s.BranchEventsOutsideBlocks},
		Field{"fallthrough_ranges_dropped", s.FallthroughRangesDropped},
		Field{"functions_failed", s.FunctionsFailed},
	)
}

// LogSummary logs the counters relevant for judging input data quality.
func (s *PropellerStats) LogSummary() {
	log.Infof("Created %d CFGs (%d hot) with %d nodes and %d edges of total weight %d",
		s.CFGsCreated, s.HotFunctions, s.NodesCreated, s.TotalEdgesCreated(),
		s.TotalEdgeWeightCreated())
	for _, kind := range cfg.EdgeKinds {
		log.Infof("Edges of kind %s: %d, weight %d", kind,
			s.EdgesCreatedByKind[kind], s.TotalEdgeWeightByKind[kind])
	}
	if s.CFGsWithHotLandingPads > 0 {
		log.Infof("%d CFGs have hot landing pads", s.CFGsWithHotLandingPads)
	}

	anomalies := []Field{
		{"duplicate symbols", s.DuplicateSymbols},
		{"functions without symtab entry", s.BBAddrMapFunctionDoesNotHaveSymtabEntry},
		{"edges with same src/sink but different kind",
			s.EdgesWithSameSrcSinkButDifferentType},
		{"duplicate edge creations", s.DuplicateEdgeCreations},
		{"branch events outside blocks", s.BranchEventsOutsideBlocks},
		{"fallthrough ranges dropped", s.FallthroughRangesDropped},
		{"failed functions", s.FunctionsFailed},
	}
	for _, a := range anomalies {
		if a.Value > 0 {
			log.Warnf("Input anomaly: %d %s", a.Value, a.Name)
		}
	}
}
