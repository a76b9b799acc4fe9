// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package programcfg // import "go.opentelemetry.io/propeller/programcfg"

import (
	"cmp"
	"slices"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/propeller/cfg"
	"go.opentelemetry.io/propeller/profiledata"
	"go.opentelemetry.io/propeller/stats"
)

type edgeEvent struct {
	from, to *cfg.Node
	weight   uint64
	kind     cfg.EdgeKind
}

type interEvent struct {
	edgeEvent
	src, sink *job
}

func sortedPairs(counts map[profiledata.AddressPair]uint64) []profiledata.AddressPair {
	pairs := make([]profiledata.AddressPair, 0, len(counts))
	for pair := range counts {
		pairs = append(pairs, pair)
	}
	slices.SortFunc(pairs, func(a, b profiledata.AddressPair) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To))
	})
	return pairs
}

// partitionEvents maps the profile onto nodes. Events within one function are
// queued on the job of that function, events crossing functions are returned.
// Events are processed in address order, so the first kind seen for a pair of
// nodes is deterministic.
func partitionEvents(jobs []*job, ix *blockIndex, profile *profiledata.Aggregation,
	st *stats.PropellerStats) []interEvent {
	jobOf := make(map[*cfg.ControlFlowGraph]*job, len(jobs))
	for _, j := range jobs {
		if j.err == nil && j.builder.NumNodes() > 0 {
			jobOf[j.builder.NodeAt(0).Graph()] = j
		}
	}

	var inter []interEvent
	queue := func(ev edgeEvent) {
		src, sink := jobOf[ev.from.Graph()], jobOf[ev.to.Graph()]
		if src == sink {
			src.events = append(src.events, ev)
			return
		}
		inter = append(inter, interEvent{edgeEvent: ev, src: src, sink: sink})
	}

	for _, pair := range sortedPairs(profile.Branches) {
		from := ix.find(pair.From)
		to := ix.find(pair.To)
		kind := cfg.EdgeKindBranchOrFallthrough
		if entry := ix.entry(pair.To); entry != nil {
			to = entry
			kind = cfg.EdgeKindCall
		}
		if from == nil || to == nil {
			st.BranchEventsOutsideBlocks++
			log.Debugf("Branch %v -> %v is outside of all blocks", pair.From, pair.To)
			continue
		}
		if kind != cfg.EdgeKindCall && from.Graph() != to.Graph() {
			kind = cfg.EdgeKindReturn
		}
		queue(edgeEvent{from: from, to: to, weight: profile.Branches[pair], kind: kind})
	}

	for _, pair := range sortedPairs(profile.Fallthroughs) {
		from := ix.find(pair.From)
		to := ix.find(pair.To)
		if from == nil || to == nil || from.Graph() != to.Graph() ||
			to.BBIndex() < from.BBIndex() {
			st.FallthroughRangesDropped++
			log.Debugf("Dropping fallthrough range %v -> %v", pair.From, pair.To)
			continue
		}
		j := jobOf[from.Graph()]
		weight := profile.Fallthroughs[pair]
		for i := from.BBIndex(); i < to.BBIndex(); i++ {
			queue(edgeEvent{
				from:   j.builder.NodeAt(i),
				to:     j.builder.NodeAt(i + 1),
				weight: weight,
				kind:   cfg.EdgeKindBranchOrFallthrough,
			})
		}
	}
	return inter
}
