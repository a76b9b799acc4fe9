// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package cfgfixture

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/propeller/bbaddrmap"
	"go.opentelemetry.io/propeller/profiledata"
	"go.opentelemetry.io/propeller/programcfg"
)

const blockMap = `
functions:
  - address: 0x1000
    blocks:
      - {address: 0x1000, size: 0x10}
      - {address: 0x1010, size: 0x8, landing_pad: true}
      - {address: 0x1018, size: 0x8}
  - address: 0x2000
    blocks:
      - {address: 0x2000, size: 0x20}
symbols:
  - {name: _Z4mainv, address: 0x1000, size: 0x20}
  - {name: _Z6calleev, address: 0x2000, size: 0x20}
`

const branches = `
B 100c 1018 9
B 1014 2000 4
B 201c 1010 4
F 1018 101c 9
F 1000 100c 3
`

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	program, err := bbaddrmap.Load(strings.NewReader(blockMap))
	require.NoError(t, err)
	profile, err := profiledata.ReadBranchAggregate(strings.NewReader(branches))
	require.NoError(t, err)
	p, err := programcfg.Build(context.Background(), program, profile, programcfg.Options{})
	require.NoError(t, err)
	return FromProgram(p.CFGs())
}

func TestFromProgram(t *testing.T) {
	snap := testSnapshot(t)
	expected := &Snapshot{Functions: []Function{
		{
			Names:       []string{"_Z4mainv"},
			Ordinal:     0,
			BaseOrdinal: 0,
			Nodes: []Node{
				// The entry block has no incoming call, so its frequency is
				// its outgoing weight: max(inter-in 0, intra-out 9 + inter-out 0).
				// The call of weight 4 leaves bb 1, not the entry.
				{Address: 0x1000, Size: 0x10, Freq: 9},
				{Address: 0x1010, Size: 0x8, LandingPad: true, Freq: 4},
				{Address: 0x1018, Size: 0x8, Freq: 9},
			},
			Edges: []Edge{
				{Src: NodeRef{0, 0}, Sink: NodeRef{0, 2}, Kind: "BranchOrFallthrough", Weight: 9},
				{Src: NodeRef{0, 1}, Sink: NodeRef{1, 0}, Kind: "Call", Weight: 4},
			},
		},
		{
			Names:       []string{"_Z6calleev"},
			Ordinal:     1,
			BaseOrdinal: 3,
			// max(inter-in 4, inter-out 4)
			Nodes: []Node{{Address: 0x2000, Size: 0x20, Freq: 4}},
			Edges: []Edge{
				{Src: NodeRef{1, 0}, Sink: NodeRef{0, 1}, Kind: "Return", Weight: 4},
			},
		},
	}}
	assert.Empty(t, cmp.Diff(expected, snap))
}

func TestRebuild(t *testing.T) {
	snap := testSnapshot(t)
	graphs, err := snap.Rebuild()
	require.NoError(t, err)
	require.Len(t, graphs, 2)
	assert.Empty(t, cmp.Diff(snap, FromProgram(graphs)))
	assert.Equal(t, 1, graphs[0].NumHotLandingPads())
}

func TestRebuildErrors(t *testing.T) {
	tests := map[string]struct {
		mutate  func(*Snapshot)
		wantErr error
	}{
		"unknown function": {
			mutate:  func(s *Snapshot) { s.Functions[0].Edges[0].Sink.Function = 7 },
			wantErr: ErrUnknownNode,
		},
		"unknown block": {
			mutate:  func(s *Snapshot) { s.Functions[0].Edges[0].Src.BBIndex = 3 },
			wantErr: ErrUnknownNode,
		},
		"unknown kind": {
			mutate: func(s *Snapshot) { s.Functions[1].Edges[0].Kind = "Jump" },
		},
		"duplicate ordinal": {
			mutate: func(s *Snapshot) { s.Functions[1].Ordinal = 0 },
		},
		"no name": {
			mutate: func(s *Snapshot) { s.Functions[1].Names = nil },
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			snap := testSnapshot(t)
			test.mutate(snap)
			_, err := snap.Rebuild()
			require.Error(t, err)
			if test.wantErr != nil {
				assert.ErrorIs(t, err, test.wantErr)
			}
		})
	}
}

func TestCodecs(t *testing.T) {
	tests := map[string]struct {
		write func(*bytes.Buffer, *Snapshot) error
		read  func(*bytes.Buffer) (*Snapshot, error)
		magic bool
	}{
		"msgpack": {
			write: func(b *bytes.Buffer, s *Snapshot) error { return WriteMsgpack(b, s, false) },
			read:  func(b *bytes.Buffer) (*Snapshot, error) { return ReadMsgpack(b) },
		},
		"msgpack zstd": {
			write: func(b *bytes.Buffer, s *Snapshot) error { return WriteMsgpack(b, s, true) },
			read:  func(b *bytes.Buffer) (*Snapshot, error) { return ReadMsgpack(b) },
			magic: true,
		},
		"yaml": {
			write: func(b *bytes.Buffer, s *Snapshot) error { return WriteYAML(b, s) },
			read:  func(b *bytes.Buffer) (*Snapshot, error) { return ReadYAML(b) },
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			snap := testSnapshot(t)
			var buf bytes.Buffer
			require.NoError(t, test.write(&buf, snap))
			assert.Equal(t, test.magic, bytes.HasPrefix(buf.Bytes(), zstdMagic))

			decoded, err := test.read(&buf)
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(snap, decoded, cmpopts.EquateEmpty()))
		})
	}
}

func TestReadYAMLUnknownField(t *testing.T) {
	_, err := ReadYAML(strings.NewReader("functions:\n  - names: [f]\n    color: red\n"))
	require.Error(t, err)
}
