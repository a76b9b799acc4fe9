// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package bbaddrmap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/propeller/libpf"
)

const sampleMap = `
functions:
  - address: 0x1000
    blocks:
      - {address: 0x1000, size: 0x10}
      - {address: 0x1010, size: 0x8, landing_pad: true}
  - address: 0x2000
    blocks:
      - {address: 0x2000, size: 0x4}
symbols:
  - {name: foo, address: 0x1000, size: 0x18}
  - {name: foo_alias, address: 0x1000, size: 0x18}
  - {name: bar, address: 0x2000, size: 0x4}
`

func TestLoad(t *testing.T) {
	prog, err := Load(strings.NewReader(sampleMap))
	require.NoError(t, err)
	require.Len(t, prog.Functions, 2)

	foo := prog.Functions[0]
	assert.Equal(t, libpf.Address(0x1000), foo.Address)
	assert.Equal(t, libpf.Address(0x1018), foo.End())
	require.Len(t, foo.Blocks, 2)
	assert.False(t, foo.Blocks[0].IsLandingPad)
	assert.True(t, foo.Blocks[1].IsLandingPad)
	assert.Equal(t, libpf.Address(0x1018), foo.Blocks[1].End())

	assert.Equal(t, 3, prog.Symbols.Len())
	assert.Len(t, prog.Symbols.SymbolsAt(0x1000), 2)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"unknown field": "functions: []\nbogus: 1\n",
		"entry mismatch": `
functions:
  - address: 0x1000
    blocks:
      - {address: 0x1004, size: 0x10}
`,
		"unsorted blocks": `
functions:
  - address: 0x1000
    blocks:
      - {address: 0x1000, size: 0x10}
      - {address: 0x0ff0, size: 0x10}
`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}
