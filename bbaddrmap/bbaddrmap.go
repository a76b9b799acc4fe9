// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package bbaddrmap describes the basic block address map of a binary: for each
// function, the ordered list of its basic blocks, plus the symbol table used to
// name the functions.
package bbaddrmap // import "go.opentelemetry.io/propeller/bbaddrmap"

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"go.opentelemetry.io/propeller/libpf"
)

// BlockEntry describes one basic block.
type BlockEntry struct {
	Address      libpf.Address
	Size         uint64
	IsLandingPad bool
}

// End returns the first address past the block.
func (b BlockEntry) End() libpf.Address {
	return b.Address + libpf.Address(b.Size)
}

// Function is the block map of one function. Blocks[0] is the entry block.
type Function struct {
	Address libpf.Address
	Blocks  []BlockEntry
}

// End returns the first address past the last block of the function.
func (f *Function) End() libpf.Address {
	end := f.Address
	for _, b := range f.Blocks {
		end = max(end, b.End())
	}
	return end
}

// Program is the block map of a whole binary.
type Program struct {
	Functions []Function
	Symbols   *libpf.SymbolMap
}

// Validate checks the structural requirements of the block map.
func (p *Program) Validate() error {
	if p.Symbols == nil {
		return errors.New("program has no symbol table")
	}
	for i := range p.Functions {
		f := &p.Functions[i]
		if len(f.Blocks) == 0 {
			continue
		}
		if f.Blocks[0].Address != f.Address {
			return fmt.Errorf("function %v: entry block starts at %v", f.Address,
				f.Blocks[0].Address)
		}
		for j := 1; j < len(f.Blocks); j++ {
			if f.Blocks[j].Address < f.Blocks[j-1].Address {
				return fmt.Errorf("function %v: block %d at %v precedes block %d at %v",
					f.Address, j, f.Blocks[j].Address, j-1, f.Blocks[j-1].Address)
			}
		}
	}
	return nil
}

type yamlBlock struct {
	Address    uint64 `yaml:"address"`
	Size       uint64 `yaml:"size"`
	LandingPad bool   `yaml:"landing_pad,omitempty"`
}

type yamlFunction struct {
	Address uint64      `yaml:"address"`
	Blocks  []yamlBlock `yaml:"blocks"`
}

type yamlSymbol struct {
	Name    string `yaml:"name"`
	Address uint64 `yaml:"address"`
	Size    uint64 `yaml:"size"`
}

type yamlProgram struct {
	Functions []yamlFunction `yaml:"functions"`
	Symbols   []yamlSymbol   `yaml:"symbols"`
}

// Load reads a YAML description of a block map:
//
//	functions:
//	  - address: 0x1000
//	    blocks:
//	      - {address: 0x1000, size: 0x10}
//	      - {address: 0x1010, size: 0x8, landing_pad: true}
//	symbols:
//	  - {name: foo, address: 0x1000, size: 0x18}
func Load(r io.Reader) (*Program, error) {
	var in yamlProgram
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to decode block map: %w", err)
	}

	prog := &Program{
		Functions: make([]Function, 0, len(in.Functions)),
		Symbols:   libpf.NewSymbolMap(len(in.Symbols)),
	}
	for _, yf := range in.Functions {
		f := Function{
			Address: libpf.Address(yf.Address),
			Blocks:  make([]BlockEntry, 0, len(yf.Blocks)),
		}
		for _, yb := range yf.Blocks {
			f.Blocks = append(f.Blocks, BlockEntry{
				Address:      libpf.Address(yb.Address),
				Size:         yb.Size,
				IsLandingPad: yb.LandingPad,
			})
		}
		prog.Functions = append(prog.Functions, f)
	}
	for _, ys := range in.Symbols {
		prog.Symbols.Add(libpf.Symbol{
			Name:    libpf.SymbolName(ys.Name),
			Address: libpf.Address(ys.Address),
			Size:    ys.Size,
		})
	}
	prog.Symbols.Finalize()

	if err := prog.Validate(); err != nil {
		return nil, err
	}
	return prog, nil
}
