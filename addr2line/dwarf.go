// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package addr2line // import "go.opentelemetry.io/propeller/addr2line"

import (
	"cmp"
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"sort"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"go.opentelemetry.io/propeller/instmap"
	"go.opentelemetry.io/propeller/libpf"
)

// scope is a subprogram or an inlined subroutine. The children of a scope are
// the subroutines inlined directly into it.
type scope struct {
	offset   dwarf.Offset
	ranges   [][2]uint64
	unit     *unit
	callFile string
	callLine uint32
	children []*scope
}

func (s *scope) contains(addr uint64) bool {
	for _, r := range s.ranges {
		if addr >= r[0] && addr < r[1] {
			return true
		}
	}
	return false
}

// unit holds the sorted line table of one compilation unit.
type unit struct {
	rows []dwarf.LineEntry
}

// row returns the line table row covering addr.
func (u *unit) row(addr uint64) (dwarf.LineEntry, bool) {
	i := sort.Search(len(u.rows), func(i int) bool {
		return u.rows[i].Address > addr
	}) - 1
	if i < 0 || u.rows[i].EndSequence {
		return dwarf.LineEntry{}, false
	}
	return u.rows[i], true
}

type subprogramRange struct {
	low, high uint64
	scope     *scope
}

// nameRef records how the name of a debug info entry is found.
type nameRef struct {
	name   string
	origin dwarf.Offset
	spec   dwarf.Offset
}

// DWARF resolves inline stacks from the DWARF debug information of an ELF
// file. The index is built upfront, lookups are safe for concurrent use.
type DWARF struct {
	file        *elf.File
	subprograms []subprogramRange
	names       map[dwarf.Offset]nameRef
}

var _ instmap.InlineStackResolver = (*DWARF)(nil)

// OpenDWARF opens the ELF file at path and indexes its debug information.
func OpenDWARF(path string) (*DWARF, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	d, err := NewDWARF(f)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to index %s: %w", path, err), f.Close())
	}
	d.file = f
	return d, nil
}

// NewDWARF indexes the debug information of f. The caller keeps ownership of f.
func NewDWARF(f *elf.File) (*DWARF, error) {
	data, err := f.DWARF()
	if err != nil {
		return nil, err
	}
	d := &DWARF{names: make(map[dwarf.Offset]nameRef)}
	if err := d.index(data); err != nil {
		return nil, err
	}
	slices.SortFunc(d.subprograms, func(a, b subprogramRange) int {
		return cmp.Compare(a.low, b.low)
	})
	log.Debugf("Indexed %d subprogram ranges", len(d.subprograms))
	return d, nil
}

func (d *DWARF) index(data *dwarf.Data) error {
	r := data.Reader()
	var (
		u     *unit
		files []*dwarf.LineFile
		// One element per open entry with children: the innermost enclosing
		// scope, nil outside any subprogram.
		parents []*scope
	)
	for {
		e, err := r.Next()
		if err != nil {
			return err
		}
		if e == nil {
			return nil
		}
		if e.Tag == 0 {
			if len(parents) > 0 {
				parents = parents[:len(parents)-1]
			}
			continue
		}

		var parent *scope
		if len(parents) > 0 {
			parent = parents[len(parents)-1]
		}
		d.recordName(e)

		current := parent
		switch e.Tag {
		case dwarf.TagCompileUnit, dwarf.TagPartialUnit:
			u, files, err = readUnit(data, e)
			if err != nil {
				return err
			}
			current = nil
		case dwarf.TagSubprogram, dwarf.TagInlinedSubroutine:
			ranges, err := data.Ranges(e)
			if err != nil {
				return err
			}
			if len(ranges) == 0 {
				break
			}
			s := &scope{offset: e.Offset, ranges: ranges, unit: u}
			if e.Tag == dwarf.TagSubprogram || parent == nil {
				for _, rng := range ranges {
					d.subprograms = append(d.subprograms,
						subprogramRange{low: rng[0], high: rng[1], scope: s})
				}
			} else {
				if idx, ok := e.Val(dwarf.AttrCallFile).(int64); ok &&
					idx >= 0 && int(idx) < len(files) && files[idx] != nil {
					s.callFile = files[idx].Name
				}
				if line, ok := e.Val(dwarf.AttrCallLine).(int64); ok {
					s.callLine = uint32(line)
				}
				parent.children = append(parent.children, s)
			}
			current = s
		}
		if e.Children {
			parents = append(parents, current)
		}
	}
}

func (d *DWARF) recordName(e *dwarf.Entry) {
	var ref nameRef
	if name, ok := e.Val(dwarf.AttrLinkageName).(string); ok {
		ref.name = name
	} else if name, ok := e.Val(dwarf.AttrName).(string); ok {
		ref.name = name
	}
	ref.origin, _ = e.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset)
	ref.spec, _ = e.Val(dwarf.AttrSpecification).(dwarf.Offset)
	if ref != (nameRef{}) {
		d.names[e.Offset] = ref
	}
}

func readUnit(data *dwarf.Data, e *dwarf.Entry) (*unit, []*dwarf.LineFile, error) {
	u := &unit{}
	lr, err := data.LineReader(e)
	if err != nil || lr == nil {
		return u, nil, err
	}
	for {
		var row dwarf.LineEntry
		if err := lr.Next(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, err
		}
		u.rows = append(u.rows, row)
	}
	// Sequence ends sort before rows starting at the same address.
	slices.SortStableFunc(u.rows, func(a, b dwarf.LineEntry) int {
		if a.Address != b.Address {
			return cmp.Compare(a.Address, b.Address)
		}
		switch {
		case a.EndSequence == b.EndSequence:
			return 0
		case a.EndSequence:
			return -1
		}
		return 1
	})
	return u, lr.Files(), nil
}

// name follows abstract origins and specifications until a name is found.
func (d *DWARF) name(off dwarf.Offset) string {
	for range 8 {
		ref, ok := d.names[off]
		if !ok {
			return ""
		}
		switch {
		case ref.name != "":
			return ref.name
		case ref.origin != 0:
			off = ref.origin
		case ref.spec != 0:
			off = ref.spec
		default:
			return ""
		}
	}
	return ""
}

// InlineStack implements instmap.InlineStackResolver.
func (d *DWARF) InlineStack(addr libpf.Address) instmap.SourceStack {
	pc := uint64(addr)
	i := sort.Search(len(d.subprograms), func(i int) bool {
		return d.subprograms[i].low > pc
	}) - 1
	var outer *scope
	for ; i >= 0; i-- {
		if sp := d.subprograms[i]; pc >= sp.low && pc < sp.high {
			outer = sp.scope
			break
		}
	}
	if outer == nil || outer.unit == nil {
		return nil
	}

	// Outermost first.
	chain := []*scope{outer}
	for s := outer; ; {
		var next *scope
		for _, child := range s.children {
			if child.contains(pc) {
				next = child
				break
			}
		}
		if next == nil {
			break
		}
		chain = append(chain, next)
		s = next
	}

	row, ok := outer.unit.row(pc)
	if !ok {
		return nil
	}
	stack := make(instmap.SourceStack, 0, len(chain))
	loc := instmap.SourceLocation{Line: uint32(row.Line), Discriminator: uint32(row.Discriminator)}
	if row.File != nil {
		loc.DirName, loc.FileName = splitPath(row.File.Name)
	}
	for j := len(chain) - 1; j >= 0; j-- {
		s := chain[j]
		loc.FunctionName = d.name(s.offset)
		stack = append(stack, loc)
		loc = instmap.SourceLocation{Line: s.callLine}
		loc.DirName, loc.FileName = splitPath(s.callFile)
	}
	return stack
}

func splitPath(name string) (dir, file string) {
	if name == "" {
		return "", ""
	}
	return path.Dir(name), path.Base(name)
}

// Close releases the ELF file opened by OpenDWARF.
func (d *DWARF) Close() error {
	if d.file == nil {
		return nil
	}
	return d.file.Close()
}
