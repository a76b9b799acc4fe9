// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package instmap // import "go.opentelemetry.io/propeller/instmap"

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"go.opentelemetry.io/propeller/libpf"
)

// SourceLocation is one frame of an inline stack.
type SourceLocation struct {
	// FileName is the source file name without the directory.
	FileName string
	// DirName is the compilation directory of FileName.
	DirName string
	// FunctionName is the (mangled) name of the function the frame belongs to.
	FunctionName string
	// Line is the source line number. Zero means unknown.
	Line uint32
	// Discriminator distinguishes multiple blocks attributed to one line.
	Discriminator uint32
}

// String implements fmt.Stringer.
func (l SourceLocation) String() string {
	if l.Discriminator != 0 {
		return fmt.Sprintf("%s:%s:%d.%d", l.FunctionName, l.FileName, l.Line, l.Discriminator)
	}
	return fmt.Sprintf("%s:%s:%d", l.FunctionName, l.FileName, l.Line)
}

// SourceStack is an inline stack, innermost frame first. An empty stack means
// the address could not be resolved.
type SourceStack []SourceLocation

// Hash returns a 64-bit hash over all frames of the stack.
func (s SourceStack) Hash() uint64 {
	var buf []byte
	for _, l := range s {
		buf = appendString(buf, l.FileName)
		buf = appendString(buf, l.DirName)
		buf = appendString(buf, l.FunctionName)
		buf = binary.LittleEndian.AppendUint32(buf, l.Line)
		buf = binary.LittleEndian.AppendUint32(buf, l.Discriminator)
	}
	return xxh3.Hash(buf)
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// Outermost returns the outermost frame, i.e. the function the code was
// inlined into.
func (s SourceStack) Outermost() (SourceLocation, bool) {
	if len(s) == 0 {
		return SourceLocation{}, false
	}
	return s[len(s)-1], true
}

// String implements fmt.Stringer.
func (s SourceStack) String() string {
	frames := make([]string, len(s))
	for i, l := range s {
		frames[i] = l.String()
	}
	return strings.Join(frames, " <- ")
}

// DataSource identifies where a sample count came from.
type DataSource uint8

const (
	// DataSourcePerfData marks counts derived from sampled hardware profiles.
	DataSourcePerfData DataSource = iota
	// DataSourceAutoFDO marks counts read from an existing AutoFDO profile.
	DataSourceAutoFDO
)

func (d DataSource) String() string {
	switch d {
	case DataSourcePerfData:
		return "PerfData"
	case DataSourceAutoFDO:
		return "AutoFDO"
	}
	return fmt.Sprintf("DataSource(%d)", uint8(d))
}

// InlineStackResolver maps an instruction address to its inline stack.
// Implementations shared between goroutines must be safe for concurrent use.
type InlineStackResolver interface {
	InlineStack(addr libpf.Address) SourceStack
}

// SourceCountAggregator accepts sample counts attributed to source locations.
// Implementations shared between goroutines must be safe for concurrent use.
type SourceCountAggregator interface {
	AddSourceCount(name string, stack SourceStack, discriminator uint32, count uint64,
		numDups uint32, source DataSource)
}
