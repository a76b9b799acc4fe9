// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/propeller/internal/controller"

import (
	"math/bits"

	"go.opentelemetry.io/propeller/bbaddrmap"
)

const (
	// resolverCacheMinSize and resolverCacheMaxSize bound the derived size of
	// the inline stack cache.
	resolverCacheMinSize = 4096
	resolverCacheMaxSize = 1 << 20

	// avgInstructionSize is used to estimate the instruction count of a
	// function from its byte size.
	avgInstructionSize = 4
)

// ResolverCacheSize returns the number of inline stacks to cache. A configured
// size is used as is. Otherwise the size is derived from the estimated
// instruction count of the program, as every instruction address is resolved
// once per function. A minimum size is enforced so that small programs keep a
// reasonable hit ratio.
func ResolverCacheSize(configured uint, program *bbaddrmap.Program) uint32 {
	if configured > 0 {
		return uint32(min(configured, resolverCacheMaxSize))
	}

	var bytes uint64
	for i := range program.Functions {
		f := &program.Functions[i]
		bytes += uint64(f.End() - f.Address)
	}

	size := max(uint32(min(bytes/avgInstructionSize, resolverCacheMaxSize)),
		resolverCacheMinSize)
	return nextPowerOfTwo(size)
}

// nextPowerOfTwo returns v if it is a power of two, otherwise the next power
// of two.
func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return 1 << bits.Len32(v-1)
}
