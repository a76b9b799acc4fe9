// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package addr2line resolves instruction addresses to inline stacks.
package addr2line // import "go.opentelemetry.io/propeller/addr2line"

import (
	"sync/atomic"

	lru "github.com/elastic/go-freelru"

	"go.opentelemetry.io/propeller/instmap"
	"go.opentelemetry.io/propeller/libpf"
)

// Statistics of a Cached resolver.
type Statistics struct {
	// Number of lookups answered from the cache.
	Hit uint64
	// Number of lookups forwarded to the underlying resolver.
	Miss uint64
}

// Cached memoizes the inline stacks of an underlying resolver. Adjacent
// addresses are usually queried by concurrent instruction map builds, so the
// cache is safe for concurrent use.
type Cached struct {
	resolver instmap.InlineStackResolver
	cache    *lru.SyncedLRU[libpf.Address, instmap.SourceStack]

	hit  atomic.Uint64
	miss atomic.Uint64
}

var _ instmap.InlineStackResolver = (*Cached)(nil)

// NewCached wraps r with an LRU cache holding up to size stacks.
func NewCached(r instmap.InlineStackResolver, size uint32) (*Cached, error) {
	cache, err := lru.NewSynced[libpf.Address, instmap.SourceStack](size,
		libpf.Address.Hash32)
	if err != nil {
		return nil, err
	}
	return &Cached{
		resolver: r,
		cache:    cache,
	}, nil
}

// InlineStack implements instmap.InlineStackResolver.
func (c *Cached) InlineStack(addr libpf.Address) instmap.SourceStack {
	if stack, ok := c.cache.Get(addr); ok {
		c.hit.Add(1)
		return stack
	}
	c.miss.Add(1)
	stack := c.resolver.InlineStack(addr)
	c.cache.Add(addr, stack)
	return stack
}

// Len returns the number of cached stacks.
func (c *Cached) Len() int {
	return c.cache.Len()
}

// GetAndResetStatistics returns the hit statistics and resets them to 0.
func (c *Cached) GetAndResetStatistics() Statistics {
	return Statistics{
		Hit:  c.hit.Swap(0),
		Miss: c.miss.Swap(0),
	}
}
